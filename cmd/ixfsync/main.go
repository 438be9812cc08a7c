package main

import (
	"os"

	"github.com/peeringdb/peeringdb-sub000/cmd/ixfsync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
