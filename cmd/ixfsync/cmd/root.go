// Package cmd implements the ixfsync command line.
package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/config"
	applogger "github.com/peeringdb/peeringdb-sub000/internal/shared/logger"
)

const version = "1.0.0"

var (
	configPath string
	user       string
)

var rootCmd = &cobra.Command{
	Use:   "ixfsync",
	Short: "Reconcile IX-F member exports with PeeringDB sessions",
	Long: `ixfsync imports IX-F member exports of an exchange LAN, applies the
changes networks opted into and stages the rest as proposals. Imports can be
rolled back from their import log.`,
	SilenceUsage: true,
	Version:      version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: config.yaml in /etc/ixfsync, $HOME/.ixfsync or .)")
	rootCmd.PersistentFlags().StringVarP(&user, "user", "u", "admin", "user recorded on versions and logs")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadWithPath(configPath)
	}
	return config.NewLoader().Load()
}

// withService loads the configuration, builds the service and runs fn with it
func withService(cmd *cobra.Command, fn func(ctx context.Context, svc *ixf.Service) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	log := applogger.New(applogger.LoggerConfig{
		Level:     applogger.LogLevel(cfg.Log.Level),
		Format:    applogger.OutputFormat(cfg.Log.Format),
		Component: "ixfsync",
		Version:   version,
	})

	svc, err := ixf.NewService(cfg, log)
	if err != nil {
		log.ErrorCtx(cmd.Context(), "failed to create service", err)
		return err
	}
	defer svc.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, svc)
}

func parseID(name, arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, arg)
	}
	return id, nil
}
