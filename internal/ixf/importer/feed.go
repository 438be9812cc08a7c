package importer

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"strings"

	apperrors "github.com/peeringdb/peeringdb-sub000/internal/shared/errors"
)

// operationalStates are connection states counted as operational
var operationalStates = map[string]bool{
	"":            true,
	"active":      true,
	"connected":   true,
	"operational": true,
}

type ixfExport struct {
	Version    string      `json:"version"`
	MemberList []ixfMember `json:"member_list"`
}

type ixfMember struct {
	ASNum          int64           `json:"asnum"`
	Name           string          `json:"name,omitempty"`
	ConnectionList []ixfConnection `json:"connection_list"`
}

type ixfConnection struct {
	IXPID    *int64         `json:"ixp_id,omitempty"`
	State    string         `json:"state,omitempty"`
	IfList   []ixfInterface `json:"if_list,omitempty"`
	VlanList []ixfVlan      `json:"vlan_list,omitempty"`
}

type ixfInterface struct {
	SwitchID *int64 `json:"switch_id,omitempty"`
	IfSpeed  int    `json:"if_speed"`
}

type ixfVlan struct {
	VlanID *int64      `json:"vlan_id,omitempty"`
	IPv4   *ixfAddress `json:"ipv4,omitempty"`
	IPv6   *ixfAddress `json:"ipv6,omitempty"`
}

type ixfAddress struct {
	Address     string   `json:"address"`
	RouteServer bool     `json:"routeserver,omitempty"`
	MaxPrefix   *int     `json:"max_prefix,omitempty"`
	ASMacro     string   `json:"as_macro,omitempty"`
	MACAddress  []string `json:"mac_addresses,omitempty"`
}

// memberData is what a staging record keeps of its feed entry
type memberData struct {
	ASNum  int64          `json:"asnum"`
	Name   string         `json:"name,omitempty"`
	State  string         `json:"state,omitempty"`
	IfList []ixfInterface `json:"if_list,omitempty"`
	Vlan   ixfVlan        `json:"vlan"`
}

// Entry is one (asn, ipv4, ipv6) connection listed in a feed
type Entry struct {
	ASN         int64
	IPAddr4     netip.Addr
	IPAddr6     netip.Addr
	Speed       int
	Operational bool
	IsRSPeer    bool
	// Data is the compact JSON of the entry
	Data string
}

// Feed is a parsed IX-F member export
type Feed struct {
	Version string
	Entries []Entry
	// Invalid lists entries dropped because an address did not parse
	Invalid []string
}

// Parse reads an IX-F member export. With ixpID set, connections of other
// exchanges are ignored. Entries repeating an earlier (asn, ipv4, ipv6) are dropped.
func Parse(payload []byte, ixpID *int64) (*Feed, error) {
	var export ixfExport
	if err := json.Unmarshal(payload, &export); err != nil {
		return nil, apperrors.NewImporterError(apperrors.ErrCodeInvalidFeed, "failed to decode IX-F export", false, err)
	}
	if export.MemberList == nil {
		return nil, apperrors.NewImporterError(apperrors.ErrCodeInvalidFeed, "IX-F export has no member_list", false, nil)
	}

	feed := &Feed{Version: export.Version}
	seen := map[string]bool{}

	for _, member := range export.MemberList {
		if member.ASNum <= 0 {
			feed.Invalid = append(feed.Invalid, fmt.Sprintf("member %q has no asnum", member.Name))
			continue
		}
		for _, conn := range member.ConnectionList {
			if ixpID != nil && conn.IXPID != nil && *conn.IXPID != *ixpID {
				continue
			}

			speed := 0
			for _, iface := range conn.IfList {
				speed += iface.IfSpeed
			}
			operational := operationalStates[strings.ToLower(conn.State)]

			for _, vlan := range conn.VlanList {
				entry, err := newEntry(member, conn, vlan, speed, operational)
				if err != nil {
					feed.Invalid = append(feed.Invalid, err.Error())
					continue
				}
				if !entry.IPAddr4.IsValid() && !entry.IPAddr6.IsValid() {
					continue
				}
				key := fmt.Sprintf("%d|%s|%s", entry.ASN, entry.IPAddr4, entry.IPAddr6)
				if seen[key] {
					continue
				}
				seen[key] = true
				feed.Entries = append(feed.Entries, entry)
			}
		}
	}
	return feed, nil
}

func newEntry(member ixfMember, conn ixfConnection, vlan ixfVlan, speed int, operational bool) (Entry, error) {
	entry := Entry{ASN: member.ASNum, Speed: speed, Operational: operational}

	if vlan.IPv4 != nil && vlan.IPv4.Address != "" {
		addr, err := netip.ParseAddr(vlan.IPv4.Address)
		if err != nil || !addr.Is4() {
			return entry, fmt.Errorf("AS%d: invalid ipv4 address %q", member.ASNum, vlan.IPv4.Address)
		}
		entry.IPAddr4 = addr
		entry.IsRSPeer = entry.IsRSPeer || vlan.IPv4.RouteServer
	}
	if vlan.IPv6 != nil && vlan.IPv6.Address != "" {
		addr, err := netip.ParseAddr(vlan.IPv6.Address)
		if err != nil || !addr.Is6() || addr.Is4In6() {
			return entry, fmt.Errorf("AS%d: invalid ipv6 address %q", member.ASNum, vlan.IPv6.Address)
		}
		entry.IPAddr6 = addr
		entry.IsRSPeer = entry.IsRSPeer || vlan.IPv6.RouteServer
	}

	data, err := json.Marshal(memberData{
		ASNum:  member.ASNum,
		Name:   member.Name,
		State:  conn.State,
		IfList: conn.IfList,
		Vlan:   vlan,
	})
	if err != nil {
		return entry, fmt.Errorf("AS%d: failed to encode entry: %w", member.ASNum, err)
	}
	entry.Data = string(data)
	return entry, nil
}
