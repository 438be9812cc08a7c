// Package addrspace answers address-in-prefix questions for exchange LANs.
package addrspace

import (
	"fmt"
	"net"
	"net/netip"

	"go4.org/netipx"

	apperrors "github.com/peeringdb/peeringdb-sub000/internal/shared/errors"
)

// Protocol is the IP protocol of a prefix or address
type Protocol string

const (
	IPv4 Protocol = "IPv4"
	IPv6 Protocol = "IPv6"
)

// ProtocolOf returns the protocol of addr
func ProtocolOf(addr netip.Addr) Protocol {
	if addr.Is4() {
		return IPv4
	}
	return IPv6
}

// ProtocolOfPrefix returns the protocol of p
func ProtocolOfPrefix(p netip.Prefix) Protocol {
	return ProtocolOf(p.Addr())
}

// ParseAddr normalises the accepted address representations. net.IP values
// holding an IPv4 address in 16-byte form are unmapped so they compare as IPv4.
func ParseAddr(address any) (netip.Addr, bool) {
	switch v := address.(type) {
	case netip.Addr:
		return v, v.IsValid()
	case *netip.Addr:
		if v == nil {
			return netip.Addr{}, false
		}
		return *v, v.IsValid()
	case string:
		a, err := netip.ParseAddr(v)
		if err != nil {
			return netip.Addr{}, false
		}
		return a, true
	case net.IP:
		a, ok := netip.AddrFromSlice(v)
		if !ok {
			return netip.Addr{}, false
		}
		return a.Unmap(), true
	default:
		return netip.Addr{}, false
	}
}

// Covers reports whether address lies within prefix. Unparseable input and
// protocol mismatches yield false.
func Covers(prefix netip.Prefix, address any) bool {
	if !prefix.IsValid() {
		return false
	}
	addr, ok := ParseAddr(address)
	if !ok {
		return false
	}
	if addr.Is4() != prefix.Addr().Is4() {
		return false
	}
	return prefix.Masked().Contains(addr.WithZone(""))
}

var nonGlobal = func() *netipx.IPSet {
	var b netipx.IPSetBuilder
	for _, s := range []string{
		"0.0.0.0/8",
		"10.0.0.0/8",
		"100.64.0.0/10",
		"127.0.0.0/8",
		"169.254.0.0/16",
		"172.16.0.0/12",
		"192.0.0.0/24",
		"192.0.2.0/24",
		"192.168.0.0/16",
		"198.18.0.0/15",
		"198.51.100.0/24",
		"203.0.113.0/24",
		"240.0.0.0/4",
		"255.255.255.255/32",
		"::/128",
		"::1/128",
		"::ffff:0:0/96",
		"100::/64",
		"2001::/23",
		"2001:db8::/32",
		"fc00::/7",
	} {
		b.AddPrefix(netip.MustParsePrefix(s))
	}
	set, err := b.IPSet()
	if err != nil {
		panic(err)
	}
	return set
}()

var multicast = func() *netipx.IPSet {
	var b netipx.IPSetBuilder
	b.AddPrefix(netip.MustParsePrefix("224.0.0.0/4"))
	b.AddPrefix(netip.MustParsePrefix("ff00::/8"))
	set, err := b.IPSet()
	if err != nil {
		panic(err)
	}
	return set
}()

// disallowed leading 16-bit blocks of IPv6 networks
var disallowedV6Blocks = map[uint16]string{
	0x2002: "6to4",
	0x3ffe: "6bone",
	0xfec0: "site-local",
	0xfe80: "link-local",
}

// NetworkIsPDBValid rejects multicast, non-global and reserved networks. A
// nil return means the prefix may be attached to an exchange LAN.
func NetworkIsPDBValid(prefix netip.Prefix) error {
	if !prefix.IsValid() {
		return apperrors.NewValidationError(apperrors.DomainAddrSpace, apperrors.FieldPrefix, "invalid prefix")
	}
	p := prefix.Masked()

	if multicast.OverlapsPrefix(p) {
		return apperrors.NewValidationError(apperrors.DomainAddrSpace, apperrors.FieldPrefix,
			fmt.Sprintf("prefix %s is a multicast network", p))
	}
	if nonGlobal.OverlapsPrefix(p) {
		return apperrors.NewValidationError(apperrors.DomainAddrSpace, apperrors.FieldPrefix,
			fmt.Sprintf("prefix %s is not a globally routable network", p))
	}
	if p.Addr().Is6() {
		b := p.Addr().As16()
		first := uint16(b[0])<<8 | uint16(b[1])
		if name, bad := disallowedV6Blocks[first]; bad || first >= 0xff00 {
			if !bad {
				name = "multicast"
			}
			return apperrors.NewValidationError(apperrors.DomainAddrSpace, apperrors.FieldPrefix,
				fmt.Sprintf("prefix %s is in the reserved %s block", p, name))
		}
	}
	return nil
}
