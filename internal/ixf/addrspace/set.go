package addrspace

import (
	"net/netip"

	"go4.org/netipx"
)

// Set holds the active prefixes of one LAN split by protocol
type Set struct {
	v4 *netipx.IPSet
	v6 *netipx.IPSet
}

// NewSet builds a Set from prefixes. Invalid prefixes are ignored.
func NewSet(prefixes []netip.Prefix) (*Set, error) {
	var b4, b6 netipx.IPSetBuilder
	for _, p := range prefixes {
		if !p.IsValid() {
			continue
		}
		if p.Addr().Is4() {
			b4.AddPrefix(p.Masked())
		} else {
			b6.AddPrefix(p.Masked())
		}
	}
	v4, err := b4.IPSet()
	if err != nil {
		return nil, err
	}
	v6, err := b6.IPSet()
	if err != nil {
		return nil, err
	}
	return &Set{v4: v4, v6: v6}, nil
}

// Contains reports whether address falls within any prefix of its protocol
func (s *Set) Contains(address any) bool {
	addr, ok := ParseAddr(address)
	if !ok {
		return false
	}
	addr = addr.WithZone("")
	if addr.Is4() {
		return s.v4.Contains(addr)
	}
	return s.v6.Contains(addr)
}

// Prefixes returns the minimal prefix list of protocol p
func (s *Set) Prefixes(p Protocol) []netip.Prefix {
	if p == IPv4 {
		return s.v4.Prefixes()
	}
	return s.v6.Prefixes()
}

// Empty reports whether the set has no prefixes of protocol p
func (s *Set) Empty(p Protocol) bool {
	return len(s.Prefixes(p)) == 0
}
