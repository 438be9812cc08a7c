package peering

import (
	"net/netip"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf/addrspace"
	apperrors "github.com/peeringdb/peeringdb-sub000/internal/shared/errors"
)

// ActivePrefixSet builds the coverage set of the active prefixes in prefixes
func ActivePrefixSet(prefixes []*Prefix) (*addrspace.Set, error) {
	active := make([]netip.Prefix, 0, len(prefixes))
	for _, p := range prefixes {
		if p.Status == StateActive {
			active = append(active, p.Prefix)
		}
	}
	return addrspace.NewSet(active)
}

// ValidateSession runs the full validation of a session against the active
// prefixes of its LAN.
func ValidateSession(s *Session, prefixes *addrspace.Set) error {
	if s.ASN <= 0 {
		return apperrors.NewValidationError(apperrors.DomainSession, apperrors.FieldASN, "asn must be positive").
			WithMetadata("asn", s.ASN)
	}

	if s.IPAddr4.IsValid() {
		if !s.IPAddr4.Is4() {
			return apperrors.NewValidationError(apperrors.DomainSession, apperrors.FieldIPAddr4, "ipaddr4 must be an IPv4 address")
		}
		if !prefixes.Contains(s.IPAddr4) {
			return NewOutsidePrefixError(s.IPAddr4)
		}
	}

	if s.IPAddr6.IsValid() {
		if !s.IPAddr6.Is6() || s.IPAddr6.Is4In6() {
			return apperrors.NewValidationError(apperrors.DomainSession, apperrors.FieldIPAddr6, "ipaddr6 must be an IPv6 address")
		}
		if !prefixes.Contains(s.IPAddr6) {
			return NewOutsidePrefixError(s.IPAddr6)
		}
	}

	if s.Speed != nil && (*s.Speed < 0 || *s.Speed > MaxSpeed) {
		return NewSpeedError(*s.Speed)
	}

	return nil
}
