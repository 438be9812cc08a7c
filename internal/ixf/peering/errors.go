package peering

import (
	"fmt"
	"net/netip"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf/addrspace"
	apperrors "github.com/peeringdb/peeringdb-sub000/internal/shared/errors"
)

// Domain-specific sentinel errors
var (
	ErrSessionNotFound  = apperrors.DomainErrSessionNotFound
	ErrNetworkNotFound  = apperrors.DomainErrNetworkNotFound
	ErrExchangeNotFound = apperrors.DomainErrExchangeNotFound
	ErrLANNotFound      = apperrors.DomainErrLANNotFound
)

// MaxSpeed is the highest accepted port speed in Mbit/s
const MaxSpeed = 5_000_000

func fieldFor(addr netip.Addr) string {
	if addr.Is4() {
		return apperrors.FieldIPAddr4
	}
	return apperrors.FieldIPAddr6
}

// NewPrefixMismatchError reports an address not covered by any active prefix of the LAN
func NewPrefixMismatchError(addr netip.Addr) apperrors.DomainError {
	return apperrors.NewValidationError(apperrors.DomainSession, fieldFor(addr),
		fmt.Sprintf("%s %s does not match any prefix on this ixlan", addrspace.ProtocolOf(addr), addr)).
		WithMetadata("address", addr.String())
}

// NewOtherLANConflictError reports an address held by an active session on another LAN
func NewOtherLANConflictError(addr netip.Addr, holder *Session) apperrors.DomainError {
	return apperrors.NewValidationError(apperrors.DomainSession, fieldFor(addr),
		fmt.Sprintf("Ip address %s already exists in another lan", addr)).
		WithMetadata("address", addr.String()).
		WithMetadata("conflicting_session_id", holder.ID)
}

// NewOutsidePrefixError is raised by full session validation
func NewOutsidePrefixError(addr netip.Addr) apperrors.DomainError {
	return apperrors.NewValidationError(apperrors.DomainSession, fieldFor(addr),
		fmt.Sprintf("%s address outside of prefix", addrspace.ProtocolOf(addr))).
		WithMetadata("address", addr.String())
}

// NewSpeedError reports a port speed out of range
func NewSpeedError(speed int) apperrors.DomainError {
	msg := fmt.Sprintf("speed value %d exceeds the maximum of %d", speed, MaxSpeed)
	if speed < 0 {
		msg = fmt.Sprintf("speed value %d must not be negative", speed)
	}
	return apperrors.NewValidationError(apperrors.DomainSession, apperrors.FieldSpeed, msg).
		WithMetadata("speed", speed)
}

// ClaimedNote is written to a soft-deleted session that lost an address in a reclaim
func ClaimedNote(addr netip.Addr) string {
	return fmt.Sprintf("Ip address %s was claimed by other netixlan", addr)
}

// ReasonNewAddress is the reason attached to sessions created by the reconciler
const ReasonNewAddress = "New ip-address"
