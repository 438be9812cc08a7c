package peering

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf/addrspace"
	apperrors "github.com/peeringdb/peeringdb-sub000/internal/shared/errors"
)

// ContactRole tags a network contact
type ContactRole string

const (
	RolePolicy      ContactRole = "Policy"
	RoleTechnical   ContactRole = "Technical"
	RoleNOC         ContactRole = "NOC"
	RoleMaintenance ContactRole = "Maintenance"
)

// Network is an autonomous system participating at exchanges
type Network struct {
	ID             int64
	ASN            int64
	Name           string
	AllowIXPUpdate bool
	Contacts       []Contact
	Created        time.Time
	Updated        time.Time
}

// Contact is a role-tagged point of contact of a network
type Contact struct {
	ID        int64
	NetworkID int64
	Role      ContactRole
	Name      string
	Email     string
}

// Exchange is an internet exchange operator
type Exchange struct {
	ID          int64
	Name        string
	TechEmail   string
	PolicyEmail string
}

// IXLan is a peering LAN of an exchange
type IXLan struct {
	ID         int64
	ExchangeID int64
	Name       string
	// IXFIXPID selects the ixp_id of the IX-F feed this LAN imports, nil means all
	IXFIXPID *int64
}

// Prefix is an address block assigned to a LAN
type Prefix struct {
	ID       int64
	IXLanID  int64
	Prefix   netip.Prefix
	Protocol addrspace.Protocol
	Status   State
}

// Session is a network's presence on a LAN. Zero netip.Addr values mean the
// address is not set.
type Session struct {
	ID          int64
	NetworkID   int64
	IXLanID     int64
	ASN         int64
	IPAddr4     netip.Addr
	IPAddr6     netip.Addr
	Speed       *int
	IsRSPeer    bool
	Operational bool
	Status      State
	Notes       string
	Created     time.Time
	Updated     time.Time
}

// NewSession creates an unsaved pending session on a LAN
func NewSession(lanID, networkID, asn int64) *Session {
	return &Session{
		NetworkID:   networkID,
		IXLanID:     lanID,
		ASN:         asn,
		Operational: true,
		Status:      StatePending,
	}
}

// IsActive returns true if the session is active
func (s *Session) IsActive() bool {
	return s.Status == StateActive
}

// IsDeleted returns true if the session is soft-deleted
func (s *Session) IsDeleted() bool {
	return s.Status == StateDeleted
}

// Persisted reports whether the session has a storage id
func (s *Session) Persisted() bool {
	return s.ID != 0
}

// Clone returns a deep copy
func (s *Session) Clone() *Session {
	c := *s
	if s.Speed != nil {
		sp := *s.Speed
		c.Speed = &sp
	}
	return &c
}

// Activate moves a pending or active session to active
func (s *Session) Activate() error {
	return s.transition(StateActive)
}

// SoftDelete marks the session as removed while keeping the row
func (s *Session) SoftDelete() error {
	return s.transition(StateDeleted)
}

// Resurrect brings a soft-deleted session back to active. Only the reclaim
// path of the reconciler and rollback reverts may call it.
func (s *Session) Resurrect() error {
	if s.Status != StateDeleted {
		return s.transition(StateActive)
	}
	s.Status = StateActive
	return nil
}

func (s *Session) transition(target State) error {
	if !target.IsValid() {
		return apperrors.NewSessionError(apperrors.ErrCodeInvalidTransition, "invalid state", false, nil).
			WithMetadata("state", target)
	}
	if !s.Status.CanTransitionTo(target) {
		return apperrors.NewSessionError(apperrors.ErrCodeInvalidTransition,
			fmt.Sprintf("invalid state transition from %s to %s", s.Status, target), false, nil).
			WithMetadata("session_id", s.ID)
	}
	s.Status = target
	return nil
}

// SpeedValue returns the speed or 0 when unset
func (s *Session) SpeedValue() int {
	if s.Speed == nil {
		return 0
	}
	return *s.Speed
}

// IntPtr is a helper for optional speeds
func IntPtr(v int) *int {
	return &v
}

// AddrString renders an optional address, "" when unset
func AddrString(a netip.Addr) string {
	if !a.IsValid() {
		return ""
	}
	return a.String()
}

// Proposal is a requested session state for one network on one LAN
type Proposal struct {
	NetworkID   int64
	ASN         int64
	IPAddr4     netip.Addr
	IPAddr6     netip.Addr
	Speed       int
	IsRSPeer    bool
	Operational bool
}

// ProposalFromSession turns a stand-in session into a proposal
func ProposalFromSession(s *Session) Proposal {
	return Proposal{
		NetworkID:   s.NetworkID,
		ASN:         s.ASN,
		IPAddr4:     s.IPAddr4,
		IPAddr6:     s.IPAddr6,
		Speed:       s.SpeedValue(),
		IsRSPeer:    s.IsRSPeer,
		Operational: s.Operational,
	}
}

// AddOptions controls persistence of AddNetIXLan
type AddOptions struct {
	// Save persists the target session
	Save bool
	// SaveOthers persists address reclaims on other sessions even when Save is false
	SaveOthers bool
}

// DefaultAddOptions persists everything
func DefaultAddOptions() AddOptions {
	return AddOptions{Save: true, SaveOthers: true}
}

// DryRun persists nothing
func DryRun() AddOptions {
	return AddOptions{}
}

// AddResult is the outcome of AddNetIXLan
type AddResult struct {
	Session *Session
	Created bool
	Changed []string
	Log     []string
	Reason  string
}

// HasChanged reports whether field is in Changed
func (r *AddResult) HasChanged(field string) bool {
	for _, f := range r.Changed {
		if f == field {
			return true
		}
	}
	return false
}
