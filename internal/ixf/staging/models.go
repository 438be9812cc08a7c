// Package staging holds IX-F member data that has not been applied to
// sessions yet, decides what each entry requires and drives its
// notification workflow.
package staging

import (
	"net/netip"
	"time"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf/addrspace"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/peering"
)

// Action is the mutation a staging record asks for
type Action string

const (
	ActionAdd    Action = "add"
	ActionModify Action = "modify"
	ActionDelete Action = "delete"
	ActionNoop   Action = "noop"
)

// Mirror is the set of session fields mirrored from the feed
type Mirror struct {
	Speed       int
	Operational bool
	IsRSPeer    bool
}

// Record is one pending IX-F member entry of a LAN, keyed by asn and
// addresses. Resolved records are deleted.
type Record struct {
	ID          int64
	IXLanID     int64
	ASN         int64
	IPAddr4     netip.Addr
	IPAddr6     netip.Addr
	Speed       int
	Operational bool
	IsRSPeer    bool
	// Data is the raw JSON of the member entry
	Data      string
	Log       string
	Dismissed bool
	Error     string
	Reason    string
	Fetched   time.Time

	ReminderCount int
	RemindedAt    *time.Time

	Created time.Time
	Updated time.Time

	// Previous and PreviousData hold the state of the prior fetch. They are
	// only set on records loaded by Instantiate.
	Previous     *Mirror
	PreviousData string
}

// IsNew reports whether the record was never saved
func (r *Record) IsNew() bool {
	return r.ID == 0
}

// Status is the session state the feed asks for. Listed members are active.
func (r *Record) Status() peering.State {
	return peering.StateActive
}

// Mirror returns the mirrored fields
func (r *Record) Mirror() Mirror {
	return Mirror{Speed: r.Speed, Operational: r.Operational, IsRSPeer: r.IsRSPeer}
}

// PrependLog adds lines on top of the log so the newest line comes first
func (r *Record) PrependLog(lines ...string) {
	for _, line := range lines {
		if r.Log == "" {
			r.Log = line
			continue
		}
		r.Log = line + "\n" + r.Log
	}
}

// Fields are the values of a member entry assigned on every fetch. Nil
// pointers take the defaults: speed 0, operational, not a route server peer.
type Fields struct {
	Speed       *int
	Operational *bool
	IsRSPeer    *bool
	Data        string
	Fetched     time.Time
}

// Change is one field difference
type Change struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// Policy holds the import settings that shape classification and reminders
type Policy struct {
	ModifySpeed    bool          `mapstructure:"modify_speed"`
	ModifyIsRSPeer bool          `mapstructure:"modify_is_rs_peer"`
	ReminderPeriod time.Duration `mapstructure:"reminder_period"`
	ReminderMax    int           `mapstructure:"reminder_max"`
}

// DefaultPolicy returns the default import settings
func DefaultPolicy() Policy {
	return Policy{
		ModifySpeed:    true,
		ModifyIsRSPeer: false,
		ReminderPeriod: 30 * 24 * time.Hour,
		ReminderMax:    3,
	}
}

// Context carries every lookup the classifier and router need, resolved up front
type Context struct {
	LAN      *peering.IXLan
	Exchange *peering.Exchange
	// Network is nil when no network has the record's asn
	Network *peering.Network
	// Session is the matched session or an unsaved stand-in built from the record
	Session        *peering.Session
	Prefixes       *addrspace.Set
	NetPresentAtIX bool
	Policy         Policy
}

// Member pairs a staging record with its resolved context
type Member struct {
	Record  *Record
	Context *Context
}

// Session returns the matched or stand-in session
func (m *Member) Session() *peering.Session {
	return m.Context.Session
}

// NetPresentAtIX reports whether the network has an active session at the exchange
func (m *Member) NetPresentAtIX() bool {
	return m.Context.NetPresentAtIX
}
