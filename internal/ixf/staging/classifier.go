package staging

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf/peering"
)

// unactionableErrors mark errors only the exchange can fix
var unactionableErrors = []string{
	"address outside of prefix",
	"does not match any prefix",
	"speed value",
}

// HasData reports whether raw is a member entry rather than an empty payload
func HasData(raw string) bool {
	trimmed := bytes.TrimSpace([]byte(raw))
	if len(trimmed) == 0 {
		return false
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		// malformed payloads still came from the feed
		return true
	}
	switch compact.String() {
	case "{}", "null", `""`:
		return false
	}
	return true
}

// RemoteDataMissing reports whether the feed no longer lists this member
func (m *Member) RemoteDataMissing() bool {
	return !HasData(m.Record.Data)
}

// MarkedForRemoval reports whether an active session exists for a member the
// feed dropped.
func (m *Member) MarkedForRemoval() bool {
	s := m.Session()
	return s.Persisted() && s.IsActive() && m.RemoteDataMissing()
}

// Action computes the required mutation from the current state. It is never
// cached.
func (m *Member) Action() Action {
	s := m.Session()

	if !m.RemoteDataMissing() {
		switch {
		case !s.Persisted():
			return ActionAdd
		case s.IsDeleted() && m.Record.Status() == peering.StateActive:
			return ActionAdd
		case s.IsActive() && len(m.Changes()) > 0:
			return ActionModify
		}
		return ActionNoop
	}

	if m.MarkedForRemoval() {
		return ActionDelete
	}
	return ActionNoop
}

// Changes diffs the record against the matched session
func (m *Member) Changes() map[string]Change {
	changes := map[string]Change{}
	s := m.Session()
	if !s.Persisted() || m.MarkedForRemoval() {
		return changes
	}

	r := m.Record
	policy := m.Context.Policy

	if policy.ModifyIsRSPeer && s.IsRSPeer != r.IsRSPeer {
		changes["is_rs_peer"] = Change{From: s.IsRSPeer, To: r.IsRSPeer}
	}
	if policy.ModifySpeed && r.Speed > 0 && s.SpeedValue() != r.Speed {
		changes["speed"] = Change{From: s.SpeedValue(), To: r.Speed}
	}
	if s.Operational != r.Operational {
		changes["operational"] = Change{From: s.Operational, To: r.Operational}
	}
	if s.Status != r.Status() {
		changes["status"] = Change{From: s.Status.String(), To: r.Status().String()}
	}
	return changes
}

// RemoteChanges diffs this fetch against the previous fetch of the same record
func (m *Member) RemoteChanges() map[string]Change {
	changes := map[string]Change{}
	prev := m.Record.Previous
	if m.Record.IsNew() || prev == nil {
		return changes
	}

	cur := m.Record.Mirror()
	if prev.Speed != cur.Speed {
		changes["speed"] = Change{From: prev.Speed, To: cur.Speed}
	}
	if prev.Operational != cur.Operational {
		changes["operational"] = Change{From: prev.Operational, To: cur.Operational}
	}
	if prev.IsRSPeer != cur.IsRSPeer {
		changes["is_rs_peer"] = Change{From: prev.IsRSPeer, To: cur.IsRSPeer}
	}
	return changes
}

// ActionableForNetwork is false for errors the network cannot resolve itself
func (m *Member) ActionableForNetwork() bool {
	for _, marker := range unactionableErrors {
		if strings.Contains(m.Record.Error, marker) {
			return false
		}
	}
	return true
}

// DataChanged reports whether a saved record got a different raw payload on this fetch
func (m *Member) DataChanged() bool {
	r := m.Record
	return !r.IsNew() && r.Previous != nil && r.Data != r.PreviousData
}
