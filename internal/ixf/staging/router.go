package staging

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf/notify"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/peering"
	apperrors "github.com/peeringdb/peeringdb-sub000/internal/shared/errors"
	applogger "github.com/peeringdb/peeringdb-sub000/internal/shared/logger"
)

// Router persists staging records and notifies the parties involved. Every
// Set method returns true when it saved an actionable change and notified.
type Router struct {
	records  Repository
	notifier Notifier
	logger   *applogger.Logger
}

// NewRouter creates a router
func NewRouter(records Repository, notifier Notifier, logger *applogger.Logger) *Router {
	return &Router{
		records:  records,
		notifier: notifier,
		logger:   logger.WithComponent("staging.router"),
	}
}

// SetAdd stages a new member entry. The admin committee and the exchange are
// only told when the network already peers at the exchange.
func (r *Router) SetAdd(ctx context.Context, m *Member, reason string) (bool, error) {
	rec := m.Record
	if !rec.IsNew() {
		return false, r.quietSave(ctx, m)
	}

	rec.Reason = reason
	r.grabValidationErrors(m)
	if err := r.save(ctx, m); err != nil {
		return false, err
	}

	recipients := []notify.Recipient{notify.RecipientNetwork}
	if m.NetPresentAtIX() {
		recipients = notify.Everyone
	}
	return true, r.notify(ctx, m, notify.KindAdd, recipients)
}

// SetUpdate stages a modification of an existing session
func (r *Router) SetUpdate(ctx context.Context, m *Member, reason string) (bool, error) {
	rec := m.Record
	if !((len(m.Changes()) > 0 && rec.IsNew()) || len(m.RemoteChanges()) > 0) {
		return false, r.quietSave(ctx, m)
	}

	rec.Reason = reason
	r.grabValidationErrors(m)
	rec.Dismissed = false
	if err := r.save(ctx, m); err != nil {
		return false, err
	}
	return true, r.notify(ctx, m, notify.KindModify, notify.Everyone)
}

// SetRemove stages the removal of a session the feed no longer lists
func (r *Router) SetRemove(ctx context.Context, m *Member, reason string) (bool, error) {
	rec := m.Record
	if !((rec.IsNew() && m.MarkedForRemoval()) || (HasData(rec.PreviousData) && m.RemoteDataMissing())) {
		return false, r.quietSave(ctx, m)
	}

	rec.Reason = reason
	rec.Data = "{}"
	if err := r.save(ctx, m); err != nil {
		return false, err
	}
	return true, r.notify(ctx, m, notify.KindRemove, notify.Everyone)
}

// SetConflict records an error that blocks applying the entry. The network
// is left out when the error is one only the exchange can fix.
func (r *Router) SetConflict(ctx context.Context, m *Member, errMsg string) (bool, error) {
	rec := m.Record
	if !(len(m.RemoteChanges()) > 0 || (errMsg != "" && errMsg != rec.Error)) {
		return false, r.quietSave(ctx, m)
	}

	rec.Error = errMsg
	rec.Dismissed = false
	if err := r.save(ctx, m); err != nil {
		return false, err
	}

	recipients := []notify.Recipient{notify.RecipientAdmin, notify.RecipientExchange}
	if m.ActionableForNetwork() {
		recipients = append(recipients, notify.RecipientNetwork)
	}
	return true, r.notify(ctx, m, notify.KindConflict, recipients)
}

// SetResolved announces the resolution and hard-deletes the record
func (r *Router) SetResolved(ctx context.Context, m *Member) (bool, error) {
	rec := m.Record
	if rec.IsNew() {
		return false, nil
	}

	lines := r.notifier.Notify(ctx, r.message(m, notify.KindResolved), notify.Everyone)
	rec.PrependLog(lines...)

	if err := r.records.Delete(ctx, rec.ID); err != nil {
		return false, apperrors.WrapWithDomain(err, apperrors.DomainStaging, apperrors.ErrCodeDatabase, "failed to delete staging record", true)
	}
	r.logger.WithContext(ctx).Info("staging record resolved",
		slog.Int64("staging_id", rec.ID),
		slog.Int64("asn", rec.ASN))
	rec.ID = 0
	return true, nil
}

// Dismiss marks the proposal as ignored by the network
func (r *Router) Dismiss(ctx context.Context, m *Member) error {
	m.Record.Dismissed = true
	return r.save(ctx, m)
}

// Remind notifies the network again about a proposal it has not acted on
func (r *Router) Remind(ctx context.Context, m *Member, now time.Time) (bool, error) {
	rec := m.Record
	policy := m.Context.Policy
	if rec.IsNew() || rec.Dismissed || !m.ActionableForNetwork() || rec.ReminderCount >= policy.ReminderMax {
		return false, nil
	}
	last := rec.Created
	if rec.RemindedAt != nil {
		last = *rec.RemindedAt
	}
	if now.Sub(last) < policy.ReminderPeriod {
		return false, nil
	}

	rec.ReminderCount++
	rec.RemindedAt = &now
	return true, r.notify(ctx, m, notify.KindReminder, []notify.Recipient{notify.RecipientNetwork})
}

// grabValidationErrors validates the session the record would produce and
// keeps the message of the first failure.
func (r *Router) grabValidationErrors(m *Member) {
	rec := m.Record
	candidate := m.Session().Clone()
	candidate.ASN = rec.ASN
	candidate.IPAddr4 = rec.IPAddr4
	candidate.IPAddr6 = rec.IPAddr6
	candidate.IsRSPeer = rec.IsRSPeer
	candidate.Operational = rec.Operational
	if rec.Speed > 0 || candidate.Speed == nil {
		candidate.Speed = peering.IntPtr(rec.Speed)
	}
	if err := peering.ValidateSession(candidate, m.Context.Prefixes); err != nil {
		rec.Error = apperrors.MessageOf(err)
	}
}

func (r *Router) quietSave(ctx context.Context, m *Member) error {
	if !m.DataChanged() {
		return nil
	}
	return r.save(ctx, m)
}

func (r *Router) save(ctx context.Context, m *Member) error {
	rec := m.Record
	var err error
	if rec.IsNew() {
		err = r.records.Create(ctx, rec)
	} else {
		err = r.records.Update(ctx, rec)
	}
	if err != nil {
		return apperrors.WrapWithDomain(err, apperrors.DomainStaging, apperrors.ErrCodeDatabase, "failed to save staging record", true)
	}
	return nil
}

// notify fans out and keeps the resulting lines on the record
func (r *Router) notify(ctx context.Context, m *Member, kind notify.Kind, recipients []notify.Recipient) error {
	lines := r.notifier.Notify(ctx, r.message(m, kind), recipients)
	m.Record.PrependLog(lines...)
	if err := r.records.UpdateBookkeeping(ctx, m.Record); err != nil {
		return apperrors.WrapWithDomain(err, apperrors.DomainStaging, apperrors.ErrCodeDatabase, "failed to write staging log", true)
	}
	return nil
}

func (r *Router) message(m *Member, kind notify.Kind) notify.Message {
	rec := m.Record
	msg := notify.Message{
		Kind:        kind,
		Exchange:    m.Context.Exchange,
		LAN:         m.Context.LAN,
		Network:     m.Context.Network,
		ASN:         rec.ASN,
		IPAddr4:     peering.AddrString(rec.IPAddr4),
		IPAddr6:     peering.AddrString(rec.IPAddr6),
		Speed:       rec.Speed,
		IsRSPeer:    rec.IsRSPeer,
		Operational: rec.Operational,
		Reason:      rec.Reason,
		Error:       rec.Error,
		Reminder:    rec.ReminderCount,
	}

	changes := m.Changes()
	if len(changes) == 0 {
		changes = m.RemoteChanges()
	}
	for field, c := range changes {
		msg.Changes = append(msg.Changes, notify.FieldChange{
			Field: field,
			From:  fmt.Sprint(c.From),
			To:    fmt.Sprint(c.To),
		})
	}
	sort.Slice(msg.Changes, func(i, j int) bool { return msg.Changes[i].Field < msg.Changes[j].Field })
	return msg
}
