// Package importer runs IX-F member exports of a LAN through the staging
// workflow.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/google/uuid"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf/importlog"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/peering"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/staging"
	apperrors "github.com/peeringdb/peeringdb-sub000/internal/shared/errors"
	"github.com/peeringdb/peeringdb-sub000/internal/shared/events"
	applogger "github.com/peeringdb/peeringdb-sub000/internal/shared/logger"
)

// Reasons attached to staged records and import log entries
const (
	ReasonAdd    = peering.ReasonNewAddress
	ReasonModify = "Data changed in IX-F export"
	ReasonRemove = "Not listed in IX-F export"
)

// ImporterUser is recorded on the versions written by automatic applies
const ImporterUser = "ixf-importer"

// ImportReport summarises one run
type ImportReport struct {
	RunID       string
	LANID       int64
	ImportLogID int64
	Entries     int
	Invalid     int
	// Applied counts changes written to sessions of networks allowing automatic updates
	Applied int
	// Staged counts proposals saved and notified
	Staged    int
	Conflicts int
	Resolved  int
	// Skipped counts entries of unknown networks
	Skipped int
}

// Dependencies groups what an Importer needs
type Dependencies struct {
	LANs       peering.IXLanRepository
	Sessions   peering.Service
	Reconciler *peering.Reconciler
	Staging    *staging.Service
	// Resolver is flushed at the start of every run. It may be nil.
	Resolver   *staging.Resolver
	Router     *staging.Router
	Applier    *staging.Applier
	ImportLogs *importlog.Service
	Tx         importlog.Transactor
	Bus        events.EventBus
}

// Importer reconciles IX-F exports with the sessions of a LAN
type Importer struct {
	deps   Dependencies
	logger *applogger.Logger
	now    func() time.Time
}

// New creates an importer
func New(deps Dependencies, logger *applogger.Logger) *Importer {
	return &Importer{
		deps:   deps,
		logger: logger.WithComponent("importer"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// run holds the state of one import
type run struct {
	lan      *peering.IXLan
	report   *ImportReport
	entries  []*importlog.Entry
	records  map[int64]bool
	listed   map[string]bool
	sessions map[int64]bool
	fetched  time.Time
}

func addrKey(asn int64, addr netip.Addr) string {
	return fmt.Sprintf("%d|%s", asn, addr)
}

// listedSession reports whether the export lists s by one of its addresses
func (r *run) listedSession(s *peering.Session) bool {
	if r.sessions[s.ID] {
		return true
	}
	for _, addr := range []netip.Addr{s.IPAddr4, s.IPAddr6} {
		if addr.IsValid() && r.listed[addrKey(s.ASN, addr)] {
			return true
		}
	}
	return false
}

// Run imports payload for the LAN inside one transaction
func (imp *Importer) Run(ctx context.Context, lanID int64, payload []byte) (*ImportReport, error) {
	lan, err := imp.deps.LANs.Get(ctx, lanID)
	if err != nil {
		return nil, err
	}

	feed, err := Parse(payload, lan.IXFIXPID)
	if err != nil {
		return nil, err
	}

	if imp.deps.Resolver != nil {
		imp.deps.Resolver.Forget()
	}

	runID := uuid.NewString()
	ctx = applogger.WithImportRunID(ctx, runID)
	ctx = applogger.WithLANID(ctx, lanID)
	ctx = applogger.WithOperation(ctx, "ixf_import")

	op := imp.logger.StartOp(ctx, "ImportRun", slog.Int("entries", len(feed.Entries)))
	for _, msg := range feed.Invalid {
		imp.logger.WithContext(ctx).Warn("invalid IX-F entry dropped", slog.String("reason", msg))
	}

	r := &run{
		lan: lan,
		report: &ImportReport{
			RunID:   runID,
			LANID:   lanID,
			Entries: len(feed.Entries),
			Invalid: len(feed.Invalid),
		},
		records:  map[int64]bool{},
		listed:   map[string]bool{},
		sessions: map[int64]bool{},
		fetched:  imp.now(),
	}

	err = imp.deps.Tx.ExecTx(ctx, func(ctx context.Context) error {
		for _, e := range feed.Entries {
			if err := imp.importEntry(ctx, r, e); err != nil {
				return err
			}
		}
		if err := imp.removeUnlisted(ctx, r); err != nil {
			return err
		}
		if err := imp.resolveStale(ctx, r); err != nil {
			return err
		}

		l, err := imp.deps.ImportLogs.Write(ctx, lan.ID, runID, r.entries)
		if err != nil {
			return err
		}
		if l != nil {
			r.report.ImportLogID = l.ID
		}
		return nil
	})
	if err != nil {
		op.Fail(err, "import run failed")
		return nil, err
	}

	if imp.deps.Bus != nil {
		rep := r.report
		event := events.NewImportCompletedEvent(runID, lanID, rep.ImportLogID, rep.Applied, rep.Staged, rep.Resolved, rep.Skipped)
		if err := imp.deps.Bus.Publish(ctx, event); err != nil {
			imp.logger.WarnCtx(ctx, "failed to publish import event", err)
		}
	}

	op.Complete("import run completed",
		slog.Int64("import_log_id", r.report.ImportLogID),
		slog.Int("applied", r.report.Applied),
		slog.Int("staged", r.report.Staged),
		slog.Int("conflicts", r.report.Conflicts),
		slog.Int("resolved", r.report.Resolved),
		slog.Int("skipped", r.report.Skipped))
	return r.report, nil
}

func (imp *Importer) importEntry(ctx context.Context, r *run, e Entry) error {
	for _, addr := range []netip.Addr{e.IPAddr4, e.IPAddr6} {
		if addr.IsValid() {
			r.listed[addrKey(e.ASN, addr)] = true
		}
	}

	m, err := imp.deps.Staging.Instantiate(ctx, r.lan, e.ASN, e.IPAddr4, e.IPAddr6, staging.Fields{
		Speed:       &e.Speed,
		Operational: &e.Operational,
		IsRSPeer:    &e.IsRSPeer,
		Data:        e.Data,
		Fetched:     r.fetched,
	})
	if err != nil {
		return err
	}
	if m.Context.Network == nil {
		r.report.Skipped++
		return nil
	}
	if m.Session().Persisted() {
		r.sessions[m.Session().ID] = true
	}

	if err := imp.process(ctx, r, m); err != nil {
		return err
	}
	if !m.Record.IsNew() {
		r.records[m.Record.ID] = true
	}
	return nil
}

// process applies or stages one member depending on the network's opt-in
func (imp *Importer) process(ctx context.Context, r *run, m *staging.Member) error {
	action := m.Action()
	reason := reasonFor(action)

	if m.Context.Network.AllowIXPUpdate && action != staging.ActionNoop {
		return imp.apply(ctx, r, m, action, reason)
	}

	var (
		staged bool
		err    error
	)
	switch action {
	case staging.ActionAdd:
		_, dryErr := imp.deps.Reconciler.AddNetIXLan(ctx, r.lan, proposalOf(m), peering.DryRun())
		switch {
		case dryErr == nil:
			staged, err = imp.deps.Router.SetAdd(ctx, m, reason)
		case apperrors.IsValidation(dryErr):
			staged, err = imp.deps.Router.SetConflict(ctx, m, apperrors.MessageOf(dryErr))
			if staged {
				r.report.Conflicts++
				staged = false
			}
		default:
			return dryErr
		}
	case staging.ActionModify:
		staged, err = imp.deps.Router.SetUpdate(ctx, m, reason)
	case staging.ActionDelete:
		staged, err = imp.deps.Router.SetRemove(ctx, m, reason)
	default:
		var resolved bool
		resolved, err = imp.deps.Router.SetResolved(ctx, m)
		if resolved {
			r.report.Resolved++
		}
	}
	if err != nil {
		return err
	}
	if staged {
		r.report.Staged++
	}
	return nil
}

func (imp *Importer) apply(ctx context.Context, r *run, m *staging.Member, action staging.Action, reason string) error {
	res, err := imp.deps.Applier.Apply(ctx, m, staging.ApplyOptions{
		User:    ImporterUser,
		Comment: reason,
		Save:    true,
	})
	if err != nil {
		if !apperrors.IsValidation(err) {
			return err
		}
		staged, err := imp.deps.Router.SetConflict(ctx, m, apperrors.MessageOf(err))
		if err != nil {
			return err
		}
		if staged {
			r.report.Conflicts++
		}
		return nil
	}

	r.sessions[res.Session.ID] = true
	r.entries = append(r.entries, &importlog.Entry{
		SessionID:     res.Session.ID,
		VersionBefore: res.VersionBefore,
		VersionAfter:  res.VersionAfter,
		Action:        string(action),
		Reason:        reason,
	})
	r.report.Applied++
	return nil
}

// removeUnlisted stages or applies the removal of active sessions the export dropped
func (imp *Importer) removeUnlisted(ctx context.Context, r *run) error {
	sessions, err := imp.deps.Sessions.ListByIXLan(ctx, r.lan.ID)
	if err != nil {
		return apperrors.WrapWithDomain(err, apperrors.DomainImporter, apperrors.ErrCodeDatabase, "failed to list sessions", true)
	}

	for _, s := range sessions {
		if !s.IsActive() || r.listedSession(s) {
			continue
		}
		m, err := imp.deps.Staging.Instantiate(ctx, r.lan, s.ASN, s.IPAddr4, s.IPAddr6, staging.Fields{
			Speed:       peering.IntPtr(s.SpeedValue()),
			Operational: &s.Operational,
			IsRSPeer:    &s.IsRSPeer,
			Data:        "{}",
			Fetched:     r.fetched,
		})
		if err != nil {
			return err
		}
		if m.Context.Network == nil {
			r.report.Skipped++
			continue
		}

		if m.Context.Network.AllowIXPUpdate && m.Action() == staging.ActionDelete {
			if err := imp.apply(ctx, r, m, staging.ActionDelete, ReasonRemove); err != nil {
				return err
			}
		} else {
			staged, err := imp.deps.Router.SetRemove(ctx, m, ReasonRemove)
			if err != nil {
				return err
			}
			if staged {
				r.report.Staged++
			}
		}
		if !m.Record.IsNew() {
			r.records[m.Record.ID] = true
		}
	}
	return nil
}

// resolveStale resolves pending records the export no longer backs
func (imp *Importer) resolveStale(ctx context.Context, r *run) error {
	members, err := imp.deps.Staging.ListByIXLan(ctx, r.lan)
	if err != nil {
		return err
	}
	for _, m := range members {
		if r.records[m.Record.ID] || m.MarkedForRemoval() {
			continue
		}
		resolved, err := imp.deps.Router.SetResolved(ctx, m)
		if err != nil {
			return err
		}
		if resolved {
			r.report.Resolved++
		}
	}
	return nil
}

func reasonFor(action staging.Action) string {
	switch action {
	case staging.ActionAdd:
		return ReasonAdd
	case staging.ActionModify:
		return ReasonModify
	case staging.ActionDelete:
		return ReasonRemove
	}
	return ""
}

func proposalOf(m *staging.Member) peering.Proposal {
	rec := m.Record
	return peering.Proposal{
		NetworkID:   m.Context.Network.ID,
		ASN:         rec.ASN,
		IPAddr4:     rec.IPAddr4,
		IPAddr6:     rec.IPAddr6,
		Speed:       rec.Speed,
		IsRSPeer:    rec.IsRSPeer,
		Operational: rec.Operational,
	}
}
