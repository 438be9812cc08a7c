package importlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"sort"
	"time"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf/history"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/peering"
	apperrors "github.com/peeringdb/peeringdb-sub000/internal/shared/errors"
	"github.com/peeringdb/peeringdb-sub000/internal/shared/events"
	applogger "github.com/peeringdb/peeringdb-sub000/internal/shared/logger"
)

// Service writes import logs and rolls them back
type Service struct {
	logs     Repository
	sessions peering.Service
	holders  peering.SessionRepository
	versions VersionSource
	tx       Transactor
	bus      events.EventBus
	logger   *applogger.Logger
	now      func() time.Time
}

// NewService creates an import log service. bus may be nil.
func NewService(logs Repository, sessions peering.Service, holders peering.SessionRepository, versions VersionSource,
	tx Transactor, bus events.EventBus, logger *applogger.Logger) *Service {
	return &Service{
		logs:     logs,
		sessions: sessions,
		holders:  holders,
		versions: versions,
		tx:       tx,
		bus:      bus,
		logger:   logger.WithComponent("importlog"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Write stores a log with its entries. Nothing is written without entries
// and the returned log is nil.
func (s *Service) Write(ctx context.Context, lanID int64, runID string, entries []*Entry) (*Log, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	l := &Log{IXLanID: lanID, RunID: runID, Created: s.now()}
	if err := s.logs.Create(ctx, l); err != nil {
		return nil, apperrors.WrapWithDomain(err, apperrors.DomainImportLog, apperrors.ErrCodeDatabase, "failed to create import log", true)
	}
	for _, e := range entries {
		e.LogID = l.ID
		if e.Created.IsZero() {
			e.Created = l.Created
		}
		if err := s.logs.AddEntry(ctx, e); err != nil {
			return nil, apperrors.WrapWithDomain(err, apperrors.DomainImportLog, apperrors.ErrCodeDatabase, "failed to add import log entry", true)
		}
	}
	l.Entries = entries

	s.logger.WithContext(ctx).Info("import log written",
		slog.Int64("import_log_id", l.ID),
		slog.Int64("lan_id", lanID),
		slog.Int("entries", len(entries)))
	return l, nil
}

// Get returns a log with its entries
func (s *Service) Get(ctx context.Context, id int64) (*Log, error) {
	return s.logs.Get(ctx, id)
}

// ListByIXLan lists the logs of a LAN
func (s *Service) ListByIXLan(ctx context.Context, lanID int64) ([]*Log, error) {
	return s.logs.ListByIXLan(ctx, lanID)
}

// RollbackStatus tells whether e can be reverted
func (s *Service) RollbackStatus(ctx context.Context, e *Entry) (RollbackStatus, error) {
	latest, err := s.versions.Latest(ctx, e.SessionID)
	if errors.Is(err, history.ErrVersionNotFound) {
		return StatusChanged, nil
	}
	if err != nil {
		return 0, err
	}

	expected := e.VersionAfter
	if expected == 0 {
		expected = e.VersionBefore
	}
	if latest.ID != expected {
		return StatusChanged, nil
	}

	session, err := s.sessions.Get(ctx, e.SessionID)
	if errors.Is(err, peering.ErrSessionNotFound) {
		return StatusChanged, nil
	}
	if err != nil {
		return 0, err
	}

	if session.IsDeleted() && e.VersionBefore != 0 {
		before, err := s.versions.Get(ctx, e.VersionBefore)
		if err != nil {
			return 0, err
		}
		restored := session.Clone()
		if err := before.Snapshot.ApplyTo(restored); err != nil {
			return 0, err
		}
		if restored.IsActive() {
			taken, err := s.takenAddresses(ctx, restored)
			if err != nil {
				return 0, err
			}
			if len(taken) > 0 {
				return StatusConflict, nil
			}
		}
	}
	return StatusRevertible, nil
}

// Rollback reverts the entries of a log, newest first, in one transaction.
// Entries whose session changed afterwards are skipped, conflicting ones
// are only reverted with Force.
func (s *Service) Rollback(ctx context.Context, logID int64, opts RollbackOptions) (*RollbackResult, error) {
	op := s.logger.StartOp(ctx, "Rollback", slog.Bool("force", opts.Force)).ImportLog(logID)

	l, err := s.logs.Get(ctx, logID)
	if err != nil {
		op.Fail(err, "failed to load import log")
		return nil, err
	}

	entries := append([]*Entry(nil), l.Entries...)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].ID > entries[j].ID })

	result := &RollbackResult{LogID: logID}
	ctx = history.WithRevision(ctx, opts.User, fmt.Sprintf("rollback of import log %d", logID))

	err = s.tx.ExecTx(ctx, func(ctx context.Context) error {
		result.Outcomes = result.Outcomes[:0]
		for _, e := range entries {
			outcome, err := s.rollbackEntry(ctx, e, opts)
			if err != nil {
				return fmt.Errorf("failed to roll back entry %d: %w", e.ID, err)
			}
			result.Outcomes = append(result.Outcomes, outcome)
		}
		return nil
	})
	if err != nil {
		op.Fail(err, "rollback failed")
		return nil, err
	}

	if s.bus != nil {
		if err := s.bus.Publish(ctx, events.NewRollbackCompletedEvent(logID, result.Reverted(), result.Skipped())); err != nil {
			s.logger.WarnCtx(ctx, "failed to publish rollback event", err)
		}
	}

	op.Complete("import log rolled back",
		slog.Int("reverted", result.Reverted()),
		slog.Int("skipped", result.Skipped()))
	return result, nil
}

func (s *Service) rollbackEntry(ctx context.Context, e *Entry, opts RollbackOptions) (EntryOutcome, error) {
	outcome := EntryOutcome{Entry: e}

	status, err := s.RollbackStatus(ctx, e)
	if err != nil {
		return outcome, err
	}
	outcome.Status = status

	switch {
	case status == StatusRevertible:
	case status == StatusConflict && opts.Force:
	default:
		outcome.Note = "session changed since the import"
		if status == StatusConflict {
			outcome.Note = "address now held by another active session"
		}
		return outcome, nil
	}

	session, err := s.sessions.Get(ctx, e.SessionID)
	if err != nil {
		return outcome, err
	}

	if e.VersionBefore == 0 {
		if err := s.sessions.HardDelete(ctx, session); err != nil {
			return outcome, err
		}
		outcome.Deleted = true
		return outcome, nil
	}

	before, err := s.versions.Get(ctx, e.VersionBefore)
	if err != nil {
		return outcome, err
	}
	if err := before.Snapshot.ApplyTo(session); err != nil {
		return outcome, err
	}

	if session.IsActive() {
		taken, err := s.takenAddresses(ctx, session)
		if err != nil {
			return outcome, err
		}
		for _, addr := range taken {
			if addr.Is4() {
				session.IPAddr4 = netip.Addr{}
			} else {
				session.IPAddr6 = netip.Addr{}
			}
			outcome.Note = fmt.Sprintf("Ip address %s kept by another netixlan", addr)
		}
	}

	if err := s.sessions.Save(ctx, session); err != nil {
		return outcome, err
	}
	outcome.Reverted = true
	return outcome, nil
}

// takenAddresses returns the addresses of s held by another active session
func (s *Service) takenAddresses(ctx context.Context, sess *peering.Session) ([]netip.Addr, error) {
	var taken []netip.Addr
	for _, addr := range []netip.Addr{sess.IPAddr4, sess.IPAddr6} {
		if !addr.IsValid() {
			continue
		}
		var (
			holders []*peering.Session
			err     error
		)
		if addr.Is4() {
			holders, err = s.holders.FindByIPv4(ctx, addr)
		} else {
			holders, err = s.holders.FindByIPv6(ctx, addr)
		}
		if err != nil {
			return nil, err
		}
		for _, h := range holders {
			if h.ID != sess.ID && h.IsActive() {
				taken = append(taken, addr)
				break
			}
		}
	}
	return taken, nil
}
