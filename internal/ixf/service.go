// Package ixf wires the IX-F member data import, staging, notification and
// rollback components into one service.
package ixf

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf/config"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/importer"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/importlog"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/staging"
	apperrors "github.com/peeringdb/peeringdb-sub000/internal/shared/errors"
	"github.com/peeringdb/peeringdb-sub000/internal/shared/events"
	applogger "github.com/peeringdb/peeringdb-sub000/internal/shared/logger"
)

// Service exposes the operator-facing operations
type Service struct {
	config      *config.Config
	components  *Components
	logger      *applogger.Logger
	unsubscribe []events.UnsubscribeFunc
	now         func() time.Time

	mu     sync.Mutex
	closed bool
}

// RemindReport summarizes a reminder pass
type RemindReport struct {
	LANs    int
	Checked int
	Sent    int
}

// NewService builds every component from cfg
func NewService(cfg *config.Config, logger *applogger.Logger) (*Service, error) {
	components, err := NewServiceFactory(cfg, logger).CreateComponents()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize service components: %w", err)
	}

	s := &Service{
		config:     cfg,
		components: components,
		logger:     logger.WithComponent("service"),
		now:        func() time.Time { return time.Now().UTC() },
	}
	if err := s.subscribeAudit(); err != nil {
		components.Close()
		return nil, err
	}
	return s, nil
}

// Components returns the wired components
func (s *Service) Components() *Components {
	return s.components
}

// subscribeAudit logs every workflow event at info level
func (s *Service) subscribeAudit() error {
	for _, eventType := range []string{events.ImportCompleted, events.RollbackCompleted, events.NotificationQueued} {
		unsub, err := s.components.EventBus.Subscribe(eventType, s.audit)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", eventType, err)
		}
		s.unsubscribe = append(s.unsubscribe, unsub)
	}
	return nil
}

func (s *Service) audit(ctx context.Context, event events.Event) error {
	args := []any{slog.String("event", event.Type()), slog.String("event_id", event.ID())}
	switch e := event.(type) {
	case *events.ImportCompletedEvent:
		args = append(args, slog.Int64("import_log_id", e.ImportLogID),
			slog.Int("applied", e.Applied), slog.Int("staged", e.Staged))
	case *events.RollbackCompletedEvent:
		args = append(args, slog.Int64("import_log_id", e.ImportLogID),
			slog.Int("reverted", e.Reverted), slog.Int("skipped", e.Skipped))
	case *events.NotificationQueuedEvent:
		args = append(args, slog.Int64("outbox_id", e.OutboxID), slog.String("kind", e.Kind))
	}
	s.logger.WithContext(ctx).Info("audit", args...)
	return nil
}

// Import reconciles an IX-F export with the sessions of a LAN
func (s *Service) Import(ctx context.Context, lanID int64, payload []byte) (*importer.ImportReport, error) {
	return s.components.Importer.Run(ctx, lanID, payload)
}

// Apply approves a staged proposal on behalf of user
func (s *Service) Apply(ctx context.Context, stagingID int64, user string) (*staging.ApplyResult, error) {
	ctx = applogger.WithUserID(applogger.WithOperation(ctx, "ixf_apply"), user)
	op := s.logger.StartOp(ctx, "Apply").Staging(stagingID)

	var result *staging.ApplyResult
	err := s.components.Store.ExecTx(ctx, func(ctx context.Context) error {
		m, err := s.components.Staging.Get(ctx, stagingID)
		if err != nil {
			return err
		}
		result, err = s.components.Applier.Apply(ctx, m, staging.ApplyOptions{User: user, Comment: "approved", Save: true})
		return err
	})
	if err != nil {
		op.Fail(err, "failed to apply proposal")
		return nil, err
	}

	if result.Session != nil {
		op.Session(result.Session.ID)
	}
	op.Complete("proposal applied", slog.String("action", string(result.Action)))
	return result, nil
}

// Dismiss marks a staged proposal as ignored
func (s *Service) Dismiss(ctx context.Context, stagingID int64, user string) error {
	ctx = applogger.WithUserID(applogger.WithOperation(ctx, "ixf_dismiss"), user)
	return s.components.Store.ExecTx(ctx, func(ctx context.Context) error {
		m, err := s.components.Staging.Get(ctx, stagingID)
		if err != nil {
			return err
		}
		return s.components.Applier.Approvable(m, user).Deny(ctx)
	})
}

// Rollback reverts the changes of an import log
func (s *Service) Rollback(ctx context.Context, logID int64, force bool, user string) (*importlog.RollbackResult, error) {
	ctx = applogger.WithUserID(applogger.WithOperation(ctx, "ixf_rollback"), user)
	return s.components.ImportLogs.Rollback(ctx, logID, importlog.RollbackOptions{User: user, Force: force})
}

// RemindAll sends due reminders for every unresolved proposal
func (s *Service) RemindAll(ctx context.Context) (*RemindReport, error) {
	ctx = applogger.WithOperation(ctx, "ixf_remind")
	op := s.logger.StartOp(ctx, "RemindAll")
	now := s.now()

	lans, err := s.components.LANs.List(ctx)
	if err != nil {
		wrapped := apperrors.WrapWithDomain(err, apperrors.DomainStaging, apperrors.ErrCodeDatabase, "failed to list ixlans", true)
		op.Fail(wrapped, "failed to list ixlans")
		return nil, wrapped
	}

	report := &RemindReport{}
	for _, lan := range lans {
		lanCtx := applogger.WithLANID(ctx, lan.ID)
		err := s.components.Store.ExecTx(lanCtx, func(ctx context.Context) error {
			members, err := s.components.Staging.ListByIXLan(ctx, lan)
			if err != nil {
				return err
			}
			for _, m := range members {
				report.Checked++
				sent, err := s.components.Router.Remind(ctx, m, now)
				if err != nil {
					return err
				}
				if sent {
					report.Sent++
				}
			}
			return nil
		})
		if err != nil {
			op.Fail(err, "reminder pass failed", slog.Int64("lan_id", lan.ID))
			return nil, err
		}
		report.LANs++
	}

	op.Complete("reminders sent", slog.Int("checked", report.Checked), slog.Int("sent", report.Sent))
	return report, nil
}

// Close unsubscribes the audit handlers and releases every component
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	for _, unsub := range s.unsubscribe {
		unsub()
	}
	return s.components.Close()
}
