package notify

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/peeringdb/peeringdb-sub000/internal/shared/errors"
	"github.com/peeringdb/peeringdb-sub000/internal/shared/events"
	applogger "github.com/peeringdb/peeringdb-sub000/internal/shared/logger"
)

// Sink delivers rendered notifications
type Sink interface {
	// Ticket opens a ticket in the admin committee queue
	Ticket(ctx context.Context, subject, body, requester string) error
	// Email sends a message to the given addresses
	Email(ctx context.Context, subject, body string, recipients []string) error
}

// OutboxKind is the kind of a queued notification
type OutboxKind string

const (
	OutboxTicket OutboxKind = "ticket"
	OutboxEmail  OutboxKind = "email"
)

// OutboxMessage is a ticket or email waiting for delivery by an external mailer
type OutboxMessage struct {
	ID         int64
	Kind       OutboxKind
	Subject    string
	Body       string
	Recipients []string
	Requester  string
	Created    time.Time
}

// OutboxRepository stores queued notifications
type OutboxRepository interface {
	Create(ctx context.Context, m *OutboxMessage) error
	List(ctx context.Context, limit int) ([]*OutboxMessage, error)
}

// LiveSink writes notifications to the outbox and announces them on the event bus
type LiveSink struct {
	outbox  OutboxRepository
	bus     events.EventBus
	limiter *rate.Limiter
	logger  *applogger.Logger
	now     func() time.Time
}

// NewLiveSink creates a sink throttled to perSecond messages with the given
// burst. perSecond <= 0 disables throttling. bus may be nil.
func NewLiveSink(outbox OutboxRepository, bus events.EventBus, perSecond float64, burst int, logger *applogger.Logger) *LiveSink {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &LiveSink{
		outbox:  outbox,
		bus:     bus,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.WithComponent("notify.live"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Ticket queues an admin ticket
func (s *LiveSink) Ticket(ctx context.Context, subject, body, requester string) error {
	return s.queue(ctx, &OutboxMessage{
		Kind:      OutboxTicket,
		Subject:   subject,
		Body:      body,
		Requester: requester,
	})
}

// Email queues an email
func (s *LiveSink) Email(ctx context.Context, subject, body string, recipients []string) error {
	return s.queue(ctx, &OutboxMessage{
		Kind:       OutboxEmail,
		Subject:    subject,
		Body:       body,
		Recipients: recipients,
	})
}

func (s *LiveSink) queue(ctx context.Context, m *OutboxMessage) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return apperrors.NewNotificationError(apperrors.ErrCodeDelivery, "notification throttled", true, err)
	}

	m.Created = s.now()
	if err := s.outbox.Create(ctx, m); err != nil {
		return apperrors.NewNotificationError(apperrors.ErrCodeDelivery, "failed to queue notification", true, err).
			WithMetadata("kind", string(m.Kind))
	}

	if s.bus != nil {
		event := events.NewNotificationQueuedEvent(m.ID, string(m.Kind), m.Subject, m.Recipients)
		if err := s.bus.Publish(ctx, event); err != nil {
			// the message is queued, a failed announcement is not a delivery failure
			s.logger.WarnCtx(ctx, "failed to publish notification event", err, slog.Int64("outbox_id", m.ID))
		}
	}

	s.logger.WithContext(ctx).Debug("notification queued",
		slog.Int64("outbox_id", m.ID),
		slog.String("kind", string(m.Kind)),
		slog.String("subject", m.Subject))
	return nil
}

// DebugSink only logs what would have been sent
type DebugSink struct {
	logger *applogger.Logger
}

// NewDebugSink creates a logging-only sink
func NewDebugSink(logger *applogger.Logger) *DebugSink {
	return &DebugSink{logger: logger.WithComponent("notify.debug")}
}

func (s *DebugSink) Ticket(ctx context.Context, subject, body, requester string) error {
	s.logger.WithContext(ctx).Info("ticket",
		slog.String("subject", subject),
		slog.String("requester", requester),
		slog.String("body", body))
	return nil
}

func (s *DebugSink) Email(ctx context.Context, subject, body string, recipients []string) error {
	s.logger.WithContext(ctx).Info("email",
		slog.String("subject", subject),
		slog.String("to", strings.Join(recipients, ",")),
		slog.String("body", body))
	return nil
}
