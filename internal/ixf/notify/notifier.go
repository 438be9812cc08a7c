// Package notify renders and delivers the notifications of the IX-F import
// workflow to the admin committee, exchanges and networks.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	applogger "github.com/peeringdb/peeringdb-sub000/internal/shared/logger"
)

// Config holds notification settings
type Config struct {
	Debug         bool    `mapstructure:"debug"`
	AdminEmail    string  `mapstructure:"admin_email"`
	From          string  `mapstructure:"from"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
}

// DefaultConfig returns default notification settings
func DefaultConfig() Config {
	return Config{
		Debug:         true,
		From:          "ixfsync@localhost",
		RatePerSecond: 10,
		Burst:         5,
	}
}

// Notifier fans a message out to recipients through a Sink
type Notifier struct {
	sink     Sink
	renderer *Renderer
	config   Config
	logger   *applogger.Logger
	now      func() time.Time
}

// NewNotifier creates a notifier
func NewNotifier(sink Sink, config Config, logger *applogger.Logger) (*Notifier, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}
	return &Notifier{
		sink:     sink,
		renderer: renderer,
		config:   config,
		logger:   logger.WithComponent("notify"),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Notify delivers m to each recipient and returns one log line per
// recipient, newest last. Failures never abort the fan-out.
func (n *Notifier) Notify(ctx context.Context, m Message, recipients []Recipient) []string {
	lines := make([]string, 0, len(recipients))
	for _, to := range recipients {
		lines = append(lines, n.notifyOne(ctx, m, to))
	}
	return lines
}

func (n *Notifier) notifyOne(ctx context.Context, m Message, to Recipient) string {
	log := n.logger.WithContext(ctx).With(slog.String("recipient", string(to)), slog.String("kind", string(m.Kind)))
	ts := n.now().Format(time.RFC3339)

	contacts := n.contactsFor(m, to)
	if len(contacts) == 0 {
		log.Info("no suitable contacts found")
		return fmt.Sprintf("[%s] no suitable contacts found for %s", ts, to)
	}

	subject, body, err := n.renderer.Render(m, to)
	if err != nil {
		n.logger.ErrorCtx(ctx, "failed to render notification", err, slog.String("recipient", string(to)))
		return fmt.Sprintf("[%s] failed to notify %s: %s", ts, to, err)
	}

	if to == RecipientAdmin {
		requester := applogger.GetUserID(ctx)
		if requester == "" {
			requester = n.config.From
		}
		err = n.sink.Ticket(ctx, subject, body, requester)
	} else {
		err = n.sink.Email(ctx, subject, body, contacts)
	}
	if err != nil {
		n.logger.ErrorCtx(ctx, "failed to deliver notification", err, slog.String("recipient", string(to)))
		return fmt.Sprintf("[%s] failed to notify %s (%s) about %s: %s", ts, to, strings.Join(contacts, ", "), subject, err)
	}

	log.Info("notification sent", slog.String("subject", subject))
	return fmt.Sprintf("[%s] notified %s (%s) about %s", ts, to, strings.Join(contacts, ", "), subject)
}

func (n *Notifier) contactsFor(m Message, to Recipient) []string {
	switch to {
	case RecipientAdmin:
		if n.config.AdminEmail == "" {
			return nil
		}
		return []string{n.config.AdminEmail}
	case RecipientExchange:
		return ExchangeContacts(m.Exchange)
	case RecipientNetwork:
		return NetworkContacts(m.Network)
	}
	return nil
}
