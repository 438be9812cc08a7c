package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf/db"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/notify"
)

// outboxRepository implements notify.OutboxRepository using db.Store
type outboxRepository struct {
	store db.Store
}

// NewOutboxRepository creates a new notification outbox repository
func NewOutboxRepository(store db.Store) notify.OutboxRepository {
	return &outboxRepository{store: store}
}

func (r *outboxRepository) Create(ctx context.Context, m *notify.OutboxMessage) error {
	err := r.store.QueryRow(ctx,
		`INSERT INTO notification_outbox (kind, subject, body, recipients, requester, created)
		 VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
		string(m.Kind), m.Subject, m.Body, strings.Join(m.Recipients, ","), m.Requester, m.Created,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("failed to queue notification in database: %w", err)
	}
	return nil
}

// List returns queued messages oldest first. A limit <= 0 returns all.
func (r *outboxRepository) List(ctx context.Context, limit int) ([]*notify.OutboxMessage, error) {
	query := `SELECT id, kind, subject, body, recipients, requester, created FROM notification_outbox ORDER BY id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.store.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list outbox: %w", err)
	}
	defer rows.Close()

	var messages []*notify.OutboxMessage
	for rows.Next() {
		var (
			m          notify.OutboxMessage
			kind, rcpt string
		)
		if err := rows.Scan(&m.ID, &kind, &m.Subject, &m.Body, &rcpt, &m.Requester, &m.Created); err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}
		m.Kind = notify.OutboxKind(kind)
		if rcpt != "" {
			m.Recipients = strings.Split(rcpt, ",")
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}
