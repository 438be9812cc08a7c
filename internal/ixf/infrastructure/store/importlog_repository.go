package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf/db"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/importlog"
)

// importLogRepository implements importlog.Repository using db.Store
type importLogRepository struct {
	store db.Store
}

// NewImportLogRepository creates a new import log repository
func NewImportLogRepository(store db.Store) importlog.Repository {
	return &importLogRepository{store: store}
}

func (r *importLogRepository) Create(ctx context.Context, l *importlog.Log) error {
	err := r.store.QueryRow(ctx,
		`INSERT INTO import_logs (ixlan_id, run_id, created) VALUES (?, ?, ?) RETURNING id`,
		l.IXLanID, l.RunID, l.Created,
	).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("failed to create import log in database: %w", err)
	}
	return nil
}

func (r *importLogRepository) AddEntry(ctx context.Context, e *importlog.Entry) error {
	err := r.store.QueryRow(ctx,
		`INSERT INTO import_log_entries (log_id, session_id, version_before, version_after, action, reason, created)
		 VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		e.LogID, e.SessionID, versionRef(e.VersionBefore), versionRef(e.VersionAfter), e.Action, e.Reason, e.Created,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to create import log entry: %w", err)
	}
	return nil
}

func (r *importLogRepository) Get(ctx context.Context, id int64) (*importlog.Log, error) {
	var l importlog.Log
	err := r.store.QueryRow(ctx,
		`SELECT id, ixlan_id, run_id, created FROM import_logs WHERE id = ?`, id,
	).Scan(&l.ID, &l.IXLanID, &l.RunID, &l.Created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, importlog.ErrLogNotFound
		}
		return nil, fmt.Errorf("failed to get import log: %w", err)
	}

	rows, err := r.store.Query(ctx,
		`SELECT id, log_id, session_id, version_before, version_after, action, reason, created
		 FROM import_log_entries WHERE log_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list import log entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e             importlog.Entry
			before, after sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.LogID, &e.SessionID, &before, &after, &e.Action, &e.Reason, &e.Created); err != nil {
			return nil, fmt.Errorf("failed to scan import log entry: %w", err)
		}
		e.VersionBefore = before.Int64
		e.VersionAfter = after.Int64
		l.Entries = append(l.Entries, &e)
	}
	return &l, rows.Err()
}

func (r *importLogRepository) ListByIXLan(ctx context.Context, lanID int64) ([]*importlog.Log, error) {
	rows, err := r.store.Query(ctx,
		`SELECT id, ixlan_id, run_id, created FROM import_logs WHERE ixlan_id = ? ORDER BY id`, lanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list import logs: %w", err)
	}
	defer rows.Close()

	var logs []*importlog.Log
	for rows.Next() {
		var l importlog.Log
		if err := rows.Scan(&l.ID, &l.IXLanID, &l.RunID, &l.Created); err != nil {
			return nil, fmt.Errorf("failed to scan import log: %w", err)
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

// versionRef stores a missing version as NULL
func versionRef(id int64) sql.NullInt64 {
	if id == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: id, Valid: true}
}
