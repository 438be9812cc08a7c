package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf/db"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/staging"
)

// stagingRepository implements staging.Repository using db.Store
type stagingRepository struct {
	store db.Store
	now   func() time.Time
}

// NewStagingRepository creates a new staging record repository
func NewStagingRepository(store db.Store) staging.Repository {
	return &stagingRepository{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

const stagingColumns = `id, ixlan_id, asn, ipaddr4, ipaddr6, speed, operational, is_rs_peer, data, log, dismissed,
	error, reason, fetched, reminder_count, reminded_at, created, updated`

func (r *stagingRepository) Create(ctx context.Context, rec *staging.Record) error {
	now := r.now()
	if rec.Created.IsZero() {
		rec.Created = now
	}
	rec.Updated = now
	if rec.Fetched.IsZero() {
		rec.Fetched = now
	}

	err := r.store.QueryRow(ctx,
		`INSERT INTO ixf_member_data (ixlan_id, asn, ipaddr4, ipaddr6, speed, operational, is_rs_peer, data, log,
		 dismissed, error, reason, fetched, reminder_count, reminded_at, created, updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		rec.IXLanID, rec.ASN, emptyAddr(rec.IPAddr4), emptyAddr(rec.IPAddr6), rec.Speed, rec.Operational, rec.IsRSPeer,
		rec.Data, rec.Log, rec.Dismissed, nullableError(rec.Error), rec.Reason, rec.Fetched,
		rec.ReminderCount, nullTime(rec.RemindedAt), rec.Created, rec.Updated,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to create staging record in database: %w", err)
	}
	return nil
}

func (r *stagingRepository) Update(ctx context.Context, rec *staging.Record) error {
	rec.Updated = r.now()
	res, err := r.store.Exec(ctx,
		`UPDATE ixf_member_data SET speed = ?, operational = ?, is_rs_peer = ?, data = ?, log = ?, dismissed = ?,
		 error = ?, reason = ?, fetched = ?, reminder_count = ?, reminded_at = ?, updated = ? WHERE id = ?`,
		rec.Speed, rec.Operational, rec.IsRSPeer, rec.Data, rec.Log, rec.Dismissed,
		nullableError(rec.Error), rec.Reason, rec.Fetched, rec.ReminderCount, nullTime(rec.RemindedAt), rec.Updated, rec.ID)
	if err != nil {
		return fmt.Errorf("failed to update staging record: %w", err)
	}
	return expectRow(res, staging.ErrRecordNotFound)
}

// UpdateFetched writes fetched only. updated keeps the time of the last real change.
func (r *stagingRepository) UpdateFetched(ctx context.Context, id int64, fetched time.Time) error {
	res, err := r.store.Exec(ctx, `UPDATE ixf_member_data SET fetched = ? WHERE id = ?`, fetched, id)
	if err != nil {
		return fmt.Errorf("failed to update staging fetched time: %w", err)
	}
	return expectRow(res, staging.ErrRecordNotFound)
}

func (r *stagingRepository) UpdateBookkeeping(ctx context.Context, rec *staging.Record) error {
	res, err := r.store.Exec(ctx,
		`UPDATE ixf_member_data SET log = ?, reminder_count = ?, reminded_at = ? WHERE id = ?`,
		rec.Log, rec.ReminderCount, nullTime(rec.RemindedAt), rec.ID)
	if err != nil {
		return fmt.Errorf("failed to update staging log: %w", err)
	}
	return expectRow(res, staging.ErrRecordNotFound)
}

func (r *stagingRepository) Get(ctx context.Context, id int64) (*staging.Record, error) {
	rec, err := scanRecord(r.store.QueryRow(ctx, `SELECT `+stagingColumns+` FROM ixf_member_data WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, staging.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get staging record: %w", err)
	}
	return rec, nil
}

func (r *stagingRepository) Find(ctx context.Context, lanID, asn int64, ip4, ip6 netip.Addr) (*staging.Record, error) {
	rec, err := scanRecord(r.store.QueryRow(ctx,
		`SELECT `+stagingColumns+` FROM ixf_member_data WHERE ixlan_id = ? AND asn = ? AND ipaddr4 = ? AND ipaddr6 = ?`,
		lanID, asn, emptyAddr(ip4), emptyAddr(ip6)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, staging.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to find staging record: %w", err)
	}
	return rec, nil
}

func (r *stagingRepository) ListByIXLan(ctx context.Context, lanID int64) ([]*staging.Record, error) {
	rows, err := r.store.Query(ctx, `SELECT `+stagingColumns+` FROM ixf_member_data WHERE ixlan_id = ? ORDER BY id`, lanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list staging records: %w", err)
	}
	defer rows.Close()

	var recs []*staging.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan staging record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (r *stagingRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.store.Exec(ctx, `DELETE FROM ixf_member_data WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete staging record: %w", err)
	}
	return nil
}

func scanRecord(row rowScanner) (*staging.Record, error) {
	var (
		rec        staging.Record
		ip4, ip6   string
		errMsg     sql.NullString
		remindedAt sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.IXLanID, &rec.ASN, &ip4, &ip6, &rec.Speed, &rec.Operational, &rec.IsRSPeer,
		&rec.Data, &rec.Log, &rec.Dismissed, &errMsg, &rec.Reason, &rec.Fetched, &rec.ReminderCount, &remindedAt,
		&rec.Created, &rec.Updated)
	if err != nil {
		return nil, err
	}
	if rec.IPAddr4, err = parseEmptyAddr(ip4); err != nil {
		return nil, err
	}
	if rec.IPAddr6, err = parseEmptyAddr(ip6); err != nil {
		return nil, err
	}
	rec.Error = errMsg.String
	rec.RemindedAt = timeFromNull(remindedAt)
	return &rec, nil
}

func nullableError(msg string) sql.NullString {
	if msg == "" {
		return sql.NullString{}
	}
	return nullString(&msg)
}

func expectRow(res sql.Result, notFound error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
