package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/netip"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf/db"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/peering"
	apperrors "github.com/peeringdb/peeringdb-sub000/internal/shared/errors"
)

// sessionRepository implements peering.SessionRepository using db.Store
type sessionRepository struct {
	store db.Store
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(store db.Store) peering.SessionRepository {
	return &sessionRepository{store: store}
}

const sessionColumns = `id, network_id, ixlan_id, asn, ipaddr4, ipaddr6, speed, is_rs_peer, operational, status, notes, created, updated`

// Create inserts a session and assigns its id
func (r *sessionRepository) Create(ctx context.Context, s *peering.Session) error {
	err := r.store.QueryRow(ctx,
		`INSERT INTO sessions (network_id, ixlan_id, asn, ipaddr4, ipaddr6, speed, is_rs_peer, operational, status, notes, created, updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		s.NetworkID, s.IXLanID, s.ASN, nullAddr(s.IPAddr4), nullAddr(s.IPAddr6), nullInt(s.Speed),
		s.IsRSPeer, s.Operational, s.Status.String(), s.Notes, s.Created, s.Updated,
	).Scan(&s.ID)
	if err != nil {
		return translateSessionError(err, "failed to create session in database", s)
	}
	return nil
}

// Update writes every mutable column of a session
func (r *sessionRepository) Update(ctx context.Context, s *peering.Session) error {
	res, err := r.store.Exec(ctx,
		`UPDATE sessions SET network_id = ?, ixlan_id = ?, asn = ?, ipaddr4 = ?, ipaddr6 = ?, speed = ?,
		 is_rs_peer = ?, operational = ?, status = ?, notes = ?, updated = ? WHERE id = ?`,
		s.NetworkID, s.IXLanID, s.ASN, nullAddr(s.IPAddr4), nullAddr(s.IPAddr6), nullInt(s.Speed),
		s.IsRSPeer, s.Operational, s.Status.String(), s.Notes, s.Updated, s.ID)
	if err != nil {
		return translateSessionError(err, "failed to update session", s)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return peering.ErrSessionNotFound
	}
	return nil
}

// Get retrieves a session by id
func (r *sessionRepository) Get(ctx context.Context, id int64) (*peering.Session, error) {
	s, err := scanSession(r.store.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, peering.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// Delete removes a session row
func (r *sessionRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.store.Exec(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *sessionRepository) ListByIXLan(ctx context.Context, lanID int64) ([]*peering.Session, error) {
	return r.list(ctx, "failed to list sessions by ixlan",
		`SELECT `+sessionColumns+` FROM sessions WHERE ixlan_id = ? ORDER BY id`, lanID)
}

func (r *sessionRepository) FindByIPv4(ctx context.Context, addr netip.Addr) ([]*peering.Session, error) {
	return r.list(ctx, "failed to find sessions by ipv4",
		`SELECT `+sessionColumns+` FROM sessions WHERE ipaddr4 = ? ORDER BY id`, addr.String())
}

func (r *sessionRepository) FindByIPv6(ctx context.Context, addr netip.Addr) ([]*peering.Session, error) {
	return r.list(ctx, "failed to find sessions by ipv6",
		`SELECT `+sessionColumns+` FROM sessions WHERE ipaddr6 = ? ORDER BY id`, addr.String())
}

// FindOnLAN matches the identity tuple exactly, preferring active rows
func (r *sessionRepository) FindOnLAN(ctx context.Context, lanID, asn int64, ip4, ip6 netip.Addr) (*peering.Session, error) {
	s, err := scanSession(r.store.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE ixlan_id = ? AND asn = ? AND COALESCE(ipaddr4, '') = ? AND COALESCE(ipaddr6, '') = ?
		 ORDER BY CASE status WHEN 'ok' THEN 0 WHEN 'pending' THEN 1 ELSE 2 END, id LIMIT 1`,
		lanID, asn, emptyAddr(ip4), emptyAddr(ip6)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, peering.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to find session on ixlan: %w", err)
	}
	return s, nil
}

func (r *sessionRepository) CountActiveByNetworkAndExchange(ctx context.Context, networkID, exchangeID int64) (int64, error) {
	var n int64
	err := r.store.QueryRow(ctx,
		`SELECT COUNT(*) FROM sessions s JOIN ixlans l ON l.id = s.ixlan_id
		 WHERE s.network_id = ? AND l.exchange_id = ? AND s.status = 'ok'`,
		networkID, exchangeID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count active sessions: %w", err)
	}
	return n, nil
}

func (r *sessionRepository) list(ctx context.Context, msg, query string, args ...any) ([]*peering.Session, error) {
	rows, err := r.store.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", msg, err)
	}
	defer rows.Close()

	var sessions []*peering.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", msg, err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", msg, err)
	}
	return sessions, nil
}

func scanSession(row rowScanner) (*peering.Session, error) {
	var (
		s        peering.Session
		ip4, ip6 sql.NullString
		speed    sql.NullInt64
		status   string
	)
	err := row.Scan(&s.ID, &s.NetworkID, &s.IXLanID, &s.ASN, &ip4, &ip6, &speed,
		&s.IsRSPeer, &s.Operational, &status, &s.Notes, &s.Created, &s.Updated)
	if err != nil {
		return nil, err
	}
	if s.IPAddr4, err = parseNullAddr(ip4); err != nil {
		return nil, err
	}
	if s.IPAddr6, err = parseNullAddr(ip6); err != nil {
		return nil, err
	}
	s.Speed = intFromNull(speed)
	s.Status = peering.State(status)
	return &s, nil
}

// translateSessionError turns unique index violations on active addresses
// into a domain conflict error.
func translateSessionError(err error, msg string, s *peering.Session) error {
	if isUniqueViolation(err) {
		return apperrors.NewSessionError(apperrors.ErrCodeSessionIPConflict,
			"ip address is already held by another active session", false, err).
			WithMetadata("ipaddr4", peering.AddrString(s.IPAddr4)).
			WithMetadata("ipaddr6", peering.AddrString(s.IPAddr6))
	}
	return fmt.Errorf("%s: %w", msg, err)
}
