package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/netip"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf/addrspace"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/db"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/peering"
)

// exchangeRepository implements peering.ExchangeRepository using db.Store
type exchangeRepository struct {
	store db.Store
}

// NewExchangeRepository creates a new exchange repository
func NewExchangeRepository(store db.Store) peering.ExchangeRepository {
	return &exchangeRepository{store: store}
}

func (r *exchangeRepository) Create(ctx context.Context, ix *peering.Exchange) error {
	err := r.store.QueryRow(ctx,
		`INSERT INTO exchanges (name, tech_email, policy_email) VALUES (?, ?, ?) RETURNING id`,
		ix.Name, ix.TechEmail, ix.PolicyEmail,
	).Scan(&ix.ID)
	if err != nil {
		return fmt.Errorf("failed to create exchange in database: %w", err)
	}
	return nil
}

func (r *exchangeRepository) Get(ctx context.Context, id int64) (*peering.Exchange, error) {
	var ix peering.Exchange
	err := r.store.QueryRow(ctx,
		`SELECT id, name, tech_email, policy_email FROM exchanges WHERE id = ?`, id,
	).Scan(&ix.ID, &ix.Name, &ix.TechEmail, &ix.PolicyEmail)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, peering.ErrExchangeNotFound
		}
		return nil, fmt.Errorf("failed to get exchange: %w", err)
	}
	return &ix, nil
}

// ixlanRepository implements peering.IXLanRepository using db.Store
type ixlanRepository struct {
	store db.Store
}

// NewIXLanRepository creates a new LAN repository
func NewIXLanRepository(store db.Store) peering.IXLanRepository {
	return &ixlanRepository{store: store}
}

func (r *ixlanRepository) Create(ctx context.Context, lan *peering.IXLan) error {
	err := r.store.QueryRow(ctx,
		`INSERT INTO ixlans (exchange_id, name, ixf_ixp_id) VALUES (?, ?, ?) RETURNING id`,
		lan.ExchangeID, lan.Name, nullInt64(lan.IXFIXPID),
	).Scan(&lan.ID)
	if err != nil {
		return fmt.Errorf("failed to create ixlan in database: %w", err)
	}
	return nil
}

func (r *ixlanRepository) Get(ctx context.Context, id int64) (*peering.IXLan, error) {
	lan, err := scanIXLan(r.store.QueryRow(ctx,
		`SELECT id, exchange_id, name, ixf_ixp_id FROM ixlans WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, peering.ErrLANNotFound
		}
		return nil, fmt.Errorf("failed to get ixlan: %w", err)
	}
	return lan, nil
}

func (r *ixlanRepository) List(ctx context.Context) ([]*peering.IXLan, error) {
	rows, err := r.store.Query(ctx, `SELECT id, exchange_id, name, ixf_ixp_id FROM ixlans ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list ixlans: %w", err)
	}
	defer rows.Close()

	var lans []*peering.IXLan
	for rows.Next() {
		lan, err := scanIXLan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ixlan: %w", err)
		}
		lans = append(lans, lan)
	}
	return lans, rows.Err()
}

func scanIXLan(row rowScanner) (*peering.IXLan, error) {
	var lan peering.IXLan
	var ixpID sql.NullInt64
	if err := row.Scan(&lan.ID, &lan.ExchangeID, &lan.Name, &ixpID); err != nil {
		return nil, err
	}
	lan.IXFIXPID = int64FromNull(ixpID)
	return &lan, nil
}

// prefixRepository implements peering.PrefixRepository using db.Store
type prefixRepository struct {
	store db.Store
}

// NewPrefixRepository creates a new prefix repository
func NewPrefixRepository(store db.Store) peering.PrefixRepository {
	return &prefixRepository{store: store}
}

// Create inserts a prefix after checking it is a usable exchange network
func (r *prefixRepository) Create(ctx context.Context, p *peering.Prefix) error {
	if err := addrspace.NetworkIsPDBValid(p.Prefix); err != nil {
		return err
	}
	p.Prefix = p.Prefix.Masked()
	p.Protocol = addrspace.ProtocolOfPrefix(p.Prefix)
	if p.Status == "" {
		p.Status = peering.StateActive
	}

	err := r.store.QueryRow(ctx,
		`INSERT INTO prefixes (ixlan_id, prefix, protocol, status) VALUES (?, ?, ?, ?) RETURNING id`,
		p.IXLanID, p.Prefix.String(), string(p.Protocol), p.Status.String(),
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to create prefix in database: %w", err)
	}
	return nil
}

// ListByIXLan lists prefixes of a LAN in any state
func (r *prefixRepository) ListByIXLan(ctx context.Context, lanID int64) ([]*peering.Prefix, error) {
	rows, err := r.store.Query(ctx,
		`SELECT id, ixlan_id, prefix, protocol, status FROM prefixes WHERE ixlan_id = ? ORDER BY id`, lanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list prefixes: %w", err)
	}
	defer rows.Close()

	var prefixes []*peering.Prefix
	for rows.Next() {
		var p peering.Prefix
		var prefix, protocol, status string
		if err := rows.Scan(&p.ID, &p.IXLanID, &prefix, &protocol, &status); err != nil {
			return nil, fmt.Errorf("failed to scan prefix: %w", err)
		}
		if p.Prefix, err = netip.ParsePrefix(prefix); err != nil {
			return nil, fmt.Errorf("failed to parse stored prefix %q: %w", prefix, err)
		}
		p.Protocol = addrspace.Protocol(protocol)
		p.Status = peering.State(status)
		prefixes = append(prefixes, &p)
	}
	return prefixes, rows.Err()
}
