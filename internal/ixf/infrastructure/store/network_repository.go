package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf/db"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/peering"
)

// networkRepository implements peering.NetworkRepository using db.Store
type networkRepository struct {
	store db.Store
}

// NewNetworkRepository creates a new network repository
func NewNetworkRepository(store db.Store) peering.NetworkRepository {
	return &networkRepository{store: store}
}

const networkColumns = `id, asn, name, allow_ixp_update, created, updated`

// Create inserts a network and its contacts
func (r *networkRepository) Create(ctx context.Context, n *peering.Network) error {
	now := time.Now().UTC()
	if n.Created.IsZero() {
		n.Created = now
	}
	n.Updated = now

	err := r.store.QueryRow(ctx,
		`INSERT INTO networks (asn, name, allow_ixp_update, created, updated) VALUES (?, ?, ?, ?, ?) RETURNING id`,
		n.ASN, n.Name, n.AllowIXPUpdate, n.Created, n.Updated,
	).Scan(&n.ID)
	if err != nil {
		return fmt.Errorf("failed to create network in database: %w", err)
	}

	for i := range n.Contacts {
		n.Contacts[i].NetworkID = n.ID
		if err := r.AddContact(ctx, &n.Contacts[i]); err != nil {
			return err
		}
	}
	return nil
}

// Update writes name and allow_ixp_update
func (r *networkRepository) Update(ctx context.Context, n *peering.Network) error {
	n.Updated = time.Now().UTC()
	res, err := r.store.Exec(ctx,
		`UPDATE networks SET name = ?, allow_ixp_update = ?, updated = ? WHERE id = ?`,
		n.Name, n.AllowIXPUpdate, n.Updated, n.ID)
	if err != nil {
		return fmt.Errorf("failed to update network: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return peering.ErrNetworkNotFound
	}
	return nil
}

// Get retrieves a network with its contacts by id
func (r *networkRepository) Get(ctx context.Context, id int64) (*peering.Network, error) {
	n, err := scanNetwork(r.store.QueryRow(ctx, `SELECT `+networkColumns+` FROM networks WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, peering.ErrNetworkNotFound
		}
		return nil, fmt.Errorf("failed to get network: %w", err)
	}
	return n, r.loadContacts(ctx, n)
}

// GetByASN retrieves a network with its contacts by asn
func (r *networkRepository) GetByASN(ctx context.Context, asn int64) (*peering.Network, error) {
	n, err := scanNetwork(r.store.QueryRow(ctx, `SELECT `+networkColumns+` FROM networks WHERE asn = ?`, asn))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, peering.ErrNetworkNotFound
		}
		return nil, fmt.Errorf("failed to get network by asn: %w", err)
	}
	return n, r.loadContacts(ctx, n)
}

// AddContact inserts a contact of a network
func (r *networkRepository) AddContact(ctx context.Context, c *peering.Contact) error {
	err := r.store.QueryRow(ctx,
		`INSERT INTO network_contacts (network_id, role, name, email) VALUES (?, ?, ?, ?) RETURNING id`,
		c.NetworkID, string(c.Role), c.Name, c.Email,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to create network contact: %w", err)
	}
	return nil
}

func (r *networkRepository) loadContacts(ctx context.Context, n *peering.Network) error {
	rows, err := r.store.Query(ctx,
		`SELECT id, network_id, role, name, email FROM network_contacts WHERE network_id = ? ORDER BY id`, n.ID)
	if err != nil {
		return fmt.Errorf("failed to list network contacts: %w", err)
	}
	defer rows.Close()

	n.Contacts = nil
	for rows.Next() {
		var c peering.Contact
		var role string
		if err := rows.Scan(&c.ID, &c.NetworkID, &role, &c.Name, &c.Email); err != nil {
			return fmt.Errorf("failed to scan network contact: %w", err)
		}
		c.Role = peering.ContactRole(role)
		n.Contacts = append(n.Contacts, c)
	}
	return rows.Err()
}

func scanNetwork(row rowScanner) (*peering.Network, error) {
	var n peering.Network
	if err := row.Scan(&n.ID, &n.ASN, &n.Name, &n.AllowIXPUpdate, &n.Created, &n.Updated); err != nil {
		return nil, err
	}
	return &n, nil
}
