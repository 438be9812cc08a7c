package peering

import (
	"context"
	"net/netip"
)

// Service defines the persistence workflow of sessions. Save keeps the asn in
// sync with the owning network and records a snapshot version.
type Service interface {
	Get(ctx context.Context, id int64) (*Session, error)
	Save(ctx context.Context, s *Session) error
	SoftDelete(ctx context.Context, s *Session) error
	HardDelete(ctx context.Context, s *Session) error
	ListByIXLan(ctx context.Context, lanID int64) ([]*Session, error)
	FindOnLAN(ctx context.Context, lanID, asn int64, ip4, ip6 netip.Addr) (*Session, error)
	NetPresentAtExchange(ctx context.Context, networkID, exchangeID int64) (bool, error)
}

// VersionRecorder stores a snapshot of a session after every save
type VersionRecorder interface {
	Record(ctx context.Context, s *Session) (int64, error)
}

// Transactor runs fn in one transaction. Calls made with the context passed
// to fn join it.
type Transactor interface {
	ExecTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// NetworkRepository defines data access for networks and their contacts
type NetworkRepository interface {
	Create(ctx context.Context, n *Network) error
	Update(ctx context.Context, n *Network) error
	Get(ctx context.Context, id int64) (*Network, error)
	GetByASN(ctx context.Context, asn int64) (*Network, error)
	AddContact(ctx context.Context, c *Contact) error
}

// ExchangeRepository defines data access for exchanges
type ExchangeRepository interface {
	Create(ctx context.Context, ix *Exchange) error
	Get(ctx context.Context, id int64) (*Exchange, error)
}

// IXLanRepository defines data access for exchange LANs
type IXLanRepository interface {
	Create(ctx context.Context, lan *IXLan) error
	Get(ctx context.Context, id int64) (*IXLan, error)
	List(ctx context.Context) ([]*IXLan, error)
}

// PrefixRepository defines data access for LAN prefixes
type PrefixRepository interface {
	Create(ctx context.Context, p *Prefix) error
	ListByIXLan(ctx context.Context, lanID int64) ([]*Prefix, error)
}

// SessionRepository defines data access for sessions
type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	Update(ctx context.Context, s *Session) error
	Get(ctx context.Context, id int64) (*Session, error)
	Delete(ctx context.Context, id int64) error

	ListByIXLan(ctx context.Context, lanID int64) ([]*Session, error)
	// FindByIPv4 returns every session holding addr on any LAN in any state
	FindByIPv4(ctx context.Context, addr netip.Addr) ([]*Session, error)
	FindByIPv6(ctx context.Context, addr netip.Addr) ([]*Session, error)
	// FindOnLAN matches asn and both addresses exactly, unset matching unset
	FindOnLAN(ctx context.Context, lanID, asn int64, ip4, ip6 netip.Addr) (*Session, error)
	CountActiveByNetworkAndExchange(ctx context.Context, networkID, exchangeID int64) (int64, error)
}

// Approvable is implemented by pending proposals an operator can accept or reject
type Approvable interface {
	Approve(ctx context.Context) error
	Deny(ctx context.Context) error
}
