package staging

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf/addrspace"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/peering"
	apperrors "github.com/peeringdb/peeringdb-sub000/internal/shared/errors"
)

// PrefixSource loads the active prefixes of a LAN
type PrefixSource interface {
	PrefixSet(ctx context.Context, lanID int64) (*addrspace.Set, error)
}

// Resolver builds the Context of staging records. Networks and exchanges are
// cached for ttl; misses are never cached.
type Resolver struct {
	networks  peering.NetworkRepository
	exchanges peering.ExchangeRepository
	sessions  peering.Service
	prefixes  PrefixSource
	policy    Policy
	cache     *cache.Cache
}

// NewResolver creates a resolver. A ttl of zero disables caching.
func NewResolver(networks peering.NetworkRepository, exchanges peering.ExchangeRepository, sessions peering.Service,
	prefixes PrefixSource, policy Policy, ttl time.Duration) *Resolver {
	var c *cache.Cache
	if ttl > 0 {
		c = cache.New(ttl, 2*ttl)
	}
	return &Resolver{
		networks:  networks,
		exchanges: exchanges,
		sessions:  sessions,
		prefixes:  prefixes,
		policy:    policy,
		cache:     c,
	}
}

// Policy returns the import settings handed to every Context
func (r *Resolver) Policy() Policy {
	return r.policy
}

// Resolve looks up everything rec refers to
func (r *Resolver) Resolve(ctx context.Context, lan *peering.IXLan, rec *Record) (*Context, error) {
	exchange, err := r.exchange(ctx, lan.ExchangeID)
	if err != nil {
		return nil, err
	}

	network, err := r.network(ctx, rec.ASN)
	if err != nil && !errors.Is(err, peering.ErrNetworkNotFound) {
		return nil, err
	}

	prefixes, err := r.prefixes.PrefixSet(ctx, lan.ID)
	if err != nil {
		return nil, err
	}

	c := &Context{
		LAN:      lan,
		Exchange: exchange,
		Network:  network,
		Prefixes: prefixes,
		Policy:   r.policy,
	}

	session, err := r.sessions.FindOnLAN(ctx, lan.ID, rec.ASN, rec.IPAddr4, rec.IPAddr6)
	switch {
	case err == nil:
		c.Session = session
	case errors.Is(err, peering.ErrSessionNotFound):
		c.Session = standIn(lan, network, rec)
	default:
		return nil, apperrors.WrapWithDomain(err, apperrors.DomainStaging, apperrors.ErrCodeDatabase, "failed to look up session", true)
	}

	if network != nil {
		present, err := r.sessions.NetPresentAtExchange(ctx, network.ID, exchange.ID)
		if err != nil {
			return nil, apperrors.WrapWithDomain(err, apperrors.DomainStaging, apperrors.ErrCodeDatabase, "failed to check network presence", true)
		}
		c.NetPresentAtIX = present
	}
	return c, nil
}

// Forget drops every cached network and exchange
func (r *Resolver) Forget() {
	if r.cache != nil {
		r.cache.Flush()
	}
}

func (r *Resolver) network(ctx context.Context, asn int64) (*peering.Network, error) {
	key := "net:" + strconv.FormatInt(asn, 10)
	if r.cache != nil {
		if v, ok := r.cache.Get(key); ok {
			return v.(*peering.Network), nil
		}
	}
	n, err := r.networks.GetByASN(ctx, asn)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.SetDefault(key, n)
	}
	return n, nil
}

func (r *Resolver) exchange(ctx context.Context, id int64) (*peering.Exchange, error) {
	key := "ix:" + strconv.FormatInt(id, 10)
	if r.cache != nil {
		if v, ok := r.cache.Get(key); ok {
			return v.(*peering.Exchange), nil
		}
	}
	ix, err := r.exchanges.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.SetDefault(key, ix)
	}
	return ix, nil
}

// standIn is the unsaved session a record would create
func standIn(lan *peering.IXLan, network *peering.Network, rec *Record) *peering.Session {
	var networkID int64
	if network != nil {
		networkID = network.ID
	}
	s := peering.NewSession(lan.ID, networkID, rec.ASN)
	s.IPAddr4 = rec.IPAddr4
	s.IPAddr6 = rec.IPAddr6
	s.Speed = peering.IntPtr(rec.Speed)
	s.IsRSPeer = rec.IsRSPeer
	s.Operational = rec.Operational
	return s
}
