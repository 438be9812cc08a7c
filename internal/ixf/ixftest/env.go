// Package ixftest wires the reconciliation components against a migrated
// in-memory database for tests.
package ixftest

import (
	"context"
	"database/sql"
	"fmt"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf/db"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/history"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/importlog"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/infrastructure/store"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/notify"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/peering"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/staging"
	applogger "github.com/peeringdb/peeringdb-sub000/internal/shared/logger"
)

// Default prefixes of the LAN created by New
const (
	PrefixV4 = "195.69.144.0/22"
	PrefixV6 = "2001:7f8:1::/64"
)

// Env holds every component built on one test database
type Env struct {
	DB    *sql.DB
	Store *db.SQLStore

	Networks    peering.NetworkRepository
	Exchanges   peering.ExchangeRepository
	LANs        peering.IXLanRepository
	Prefixes    peering.PrefixRepository
	SessionRepo peering.SessionRepository
	StagingRepo staging.Repository
	LogRepo     importlog.Repository

	History    *history.Store
	Sessions   peering.Service
	Reconciler *peering.Reconciler
	Notifier   *Notifier
	Resolver   *staging.Resolver
	Staging    *staging.Service
	Router     *staging.Router
	Applier    *staging.Applier
	ImportLogs *importlog.Service

	Exchange *peering.Exchange
	LAN      *peering.IXLan
}

// Option adjusts the environment before components are built
type Option func(*options)

type options struct {
	policy   staging.Policy
	cacheTTL time.Duration
}

// WithPolicy replaces the default import policy
func WithPolicy(p staging.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithCacheTTL caches resolved networks and exchanges for ttl
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *options) { o.cacheTTL = ttl }
}

// New builds an environment with one exchange and one LAN carrying PrefixV4 and PrefixV6
func New(t testing.TB, opts ...Option) *Env {
	t.Helper()

	o := options{policy: staging.DefaultPolicy()}
	for _, opt := range opts {
		opt(&o)
	}

	sqlDB, sqlStore := db.NewTestDB(t)
	versions, err := history.Open(t.TempDir(), applogger.NewNop())
	if err != nil {
		t.Fatalf("failed to open history store: %v", err)
	}
	t.Cleanup(func() { versions.Close() })

	log := applogger.NewNop()
	e := &Env{
		DB:          sqlDB,
		Store:       sqlStore,
		Networks:    store.NewNetworkRepository(sqlStore),
		Exchanges:   store.NewExchangeRepository(sqlStore),
		LANs:        store.NewIXLanRepository(sqlStore),
		Prefixes:    store.NewPrefixRepository(sqlStore),
		SessionRepo: store.NewSessionRepository(sqlStore),
		StagingRepo: store.NewStagingRepository(sqlStore),
		LogRepo:     store.NewImportLogRepository(sqlStore),
		History:     versions,
		Notifier:    &Notifier{},
	}
	e.Sessions = peering.NewService(e.SessionRepo, e.Networks, versions, log)
	e.Reconciler = peering.NewReconciler(e.Sessions, e.SessionRepo, e.Prefixes, sqlStore, log)
	e.Resolver = staging.NewResolver(e.Networks, e.Exchanges, e.Sessions, e.Reconciler, o.policy, o.cacheTTL)
	e.Staging = staging.NewService(e.StagingRepo, e.LANs, e.Resolver, log)
	e.Router = staging.NewRouter(e.StagingRepo, e.Notifier, log)
	e.Applier = staging.NewApplier(e.Reconciler, e.Sessions, versions, e.Router, log)
	e.ImportLogs = importlog.NewService(e.LogRepo, e.Sessions, e.SessionRepo, versions, sqlStore, nil, log)

	e.Exchange = e.AddExchange(t, "AMS-IX")
	e.LAN = e.AddLAN(t, e.Exchange, PrefixV4, PrefixV6)
	return e
}

// AddExchange creates an exchange with tech and policy contacts
func (e *Env) AddExchange(t testing.TB, name string) *peering.Exchange {
	t.Helper()
	ix := &peering.Exchange{Name: name, TechEmail: "noc@" + name + ".example", PolicyEmail: "policy@" + name + ".example"}
	if err := e.Exchanges.Create(context.Background(), ix); err != nil {
		t.Fatalf("failed to create exchange: %v", err)
	}
	return ix
}

// AddLAN creates a LAN of ix with active prefixes
func (e *Env) AddLAN(t testing.TB, ix *peering.Exchange, prefixes ...string) *peering.IXLan {
	t.Helper()
	ctx := context.Background()
	lan := &peering.IXLan{ExchangeID: ix.ID, Name: ix.Name + " LAN"}
	if err := e.LANs.Create(ctx, lan); err != nil {
		t.Fatalf("failed to create ixlan: %v", err)
	}
	for _, p := range prefixes {
		prefix := &peering.Prefix{IXLanID: lan.ID, Prefix: netip.MustParsePrefix(p)}
		if err := e.Prefixes.Create(ctx, prefix); err != nil {
			t.Fatalf("failed to create prefix %s: %v", p, err)
		}
	}
	return lan
}

// AddNetwork creates a network with a policy contact
func (e *Env) AddNetwork(t testing.TB, asn int64, allowIXPUpdate bool) *peering.Network {
	t.Helper()
	n := &peering.Network{
		ASN:            asn,
		Name:           fmt.Sprintf("AS%d", asn),
		AllowIXPUpdate: allowIXPUpdate,
		Contacts: []peering.Contact{
			{Role: peering.RolePolicy, Name: "peering", Email: fmt.Sprintf("peering@as%d.example", asn)},
		},
	}
	if err := e.Networks.Create(context.Background(), n); err != nil {
		t.Fatalf("failed to create network: %v", err)
	}
	return n
}

// AddSession saves an active session of n on lan. Empty addresses stay unset.
func (e *Env) AddSession(t testing.TB, n *peering.Network, lan *peering.IXLan, ip4, ip6 string, speed int) *peering.Session {
	t.Helper()
	s := peering.NewSession(lan.ID, n.ID, n.ASN)
	if ip4 != "" {
		s.IPAddr4 = netip.MustParseAddr(ip4)
	}
	if ip6 != "" {
		s.IPAddr6 = netip.MustParseAddr(ip6)
	}
	s.Speed = peering.IntPtr(speed)
	s.Status = peering.StateActive
	if err := e.Sessions.Save(context.Background(), s); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	return s
}

// CountSessions counts session rows in the given state, any state when empty
func (e *Env) CountSessions(t testing.TB, state peering.State) int {
	t.Helper()
	query, args := `SELECT COUNT(*) FROM sessions`, []any{}
	if state != "" {
		query += ` WHERE status = ?`
		args = append(args, state.String())
	}
	var n int
	if err := e.DB.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("failed to count sessions: %v", err)
	}
	return n
}

// CountStaging counts staging rows
func (e *Env) CountStaging(t testing.TB) int {
	t.Helper()
	var n int
	if err := e.DB.QueryRow(`SELECT COUNT(*) FROM ixf_member_data`).Scan(&n); err != nil {
		t.Fatalf("failed to count staging records: %v", err)
	}
	return n
}

// Notification is one call received by Notifier
type Notification struct {
	Message    notify.Message
	Recipients []notify.Recipient
}

// Notifier records notifications instead of rendering them
type Notifier struct {
	mu    sync.Mutex
	calls []Notification
}

// Notify records the call and returns one line per recipient
func (n *Notifier) Notify(_ context.Context, m notify.Message, recipients []notify.Recipient) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, Notification{Message: m, Recipients: append([]notify.Recipient(nil), recipients...)})

	lines := make([]string, 0, len(recipients))
	for _, r := range recipients {
		lines = append(lines, fmt.Sprintf("notified %s about %s", r, m.Kind))
	}
	return lines
}

// Calls returns the recorded notifications
func (n *Notifier) Calls() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.calls...)
}

// Kinds returns the message kinds in call order
func (n *Notifier) Kinds() []notify.Kind {
	var kinds []notify.Kind
	for _, c := range n.Calls() {
		kinds = append(kinds, c.Message.Kind)
	}
	return kinds
}

// Reset forgets recorded calls
func (n *Notifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = nil
}
