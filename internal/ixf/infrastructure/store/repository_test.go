package store_test

import (
	"context"
	"net/netip"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf/db"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/infrastructure/store"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/notify"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/peering"
	apperrors "github.com/peeringdb/peeringdb-sub000/internal/shared/errors"
)

type fixture struct {
	sessions peering.SessionRepository
	networks peering.NetworkRepository
	lan      *peering.IXLan
	exchange *peering.Exchange
	net      *peering.Network
}

func newFixture(t *testing.T) (*fixture, *db.SQLStore) {
	t.Helper()
	ctx := context.Background()
	_, sqlStore := db.NewTestDB(t)

	ix := &peering.Exchange{Name: "AMS-IX"}
	require.NoError(t, store.NewExchangeRepository(sqlStore).Create(ctx, ix))
	lan := &peering.IXLan{ExchangeID: ix.ID, Name: "AMS-IX LAN"}
	require.NoError(t, store.NewIXLanRepository(sqlStore).Create(ctx, lan))

	networks := store.NewNetworkRepository(sqlStore)
	n := &peering.Network{ASN: 1000, Name: "AS1000"}
	require.NoError(t, networks.Create(ctx, n))

	return &fixture{
		sessions: store.NewSessionRepository(sqlStore),
		networks: networks,
		lan:      lan,
		exchange: ix,
		net:      n,
	}, sqlStore
}

func (f *fixture) session(ip4 string, state peering.State) *peering.Session {
	s := peering.NewSession(f.lan.ID, f.net.ID, f.net.ASN)
	if ip4 != "" {
		s.IPAddr4 = netip.MustParseAddr(ip4)
	}
	s.Status = state
	s.Speed = peering.IntPtr(1000)
	s.Created = time.Now().UTC()
	s.Updated = s.Created
	return s
}

func TestSessionRepositoryRoundTrip(t *testing.T) {
	f, _ := newFixture(t)
	ctx := context.Background()

	s := f.session("195.69.144.21", peering.StateActive)
	s.IPAddr6 = netip.MustParseAddr("2001:7f8:1::a500:1000:1")
	s.Notes = "imported"
	require.NoError(t, f.sessions.Create(ctx, s))
	require.NotZero(t, s.ID)

	got, err := f.sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.IPAddr4, got.IPAddr4)
	assert.Equal(t, s.IPAddr6, got.IPAddr6)
	assert.Equal(t, 1000, got.SpeedValue())
	assert.Equal(t, peering.StateActive, got.Status)
	assert.Equal(t, "imported", got.Notes)

	got.Speed = nil
	got.IPAddr6 = netip.Addr{}
	require.NoError(t, f.sessions.Update(ctx, got))
	again, err := f.sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, again.Speed)
	assert.False(t, again.IPAddr6.IsValid())

	require.NoError(t, f.sessions.Delete(ctx, s.ID))
	_, err = f.sessions.Get(ctx, s.ID)
	assert.ErrorIs(t, err, peering.ErrSessionNotFound)

	missing := f.session("", peering.StateActive)
	missing.ID = 999
	assert.ErrorIs(t, f.sessions.Update(ctx, missing), peering.ErrSessionNotFound)
}

func TestSessionRepositoryActiveAddressIsUnique(t *testing.T) {
	f, _ := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.sessions.Create(ctx, f.session("195.69.144.21", peering.StateActive)))
	// deleted rows may keep the address
	require.NoError(t, f.sessions.Create(ctx, f.session("195.69.144.21", peering.StateDeleted)))

	err := f.sessions.Create(ctx, f.session("195.69.144.21", peering.StateActive))
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeSessionIPConflict))

	held, err := f.sessions.FindByIPv4(ctx, netip.MustParseAddr("195.69.144.21"))
	require.NoError(t, err)
	assert.Len(t, held, 2)
}

func TestSessionRepositoryFindOnLANPrefersActive(t *testing.T) {
	f, _ := newFixture(t)
	ctx := context.Background()

	deleted := f.session("195.69.144.21", peering.StateDeleted)
	require.NoError(t, f.sessions.Create(ctx, deleted))
	active := f.session("195.69.144.21", peering.StateActive)
	require.NoError(t, f.sessions.Create(ctx, active))

	got, err := f.sessions.FindOnLAN(ctx, f.lan.ID, 1000, netip.MustParseAddr("195.69.144.21"), netip.Addr{})
	require.NoError(t, err)
	assert.Equal(t, active.ID, got.ID)

	_, err = f.sessions.FindOnLAN(ctx, f.lan.ID, 1000, netip.MustParseAddr("195.69.144.22"), netip.Addr{})
	assert.ErrorIs(t, err, peering.ErrSessionNotFound)

	n, err := f.sessions.CountActiveByNetworkAndExchange(ctx, f.net.ID, f.exchange.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	all, err := f.sessions.ListByIXLan(ctx, f.lan.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestNetworkRepositoryContacts(t *testing.T) {
	f, _ := newFixture(t)
	ctx := context.Background()

	n := &peering.Network{
		ASN:  2000,
		Name: "AS2000",
		Contacts: []peering.Contact{
			{Role: peering.RolePolicy, Name: "peering", Email: "peering@as2000.example"},
			{Role: peering.RoleNOC, Name: "noc", Email: "noc@as2000.example"},
		},
	}
	require.NoError(t, f.networks.Create(ctx, n))

	got, err := f.networks.GetByASN(ctx, 2000)
	require.NoError(t, err)
	require.Len(t, got.Contacts, 2)
	assert.Equal(t, peering.RolePolicy, got.Contacts[0].Role)
	assert.Equal(t, "noc@as2000.example", got.Contacts[1].Email)

	got.AllowIXPUpdate = true
	require.NoError(t, f.networks.Update(ctx, got))
	updated, err := f.networks.Get(ctx, got.ID)
	require.NoError(t, err)
	assert.True(t, updated.AllowIXPUpdate)

	_, err = f.networks.GetByASN(ctx, 64999)
	assert.ErrorIs(t, err, peering.ErrNetworkNotFound)
}

func TestOutboxRepository(t *testing.T) {
	_, sqlStore := newFixture(t)
	ctx := context.Background()
	outbox := store.NewOutboxRepository(sqlStore)

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, outbox.Create(ctx, &notify.OutboxMessage{
		Kind: notify.OutboxEmail, Subject: "first", Body: "b", Recipients: []string{"a@x.example", "b@x.example"}, Created: created,
	}))
	require.NoError(t, outbox.Create(ctx, &notify.OutboxMessage{
		Kind: notify.OutboxTicket, Subject: "second", Body: "b", Requester: "ac@x.example", Created: created,
	}))

	all, err := outbox.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, []string{"a@x.example", "b@x.example"}, all[0].Recipients)
	assert.Nil(t, all[1].Recipients)
	assert.Equal(t, notify.OutboxTicket, all[1].Kind)

	one, err := outbox.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "first", one[0].Subject)
}

func newPostgresMock(t *testing.T) (*db.SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db.NewStoreFromDB(sqlDB, db.DialectPostgres), mock
}

func TestSessionRepositoryPostgresPlaceholders(t *testing.T) {
	sqlStore, mock := newPostgresMock(t)
	sessions := store.NewSessionRepository(sqlStore)

	mock.ExpectQuery(`INSERT INTO sessions .* VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8, \$9, \$10, \$11, \$12\) RETURNING id`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	s := peering.NewSession(1, 2, 1000)
	s.IPAddr4 = netip.MustParseAddr("195.69.144.21")
	require.NoError(t, sessions.Create(context.Background(), s))
	assert.Equal(t, int64(42), s.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryPostgresUniqueViolation(t *testing.T) {
	sqlStore, mock := newPostgresMock(t)
	sessions := store.NewSessionRepository(sqlStore)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO sessions`)).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	s := peering.NewSession(1, 2, 1000)
	s.IPAddr4 = netip.MustParseAddr("195.69.144.21")
	err := sessions.Create(context.Background(), s)
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeSessionIPConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryPostgresUpdateMissingRow(t *testing.T) {
	sqlStore, mock := newPostgresMock(t)
	sessions := store.NewSessionRepository(sqlStore)

	mock.ExpectExec(`UPDATE sessions SET .* WHERE id = \$12`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	s := peering.NewSession(1, 2, 1000)
	s.ID = 7
	assert.ErrorIs(t, sessions.Update(context.Background(), s), peering.ErrSessionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
