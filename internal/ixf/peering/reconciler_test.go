package peering_test

import (
	"context"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf/ixftest"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/peering"
	apperrors "github.com/peeringdb/peeringdb-sub000/internal/shared/errors"
)

var (
	addr4 = netip.MustParseAddr("195.69.144.21")
	addr6 = netip.MustParseAddr("2001:7f8:1::a500:1000:1")
)

func proposal(n *peering.Network, ip4, ip6 netip.Addr, speed int) peering.Proposal {
	return peering.Proposal{
		NetworkID:   n.ID,
		ASN:         n.ASN,
		IPAddr4:     ip4,
		IPAddr6:     ip6,
		Speed:       speed,
		Operational: true,
	}
}

func TestAddNetIXLanCreatesSession(t *testing.T) {
	env := ixftest.New(t)
	ctx := context.Background()
	net := env.AddNetwork(t, 1000, false)

	res, err := env.Reconciler.AddNetIXLan(ctx, env.LAN, proposal(net, addr4, netip.Addr{}, 1000), peering.DefaultAddOptions())
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.Equal(t, peering.ReasonNewAddress, res.Reason)
	for _, field := range []string{"ipaddr4", "asn", "speed", "network_id"} {
		assert.True(t, res.HasChanged(field), "expected %s in %v", field, res.Changed)
	}

	stored, err := env.Sessions.Get(ctx, res.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, peering.StateActive, stored.Status)
	assert.Equal(t, addr4, stored.IPAddr4)
	assert.False(t, stored.IPAddr6.IsValid())
	assert.Equal(t, 1000, stored.SpeedValue())
	assert.Equal(t, int64(1000), stored.ASN)
}

func TestAddNetIXLanRejectsAddressOutsidePrefixes(t *testing.T) {
	env := ixftest.New(t)
	net := env.AddNetwork(t, 1000, false)

	_, err := env.Reconciler.AddNetIXLan(context.Background(), env.LAN,
		proposal(net, netip.MustParseAddr("8.8.8.8"), netip.Addr{}, 1000), peering.DefaultAddOptions())
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Contains(t, apperrors.MessageOf(err), "IPv4")
	assert.Contains(t, apperrors.MessageOf(err), "does not match any prefix")
	assert.Equal(t, 0, env.CountSessions(t, ""))
}

func TestAddNetIXLanIsIdempotent(t *testing.T) {
	env := ixftest.New(t)
	ctx := context.Background()
	net := env.AddNetwork(t, 1000, false)
	p := proposal(net, addr4, addr6, 10000)

	first, err := env.Reconciler.AddNetIXLan(ctx, env.LAN, p, peering.DefaultAddOptions())
	require.NoError(t, err)
	versions, err := env.History.List(ctx, first.Session.ID)
	require.NoError(t, err)

	second, err := env.Reconciler.AddNetIXLan(ctx, env.LAN, p, peering.DefaultAddOptions())
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Empty(t, second.Changed)
	assert.Equal(t, first.Session.ID, second.Session.ID)

	after, err := env.History.List(ctx, first.Session.ID)
	require.NoError(t, err)
	assert.Len(t, after, len(versions), "an unchanged session must not be saved again")
	assert.Equal(t, 1, env.CountSessions(t, peering.StateActive))
}

func TestAddNetIXLanDryRunPersistsNothing(t *testing.T) {
	env := ixftest.New(t)
	net := env.AddNetwork(t, 1000, false)

	res, err := env.Reconciler.AddNetIXLan(context.Background(), env.LAN, proposal(net, addr4, netip.Addr{}, 1000), peering.DryRun())
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.False(t, res.Session.Persisted())
	assert.Equal(t, 0, env.CountSessions(t, ""))
}

func TestAddNetIXLanReclaimsFromDeletedSession(t *testing.T) {
	env := ixftest.New(t)
	ctx := context.Background()

	old := env.AddNetwork(t, 1000, false)
	other := env.AddLAN(t, env.AddExchange(t, "DE-CIX"))
	stale := env.AddSession(t, old, other, addr4.String(), "", 1000)
	require.NoError(t, env.Sessions.SoftDelete(ctx, stale))

	newcomer := env.AddNetwork(t, 2000, false)
	res, err := env.Reconciler.AddNetIXLan(ctx, env.LAN, proposal(newcomer, addr4, netip.Addr{}, 1000), peering.DefaultAddOptions())
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, addr4, res.Session.IPAddr4)
	require.Len(t, res.Log, 1)
	assert.Contains(t, res.Log[0], "was claimed by other netixlan")

	reloaded, err := env.Sessions.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IPAddr4.IsValid())
	assert.Equal(t, peering.ClaimedNote(addr4), reloaded.Notes)
	assert.True(t, reloaded.IsDeleted())
}

func TestAddNetIXLanKeepsDeletedSessionOfSameASN(t *testing.T) {
	env := ixftest.New(t)
	ctx := context.Background()

	net := env.AddNetwork(t, 1000, false)
	other := env.AddLAN(t, env.AddExchange(t, "DE-CIX"))
	stale := env.AddSession(t, net, other, addr4.String(), "", 1000)
	require.NoError(t, env.Sessions.SoftDelete(ctx, stale))

	res, err := env.Reconciler.AddNetIXLan(ctx, env.LAN, proposal(net, addr4, netip.Addr{}, 1000), peering.DefaultAddOptions())
	require.NoError(t, err)
	assert.Empty(t, res.Log)

	reloaded, err := env.Sessions.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, addr4, reloaded.IPAddr4)
}

func TestAddNetIXLanRejectsActiveAddressOnOtherLAN(t *testing.T) {
	env := ixftest.New(t)
	ctx := context.Background()

	holder := env.AddNetwork(t, 1000, false)
	other := env.AddLAN(t, env.AddExchange(t, "DE-CIX"))
	env.AddSession(t, holder, other, addr4.String(), "", 1000)

	net := env.AddNetwork(t, 2000, false)
	_, err := env.Reconciler.AddNetIXLan(ctx, env.LAN, proposal(net, addr4, netip.Addr{}, 1000), peering.DefaultAddOptions())
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Contains(t, apperrors.MessageOf(err), "already exists in another lan")
	assert.Equal(t, 1, env.CountSessions(t, ""))
}

func TestAddNetIXLanKeepsKnownSpeed(t *testing.T) {
	env := ixftest.New(t)
	ctx := context.Background()
	net := env.AddNetwork(t, 1000, false)
	existing := env.AddSession(t, net, env.LAN, addr4.String(), "", 10000)

	res, err := env.Reconciler.AddNetIXLan(ctx, env.LAN, proposal(net, addr4, netip.Addr{}, 0), peering.DefaultAddOptions())
	require.NoError(t, err)
	assert.Equal(t, existing.ID, res.Session.ID)
	assert.False(t, res.HasChanged("speed"))
	assert.Equal(t, 10000, res.Session.SpeedValue())

	stored, err := env.Sessions.Get(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, 10000, stored.SpeedValue())
}

func TestAddNetIXLanMergesSplitSessions(t *testing.T) {
	env := ixftest.New(t)
	ctx := context.Background()
	net := env.AddNetwork(t, 1000, false)

	v4 := env.AddSession(t, net, env.LAN, addr4.String(), "", 1000)
	v6 := env.AddSession(t, net, env.LAN, "", addr6.String(), 1000)

	res, err := env.Reconciler.AddNetIXLan(ctx, env.LAN, proposal(net, addr4, addr6, 1000), peering.DefaultAddOptions())
	require.NoError(t, err)
	assert.Equal(t, v4.ID, res.Session.ID)
	assert.Equal(t, addr6, res.Session.IPAddr6)
	assert.True(t, res.HasChanged("ipaddr6"))
	require.NotEmpty(t, res.Log)
	assert.Contains(t, res.Log[0], "moved from netixlan")

	loser, err := env.Sessions.Get(ctx, v6.ID)
	require.NoError(t, err)
	assert.False(t, loser.IPAddr6.IsValid())
}

func TestAddNetIXLanInvalidMergeKeepsSplitSessions(t *testing.T) {
	env := ixftest.New(t)
	ctx := context.Background()
	net := env.AddNetwork(t, 1000, false)

	v4 := env.AddSession(t, net, env.LAN, addr4.String(), "", 1000)
	v6 := env.AddSession(t, net, env.LAN, "195.69.144.99", addr6.String(), 1000)
	before, err := env.History.List(ctx, v6.ID)
	require.NoError(t, err)

	_, err = env.Reconciler.AddNetIXLan(ctx, env.LAN, proposal(net, addr4, addr6, peering.MaxSpeed+1), peering.DefaultAddOptions())
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Contains(t, apperrors.MessageOf(err), "exceeds the maximum")

	holder, err := env.Sessions.Get(ctx, v6.ID)
	require.NoError(t, err)
	assert.Equal(t, addr6, holder.IPAddr6)
	after, err := env.History.List(ctx, v6.ID)
	require.NoError(t, err)
	assert.Len(t, after, len(before))

	target, err := env.Sessions.Get(ctx, v4.ID)
	require.NoError(t, err)
	assert.Equal(t, 1000, target.SpeedValue())
}

func TestAddNetIXLanInvalidProposalKeepsDeletedHolder(t *testing.T) {
	env := ixftest.New(t)
	ctx := context.Background()

	old := env.AddNetwork(t, 1000, false)
	other := env.AddLAN(t, env.AddExchange(t, "DE-CIX"))
	stale := env.AddSession(t, old, other, addr4.String(), "", 1000)
	require.NoError(t, env.Sessions.SoftDelete(ctx, stale))

	newcomer := env.AddNetwork(t, 2000, false)
	_, err := env.Reconciler.AddNetIXLan(ctx, env.LAN, proposal(newcomer, addr4, netip.Addr{}, peering.MaxSpeed+1), peering.DefaultAddOptions())
	require.Error(t, err)

	reloaded, err := env.Sessions.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, addr4, reloaded.IPAddr4)
	assert.Empty(t, reloaded.Notes)
	assert.Equal(t, 1, env.CountSessions(t, ""))
}

func TestAddNetIXLanResurrectsDeletedSession(t *testing.T) {
	env := ixftest.New(t)
	ctx := context.Background()
	net := env.AddNetwork(t, 1000, false)

	s := env.AddSession(t, net, env.LAN, addr4.String(), "", 1000)
	require.NoError(t, env.Sessions.SoftDelete(ctx, s))

	res, err := env.Reconciler.AddNetIXLan(ctx, env.LAN, proposal(net, addr4, netip.Addr{}, 1000), peering.DefaultAddOptions())
	require.NoError(t, err)
	assert.Equal(t, s.ID, res.Session.ID)
	assert.False(t, res.Created)

	stored, err := env.Sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive())
}

func TestAtMostOneActiveClaim(t *testing.T) {
	env := ixftest.New(t)
	ctx := context.Background()

	first := env.AddNetwork(t, 1000, false)
	second := env.AddNetwork(t, 2000, false)

	_, err := env.Reconciler.AddNetIXLan(ctx, env.LAN, proposal(first, addr4, netip.Addr{}, 1000), peering.DefaultAddOptions())
	require.NoError(t, err)

	// the address moves to the second network's proposal, it never ends up held twice
	_, err = env.Reconciler.AddNetIXLan(ctx, env.LAN, proposal(second, addr4, netip.Addr{}, 1000), peering.DefaultAddOptions())
	require.NoError(t, err)

	holders, err := env.SessionRepo.FindByIPv4(ctx, addr4)
	require.NoError(t, err)
	active := 0
	for _, h := range holders {
		if h.IsActive() {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestStorageRejectsDuplicateActiveAddress(t *testing.T) {
	env := ixftest.New(t)
	ctx := context.Background()
	net := env.AddNetwork(t, 1000, false)
	env.AddSession(t, net, env.LAN, addr4.String(), "", 1000)

	dup := peering.NewSession(env.LAN.ID, net.ID, net.ASN)
	dup.IPAddr4 = addr4
	dup.Status = peering.StateActive
	err := env.Sessions.Save(ctx, dup)
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeSessionIPConflict))
}
