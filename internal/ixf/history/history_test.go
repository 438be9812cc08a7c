package history

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf/db"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/peering"
	applogger "github.com/peeringdb/peeringdb-sub000/internal/shared/logger"
)

func openTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(dir, applogger.NewNop())
	require.NoError(t, err)
	return s
}

func testSession() *peering.Session {
	return &peering.Session{
		ID:          7,
		NetworkID:   3,
		IXLanID:     1,
		ASN:         1000,
		IPAddr4:     netip.MustParseAddr("195.69.144.21"),
		Speed:       peering.IntPtr(1000),
		Operational: true,
		Status:      peering.StateActive,
	}
}

func TestRecordAndLatest(t *testing.T) {
	store := openTestStore(t, t.TempDir())
	defer store.Close()
	ctx := context.Background()

	sess := testSession()
	first, err := store.Record(ctx, sess)
	require.NoError(t, err)

	sess.Speed = peering.IntPtr(10000)
	sess.IPAddr6 = netip.MustParseAddr("2001:7f8:1::a500:1000:1")
	second, err := store.Record(WithRevision(ctx, "admin", "port upgrade"), sess)
	require.NoError(t, err)
	assert.Greater(t, second, first)

	latest, err := store.Latest(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, second, latest.ID)
	assert.Equal(t, "admin", latest.User)
	assert.Equal(t, "port upgrade", latest.Comment)
	assert.Equal(t, 10000, *latest.Snapshot.Speed)

	old, err := store.Get(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 1000, *old.Snapshot.Speed)
	assert.Empty(t, old.Snapshot.IPAddr6)

	versions, err := store.List(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, first, versions[0].ID)
}

func TestLatestIsScopedToSession(t *testing.T) {
	store := openTestStore(t, t.TempDir())
	defer store.Close()
	ctx := context.Background()

	a := testSession()
	b := testSession()
	b.ID = 70

	_, err := store.Record(ctx, a)
	require.NoError(t, err)
	idB, err := store.Record(ctx, b)
	require.NoError(t, err)

	latest, err := store.Latest(ctx, a.ID)
	require.NoError(t, err)
	assert.NotEqual(t, idB, latest.ID)
	assert.Equal(t, a.ID, latest.SessionID)

	_, err = store.Latest(ctx, 999)
	assert.ErrorIs(t, err, ErrVersionNotFound)
	_, err = store.Get(ctx, 999)
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestSequenceSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store := openTestStore(t, dir)
	first, err := store.Record(ctx, testSession())
	require.NoError(t, err)
	require.NoError(t, store.Close())
	assert.ErrorIs(t, store.Close(), ErrClosed)

	reopened := openTestStore(t, dir)
	defer reopened.Close()
	second, err := reopened.Record(ctx, testSession())
	require.NoError(t, err)
	assert.Equal(t, first+1, second)
}

func TestRecordRejectsUnsavedSession(t *testing.T) {
	store := openTestStore(t, t.TempDir())
	defer store.Close()

	_, err := store.Record(context.Background(), peering.NewSession(1, 3, 1000))
	assert.Error(t, err)
}

func TestSnapshotApplyTo(t *testing.T) {
	orig := testSession()
	orig.Notes = "moved"
	snap := SnapshotOf(orig)

	restored := &peering.Session{ID: orig.ID, Status: peering.StateDeleted, Speed: peering.IntPtr(1)}
	require.NoError(t, snap.ApplyTo(restored))

	if diff := cmp.Diff(orig, restored, cmpopts.IgnoreFields(peering.Session{}, "Created", "Updated"),
		cmp.Comparer(func(a, b netip.Addr) bool { return a == b })); diff != "" {
		t.Errorf("restored session mismatch (-want +got):\n%s", diff)
	}

	// speeds are copied, not shared
	*orig.Speed = 5
	assert.Equal(t, 1000, *restored.Speed)
}

func TestRecordInsideTransaction(t *testing.T) {
	_, sqlStore := db.NewTestDB(t)
	store := openTestStore(t, t.TempDir())
	defer store.Close()
	ctx := context.Background()

	sess := testSession()
	committed, err := store.Record(ctx, sess)
	require.NoError(t, err)

	t.Run("rolled back versions are dropped", func(t *testing.T) {
		boom := errors.New("boom")
		err := sqlStore.ExecTx(ctx, func(ctx context.Context) error {
			sess.Speed = peering.IntPtr(3000)
			id, err := store.Record(ctx, sess)
			require.NoError(t, err)

			// visible inside the transaction only
			inside, err := store.Latest(ctx, sess.ID)
			require.NoError(t, err)
			assert.Equal(t, id, inside.ID)
			outside, err := store.Latest(context.Background(), sess.ID)
			require.NoError(t, err)
			assert.Equal(t, committed, outside.ID)
			return boom
		})
		require.ErrorIs(t, err, boom)

		latest, err := store.Latest(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, committed, latest.ID)
		versions, err := store.List(ctx, sess.ID)
		require.NoError(t, err)
		assert.Len(t, versions, 1)
	})

	t.Run("committed versions are written", func(t *testing.T) {
		var id int64
		require.NoError(t, sqlStore.ExecTx(ctx, func(ctx context.Context) error {
			sess.Speed = peering.IntPtr(4000)
			var err error
			id, err = store.Record(ctx, sess)
			if err != nil {
				return err
			}
			versions, err := store.List(ctx, sess.ID)
			require.NoError(t, err)
			assert.Len(t, versions, 2)
			return nil
		}))

		latest, err := store.Latest(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, id, latest.ID)
		assert.Equal(t, 4000, *latest.Snapshot.Speed)
		assert.Greater(t, id, committed)
	})
}
