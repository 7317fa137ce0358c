package altitude

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/cyberhaven/fltsetup/pkg/kv"
)

func newTestRegistry(t *testing.T) (*Registry, kv.Store) {
	t.Helper()

	store := kv.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	return NewRegistry(store, ContentScreenerRange), store
}

func TestClaimAndCollision(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	require.NoError(t, reg.Claim(ctx, "265000", "s2e"))

	t.Run("same altitude different owner collides", func(t *testing.T) {
		err := reg.Claim(ctx, "265000", "otherflt")
		assert.ErrorIs(t, err, ErrCollision)
	})

	t.Run("re-claim by owner is a no-op", func(t *testing.T) {
		require.NoError(t, reg.Claim(ctx, "265000", "s2e"))
		assert.Len(t, reg.Claims(), 1)
	})
}

func TestClaimCollidesAcrossSpellings(t *testing.T) {
	ctx := context.Background()
	reg, store := newTestRegistry(t)

	// "265000.5" and "265000.50" are the same altitude; different
	// spellings must not yield two claims.
	require.NoError(t, reg.Claim(ctx, "265000.5", "s2e"))

	err := reg.Claim(ctx, "265000.50", "otherflt")
	assert.ErrorIs(t, err, ErrCollision)

	require.NoError(t, reg.Claim(ctx, "265000.50", "s2e")) // same owner, no-op

	claims := reg.Claims()
	require.Len(t, claims, 1)
	assert.Equal(t, "265000.5", claims[0].Altitude)

	// One canonical key in the store, no stray variant.
	entries, err := store.List(ctx, "Altitudes/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, kv.AltitudeKey("265000.5"), entries[0].Key)

	// Either spelling releases the claim.
	require.NoError(t, reg.Release(ctx, "265000.50", "s2e"))
	assert.Empty(t, reg.Claims())

	require.NoError(t, reg.Claim(ctx, "265000.50", "newcomer"))
}

func TestClaimValidation(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	assert.ErrorIs(t, reg.Claim(ctx, "not-a-number", "s2e"), ErrInvalidAltitude)
	assert.ErrorIs(t, reg.Claim(ctx, "100000", "s2e"), ErrAltitudeOutsideRange)
	assert.ErrorIs(t, reg.Claim(ctx, "270000", "s2e"), ErrAltitudeOutsideRange)
}

func TestClaimsStaySorted(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	// Deliberately out of order: the list must be sorted after every
	// single insert, not only at the end.
	for _, alt := range []string{"265000", "261000", "269000", "263500.5", "263500.25"} {
		require.NoError(t, reg.Claim(ctx, alt, "owner-"+alt))

		claims := reg.Claims()
		for i := 1; i < len(claims); i++ {
			prev, err := Parse(claims[i-1].Altitude)
			require.NoError(t, err)
			cur, err := Parse(claims[i].Altitude)
			require.NoError(t, err)
			assert.Negative(t, prev.Compare(cur))
		}
	}

	claims := reg.Claims()
	require.Len(t, claims, 5)
	assert.Equal(t, "261000", claims[0].Altitude)
	assert.Equal(t, "269000", claims[4].Altitude)
}

func TestReleaseAndReleaseOwner(t *testing.T) {
	ctx := context.Background()
	reg, store := newTestRegistry(t)

	require.NoError(t, reg.Claim(ctx, "265000", "s2e"))
	require.NoError(t, reg.Claim(ctx, "266000", "s2e"))
	require.NoError(t, reg.Claim(ctx, "267000", "other"))

	assert.ErrorIs(t, reg.Release(ctx, "265000", "other"), ErrClaimNotFound)

	require.NoError(t, reg.Release(ctx, "265000", "s2e"))
	assert.Len(t, reg.Claims(), 2)

	require.NoError(t, reg.ReleaseOwner(ctx, "s2e"))

	claims := reg.Claims()
	require.Len(t, claims, 1)
	assert.Equal(t, "other", claims[0].Owner)

	// The freed altitude can be claimed again, by anyone.
	require.NoError(t, reg.Claim(ctx, "265000", "newcomer"))

	_, found, err := store.Get(ctx, kv.AltitudeKey("266000"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestReleaseOwnerKeepsClaimsOnStoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	errStoreGone := errors.New("store gone")

	store := kv.NewMockStore(ctrl)
	store.EXPECT().PutIfAbsent(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(3)
	gomock.InOrder(
		store.EXPECT().Delete(gomock.Any(), kv.AltitudeKey("261000")).Return(nil),
		store.EXPECT().Delete(gomock.Any(), kv.AltitudeKey("267000")).Return(errStoreGone),
		store.EXPECT().Delete(gomock.Any(), kv.AltitudeKey("267000")).Return(nil),
	)

	reg := NewRegistry(store, ContentScreenerRange)
	require.NoError(t, reg.Claim(ctx, "261000", "s2e"))
	require.NoError(t, reg.Claim(ctx, "265000", "other"))
	require.NoError(t, reg.Claim(ctx, "267000", "s2e"))

	// The second owned claim fails to delete; the list must keep it and
	// the untouched claim, without duplicating anything.
	err := reg.ReleaseOwner(ctx, "s2e")
	assert.ErrorIs(t, err, errStoreGone)

	claims := reg.Claims()
	require.Len(t, claims, 2)
	assert.Equal(t, Claim{Altitude: "265000", Owner: "other"}, claims[0])
	assert.Equal(t, Claim{Altitude: "267000", Owner: "s2e"}, claims[1])

	// A retry finishes the job.
	require.NoError(t, reg.ReleaseOwner(ctx, "s2e"))

	claims = reg.Claims()
	require.Len(t, claims, 1)
	assert.Equal(t, "other", claims[0].Owner)
}

func TestLoadFromStore(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	defer store.Close()

	first := NewRegistry(store, ContentScreenerRange)
	require.NoError(t, first.Claim(ctx, "265000", "s2e"))
	require.NoError(t, first.Claim(ctx, "261000", "other"))

	second := NewRegistry(store, ContentScreenerRange)
	require.NoError(t, second.Load(ctx))

	claims := second.Claims()
	require.Len(t, claims, 2)
	assert.Equal(t, "261000", claims[0].Altitude)

	// Claims loaded from the shared store still collide.
	assert.ErrorIs(t, second.Claim(ctx, "265000", "latecomer"), ErrCollision)
}
