package fltmgr

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberhaven/fltsetup/pkg/altitude"
	"github.com/cyberhaven/fltsetup/pkg/kv"
	"github.com/cyberhaven/fltsetup/pkg/logger"
	"github.com/cyberhaven/fltsetup/pkg/models"
)

func newTestManager(t *testing.T) (*Manager, kv.Store) {
	t.Helper()

	store := kv.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	alts := altitude.NewRegistry(store, altitude.ContentScreenerRange)

	return New(store, alts, logger.NewTestLogger()), store
}

// seedService writes a bare service record so instance registration has
// an owner to hang off.
func seedService(t *testing.T, store kv.Store, name string) {
	t.Helper()
	require.NoError(t, store.Put(context.Background(), kv.ServiceKey(name), []byte(`{}`)))
}

func TestRegisterInstanceBindsDefault(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)
	seedService(t, store, "s2e")

	spec := models.InstanceSpec{Name: "s2e Instance", Altitude: "265000", Flags: 0}
	require.NoError(t, mgr.RegisterInstance(ctx, "s2e", spec))

	// The first instance becomes the default instance.
	value, found, err := store.Get(ctx, kv.DefaultInstanceKey("s2e"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "s2e Instance", string(value))

	resolved, err := mgr.ResolveDefaultInstance(ctx, "s2e")
	require.NoError(t, err)
	assert.Equal(t, "265000", resolved.Altitude)
	assert.True(t, resolved.Flags.AttachesEverywhere())

	// A later instance does not steal the binding.
	require.NoError(t, mgr.RegisterInstance(ctx, "s2e", models.InstanceSpec{
		Name: "s2e Upper", Altitude: "268000",
	}))

	resolved, err = mgr.ResolveDefaultInstance(ctx, "s2e")
	require.NoError(t, err)
	assert.Equal(t, "s2e Instance", resolved.Name)
}

func TestRegisterInstanceRejectsReservedNames(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)
	seedService(t, store, "s2e")

	for _, name := range []string{"DefaultInstance", ""} {
		err := mgr.RegisterInstance(ctx, "s2e", models.InstanceSpec{
			Name: name, Altitude: "262000",
		})
		assert.ErrorIs(t, err, ErrReservedInstanceName)
	}

	// The rejected registration claimed nothing: the altitude is still
	// free and the binding leaf was never written.
	_, found, err := store.Get(ctx, kv.AltitudeKey("262000"))
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = store.Get(ctx, kv.DefaultInstanceKey("s2e"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRegisterInstanceUnknownService(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t)

	err := mgr.RegisterInstance(ctx, "ghost", models.InstanceSpec{Name: "x", Altitude: "265000"})
	assert.ErrorIs(t, err, ErrUnknownService)
}

func TestAltitudeCollisionAcrossServices(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)
	seedService(t, store, "s2e")
	seedService(t, store, "otherflt")

	require.NoError(t, mgr.RegisterInstance(ctx, "s2e", models.InstanceSpec{
		Name: "s2e Instance", Altitude: "265000",
	}))

	err := mgr.RegisterInstance(ctx, "otherflt", models.InstanceSpec{
		Name: "other Instance", Altitude: "265000",
	})
	assert.ErrorIs(t, err, ErrAltitudeCollision)

	// The losing service gets no instance record and no default binding.
	record, err := mgr.Registration(ctx, "otherflt")
	require.NoError(t, err)
	assert.Empty(t, record.Instances)
	assert.Empty(t, record.DefaultInstanceName)
}

func TestRegistrationOrderedByAltitude(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)
	seedService(t, store, "s2e")

	for _, spec := range []models.InstanceSpec{
		{Name: "upper", Altitude: "268000"},
		{Name: "lower", Altitude: "261000"},
		{Name: "mid", Altitude: "265000.5"},
	} {
		require.NoError(t, mgr.RegisterInstance(ctx, "s2e", spec))
	}

	record, err := mgr.Registration(ctx, "s2e")
	require.NoError(t, err)
	require.Len(t, record.Instances, 3)
	assert.Equal(t, "lower", record.Instances[0].Name)
	assert.Equal(t, "mid", record.Instances[1].Name)
	assert.Equal(t, "upper", record.Instances[2].Name)

	// The binding came from the first registration, not the lowest
	// altitude.
	assert.Equal(t, "upper", record.DefaultInstanceName)
}

func TestSetDefaultInstance(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)
	seedService(t, store, "s2e")

	require.NoError(t, mgr.RegisterInstance(ctx, "s2e", models.InstanceSpec{
		Name: "s2e Instance", Altitude: "265000",
	}))
	require.NoError(t, mgr.RegisterInstance(ctx, "s2e", models.InstanceSpec{
		Name: "s2e Upper", Altitude: "268000",
	}))

	assert.ErrorIs(t, mgr.SetDefaultInstance(ctx, "s2e", "nope"), ErrInstanceNotFound)

	require.NoError(t, mgr.SetDefaultInstance(ctx, "s2e", "s2e Upper"))

	resolved, err := mgr.ResolveDefaultInstance(ctx, "s2e")
	require.NoError(t, err)
	assert.Equal(t, "s2e Upper", resolved.Name)
}

func TestResolveDefaultInstanceErrors(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)
	seedService(t, store, "s2e")

	// No instances registered at all.
	_, err := mgr.ResolveDefaultInstance(ctx, "s2e")
	assert.ErrorIs(t, err, ErrNoDefaultInstance)

	// Binding points at an instance that no longer exists.
	require.NoError(t, store.Put(ctx, kv.DefaultInstanceKey("s2e"), []byte("gone")))

	_, err = mgr.ResolveDefaultInstance(ctx, "s2e")
	assert.ErrorIs(t, err, ErrNoDefaultInstance)
}

func TestUnregisterAllFreesAltitudes(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)
	seedService(t, store, "s2e")
	seedService(t, store, "successor")

	require.NoError(t, mgr.RegisterInstance(ctx, "s2e", models.InstanceSpec{
		Name: "s2e Instance", Altitude: "265000",
	}))

	require.NoError(t, mgr.UnregisterAll(ctx, "s2e"))

	record, err := mgr.Registration(ctx, "s2e")
	require.NoError(t, err)
	assert.Empty(t, record.Instances)
	assert.Empty(t, record.DefaultInstanceName)

	// The altitude is free for the next filter.
	require.NoError(t, mgr.RegisterInstance(ctx, "successor", models.InstanceSpec{
		Name: "successor Instance", Altitude: "265000",
	}))

	// A second UnregisterAll for the emptied service is a no-op.
	require.NoError(t, mgr.UnregisterAll(ctx, "s2e"))
}

func TestS2ERegistrationLayout(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)
	seedService(t, store, "s2e")

	require.NoError(t, mgr.RegisterInstance(ctx, "s2e", models.InstanceSpec{
		Name:     "s2e Instance",
		Altitude: "265000",
		Flags:    0,
	}))

	// The persisted tree matches the documented key layout.
	value, found, err := store.Get(ctx, "Services/s2e/Instances/DefaultInstance")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "s2e Instance", string(value))

	value, found, err = store.Get(ctx, "Services/s2e/Instances/s2e Instance")
	require.NoError(t, err)
	require.True(t, found)

	var spec models.InstanceSpec
	require.NoError(t, json.Unmarshal(value, &spec))
	assert.Equal(t, "265000", spec.Altitude)
	assert.Equal(t, models.InstanceFlags(0), spec.Flags)

	_, found, err = store.Get(ctx, "Altitudes/265000")
	require.NoError(t, err)
	assert.True(t, found)
}
