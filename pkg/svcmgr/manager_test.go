package svcmgr

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberhaven/fltsetup/pkg/kv"
	"github.com/cyberhaven/fltsetup/pkg/logger"
	"github.com/cyberhaven/fltsetup/pkg/models"
	"github.com/cyberhaven/fltsetup/pkg/scm"
)

type testEnv struct {
	mgr    *Manager
	store  *kv.MemoryStore
	ctl    *scm.SimulatedManager
	stager *FileStager
	source string
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	dir := t.TempDir()
	source := filepath.Join(dir, "s2e.sys")
	require.NoError(t, os.WriteFile(source, []byte("MZ driver image"), 0o644))

	store := kv.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	ctl := scm.NewSimulatedManager()
	stager := NewFileStager(filepath.Join(dir, "drivers"))

	return &testEnv{
		mgr:    New(store, ctl, stager, logger.NewTestLogger(), opts...),
		store:  store,
		ctl:    ctl,
		stager: stager,
		source: source,
	}
}

func (e *testEnv) descriptor() *models.ServiceDescriptor {
	return &models.ServiceDescriptor{
		Name:           "s2e",
		DisplayName:    "S2E Guest Driver",
		BinaryPath:     e.source,
		ServiceType:    models.ServiceTypeFileSystemDriver,
		StartType:      models.StartTypeManual,
		ErrorControl:   models.ErrorControlNormal,
		LoadOrderGroup: "FSFilter Content Screener",
		Dependencies:   []string{"FltMgr"},
	}
}

func TestInstallAndRecord(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	require.NoError(t, env.mgr.Install(ctx, env.descriptor(), InstallOptions{}))

	rec, found, err := env.mgr.Record(ctx, "s2e")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "s2e", rec.Descriptor.Name)
	assert.FileExists(t, rec.StagedPath)

	state, err := env.ctl.QueryService(ctx, "s2e")
	require.NoError(t, err)
	assert.Equal(t, models.ServiceStateStopped, state)
}

func TestInstallIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	require.NoError(t, env.mgr.Install(ctx, env.descriptor(), InstallOptions{}))

	// Re-running the identical descriptor is a no-op, not a failure.
	require.NoError(t, env.mgr.Install(ctx, env.descriptor(), InstallOptions{}))

	rec, found, err := env.mgr.Record(ctx, "s2e")
	require.NoError(t, err)
	require.True(t, found)
	assert.FileExists(t, rec.StagedPath)
}

func TestInstallDuplicateService(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	require.NoError(t, env.mgr.Install(ctx, env.descriptor(), InstallOptions{}))

	// Same name, different binary path: a conflicting identity.
	other := env.descriptor()
	otherSource := filepath.Join(t.TempDir(), "s2e.sys")
	require.NoError(t, os.WriteFile(otherSource, []byte("MZ other image"), 0o644))
	other.BinaryPath = otherSource

	err := env.mgr.Install(ctx, other, InstallOptions{})
	assert.ErrorIs(t, err, ErrDuplicateService)

	// The original record survives the rejected install.
	rec, found, err := env.mgr.Record(ctx, "s2e")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, env.source, rec.Descriptor.BinaryPath)
}

func TestInstallForceReplaces(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	require.NoError(t, env.mgr.Install(ctx, env.descriptor(), InstallOptions{}))

	other := env.descriptor()
	otherSource := filepath.Join(t.TempDir(), "s2e.sys")
	require.NoError(t, os.WriteFile(otherSource, []byte("MZ v2 image"), 0o644))
	other.BinaryPath = otherSource

	require.NoError(t, env.mgr.Install(ctx, other, InstallOptions{Force: true}))

	rec, found, err := env.mgr.Record(ctx, "s2e")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, otherSource, rec.Descriptor.BinaryPath)
}

func TestStageBinaryRejectsNonFilterTypes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	desc := env.descriptor()
	desc.ServiceType = models.ServiceTypeKernelDriver

	_, err := env.mgr.StageBinary(ctx, desc)
	assert.ErrorIs(t, err, ErrInvalidServiceType)
}

func TestStageBinaryMissingSource(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	desc := env.descriptor()
	desc.BinaryPath = filepath.Join(t.TempDir(), "nope.sys")

	_, err := env.mgr.StageBinary(ctx, desc)
	assert.ErrorIs(t, err, ErrBinaryStageFailed)

	// A failed staging leaves no record behind.
	_, found, err := env.mgr.Record(ctx, "s2e")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestUninstall(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	require.NoError(t, env.mgr.Install(ctx, env.descriptor(), InstallOptions{}))

	rec, _, err := env.mgr.Record(ctx, "s2e")
	require.NoError(t, err)
	staged := rec.StagedPath

	require.NoError(t, env.mgr.Uninstall(ctx, "s2e"))

	_, found, err := env.mgr.Record(ctx, "s2e")
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoFileExists(t, staged)

	_, err = env.ctl.QueryService(ctx, "s2e")
	assert.ErrorIs(t, err, scm.ErrServiceNotFound)
}

func TestUninstallNeverInstalled(t *testing.T) {
	env := newTestEnv(t)

	err := env.mgr.Uninstall(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestUninstallBusyRemovesNothing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, WithStopTimeout(10*time.Millisecond))

	require.NoError(t, env.mgr.Install(ctx, env.descriptor(), InstallOptions{}))
	require.NoError(t, env.ctl.StartService(ctx, "s2e"))
	env.ctl.SetBusy("s2e", true)

	err := env.mgr.Uninstall(ctx, "s2e")
	assert.ErrorIs(t, err, ErrServiceBusy)

	// Everything is intact: record, SCM service, staged image.
	rec, found, err := env.mgr.Record(ctx, "s2e")
	require.NoError(t, err)
	require.True(t, found)
	assert.FileExists(t, rec.StagedPath)

	state, err := env.ctl.QueryService(ctx, "s2e")
	require.NoError(t, err)
	assert.Equal(t, models.ServiceStateRunning, state)
}

func TestFileStagerOverwriteAndRemove(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	stager := NewFileStager(filepath.Join(dir, "drivers"))

	source := filepath.Join(dir, "s2e.sys")
	require.NoError(t, os.WriteFile(source, []byte("v1"), 0o644))

	staged, err := stager.Stage(ctx, source)
	require.NoError(t, err)

	// Staging again over the same destination replaces the image.
	require.NoError(t, os.WriteFile(source, []byte("v2"), 0o644))

	staged2, err := stager.Stage(ctx, source)
	require.NoError(t, err)
	assert.Equal(t, staged, staged2)

	data, err := os.ReadFile(staged)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)

	require.NoError(t, stager.Remove(ctx, staged))
	require.NoError(t, stager.Remove(ctx, staged)) // missing file is fine
}
