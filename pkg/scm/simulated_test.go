package scm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberhaven/fltsetup/pkg/models"
)

func driverDescriptor(name string) *models.ServiceDescriptor {
	return &models.ServiceDescriptor{
		Name:         name,
		BinaryPath:   `C:\drivers\` + name + `.sys`,
		ServiceType:  models.ServiceTypeFileSystemDriver,
		StartType:    models.StartTypeManual,
		ErrorControl: models.ErrorControlNormal,
	}
}

func TestSimulatedLifecycle(t *testing.T) {
	ctx := context.Background()
	mgr := NewSimulatedManager()

	require.NoError(t, mgr.CreateService(ctx, driverDescriptor("s2e")))
	assert.ErrorIs(t, mgr.CreateService(ctx, driverDescriptor("s2e")), ErrServiceExists)

	state, err := mgr.QueryService(ctx, "s2e")
	require.NoError(t, err)
	assert.Equal(t, models.ServiceStateStopped, state)

	require.NoError(t, mgr.StartService(ctx, "s2e"))

	state, err = mgr.QueryService(ctx, "s2e")
	require.NoError(t, err)
	assert.Equal(t, models.ServiceStateRunning, state)

	require.NoError(t, mgr.StopService(ctx, "s2e", time.Second))
	require.NoError(t, mgr.StopService(ctx, "s2e", time.Second)) // already stopped

	require.NoError(t, mgr.DeleteService(ctx, "s2e"))
	assert.ErrorIs(t, mgr.DeleteService(ctx, "s2e"), ErrServiceNotFound)

	_, err = mgr.QueryService(ctx, "s2e")
	assert.ErrorIs(t, err, ErrServiceNotFound)
}

func TestSimulatedStopBusy(t *testing.T) {
	ctx := context.Background()
	mgr := NewSimulatedManager()

	require.NoError(t, mgr.CreateService(ctx, driverDescriptor("s2e")))
	require.NoError(t, mgr.StartService(ctx, "s2e"))
	mgr.SetBusy("s2e", true)

	err := mgr.StopService(ctx, "s2e", 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrServiceBusy)

	// The busy service is still running and cannot be deleted.
	state, err := mgr.QueryService(ctx, "s2e")
	require.NoError(t, err)
	assert.Equal(t, models.ServiceStateRunning, state)
	assert.ErrorIs(t, mgr.DeleteService(ctx, "s2e"), ErrServiceNotStopped)

	mgr.SetBusy("s2e", false)
	require.NoError(t, mgr.StopService(ctx, "s2e", time.Second))
	require.NoError(t, mgr.DeleteService(ctx, "s2e"))
}

func TestSimulatedStopLatency(t *testing.T) {
	ctx := context.Background()
	mgr := NewSimulatedManager()

	require.NoError(t, mgr.CreateService(ctx, driverDescriptor("s2e")))
	require.NoError(t, mgr.StartService(ctx, "s2e"))

	mgr.SetStopLatency("s2e", time.Hour)
	assert.ErrorIs(t, mgr.StopService(ctx, "s2e", 10*time.Millisecond), ErrServiceBusy)

	mgr.SetStopLatency("s2e", 5*time.Millisecond)
	require.NoError(t, mgr.StopService(ctx, "s2e", time.Second))

	state, err := mgr.QueryService(ctx, "s2e")
	require.NoError(t, err)
	assert.Equal(t, models.ServiceStateStopped, state)
}

func TestSimulatedStopUnknown(t *testing.T) {
	mgr := NewSimulatedManager()
	assert.ErrorIs(t, mgr.StopService(context.Background(), "ghost", time.Second), ErrServiceNotFound)
	assert.ErrorIs(t, mgr.StartService(context.Background(), "ghost"), ErrServiceNotFound)
}
