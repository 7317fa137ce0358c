package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyLayout(t *testing.T) {
	assert.Equal(t, "Services/s2e", ServiceKey("s2e"))
	assert.Equal(t, "Services/s2e/Instances/", InstancesPrefix("s2e"))
	assert.Equal(t, "Services/s2e/Instances/DefaultInstance", DefaultInstanceKey("s2e"))
	assert.Equal(t, "Services/s2e/Instances/s2e Instance", InstanceKey("s2e", "s2e Instance"))
	assert.Equal(t, "Staging/s2e", StagingKey("s2e"))
	assert.Equal(t, "Altitudes/265000", AltitudeKey("265000"))
}

func TestInstanceName(t *testing.T) {
	name, ok := InstanceName("s2e", "Services/s2e/Instances/s2e Instance")
	assert.True(t, ok)
	assert.Equal(t, "s2e Instance", name)

	// The default-instance binding is not an instance spec.
	_, ok = InstanceName("s2e", "Services/s2e/Instances/DefaultInstance")
	assert.False(t, ok)

	_, ok = InstanceName("s2e", "Services/s2e")
	assert.False(t, ok)

	_, ok = InstanceName("s2e", "Services/other/Instances/x")
	assert.False(t, ok)
}
