package resource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kestrelhq/kestrel/api/schemas"
)

func TestSimulated_SnapshotDeterministicWithoutSeed(t *testing.T) {
	m := NewSimulated(nil, 0)
	ctx := context.Background()

	first := m.Snapshot(ctx)
	second := m.Snapshot(ctx)
	assert.Equal(t, first, second)
	assert.Equal(t, 100.0, first.Battery)
}

func TestSimulated_SeededJitter(t *testing.T) {
	m := NewSimulated(nil, 42)

	usage := m.UsageFor(context.Background(), schemas.ActionNotify)
	base := usageTable[schemas.ActionNotify]
	assert.GreaterOrEqual(t, usage.CPU, base.CPU)
	assert.Less(t, usage.CPU, base.CPU+3.0)
}

func TestSimulated_SetBatteryClamps(t *testing.T) {
	m := NewSimulated(nil, 0)
	ctx := context.Background()

	m.SetBattery(150)
	assert.Equal(t, 100.0, m.Snapshot(ctx).Battery)

	m.SetBattery(-10)
	assert.Equal(t, 0.0, m.Snapshot(ctx).Battery)

	m.SetBattery(42.5)
	assert.Equal(t, 42.5, m.Snapshot(ctx).Battery)
}

func TestSimulated_UsageFor(t *testing.T) {
	m := NewSimulated(nil, 0)
	ctx := context.Background()
	m.SetBattery(63)

	t.Run("known type", func(t *testing.T) {
		usage := m.UsageFor(ctx, schemas.ActionAnalyze)
		assert.Equal(t, 55.0, usage.CPU)
		assert.Equal(t, 63.0, usage.Battery, "battery reflects the current level, not the table")
	})

	t.Run("unlisted type falls back to unknown", func(t *testing.T) {
		usage := m.UsageFor(ctx, schemas.ActionType("TELEPORT"))
		expected := usageTable[schemas.ActionUnknown]
		assert.Equal(t, expected.CPU, usage.CPU)
		assert.Equal(t, expected.Memory, usage.Memory)
	})
}

func TestPowerIntensive(t *testing.T) {
	assert.True(t, PowerIntensive(schemas.ActionExecute))
	assert.True(t, PowerIntensive(schemas.ActionMonitor))
	assert.False(t, PowerIntensive(schemas.ActionNotify))
	assert.False(t, PowerIntensive(schemas.ActionNavigate))
}
