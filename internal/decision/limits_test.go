package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kestrelhq/kestrel/api/schemas"
)

func TestLimitFor(t *testing.T) {
	t.Run("known type", func(t *testing.T) {
		limit := LimitFor(schemas.ActionAnalyze, 0)
		assert.Equal(t, 8*time.Minute, limit.MaxDuration)
		assert.Equal(t, 70.0, limit.MaxCPU)
	})

	t.Run("unlisted type gets the default", func(t *testing.T) {
		limit := LimitFor(schemas.ActionDisplay, 0)
		assert.Equal(t, time.Minute, limit.MaxDuration)
		assert.Equal(t, 30.0, limit.MaxCPU)
	})

	t.Run("cap lowers the ceiling", func(t *testing.T) {
		limit := LimitFor(schemas.ActionMonitor, 5*time.Minute)
		assert.Equal(t, 5*time.Minute, limit.MaxDuration)
	})

	t.Run("cap never raises the ceiling", func(t *testing.T) {
		limit := LimitFor(schemas.ActionNotify, time.Hour)
		assert.Equal(t, time.Minute, limit.MaxDuration)
	})
}

func TestCheckSnapshot(t *testing.T) {
	t.Run("healthy device", func(t *testing.T) {
		usage := schemas.ResourceUsage{Memory: 40, Battery: 90}
		assert.Empty(t, CheckSnapshot(usage, 0))
	})

	t.Run("memory ceiling", func(t *testing.T) {
		usage := schemas.ResourceUsage{Memory: 81, Battery: 90}
		violations := CheckSnapshot(usage, 0)
		assert.Len(t, violations, 1)
		assert.Contains(t, violations[0], "memory usage")
	})

	t.Run("battery floor defaults when unset", func(t *testing.T) {
		usage := schemas.ResourceUsage{Memory: 40, Battery: 19}
		violations := CheckSnapshot(usage, 0)
		assert.Len(t, violations, 1)
		assert.Contains(t, violations[0], "battery level")
	})

	t.Run("custom battery floor", func(t *testing.T) {
		usage := schemas.ResourceUsage{Memory: 40, Battery: 45}
		assert.Empty(t, CheckSnapshot(usage, 30))
		assert.NotEmpty(t, CheckSnapshot(usage, 50))
	})

	t.Run("both violations reported", func(t *testing.T) {
		usage := schemas.ResourceUsage{Memory: 95, Battery: 5}
		assert.Len(t, CheckSnapshot(usage, 0), 2)
	})
}

func TestCheckUsage(t *testing.T) {
	limit := ExecutionLimit{MaxDuration: time.Minute, MaxCPU: 30}

	t.Run("within limits", func(t *testing.T) {
		usage := schemas.ResourceUsage{CPU: 25}
		assert.Empty(t, CheckUsage(limit, usage, 30*time.Second))
	})

	t.Run("cpu ceiling", func(t *testing.T) {
		usage := schemas.ResourceUsage{CPU: 55}
		violations := CheckUsage(limit, usage, 30*time.Second)
		assert.Len(t, violations, 1)
		assert.Contains(t, violations[0], "cpu usage")
	})

	t.Run("duration ceiling", func(t *testing.T) {
		usage := schemas.ResourceUsage{CPU: 10}
		violations := CheckUsage(limit, usage, 2*time.Minute)
		assert.Len(t, violations, 1)
		assert.Contains(t, violations[0], "execution took")
	})
}
