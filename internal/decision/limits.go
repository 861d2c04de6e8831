// File: internal/decision/limits.go
// Description: Static per-action-type execution ceilings plus the global
// resource floor checks the proactive engine applies before and during
// execution.

package decision

import (
	"fmt"
	"time"

	"github.com/kestrelhq/kestrel/api/schemas"
)

// ExecutionLimit bounds a single execution attempt of one action type.
type ExecutionLimit struct {
	MaxDuration time.Duration
	MaxCPU      float64
}

// executionLimits is the static ceiling table. Types not listed fall back to
// defaultLimit, which is deliberately tight.
var executionLimits = map[schemas.ActionType]ExecutionLimit{
	schemas.ActionExecute:     {MaxDuration: 5 * time.Minute, MaxCPU: 60},
	schemas.ActionNavigate:    {MaxDuration: 2 * time.Minute, MaxCPU: 30},
	schemas.ActionNotify:      {MaxDuration: 1 * time.Minute, MaxCPU: 20},
	schemas.ActionAnalyze:     {MaxDuration: 8 * time.Minute, MaxCPU: 70},
	schemas.ActionCommunicate: {MaxDuration: 3 * time.Minute, MaxCPU: 50},
	schemas.ActionMonitor:     {MaxDuration: 15 * time.Minute, MaxCPU: 40},
}

var defaultLimit = ExecutionLimit{MaxDuration: 1 * time.Minute, MaxCPU: 30}

// Global resource floors and ceilings that apply to every action type.
const (
	MaxMemoryPercent  = 80.0
	MinBatteryPercent = 20.0
)

// LimitFor returns the execution limit for an action type. A positive cap
// (from configuration) lowers the duration ceiling but never raises it.
func LimitFor(t schemas.ActionType, cap time.Duration) ExecutionLimit {
	limit, ok := executionLimits[t]
	if !ok {
		limit = defaultLimit
	}
	if cap > 0 && cap < limit.MaxDuration {
		limit.MaxDuration = cap
	}
	return limit
}

// CheckSnapshot validates a device-wide resource snapshot against the global
// floors. A non-empty return means execution must not start.
func CheckSnapshot(snapshot schemas.ResourceUsage, minBattery float64) []string {
	if minBattery <= 0 {
		minBattery = MinBatteryPercent
	}
	var violations []string
	if snapshot.Memory > MaxMemoryPercent {
		violations = append(violations, fmt.Sprintf("memory usage %.1f%% exceeds ceiling %.1f%%", snapshot.Memory, MaxMemoryPercent))
	}
	if snapshot.Battery < minBattery {
		violations = append(violations, fmt.Sprintf("battery level %.1f%% below floor %.1f%%", snapshot.Battery, minBattery))
	}
	return violations
}

// CheckUsage validates the usage observed for one execution attempt against
// the per-type limit.
func CheckUsage(limit ExecutionLimit, usage schemas.ResourceUsage, elapsed time.Duration) []string {
	var violations []string
	if usage.CPU > limit.MaxCPU {
		violations = append(violations, fmt.Sprintf("cpu usage %.1f%% exceeds ceiling %.1f%%", usage.CPU, limit.MaxCPU))
	}
	if elapsed > limit.MaxDuration {
		violations = append(violations, fmt.Sprintf("execution took %s, ceiling is %s", elapsed, limit.MaxDuration))
	}
	return violations
}
