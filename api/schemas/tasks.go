// File: api/schemas/tasks.go
package schemas

import "time"

// ScheduledTask wraps an approved action with its firing schedule. One-shot
// tasks are removed after firing; recurring tasks are re-armed with a new
// NextFire computed from their recurrence expression.
type ScheduledTask struct {
	ID     string           `json:"id"`
	Action AutonomousAction `json:"action"`

	// Delay is the one-shot offset from scheduling time. Ignored when
	// Recurrence is set.
	Delay time.Duration `json:"delay,omitempty"`

	// Recurrence is a schedule expression: either "@every <duration>" or a
	// five-field cron line (minute hour dom month dow) supporting "*", "*/n"
	// and plain numbers.
	Recurrence string `json:"recurrence,omitempty"`

	// Context carries caller-supplied execution context merged into the
	// action's parameters at fire time.
	Context map[string]interface{} `json:"context,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	NextFire  time.Time `json:"next_fire"`
}

// Recurring reports whether the task re-arms after each fire.
func (t *ScheduledTask) Recurring() bool {
	return t.Recurrence != ""
}
