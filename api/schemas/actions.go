// File: api/schemas/actions.go
package schemas

import "time"

// ActionType enumerates the concrete kinds of work an autonomous action can
// represent.
type ActionType string

const (
	ActionExecute      ActionType = "EXECUTE"
	ActionNavigate     ActionType = "NAVIGATE"
	ActionNotify       ActionType = "NOTIFY"
	ActionCollect      ActionType = "COLLECT"
	ActionAnalyze      ActionType = "ANALYZE"
	ActionStore        ActionType = "STORE"
	ActionRetrieve     ActionType = "RETRIEVE"
	ActionConfigure    ActionType = "CONFIGURE"
	ActionCommunicate  ActionType = "COMMUNICATE"
	ActionMonitor      ActionType = "MONITOR"
	ActionRequestInput ActionType = "REQUEST_INPUT"
	ActionDisplay      ActionType = "DISPLAY"
	ActionCreation     ActionType = "CREATION"
	ActionUnknown      ActionType = "UNKNOWN"
)

// RiskLevel is an ordered bucket derived from the continuous risk score.
type RiskLevel string

const (
	RiskNone     RiskLevel = "NONE"
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// riskOrder gives RiskLevel its total ordering.
var riskOrder = map[RiskLevel]int{
	RiskNone:     0,
	RiskLow:      1,
	RiskMedium:   2,
	RiskHigh:     3,
	RiskCritical: 4,
}

// Severity returns the ordinal rank of the risk level. Unknown values rank as
// critical so that a corrupt level can never slip past a threshold gate.
func (r RiskLevel) Severity() int {
	if s, ok := riskOrder[r]; ok {
		return s
	}
	return riskOrder[RiskCritical]
}

// AtLeast reports whether r is at or above the given threshold.
func (r RiskLevel) AtLeast(threshold RiskLevel) bool {
	return r.Severity() >= threshold.Severity()
}

// BucketRisk maps a continuous risk score to its RiskLevel per the fixed
// thresholds of the scoring algorithm.
func BucketRisk(score float64) RiskLevel {
	switch {
	case score >= 0.8:
		return RiskCritical
	case score >= 0.6:
		return RiskHigh
	case score >= 0.4:
		return RiskMedium
	case score >= 0.2:
		return RiskLow
	default:
		return RiskNone
	}
}

// ActionStatus is the action's position in its lifecycle state machine:
//
//	created -> blocked                               (compliance failure, terminal)
//	created -> pending_approval -> approved -> executing
//	created -> pending_approval -> denied            (terminal)
//	created -> executing                             (no approval required)
//	executing -> completed | failed
//	any non-terminal -> cancelled
type ActionStatus string

const (
	StatusCreated         ActionStatus = "CREATED"
	StatusBlocked         ActionStatus = "BLOCKED"
	StatusPendingApproval ActionStatus = "PENDING_APPROVAL"
	StatusApproved        ActionStatus = "APPROVED"
	StatusDenied          ActionStatus = "DENIED"
	StatusExecuting       ActionStatus = "EXECUTING"
	StatusCompleted       ActionStatus = "COMPLETED"
	StatusFailed          ActionStatus = "FAILED"
	StatusCancelled       ActionStatus = "CANCELLED"
)

// validTransitions encodes the legal edges of the action state machine.
var validTransitions = map[ActionStatus][]ActionStatus{
	StatusCreated:         {StatusBlocked, StatusPendingApproval, StatusExecuting, StatusCancelled},
	StatusPendingApproval: {StatusApproved, StatusDenied, StatusCancelled},
	StatusApproved:        {StatusExecuting, StatusCancelled},
	StatusExecuting:       {StatusCompleted, StatusFailed, StatusCancelled},
}

// Terminal reports whether no further transitions are permitted.
func (s ActionStatus) Terminal() bool {
	switch s {
	case StatusBlocked, StatusDenied, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal edge of the
// state machine.
func (s ActionStatus) CanTransition(next ActionStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AutonomousAction is a concrete, risk-scored, permission-bound unit of work
// the system may perform without further user input. It is owned by the
// decision engine until scheduled; the proactive engine owns it during
// execution; terminal actions survive only in the audit log.
type AutonomousAction struct {
	ID          string     `json:"id"`
	Timestamp   time.Time  `json:"timestamp"`
	Type        ActionType `json:"action_type"`
	Description string     `json:"description"`

	Parameters          map[string]interface{} `json:"parameters,omitempty"`
	RequiredPermissions []PermissionType       `json:"required_permissions"`

	// RiskScore is the continuous score the RiskLevel bucket was derived from.
	RiskScore float64   `json:"risk_score"`
	RiskLevel RiskLevel `json:"risk_level"`

	Status ActionStatus `json:"status"`

	UserApproved         bool `json:"user_approved"`
	RequiresUserApproval bool `json:"requires_user_approval"`

	EstimatedDuration time.Duration `json:"estimated_duration,omitempty"`
	ExecutionDuration time.Duration `json:"execution_duration,omitempty"`

	Result       string `json:"result,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	IsCompliant      bool     `json:"is_compliant"`
	ComplianceIssues []string `json:"compliance_issues,omitempty"`

	UserID string `json:"user_id,omitempty"`
}

// Executable reports whether the action satisfies the invariant required to
// enter the executing state: compliant and either pre-approved or not needing
// approval at all.
func (a *AutonomousAction) Executable() bool {
	return a.IsCompliant && (!a.RequiresUserApproval || a.UserApproved)
}

// ResourceUsage is a snapshot of consumption percentages observed during one
// execution attempt.
type ResourceUsage struct {
	CPU     float64 `json:"cpu"`
	Memory  float64 `json:"memory"`
	Network float64 `json:"network"`
	Storage float64 `json:"storage"`
	Battery float64 `json:"battery"`
}

// ActionExecutionResult wraps an action with the resource usage observed while
// it ran. Created once per execution attempt, never mutated.
type ActionExecutionResult struct {
	Action              AutonomousAction `json:"action"`
	ResourceUsage       ResourceUsage    `json:"resource_usage"`
	IsSuccess           bool             `json:"is_success"`
	WithinResourceLimit bool             `json:"within_resource_limits"`
	Warnings            []string         `json:"warnings,omitempty"`
}
