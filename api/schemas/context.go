// File: api/schemas/context.go
package schemas

import "time"

// ContextAnalysis is a privacy-filtered, permission-tagged snapshot of
// environmental and user data used as decision input. An analysis is immutable
// once created; a newer analysis supersedes it, it is never mutated in place.
type ContextAnalysis struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	// ContextData is the raw input the analysis was derived from. It is kept
	// for cache keying and diagnostics and never leaves the process.
	ContextData map[string]interface{} `json:"context_data"`

	RequiredPermissions []PermissionType `json:"required_permissions"`
	GrantedPermissions  []PermissionType `json:"granted_permissions"`
	DeniedPermissions   []PermissionType `json:"denied_permissions"`

	// ConfidenceScore expresses how complete and trustworthy the snapshot is,
	// in [0,1].
	ConfidenceScore float64 `json:"confidence_score"`

	// AnonymizedData is the minimized view with sensitive keys redacted. Only
	// this map may be merged into downstream actions.
	AnonymizedData map[string]interface{} `json:"anonymized_data"`

	UserID           string   `json:"user_id,omitempty"`
	IsCompliant      bool     `json:"is_compliant"`
	ComplianceIssues []string `json:"compliance_issues,omitempty"`

	// AIInsights holds qualitative findings merged in by the AI-enhanced
	// analyzer. Empty when the rule-based path produced the analysis.
	AIInsights map[string]string `json:"ai_insights,omitempty"`
}

// ConfidenceLevel buckets a continuous confidence score for display and
// coarse-grained branching.
type ConfidenceLevel string

const (
	ConfidenceVeryLow  ConfidenceLevel = "VERY_LOW"
	ConfidenceLow      ConfidenceLevel = "LOW"
	ConfidenceModerate ConfidenceLevel = "MODERATE"
	ConfidenceHigh     ConfidenceLevel = "HIGH"
	ConfidenceVeryHigh ConfidenceLevel = "VERY_HIGH"
)

// BucketConfidence maps a score in [0,1] to its ConfidenceLevel.
func BucketConfidence(score float64) ConfidenceLevel {
	switch {
	case score >= 0.8:
		return ConfidenceVeryHigh
	case score >= 0.6:
		return ConfidenceHigh
	case score >= 0.4:
		return ConfidenceModerate
	case score >= 0.2:
		return ConfidenceLow
	default:
		return ConfidenceVeryLow
	}
}
