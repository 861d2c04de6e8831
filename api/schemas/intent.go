// File: api/schemas/intent.go
package schemas

import "time"

// IntentType classifies what the user is asking for. The recognizer returns
// IntentUnknown on a classification tie or when no pattern matches.
type IntentType string

const (
	IntentAction        IntentType = "ACTION"
	IntentQuery         IntentType = "QUERY"
	IntentConfiguration IntentType = "CONFIGURATION"
	IntentFeedback      IntentType = "FEEDBACK"
	IntentNavigation    IntentType = "NAVIGATION"
	IntentCommunication IntentType = "COMMUNICATION"
	IntentAnalysis      IntentType = "ANALYSIS"
	IntentCreation      IntentType = "CREATION"
	IntentMonitoring    IntentType = "MONITORING"
	IntentUnknown       IntentType = "UNKNOWN"
)

// UserIntent is the structured classification of a single free-text input.
type UserIntent struct {
	ID            string     `json:"id"`
	Timestamp     time.Time  `json:"timestamp"`
	OriginalInput string     `json:"original_input"`
	Type          IntentType `json:"intent_type"`

	// SpecificIntent is a finer-grained label such as "communication.call",
	// empty when only the coarse type could be determined.
	SpecificIntent string `json:"specific_intent,omitempty"`

	Parameters map[string]interface{} `json:"parameters,omitempty"`

	ConfidenceScore float64         `json:"confidence_score"`
	ConfidenceLevel ConfidenceLevel `json:"confidence_level"`

	RequiredPermissions []PermissionType `json:"required_permissions"`

	IsCompliant      bool     `json:"is_compliant"`
	ComplianceIssues []string `json:"compliance_issues,omitempty"`

	UserID string `json:"user_id,omitempty"`
}

// IntentRecognitionResult bundles a recognized intent with the outcome of the
// bias tests that ran against it.
type IntentRecognitionResult struct {
	Intent       UserIntent         `json:"intent"`
	BiasScores   map[string]float64 `json:"bias_scores"`
	BiasWarnings []string           `json:"bias_warnings,omitempty"`
}
