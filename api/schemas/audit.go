// File: api/schemas/audit.go
package schemas

import "time"

// AuditStage names the pipeline event an audit record describes.
type AuditStage string

const (
	AuditIntentRecognized AuditStage = "INTENT_RECOGNIZED"
	AuditActionGenerated  AuditStage = "ACTION_GENERATED"
	AuditActionBlocked    AuditStage = "ACTION_BLOCKED"
	AuditActionScheduled  AuditStage = "ACTION_SCHEDULED"
	AuditActionExecuted   AuditStage = "ACTION_EXECUTED"
	AuditActionFailed     AuditStage = "ACTION_FAILED"
	AuditActionCancelled  AuditStage = "ACTION_CANCELLED"
	AuditContextAnalyzed  AuditStage = "CONTEXT_ANALYZED"
)

// AuditRecord is one immutable entry in the append-only audit log. Hash is a
// SHA-256 over the previous record's hash and this record's canonical JSON,
// forming a tamper-evident chain.
type AuditRecord struct {
	ID        string     `json:"id"`
	Sequence  uint64     `json:"sequence"`
	Timestamp time.Time  `json:"timestamp"`
	Stage     AuditStage `json:"stage"`

	// RefID points at the intent, analysis or action the record concerns.
	RefID  string `json:"ref_id,omitempty"`
	UserID string `json:"user_id,omitempty"`

	Detail map[string]interface{} `json:"detail,omitempty"`

	PrevHash string `json:"prev_hash"`
	Hash     string `json:"hash"`
}

// AuditStats aggregates the log for reporting and compliance evidence.
type AuditStats struct {
	Total    int                `json:"total"`
	ByStage  map[AuditStage]int `json:"by_stage"`
	Earliest time.Time          `json:"earliest,omitempty"`
	Latest   time.Time          `json:"latest,omitempty"`
}
