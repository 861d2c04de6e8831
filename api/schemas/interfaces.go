// File: api/schemas/interfaces.go
// Description: Canonical component contracts for the decision pipeline.
// Interfaces live at the API level so that packages can depend on each other's
// behavior without importing each other's implementations.

package schemas

import (
	"context"
	"io"
	"time"
)

// Store is the process-wide key-value persistence layer. Values are opaque
// JSON blobs; keys are slash-separated namespaces ("proactive/tasks",
// "privacy/optout/<user>"). Implementations must be safe for concurrent use.
type Store interface {
	// Init prepares the backend (connects, creates schema) and must be called
	// before any other method.
	Init(ctx context.Context) error
	Close(ctx context.Context) error

	// Get returns the value and whether the key existed.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	// Keys lists all keys with the given prefix in ascending lexical order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// LLMClient is the single capability the pipeline consumes from an external
// language model. A nil client is a valid configuration; every consumer must
// degrade to its deterministic path when no client is present.
type LLMClient interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// PermissionProvider reports the grant status of a permission as known to the
// host platform.
type PermissionProvider interface {
	PermissionStatus(ctx context.Context, p PermissionType) PermissionStatus
}

// Notifier delivers an approval prompt for an action and blocks until the
// user responds or ctx expires. Callers enforce the timeout through ctx and
// treat expiry as denial.
type Notifier interface {
	ShowApprovalPrompt(ctx context.Context, action AutonomousAction) (bool, error)
}

// ResourceMonitor supplies resource availability and per-execution usage.
// The shipped implementation simulates measurements deterministically; a
// production build substitutes real sampling behind the same interface.
type ResourceMonitor interface {
	// Snapshot returns the current device-wide usage levels.
	Snapshot(ctx context.Context) ResourceUsage
	// UsageFor estimates/observes the usage of executing one action type.
	UsageFor(ctx context.Context, t ActionType) ResourceUsage
}

// AuditLog is the append-only, tamper-evident record of pipeline activity.
type AuditLog interface {
	Append(ctx context.Context, stage AuditStage, refID, userID string, detail map[string]interface{}) (AuditRecord, error)
	Records(ctx context.Context) ([]AuditRecord, error)
	// Verify walks the hash chain and returns an error at the first broken
	// link.
	Verify(ctx context.Context) error
	// Prune removes records older than the cutoff and returns how many were
	// dropped. The chain is re-anchored at the oldest surviving record.
	Prune(ctx context.Context, before time.Time) (int, error)
	Export(ctx context.Context, w io.Writer) error
	Stats(ctx context.Context) (AuditStats, error)
}

// ContextAnalyzer converts raw context data into a ContextAnalysis. It never
// returns an error for malformed input; internal failures surface as a
// non-compliant analysis so callers can always branch on the result.
type ContextAnalyzer interface {
	AnalyzeContext(ctx context.Context, contextData map[string]interface{}, userID string) ContextAnalysis
}

// IntentRecognizer converts free-text input, optionally informed by a context
// analysis, into a recognition result.
type IntentRecognizer interface {
	RecognizeIntent(ctx context.Context, input string, analysis *ContextAnalysis, userID string) IntentRecognitionResult
}

// DecisionEngine derives an autonomous action from an intent and its context.
type DecisionEngine interface {
	GenerateAction(ctx context.Context, intent UserIntent, analysis *ContextAnalysis, userID string) (AutonomousAction, error)
}
