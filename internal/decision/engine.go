// File: internal/decision/engine.go
// Description: Derives risk-scored, permission-bound autonomous actions from
// recognized intents, enforcing the daily action ceiling and static policy.

package decision

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/kestrelhq/kestrel/api/schemas"
	"github.com/kestrelhq/kestrel/internal/cache"
	"github.com/kestrelhq/kestrel/internal/config"
	"github.com/kestrelhq/kestrel/internal/policy"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const dailyCounterKey = "decision/daily_counter"

// intentActionMap is the fixed IntentType -> ActionType table.
var intentActionMap = map[schemas.IntentType]schemas.ActionType{
	schemas.IntentAction:        schemas.ActionExecute,
	schemas.IntentQuery:         schemas.ActionAnalyze,
	schemas.IntentConfiguration: schemas.ActionConfigure,
	schemas.IntentFeedback:      schemas.ActionStore,
	schemas.IntentNavigation:    schemas.ActionNavigate,
	schemas.IntentCommunication: schemas.ActionCommunicate,
	schemas.IntentAnalysis:      schemas.ActionAnalyze,
	schemas.IntentCreation:      schemas.ActionCreation,
	schemas.IntentMonitoring:    schemas.ActionMonitor,
	schemas.IntentUnknown:       schemas.ActionUnknown,
}

// actionPermissions is the per-action-type half of the permission table; the
// parameter-driven half lives in permissionsFor.
var actionPermissions = map[schemas.ActionType][]schemas.PermissionType{
	schemas.ActionNavigate:    {schemas.PermissionLocation},
	schemas.ActionNotify:      {schemas.PermissionNotifications},
	schemas.ActionCollect:     {schemas.PermissionStorage},
	schemas.ActionStore:       {schemas.PermissionStorage},
	schemas.ActionRetrieve:    {schemas.PermissionStorage},
	schemas.ActionConfigure:   {schemas.PermissionSystemSettings},
	schemas.ActionCommunicate: {schemas.PermissionContacts},
	schemas.ActionMonitor:     {schemas.PermissionNotifications},
	schemas.ActionCreation:    {schemas.PermissionStorage},
}

// riskBase is the per-action-type starting increment of the risk score.
var riskBase = map[schemas.ActionType]float64{
	schemas.ActionCommunicate:  0.5,
	schemas.ActionConfigure:    0.4,
	schemas.ActionCollect:      0.4,
	schemas.ActionExecute:      0.3,
	schemas.ActionStore:        0.3,
	schemas.ActionAnalyze:      0.2,
	schemas.ActionNotify:       0.2,
	schemas.ActionMonitor:      0.2,
	schemas.ActionNavigate:     0.1,
	schemas.ActionRequestInput: 0.1,
	schemas.ActionDisplay:      0.1,
	schemas.ActionRetrieve:     0.2,
	schemas.ActionCreation:     0.3,
	schemas.ActionUnknown:      0.8,
}

// highRiskLexicon forces an approval prompt when the action description
// mentions any of these operations, whatever the computed risk says.
var highRiskLexicon = []string{
	"delete", "remove", "erase", "format", "reset",
	"purchase", "pay", "share", "publish", "upload",
	"broadcast", "transfer", "wipe", "uninstall",
}

// Engine implements schemas.DecisionEngine.
type Engine struct {
	cfg    config.DecisionConfig
	logger *zap.Logger
	store  schemas.Store
	perms  schemas.PermissionProvider
	audit  schemas.AuditLog

	cache *cache.TTL[schemas.AutonomousAction]

	// counterMu is the single-writer guard for the daily counter's
	// read-modify-write cycle.
	counterMu sync.Mutex

	now func() time.Time
}

// New creates a decision engine. Store and permission provider are required.
func New(cfg config.DecisionConfig, st schemas.Store, perms schemas.PermissionProvider, auditLog schemas.AuditLog, logger *zap.Logger) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if perms == nil {
		return nil, fmt.Errorf("permission provider cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:    cfg,
		logger: logger.Named("decision_engine"),
		store:  st,
		perms:  perms,
		audit:  auditLog,
		cache:  cache.NewTTL[schemas.AutonomousAction](10 * time.Minute),
		now:    time.Now,
	}, nil
}

// GenerateAction implements schemas.DecisionEngine.
func (e *Engine) GenerateAction(ctx context.Context, intent schemas.UserIntent, analysis *schemas.ContextAnalysis, userID string) (schemas.AutonomousAction, error) {
	// Cached decisions do not consume daily budget; the ceiling bounds fresh
	// decisions, not repeated lookups of the same one.
	key := cache.Key(intent.ID, userID)
	if action, ok := e.cache.Get(key); ok {
		e.logger.Debug("Decision cache hit", zap.String("action_id", action.ID))
		return action, nil
	}

	count, err := e.bumpDailyCounter(ctx)
	if err != nil {
		return schemas.AutonomousAction{}, fmt.Errorf("failed to update daily action counter: %w", err)
	}
	if count > e.cfg.MaxDailyActions {
		action := e.blockedByCeiling(intent, userID)
		e.auditAction(ctx, schemas.AuditActionBlocked, action)
		return action, nil
	}

	actionType := intentActionMap[intent.Type]
	if actionType == "" {
		actionType = schemas.ActionUnknown
	}

	action := schemas.AutonomousAction{
		ID:          uuid.NewString(),
		Timestamp:   e.now().UTC(),
		Type:        actionType,
		Description: describe(actionType, intent),
		Parameters:  mergeParameters(intent, analysis),
		Status:      schemas.StatusCreated,
		UserID:      userID,
		IsCompliant: true,
	}
	action.RequiredPermissions = permissionsFor(actionType, action.Parameters, intent.RequiredPermissions)
	action.EstimatedDuration = LimitFor(actionType, e.cfg.MaxExecutionDuration).MaxDuration

	action.RiskScore = scoreRisk(actionType, action.RequiredPermissions, intent, analysis)
	action.RiskLevel = schemas.BucketRisk(action.RiskScore)

	action.RequiresUserApproval = e.requiresApproval(action)

	if issues := e.complianceIssues(ctx, action, intent, analysis); len(issues) > 0 {
		action.IsCompliant = false
		action.ComplianceIssues = issues
		action.Status = schemas.StatusBlocked
	} else if action.RequiresUserApproval {
		action.Status = schemas.StatusPendingApproval
	}

	e.cache.Put(key, action)

	stage := schemas.AuditActionGenerated
	if action.Status == schemas.StatusBlocked {
		stage = schemas.AuditActionBlocked
	}
	e.auditAction(ctx, stage, action)

	e.logger.Info("Generated autonomous action",
		zap.String("action_id", action.ID),
		zap.String("action_type", string(action.Type)),
		zap.Float64("risk_score", action.RiskScore),
		zap.String("risk_level", string(action.RiskLevel)),
		zap.String("status", string(action.Status)))
	return action, nil
}

// blockedByCeiling is the terminal answer once the daily budget is spent.
func (e *Engine) blockedByCeiling(intent schemas.UserIntent, userID string) schemas.AutonomousAction {
	return schemas.AutonomousAction{
		ID:          uuid.NewString(),
		Timestamp:   e.now().UTC(),
		Type:        schemas.ActionUnknown,
		Description: "Blocked: daily autonomous action limit reached",
		Status:      schemas.StatusBlocked,
		RiskScore:   1.0,
		RiskLevel:   schemas.RiskCritical,
		IsCompliant: false,
		ComplianceIssues: []string{
			fmt.Sprintf("daily action limit of %d reached", e.cfg.MaxDailyActions),
		},
		UserID: userID,
		Parameters: map[string]interface{}{
			"source_intent_id": intent.ID,
		},
	}
}

// describe synthesizes the human-readable description shown in approval
// prompts and the audit trail.
func describe(t schemas.ActionType, intent schemas.UserIntent) string {
	subject := intent.SpecificIntent
	if subject == "" {
		subject = strings.ToLower(string(intent.Type))
	}
	return fmt.Sprintf("%s action for %s: %q", strings.ToLower(string(t)), subject, intent.OriginalInput)
}

// mergeParameters combines intent parameters with the relevant anonymized
// context fields. Intent parameters win on key collisions.
func mergeParameters(intent schemas.UserIntent, analysis *schemas.ContextAnalysis) map[string]interface{} {
	merged := make(map[string]interface{}, len(intent.Parameters)+2)
	if analysis != nil {
		for _, field := range []string{"location", "timestamp"} {
			if v, ok := analysis.AnonymizedData[field]; ok {
				merged[field] = v
			}
		}
	}
	for k, v := range intent.Parameters {
		merged[k] = v
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}

// permissionsFor resolves the action-type x parameter permission table and
// folds in the permissions the intent already required.
func permissionsFor(t schemas.ActionType, params map[string]interface{}, inherited []schemas.PermissionType) []schemas.PermissionType {
	perms := append([]schemas.PermissionType(nil), actionPermissions[t]...)
	if _, ok := params["location"]; ok {
		perms = append(perms, schemas.PermissionLocation)
	}
	if _, ok := params["time"]; ok {
		perms = append(perms, schemas.PermissionCalendar)
	}
	if _, ok := params["date"]; ok {
		perms = append(perms, schemas.PermissionCalendar)
	}
	perms = append(perms, inherited...)
	return policy.Dedupe(perms)
}

// scoreRisk implements the fixed risk-scoring algorithm. The score is
// continuous and monotone in each input; bucketing happens afterwards.
func scoreRisk(t schemas.ActionType, perms []schemas.PermissionType, intent schemas.UserIntent, analysis *schemas.ContextAnalysis) float64 {
	score, ok := riskBase[t]
	if !ok {
		score = riskBase[schemas.ActionUnknown]
	}
	// The two permission penalties stack: a permission that is both
	// prohibited and justification-bearing contributes 1.5.
	for _, p := range perms {
		if p.ProhibitedForAutonomous() {
			score += 1.0
		}
		if p.RequiresSpecialJustification() {
			score += 0.5
		}
	}
	switch {
	case intent.ConfidenceScore < 0.5:
		score += 0.3
	case intent.ConfidenceScore < 0.7:
		score += 0.1
	}
	if analysis != nil && !analysis.IsCompliant {
		score += 0.4
	}
	return score
}

// requiresApproval applies the three approval triggers: risk threshold,
// prohibited permissions, high-risk vocabulary in the description.
func (e *Engine) requiresApproval(action schemas.AutonomousAction) bool {
	if action.RiskLevel.AtLeast(e.cfg.ApprovalThreshold()) {
		return true
	}
	if len(policy.Prohibited(action.RequiredPermissions)) > 0 {
		return true
	}
	desc := strings.ToLower(action.Description)
	for _, word := range highRiskLexicon {
		if strings.Contains(desc, word) {
			return true
		}
	}
	return false
}

// complianceIssues gathers every reason the action must be blocked.
func (e *Engine) complianceIssues(ctx context.Context, action schemas.AutonomousAction, intent schemas.UserIntent, analysis *schemas.ContextAnalysis) []string {
	var issues []string
	for _, p := range policy.Prohibited(action.RequiredPermissions) {
		issues = append(issues, "required permission is prohibited for autonomous use: "+p.Attributes().DisplayName)
	}
	for _, p := range policy.NotGranted(ctx, e.perms, action.RequiredPermissions) {
		if p.ProhibitedForAutonomous() {
			continue // already reported above
		}
		issues = append(issues, "required permission is not granted: "+p.Attributes().DisplayName)
	}
	if analysis != nil && !analysis.IsCompliant {
		issues = append(issues, "context analysis is non-compliant")
	}
	if !intent.IsCompliant {
		issues = append(issues, "derived from a non-compliant intent")
	}
	return issues
}

// ValidateAction re-runs the policy and permission checks against an existing
// action. The proactive engine calls this before scheduling work it did not
// generate itself.
func (e *Engine) ValidateAction(ctx context.Context, action schemas.AutonomousAction) []string {
	var issues []string
	for _, p := range policy.Prohibited(action.RequiredPermissions) {
		issues = append(issues, "required permission is prohibited for autonomous use: "+p.Attributes().DisplayName)
	}
	for _, p := range policy.NotGranted(ctx, e.perms, action.RequiredPermissions) {
		if p.ProhibitedForAutonomous() {
			continue
		}
		issues = append(issues, "required permission is not granted: "+p.Attributes().DisplayName)
	}
	if !action.IsCompliant {
		issues = append(issues, "action is marked non-compliant")
	}
	return issues
}

// -- Daily counter --

type dailyCounter struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// bumpDailyCounter atomically increments today's counter and returns the new
// value. The date rolls at the local calendar-day boundary.
func (e *Engine) bumpDailyCounter(ctx context.Context) (int, error) {
	e.counterMu.Lock()
	defer e.counterMu.Unlock()

	today := e.now().Format("2006-01-02")

	var counter dailyCounter
	raw, ok, err := e.store.Get(ctx, dailyCounterKey)
	if err != nil {
		return 0, err
	}
	if ok {
		if err := json.Unmarshal(raw, &counter); err != nil {
			return 0, fmt.Errorf("corrupt daily counter record: %w", err)
		}
	}
	if counter.Date != today {
		counter = dailyCounter{Date: today}
	}
	counter.Count++

	raw, err = json.Marshal(counter)
	if err != nil {
		return 0, err
	}
	if err := e.store.Set(ctx, dailyCounterKey, raw); err != nil {
		return 0, err
	}
	return counter.Count, nil
}

// DailyRemaining reports how many actions the current day's budget still
// allows.
func (e *Engine) DailyRemaining(ctx context.Context) (int, error) {
	e.counterMu.Lock()
	defer e.counterMu.Unlock()

	today := e.now().Format("2006-01-02")

	raw, ok, err := e.store.Get(ctx, dailyCounterKey)
	if err != nil {
		return 0, err
	}
	if !ok {
		return e.cfg.MaxDailyActions, nil
	}
	var counter dailyCounter
	if err := json.Unmarshal(raw, &counter); err != nil {
		return 0, fmt.Errorf("corrupt daily counter record: %w", err)
	}
	if counter.Date != today {
		return e.cfg.MaxDailyActions, nil
	}
	remaining := e.cfg.MaxDailyActions - counter.Count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// RecordExecution consumes one unit of daily budget for an execution that did
// not come through GenerateAction on the same day.
func (e *Engine) RecordExecution(ctx context.Context) error {
	_, err := e.bumpDailyCounter(ctx)
	return err
}

// MaxExecutionDuration exposes the configured global duration cap.
func (e *Engine) MaxExecutionDuration() time.Duration {
	return e.cfg.MaxExecutionDuration
}

func (e *Engine) auditAction(ctx context.Context, stage schemas.AuditStage, action schemas.AutonomousAction) {
	if e.audit == nil {
		return
	}
	_, err := e.audit.Append(ctx, stage, action.ID, action.UserID, map[string]interface{}{
		"action_type":            action.Type,
		"risk_score":             action.RiskScore,
		"risk_level":             action.RiskLevel,
		"status":                 action.Status,
		"requires_user_approval": action.RequiresUserApproval,
		"compliance_issues":      action.ComplianceIssues,
	})
	if err != nil {
		e.logger.Warn("Failed to audit action", zap.Error(err))
	}
}

// ClearCache drops all cached decisions.
func (e *Engine) ClearCache() {
	e.cache.Clear()
}

// SetClock overrides the engine's time source for tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
	e.cache.SetClock(now)
}

var _ schemas.DecisionEngine = (*Engine)(nil)
