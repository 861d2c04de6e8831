// File: internal/proactive/engine.go
// Description: Schedules and executes proactive actions behind the opt-in,
// compliance, budget, resource and approval gates. The scheduled-task set is
// persisted so tasks survive a process restart.

package proactive

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/kestrelhq/kestrel/api/schemas"
	"github.com/kestrelhq/kestrel/internal/config"
	"github.com/kestrelhq/kestrel/internal/decision"
	"github.com/kestrelhq/kestrel/internal/resource"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	tasksKey            = "proactive/tasks"
	optInKeyPrefix      = "proactive/optin/"
	optInHighRiskPrefix = "proactive/optin_highrisk/"
)

// ErrNotScheduled is returned by approval-gated scheduling when the user
// denied the action or the approval prompt timed out.
var ErrNotScheduled = errors.New("action was not scheduled")

// Engine owns the scheduled-task set and the serialized execution path.
type Engine struct {
	cfg      config.ProactiveConfig
	logger   *zap.Logger
	store    schemas.Store
	decision *decision.Engine
	monitor  schemas.ResourceMonitor
	notifier schemas.Notifier
	audit    schemas.AuditLog
	runner   ActionRunner

	mu    sync.Mutex
	tasks map[string]schemas.ScheduledTask

	// execMu serializes firing: at most one action executes at a time.
	execMu sync.Mutex

	now func() time.Time
}

// New creates a proactive engine and re-arms every task persisted by a
// previous process.
func New(ctx context.Context, cfg config.ProactiveConfig, st schemas.Store, dec *decision.Engine, monitor schemas.ResourceMonitor, notifier schemas.Notifier, auditLog schemas.AuditLog, runner ActionRunner, logger *zap.Logger) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if dec == nil {
		return nil, fmt.Errorf("decision engine cannot be nil")
	}
	if monitor == nil {
		return nil, fmt.Errorf("resource monitor cannot be nil")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if runner == nil {
		runner = &SimulatedRunner{}
	}

	e := &Engine{
		cfg:      cfg,
		logger:   logger.Named("proactive_engine"),
		store:    st,
		decision: dec,
		monitor:  monitor,
		notifier: notifier,
		audit:    auditLog,
		runner:   runner,
		tasks:    make(map[string]schemas.ScheduledTask),
		now:      time.Now,
	}
	if err := e.loadTasks(ctx); err != nil {
		return nil, fmt.Errorf("failed to restore scheduled tasks: %w", err)
	}
	return e, nil
}

// ScheduleProactiveAction runs the full gate sequence and, on success,
// registers and persists a scheduled task. A one-shot task fires once after
// delay; a non-empty recurrence expression makes it recurring.
func (e *Engine) ScheduleProactiveAction(ctx context.Context, action schemas.AutonomousAction, delay time.Duration, recurrence string, taskCtx map[string]interface{}) (schemas.ScheduledTask, error) {
	forceApproval := false
	return e.schedule(ctx, action, delay, recurrence, taskCtx, forceApproval)
}

// ScheduleAIRecommendedAction is the stricter path for actions proposed by
// the model rather than the user: a confidence floor applies and an approval
// prompt is always shown.
func (e *Engine) ScheduleAIRecommendedAction(ctx context.Context, action schemas.AutonomousAction, confidence float64, delay time.Duration, recurrence string, taskCtx map[string]interface{}) (schemas.ScheduledTask, error) {
	if confidence < e.cfg.AIConfidenceFloor {
		return schemas.ScheduledTask{}, fmt.Errorf("%w: recommendation confidence %.2f below floor %.2f", ErrNotScheduled, confidence, e.cfg.AIConfidenceFloor)
	}
	return e.schedule(ctx, action, delay, recurrence, taskCtx, true)
}

func (e *Engine) schedule(ctx context.Context, action schemas.AutonomousAction, delay time.Duration, recurrence string, taskCtx map[string]interface{}, forceApproval bool) (schemas.ScheduledTask, error) {
	// Gate 1: standing opt-in, with the stricter one for high-risk work.
	optedIn, err := e.OptedIn(ctx, action.UserID)
	if err != nil {
		return schemas.ScheduledTask{}, err
	}
	if !optedIn {
		return schemas.ScheduledTask{}, fmt.Errorf("%w: user has not opted in to proactive behavior", ErrNotScheduled)
	}
	if action.RiskLevel.AtLeast(schemas.RiskHigh) {
		highRiskOK, err := e.OptedInHighRisk(ctx, action.UserID)
		if err != nil {
			return schemas.ScheduledTask{}, err
		}
		if !highRiskOK {
			return schemas.ScheduledTask{}, fmt.Errorf("%w: user has not opted in to high-risk proactive behavior", ErrNotScheduled)
		}
	}

	// Gate 2: the same compliance validation generation applies.
	if issues := e.decision.ValidateAction(ctx, action); len(issues) > 0 {
		return schemas.ScheduledTask{}, fmt.Errorf("%w: %s", ErrNotScheduled, issues[0])
	}

	// Gate 3: daily budget.
	remaining, err := e.decision.DailyRemaining(ctx)
	if err != nil {
		return schemas.ScheduledTask{}, err
	}
	if remaining <= 0 {
		return schemas.ScheduledTask{}, fmt.Errorf("%w: daily action limit reached", ErrNotScheduled)
	}

	// Gate 4: resource availability.
	if violations := e.resourceViolations(ctx, action.Type); len(violations) > 0 {
		return schemas.ScheduledTask{}, fmt.Errorf("%w: %s", ErrNotScheduled, violations[0])
	}

	// Gate 5: approval prompt, defaulting to deny on timeout.
	if forceApproval || action.RequiresUserApproval || action.RiskLevel.AtLeast(schemas.RiskHigh) {
		approved, err := e.promptApproval(ctx, action)
		if err != nil {
			return schemas.ScheduledTask{}, err
		}
		if !approved {
			return schemas.ScheduledTask{}, fmt.Errorf("%w: user denied approval", ErrNotScheduled)
		}
		action.UserApproved = true
		if action.Status == schemas.StatusPendingApproval {
			action.Status = schemas.StatusApproved
		}
	}

	now := e.now()
	task := schemas.ScheduledTask{
		ID:         uuid.NewString(),
		Action:     action,
		Delay:      delay,
		Recurrence: recurrence,
		Context:    taskCtx,
		CreatedAt:  now.UTC(),
	}
	if task.Recurring() {
		next, err := NextFire(recurrence, now)
		if err != nil {
			return schemas.ScheduledTask{}, fmt.Errorf("invalid recurrence expression: %w", err)
		}
		task.NextFire = next
	} else {
		if delay < 0 {
			delay = 0
		}
		task.NextFire = now.Add(delay)
	}

	e.mu.Lock()
	e.tasks[task.ID] = task
	err = e.persistTasksLocked(ctx)
	e.mu.Unlock()
	if err != nil {
		return schemas.ScheduledTask{}, fmt.Errorf("failed to persist scheduled tasks: %w", err)
	}

	e.auditTask(ctx, schemas.AuditActionScheduled, task, map[string]interface{}{
		"next_fire":  task.NextFire,
		"recurrence": task.Recurrence,
	})
	e.logger.Info("Scheduled proactive action",
		zap.String("task_id", task.ID),
		zap.String("action_type", string(action.Type)),
		zap.Time("next_fire", task.NextFire),
		zap.Bool("recurring", task.Recurring()))
	return task, nil
}

// CancelProactiveAction removes a task. Cancelling an unknown ID is a no-op.
func (e *Engine) CancelProactiveAction(ctx context.Context, taskID string) error {
	e.mu.Lock()
	task, ok := e.tasks[taskID]
	if ok {
		delete(e.tasks, taskID)
	}
	err := e.persistTasksLocked(ctx)
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to persist scheduled tasks: %w", err)
	}
	if ok {
		e.auditTask(ctx, schemas.AuditActionCancelled, task, nil)
		e.logger.Info("Cancelled scheduled action", zap.String("task_id", taskID))
	}
	return nil
}

// ExecuteScheduledAction fires one task now: re-validates the daily budget
// and device resources, runs the
// action under its execution-limit ceiling, records the outcome, consumes
// daily budget, and removes or re-arms the task.
func (e *Engine) ExecuteScheduledAction(ctx context.Context, taskID string, execCtx map[string]interface{}) (schemas.ActionExecutionResult, error) {
	// One action at a time per device. The task lookup happens under this
	// lock too: a concurrent execution of the same one-shot removes the task
	// while holding it, so looking up earlier could fire the task twice.
	e.execMu.Lock()
	defer e.execMu.Unlock()

	e.mu.Lock()
	task, ok := e.tasks[taskID]
	e.mu.Unlock()
	if !ok {
		return schemas.ActionExecutionResult{}, fmt.Errorf("no scheduled task with ID %q", taskID)
	}

	action := task.Action
	action.Parameters = mergeContexts(action.Parameters, task.Context, execCtx)

	if !action.Executable() {
		return schemas.ActionExecutionResult{}, fmt.Errorf("task %q holds a non-executable action", taskID)
	}

	// Fire-time budget re-validation: the ceiling was checked when the task
	// was scheduled, but other actions may have consumed the budget since.
	// The task stays armed so it can fire once the counter resets.
	remaining, err := e.decision.DailyRemaining(ctx)
	if err != nil {
		return schemas.ActionExecutionResult{}, fmt.Errorf("failed to read daily action budget: %w", err)
	}
	if remaining <= 0 {
		action.Status = schemas.StatusCancelled
		warning := "daily action limit reached"
		e.auditTask(ctx, schemas.AuditActionBlocked, task, map[string]interface{}{"reason": warning})
		return schemas.ActionExecutionResult{
			Action:   action,
			Warnings: []string{warning},
		}, nil
	}

	// Fire-time resource re-validation.
	if violations := e.resourceViolations(ctx, action.Type); len(violations) > 0 {
		action.Status = schemas.StatusCancelled
		e.auditTask(ctx, schemas.AuditActionCancelled, task, map[string]interface{}{"reason": violations[0]})
		return schemas.ActionExecutionResult{
			Action:        action,
			ResourceUsage: e.monitor.Snapshot(ctx),
			Warnings:      violations,
		}, nil
	}

	limit := decision.LimitFor(action.Type, e.decision.MaxExecutionDuration())
	runCtx, cancel := context.WithTimeout(ctx, limit.MaxDuration)
	defer cancel()

	action.Status = schemas.StatusExecuting
	start := e.now()
	output, runErr := e.runner.Run(runCtx, action)
	elapsed := e.now().Sub(start)
	action.ExecutionDuration = elapsed

	// Resource usage is recorded whether or not the run succeeded.
	usage := e.monitor.UsageFor(ctx, action.Type)
	violations := decision.CheckUsage(limit, usage, elapsed)

	result := schemas.ActionExecutionResult{
		ResourceUsage:       usage,
		WithinResourceLimit: len(violations) == 0,
		Warnings:            violations,
	}

	if runErr != nil {
		action.Status = schemas.StatusFailed
		if errors.Is(runErr, context.DeadlineExceeded) {
			action.ErrorMessage = fmt.Sprintf("execution timed out after %s (ceiling %s)", elapsed, limit.MaxDuration)
		} else {
			action.ErrorMessage = runErr.Error()
		}
		result.Action = action
		e.auditTask(ctx, schemas.AuditActionFailed, task, map[string]interface{}{
			"error":          action.ErrorMessage,
			"elapsed":        elapsed.String(),
			"resource_usage": usage,
		})
	} else {
		action.Status = schemas.StatusCompleted
		action.Result = output
		result.Action = action
		result.IsSuccess = true
		e.auditTask(ctx, schemas.AuditActionExecuted, task, map[string]interface{}{
			"result":         output,
			"elapsed":        elapsed.String(),
			"resource_usage": usage,
		})
	}

	if err := e.decision.RecordExecution(ctx); err != nil {
		e.logger.Warn("Failed to update daily action counter", zap.Error(err))
	}

	// One-shot tasks are done; recurring tasks re-arm.
	e.mu.Lock()
	if task.Recurring() {
		if next, err := NextFire(task.Recurrence, e.now()); err == nil {
			task.NextFire = next
			e.tasks[task.ID] = task
		} else {
			e.logger.Warn("Failed to re-arm recurring task, removing it",
				zap.String("task_id", task.ID), zap.Error(err))
			delete(e.tasks, task.ID)
		}
	} else {
		delete(e.tasks, task.ID)
	}
	persistErr := e.persistTasksLocked(ctx)
	e.mu.Unlock()
	if persistErr != nil {
		e.logger.Warn("Failed to persist scheduled tasks", zap.Error(persistErr))
	}

	return result, nil
}

// Tick executes every task due at now, in NextFire order. Tests drive the
// scheduler through it directly; Run wraps it in a ticker loop.
func (e *Engine) Tick(ctx context.Context, now time.Time) []schemas.ActionExecutionResult {
	e.mu.Lock()
	var due []schemas.ScheduledTask
	for _, task := range e.tasks {
		if !task.NextFire.After(now) {
			due = append(due, task)
		}
	}
	e.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].NextFire.Before(due[j].NextFire) })

	var results []schemas.ActionExecutionResult
	for _, task := range due {
		result, err := e.ExecuteScheduledAction(ctx, task.ID, nil)
		if err != nil {
			e.logger.Warn("Scheduled execution failed", zap.String("task_id", task.ID), zap.Error(err))
			continue
		}
		results = append(results, result)
	}
	return results
}

// Run drives the scheduler until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	e.logger.Info("Proactive scheduler running", zap.Duration("tick_interval", e.cfg.TickInterval))
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Proactive scheduler stopping")
			return
		case now := <-ticker.C:
			e.Tick(ctx, now)
		}
	}
}

// Tasks returns a snapshot of the scheduled-task set sorted by next fire
// time.
func (e *Engine) Tasks() []schemas.ScheduledTask {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]schemas.ScheduledTask, 0, len(e.tasks))
	for _, t := range e.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextFire.Before(out[j].NextFire) })
	return out
}

// promptApproval shows the notification and blocks until the user answers or
// the configured timeout expires. Expiry and notifier errors both deny.
func (e *Engine) promptApproval(ctx context.Context, action schemas.AutonomousAction) (bool, error) {
	timeout := e.cfg.NotificationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	promptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	approved, err := e.notifier.ShowApprovalPrompt(promptCtx, action)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			e.logger.Info("Approval prompt timed out, denying",
				zap.String("action_id", action.ID), zap.Duration("timeout", timeout))
			return false, nil
		}
		return false, fmt.Errorf("approval prompt failed: %w", err)
	}
	return approved, nil
}

// resourceViolations applies the global resource gates. The battery floor
// binds power-intensive action types only.
func (e *Engine) resourceViolations(ctx context.Context, t schemas.ActionType) []string {
	snapshot := e.monitor.Snapshot(ctx)
	var violations []string
	if snapshot.Memory > decision.MaxMemoryPercent {
		violations = append(violations, fmt.Sprintf("memory usage %.1f%% exceeds ceiling %.1f%%", snapshot.Memory, decision.MaxMemoryPercent))
	}
	if resource.PowerIntensive(t) {
		floor := e.cfg.MinBatteryPercent
		if floor <= 0 {
			floor = decision.MinBatteryPercent
		}
		if snapshot.Battery < floor {
			violations = append(violations, fmt.Sprintf("battery level %.1f%% below floor %.1f%% for power-intensive action", snapshot.Battery, floor))
		}
	}
	return violations
}

// -- Opt-in registry --

type optInRecord struct {
	OptedIn bool      `json:"opted_in"`
	Updated time.Time `json:"updated"`
}

// OptIn records a standing opt-in for proactive behavior.
func (e *Engine) OptIn(ctx context.Context, userID string) error {
	return e.setOptIn(ctx, optInKeyPrefix, userID, true)
}

// OptOut withdraws the standing opt-in. High-risk consent falls with it.
func (e *Engine) OptOut(ctx context.Context, userID string) error {
	if err := e.setOptIn(ctx, optInKeyPrefix, userID, false); err != nil {
		return err
	}
	return e.setOptIn(ctx, optInHighRiskPrefix, userID, false)
}

// OptInHighRisk records the stricter consent required for high and critical
// risk actions.
func (e *Engine) OptInHighRisk(ctx context.Context, userID string) error {
	return e.setOptIn(ctx, optInHighRiskPrefix, userID, true)
}

// OptedIn reports the user's standing proactive opt-in.
func (e *Engine) OptedIn(ctx context.Context, userID string) (bool, error) {
	return e.getOptIn(ctx, optInKeyPrefix, userID)
}

// OptedInHighRisk reports the user's high-risk opt-in.
func (e *Engine) OptedInHighRisk(ctx context.Context, userID string) (bool, error) {
	return e.getOptIn(ctx, optInHighRiskPrefix, userID)
}

func (e *Engine) setOptIn(ctx context.Context, prefix, userID string, optedIn bool) error {
	if userID == "" {
		return fmt.Errorf("user ID is required")
	}
	raw, err := json.Marshal(optInRecord{OptedIn: optedIn, Updated: e.now().UTC()})
	if err != nil {
		return err
	}
	return e.store.Set(ctx, prefix+userID, raw)
}

func (e *Engine) getOptIn(ctx context.Context, prefix, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	raw, ok, err := e.store.Get(ctx, prefix+userID)
	if err != nil || !ok {
		return false, err
	}
	var rec optInRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return false, fmt.Errorf("corrupt opt-in record for user %q: %w", userID, err)
	}
	return rec.OptedIn, nil
}

// -- Task persistence --

func (e *Engine) loadTasks(ctx context.Context) error {
	raw, ok, err := e.store.Get(ctx, tasksKey)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	var tasks []schemas.ScheduledTask
	if err := json.Unmarshal(raw, &tasks); err != nil {
		return fmt.Errorf("corrupt scheduled-task set: %w", err)
	}
	for _, t := range tasks {
		e.tasks[t.ID] = t
	}
	if len(tasks) > 0 {
		e.logger.Info("Re-armed persisted scheduled tasks", zap.Int("count", len(tasks)))
	}
	return nil
}

// persistTasksLocked writes the task set; callers hold e.mu.
func (e *Engine) persistTasksLocked(ctx context.Context) error {
	tasks := make([]schemas.ScheduledTask, 0, len(e.tasks))
	for _, t := range e.tasks {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	raw, err := json.Marshal(tasks)
	if err != nil {
		return err
	}
	return e.store.Set(ctx, tasksKey, raw)
}

func mergeContexts(parts ...map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{})
	for _, part := range parts {
		for k, v := range part {
			merged[k] = v
		}
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}

func (e *Engine) auditTask(ctx context.Context, stage schemas.AuditStage, task schemas.ScheduledTask, detail map[string]interface{}) {
	if e.audit == nil {
		return
	}
	if detail == nil {
		detail = map[string]interface{}{}
	}
	detail["task_id"] = task.ID
	detail["action_type"] = task.Action.Type
	_, err := e.audit.Append(ctx, stage, task.Action.ID, task.Action.UserID, detail)
	if err != nil {
		e.logger.Warn("Failed to audit scheduled task", zap.Error(err))
	}
}

// SetClock overrides the engine's time source for tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}
