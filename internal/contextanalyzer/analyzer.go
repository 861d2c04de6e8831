// File: internal/contextanalyzer/analyzer.go
// Description: Converts raw context data into a data-minimized, anonymized,
// permission-tagged ContextAnalysis. Never returns an error: internal
// failures surface as a non-compliant analysis so callers can always branch
// on the result.

package contextanalyzer

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kestrelhq/kestrel/api/schemas"
	"github.com/kestrelhq/kestrel/internal/cache"
	"github.com/kestrelhq/kestrel/internal/config"
	"github.com/kestrelhq/kestrel/internal/policy"
)

// RedactionMarker replaces the value of every sensitive field in the
// anonymized view.
const RedactionMarker = "[REDACTED]"

// contextPermissions maps context data fields to the permission needed to
// have collected them.
var contextPermissions = map[string]schemas.PermissionType{
	"location":      schemas.PermissionLocation,
	"contacts":      schemas.PermissionContacts,
	"calendar":      schemas.PermissionCalendar,
	"health":        schemas.PermissionHealthData,
	"heart_rate":    schemas.PermissionHealthData,
	"steps":         schemas.PermissionHealthData,
	"network_type":  schemas.PermissionNetwork,
	"battery_level": schemas.PermissionNetwork,
	"photos":        schemas.PermissionStorage,
	"files":         schemas.PermissionStorage,
}

// Analyzer is the rule-based context analyzer.
type Analyzer struct {
	cfg         config.AnalyzerConfig
	logger      *zap.Logger
	permissions schemas.PermissionProvider
	audit       schemas.AuditLog

	cache *cache.TTL[schemas.ContextAnalysis]
	group singleflight.Group

	now func() time.Time
}

// New creates an analyzer. The audit log may be nil for embedded use without
// auditing; the permission provider is required.
func New(cfg config.AnalyzerConfig, permissions schemas.PermissionProvider, auditLog schemas.AuditLog, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Analyzer{
		cfg:         cfg,
		logger:      logger.Named("context_analyzer"),
		permissions: permissions,
		audit:       auditLog,
		cache:       cache.NewTTL[schemas.ContextAnalysis](ttl),
		now:         time.Now,
	}
}

// AnalyzeContext implements schemas.ContextAnalyzer. Identical inputs within
// the cache TTL return the identical analysis (same ID); concurrent identical
// calls collapse into a single computation.
func (a *Analyzer) AnalyzeContext(ctx context.Context, contextData map[string]interface{}, userID string) schemas.ContextAnalysis {
	key := cache.Key(contextData, userID)
	if analysis, ok := a.cache.Get(key); ok {
		a.logger.Debug("Context analysis cache hit", zap.String("analysis_id", analysis.ID))
		return analysis
	}

	result, _, _ := a.group.Do(key, func() (interface{}, error) {
		if analysis, ok := a.cache.Get(key); ok {
			return analysis, nil
		}
		analysis := a.analyze(ctx, contextData, userID)
		a.cache.Put(key, analysis)
		a.LogContextAnalysis(ctx, analysis)
		return analysis, nil
	})
	return result.(schemas.ContextAnalysis)
}

// analyze performs one full uncached analysis pass.
func (a *Analyzer) analyze(ctx context.Context, contextData map[string]interface{}, userID string) schemas.ContextAnalysis {
	analysis := schemas.ContextAnalysis{
		ID:          uuid.NewString(),
		Timestamp:   a.now().UTC(),
		ContextData: contextData,
		UserID:      userID,
		IsCompliant: true,
	}

	if len(contextData) == 0 {
		analysis.IsCompliant = false
		analysis.ComplianceIssues = append(analysis.ComplianceIssues, "no context data provided")
		analysis.AnonymizedData = map[string]interface{}{}
		return analysis
	}

	minimized := a.ApplyDataMinimization(contextData, a.cfg.AllowedFields)
	analysis.AnonymizedData = a.AnonymizeData(minimized, a.cfg.SensitiveFields)

	analysis.RequiredPermissions = a.GetRequiredPermissions(contextData)
	for _, p := range analysis.RequiredPermissions {
		switch a.permissions.PermissionStatus(ctx, p) {
		case schemas.PermissionGranted:
			analysis.GrantedPermissions = append(analysis.GrantedPermissions, p)
		default:
			analysis.DeniedPermissions = append(analysis.DeniedPermissions, p)
		}
	}

	for _, p := range analysis.DeniedPermissions {
		analysis.IsCompliant = false
		analysis.ComplianceIssues = append(analysis.ComplianceIssues,
			"required permission not granted: "+p.Attributes().DisplayName)
	}

	analysis.ConfidenceScore = a.scoreConfidence(minimized, analysis)
	return analysis
}

// scoreConfidence rates snapshot completeness: half the score is a floor for
// having any usable data, the rest scales with allow-list coverage and full
// permission grants.
func (a *Analyzer) scoreConfidence(minimized map[string]interface{}, analysis schemas.ContextAnalysis) float64 {
	score := 0.5
	if len(a.cfg.AllowedFields) > 0 {
		coverage := float64(len(minimized)) / float64(len(a.cfg.AllowedFields))
		score += 0.3 * coverage
	}
	if len(analysis.DeniedPermissions) == 0 {
		score += 0.2
	}
	return clamp01(score)
}

// RequiresUserConsent reports whether analyzing this context needs explicit
// consent: any sensitive field present, or any implied permission requiring
// special justification.
func (a *Analyzer) RequiresUserConsent(contextData map[string]interface{}) bool {
	for _, field := range a.cfg.SensitiveFields {
		if _, ok := contextData[field]; ok {
			return true
		}
	}
	for _, p := range a.GetRequiredPermissions(contextData) {
		if p.RequiresSpecialJustification() {
			return true
		}
	}
	return false
}

// ApplyDataMinimization keeps only allow-listed keys.
func (a *Analyzer) ApplyDataMinimization(rawData map[string]interface{}, allowedFields []string) map[string]interface{} {
	allowed := make(map[string]struct{}, len(allowedFields))
	for _, f := range allowedFields {
		allowed[strings.ToLower(f)] = struct{}{}
	}

	out := make(map[string]interface{})
	for k, v := range rawData {
		if _, ok := allowed[strings.ToLower(k)]; ok {
			out[k] = v
		}
	}
	return out
}

// AnonymizeData replaces the values of listed sensitive keys with the
// redaction marker. The input map is not modified.
func (a *Analyzer) AnonymizeData(data map[string]interface{}, sensitiveFields []string) map[string]interface{} {
	sensitive := make(map[string]struct{}, len(sensitiveFields))
	for _, f := range sensitiveFields {
		sensitive[strings.ToLower(f)] = struct{}{}
	}

	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		if _, ok := sensitive[strings.ToLower(k)]; ok {
			out[k] = RedactionMarker
		} else {
			out[k] = v
		}
	}
	return out
}

// GetRequiredPermissions derives the permissions implied by the presence of
// context fields.
func (a *Analyzer) GetRequiredPermissions(contextData map[string]interface{}) []schemas.PermissionType {
	var perms []schemas.PermissionType
	for field, perm := range contextPermissions {
		if _, ok := contextData[field]; ok {
			perms = append(perms, perm)
		}
	}
	return policy.Dedupe(perms)
}

// IsContextCompliant reports the compliance verdict of an analysis.
func (a *Analyzer) IsContextCompliant(analysis schemas.ContextAnalysis) bool {
	return analysis.IsCompliant
}

// LogContextAnalysis records the analysis in the audit log. Audit failures
// are logged, never propagated: auditing must not break the caller.
func (a *Analyzer) LogContextAnalysis(ctx context.Context, analysis schemas.ContextAnalysis) {
	if a.audit == nil {
		return
	}
	_, err := a.audit.Append(ctx, schemas.AuditContextAnalyzed, analysis.ID, analysis.UserID, map[string]interface{}{
		"is_compliant":         analysis.IsCompliant,
		"confidence_score":     analysis.ConfidenceScore,
		"required_permissions": analysis.RequiredPermissions,
		"compliance_issues":    analysis.ComplianceIssues,
	})
	if err != nil {
		a.logger.Warn("Failed to audit context analysis", zap.Error(err))
	}
}

// ClearCache drops all cached analyses.
func (a *Analyzer) ClearCache() {
	a.cache.Clear()
}

// SetClock overrides the analyzer's time source for tests.
func (a *Analyzer) SetClock(now func() time.Time) {
	a.now = now
	a.cache.SetClock(now)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var _ schemas.ContextAnalyzer = (*Analyzer)(nil)
