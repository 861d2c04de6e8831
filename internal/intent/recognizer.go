// File: internal/intent/recognizer.go
// Description: Converts free-text input into a classified, parameterized,
// bias-tested UserIntent. Prefers an external AI classifier when configured
// and falls back to the deterministic rule-based classifier transparently.

package intent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
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

const optOutKeyPrefix = "privacy/optout/"

// intentPermissions maps each intent type to the permissions acting on it
// will need. Parameter presence can add more (a "location" parameter implies
// the location permission).
var intentPermissions = map[schemas.IntentType][]schemas.PermissionType{
	schemas.IntentNavigation:    {schemas.PermissionLocation},
	schemas.IntentCommunication: {schemas.PermissionContacts},
	schemas.IntentMonitoring:    {schemas.PermissionNotifications},
	schemas.IntentConfiguration: {schemas.PermissionSystemSettings},
	schemas.IntentCreation:      {schemas.PermissionStorage},
}

// nonAlnumRe strips everything outside the characters classification and
// parameter extraction rely on (word characters, times, dates).
var nonAlnumRe = regexp.MustCompile(`[^a-z0-9:/ ]+`)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Recognizer implements schemas.IntentRecognizer.
type Recognizer struct {
	cfg    config.IntentConfig
	logger *zap.Logger
	llm    schemas.LLMClient
	store  schemas.Store
	audit  schemas.AuditLog

	cache *cache.TTL[schemas.IntentRecognitionResult]
	now   func() time.Time
}

// New creates a recognizer. The LLM client may be nil; the store is required
// because opt-out handling is not optional.
func New(cfg config.IntentConfig, st schemas.Store, llm schemas.LLMClient, auditLog schemas.AuditLog, logger *zap.Logger) (*Recognizer, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Recognizer{
		cfg:    cfg,
		logger: logger.Named("intent_recognizer"),
		llm:    llm,
		store:  st,
		audit:  auditLog,
		cache:  cache.NewTTL[schemas.IntentRecognitionResult](ttl),
		now:    time.Now,
	}, nil
}

// RecognizeIntent implements schemas.IntentRecognizer.
func (r *Recognizer) RecognizeIntent(ctx context.Context, input string, analysis *schemas.ContextAnalysis, userID string) schemas.IntentRecognitionResult {
	// Opt-out is absolute: no classification, no caching, no model call.
	if optedOut, err := r.IsOptedOut(ctx, userID); err != nil {
		r.logger.Warn("Failed to read opt-out flag, treating user as opted out", zap.Error(err))
		return r.optOutResult(input, userID)
	} else if optedOut {
		return r.optOutResult(input, userID)
	}

	normalized := preprocess(input)

	key := cache.Key(normalized, userID)
	if result, ok := r.cache.Get(key); ok {
		r.logger.Debug("Intent cache hit", zap.String("intent_id", result.Intent.ID))
		return result
	}

	classification := r.classify(ctx, normalized)
	params := extractParameters(normalized)

	intent := schemas.UserIntent{
		ID:             uuid.NewString(),
		Timestamp:      r.now().UTC(),
		OriginalInput:  input,
		Type:           classification.Type,
		SpecificIntent: classification.SpecificIntent,
		Parameters:     params,
		UserID:         userID,
		IsCompliant:    true,
	}

	intent.ConfidenceScore = r.scoreConfidence(intent, analysis)
	intent.ConfidenceLevel = schemas.BucketConfidence(intent.ConfidenceScore)
	intent.RequiredPermissions = requiredPermissions(intent)

	biasScores, biasWarnings := runBiasTests(normalized, r.cfg.BiasThreshold)

	if intent.ConfidenceScore < r.cfg.ConfidenceThreshold {
		intent.IsCompliant = false
		intent.ComplianceIssues = append(intent.ComplianceIssues,
			fmt.Sprintf("confidence %.2f below threshold %.2f", intent.ConfidenceScore, r.cfg.ConfidenceThreshold))
	}
	if issues := validatePolicy(intent); len(issues) > 0 {
		intent.IsCompliant = false
		intent.ComplianceIssues = append(intent.ComplianceIssues, issues...)
	}
	if len(biasWarnings) > 0 {
		intent.IsCompliant = false
		intent.ComplianceIssues = append(intent.ComplianceIssues, biasWarnings...)
	}

	result := schemas.IntentRecognitionResult{
		Intent:       intent,
		BiasScores:   biasScores,
		BiasWarnings: biasWarnings,
	}

	r.cache.Put(key, result)
	r.auditRecognition(ctx, result)
	return result
}

// classify prefers the AI classifier and falls back to the rule-based one on
// any failure.
func (r *Recognizer) classify(ctx context.Context, normalized string) ruleClassification {
	if r.llm != nil {
		if c, err := r.classifyAI(ctx, normalized); err == nil {
			return c
		} else {
			r.logger.Debug("AI classification failed, falling back to rules", zap.Error(err))
		}
	}
	return classifyRuleBased(normalized)
}

// aiClassification is the JSON contract the model is asked to fill.
type aiClassification struct {
	IntentType     string `json:"intent_type"`
	SpecificIntent string `json:"specific_intent"`
}

// classifyAI asks the external model for a classification and validates the
// answer against the closed intent type set.
func (r *Recognizer) classifyAI(ctx context.Context, normalized string) (ruleClassification, error) {
	prompt := fmt.Sprintf(
		"Classify the user input into exactly one intent type from this set: "+
			"ACTION, QUERY, CONFIGURATION, FEEDBACK, NAVIGATION, COMMUNICATION, ANALYSIS, CREATION, MONITORING, UNKNOWN.\n"+
			"Reply with JSON only: {\"intent_type\": \"...\", \"specific_intent\": \"...\"}.\n\nInput: %q", normalized)

	response, err := r.llm.Invoke(ctx, prompt)
	if err != nil {
		return ruleClassification{}, err
	}

	// Models wrap JSON in prose or fences more often than not.
	start := strings.IndexByte(response, '{')
	end := strings.LastIndexByte(response, '}')
	if start < 0 || end <= start {
		return ruleClassification{}, fmt.Errorf("no JSON object in classifier response")
	}

	var parsed aiClassification
	if err := json.Unmarshal([]byte(response[start:end+1]), &parsed); err != nil {
		return ruleClassification{}, fmt.Errorf("failed to parse classifier response: %w", err)
	}

	intentType := schemas.IntentType(strings.ToUpper(strings.TrimSpace(parsed.IntentType)))
	if !knownIntentType(intentType) {
		return ruleClassification{}, fmt.Errorf("classifier returned unknown intent type %q", parsed.IntentType)
	}

	return ruleClassification{
		Type:           intentType,
		SpecificIntent: strings.TrimSpace(parsed.SpecificIntent),
	}, nil
}

func knownIntentType(t schemas.IntentType) bool {
	switch t {
	case schemas.IntentAction, schemas.IntentQuery, schemas.IntentConfiguration,
		schemas.IntentFeedback, schemas.IntentNavigation, schemas.IntentCommunication,
		schemas.IntentAnalysis, schemas.IntentCreation, schemas.IntentMonitoring,
		schemas.IntentUnknown:
		return true
	}
	return false
}

// scoreConfidence combines the fixed confidence components: base 0.5, +0.2
// for a known type, +0.1 for a specific intent, +0.1 for extracted
// parameters, +0.1 for a compliant context analysis.
func (r *Recognizer) scoreConfidence(intent schemas.UserIntent, analysis *schemas.ContextAnalysis) float64 {
	score := 0.5
	if intent.Type != schemas.IntentUnknown {
		score += 0.2
	}
	if intent.SpecificIntent != "" {
		score += 0.1
	}
	if len(intent.Parameters) > 0 {
		score += 0.1
	}
	if analysis != nil && analysis.IsCompliant {
		score += 0.1
	}
	if score > 1 {
		score = 1
	}
	return score
}

// requiredPermissions resolves the per-type permission table plus
// parameter-implied permissions.
func requiredPermissions(intent schemas.UserIntent) []schemas.PermissionType {
	perms := append([]schemas.PermissionType(nil), intentPermissions[intent.Type]...)
	if _, ok := intent.Parameters["location"]; ok {
		perms = append(perms, schemas.PermissionLocation)
	}
	if _, ok := intent.Parameters["time"]; ok {
		perms = append(perms, schemas.PermissionCalendar)
	}
	if _, ok := intent.Parameters["date"]; ok {
		perms = append(perms, schemas.PermissionCalendar)
	}
	return policy.Dedupe(perms)
}

// validatePolicy applies static policy checks to the classified intent.
func validatePolicy(intent schemas.UserIntent) []string {
	var issues []string
	for _, p := range policy.Prohibited(intent.RequiredPermissions) {
		issues = append(issues, "intent requires permission prohibited for autonomous use: "+p.Attributes().DisplayName)
	}
	if len(intent.OriginalInput) > 2048 {
		issues = append(issues, "input exceeds maximum supported length")
	}
	return issues
}

// optOutResult is the terminal answer for opted-out users.
func (r *Recognizer) optOutResult(input, userID string) schemas.IntentRecognitionResult {
	return schemas.IntentRecognitionResult{
		Intent: schemas.UserIntent{
			ID:               uuid.NewString(),
			Timestamp:        r.now().UTC(),
			OriginalInput:    input,
			Type:             schemas.IntentUnknown,
			ConfidenceScore:  0,
			ConfidenceLevel:  schemas.ConfidenceVeryLow,
			IsCompliant:      false,
			ComplianceIssues: []string{"user has opted out of intent recognition"},
			UserID:           userID,
		},
		BiasScores: map[string]float64{},
	}
}

// preprocess normalizes raw input: lowercase, trim, strip characters outside
// the classifier's alphabet, collapse whitespace.
func preprocess(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))
	s = nonAlnumRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// -- Opt-out registry --

type optOutRecord struct {
	OptedOut bool      `json:"opted_out"`
	Updated  time.Time `json:"updated"`
}

// OptOut records that the user refuses intent recognition.
func (r *Recognizer) OptOut(ctx context.Context, userID string) error {
	return r.setOptOut(ctx, userID, true)
}

// OptIn clears a previous opt-out.
func (r *Recognizer) OptIn(ctx context.Context, userID string) error {
	return r.setOptOut(ctx, userID, false)
}

func (r *Recognizer) setOptOut(ctx context.Context, userID string, optedOut bool) error {
	if userID == "" {
		return fmt.Errorf("user ID is required")
	}
	raw, err := json.Marshal(optOutRecord{OptedOut: optedOut, Updated: r.now().UTC()})
	if err != nil {
		return err
	}
	return r.store.Set(ctx, optOutKeyPrefix+userID, raw)
}

// IsOptedOut reports the user's standing opt-out flag. Anonymous calls
// (empty user ID) cannot be opted out.
func (r *Recognizer) IsOptedOut(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	raw, ok, err := r.store.Get(ctx, optOutKeyPrefix+userID)
	if err != nil || !ok {
		return false, err
	}
	var rec optOutRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return false, fmt.Errorf("corrupt opt-out record for user %q: %w", userID, err)
	}
	return rec.OptedOut, nil
}

// auditRecognition records the outcome; failures are logged, not propagated.
func (r *Recognizer) auditRecognition(ctx context.Context, result schemas.IntentRecognitionResult) {
	if r.audit == nil {
		return
	}
	_, err := r.audit.Append(ctx, schemas.AuditIntentRecognized, result.Intent.ID, result.Intent.UserID, map[string]interface{}{
		"intent_type":      result.Intent.Type,
		"specific_intent":  result.Intent.SpecificIntent,
		"confidence_score": result.Intent.ConfidenceScore,
		"is_compliant":     result.Intent.IsCompliant,
		"bias_warnings":    result.BiasWarnings,
	})
	if err != nil {
		r.logger.Warn("Failed to audit intent recognition", zap.Error(err))
	}
}

// SetClock overrides the recognizer's time source for tests.
func (r *Recognizer) SetClock(now func() time.Time) {
	r.now = now
	r.cache.SetClock(now)
}

var _ schemas.IntentRecognizer = (*Recognizer)(nil)
