// File: internal/contextanalyzer/ai_analyzer.go
package contextanalyzer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kestrelhq/kestrel/api/schemas"
	"github.com/kestrelhq/kestrel/internal/cache"
)

// insightKeywords are the qualitative markers extracted from a model
// response into the insight map.
var insightKeywords = []string{"high confidence", "risk", "activity", "routine", "anomaly"}

// AIEnhanced decorates the rule-based analyzer with an optional qualitative
// pass through an external language model. Any failure in that pass silently
// falls back to the base analysis; the decorator can never make a caller
// worse off than the base analyzer.
type AIEnhanced struct {
	base   *Analyzer
	llm    schemas.LLMClient
	logger *zap.Logger

	// cache holds enriched analyses keyed by the base analysis ID, so an
	// identical call within the base cache window reuses the model output
	// instead of invoking the model again. The key changes whenever the base
	// recomputes, which bounds an entry's useful life to the base TTL.
	cache *cache.TTL[schemas.ContextAnalysis]
}

// NewAIEnhanced wraps base with the model client. A nil client is valid and
// leaves the decorator as a pass-through.
func NewAIEnhanced(base *Analyzer, llm schemas.LLMClient, logger *zap.Logger) *AIEnhanced {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := base.cfg.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &AIEnhanced{
		base:   base,
		llm:    llm,
		logger: logger.Named("context_analyzer.ai"),
		cache:  cache.NewTTL[schemas.ContextAnalysis](ttl),
	}
}

// AnalyzeContext implements schemas.ContextAnalyzer.
func (e *AIEnhanced) AnalyzeContext(ctx context.Context, contextData map[string]interface{}, userID string) schemas.ContextAnalysis {
	analysis := e.base.AnalyzeContext(ctx, contextData, userID)

	// Only a compliant base analysis is worth enriching, and only when a
	// model is actually configured.
	if !analysis.IsCompliant || e.llm == nil {
		return analysis
	}

	if enriched, ok := e.cache.Get(analysis.ID); ok {
		e.logger.Debug("Enriched analysis cache hit", zap.String("analysis_id", analysis.ID))
		return enriched
	}

	prompt := e.buildPrompt(analysis)
	response, err := e.llm.Invoke(ctx, prompt)
	if err != nil {
		e.logger.Debug("AI insight pass failed, returning base analysis", zap.Error(err))
		return analysis
	}

	insights := parseInsights(response)
	if len(insights) == 0 {
		// The model answered but had nothing to add; remember that so the
		// next identical call does not re-invoke it.
		e.cache.Put(analysis.ID, analysis)
		return analysis
	}

	enriched := analysis
	enriched.AIInsights = insights
	if _, ok := insights["high confidence"]; ok {
		enriched.ConfidenceScore = clamp01(enriched.ConfidenceScore + 0.1)
	}

	e.cache.Put(analysis.ID, enriched)
	e.logger.Debug("Merged AI insights into context analysis",
		zap.String("analysis_id", enriched.ID),
		zap.Int("insights", len(insights)),
	)
	return enriched
}

// SetClock overrides the time source of the decorator and its base for tests.
func (e *AIEnhanced) SetClock(now func() time.Time) {
	e.base.SetClock(now)
	e.cache.SetClock(now)
}

// buildPrompt summarizes the anonymized analysis for the model. Raw context
// data never leaves the process.
func (e *AIEnhanced) buildPrompt(analysis schemas.ContextAnalysis) string {
	var b strings.Builder
	b.WriteString("You are assessing an anonymized snapshot of a user's environment.\n")
	b.WriteString("Respond with short qualitative observations. Mention \"high confidence\" only if the snapshot is unambiguous.\n\n")
	b.WriteString("Fields:\n")
	for k, v := range analysis.AnonymizedData {
		fmt.Fprintf(&b, "- %s: %v\n", k, v)
	}
	fmt.Fprintf(&b, "\nSnapshot confidence: %.2f\n", analysis.ConfidenceScore)
	return b.String()
}

// parseInsights scans the response for known qualitative markers and keeps
// the sentence each one appeared in.
func parseInsights(response string) map[string]string {
	insights := make(map[string]string)
	lower := strings.ToLower(response)

	for _, keyword := range insightKeywords {
		idx := strings.Index(lower, keyword)
		if idx < 0 {
			continue
		}
		// Keep the surrounding sentence as the insight's evidence.
		start := strings.LastIndexByte(lower[:idx], '.') + 1
		end := strings.IndexByte(lower[idx:], '.')
		if end < 0 {
			end = len(lower)
		} else {
			end += idx
		}
		insights[keyword] = strings.TrimSpace(response[start:end])
	}
	return insights
}

var _ schemas.ContextAnalyzer = (*AIEnhanced)(nil)
