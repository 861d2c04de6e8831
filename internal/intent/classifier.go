// File: internal/intent/classifier.go
package intent

import (
	"regexp"
	"strings"
	"sync"

	"github.com/kestrelhq/kestrel/api/schemas"
)

// intentPatterns is the deterministic classification table. Scoring: +1.0 per
// pattern contained in the input, +0.5 extra when the pattern matches on
// whole-word boundaries. The max-scoring type wins; a tie or all-zero scores
// classify as unknown.
var intentPatterns = map[schemas.IntentType][]string{
	schemas.IntentAction: {
		"do", "run", "execute", "start", "launch", "open", "turn on",
		"turn off", "set an alarm", "book", "order",
	},
	schemas.IntentQuery: {
		"what", "when", "where", "who", "how", "show me", "tell me",
		"find", "search", "look up",
	},
	schemas.IntentConfiguration: {
		"configure", "settings", "setting", "preference", "preferences",
		"enable", "disable", "adjust",
	},
	schemas.IntentFeedback: {
		"feedback", "report a bug", "complain", "complaint", "suggest",
		"rate", "review",
	},
	schemas.IntentNavigation: {
		"go to", "navigate", "directions", "route", "take me", "drive to",
		"walk to",
	},
	schemas.IntentCommunication: {
		"call", "text", "message", "email", "send", "reply", "contact",
		"phone",
	},
	schemas.IntentAnalysis: {
		"analyze", "analyse", "summarize", "summarise", "compare",
		"insight", "statistics", "trend",
	},
	schemas.IntentCreation: {
		"create", "write", "compose", "draft", "generate", "make",
	},
	schemas.IntentMonitoring: {
		"monitor", "track", "watch", "observe", "alert me", "notify me",
		"keep an eye",
	},
}

// classifierOrder fixes iteration order so scoring ties are detected
// deterministically.
var classifierOrder = []schemas.IntentType{
	schemas.IntentAction,
	schemas.IntentQuery,
	schemas.IntentConfiguration,
	schemas.IntentFeedback,
	schemas.IntentNavigation,
	schemas.IntentCommunication,
	schemas.IntentAnalysis,
	schemas.IntentCreation,
	schemas.IntentMonitoring,
}

var (
	wordBoundaryOnce sync.Once
	wordBoundaryRe   map[string]*regexp.Regexp
)

// boundaryRegexps compiles one whole-word regexp per pattern, once.
func boundaryRegexps() map[string]*regexp.Regexp {
	wordBoundaryOnce.Do(func() {
		wordBoundaryRe = make(map[string]*regexp.Regexp)
		for _, patterns := range intentPatterns {
			for _, p := range patterns {
				if _, ok := wordBoundaryRe[p]; ok {
					continue
				}
				wordBoundaryRe[p] = regexp.MustCompile(`\b` + regexp.QuoteMeta(p) + `\b`)
			}
		}
	})
	return wordBoundaryRe
}

// ruleClassification is the outcome of the deterministic classifier.
type ruleClassification struct {
	Type           schemas.IntentType
	SpecificIntent string
	Score          float64
}

// classifyRuleBased scores the normalized input against the pattern table.
func classifyRuleBased(normalized string) ruleClassification {
	boundaries := boundaryRegexps()

	best := ruleClassification{Type: schemas.IntentUnknown}
	tied := false

	for _, intentType := range classifierOrder {
		score := 0.0
		topPattern := ""
		topPatternScore := 0.0

		for _, pattern := range intentPatterns[intentType] {
			if !strings.Contains(normalized, pattern) {
				continue
			}
			patternScore := 1.0
			if boundaries[pattern].MatchString(normalized) {
				patternScore += 0.5
			}
			score += patternScore
			if patternScore > topPatternScore {
				topPatternScore = patternScore
				topPattern = pattern
			}
		}

		if score == 0 {
			continue
		}
		switch {
		case score > best.Score:
			best = ruleClassification{
				Type:           intentType,
				SpecificIntent: strings.ToLower(string(intentType)) + "." + strings.ReplaceAll(topPattern, " ", "_"),
				Score:          score,
			}
			tied = false
		case score == best.Score:
			tied = true
		}
	}

	if tied || best.Score == 0 {
		return ruleClassification{Type: schemas.IntentUnknown}
	}
	return best
}
