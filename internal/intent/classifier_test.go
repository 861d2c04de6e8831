package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kestrelhq/kestrel/api/schemas"
)

func TestClassifyRuleBased(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected schemas.IntentType
	}{
		{"communication", "remind me to call mom at 18:30", schemas.IntentCommunication},
		{"navigation", "navigate to the office", schemas.IntentNavigation},
		{"query", "what is the weather like", schemas.IntentQuery},
		{"configuration", "adjust the notification settings", schemas.IntentConfiguration},
		{"monitoring", "track my sleep tonight", schemas.IntentMonitoring},
		{"creation", "draft a birthday greeting", schemas.IntentCreation},
		{"analysis", "summarize this week's statistics", schemas.IntentAnalysis},
		{"no match", "zzz qqq xxx", schemas.IntentUnknown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyRuleBased(preprocess(tc.input))
			assert.Equal(t, tc.expected, got.Type)
		})
	}
}

func TestClassifyRuleBased_SpecificIntent(t *testing.T) {
	got := classifyRuleBased("call mom")
	assert.Equal(t, schemas.IntentCommunication, got.Type)
	assert.Equal(t, "communication.call", got.SpecificIntent)

	got = classifyRuleBased("go to the store")
	assert.Equal(t, schemas.IntentNavigation, got.Type)
	assert.Equal(t, "navigation.go_to", got.SpecificIntent)
}

func TestClassifyRuleBased_TieIsUnknown(t *testing.T) {
	// "call" (communication, 1.5) vs "create" (creation, 1.5): a dead heat
	// must not silently pick a winner.
	got := classifyRuleBased("call create")
	assert.Equal(t, schemas.IntentUnknown, got.Type)
	assert.Empty(t, got.SpecificIntent)
}

func TestClassifyRuleBased_WholeWordBonus(t *testing.T) {
	// "calling" contains "call" as a substring only; "call" matches on word
	// boundaries too and scores higher.
	substring := classifyRuleBased("calling")
	wholeWord := classifyRuleBased("call")
	assert.Equal(t, schemas.IntentCommunication, substring.Type)
	assert.Equal(t, schemas.IntentCommunication, wholeWord.Type)
	assert.Greater(t, wholeWord.Score, substring.Score)
}

func TestExtractParameters(t *testing.T) {
	t.Run("time", func(t *testing.T) {
		params := extractParameters("remind me to call mom at 18:30")
		assert.Equal(t, "18:30", params["time"])
		assert.NotContains(t, params, "location", "a time after \"at\" is not a location")
	})

	t.Run("date", func(t *testing.T) {
		params := extractParameters("book a table on 12/24/2026")
		assert.Equal(t, "12/24/2026", params["date"])
	})

	t.Run("location", func(t *testing.T) {
		params := extractParameters("meet me in berlin tomorrow")
		assert.Equal(t, "berlin tomorrow", params["location"])
	})

	t.Run("stopword after preposition", func(t *testing.T) {
		params := extractParameters("wake me at least once")
		assert.NotContains(t, params, "location")
	})

	t.Run("nothing extractable", func(t *testing.T) {
		assert.Nil(t, extractParameters("hello there"))
	})
}

func TestPreprocess(t *testing.T) {
	assert.Equal(t, "call mom at 18:30", preprocess("  Call   MOM!! at 18:30  "))
	assert.Equal(t, "meet on 12/24/2026", preprocess("Meet on 12/24/2026."))
	assert.Equal(t, "", preprocess("   "))
}

func TestRunBiasTests(t *testing.T) {
	t.Run("clean input scores zero everywhere", func(t *testing.T) {
		scores, warnings := runBiasTests("call mom at 18:30", 0.3)
		assert.Empty(t, warnings)
		for category, score := range scores {
			assert.Zero(t, score, "category %s", category)
		}
		assert.Len(t, scores, 5, "every category is reported even at zero")
	})

	t.Run("biased input warns above threshold", func(t *testing.T) {
		scores, warnings := runBiasTests("women are bad drivers and old people are worse", 0.3)
		assert.Greater(t, scores[BiasGender], 0.0)
		assert.Greater(t, scores[BiasAge], 0.0)
		// One matched phrase scores 0.2, still under the 0.3 threshold.
		assert.Empty(t, warnings)

		scores, warnings = runBiasTests("women are emotional and girls are weak for a girl", 0.3)
		assert.GreaterOrEqual(t, scores[BiasGender], 0.4)
		assert.NotEmpty(t, warnings)
	})

	t.Run("score is capped at one", func(t *testing.T) {
		input := "men are women are boys are girls are like a man like a woman for a girl for a boy"
		scores, _ := runBiasTests(input, 0.3)
		assert.Equal(t, 1.0, scores[BiasGender])
	})
}
