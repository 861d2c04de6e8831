package intent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelhq/kestrel/api/schemas"
	"github.com/kestrelhq/kestrel/internal/config"
	"github.com/kestrelhq/kestrel/internal/store"
)

func testIntentConfig() config.IntentConfig {
	return config.IntentConfig{
		CacheTTL:            10 * time.Minute,
		ConfidenceThreshold: 0.7,
		BiasThreshold:       0.3,
	}
}

type fakeLLM struct {
	response string
	err      error
	calls    int
}

func (f *fakeLLM) Invoke(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.response, f.err
}

func newTestRecognizer(t *testing.T, llm schemas.LLMClient) *Recognizer {
	t.Helper()
	st := store.NewMemory(nil)
	require.NoError(t, st.Init(context.Background()))

	r, err := New(testIntentConfig(), st, llm, nil, nil)
	require.NoError(t, err)
	return r
}

func TestRecognizeIntent_RuleBasedScenario(t *testing.T) {
	r := newTestRecognizer(t, nil)

	analysis := &schemas.ContextAnalysis{IsCompliant: true}
	result := r.RecognizeIntent(context.Background(), "remind me to call mom at 18:30", analysis, "user-1")

	intent := result.Intent
	assert.Equal(t, schemas.IntentCommunication, intent.Type)
	assert.Equal(t, "communication.call", intent.SpecificIntent)
	assert.Equal(t, "18:30", intent.Parameters["time"])
	assert.GreaterOrEqual(t, intent.ConfidenceScore, 0.5)
	assert.Empty(t, result.BiasWarnings)
	assert.True(t, intent.IsCompliant)

	// Communication needs contacts; the extracted time adds calendar.
	assert.Contains(t, intent.RequiredPermissions, schemas.PermissionContacts)
	assert.Contains(t, intent.RequiredPermissions, schemas.PermissionCalendar)
}

func TestRecognizeIntent_CacheIdentity(t *testing.T) {
	r := newTestRecognizer(t, nil)

	current := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r.SetClock(func() time.Time { return current })

	first := r.RecognizeIntent(context.Background(), "call mom", nil, "user-1")
	second := r.RecognizeIntent(context.Background(), "Call   MOM!", nil, "user-1")
	assert.Equal(t, first.Intent.ID, second.Intent.ID, "normalization collapses to the same cache entry")

	other := r.RecognizeIntent(context.Background(), "call mom", nil, "user-2")
	assert.NotEqual(t, first.Intent.ID, other.Intent.ID)

	current = current.Add(11 * time.Minute)
	third := r.RecognizeIntent(context.Background(), "call mom", nil, "user-1")
	assert.NotEqual(t, first.Intent.ID, third.Intent.ID, "a new intent is minted after TTL expiry")
}

func TestRecognizeIntent_LowConfidenceNonCompliant(t *testing.T) {
	r := newTestRecognizer(t, nil)

	// Unknown type, no specific intent, no parameters, no context: 0.5.
	result := r.RecognizeIntent(context.Background(), "zzz qqq", nil, "user-1")
	assert.Equal(t, schemas.IntentUnknown, result.Intent.Type)
	assert.InDelta(t, 0.5, result.Intent.ConfidenceScore, 0.001)
	assert.False(t, result.Intent.IsCompliant)
	require.NotEmpty(t, result.Intent.ComplianceIssues)
	assert.Contains(t, result.Intent.ComplianceIssues[0], "below threshold")
}

func TestRecognizeIntent_BiasGate(t *testing.T) {
	r := newTestRecognizer(t, nil)

	// The classification itself is confident, but the bias gate still fires.
	result := r.RecognizeIntent(context.Background(),
		"call mom at 18:30 because women are emotional and girls are weak for a girl", nil, "user-1")

	assert.Greater(t, result.BiasScores[BiasGender], 0.3)
	assert.NotEmpty(t, result.BiasWarnings)
	assert.False(t, result.Intent.IsCompliant)
}

func TestRecognizeIntent_OptOut(t *testing.T) {
	ctx := context.Background()
	r := newTestRecognizer(t, nil)

	require.NoError(t, r.OptOut(ctx, "user-1"))

	t.Run("opted-out user gets a failed intent", func(t *testing.T) {
		result := r.RecognizeIntent(ctx, "call mom", nil, "user-1")
		assert.Equal(t, schemas.IntentUnknown, result.Intent.Type)
		assert.False(t, result.Intent.IsCompliant)
		assert.Contains(t, result.Intent.ComplianceIssues, "user has opted out of intent recognition")
		assert.Zero(t, result.Intent.ConfidenceScore)
	})

	t.Run("opt-out is idempotent", func(t *testing.T) {
		require.NoError(t, r.OptOut(ctx, "user-1"))
		optedOut, err := r.IsOptedOut(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, optedOut)
	})

	t.Run("opt-in restores recognition", func(t *testing.T) {
		require.NoError(t, r.OptIn(ctx, "user-1"))
		result := r.RecognizeIntent(ctx, "call mom", nil, "user-1")
		assert.Equal(t, schemas.IntentCommunication, result.Intent.Type)
	})

	t.Run("other users are unaffected", func(t *testing.T) {
		require.NoError(t, r.OptOut(ctx, "user-1"))
		result := r.RecognizeIntent(ctx, "call mom", nil, "user-2")
		assert.Equal(t, schemas.IntentCommunication, result.Intent.Type)
	})

	t.Run("empty user cannot opt out", func(t *testing.T) {
		assert.Error(t, r.OptOut(ctx, ""))
	})
}

func TestRecognizeIntent_AIClassifier(t *testing.T) {
	t.Run("valid response wins", func(t *testing.T) {
		llm := &fakeLLM{response: `Sure: {"intent_type": "navigation", "specific_intent": "navigation.commute"}`}
		r := newTestRecognizer(t, llm)

		result := r.RecognizeIntent(context.Background(), "take me somewhere nice", nil, "user-1")
		assert.Equal(t, schemas.IntentNavigation, result.Intent.Type)
		assert.Equal(t, "navigation.commute", result.Intent.SpecificIntent)
		assert.Equal(t, 1, llm.calls)
	})

	t.Run("invocation error falls back to rules", func(t *testing.T) {
		llm := &fakeLLM{err: errors.New("model unavailable")}
		r := newTestRecognizer(t, llm)

		result := r.RecognizeIntent(context.Background(), "call mom", nil, "user-1")
		assert.Equal(t, schemas.IntentCommunication, result.Intent.Type)
	})

	t.Run("garbage response falls back to rules", func(t *testing.T) {
		llm := &fakeLLM{response: "I cannot classify that."}
		r := newTestRecognizer(t, llm)

		result := r.RecognizeIntent(context.Background(), "call mom", nil, "user-1")
		assert.Equal(t, schemas.IntentCommunication, result.Intent.Type)
	})

	t.Run("out-of-set type falls back to rules", func(t *testing.T) {
		llm := &fakeLLM{response: `{"intent_type": "TELEPORTATION", "specific_intent": "x"}`}
		r := newTestRecognizer(t, llm)

		result := r.RecognizeIntent(context.Background(), "call mom", nil, "user-1")
		assert.Equal(t, schemas.IntentCommunication, result.Intent.Type)
	})
}

func TestRequiredPermissions_ParameterAugmentation(t *testing.T) {
	r := newTestRecognizer(t, nil)

	result := r.RecognizeIntent(context.Background(), "navigate to dinner in berlin at 19:00", nil, "user-1")
	require.Equal(t, schemas.IntentNavigation, result.Intent.Type)
	assert.Contains(t, result.Intent.RequiredPermissions, schemas.PermissionLocation)
	assert.Contains(t, result.Intent.RequiredPermissions, schemas.PermissionCalendar)

	// Location appears once despite being implied twice (type and parameter).
	count := 0
	for _, p := range result.Intent.RequiredPermissions {
		if p == schemas.PermissionLocation {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
