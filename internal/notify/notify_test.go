package notify

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelhq/kestrel/api/schemas"
)

func promptAction() schemas.AutonomousAction {
	return schemas.AutonomousAction{
		ID:          "action-1",
		Description: "notify action: surface the daily digest",
		RiskLevel:   schemas.RiskLow,
	}
}

func TestFunc_Adapts(t *testing.T) {
	f := Func(func(_ context.Context, action schemas.AutonomousAction) (bool, error) {
		return action.ID == "action-1", nil
	})
	approved, err := f.ShowApprovalPrompt(context.Background(), promptAction())
	require.NoError(t, err)
	assert.True(t, approved)
}

func TestConsole_Answers(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		approved bool
	}{
		{"y approves", "y\n", true},
		{"yes approves", "yes\n", true},
		{"case and whitespace ignored", "  YES  \n", true},
		{"n denies", "n\n", false},
		{"anything else denies", "sure, go ahead\n", false},
		{"empty line denies", "\n", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			c := NewConsole(strings.NewReader(tc.input), &out, nil)

			approved, err := c.ShowApprovalPrompt(context.Background(), promptAction())
			require.NoError(t, err)
			assert.Equal(t, tc.approved, approved)
			assert.Contains(t, out.String(), "Approval required")
			assert.Contains(t, out.String(), "surface the daily digest")
		})
	}
}

func TestConsole_TimeoutDenies(t *testing.T) {
	var out bytes.Buffer
	// A reader that never delivers a line.
	blocked := make(chan struct{})
	t.Cleanup(func() { close(blocked) })
	c := NewConsole(blockingReader{unblock: blocked}, &out, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	approved, err := c.ShowApprovalPrompt(ctx, promptAction())
	assert.False(t, approved)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, out.String(), "denying")
}

// blockingReader blocks Read until unblock is closed, then reports EOF.
type blockingReader struct {
	unblock chan struct{}
}

func (r blockingReader) Read(_ []byte) (int, error) {
	<-r.unblock
	return 0, io.EOF
}
