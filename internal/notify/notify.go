// File: internal/notify/notify.go
// Description: Approval prompt delivery. The engine enforces the response
// timeout through the context it passes in; expiry always resolves to deny.

package notify

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kestrelhq/kestrel/api/schemas"
)

// Func adapts a plain function to the Notifier interface.
type Func func(ctx context.Context, action schemas.AutonomousAction) (bool, error)

// ShowApprovalPrompt implements schemas.Notifier.
func (f Func) ShowApprovalPrompt(ctx context.Context, action schemas.AutonomousAction) (bool, error) {
	return f(ctx, action)
}

// Console prompts for approval on a terminal. Reads are serialized so two
// concurrent prompts never interleave on the same stream.
type Console struct {
	logger *zap.Logger
	out    io.Writer

	mu sync.Mutex
	in *bufio.Reader
}

// NewConsole creates a terminal notifier reading from in and writing to out.
func NewConsole(in io.Reader, out io.Writer, logger *zap.Logger) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Console{
		logger: logger.Named("notify.console"),
		in:     bufio.NewReader(in),
		out:    out,
	}
}

// ShowApprovalPrompt implements schemas.Notifier. It blocks until the user
// answers or ctx expires; expiry resolves to deny.
func (c *Console) ShowApprovalPrompt(ctx context.Context, action schemas.AutonomousAction) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\nApproval required [%s risk]: %s\nAllow? [y/N]: ", action.RiskLevel, action.Description)

	type answer struct {
		approved bool
		err      error
	}
	answerChan := make(chan answer, 1)

	go func() {
		line, err := c.in.ReadString('\n')
		if err != nil {
			answerChan <- answer{err: err}
			return
		}
		reply := strings.ToLower(strings.TrimSpace(line))
		answerChan <- answer{approved: reply == "y" || reply == "yes"}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(c.out, "\nNo response; denying.")
		c.logger.Info("Approval prompt timed out, defaulting to deny",
			zap.String("action_id", action.ID))
		return false, ctx.Err()
	case a := <-answerChan:
		if a.err != nil {
			return false, fmt.Errorf("failed to read approval response: %w", a.err)
		}
		return a.approved, nil
	}
}

var (
	_ schemas.Notifier = (*Console)(nil)
	_ schemas.Notifier = (Func)(nil)
)
