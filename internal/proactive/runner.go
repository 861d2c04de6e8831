// File: internal/proactive/runner.go
// Description: The execution boundary for scheduled actions. The shipped
// runner simulates work; hosts plug real effectors in behind the same
// interface.

package proactive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kestrelhq/kestrel/api/schemas"
)

// ActionRunner performs the actual work of one action. Run must honor ctx
// cancellation; the engine enforces the execution-limit ceiling through it.
type ActionRunner interface {
	Run(ctx context.Context, action schemas.AutonomousAction) (string, error)
}

// RunnerFunc adapts a function to the ActionRunner interface.
type RunnerFunc func(ctx context.Context, action schemas.AutonomousAction) (string, error)

func (f RunnerFunc) Run(ctx context.Context, action schemas.AutonomousAction) (string, error) {
	return f(ctx, action)
}

// SimulatedRunner pretends to execute actions. With a zero Delay it completes
// immediately; tests set Delay past the execution ceiling to exercise the
// timeout path.
type SimulatedRunner struct {
	Delay time.Duration
	Err   error
}

func (s *SimulatedRunner) Run(ctx context.Context, action schemas.AutonomousAction) (string, error) {
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if s.Err != nil {
		return "", s.Err
	}
	return fmt.Sprintf("simulated %s action completed", strings.ToLower(string(action.Type))), nil
}

var _ ActionRunner = (*SimulatedRunner)(nil)
