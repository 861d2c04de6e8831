// File: cmd/app.go
// Description: Assembles the pipeline components for the CLI commands. Each
// command builds a fresh pipeline from the loaded configuration and tears it
// down when done.

package cmd

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/kestrelhq/kestrel/api/schemas"
	"github.com/kestrelhq/kestrel/internal/audit"
	"github.com/kestrelhq/kestrel/internal/config"
	"github.com/kestrelhq/kestrel/internal/contextanalyzer"
	"github.com/kestrelhq/kestrel/internal/decision"
	"github.com/kestrelhq/kestrel/internal/intent"
	"github.com/kestrelhq/kestrel/internal/llmclient"
	"github.com/kestrelhq/kestrel/internal/notify"
	"github.com/kestrelhq/kestrel/internal/observability"
	"github.com/kestrelhq/kestrel/internal/policy"
	"github.com/kestrelhq/kestrel/internal/proactive"
	"github.com/kestrelhq/kestrel/internal/resource"
	"github.com/kestrelhq/kestrel/internal/store"
)

// pipeline bundles every live component behind the CLI.
type pipeline struct {
	cfg    *config.Config
	logger *zap.Logger

	store       schemas.Store
	audit       *audit.Log
	permissions *policy.StaticProvider
	analyzer    schemas.ContextAnalyzer
	recognizer  *intent.Recognizer
	decision    *decision.Engine
	proactive   *proactive.Engine
}

// buildPipeline wires the components in dependency order.
func buildPipeline(ctx context.Context, cfg *config.Config) (*pipeline, error) {
	logger := observability.GetLogger()

	st, err := store.New(cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	if err := st.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	auditLog, err := audit.New(st, logger)
	if err != nil {
		return nil, err
	}
	if err := auditLog.Open(ctx); err != nil {
		return nil, err
	}

	llm, err := llmclient.NewClient(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}

	// The CLI manages grants in-process: everything the policy table allows
	// autonomously starts granted. Hosts with a platform permission subsystem
	// substitute their own provider.
	perms := policy.NewStaticProvider()
	for _, p := range schemas.AllPermissions() {
		if !p.ProhibitedForAutonomous() {
			perms.Grant(p)
		}
	}

	var analyzer schemas.ContextAnalyzer
	base := contextanalyzer.New(cfg.Analyzer, perms, auditLog, logger)
	if llm != nil {
		analyzer = contextanalyzer.NewAIEnhanced(base, llm, logger)
	} else {
		analyzer = base
	}

	recognizer, err := intent.New(cfg.Intent, st, llm, auditLog, logger)
	if err != nil {
		return nil, err
	}

	dec, err := decision.New(cfg.Decision, st, perms, auditLog, logger)
	if err != nil {
		return nil, err
	}

	monitor := resource.NewSimulated(logger, 0)
	notifier := notify.NewConsole(os.Stdin, os.Stdout, logger)

	pro, err := proactive.New(ctx, cfg.Proactive, st, dec, monitor, notifier, auditLog, nil, logger)
	if err != nil {
		return nil, err
	}

	return &pipeline{
		cfg:         cfg,
		logger:      logger,
		store:       st,
		audit:       auditLog,
		permissions: perms,
		analyzer:    analyzer,
		recognizer:  recognizer,
		decision:    dec,
		proactive:   pro,
	}, nil
}

func (p *pipeline) close(ctx context.Context) {
	if err := p.store.Close(ctx); err != nil {
		p.logger.Warn("Failed to close store", zap.Error(err))
	}
}
