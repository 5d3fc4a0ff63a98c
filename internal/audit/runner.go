// Package audit defines the common static-analysis runner contract and
// fans a ContractSource out to the configured runners concurrently
// (spec.md §4.2, §5 "audit fan-out").
package audit

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hyperion-agent/contractforge/internal/model"
)

// Runner is the common contract every analyzer adapter implements. The set
// of runners is a closed set of tagged variants (pattern, symbolic, llm) —
// spec.md §9 "Runner polymorphism -> tagged variants" — not an open
// inheritance hierarchy.
type Runner interface {
	// Name identifies the runner as the Finding.Detector value.
	Name() string
	// Run scans source and returns zero or more Findings. It must never
	// return an error for syntactically invalid source; RunnerError is
	// reserved for the runner itself failing to execute (spec.md §4.2).
	Run(ctx context.Context, src model.ContractSource) ([]model.Finding, error)
}

// runnerResult is the fan-in unit collected from one runner's goroutine.
type runnerResult struct {
	detector string
	findings []model.Finding
	err      error
}

// RunAll executes every runner concurrently, awaiting all of them before
// returning (spec.md §5: "task joins are awaited before the consensus
// step"). A runner that returns RunnerError contributes zero findings and is
// logged; it does not abort the fan-out.
func RunAll(ctx context.Context, logger *slog.Logger, src model.ContractSource, runners []Runner) []model.Finding {
	results := make(chan runnerResult, len(runners))
	var wg sync.WaitGroup

	for _, r := range runners {
		wg.Add(1)
		go func(r Runner) {
			defer wg.Done()
			findings, err := r.Run(ctx, src)
			results <- runnerResult{detector: r.Name(), findings: findings, err: err}
		}(r)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var all []model.Finding
	for res := range results {
		if res.err != nil {
			logger.Warn("runner error, treated as zero findings",
				slog.String("detector", res.detector),
				slog.String("error", res.err.Error()))
			continue
		}
		all = append(all, res.findings...)
	}
	return all
}
