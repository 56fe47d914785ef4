// Copyright 2020 Nathan Taylor (nbtaylor@gmail.com)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package rmc

import (
	"fmt"

	"github.com/ntaylor-go/rmc/internal/checker"
	"github.com/ntaylor-go/rmc/internal/execution"
	"github.com/ntaylor-go/rmc/internal/fiber"
	"github.com/ntaylor-go/rmc/internal/plugin"
)

// analyzerCatalog lists every trace analyzer Run knows how to construct,
// keyed by the name WithAnalyzer selects (spec.md §6 "-t NAME").
var analyzerCatalog = map[string]func() plugin.Analyzer{
	"sc-check": func() plugin.Analyzer { return plugin.NewSCAnalysis() },
}

// Bug is one defect recorded against a specific explored execution.
type Bug struct {
	Execution int
	Kind      string
	Message   string
}

// Report summarizes everything Run observed across every execution it
// explored (spec.md §7 taxonomy, §6 CLI "exit code 0 regardless of bugs").
type Report struct {
	Executions int
	Redundant  int
	Bugs       []Bug
}

func bugKindName(k execution.BugKind) string {
	switch k {
	case execution.BugDeadlock:
		return "deadlock"
	case execution.BugDataRace:
		return "data-race"
	case execution.BugAssertionFailure:
		return "assertion-failure"
	default:
		return "user"
	}
}

// Run drives userMain to completion under every thread-interleaving
// alternative the engine's backtracking discovers (spec.md §4.H "while
// next_execution(): ..."), returning a summary Report once the decision
// tree is exhausted. Atomics, Mutexes, and CondVars userMain touches must
// already exist before Run is called — Run replays userMain once per
// explored execution, and their identity must stay stable across every
// replay.
func Run(userMain func(*T), opts ...Option) (*Report, error) {
	if userMain == nil {
		return nil, ErrNilUserMain
	}
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	registry := plugin.NewRegistry()
	if cfg.analyzerName != "" {
		ctor, ok := analyzerCatalog[cfg.analyzerName]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAnalyzer, cfg.analyzerName)
		}
		analyzer := ctor()
		for _, opt := range cfg.analyzerOpts {
			if err := analyzer.Option(opt); err != nil {
				return nil, fmt.Errorf("rmc: configuring analyzer %q: %w", cfg.analyzerName, err)
			}
		}
		registry.Register(analyzer)
	}

	c := checker.New(cfg.exec, cfg.logger)
	report := &Report{}

	var lastExec *execution.Execution
	for c.NextExecution(lastExec) {
		var d *checker.Driver
		d = checker.NewDriver(cfg.exec, cfg.logger, func(ctrl *fiber.Controller) {
			userMain(&T{tid: 0, ctrl: ctrl, driver: d})
		})
		if forced := c.ForcedSchedule(); len(forced) > 0 {
			d.SetForcedSchedule(forced)
		}
		d.SetSleepSiblings(c.SleepSiblings())

		result := d.Run()
		lastExec = d.Execution()

		report.Executions++
		if lastExec.Redundant() {
			report.Redundant++
		}
		for _, b := range result.Bugs {
			report.Bugs = append(report.Bugs, Bug{
				Execution: report.Executions,
				Kind:      bugKindName(b.Kind),
				Message:   b.Message,
			})
		}

		registry.SetExecution(lastExec)
		registry.Analyze(result.Trace)
	}
	registry.Finish()

	return report, nil
}
