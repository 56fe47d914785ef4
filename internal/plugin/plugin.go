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

// Package plugin defines the trace-analyzer extension point: a plugin
// observes the committed action list at the end of each complete
// execution and may accumulate cross-execution state, reported once
// exploration as a whole finishes.
package plugin

import "github.com/ntaylor-go/rmc/internal/action"

// Execution is the narrow view of engine state a plugin needs: enough to
// attribute findings to the right run without coupling plugins to the
// execution package's internals.
type Execution interface {
	Trace() []*action.Action
}

// Analyzer is the trace-analyzer plugin contract (spec.md §6): name for
// CLI selection, option for CLI-supplied configuration, set_execution to
// receive the owning execution before analysis, analyze at the end of
// each complete execution, and finish once every execution has run.
type Analyzer interface {
	Name() string
	Option(opt string) error
	SetExecution(exec Execution)
	Analyze(trace []*action.Action)
	Finish()
}

// Registry holds the analyzers selected for a checker run and fans the
// engine's end-of-execution and end-of-exploration calls out to each.
type Registry struct {
	analyzers []Analyzer
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an analyzer, in the order it should receive callbacks.
func (r *Registry) Register(a Analyzer) {
	r.analyzers = append(r.analyzers, a)
}

// SetExecution forwards the owning execution to every registered analyzer.
func (r *Registry) SetExecution(exec Execution) {
	for _, a := range r.analyzers {
		a.SetExecution(exec)
	}
}

// Analyze forwards one execution's committed trace to every analyzer.
func (r *Registry) Analyze(trace []*action.Action) {
	for _, a := range r.analyzers {
		a.Analyze(trace)
	}
}

// Finish notifies every analyzer that exploration as a whole is done.
func (r *Registry) Finish() {
	for _, a := range r.analyzers {
		a.Finish()
	}
}
