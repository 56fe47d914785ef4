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
	"github.com/rs/zerolog"

	"github.com/ntaylor-go/rmc/internal/execution"
)

// config collects every knob Run honors, one field per CLI flag the
// front end would expose plus the ambient logging/analyzer wiring a Go
// embedding needs instead of flag parsing.
type config struct {
	exec         execution.Config
	logger       zerolog.Logger
	verbosity    int
	analyzerName string
	analyzerOpts []string
}

func defaultConfig() *config {
	return &config{
		exec:   execution.DefaultConfig(),
		logger: zerolog.Nop(),
	}
}

// Option configures a Run call, following the functional-options pattern.
type Option interface {
	apply(*config) error
}

type optionFunc struct {
	fn func(*config) error
}

func (o *optionFunc) apply(c *config) error {
	return o.fn(c)
}

func newOption(fn func(*config) error) Option {
	return &optionFunc{fn: fn}
}

// resolveOptions applies opts in order over a fresh default config,
// skipping nil entries (a caller may thread through an optional Option
// computed conditionally).
func resolveOptions(opts []Option) (*config, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// WithMaxReads sets the maxreads liveness bound (CLI -m): the number of
// times one thread may read the same value from the same location while
// other read-from candidates exist before the execution is deemed
// redundant.
func WithMaxReads(n int) Option {
	return newOption(func(c *config) error {
		c.exec.MaxReads = n
		return nil
	})
}

// WithMaxFutureValues sets the maximum number of future (not-yet-written)
// values a read may speculate (CLI -M).
func WithMaxFutureValues(n int) Option {
	return newOption(func(c *config) error {
		c.exec.MaxFutureValues = n
		return nil
	})
}

// WithMaxFutureDelay sets the maximum number of actions a promised future
// value may remain unsatisfied before expiring (CLI -s).
func WithMaxFutureDelay(n uint64) Option {
	return newOption(func(c *config) error {
		c.exec.MaxFutureDelay = n
		return nil
	})
}

// WithExpireSlop sets the promise expiration slop (CLI -S).
func WithExpireSlop(n uint64) Option {
	return newOption(func(c *config) error {
		c.exec.ExpireSlop = n
		return nil
	})
}

// WithFairnessWindow sets the fairness window in steps (CLI -f).
func WithFairnessWindow(n int) Option {
	return newOption(func(c *config) error {
		c.exec.FairnessWindow = n
		return nil
	})
}

// WithEnabledThreshold sets the enabled-count threshold that triggers
// fairness priority (CLI -e).
func WithEnabledThreshold(n int) Option {
	return newOption(func(c *config) error {
		c.exec.EnabledThreshold = n
		return nil
	})
}

// WithStepBound sets the hard cap on scheduling steps (one per thread
// selection in the checker's driver loop) per execution, beyond which the
// execution is abandoned as redundant (CLI -b).
func WithStepBound(n int) Option {
	return newOption(func(c *config) error {
		c.exec.StepBound = n
		return nil
	})
}

// WithYieldFairness enables thread_yield-driven fairness bookkeeping
// (CLI -y).
func WithYieldFairness(enabled bool) Option {
	return newOption(func(c *config) error {
		c.exec.YieldFairness = enabled
		return nil
	})
}

// WithProhibitYield rejects thread_yield as a correctness-relevant
// operation, treating it as a no-op hint only (CLI -Y).
func WithProhibitYield(enabled bool) Option {
	return newOption(func(c *config) error {
		c.exec.ProhibitYield = enabled
		return nil
	})
}

// WithUninitValue sets the value fabricated for a read with no prior
// write on its location (CLI -u).
func WithUninitValue(v uint64) Option {
	return newOption(func(c *config) error {
		c.exec.UninitValue = v
		return nil
	})
}

// WithVerbosity sets the logging verbosity (CLI -v[N]): 0 disables
// execution-lifecycle logging (the default, zerolog.Nop()), 1 enables
// info-level, 2 or more enables debug-level per-action logging.
func WithVerbosity(n int) Option {
	return newOption(func(c *config) error {
		c.verbosity = n
		switch {
		case n <= 0:
			c.logger = zerolog.Nop()
		case n == 1:
			c.logger = zerolog.New(zerolog.NewConsoleWriter()).Level(zerolog.InfoLevel).With().Timestamp().Logger()
		default:
			c.logger = zerolog.New(zerolog.NewConsoleWriter()).Level(zerolog.DebugLevel).With().Timestamp().Logger()
		}
		return nil
	})
}

// WithLogger substitutes the zerolog.Logger the engine logs through,
// overriding whatever WithVerbosity selected. Use this to route
// execution-lifecycle events into an embedding application's own sink.
func WithLogger(logger zerolog.Logger) Option {
	return newOption(func(c *config) error {
		c.logger = logger
		return nil
	})
}

// WithAnalyzer selects the named trace analyzer (CLI -t NAME) and passes
// it zero or more configuration strings (CLI -o OPT, repeatable). Run
// reports ErrUnknownAnalyzer if name is not in its analyzer catalog.
func WithAnalyzer(name string, opts ...string) Option {
	return newOption(func(c *config) error {
		c.analyzerName = name
		c.analyzerOpts = opts
		return nil
	})
}
