package plugin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ntaylor-go/rmc/internal/action"
	"github.com/ntaylor-go/rmc/internal/clock"
	"github.com/ntaylor-go/rmc/internal/plugin"
)

func cv(entries ...uint64) *clock.Vector {
	v := clock.New()
	for tid, seq := range entries {
		v.Set(tid, seq)
	}
	return v
}

func TestSCAnalysisNameAndOption(t *testing.T) {
	sc := plugin.NewSCAnalysis()
	assert.Equal(t, "sc-check", sc.Name())
	assert.NoError(t, sc.Option("strict"))
}

func TestSCAnalysisOrdersSequentialThread(t *testing.T) {
	sc := plugin.NewSCAnalysis()
	trace := []*action.Action{
		{Type: action.Write, Tid: 0, Seq: 1, Clock: cv(1)},
		{Type: action.Write, Tid: 0, Seq: 2, Clock: cv(2)},
		{Type: action.Read, Tid: 0, Seq: 3, Clock: cv(3)},
	}
	sc.Analyze(trace)
	reports := sc.Reports()
	assert.Len(t, reports, 1)
	assert.Empty(t, reports[0].Violations)
	assert.Equal(t, trace, reports[0].Order)
}

func TestSCAnalysisOrdersSynchronizedCrossThread(t *testing.T) {
	sc := plugin.NewSCAnalysis()
	release := &action.Action{Type: action.Write, Tid: 0, Seq: 1, Clock: cv(1)}
	acquire := &action.Action{Type: action.Read, Tid: 1, Seq: 1, Clock: cv(1, 1)}
	trace := []*action.Action{release, acquire}

	sc.Analyze(trace)
	report := sc.Reports()[0]
	assert.Empty(t, report.Violations)
	assert.Equal(t, []*action.Action{release, acquire}, report.Order)
}

func TestSCAnalysisFinishIsIdempotent(t *testing.T) {
	sc := plugin.NewSCAnalysis()
	sc.Analyze(nil)
	sc.Finish()
	sc.Finish()
	assert.Len(t, sc.Reports(), 1)
}

func TestRegistryFansOutToAnalyzers(t *testing.T) {
	reg := plugin.NewRegistry()
	sc := plugin.NewSCAnalysis()
	reg.Register(sc)

	trace := []*action.Action{{Type: action.Write, Tid: 0, Seq: 1, Clock: cv(1)}}
	reg.Analyze(trace)
	reg.Finish()

	assert.Len(t, sc.Reports(), 1)
}
