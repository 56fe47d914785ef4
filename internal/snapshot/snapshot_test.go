package snapshot_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ntaylor-go/rmc/internal/snapshot"
)

func TestRestartTokensAreMonotonic(t *testing.T) {
	var s snapshot.Snapshotter = snapshot.NewRestart()
	a := s.TakeSnapshot()
	b := s.TakeSnapshot()
	assert.Less(t, int(a), int(b))
}

func TestRestartRollBackAndRegisterRegionAreInert(t *testing.T) {
	s := snapshot.NewRestart()
	tok := s.TakeSnapshot()
	assert.NotPanics(t, func() { s.RollBack(tok) })
	assert.NotPanics(t, func() {
		s.RegisterRegion("x", func() interface{} { return nil }, func(interface{}) {})
	})
}
