package fiber_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ntaylor-go/rmc/internal/action"
	"github.com/ntaylor-go/rmc/internal/fiber"
)

func TestSwitchToRendezvous(t *testing.T) {
	var observed []uint64
	f := fiber.New(0, func(c *fiber.Controller) {
		r := c.SwitchToMaster(&action.Action{Type: action.Read})
		observed = append(observed, r.Value)
		c.SwitchToMaster(&action.Action{Type: action.Write})
	})

	pending, ok := f.SwitchTo(fiber.Resume{})
	assert.True(t, ok)
	assert.Equal(t, action.Read, pending.Action.Type)

	pending, ok = f.SwitchTo(fiber.Resume{Value: 42})
	assert.True(t, ok)
	assert.Equal(t, action.Write, pending.Action.Type)
	assert.Equal(t, []uint64{42}, observed)
}

func TestSwitchToMasterRMWCarriesFuncOnPending(t *testing.T) {
	f := fiber.New(0, func(c *fiber.Controller) {
		r := c.SwitchToMasterRMW(7, action.AcqRel, func(old uint64) uint64 { return old + 1 })
		_ = r
	})

	pending, ok := f.SwitchTo(fiber.Resume{})
	assert.True(t, ok)
	assert.Equal(t, action.RMWRead, pending.Action.Type)
	assert.EqualValues(t, 7, pending.Action.Loc)
	assert.NotNil(t, pending.RMWFunc)
	assert.EqualValues(t, 6, pending.RMWFunc(5))
}

func TestSwitchToAfterFinishReturnsFalse(t *testing.T) {
	f := fiber.New(0, func(c *fiber.Controller) {})

	_, ok := f.SwitchTo(fiber.Resume{})
	assert.False(t, ok, "a fiber that never suspends again finishes immediately")
}
