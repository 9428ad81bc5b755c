package interceptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// S6 — an upstream cruise command observed on CAR suppresses the ADAS
// duplicate for the 150ms window, then stops suppressing once it elapses.
func TestInterceptor_SuppressesDuplicateWithinWindow(t *testing.T) {
	i := New()

	v := i.Forward(1_000, BusCAR, BusADAS, CruiseCommandAddress)
	assert.Equal(t, VerdictForward, v, "the CAR-sourced command itself is always forwarded")

	v = i.Forward(1_100, BusADAS, BusCAR, CruiseCommandAddress)
	assert.Equal(t, VerdictDrop, v, "ADAS duplicate within the window must be dropped")

	v = i.Forward(1_000+blockWindowUs+1, BusADAS, BusCAR, CruiseCommandAddress)
	assert.Equal(t, VerdictForward, v, "once the window elapses the ADAS command is no longer foreign")
}

func TestInterceptor_UnrelatedAddressAlwaysForwarded(t *testing.T) {
	i := New()
	i.Forward(1_000, BusCAR, BusADAS, CruiseCommandAddress)

	v := i.Forward(1_050, BusADAS, BusCAR, 0x220)
	assert.Equal(t, VerdictForward, v)
}

// Invariant 7: interceptor hysteresis — blockForeign only becomes true while
// within blockWindowUs of the last CAR-sourced cruise command, and reverts
// to false exactly once that window has elapsed.
func TestInterceptor_Hysteresis(t *testing.T) {
	i := New()
	assert.False(t, i.BlockForeignSource(), "no activity observed yet")

	i.Forward(0, BusCAR, BusADAS, CruiseCommandAddress)
	i.Forward(0, BusADAS, BusCAR, 0x1) // recompute without touching the timestamp
	assert.True(t, i.BlockForeignSource())

	i.Forward(blockWindowUs, BusADAS, BusCAR, 0x1)
	assert.True(t, i.BlockForeignSource(), "window boundary is inclusive")

	i.Forward(blockWindowUs+1, BusADAS, BusCAR, 0x1)
	assert.False(t, i.BlockForeignSource())
}

func TestInterceptor_TXObservedRewritesWhileBlocking(t *testing.T) {
	i := New()
	i.Forward(1_000, BusCAR, BusADAS, CruiseCommandAddress)
	i.Forward(1_050, BusADAS, BusCAR, 0x1) // recompute blockForeign

	rewritten := i.TXObserved(1_060, BusADAS, CruiseCommandAddress)
	assert.Equal(t, CruiseCommandAddress|RewriteMask, rewritten)

	passthrough := i.TXObserved(1_070, BusCAR, CruiseCommandAddress)
	assert.Equal(t, CruiseCommandAddress, passthrough)
}

func TestDefaultDestination(t *testing.T) {
	assert.Equal(t, BusADAS, DefaultDestination(BusCAR))
	assert.Equal(t, BusCAR, DefaultDestination(BusADAS))
	assert.Equal(t, BusAUX, DefaultDestination(BusAUX))
}
