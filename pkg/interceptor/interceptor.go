// Package interceptor implements the forward-bus interceptor state machine
// (C5, spec.md §4.5): a recent-activity timer that decides, per CAN frame,
// whether the factory ADAS unit's duplicate cruise command must be
// suppressed while an upstream controller on the CAR bus is active.
package interceptor

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Bus indices named in spec.md §4.5.
const (
	BusCAR  uint8 = 0
	BusAUX  uint8 = 1
	BusADAS uint8 = 2
)

// CruiseCommandAddress is the message of interest: the cruise-control
// command address.
const CruiseCommandAddress uint32 = 0x1A0

// RewriteMask is ORed into CruiseCommandAddress when an ADAS-sourced command
// is being diverted away from the vehicle.
const RewriteMask uint32 = 0x800

// blockWindowUs is the 150ms grace window from spec.md §4.5.
const blockWindowUs uint32 = 150_000

// Verdict is the per-frame decision returned by Forward.
type Verdict int

const (
	// VerdictForward allows the frame through unchanged.
	VerdictForward Verdict = iota
	// VerdictDrop suppresses the frame entirely.
	VerdictDrop
)

// elapsed computes wraparound-safe microsecond deltas on a free-running
// uint32 counter. Declared locally (rather than imported from the root
// package) so this package has no dependency on udssniffer — the
// interceptor is a standalone consumer of the same CAN traffic, not a
// consumer of the sniffer's output.
func elapsed(now, then uint32) uint32 {
	return now - then
}

// Interceptor is the hosted-process form of the single shared interceptor
// state described in spec.md §3: a last-observed timestamp and the boolean
// derived from it. Safe for concurrent use: TXObserved is normally called
// from the CAN TX path and Forward from the bridging path, which may run on
// different goroutines.
type Interceptor struct {
	mu             sync.Mutex
	lastObservedUs uint32
	blockForeign   bool
	logger         *log.Entry
}

// New creates an Interceptor with no prior activity observed.
func New() *Interceptor {
	return &Interceptor{logger: log.WithField("component", "interceptor")}
}

// TXObserved is the TX-observation hook (spec.md §4.5). Call it for every
// outbound frame before it is handed to the driver. It returns the frame's
// address, rewritten if the frame must be diverted; the caller should always
// transmit the returned address (the hook never vetoes transmission).
func (i *Interceptor) TXObserved(now uint32, bus uint8, address uint32) uint32 {
	i.mu.Lock()
	defer i.mu.Unlock()

	if address == CruiseCommandAddress && bus == BusCAR {
		i.lastObservedUs = now
	}
	if i.blockForeign && address == CruiseCommandAddress && bus == BusADAS {
		rewritten := address | RewriteMask
		i.logger.WithFields(log.Fields{"from": address, "to": rewritten}).
			Debug("diverting ADAS-sourced cruise command")
		return rewritten
	}
	return address
}

// Forward is the forward-bus hook (spec.md §4.5). defaultDestination is the
// bus the firmware would bridge this frame onto by default (CAR<->ADAS);
// callers outside that pair (e.g. AUX) should pass whatever their own
// bridging topology dictates. Forward recomputes the hysteresis boolean
// before deciding.
func (i *Interceptor) Forward(now uint32, source, destination uint8, address uint32) Verdict {
	i.mu.Lock()
	defer i.mu.Unlock()

	if address == CruiseCommandAddress && source == BusCAR {
		i.lastObservedUs = now
	}
	i.blockForeign = elapsed(now, i.lastObservedUs) <= blockWindowUs

	if i.blockForeign && address == CruiseCommandAddress && (source == BusADAS || destination == BusADAS) {
		return VerdictDrop
	}
	return VerdictForward
}

// DefaultDestination returns the opposite bus in the CAR<->ADAS bridging
// pair, per spec.md §4.5's "default destination is the opposite of source".
// Any bus other than CAR or ADAS (e.g. AUX) is left to the caller's own
// topology and is returned unchanged.
func DefaultDestination(source uint8) uint8 {
	switch source {
	case BusCAR:
		return BusADAS
	case BusADAS:
		return BusCAR
	default:
		return source
	}
}

// BlockForeignSource reports the interceptor's current hysteresis state
// without recomputing it — useful for diagnostics. Forward is the only
// method that advances the state machine.
func (i *Interceptor) BlockForeignSource() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.blockForeign
}
