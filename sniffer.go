package udssniffer

import (
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// Sniffer is the thin façade (C3) described in spec.md §4.3: it gates the
// reassembler on an enable flag and owns the installed address filter. The
// CAN driver (or whatever adapts it) calls OfferFrame for every frame it
// sees and Tick on its own periodic schedule.
type Sniffer struct {
	reassembler *Reassembler
	enabled     atomic.Bool
	mu          sync.Mutex
	addrFilter  AddressFilter
	logger      *log.Entry
}

// NewSniffer creates a disabled Sniffer wrapping a fresh Reassembler driven
// by clock.
func NewSniffer(clock Clock) *Sniffer {
	return &Sniffer{
		reassembler: NewReassembler(clock),
		logger:      log.WithField("component", "sniffer"),
	}
}

// Init clears all sessions and disables the sniffer, matching
// uds_sniffer_init()'s "re-init clears sessions and disables before
// re-configuring" contract (spec.md §4.3).
func (s *Sniffer) Init() {
	s.enabled.Store(false)
	s.mu.Lock()
	s.addrFilter = nil
	s.mu.Unlock()
	s.reassembler.Init()
}

// Enable gates OfferFrame. When false, OfferFrame is a no-op that always
// returns false.
func (s *Sniffer) Enable(enable bool) {
	s.enabled.Store(enable)
}

// Enabled reports the current enable state.
func (s *Sniffer) Enabled() bool {
	return s.enabled.Load()
}

// SetCallbacks installs the classifier sink and the address filter.
// Per spec.md §4.3, (nil, nil) is the documented teardown form. A non-nil
// addrFilter is required before Enable(true) takes effect in practice
// (OfferFrame treats a missing filter as "reject everything"); SetCallbacks
// itself does not reject the combination so that teardown can always
// proceed regardless of current enable state.
func (s *Sniffer) SetCallbacks(classifier ClassifierFunc, addrFilter AddressFilter) {
	s.mu.Lock()
	s.addrFilter = addrFilter
	s.mu.Unlock()
	s.reassembler.SetConsumer(classifier)
}

// OfferFrame is the hot path (spec.md §4.1, §4.3). It returns whether the
// frame was recognised as ISO-TP traffic belonging to an address the
// installed filter accepts.
func (s *Sniffer) OfferFrame(frame Frame) bool {
	if !s.enabled.Load() {
		return false
	}
	s.mu.Lock()
	filter := s.addrFilter
	s.mu.Unlock()
	if filter == nil || !filter(frame.Address) {
		return false
	}
	return s.reassembler.Offer(frame)
}

// Tick reclaims idle sessions. Safe to call even while disabled: Init clears
// every session, and sessions left active by Enable(false) are reclaimed
// once idle.
func (s *Sniffer) Tick() {
	s.reassembler.Tick()
}

// Sessions exposes a read-only snapshot of the reassembler's session table,
// for diagnostics.
func (s *Sniffer) Sessions() []Session {
	return s.reassembler.Sessions()
}
