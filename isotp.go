// Package udssniffer implements a passive ISO-TP (ISO 15765-2) reassembly
// engine for UDS (ISO 14229) diagnostic traffic observed on CAN buses, plus
// the classifier that turns reassembled payloads into typed messages.
package udssniffer

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

const (
	maxSessions       = 8
	sessionBufferSize = 256
	sessionIdleUs     = 5_000_000 // 5 seconds, spec.md §3/§4.1
)

const (
	pciSingleFrame      = 0x0
	pciFirstFrame       = 0x1
	pciConsecutiveFrame = 0x2
	pciFlowControlFrame = 0x3
)

// Frame is the subset of a CAN frame the reassembler needs. Bus drivers
// adapt their own frame representation into this one; see pkg/can.Frame for
// the wire-level type used by this module's drivers.
type Frame struct {
	Bus     uint8
	Address uint32
	Length  uint8
	Data    [8]byte
}

// Session is the central mutable entity of the reassembler: one in-flight
// (or just-idle) ISO-TP transfer for a (tx, rx, bus) triple. Exported only
// for read-only introspection (diagnostics servers, tests); callers must
// never mutate a Session obtained this way.
type Session struct {
	TxAddr         uint32
	RxAddr         uint32
	Bus            uint8
	Active         bool
	SequenceNumber uint8
	TotalLength    uint16
	ReceivedLength uint16
	LastTimestamp  uint32
	data           [sessionBufferSize]byte
}

// Message is the output of the classifier (C2), produced once a session's
// payload is complete. See classifier.go.
type Message struct {
	ServiceID            uint8
	IsResponse           bool
	IsNegativeResponse   bool
	NegativeResponseCode uint8
	DataIdentifier       uint16
	HasDataIdentifier    bool
	Data                 []byte
	Timestamp            uint32
	TxAddr               uint32
	RxAddr               uint32
	Bus                  uint8
}

// ClassifierFunc receives every successfully reassembled UDS message. A nil
// ClassifierFunc is permitted: sessions still complete and are torn down,
// the completed payload is just dropped on the floor (spec.md §7,
// CallbackNotSet).
type ClassifierFunc func(msg Message)

// Reassembler is the ISO-TP reassembly engine (C1). It owns a fixed table
// of sessions and is safe for concurrent use: frames normally arrive from a
// single CAN RX goroutine and Tick from a separate periodic goroutine, so
// all state is guarded by a mutex per spec.md §5's hosted-process guidance.
type Reassembler struct {
	mu       sync.Mutex
	sessions [maxSessions]Session
	clock    Clock
	consumer ClassifierFunc
	logger   *log.Entry
}

// NewReassembler creates a Reassembler. clock must not be nil.
func NewReassembler(clock Clock) *Reassembler {
	if clock == nil {
		panic("udssniffer: NewReassembler requires a non-nil Clock")
	}
	r := &Reassembler{
		clock:  clock,
		logger: log.WithField("component", "isotp"),
	}
	r.Init()
	return r
}

// Init clears every session slot and removes the installed consumer,
// matching uds_sniffer_init() in the original firmware.
func (r *Reassembler) Init() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.sessions {
		r.sessions[i] = Session{}
	}
	r.consumer = nil
}

// SetConsumer installs (or, with a nil argument, removes) the callback
// invoked for every completed reassembly. A nil consumer is permitted —
// completed sessions are simply not emitted (spec.md §7, CallbackNotSet).
func (r *Reassembler) SetConsumer(consumer ClassifierFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consumer = consumer
}

// Offer feeds one CAN frame to the reassembler. It returns whether the frame
// was recognised as ISO-TP (regardless of whether it advanced a session);
// flow-control frames are recognised and ignored, while frames with an
// unrecognised PCI nibble and zero-length frames return false. The caller (Sniffer, C3) is
// responsible for address filtering before calling Offer — this method does
// not consult an AddressFilter itself.
func (r *Reassembler) Offer(frame Frame) bool {
	if frame.Length == 0 {
		return false
	}
	pci := frame.Data[0] >> 4
	switch pci {
	case pciSingleFrame:
		r.offerSingleFrame(frame)
		return true
	case pciFirstFrame:
		r.offerFirstFrame(frame)
		return true
	case pciConsecutiveFrame:
		r.offerConsecutiveFrame(frame)
		return true
	case pciFlowControlFrame:
		return true
	default:
		return false
	}
}

func (r *Reassembler) offerSingleFrame(frame Frame) {
	length := frame.Data[0] & 0x0F
	if length == 0 || length > 7 {
		return
	}
	roles := classifyAddress(frame.Address)
	now := r.clock()

	r.mu.Lock()
	session := r.findOrCreateSession(roles.tx, roles.rx, frame.Bus, now)
	session.TotalLength = uint16(length)
	session.ReceivedLength = uint16(length)
	session.LastTimestamp = now
	copy(session.data[:length], frame.Data[1:1+length])
	consumer := r.consumer
	msg, ok := buildMessage(session)
	session.Active = false
	r.mu.Unlock()

	if ok && consumer != nil {
		consumer(msg)
	}
}

func (r *Reassembler) offerFirstFrame(frame Frame) {
	totalLength := (uint16(frame.Data[0]&0x0F) << 8) | uint16(frame.Data[1])
	if totalLength <= 7 {
		return
	}
	roles := classifyAddress(frame.Address)
	now := r.clock()

	r.mu.Lock()
	defer r.mu.Unlock()
	session := r.findOrCreateSession(roles.tx, roles.rx, frame.Bus, now)
	if totalLength > sessionBufferSize {
		r.logger.WithFields(log.Fields{"total_length": totalLength, "cap": sessionBufferSize}).
			Debug("first frame total length exceeds buffer capacity, capping")
		totalLength = sessionBufferSize
	}
	session.TotalLength = totalLength
	session.SequenceNumber = 1
	session.LastTimestamp = now
	copied := copy(session.data[:], frame.Data[2:8])
	session.ReceivedLength = uint16(copied)
}

func (r *Reassembler) offerConsecutiveFrame(frame Frame) {
	sequenceNumber := frame.Data[0] & 0x0F
	roles := classifyAddress(frame.Address)
	now := r.clock()

	r.mu.Lock()
	session := r.lookupActiveSession(roles.tx, roles.rx, frame.Bus)
	if session == nil || session.SequenceNumber != sequenceNumber {
		r.mu.Unlock()
		return
	}
	remaining := int(session.TotalLength) - int(session.ReceivedLength)
	toCopy := remaining
	if toCopy > 7 {
		toCopy = 7
	}
	if toCopy <= 0 {
		r.mu.Unlock()
		return
	}
	copy(session.data[session.ReceivedLength:], frame.Data[1:1+toCopy])
	session.ReceivedLength += uint16(toCopy)
	session.SequenceNumber = (session.SequenceNumber + 1) & 0x0F
	session.LastTimestamp = now

	var (
		msg      Message
		complete bool
		consumer ClassifierFunc
	)
	if session.ReceivedLength >= session.TotalLength {
		consumer = r.consumer
		msg, complete = buildMessage(session)
		session.Active = false
	}
	r.mu.Unlock()

	if complete && consumer != nil {
		consumer(msg)
	}
}

// findOrCreateSession returns the active slot for (tx, rx, bus) if one
// exists, otherwise the first inactive slot, otherwise the slot with the
// oldest LastTimestamp (LRU eviction, spec.md's chosen resolution of the
// table-full open question). Must be called with mu held.
func (r *Reassembler) findOrCreateSession(tx, rx uint32, bus uint8, now uint32) *Session {
	for i := range r.sessions {
		s := &r.sessions[i]
		if s.Active && s.TxAddr == tx && s.RxAddr == rx && s.Bus == bus {
			return s
		}
	}

	var freeSlot *Session
	var oldestSlot *Session
	var oldestTimestamp uint32 = 0xFFFFFFFF
	for i := range r.sessions {
		s := &r.sessions[i]
		if !s.Active && freeSlot == nil {
			freeSlot = s
		}
		if s.LastTimestamp < oldestTimestamp {
			oldestTimestamp = s.LastTimestamp
			oldestSlot = s
		}
	}

	slot := freeSlot
	if slot == nil {
		slot = oldestSlot
		r.logger.WithFields(log.Fields{"tx": tx, "rx": rx, "bus": bus}).
			Debug("session table full, evicting oldest session")
	}
	*slot = Session{
		TxAddr:        tx,
		RxAddr:        rx,
		Bus:           bus,
		Active:        true,
		LastTimestamp: now,
	}
	return slot
}

// lookupActiveSession returns the active slot matching the triple, or nil.
// Must be called with mu held.
func (r *Reassembler) lookupActiveSession(tx, rx uint32, bus uint8) *Session {
	for i := range r.sessions {
		s := &r.sessions[i]
		if s.Active && s.TxAddr == tx && s.RxAddr == rx && s.Bus == bus {
			return s
		}
	}
	return nil
}

// Tick reclaims sessions idle for more than 5 seconds. It must be called
// periodically by the owner (spec.md §4.1, §5: "tick() is the sole driver"
// of the only timeout in this system).
func (r *Reassembler) Tick() {
	now := r.clock()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.sessions {
		s := &r.sessions[i]
		if s.Active && Elapsed(now, s.LastTimestamp) > sessionIdleUs {
			s.Active = false
		}
	}
}

// Sessions returns a snapshot of every session slot, active or not, for
// diagnostics. The returned slice is a copy and safe to read without
// holding any lock.
func (r *Reassembler) Sessions() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Session, len(r.sessions))
	copy(out, r.sessions[:])
	return out
}

// buildMessage turns a completed session's buffer into a Message. Returns
// ok=false if the session has no payload at all, matching the original's
// `session->received_length >= 1` guard. Must be called with mu held.
func buildMessage(session *Session) (Message, bool) {
	if session.ReceivedLength < 1 {
		return Message{}, false
	}
	return classify(session), true
}
