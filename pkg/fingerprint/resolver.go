// Package fingerprint consumes classified UDS messages to latch ECU
// software-version strings and resolve them to vehicle-variant steering
// parameters (C4, spec.md §4.4).
package fingerprint

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/sunnypilot/opendbc-go"
)

// Message is an alias for udssniffer.Message, the classifier output the
// resolver consumes.
type Message = udssniffer.Message

// versionDIDs is the interest set named in spec.md §4.4: the two standard
// software-identification DIDs plus the vendor long-form request
// (0xF100, HYUNDAI_VERSION_REQUEST_LONG in the original firmware).
var versionDIDs = map[uint16]bool{
	0xF188: true, // ECU software number
	0xF189: true, // ECU software version
	0xF100: true, // vendor long-form version request
}

// Resolver is the hosted-process form of the ECU table + fingerprint
// lookup described in spec.md §3/§4.4. It is safe for concurrent use: one
// goroutine feeds it classified messages via Consume while another queries
// Lookup from a control loop.
type Resolver struct {
	mu      sync.Mutex
	records map[uint32]*ecuRecord
	logger  *log.Entry
}

// NewResolver creates a Resolver tracking the given ECU addresses. If
// addresses is nil, DefaultECUAddresses is used.
func NewResolver(addresses []uint32) *Resolver {
	if addresses == nil {
		addresses = DefaultECUAddresses
	}
	records := make(map[uint32]*ecuRecord, len(addresses))
	for _, addr := range addresses {
		records[addr] = &ecuRecord{address: addr}
	}
	return &Resolver{
		records: records,
		logger:  log.WithField("component", "fingerprint"),
	}
}

// Consume is the classifier consumer callback (spec.md §4.4 steps 1-4). It
// ignores anything outside the interest set: non-responses, negative
// responses, services other than ReadDataByIdentifier, DIDs outside
// versionDIDs, ECUs it isn't tracking, and ECUs that have already latched a
// version.
//
// The interest predicate is deliberately `msg.IsResponse &&
// !msg.IsNegativeResponse` — spec.md §9 calls out a known bug in one copy of
// the original firmware's handler where this was inverted
// (`!is_response && !is_negative_response`), which would silently turn the
// handler into dead code. Getting this condition right is the entire point
// of TestResolver_OnlyLatchesPositiveResponses.
func (r *Resolver) Consume(msg Message) {
	if !msg.IsResponse || msg.IsNegativeResponse {
		return
	}
	if msg.ServiceID != 0x22 || !msg.HasDataIdentifier || !versionDIDs[msg.DataIdentifier] {
		return
	}
	if msg.RxAddr < 8 {
		return
	}
	ecuAddress := msg.RxAddr - 8

	r.mu.Lock()
	defer r.mu.Unlock()
	record, tracked := r.records[ecuAddress]
	if !tracked || len(msg.Data) == 0 {
		return
	}
	record.latch(string(msg.Data), msg.Timestamp)
	r.logger.WithFields(log.Fields{"ecu_address": ecuAddress, "did": msg.DataIdentifier}).
		Debug("latched ECU software version")
}

// LatchedVersion returns the software version latched for ecuAddress and
// whether one has been captured yet.
func (r *Resolver) LatchedVersion(ecuAddress uint32) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, tracked := r.records[ecuAddress]
	if !tracked || !record.received {
		return "", false
	}
	return record.version, true
}

// Lookup resolves steering parameters for ecuAddress using whatever version
// string has been latched so far (empty if none yet, which simply won't
// match any fingerprint table entry and falls through to Baseline). This is
// the operation the steering controller calls on every control tick
// (spec.md §4.4).
func (r *Resolver) Lookup(ecuAddress uint32) *SteeringParams {
	version, _ := r.LatchedVersion(ecuAddress)
	return Lookup(ecuAddress, version)
}

// Reset clears every latched ECU record, the only way to un-latch a
// version (spec.md §3: "immutable until a system-level re-init").
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for addr := range r.records {
		r.records[addr] = &ecuRecord{address: addr}
	}
}
