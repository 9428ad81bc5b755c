package fingerprint

// Known ECU request addresses on this platform (SPEC_FULL.md section D.1,
// the original firmware's HYUNDAI_UDS_REQUEST_ADDRS). Response traffic for each arrives on
// address+8; the resolver maps a response's rx address back to the request
// address to key the ECU table.
const (
	ADASECUAddress   uint32 = 0x730
	RadarECUAddress  uint32 = 0x7D0
	CameraECUAddress uint32 = 0x7C4
)

// DefaultECUAddresses lists every request address the resolver tracks a
// latched software version for.
var DefaultECUAddresses = []uint32{ADASECUAddress, RadarECUAddress, CameraECUAddress}

// IsKnownECUAddress reports whether addr is a request address or its
// matching response address (request+8) for one of DefaultECUAddresses.
// This is the OEM-specific, narrower alternative to the generic
// udssniffer.DefaultIsUDSAddress predicate, per SPEC_FULL.md section D.1.
func IsKnownECUAddress(addr uint32) bool {
	for _, req := range DefaultECUAddresses {
		if addr == req || addr == req+8 {
			return true
		}
	}
	return false
}

const maxSoftwareVersionLength = 63

// ecuRecord is the C4 "ECU record": indexed by ecuAddress, carries a
// latched software-version string, a received flag, and the timestamp of
// first capture. Once Received is set, Version is immutable until Reset.
type ecuRecord struct {
	address   uint32
	received  bool
	version   string
	timestamp uint32
}

// latch captures version for this ECU the first time it is called; every
// subsequent call is a no-op (spec.md §3: "Once received is set, the string
// is immutable until a system-level re-init" — the first-write-wins
// contract, and invariant 5, "Latch idempotence"). A version longer than
// maxSoftwareVersionLength doesn't fit the original firmware's fixed
// 64-byte buffer (63 bytes + NUL terminator); the original's handler skips
// the capture in that case rather than truncating
// (`msg->data_length < sizeof(ecu->ecu_software_version) && !received`), so
// received stays false and a later, correctly-sized capture can still latch.
func (r *ecuRecord) latch(version string, timestamp uint32) {
	if r.received || len(version) > maxSoftwareVersionLength {
		return
	}
	r.version = version
	r.received = true
	r.timestamp = timestamp
}
