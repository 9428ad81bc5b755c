package udssniffer

// AddressFilter decides whether a CAN address is worth reassembling as
// ISO-TP/UDS traffic at all. It is installed by the consumer (spec.md §4.1,
// §6) and must be non-nil whenever the sniffer is enabled.
type AddressFilter func(address uint32) bool

// Vehicle-specific UDS request/response addresses the factory tooling on
// this platform is known to use, in addition to the generic OBD-II range.
// Lifted from the original firmware's address tables (see DESIGN.md).
var defaultExtendedUDSAddresses = map[uint32]bool{
	0x730: true,
	0x7D0: true,
	0x7C4: true,
	0x740: true,
	0x7A0: true,
	0x7CC: true,
}

// DefaultIsUDSAddress is the default AddressFilter described in spec.md §6:
// the standard OBD-II physical/functional ranges, the ISO 14229-over-CAN-FD
// 29-bit extended ranges, and a small vehicle-specific allow-list.
func DefaultIsUDSAddress(address uint32) bool {
	if address >= 0x7E0 && address <= 0x7EF {
		return true
	}
	if address == 0x7DF {
		return true
	}
	if address&0xFFFF0000 == 0x18DA0000 || address&0xFFFF0000 == 0x18DB0000 {
		return true
	}
	return defaultExtendedUDSAddresses[address]
}

// addressRoles is the (tx, rx) pair a given observed CAN address implies,
// per spec.md §4.1's address classification table.
type addressRoles struct {
	tx uint32
	rx uint32
}

// classifyAddress derives the ISO-TP transmitter/receiver identity for an
// observed CAN address. It never fails: anything outside the known ranges
// is treated as a custom/extended address talking to itself, which still
// gives the reassembler a stable (tx, rx) key to key sessions on.
func classifyAddress(address uint32) addressRoles {
	switch {
	case address >= 0x7E8 && address <= 0x7EF:
		return addressRoles{tx: address - 8, rx: address}
	case address >= 0x7E0 && address <= 0x7E7:
		return addressRoles{tx: address, rx: address + 8}
	case address == 0x7DF:
		return addressRoles{tx: address, rx: 0}
	default:
		return addressRoles{tx: address, rx: address}
	}
}
