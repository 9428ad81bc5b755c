// Package can defines the CAN bus abstraction shared by every driver
// backend (pkg/can/rawsocket, pkg/can/brutella, pkg/can/virtual) and the
// registry that lets callers pick one by name at runtime.
package can

import (
	"fmt"

	"github.com/sunnypilot/opendbc-go"
)

// CanSffMask isolates the 11-bit standard identifier from a raw arbitration
// ID word; frames addressed by this module are always standard frames.
const CanSffMask uint32 = 0x000007FF

// Frame is the wire-level CAN frame produced and consumed by driver
// backends. It carries a DLC separate from len(Data) because short ISO-TP
// frames pad the remainder of the 8-byte payload with filler bytes that the
// reassembler must not interpret as part of the message.
type Frame struct {
	Bus  uint8
	ID   uint32
	DLC  uint8
	Data [8]byte
}

// ToSnifferFrame adapts a wire-level Frame into the udssniffer.Frame shape
// the reassembler consumes.
func (f Frame) ToSnifferFrame() udssniffer.Frame {
	return udssniffer.Frame{
		Bus:     f.Bus,
		Address: f.ID & CanSffMask,
		Length:  f.DLC,
		Data:    f.Data,
	}
}

// NewFrame builds a Frame with data copied from a slice no longer than 8
// bytes; shorter slices leave the remainder zero-filled.
func NewFrame(bus uint8, id uint32, data []byte) Frame {
	f := Frame{Bus: bus, ID: id, DLC: uint8(len(data))}
	copy(f.Data[:], data)
	return f
}

// FrameListener receives every frame a Bus observes.
type FrameListener interface {
	Handle(frame Frame)
}

// FrameListenerFunc adapts a plain function to FrameListener.
type FrameListenerFunc func(frame Frame)

// Handle implements FrameListener.
func (f FrameListenerFunc) Handle(frame Frame) { f(frame) }

// Bus is the driver-facing CAN interface. Implementations: pkg/can/rawsocket
// (AF_CAN SOCK_RAW sockets), pkg/can/brutella (github.com/brutella/can), and
// pkg/can/virtual (in-process/TCP loopback for tests and demos).
type Bus interface {
	Connect() error                         // Connect to the CAN bus
	Disconnect() error                      // Disconnect from the CAN bus
	Send(frame Frame) error                 // Send a frame on the bus
	Subscribe(callback FrameListener) error // Subscribe to all received frames
}

// NewInterfaceFunc constructs a Bus for a named driver, given a channel
// identifier (e.g. "can0", a host:port pair for the virtual driver).
type NewInterfaceFunc func(channel string) (Bus, error)

var interfaceRegistry = make(map[string]NewInterfaceFunc)

// RegisterInterface registers a driver constructor under interfaceType.
// Drivers call this from an init() function so that selecting one by name
// in configuration never has to import the driver package directly.
func RegisterInterface(interfaceType string, newInterface NewInterfaceFunc) {
	interfaceRegistry[interfaceType] = newInterface
}

// NewBus constructs a Bus for the named interface and channel. Currently
// registered by this module's drivers: "rawsocket", "brutella", "virtual".
func NewBus(canInterface string, channel string) (Bus, error) {
	createInterface, ok := interfaceRegistry[canInterface]
	if !ok {
		return nil, fmt.Errorf("can: unsupported interface %q", canInterface)
	}
	return createInterface(channel)
}
