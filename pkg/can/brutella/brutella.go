// Package brutella wraps github.com/brutella/can as a can.Bus driver, the
// alternative to pkg/can/rawsocket for platforms where a raw-socket
// implementation already exists in the ecosystem.
package brutella

import (
	sockcan "github.com/brutella/can"

	"github.com/sunnypilot/opendbc-go/pkg/can"
)

func init() {
	can.RegisterInterface("brutella", NewBus)
}

// Bus adapts a *sockcan.Bus to the can.Bus interface.
type Bus struct {
	bus           *sockcan.Bus
	frameListener can.FrameListener
}

// NewBus opens a brutella/can bus bound to the named interface (e.g.
// "can0"). Registered under the "brutella" driver name.
func NewBus(name string) (can.Bus, error) {
	bus, err := sockcan.NewBusForInterfaceWithName(name)
	if err != nil {
		return nil, err
	}
	return &Bus{bus: bus}, nil
}

// Connect starts the underlying bus's publish loop.
func (b *Bus) Connect() error {
	go b.bus.ConnectAndPublish()
	return nil
}

// Disconnect closes the underlying bus.
func (b *Bus) Disconnect() error {
	return b.bus.Disconnect()
}

// Send publishes frame on the bus.
func (b *Bus) Send(frame can.Frame) error {
	return b.bus.Publish(sockcan.Frame{
		ID:     frame.ID,
		Length: frame.DLC,
		Data:   frame.Data,
	})
}

// Subscribe registers frameListener with the underlying bus.
func (b *Bus) Subscribe(frameListener can.FrameListener) error {
	b.frameListener = frameListener
	b.bus.Subscribe(b)
	return nil
}

// Handle implements brutella/can's Handler interface, adapting its frame
// type into can.Frame.
func (b *Bus) Handle(frame sockcan.Frame) {
	b.frameListener.Handle(can.Frame{ID: frame.ID, DLC: frame.Length, Data: frame.Data})
}
