// Package rawsocket implements a CAN bus driver over a raw AF_CAN SOCK_RAW
// Linux socket, batching receives with recvmmsg. Grounded on the teacher's
// own raw-socket driver, generalized from gocanopen's wire frame to this
// module's can.Frame.
package rawsocket

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/sunnypilot/opendbc-go/pkg/can"
)

func init() {
	can.RegisterInterface("rawsocket", NewBus)
}

const (
	canFrameSize = 16
	// msgBatchSize is the number of CAN frames read per recvmmsg syscall.
	msgBatchSize = 64
)

// wireFrame matches the kernel's struct can_frame layout exactly: a 32-bit
// arbitration ID, a length byte, 3 bytes of padding, then the 8-byte
// payload.
type wireFrame struct {
	id   uint32
	dlc  uint8
	pad  uint8
	res0 uint8
	res1 uint8
	data [8]uint8
}

var defaultTimeVal = unix.Timeval{Usec: 100_000} // 100ms

// Bus is a raw-socket CAN driver for a single named interface (e.g. "can0").
// The interface must already be up; this driver only opens and binds a
// socket to it.
type Bus struct {
	fd            int
	frameListener can.FrameListener
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	logger        *slog.Logger
}

// NewBus opens and binds a raw CAN socket to channel. Registered under the
// "rawsocket" driver name.
func NewBus(channel string) (can.Bus, error) {
	iface, err := net.InterfaceByName(channel)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("rawsocket: creating CAN socket: %w", err)
	}
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &defaultTimeVal); err != nil {
		return nil, fmt.Errorf("rawsocket: setting read timeout: %w", err)
	}
	addr := &unix.SockaddrCAN{Ifindex: iface.Index}
	if err := unix.Bind(fd, addr); err != nil {
		return nil, fmt.Errorf("rawsocket: binding to %s: %w", channel, err)
	}
	return &Bus{fd: fd, logger: slog.Default().With("component", "can.rawsocket", "channel", channel)}, nil
}

// Connect starts the background receive loop.
func (b *Bus) Connect() error {
	var ctx context.Context
	ctx, b.cancel = context.WithCancel(context.Background())
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.processIncoming(ctx)
	}()
	return nil
}

// Disconnect stops the receive loop and waits for it to exit.
func (b *Bus) Disconnect() error {
	if b.cancel == nil {
		return nil
	}
	b.cancel()
	b.wg.Wait()
	return unix.Close(b.fd)
}

// Send writes frame to the socket as a single 16-byte struct can_frame.
func (b *Bus) Send(frame can.Frame) error {
	wire := wireFrame{id: frame.ID, dlc: frame.DLC, data: frame.Data}
	raw := (*(*[canFrameSize]byte)(unsafe.Pointer(&wire)))[:]
	n, err := unix.Write(b.fd, raw)
	if n != canFrameSize || err != nil {
		return fmt.Errorf("rawsocket: short write (%d/%d bytes): %w", n, canFrameSize, err)
	}
	return nil
}

// Subscribe registers frameListener to receive every frame the receive loop
// picks up once Connect is called.
func (b *Bus) Subscribe(frameListener can.FrameListener) error {
	b.frameListener = frameListener
	return nil
}

func (b *Bus) processIncoming(ctx context.Context) {
	if err := unix.SetNonblock(b.fd, false); err != nil {
		b.logger.Error("failed to set blocking mode", "err", err)
		return
	}

	frames := make([]wireFrame, msgBatchSize)
	iovecs := make([]unix.Iovec, msgBatchSize)
	mmsgs := make([]mmsghdr, msgBatchSize)

	for i := 0; i < msgBatchSize; i++ {
		iovecs[i].Base = (*byte)(unsafe.Pointer(&frames[i]))
		iovecs[i].SetLen(canFrameSize)
		mmsgs[i].Hdr.Iov = &iovecs[i]
		mmsgs[i].Hdr.Iovlen = 1
	}

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("receive loop exiting")
			return
		default:
			ts := unix.Timespec{Nsec: 10_000_000} // 10ms

			n, _, errno := unix.Syscall6(
				unix.SYS_RECVMMSG,
				uintptr(b.fd),
				uintptr(unsafe.Pointer(&mmsgs[0])),
				uintptr(msgBatchSize),
				0,
				uintptr(unsafe.Pointer(&ts)),
				0,
			)
			if errno != 0 {
				if errno == unix.EAGAIN || errno == unix.EWOULDBLOCK || errno == unix.EINTR {
					continue
				}
				b.logger.Error("recvmmsg failed", "err", errno)
				return
			}

			nbMsg := int(n)
			if nbMsg == 0 {
				b.logger.Info("socket closed")
				return
			}
			if b.frameListener == nil {
				continue
			}
			for i := 0; i < nbMsg; i++ {
				wire := frames[i]
				frame := can.Frame{ID: wire.id, DLC: wire.dlc, Data: wire.data}
				b.frameListener.Handle(frame)
			}
		}
	}
}

// SetReceiveOwn toggles CAN_RAW_RECV_OWN_MSGS, useful when testing against a
// loopback-capable vcan interface.
func (b *Bus) SetReceiveOwn(enabled bool) error {
	enabledInt := 0
	if enabled {
		enabledInt = 1
	}
	return unix.SetsockoptInt(b.fd, unix.SOL_CAN_RAW, unix.CAN_RAW_RECV_OWN_MSGS, enabledInt)
}

// SetFilters installs kernel-side CAN_RAW_FILTER acceptance filters.
func (b *Bus) SetFilters(filters []unix.CanFilter) error {
	return unix.SetsockoptCanRawFilter(b.fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, filters)
}
