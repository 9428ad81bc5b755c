// Package virtual implements an in-process/TCP CAN bus used for tests and
// demos: a loopback that serializes Frame values over a TCP connection to a
// broker (or hands them straight to local subscribers when
// SetReceiveOwn is set), so a gateway can be exercised without real
// hardware. Grounded on the teacher's own virtual CAN driver, generalized
// from gocanopen's wire frame to this module's can.Frame.
package virtual

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/sunnypilot/opendbc-go/pkg/can"
)

func init() {
	can.RegisterInterface("virtual", NewBus)
}

// Bus is a TCP-backed loopback CAN bus. Two Bus values dialed at the same
// channel exchange frames through whatever broker is listening there; see
// https://github.com/windelbouwman/virtualcan for a compatible broker.
type Bus struct {
	logger        *slog.Logger
	mu            sync.Mutex
	channel       string
	conn          net.Conn
	receiveOwn    bool
	frameHandler  can.FrameListener
	stopChan      chan bool
	wg            sync.WaitGroup
	isRunning     bool
	errSubscriber bool
}

// NewBus constructs a virtual Bus dialing channel (a host:port pair) on
// Connect. Registered under the "virtual" driver name.
func NewBus(channel string) (can.Bus, error) {
	return &Bus{
		channel:  channel,
		stopChan: make(chan bool),
		logger:   slog.Default().With("component", "can.virtual"),
	}, nil
}

func serializeFrame(frame can.Frame) ([]byte, error) {
	buffer := new(bytes.Buffer)
	if err := binary.Write(buffer, binary.BigEndian, frame); err != nil {
		return nil, err
	}
	dataBytes := buffer.Bytes()
	frameBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(frameBytes, uint32(len(dataBytes)))
	return append(frameBytes, dataBytes...), nil
}

func deserializeFrame(buffer []byte) (*can.Frame, error) {
	var frame can.Frame
	buf := bytes.NewBuffer(buffer)
	if err := binary.Read(buf, binary.BigEndian, &frame); err != nil {
		return nil, err
	}
	return &frame, nil
}

// Connect dials the broker at the bus's channel.
func (b *Bus) Connect() error {
	conn, err := net.Dial("tcp", b.channel)
	if err != nil {
		return err
	}
	b.conn = conn
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			return err
		}
	}
	return nil
}

// Disconnect stops the receive goroutine (if running) and closes the
// connection.
func (b *Bus) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.errSubscriber && b.isRunning {
		b.stopChan <- true
		b.wg.Wait()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

// Send writes frame to the broker connection, and loops it back to the
// local subscriber first when SetReceiveOwn(true) is active.
func (b *Bus) Send(frame can.Frame) error {
	if b.receiveOwn && b.frameHandler != nil {
		b.frameHandler.Handle(frame)
	} else if b.conn == nil {
		return errors.New("can/virtual: no active connection, abort send")
	}
	if b.conn != nil {
		frameBytes, err := serializeFrame(frame)
		if err != nil {
			return err
		}
		_ = b.conn.SetWriteDeadline(time.Now().Add(10 * time.Millisecond))
		_, err = b.conn.Write(frameBytes)
		return err
	}
	return nil
}

// Subscribe registers frameHandler and starts the receive goroutine the
// first time it's called.
func (b *Bus) Subscribe(frameHandler can.FrameListener) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frameHandler = frameHandler
	if b.isRunning {
		return nil
	}
	b.wg.Add(1)
	b.isRunning = true
	b.errSubscriber = false
	go b.handleReception()
	return nil
}

// Recv reads one frame off the connection, blocking up to 200ms.
func (b *Bus) Recv() (*can.Frame, error) {
	if b.conn == nil {
		return nil, fmt.Errorf("can/virtual: no active connection, abort receive")
	}
	_ = b.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	headerBytes := make([]byte, 4)
	n, err := b.conn.Read(headerBytes)
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return nil, err
	}
	if n < 4 || err != nil {
		return nil, fmt.Errorf("can/virtual: error reading header: got %d bytes, err %v", n, err)
	}
	length := binary.BigEndian.Uint32(headerBytes)
	frameBytes := make([]byte, length)
	_ = b.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	n, err = b.conn.Read(frameBytes)
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return nil, err
	}
	if n != int(length) || err != nil {
		return nil, fmt.Errorf("can/virtual: error reading body: expected %d, got %d", length, n)
	}
	return deserializeFrame(frameBytes)
}

func (b *Bus) handleReception() {
	defer func() {
		b.isRunning = false
		b.wg.Done()
	}()
	for {
		select {
		case <-b.stopChan:
			return
		default:
			if !b.mu.TryLock() {
				break
			}
			frame, err := b.Recv()
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				// no message received, this is fine
			} else if err != nil {
				b.logger.Error("receive loop closed", "err", err)
				b.errSubscriber = true
				b.mu.Unlock()
				return
			} else if b.frameHandler != nil {
				b.frameHandler.Handle(*frame)
			}
			b.mu.Unlock()
		}
	}
}

// SetReceiveOwn controls whether frames sent by this Bus are also delivered
// to its own subscriber, useful for single-process demos with no broker.
func (b *Bus) SetReceiveOwn(receiveOwn bool) {
	b.receiveOwn = receiveOwn
}
