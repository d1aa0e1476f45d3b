package socket

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"time"

	"github.com/luca-patrignani/procomm/comm"
	"github.com/luca-patrignani/procomm/stream"
)

var (
	ErrHandshake    = errors.New("socket: handshake failed")
	ErrWrongTag     = errors.New("socket: unexpected tag")
	ErrProtocol     = errors.New("socket: protocol error")
	ErrNotConnected = errors.New("socket: not connected")
)

// WrongTagEvent describes a message whose tag differs from the requested
// one.
type WrongTagEvent struct {
	Expected int
	Actual   int
	Bytes    int
}

// WrongTagObserver is notified of every message received with an
// unexpected tag. Returning true keeps the message for a later Receive of
// its tag.
type WrongTagObserver func(ev WrongTagEvent) bool

// Communicator is the two-rank transport over one connection.
type Communicator struct {
	conn         net.Conn
	r            *bufio.Reader
	endian       stream.Endian
	swap         bool
	maxFrame     int
	hash         []byte
	wideIDs      bool
	buffered     map[int][][]byte
	observers    []WrongTagObserver
	reportErrors bool
	logger       *slog.Logger
}

// New wraps an established connection. Handshake must run before any other
// operation.
func New(conn net.Conn, opts ...Option) *Communicator {
	c := &Communicator{
		conn:     conn,
		r:        bufio.NewReader(conn),
		endian:   stream.NativeEndian,
		maxFrame: defaultMaxFrame,
		hash:     ProtocolHash(),
		wideIDs:  wideIDs(),
		buffered: make(map[int][][]byte),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WaitForConnection accepts one connection on l and runs the server side of
// the handshake. A positive timeout bounds the wait for the peer.
func WaitForConnection(l net.Listener, timeout time.Duration, opts ...Option) (c *Communicator, err error) {
	if timeout > 0 {
		if dl, ok := l.(interface{ SetDeadline(time.Time) error }); ok {
			if err := dl.SetDeadline(time.Now().Add(timeout)); err != nil {
				return nil, err
			}
			defer func() {
				if resetErr := dl.SetDeadline(time.Time{}); resetErr != nil {
					resetErr = fmt.Errorf("reset deadline on %s: %w", l.Addr(), resetErr)
					if c != nil {
						resetErr = errors.Join(resetErr, c.Close())
					}
					c, err = nil, errors.Join(err, resetErr)
				}
			}()
		}
	}
	conn, err := l.Accept()
	if err != nil {
		return nil, fmt.Errorf("wait for connection on %s: %w", l.Addr(), err)
	}
	c = New(conn, opts...)
	if err := c.Handshake(true); err != nil {
		return nil, errors.Join(err, conn.Close())
	}
	return c, nil
}

// Connect dials addr and runs the client side of the handshake.
func Connect(ctx context.Context, addr string, opts ...Option) (*Communicator, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	c := New(conn, opts...)
	if err := c.Handshake(false); err != nil {
		return nil, errors.Join(err, conn.Close())
	}
	return c, nil
}

func (c *Communicator) Size() int {
	return 2
}

func (c *Communicator) Rank() int {
	return 0
}

// SupportsCollective refuses every collective but Broadcast: there is no
// notion of all processes on a single connection.
func (c *Communicator) SupportsCollective(op comm.Collective) bool {
	return op == comm.CollectiveBroadcast
}

// SwapBytes reports whether the handshake found different byte orders.
func (c *Communicator) SwapBytes() bool {
	return c.swap
}

// Buffered is the number of messages with the given tag kept aside.
func (c *Communicator) Buffered(tag int) int {
	return len(c.buffered[tag])
}

// AddObserver registers a WrongTagObserver.
func (c *Communicator) AddObserver(obs WrongTagObserver) {
	c.observers = append(c.observers, obs)
}

func (c *Communicator) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Communicator) Close() error {
	return c.conn.Close()
}

func (c *Communicator) Send(data []byte, typ comm.Type, dest, tag int) error {
	if dest != 1 {
		return fmt.Errorf("%w: socket destination must be the remote rank 1, got %d", comm.ErrInvalidRank, dest)
	}
	return c.writeMessage(tag, data)
}

func (c *Communicator) Receive(buf []byte, typ comm.Type, source, tag int) (comm.Status, error) {
	if source != 1 && source != comm.AnySource {
		return comm.Status{}, fmt.Errorf("%w: socket source must be the remote rank 1, got %d", comm.ErrInvalidRank, source)
	}
	payload, err := c.next(tag)
	if err != nil {
		return comm.Status{}, c.report(err)
	}
	if len(payload) > len(buf) {
		return comm.Status{}, c.report(fmt.Errorf("%w: %d bytes with tag %d, buffer holds %d", comm.ErrTruncated, len(payload), tag, len(buf)))
	}
	size := max(typ.Size(), 1)
	if len(payload)%size != 0 {
		return comm.Status{}, c.report(fmt.Errorf("%w: %d bytes is not a whole number of %s", ErrProtocol, len(payload), typ))
	}
	n := copy(buf, payload)
	if c.swap && size > 1 {
		swapWords(buf[:n], size)
	}
	return comm.Status{Source: 1, Bytes: n}, nil
}

// next returns the payload of the next message with the given tag, from
// the buffered messages first, then from the wire.
func (c *Communicator) next(tag int) ([]byte, error) {
	if q := c.buffered[tag]; len(q) > 0 {
		payload := q[0]
		c.buffered[tag] = slices.Delete(q, 0, 1)
		return payload, nil
	}
	for {
		actual, payload, err := c.readMessage()
		if err != nil {
			return nil, err
		}
		if actual == tag {
			return payload, nil
		}
		ev := WrongTagEvent{Expected: tag, Actual: actual, Bytes: len(payload)}
		keep := false
		for _, obs := range c.observers {
			if obs(ev) {
				keep = true
			}
		}
		if !keep {
			return nil, fmt.Errorf("%w: expected %d, received %d", ErrWrongTag, tag, actual)
		}
		c.buffered[actual] = append(c.buffered[actual], payload)
	}
}

func (c *Communicator) writeMessage(tag int, data []byte) error {
	for off := 0; ; {
		chunk := data[off:min(off+c.maxFrame, len(data))]
		if err := c.writeFrame(tag, chunk); err != nil {
			return err
		}
		off += len(chunk)
		if len(chunk) < c.maxFrame {
			return nil
		}
	}
}

func (c *Communicator) writeFrame(tag int, chunk []byte) error {
	header := make([]byte, frameHeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], uint32(int32(tag)))
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(chunk)))
	bufs := net.Buffers{header, chunk}
	if _, err := bufs.WriteTo(c.conn); err != nil {
		return fmt.Errorf("%w: write frame with tag %d: %w", ErrNotConnected, tag, err)
	}
	return nil
}

func (c *Communicator) readMessage() (int, []byte, error) {
	tag, payload, err := c.readFrame()
	if err != nil {
		return 0, nil, err
	}
	last := len(payload)
	for last == c.maxFrame {
		next, chunk, err := c.readFrame()
		if err != nil {
			return 0, nil, err
		}
		if next != tag {
			return 0, nil, fmt.Errorf("%w: continuation frame with tag %d inside message with tag %d", ErrProtocol, next, tag)
		}
		payload = append(payload, chunk...)
		last = len(chunk)
	}
	return tag, payload, nil
}

func (c *Communicator) readFrame() (int, []byte, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(c.r, header); err != nil {
		return 0, nil, fmt.Errorf("%w: read frame header: %w", ErrNotConnected, err)
	}
	tag := int(int32(binary.LittleEndian.Uint32(header[0:4])))
	length := int(int32(binary.LittleEndian.Uint32(header[4:8])))
	if length < 0 || length > c.maxFrame {
		return 0, nil, fmt.Errorf("%w: frame of %d bytes", ErrProtocol, length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(c.r, payload); err != nil {
		return 0, nil, fmt.Errorf("%w: read frame payload: %w", ErrNotConnected, err)
	}
	return tag, payload, nil
}

func (c *Communicator) report(err error) error {
	if c.reportErrors {
		c.logger.Error("socket receive failed", "remote", c.conn.RemoteAddr(), "error", err)
	}
	return err
}

func swapWords(b []byte, size int) {
	for off := 0; off+size <= len(b); off += size {
		w := b[off : off+size]
		for i, j := 0, size-1; i < j; i, j = i+1, j-1 {
			w[i], w[j] = w[j], w[i]
		}
	}
}
