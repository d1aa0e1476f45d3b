package comm

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Message is a payload waiting in a Mailbox.
type Message struct {
	Source int
	Tag    int
	Type   Type
	Data   []byte
}

// Mailbox queues the messages delivered to one rank until a matching
// Receive takes them. Matching is on (source, tag) in arrival order.
type Mailbox struct {
	mu     sync.Mutex
	queue  []Message
	wake   chan struct{}
	closed bool
}

func NewMailbox() *Mailbox {
	return &Mailbox{wake: make(chan struct{})}
}

// Put queues msg and wakes every waiting Take.
func (m *Mailbox) Put(msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.queue = append(m.queue, msg)
	close(m.wake)
	m.wake = make(chan struct{})
	return nil
}

// Take removes the oldest message from source (or AnySource) with the given
// tag, blocking until one arrives, the mailbox is closed or ctx is done.
func (m *Mailbox) Take(ctx context.Context, source, tag int) (Message, error) {
	for {
		m.mu.Lock()
		i := slices.IndexFunc(m.queue, func(msg Message) bool {
			return msg.Tag == tag && (source == AnySource || msg.Source == source)
		})
		if i >= 0 {
			msg := m.queue[i]
			m.queue = slices.Delete(m.queue, i, i+1)
			m.mu.Unlock()
			return msg, nil
		}
		if m.closed {
			m.mu.Unlock()
			return Message{}, ErrClosed
		}
		wake := m.wake
		m.mu.Unlock()
		select {
		case <-wake:
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

// Pending is the number of queued messages.
func (m *Mailbox) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Close wakes every waiting Take with ErrClosed.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.wake)
	}
}

// Deliver copies msg into buf.
func Deliver(msg Message, buf []byte) (Status, error) {
	if len(msg.Data) > len(buf) {
		return Status{}, fmt.Errorf("%w: %d bytes from rank %d with tag %d, buffer holds %d",
			ErrTruncated, len(msg.Data), msg.Source, msg.Tag, len(buf))
	}
	n := copy(buf, msg.Data)
	return Status{Source: msg.Source, Bytes: n}, nil
}

// Local is an in-process transport. The transports returned together by
// NewLocal reach each other through their mailboxes; Send never blocks.
type Local struct {
	rank  int
	boxes []*Mailbox
}

// NewLocal links n transports, one per rank.
func NewLocal(n int) []*Local {
	boxes := make([]*Mailbox, n)
	for i := range boxes {
		boxes[i] = NewMailbox()
	}
	locals := make([]*Local, n)
	for i := range locals {
		locals[i] = &Local{rank: i, boxes: boxes}
	}
	return locals
}

// NewDummy returns the transport of a single-process communicator.
func NewDummy() *Local {
	return NewLocal(1)[0]
}

func (l *Local) Size() int {
	return len(l.boxes)
}

func (l *Local) Rank() int {
	return l.rank
}

func (l *Local) Send(data []byte, typ Type, dest, tag int) error {
	if dest < 0 || dest >= len(l.boxes) {
		return fmt.Errorf("%w: destination %d of %d", ErrInvalidRank, dest, len(l.boxes))
	}
	return l.boxes[dest].Put(Message{Source: l.rank, Tag: tag, Type: typ, Data: slices.Clone(data)})
}

func (l *Local) Receive(buf []byte, typ Type, source, tag int) (Status, error) {
	if source != AnySource && (source < 0 || source >= len(l.boxes)) {
		return Status{}, fmt.Errorf("%w: source %d of %d", ErrInvalidRank, source, len(l.boxes))
	}
	msg, err := l.boxes[l.rank].Take(context.Background(), source, tag)
	if err != nil {
		return Status{}, err
	}
	return Deliver(msg, buf)
}

// Close makes pending and future receives on this rank fail.
func (l *Local) Close() error {
	l.boxes[l.rank].Close()
	return nil
}
