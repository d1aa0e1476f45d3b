package comm

import "fmt"

// Communicator adds argument checking, receive bookkeeping and the
// collective operations to a Transport. A Communicator belongs to the rank
// that created it and is not safe for concurrent use.
type Communicator struct {
	t      Transport
	size   int
	used   bool
	count  int
	source int
}

func New(t Transport) *Communicator {
	return &Communicator{t: t, size: t.Size(), source: AnySource}
}

// Transport returns the backend of the communicator.
func (c *Communicator) Transport() Transport {
	return c.t
}

// Size is the number of processes taking part in the communicator.
func (c *Communicator) Size() int {
	return c.size
}

// Rank is the rank of the calling process.
func (c *Communicator) Rank() int {
	return c.t.Rank()
}

// SetSize shrinks the number of participating processes. It is only legal
// before the first operation and never beyond the size of the transport.
func (c *Communicator) SetSize(n int) error {
	if c.used {
		return fmt.Errorf("%w: cannot change process count from %d to %d", ErrInUse, c.size, n)
	}
	if n < 1 || n > c.t.Size() {
		return fmt.Errorf("%w: process count %d outside [1, %d]", ErrInvalidRank, n, c.t.Size())
	}
	c.size = n
	return nil
}

// Count is the number of elements delivered by the last receive.
func (c *Communicator) Count() int {
	return c.count
}

// LastSource is the rank the last receive was delivered from.
func (c *Communicator) LastSource() int {
	return c.source
}

// Send blocks until data has been handed to the transport for rank dest.
func (c *Communicator) Send(data []byte, typ Type, dest, tag int) error {
	c.used = true
	if err := c.checkRank(dest); err != nil {
		return err
	}
	if err := checkBuffer(data, typ); err != nil {
		return err
	}
	return c.t.Send(data, typ, dest, tag)
}

// Receive blocks until a message from source carrying tag is copied into
// buf. Count reports how many elements arrived.
func (c *Communicator) Receive(buf []byte, typ Type, source, tag int) error {
	c.used = true
	c.count = 0
	if source != AnySource {
		if err := c.checkRank(source); err != nil {
			return err
		}
	}
	if err := checkBuffer(buf, typ); err != nil {
		return err
	}
	st, err := c.t.Receive(buf, typ, source, tag)
	if err != nil {
		return err
	}
	c.count = st.Bytes / typ.Size()
	c.source = st.Source
	return nil
}

func (c *Communicator) checkRank(rank int) error {
	if rank < 0 || rank >= c.size {
		return fmt.Errorf("%w: rank %d of %d", ErrInvalidRank, rank, c.size)
	}
	return nil
}

func (c *Communicator) supports(op Collective) error {
	if r, ok := c.t.(Restricted); ok && !r.SupportsCollective(op) {
		return fmt.Errorf("%w: %s", ErrUnsupported, op)
	}
	return nil
}

func checkBuffer(b []byte, typ Type) error {
	if !typ.Valid() {
		return fmt.Errorf("%w: %s", ErrTypeMismatch, typ)
	}
	if len(b)%typ.Size() != 0 {
		return fmt.Errorf("%w: %d bytes is not a whole number of %s", ErrSizeMismatch, len(b), typ)
	}
	return nil
}
