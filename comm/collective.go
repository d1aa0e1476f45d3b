package comm

import (
	"errors"
	"fmt"
	"slices"
)

// Barrier returns once every rank has entered it.
func (c *Communicator) Barrier() error {
	if err := c.supports(CollectiveBarrier); err != nil {
		return err
	}
	token := make([]byte, 4)
	if c.Rank() == 0 {
		for i := 1; i < c.size; i++ {
			if err := c.Receive(token, Int32, i, BarrierTag); err != nil {
				return fmt.Errorf("barrier: %w", err)
			}
		}
		for i := 1; i < c.size; i++ {
			if err := c.Send(token, Int32, i, BarrierTag); err != nil {
				return fmt.Errorf("barrier: %w", err)
			}
		}
		return nil
	}
	if err := c.Send(token, Int32, 0, BarrierTag); err != nil {
		return fmt.Errorf("barrier: %w", err)
	}
	if err := c.Receive(token, Int32, 0, BarrierTag); err != nil {
		return fmt.Errorf("barrier: %w", err)
	}
	return nil
}

// Broadcast copies data of rank root into data of every other rank.
func (c *Communicator) Broadcast(data []byte, typ Type, root int) error {
	if err := c.supports(CollectiveBroadcast); err != nil {
		return err
	}
	return c.broadcast(data, typ, root)
}

func (c *Communicator) broadcast(data []byte, typ Type, root int) error {
	if err := c.checkRank(root); err != nil {
		return err
	}
	if b, ok := c.t.(Broadcaster); ok {
		c.used = true
		return b.Broadcast(data, typ, root)
	}
	if c.Rank() != root {
		return c.Receive(data, typ, root, BroadcastTag)
	}
	var errs []error
	for i := 0; i < c.size; i++ {
		if i != root {
			if err := c.Send(data, typ, i, BroadcastTag); err != nil {
				errs = append(errs, fmt.Errorf("broadcast to %d: %w", i, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Gather concatenates send of every rank, in rank order, into recv of rank
// dest. recv must hold Size() times len(send) bytes on dest and is ignored
// elsewhere.
func (c *Communicator) Gather(send, recv []byte, typ Type, dest int) error {
	if err := c.supports(CollectiveGather); err != nil {
		return err
	}
	return c.gather(send, recv, typ, dest)
}

func (c *Communicator) gather(send, recv []byte, typ Type, dest int) error {
	if err := c.checkRank(dest); err != nil {
		return err
	}
	if c.Rank() != dest {
		return c.Send(send, typ, dest, GatherTag)
	}
	n := len(send)
	if len(recv) < n*c.size {
		return fmt.Errorf("%w: gather needs %d bytes, buffer holds %d", ErrSizeMismatch, n*c.size, len(recv))
	}
	for i := 0; i < c.size; i++ {
		seg := recv[i*n : (i+1)*n]
		if i == dest {
			copy(seg, send)
			continue
		}
		if err := c.Receive(seg, typ, i, GatherTag); err != nil {
			return fmt.Errorf("gather from %d: %w", i, err)
		}
	}
	return nil
}

// GatherV is Gather with a per-rank element count. counts and offsets are
// in elements and only read on dest.
func (c *Communicator) GatherV(send, recv []byte, counts, offsets []int, typ Type, dest int) error {
	if err := c.supports(CollectiveGather); err != nil {
		return err
	}
	return c.gatherV(send, recv, counts, offsets, typ, dest)
}

func (c *Communicator) gatherV(send, recv []byte, counts, offsets []int, typ Type, dest int) error {
	if err := c.checkRank(dest); err != nil {
		return err
	}
	if c.Rank() != dest {
		return c.Send(send, typ, dest, GatherVTag)
	}
	if err := c.checkLayout(recv, counts, offsets, typ); err != nil {
		return err
	}
	size := typ.Size()
	for i := 0; i < c.size; i++ {
		seg := recv[offsets[i]*size : (offsets[i]+counts[i])*size]
		if i == dest {
			if len(send) > len(seg) {
				return fmt.Errorf("%w: local contribution of %d bytes, slot holds %d", ErrTruncated, len(send), len(seg))
			}
			copy(seg, send)
			continue
		}
		if err := c.Receive(seg, typ, i, GatherVTag); err != nil {
			return fmt.Errorf("gatherv from %d: %w", i, err)
		}
	}
	return nil
}

// AllGather is Gather followed by a broadcast of the result.
func (c *Communicator) AllGather(send, recv []byte, typ Type) error {
	if err := c.supports(CollectiveAllGather); err != nil {
		return err
	}
	if len(recv) < len(send)*c.size {
		return fmt.Errorf("%w: all-gather needs %d bytes, buffer holds %d", ErrSizeMismatch, len(send)*c.size, len(recv))
	}
	if err := c.gather(send, recv, typ, 0); err != nil {
		return err
	}
	return c.broadcast(recv[:len(send)*c.size], typ, 0)
}

// AllGatherV is GatherV followed by a broadcast of the result. counts and
// offsets must be known on every rank.
func (c *Communicator) AllGatherV(send, recv []byte, counts, offsets []int, typ Type) error {
	if err := c.supports(CollectiveAllGather); err != nil {
		return err
	}
	if err := c.checkLayout(recv, counts, offsets, typ); err != nil {
		return err
	}
	if err := c.gatherV(send, recv, counts, offsets, typ, 0); err != nil {
		return err
	}
	end := 0
	for i := range counts[:c.size] {
		end = max(end, offsets[i]+counts[i])
	}
	return c.broadcast(recv[:end*typ.Size()], typ, 0)
}

// Scatter sends the i-th len(recv) bytes of send on rank src to rank i.
func (c *Communicator) Scatter(send, recv []byte, typ Type, src int) error {
	if err := c.supports(CollectiveScatter); err != nil {
		return err
	}
	if err := c.checkRank(src); err != nil {
		return err
	}
	if c.Rank() != src {
		return c.Receive(recv, typ, src, ScatterTag)
	}
	n := len(recv)
	if len(send) < n*c.size {
		return fmt.Errorf("%w: scatter needs %d bytes, buffer holds %d", ErrSizeMismatch, n*c.size, len(send))
	}
	for i := 0; i < c.size; i++ {
		seg := send[i*n : (i+1)*n]
		if i == src {
			copy(recv, seg)
			continue
		}
		if err := c.Send(seg, typ, i, ScatterTag); err != nil {
			return fmt.Errorf("scatter to %d: %w", i, err)
		}
	}
	return nil
}

// ScatterV is Scatter with a per-rank element count, read on src only.
func (c *Communicator) ScatterV(send, recv []byte, counts, offsets []int, typ Type, src int) error {
	if err := c.supports(CollectiveScatter); err != nil {
		return err
	}
	if err := c.checkRank(src); err != nil {
		return err
	}
	if c.Rank() != src {
		return c.Receive(recv, typ, src, ScatterVTag)
	}
	if err := c.checkLayout(send, counts, offsets, typ); err != nil {
		return err
	}
	size := typ.Size()
	for i := 0; i < c.size; i++ {
		seg := send[offsets[i]*size : (offsets[i]+counts[i])*size]
		if i == src {
			if len(seg) > len(recv) {
				return fmt.Errorf("%w: slot of %d bytes, buffer holds %d", ErrTruncated, len(seg), len(recv))
			}
			copy(recv, seg)
			continue
		}
		if err := c.Send(seg, typ, i, ScatterVTag); err != nil {
			return fmt.Errorf("scatterv to %d: %w", i, err)
		}
	}
	return nil
}

// Reduce combines send of every rank with op into recv of rank dest.
// Commutative operations are applied in arrival order, the others strictly
// in rank order.
func (c *Communicator) Reduce(send, recv []byte, typ Type, op Operation, dest int) error {
	if err := c.supports(CollectiveReduce); err != nil {
		return err
	}
	return c.reduce(send, recv, typ, op, dest)
}

func (c *Communicator) reduce(send, recv []byte, typ Type, op Operation, dest int) error {
	if err := c.checkRank(dest); err != nil {
		return err
	}
	if c.Rank() != dest {
		return c.Send(send, typ, dest, ReduceTag)
	}
	if len(recv) < len(send) {
		return fmt.Errorf("%w: reduce needs %d bytes, buffer holds %d", ErrSizeMismatch, len(send), len(recv))
	}
	if err := checkBuffer(send, typ); err != nil {
		return err
	}
	if op.Commutative() {
		acc := slices.Clone(send)
		tmp := make([]byte, len(send))
		for i := 1; i < c.size; i++ {
			if err := c.Receive(tmp, typ, AnySource, ReduceTag); err != nil {
				return fmt.Errorf("reduce: %w", err)
			}
			if err := op.Function(tmp, acc, typ); err != nil {
				return err
			}
		}
		copy(recv, acc)
		return nil
	}
	parts := make([][]byte, c.size)
	for i := range parts {
		if i == dest {
			parts[i] = send
			continue
		}
		parts[i] = make([]byte, len(send))
		if err := c.Receive(parts[i], typ, i, ReduceTag); err != nil {
			return fmt.Errorf("reduce from %d: %w", i, err)
		}
	}
	acc := slices.Clone(parts[c.size-1])
	for i := c.size - 2; i >= 0; i-- {
		if err := op.Function(parts[i], acc, typ); err != nil {
			return err
		}
	}
	copy(recv, acc)
	return nil
}

// AllReduce is Reduce to rank 0 followed by a broadcast of the result.
func (c *Communicator) AllReduce(send, recv []byte, typ Type, op Operation) error {
	if err := c.supports(CollectiveAllReduce); err != nil {
		return err
	}
	if len(recv) < len(send) {
		return fmt.Errorf("%w: all-reduce needs %d bytes, buffer holds %d", ErrSizeMismatch, len(send), len(recv))
	}
	if err := c.reduce(send, recv, typ, op, 0); err != nil {
		return err
	}
	return c.broadcast(recv[:len(send)], typ, 0)
}

func (c *Communicator) checkLayout(buf []byte, counts, offsets []int, typ Type) error {
	if len(counts) < c.size || len(offsets) < c.size {
		return fmt.Errorf("%w: need %d counts and offsets", ErrSizeMismatch, c.size)
	}
	for i := 0; i < c.size; i++ {
		if counts[i] < 0 || offsets[i] < 0 || (offsets[i]+counts[i])*typ.Size() > len(buf) {
			return fmt.Errorf("%w: slot %d [%d, %d) outside buffer of %d elements",
				ErrSizeMismatch, i, offsets[i], offsets[i]+counts[i], len(buf)/typ.Size())
		}
	}
	return nil
}
