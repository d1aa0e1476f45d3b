package comm

import "fmt"

// Send sends a typed buffer.
func Send[T Number](c *Communicator, data []T, dest, tag int) error {
	return c.Send(Encode(data), TypeOf[T](), dest, tag)
}

// Receive fills buf and returns the number of elements delivered.
func Receive[T Number](c *Communicator, buf []T, source, tag int) (int, error) {
	raw := make([]byte, len(buf)*TypeOf[T]().Size())
	if err := c.Receive(raw, TypeOf[T](), source, tag); err != nil {
		return 0, err
	}
	return Decode(raw[:c.Count()*TypeOf[T]().Size()], buf), nil
}

// Broadcast copies data of root into data of every rank.
func Broadcast[T Number](c *Communicator, data []T, root int) error {
	raw := Encode(data)
	if err := c.Broadcast(raw, TypeOf[T](), root); err != nil {
		return err
	}
	Decode(raw, data)
	return nil
}

// Gather returns the concatenation of send of every rank on dest and nil
// elsewhere.
func Gather[T Number](c *Communicator, send []T, dest int) ([]T, error) {
	var raw []byte
	if c.Rank() == dest {
		raw = make([]byte, len(send)*c.Size()*TypeOf[T]().Size())
	}
	if err := c.Gather(Encode(send), raw, TypeOf[T](), dest); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	out := make([]T, len(send)*c.Size())
	Decode(raw, out)
	return out, nil
}

// AllGather returns the concatenation of send of every rank on every rank.
func AllGather[T Number](c *Communicator, send []T) ([]T, error) {
	raw := make([]byte, len(send)*c.Size()*TypeOf[T]().Size())
	if err := c.AllGather(Encode(send), raw, TypeOf[T]()); err != nil {
		return nil, err
	}
	out := make([]T, len(send)*c.Size())
	Decode(raw, out)
	return out, nil
}

// AllGatherVariable gathers buffers of different lengths on every rank. It
// first exchanges the lengths, then the data, and returns the concatenation
// together with the element count contributed by each rank.
func AllGatherVariable[T Number](c *Communicator, send []T) ([]T, []int, error) {
	lengths, err := AllGather(c, []int64{int64(len(send))})
	if err != nil {
		return nil, nil, fmt.Errorf("exchange lengths: %w", err)
	}
	counts := make([]int, len(lengths))
	offsets := make([]int, len(lengths))
	total := 0
	for i, n := range lengths {
		counts[i] = int(n)
		offsets[i] = total
		total += int(n)
	}
	raw := make([]byte, total*TypeOf[T]().Size())
	if err := c.AllGatherV(Encode(send), raw, counts, offsets, TypeOf[T]()); err != nil {
		return nil, nil, err
	}
	out := make([]T, total)
	Decode(raw, out)
	return out, counts, nil
}

// Scatter hands the i-th chunk of len(recv) elements of send on src to rank
// i.
func Scatter[T Number](c *Communicator, send, recv []T, src int) error {
	raw := make([]byte, len(recv)*TypeOf[T]().Size())
	if err := c.Scatter(Encode(send), raw, TypeOf[T](), src); err != nil {
		return err
	}
	Decode(raw, recv)
	return nil
}

// Reduce combines send of every rank into a new slice on dest, nil
// elsewhere.
func Reduce[T Number](c *Communicator, send []T, op Operation, dest int) ([]T, error) {
	raw := make([]byte, len(send)*TypeOf[T]().Size())
	if err := c.Reduce(Encode(send), raw, TypeOf[T](), op, dest); err != nil {
		return nil, err
	}
	if c.Rank() != dest {
		return nil, nil
	}
	out := make([]T, len(send))
	Decode(raw, out)
	return out, nil
}

// AllReduce combines send of every rank and returns the result everywhere.
func AllReduce[T Number](c *Communicator, send []T, op Operation) ([]T, error) {
	raw := make([]byte, len(send)*TypeOf[T]().Size())
	if err := c.AllReduce(Encode(send), raw, TypeOf[T](), op); err != nil {
		return nil, err
	}
	out := make([]T, len(send))
	Decode(raw, out)
	return out, nil
}
