package comm

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/luca-patrignani/procomm/stream"
)

// run executes fn on n in-process ranks and fails the test on the first
// error.
func run(t *testing.T, n int, fn func(c *Communicator) error) {
	t.Helper()
	locals := NewLocal(n)
	fatal := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			err := fn(New(locals[i]))
			if err != nil {
				err = fmt.Errorf("from rank %d: %w", i, err)
			}
			fatal <- err
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-fatal; err != nil {
			t.Fatal(err)
		}
	}
}

func TestSendReceiveRoundTrip(t *testing.T) {
	data := make([]int32, 1000)
	for i := range data {
		data[i] = int32(i*7 - 300)
	}
	run(t, 2, func(c *Communicator) error {
		if c.Rank() == 0 {
			return Send(c, data, 1, 42)
		}
		buf := make([]int32, 1000)
		n, err := Receive(c, buf, 0, 42)
		if err != nil {
			return err
		}
		if n != 1000 || c.Count() != 1000 {
			return fmt.Errorf("received %d elements, count %d", n, c.Count())
		}
		if !slices.Equal(buf, data) {
			return fmt.Errorf("payload differs")
		}
		return nil
	})
}

func TestReceiveShorterMessage(t *testing.T) {
	run(t, 2, func(c *Communicator) error {
		if c.Rank() == 0 {
			return Send(c, []float64{1.5, 2.5}, 1, 3)
		}
		buf := make([]float64, 10)
		n, err := Receive(c, buf, AnySource, 3)
		if err != nil {
			return err
		}
		if n != 2 || c.LastSource() != 0 || buf[1] != 2.5 {
			return fmt.Errorf("got %d elements from %d: %v", n, c.LastSource(), buf)
		}
		return nil
	})
}

func TestReceiveTruncated(t *testing.T) {
	run(t, 2, func(c *Communicator) error {
		if c.Rank() == 0 {
			return Send(c, []int64{1, 2, 3}, 1, 5)
		}
		_, err := Receive(c, make([]int64, 2), 0, 5)
		if !errors.Is(err, ErrTruncated) {
			return fmt.Errorf("expected ErrTruncated, got %v", err)
		}
		return nil
	})
}

func TestTagsAreMatchedIndependently(t *testing.T) {
	run(t, 2, func(c *Communicator) error {
		if c.Rank() == 0 {
			if err := Send(c, []int32{1}, 1, 100); err != nil {
				return err
			}
			return Send(c, []int32{2}, 1, 200)
		}
		buf := make([]int32, 1)
		if _, err := Receive(c, buf, 0, 200); err != nil || buf[0] != 2 {
			return fmt.Errorf("tag 200: %v %v", buf, err)
		}
		if _, err := Receive(c, buf, 0, 100); err != nil || buf[0] != 1 {
			return fmt.Errorf("tag 100: %v %v", buf, err)
		}
		return nil
	})
}

func TestInvalidRank(t *testing.T) {
	c := New(NewDummy())
	if err := Send(c, []int32{1}, 1, 0); !errors.Is(err, ErrInvalidRank) {
		t.Fatalf("expected ErrInvalidRank, got %v", err)
	}
	if err := c.Send([]byte{1, 2, 3}, Int16, 0, 0); !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("expected ErrSizeMismatch, got %v", err)
	}
}

func TestSetSizeOnlyBeforeUse(t *testing.T) {
	locals := NewLocal(4)
	c := New(locals[0])
	if err := c.SetSize(5); !errors.Is(err, ErrInvalidRank) {
		t.Fatalf("expected ErrInvalidRank, got %v", err)
	}
	if err := c.SetSize(2); err != nil {
		t.Fatal(err)
	}
	if err := Send(c, []int32{1}, 3, 0); !errors.Is(err, ErrInvalidRank) {
		t.Fatalf("rank 3 is outside the shrunk communicator, got %v", err)
	}
	if err := c.SetSize(3); !errors.Is(err, ErrInUse) {
		t.Fatalf("expected ErrInUse, got %v", err)
	}
}

func TestBroadcast(t *testing.T) {
	root := 3
	run(t, 5, func(c *Communicator) error {
		data := []int16{int16(c.Rank()), int16(10 * c.Rank())}
		if err := Broadcast(c, data, root); err != nil {
			return err
		}
		if data[0] != int16(root) || data[1] != int16(10*root) {
			return fmt.Errorf("got %v", data)
		}
		return nil
	})
}

func TestGatherAndScatter(t *testing.T) {
	n := 4
	run(t, n, func(c *Communicator) error {
		got, err := Gather(c, []uint32{uint32(c.Rank()), uint32(c.Rank() * c.Rank())}, 2)
		if err != nil {
			return err
		}
		if c.Rank() == 2 {
			want := []uint32{0, 0, 1, 1, 2, 4, 3, 9}
			if !slices.Equal(got, want) {
				return fmt.Errorf("gather got %v", got)
			}
		} else if got != nil {
			return fmt.Errorf("non-root received %v", got)
		}

		var send []uint32
		if c.Rank() == 1 {
			send = []uint32{10, 11, 20, 21, 30, 31, 40, 41}
		}
		recv := make([]uint32, 2)
		if err := Scatter(c, send, recv, 1); err != nil {
			return err
		}
		want := []uint32{uint32(10*c.Rank() + 10), uint32(10*c.Rank() + 11)}
		if !slices.Equal(recv, want) {
			return fmt.Errorf("scatter got %v, want %v", recv, want)
		}
		return nil
	})
}

func TestAllGather(t *testing.T) {
	run(t, 3, func(c *Communicator) error {
		got, err := AllGather(c, []float32{float32(c.Rank()) + 0.5})
		if err != nil {
			return err
		}
		if !slices.Equal(got, []float32{0.5, 1.5, 2.5}) {
			return fmt.Errorf("got %v", got)
		}
		return nil
	})
}

func TestAllGatherVariable(t *testing.T) {
	run(t, 4, func(c *Communicator) error {
		send := make([]int8, c.Rank())
		for i := range send {
			send[i] = int8(c.Rank())
		}
		got, counts, err := AllGatherVariable(c, send)
		if err != nil {
			return err
		}
		if !slices.Equal(got, []int8{1, 2, 2, 3, 3, 3}) || !slices.Equal(counts, []int{0, 1, 2, 3}) {
			return fmt.Errorf("got %v with counts %v", got, counts)
		}
		return nil
	})
}

func TestGatherVScatterV(t *testing.T) {
	counts := []int{1, 3, 2}
	offsets := []int{5, 0, 3}
	run(t, 3, func(c *Communicator) error {
		send := make([]byte, counts[c.Rank()])
		for i := range send {
			send[i] = byte(c.Rank() + 1)
		}
		var recv []byte
		if c.Rank() == 0 {
			recv = make([]byte, 6)
		}
		if err := c.GatherV(send, recv, counts, offsets, Char, 0); err != nil {
			return err
		}
		if c.Rank() == 0 && !slices.Equal(recv, []byte{2, 2, 2, 3, 3, 1}) {
			return fmt.Errorf("gatherv got %v", recv)
		}

		back := make([]byte, counts[c.Rank()])
		if err := c.ScatterV(recv, back, counts, offsets, Char, 0); err != nil {
			return err
		}
		if !slices.Equal(back, send) {
			return fmt.Errorf("scatterv got %v, want %v", back, send)
		}
		return nil
	})
}

func TestReduceBuiltins(t *testing.T) {
	cases := []struct {
		op   Builtin
		want []int32
	}{
		{Sum, []int32{6, 7}},
		{Max, []int32{3, 3}},
		{Min, []int32{0, 1}},
		{Product, []int32{0, 6}},
		{BitwiseOr, []int32{3, 3}},
		{BitwiseAnd, []int32{0, 0}},
		{BitwiseXor, []int32{0, 1}},
		{LogicalAnd, []int32{0, 1}},
		{LogicalOr, []int32{1, 1}},
		{LogicalXor, []int32{1, 0}},
	}
	for _, tc := range cases {
		t.Run(tc.op.String(), func(t *testing.T) {
			run(t, 4, func(c *Communicator) error {
				// second element: 1, 1, 2, 3
				send := []int32{int32(c.Rank()), int32(max(c.Rank(), 1))}
				got, err := AllReduce(c, send, tc.op)
				if err != nil {
					return err
				}
				if !slices.Equal(got, tc.want) {
					return fmt.Errorf("got %v, want %v", got, tc.want)
				}
				return nil
			})
		})
	}
}

func TestReduceFloat(t *testing.T) {
	run(t, 3, func(c *Communicator) error {
		got, err := Reduce(c, []float64{float64(c.Rank()) - 0.5}, Max, 1)
		if err != nil {
			return err
		}
		if c.Rank() == 1 && got[0] != 1.5 {
			return fmt.Errorf("got %v", got)
		}
		return nil
	})
	if err := Max.Function(make([]byte, 8), make([]byte, 8), Float64); err != nil {
		t.Fatal(err)
	}
	if err := BitwiseAnd.Function(make([]byte, 8), make([]byte, 8), Float64); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
}

func TestReduceNonCommutative(t *testing.T) {
	// projections are associative but not commutative, so only a fold in
	// rank order yields the value of the first or last rank.
	keepLeft := NewOperation(func(x, y int64) int64 { return x }, false)
	keepRight := NewOperation(func(x, y int64) int64 { return y }, false)
	run(t, 5, func(c *Communicator) error {
		got, err := Reduce(c, []int64{int64(100 + c.Rank())}, keepLeft, 4)
		if err != nil {
			return err
		}
		if c.Rank() == 4 && got[0] != 100 {
			return fmt.Errorf("left projection reduced to %d", got[0])
		}
		all, err := AllReduce(c, []int64{int64(100 + c.Rank())}, keepRight)
		if err != nil {
			return err
		}
		if all[0] != 104 {
			return fmt.Errorf("right projection reduced to %d", all[0])
		}
		return nil
	})
	if err := keepLeft.Function(make([]byte, 4), make([]byte, 4), Int32); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
}

func TestAllReduceSingleProcessIsIdentity(t *testing.T) {
	c := New(NewDummy())
	ops := []Builtin{Max, Min, Sum, Product, LogicalAnd, LogicalOr, LogicalXor, BitwiseAnd, BitwiseOr, BitwiseXor}
	for _, op := range ops {
		in := []int32{-3, 0, 7, 1 << 20}
		got, err := AllReduce(c, in, op)
		if err != nil {
			t.Fatalf("%s: %v", op, err)
		}
		if !slices.Equal(got, in) {
			t.Fatalf("%s: got %v, want %v", op, got, in)
		}
		f := []float64{-1.25, 3}
		gotF, err := AllReduce(c, f, op)
		if err != nil {
			t.Fatalf("%s: %v", op, err)
		}
		if !slices.Equal(gotF, f) {
			t.Fatalf("%s: got %v, want %v", op, gotF, f)
		}
	}
	if err := c.Barrier(); err != nil {
		t.Fatal(err)
	}
	data := []uint8{9}
	if err := Broadcast(c, data, 0); err != nil || data[0] != 9 {
		t.Fatalf("broadcast: %v %v", data, err)
	}
	got, err := Gather(c, []uint8{4, 5}, 0)
	if err != nil || !slices.Equal(got, []uint8{4, 5}) {
		t.Fatalf("gather: %v %v", got, err)
	}
}

func TestBarrier(t *testing.T) {
	n := 6
	entered := make(chan int, 2*n)
	run(t, n, func(c *Communicator) error {
		entered <- 0
		if err := c.Barrier(); err != nil {
			return err
		}
		entered <- 1
		return nil
	})
	close(entered)
	prev := 0
	for v := range entered {
		if prev > v {
			t.Fatal("a rank left the barrier before every rank entered it")
		}
		prev = v
	}
}

func TestComputeGlobalBounds(t *testing.T) {
	run(t, 6, func(c *Communicator) error {
		r := float64(c.Rank())
		local := Bounds{r, r + 1, -r, r, 0, 2 * r}
		if c.Rank() == 4 {
			local = EmptyBounds()
		}
		got, err := c.ComputeGlobalBounds(local)
		if err != nil {
			return err
		}
		want := Bounds{0, 6, -5, 5, 0, 10}
		if got != want {
			return fmt.Errorf("got %v, want %v", got, want)
		}
		return nil
	})
}

type noGather struct{ *Local }

func (noGather) SupportsCollective(op Collective) bool {
	return op != CollectiveGather
}

func TestRestrictedTransport(t *testing.T) {
	c := New(noGather{NewDummy()})
	if err := c.Gather([]byte{1}, make([]byte, 1), Char, 0); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if err := c.Broadcast([]byte{1}, Char, 0); err != nil {
		t.Fatal(err)
	}
}

func TestSendReceiveStream(t *testing.T) {
	run(t, 3, func(c *Communicator) error {
		s := stream.New()
		if c.Rank() == 2 {
			stream.Push(s, int32(77))
			s.PushString("payload")
		}
		if err := c.BroadcastStream(s, 2); err != nil {
			return err
		}
		if c.Rank() == 0 {
			if err := c.SendStream(s, 1, 9); err != nil {
				return err
			}
		}
		if c.Rank() == 1 {
			s = stream.New()
			if err := c.ReceiveStream(s, AnySource, 9); err != nil {
				return err
			}
		}
		v, err := stream.Pop[int32](s)
		if err != nil || v != 77 {
			return fmt.Errorf("int32: %v %v", v, err)
		}
		str, err := s.PopString()
		if err != nil || str != "payload" {
			return fmt.Errorf("string: %q %v", str, err)
		}
		return nil
	})
}
