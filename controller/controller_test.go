package controller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"testing"
	"time"

	"github.com/luca-patrignani/procomm/comm"
	"github.com/luca-patrignani/procomm/group"
)

func TestTriggerRMI(t *testing.T) {
	for _, size := range []int{4, 1000} {
		t.Run(fmt.Sprint(size), func(t *testing.T) {
			arg := make([]byte, size)
			for i := range arg {
				arg[i] = byte(i)
			}
			err := Spawn(2, func(c *Controller) error {
				if c.Rank() == 0 {
					return c.TriggerRMI(1, arg, 7)
				}
				calls := 0
				c.AddRMICallback(7, func(localArg any, remoteArg []byte, remote int) {
					calls++
					if localArg != "local" || remote != 0 || !bytes.Equal(remoteArg, arg) {
						calls += 100
					}
				}, "local")
				if err := c.ProcessRMIs(true, true); err != nil {
					return err
				}
				if calls != 1 {
					return fmt.Errorf("callback ran %d times", calls)
				}
				return nil
			})
			if err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestTriggerLocal(t *testing.T) {
	c := NewSingle()
	var got []byte
	c.AddRMI(3, func(_ any, remoteArg []byte, remote int) {
		got = remoteArg
	}, nil)
	if err := c.TriggerRMI(0, []byte("here"), 3); err != nil {
		t.Fatal(err)
	}
	if string(got) != "here" {
		t.Fatalf("callback got %q", got)
	}
	if err := c.TriggerRMI(0, nil, 4); !errors.Is(err, ErrNoHandler) {
		t.Fatalf("expected ErrNoHandler, got %v", err)
	}
	if err := c.TriggerRMI(0, nil, BreakRMITag); !errors.Is(err, ErrReservedTag) {
		t.Fatalf("expected ErrReservedTag, got %v", err)
	}
}

func TestCallbackTable(t *testing.T) {
	c := NewSingle()
	var order []int
	record := func(n int) RMIFunc {
		return func(any, []byte, int) { order = append(order, n) }
	}
	first := c.AddRMICallback(5, record(1), nil)
	c.AddRMICallback(5, record(2), nil)
	c.AddRMICallback(5, record(3), nil)
	if err := c.TriggerRMI(0, nil, 5); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(order, []int{1, 2, 3}) {
		t.Fatalf("callbacks ran in order %v", order)
	}
	if !c.RemoveRMICallback(first) || c.RemoveRMICallback(first) {
		t.Fatal("callback removed twice")
	}
	if !c.RemoveFirstRMI(5) || c.Callbacks(5) != 1 {
		t.Fatalf("%d callbacks left", c.Callbacks(5))
	}
	c.AddRMI(5, record(4), nil)
	order = nil
	if err := c.TriggerRMI(0, nil, 5); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(order, []int{4}) {
		t.Fatalf("callbacks ran in order %v", order)
	}
	c.RemoveAllRMICallbacks(5)
	if c.Callbacks(5) != 0 {
		t.Fatalf("%d callbacks left", c.Callbacks(5))
	}
	c.RemoveAllRMICallbacks(BreakRMITag)
	c.RemoveFirstRMI(BreakRMITag)
	if c.Callbacks(BreakRMITag) != 1 {
		t.Fatal("break callback removed")
	}
}

func TestTriggerOnAllChildren(t *testing.T) {
	for _, broadcast := range []bool{false, true} {
		t.Run(fmt.Sprintf("broadcast=%t", broadcast), func(t *testing.T) {
			n := 7
			arg := bytes.Repeat([]byte{9}, 200)
			err := Spawn(n, func(c *Controller) error {
				if c.Rank() == 0 {
					return c.TriggerRMIOnAllChildren(arg, 11)
				}
				calls := 0
				c.AddRMICallback(11, func(_ any, remoteArg []byte, remote int) {
					if remote == 0 && bytes.Equal(remoteArg, arg) {
						calls++
					}
				}, nil)
				if err := c.ProcessRMIs(true, true); err != nil {
					return err
				}
				if calls != 1 {
					return fmt.Errorf("callback ran %d times", calls)
				}
				return nil
			}, WithBroadcastTriggerRMI(broadcast))
			if err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestBroadcastTriggerFromNonRoot(t *testing.T) {
	err := Spawn(2, func(c *Controller) error {
		if c.Rank() == 1 {
			if err := c.TriggerRMIOnAllChildren(nil, 1); !errors.Is(err, ErrNotRoot) {
				return fmt.Errorf("expected ErrNotRoot, got %v", err)
			}
			if err := c.TriggerBreakRMIs(); !errors.Is(err, ErrNotRoot) {
				return fmt.Errorf("expected ErrNotRoot, got %v", err)
			}
		}
		return nil
	}, WithBroadcastTriggerRMI(true))
	if err != nil {
		t.Fatal(err)
	}
}

func TestProcessRMIsUntilBreak(t *testing.T) {
	n := 4
	err := Spawn(n, func(c *Controller) error {
		if c.Rank() == 0 {
			for i := 1; i < n; i++ {
				for j := 0; j < 3; j++ {
					if err := c.TriggerRMI(i, []byte{byte(j)}, 20); err != nil {
						return err
					}
				}
			}
			return c.TriggerBreakRMIs()
		}
		var got []byte
		c.AddRMICallback(20, func(_ any, remoteArg []byte, _ int) {
			got = append(got, remoteArg...)
		}, nil)
		if err := c.ProcessRMIs(false, false); err != nil {
			return err
		}
		if !slices.Equal(got, []byte{0, 1, 2}) {
			return fmt.Errorf("received %v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestUnregisteredTagDoesNotStopProcessing(t *testing.T) {
	err := Spawn(2, func(c *Controller) error {
		if c.Rank() == 0 {
			if err := c.TriggerRMI(1, nil, 99); err != nil {
				return err
			}
			if err := c.TriggerRMI(1, []byte{5}, 5); err != nil {
				return err
			}
			return c.TriggerBreakRMIs()
		}
		fired := 0
		c.AddRMI(5, func(_ any, arg []byte, remote int) {
			fired++
		}, nil)
		err := c.ProcessRMIs(true, false)
		if !errors.Is(err, ErrNoHandler) {
			return fmt.Errorf("expected ErrNoHandler, got %v", err)
		}
		if fired != 1 {
			return fmt.Errorf("tag 5 fired %d times", fired)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestUnregisteredTagSingleDispatch(t *testing.T) {
	err := Spawn(2, func(c *Controller) error {
		if c.Rank() == 0 {
			if err := c.TriggerRMI(1, nil, 99); err != nil {
				return err
			}
			return c.TriggerRMI(1, []byte{5}, 5)
		}
		fired := 0
		c.AddRMI(5, func(_ any, arg []byte, remote int) {
			fired++
		}, nil)
		if err := c.ProcessRMIs(false, true); !errors.Is(err, ErrNoHandler) {
			return fmt.Errorf("expected ErrNoHandler, got %v", err)
		}
		if err := c.ProcessRMIs(false, true); err != nil {
			return err
		}
		if fired != 1 {
			return fmt.Errorf("tag 5 fired %d times", fired)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCreateSubController(t *testing.T) {
	err := Spawn(4, func(c *Controller) error {
		g := group.New(c.Communicator())
		g.RemoveProcessID(0)
		g.RemoveProcessID(2)
		sub, err := c.CreateSubController(g)
		if err != nil {
			return err
		}
		if c.Rank()%2 == 0 {
			if sub != nil {
				return fmt.Errorf("non member got a sub-controller")
			}
			return nil
		}
		if sub.Size() != 2 || sub.Rank() != c.Rank()/2 {
			return fmt.Errorf("size %d rank %d", sub.Size(), sub.Rank())
		}
		if sub.Rank() == 0 {
			return sub.TriggerRMI(1, []byte{byte(c.Rank())}, 4)
		}
		var from []int
		sub.AddRMI(4, func(_ any, arg []byte, remote int) {
			from = append(from, remote, int(arg[0]))
		}, nil)
		if err := sub.ProcessRMIs(true, true); err != nil {
			return err
		}
		if !slices.Equal(from, []int{0, 1}) {
			return fmt.Errorf("triggered by %v", from)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestPartitionController(t *testing.T) {
	n := 6
	err := Spawn(n, func(c *Controller) error {
		color := c.Rank() % 2
		part, err := c.PartitionController(color, -c.Rank())
		if err != nil {
			return err
		}
		if part.Size() != 3 {
			return fmt.Errorf("partition of %d", part.Size())
		}
		// keys are the negated ranks, so the order is reversed
		want := (n - 1 - c.Rank()) / 2
		if part.Rank() != want {
			return fmt.Errorf("rank %d in partition, want %d", part.Rank(), want)
		}
		sum, err := comm.AllReduce(part.Communicator(), []int32{int32(c.Rank())}, comm.Sum)
		if err != nil {
			return err
		}
		if expected := int32(6 + 3*color); sum[0] != expected {
			return fmt.Errorf("partition sum %d, want %d", sum[0], expected)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSocketController(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	data := make([]int32, 1000)
	for i := range data {
		data[i] = int32(i * i)
	}
	fatal := make(chan error, 2)
	go func() {
		c, err := WaitForConnection(l, 10*time.Second)
		if err != nil {
			fatal <- err
			return
		}
		defer c.Close()
		var observed [][]byte
		c.AddRMI(7, func(_ any, arg []byte, remote int) {
			observed = append(observed, arg)
		}, nil)
		buf := make([]int32, 1000)
		n, err := comm.Receive(c.Communicator(), buf, 1, 42)
		if err != nil {
			fatal <- err
			return
		}
		if n != 1000 || c.Communicator().Count() != 1000 || !slices.Equal(buf, data) {
			fatal <- fmt.Errorf("received %d elements", n)
			return
		}
		if err := c.ProcessRMIs(true, true); err != nil {
			fatal <- err
			return
		}
		if len(observed) != 1 || !bytes.Equal(observed[0], []byte{1, 2, 3, 4}) {
			fatal <- fmt.Errorf("handler observed %v", observed)
			return
		}
		fatal <- nil
	}()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c, err := ConnectTo(ctx, l.Addr().String())
		if err != nil {
			fatal <- err
			return
		}
		defer c.Close()
		// the trigger overtakes the payload and waits in the tag buffer
		if err := c.TriggerRMI(1, []byte{1, 2, 3, 4}, 7); err != nil {
			fatal <- err
			return
		}
		fatal <- comm.Send(c.Communicator(), data, 1, 42)
	}()
	for i := 0; i < 2; i++ {
		if err := <-fatal; err != nil {
			t.Fatal(err)
		}
	}
}
