package network

import (
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/luca-patrignani/procomm/comm"
)

// runPeers starts n peers on localhost and runs fn on each of them.
func runPeers(t *testing.T, n int, fn func(c *comm.Communicator) error, opts ...PeerOption) {
	t.Helper()
	listeners, addresses := CreateListeners(n)
	fatal := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			peer := NewPeer(i, addresses, listeners[i], append([]PeerOption{WithTimeout(30 * time.Second)}, opts...)...)
			err := fn(comm.New(peer))
			if err != nil {
				err = fmt.Errorf("from peer %d: %w", i, err)
			}
			fatal <- errors.Join(err, peer.Close())
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-fatal; err != nil {
			t.Fatal(err)
		}
	}
}

func TestSendReceive(t *testing.T) {
	data := make([]int32, 1000)
	for i := range data {
		data[i] = int32(i)
	}
	runPeers(t, 2, func(c *comm.Communicator) error {
		if c.Rank() == 0 {
			return comm.Send(c, data, 1, 42)
		}
		buf := make([]int32, 1000)
		n, err := comm.Receive(c, buf, 0, 42)
		if err != nil {
			return err
		}
		if n != 1000 || !slices.Equal(buf, data) {
			return fmt.Errorf("received %d elements", n)
		}
		return nil
	})
}

func TestAllGather(t *testing.T) {
	n := 3
	runPeers(t, n, func(c *comm.Communicator) error {
		actual, err := comm.AllGather(c, []int64{int64(10 * c.Rank())})
		if err != nil {
			return err
		}
		if len(actual) != n {
			return fmt.Errorf("expected list of length %d, %v given", n, actual)
		}
		for j := 0; j < n; j++ {
			if actual[j] != int64(10*j) {
				return fmt.Errorf("expected %d, actual %v", 10*j, actual[j])
			}
		}
		return nil
	})
}

func TestBroadcast(t *testing.T) {
	n := 10
	root := 3
	runPeers(t, n, func(c *comm.Communicator) error {
		time.Sleep(time.Millisecond * 10 * time.Duration(c.Rank()))
		data := []int32{0, int32(10 * c.Rank())}
		if err := comm.Broadcast(c, data, root); err != nil {
			return err
		}
		if data[1] != int32(root*10) {
			return fmt.Errorf("expected %d, actual %d", root*10, data[1])
		}
		return nil
	})
}

func TestBarrier(t *testing.T) {
	n := 5
	clocks := make(chan int, 2*n)
	runPeers(t, n, func(c *comm.Communicator) error {
		time.Sleep(time.Millisecond * 50 * time.Duration(c.Rank()))
		clocks <- 0
		err := c.Barrier()
		clocks <- 1
		return err
	})
	close(clocks)
	prev := 0
	for time := range clocks {
		if prev > time {
			t.Fatalf("clocks out of sync: prev %d, time %d", prev, time)
		}
		prev = time
	}
}

func TestReceiveTimeout(t *testing.T) {
	listeners, addresses := CreateListeners(2)
	peer := NewPeer(0, addresses, listeners[0], WithTimeout(100*time.Millisecond))
	defer peer.Close()
	defer listeners[1].Close()
	_, err := peer.Receive(make([]byte, 4), comm.Int32, 1, 1)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	// rank 1 never starts serving
	if err := peer.Send([]byte{1, 2, 3, 4}, comm.Int32, 1, 1); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestTypeMismatch(t *testing.T) {
	runPeers(t, 2, func(c *comm.Communicator) error {
		if c.Rank() == 0 {
			return comm.Send(c, []float32{1}, 1, 8)
		}
		_, err := comm.Receive(c, make([]int32, 1), 0, 8)
		if !errors.Is(err, comm.ErrTypeMismatch) {
			return fmt.Errorf("expected ErrTypeMismatch, got %v", err)
		}
		return nil
	})
}
