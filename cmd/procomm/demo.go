package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/luca-patrignani/procomm/comm"
	"github.com/luca-patrignani/procomm/controller"
	"github.com/luca-patrignani/procomm/exchange"
	"github.com/luca-patrignani/procomm/grpcpeer"
	"github.com/luca-patrignani/procomm/network"
	"github.com/luca-patrignani/procomm/socket"
)

const (
	dataTag    = 42
	rmiTag     = 7
	dataLength = 1000
)

// report is what the serving side observed.
type report struct {
	Remote   string
	Elements int
	Sum      int64
	RMIArg   []byte
	RMICalls int
}

func demoData() []int32 {
	data := make([]int32, dataLength)
	for i := range data {
		data[i] = int32(i)
	}
	return data
}

// serve accepts one connection, receives the demo array and processes one
// RMI.
func serve(l net.Listener, timeout time.Duration, logger *slog.Logger) (report, error) {
	ctrl, err := controller.WaitForConnection(l, timeout, socket.WithLogger(logger), socket.WithReportErrors(true))
	if err != nil {
		return report{}, err
	}
	defer ctrl.Close()
	r := report{Remote: ctrl.Communicator().Transport().(*socket.Communicator).RemoteAddr().String()}
	ctrl.AddRMI(rmiTag, func(_ any, arg []byte, remote int) {
		r.RMIArg = arg
		r.RMICalls++
		logger.Info("rmi triggered", "tag", rmiTag, "from", remote, "argument", arg)
	}, nil)
	buf := make([]int32, dataLength)
	n, err := comm.Receive(ctrl.Communicator(), buf, 1, dataTag)
	if err != nil {
		return r, fmt.Errorf("receive data: %w", err)
	}
	r.Elements = n
	for _, v := range buf[:n] {
		r.Sum += int64(v)
	}
	if err := ctrl.ProcessRMIs(true, true); err != nil {
		return r, err
	}
	return r, nil
}

// connect sends the demo array to addr and triggers the RMI with arg.
func connect(ctx context.Context, addr string, arg uint32, logger *slog.Logger) error {
	ctrl, err := controller.ConnectTo(ctx, addr, socket.WithLogger(logger), socket.WithReportErrors(true))
	if err != nil {
		return err
	}
	err = errors.Join(
		comm.Send(ctrl.Communicator(), demoData(), 1, dataTag),
		ctrl.TriggerRMI(1, binary.LittleEndian.AppendUint32(nil, arg), rmiTag),
	)
	return errors.Join(err, ctrl.Close())
}

// spawnResult is what one in-process rank computed.
type spawnResult struct {
	Rank    int
	Records int
	Sum     int64
}

// spawn runs n ranks in this process. Each rank duplicates its records on
// every rank and sums the ranks.
func spawn(n int) ([]spawnResult, error) {
	results := make([]spawnResult, n)
	err := controller.Spawn(n, func(c *controller.Controller) error {
		rank := c.Rank()
		records, err := exchange.Duplicate(c, [][]byte{[]byte(fmt.Sprintf("rank %d", rank))})
		if err != nil {
			return err
		}
		sum, err := comm.AllReduce(c.Communicator(), []int64{int64(rank)}, comm.Sum)
		if err != nil {
			return err
		}
		results[rank] = spawnResult{Rank: rank, Records: len(records), Sum: sum[0]}
		return nil
	})
	return results, err
}

// peer is a transport that owns network resources.
type peer interface {
	comm.Transport
	Close() error
}

// mesh runs n peers on localhost, speaking HTTP or gRPC, which gather
// their ranks.
func mesh(n int, kind string, timeout time.Duration) ([]int32, error) {
	listeners, addresses := network.CreateListeners(n)
	newPeer := func(i int) peer {
		return network.NewPeer(i, addresses, listeners[i], network.WithTimeout(timeout))
	}
	switch kind {
	case "http":
	case "https":
		certs, err := network.SelfSignedMesh(addresses)
		if err != nil {
			for _, l := range listeners {
				l.Close()
			}
			return nil, err
		}
		newPeer = func(i int) peer {
			opts := append([]network.PeerOption{network.WithTimeout(timeout)}, certs[i]...)
			return network.NewPeer(i, addresses, listeners[i], opts...)
		}
	case "grpc":
		newPeer = func(i int) peer {
			return grpcpeer.NewPeer(i, addresses, listeners[i], grpcpeer.WithTimeout(timeout))
		}
	default:
		for _, l := range listeners {
			l.Close()
		}
		return nil, fmt.Errorf("unknown transport %q", kind)
	}
	gathered := make([][]int32, n)
	fatal := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			p := newPeer(i)
			all, err := comm.AllGather(comm.New(p), []int32{int32(i)})
			gathered[i] = all
			fatal <- errors.Join(err, p.Close())
		}()
	}
	var errs []error
	for i := 0; i < n; i++ {
		errs = append(errs, <-fatal)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return gathered[0], nil
}
