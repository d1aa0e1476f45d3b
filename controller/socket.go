package controller

import (
	"context"
	"net"
	"time"

	"github.com/luca-patrignani/procomm/comm"
	"github.com/luca-patrignani/procomm/socket"
)

// WaitForConnection accepts one connection on l and returns a two-rank
// controller over it. Payload and control messages share the connection,
// so messages with unexpected tags are buffered.
func WaitForConnection(l net.Listener, timeout time.Duration, opts ...socket.Option) (*Controller, error) {
	s, err := socket.WaitForConnection(l, timeout, append(opts, socket.WithTagBuffering())...)
	if err != nil {
		return nil, err
	}
	return New(comm.New(s), nil), nil
}

// ConnectTo connects to addr and returns a two-rank controller over the
// connection.
func ConnectTo(ctx context.Context, addr string, opts ...socket.Option) (*Controller, error) {
	s, err := socket.Connect(ctx, addr, append(opts, socket.WithTagBuffering())...)
	if err != nil {
		return nil, err
	}
	return New(comm.New(s), nil), nil
}
