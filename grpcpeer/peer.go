// Package grpcpeer implements a comm.Transport over gRPC.
//
// Every rank serves the procomm.Mailbox service on its own listener. Send
// is a unary Deliver call on the destination rank, waiting for the
// destination to become reachable; the receiving server queues the message
// in its mailbox where Receive matches it by source and tag.
package grpcpeer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/luca-patrignani/procomm/comm"
)

var ErrTimeout = errors.New("grpcpeer: timed out")

// Peer is the gRPC transport of one rank.
type Peer struct {
	rank      int
	addresses map[int]string
	server    *grpc.Server
	mu        sync.Mutex
	conns     map[int]*grpc.ClientConn
	mailbox   *comm.Mailbox
	timeout   time.Duration
	logger    *slog.Logger
}

// Option configures a Peer.
type Option func(*Peer)

// WithTimeout bounds a send and the wait of a receive. Zero waits forever.
func WithTimeout(timeout time.Duration) Option {
	return func(p *Peer) {
		p.timeout = timeout
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Peer) {
		p.logger = logger
	}
}

// NewPeer creates the Peer of rank and starts serving on l. addresses[i]
// is the address of rank i.
func NewPeer(rank int, addresses map[int]string, l net.Listener, opts ...Option) *Peer {
	p := &Peer{
		rank:      rank,
		addresses: make(map[int]string, len(addresses)),
		server:    grpc.NewServer(),
		conns:     make(map[int]*grpc.ClientConn),
		mailbox:   comm.NewMailbox(),
		logger:    slog.Default(),
	}
	for k, v := range addresses {
		p.addresses[k] = v
	}
	for _, opt := range opts {
		opt(p)
	}
	p.server.RegisterService(&serviceDesc, p)
	go func() {
		if err := p.server.Serve(l); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			p.logger.Error("grpc server stopped", "rank", p.rank, "error", err)
			p.mailbox.Close()
		}
	}()
	return p
}

func (p *Peer) Size() int {
	return len(p.addresses)
}

func (p *Peer) Rank() int {
	return p.rank
}

// Deliver queues a message sent by another rank.
func (p *Peer) Deliver(ctx context.Context, in *envelope) (*ack, error) {
	typ := comm.Type(in.Type)
	if !typ.Valid() {
		return nil, status.Errorf(codes.InvalidArgument, "element type %d", in.Type)
	}
	err := p.mailbox.Put(comm.Message{Source: int(in.Source), Tag: int(in.Tag), Type: typ, Data: in.Data})
	if err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return &ack{Accepted: true}, nil
}

func (p *Peer) conn(dest int) (*grpc.ClientConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.conns[dest]; ok {
		return c, nil
	}
	addr, ok := p.addresses[dest]
	if !ok {
		return nil, fmt.Errorf("%w: no address for rank %d", comm.ErrInvalidRank, dest)
	}
	c, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc client for rank %d: %w", dest, err)
	}
	p.conns[dest] = c
	return c, nil
}

// Send delivers data to dest, waiting until dest serves or the timeout
// expires.
func (p *Peer) Send(data []byte, typ comm.Type, dest, tag int) error {
	c, err := p.conn(dest)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	in := &envelope{Source: int64(p.rank), Tag: int64(tag), Type: int64(typ), Data: data}
	err = c.Invoke(ctx, deliverMethod, in, new(ack), grpc.CallContentSubtype(codecName), grpc.WaitForReady(true))
	if status.Code(err) == codes.DeadlineExceeded {
		return fmt.Errorf("%w: deliver to rank %d: %w", ErrTimeout, dest, err)
	}
	if err != nil {
		return fmt.Errorf("deliver to rank %d: %w", dest, err)
	}
	return nil
}

// Receive waits for a message from source with tag.
func (p *Peer) Receive(buf []byte, typ comm.Type, source, tag int) (comm.Status, error) {
	if _, ok := p.addresses[source]; !ok && source != comm.AnySource {
		return comm.Status{}, fmt.Errorf("%w: no address for rank %d", comm.ErrInvalidRank, source)
	}
	ctx := context.Background()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	msg, err := p.mailbox.Take(ctx, source, tag)
	if errors.Is(err, context.DeadlineExceeded) {
		return comm.Status{}, fmt.Errorf("%w: rank %d waiting for tag %d", ErrTimeout, p.rank, tag)
	}
	if err != nil {
		return comm.Status{}, err
	}
	if msg.Type != typ {
		return comm.Status{}, fmt.Errorf("%w: received %s with tag %d, expected %s", comm.ErrTypeMismatch, msg.Type, tag, typ)
	}
	return comm.Deliver(msg, buf)
}

// Close stops the server and the client connections. Pending receives fail
// with comm.ErrClosed.
func (p *Peer) Close() error {
	p.mailbox.Close()
	p.server.Stop()
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for _, c := range p.conns {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
