// Package controller adds remote method invocation on top of a pair of
// communicators: one carries payload traffic, the other the control
// messages that trigger callbacks registered on remote ranks.
package controller

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/luca-patrignani/procomm/comm"
)

var (
	ErrNoHandler   = errors.New("controller: no callback registered for tag")
	ErrNotRoot     = errors.New("controller: operation reserved to rank 0")
	ErrReservedTag = errors.New("controller: tag is reserved")
)

// Controller is the per-rank handle of a set of cooperating processes.
// Like the communicators it wraps, it is not safe for concurrent use.
type Controller struct {
	c                *comm.Communicator
	rmi              *comm.Communicator
	rmis             map[int][]callback
	nextID           int
	breakID          int
	breakFlag        bool
	broadcastTrigger bool
	logger           *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithBroadcastTriggerRMI selects broadcast propagation of
// TriggerRMIOnAllChildren.
func WithBroadcastTriggerRMI(enabled bool) Option {
	return func(c *Controller) {
		c.broadcastTrigger = enabled
	}
}

// New returns a controller exchanging payload over c and control messages
// over rmi. A nil rmi makes both traffics share c.
func New(c, rmi *comm.Communicator, opts ...Option) *Controller {
	if rmi == nil {
		rmi = c
	}
	ctrl := &Controller{
		c:      c,
		rmi:    rmi,
		rmis:   make(map[int][]callback),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(ctrl)
	}
	ctrl.breakID = ctrl.AddRMICallback(BreakRMITag, func(any, []byte, int) {
		ctrl.BreakProcessRMIs()
	}, nil)
	return ctrl
}

// NewSingle returns the controller of a single process.
func NewSingle(opts ...Option) *Controller {
	return New(comm.New(comm.NewDummy()), nil, opts...)
}

// Communicator carries payload traffic.
func (c *Controller) Communicator() *comm.Communicator {
	return c.c
}

// RMICommunicator carries control traffic.
func (c *Controller) RMICommunicator() *comm.Communicator {
	return c.rmi
}

func (c *Controller) Size() int {
	return c.c.Size()
}

func (c *Controller) Rank() int {
	return c.c.Rank()
}

func (c *Controller) SetBroadcastTriggerRMI(enabled bool) {
	c.broadcastTrigger = enabled
}

func (c *Controller) BroadcastTriggerRMI() bool {
	return c.broadcastTrigger
}

// Close closes the transports that can be closed.
func (c *Controller) Close() error {
	var errs []error
	closed := make(map[comm.Transport]bool)
	for _, cc := range []*comm.Communicator{c.c, c.rmi} {
		t := cc.Transport()
		if closer, ok := t.(io.Closer); ok && !closed[t] {
			closed[t] = true
			errs = append(errs, closer.Close())
		}
	}
	return errors.Join(errs...)
}

// Spawn runs fn on n ranks inside the calling process, each with its own
// controller over in-process transports, and waits for all of them. The
// first failure closes every transport so that no rank stays blocked.
func Spawn(n int, fn func(c *Controller) error, opts ...Option) error {
	payload := comm.NewLocal(n)
	control := comm.NewLocal(n)
	var abort sync.Once
	closeAll := func() {
		for i := 0; i < n; i++ {
			payload[i].Close()
			control[i].Close()
		}
	}
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctrl := New(comm.New(payload[i]), comm.New(control[i]), opts...)
			if err := fn(ctrl); err != nil {
				errs[i] = fmt.Errorf("from rank %d: %w", i, err)
				abort.Do(closeAll)
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
