package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
)

type Discover struct {
	Entries   chan Entry
	port      uint16
	startPort uint16
	endPort   uint16
	host      string
	server    *http.Server
	attempts  uint
	interval  time.Duration
	logger    *slog.Logger
	cancel    context.CancelFunc
}

type Option func(*Discover)

func NewWithOptions(info string, opts ...Option) (*Discover, error) {
	d := &Discover{
		startPort: 9000,
		endPort:   9010,
		host:      "localhost",
		attempts:  1,
		interval:  time.Second,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.Entries = make(chan Entry, int(d.endPort)-int(d.startPort)+1)

	var l net.Listener
	err := fmt.Errorf("empty port range %d-%d", d.startPort, d.endPort)
	for port := d.startPort; port <= d.endPort && port >= d.startPort; port++ {
		l, err = net.Listen("tcp", fmt.Sprintf("%s:%d", d.host, port))
		if err == nil {
			d.port = port
			break
		}
	}
	if err != nil {
		return nil, err
	}
	rpcServer := rpc.NewServer()
	rpcServer.RegisterCodec(json2.NewCodec(), "application/json")
	if err := rpcServer.RegisterService(&Service{info: info}, "Discovery"); err != nil {
		return nil, errors.Join(err, l.Close())
	}
	mux := http.NewServeMux()
	mux.Handle("/rpc", rpcServer)
	d.server = &http.Server{
		Addr:    l.Addr().String(),
		Handler: mux,
	}
	go func() {
		if err := d.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("discovery server stopped", "port", d.port, "error", err)
		}
	}()
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	go func() {
		seen := make(map[uint16]bool)
		for range d.attempts {
			d.search(ctx, seen)
			select {
			case <-time.After(d.interval):
			case <-ctx.Done():
				return
			}
		}
	}()
	d.logger.Debug("publishing endpoint", "port", d.port, "info", info)
	return d, nil
}

func WithPortRange(startPort, endPort uint16) Option {
	return func(d *Discover) {
		d.startPort = startPort
		d.endPort = endPort
	}
}

func WithPort(port uint16) Option {
	return WithPortRange(port, port)
}

func WithAttempts(attempts uint) Option {
	return func(d *Discover) {
		d.attempts = attempts
	}
}

// WithInterval sets the pause between two searches of the range.
func WithInterval(interval time.Duration) Option {
	return func(d *Discover) {
		d.interval = interval
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Discover) {
		d.logger = logger
	}
}
