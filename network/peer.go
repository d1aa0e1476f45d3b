package network

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/luca-patrignani/procomm/comm"
)

var ErrTimeout = errors.New("network: timed out")

// Peer is the HTTP transport of one rank.
// Addresses[i] contains the address to reach the Peer with Rank i.
type Peer struct {
	rank      int
	addresses map[int]string
	server    *http.Server
	client    *http.Client
	tlsConfig *tls.Config
	timeout   time.Duration
	mailbox   *comm.Mailbox
	logger    *slog.Logger
}

// NewPeer creates the Peer of rank and starts serving on l.
func NewPeer(rank int, addresses map[int]string, l net.Listener, opts ...PeerOption) *Peer {
	p := &Peer{
		rank:      rank,
		addresses: copyMap(addresses),
		client:    &http.Client{},
		mailbox:   comm.NewMailbox(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.client.Timeout = p.timeout
	p.server = &http.Server{Addr: addresses[rank], Handler: p}
	if p.tlsConfig != nil {
		p.client.Transport = &http.Transport{TLSClientConfig: p.tlsConfig}
		l = tls.NewListener(l, p.tlsConfig)
	}
	go func() {
		err := p.server.Serve(l)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Error("peer server stopped", "rank", p.rank, "error", err)
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

// Addresses returns a copy of the rank to address map.
func (p *Peer) Addresses() map[int]string {
	return copyMap(p.addresses)
}

// Close stops the server. Pending receives fail with comm.ErrClosed.
func (p *Peer) Close() error {
	p.mailbox.Close()
	return p.server.Shutdown(context.Background())
}

func (p *Peer) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	msg, err := parseHeader(req.Header)
	if err != nil {
		p.logger.Warn("rejected message", "rank", p.rank, "error", err)
		rw.WriteHeader(http.StatusBadRequest)
		return
	}
	msg.Data, err = io.ReadAll(req.Body)
	if err != nil {
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
	if err := p.mailbox.Put(msg); err != nil {
		rw.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	rw.WriteHeader(http.StatusAccepted)
}

func parseHeader(h http.Header) (comm.Message, error) {
	var msg comm.Message
	fields := []struct {
		name string
		dst  *int
	}{
		{"Tag", &msg.Tag},
		{"SenderRank", &msg.Source},
	}
	for _, f := range fields {
		v, ok := h[f.name]
		if !ok || len(v) == 0 {
			return msg, fmt.Errorf("%s field is not present in request", f.name)
		}
		n, err := strconv.Atoi(v[0])
		if err != nil {
			return msg, fmt.Errorf("%s field is not a number", f.name)
		}
		*f.dst = n
	}
	v, ok := h["Type"]
	if !ok || len(v) == 0 {
		return msg, fmt.Errorf("Type field is not present in request")
	}
	t, err := strconv.Atoi(v[0])
	if err != nil || !comm.Type(t).Valid() {
		return msg, fmt.Errorf("Type field %q is not an element type", v[0])
	}
	msg.Type = comm.Type(t)
	return msg, nil
}

// Send posts data to dest, retrying until it is accepted or the timeout
// expires.
func (p *Peer) Send(data []byte, typ comm.Type, dest, tag int) error {
	addr, ok := p.addresses[dest]
	if !ok {
		return fmt.Errorf("%w: no address for rank %d", comm.ErrInvalidRank, dest)
	}
	url := p.scheme() + "://" + addr
	start := time.Now()
	for {
		status, err := p.post(url, data, typ, tag)
		if err == nil && status == http.StatusAccepted {
			return nil
		}
		if p.timeout > 0 && time.Since(start) > p.timeout {
			if err != nil {
				return fmt.Errorf("%w: connection attempts to rank %d failed with error %w", ErrTimeout, dest, err)
			}
			return fmt.Errorf("%w: connection attempts to rank %d failed with status code %d", ErrTimeout, dest, status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (p *Peer) post(url string, data []byte, typ comm.Type, tag int) (int, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	req.Header["Tag"] = []string{strconv.Itoa(tag)}
	req.Header["SenderRank"] = []string{strconv.Itoa(p.rank)}
	req.Header["Type"] = []string{strconv.Itoa(int(typ))}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	return resp.StatusCode, resp.Body.Close()
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

func (p *Peer) scheme() string {
	if p.tlsConfig != nil {
		return "https"
	}
	return "http"
}

// CreateAddresses returns n free addresses localhost:PORT.
func CreateAddresses(n int) map[int]string {
	addresses := make(map[int]string)
	for i := 0; i < n; i++ {
		l, err := net.Listen("tcp", "localhost:0")
		if err != nil {
			panic(err)
		}
		addresses[i] = l.Addr().String()
		if err := l.Close(); err != nil {
			panic(err)
		}
	}
	return addresses
}

// CreateListeners opens n listeners on localhost and returns them with
// their addresses.
func CreateListeners(n int) (map[int]net.Listener, map[int]string) {
	listeners := make(map[int]net.Listener)
	addresses := make(map[int]string)
	for i := 0; i < n; i++ {
		l, err := net.Listen("tcp", "localhost:0")
		if err != nil {
			panic(err)
		}
		listeners[i] = l
		addresses[i] = l.Addr().String()
	}
	return listeners, addresses
}

func copyMap(src map[int]string) map[int]string {
	copied := make(map[int]string)
	for k, v := range src {
		copied[k] = v
	}
	return copied
}
