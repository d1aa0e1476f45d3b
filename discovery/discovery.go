// Package discovery lets processes on the same host find each other's
// communicator endpoints. Every process serves the address it listens on
// through the JSON-RPC method Discovery.Lookup from the first free port of
// a range, and polls the other ports of the range for the addresses
// published there.
package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/rpc/v2/json2"
)

// Entry is an endpoint published by another process.
type Entry struct {
	Port uint16
	Info string
}

func New(info string, port uint16) (*Discover, error) {
	return NewWithPortRange(info, port, port, 2)
}

func NewWithPortRange(info string, startPort, endPort uint16, attempts uint) (*Discover, error) {
	return NewWithOptions(info,
		WithPortRange(startPort, endPort),
		WithAttempts(attempts),
	)
}

// lookupMethod is the JSON-RPC method every process serves.
const lookupMethod = "Discovery.Lookup"

type LookupArgs struct{}

type LookupReply struct {
	Info string
}

// Service answers the lookups of the other processes.
type Service struct {
	info string
}

func (s *Service) Lookup(r *http.Request, args *LookupArgs, reply *LookupReply) error {
	reply.Info = s.info
	return nil
}

// Port is the port this process publishes its entry on.
func (d *Discover) Port() uint16 {
	return d.port
}

// Lookup returns the next entry found, or the error of ctx.
func (d *Discover) Lookup(ctx context.Context) (Entry, error) {
	select {
	case e := <-d.Entries:
		return e, nil
	case <-ctx.Done():
		return Entry{}, fmt.Errorf("no endpoint published on ports %d-%d: %w", d.startPort, d.endPort, ctx.Err())
	}
}

// search polls the range once and reports each port seen for the first
// time.
func (d *Discover) search(ctx context.Context, seen map[uint16]bool) {
	client := http.Client{Timeout: time.Second}
	for port := d.startPort; port <= d.endPort && port >= d.startPort; port++ {
		if port == d.port || seen[port] {
			continue
		}
		info, err := lookup(ctx, &client, fmt.Sprintf("http://%s:%d/rpc", d.host, port))
		if errors.Is(err, errUnreachable) {
			continue
		}
		if err != nil {
			d.logger.Warn("discovery lookup failed", "port", port, "error", err)
			continue
		}
		seen[port] = true
		select {
		case d.Entries <- Entry{Port: port, Info: info}:
		case <-ctx.Done():
			return
		}
	}
}

var errUnreachable = errors.New("discovery: port unreachable")

func lookup(ctx context.Context, client *http.Client, url string) (string, error) {
	body, err := json2.EncodeClientRequest(lookupMethod, &LookupArgs{})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("received status code: %d", resp.StatusCode)
	}
	var reply LookupReply
	if err := json2.DecodeClientResponse(resp.Body, &reply); err != nil {
		return "", fmt.Errorf("failed to decode lookup response: %w", err)
	}
	return reply.Info, nil
}

// Close stops publishing and searching.
func (d *Discover) Close() error {
	d.cancel()
	return d.server.Shutdown(context.Background())
}
