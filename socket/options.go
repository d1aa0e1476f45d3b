package socket

import "log/slog"

// Option configures a Communicator.
type Option func(*Communicator)

// WithLogger sets the logger handshake and protocol errors are written to.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Communicator) {
		c.logger = logger
	}
}

// WithReportErrors enables logging of protocol errors. They are returned
// either way.
func WithReportErrors(report bool) Option {
	return func(c *Communicator) {
		c.reportErrors = report
	}
}

// WithMaxFrame sets the largest payload of a single frame. It is rounded
// down to a multiple of 8 so that frames never split an element. Both ends
// must use the same limit.
func WithMaxFrame(n int) Option {
	return func(c *Communicator) {
		c.maxFrame = max(8, n-n%8)
	}
}

// WithTagBuffering keeps every message received with an unexpected tag for
// a later Receive of that tag.
func WithTagBuffering() Option {
	return func(c *Communicator) {
		c.observers = append(c.observers, func(WrongTagEvent) bool { return true })
	}
}

// WithObserver registers a WrongTagObserver.
func WithObserver(obs WrongTagObserver) Option {
	return func(c *Communicator) {
		c.observers = append(c.observers, obs)
	}
}

// WithProtocolHash replaces the protocol digest compared during the
// handshake.
func WithProtocolHash(hash []byte) Option {
	return func(c *Communicator) {
		c.hash = hash
	}
}

// WithWideIDs overrides whether this end advertises 64 bit identifiers.
func WithWideIDs(wide bool) Option {
	return func(c *Communicator) {
		c.wideIDs = wide
	}
}
