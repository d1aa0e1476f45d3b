package comm

import "errors"

// AnySource matches a message from any rank in Receive.
const AnySource = -1

// Tags reserved by the default collectives.
const (
	BroadcastTag    = 10
	GatherTag       = 11
	GatherVTag      = 12
	ScatterTag      = 13
	ScatterVTag     = 14
	ReduceTag       = 15
	BarrierTag      = 16
	StreamTag       = 17
	BoundsTag       = 288402
	GlobalBoundsTag = 288403
)

var (
	ErrUnsupported  = errors.New("comm: operation not supported by this transport")
	ErrTruncated    = errors.New("comm: message larger than receive buffer")
	ErrInvalidRank  = errors.New("comm: invalid rank")
	ErrTypeMismatch = errors.New("comm: operation not defined for type")
	ErrSizeMismatch = errors.New("comm: buffer size mismatch")
	ErrClosed       = errors.New("comm: transport closed")
	ErrInUse        = errors.New("comm: communicator already used")
)

// Status describes a delivered message.
type Status struct {
	Source int
	Bytes  int
}

// Transport is the point-to-point contract a backend implements. Both
// operations block. Messages between an ordered pair of ranks on one tag are
// delivered in send order.
type Transport interface {
	// Size is the number of ranks reachable through the transport.
	Size() int
	// Rank is the rank of the caller, in [0, Size()).
	Rank() int
	// Send delivers data, made of elements of type typ, to rank dest.
	Send(data []byte, typ Type, dest, tag int) error
	// Receive copies the next message from source (or AnySource) carrying
	// tag into buf. A message larger than buf fails with ErrTruncated and is
	// dropped.
	Receive(buf []byte, typ Type, source, tag int) (Status, error)
}

// Collective names a collective operation.
type Collective int

const (
	CollectiveBarrier Collective = iota
	CollectiveBroadcast
	CollectiveGather
	CollectiveScatter
	CollectiveReduce
	CollectiveAllGather
	CollectiveAllReduce
)

var collectiveNames = [...]string{
	CollectiveBarrier:   "barrier",
	CollectiveBroadcast: "broadcast",
	CollectiveGather:    "gather",
	CollectiveScatter:   "scatter",
	CollectiveReduce:    "reduce",
	CollectiveAllGather: "all-gather",
	CollectiveAllReduce: "all-reduce",
}

func (c Collective) String() string {
	if c >= 0 && int(c) < len(collectiveNames) {
		return collectiveNames[c]
	}
	return "collective"
}

// Restricted is implemented by transports that refuse some collectives.
type Restricted interface {
	SupportsCollective(op Collective) bool
}

// Broadcaster is implemented by transports with a native broadcast.
type Broadcaster interface {
	Broadcast(data []byte, typ Type, root int) error
}
