// Package comm provides the communicator abstraction shared by every
// transport: blocking point-to-point Send and Receive of typed buffers and
// the collective operations built on top of them.
//
// # Transports
//
// A backend only has to implement Transport. Communicator wraps it and
// synthesizes every collective (Barrier, Broadcast, Gather, GatherV,
// Scatter, ScatterV, AllGather, AllGatherV, Reduce, AllReduce) from Send
// and Receive. A backend that can do better implements Broadcaster; a
// backend that cannot take part in some collectives implements Restricted.
//
// NewLocal links N transports inside one process, so a single program can
// act as N ranks (one goroutine each). NewDummy is the single rank case in
// which every collective degenerates to a local copy.
//
// # Synchronization
//
// Collectives are synchronization points: every rank must enter the same
// collective, with the same root, before any of them can leave it.
package comm
