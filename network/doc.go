// Package network implements a comm.Transport over HTTP.
//
// Every rank runs an HTTP server on its own listener. Sending a message is
// a POST to the address of the destination rank carrying the payload in
// the body and the tag, the rank of the sender and the element type in the
// Tag, SenderRank and Type headers. The handler queues the message in the
// mailbox of the receiving rank, where Receive matches it by source and
// tag.
//
// # Timeout Support
//
// A Peer created WithTimeout retries a POST until the destination accepts
// it or the timeout expires, so ranks may start in any order. The same
// timeout bounds how long Receive waits for a matching message.
//
// # TLS
//
// WithCertificate serves and dials over HTTPS; WithLimitedCAs additionally
// restricts both ends to certificates signed by the given pool.
package network
