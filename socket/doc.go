// Package socket implements a two-rank communicator over a connection
// oriented byte stream.
//
// Rank 0 is the local process and rank 1 the remote one. Before ordinary
// traffic flows, Handshake exchanges, in order, the endianness marker, the
// protocol version, a digest of the protocol description and whether both
// ends use 64 bit identifiers. Any disagreement except the byte order fails
// the connection.
//
// # Wire format
//
// Every message is framed as
//
//	[tag:int32][length:int32][payload]
//
// with little-endian tag and length. Payloads travel in the byte order of
// the sender and are swapped word by word on receipt when the handshake
// found different byte orders. Payloads longer than the frame limit are
// split into consecutive frames carrying the same tag; a frame shorter than
// the limit, possibly empty, ends the message.
//
// # Tag matching
//
// When Receive asks for tag T and the next message carries another tag, the
// registered WrongTagObservers are notified. If one of them asks for it the
// message is kept aside and returned by a later Receive for its own tag;
// otherwise Receive fails with ErrWrongTag.
package socket
