// Package stream implements a self-describing byte stream for heterogeneous
// typed values.
//
// # Layout
//
// The first byte of a stream is its endianness marker. It is followed by
// the concatenated records, each one a type tag and a payload:
//
//   - scalars: the value in the stream byte order
//   - arrays: a uint32 element count followed by the elements
//   - strings: a uint32 byte length followed by UTF-8 bytes
//   - nested streams: a uint32 byte length followed by the raw data of the
//     nested stream, which carries its own endianness marker
//
// Values must be popped in the order they were pushed and with the type
// they were pushed with. 32 and 64 bit integers of the same signedness are
// converted transparently.
//
// # Endianness
//
// RawData returns a blob that can be persisted or transmitted as is.
// SetRawData imports such a blob; when the blob was produced with the other
// byte order every multi-byte record is swapped in place.
package stream
