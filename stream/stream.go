package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"
)

var (
	ErrTypeMismatch = errors.New("stream: type mismatch")
	ErrShortRead    = errors.New("stream: not enough data")
	ErrSizeMismatch = errors.New("stream: array size mismatch")
	ErrOverflow     = errors.New("stream: value out of range")
	ErrCorrupt      = errors.New("stream: corrupt data")
)

// Endian is the byte order marker stored as the first byte of a stream.
type Endian byte

const (
	BigEndian    Endian = 0
	LittleEndian Endian = 1
)

func (e Endian) String() string {
	if e == LittleEndian {
		return "little-endian"
	}
	return "big-endian"
}

// NativeEndian is the byte order of the running process.
var NativeEndian = func() Endian {
	var b [2]byte
	binary.NativeEndian.PutUint16(b[:], 1)
	if b[0] == 1 {
		return LittleEndian
	}
	return BigEndian
}()

type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

func (e Endian) order() byteOrder {
	if e == LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// Stream is an ordered sequence of typed records. The zero value is not
// usable; create streams with New or NewWithEndian.
type Stream struct {
	endian Endian
	data   []byte
	head   int
}

// New returns an empty stream in the byte order of the running process.
func New() *Stream {
	return NewWithEndian(NativeEndian)
}

// NewWithEndian returns an empty stream that writes its records with the
// given byte order.
func NewWithEndian(e Endian) *Stream {
	s := &Stream{endian: e}
	s.Reset()
	return s
}

// Endianness returns the byte order of the stream.
func (s *Stream) Endianness() Endian {
	return s.endian
}

// Reset drops every record.
func (s *Stream) Reset() {
	s.data = append(s.data[:0], byte(s.endian))
	s.head = 1
}

// Empty reports whether every pushed record has been popped.
func (s *Stream) Empty() bool {
	return s.head >= len(s.data)
}

// Size is the number of bytes of the external representation.
func (s *Stream) Size() int {
	return len(s.data)
}

// RawData returns the external representation of the stream: the
// endianness marker followed by every record, popped or not.
func (s *Stream) RawData() []byte {
	return slices.Clone(s.data)
}

// SetRawData replaces the content of the stream with a blob produced by
// RawData, possibly on a peer with the other byte order.
func (s *Stream) SetRawData(raw []byte) error {
	if len(raw) == 0 {
		s.Reset()
		return nil
	}
	data := slices.Clone(raw)
	peer := Endian(data[0])
	if peer != BigEndian && peer != LittleEndian {
		return fmt.Errorf("%w: unknown endianness marker %d", ErrCorrupt, data[0])
	}
	if peer != s.endian {
		if err := swapRecords(data[1:], peer); err != nil {
			return err
		}
		data[0] = byte(s.endian)
	}
	s.data = data
	s.head = 1
	return nil
}

// Push appends a scalar record.
func Push[T Scalar](s *Stream, v T) {
	s.data = append(s.data, byte(kindOf[T]()))
	s.data = appendScalar(s.data, s.endian.order(), v)
}

// Pop removes the scalar record at the head of the stream.
func Pop[T Scalar](s *Stream) (T, error) {
	var zero T
	want := kindOf[T]()
	have, err := s.peek()
	if err != nil {
		return zero, err
	}
	if !have.scalar() || !convertible(have, want) {
		return zero, fmt.Errorf("%w: have %s, want %s", ErrTypeMismatch, have, want)
	}
	raw, err := s.take(1, have.size())
	if err != nil {
		return zero, err
	}
	v, err := decodeScalar[T](have, raw, s.endian.order())
	if err != nil {
		return zero, err
	}
	s.head += 1 + have.size()
	return v, nil
}

// PushArray appends an array record.
func PushArray[T Scalar](s *Stream, values []T) {
	order := s.endian.order()
	s.data = append(s.data, byte(kindOf[T]()|arrayFlag))
	s.data = order.AppendUint32(s.data, uint32(len(values)))
	for _, v := range values {
		s.data = appendScalar(s.data, order, v)
	}
}

// PopArray removes the array record at the head of the stream into a newly
// allocated slice.
func PopArray[T Scalar](s *Stream) ([]T, error) {
	n, err := s.arrayLen(kindOf[T]())
	if err != nil {
		return nil, err
	}
	out := make([]T, n)
	if err := popInto(s, out); err != nil {
		return nil, err
	}
	return out, nil
}

// PopArrayInto removes the array record at the head of the stream into dst,
// which must have exactly the length of the array.
func PopArrayInto[T Scalar](s *Stream, dst []T) error {
	n, err := s.arrayLen(kindOf[T]())
	if err != nil {
		return err
	}
	if n != len(dst) {
		return fmt.Errorf("%w: stream holds %d elements, destination %d", ErrSizeMismatch, n, len(dst))
	}
	return popInto(s, dst)
}

// PushString appends a UTF-8 string record.
func (s *Stream) PushString(v string) {
	s.data = append(s.data, byte(kindString))
	s.data = s.endian.order().AppendUint32(s.data, uint32(len(v)))
	s.data = append(s.data, v...)
}

// PopString removes the string record at the head of the stream.
func (s *Stream) PopString() (string, error) {
	b, err := s.popBlob(kindString)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// PushStream embeds other as a nested record. The nested stream keeps its
// own endianness marker.
func (s *Stream) PushStream(other *Stream) {
	s.data = append(s.data, byte(kindStream))
	s.data = s.endian.order().AppendUint32(s.data, uint32(len(other.data)))
	s.data = append(s.data, other.data...)
}

// PopStream removes the nested stream record at the head of the stream and
// returns it in the byte order of s.
func (s *Stream) PopStream() (*Stream, error) {
	b, err := s.popBlob(kindStream)
	if err != nil {
		return nil, err
	}
	nested := NewWithEndian(s.endian)
	if err := nested.SetRawData(b); err != nil {
		return nil, err
	}
	return nested, nil
}

func (s *Stream) peek() (kind, error) {
	if s.Empty() {
		return kindInvalid, ErrShortRead
	}
	return kind(s.data[s.head]), nil
}

// take returns n bytes starting off bytes past the head without consuming
// them.
func (s *Stream) take(off, n int) ([]byte, error) {
	start := s.head + off
	if n < 0 || start+n > len(s.data) {
		return nil, fmt.Errorf("%w: need %d bytes, %d left", ErrShortRead, off+n, len(s.data)-s.head)
	}
	return s.data[start : start+n], nil
}

func (s *Stream) arrayLen(elem kind) (int, error) {
	want := elem | arrayFlag
	have, err := s.peek()
	if err != nil {
		return 0, err
	}
	if have != want {
		return 0, fmt.Errorf("%w: have %s, want %s", ErrTypeMismatch, have, want)
	}
	raw, err := s.take(1, 4)
	if err != nil {
		return 0, err
	}
	n := int(s.endian.order().Uint32(raw))
	if _, err := s.take(5, n*elem.size()); err != nil {
		return 0, err
	}
	return n, nil
}

// popInto decodes the elements of the array record at the head, whose
// length was validated by arrayLen.
func popInto[T Scalar](s *Stream, dst []T) error {
	k := kindOf[T]()
	size := k.size()
	order := s.endian.order()
	body := s.data[s.head+5:]
	for i := range dst {
		v, err := decodeScalar[T](k, body[i*size:(i+1)*size], order)
		if err != nil {
			return err
		}
		dst[i] = v
	}
	s.head += 5 + len(dst)*size
	return nil
}

func (s *Stream) popBlob(want kind) ([]byte, error) {
	have, err := s.peek()
	if err != nil {
		return nil, err
	}
	if have != want {
		return nil, fmt.Errorf("%w: have %s, want %s", ErrTypeMismatch, have, want)
	}
	raw, err := s.take(1, 4)
	if err != nil {
		return nil, err
	}
	n := int(s.endian.order().Uint32(raw))
	b, err := s.take(5, n)
	if err != nil {
		return nil, err
	}
	s.head += 5 + n
	return slices.Clone(b), nil
}

func appendScalar[T Scalar](b []byte, order byteOrder, v T) []byte {
	switch x := any(v).(type) {
	case bool:
		if x {
			return append(b, 1)
		}
		return append(b, 0)
	case int8:
		return append(b, byte(x))
	case uint8:
		return append(b, x)
	case int16:
		return order.AppendUint16(b, uint16(x))
	case uint16:
		return order.AppendUint16(b, x)
	case int32:
		return order.AppendUint32(b, uint32(x))
	case uint32:
		return order.AppendUint32(b, x)
	case int64:
		return order.AppendUint64(b, uint64(x))
	case int:
		return order.AppendUint64(b, uint64(x))
	case uint64:
		return order.AppendUint64(b, x)
	case uint:
		return order.AppendUint64(b, uint64(x))
	case float32:
		return order.AppendUint32(b, math.Float32bits(x))
	case float64:
		return order.AppendUint64(b, math.Float64bits(x))
	}
	return b
}

func decodeScalar[T Scalar](have kind, raw []byte, order binary.ByteOrder) (T, error) {
	var out T
	switch p := any(&out).(type) {
	case *bool:
		*p = raw[0] != 0
	case *int8:
		*p = int8(raw[0])
	case *uint8:
		*p = raw[0]
	case *int16:
		*p = int16(order.Uint16(raw))
	case *uint16:
		*p = order.Uint16(raw)
	case *float32:
		*p = math.Float32frombits(order.Uint32(raw))
	case *float64:
		*p = math.Float64frombits(order.Uint64(raw))
	case *int32:
		v := signed(have, raw, order)
		if v < math.MinInt32 || v > math.MaxInt32 {
			return out, fmt.Errorf("%w: %d does not fit int32", ErrOverflow, v)
		}
		*p = int32(v)
	case *int64:
		*p = signed(have, raw, order)
	case *int:
		v := signed(have, raw, order)
		if v < math.MinInt || v > math.MaxInt {
			return out, fmt.Errorf("%w: %d does not fit int", ErrOverflow, v)
		}
		*p = int(v)
	case *uint32:
		v := unsigned(have, raw, order)
		if v > math.MaxUint32 {
			return out, fmt.Errorf("%w: %d does not fit uint32", ErrOverflow, v)
		}
		*p = uint32(v)
	case *uint64:
		*p = unsigned(have, raw, order)
	case *uint:
		v := unsigned(have, raw, order)
		if v > math.MaxUint {
			return out, fmt.Errorf("%w: %d does not fit uint", ErrOverflow, v)
		}
		*p = uint(v)
	}
	return out, nil
}

func signed(have kind, raw []byte, order binary.ByteOrder) int64 {
	if have == kindInt32 {
		return int64(int32(order.Uint32(raw)))
	}
	return int64(order.Uint64(raw))
}

func unsigned(have kind, raw []byte, order binary.ByteOrder) uint64 {
	if have == kindUint32 {
		return uint64(order.Uint32(raw))
	}
	return order.Uint64(raw)
}
