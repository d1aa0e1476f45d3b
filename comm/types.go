package comm

import (
	"encoding/binary"
	"fmt"
)

// Type tags the element type of a buffer.
type Type uint8

const (
	Char Type = iota + 1
	Int8
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
)

var typeNames = [...]string{
	Char:    "char",
	Int8:    "int8",
	Uint8:   "uint8",
	Int16:   "int16",
	Uint16:  "uint16",
	Int32:   "int32",
	Uint32:  "uint32",
	Int64:   "int64",
	Uint64:  "uint64",
	Float32: "float32",
	Float64: "float64",
}

func (t Type) String() string {
	if t.Valid() {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// Valid reports whether t is a known element type.
func (t Type) Valid() bool {
	return t >= Char && t <= Float64
}

// Size is the width in bytes of one element.
func (t Type) Size() int {
	switch t {
	case Char, Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	}
	return 0
}

// Float reports whether t is a floating point type.
func (t Type) Float() bool {
	return t == Float32 || t == Float64
}

// Number is the set of element types of typed buffers.
type Number interface {
	int8 | uint8 | int16 | uint16 | int32 | uint32 | int64 | uint64 | float32 | float64
}

// TypeOf returns the tag of the element type T.
func TypeOf[T Number]() Type {
	var zero T
	switch any(zero).(type) {
	case int8:
		return Int8
	case uint8:
		return Uint8
	case int16:
		return Int16
	case uint16:
		return Uint16
	case int32:
		return Int32
	case uint32:
		return Uint32
	case int64:
		return Int64
	case uint64:
		return Uint64
	case float32:
		return Float32
	}
	return Float64
}

// Encode returns the in-memory representation of data in the byte order of
// the running process.
func Encode[T Number](data []T) []byte {
	b, _ := binary.Append(make([]byte, 0, len(data)*TypeOf[T]().Size()), binary.NativeEndian, data)
	return b
}

// Decode fills dst from the in-memory representation produced by Encode.
// It decodes min(len(dst), len(b)/size) elements and returns that count.
func Decode[T Number](b []byte, dst []T) int {
	n := min(len(dst), len(b)/TypeOf[T]().Size())
	if n == 0 {
		return 0
	}
	_, _ = binary.Decode(b, binary.NativeEndian, dst[:n])
	return n
}
