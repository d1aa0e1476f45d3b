package stream

import "fmt"

// kind is the type tag written in front of every record.
type kind byte

const (
	kindInvalid kind = iota
	kindBool
	kindInt8
	kindUint8
	kindInt16
	kindUint16
	kindInt32
	kindUint32
	kindInt64
	kindUint64
	kindFloat32
	kindFloat64
	kindString
	kindStream
)

// arrayFlag marks an array of the scalar kind in the low bits.
const arrayFlag kind = 0x80

var kindNames = map[kind]string{
	kindBool:    "bool",
	kindInt8:    "int8",
	kindUint8:   "uint8",
	kindInt16:   "int16",
	kindUint16:  "uint16",
	kindInt32:   "int32",
	kindUint32:  "uint32",
	kindInt64:   "int64",
	kindUint64:  "uint64",
	kindFloat32: "float32",
	kindFloat64: "float64",
	kindString:  "string",
	kindStream:  "stream",
}

func (k kind) String() string {
	if k&arrayFlag != 0 {
		return "[]" + (k &^ arrayFlag).String()
	}
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", byte(k))
}

// size is the width in bytes of one scalar of kind k, or 0 for kinds
// without a fixed width.
func (k kind) size() int {
	switch k {
	case kindBool, kindInt8, kindUint8:
		return 1
	case kindInt16, kindUint16:
		return 2
	case kindInt32, kindUint32, kindFloat32:
		return 4
	case kindInt64, kindUint64, kindFloat64:
		return 8
	}
	return 0
}

func (k kind) scalar() bool {
	return k.size() > 0
}

// Scalar is the set of Go types that can be pushed as a single record or
// as the elements of an array record. int and uint travel as 64 bit values.
type Scalar interface {
	bool | int8 | uint8 | int16 | uint16 | int32 | uint32 | int64 | uint64 |
		float32 | float64 | int | uint
}

func kindOf[T Scalar]() kind {
	var zero T
	switch any(zero).(type) {
	case bool:
		return kindBool
	case int8:
		return kindInt8
	case uint8:
		return kindUint8
	case int16:
		return kindInt16
	case uint16:
		return kindUint16
	case int32:
		return kindInt32
	case uint32:
		return kindUint32
	case int64, int:
		return kindInt64
	case uint64, uint:
		return kindUint64
	case float32:
		return kindFloat32
	case float64:
		return kindFloat64
	}
	return kindInvalid
}

// convertible reports whether a record of kind have may be read as want.
func convertible(have, want kind) bool {
	if have == want {
		return true
	}
	switch want {
	case kindInt32, kindInt64:
		return have == kindInt32 || have == kindInt64
	case kindUint32, kindUint64:
		return have == kindUint32 || have == kindUint64
	}
	return false
}
