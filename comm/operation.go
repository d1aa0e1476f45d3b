package comm

import (
	"fmt"
	"math"
)

// Operation is a reduction. Function folds a into b element-wise so that
// b[i] = a[i] op b[i]. Operations must be associative; Commutative tells
// Reduce whether partial results may be combined in arrival order.
type Operation interface {
	Function(a, b []byte, typ Type) error
	Commutative() bool
}

// Builtin is a predefined reduction.
type Builtin int

const (
	Max Builtin = iota
	Min
	Sum
	Product
	LogicalAnd
	LogicalOr
	LogicalXor
	BitwiseAnd
	BitwiseOr
	BitwiseXor
)

var builtinNames = [...]string{
	Max:        "max",
	Min:        "min",
	Sum:        "sum",
	Product:    "product",
	LogicalAnd: "logical-and",
	LogicalOr:  "logical-or",
	LogicalXor: "logical-xor",
	BitwiseAnd: "bitwise-and",
	BitwiseOr:  "bitwise-or",
	BitwiseXor: "bitwise-xor",
}

func (op Builtin) String() string {
	if op >= 0 && int(op) < len(builtinNames) {
		return builtinNames[op]
	}
	return fmt.Sprintf("builtin(%d)", int(op))
}

func (op Builtin) Commutative() bool {
	return true
}

func (op Builtin) Function(a, b []byte, typ Type) error {
	if op < Max || op > BitwiseXor {
		return fmt.Errorf("%w: unknown reduction %s", ErrUnsupported, op)
	}
	if op >= BitwiseAnd && typ.Float() {
		return fmt.Errorf("%w: %s on %s", ErrTypeMismatch, op, typ)
	}
	switch typ {
	case Char, Uint8:
		return apply(a, b, integerOp[uint8](op))
	case Int8:
		return apply(a, b, integerOp[int8](op))
	case Int16:
		return apply(a, b, integerOp[int16](op))
	case Uint16:
		return apply(a, b, integerOp[uint16](op))
	case Int32:
		return apply(a, b, integerOp[int32](op))
	case Uint32:
		return apply(a, b, integerOp[uint32](op))
	case Int64:
		return apply(a, b, integerOp[int64](op))
	case Uint64:
		return apply(a, b, integerOp[uint64](op))
	case Float32:
		return apply(a, b, floatOp[float32](op))
	case Float64:
		return apply(a, b, floatOp[float64](op))
	}
	return fmt.Errorf("%w: %s", ErrTypeMismatch, typ)
}

type integer interface {
	int8 | uint8 | int16 | uint16 | int32 | uint32 | int64 | uint64
}

func boolean[T Number](v bool) T {
	if v {
		return 1
	}
	return 0
}

func integerOp[T integer](op Builtin) func(x, y T) T {
	switch op {
	case BitwiseAnd:
		return func(x, y T) T { return x & y }
	case BitwiseOr:
		return func(x, y T) T { return x | y }
	case BitwiseXor:
		return func(x, y T) T { return x ^ y }
	}
	return commonOp[T](op)
}

func floatOp[T float32 | float64](op Builtin) func(x, y T) T {
	if op == Max {
		return func(x, y T) T { return T(math.Max(float64(x), float64(y))) }
	}
	if op == Min {
		return func(x, y T) T { return T(math.Min(float64(x), float64(y))) }
	}
	return commonOp[T](op)
}

func commonOp[T Number](op Builtin) func(x, y T) T {
	switch op {
	case Max:
		return func(x, y T) T { return max(x, y) }
	case Min:
		return func(x, y T) T { return min(x, y) }
	case Sum:
		return func(x, y T) T { return x + y }
	case Product:
		return func(x, y T) T { return x * y }
	case LogicalAnd:
		return func(x, y T) T { return boolean[T](x != 0 && y != 0) }
	case LogicalOr:
		return func(x, y T) T { return boolean[T](x != 0 || y != 0) }
	}
	return func(x, y T) T { return boolean[T]((x != 0) != (y != 0)) }
}

// apply decodes a and b as []T, folds a into b with fn and re-encodes b.
func apply[T Number](a, b []byte, fn func(x, y T) T) error {
	if len(a) != len(b) {
		return fmt.Errorf("%w: operands of %d and %d bytes", ErrSizeMismatch, len(a), len(b))
	}
	n := len(a) / TypeOf[T]().Size()
	x := make([]T, n)
	y := make([]T, n)
	Decode(a, x)
	Decode(b, y)
	for i := range y {
		y[i] = fn(x[i], y[i])
	}
	copy(b, Encode(y))
	return nil
}

// Func is a user-supplied reduction on elements of type T.
type Func[T Number] struct {
	// Fn returns x op y.
	Fn func(x, y T) T
	// IsCommutative declares that x op y == y op x.
	IsCommutative bool
}

// NewOperation wraps fn as an Operation on elements of type T.
func NewOperation[T Number](fn func(x, y T) T, commutative bool) Func[T] {
	return Func[T]{Fn: fn, IsCommutative: commutative}
}

func (f Func[T]) Commutative() bool {
	return f.IsCommutative
}

func (f Func[T]) Function(a, b []byte, typ Type) error {
	if typ != TypeOf[T]() && !(typ == Char && TypeOf[T]() == Uint8) {
		return fmt.Errorf("%w: operation on %s applied to %s", ErrTypeMismatch, TypeOf[T](), typ)
	}
	return apply(a, b, f.Fn)
}
