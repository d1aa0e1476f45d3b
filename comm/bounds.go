package comm

import (
	"fmt"
	"math"
)

// Bounds is an axis-aligned box (xmin, xmax, ymin, ymax, zmin, zmax). A box
// whose minimum exceeds its maximum on some axis is empty.
type Bounds [6]float64

// EmptyBounds returns a box that every merge replaces.
func EmptyBounds() Bounds {
	return Bounds{math.Inf(1), math.Inf(-1), math.Inf(1), math.Inf(-1), math.Inf(1), math.Inf(-1)}
}

// Valid reports whether b encloses at least one point.
func (b Bounds) Valid() bool {
	return b[0] <= b[1] && b[2] <= b[3] && b[4] <= b[5]
}

// Merge returns the smallest box enclosing b and o.
func (b Bounds) Merge(o Bounds) Bounds {
	if !o.Valid() {
		return b
	}
	if !b.Valid() {
		return o
	}
	for i := 0; i < 6; i += 2 {
		b[i] = min(b[i], o[i])
		b[i+1] = max(b[i+1], o[i+1])
	}
	return b
}

// ComputeGlobalBounds merges the local box of every rank and returns the
// result on every rank. Ranks form an implicit binary tree, rank r having
// children 2r+1 and 2r+2: boxes travel up to rank 0 and the merged box
// travels back down, so no native reduce is needed. Ranks without data pass
// an invalid box.
func (c *Communicator) ComputeGlobalBounds(local Bounds) (Bounds, error) {
	rank := c.Rank()
	merged := local
	buf := make([]float64, 6)
	for _, child := range []int{2*rank + 1, 2*rank + 2} {
		if child >= c.size {
			continue
		}
		if _, err := Receive(c, buf, child, BoundsTag); err != nil {
			return Bounds{}, fmt.Errorf("bounds from %d: %w", child, err)
		}
		merged = merged.Merge(Bounds(buf))
	}
	if rank > 0 {
		parent := (rank - 1) / 2
		if err := Send(c, merged[:], parent, BoundsTag); err != nil {
			return Bounds{}, fmt.Errorf("bounds to %d: %w", parent, err)
		}
		if _, err := Receive(c, buf, parent, GlobalBoundsTag); err != nil {
			return Bounds{}, fmt.Errorf("global bounds from %d: %w", parent, err)
		}
		merged = Bounds(buf)
	}
	for _, child := range []int{2*rank + 1, 2*rank + 2} {
		if child < c.size {
			if err := Send(c, merged[:], child, GlobalBoundsTag); err != nil {
				return Bounds{}, fmt.Errorf("global bounds to %d: %w", child, err)
			}
		}
	}
	return merged, nil
}
