// Package group carves ordered subsets of ranks out of a communicator.
//
// A ProcessGroup lists ranks of its communicator; the position of a rank in
// the list is its rank inside the group. A SubCommunicator turns a group
// into a Transport whose ranks are group positions, delegating the actual
// I/O to the communicator of the group.
package group

import (
	"errors"
	"fmt"
	"slices"

	"github.com/luca-patrignani/procomm/comm"
)

var ErrGroupFull = errors.New("group: every process of the communicator is already a member")

// ProcessGroup is an ordered set of ranks of one communicator.
type ProcessGroup struct {
	c   *comm.Communicator
	ids []int
}

// New returns a group holding every rank of c, in order.
func New(c *comm.Communicator) *ProcessGroup {
	g := &ProcessGroup{}
	g.Initialize(c)
	return g
}

// Initialize makes g hold every rank of c, in order.
func (g *ProcessGroup) Initialize(c *comm.Communicator) {
	g.c = c
	g.ids = make([]int, c.Size())
	for i := range g.ids {
		g.ids[i] = i
	}
}

// Communicator is the communicator the ranks of g refer to.
func (g *ProcessGroup) Communicator() *comm.Communicator {
	return g.c
}

// SetCommunicator binds g to c and drops every member.
func (g *ProcessGroup) SetCommunicator(c *comm.Communicator) {
	g.c = c
	g.ids = nil
}

// Size is the number of members.
func (g *ProcessGroup) Size() int {
	return len(g.ids)
}

// ProcessID returns the communicator rank at position pos, or -1.
func (g *ProcessGroup) ProcessID(pos int) int {
	if pos < 0 || pos >= len(g.ids) {
		return -1
	}
	return g.ids[pos]
}

// ProcessIDs returns a copy of the member list.
func (g *ProcessGroup) ProcessIDs() []int {
	return slices.Clone(g.ids)
}

// FindProcessID returns the position of communicator rank id, or -1.
func (g *ProcessGroup) FindProcessID(id int) int {
	return slices.Index(g.ids, id)
}

// LocalProcessID is the position of the calling process, or -1 when it is
// not a member.
func (g *ProcessGroup) LocalProcessID() int {
	return g.FindProcessID(g.c.Rank())
}

// AddProcessID appends communicator rank id and returns its position. A rank
// that is already a member keeps its position.
func (g *ProcessGroup) AddProcessID(id int) (int, error) {
	if id < 0 || id >= g.c.Size() {
		return -1, fmt.Errorf("%w: rank %d of %d", comm.ErrInvalidRank, id, g.c.Size())
	}
	if pos := g.FindProcessID(id); pos >= 0 {
		return pos, nil
	}
	if len(g.ids) >= g.c.Size() {
		return -1, ErrGroupFull
	}
	g.ids = append(g.ids, id)
	return len(g.ids) - 1, nil
}

// RemoveProcessID removes communicator rank id, shifting the following
// members left. It reports whether id was a member.
func (g *ProcessGroup) RemoveProcessID(id int) bool {
	pos := g.FindProcessID(id)
	if pos < 0 {
		return false
	}
	g.ids = slices.Delete(g.ids, pos, pos+1)
	return true
}

// RemoveAllProcessIDs empties the group.
func (g *ProcessGroup) RemoveAllProcessIDs() {
	g.ids = g.ids[:0]
}

// Copy makes g a copy of o.
func (g *ProcessGroup) Copy(o *ProcessGroup) {
	g.c = o.c
	g.ids = slices.Clone(o.ids)
}

// Rebind returns a group with the same members over communicator c, which
// must be at least as large as the communicator of g.
func (g *ProcessGroup) Rebind(c *comm.Communicator) (*ProcessGroup, error) {
	for _, id := range g.ids {
		if id >= c.Size() {
			return nil, fmt.Errorf("%w: rank %d of %d", comm.ErrInvalidRank, id, c.Size())
		}
	}
	return &ProcessGroup{c: c, ids: slices.Clone(g.ids)}, nil
}
