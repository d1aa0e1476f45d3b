package group

import (
	"fmt"

	"github.com/luca-patrignani/procomm/comm"
)

// SubCommunicator is a Transport over the members of a group. Rank i of the
// sub-communicator is rank group.ProcessID(i) of the parent.
type SubCommunicator struct {
	group     *ProcessGroup
	tagOffset int
}

func NewSubCommunicator(g *ProcessGroup) *SubCommunicator {
	return &SubCommunicator{group: g}
}

// SetGroup changes the group ranks are translated through.
func (s *SubCommunicator) SetGroup(g *ProcessGroup) {
	s.group = g
}

// SetTagOffset shifts every tag by offset. Sub-communicators over disjoint
// groups of one parent need distinct offsets when they run at the same
// time, otherwise a receive from any source may match a message of the
// other group.
func (s *SubCommunicator) SetTagOffset(offset int) {
	s.tagOffset = offset
}

func (s *SubCommunicator) Group() *ProcessGroup {
	return s.group
}

func (s *SubCommunicator) Size() int {
	return s.group.Size()
}

// Rank is the position of the caller in the group, -1 for non-members.
func (s *SubCommunicator) Rank() int {
	return s.group.LocalProcessID()
}

func (s *SubCommunicator) Send(data []byte, typ comm.Type, dest, tag int) error {
	id := s.group.ProcessID(dest)
	if id < 0 {
		return fmt.Errorf("%w: destination %d of group of %d", comm.ErrInvalidRank, dest, s.group.Size())
	}
	return s.group.Communicator().Send(data, typ, id, tag+s.tagOffset)
}

func (s *SubCommunicator) Receive(buf []byte, typ comm.Type, source, tag int) (comm.Status, error) {
	id := comm.AnySource
	if source != comm.AnySource {
		id = s.group.ProcessID(source)
		if id < 0 {
			return comm.Status{}, fmt.Errorf("%w: source %d of group of %d", comm.ErrInvalidRank, source, s.group.Size())
		}
	}
	parent := s.group.Communicator()
	if err := parent.Receive(buf, typ, id, tag+s.tagOffset); err != nil {
		return comm.Status{}, err
	}
	return comm.Status{
		Source: s.group.FindProcessID(parent.LastSource()),
		Bytes:  parent.Count() * typ.Size(),
	}, nil
}

// SupportsCollective follows the parent transport.
func (s *SubCommunicator) SupportsCollective(op comm.Collective) bool {
	if r, ok := s.group.Communicator().Transport().(comm.Restricted); ok {
		return r.SupportsCollective(op)
	}
	return true
}
