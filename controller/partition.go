package controller

import (
	"cmp"
	"fmt"
	"slices"

	"go.dedis.ch/protobuf"

	"github.com/luca-patrignani/procomm/comm"
	"github.com/luca-patrignani/procomm/group"
)

// CreateSubController returns a controller over the members of g, a group
// of the payload communicator. Ranks of the sub-controller are positions
// in g. Processes outside g get nil.
func (c *Controller) CreateSubController(g *group.ProcessGroup) (*Controller, error) {
	return c.createSubController(g, 0)
}

func (c *Controller) createSubController(g *group.ProcessGroup, tagOffset int) (*Controller, error) {
	if g.Communicator() != c.c {
		return nil, fmt.Errorf("sub-controller: group is not defined over the payload communicator")
	}
	if g.LocalProcessID() < 0 {
		return nil, nil
	}
	sub := group.NewSubCommunicator(g)
	sub.SetTagOffset(tagOffset)
	payload := comm.New(sub)
	rmi := payload
	if c.rmi != c.c {
		rg, err := g.Rebind(c.rmi)
		if err != nil {
			return nil, fmt.Errorf("sub-controller: %w", err)
		}
		rsub := group.NewSubCommunicator(rg)
		rsub.SetTagOffset(tagOffset)
		rmi = comm.New(rsub)
	}
	return New(payload, rmi, WithLogger(c.logger), WithBroadcastTriggerRMI(c.broadcastTrigger)), nil
}

// partitionTagStride separates the tags of the partitions, above every
// reserved tag.
const partitionTagStride = 1 << 20

// membership is what each rank contributes to PartitionController.
type membership struct {
	Color int64
	Key   int64
}

// PartitionController splits the ranks by color. Every rank must call it;
// each gets the controller of the ranks sharing its color, ranked by key
// and then by rank in c. The partitions may be used concurrently: each one
// shifts its tags by a stride per distinct color.
func (c *Controller) PartitionController(color, key int) (*Controller, error) {
	local, err := protobuf.Encode(&membership{Color: int64(color), Key: int64(key)})
	if err != nil {
		return nil, fmt.Errorf("partition: %w", err)
	}
	all, counts, err := comm.AllGatherVariable(c.c, local)
	if err != nil {
		return nil, fmt.Errorf("partition: %w", err)
	}
	type member struct {
		rank int
		key  int64
	}
	var members []member
	var colors []int64
	off := 0
	for rank, n := range counts {
		var m membership
		if err := protobuf.Decode(all[off:off+n], &m); err != nil {
			return nil, fmt.Errorf("partition: record of rank %d: %w", rank, err)
		}
		off += n
		colors = append(colors, m.Color)
		if m.Color == int64(color) {
			members = append(members, member{rank: rank, key: m.Key})
		}
	}
	slices.Sort(colors)
	colors = slices.Compact(colors)
	index, _ := slices.BinarySearch(colors, int64(color))
	slices.SortFunc(members, func(a, b member) int {
		return cmp.Or(cmp.Compare(a.key, b.key), cmp.Compare(a.rank, b.rank))
	})
	g := &group.ProcessGroup{}
	g.SetCommunicator(c.c)
	for _, m := range members {
		if _, err := g.AddProcessID(m.rank); err != nil {
			return nil, fmt.Errorf("partition: %w", err)
		}
	}
	return c.createSubController(g, (index+1)*partitionTagStride)
}
