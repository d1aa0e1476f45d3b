package exchange

import (
	"errors"
	"fmt"
	"slices"

	"go.dedis.ch/protobuf"

	"github.com/luca-patrignani/procomm/comm"
	"github.com/luca-patrignani/procomm/controller"
)

// Tags of the exchange messages.
const (
	DuplicateTag = 131767
	CollectTag   = 131768
)

var ErrCorrupt = errors.New("exchange: malformed dataset")

// dataset is the envelope of the records of one rank.
type dataset struct {
	Rank    int64
	Records [][]byte
}

func encode(rank int, records [][]byte) ([]byte, error) {
	b, err := protobuf.Encode(&dataset{Rank: int64(rank), Records: records})
	if err != nil {
		return nil, fmt.Errorf("encode dataset of rank %d: %w", rank, err)
	}
	return b, nil
}

func decode(b []byte) (dataset, error) {
	var d dataset
	if err := protobuf.Decode(b, &d); err != nil {
		return d, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return d, nil
}

var defaultScheduler Scheduler

// Duplicate gives every rank the records of every rank, in rank order. In
// each round of the schedule a rank swaps its own records with its
// partner; the lower rank of a pair sends first.
func Duplicate(ctrl *controller.Controller, records [][]byte) ([][]byte, error) {
	c := ctrl.Communicator()
	rank := c.Rank()
	sched, err := defaultScheduler.Schedule(c.Size())
	if err != nil {
		return nil, err
	}
	local, err := encode(rank, records)
	if err != nil {
		return nil, err
	}
	byRank := make([][][]byte, c.Size())
	byRank[rank] = records
	for round := 0; round < sched.Length(); round++ {
		partner := sched.Partner(rank, round)
		if partner == NoPartner {
			continue
		}
		var remote []byte
		if rank < partner {
			if err = sendBlob(c, local, partner, DuplicateTag); err == nil {
				remote, err = receiveBlob(c, partner, DuplicateTag)
			}
		} else {
			if remote, err = receiveBlob(c, partner, DuplicateTag); err == nil {
				err = sendBlob(c, local, partner, DuplicateTag)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("duplicate round %d with %d: %w", round, partner, err)
		}
		d, err := decode(remote)
		if err != nil {
			return nil, err
		}
		if int(d.Rank) != partner {
			return nil, fmt.Errorf("%w: round %d expected records of %d, got %d", ErrCorrupt, round, partner, d.Rank)
		}
		byRank[partner] = d.Records
	}
	return slices.Concat(byRank...), nil
}

// Collect gathers the records of every rank on root, in rank order. Other
// ranks get nil.
func Collect(ctrl *controller.Controller, records [][]byte, root int) ([][]byte, error) {
	c := ctrl.Communicator()
	local, err := encode(c.Rank(), records)
	if err != nil {
		return nil, err
	}
	if c.Rank() != root {
		return nil, sendBlob(c, local, root, CollectTag)
	}
	byRank := make([][][]byte, c.Size())
	byRank[root] = records
	for i := 0; i < c.Size(); i++ {
		if i == root {
			continue
		}
		remote, err := receiveBlob(c, i, CollectTag)
		if err != nil {
			return nil, fmt.Errorf("collect from %d: %w", i, err)
		}
		d, err := decode(remote)
		if err != nil {
			return nil, err
		}
		byRank[i] = d.Records
	}
	return slices.Concat(byRank...), nil
}

func sendBlob(c *comm.Communicator, b []byte, dest, tag int) error {
	if err := comm.Send(c, []int64{int64(len(b))}, dest, tag); err != nil {
		return err
	}
	return c.Send(b, comm.Char, dest, tag)
}

func receiveBlob(c *comm.Communicator, source, tag int) ([]byte, error) {
	length := make([]int64, 1)
	if _, err := comm.Receive(c, length, source, tag); err != nil {
		return nil, err
	}
	b := make([]byte, length[0])
	if err := c.Receive(b, comm.Char, source, tag); err != nil {
		return nil, err
	}
	return b, nil
}
