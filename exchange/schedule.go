// Package exchange duplicates per-rank datasets onto every rank, pairing
// ranks round by round so that every pair meets exactly once.
package exchange

import (
	"fmt"
	"math/bits"
	"sync"
)

// NoPartner marks a rank idle in a round.
const NoPartner = -1

// Schedule pairs the ranks of a communicator for each round of an exchange.
type Schedule struct {
	processes int
	table     [][]int
}

// NewSchedule computes the schedule of n ranks. It has 2^k-1 rounds with
// k = ceil(log2(n)); in each round a rank is paired with the lowest rank it
// has not met yet and that is still free.
func NewSchedule(n int) (*Schedule, error) {
	if n < 1 {
		return nil, fmt.Errorf("schedule of %d processes", n)
	}
	length := 1<<bits.Len(uint(n-1)) - 1
	table := make([][]int, n)
	met := make([][]bool, n)
	for i := range table {
		table[i] = make([]int, length)
		for j := range table[i] {
			table[i][j] = NoPartner
		}
		met[i] = make([]bool, n)
		met[i][i] = true
	}
	for j := 0; j < length; j++ {
		paired := make([]bool, n)
		for i := 0; i < n; i++ {
			if paired[i] {
				continue
			}
			for k := 0; k < n; k++ {
				if met[i][k] || paired[k] {
					continue
				}
				table[i][j], table[k][j] = k, i
				paired[i], paired[k] = true, true
				met[i][k], met[k][i] = true, true
				break
			}
		}
	}
	return &Schedule{processes: n, table: table}, nil
}

// Length is the number of rounds.
func (s *Schedule) Length() int {
	return len(s.table[0])
}

func (s *Schedule) Processes() int {
	return s.processes
}

// Partner is the rank paired with rank in round, or NoPartner.
func (s *Schedule) Partner(rank, round int) int {
	return s.table[rank][round]
}

// Scheduler caches the schedule of the last process count it was asked
// for.
type Scheduler struct {
	mu       sync.Mutex
	schedule *Schedule
}

// Schedule returns the schedule of n ranks, computing it only when n
// changes.
func (s *Scheduler) Schedule(n int) (*Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedule != nil && s.schedule.processes == n {
		return s.schedule, nil
	}
	sched, err := NewSchedule(n)
	if err != nil {
		return nil, err
	}
	s.schedule = sched
	return sched, nil
}
