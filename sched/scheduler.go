// Package sched multiplexes training batches from
// multiple data sources according to a per-epoch
// iteration schedule.
package sched

import (
	"errors"
	"sort"

	"github.com/unixpickle/essentials"
	"github.com/unixpickle/priormatch"
)

// A Source is a randomly-accessible dataset of batches.
type Source interface {
	// Len returns the number of batches.
	Len() int

	// Shuffle deterministically reorders the batches.
	Shuffle(seed int64)

	// Batch returns the batch at the index.
	Batch(i int) (*priormatch.Batch, error)
}

// A Scheduler draws batches from its sources such that,
// over one epoch, exactly counts[i] batches come from
// source i, interleaved proportionally so that no source
// forms long runs.
//
// The draw order is deterministic given the seed and the
// starting epoch, so a resumed run reproduces the order
// of an uninterrupted one.
type Scheduler struct {
	sources []Source
	kinds   []priormatch.DataKind
	counts  []int
	seed    int64

	epoch   int
	order   []int
	pos     int
	cursors []int
	laps    []int
}

// New creates a Scheduler.
//
// The kinds and counts lists must parallel sources.
// The startEpoch seeds the interleave so that resuming at
// a later epoch reproduces the original draw order.
func New(sources []Source, kinds []priormatch.DataKind, counts []int,
	startEpoch int, seed int64) (*Scheduler, error) {
	if len(sources) == 0 {
		return nil, errors.New("create scheduler: no sources")
	}
	if len(kinds) != len(sources) || len(counts) != len(sources) {
		return nil, errors.New("create scheduler: mismatching source lists")
	}
	s := &Scheduler{
		sources: sources,
		kinds:   kinds,
		counts:  append([]int{}, counts...),
		seed:    seed,
		epoch:   startEpoch,
		cursors: make([]int, len(sources)),
		laps:    make([]int, len(sources)),
	}
	for i, src := range sources {
		if src.Len() == 0 && counts[i] > 0 {
			return nil, errors.New("create scheduler: empty source with non-zero schedule")
		}
		src.Shuffle(s.sourceSeed(i))
	}
	s.order = interleave(s.counts)
	return s, nil
}

// IterationsPerEpoch returns the sum of the current
// schedule's counts.
func (s *Scheduler) IterationsPerEpoch() int {
	var sum int
	for _, c := range s.counts {
		sum += c
	}
	return sum
}

// SourceLen returns the number of batches in source i.
func (s *Scheduler) SourceLen(i int) int {
	return s.sources[i].Len()
}

// SetSchedule replaces the per-epoch counts.
//
// The current epoch's remaining order is rebuilt, so this
// should be called at epoch boundaries.
func (s *Scheduler) SetSchedule(counts []int) error {
	if len(counts) != len(s.sources) {
		return errors.New("set schedule: mismatching counts")
	}
	for i, c := range counts {
		if s.sources[i].Len() == 0 && c > 0 {
			return errors.New("set schedule: empty source with non-zero schedule")
		}
	}
	s.counts = append([]int{}, counts...)
	s.order = interleave(s.counts)
	s.pos = 0
	return nil
}

// Get returns the next batch, stamped with its source's
// data kind.
//
// Requesting more than IterationsPerEpoch batches simply
// rolls into the next epoch's order; callers enforce
// their own per-epoch iteration bounds.
func (s *Scheduler) Get() (*priormatch.Batch, error) {
	if s.pos >= len(s.order) {
		s.epoch++
		s.order = interleave(s.counts)
		s.pos = 0
	}
	src := s.order[s.pos]
	s.pos++

	if s.cursors[src] >= s.sources[src].Len() {
		s.laps[src]++
		s.cursors[src] = 0
		s.sources[src].Shuffle(s.sourceSeed(src))
	}
	batch, err := s.sources[src].Batch(s.cursors[src])
	if err != nil {
		return nil, essentials.AddCtx("get batch", err)
	}
	s.cursors[src]++

	b := *batch
	b.Kind = s.kinds[src]
	return &b, nil
}

func (s *Scheduler) sourceSeed(src int) int64 {
	return s.seed + int64(s.epoch) + int64(s.laps[src])
}

// interleave produces a deterministic source order with
// counts[i] occurrences of i, merged by fractional
// position so that sources alternate proportionally.
func interleave(counts []int) []int {
	type draw struct {
		src int
		at  float64
	}
	var draws []draw
	for i, c := range counts {
		for k := 0; k < c; k++ {
			draws = append(draws, draw{src: i, at: (float64(k) + 0.5) / float64(c)})
		}
	}
	sort.SliceStable(draws, func(i, j int) bool {
		return draws[i].at < draws[j].at
	})
	order := make([]int, len(draws))
	for i, d := range draws {
		order[i] = d.src
	}
	return order
}
