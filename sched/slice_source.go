package sched

import (
	"math/rand"

	"github.com/unixpickle/priormatch"
)

// A SliceSource is a concrete Source backed by a slice of
// pre-built batches.
type SliceSource []*priormatch.Batch

// Len returns the number of batches.
func (s SliceSource) Len() int {
	return len(s)
}

// Shuffle reorders the batches with a seeded generator.
func (s SliceSource) Shuffle(seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for i := range s {
		j := i + rng.Intn(len(s)-i)
		s[i], s[j] = s[j], s[i]
	}
}

// Batch returns the batch at the index.
func (s SliceSource) Batch(i int) (*priormatch.Batch, error) {
	return s[i], nil
}
