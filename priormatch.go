// Package priormatch provides the building blocks for
// semi-supervised sequence-to-sequence training with
// local prior matching: hypothesis bookkeeping, beam
// post-processing, and prior-matching losses.
//
// Sub-packages implement the data scheduler and the
// distributed training loop built on these primitives.
package priormatch

import "github.com/unixpickle/anyvec"

// A DataKind tags the provenance of a Batch.
type DataKind int

// The two kinds of training data.
const (
	// Paired is audio with a ground-truth transcript.
	Paired DataKind = iota

	// UnpairedAudio is audio without a transcript, trained
	// via prior matching.
	UnpairedAudio
)

// A Batch is one training unit produced by a data source.
//
// A Batch is immutable for the duration of the iteration
// that consumes it.
type Batch struct {
	// Inputs contains one feature-vector sequence per
	// batch item.
	Inputs [][]anyvec.Vector

	// Targets contains one token sequence per batch item.
	// For unpaired audio, targets are only consulted by
	// the oracle ablation and by length filtering.
	Targets [][]int

	// Kind indicates which source produced the batch.
	Kind DataKind

	// IDs are opaque per-item sample identifiers.
	IDs []string

	// Index is the global batch index within the source.
	Index int64
}

// TargetLengths measures each target sequence, counting
// tokens up to (and excluding) the first EOS token.
func TargetLengths(targets [][]int, eos int) []int {
	res := make([]int, len(targets))
	for i, tgt := range targets {
		n := len(tgt)
		for j, tok := range tgt {
			if tok == eos {
				n = j
				break
			}
		}
		res[i] = n
	}
	return res
}
