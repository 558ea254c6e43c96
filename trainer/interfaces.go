// Package trainer implements the distributed training
// loop for local prior matching: paired/unpaired data
// scheduling, loss selection, gradient synchronization,
// and checkpoint bookkeeping.
package trainer

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anynet"
)

// An Encoder maps input feature sequences to encoded
// output sequences.
type Encoder interface {
	anynet.Parameterizer

	Apply(in anyseq.Seq) anyseq.Seq
}

// A SequenceCriterion scores encoded sequences against
// token sequences and decodes hypotheses from them.
//
// All of its interchangeable behaviors are explicit
// methods; the trainer never type-asserts to recover a
// concrete criterion, except for the optional
// WindowCleaner capability.
type SequenceCriterion interface {
	anynet.Parameterizer

	// Forward computes one supervised loss per batch item.
	Forward(encoded anyseq.Seq, targets [][]int) anydiff.Res

	// BeamSearch decodes hypotheses for every batch item.
	// It returns the flattened hypothesis list and the
	// per-item hypothesis counts, which sum to the list's
	// length.
	BeamSearch(encoded anyseq.Seq, eos int) (paths [][]int, hypoNums []int)

	// LogProb computes the log-probability of each path,
	// conditioned on the encoded output of the batch item
	// it belongs to.
	//
	// The kept list maps hypothesis groups to batch item
	// indices: group i's hypotheses are scored against
	// item kept[i].
	LogProb(encoded anyseq.Seq, kept []int, paths [][]int, hypoNums []int) anydiff.Res

	// Viterbi produces the single most likely decoding of
	// each batch item, for evaluation.
	Viterbi(encoded anyseq.Seq) [][]int
}

// A WindowCleaner is a criterion capability for clearing
// windowed-attention state after pretraining.
type WindowCleaner interface {
	ClearWindow()
}

// An LMCritic scores token sequences under a pretrained
// language model.
type LMCritic interface {
	anynet.Parameterizer

	// LogProb returns one log-probability per path.
	LogProb(paths [][]int) anydiff.Res
}

// A Moder is a collaborator capability for toggling
// between training and evaluation behavior (e.g.
// dropout).
type Moder interface {
	SetTraining(training bool)
}

// setTraining toggles training mode on a collaborator if
// it supports the Moder capability.
func setTraining(obj interface{}, training bool) {
	if m, ok := obj.(Moder); ok {
		m.SetTraining(training)
	}
}

// A Reducer synchronizes gradients across workers with
// all-reduce semantics, scaling by 1/worldSize.
//
// Finalize must be called exactly once per training
// iteration by every worker, on every control-flow path,
// even when a worker's batch was filtered down to
// nothing.
type Reducer interface {
	Finalize(g anydiff.Grad)
}
