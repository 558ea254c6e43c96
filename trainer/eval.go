package trainer

import (
	"math/rand"

	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/essentials"
)

// TrainEvalIDs samples roughly pct percent of n global
// batch indices for on-the-fly decoding evaluation.
//
// The selection is deterministic for a given seed.
func TrainEvalIDs(n int, pct float64, seed int64) map[int64]bool {
	rng := rand.New(rand.NewSource(seed))
	ids := map[int64]bool{}
	for i := 0; i < n; i++ {
		if rng.Float64() < pct/100 {
			ids[int64(i)] = true
		}
	}
	return ids
}

// evalOutput decodes the batch and accumulates edit
// distances against the reference targets.
func (t *Trainer) evalOutput(encoded anyseq.Seq, targets [][]int, edits *EditMeter) {
	hyps := t.Criterion.Viterbi(encoded)
	for i, hyp := range hyps {
		ref := trimEOS(targets[i], t.EOS)
		edits.Add(editDistance(hyp, ref), len(ref))
	}
}

// runEval measures losses and error rates on every
// validation set.
func (t *Trainer) runEval() error {
	setTraining(t.Encoder, false)
	setTraining(t.Criterion, false)
	defer func() {
		setTraining(t.Encoder, true)
		setTraining(t.Criterion, true)
	}()

	for name, src := range t.Valid {
		dm := t.Meters.Valid[name]
		dm.Reset()
		for i := 0; i < src.Len(); i++ {
			batch, err := src.Batch(i)
			if err != nil {
				return essentials.AddCtx("evaluate "+name, err)
			}
			encoded := t.Encoder.Apply(anyseq.ConstSeqList(t.Creator, batch.Inputs))
			loss := t.Criterion.Forward(encoded, batch.Targets)
			dm.Losses[LossASR].AddVector(loss.Output())
			t.evalOutput(encoded, batch.Targets, dm.Edits)
		}
	}
	return nil
}

func trimEOS(tokens []int, eos int) []int {
	for i, tok := range tokens {
		if tok == eos {
			return tokens[:i]
		}
	}
	return tokens
}

// editDistance computes the Levenshtein distance between
// two token sequences.
func editDistance(a, b []int) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			sub := prev[j-1]
			if a[i-1] != b[j-1] {
				sub++
			}
			cur[j] = essentials.MinInt(sub, prev[j]+1, cur[j-1]+1)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
