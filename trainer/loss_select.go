package trainer

import (
	"log"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/priormatch"
)

// computeLoss selects and computes the loss for one
// sample: supervised for paired data, and oracle or
// prior-matching for unpaired audio.
//
// It returns the loss and, for the prior-matching branch,
// the surviving hypotheses.
func (t *Trainer) computeLoss(sample *priormatch.Batch, encoded anyseq.Seq) (anydiff.Res, [][]int) {
	timers := t.Meters.Timers
	losses := t.Meters.Train.Losses

	switch {
	case sample.Kind == priormatch.Paired:
		timers[PhaseCritFwd].Resume()
		loss := t.Criterion.Forward(encoded, sample.Targets)
		t.Mem.Update("2a-decfwd")
		if priormatch.HasNonFinite(loss.Output()) {
			panic("ASR loss has NaN values")
		}
		losses[LossASR].AddVector(loss.Output())
		timers[PhaseCritFwd].StopAndIncUnit()
		return loss, nil
	case t.PMType == Oracle:
		timers[PhaseBeamFwd].Resume()
		loss := t.Criterion.Forward(encoded, sample.Targets)
		t.Mem.Update("2a-decfwd")
		if priormatch.HasNonFinite(loss.Output()) {
			panic("oracle loss has NaN values")
		}
		losses[LossLM].AddVector(loss.Output())
		timers[PhaseBeamFwd].StopAndIncUnit()
		return loss, nil
	default:
		return t.priorMatchLoss(sample, encoded)
	}
}

// priorMatchLoss computes the local-prior-matching loss
// over beam-searched hypotheses.
func (t *Trainer) priorMatchLoss(sample *priormatch.Batch, encoded anyseq.Seq) (anydiff.Res, [][]int) {
	c := t.Creator
	timers := t.Meters.Timers
	losses := t.Meters.Train.Losses

	timers[PhaseBeam].Resume()
	paths, hypoNums := t.Criterion.BeamSearch(encoded, t.EOS)
	timers[PhaseBeam].StopAndIncUnit()
	t.Mem.Update("2b-decbs")

	refLens := priormatch.TargetLengths(sample.Targets, t.EOS)
	paths, hypoNums, kept := priormatch.FilterByLength(paths, hypoNums, refLens,
		t.HypLenRatioLB, t.HypLenRatioUB)

	if len(kept) == 0 {
		// Every batch item was filtered out. Substitute a
		// zero-valued loss that is still a function of the
		// parameters, so the gradient exists (all zeros) and
		// the reduction below stays collective.
		log.Println("WARNING: empty batch after filtering; using a zero-valued loss")
		full := t.Criterion.Forward(encoded, sample.Targets)
		return anydiff.Scale(full, c.MakeNumeric(0)), nil
	}

	var lmLogProb, procLM anydiff.Res
	timers[PhaseLMCritFwd].Resume()
	if t.UseUniformLM {
		lmLogProb = anydiff.NewConst(c.MakeVector(len(paths)))
		procLM = lmLogProb
	} else {
		lmLogProb = t.LMCrit.LogProb(paths)
		procLM = priormatch.NormalizeLMLogProb(lmLogProb, paths)
		if t.ShuffleLMProb {
			procLM = priormatch.ShuffleProb(procLM, hypoNums, t.Rand)
		}
	}
	timers[PhaseLMCritFwd].StopAndIncUnit()
	t.Mem.Update("3-lmfwd")

	timers[PhaseBeamFwd].Resume()
	s2sLogProb := t.Criterion.LogProb(encoded, kept, paths, hypoNums)
	procS2S := priormatch.NormalizeS2SLogProb(s2sLogProb, paths, hypoNums)
	t.Mem.Update("4-bmfwd")

	loss := priormatch.PriorMatchLoss(t.Divergence, procLM, procS2S, hypoNums)
	lmEnt := priormatch.Entropy(procLM, hypoNums)
	s2sEnt := priormatch.Entropy(procS2S, hypoNums)
	timers[PhaseBeamFwd].StopAndIncUnit()

	if t.Debug {
		lmProb := priormatch.AdjustProb(procLM, hypoNums, true, true)
		adv := priormatch.Advantage(lmLogProb, hypoNums, t.AdvMargin)
		log.Printf("#Hypos=%d (%v)", len(paths), hypoNums)
		log.Printf("LM prob (re-normalized): %v", lmProb.Output().Data())
		log.Printf("LM advantage: %v", adv.Output().Data())
		log.Printf("S2S log-prob (processed): %v", procS2S.Output().Data())
	}

	for _, p := range paths {
		losses[LossLen].Add(float64(len(p)))
	}
	losses[LossNumHypos].Add(float64(len(paths)))
	losses[LossLMEnt].AddVector(lmEnt.Output())
	losses[LossLMScore].AddVector(lmLogProb.Output())
	losses[LossS2SEnt].AddVector(s2sEnt.Output())

	if priormatch.HasNonFinite(loss.Output()) {
		panic("prior matching loss has NaN values")
	}
	losses[LossLM].AddVector(loss.Output())
	return anydiff.Scale(loss, c.MakeNumeric(t.LMWeight)), paths
}
