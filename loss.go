package priormatch

import "github.com/unixpickle/anydiff"

// A Divergence measures, per hypothesis group, the
// discrepancy between a prior distribution and a model
// distribution over the group's hypotheses.
//
// Both arguments are per-hypothesis log-probabilities.
// Implementations renormalize within each group, so
// inputs need not sum to one.
// The result has one component per group.
type Divergence interface {
	Divergence(priorLog, modelLog anydiff.Res, hypoNums []int) anydiff.Res
}

// CrossEntropy scores the model distribution by the
// cross-entropy H(prior, model) of each group: the
// expected model negative log-probability under the
// renormalized prior.
//
// This is the standard local-prior-matching objective.
type CrossEntropy struct{}

// Divergence computes per-group cross-entropies.
func (CrossEntropy) Divergence(priorLog, modelLog anydiff.Res, hypoNums []int) anydiff.Res {
	prior := AdjustProb(priorLog, hypoNums, true, true)
	model := AdjustProb(modelLog, hypoNums, true, false)
	return anydiff.Pool(prior, func(prior anydiff.Res) anydiff.Res {
		return anydiff.Pool(model, func(model anydiff.Res) anydiff.Res {
			c := prior.Output().Creator()
			weighted := anydiff.Mul(prior, model)
			return concatGroups(weighted, hypoNums, func(g anydiff.Res, n int) anydiff.Res {
				return anydiff.Scale(anydiff.Sum(g), c.MakeNumeric(-1))
			})
		})
	})
}

// KL scores the model distribution by the
// Kullback-Leibler divergence KL(prior || model) of each
// group, or KL(model || prior) if Reverse is set.
type KL struct {
	Reverse bool
}

// Divergence computes per-group KL divergences.
func (k KL) Divergence(priorLog, modelLog anydiff.Res, hypoNums []int) anydiff.Res {
	p := AdjustProb(priorLog, hypoNums, true, false)
	q := AdjustProb(modelLog, hypoNums, true, false)
	if k.Reverse {
		p, q = q, p
	}
	return anydiff.Pool(p, func(p anydiff.Res) anydiff.Res {
		return anydiff.Pool(q, func(q anydiff.Res) anydiff.Res {
			c := p.Output().Creator()
			negQ := anydiff.Scale(q, c.MakeNumeric(-1))
			logRatio := anydiff.Add(p, negQ)
			weighted := anydiff.Mul(anydiff.Exp(p), logRatio)
			return concatGroups(weighted, hypoNums, func(g anydiff.Res, n int) anydiff.Res {
				return anydiff.Sum(g)
			})
		})
	})
}

// PriorMatchLoss combines the per-group divergences into
// a single scalar loss by summation.
func PriorMatchLoss(d Divergence, priorLog, modelLog anydiff.Res, hypoNums []int) anydiff.Res {
	return anydiff.Sum(d.Divergence(priorLog, modelLog, hypoNums))
}
