package priormatch

import (
	"math/rand"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// AdjustProb renormalizes per-hypothesis log-probabilities
// within each hypothesis group by subtracting the group's
// log-sum-exp.
//
// If renorm is false the input is passed through
// unchanged (aside from the optional exponentiation).
// If linear is true, the result is returned in
// probability space rather than log space.
//
// Applying AdjustProb to an already-normalized set is a
// no-op up to numerical tolerance.
func AdjustProb(logProbs anydiff.Res, hypoNums []int, renorm, linear bool) anydiff.Res {
	checkGroups(logProbs.Output().Len(), hypoNums)
	return anydiff.Pool(logProbs, func(p anydiff.Res) anydiff.Res {
		return concatGroups(p, hypoNums, func(g anydiff.Res, n int) anydiff.Res {
			if renorm {
				g = anydiff.LogSoftmax(g, n)
			}
			if linear {
				g = anydiff.Exp(g)
			}
			return g
		})
	})
}

// NormalizeLMLogProb removes length bias from
// language-model log-probabilities by dividing each score
// by its hypothesis's token count.
//
// Two hypotheses with equal per-token average
// log-probability receive equal normalized scores.
func NormalizeLMLogProb(logProbs anydiff.Res, paths [][]int) anydiff.Res {
	return scaleByInvLength(logProbs, paths)
}

// NormalizeS2SLogProb removes length bias from
// sequence-criterion log-probabilities and then
// renormalizes them within each hypothesis group, yielding
// a proper per-group distribution in log space.
func NormalizeS2SLogProb(logProbs anydiff.Res, paths [][]int, hypoNums []int) anydiff.Res {
	return AdjustProb(scaleByInvLength(logProbs, paths), hypoNums, true, false)
}

// ShuffleProb permutes probability mass among the
// hypotheses of each group using rng.
//
// The per-group totals are unchanged, so a valid
// distribution remains a valid distribution.
func ShuffleProb(logProbs anydiff.Res, hypoNums []int, rng *rand.Rand) anydiff.Res {
	checkGroups(logProbs.Output().Len(), hypoNums)
	perm := make([]int, 0, logProbs.Output().Len())
	var start int
	for _, n := range hypoNums {
		for _, j := range rng.Perm(n) {
			perm = append(perm, start+j)
		}
		start += n
	}
	return permute(logProbs, perm)
}

// Entropy computes the Shannon entropy of each group's
// normalized distribution, one scalar per group.
//
// A group with a single hypothesis has entropy exactly 0.
func Entropy(logProbs anydiff.Res, hypoNums []int) anydiff.Res {
	normed := AdjustProb(logProbs, hypoNums, true, false)
	return anydiff.Pool(normed, func(p anydiff.Res) anydiff.Res {
		c := p.Output().Creator()
		return concatGroups(p, hypoNums, func(g anydiff.Res, n int) anydiff.Res {
			plogp := anydiff.Mul(anydiff.Exp(g), g)
			return anydiff.Scale(anydiff.Sum(plogp), c.MakeNumeric(-1))
		})
	})
}

// Advantage computes a margin-adjusted score for each
// hypothesis: its log-probability, centered around the
// group mean, minus the margin.
//
// This is a diagnostic signal, not part of the training
// loss.
func Advantage(logProbs anydiff.Res, hypoNums []int, margin float64) anydiff.Res {
	checkGroups(logProbs.Output().Len(), hypoNums)
	return anydiff.Pool(logProbs, func(p anydiff.Res) anydiff.Res {
		c := p.Output().Creator()
		negMargin := anydiff.NewConst(c.MakeVectorData(c.MakeNumericList(
			[]float64{-margin})))
		return concatGroups(p, hypoNums, func(g anydiff.Res, n int) anydiff.Res {
			negMean := anydiff.Scale(anydiff.Sum(g), c.MakeNumeric(-1/float64(n)))
			centered := anydiff.AddRepeated(g, negMean)
			return anydiff.AddRepeated(centered, negMargin)
		})
	})
}

// concatGroups applies f to the slice of each non-empty
// hypothesis group and concatenates the results.
func concatGroups(p anydiff.Res, hypoNums []int, f func(g anydiff.Res, n int) anydiff.Res) anydiff.Res {
	groups := make([]anydiff.Res, 0, len(hypoNums))
	var start int
	for _, n := range hypoNums {
		if n == 0 {
			continue
		}
		groups = append(groups, f(anydiff.Slice(p, start, start+n), n))
		start += n
	}
	return anydiff.Concat(groups...)
}

// scaleByInvLength multiplies each hypothesis's score by
// the reciprocal of its token count.
func scaleByInvLength(logProbs anydiff.Res, paths [][]int) anydiff.Res {
	if logProbs.Output().Len() != len(paths) {
		panic("mismatching scores and hypotheses")
	}
	c := logProbs.Output().Creator()
	scales := make([]float64, len(paths))
	for i, path := range paths {
		n := len(path)
		if n == 0 {
			n = 1
		}
		scales[i] = 1 / float64(n)
	}
	scaleVec := c.MakeVectorData(c.MakeNumericList(scales))
	return anydiff.Mul(logProbs, anydiff.NewConst(scaleVec))
}

// permuteRes reorders the components of a Res such that
// output[i] = input[perm[i]].
type permuteRes struct {
	In     anydiff.Res
	Perm   []int
	OutVec anyvec.Vector
}

func permute(in anydiff.Res, perm []int) anydiff.Res {
	data := vectorData(in.Output())
	out := make([]float64, len(data))
	for i, j := range perm {
		out[i] = data[j]
	}
	c := in.Output().Creator()
	return &permuteRes{
		In:     in,
		Perm:   perm,
		OutVec: c.MakeVectorData(c.MakeNumericList(out)),
	}
}

func (p *permuteRes) Output() anyvec.Vector {
	return p.OutVec
}

func (p *permuteRes) Vars() anydiff.VarSet {
	return p.In.Vars()
}

func (p *permuteRes) Propagate(u anyvec.Vector, g anydiff.Grad) {
	upstream := vectorData(u)
	downstream := make([]float64, len(upstream))
	for i, j := range p.Perm {
		downstream[j] += upstream[i]
	}
	c := u.Creator()
	p.In.Propagate(c.MakeVectorData(c.MakeNumericList(downstream)), g)
}
