package priormatch

import (
	"math"
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anydifftest"
	"github.com/unixpickle/anyvec/anyvec32"
)

func TestKLIdentical(t *testing.T) {
	logProbs := anyvec32.MakeVectorData([]float32{-1, -2, -0.5, -3})
	hypoNums := []int{2, 2}
	div := KL{}.Divergence(anydiff.NewConst(logProbs), anydiff.NewConst(logProbs),
		hypoNums).Output().Data().([]float32)
	for i, d := range div {
		if math.Abs(float64(d)) > 1e-4 {
			t.Errorf("group %d: KL of identical distributions is %f", i, d)
		}
	}
}

func TestKLNonNegative(t *testing.T) {
	prior := anydiff.NewConst(anyvec32.MakeVectorData([]float32{-1, -2, -0.5, -3, -4}))
	model := anydiff.NewConst(anyvec32.MakeVectorData([]float32{-3, -0.2, -1, -1, -1}))
	hypoNums := []int{3, 2}
	for _, reverse := range []bool{false, true} {
		div := KL{Reverse: reverse}.Divergence(prior, model, hypoNums).
			Output().Data().([]float32)
		for i, d := range div {
			if d < -1e-4 {
				t.Errorf("reverse=%v group %d: negative KL %f", reverse, i, d)
			}
		}
	}
}

func TestCrossEntropyDecomposition(t *testing.T) {
	// H(p, q) = KL(p || q) + H(p).
	prior := anydiff.NewConst(anyvec32.MakeVectorData([]float32{-1, -2, -0.5}))
	model := anydiff.NewConst(anyvec32.MakeVectorData([]float32{-3, -0.2, -1}))
	hypoNums := []int{3}

	ce := CrossEntropy{}.Divergence(prior, model, hypoNums).Output().Data().([]float32)
	kl := KL{}.Divergence(prior, model, hypoNums).Output().Data().([]float32)
	ent := Entropy(prior, hypoNums).Output().Data().([]float32)

	if math.Abs(float64(ce[0]-(kl[0]+ent[0]))) > 1e-3 {
		t.Errorf("H(p,q)=%f but KL+H(p)=%f", ce[0], kl[0]+ent[0])
	}
}

func TestPriorMatchLossProp(t *testing.T) {
	prior := anydiff.NewVar(anyvec32.MakeVectorData([]float32{-1, -2, -0.5, -3, -4}))
	model := anydiff.NewVar(anyvec32.MakeVectorData([]float32{-3, -0.2, -1, -1, -1}))
	hypoNums := []int{2, 3}
	for _, div := range []Divergence{CrossEntropy{}, KL{}, KL{Reverse: true}} {
		checker := &anydifftest.ResChecker{
			F: func() anydiff.Res {
				return PriorMatchLoss(div, prior, model, hypoNums)
			},
			V: []*anydiff.Var{prior, model},
		}
		checker.FullCheck(t)
	}
}
