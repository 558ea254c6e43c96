package framecrit

import (
	"math"
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anydifftest"
	"github.com/unixpickle/anyvec/anyvec32"
)

func TestUnigramLMUniform(t *testing.T) {
	c := anyvec32.CurrentCreator()
	lm := NewUnigramLM(c, 3, 2)

	// Under uniform logits, a path of length L costs
	// (L+1)*log(3) including the EOS term.
	out := lm.LogProb([][]int{{0, 1}, {1}, {}}).Output().Data().([]float32)
	expected := []float64{-3 * math.Log(3), -2 * math.Log(3), -math.Log(3)}
	for i, x := range expected {
		if math.Abs(float64(out[i])-x) > 1e-3 {
			t.Errorf("path %d: expected %f but got %f", i, x, out[i])
		}
	}
}

func TestUnigramLMOrdering(t *testing.T) {
	c := anyvec32.CurrentCreator()
	lm := NewUnigramLM(c, 3, 2)
	lm.Table.Vector.SetData(c.MakeNumericList([]float64{2, 0, 1}))

	out := lm.LogProb([][]int{{0}, {1}}).Output().Data().([]float32)
	if out[0] <= out[1] {
		t.Errorf("favored token should score higher: %f vs %f", out[0], out[1])
	}
}

func TestUnigramLMProp(t *testing.T) {
	c := anyvec32.CurrentCreator()
	lm := NewUnigramLM(c, 3, 2)
	lm.Table.Vector.SetData(c.MakeNumericList([]float64{0.5, -1, 0.25}))

	checker := &anydifftest.ResChecker{
		F: func() anydiff.Res {
			return lm.LogProb([][]int{{0, 1}, {1}, {0, 0, 1}})
		},
		V: []*anydiff.Var{lm.Table},
	}
	checker.FullCheck(t)
}
