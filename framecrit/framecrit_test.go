package framecrit

import (
	"math"
	"reflect"
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anydifftest"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
)

// constSeqs builds a batch of constant frame sequences
// over a 3-token alphabet (EOS is token 2).
func constSeqs(c anyvec.Creator, items [][][]float64) anyseq.Seq {
	seqs := make([][]anyvec.Vector, len(items))
	for i, frames := range items {
		seqs[i] = make([]anyvec.Vector, len(frames))
		for t, frame := range frames {
			seqs[i][t] = c.MakeVectorData(c.MakeNumericList(frame))
		}
	}
	return anyseq.ConstSeqList(c, seqs)
}

func zeroFrames(n int) [][]float64 {
	frames := make([][]float64, n)
	for i := range frames {
		frames[i] = []float64{0, 0, 0}
	}
	return frames
}

func TestForward(t *testing.T) {
	c := anyvec32.CurrentCreator()
	crit := NewCrit(c, 3, 2, 2, 8)
	// Uniform frames: every charged token costs log(3).
	encoded := constSeqs(c, [][][]float64{zeroFrames(3), zeroFrames(2)})

	out := crit.Forward(encoded, [][]int{{0, 1}, {1}}).Output().Data().([]float32)
	expected := []float64{3 * math.Log(3), 2 * math.Log(3)}
	for i, x := range expected {
		if math.Abs(float64(out[i])-x) > 1e-3 {
			t.Errorf("item %d: expected %f but got %f", i, x, out[i])
		}
	}
}

func TestForwardProp(t *testing.T) {
	c := anyvec32.CurrentCreator()
	crit := NewCrit(c, 3, 2, 2, 8)
	crit.Bias.Vector.SetData(c.MakeNumericList([]float64{0.3, -0.2, 0.1}))
	encoded := constSeqs(c, [][][]float64{
		{{1, 0, -1}, {0, 1, 0}},
		{{-1, 0.5, 0}, {0, 0, 1}, {1, 1, 0}},
	})

	checker := &anydifftest.ResChecker{
		F: func() anydiff.Res {
			return crit.Forward(encoded, [][]int{{0}, {1, 0}})
		},
		V: []*anydiff.Var{crit.Bias},
	}
	checker.FullCheck(t)
}

func TestLogProb(t *testing.T) {
	c := anyvec32.CurrentCreator()
	crit := NewCrit(c, 3, 2, 2, 8)
	encoded := constSeqs(c, [][][]float64{zeroFrames(3), zeroFrames(3)})

	// Each path charges len(path)+1 frames (its tokens plus
	// the EOS frame), capped at the frame count.
	paths := [][]int{{0}, {1, 0}}
	out := crit.LogProb(encoded, []int{1}, paths, []int{2}).Output().Data().([]float32)
	expected := []float64{-2 * math.Log(3), -3 * math.Log(3)}
	for i, x := range expected {
		if math.Abs(float64(out[i])-x) > 1e-3 {
			t.Errorf("path %d: expected %f but got %f", i, x, out[i])
		}
	}
}

func TestLogProbProp(t *testing.T) {
	c := anyvec32.CurrentCreator()
	crit := NewCrit(c, 3, 2, 2, 8)
	crit.Bias.Vector.SetData(c.MakeNumericList([]float64{0.3, -0.2, 0.1}))
	encoded := constSeqs(c, [][][]float64{
		{{1, 0, -1}, {0, 1, 0}},
		{{-1, 0.5, 0}, {0, 0, 1}},
	})

	checker := &anydifftest.ResChecker{
		F: func() anydiff.Res {
			return crit.LogProb(encoded, []int{0, 1},
				[][]int{{0}, {1}, {0, 1}}, []int{2, 1})
		},
		V: []*anydiff.Var{crit.Bias},
	}
	checker.FullCheck(t)
}

func TestBeamSearch(t *testing.T) {
	c := anyvec32.CurrentCreator()
	crit := NewCrit(c, 3, 2, 2, 8)
	encoded := constSeqs(c, [][][]float64{{
		// Token 0 dominates, then EOS dominates.
		{5, 0, -5},
		{-5, -5, 5},
	}})

	paths, hypoNums := crit.BeamSearch(encoded, 2)
	if len(hypoNums) != 1 {
		t.Fatalf("expected 1 group, got %d", len(hypoNums))
	}
	if hypoNums[0] != len(paths) {
		t.Fatalf("counts sum to %d but there are %d paths", hypoNums[0], len(paths))
	}
	if hypoNums[0] > crit.BeamSize {
		t.Errorf("got %d hypotheses with beam size %d", hypoNums[0], crit.BeamSize)
	}
	if !reflect.DeepEqual(paths[0], []int{0}) {
		t.Errorf("expected best path [0], got %v", paths[0])
	}
	for _, p := range paths {
		if len(p) > crit.MaxLen {
			t.Errorf("path exceeds MaxLen: %v", p)
		}
		for _, tok := range p {
			if tok == 2 {
				t.Errorf("EOS token inside a path: %v", p)
			}
		}
	}
}

func TestBeamSearchMaxLen(t *testing.T) {
	c := anyvec32.CurrentCreator()
	crit := NewCrit(c, 3, 2, 3, 2)
	frames := [][]float64{
		{5, 0, -5}, {5, 0, -5}, {5, 0, -5}, {5, 0, -5},
	}
	encoded := constSeqs(c, [][][]float64{frames})
	paths, _ := crit.BeamSearch(encoded, 2)
	for _, p := range paths {
		if len(p) > 2 {
			t.Errorf("path exceeds MaxLen: %v", p)
		}
	}
}

func TestViterbi(t *testing.T) {
	c := anyvec32.CurrentCreator()
	crit := NewCrit(c, 3, 2, 2, 8)
	encoded := constSeqs(c, [][][]float64{
		{
			{5, 0, -5},
			{0, 5, -5},
			{-5, -5, 5},
		},
		{
			{-5, -5, 5},
			{5, 0, 0},
		},
	})
	decoded := crit.Viterbi(encoded)
	if !reflect.DeepEqual(decoded[0], []int{0, 1}) {
		t.Errorf("expected [0 1], got %v", decoded[0])
	}
	if len(decoded[1]) != 0 {
		t.Errorf("expected an empty decoding, got %v", decoded[1])
	}
}

func TestWindow(t *testing.T) {
	c := anyvec32.CurrentCreator()
	crit := NewCrit(c, 3, 2, 2, 8)
	crit.Window = 1
	encoded := constSeqs(c, [][][]float64{zeroFrames(3)})

	out := crit.Forward(encoded, [][]int{{0}}).Output().Data().([]float32)
	if math.Abs(float64(out[0])-math.Log(3)) > 1e-3 {
		t.Errorf("windowed loss: expected %f but got %f", math.Log(3), out[0])
	}

	crit.ClearWindow()
	if crit.Window != 0 {
		t.Fatal("window not cleared")
	}
	out = crit.Forward(encoded, [][]int{{0}}).Output().Data().([]float32)
	if math.Abs(float64(out[0])-3*math.Log(3)) > 1e-3 {
		t.Errorf("full loss: expected %f but got %f", 3*math.Log(3), out[0])
	}
}

func TestBiasAffectsDecoding(t *testing.T) {
	c := anyvec32.CurrentCreator()
	crit := NewCrit(c, 3, 2, 1, 8)
	encoded := constSeqs(c, [][][]float64{{
		{0.1, 0, -5},
		{-5, -5, 5},
	}})

	decoded := crit.Viterbi(encoded)
	if !reflect.DeepEqual(decoded[0], []int{0}) {
		t.Fatalf("expected [0], got %v", decoded[0])
	}

	// A large bias toward token 1 flips the decision.
	crit.Bias.Vector.SetData(c.MakeNumericList([]float64{0, 1, 0}))
	decoded = crit.Viterbi(encoded)
	if !reflect.DeepEqual(decoded[0], []int{1}) {
		t.Errorf("expected [1] with bias, got %v", decoded[0])
	}
}
