package priormatch

import (
	"math"
	"testing"

	"github.com/unixpickle/anyvec/anyvec32"
)

func TestHasNaN(t *testing.T) {
	clean := anyvec32.MakeVectorData([]float32{1, -2, 0})
	if HasNaN(clean) {
		t.Error("false positive on a clean vector")
	}
	dirty := anyvec32.MakeVectorData([]float32{1, float32(math.NaN()), 0})
	if !HasNaN(dirty) {
		t.Error("missed a NaN component")
	}
}

func TestHasNonFinite(t *testing.T) {
	inf := anyvec32.MakeVectorData([]float32{1, float32(math.Inf(1))})
	if !HasNonFinite(inf) {
		t.Error("missed an infinite component")
	}
	if HasNonFinite(anyvec32.MakeVectorData([]float32{1e30, -1e30})) {
		t.Error("false positive on large finite values")
	}
}
