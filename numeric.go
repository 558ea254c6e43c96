package priormatch

import (
	"fmt"
	"math"

	"github.com/unixpickle/anyvec"
)

// vectorData extracts a vector's components as float64s.
//
// This only works for creators whose numeric lists are
// []float32 or []float64.
func vectorData(v anyvec.Vector) []float64 {
	switch d := v.Data().(type) {
	case []float64:
		return d
	case []float32:
		res := make([]float64, len(d))
		for i, x := range d {
			res[i] = float64(x)
		}
		return res
	default:
		panic(fmt.Sprintf("unsupported numeric type: %T", d))
	}
}

// NumericToFloat converts an anyvec.Numeric to a float64.
func NumericToFloat(n anyvec.Numeric) float64 {
	switch n := n.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	default:
		panic(fmt.Sprintf("unsupported numeric type: %T", n))
	}
}

// HasNaN reports whether any component of the vector is
// NaN.
func HasNaN(v anyvec.Vector) bool {
	for _, x := range vectorData(v) {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}

// HasNonFinite reports whether any component of the
// vector is NaN or infinite.
func HasNonFinite(v anyvec.Vector) bool {
	for _, x := range vectorData(v) {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return true
		}
	}
	return false
}
