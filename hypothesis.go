package priormatch

import "fmt"

// checkGroups panics unless the per-item hypothesis
// counts sum to the total number of hypotheses.
func checkGroups(numHypos int, hypoNums []int) {
	var sum int
	for _, n := range hypoNums {
		if n < 0 {
			panic(fmt.Sprintf("negative hypothesis count: %d", n))
		}
		sum += n
	}
	if sum != numHypos {
		panic(fmt.Sprintf("hypothesis counts sum to %d but there are %d hypotheses",
			sum, numHypos))
	}
}

// FilterByLength removes hypotheses whose length falls
// outside the band [lb*refLen, ub*refLen] around the
// reference target length of their batch item, then drops
// batch items left with no hypotheses at all.
//
// An ub of zero or less disables the upper bound.
//
// It returns the surviving hypotheses, the per-item
// counts for the surviving batch items, and the indices
// of those items in the original batch (ascending).
// The returned counts contain no zero entries, so callers
// can index model outputs by kept alone.
func FilterByLength(paths [][]int, hypoNums, refLens []int, lb, ub float64) (outPaths [][]int,
	outNums []int, kept []int) {
	checkGroups(len(paths), hypoNums)
	if len(hypoNums) != len(refLens) {
		panic("mismatching hypothesis counts and reference lengths")
	}
	var start int
	for i, n := range hypoNums {
		var count int
		ref := float64(refLens[i])
		for _, path := range paths[start : start+n] {
			l := float64(len(path))
			if l < lb*ref {
				continue
			}
			if ub > 0 && l > ub*ref {
				continue
			}
			outPaths = append(outPaths, path)
			count++
		}
		start += n
		if count > 0 {
			outNums = append(outNums, count)
			kept = append(kept, i)
		}
	}
	return
}
