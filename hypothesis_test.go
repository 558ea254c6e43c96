package priormatch

import (
	"reflect"
	"testing"
)

func TestFilterByLength(t *testing.T) {
	paths := [][]int{
		// Item 0 (ref length 4): one too short, two in band.
		{1},
		{1, 2, 3},
		{1, 2, 3, 4, 5},
		// Item 1 (ref length 2): all out of band.
		{1, 2, 3, 4, 5, 6},
		// Item 2 (ref length 3): both in band.
		{1, 2},
		{1, 2, 3, 4},
	}
	hypoNums := []int{3, 1, 2}
	refLens := []int{4, 2, 3}

	outPaths, outNums, kept := FilterByLength(paths, hypoNums, refLens, 0.5, 1.5)

	expectedPaths := [][]int{paths[1], paths[2], paths[4], paths[5]}
	if !reflect.DeepEqual(outPaths, expectedPaths) {
		t.Errorf("unexpected paths: %v", outPaths)
	}
	if !reflect.DeepEqual(outNums, []int{2, 2}) {
		t.Errorf("unexpected counts: %v", outNums)
	}
	if !reflect.DeepEqual(kept, []int{0, 2}) {
		t.Errorf("unexpected kept items: %v", kept)
	}
	for _, n := range outNums {
		if n == 0 {
			t.Error("zero count survived filtering")
		}
	}
}

func TestFilterByLengthEmptyGroup(t *testing.T) {
	// Item 1 produced no hypotheses at all; a filter that
	// rejects nothing else must still drop it.
	paths := [][]int{
		{1, 2}, {1, 2, 3},
		{1, 2}, {1, 2, 3}, {1, 2},
	}
	hypoNums := []int{2, 0, 3}
	refLens := []int{2, 2, 2}

	outPaths, outNums, kept := FilterByLength(paths, hypoNums, refLens, 0, 0)
	if len(outPaths) != 5 {
		t.Errorf("expected 5 hypotheses, got %d", len(outPaths))
	}
	if !reflect.DeepEqual(outNums, []int{2, 3}) {
		t.Errorf("unexpected counts: %v", outNums)
	}
	if !reflect.DeepEqual(kept, []int{0, 2}) {
		t.Errorf("unexpected kept items: %v", kept)
	}
}

func TestFilterByLengthNoUpper(t *testing.T) {
	paths := [][]int{{1, 2, 3, 4, 5, 6, 7, 8}}
	outPaths, _, _ := FilterByLength(paths, []int{1}, []int{2}, 0.5, 0)
	if len(outPaths) != 1 {
		t.Error("upper bound should be disabled when ub <= 0")
	}
}

func TestFilterByLengthAllDropped(t *testing.T) {
	paths := [][]int{{1}, {1, 2}}
	outPaths, outNums, kept := FilterByLength(paths, []int{1, 1}, []int{10, 10}, 0.5, 1.5)
	if len(outPaths) != 0 || len(outNums) != 0 || len(kept) != 0 {
		t.Errorf("expected empty results, got %v %v %v", outPaths, outNums, kept)
	}
}

func TestTargetLengths(t *testing.T) {
	targets := [][]int{
		{1, 2, 3},
		{1, 5, 2, 5, 3},
		{5},
		{},
	}
	lens := TargetLengths(targets, 5)
	if !reflect.DeepEqual(lens, []int{3, 1, 0, 0}) {
		t.Errorf("unexpected lengths: %v", lens)
	}
}
