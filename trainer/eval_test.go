package trainer

import (
	"reflect"
	"testing"
)

func TestEditDistance(t *testing.T) {
	cases := []struct {
		A, B []int
		Dist int
	}{
		{nil, nil, 0},
		{[]int{1, 2, 3}, []int{1, 2, 3}, 0},
		{[]int{1, 2, 3}, nil, 3},
		{nil, []int{1, 2}, 2},
		{[]int{4, 1, 2, 2, 3, 5}, []int{5, 1, 2, 2, 1, 5, 6}, 3},
		{[]int{1, 2, 3}, []int{1, 3}, 1},
	}
	for _, c := range cases {
		if d := editDistance(c.A, c.B); d != c.Dist {
			t.Errorf("editDistance(%v, %v): expected %d but got %d",
				c.A, c.B, c.Dist, d)
		}
	}
}

func TestTrimEOS(t *testing.T) {
	if !reflect.DeepEqual(trimEOS([]int{1, 2, 9, 3}, 9), []int{1, 2}) {
		t.Error("should cut at the first EOS")
	}
	if !reflect.DeepEqual(trimEOS([]int{1, 2}, 9), []int{1, 2}) {
		t.Error("should pass through without EOS")
	}
	if len(trimEOS([]int{9, 1}, 9)) != 0 {
		t.Error("leading EOS should yield an empty sequence")
	}
}

func TestTrainEvalIDs(t *testing.T) {
	if len(TrainEvalIDs(100, 0, 1)) != 0 {
		t.Error("0 percent should select nothing")
	}
	if len(TrainEvalIDs(100, 100, 1)) != 100 {
		t.Error("100 percent should select everything")
	}
	a := TrainEvalIDs(1000, 10, 7)
	b := TrainEvalIDs(1000, 10, 7)
	if !reflect.DeepEqual(a, b) {
		t.Error("selection should be deterministic per seed")
	}
	if len(a) < 50 || len(a) > 200 {
		t.Errorf("10 percent of 1000 selected %d ids", len(a))
	}
}
