package trainer

import (
	"math"
	"strings"
	"testing"

	"github.com/unixpickle/anyvec/anyvec32"
)

func TestMeter(t *testing.T) {
	m := &Meter{}
	if m.Mean() != 0 {
		t.Error("empty meter should have mean 0")
	}
	m.Add(1)
	m.Add(3)
	if m.Mean() != 2 {
		t.Errorf("expected mean 2, got %f", m.Mean())
	}

	// A vector counts as a single observation of its mean.
	m.AddVector(anyvec32.MakeVectorData([]float32{4, 6, 8}))
	if math.Abs(m.Mean()-(1+3+6)/3.0) > 1e-6 {
		t.Errorf("expected mean %f, got %f", (1+3+6)/3.0, m.Mean())
	}

	m.Reset()
	if m.Mean() != 0 {
		t.Error("reset meter should have mean 0")
	}
}

func TestEditMeter(t *testing.T) {
	m := &EditMeter{}
	if m.ErrorRate() != 0 {
		t.Error("empty meter should have rate 0")
	}
	m.Add(2, 10)
	m.Add(1, 5)
	if math.Abs(m.ErrorRate()-0.2) > 1e-9 {
		t.Errorf("expected rate 0.2, got %f", m.ErrorRate())
	}
	m.Reset()
	if m.ErrorRate() != 0 {
		t.Error("reset meter should have rate 0")
	}
}

func TestNewMeters(t *testing.T) {
	m := NewMeters([]string{"dev", "test"})
	for _, tag := range lossTags {
		if m.Train.Losses[tag] == nil {
			t.Errorf("missing train meter for %s", tag)
		}
	}
	for _, name := range []string{"dev", "test"} {
		if m.Valid[name].Losses[LossASR] == nil {
			t.Errorf("missing valid meters for %s", name)
		}
	}
	for _, p := range phases {
		if m.Timers[p] == nil {
			t.Errorf("missing timer for %s", p)
		}
	}
}

func TestMemTrace(t *testing.T) {
	mt := NewMemTrace()
	mt.Update("1-encfwd")
	if !strings.Contains(mt.String(), "1-encfwd") {
		t.Errorf("missing stage in %q", mt.String())
	}
	mt.Reset()
	if strings.Contains(mt.String(), "1-encfwd") {
		t.Errorf("stale stage after reset: %q", mt.String())
	}
}
