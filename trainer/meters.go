package trainer

import (
	"time"

	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/priormatch"
)

// A LossTag names an accumulated loss statistic.
type LossTag string

// Loss statistics tracked during training.
const (
	LossASR       LossTag = "asr"
	LossLM        LossTag = "lm"
	LossFullModel LossTag = "full-model"
	LossLMEnt     LossTag = "lm-ent"
	LossS2SEnt    LossTag = "s2s-ent"
	LossLMScore   LossTag = "lm-score"
	LossLen       LossTag = "hypo-len"
	LossNumHypos  LossTag = "num-hypos"
)

// lossTags is the canonical ordering for log output.
var lossTags = []LossTag{
	LossASR, LossLM, LossFullModel, LossLMEnt, LossS2SEnt,
	LossLMScore, LossLen, LossNumHypos,
}

// A Phase names a timed stage of the training loop.
type Phase string

// Timer phases tracked during training.
const (
	PhaseRuntime   Phase = "runtime"
	PhaseTimer     Phase = "timer"
	PhaseSample    Phase = "sample"
	PhaseFwd       Phase = "fwd"
	PhaseCritFwd   Phase = "crit-fwd"
	PhaseBeam      Phase = "beam"
	PhaseBeamFwd   Phase = "beam-fwd"
	PhaseLMCritFwd Phase = "lmcrit-fwd"
	PhaseBwd       Phase = "bwd"
	PhaseOptim     Phase = "optim"
)

var phases = []Phase{
	PhaseRuntime, PhaseTimer, PhaseSample, PhaseFwd, PhaseCritFwd,
	PhaseBeam, PhaseBeamFwd, PhaseLMCritFwd, PhaseBwd, PhaseOptim,
}

// A Meter accumulates a running average of scalar
// observations.
type Meter struct {
	sum   float64
	count int
}

// Add records one observation.
func (m *Meter) Add(x float64) {
	m.sum += x
	m.count++
}

// AddVector records every component of a vector as one
// observation each.
func (m *Meter) AddVector(v anyvec.Vector) {
	m.Add(priormatch.NumericToFloat(anyvec.Sum(v)) / float64(v.Len()))
}

// Mean returns the average observation, or 0 if nothing
// was recorded.
func (m *Meter) Mean() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

// Reset discards all observations.
func (m *Meter) Reset() {
	m.sum = 0
	m.count = 0
}

// An EditMeter accumulates edit-distance statistics.
type EditMeter struct {
	edits  int
	tokens int
}

// Add records the edit distance for a reference of the
// given length.
func (m *EditMeter) Add(dist, refLen int) {
	m.edits += dist
	m.tokens += refLen
}

// ErrorRate returns accumulated edits per reference
// token.
func (m *EditMeter) ErrorRate() float64 {
	if m.tokens == 0 {
		return 0
	}
	return float64(m.edits) / float64(m.tokens)
}

// Reset discards all statistics.
func (m *EditMeter) Reset() {
	m.edits = 0
	m.tokens = 0
}

// A TimeMeter accumulates wall time across resumable
// segments, in units of loop iterations.
type TimeMeter struct {
	total   time.Duration
	units   int
	started time.Time
	running bool
}

// Resume starts (or restarts) the timer.
func (t *TimeMeter) Resume() {
	if !t.running {
		t.started = time.Now()
		t.running = true
	}
}

// Stop pauses the timer.
func (t *TimeMeter) Stop() {
	if t.running {
		t.total += time.Since(t.started)
		t.running = false
	}
}

// IncUnit records that one more unit completed.
func (t *TimeMeter) IncUnit() {
	t.units++
}

// StopAndIncUnit pauses the timer and records a unit.
func (t *TimeMeter) StopAndIncUnit() {
	t.Stop()
	t.IncUnit()
}

// Seconds returns the total accumulated time in seconds.
func (t *TimeMeter) Seconds() float64 {
	total := t.total
	if t.running {
		total += time.Since(t.started)
	}
	return total.Seconds()
}

// UnitSeconds returns the average seconds per unit.
func (t *TimeMeter) UnitSeconds() float64 {
	if t.units == 0 {
		return 0
	}
	return t.Seconds() / float64(t.units)
}

// Reset discards accumulated time and units.
func (t *TimeMeter) Reset() {
	t.total = 0
	t.units = 0
	t.running = false
}

// DatasetMeters groups the per-dataset statistics.
type DatasetMeters struct {
	Losses map[LossTag]*Meter
	Edits  *EditMeter
}

// NewDatasetMeters creates zeroed dataset meters.
func NewDatasetMeters() DatasetMeters {
	losses := map[LossTag]*Meter{}
	for _, tag := range lossTags {
		losses[tag] = &Meter{}
	}
	return DatasetMeters{Losses: losses, Edits: &EditMeter{}}
}

// Reset discards all statistics.
func (d DatasetMeters) Reset() {
	for _, m := range d.Losses {
		m.Reset()
	}
	d.Edits.Reset()
}

// Meters owns all running statistics for one training
// run: training losses, per-validation-set losses, and
// phase timers.
type Meters struct {
	Train  DatasetMeters
	Valid  map[string]DatasetMeters
	Timers map[Phase]*TimeMeter
}

// NewMeters creates zeroed meters with one validation
// entry per name.
func NewMeters(validNames []string) *Meters {
	m := &Meters{
		Train:  NewDatasetMeters(),
		Valid:  map[string]DatasetMeters{},
		Timers: map[Phase]*TimeMeter{},
	}
	for _, name := range validNames {
		m.Valid[name] = NewDatasetMeters()
	}
	for _, p := range phases {
		m.Timers[p] = &TimeMeter{}
	}
	return m
}

// ResetTimers zeroes every phase timer.
func (m *Meters) ResetTimers() {
	for _, t := range m.Timers {
		t.Reset()
	}
}
