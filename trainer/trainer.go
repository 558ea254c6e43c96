package trainer

import (
	"log"
	"math"
	"math/rand"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/priormatch"
	"github.com/unixpickle/priormatch/sched"
)

// A PMType selects the loss regime for unpaired audio.
type PMType int

const (
	// PriorMatch trains unpaired audio against the
	// language-model prior over beam hypotheses.
	PriorMatch PMType = iota

	// Oracle is an ablation that uses the supervised loss
	// on unpaired audio's reference targets.
	Oracle
)

// A Trainer owns the state of one training run on one
// worker: collaborators, schedule, meters, and run
// position.
//
// All mutable loop state lives here rather than in
// closure captures, so the lifetime of every piece is the
// lifetime of the Trainer.
type Trainer struct {
	Creator   anyvec.Creator
	Encoder   Encoder
	Criterion SequenceCriterion
	LMCrit    LMCritic
	Scheduler *sched.Scheduler

	// Reducer synchronizes gradients across workers.
	// It is invoked exactly once per iteration, on every
	// control-flow path.
	Reducer Reducer

	// Transformer, if non-nil, preconditions gradients
	// (e.g. anysgd.Adam).
	Transformer anysgd.Transformer

	// Rater determines the learning rate per epoch.
	Rater anysgd.Rater

	// LMTempRater, if non-nil, determines the LM critic's
	// temperature scale per epoch, reported as "lmcrit-t"
	// with every checkpoint.
	LMTempRater anysgd.Rater

	// Divergence scores the model distribution against the
	// LM prior. Nil means CrossEntropy.
	Divergence priormatch.Divergence

	// EOS is the end-of-sentence token index.
	EOS int

	// Nominal batch sizes per data kind.
	// Gradients are scaled by these, never by the
	// post-filter effective size, so magnitudes stay
	// comparable across workers with divergent filtering.
	BatchSize         int
	UnpairedBatchSize int

	// Per-epoch iteration counts for the main phase.
	PairedIter int
	AudioIter  int

	// PretrainWindow is the number of initial paired-only
	// epochs. AudioWarmupEpochs linearly ramps the
	// unpaired volume after pretraining.
	PretrainWindow    int
	AudioWarmupEpochs int

	// Loss configuration.
	PMType        PMType
	LMWeight      float64
	UseUniformLM  bool
	ShuffleLMProb bool
	HypLenRatioLB float64
	HypLenRatioUB float64
	AdvMargin     float64
	MaxGradNorm   float64

	// ReportIters is the checkpoint interval in
	// iterations; 0 means once per epoch.
	ReportIters int

	// TrainEval marks global batch indices whose decoding
	// error is measured during training.
	TrainEval map[int64]bool

	// Valid maps names to held-out datasets.
	Valid map[string]sched.Source

	// Config is the run's key-value configuration,
	// persisted with every snapshot. The trainer stamps
	// the current epoch and iteration into it on save.
	Config map[string]string

	Meters *Meters
	Mem    *MemTrace
	Log    *LogHelper

	// Debug enables verbose per-hypothesis diagnostics.
	Debug bool

	// Rand drives probability shuffling. Nil means a
	// fixed-seed generator.
	Rand *rand.Rand

	// Run position, persisted across Train calls.
	Epoch int
	Iter  int

	lmTemp float64
}

// Train runs the pretraining phase (if any epochs of it
// remain) followed by nEpochs total epochs of the main
// paired+unpaired phase.
//
// Closing done stops training at the next iteration
// boundary.
func (t *Trainer) Train(nEpochs int, done <-chan struct{}) error {
	t.init()
	if t.PretrainWindow-t.Epoch > 0 {
		if err := t.Scheduler.SetSchedule([]int{t.Scheduler.SourceLen(0), 0}); err != nil {
			return essentials.AddCtx("pretrain", err)
		}
		if err := t.run(t.PretrainWindow, done); err != nil {
			return err
		}
		if wc, ok := t.Criterion.(WindowCleaner); ok {
			wc.ClearWindow()
		}
		if err := t.Scheduler.SetSchedule([]int{t.PairedIter, t.AudioIter}); err != nil {
			return essentials.AddCtx("pretrain", err)
		}
		t.logMaster("Finished pretraining")
	}
	return t.run(nEpochs, done)
}

func (t *Trainer) init() {
	if t.Meters == nil {
		var names []string
		for name := range t.Valid {
			names = append(names, name)
		}
		t.Meters = NewMeters(names)
	}
	if t.Mem == nil {
		t.Mem = NewMemTrace()
	}
	if t.Rand == nil {
		t.Rand = rand.New(rand.NewSource(1))
	}
	if t.Divergence == nil {
		t.Divergence = priormatch.CrossEntropy{}
	}
	if t.Reducer == nil {
		t.Reducer = LocalReducer{}
	}
}

// run executes epochs until t.Epoch reaches nEpochs.
func (t *Trainer) run(nEpochs int, done <-chan struct{}) error {
	setTraining(t.Encoder, true)
	setTraining(t.Criterion, true)
	setTraining(t.LMCrit, false)

	for t.Epoch < nEpochs {
		rate := t.Rater.Rate(float64(t.Epoch))
		if t.LMTempRater != nil {
			t.lmTemp = t.LMTempRater.Rate(float64(t.Epoch))
		}
		t.Epoch++

		t.Meters.Timers[PhaseSample].Resume()
		t.Meters.Timers[PhaseRuntime].Resume()
		t.Meters.Timers[PhaseTimer].Resume()
		t.logMaster("Epoch %d started (lr=%v)", t.Epoch, rate)

		// Linearly warm up the unpaired audio volume.
		if t.AudioWarmupEpochs > 0 && t.Epoch > t.PretrainWindow &&
			t.Epoch-t.PretrainWindow <= t.AudioWarmupEpochs {
			unpaired := (t.Epoch - t.PretrainWindow) * t.AudioIter / t.AudioWarmupEpochs
			if err := t.Scheduler.SetSchedule([]int{t.PairedIter, unpaired}); err != nil {
				return essentials.AddCtx("audio warmup", err)
			}
		}

		iters := t.Scheduler.IterationsPerEpoch()
		for scheduleIter := 1; scheduleIter <= iters; scheduleIter++ {
			select {
			case <-done:
				return nil
			default:
			}
			if err := t.step(rate, scheduleIter, iters); err != nil {
				return err
			}
		}
	}
	return nil
}

// step performs a single training iteration: fetch,
// forward, loss selection, backward, synchronize, and
// parameter update.
func (t *Trainer) step(rate float64, scheduleIter, itersPerEpoch int) error {
	sample, err := t.Scheduler.Get()
	if err != nil {
		return essentials.AddCtx("training step", err)
	}
	t.Iter++
	isPaired := sample.Kind == priormatch.Paired
	bs := t.BatchSize
	if !isPaired {
		bs = t.UnpairedBatchSize
	}

	t.Meters.Timers[PhaseTimer].IncUnit()
	t.Meters.Timers[PhaseSample].StopAndIncUnit()
	for _, seq := range sample.Inputs {
		for _, v := range seq {
			if priormatch.HasNaN(v) {
				panic("sample has NaN values")
			}
		}
	}
	t.logMaster("[ Epoch %d ] Iter=%d isPairedData=%v", t.Epoch, scheduleIter, isPaired)
	t.Mem.Reset()
	t.Mem.Update("0-start")

	t.Meters.Timers[PhaseFwd].Resume()
	encoded := t.Encoder.Apply(anyseq.ConstSeqList(t.Creator, sample.Inputs))
	t.Mem.Update("1-encfwd")

	loss, paths := t.computeLoss(sample, encoded)
	t.Meters.Timers[PhaseFwd].Stop()
	t.Meters.Train.Losses[LossFullModel].AddVector(loss.Output())

	// Training error rate on a sampled subset of the
	// paired data.
	if isPaired && t.TrainEval[sample.Index] {
		t.evalOutput(encoded, sample.Targets, t.Meters.Train.Edits)
	}

	t.Meters.Timers[PhaseBwd].Resume()
	grad := anydiff.NewGrad(t.params()...)
	t.Mem.Update("5-zgrad")

	upstream := t.Creator.MakeVector(loss.Output().Len())
	upstream.AddScalar(t.Creator.MakeNumeric(1))
	loss.Propagate(upstream, grad)

	// The reduction is a collective operation: it must run
	// on every worker each iteration, whatever branch the
	// loss selection took above.
	t.Reducer.Finalize(grad)
	t.Mem.Update("6-bwd")
	t.Meters.Timers[PhaseBwd].StopAndIncUnit()

	t.Meters.Timers[PhaseOptim].Resume()
	// Scale by the nominal batch size, not the post-filter
	// effective size: workers filter independently, and
	// agreeing on effective sizes would cost an extra
	// synchronization round.
	grad.Scale(t.Creator.MakeNumeric(1 / float64(bs)))
	if t.MaxGradNorm > 0 {
		clipGradNorm(grad, t.MaxGradNorm)
	}
	if t.Transformer != nil {
		grad = t.Transformer.Transform(grad)
	}
	grad.Scale(t.Creator.MakeNumeric(-rate))
	grad.AddToVars()
	t.Meters.Timers[PhaseOptim].StopAndIncUnit()
	t.Meters.Timers[PhaseSample].Resume()

	if len(paths) > 0 {
		minLen, maxLen := pathLenRange(paths)
		t.logMaster("[ Epoch %d ] Iter=%d AvgLoss=%v MinLen=%d MaxLen=%d Mem: %s",
			t.Epoch, scheduleIter, meanOf(loss.Output()), minLen, maxLen, t.Mem)
	}

	logOnEpoch := t.ReportIters == 0
	if (!logOnEpoch && t.Iter%t.ReportIters == 0) ||
		(logOnEpoch && scheduleIter == itersPerEpoch) {
		if err := t.checkpoint(rate); err != nil {
			return err
		}
	}
	return nil
}

// checkpoint runs held-out evaluation, writes the log
// line and snapshot, and resets interval meters.
func (t *Trainer) checkpoint(rate float64) error {
	for _, timer := range t.Meters.Timers {
		timer.Stop()
	}
	if err := t.runEval(); err != nil {
		return err
	}
	if t.Log != nil {
		fields := map[string]float64{"lr": rate, "lmweight": t.LMWeight}
		if t.LMTempRater != nil {
			fields["lmcrit-t"] = t.lmTemp
		}
		err := t.Log.LogAndSaveModel(t, fields)
		if err != nil {
			return essentials.AddCtx("checkpoint", err)
		}
	}
	t.Meters.Train.Reset()
	t.Meters.ResetTimers()
	setTraining(t.Encoder, true)
	setTraining(t.Criterion, true)
	t.Meters.Timers[PhaseSample].Resume()
	t.Meters.Timers[PhaseRuntime].Resume()
	t.Meters.Timers[PhaseTimer].Resume()
	return nil
}

// params returns the trainable parameters: the encoder's
// and the criterion's, never the LM critic's.
func (t *Trainer) params() []*anydiff.Var {
	res := append([]*anydiff.Var{}, t.Encoder.Parameters()...)
	return append(res, t.Criterion.Parameters()...)
}

func (t *Trainer) logMaster(format string, args ...interface{}) {
	if t.Log == nil || t.Log.Master {
		log.Printf(format, args...)
	}
}

// clipGradNorm scales the gradient so its global L2 norm
// does not exceed max.
func clipGradNorm(g anydiff.Grad, max float64) {
	var sq float64
	for _, v := range g {
		c := v.Copy()
		anyvec.Pow(c, c.Creator().MakeNumeric(2))
		sq += priormatch.NumericToFloat(anyvec.Sum(c))
	}
	norm := math.Sqrt(sq)
	if norm <= max {
		return
	}
	for _, v := range g {
		g.Scale(v.Creator().MakeNumeric(max / norm))
		return
	}
}

func pathLenRange(paths [][]int) (min, max int) {
	min = len(paths[0])
	max = len(paths[0])
	for _, p := range paths[1:] {
		if len(p) < min {
			min = len(p)
		}
		if len(p) > max {
			max = len(p)
		}
	}
	return
}

func meanOf(v anyvec.Vector) float64 {
	return priormatch.NumericToFloat(anyvec.Sum(v)) / float64(v.Len())
}
