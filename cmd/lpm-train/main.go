// Command lpm-train drives semi-supervised training with
// local prior matching.
//
// Usage:
//
//	lpm-train train [flags]
//	lpm-train continue -rundir <directory> [flags]
//	lpm-train fork -reload <directory> [flags]
//
// The demonstration datasets are synthetic; real runs
// substitute their own sched.Source implementations.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"

	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/priormatch"
	"github.com/unixpickle/priormatch/framecrit"
	"github.com/unixpickle/priormatch/sched"
	"github.com/unixpickle/priormatch/trainer"
	"github.com/unixpickle/rip"
)

type args struct {
	RunDir string
	Reload string

	LR          float64
	Gamma       float64
	StepSize    int
	MaxGradNorm float64

	BatchSize         int
	UnpairedBatchSize int
	PairedIter        int
	AudioIter         int
	Epochs            int
	PretrainWindow    int
	AudioWarmup       int
	ReportIters       int

	PMType        string
	LMWeight      float64
	GumbelTemp    float64
	LMTempStep    int
	UseUniformLM  bool
	ShufLMProb    bool
	HypLenRatioLB float64
	HypLenRatioUB float64
	AdvMargin     float64

	Features int
	Hidden   int
	Tokens   int
	BeamSize int
	MaxLen   int

	PctTrainEval float64
	Seed         int64
}

func main() {
	if len(os.Args) < 2 {
		essentials.Die("Usage: lpm-train <train|continue|fork> [flags]")
	}
	mode := os.Args[1]

	var a args
	fs := flag.NewFlagSet(mode, flag.ExitOnError)
	fs.StringVar(&a.RunDir, "rundir", "out", "run directory")
	fs.StringVar(&a.Reload, "reload", "", "snapshot directory to fork from")
	fs.Float64Var(&a.LR, "lr", 0.001, "learning rate")
	fs.Float64Var(&a.Gamma, "gamma", 1, "learning rate decay factor")
	fs.IntVar(&a.StepSize, "stepsize", 1, "epochs per decay step")
	fs.Float64Var(&a.MaxGradNorm, "maxgradnorm", 0, "gradient norm clip (0 to disable)")
	fs.IntVar(&a.BatchSize, "batchsize", 4, "paired batch size")
	fs.IntVar(&a.UnpairedBatchSize, "unpairedbatchsize", 4, "unpaired batch size")
	fs.IntVar(&a.PairedIter, "pairediter", 8, "paired iterations per epoch")
	fs.IntVar(&a.AudioIter, "audioiter", 4, "unpaired iterations per epoch")
	fs.IntVar(&a.Epochs, "epochs", 10, "total training epochs")
	fs.IntVar(&a.PretrainWindow, "pretrain", 0, "paired-only pretraining epochs")
	fs.IntVar(&a.AudioWarmup, "audiowarmup", 0, "unpaired warm-up epochs")
	fs.IntVar(&a.ReportIters, "reportiters", 0, "iterations per report (0 for per-epoch)")
	fs.StringVar(&a.PMType, "pmtype", "prior", "unpaired loss regime: prior or oracle")
	fs.Float64Var(&a.LMWeight, "lmweight", 1, "prior matching loss weight")
	fs.Float64Var(&a.GumbelTemp, "gumbeltemp", 1, "initial LM critic temperature")
	fs.IntVar(&a.LMTempStep, "lmtempstepsize", 0, "epochs per temperature decay step (0 to disable)")
	fs.BoolVar(&a.UseUniformLM, "useuniformlm", false, "replace LM scores with a uniform prior")
	fs.BoolVar(&a.ShufLMProb, "shuflmprob", false, "shuffle LM probabilities within groups")
	fs.Float64Var(&a.HypLenRatioLB, "hyplenratiolb", 0.5, "hypothesis length lower bound ratio")
	fs.Float64Var(&a.HypLenRatioUB, "hyplenratioub", 1.5, "hypothesis length upper bound ratio (<=0 disables)")
	fs.Float64Var(&a.AdvMargin, "advmargin", 0, "advantage margin (diagnostics)")
	fs.IntVar(&a.Features, "features", 8, "input feature size")
	fs.IntVar(&a.Hidden, "hidden", 32, "encoder hidden size")
	fs.IntVar(&a.Tokens, "tokens", 6, "alphabet size (excluding EOS)")
	fs.IntVar(&a.BeamSize, "beamsize", 4, "beam search width")
	fs.IntVar(&a.MaxLen, "maxlen", 16, "maximum hypothesis length")
	fs.Float64Var(&a.PctTrainEval, "pcttraineval", 10, "percent of paired batches decoded for train TER")
	fs.Int64Var(&a.Seed, "seed", 1, "random seed")
	fs.Parse(os.Args[2:])

	creator := anyvec32.CurrentCreator()
	numTokens := a.Tokens + 1
	eos := a.Tokens

	var enc *trainer.NetEncoder
	var crit *framecrit.Crit
	var lm *framecrit.UnigramLM
	adam := &anysgd.Adam{}
	startEpoch, startIter := 0, 0
	cfg := configMap(&a)

	switch mode {
	case "train":
		enc = &trainer.NetEncoder{Net: anynet.Net{
			anynet.NewFC(creator, a.Features, a.Hidden),
			anynet.Tanh,
			anynet.NewFC(creator, a.Hidden, numTokens),
		}}
		crit = framecrit.NewCrit(creator, numTokens, eos, a.BeamSize, a.MaxLen)
		lm = framecrit.NewUnigramLM(creator, numTokens, eos)
	case "continue":
		saved, err := trainer.LoadRun(a.RunDir, adam, &enc, &crit, &lm)
		if err != nil {
			essentials.Die(err)
		}
		startEpoch = atoiOr(saved[trainer.ConfigEpoch], 0)
		startIter = atoiOr(saved[trainer.ConfigIteration], 0)
		cfg = saved
	case "fork":
		if a.Reload == "" {
			essentials.Die("fork requires -reload")
		}
		if _, err := trainer.LoadRun(a.Reload, nil, &enc, &crit, &lm); err != nil {
			essentials.Die(err)
		}
		// Fresh LM critic for the new run.
		lm = framecrit.NewUnigramLM(creator, numTokens, eos)
	default:
		essentials.Die("unknown run mode:", mode)
	}

	rng := rand.New(rand.NewSource(a.Seed))
	paired := makeDataset(creator, rng, 32, a.BatchSize, &a, eos)
	unpaired := makeDataset(creator, rng, 32, a.UnpairedBatchSize, &a, eos)
	valid := makeDataset(creator, rng, 4, a.BatchSize, &a, eos)

	scheduler, err := sched.New(
		[]sched.Source{paired, unpaired},
		[]priormatch.DataKind{priormatch.Paired, priormatch.UnpairedAudio},
		[]int{a.PairedIter, a.AudioIter},
		startEpoch, a.Seed)
	if err != nil {
		essentials.Die(err)
	}

	logHelper, err := trainer.NewLogHelper(a.RunDir, true)
	if err != nil {
		essentials.Die(err)
	}
	if err := logHelper.SaveConfig(cfg); err != nil {
		essentials.Die(err)
	}
	meters := trainer.NewMeters([]string{"dev"})
	if mode != "continue" {
		if err := logHelper.WriteHeader(meters); err != nil {
			essentials.Die(err)
		}
	}

	pmType := trainer.PriorMatch
	if a.PMType == "oracle" {
		pmType = trainer.Oracle
	}

	var lmTemp anysgd.Rater
	if a.LMTempStep > 0 {
		lmTemp = &trainer.GammaRater{
			Initial:  a.GumbelTemp,
			Gamma:    a.Gamma,
			StepSize: a.LMTempStep,
		}
	}

	t := &trainer.Trainer{
		Creator:   creator,
		Encoder:   enc,
		Criterion: crit,
		LMCrit:    lm,
		Scheduler: scheduler,

		Reducer:     trainer.LocalReducer{},
		Transformer: adam,
		Rater: &trainer.GammaRater{
			Initial:  a.LR,
			Gamma:    a.Gamma,
			StepSize: a.StepSize,
		},
		LMTempRater: lmTemp,

		EOS:               eos,
		BatchSize:         a.BatchSize,
		UnpairedBatchSize: a.UnpairedBatchSize,
		PairedIter:        a.PairedIter,
		AudioIter:         a.AudioIter,
		PretrainWindow:    a.PretrainWindow,
		AudioWarmupEpochs: a.AudioWarmup,

		PMType:        pmType,
		LMWeight:      a.LMWeight,
		UseUniformLM:  a.UseUniformLM,
		ShuffleLMProb: a.ShufLMProb,
		HypLenRatioLB: a.HypLenRatioLB,
		HypLenRatioUB: a.HypLenRatioUB,
		AdvMargin:     a.AdvMargin,
		MaxGradNorm:   a.MaxGradNorm,

		ReportIters: a.ReportIters,
		TrainEval:   trainer.TrainEvalIDs(paired.Len(), a.PctTrainEval, a.Seed),
		Valid:       map[string]sched.Source{"dev": valid},
		Config:      cfg,
		Meters:      meters,
		Log:         logHelper,
		Rand:        rand.New(rand.NewSource(a.Seed)),

		Epoch: startEpoch,
		Iter:  startIter,
	}

	fmt.Println("Press ctrl+c once to stop...")
	if err := t.Train(a.Epochs, rip.NewRIP().Chan()); err != nil {
		essentials.Die(err)
	}
}

// makeDataset builds a synthetic dataset of n batches.
func makeDataset(c anyvec.Creator, rng *rand.Rand, n, batchSize int, a *args, eos int) sched.SliceSource {
	var res sched.SliceSource
	for b := 0; b < n; b++ {
		batch := &priormatch.Batch{Index: int64(b)}
		frames := 4 + rng.Intn(4)
		for i := 0; i < batchSize; i++ {
			seq := make([]anyvec.Vector, frames)
			for t := range seq {
				data := make([]float64, a.Features)
				for j := range data {
					data[j] = rng.NormFloat64()
				}
				seq[t] = c.MakeVectorData(c.MakeNumericList(data))
			}
			target := make([]int, frames-1)
			for j := range target {
				target[j] = rng.Intn(eos)
			}
			batch.Inputs = append(batch.Inputs, seq)
			batch.Targets = append(batch.Targets, target)
			batch.IDs = append(batch.IDs, fmt.Sprintf("utt-%d-%d", b, i))
		}
		res = append(res, batch)
	}
	return res
}

func configMap(a *args) map[string]string {
	return map[string]string{
		"lr":        fmt.Sprint(a.LR),
		"gamma":     fmt.Sprint(a.Gamma),
		"stepsize":  fmt.Sprint(a.StepSize),
		"batchsize": fmt.Sprint(a.BatchSize),
		"pmtype":    a.PMType,
		"lmweight":  fmt.Sprint(a.LMWeight),
		"seed":      fmt.Sprint(a.Seed),
	}
}

func atoiOr(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
