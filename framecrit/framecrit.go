// Package framecrit implements a frame-level sequence
// criterion: each encoded timestep is interpreted as an
// unnormalized distribution over the token alphabet, and
// token sequences are scored frame by frame.
//
// It satisfies the trainer's SequenceCriterion contract,
// including beam search and hypothesis scoring.
package framecrit

import (
	"fmt"
	"math"
	"sort"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var c Crit
	serializer.RegisterTypedDeserializer(c.SerializerType(), DeserializeCrit)
}

// A Crit scores token sequences against per-frame encoder
// outputs.
//
// A learned per-token bias is added to every frame before
// normalization, so the criterion carries trainable
// parameters of its own.
type Crit struct {
	// Bias has one component per alphabet token.
	Bias *anydiff.Var

	// EOS is the end-of-sentence token index.
	EOS int

	// BeamSize bounds the number of hypotheses produced
	// per batch item.
	BeamSize int

	// MaxLen caps decoded hypothesis lengths.
	MaxLen int

	// Window, when positive, restricts scoring and
	// decoding to the first Window frames. It is used
	// during pretraining and cleared afterwards.
	Window int
}

// NewCrit creates a Crit with a zero bias over an
// alphabet of numTokens tokens.
func NewCrit(c anyvec.Creator, numTokens, eos, beamSize, maxLen int) *Crit {
	return &Crit{
		Bias:     anydiff.NewVar(c.MakeVector(numTokens)),
		EOS:      eos,
		BeamSize: beamSize,
		MaxLen:   maxLen,
	}
}

// DeserializeCrit deserializes a Crit.
func DeserializeCrit(d []byte) (*Crit, error) {
	var bias *anyvecsave.S
	var eos, beamSize, maxLen, window serializer.Int
	err := serializer.DeserializeAny(d, &bias, &eos, &beamSize, &maxLen, &window)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Crit", err)
	}
	return &Crit{
		Bias:     anydiff.NewVar(bias.Vector),
		EOS:      int(eos),
		BeamSize: int(beamSize),
		MaxLen:   int(maxLen),
		Window:   int(window),
	}, nil
}

// Parameters returns the criterion's parameters.
func (c *Crit) Parameters() []*anydiff.Var {
	return []*anydiff.Var{c.Bias}
}

// ClearWindow removes the frame-window restriction.
func (c *Crit) ClearWindow() {
	c.Window = 0
}

// Forward computes one negative log-likelihood per batch
// item: frame t is charged with the target's t-th token,
// or with EOS once the target is exhausted.
func (c *Crit) Forward(encoded anyseq.Seq, targets [][]int) anydiff.Res {
	return pool(encoded, func(items [][]anydiff.Res) anydiff.Res {
		if len(items) != len(targets) {
			panic("mismatching batch and target shapes")
		}
		losses := make([]anydiff.Res, len(items))
		for i, frames := range items {
			frames = c.window(frames)
			var total anydiff.Res
			for t, frame := range frames {
				tok := c.EOS
				if t < len(targets[i]) {
					tok = targets[i][t]
				}
				val := anydiff.Slice(c.logProbs(frame), tok, tok+1)
				if total == nil {
					total = val
				} else {
					total = anydiff.Add(total, val)
				}
			}
			losses[i] = anydiff.Scale(total, total.Output().Creator().MakeNumeric(-1))
		}
		return anydiff.Concat(losses...)
	})
}

// LogProb computes the log-probability of each path
// conditioned on the frames of the batch item its group
// belongs to, per the kept index list.
func (c *Crit) LogProb(encoded anyseq.Seq, kept []int, paths [][]int, hypoNums []int) anydiff.Res {
	return pool(encoded, func(items [][]anydiff.Res) anydiff.Res {
		scores := make([]anydiff.Res, 0, len(paths))
		var start int
		for g, n := range hypoNums {
			frames := c.window(items[kept[g]])
			for _, path := range paths[start : start+n] {
				scores = append(scores, c.pathLogProb(frames, path))
			}
			start += n
		}
		return anydiff.Concat(scores...)
	})
}

// pathLogProb charges each frame with the path's token at
// that frame, then with EOS for the frame after the last
// token.
func (c *Crit) pathLogProb(frames []anydiff.Res, path []int) anydiff.Res {
	var total anydiff.Res
	for t, frame := range frames {
		if t > len(path) {
			break
		}
		tok := c.EOS
		if t < len(path) {
			tok = path[t]
		}
		val := anydiff.Slice(c.logProbs(frame), tok, tok+1)
		if total == nil {
			total = val
		} else {
			total = anydiff.Add(total, val)
		}
	}
	if total == nil {
		panic("empty sequence")
	}
	return total
}

// logProbs normalizes one frame into token
// log-probabilities.
func (c *Crit) logProbs(frame anydiff.Res) anydiff.Res {
	biased := anydiff.Add(frame, c.Bias)
	return anydiff.LogSoftmax(biased, biased.Output().Len())
}

// BeamSearch decodes up to BeamSize hypotheses per batch
// item, never longer than MaxLen tokens.
func (c *Crit) BeamSearch(encoded anyseq.Seq, eos int) ([][]int, []int) {
	var paths [][]int
	var hypoNums []int
	for _, frames := range c.separate(encoded) {
		hyps := c.beamItem(frames, eos)
		paths = append(paths, hyps...)
		hypoNums = append(hypoNums, len(hyps))
	}
	return paths, hypoNums
}

// Viterbi produces the greedy decoding of each batch
// item.
func (c *Crit) Viterbi(encoded anyseq.Seq) [][]int {
	items := c.separate(encoded)
	res := make([][]int, len(items))
	for i, frames := range items {
		var path []int
		for _, logp := range frames {
			best := maxIndex(logp)
			if best == c.EOS || len(path) >= c.maxLen() {
				break
			}
			path = append(path, best)
		}
		res[i] = path
	}
	return res
}

type beam struct {
	path  []int
	score float64
}

// beamItem expands a per-item beam over the frame
// distributions, terminating paths at EOS.
func (c *Crit) beamItem(frames [][]float64, eos int) [][]int {
	live := []beam{{}}
	var done []beam
	for _, logp := range frames {
		if len(live) == 0 {
			break
		}
		var next []beam
		for _, b := range live {
			if len(b.path) >= c.maxLen() {
				done = append(done, b)
				continue
			}
			for tok, lp := range logp {
				cand := beam{
					path:  append(append([]int{}, b.path...), tok),
					score: b.score + lp,
				}
				if tok == eos {
					cand.path = cand.path[:len(cand.path)-1]
					done = append(done, cand)
				} else {
					next = append(next, cand)
				}
			}
		}
		live = topBeams(next, c.BeamSize)
	}
	done = append(done, live...)
	done = topBeams(done, c.BeamSize)
	res := make([][]int, len(done))
	for i, b := range done {
		res[i] = b.path
	}
	return res
}

// separate extracts each item's window-limited frame
// log-probabilities as plain floats.
func (c *Crit) separate(encoded anyseq.Seq) [][][]float64 {
	bias := vectorData(c.Bias.Vector)
	items := anyseq.SeparateSeqs(encoded.Output())
	res := make([][][]float64, len(items))
	for i, frames := range items {
		if c.Window > 0 && len(frames) > c.Window {
			frames = frames[:c.Window]
		}
		res[i] = make([][]float64, len(frames))
		for t, frame := range frames {
			data := vectorData(frame)
			if len(data) != len(bias) {
				panic("mismatching frame and alphabet sizes")
			}
			logp := make([]float64, len(data))
			for j := range data {
				logp[j] = data[j] + bias[j]
			}
			res[i][t] = logSoftmax(logp)
		}
	}
	return res
}

func (c *Crit) window(frames []anydiff.Res) []anydiff.Res {
	if c.Window > 0 && len(frames) > c.Window {
		return frames[:c.Window]
	}
	return frames
}

func (c *Crit) maxLen() int {
	if c.MaxLen == 0 {
		return math.MaxInt32
	}
	return c.MaxLen
}

// SerializerType returns the unique ID used to serialize
// a Crit.
func (c *Crit) SerializerType() string {
	return "github.com/unixpickle/priormatch/framecrit.Crit"
}

// Serialize serializes the Crit.
func (c *Crit) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		&anyvecsave.S{Vector: c.Bias.Vector},
		serializer.Int(c.EOS),
		serializer.Int(c.BeamSize),
		serializer.Int(c.MaxLen),
		serializer.Int(c.Window),
	)
}

func topBeams(beams []beam, k int) []beam {
	sort.SliceStable(beams, func(i, j int) bool {
		return beams[i].score > beams[j].score
	})
	if len(beams) > k {
		beams = beams[:k]
	}
	return beams
}

func maxIndex(logp []float64) int {
	best := 0
	for i, x := range logp {
		if x > logp[best] {
			best = i
		}
	}
	return best
}

func logSoftmax(logits []float64) []float64 {
	max := math.Inf(-1)
	for _, x := range logits {
		if x > max {
			max = x
		}
	}
	var sum float64
	for _, x := range logits {
		sum += math.Exp(x - max)
	}
	norm := max + math.Log(sum)
	res := make([]float64, len(logits))
	for i, x := range logits {
		res[i] = x - norm
	}
	return res
}

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
