package framecrit

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
)

// framePool gives differentiable access to each batch
// item's frames while routing gradients back through the
// encoded sequence.
type framePool struct {
	In      anyseq.Seq
	Pools   []*anydiff.Var
	Lengths []int
	Res     anydiff.Res
}

// pool splits encoded into one Res per item per frame,
// applies f, and wires the result's gradient to the
// sequence.
//
// The pool variables are invisible to callers: they are
// added to the gradient during Propagate and removed
// again before the sequence sees it.
func pool(encoded anyseq.Seq, f func(items [][]anydiff.Res) anydiff.Res) anydiff.Res {
	rawItems := anyseq.SeparateSeqs(encoded.Output())
	pools := make([]*anydiff.Var, len(rawItems))
	frames := make([][]anydiff.Res, len(rawItems))
	lengths := make([]int, len(rawItems))
	for i, raw := range rawItems {
		pools[i] = anydiff.NewVar(encoded.Creator().Concat(raw...))
		frames[i] = splitFrames(pools[i], len(raw))
		lengths[i] = len(raw)
	}
	return &framePool{
		In:      encoded,
		Pools:   pools,
		Lengths: lengths,
		Res:     f(frames),
	}
}

func (f *framePool) Output() anyvec.Vector {
	return f.Res.Output()
}

func (f *framePool) Vars() anydiff.VarSet {
	return f.In.Vars()
}

func (f *framePool) Propagate(u anyvec.Vector, g anydiff.Grad) {
	for _, pvar := range f.Pools {
		g[pvar] = pvar.Vector.Creator().MakeVector(pvar.Vector.Len())
	}
	f.Res.Propagate(u, g)
	downstream := make([][]anyvec.Vector, len(f.Pools))
	for i, pvar := range f.Pools {
		downstream[i] = splitFrameVecs(g[pvar], f.Lengths[i])
		delete(g, pvar)
	}
	joined := anyseq.ConstSeqList(u.Creator(), downstream).Output()
	f.In.Propagate(joined, g)
}

// splitFrames slices an item's pooled frames back into
// per-frame results.
func splitFrames(item anydiff.Res, frames int) []anydiff.Res {
	if frames == 0 {
		return nil
	}
	res := make([]anydiff.Res, frames)
	size := item.Output().Len() / frames
	for i := range res {
		res[i] = anydiff.Slice(item, i*size, (i+1)*size)
	}
	return res
}

func splitFrameVecs(vec anyvec.Vector, frames int) []anyvec.Vector {
	res := make([]anyvec.Vector, frames)
	size := vec.Len() / frames
	for i := range res {
		res[i] = vec.Slice(i*size, (i+1)*size)
	}
	return res
}
