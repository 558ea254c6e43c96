package trainer

import (
	"sync"

	"github.com/unixpickle/anydiff"
)

// LocalReducer is the Reducer for single-worker runs.
// Finalize leaves the gradient untouched.
type LocalReducer struct{}

// Finalize does nothing.
func (LocalReducer) Finalize(g anydiff.Grad) {}

// An AllReduce averages gradients across a fixed number
// of in-process workers.
//
// Each worker obtains its own Reducer handle via Worker.
// Finalize on a handle blocks until every worker of the
// round has arrived, then replaces each worker's gradient
// with the across-worker average.
// If any worker skips its Finalize call, the others block
// forever, which mirrors the collective-operation
// mismatch of a real distributed job.
type AllReduce struct {
	world int

	mu      sync.Mutex
	params  [][]*anydiff.Var
	arrived int
	grads   []anydiff.Grad
	round   chan struct{}
}

// NewAllReduce creates an AllReduce for the workers whose
// ordered parameter lists are given.
//
// Parameter lists must be parallel across workers: entry
// j of every list is a replica of the same logical
// parameter, and all replicas of a parameter have equal
// lengths.
func NewAllReduce(params [][]*anydiff.Var) *AllReduce {
	if len(params) == 0 {
		panic("all-reduce requires at least one worker")
	}
	for _, p := range params[1:] {
		if len(p) != len(params[0]) {
			panic("mismatching parameter lists")
		}
	}
	return &AllReduce{
		world:  len(params),
		params: params,
		grads:  make([]anydiff.Grad, len(params)),
		round:  make(chan struct{}),
	}
}

// Worker returns worker w's Reducer handle.
func (a *AllReduce) Worker(w int) Reducer {
	return &allReduceWorker{parent: a, worker: w}
}

type allReduceWorker struct {
	parent *AllReduce
	worker int
}

func (a *allReduceWorker) Finalize(g anydiff.Grad) {
	p := a.parent
	p.mu.Lock()
	p.grads[a.worker] = g
	p.arrived++
	if p.arrived == p.world {
		p.reduce()
		p.arrived = 0
		done := p.round
		p.round = make(chan struct{})
		p.mu.Unlock()
		close(done)
		return
	}
	done := p.round
	p.mu.Unlock()
	<-done
}

// reduce is called with the mutex held, after all workers
// have arrived.
func (a *AllReduce) reduce() {
	scale := 1 / float64(a.world)
	for j := range a.params[0] {
		sum := a.grads[0][a.params[0][j]].Copy()
		for w := 1; w < a.world; w++ {
			sum.Add(a.grads[w][a.params[w][j]])
		}
		sum.Scale(sum.Creator().MakeNumeric(scale))
		for w := 0; w < a.world; w++ {
			a.grads[w][a.params[w][j]].Set(sum)
		}
	}
}
