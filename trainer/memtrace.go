package trainer

import (
	"fmt"
	"runtime"
	"strings"
)

// A MemTrace records heap statistics at named pipeline
// stages of one training iteration.
//
// It is an explicit per-run object passed to the Trainer,
// so parallel runs never share trace state.
type MemTrace struct {
	stages map[string]memStat
}

type memStat struct {
	bytes   uint64
	objects uint64
}

// The pipeline stages traced during one iteration.
var memStages = []string{
	"0-start",
	"1-encfwd",
	"2a-decfwd",
	"2b-decbs",
	"3-lmfwd",
	"4-bmfwd",
	"5-zgrad",
	"6-bwd",
}

// NewMemTrace creates an empty trace.
func NewMemTrace() *MemTrace {
	t := &MemTrace{}
	t.Reset()
	return t
}

// Update records the current heap usage under the stage
// name.
func (t *MemTrace) Update(stage string) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	t.stages[stage] = memStat{bytes: ms.HeapAlloc, objects: ms.HeapObjects}
}

// Reset discards every recorded stage.
func (t *MemTrace) Reset() {
	t.stages = map[string]memStat{}
}

// String formats the recorded stages as
// stage:bytes/objects pairs in pipeline order.
func (t *MemTrace) String() string {
	var parts []string
	for _, name := range memStages {
		if s, ok := t.stages[name]; ok {
			parts = append(parts, fmt.Sprintf("%s:%d/%d", name, s.bytes, s.objects))
		}
	}
	return strings.Join(parts, " ")
}
