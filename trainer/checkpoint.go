package trainer

import (
	"encoding"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

// Snapshot file names within a run directory.
const (
	configFile = "config.json"
	modelFile  = "model_last.bin"
	optimFile  = "optim_last.bin"
	logFile    = "train.log"
)

// Keys the trainer stamps into the config map on save.
const (
	ConfigEpoch     = "epoch"
	ConfigIteration = "iteration"
)

// A LogHelper appends report lines to a run directory's
// log and saves model snapshots.
//
// Only the master worker writes files; workers with
// Master unset keep their meters but stay silent.
type LogHelper struct {
	Dir    string
	Master bool
}

// NewLogHelper creates the run directory if needed.
func NewLogHelper(dir string, master bool) (*LogHelper, error) {
	if master {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, essentials.AddCtx("create log helper", err)
		}
	}
	return &LogHelper{Dir: dir, Master: master}, nil
}

// SaveConfig persists the configuration map as JSON.
func (h *LogHelper) SaveConfig(cfg map[string]string) error {
	if !h.Master {
		return nil
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return essentials.AddCtx("save config", err)
	}
	path := filepath.Join(h.Dir, configFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return essentials.AddCtx("save config", err)
	}
	return nil
}

// WriteHeader appends the report column header to the
// log.
func (h *LogHelper) WriteHeader(m *Meters) error {
	cols := []string{"epoch", "iter", "lr"}
	for _, tag := range lossTags {
		cols = append(cols, "train-"+string(tag))
	}
	cols = append(cols, "train-ter")
	for _, name := range sortedValidNames(m) {
		cols = append(cols, "valid-"+name+"-loss", "valid-"+name+"-ter")
	}
	return h.appendLine(strings.Join(cols, "\t"))
}

// LogAndSaveModel writes one report line and saves a
// snapshot of the run.
func (h *LogHelper) LogAndSaveModel(t *Trainer, fields map[string]float64) error {
	line := h.formatReport(t, fields)
	log.Print(line)
	if err := h.appendLine(line); err != nil {
		return err
	}

	if t.Config != nil {
		t.Config[ConfigEpoch] = strconv.Itoa(t.Epoch)
		t.Config[ConfigIteration] = strconv.Itoa(t.Iter)
		if err := h.SaveConfig(t.Config); err != nil {
			return err
		}
	}
	if !h.Master {
		return nil
	}
	return SaveRun(h.Dir, t.Transformer, snapshotObjects(t)...)
}

func (h *LogHelper) formatReport(t *Trainer, fields map[string]float64) string {
	m := t.Meters
	parts := []string{
		fmt.Sprintf("epoch=%d", t.Epoch),
		fmt.Sprintf("iter=%d", t.Iter),
	}
	for _, name := range sortedKeys(fields) {
		parts = append(parts, fmt.Sprintf("%s=%.6g", name, fields[name]))
	}
	for _, tag := range lossTags {
		parts = append(parts, fmt.Sprintf("train-%s=%.6g", tag, m.Train.Losses[tag].Mean()))
	}
	parts = append(parts, fmt.Sprintf("train-ter=%.4f", m.Train.Edits.ErrorRate()))
	for _, name := range sortedValidNames(m) {
		dm := m.Valid[name]
		parts = append(parts,
			fmt.Sprintf("valid-%s-loss=%.6g", name, dm.Losses[LossASR].Mean()),
			fmt.Sprintf("valid-%s-ter=%.4f", name, dm.Edits.ErrorRate()))
	}
	parts = append(parts, fmt.Sprintf("runtime=%.1fs", m.Timers[PhaseRuntime].Seconds()))
	return strings.Join(parts, " ")
}

func (h *LogHelper) appendLine(line string) error {
	if !h.Master {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(h.Dir, logFile),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return essentials.AddCtx("write log", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		return essentials.AddCtx("write log", err)
	}
	return nil
}

// snapshotObjects collects the serializable collaborators
// in snapshot order: encoder, criterion, LM critic.
func snapshotObjects(t *Trainer) []serializer.Serializer {
	var objs []serializer.Serializer
	for _, obj := range []interface{}{t.Encoder, t.Criterion, t.LMCrit} {
		if s, ok := obj.(serializer.Serializer); ok {
			objs = append(objs, s)
		} else {
			log.Printf("snapshot: %T is not serializable; skipping", obj)
		}
	}
	return objs
}

// SaveRun writes a model snapshot and, when the optimizer
// supports marshalling, its state.
func SaveRun(dir string, opt anysgd.Transformer, objs ...serializer.Serializer) error {
	data, err := serializer.SerializeAny(toInterfaces(objs)...)
	if err != nil {
		return essentials.AddCtx("save run", err)
	}
	if err := os.WriteFile(filepath.Join(dir, modelFile), data, 0644); err != nil {
		return essentials.AddCtx("save run", err)
	}
	if m, ok := opt.(encoding.BinaryMarshaler); ok {
		state, err := m.MarshalBinary()
		if err != nil {
			return essentials.AddCtx("save run", err)
		}
		if err := os.WriteFile(filepath.Join(dir, optimFile), state, 0644); err != nil {
			return essentials.AddCtx("save run", err)
		}
	}
	return nil
}

// LoadRun restores a snapshot saved by SaveRun into the
// destination pointers, returning the saved config map.
//
// Callers choose the load mode by what they restore: a
// full continuation passes the optimizer and every
// collaborator; forking the acoustic model alone passes
// nil for opt and rebuilds a fresh LM critic afterwards.
func LoadRun(dir string, opt anysgd.Transformer, dests ...interface{}) (map[string]string, error) {
	cfgData, err := os.ReadFile(filepath.Join(dir, configFile))
	if err != nil {
		return nil, essentials.AddCtx("load run", err)
	}
	var cfg map[string]string
	if err := json.Unmarshal(cfgData, &cfg); err != nil {
		return nil, essentials.AddCtx("load run", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, modelFile))
	if err != nil {
		return nil, essentials.AddCtx("load run", err)
	}
	if err := serializer.DeserializeAny(data, dests...); err != nil {
		return nil, essentials.AddCtx("load run", err)
	}

	if u, ok := opt.(encoding.BinaryUnmarshaler); ok {
		state, err := os.ReadFile(filepath.Join(dir, optimFile))
		if err == nil {
			if err := u.UnmarshalBinary(state); err != nil {
				return nil, essentials.AddCtx("load run", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, essentials.AddCtx("load run", err)
		}
	}
	return cfg, nil
}

func toInterfaces(objs []serializer.Serializer) []interface{} {
	res := make([]interface{}, len(objs))
	for i, o := range objs {
		res[i] = o
	}
	return res
}

func sortedValidNames(m *Meters) []string {
	names := make([]string, 0, len(m.Valid))
	for name := range m.Valid {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedKeys(fields map[string]float64) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
