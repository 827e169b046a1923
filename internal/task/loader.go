// Package task loads ARC puzzle files and serves them to attempts.
package task

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/arc-hci/arcgrid/internal/domain"
)

// Loader holds every task found in the configured directories. The task type
// is the base name of the directory a file was found in (training,
// evaluation). Loader is read-only after Load and safe for concurrent use.
type Loader struct {
	fs     afero.Fs
	log    *slog.Logger
	intN   func(int) int
	tasks  []domain.ARCTask
	byID   map[string]int
	counts map[string]int
}

// NewLoader creates an empty loader reading from fs.
func NewLoader(fs afero.Fs, log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	return &Loader{
		fs:     fs,
		log:    log,
		intN:   rand.IntN,
		byID:   make(map[string]int),
		counts: make(map[string]int),
	}
}

// taskFile is the on-disk ARC task format.
type taskFile struct {
	Train []domain.Example `json:"train"`
	Test  []domain.Example `json:"test"`
}

// Load reads every *.json file in dirs. Missing directories and invalid task
// files are logged and skipped. A task id seen twice keeps the first file.
func (l *Loader) Load(dirs ...string) error {
	for _, dir := range dirs {
		kind := filepath.Base(filepath.Clean(dir))
		entries, err := afero.ReadDir(l.fs, dir)
		if err != nil {
			l.log.Warn("task directory unreadable", "dir", dir, "error", err)
			continue
		}
		loaded := 0
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			id := strings.TrimSuffix(entry.Name(), ".json")
			if _, dup := l.byID[id]; dup {
				l.log.Warn("duplicate task id skipped", "task_id", id, "dir", dir)
				continue
			}
			t, err := l.readTask(filepath.Join(dir, entry.Name()), id, kind)
			if err != nil {
				l.log.Warn("task file skipped", "path", filepath.Join(dir, entry.Name()), "error", err)
				continue
			}
			l.byID[id] = len(l.tasks)
			l.tasks = append(l.tasks, t)
			l.counts[kind]++
			loaded++
		}
		l.log.Info("tasks loaded", "dir", dir, "type", kind, "count", loaded)
	}
	return nil
}

func (l *Loader) readTask(path, id, kind string) (domain.ARCTask, error) {
	raw, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return domain.ARCTask{}, err
	}
	var f taskFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return domain.ARCTask{}, domain.WrapEngineError(domain.ErrTaskInvalid.Code, domain.ErrTaskInvalid.Message, err)
	}
	t := domain.ARCTask{
		ID:    id,
		Name:  fmt.Sprintf("ARC Task %s (%s)", id, kind),
		Type:  kind,
		Train: f.Train,
		Test:  f.Test,
	}
	if err := Validate(t); err != nil {
		return domain.ARCTask{}, err
	}
	return t, nil
}

// Validate checks that every grid of t is well formed and that t has a test input.
func Validate(t domain.ARCTask) error {
	check := func(where string, g domain.Grid, required bool) error {
		if g == nil && !required {
			return nil
		}
		if err := g.Validate(); err != nil {
			return domain.WrapEngineError(domain.ErrTaskInvalid.Code, fmt.Sprintf("%s %s", domain.ErrTaskInvalid.Message, where), err)
		}
		return nil
	}
	for i, ex := range t.Train {
		if err := check(fmt.Sprintf("train[%d].input", i), ex.Input, true); err != nil {
			return err
		}
		if err := check(fmt.Sprintf("train[%d].output", i), ex.Output, true); err != nil {
			return err
		}
	}
	if len(t.Test) == 0 {
		return domain.ErrNoTestInput
	}
	for i, ex := range t.Test {
		if err := check(fmt.Sprintf("test[%d].input", i), ex.Input, true); err != nil {
			return err
		}
		if err := check(fmt.Sprintf("test[%d].output", i), ex.Output, false); err != nil {
			return err
		}
	}
	return nil
}

// Random returns a uniformly chosen task across all directories.
func (l *Loader) Random() (domain.ARCTask, error) {
	if len(l.tasks) == 0 {
		return domain.ARCTask{}, domain.ErrNoTasks
	}
	return l.tasks[l.intN(len(l.tasks))], nil
}

// ByID returns the task with the given id.
func (l *Loader) ByID(id string) (domain.ARCTask, error) {
	i, ok := l.byID[id]
	if !ok {
		return domain.ARCTask{}, domain.ErrTaskNotFound
	}
	return l.tasks[i], nil
}

// Count returns the number of loaded tasks.
func (l *Loader) Count() int { return len(l.tasks) }

// Counts returns the number of loaded tasks per type, plus "total".
func (l *Loader) Counts() map[string]int {
	out := make(map[string]int, len(l.counts)+1)
	for k, v := range l.counts {
		out[k] = v
	}
	out["total"] = len(l.tasks)
	return out
}

// IDs returns every loaded task id in sorted order.
func (l *Loader) IDs() []string {
	ids := make([]string, 0, len(l.tasks))
	for _, t := range l.tasks {
		ids = append(ids, t.ID)
	}
	sort.Strings(ids)
	return ids
}
