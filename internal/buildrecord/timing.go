package buildrecord

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// PhaseEntry records one phase's start and end within a build.
type PhaseEntry struct {
	Phase    string    `json:"phase"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end,omitempty"`
	Duration string    `json:"duration,omitempty"`
}

// Timing accumulates PhaseEntry records for a single build's lifetime and
// flushes them to disk.
type Timing struct {
	mu      sync.Mutex
	Entries []PhaseEntry `json:"entries"`
}

func timingPath(dir string) string {
	return filepath.Join(dir, "timing.json")
}

// LoadTiming reads timing data previously flushed to dir, or an empty
// Timing if none exists.
func LoadTiming(dir string) (*Timing, error) {
	data, err := os.ReadFile(timingPath(dir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Timing{}, nil
		}
		return nil, err
	}
	var t Timing
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// AddStart appends a new in-progress entry for phase.
func (t *Timing) AddStart(phase string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Entries = append(t.Entries, PhaseEntry{Phase: phase, Start: time.Now()})
}

// AddEnd closes the most recent open entry matching phase.
func (t *Timing) AddEnd(phase string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.Entries) - 1; i >= 0; i-- {
		if t.Entries[i].Phase == phase && t.Entries[i].End.IsZero() {
			t.Entries[i].End = time.Now()
			t.Entries[i].Duration = formatDuration(t.Entries[i].End.Sub(t.Entries[i].Start))
			break
		}
	}
}

// Flush writes the accumulated entries to dir/timing.json.
func (t *Timing) Flush(dir string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(timingPath(dir), data, 0o644)
}

func formatDuration(d time.Duration) string {
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm %02ds", m, s)
}
