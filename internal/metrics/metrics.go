// Package metrics appends one JSON line per observed status transition to a
// project-scoped log, and offers a Summarize reader for retrospectives
// (terminal-outcome counts, mean time-to-merge). Recording is best-effort:
// callers in the lifecycle manager swallow write errors rather than block a
// poll tick on them.
package metrics

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ao-project/ao/internal/model"
)

// Transition is one recorded status change.
type Transition struct {
	At        time.Time    `json:"at"`
	SessionID string       `json:"sessionId"`
	ProjectID string       `json:"projectId"`
	From      model.Status `json:"from"`
	To        model.Status `json:"to"`
}

// Log appends transitions to a single file, one JSON object per line.
type Log struct {
	path string
	mu   sync.Mutex
}

// New opens (creating parent directories as needed) the metrics log at path.
func New(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("metrics: ensure dir: %w", err)
	}
	return &Log{path: path}, nil
}

// RecordTransition appends one transition. Errors are returned so the caller
// can decide whether to log them, but callers must never let a failure here
// block a status update.
func (l *Log) RecordTransition(t Transition) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("metrics: marshal transition: %w", err)
	}
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("metrics: open %s: %w", l.path, err)
	}
	defer file.Close()
	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("metrics: write %s: %w", l.path, err)
	}
	return nil
}

// Summary aggregates terminal outcomes per project.
type Summary struct {
	OutcomeCounts    map[string]map[model.Status]int
	MeanTimeToMergeMs map[string]float64
}

// Summarize reads the entire log at path and aggregates outcome counts and
// mean time-to-merge per project. A missing file yields an empty summary.
func Summarize(path string) (Summary, error) {
	summary := Summary{
		OutcomeCounts:     map[string]map[model.Status]int{},
		MeanTimeToMergeMs: map[string]float64{},
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return summary, nil
		}
		return Summary{}, fmt.Errorf("metrics: open %s: %w", path, err)
	}
	defer file.Close()

	firstSeen := map[string]time.Time{}
	mergeDurations := map[string][]float64{}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		var t Transition
		if err := json.Unmarshal(scanner.Bytes(), &t); err != nil {
			continue
		}
		if _, ok := firstSeen[t.SessionID]; !ok {
			firstSeen[t.SessionID] = t.At
		}
		if t.To.Terminal() {
			bucket, ok := summary.OutcomeCounts[t.ProjectID]
			if !ok {
				bucket = map[model.Status]int{}
				summary.OutcomeCounts[t.ProjectID] = bucket
			}
			bucket[t.To]++
			if t.To == model.StatusMerged {
				if start, ok := firstSeen[t.SessionID]; ok {
					elapsed := t.At.Sub(start).Milliseconds()
					mergeDurations[t.ProjectID] = append(mergeDurations[t.ProjectID], float64(elapsed))
				}
			}
		}
	}
	for projectID, durations := range mergeDurations {
		var sum float64
		for _, d := range durations {
			sum += d
		}
		summary.MeanTimeToMergeMs[projectID] = sum / float64(len(durations))
	}
	return summary, nil
}
