package workflow

import (
	"vidslide/internal/batch"
)

// StatusSummary represents lightweight manager diagnostics.
type StatusSummary struct {
	Batches        int    `json:"batches"`
	Processing     int    `json:"processing"`
	RunningWorkers int    `json:"running_workers"`
	LastError      string `json:"last_error,omitempty"`
}

// Status returns the latest manager information.
func (m *Manager) Status() StatusSummary {
	runs := m.runs()
	summary := StatusSummary{Batches: len(runs)}
	for _, run := range runs {
		if run.batch.Status() == batch.BatchProcessing {
			summary.Processing++
		}
		summary.RunningWorkers += run.batch.RunningCount()
	}
	m.mu.RLock()
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	m.mu.RUnlock()
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
