package api

import (
	"vidslide/internal/deps"
	"vidslide/internal/workflow"
)

// FromStatusSummary converts manager diagnostics and health checks.
func FromStatusSummary(summary workflow.StatusSummary, health []workflow.ComponentHealth) WorkflowStatus {
	out := WorkflowStatus{
		Batches:        summary.Batches,
		Processing:     summary.Processing,
		RunningWorkers: summary.RunningWorkers,
		LastError:      summary.LastError,
		Health:         make([]ComponentHealth, 0, len(health)),
	}
	for _, h := range health {
		out.Health = append(out.Health, ComponentHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

// FromDependencies converts binary availability checks.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, dep := range statuses {
		out = append(out, DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Version:     dep.Version,
			Detail:      dep.Detail,
		})
	}
	return out
}
