package workflow

import (
	"context"
	"fmt"

	"vidslide/internal/deps"
	"vidslide/internal/preflight"
)

// ComponentHealth summarizes the readiness of a dependency of the manager.
type ComponentHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// HealthyComponent constructs a ready ComponentHealth record.
func HealthyComponent(name string) ComponentHealth {
	return ComponentHealth{Name: name, Ready: true}
}

// UnhealthyComponent constructs an unhealthy ComponentHealth record with context detail.
func UnhealthyComponent(name, detail string) ComponentHealth {
	return ComponentHealth{Name: name, Ready: false, Detail: detail}
}

// Health checks the output directory, free space and external tools.
func (m *Manager) Health(ctx context.Context) []ComponentHealth {
	out := make([]ComponentHealth, 0, 4)

	if res := preflight.CheckDirectoryAccess("output_dir", m.cfg.Paths.OutputDir); res.Passed {
		out = append(out, HealthyComponent(res.Name))
	} else {
		out = append(out, UnhealthyComponent(res.Name, res.Detail))
	}

	if minMB := m.cfg.Workers.DiskWarningMB; minMB > 0 {
		free, err := m.diskFree(m.cfg.Paths.OutputDir)
		switch {
		case err != nil:
			out = append(out, UnhealthyComponent("disk_space", err.Error()))
		case free < uint64(minMB):
			out = append(out, UnhealthyComponent("disk_space", fmt.Sprintf("%d MB free, %d MB required", free, minMB)))
		default:
			out = append(out, HealthyComponent("disk_space"))
		}
	}

	for _, status := range deps.CheckVideoTools(ctx, m.cfg) {
		if status.Available {
			out = append(out, HealthyComponent(status.Name))
			continue
		}
		out = append(out, UnhealthyComponent(status.Name, status.Detail))
	}
	return out
}
