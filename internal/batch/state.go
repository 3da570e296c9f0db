package batch

import (
	"encoding/json"
	"fmt"

	"vidslide/internal/services"
)

// Zone is one of the four containers a task belongs to.
type Zone string

const (
	ZoneStaged    Zone = "staged"
	ZoneQueued    Zone = "queued"
	ZoneCompleted Zone = "completed"
	ZoneTrashed   Zone = "trashed"
)

// Zones lists every zone in display order.
var Zones = []Zone{ZoneStaged, ZoneQueued, ZoneCompleted, ZoneTrashed}

// ParseZone validates a zone name.
func ParseZone(value string) (Zone, error) {
	zone := Zone(value)
	for _, z := range Zones {
		if z == zone {
			return zone, nil
		}
	}
	return "", services.Wrap(services.ErrValidation, "batch", "zone", fmt.Sprintf("unknown zone %q", value), nil)
}

// Status is the fine-grained lifecycle status of a task.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusDone      Status = "done"
	StatusError     Status = "error"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
	StatusSkipped   Status = "skipped"
)

// Terminal reports whether the status ends a run.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusError, StatusPaused, StatusCancelled, StatusSkipped:
		return true
	default:
		return false
	}
}

// Retryable reports whether retry is allowed from the status.
func (s Status) Retryable() bool {
	switch s {
	case StatusError, StatusPaused, StatusCancelled, StatusSkipped:
		return true
	default:
		return false
	}
}

var allowedStatuses = map[Zone]map[Status]bool{
	ZoneStaged: {StatusIdle: true},
	ZoneQueued: {
		StatusQueued:    true,
		StatusRunning:   true,
		StatusError:     true,
		StatusPaused:    true,
		StatusCancelled: true,
		StatusSkipped:   true,
	},
	ZoneCompleted: {StatusDone: true},
	ZoneTrashed: {
		StatusIdle:      true,
		StatusQueued:    true,
		StatusDone:      true,
		StatusError:     true,
		StatusPaused:    true,
		StatusCancelled: true,
		StatusSkipped:   true,
	},
}

// State is the combined zone and status of a task. The zero value is not a
// valid state; use the constructors.
type State struct {
	zone   Zone
	status Status
}

// NewState returns the state for zone and status or an error when the pair is
// not allowed. In the trashed zone status records what the task was before it
// was trashed.
func NewState(zone Zone, status Status) (State, error) {
	if !allowedStatuses[zone][status] {
		return State{}, services.Wrap(services.ErrInvalidTransition, "batch", "state",
			fmt.Sprintf("status %q is not valid in zone %q", status, zone), nil)
	}
	return State{zone: zone, status: status}, nil
}

// Staged is the state of a newly added task.
func Staged() State { return State{zone: ZoneStaged, status: StatusIdle} }

// Queued is the state of a task waiting for a worker.
func Queued() State { return State{zone: ZoneQueued, status: StatusQueued} }

// Running is the state of a task owned by a worker.
func Running() State { return State{zone: ZoneQueued, status: StatusRunning} }

// Completed is the state of a successfully extracted task.
func Completed() State { return State{zone: ZoneCompleted, status: StatusDone} }

// Stopped returns a terminal state that keeps the task in the queued zone.
func Stopped(status Status) (State, error) {
	if status == StatusQueued || status == StatusRunning {
		return State{}, services.Wrap(services.ErrInvalidTransition, "batch", "state",
			fmt.Sprintf("%q is not a stopped status", status), nil)
	}
	return NewState(ZoneQueued, status)
}

// Trashed returns the trashed state remembering the prior status.
func Trashed(prior Status) (State, error) {
	return NewState(ZoneTrashed, prior)
}

// Zone returns the zone component.
func (s State) Zone() Zone { return s.zone }

// Status returns the status component.
func (s State) Status() Status { return s.status }

// Valid reports whether the state was built through a constructor.
func (s State) Valid() bool { return allowedStatuses[s.zone][s.status] }

func (s State) String() string {
	return string(s.zone) + "/" + string(s.status)
}

type stateJSON struct {
	Zone   Zone   `json:"zone"`
	Status Status `json:"status"`
}

// MarshalJSON encodes the state as {"zone":..., "status":...}.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(stateJSON{Zone: s.zone, Status: s.status})
}

// UnmarshalJSON rejects illegal zone and status pairs.
func (s *State) UnmarshalJSON(data []byte) error {
	var raw stateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	state, err := NewState(raw.Zone, raw.Status)
	if err != nil {
		return err
	}
	*s = state
	return nil
}
