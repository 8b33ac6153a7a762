package syncer

import (
	"time"

	"github.com/trackarr/trackarr/internal/models"
)

// SyncKind is what a whole cycle does
type SyncKind string

const (
	KindFull     SyncKind = "full"
	KindHistory  SyncKind = "history"
	KindMetadata SyncKind = "metadata"
	KindPlayback SyncKind = "playback"
)

// TaskState is the lifecycle of one connection within a cycle
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskError     TaskState = "error"
)

// ConnectionTask is the live progress record for one connection in the
// current cycle
type ConnectionTask struct {
	ConnectionID uint64              `json:"connectionId"`
	Name         string              `json:"name"`
	ServiceType  models.ServiceType  `json:"serviceType"`
	Category     models.SyncCategory `json:"category"`
	State        TaskState           `json:"state"`
	Processed    int                 `json:"processed"`
	Errors       []string            `json:"errors,omitempty"`
	StartedAt    *time.Time          `json:"startedAt,omitempty"`
	FinishedAt   *time.Time          `json:"finishedAt,omitempty"`
}

// LastSync is the terminal record of the most recent completed cycle,
// retained until superseded by the next one
type LastSync struct {
	Kind        SyncKind      `json:"kind"`
	CompletedAt time.Time     `json:"completedAt"`
	Duration    time.Duration `json:"duration"`
	Processed   int           `json:"processed"`
	ErrorCount  int           `json:"errorCount"`
}

// Status is the full snapshot published to observers after every mutation
type Status struct {
	Running   bool             `json:"running"`
	Kind      SyncKind         `json:"kind,omitempty"`
	StartedAt *time.Time       `json:"startedAt,omitempty"`
	Tasks     []ConnectionTask `json:"tasks,omitempty"`
	LastSync  *LastSync        `json:"lastSync,omitempty"`
}

// clone deep-copies the snapshot so observers never share mutable state
// with the orchestrator
func (s Status) clone() Status {
	out := s
	if s.Tasks != nil {
		out.Tasks = make([]ConnectionTask, len(s.Tasks))
		copy(out.Tasks, s.Tasks)
		for i := range out.Tasks {
			if s.Tasks[i].Errors != nil {
				out.Tasks[i].Errors = append([]string(nil), s.Tasks[i].Errors...)
			}
		}
	}
	if s.LastSync != nil {
		ls := *s.LastSync
		out.LastSync = &ls
	}
	return out
}
