// Package types defines the domain model shared between the RPC boundary,
// the task manager, the backend simulator, and the HTTP layer: backup plans,
// tasks, storage targets, and the append-only activity log.
//
// All structs mirror the wire shapes used by the backup daemon. Timestamps
// are Unix milliseconds (int64) as produced by the daemon; they are never
// converted to time.Time on the wire path so ordering comparisons stay exact.
package types

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Tasks
// -----------------------------------------------------------------------------

// TaskState is the lifecycle state of a backup or restore task.
// Transitions are driven by the daemon; this layer only observes them or
// requests pause/resume.
type TaskState string

const (
	// TaskStatePending means the task is created but the daemon has not
	// started transferring data yet.
	TaskStatePending TaskState = "PENDING"

	// TaskStateRunning means the daemon is actively transferring data.
	TaskStateRunning TaskState = "RUNNING"

	// TaskStatePaused means the task was suspended by an operator (or by
	// the daemon itself on resource pressure) and can be resumed.
	TaskStatePaused TaskState = "PAUSED"

	// TaskStateDone is terminal. Subsequent runs of the same plan create a
	// new task identity.
	TaskStateDone TaskState = "DONE"

	// TaskStateFailed means the last run errored. A resume request retries
	// the task; otherwise the state is terminal.
	TaskStateFailed TaskState = "FAILED"
)

// Terminal reports whether the state admits no further progress without an
// explicit operator action. Tasks in a terminal state are evicted from the
// in-flight cache and excluded from the task refresh poll.
func (s TaskState) Terminal() bool {
	return s == TaskStateDone || s == TaskStateFailed
}

// Valid reports whether s is one of the five known task states.
func (s TaskState) Valid() bool {
	switch s {
	case TaskStatePending, TaskStateRunning, TaskStatePaused, TaskStateDone, TaskStateFailed:
		return true
	}
	return false
}

// TaskType distinguishes backup runs from restores.
type TaskType string

const (
	TaskTypeBackup  TaskType = "BACKUP"
	TaskTypeRestore TaskType = "RESTORE"
)

// Task is one concrete execution (backup or restore) derived from a Plan.
//
// Speed is derived client-side from successive snapshots and is never
// authoritative; the daemon does not report it.
type Task struct {
	TaskID       string    `json:"taskid"`
	Type         TaskType  `json:"task_type"`
	OwnerPlanID  string    `json:"owner_plan_id"`
	CheckpointID string    `json:"checkpoint_id"`
	State        TaskState `json:"state"`

	TotalSize             int64 `json:"total_size"`
	CompletedSize         int64 `json:"completed_size"`
	ItemCount             int64 `json:"item_count"`
	CompletedItemCount    int64 `json:"completed_item_count"`
	WaitTransferItemCount int64 `json:"wait_transfer_item_count"`

	// Speed is the smoothed transfer rate in bytes per second, computed from
	// successive completed_size deltas. Zero until at least two snapshots of
	// a running task have been observed.
	Speed float64 `json:"speed"`

	// Error is set when State is FAILED.
	Error string `json:"error,omitempty"`

	CreateTime   int64 `json:"create_time"`
	UpdateTime   int64 `json:"update_time"`
	CompleteTime int64 `json:"complete_time"`

	// RestoreURL and CleanFolder apply only to RESTORE tasks: where the
	// checkpoint content is materialized, and whether the destination folder
	// is emptied first.
	RestoreURL  string `json:"restore_url,omitempty"`
	CleanFolder bool   `json:"clean_folder,omitempty"`
}

// -----------------------------------------------------------------------------
// Plans
// -----------------------------------------------------------------------------

// Plan is a user-configured backup policy binding a source path to a target
// destination with a trigger schedule. Plans are only ever mutated by
// explicit create/update/remove calls; running totals and the checkpoint
// index are advanced by the daemon as tasks complete.
type Plan struct {
	PlanID      string `json:"plan_id"`
	Title       string `json:"title"`
	Description string `json:"description"`

	// Source is the local path backed up by this plan.
	Source string `json:"source"`
	// TargetID references the storage destination the plan writes to.
	TargetID string `json:"target"`

	// Policy is the ordered trigger collection. PolicyDisabled suppresses
	// all triggers without losing their configuration.
	Policy         TriggerList `json:"policy"`
	PolicyDisabled bool        `json:"policy_disabled"`

	// Priority ranks plans 0-10 when the daemon arbitrates concurrent runs.
	Priority int `json:"priority"`
	// ReservedVersions is how many checkpoints the daemon retains.
	// Zero means unlimited.
	ReservedVersions int `json:"reserved_versions"`

	TotalBackup int64 `json:"total_backup"`
	TotalSize   int64 `json:"total_size"`

	CreateTime  int64 `json:"create_time"`
	UpdateTime  int64 `json:"update_time"`
	LastRunTime int64 `json:"last_run_time"`

	// LastCheckpointIndex identifies the most recent checkpoint produced for
	// this plan. It only ever increases.
	LastCheckpointIndex uint64 `json:"last_checkpoint_index"`
}

// PlanSpec is the payload for plan creation. The daemon assigns the identity
// and timestamps; everything else is caller-provided.
type PlanSpec struct {
	Title            string      `json:"title"`
	Description      string      `json:"description"`
	Source           string      `json:"source"`
	TargetID         string      `json:"target"`
	Policy           TriggerList `json:"policy"`
	PolicyDisabled   bool        `json:"policy_disabled"`
	Priority         int         `json:"priority"`
	ReservedVersions int         `json:"reserved_versions"`
}

// Validate checks the structural invariants of a plan spec before it is sent
// to the daemon. The daemon validates again; this exists so the HTTP layer
// can reject obviously malformed wizards input with a 422 instead of a
// round-trip.
func (s *PlanSpec) Validate() error {
	if s.Title == "" {
		return errors.New("plan: title is required")
	}
	if s.Source == "" {
		return errors.New("plan: source path is required")
	}
	if s.TargetID == "" {
		return errors.New("plan: target is required")
	}
	if s.Priority < 0 || s.Priority > 10 {
		return fmt.Errorf("plan: priority %d out of range [0,10]", s.Priority)
	}
	if s.ReservedVersions < 0 {
		return fmt.Errorf("plan: reserved_versions must not be negative, got %d", s.ReservedVersions)
	}
	for i, trg := range s.Policy {
		if err := trg.validate(); err != nil {
			return fmt.Errorf("plan: trigger %d: %w", i, err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Targets
// -----------------------------------------------------------------------------

// TargetType identifies the kind of storage destination.
type TargetType string

const (
	// TargetTypeLocal is a directory on a locally mounted filesystem.
	TargetTypeLocal TargetType = "LOCAL"
	// TargetTypeNDN is a named-data-networking node addressed by URL.
	TargetTypeNDN TargetType = "NDN"
	// TargetTypeS3 is any S3-compatible object store.
	TargetTypeS3 TargetType = "S3"
)

// TargetState is the daemon-observed connectivity state of a target.
// It is refreshed only by polling; this layer never commands a transition.
type TargetState string

const (
	TargetStateOnline  TargetState = "ONLINE"
	TargetStateOffline TargetState = "OFFLINE"
	TargetStateError   TargetState = "ERROR"
	TargetStateUnknown TargetState = "UNKNOWN"
)

// TargetUnlimited is the sentinel Total value for targets without a capacity
// bound (e.g. object stores).
const TargetUnlimited int64 = -1

// Target is a storage destination plans back up to.
type Target struct {
	TargetID    string      `json:"target_id"`
	Type        TargetType  `json:"target_type"`
	URL         string      `json:"url"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	State       TargetState `json:"state"`

	// Used and Total are byte counters. Total is TargetUnlimited when the
	// destination reports no capacity bound; otherwise Used must not exceed
	// Total.
	Used  int64 `json:"used"`
	Total int64 `json:"total"`

	LastError string `json:"last_error,omitempty"`

	CreateTime int64 `json:"create_time"`
	UpdateTime int64 `json:"update_time"`
}

// Validate checks target shape invariants at the RPC boundary.
func (t *Target) Validate() error {
	if t.TargetID == "" {
		return errors.New("target: target_id is required")
	}
	if t.URL == "" {
		return errors.New("target: url is required")
	}
	switch t.Type {
	case TargetTypeLocal, TargetTypeNDN, TargetTypeS3:
	default:
		return fmt.Errorf("target: unknown target_type %q", t.Type)
	}
	if t.Total != TargetUnlimited && t.Total >= 0 && t.Used > t.Total {
		return fmt.Errorf("target: used %d exceeds total %d", t.Used, t.Total)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Directory browsing / drill-down shapes
// -----------------------------------------------------------------------------

// DirEntry is one child of a browsed directory, as returned by the daemon's
// directory listing. Used by the plan wizard's source picker.
type DirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

// TaskFile is one file inside a task, for the per-task drill-down view.
type TaskFile struct {
	Path          string `json:"path"`
	Size          int64  `json:"size"`
	CompletedSize int64  `json:"completed_size"`
	ChunkCount    int    `json:"chunk_count"`
}

// FileChunk is one chunk of a file inside a task.
type FileChunk struct {
	ChunkID     string `json:"chunk_id"`
	Offset      int64  `json:"offset"`
	Size        int64  `json:"size"`
	Transferred bool   `json:"transferred"`
	Hash        string `json:"hash"`
}

// SizeSummary aggregates storage consumption across all targets.
type SizeSummary struct {
	TotalUsed     int64 `json:"total_used"`
	TotalCapacity int64 `json:"total_capacity"`
	PlanCount     int   `json:"plan_count"`
	TargetCount   int   `json:"target_count"`
}

// Statistics aggregates task outcomes for the dashboard.
type Statistics struct {
	TotalBackupCount  int64 `json:"total_backup_count"`
	TotalBackupSize   int64 `json:"total_backup_size"`
	RunningTaskCount  int64 `json:"running_task_count"`
	FailedTaskCount   int64 `json:"failed_task_count"`
	LastBackupTime    int64 `json:"last_backup_time"`
	CheckpointCount   int64 `json:"checkpoint_count"`
	RestoreCount      int64 `json:"restore_count"`
}
