package taskmgr

import "github.com/keepdeck-io/keepdeck/internal/types"

// TaskFilter is a conjunction of restrictions for task listings. Empty
// slices mean "no restriction" for that dimension.
type TaskFilter struct {
	// States restricts to tasks in any of the given states.
	States []types.TaskState `json:"state,omitempty"`

	// Types restricts to BACKUP and/or RESTORE tasks.
	Types []types.TaskType `json:"task_type,omitempty"`

	// PlanIDs restricts to tasks owned by any of the given plans.
	PlanIDs []string `json:"owner_plan_id,omitempty"`

	// PlanTitleSubstrings restricts to tasks whose owning plan's title
	// contains any of the given substrings, case-insensitively.
	PlanTitleSubstrings []string `json:"owner_plan_title,omitempty"`
}

// OrderKey is a sortable task attribute.
type OrderKey string

const (
	OrderByCreateTime   OrderKey = "create_time"
	OrderByUpdateTime   OrderKey = "update_time"
	OrderByCompleteTime OrderKey = "complete_time"
)

// OrderDirection is ascending or descending.
type OrderDirection string

const (
	OrderAsc  OrderDirection = "asc"
	OrderDesc OrderDirection = "desc"
)

// TaskOrder is one entry of an ordering priority list. Entries are evaluated
// left to right; the first non-zero comparison wins.
//
// Ordering by complete_time has one fixed rule regardless of Direction:
// tasks that are not DONE sort after DONE tasks. A task with no completion
// yet has no meaningful position on that axis, so it is pushed to the end as
// a tie-break policy.
type TaskOrder struct {
	Key       OrderKey       `json:"key"`
	Direction OrderDirection `json:"direction"`
}

// TaskPage is one page of a task listing: matching ids plus the total number
// of tasks matching the filter (post-filter count).
type TaskPage struct {
	TaskIDs []string `json:"task_ids"`
	Total   int64    `json:"total"`
}

// ListTasksRequest is the wire shape of the list_backup_task params object.
// Shared with the simulator so both sides agree on field names.
type ListTasksRequest struct {
	Filter  TaskFilter  `json:"filter"`
	Offset  int         `json:"offset"`
	Limit   int         `json:"limit"`
	OrderBy []TaskOrder `json:"order_by,omitempty"`
}
