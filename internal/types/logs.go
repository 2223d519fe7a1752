package types

import (
	"encoding/json"
	"fmt"
)

// -----------------------------------------------------------------------------
// Activity log
// -----------------------------------------------------------------------------

// LogType tags the event shape carried by a LogRecord's Params field.
// The set is closed on the console side; records with a type the console
// does not know decode into UnknownLogParams rather than failing the whole
// page, so a newer daemon never breaks the audit view.
type LogType string

const (
	LogCreatePlan   LogType = "create_plan"
	LogUpdatePlan   LogType = "update_plan"
	LogRemovePlan   LogType = "remove_plan"
	LogCreateTarget LogType = "create_target"
	LogUpdateTarget LogType = "update_target"
	LogRemoveTarget LogType = "remove_target"
	LogTargetState  LogType = "target_state"
	LogCreateTask   LogType = "create_task"
	LogRunSuccess   LogType = "run_success"
	LogRunFail      LogType = "run_fail"
	LogTransferFail LogType = "transfer_fail"
	LogPauseTask    LogType = "pause_task"
	LogResumeTask   LogType = "resume_task"
)

// SubjectKind tags the entity a log record is about.
type SubjectKind string

const (
	SubjectPlan   SubjectKind = "plan"
	SubjectTarget SubjectKind = "target"
	SubjectTask   SubjectKind = "task"
)

// LogSubject identifies the entity a log record is about. Exactly the fields
// matching Kind are populated; the rest stay empty.
type LogSubject struct {
	Kind SubjectKind `json:"kind"`

	PlanID   string `json:"plan_id,omitempty"`
	TargetID string `json:"target_id,omitempty"`
	TaskID   string `json:"taskid,omitempty"`
}

// LogParams is the decoded, type-specific payload of a log record.
// Exactly one concrete type backs each LogType; UnknownLogParams is the
// fallback for types the console does not recognize.
type LogParams interface {
	isLogParams()
}

// PlanLogParams carries plan lifecycle details (create/update/remove).
type PlanLogParams struct {
	Title string `json:"title"`
}

// TargetLogParams carries target lifecycle details.
type TargetLogParams struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// TargetStateLogParams records an observed target connectivity transition.
type TargetStateLogParams struct {
	OldState TargetState `json:"old_state"`
	NewState TargetState `json:"new_state"`
}

// TaskRunLogParams carries task outcome details (create/success/pause/resume).
type TaskRunLogParams struct {
	CheckpointID string   `json:"checkpoint_id"`
	TaskType     TaskType `json:"task_type"`
	TotalSize    int64    `json:"total_size"`
}

// TaskFailLogParams carries failure details (run_fail, transfer_fail).
type TaskFailLogParams struct {
	CheckpointID string `json:"checkpoint_id"`
	Error        string `json:"error"`
	// Transferred is how many bytes had completed when the failure occurred.
	Transferred int64 `json:"transferred"`
}

// UnknownLogParams preserves the raw payload of a record whose type tag the
// console does not recognize. The audit view renders it as opaque JSON.
type UnknownLogParams struct {
	Raw json.RawMessage
}

func (PlanLogParams) isLogParams()        {}
func (TargetLogParams) isLogParams()      {}
func (TargetStateLogParams) isLogParams() {}
func (TaskRunLogParams) isLogParams()     {}
func (TaskFailLogParams) isLogParams()    {}
func (UnknownLogParams) isLogParams()     {}

// LogRecord is one append-only entry of the daemon's activity log.
// Records are never mutated or deleted by the console; Seq is monotonic and
// assigned by the daemon.
type LogRecord struct {
	Seq       uint64     `json:"seq"`
	Timestamp int64      `json:"timestamp"`
	Subject   LogSubject `json:"subject"`
	Type      LogType    `json:"type"`

	// Params is populated by UnmarshalJSON according to Type.
	Params LogParams `json:"-"`
}

// logRecordWire is the raw wire shape, with Params left undecoded.
type logRecordWire struct {
	Seq       uint64          `json:"seq"`
	Timestamp int64           `json:"timestamp"`
	Subject   LogSubject      `json:"subject"`
	Type      LogType         `json:"type"`
	Params    json.RawMessage `json:"params"`
}

// UnmarshalJSON decodes the record envelope and dispatches Params decoding
// on the Type tag. A malformed params payload for a known type is an error;
// an unknown type is not (see UnknownLogParams).
func (r *LogRecord) UnmarshalJSON(data []byte) error {
	var w logRecordWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	r.Seq = w.Seq
	r.Timestamp = w.Timestamp
	r.Subject = w.Subject
	r.Type = w.Type

	params, err := decodeLogParams(w.Type, w.Params)
	if err != nil {
		return fmt.Errorf("log record %d: %w", w.Seq, err)
	}
	r.Params = params
	return nil
}

// MarshalJSON re-encodes the record in the wire shape. Used by the simulator
// and by tests; the console itself only reads logs.
func (r LogRecord) MarshalJSON() ([]byte, error) {
	var params json.RawMessage
	if u, ok := r.Params.(UnknownLogParams); ok {
		params = u.Raw
	} else if r.Params != nil {
		b, err := json.Marshal(r.Params)
		if err != nil {
			return nil, err
		}
		params = b
	} else {
		params = json.RawMessage("{}")
	}
	return json.Marshal(logRecordWire{
		Seq:       r.Seq,
		Timestamp: r.Timestamp,
		Subject:   r.Subject,
		Type:      r.Type,
		Params:    params,
	})
}

// decodeLogParams maps a type tag to its concrete params variant.
func decodeLogParams(t LogType, raw json.RawMessage) (LogParams, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	switch t {
	case LogCreatePlan, LogUpdatePlan, LogRemovePlan:
		var p PlanLogParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decoding %s params: %w", t, err)
		}
		return p, nil

	case LogCreateTarget, LogUpdateTarget, LogRemoveTarget:
		var p TargetLogParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decoding %s params: %w", t, err)
		}
		return p, nil

	case LogTargetState:
		var p TargetStateLogParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decoding %s params: %w", t, err)
		}
		return p, nil

	case LogCreateTask, LogRunSuccess, LogPauseTask, LogResumeTask:
		var p TaskRunLogParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decoding %s params: %w", t, err)
		}
		return p, nil

	case LogRunFail, LogTransferFail:
		var p TaskFailLogParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decoding %s params: %w", t, err)
		}
		return p, nil

	default:
		return UnknownLogParams{Raw: append(json.RawMessage(nil), raw...)}, nil
	}
}

// LogFilter narrows a log listing to one subject kind and/or one entity.
// Zero values mean "no restriction".
type LogFilter struct {
	Kind     SubjectKind `json:"kind,omitempty"`
	PlanID   string      `json:"plan_id,omitempty"`
	TargetID string      `json:"target_id,omitempty"`
	TaskID   string      `json:"taskid,omitempty"`
}

// LogPage is one page of the activity log, newest first.
type LogPage struct {
	Records []LogRecord `json:"records"`
	Total   int64       `json:"total"`
}
