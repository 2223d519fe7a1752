// Package simulator implements the daemon's full RPC method surface in
// process, backed by an in-memory SQLite database. It exists for local
// development of the web UI and for tests: the console binary can run
// against it with --demo when no real daemon is reachable.
//
// The simulator honors the same invariants the daemon does: tasks reference
// an existing plan at creation, restore tasks reference a completed
// checkpoint, a plan's checkpoint index only increases, and the activity log
// is append-only with a monotonic sequence.
package simulator

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	// modernc pure-Go SQLite driver, registers itself as "sqlite" in
	// database/sql. No CGO required.
	_ "modernc.org/sqlite"

	"github.com/keepdeck-io/keepdeck/internal/types"
)

// planRow is the persisted form of types.Plan. Policy is stored as JSON.
type planRow struct {
	PlanID              string `gorm:"primaryKey"`
	Title               string `gorm:"not null"`
	Description         string
	Source              string `gorm:"not null"`
	TargetID            string `gorm:"not null;index"`
	Policy              string `gorm:"type:text;not null;default:'[]'"`
	PolicyDisabled      bool
	Priority            int
	ReservedVersions    int
	TotalBackup         int64
	TotalSize           int64
	CreateTime          int64
	UpdateTime          int64
	LastRunTime         int64
	LastCheckpointIndex uint64
}

func (planRow) TableName() string { return "plans" }

// taskRow is the persisted form of types.Task.
type taskRow struct {
	TaskID                string `gorm:"primaryKey"`
	Type                  string `gorm:"not null"`
	OwnerPlanID           string `gorm:"not null;index"`
	CheckpointID          string
	State                 string `gorm:"not null;index"`
	TotalSize             int64
	CompletedSize         int64
	ItemCount             int64
	CompletedItemCount    int64
	WaitTransferItemCount int64
	Error                 string
	CreateTime            int64
	UpdateTime            int64
	CompleteTime          int64
	RestoreURL            string
	CleanFolder           bool
}

func (taskRow) TableName() string { return "tasks" }

// targetRow is the persisted form of types.Target.
type targetRow struct {
	TargetID    string `gorm:"primaryKey"`
	Type        string `gorm:"not null"`
	URL         string `gorm:"not null"`
	Name        string
	Description string
	State       string `gorm:"not null"`
	Used        int64
	Total       int64
	LastError   string
	CreateTime  int64
	UpdateTime  int64
}

func (targetRow) TableName() string { return "targets" }

// logRow is one activity log record. Seq is the SQLite rowid, which gives
// the monotonic append-only sequence for free.
type logRow struct {
	Seq         uint64 `gorm:"primaryKey;autoIncrement"`
	Timestamp   int64  `gorm:"not null;index"`
	SubjectKind string `gorm:"not null;index"`
	PlanID      string `gorm:"index"`
	TargetID    string `gorm:"index"`
	TaskID      string `gorm:"index"`
	Type        string `gorm:"not null"`
	Params      string `gorm:"type:text;not null;default:'{}'"`
}

func (logRow) TableName() string { return "logs" }

// openStore opens a fresh in-memory SQLite database and migrates the schema.
// The database lives exactly as long as the process; there is nothing to
// version or persist.
// storeSeq names each in-memory database uniquely so two backends in one
// process (tests open several) never share state through the shared cache.
var storeSeq atomic.Uint64

func openStore(logger *zap.Logger) (*gorm.DB, error) {
	// Open via database/sql with the modernc driver and hand the connection
	// to GORM so it does not reach for go-sqlite3. A single connection keeps
	// the shared in-memory database alive and serializes writers.
	dsn := fmt.Sprintf("file:simstore%d?mode=memory&cache=shared", storeSeq.Add(1))
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("simulator: open sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	db, err := gorm.Open(gormsqlite.Dialector{Conn: sqlDB}, &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("simulator: initialize gorm: %w", err)
	}

	if err := db.AutoMigrate(&planRow{}, &taskRow{}, &targetRow{}, &logRow{}); err != nil {
		return nil, fmt.Errorf("simulator: migrate schema: %w", err)
	}

	logger.Debug("simulator store ready")
	return db, nil
}

// -----------------------------------------------------------------------------
// Row <-> domain conversions
// -----------------------------------------------------------------------------

func planFromRow(r *planRow) (*types.Plan, error) {
	var policy types.TriggerList
	if r.Policy != "" {
		if err := json.Unmarshal([]byte(r.Policy), &policy); err != nil {
			return nil, fmt.Errorf("simulator: plan %s: decode policy: %w", r.PlanID, err)
		}
	}
	return &types.Plan{
		PlanID:              r.PlanID,
		Title:               r.Title,
		Description:         r.Description,
		Source:              r.Source,
		TargetID:            r.TargetID,
		Policy:              policy,
		PolicyDisabled:      r.PolicyDisabled,
		Priority:            r.Priority,
		ReservedVersions:    r.ReservedVersions,
		TotalBackup:         r.TotalBackup,
		TotalSize:           r.TotalSize,
		CreateTime:          r.CreateTime,
		UpdateTime:          r.UpdateTime,
		LastRunTime:         r.LastRunTime,
		LastCheckpointIndex: r.LastCheckpointIndex,
	}, nil
}

func taskFromRow(r *taskRow) *types.Task {
	return &types.Task{
		TaskID:                r.TaskID,
		Type:                  types.TaskType(r.Type),
		OwnerPlanID:           r.OwnerPlanID,
		CheckpointID:          r.CheckpointID,
		State:                 types.TaskState(r.State),
		TotalSize:             r.TotalSize,
		CompletedSize:         r.CompletedSize,
		ItemCount:             r.ItemCount,
		CompletedItemCount:    r.CompletedItemCount,
		WaitTransferItemCount: r.WaitTransferItemCount,
		Error:                 r.Error,
		CreateTime:            r.CreateTime,
		UpdateTime:            r.UpdateTime,
		CompleteTime:          r.CompleteTime,
		RestoreURL:            r.RestoreURL,
		CleanFolder:           r.CleanFolder,
	}
}

func targetFromRow(r *targetRow) *types.Target {
	return &types.Target{
		TargetID:    r.TargetID,
		Type:        types.TargetType(r.Type),
		URL:         r.URL,
		Name:        r.Name,
		Description: r.Description,
		State:       types.TargetState(r.State),
		Used:        r.Used,
		Total:       r.Total,
		LastError:   r.LastError,
		CreateTime:  r.CreateTime,
		UpdateTime:  r.UpdateTime,
	}
}

func logFromRow(r *logRow) (types.LogRecord, error) {
	subject := types.LogSubject{Kind: types.SubjectKind(r.SubjectKind)}
	switch subject.Kind {
	case types.SubjectPlan:
		subject.PlanID = r.PlanID
	case types.SubjectTarget:
		subject.TargetID = r.TargetID
	case types.SubjectTask:
		subject.TaskID = r.TaskID
	}

	wire, err := json.Marshal(map[string]any{
		"seq":       r.Seq,
		"timestamp": r.Timestamp,
		"subject":   subject,
		"type":      r.Type,
		"params":    json.RawMessage(r.Params),
	})
	if err != nil {
		return types.LogRecord{}, err
	}

	var rec types.LogRecord
	if err := json.Unmarshal(wire, &rec); err != nil {
		return types.LogRecord{}, fmt.Errorf("simulator: decode log %d: %w", r.Seq, err)
	}
	return rec, nil
}

func nowMilli(now func() time.Time) int64 {
	return now().UnixMilli()
}
