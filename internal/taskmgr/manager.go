// Package taskmgr implements the console's authoritative facade over the
// backup daemon: CRUD-style operations for plans, tasks, and storage targets,
// a best-effort in-memory cache of in-flight tasks and targets, typed event
// fan-out to UI subscribers, and the reference-counted polling timers that
// keep the caches fresh.
//
// All durable state lives in the daemon. The caches exist only to compute
// derived values between polls: transfer speed from successive snapshots, and
// state-change detection for completion, failure, and target connectivity
// events. If the console restarts the caches rebuild from the first refresh
// pass; nothing is persisted here.
//
// Construct exactly one Manager per process and hand it to consumers
// explicitly; the package deliberately exports no shared instance.
package taskmgr

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/keepdeck-io/keepdeck/internal/metrics"
	"github.com/keepdeck-io/keepdeck/internal/rpc"
	"github.com/keepdeck-io/keepdeck/internal/types"
)

const (
	// Speed smoothing weights. Raw poll-to-poll deltas are noisy (a tick can
	// land between chunk flushes), so the displayed speed is an exponentially
	// weighted moving average: 70% previous value, 30% newest sample.
	speedKeepWeight   = 0.7
	speedSampleWeight = 0.3

	// DefaultPollInterval is the refresh period for both pollers unless
	// overridden in Config.
	DefaultPollInterval = time.Second
)

// Config holds the Manager's tunables.
type Config struct {
	// TaskPollInterval is the period of the task state refresh timer.
	// Zero means DefaultPollInterval.
	TaskPollInterval time.Duration

	// TargetPollInterval is the period of the target state refresh timer.
	// Zero means DefaultPollInterval.
	TargetPollInterval time.Duration
}

// taskCacheEntry is one cached snapshot of an in-flight task, together with
// the wall-clock time of the query that produced it. The pair of successive
// entries is what the speed computation consumes.
type taskCacheEntry struct {
	task      types.Task
	speed     float64
	queriedAt time.Time
}

// Manager is the single shared facade over the daemon. It is safe for
// concurrent use; the mutex guards only the two caches, never a remote call.
//
// The zero value is not usable — create instances with New.
type Manager struct {
	gw      rpc.Caller
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu              sync.Mutex
	uncompleteTasks map[string]*taskCacheEntry
	targets         map[string]types.Target

	listeners *listenerRegistry

	taskPoller   *Poller
	targetPoller *Poller

	// now is swapped in tests to drive the speed computation deterministically.
	now func() time.Time
}

// New creates a Manager over the given gateway. metrics may be nil.
func New(gw rpc.Caller, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Manager {
	taskInterval := cfg.TaskPollInterval
	if taskInterval <= 0 {
		taskInterval = DefaultPollInterval
	}
	targetInterval := cfg.TargetPollInterval
	if targetInterval <= 0 {
		targetInterval = DefaultPollInterval
	}

	log := logger.Named("taskmgr")
	mgr := &Manager{
		gw:              gw,
		logger:          log,
		metrics:         m,
		uncompleteTasks: make(map[string]*taskCacheEntry),
		targets:         make(map[string]types.Target),
		listeners:       newListenerRegistry(log, m),
		now:             time.Now,
	}

	mgr.taskPoller = NewPoller("tasks", taskInterval, mgr.refreshTasks, log, m)
	mgr.targetPoller = NewPoller("targets", targetInterval, mgr.refreshTargets, log, m)
	return mgr
}

// AddListener registers fn to receive every broadcast event and returns the
// handle needed to unregister it.
func (m *Manager) AddListener(fn Listener) ListenerHandle {
	return m.listeners.add(fn)
}

// RemoveListener unregisters a listener. Events already being dispatched may
// still reach it.
func (m *Manager) RemoveListener(h ListenerHandle) {
	m.listeners.remove(h)
}

// TaskPoller returns the task state refresh timer. Views call Start/Stop on
// it around their visible lifetime.
func (m *Manager) TaskPoller() *Poller { return m.taskPoller }

// TargetPoller returns the target state refresh timer.
func (m *Manager) TargetPoller() *Poller { return m.targetPoller }

// Shutdown releases both pollers regardless of outstanding subscribers.
// Called once on process teardown.
func (m *Manager) Shutdown() {
	m.taskPoller.forceShutdown()
	m.targetPoller.forceShutdown()
}

// -----------------------------------------------------------------------------
// Plans
// -----------------------------------------------------------------------------

// CreateBackupPlan forwards the spec to the daemon and returns the new plan
// id. On success the full created plan is fetched back and broadcast as
// CREATE_PLAN, so list views can insert the row without their own fetch.
func (m *Manager) CreateBackupPlan(ctx context.Context, spec types.PlanSpec) (string, error) {
	raw, err := m.gw.Call(ctx, rpc.MethodCreateBackupPlan, spec)
	if err != nil {
		return "", err
	}

	var result struct {
		PlanID string `json:"plan_id"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("taskmgr: decode create_backup_plan result: %w", err)
	}

	plan, err := m.GetBackupPlan(ctx, result.PlanID)
	if err != nil {
		// The plan exists; only the event payload fetch failed. Surface the
		// id anyway and let the next poll repair the view.
		m.logger.Warn("created plan but fetch-back failed",
			zap.String("plan_id", result.PlanID),
			zap.Error(err),
		)
		return result.PlanID, nil
	}

	m.listeners.emit(Event{Type: EventCreatePlan, Payload: plan})
	return result.PlanID, nil
}

// ListBackupPlans returns the ids of all plans.
func (m *Manager) ListBackupPlans(ctx context.Context) ([]string, error) {
	raw, err := m.gw.Call(ctx, rpc.MethodListBackupPlan, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		PlanIDs []string `json:"plan_ids"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("taskmgr: decode list_backup_plan result: %w", err)
	}
	return result.PlanIDs, nil
}

// GetBackupPlan returns one plan. Unknown ids return ErrNotFound.
func (m *Manager) GetBackupPlan(ctx context.Context, planID string) (*types.Plan, error) {
	raw, err := m.gw.Call(ctx, rpc.MethodGetBackupPlan, map[string]any{"plan_id": planID})
	if err != nil {
		return nil, mapNotFound(err)
	}

	var plan types.Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, fmt.Errorf("taskmgr: decode plan %s: %w", planID, err)
	}
	return &plan, nil
}

// UpdateBackupPlan persists a modified plan. The boolean is the daemon's
// logical verdict; false means the update was rejected (no event is emitted
// and the caller owns user-visible messaging).
func (m *Manager) UpdateBackupPlan(ctx context.Context, plan *types.Plan) (bool, error) {
	raw, err := m.gw.Call(ctx, rpc.MethodUpdateBackupPlan, plan)
	if err != nil {
		return false, mapNotFound(err)
	}

	ok, err := rpc.MutationOK(raw)
	if err != nil || !ok {
		return false, err
	}

	m.listeners.emit(Event{Type: EventUpdatePlan, Payload: plan})
	return true, nil
}

// RemoveBackupPlan deletes a plan.
func (m *Manager) RemoveBackupPlan(ctx context.Context, planID string) (bool, error) {
	raw, err := m.gw.Call(ctx, rpc.MethodRemoveBackupPlan, map[string]any{"plan_id": planID})
	if err != nil {
		return false, mapNotFound(err)
	}

	ok, err := rpc.MutationOK(raw)
	if err != nil || !ok {
		return false, err
	}

	m.listeners.emit(Event{Type: EventRemovePlan, Payload: PlanRemoved{PlanID: planID}})
	return true, nil
}

// -----------------------------------------------------------------------------
// Tasks
// -----------------------------------------------------------------------------

// CreateBackupTask starts a backup run for a plan. parentCheckpointID selects
// the base for an incremental run; empty means a full backup.
func (m *Manager) CreateBackupTask(ctx context.Context, planID, parentCheckpointID string) (*types.Task, error) {
	params := map[string]any{"plan_id": planID}
	if parentCheckpointID != "" {
		params["parent_checkpoint_id"] = parentCheckpointID
	}

	raw, err := m.gw.Call(ctx, rpc.MethodCreateBackupTask, params)
	if err != nil {
		return nil, mapNotFound(err)
	}

	var task types.Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, fmt.Errorf("taskmgr: decode create_backup_task result: %w", err)
	}

	m.cacheTask(&task, 0)
	m.listeners.emit(Event{Type: EventCreateTask, Payload: &task})
	return &task, nil
}

// CreateRestoreTask starts a restore of one checkpoint to targetURL.
// cleanFolder empties the destination folder before materializing content.
func (m *Manager) CreateRestoreTask(ctx context.Context, planID, checkpointID, targetURL string, cleanFolder bool) (*types.Task, error) {
	raw, err := m.gw.Call(ctx, rpc.MethodCreateRestoreTask, map[string]any{
		"plan_id":       planID,
		"checkpoint_id": checkpointID,
		"restore_url":   targetURL,
		"clean_folder":  cleanFolder,
	})
	if err != nil {
		return nil, mapNotFound(err)
	}

	var task types.Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, fmt.Errorf("taskmgr: decode create_restore_task result: %w", err)
	}

	m.cacheTask(&task, 0)
	m.listeners.emit(Event{Type: EventCreateTask, Payload: &task})
	return &task, nil
}

// ListBackupTasks returns one page of task ids matching the filter, plus the
// post-filter total. Ordering is a priority list evaluated left to right.
func (m *Manager) ListBackupTasks(ctx context.Context, filter TaskFilter, offset, limit int, orderBy []TaskOrder) (*TaskPage, error) {
	raw, err := m.gw.Call(ctx, rpc.MethodListBackupTask, ListTasksRequest{
		Filter:  filter,
		Offset:  offset,
		Limit:   limit,
		OrderBy: orderBy,
	})
	if err != nil {
		return nil, err
	}

	var page TaskPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("taskmgr: decode list_backup_task result: %w", err)
	}
	return &page, nil
}

// GetTaskInfo fetches the current snapshot of one task and reconciles it
// against the cache:
//
//   - DONE while cached as in-flight: the entry is evicted and COMPLETE_TASK
//     is broadcast once.
//   - FAILED while cached in any other state: the entry is updated and
//     FAIL_TASK is broadcast once; repeat polls stay silent.
//   - otherwise the smoothed speed is recomputed from the completed-size
//     delta and the entry is refreshed; cached in-flight tasks additionally
//     broadcast UPDATE_TASK so progress views stay live between page loads.
func (m *Manager) GetTaskInfo(ctx context.Context, taskID string) (*types.Task, error) {
	raw, err := m.gw.Call(ctx, rpc.MethodGetTaskInfo, map[string]any{"taskid": taskID})
	if err != nil {
		return nil, mapNotFound(err)
	}

	var task types.Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, fmt.Errorf("taskmgr: decode task %s: %w", taskID, err)
	}
	if !task.State.Valid() {
		return nil, fmt.Errorf("taskmgr: task %s: unknown state %q", taskID, task.State)
	}

	queried := m.now()

	m.mu.Lock()
	prev, cached := m.uncompleteTasks[taskID]

	var emitType EventType
	switch {
	case task.State == types.TaskStateDone:
		task.Speed = 0
		if cached && prev.task.State != types.TaskStateDone {
			delete(m.uncompleteTasks, taskID)
			emitType = EventCompleteTask
		}

	case task.State == types.TaskStateFailed:
		task.Speed = 0
		if cached && prev.task.State != types.TaskStateFailed {
			emitType = EventFailTask
		}
		// Cache the failed snapshot either way so later polls see the
		// transition as already observed.
		m.uncompleteTasks[taskID] = &taskCacheEntry{task: task, queriedAt: queried}

	default:
		speed := 0.0
		if cached {
			speed = smoothSpeed(prev.speed, prev.task.CompletedSize, task.CompletedSize, queried.Sub(prev.queriedAt))
			emitType = EventUpdateTask
		}
		task.Speed = speed
		m.uncompleteTasks[taskID] = &taskCacheEntry{task: task, speed: speed, queriedAt: queried}
	}
	m.mu.Unlock()

	if emitType != "" {
		m.listeners.emit(Event{Type: emitType, Payload: &task})
	}
	return &task, nil
}

// PauseBackupTask suspends a task. Tasks not currently RUNNING or PENDING
// cannot be paused; the call is then a silent no-op reported as success,
// because from the operator's point of view the desired outcome ("not
// running") already holds.
func (m *Manager) PauseBackupTask(ctx context.Context, taskID string) (bool, error) {
	task, err := m.GetTaskInfo(ctx, taskID)
	if err != nil {
		return false, err
	}

	if task.State != types.TaskStateRunning && task.State != types.TaskStatePending {
		return true, nil
	}

	raw, err := m.gw.Call(ctx, rpc.MethodPauseBackupTask, map[string]any{"taskid": taskID})
	if err != nil {
		return false, mapNotFound(err)
	}

	ok, err := rpc.MutationOK(raw)
	if err != nil || !ok {
		return false, err
	}

	task.State = types.TaskStatePaused
	m.cacheTask(task, 0)
	m.listeners.emit(Event{Type: EventPauseTask, Payload: task})
	return true, nil
}

// ResumeBackupTask resumes a PAUSED task or retries a FAILED one. Any other
// state is a silent no-op reported as success.
func (m *Manager) ResumeBackupTask(ctx context.Context, taskID string) (bool, error) {
	task, err := m.GetTaskInfo(ctx, taskID)
	if err != nil {
		return false, err
	}

	if task.State != types.TaskStatePaused && task.State != types.TaskStateFailed {
		return true, nil
	}

	raw, err := m.gw.Call(ctx, rpc.MethodResumeBackupTask, map[string]any{"taskid": taskID})
	if err != nil {
		return false, mapNotFound(err)
	}

	ok, err := rpc.MutationOK(raw)
	if err != nil || !ok {
		return false, err
	}

	task.State = types.TaskStateRunning
	m.cacheTask(task, 0)
	m.listeners.emit(Event{Type: EventResumeTask, Payload: task})
	return true, nil
}

// RemoveBackupTask deletes a task record.
func (m *Manager) RemoveBackupTask(ctx context.Context, taskID string) (bool, error) {
	raw, err := m.gw.Call(ctx, rpc.MethodRemoveBackupTask, map[string]any{"taskid": taskID})
	if err != nil {
		return false, mapNotFound(err)
	}

	ok, err := rpc.MutationOK(raw)
	if err != nil || !ok {
		return false, err
	}

	m.mu.Lock()
	delete(m.uncompleteTasks, taskID)
	m.mu.Unlock()

	m.listeners.emit(Event{Type: EventRemoveTask, Payload: TaskRemoved{TaskID: taskID}})
	return true, nil
}

// ResumeLastWorkingTask resumes the most recently created PAUSED task, if
// one exists. Used by the "continue where I left off" dashboard action.
func (m *Manager) ResumeLastWorkingTask(ctx context.Context) error {
	page, err := m.ListBackupTasks(ctx,
		TaskFilter{States: []types.TaskState{types.TaskStatePaused}},
		0, 1,
		[]TaskOrder{{Key: OrderByCreateTime, Direction: OrderDesc}},
	)
	if err != nil {
		return err
	}
	if len(page.TaskIDs) == 0 {
		return nil
	}

	_, err = m.ResumeBackupTask(ctx, page.TaskIDs[0])
	return err
}

// PauseAllTasks pauses every RUNNING and PENDING task. Each pause is
// independent: a failure is logged and the remaining tasks are still
// attempted, with no rollback of those already paused.
func (m *Manager) PauseAllTasks(ctx context.Context) error {
	page, err := m.ListBackupTasks(ctx,
		TaskFilter{States: []types.TaskState{types.TaskStateRunning, types.TaskStatePending}},
		0, 0, nil,
	)
	if err != nil {
		return err
	}

	for _, id := range page.TaskIDs {
		if _, err := m.PauseBackupTask(ctx, id); err != nil {
			m.logger.Warn("pause-all: task pause failed",
				zap.String("taskid", id),
				zap.Error(err),
			)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Targets
// -----------------------------------------------------------------------------

// TargetSpec is the payload for target creation.
type TargetSpec struct {
	Type        types.TargetType `json:"target_type"`
	URL         string           `json:"url"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
}

// CreateBackupTarget registers a new storage destination and broadcasts the
// full created target as CREATE_TARGET.
func (m *Manager) CreateBackupTarget(ctx context.Context, spec TargetSpec) (string, error) {
	raw, err := m.gw.Call(ctx, rpc.MethodCreateBackupTarget, spec)
	if err != nil {
		return "", err
	}

	var result struct {
		TargetID string `json:"target_id"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("taskmgr: decode create_backup_target result: %w", err)
	}

	target, err := m.GetBackupTarget(ctx, result.TargetID)
	if err != nil {
		m.logger.Warn("created target but fetch-back failed",
			zap.String("target_id", result.TargetID),
			zap.Error(err),
		)
		return result.TargetID, nil
	}

	m.listeners.emit(Event{Type: EventCreateTarget, Payload: target})
	return result.TargetID, nil
}

// ListBackupTargets returns the ids of all registered targets.
func (m *Manager) ListBackupTargets(ctx context.Context) ([]string, error) {
	raw, err := m.gw.Call(ctx, rpc.MethodListBackupTarget, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		TargetIDs []string `json:"target_ids"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("taskmgr: decode list_backup_target result: %w", err)
	}
	return result.TargetIDs, nil
}

// GetBackupTarget fetches one target and diffs its connectivity state
// against the cache. A changed state broadcasts CHANGE_TARGET_STATE carrying
// both the old and the new value; an unchanged state broadcasts nothing.
// This is the only place in the console where a state transition is observed
// rather than commanded.
func (m *Manager) GetBackupTarget(ctx context.Context, targetID string) (*types.Target, error) {
	raw, err := m.gw.Call(ctx, rpc.MethodGetBackupTarget, map[string]any{"target_id": targetID})
	if err != nil {
		return nil, mapNotFound(err)
	}

	var target types.Target
	if err := json.Unmarshal(raw, &target); err != nil {
		return nil, fmt.Errorf("taskmgr: decode target %s: %w", targetID, err)
	}
	if err := target.Validate(); err != nil {
		return nil, fmt.Errorf("taskmgr: %w", err)
	}

	m.mu.Lock()
	prev, cached := m.targets[targetID]
	m.targets[targetID] = target
	m.mu.Unlock()

	if cached && prev.State != target.State {
		m.listeners.emit(Event{Type: EventChangeTargetState, Payload: TargetStateChange{
			TargetID: targetID,
			OldState: prev.State,
			NewState: target.State,
		}})
	}
	return &target, nil
}

// UpdateBackupTarget persists a modified target.
func (m *Manager) UpdateBackupTarget(ctx context.Context, target *types.Target) (bool, error) {
	raw, err := m.gw.Call(ctx, rpc.MethodUpdateBackupTarget, target)
	if err != nil {
		return false, mapNotFound(err)
	}

	ok, err := rpc.MutationOK(raw)
	if err != nil || !ok {
		return false, err
	}

	m.listeners.emit(Event{Type: EventUpdateTarget, Payload: target})
	return true, nil
}

// RemoveBackupTarget deletes a target and drops it from the state cache.
func (m *Manager) RemoveBackupTarget(ctx context.Context, targetID string) (bool, error) {
	raw, err := m.gw.Call(ctx, rpc.MethodRemoveBackupTarget, map[string]any{"target_id": targetID})
	if err != nil {
		return false, mapNotFound(err)
	}

	ok, err := rpc.MutationOK(raw)
	if err != nil || !ok {
		return false, err
	}

	m.mu.Lock()
	delete(m.targets, targetID)
	m.mu.Unlock()

	m.listeners.emit(Event{Type: EventRemoveTarget, Payload: TargetRemoved{TargetID: targetID}})
	return true, nil
}

// -----------------------------------------------------------------------------
// Read-only passthroughs
// -----------------------------------------------------------------------------

// ListDirChildren lists the children of a directory on the machine the
// daemon runs on. Used by the plan wizard's source picker.
func (m *Manager) ListDirChildren(ctx context.Context, path string) ([]types.DirEntry, error) {
	raw, err := m.gw.Call(ctx, rpc.MethodListDirectoryChildren, map[string]any{"path": path})
	if err != nil {
		return nil, mapNotFound(err)
	}

	var result struct {
		Children []types.DirEntry `json:"children"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("taskmgr: decode list_directory_children result: %w", err)
	}
	return result.Children, nil
}

// ValidatePath reports whether a path exists and is usable on the daemon's
// machine.
func (m *Manager) ValidatePath(ctx context.Context, path string) (bool, error) {
	raw, err := m.gw.Call(ctx, rpc.MethodValidatePath, map[string]any{"path": path})
	if err != nil {
		return false, err
	}

	var result struct {
		Valid bool `json:"valid"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return false, fmt.Errorf("taskmgr: decode validate_path result: %w", err)
	}
	return result.Valid, nil
}

// ListFilesInTask returns the per-file drill-down of one task.
func (m *Manager) ListFilesInTask(ctx context.Context, taskID string) ([]types.TaskFile, error) {
	raw, err := m.gw.Call(ctx, rpc.MethodListFilesInTask, map[string]any{"taskid": taskID})
	if err != nil {
		return nil, mapNotFound(err)
	}

	var result struct {
		Files []types.TaskFile `json:"files"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("taskmgr: decode list_files_in_task result: %w", err)
	}
	return result.Files, nil
}

// ListChunksInFile returns the chunk layout of one file inside a task.
func (m *Manager) ListChunksInFile(ctx context.Context, taskID, path string) ([]types.FileChunk, error) {
	raw, err := m.gw.Call(ctx, rpc.MethodListChunksInFile, map[string]any{
		"taskid": taskID,
		"path":   path,
	})
	if err != nil {
		return nil, mapNotFound(err)
	}

	var result struct {
		Chunks []types.FileChunk `json:"chunks"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("taskmgr: decode list_chunks_in_file result: %w", err)
	}
	return result.Chunks, nil
}

// ListLogs returns one page of the activity log, newest first.
func (m *Manager) ListLogs(ctx context.Context, filter types.LogFilter, offset, limit int) (*types.LogPage, error) {
	raw, err := m.gw.Call(ctx, rpc.MethodListLogs, map[string]any{
		"filter": filter,
		"offset": offset,
		"limit":  limit,
	})
	if err != nil {
		return nil, err
	}

	var page types.LogPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("taskmgr: decode list_logs result: %w", err)
	}
	return &page, nil
}

// ConsumeSizeSummary returns aggregate storage consumption for the usage
// dashboard card.
func (m *Manager) ConsumeSizeSummary(ctx context.Context) (*types.SizeSummary, error) {
	raw, err := m.gw.Call(ctx, rpc.MethodConsumeSizeSummary, nil)
	if err != nil {
		return nil, err
	}

	var s types.SizeSummary
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("taskmgr: decode consume_size_summary result: %w", err)
	}
	return &s, nil
}

// StatisticsSummary returns aggregate task outcome figures for the status
// dashboard.
func (m *Manager) StatisticsSummary(ctx context.Context) (*types.Statistics, error) {
	raw, err := m.gw.Call(ctx, rpc.MethodStatisticsSummary, nil)
	if err != nil {
		return nil, err
	}

	var s types.Statistics
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("taskmgr: decode statistics_summary result: %w", err)
	}
	return &s, nil
}

// -----------------------------------------------------------------------------
// Refresh passes (poller ticks)
// -----------------------------------------------------------------------------

// refreshTasks is one full task refresh pass: list every non-terminal task,
// then fetch each one so the reconcile in GetTaskInfo runs. Errors are
// logged, never propagated; the next tick retries from scratch.
func (m *Manager) refreshTasks(ctx context.Context) {
	page, err := m.ListBackupTasks(ctx, TaskFilter{
		States: []types.TaskState{types.TaskStatePending, types.TaskStateRunning, types.TaskStatePaused},
	}, 0, 0, nil)
	if err != nil {
		m.logger.Warn("task refresh pass: list failed", zap.Error(err))
		return
	}

	for _, id := range page.TaskIDs {
		if ctx.Err() != nil {
			return
		}
		if _, err := m.GetTaskInfo(ctx, id); err != nil {
			m.logger.Warn("task refresh pass: fetch failed",
				zap.String("taskid", id),
				zap.Error(err),
			)
		}
	}
}

// refreshTargets is one full target refresh pass.
func (m *Manager) refreshTargets(ctx context.Context) {
	ids, err := m.ListBackupTargets(ctx)
	if err != nil {
		m.logger.Warn("target refresh pass: list failed", zap.Error(err))
		return
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		if _, err := m.GetBackupTarget(ctx, id); err != nil {
			m.logger.Warn("target refresh pass: fetch failed",
				zap.String("target_id", id),
				zap.Error(err),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Internal helpers
// -----------------------------------------------------------------------------

// cacheTask stores or refreshes a task's cache entry with the given speed.
func (m *Manager) cacheTask(task *types.Task, speed float64) {
	m.mu.Lock()
	m.uncompleteTasks[task.TaskID] = &taskCacheEntry{
		task:      *task,
		speed:     speed,
		queriedAt: m.now(),
	}
	m.mu.Unlock()
}

// smoothSpeed folds the newest completed-size delta into the running average.
// The instantaneous sample is bytes per second over the elapsed window,
// clamped at zero because a daemon-side counter reset must not produce a
// negative rate. A non-positive window keeps the previous value: two fetches
// landing on the same millisecond carry no rate information.
func smoothSpeed(prevSpeed float64, prevSize, nowSize int64, elapsed time.Duration) float64 {
	ms := elapsed.Milliseconds()
	if ms <= 0 {
		return prevSpeed
	}

	instant := float64(nowSize-prevSize) * 1000 / float64(ms)
	if instant < 0 {
		instant = 0
	}
	return speedKeepWeight*prevSpeed + speedSampleWeight*instant
}
