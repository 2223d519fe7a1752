package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/keepdeck-io/keepdeck/internal/taskmgr"
	"github.com/keepdeck-io/keepdeck/internal/types"
)

// avgFileSize drives the synthetic item counts and the per-task file list.
const avgFileSize int64 = 8 << 20

// chunkSize is the fixed chunk granularity of the drill-down views.
const chunkSize int64 = 4 << 20

// -----------------------------------------------------------------------------
// Creation
// -----------------------------------------------------------------------------

func (b *Backend) createBackupTask(_ context.Context, raw json.RawMessage) (any, error) {
	var params struct {
		PlanID             string `json:"plan_id"`
		ParentCheckpointID string `json:"parent_checkpoint_id"`
	}
	if err := decode(raw, &params); err != nil {
		return nil, err
	}

	plan, err := b.planByID(params.PlanID)
	if err != nil {
		return nil, err
	}

	if params.ParentCheckpointID != "" {
		if err := b.requireCheckpoint(plan.PlanID, params.ParentCheckpointID); err != nil {
			return nil, err
		}
	}

	// The checkpoint identity is minted up front so an incremental run can
	// reference it even before this one finishes. The index never moves back.
	plan.LastCheckpointIndex++
	checkpoint := fmt.Sprintf("cp-%s-%d", plan.PlanID, plan.LastCheckpointIndex)
	if err := b.db.Save(plan).Error; err != nil {
		return nil, err
	}

	size := b.cfg.TaskSize
	if params.ParentCheckpointID != "" {
		// Incremental runs move a fraction of the plan's data.
		size /= 8
	}

	now := nowMilli(b.now)
	row := taskRow{
		TaskID:                "task-" + uuid.NewString(),
		Type:                  string(types.TaskTypeBackup),
		OwnerPlanID:           plan.PlanID,
		CheckpointID:          checkpoint,
		State:                 string(types.TaskStatePending),
		TotalSize:             size,
		ItemCount:             itemCountFor(size),
		WaitTransferItemCount: itemCountFor(size),
		CreateTime:            now,
		UpdateTime:            now,
	}
	if err := b.db.Create(&row).Error; err != nil {
		return nil, err
	}

	b.appendLog(types.LogCreateTask, types.LogSubject{Kind: types.SubjectTask, TaskID: row.TaskID},
		types.TaskRunLogParams{CheckpointID: checkpoint, TaskType: types.TaskTypeBackup, TotalSize: size})

	return taskFromRow(&row), nil
}

func (b *Backend) createRestoreTask(_ context.Context, raw json.RawMessage) (any, error) {
	var params struct {
		PlanID       string `json:"plan_id"`
		CheckpointID string `json:"checkpoint_id"`
		RestoreURL   string `json:"restore_url"`
		CleanFolder  bool   `json:"clean_folder"`
	}
	if err := decode(raw, &params); err != nil {
		return nil, err
	}
	if params.RestoreURL == "" {
		return nil, invalidParams("restore_url is required")
	}

	plan, err := b.planByID(params.PlanID)
	if err != nil {
		return nil, err
	}
	if err := b.requireCheckpoint(plan.PlanID, params.CheckpointID); err != nil {
		return nil, err
	}

	// Restore moves the checkpoint's recorded size back out.
	var source taskRow
	if err := b.db.First(&source, "checkpoint_id = ? AND state = ?", params.CheckpointID, string(types.TaskStateDone)).Error; err != nil {
		return nil, err
	}

	now := nowMilli(b.now)
	row := taskRow{
		TaskID:                "task-" + uuid.NewString(),
		Type:                  string(types.TaskTypeRestore),
		OwnerPlanID:           plan.PlanID,
		CheckpointID:          params.CheckpointID,
		State:                 string(types.TaskStatePending),
		TotalSize:             source.TotalSize,
		ItemCount:             source.ItemCount,
		WaitTransferItemCount: source.ItemCount,
		CreateTime:            now,
		UpdateTime:            now,
		RestoreURL:            params.RestoreURL,
		CleanFolder:           params.CleanFolder,
	}
	if err := b.db.Create(&row).Error; err != nil {
		return nil, err
	}

	b.appendLog(types.LogCreateTask, types.LogSubject{Kind: types.SubjectTask, TaskID: row.TaskID},
		types.TaskRunLogParams{CheckpointID: params.CheckpointID, TaskType: types.TaskTypeRestore, TotalSize: row.TotalSize})

	return taskFromRow(&row), nil
}

// requireCheckpoint verifies the checkpoint was produced by a completed
// backup run of the given plan.
func (b *Backend) requireCheckpoint(planID, checkpointID string) error {
	var n int64
	err := b.db.Model(&taskRow{}).
		Where("owner_plan_id = ? AND checkpoint_id = ? AND type = ? AND state = ?",
			planID, checkpointID, string(types.TaskTypeBackup), string(types.TaskStateDone)).
		Count(&n).Error
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("checkpoint", checkpointID)
	}
	return nil
}

func itemCountFor(size int64) int64 {
	n := size / avgFileSize
	if n < 1 {
		n = 1
	}
	return n
}

// -----------------------------------------------------------------------------
// Progress simulation
// -----------------------------------------------------------------------------

// advance moves one task's simulated progress up to the current instant.
// PENDING tasks start running once StartDelay has passed; RUNNING tasks gain
// TransferRate bytes per second and complete when the total is reached.
// Returns true when the row changed and was persisted.
func (b *Backend) advance(row *taskRow) (bool, error) {
	now := nowMilli(b.now)

	if types.TaskState(row.State) == types.TaskStatePending {
		started := row.CreateTime + b.cfg.StartDelay.Milliseconds()
		if now < started {
			return false, nil
		}
		// Accrual below runs from the instant the transfer actually started,
		// not from the instant it was observed.
		row.State = string(types.TaskStateRunning)
		row.UpdateTime = started
	}

	switch types.TaskState(row.State) {
	case types.TaskStateRunning:
		elapsed := now - row.UpdateTime
		if elapsed <= 0 {
			return true, b.db.Save(row).Error
		}
		row.CompletedSize += b.cfg.TransferRate * elapsed / 1000
		if row.CompletedSize > row.TotalSize {
			row.CompletedSize = row.TotalSize
		}
		if row.TotalSize > 0 {
			row.CompletedItemCount = row.ItemCount * row.CompletedSize / row.TotalSize
		}
		row.WaitTransferItemCount = row.ItemCount - row.CompletedItemCount
		row.UpdateTime = now

		if row.CompletedSize >= row.TotalSize {
			return true, b.complete(row, now)
		}
		return true, b.db.Save(row).Error

	default:
		return false, nil
	}
}

// complete finishes a task: terminal state, plan totals, target usage, and
// the run_success log record.
func (b *Backend) complete(row *taskRow, now int64) error {
	row.State = string(types.TaskStateDone)
	row.CompletedSize = row.TotalSize
	row.CompletedItemCount = row.ItemCount
	row.WaitTransferItemCount = 0
	row.CompleteTime = now
	row.UpdateTime = now
	if err := b.db.Save(row).Error; err != nil {
		return err
	}

	if types.TaskType(row.Type) == types.TaskTypeBackup {
		var plan planRow
		if err := b.db.First(&plan, "plan_id = ?", row.OwnerPlanID).Error; err == nil {
			plan.TotalBackup++
			plan.TotalSize += row.TotalSize
			plan.LastRunTime = now
			plan.UpdateTime = now
			if err := b.db.Save(&plan).Error; err != nil {
				return err
			}

			var target targetRow
			if err := b.db.First(&target, "target_id = ?", plan.TargetID).Error; err == nil {
				target.Used += row.TotalSize
				target.UpdateTime = now
				if err := b.db.Save(&target).Error; err != nil {
					return err
				}
			}
		}
	}

	b.appendLog(types.LogRunSuccess, types.LogSubject{Kind: types.SubjectTask, TaskID: row.TaskID},
		types.TaskRunLogParams{CheckpointID: row.CheckpointID, TaskType: types.TaskType(row.Type), TotalSize: row.TotalSize})
	return nil
}

// advanceAll brings every non-terminal task up to date, so listings and
// aggregates observe the same clock as single-task reads.
func (b *Backend) advanceAll() error {
	var rows []taskRow
	err := b.db.Where("state IN ?", []string{
		string(types.TaskStatePending),
		string(types.TaskStateRunning),
	}).Find(&rows).Error
	if err != nil {
		return err
	}
	for i := range rows {
		if _, err := b.advance(&rows[i]); err != nil {
			return err
		}
	}
	return nil
}

// FailTask flips a task to FAILED out of band, for demos and tests that need
// to exercise the console's failure path.
func (b *Backend) FailTask(taskID, message string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	row, err := b.taskByID(taskID)
	if err != nil {
		return err
	}
	if types.TaskState(row.State).Terminal() {
		return fmt.Errorf("simulator: task %s already terminal", taskID)
	}

	now := nowMilli(b.now)
	row.State = string(types.TaskStateFailed)
	row.Error = message
	row.UpdateTime = now
	if err := b.db.Save(row).Error; err != nil {
		return err
	}

	b.appendLog(types.LogRunFail, types.LogSubject{Kind: types.SubjectTask, TaskID: row.TaskID},
		types.TaskFailLogParams{CheckpointID: row.CheckpointID, Error: message, Transferred: row.CompletedSize})
	return nil
}

// -----------------------------------------------------------------------------
// Reads and mutations
// -----------------------------------------------------------------------------

func (b *Backend) getTaskInfo(_ context.Context, raw json.RawMessage) (any, error) {
	var params struct {
		TaskID string `json:"taskid"`
	}
	if err := decode(raw, &params); err != nil {
		return nil, err
	}

	row, err := b.taskByID(params.TaskID)
	if err != nil {
		return nil, err
	}
	if _, err := b.advance(row); err != nil {
		return nil, err
	}
	return taskFromRow(row), nil
}

func (b *Backend) pauseBackupTask(_ context.Context, raw json.RawMessage) (any, error) {
	var params struct {
		TaskID string `json:"taskid"`
	}
	if err := decode(raw, &params); err != nil {
		return nil, err
	}

	row, err := b.taskByID(params.TaskID)
	if err != nil {
		return nil, err
	}
	if _, err := b.advance(row); err != nil {
		return nil, err
	}

	state := types.TaskState(row.State)
	if state != types.TaskStateRunning && state != types.TaskStatePending {
		return ignored, nil
	}

	row.State = string(types.TaskStatePaused)
	row.UpdateTime = nowMilli(b.now)
	if err := b.db.Save(row).Error; err != nil {
		return nil, err
	}

	b.appendLog(types.LogPauseTask, types.LogSubject{Kind: types.SubjectTask, TaskID: row.TaskID},
		types.TaskRunLogParams{CheckpointID: row.CheckpointID, TaskType: types.TaskType(row.Type), TotalSize: row.TotalSize})
	return success, nil
}

func (b *Backend) resumeBackupTask(_ context.Context, raw json.RawMessage) (any, error) {
	var params struct {
		TaskID string `json:"taskid"`
	}
	if err := decode(raw, &params); err != nil {
		return nil, err
	}

	row, err := b.taskByID(params.TaskID)
	if err != nil {
		return nil, err
	}

	state := types.TaskState(row.State)
	if state != types.TaskStatePaused && state != types.TaskStateFailed {
		return ignored, nil
	}

	row.State = string(types.TaskStateRunning)
	row.Error = ""
	row.UpdateTime = nowMilli(b.now)
	if err := b.db.Save(row).Error; err != nil {
		return nil, err
	}

	b.appendLog(types.LogResumeTask, types.LogSubject{Kind: types.SubjectTask, TaskID: row.TaskID},
		types.TaskRunLogParams{CheckpointID: row.CheckpointID, TaskType: types.TaskType(row.Type), TotalSize: row.TotalSize})
	return success, nil
}

func (b *Backend) removeBackupTask(_ context.Context, raw json.RawMessage) (any, error) {
	var params struct {
		TaskID string `json:"taskid"`
	}
	if err := decode(raw, &params); err != nil {
		return nil, err
	}

	row, err := b.taskByID(params.TaskID)
	if err != nil {
		return nil, err
	}
	if _, err := b.advance(row); err != nil {
		return nil, err
	}

	state := types.TaskState(row.State)
	if state == types.TaskStatePending || state == types.TaskStateRunning {
		return ignored, nil
	}

	if err := b.db.Delete(&taskRow{}, "task_id = ?", row.TaskID).Error; err != nil {
		return nil, err
	}
	return success, nil
}

func (b *Backend) taskByID(id string) (*taskRow, error) {
	if id == "" {
		return nil, invalidParams("taskid is required")
	}
	var row taskRow
	if err := b.db.First(&row, "task_id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("task", id)
		}
		return nil, err
	}
	return &row, nil
}

// -----------------------------------------------------------------------------
// Listing
// -----------------------------------------------------------------------------

func (b *Backend) listBackupTask(_ context.Context, raw json.RawMessage) (any, error) {
	var req taskmgr.ListTasksRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}

	if err := b.advanceAll(); err != nil {
		return nil, err
	}

	var rows []taskRow
	if err := b.db.Find(&rows).Error; err != nil {
		return nil, err
	}

	titles, err := b.planTitles()
	if err != nil {
		return nil, err
	}

	matched := rows[:0]
	for i := range rows {
		if matchesFilter(&rows[i], req.Filter, titles) {
			matched = append(matched, rows[i])
		}
	}

	orderBy := req.OrderBy
	if len(orderBy) == 0 {
		orderBy = []taskmgr.TaskOrder{{Key: taskmgr.OrderByCreateTime, Direction: taskmgr.OrderDesc}}
	}
	sortTasks(matched, orderBy)

	total := int64(len(matched))
	if req.Offset > 0 {
		if req.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[req.Offset:]
		}
	}
	if req.Limit > 0 && req.Limit < len(matched) {
		matched = matched[:req.Limit]
	}

	ids := make([]string, len(matched))
	for i := range matched {
		ids[i] = matched[i].TaskID
	}
	return taskmgr.TaskPage{TaskIDs: ids, Total: total}, nil
}

func (b *Backend) planTitles() (map[string]string, error) {
	var plans []planRow
	if err := b.db.Select("plan_id", "title").Find(&plans).Error; err != nil {
		return nil, err
	}
	titles := make(map[string]string, len(plans))
	for i := range plans {
		titles[plans[i].PlanID] = plans[i].Title
	}
	return titles, nil
}

// matchesFilter applies the conjunction of filter dimensions; within one
// dimension the listed values are alternatives.
func matchesFilter(row *taskRow, f taskmgr.TaskFilter, titles map[string]string) bool {
	if len(f.States) > 0 && !containsString(f.States, types.TaskState(row.State)) {
		return false
	}
	if len(f.Types) > 0 && !containsString(f.Types, types.TaskType(row.Type)) {
		return false
	}
	if len(f.PlanIDs) > 0 {
		hit := false
		for _, id := range f.PlanIDs {
			if id == row.OwnerPlanID {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if len(f.PlanTitleSubstrings) > 0 {
		title := strings.ToLower(titles[row.OwnerPlanID])
		hit := false
		for _, sub := range f.PlanTitleSubstrings {
			if strings.Contains(title, strings.ToLower(sub)) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

func containsString[T ~string](haystack []T, needle T) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

// sortTasks orders rows by the priority list, first non-zero comparison
// winning. complete_time has the fixed rule that tasks without a completion
// sort after completed ones regardless of direction; ties fall through to the
// next key, and task id keeps the result deterministic.
func sortTasks(rows []taskRow, orderBy []taskmgr.TaskOrder) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, z := &rows[i], &rows[j]
		for _, ord := range orderBy {
			if c := compareTasks(a, z, ord); c != 0 {
				return c < 0
			}
		}
		return a.TaskID < z.TaskID
	})
}

func compareTasks(a, z *taskRow, ord taskmgr.TaskOrder) int {
	var av, zv int64
	switch ord.Key {
	case taskmgr.OrderByCreateTime:
		av, zv = a.CreateTime, z.CreateTime
	case taskmgr.OrderByUpdateTime:
		av, zv = a.UpdateTime, z.UpdateTime
	case taskmgr.OrderByCompleteTime:
		aDone := types.TaskState(a.State) == types.TaskStateDone
		zDone := types.TaskState(z.State) == types.TaskStateDone
		if aDone != zDone {
			if aDone {
				return -1
			}
			return 1
		}
		if !aDone {
			return 0
		}
		av, zv = a.CompleteTime, z.CompleteTime
	default:
		return 0
	}

	if av == zv {
		return 0
	}
	less := av < zv
	if ord.Direction == taskmgr.OrderDesc {
		less = !less
	}
	if less {
		return -1
	}
	return 1
}

// -----------------------------------------------------------------------------
// Drill-down
// -----------------------------------------------------------------------------

func (b *Backend) listFilesInTask(_ context.Context, raw json.RawMessage) (any, error) {
	var params struct {
		TaskID string `json:"taskid"`
	}
	if err := decode(raw, &params); err != nil {
		return nil, err
	}

	row, err := b.taskByID(params.TaskID)
	if err != nil {
		return nil, err
	}
	if _, err := b.advance(row); err != nil {
		return nil, err
	}
	return map[string]any{"files": syntheticFiles(row)}, nil
}

func (b *Backend) listChunksInFile(_ context.Context, raw json.RawMessage) (any, error) {
	var params struct {
		TaskID string `json:"taskid"`
		Path   string `json:"path"`
	}
	if err := decode(raw, &params); err != nil {
		return nil, err
	}

	row, err := b.taskByID(params.TaskID)
	if err != nil {
		return nil, err
	}
	if _, err := b.advance(row); err != nil {
		return nil, err
	}

	for _, f := range syntheticFiles(row) {
		if f.Path == params.Path {
			return map[string]any{"chunks": syntheticChunks(row.TaskID, f)}, nil
		}
	}
	return nil, notFound("file", params.Path)
}

// syntheticFiles derives a deterministic file list from the task identity.
// Completed bytes are attributed to files front to back, which matches how
// the daemon streams a transfer manifest.
func syntheticFiles(row *taskRow) []types.TaskFile {
	count := row.ItemCount
	if count > 32 {
		count = 32
	}
	if count < 1 {
		count = 1
	}

	files := make([]types.TaskFile, 0, count)
	per := row.TotalSize / count
	remaining := row.CompletedSize

	h := fnv.New64a()
	h.Write([]byte(row.TaskID))
	seed := h.Sum64()

	for i := int64(0); i < count; i++ {
		size := per
		if i == count-1 {
			size = row.TotalSize - per*(count-1)
		}
		done := remaining
		if done > size {
			done = size
		}
		remaining -= done

		files = append(files, types.TaskFile{
			Path:          fmt.Sprintf("/data/%016x/file-%03d.bin", seed, i),
			Size:          size,
			CompletedSize: done,
			ChunkCount:    int((size + chunkSize - 1) / chunkSize),
		})
	}
	return files
}

func syntheticChunks(taskID string, f types.TaskFile) []types.FileChunk {
	chunks := make([]types.FileChunk, 0, f.ChunkCount)
	for i := 0; i < f.ChunkCount; i++ {
		offset := int64(i) * chunkSize
		size := chunkSize
		if offset+size > f.Size {
			size = f.Size - offset
		}

		h := fnv.New64a()
		fmt.Fprintf(h, "%s:%s:%d", taskID, f.Path, i)

		chunks = append(chunks, types.FileChunk{
			ChunkID:     fmt.Sprintf("chunk-%016x", h.Sum64()),
			Offset:      offset,
			Size:        size,
			Transferred: offset+size <= f.CompletedSize,
			Hash:        fmt.Sprintf("%016x", h.Sum64()),
		})
	}
	return chunks
}
