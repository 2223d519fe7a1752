package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/keepdeck-io/keepdeck/internal/rpc"
	"github.com/keepdeck-io/keepdeck/internal/taskmgr"
	"github.com/keepdeck-io/keepdeck/internal/types"
)

// testClock is a hand-driven clock injected into the backend so progress
// accrual is deterministic.
type testClock struct {
	t time.Time
}

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBackend(t *testing.T, cfg Config) (*Backend, *testClock) {
	t.Helper()
	b, err := New(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clock := &testClock{t: time.UnixMilli(1_700_000_000_000)}
	b.now = clock.Now
	return b, clock
}

// call invokes one simulated method and decodes the result into out.
func call(t *testing.T, b *Backend, method string, params, out any) {
	t.Helper()
	raw, err := b.Call(context.Background(), method, params)
	if err != nil {
		t.Fatalf("%s: %v", method, err)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("%s: decode result: %v", method, err)
		}
	}
}

// callVerdict invokes a mutating method and returns the daemon's verdict.
func callVerdict(t *testing.T, b *Backend, method string, params any) bool {
	t.Helper()
	raw, err := b.Call(context.Background(), method, params)
	if err != nil {
		t.Fatalf("%s: %v", method, err)
	}
	ok, err := rpc.MutationOK(raw)
	if err != nil {
		t.Fatalf("%s: verdict: %v", method, err)
	}
	return ok
}

func createTarget(t *testing.T, b *Backend) string {
	t.Helper()
	var result struct {
		TargetID string `json:"target_id"`
	}
	call(t, b, rpc.MethodCreateBackupTarget, map[string]any{
		"target_type": "LOCAL",
		"url":         "file:///mnt/backup",
		"name":        "External disk",
	}, &result)
	return result.TargetID
}

func createPlan(t *testing.T, b *Backend, targetID, title string) string {
	t.Helper()
	var result struct {
		PlanID string `json:"plan_id"`
	}
	call(t, b, rpc.MethodCreateBackupPlan, map[string]any{
		"title":  title,
		"source": "/home/alex/Documents",
		"target": targetID,
	}, &result)
	return result.PlanID
}

func createTask(t *testing.T, b *Backend, planID string) types.Task {
	t.Helper()
	var task types.Task
	call(t, b, rpc.MethodCreateBackupTask, map[string]any{"plan_id": planID}, &task)
	return task
}

func getTask(t *testing.T, b *Backend, taskID string) types.Task {
	t.Helper()
	var task types.Task
	call(t, b, rpc.MethodGetTaskInfo, map[string]any{"taskid": taskID}, &task)
	return task
}

func TestPlanLifecycle(t *testing.T) {
	b, _ := newTestBackend(t, Config{})
	targetID := createTarget(t, b)

	planID := createPlan(t, b, targetID, "Documents nightly")

	var plan types.Plan
	call(t, b, rpc.MethodGetBackupPlan, map[string]any{"plan_id": planID}, &plan)
	if plan.Title != "Documents nightly" || plan.TargetID != targetID {
		t.Fatalf("plan = %+v", plan)
	}
	if plan.LastCheckpointIndex != 0 || plan.TotalBackup != 0 {
		t.Fatalf("fresh plan carries history: %+v", plan)
	}

	var list struct {
		PlanIDs []string `json:"plan_ids"`
	}
	call(t, b, rpc.MethodListBackupPlan, nil, &list)
	if len(list.PlanIDs) != 1 || list.PlanIDs[0] != planID {
		t.Fatalf("plan_ids = %v", list.PlanIDs)
	}

	plan.Description = "runs at 02:30"
	if !callVerdict(t, b, rpc.MethodUpdateBackupPlan, plan) {
		t.Fatal("valid update rejected")
	}

	// An update that fails validation is ignored, not an error.
	broken := plan
	broken.Title = ""
	if callVerdict(t, b, rpc.MethodUpdateBackupPlan, broken) {
		t.Fatal("invalid update accepted")
	}

	if !callVerdict(t, b, rpc.MethodRemoveBackupPlan, map[string]any{"plan_id": planID}) {
		t.Fatal("plan removal rejected")
	}

	_, err := b.Call(context.Background(), rpc.MethodGetBackupPlan, map[string]any{"plan_id": planID})
	var ce *rpc.CallError
	if !errors.As(err, &ce) || !ce.NotFound() {
		t.Fatalf("get after remove: err = %v, want not-found CallError", err)
	}
}

func TestCreatePlanUnknownTarget(t *testing.T) {
	b, _ := newTestBackend(t, Config{})

	_, err := b.Call(context.Background(), rpc.MethodCreateBackupPlan, map[string]any{
		"title": "p", "source": "/s", "target": "tg-missing",
	})
	var ce *rpc.CallError
	if !errors.As(err, &ce) || !ce.NotFound() {
		t.Fatalf("err = %v, want not-found CallError", err)
	}
	if ce.Method != rpc.MethodCreateBackupPlan {
		t.Fatalf("method not stamped: %q", ce.Method)
	}
}

func TestTaskProgressLifecycle(t *testing.T) {
	b, clock := newTestBackend(t, Config{
		TransferRate: 1000,
		TaskSize:     10_000,
		StartDelay:   2 * time.Second,
	})
	targetID := createTarget(t, b)
	planID := createPlan(t, b, targetID, "Documents nightly")

	task := createTask(t, b, planID)
	if task.State != types.TaskStatePending {
		t.Fatalf("fresh task state = %s", task.State)
	}
	if want := fmt.Sprintf("cp-%s-1", planID); task.CheckpointID != want {
		t.Fatalf("checkpoint = %q, want %q", task.CheckpointID, want)
	}
	if task.TotalSize != 10_000 {
		t.Fatalf("total_size = %d", task.TotalSize)
	}

	// Still inside the start delay.
	clock.Advance(time.Second)
	if got := getTask(t, b, task.TaskID); got.State != types.TaskStatePending {
		t.Fatalf("state before start delay = %s", got.State)
	}

	// Past the delay: running, accrual counted from the start instant.
	clock.Advance(6 * time.Second) // now 7s in, 5s of transfer
	got := getTask(t, b, task.TaskID)
	if got.State != types.TaskStateRunning {
		t.Fatalf("state = %s, want RUNNING", got.State)
	}
	if got.CompletedSize != 5000 {
		t.Fatalf("completed_size = %d, want 5000", got.CompletedSize)
	}

	// Past the finish line: done, clamped, counters rolled up.
	clock.Advance(time.Minute)
	got = getTask(t, b, task.TaskID)
	if got.State != types.TaskStateDone {
		t.Fatalf("state = %s, want DONE", got.State)
	}
	if got.CompletedSize != got.TotalSize {
		t.Fatalf("completed_size = %d, total = %d", got.CompletedSize, got.TotalSize)
	}
	if got.CompleteTime == 0 {
		t.Fatal("complete_time not set")
	}

	var plan types.Plan
	call(t, b, rpc.MethodGetBackupPlan, map[string]any{"plan_id": planID}, &plan)
	if plan.TotalBackup != 1 || plan.TotalSize != 10_000 {
		t.Fatalf("plan totals = %d/%d", plan.TotalBackup, plan.TotalSize)
	}
	if plan.LastRunTime == 0 {
		t.Fatal("last_run_time not set")
	}

	var target types.Target
	call(t, b, rpc.MethodGetBackupTarget, map[string]any{"target_id": targetID}, &target)
	if target.Used != 10_000 {
		t.Fatalf("target used = %d, want 10000", target.Used)
	}

	// The next run gets the next checkpoint index.
	second := createTask(t, b, planID)
	if want := fmt.Sprintf("cp-%s-2", planID); second.CheckpointID != want {
		t.Fatalf("second checkpoint = %q, want %q", second.CheckpointID, want)
	}
}

func TestIncrementalAndRestoreTasks(t *testing.T) {
	b, clock := newTestBackend(t, Config{TransferRate: 1000, TaskSize: 8000})
	targetID := createTarget(t, b)
	planID := createPlan(t, b, targetID, "Documents nightly")

	full := createTask(t, b, planID)
	clock.Advance(time.Minute)
	if got := getTask(t, b, full.TaskID); got.State != types.TaskStateDone {
		t.Fatalf("full backup state = %s", got.State)
	}

	// Incremental off the completed checkpoint moves a fraction of the data.
	var incr types.Task
	call(t, b, rpc.MethodCreateBackupTask, map[string]any{
		"plan_id":              planID,
		"parent_checkpoint_id": full.CheckpointID,
	}, &incr)
	if incr.TotalSize != 1000 {
		t.Fatalf("incremental total_size = %d, want 1000", incr.TotalSize)
	}

	// Incremental off an unknown checkpoint is refused.
	_, err := b.Call(context.Background(), rpc.MethodCreateBackupTask, map[string]any{
		"plan_id":              planID,
		"parent_checkpoint_id": "cp-bogus-9",
	})
	var ce *rpc.CallError
	if !errors.As(err, &ce) || !ce.NotFound() {
		t.Fatalf("unknown parent checkpoint: err = %v", err)
	}

	var restore types.Task
	call(t, b, rpc.MethodCreateRestoreTask, map[string]any{
		"plan_id":       planID,
		"checkpoint_id": full.CheckpointID,
		"restore_url":   "file:///tmp/restore",
		"clean_folder":  true,
	}, &restore)
	if restore.Type != types.TaskTypeRestore {
		t.Fatalf("restore type = %s", restore.Type)
	}
	if restore.TotalSize != full.TotalSize {
		t.Fatalf("restore total_size = %d, want %d", restore.TotalSize, full.TotalSize)
	}
	if restore.RestoreURL != "file:///tmp/restore" || !restore.CleanFolder {
		t.Fatalf("restore params = %+v", restore)
	}

	// A restore completing must not touch plan totals or target usage.
	clock.Advance(time.Minute)
	if got := getTask(t, b, restore.TaskID); got.State != types.TaskStateDone {
		t.Fatalf("restore state = %s", got.State)
	}
	var plan types.Plan
	call(t, b, rpc.MethodGetBackupPlan, map[string]any{"plan_id": planID}, &plan)
	if plan.TotalBackup != 1 {
		t.Fatalf("restore bumped total_backup to %d", plan.TotalBackup)
	}
}

func TestPauseResumeVerdicts(t *testing.T) {
	b, clock := newTestBackend(t, Config{TransferRate: 1000, TaskSize: 1_000_000})
	targetID := createTarget(t, b)
	planID := createPlan(t, b, targetID, "Documents nightly")
	task := createTask(t, b, planID)

	clock.Advance(time.Second)

	params := map[string]any{"taskid": task.TaskID}
	if !callVerdict(t, b, rpc.MethodPauseBackupTask, params) {
		t.Fatal("pause of a running task rejected")
	}
	if got := getTask(t, b, task.TaskID); got.State != types.TaskStatePaused {
		t.Fatalf("state after pause = %s", got.State)
	}

	// Pausing a paused task is ignored, not an error.
	if callVerdict(t, b, rpc.MethodPauseBackupTask, params) {
		t.Fatal("pause of a paused task accepted")
	}

	// A paused task accrues nothing.
	before := getTask(t, b, task.TaskID).CompletedSize
	clock.Advance(time.Minute)
	if after := getTask(t, b, task.TaskID).CompletedSize; after != before {
		t.Fatalf("paused task progressed: %d -> %d", before, after)
	}

	if !callVerdict(t, b, rpc.MethodResumeBackupTask, params) {
		t.Fatal("resume of a paused task rejected")
	}
	if got := getTask(t, b, task.TaskID); got.State != types.TaskStateRunning {
		t.Fatalf("state after resume = %s", got.State)
	}
	if callVerdict(t, b, rpc.MethodResumeBackupTask, params) {
		t.Fatal("resume of a running task accepted")
	}

	// In-flight tasks cannot be removed.
	if callVerdict(t, b, rpc.MethodRemoveBackupTask, params) {
		t.Fatal("removal of a running task accepted")
	}
}

func TestFailTaskAndResumeRetry(t *testing.T) {
	b, clock := newTestBackend(t, Config{TransferRate: 1000, TaskSize: 1_000_000})
	targetID := createTarget(t, b)
	planID := createPlan(t, b, targetID, "Documents nightly")
	task := createTask(t, b, planID)

	clock.Advance(5 * time.Second)
	getTask(t, b, task.TaskID) // flip to RUNNING with some progress

	if err := b.FailTask(task.TaskID, "disk full"); err != nil {
		t.Fatalf("FailTask: %v", err)
	}
	got := getTask(t, b, task.TaskID)
	if got.State != types.TaskStateFailed || got.Error != "disk full" {
		t.Fatalf("after fail: %+v", got)
	}

	// Resume retries a failed task and clears the error.
	if !callVerdict(t, b, rpc.MethodResumeBackupTask, map[string]any{"taskid": task.TaskID}) {
		t.Fatal("resume of a failed task rejected")
	}
	got = getTask(t, b, task.TaskID)
	if got.State != types.TaskStateRunning || got.Error != "" {
		t.Fatalf("after retry: %+v", got)
	}

	// Failing a terminal task is an error, not a verdict.
	clock.Advance(20 * time.Minute)
	if got := getTask(t, b, task.TaskID); got.State != types.TaskStateDone {
		t.Fatalf("state = %s, want DONE", got.State)
	}
	if err := b.FailTask(task.TaskID, "too late"); err == nil {
		t.Fatal("FailTask accepted a terminal task")
	}
}

func TestListBackupTaskFilterAndOrder(t *testing.T) {
	b, clock := newTestBackend(t, Config{TransferRate: 1000, TaskSize: 2000})
	targetID := createTarget(t, b)
	docs := createPlan(t, b, targetID, "Documents nightly")
	pics := createPlan(t, b, targetID, "Pictures weekly")

	// t1 completes, t2 stays running, t3 is newest and paused.
	t1 := createTask(t, b, docs)
	clock.Advance(3 * time.Second)

	t2 := createTask(t, b, pics)
	clock.Advance(time.Second) // t2 at 1000/500000... running
	// Bump t2's size so it cannot finish during the test.
	if err := b.db.Model(&taskRow{}).Where("task_id = ?", t2.TaskID).Update("total_size", int64(1_000_000)).Error; err != nil {
		t.Fatal(err)
	}

	t3 := createTask(t, b, docs)
	callVerdict(t, b, rpc.MethodPauseBackupTask, map[string]any{"taskid": t3.TaskID})

	list := func(req taskmgr.ListTasksRequest) taskmgr.TaskPage {
		var page taskmgr.TaskPage
		call(t, b, rpc.MethodListBackupTask, req, &page)
		return page
	}

	// Default order: create_time descending.
	page := list(taskmgr.ListTasksRequest{})
	if page.Total != 3 {
		t.Fatalf("total = %d, want 3", page.Total)
	}
	want := []string{t3.TaskID, t2.TaskID, t1.TaskID}
	for i, id := range want {
		if page.TaskIDs[i] != id {
			t.Fatalf("default order = %v, want %v", page.TaskIDs, want)
		}
	}

	// State filter.
	page = list(taskmgr.ListTasksRequest{Filter: taskmgr.TaskFilter{
		States: []types.TaskState{types.TaskStateDone},
	}})
	if page.Total != 1 || page.TaskIDs[0] != t1.TaskID {
		t.Fatalf("done filter = %+v", page)
	}

	// Title substring filter is case-insensitive.
	page = list(taskmgr.ListTasksRequest{Filter: taskmgr.TaskFilter{
		PlanTitleSubstrings: []string{"PICT"},
	}})
	if page.Total != 1 || page.TaskIDs[0] != t2.TaskID {
		t.Fatalf("title filter = %+v", page)
	}

	// Conjunction across dimensions: docs plan AND running state = empty.
	page = list(taskmgr.ListTasksRequest{Filter: taskmgr.TaskFilter{
		PlanIDs: []string{docs},
		States:  []types.TaskState{types.TaskStateRunning},
	}})
	if page.Total != 0 {
		t.Fatalf("conjunction filter total = %d, want 0", page.Total)
	}

	// complete_time ordering pushes tasks without a completion to the end,
	// ascending or descending.
	for _, dir := range []taskmgr.OrderDirection{taskmgr.OrderAsc, taskmgr.OrderDesc} {
		page = list(taskmgr.ListTasksRequest{OrderBy: []taskmgr.TaskOrder{
			{Key: taskmgr.OrderByCompleteTime, Direction: dir},
		}})
		if page.TaskIDs[0] != t1.TaskID {
			t.Fatalf("complete_time %s order = %v, want %s first", dir, page.TaskIDs, t1.TaskID)
		}
	}

	// Paging: total stays post-filter while the window narrows.
	page = list(taskmgr.ListTasksRequest{Offset: 1, Limit: 1})
	if page.Total != 3 || len(page.TaskIDs) != 1 || page.TaskIDs[0] != t2.TaskID {
		t.Fatalf("page = %+v", page)
	}

	// Offset past the end returns an empty page with the true total.
	page = list(taskmgr.ListTasksRequest{Offset: 10})
	if page.Total != 3 || len(page.TaskIDs) != 0 {
		t.Fatalf("overrun page = %+v", page)
	}
}

func TestTargetLifecycleAndStateChange(t *testing.T) {
	b, _ := newTestBackend(t, Config{})
	targetID := createTarget(t, b)

	var target types.Target
	call(t, b, rpc.MethodGetBackupTarget, map[string]any{"target_id": targetID}, &target)
	if target.State != types.TargetStateOnline {
		t.Fatalf("fresh target state = %s", target.State)
	}
	if target.Total == types.TargetUnlimited {
		t.Fatal("local target should carry a capacity bound")
	}

	if err := b.SetTargetState(targetID, types.TargetStateOffline, "mount lost"); err != nil {
		t.Fatalf("SetTargetState: %v", err)
	}
	call(t, b, rpc.MethodGetBackupTarget, map[string]any{"target_id": targetID}, &target)
	if target.State != types.TargetStateOffline || target.LastError != "mount lost" {
		t.Fatalf("after state change: %+v", target)
	}

	// A target referenced by a plan cannot be removed.
	createPlan(t, b, targetID, "Documents nightly")
	if callVerdict(t, b, rpc.MethodRemoveBackupTarget, map[string]any{"target_id": targetID}) {
		t.Fatal("removal of a referenced target accepted")
	}
}

func TestLogsPagingAndFilter(t *testing.T) {
	b, clock := newTestBackend(t, Config{TransferRate: 1000, TaskSize: 2000})
	targetID := createTarget(t, b)
	planID := createPlan(t, b, targetID, "Documents nightly")
	task := createTask(t, b, planID)
	clock.Advance(time.Minute)
	getTask(t, b, task.TaskID) // drives completion, appends run_success

	listLogs := func(filter types.LogFilter, offset, limit int) types.LogPage {
		var page types.LogPage
		call(t, b, rpc.MethodListLogs, map[string]any{
			"filter": filter, "offset": offset, "limit": limit,
		}, &page)
		return page
	}

	// create_target, create_plan, create_task, run_success.
	page := listLogs(types.LogFilter{}, 0, 0)
	if page.Total != 4 {
		t.Fatalf("total = %d, want 4", page.Total)
	}
	if len(page.Records) != 4 {
		t.Fatalf("records = %d, want 4", len(page.Records))
	}

	// Newest first, sequence strictly decreasing.
	for i := 1; i < len(page.Records); i++ {
		if page.Records[i].Seq >= page.Records[i-1].Seq {
			t.Fatalf("log order broken: %d then %d", page.Records[i-1].Seq, page.Records[i].Seq)
		}
	}
	if page.Records[0].Type != types.LogRunSuccess {
		t.Fatalf("newest record type = %s, want run_success", page.Records[0].Type)
	}

	// Paging.
	paged := listLogs(types.LogFilter{}, 1, 2)
	if paged.Total != 4 || len(paged.Records) != 2 {
		t.Fatalf("paged = total %d, %d records", paged.Total, len(paged.Records))
	}
	if paged.Records[0].Seq != page.Records[1].Seq {
		t.Fatalf("page offset broken: %d vs %d", paged.Records[0].Seq, page.Records[1].Seq)
	}

	// Kind filter.
	planOnly := listLogs(types.LogFilter{Kind: types.SubjectPlan}, 0, 0)
	if planOnly.Total != 1 || planOnly.Records[0].Type != types.LogCreatePlan {
		t.Fatalf("plan-kind filter = %+v", planOnly)
	}

	// Entity filter.
	taskOnly := listLogs(types.LogFilter{TaskID: task.TaskID}, 0, 0)
	if taskOnly.Total != 2 {
		t.Fatalf("task filter total = %d, want 2", taskOnly.Total)
	}
}

func TestFilesystemMethods(t *testing.T) {
	b, _ := newTestBackend(t, Config{})

	var valid struct {
		Valid bool `json:"valid"`
	}
	call(t, b, rpc.MethodValidatePath, map[string]any{"path": "/home/alex/Documents"}, &valid)
	if !valid.Valid {
		t.Fatal("known path reported invalid")
	}
	call(t, b, rpc.MethodValidatePath, map[string]any{"path": "/no/such/path"}, &valid)
	if valid.Valid {
		t.Fatal("unknown path reported valid")
	}

	var children struct {
		Children []types.DirEntry `json:"children"`
	}
	call(t, b, rpc.MethodListDirectoryChildren, map[string]any{"path": "/"}, &children)
	if len(children.Children) == 0 {
		t.Fatal("root directory is empty")
	}

	_, err := b.Call(context.Background(), rpc.MethodListDirectoryChildren, map[string]any{"path": "/no/such/dir"})
	var ce *rpc.CallError
	if !errors.As(err, &ce) || !ce.NotFound() {
		t.Fatalf("unknown dir: err = %v", err)
	}
}

func TestDrillDownViews(t *testing.T) {
	b, clock := newTestBackend(t, Config{TransferRate: 1000, TaskSize: 64 << 20})
	targetID := createTarget(t, b)
	planID := createPlan(t, b, targetID, "Documents nightly")
	task := createTask(t, b, planID)
	clock.Advance(time.Second)

	var files struct {
		Files []types.TaskFile `json:"files"`
	}
	call(t, b, rpc.MethodListFilesInTask, map[string]any{"taskid": task.TaskID}, &files)
	if len(files.Files) == 0 {
		t.Fatal("no files in task")
	}
	var sum int64
	for _, f := range files.Files {
		sum += f.Size
	}
	if sum != task.TotalSize {
		t.Fatalf("file sizes sum to %d, task total %d", sum, task.TotalSize)
	}

	var chunks struct {
		Chunks []types.FileChunk `json:"chunks"`
	}
	call(t, b, rpc.MethodListChunksInFile, map[string]any{
		"taskid": task.TaskID,
		"path":   files.Files[0].Path,
	}, &chunks)
	if len(chunks.Chunks) != files.Files[0].ChunkCount {
		t.Fatalf("chunks = %d, want %d", len(chunks.Chunks), files.Files[0].ChunkCount)
	}

	_, err := b.Call(context.Background(), rpc.MethodListChunksInFile, map[string]any{
		"taskid": task.TaskID,
		"path":   "/no/such/file",
	})
	var ce *rpc.CallError
	if !errors.As(err, &ce) || !ce.NotFound() {
		t.Fatalf("unknown file: err = %v", err)
	}
}

func TestSummaries(t *testing.T) {
	b, clock := newTestBackend(t, Config{TransferRate: 1000, TaskSize: 5000})
	targetID := createTarget(t, b)
	planID := createPlan(t, b, targetID, "Documents nightly")
	task := createTask(t, b, planID)
	clock.Advance(time.Minute)
	getTask(t, b, task.TaskID)

	var size types.SizeSummary
	call(t, b, rpc.MethodConsumeSizeSummary, nil, &size)
	if size.TotalUsed != 5000 || size.PlanCount != 1 || size.TargetCount != 1 {
		t.Fatalf("size summary = %+v", size)
	}
	if size.TotalCapacity == types.TargetUnlimited {
		t.Fatal("bounded fleet reported unlimited capacity")
	}

	var stats types.Statistics
	call(t, b, rpc.MethodStatisticsSummary, nil, &stats)
	if stats.TotalBackupCount != 1 || stats.TotalBackupSize != 5000 {
		t.Fatalf("statistics = %+v", stats)
	}
	if stats.CheckpointCount != 1 || stats.RunningTaskCount != 0 {
		t.Fatalf("statistics counts = %+v", stats)
	}
}

func TestUnknownMethod(t *testing.T) {
	b, _ := newTestBackend(t, Config{})
	_, err := b.Call(context.Background(), "self_destruct", nil)
	var ce *rpc.CallError
	if !errors.As(err, &ce) || ce.Code != rpc.CodeMethodNotFound {
		t.Fatalf("err = %v, want method-not-found CallError", err)
	}
}

func TestSeedProducesWorkingDemo(t *testing.T) {
	b, err := New(Config{}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Seed(context.Background()); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	var plans struct {
		PlanIDs []string `json:"plan_ids"`
	}
	call(t, b, rpc.MethodListBackupPlan, nil, &plans)
	if len(plans.PlanIDs) != 2 {
		t.Fatalf("seeded %d plans, want 2", len(plans.PlanIDs))
	}

	var targets struct {
		TargetIDs []string `json:"target_ids"`
	}
	call(t, b, rpc.MethodListBackupTarget, nil, &targets)
	if len(targets.TargetIDs) != 2 {
		t.Fatalf("seeded %d targets, want 2", len(targets.TargetIDs))
	}

	// Every seeded plan carries one completed run.
	for _, id := range plans.PlanIDs {
		var plan types.Plan
		call(t, b, rpc.MethodGetBackupPlan, map[string]any{"plan_id": id}, &plan)
		if plan.TotalBackup != 1 {
			t.Fatalf("plan %s total_backup = %d, want 1", id, plan.TotalBackup)
		}
		if plan.LastCheckpointIndex != 1 {
			t.Fatalf("plan %s checkpoint index = %d, want 1", id, plan.LastCheckpointIndex)
		}
	}

	var stats types.Statistics
	call(t, b, rpc.MethodStatisticsSummary, nil, &stats)
	if stats.TotalBackupCount != 2 || stats.CheckpointCount != 2 {
		t.Fatalf("seeded statistics = %+v", stats)
	}
}
