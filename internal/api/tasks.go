package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/keepdeck-io/keepdeck/internal/taskmgr"
	"github.com/keepdeck-io/keepdeck/internal/types"
)

// TaskHandler groups all task-related HTTP handlers. Tasks are created via
// the plan backup action or the restore endpoint; beyond that the API offers
// pause/resume/remove plus the drill-down reads.
type TaskHandler struct {
	mgr    *taskmgr.Manager
	logger *zap.Logger
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(mgr *taskmgr.Manager, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		mgr:    mgr,
		logger: logger.Named("task_handler"),
	}
}

// List handles GET /api/v1/tasks.
//
// Query parameters: state and task_type (repeatable), plan_id (repeatable),
// plan_title (substring, repeatable), offset, limit, order_by and order_dir
// (parallel, repeatable, evaluated left to right).
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := taskmgr.TaskFilter{
		PlanIDs:             q["plan_id"],
		PlanTitleSubstrings: q["plan_title"],
	}
	for _, s := range q["state"] {
		state := types.TaskState(s)
		if !state.Valid() {
			ErrBadRequest(w, "unknown state "+s)
			return
		}
		filter.States = append(filter.States, state)
	}
	for _, t := range q["task_type"] {
		switch tt := types.TaskType(t); tt {
		case types.TaskTypeBackup, types.TaskTypeRestore:
			filter.Types = append(filter.Types, tt)
		default:
			ErrBadRequest(w, "unknown task_type "+t)
			return
		}
	}

	orderBy, ok := parseOrder(w, q["order_by"], q["order_dir"])
	if !ok {
		return
	}

	offset := intParam(q.Get("offset"), 0)
	limit := intParam(q.Get("limit"), 50)

	page, err := h.mgr.ListBackupTasks(r.Context(), filter, offset, limit, orderBy)
	if err != nil {
		h.logger.Error("failed to list tasks", zap.Error(err))
		ErrBadGateway(w)
		return
	}

	Ok(w, page)
}

// GetByID handles GET /api/v1/tasks/{id}. The snapshot carries the smoothed
// transfer speed computed by the manager.
func (h *TaskHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	task, err := h.mgr.GetTaskInfo(r.Context(), id)
	if err != nil {
		if errors.Is(err, taskmgr.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get task", zap.String("taskid", id), zap.Error(err))
		ErrBadGateway(w)
		return
	}

	Ok(w, task)
}

// Pause handles POST /api/v1/tasks/{id}/pause.
func (h *TaskHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.mgr.PauseBackupTask, "pause")
}

// Resume handles POST /api/v1/tasks/{id}/resume.
func (h *TaskHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.mgr.ResumeBackupTask, "resume")
}

// Delete handles DELETE /api/v1/tasks/{id}.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ok, err := h.mgr.RemoveBackupTask(r.Context(), id)
	if err != nil {
		if errors.Is(err, taskmgr.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to remove task", zap.String("taskid", id), zap.Error(err))
		ErrBadGateway(w)
		return
	}
	if !ok {
		ErrConflict(w, "task is in flight; pause it first")
		return
	}

	NoContent(w)
}

// PauseAll handles POST /api/v1/tasks/pause-all.
func (h *TaskHandler) PauseAll(w http.ResponseWriter, r *http.Request) {
	if err := h.mgr.PauseAllTasks(r.Context()); err != nil {
		h.logger.Error("failed to pause all tasks", zap.Error(err))
		ErrBadGateway(w)
		return
	}
	NoContent(w)
}

// ResumeLast handles POST /api/v1/tasks/resume-last: the dashboard's
// "continue where I left off" action.
func (h *TaskHandler) ResumeLast(w http.ResponseWriter, r *http.Request) {
	if err := h.mgr.ResumeLastWorkingTask(r.Context()); err != nil {
		h.logger.Error("failed to resume last task", zap.Error(err))
		ErrBadGateway(w)
		return
	}
	NoContent(w)
}

// Restore handles POST /api/v1/restores: start restoring a checkpoint.
func (h *TaskHandler) Restore(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PlanID       string `json:"plan_id"`
		CheckpointID string `json:"checkpoint_id"`
		RestoreURL   string `json:"restore_url"`
		CleanFolder  bool   `json:"clean_folder"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.PlanID == "" || body.CheckpointID == "" || body.RestoreURL == "" {
		ErrUnprocessable(w, "plan_id, checkpoint_id and restore_url are required")
		return
	}

	task, err := h.mgr.CreateRestoreTask(r.Context(), body.PlanID, body.CheckpointID, body.RestoreURL, body.CleanFolder)
	if err != nil {
		if errors.Is(err, taskmgr.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to start restore", zap.String("plan_id", body.PlanID), zap.Error(err))
		ErrBadGateway(w)
		return
	}

	Created(w, task)
}

// Files handles GET /api/v1/tasks/{id}/files.
func (h *TaskHandler) Files(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	files, err := h.mgr.ListFilesInTask(r.Context(), id)
	if err != nil {
		if errors.Is(err, taskmgr.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to list task files", zap.String("taskid", id), zap.Error(err))
		ErrBadGateway(w)
		return
	}

	Ok(w, files)
}

// Chunks handles GET /api/v1/tasks/{id}/chunks?path=...
func (h *TaskHandler) Chunks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	path := r.URL.Query().Get("path")
	if path == "" {
		ErrBadRequest(w, "path query parameter is required")
		return
	}

	chunks, err := h.mgr.ListChunksInFile(r.Context(), id, path)
	if err != nil {
		if errors.Is(err, taskmgr.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to list file chunks",
			zap.String("taskid", id),
			zap.String("path", path),
			zap.Error(err),
		)
		ErrBadGateway(w)
		return
	}

	Ok(w, chunks)
}

// -----------------------------------------------------------------------------
// Internal helpers
// -----------------------------------------------------------------------------

// mutate runs one pause/resume-style operation and maps its (bool, error)
// verdict onto the response.
func (h *TaskHandler) mutate(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id string) (bool, error), verb string) {
	id := chi.URLParam(r, "id")

	ok, err := op(r.Context(), id)
	if err != nil {
		if errors.Is(err, taskmgr.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to "+verb+" task", zap.String("taskid", id), zap.Error(err))
		ErrBadGateway(w)
		return
	}
	if !ok {
		ErrConflict(w, "daemon rejected the "+verb)
		return
	}

	NoContent(w)
}

// parseOrder zips the order_by and order_dir query slices into the priority
// list. A missing direction defaults to descending, matching the UI's
// newest-first lists.
func parseOrder(w http.ResponseWriter, keys, dirs []string) ([]taskmgr.TaskOrder, bool) {
	orders := make([]taskmgr.TaskOrder, 0, len(keys))
	for i, k := range keys {
		key := taskmgr.OrderKey(k)
		switch key {
		case taskmgr.OrderByCreateTime, taskmgr.OrderByUpdateTime, taskmgr.OrderByCompleteTime:
		default:
			ErrBadRequest(w, "unknown order_by key "+k)
			return nil, false
		}

		dir := taskmgr.OrderDesc
		if i < len(dirs) {
			switch taskmgr.OrderDirection(dirs[i]) {
			case taskmgr.OrderAsc:
				dir = taskmgr.OrderAsc
			case taskmgr.OrderDesc:
			default:
				ErrBadRequest(w, "unknown order_dir "+dirs[i])
				return nil, false
			}
		}
		orders = append(orders, taskmgr.TaskOrder{Key: key, Direction: dir})
	}
	return orders, true
}

// intParam parses a non-negative integer query parameter with a default.
func intParam(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
