package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/keepdeck-io/keepdeck/internal/taskmgr"
	"github.com/keepdeck-io/keepdeck/internal/types"
)

// MiscHandler serves the endpoints that do not belong to a single resource:
// the activity log, the dashboard summaries, and the daemon-side filesystem
// browser backing the plan wizard.
type MiscHandler struct {
	mgr    *taskmgr.Manager
	logger *zap.Logger
}

// NewMiscHandler creates a new MiscHandler.
func NewMiscHandler(mgr *taskmgr.Manager, logger *zap.Logger) *MiscHandler {
	return &MiscHandler{
		mgr:    mgr,
		logger: logger.Named("misc_handler"),
	}
}

// Logs handles GET /api/v1/logs.
//
// Query parameters: kind (plan|target|task), plan_id, target_id, taskid,
// offset, limit. Records come back newest first.
func (h *MiscHandler) Logs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := types.LogFilter{
		PlanID:   q.Get("plan_id"),
		TargetID: q.Get("target_id"),
		TaskID:   q.Get("taskid"),
	}
	if kind := q.Get("kind"); kind != "" {
		switch k := types.SubjectKind(kind); k {
		case types.SubjectPlan, types.SubjectTarget, types.SubjectTask:
			filter.Kind = k
		default:
			ErrBadRequest(w, "unknown kind "+kind)
			return
		}
	}

	page, err := h.mgr.ListLogs(r.Context(), filter, intParam(q.Get("offset"), 0), intParam(q.Get("limit"), 50))
	if err != nil {
		h.logger.Error("failed to list logs", zap.Error(err))
		ErrBadGateway(w)
		return
	}

	Ok(w, page)
}

// SizeSummary handles GET /api/v1/summary/size.
func (h *MiscHandler) SizeSummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.mgr.ConsumeSizeSummary(r.Context())
	if err != nil {
		h.logger.Error("failed to get size summary", zap.Error(err))
		ErrBadGateway(w)
		return
	}
	Ok(w, s)
}

// Statistics handles GET /api/v1/summary/statistics.
func (h *MiscHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	s, err := h.mgr.StatisticsSummary(r.Context())
	if err != nil {
		h.logger.Error("failed to get statistics", zap.Error(err))
		ErrBadGateway(w)
		return
	}
	Ok(w, s)
}

// FSChildren handles GET /api/v1/fs/children?path=...
func (h *MiscHandler) FSChildren(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		ErrBadRequest(w, "path query parameter is required")
		return
	}

	children, err := h.mgr.ListDirChildren(r.Context(), path)
	if err != nil {
		if errors.Is(err, taskmgr.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to list directory", zap.String("path", path), zap.Error(err))
		ErrBadGateway(w)
		return
	}

	Ok(w, map[string]any{"children": children})
}

// FSValidate handles GET /api/v1/fs/validate?path=...
func (h *MiscHandler) FSValidate(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		ErrBadRequest(w, "path query parameter is required")
		return
	}

	valid, err := h.mgr.ValidatePath(r.Context(), path)
	if err != nil {
		h.logger.Error("failed to validate path", zap.String("path", path), zap.Error(err))
		ErrBadGateway(w)
		return
	}

	Ok(w, map[string]bool{"valid": valid})
}
