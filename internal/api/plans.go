package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/keepdeck-io/keepdeck/internal/schedule"
	"github.com/keepdeck-io/keepdeck/internal/taskmgr"
	"github.com/keepdeck-io/keepdeck/internal/types"
)

// PlanHandler groups all plan-related HTTP handlers.
type PlanHandler struct {
	mgr    *taskmgr.Manager
	logger *zap.Logger
}

// NewPlanHandler creates a new PlanHandler.
func NewPlanHandler(mgr *taskmgr.Manager, logger *zap.Logger) *PlanHandler {
	return &PlanHandler{
		mgr:    mgr,
		logger: logger.Named("plan_handler"),
	}
}

// listPlansResponse wraps a full plan listing. Plans are few (an operator
// configures a handful), so the list endpoint returns full objects rather
// than ids plus N roundtrips from the frontend.
type listPlansResponse struct {
	Items []*types.Plan `json:"items"`
}

// List handles GET /api/v1/plans.
func (h *PlanHandler) List(w http.ResponseWriter, r *http.Request) {
	ids, err := h.mgr.ListBackupPlans(r.Context())
	if err != nil {
		h.logger.Error("failed to list plans", zap.Error(err))
		ErrBadGateway(w)
		return
	}

	items := make([]*types.Plan, 0, len(ids))
	for _, id := range ids {
		plan, err := h.mgr.GetBackupPlan(r.Context(), id)
		if err != nil {
			// A plan removed between list and fetch is not an error.
			if errors.Is(err, taskmgr.ErrNotFound) {
				continue
			}
			h.logger.Error("failed to fetch plan", zap.String("plan_id", id), zap.Error(err))
			ErrBadGateway(w)
			return
		}
		items = append(items, plan)
	}

	Ok(w, listPlansResponse{Items: items})
}

// Create handles POST /api/v1/plans.
func (h *PlanHandler) Create(w http.ResponseWriter, r *http.Request) {
	var spec types.PlanSpec
	if !decodeJSON(w, r, &spec) {
		return
	}
	if err := spec.Validate(); err != nil {
		ErrUnprocessable(w, err.Error())
		return
	}

	id, err := h.mgr.CreateBackupPlan(r.Context(), spec)
	if err != nil {
		h.logger.Error("failed to create plan", zap.Error(err))
		ErrBadGateway(w)
		return
	}

	Created(w, map[string]string{"plan_id": id})
}

// GetByID handles GET /api/v1/plans/{id}.
func (h *PlanHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	plan, err := h.mgr.GetBackupPlan(r.Context(), id)
	if err != nil {
		if errors.Is(err, taskmgr.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get plan", zap.String("plan_id", id), zap.Error(err))
		ErrBadGateway(w)
		return
	}

	Ok(w, plan)
}

// Update handles PUT /api/v1/plans/{id}. The body carries the full plan; the
// path id wins over any id in the body.
func (h *PlanHandler) Update(w http.ResponseWriter, r *http.Request) {
	var plan types.Plan
	if !decodeJSON(w, r, &plan) {
		return
	}
	plan.PlanID = chi.URLParam(r, "id")

	ok, err := h.mgr.UpdateBackupPlan(r.Context(), &plan)
	if err != nil {
		if errors.Is(err, taskmgr.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to update plan", zap.String("plan_id", plan.PlanID), zap.Error(err))
		ErrBadGateway(w)
		return
	}
	if !ok {
		ErrConflict(w, "daemon rejected the plan update")
		return
	}

	Ok(w, plan)
}

// Delete handles DELETE /api/v1/plans/{id}.
func (h *PlanHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ok, err := h.mgr.RemoveBackupPlan(r.Context(), id)
	if err != nil {
		if errors.Is(err, taskmgr.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to remove plan", zap.String("plan_id", id), zap.Error(err))
		ErrBadGateway(w)
		return
	}
	if !ok {
		ErrConflict(w, "plan has running tasks; pause them first")
		return
	}

	NoContent(w)
}

// nextRunResponse is the payload of the next-run preview.
type nextRunResponse struct {
	// NextRun is the Unix-millisecond timestamp of the next scheduled run,
	// zero when the policy has no periodic trigger or is disabled.
	NextRun   int64 `json:"next_run"`
	Scheduled bool  `json:"scheduled"`
}

// NextRun handles GET /api/v1/plans/{id}/next-run. The frontend shows this in
// the plan list; computing it server-side keeps the cron semantics in one
// place.
func (h *PlanHandler) NextRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	plan, err := h.mgr.GetBackupPlan(r.Context(), id)
	if err != nil {
		if errors.Is(err, taskmgr.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get plan", zap.String("plan_id", id), zap.Error(err))
		ErrBadGateway(w)
		return
	}

	if plan.PolicyDisabled {
		Ok(w, nextRunResponse{})
		return
	}

	next, ok := schedule.NextRun(plan.Policy, time.Now())
	if !ok {
		Ok(w, nextRunResponse{})
		return
	}
	Ok(w, nextRunResponse{NextRun: next.UnixMilli(), Scheduled: true})
}

// Backup handles POST /api/v1/plans/{id}/backup: start a backup run now.
// An optional body selects the parent checkpoint for an incremental run.
func (h *PlanHandler) Backup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		ParentCheckpointID string `json:"parent_checkpoint_id"`
	}
	if r.ContentLength > 0 && !decodeJSON(w, r, &body) {
		return
	}

	task, err := h.mgr.CreateBackupTask(r.Context(), id, body.ParentCheckpointID)
	if err != nil {
		if errors.Is(err, taskmgr.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to start backup", zap.String("plan_id", id), zap.Error(err))
		ErrBadGateway(w)
		return
	}

	Created(w, task)
}
