package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/keepdeck-io/keepdeck/internal/taskmgr"
	"github.com/keepdeck-io/keepdeck/internal/types"
)

// TargetHandler groups all storage-target HTTP handlers.
type TargetHandler struct {
	mgr    *taskmgr.Manager
	logger *zap.Logger
}

// NewTargetHandler creates a new TargetHandler.
func NewTargetHandler(mgr *taskmgr.Manager, logger *zap.Logger) *TargetHandler {
	return &TargetHandler{
		mgr:    mgr,
		logger: logger.Named("target_handler"),
	}
}

// listTargetsResponse wraps a full target listing.
type listTargetsResponse struct {
	Items []*types.Target `json:"items"`
}

// List handles GET /api/v1/targets.
func (h *TargetHandler) List(w http.ResponseWriter, r *http.Request) {
	ids, err := h.mgr.ListBackupTargets(r.Context())
	if err != nil {
		h.logger.Error("failed to list targets", zap.Error(err))
		ErrBadGateway(w)
		return
	}

	items := make([]*types.Target, 0, len(ids))
	for _, id := range ids {
		target, err := h.mgr.GetBackupTarget(r.Context(), id)
		if err != nil {
			if errors.Is(err, taskmgr.ErrNotFound) {
				continue
			}
			h.logger.Error("failed to fetch target", zap.String("target_id", id), zap.Error(err))
			ErrBadGateway(w)
			return
		}
		items = append(items, target)
	}

	Ok(w, listTargetsResponse{Items: items})
}

// Create handles POST /api/v1/targets.
func (h *TargetHandler) Create(w http.ResponseWriter, r *http.Request) {
	var spec taskmgr.TargetSpec
	if !decodeJSON(w, r, &spec) {
		return
	}
	if spec.URL == "" {
		ErrUnprocessable(w, "url is required")
		return
	}
	switch spec.Type {
	case types.TargetTypeLocal, types.TargetTypeNDN, types.TargetTypeS3:
	default:
		ErrUnprocessable(w, "unknown target_type")
		return
	}

	id, err := h.mgr.CreateBackupTarget(r.Context(), spec)
	if err != nil {
		h.logger.Error("failed to create target", zap.Error(err))
		ErrBadGateway(w)
		return
	}

	Created(w, map[string]string{"target_id": id})
}

// GetByID handles GET /api/v1/targets/{id}.
func (h *TargetHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	target, err := h.mgr.GetBackupTarget(r.Context(), id)
	if err != nil {
		if errors.Is(err, taskmgr.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get target", zap.String("target_id", id), zap.Error(err))
		ErrBadGateway(w)
		return
	}

	Ok(w, target)
}

// Update handles PUT /api/v1/targets/{id}.
func (h *TargetHandler) Update(w http.ResponseWriter, r *http.Request) {
	var target types.Target
	if !decodeJSON(w, r, &target) {
		return
	}
	target.TargetID = chi.URLParam(r, "id")

	ok, err := h.mgr.UpdateBackupTarget(r.Context(), &target)
	if err != nil {
		if errors.Is(err, taskmgr.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to update target", zap.String("target_id", target.TargetID), zap.Error(err))
		ErrBadGateway(w)
		return
	}
	if !ok {
		ErrConflict(w, "daemon rejected the target update")
		return
	}

	Ok(w, target)
}

// Delete handles DELETE /api/v1/targets/{id}.
func (h *TargetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ok, err := h.mgr.RemoveBackupTarget(r.Context(), id)
	if err != nil {
		if errors.Is(err, taskmgr.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to remove target", zap.String("target_id", id), zap.Error(err))
		ErrBadGateway(w)
		return
	}
	if !ok {
		ErrConflict(w, "target is still referenced by a plan")
		return
	}

	NoContent(w)
}
