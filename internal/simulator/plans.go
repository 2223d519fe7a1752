package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/keepdeck-io/keepdeck/internal/types"
)

func (b *Backend) createBackupPlan(_ context.Context, raw json.RawMessage) (any, error) {
	var spec types.PlanSpec
	if err := decode(raw, &spec); err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, invalidParams(err.Error())
	}

	var target targetRow
	if err := b.db.First(&target, "target_id = ?", spec.TargetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("target", spec.TargetID)
		}
		return nil, err
	}

	policy, err := json.Marshal(spec.Policy)
	if err != nil {
		return nil, invalidParams(fmt.Sprintf("encode policy: %v", err))
	}

	now := nowMilli(b.now)
	row := planRow{
		PlanID:           "plan-" + uuid.NewString(),
		Title:            spec.Title,
		Description:      spec.Description,
		Source:           spec.Source,
		TargetID:         spec.TargetID,
		Policy:           string(policy),
		PolicyDisabled:   spec.PolicyDisabled,
		Priority:         spec.Priority,
		ReservedVersions: spec.ReservedVersions,
		CreateTime:       now,
		UpdateTime:       now,
	}
	if err := b.db.Create(&row).Error; err != nil {
		return nil, err
	}

	b.appendLog(types.LogCreatePlan, types.LogSubject{Kind: types.SubjectPlan, PlanID: row.PlanID},
		types.PlanLogParams{Title: row.Title})

	return map[string]string{"plan_id": row.PlanID}, nil
}

func (b *Backend) listBackupPlan(_ context.Context, _ json.RawMessage) (any, error) {
	var ids []string
	if err := b.db.Model(&planRow{}).Order("create_time ASC").Pluck("plan_id", &ids).Error; err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return map[string]any{"plan_ids": ids}, nil
}

func (b *Backend) getBackupPlan(_ context.Context, raw json.RawMessage) (any, error) {
	var params struct {
		PlanID string `json:"plan_id"`
	}
	if err := decode(raw, &params); err != nil {
		return nil, err
	}

	row, err := b.planByID(params.PlanID)
	if err != nil {
		return nil, err
	}
	return planFromRow(row)
}

func (b *Backend) updateBackupPlan(_ context.Context, raw json.RawMessage) (any, error) {
	var plan types.Plan
	if err := decode(raw, &plan); err != nil {
		return nil, err
	}

	row, err := b.planByID(plan.PlanID)
	if err != nil {
		return nil, err
	}

	spec := types.PlanSpec{
		Title:            plan.Title,
		Description:      plan.Description,
		Source:           plan.Source,
		TargetID:         plan.TargetID,
		Policy:           plan.Policy,
		PolicyDisabled:   plan.PolicyDisabled,
		Priority:         plan.Priority,
		ReservedVersions: plan.ReservedVersions,
	}
	if err := spec.Validate(); err != nil {
		return ignored, nil
	}

	policy, err := json.Marshal(plan.Policy)
	if err != nil {
		return nil, invalidParams(fmt.Sprintf("encode policy: %v", err))
	}

	// Identity, running totals, and the checkpoint index belong to the
	// daemon; an update only carries the user-editable fields.
	row.Title = plan.Title
	row.Description = plan.Description
	row.Source = plan.Source
	row.TargetID = plan.TargetID
	row.Policy = string(policy)
	row.PolicyDisabled = plan.PolicyDisabled
	row.Priority = plan.Priority
	row.ReservedVersions = plan.ReservedVersions
	row.UpdateTime = nowMilli(b.now)

	if err := b.db.Save(row).Error; err != nil {
		return nil, err
	}

	b.appendLog(types.LogUpdatePlan, types.LogSubject{Kind: types.SubjectPlan, PlanID: row.PlanID},
		types.PlanLogParams{Title: row.Title})
	return success, nil
}

func (b *Backend) removeBackupPlan(_ context.Context, raw json.RawMessage) (any, error) {
	var params struct {
		PlanID string `json:"plan_id"`
	}
	if err := decode(raw, &params); err != nil {
		return nil, err
	}

	row, err := b.planByID(params.PlanID)
	if err != nil {
		return nil, err
	}

	// A plan with in-flight tasks cannot be removed; the operator must pause
	// or wait first.
	var inflight int64
	err = b.db.Model(&taskRow{}).
		Where("owner_plan_id = ? AND state IN ?", row.PlanID,
			[]string{string(types.TaskStatePending), string(types.TaskStateRunning)}).
		Count(&inflight).Error
	if err != nil {
		return nil, err
	}
	if inflight > 0 {
		return ignored, nil
	}

	if err := b.db.Delete(&planRow{}, "plan_id = ?", row.PlanID).Error; err != nil {
		return nil, err
	}

	b.appendLog(types.LogRemovePlan, types.LogSubject{Kind: types.SubjectPlan, PlanID: row.PlanID},
		types.PlanLogParams{Title: row.Title})
	return success, nil
}

func (b *Backend) planByID(id string) (*planRow, error) {
	if id == "" {
		return nil, invalidParams("plan_id is required")
	}
	var row planRow
	if err := b.db.First(&row, "plan_id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("plan", id)
		}
		return nil, err
	}
	return &row, nil
}
