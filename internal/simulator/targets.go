package simulator

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/keepdeck-io/keepdeck/internal/types"
)

// demoCapacity is the capacity reported for simulated LOCAL targets. NDN and
// S3 targets report no bound.
const demoCapacity int64 = 2 << 40

func (b *Backend) createBackupTarget(_ context.Context, raw json.RawMessage) (any, error) {
	var spec struct {
		Type        types.TargetType `json:"target_type"`
		URL         string           `json:"url"`
		Name        string           `json:"name"`
		Description string           `json:"description"`
	}
	if err := decode(raw, &spec); err != nil {
		return nil, err
	}
	if spec.URL == "" {
		return nil, invalidParams("url is required")
	}
	switch spec.Type {
	case types.TargetTypeLocal, types.TargetTypeNDN, types.TargetTypeS3:
	default:
		return nil, invalidParams("unknown target_type " + string(spec.Type))
	}

	total := types.TargetUnlimited
	if spec.Type == types.TargetTypeLocal {
		total = demoCapacity
	}

	now := nowMilli(b.now)
	row := targetRow{
		TargetID:    "target-" + uuid.NewString(),
		Type:        string(spec.Type),
		URL:         spec.URL,
		Name:        spec.Name,
		Description: spec.Description,
		State:       string(types.TargetStateOnline),
		Total:       total,
		CreateTime:  now,
		UpdateTime:  now,
	}
	if err := b.db.Create(&row).Error; err != nil {
		return nil, err
	}

	b.appendLog(types.LogCreateTarget, types.LogSubject{Kind: types.SubjectTarget, TargetID: row.TargetID},
		types.TargetLogParams{Name: row.Name, URL: row.URL})

	return map[string]string{"target_id": row.TargetID}, nil
}

func (b *Backend) listBackupTarget(_ context.Context, _ json.RawMessage) (any, error) {
	var ids []string
	if err := b.db.Model(&targetRow{}).Order("create_time ASC").Pluck("target_id", &ids).Error; err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return map[string]any{"target_ids": ids}, nil
}

func (b *Backend) getBackupTarget(_ context.Context, raw json.RawMessage) (any, error) {
	var params struct {
		TargetID string `json:"target_id"`
	}
	if err := decode(raw, &params); err != nil {
		return nil, err
	}

	row, err := b.targetByID(params.TargetID)
	if err != nil {
		return nil, err
	}
	return targetFromRow(row), nil
}

func (b *Backend) updateBackupTarget(_ context.Context, raw json.RawMessage) (any, error) {
	var target types.Target
	if err := decode(raw, &target); err != nil {
		return nil, err
	}

	row, err := b.targetByID(target.TargetID)
	if err != nil {
		return nil, err
	}

	// Connectivity state and usage counters are daemon-observed; only the
	// descriptive fields are writable.
	row.URL = target.URL
	row.Name = target.Name
	row.Description = target.Description
	row.UpdateTime = nowMilli(b.now)

	if err := b.db.Save(row).Error; err != nil {
		return nil, err
	}

	b.appendLog(types.LogUpdateTarget, types.LogSubject{Kind: types.SubjectTarget, TargetID: row.TargetID},
		types.TargetLogParams{Name: row.Name, URL: row.URL})
	return success, nil
}

func (b *Backend) removeBackupTarget(_ context.Context, raw json.RawMessage) (any, error) {
	var params struct {
		TargetID string `json:"target_id"`
	}
	if err := decode(raw, &params); err != nil {
		return nil, err
	}

	row, err := b.targetByID(params.TargetID)
	if err != nil {
		return nil, err
	}

	// Targets still referenced by a plan cannot be removed.
	var refs int64
	if err := b.db.Model(&planRow{}).Where("target_id = ?", row.TargetID).Count(&refs).Error; err != nil {
		return nil, err
	}
	if refs > 0 {
		return ignored, nil
	}

	if err := b.db.Delete(&targetRow{}, "target_id = ?", row.TargetID).Error; err != nil {
		return nil, err
	}

	b.appendLog(types.LogRemoveTarget, types.LogSubject{Kind: types.SubjectTarget, TargetID: row.TargetID},
		types.TargetLogParams{Name: row.Name, URL: row.URL})
	return success, nil
}

// SetTargetState flips a target's observed connectivity state out of band.
// Demo tooling uses it to exercise the console's CHANGE_TARGET_STATE path.
func (b *Backend) SetTargetState(targetID string, state types.TargetState, lastError string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	row, err := b.targetByID(targetID)
	if err != nil {
		return err
	}

	old := types.TargetState(row.State)
	if old == state {
		return nil
	}

	row.State = string(state)
	row.LastError = lastError
	row.UpdateTime = nowMilli(b.now)
	if err := b.db.Save(row).Error; err != nil {
		return err
	}

	b.appendLog(types.LogTargetState, types.LogSubject{Kind: types.SubjectTarget, TargetID: row.TargetID},
		types.TargetStateLogParams{OldState: old, NewState: state})
	return nil
}

func (b *Backend) targetByID(id string) (*targetRow, error) {
	if id == "" {
		return nil, invalidParams("target_id is required")
	}
	var row targetRow
	if err := b.db.First(&row, "target_id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("target", id)
		}
		return nil, err
	}
	return &row, nil
}
