package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/keepdeck-io/keepdeck/internal/rpc"
	"github.com/keepdeck-io/keepdeck/internal/types"
)

// Seed populates the backend with a small believable dataset: two targets,
// two plans, and one completed backup run per plan. Demo mode calls it once
// at startup so the UI opens on populated views instead of empty states.
func (b *Backend) Seed(ctx context.Context) error {
	localID, err := b.seedTarget(ctx, types.TargetTypeLocal, "file:///mnt/backup", "External disk")
	if err != nil {
		return err
	}
	s3ID, err := b.seedTarget(ctx, types.TargetTypeS3, "s3://keepdeck-demo/backups", "Offsite bucket")
	if err != nil {
		return err
	}

	sunday := 0
	plans := []types.PlanSpec{
		{
			Title:            "Documents nightly",
			Description:      "Home documents, every night at 02:30",
			Source:           "/home/alex/Documents",
			TargetID:         localID,
			Policy:           types.TriggerList{{Kind: types.TriggerKindPeriodic, MinuteOfDay: 2*60 + 30}},
			Priority:         5,
			ReservedVersions: 14,
		},
		{
			Title:            "Pictures weekly",
			Description:      "Photo archive to the offsite bucket",
			Source:           "/home/alex/Pictures",
			TargetID:         s3ID,
			Policy:           types.TriggerList{{Kind: types.TriggerKindPeriodic, MinuteOfDay: 3 * 60, Weekday: &sunday}},
			Priority:         3,
			ReservedVersions: 8,
		},
	}

	for _, spec := range plans {
		if err := b.seedPlanWithRun(ctx, spec); err != nil {
			return err
		}
	}

	b.logger.Info("seeded demo dataset")
	return nil
}

func (b *Backend) seedTarget(ctx context.Context, t types.TargetType, url, name string) (string, error) {
	raw, err := b.Call(ctx, rpc.MethodCreateBackupTarget, map[string]any{
		"target_type": t,
		"url":         url,
		"name":        name,
	})
	if err != nil {
		return "", fmt.Errorf("simulator: seed target %s: %w", name, err)
	}
	var res struct {
		TargetID string `json:"target_id"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", fmt.Errorf("simulator: seed target %s: %w", name, err)
	}
	return res.TargetID, nil
}

// seedPlanWithRun creates a plan and rolls one backup run to completion by
// rewinding the clock around the creation, so the demo opens with history
// instead of live tasks.
func (b *Backend) seedPlanWithRun(ctx context.Context, spec types.PlanSpec) error {
	raw, err := b.Call(ctx, rpc.MethodCreateBackupPlan, spec)
	if err != nil {
		return fmt.Errorf("simulator: seed plan %s: %w", spec.Title, err)
	}
	var res struct {
		PlanID string `json:"plan_id"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return fmt.Errorf("simulator: seed plan %s: %w", spec.Title, err)
	}

	// Back-date the run far enough that the whole transfer fits between
	// creation and the first observation.
	backdate := time.Duration(b.cfg.TaskSize/b.cfg.TransferRate+2)*time.Second + b.cfg.StartDelay
	origNow := b.now
	b.now = func() time.Time { return origNow().Add(-backdate) }

	rawTask, err := b.Call(ctx, rpc.MethodCreateBackupTask, map[string]any{"plan_id": res.PlanID})
	b.now = origNow
	if err != nil {
		return fmt.Errorf("simulator: seed run for %s: %w", spec.Title, err)
	}

	var task types.Task
	if err := json.Unmarshal(rawTask, &task); err != nil {
		return fmt.Errorf("simulator: seed run for %s: %w", spec.Title, err)
	}
	if _, err := b.Call(ctx, rpc.MethodGetTaskInfo, map[string]any{"taskid": task.TaskID}); err != nil {
		return fmt.Errorf("simulator: seed run for %s: %w", spec.Title, err)
	}
	return nil
}
