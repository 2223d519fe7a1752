package simulator

import (
	"context"
	"encoding/json"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/keepdeck-io/keepdeck/internal/types"
)

// -----------------------------------------------------------------------------
// Virtual filesystem
// -----------------------------------------------------------------------------

// defaultTree is the browsable directory layout served to the plan wizard.
func defaultTree() map[string][]fsNode {
	return map[string][]fsNode{
		"/": {
			{name: "home", isDir: true},
			{name: "etc", isDir: true},
			{name: "var", isDir: true},
		},
		"/home": {
			{name: "alex", isDir: true},
		},
		"/home/alex": {
			{name: "Documents", isDir: true},
			{name: "Pictures", isDir: true},
			{name: "notes.txt", size: 4 << 10},
		},
		"/home/alex/Documents": {
			{name: "papers", isDir: true},
			{name: "resume.pdf", size: 180 << 10},
			{name: "ledger.xlsx", size: 96 << 10},
		},
		"/home/alex/Documents/papers": {
			{name: "draft-01.md", size: 22 << 10},
			{name: "draft-02.md", size: 31 << 10},
		},
		"/home/alex/Pictures": {
			{name: "2025", isDir: true},
			{name: "avatar.png", size: 512 << 10},
		},
		"/home/alex/Pictures/2025": {
			{name: "trip-001.jpg", size: 3 << 20},
			{name: "trip-002.jpg", size: 4 << 20},
		},
		"/etc": {
			{name: "hosts", size: 256},
			{name: "fstab", size: 512},
		},
		"/var": {
			{name: "log", isDir: true},
		},
		"/var/log": {
			{name: "syslog", size: 12 << 20},
		},
	}
}

func (b *Backend) validatePath(_ context.Context, raw json.RawMessage) (any, error) {
	var params struct {
		Path string `json:"path"`
	}
	if err := decode(raw, &params); err != nil {
		return nil, err
	}
	return map[string]bool{"valid": b.pathExists(params.Path)}, nil
}

func (b *Backend) listDirectoryChildren(_ context.Context, raw json.RawMessage) (any, error) {
	var params struct {
		Path string `json:"path"`
	}
	if err := decode(raw, &params); err != nil {
		return nil, err
	}

	clean := cleanPath(params.Path)
	nodes, ok := b.fs[clean]
	if !ok {
		return nil, notFound("directory", clean)
	}

	children := make([]types.DirEntry, len(nodes))
	for i, n := range nodes {
		children[i] = types.DirEntry{Name: n.name, IsDir: n.isDir, Size: n.size}
	}
	return map[string]any{"children": children}, nil
}

// pathExists reports whether p names a known directory or a file inside one.
func (b *Backend) pathExists(p string) bool {
	clean := cleanPath(p)
	if clean == "" {
		return false
	}
	if _, ok := b.fs[clean]; ok {
		return true
	}
	parent := path.Dir(clean)
	base := path.Base(clean)
	for _, n := range b.fs[parent] {
		if n.name == base {
			return true
		}
	}
	return false
}

func cleanPath(p string) string {
	if p == "" || !strings.HasPrefix(p, "/") {
		return ""
	}
	return path.Clean(p)
}

// -----------------------------------------------------------------------------
// Activity log
// -----------------------------------------------------------------------------

// appendLog writes one record. Log failures never fail the operation that
// produced them; they are logged and dropped, matching the daemon.
func (b *Backend) appendLog(t types.LogType, subject types.LogSubject, params types.LogParams) {
	payload, err := json.Marshal(params)
	if err != nil {
		b.logger.Error("encode log params", zap.String("type", string(t)), zap.Error(err))
		return
	}

	row := logRow{
		Timestamp:   nowMilli(b.now),
		SubjectKind: string(subject.Kind),
		PlanID:      subject.PlanID,
		TargetID:    subject.TargetID,
		TaskID:      subject.TaskID,
		Type:        string(t),
		Params:      string(payload),
	}
	if err := b.db.Create(&row).Error; err != nil {
		b.logger.Error("append log record", zap.String("type", string(t)), zap.Error(err))
	}
}

func (b *Backend) listLogs(_ context.Context, raw json.RawMessage) (any, error) {
	var params struct {
		Filter types.LogFilter `json:"filter"`
		Offset int             `json:"offset"`
		Limit  int             `json:"limit"`
	}
	if err := decode(raw, &params); err != nil {
		return nil, err
	}

	q := b.db.Model(&logRow{})
	if params.Filter.Kind != "" {
		q = q.Where("subject_kind = ?", string(params.Filter.Kind))
	}
	if params.Filter.PlanID != "" {
		q = q.Where("plan_id = ?", params.Filter.PlanID)
	}
	if params.Filter.TargetID != "" {
		q = q.Where("target_id = ?", params.Filter.TargetID)
	}
	if params.Filter.TaskID != "" {
		q = q.Where("task_id = ?", params.Filter.TaskID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}

	q = q.Order("seq DESC").Offset(params.Offset)
	if params.Limit > 0 {
		q = q.Limit(params.Limit)
	}

	var rows []logRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]types.LogRecord, 0, len(rows))
	for i := range rows {
		rec, err := logFromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return types.LogPage{Records: records, Total: total}, nil
}

// -----------------------------------------------------------------------------
// Summaries
// -----------------------------------------------------------------------------

func (b *Backend) consumeSizeSummary(_ context.Context, _ json.RawMessage) (any, error) {
	var targets []targetRow
	if err := b.db.Find(&targets).Error; err != nil {
		return nil, err
	}

	s := types.SizeSummary{TargetCount: len(targets)}
	bounded := true
	for i := range targets {
		s.TotalUsed += targets[i].Used
		if targets[i].Total == types.TargetUnlimited {
			bounded = false
			continue
		}
		s.TotalCapacity += targets[i].Total
	}
	if !bounded && s.TotalCapacity == 0 {
		s.TotalCapacity = types.TargetUnlimited
	}

	var plans int64
	if err := b.db.Model(&planRow{}).Count(&plans).Error; err != nil {
		return nil, err
	}
	s.PlanCount = int(plans)
	return s, nil
}

func (b *Backend) statisticsSummary(_ context.Context, _ json.RawMessage) (any, error) {
	if err := b.advanceAll(); err != nil {
		return nil, err
	}

	var s types.Statistics

	var plans []planRow
	if err := b.db.Find(&plans).Error; err != nil {
		return nil, err
	}
	for i := range plans {
		s.TotalBackupCount += plans[i].TotalBackup
		s.TotalBackupSize += plans[i].TotalSize
		if plans[i].LastRunTime > s.LastBackupTime {
			s.LastBackupTime = plans[i].LastRunTime
		}
	}

	counts := []struct {
		dst   *int64
		where string
		args  []any
	}{
		{&s.RunningTaskCount, "state IN ?", []any{[]string{string(types.TaskStatePending), string(types.TaskStateRunning)}}},
		{&s.FailedTaskCount, "state = ?", []any{string(types.TaskStateFailed)}},
		{&s.CheckpointCount, "type = ? AND state = ?", []any{string(types.TaskTypeBackup), string(types.TaskStateDone)}},
		{&s.RestoreCount, "type = ? AND state = ?", []any{string(types.TaskTypeRestore), string(types.TaskStateDone)}},
	}
	for _, c := range counts {
		if err := b.db.Model(&taskRow{}).Where(c.where, c.args...).Count(c.dst).Error; err != nil {
			return nil, err
		}
	}
	return s, nil
}
