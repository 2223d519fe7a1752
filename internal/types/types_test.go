package types

import (
	"strings"
	"testing"
)

func TestPlanSpecValidate(t *testing.T) {
	base := PlanSpec{
		Title:    "Documents nightly",
		Source:   "/home/alex/Documents",
		TargetID: "tg1",
		Priority: 5,
	}

	if err := base.Validate(); err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(s *PlanSpec)
		wantMsg string
	}{
		{"missing title", func(s *PlanSpec) { s.Title = "" }, "title"},
		{"missing source", func(s *PlanSpec) { s.Source = "" }, "source"},
		{"missing target", func(s *PlanSpec) { s.TargetID = "" }, "target"},
		{"priority too high", func(s *PlanSpec) { s.Priority = 11 }, "priority"},
		{"priority negative", func(s *PlanSpec) { s.Priority = -1 }, "priority"},
		{"negative reserved versions", func(s *PlanSpec) { s.ReservedVersions = -1 }, "reserved_versions"},
		{"bad trigger", func(s *PlanSpec) {
			s.Policy = TriggerList{{Kind: TriggerKindPeriodic, MinuteOfDay: 9999}}
		}, "trigger 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := base
			tt.mutate(&spec)
			err := spec.Validate()
			if err == nil {
				t.Fatal("expected validation failure")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Fatalf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestTargetValidate(t *testing.T) {
	tests := []struct {
		name    string
		target  Target
		wantErr bool
	}{
		{
			name:   "local target",
			target: Target{TargetID: "tg1", Type: TargetTypeLocal, URL: "file:///mnt/backup", Total: 2 << 40, Used: 1 << 30},
		},
		{
			name:   "unlimited target",
			target: Target{TargetID: "tg2", Type: TargetTypeS3, URL: "s3://bucket/prefix", Total: TargetUnlimited, Used: 5 << 40},
		},
		{
			name:    "missing id",
			target:  Target{Type: TargetTypeLocal, URL: "file:///x"},
			wantErr: true,
		},
		{
			name:    "missing url",
			target:  Target{TargetID: "tg3", Type: TargetTypeLocal},
			wantErr: true,
		},
		{
			name:    "unknown type",
			target:  Target{TargetID: "tg4", Type: TargetType("FTP"), URL: "ftp://x"},
			wantErr: true,
		},
		{
			name:    "used exceeds total",
			target:  Target{TargetID: "tg5", Type: TargetTypeLocal, URL: "file:///x", Total: 100, Used: 200},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.target.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTaskStateValid(t *testing.T) {
	for _, s := range []TaskState{TaskStatePending, TaskStateRunning, TaskStatePaused, TaskStateDone, TaskStateFailed} {
		if !s.Valid() {
			t.Errorf("state %s reported invalid", s)
		}
	}
	if TaskState("EXPLODED").Valid() {
		t.Error("unknown state reported valid")
	}
	if TaskState("").Valid() {
		t.Error("empty state reported valid")
	}
}
