package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/keepdeck-io/keepdeck/internal/types"
)

func intPtr(v int) *int { return &v }

func TestCronExpr(t *testing.T) {
	tests := []struct {
		name    string
		trigger types.Trigger
		want    string
	}{
		{
			name:    "daily at 02:30",
			trigger: types.Trigger{Kind: types.TriggerKindPeriodic, MinuteOfDay: 150},
			want:    "30 2 * * *",
		},
		{
			name:    "midnight",
			trigger: types.Trigger{Kind: types.TriggerKindPeriodic, MinuteOfDay: 0},
			want:    "0 0 * * *",
		},
		{
			name:    "last minute of the day",
			trigger: types.Trigger{Kind: types.TriggerKindPeriodic, MinuteOfDay: 1439},
			want:    "59 23 * * *",
		},
		{
			name:    "sunday at 03:00",
			trigger: types.Trigger{Kind: types.TriggerKindPeriodic, MinuteOfDay: 180, Weekday: intPtr(0)},
			want:    "0 3 * * 0",
		},
		{
			name:    "first of the month at 04:15",
			trigger: types.Trigger{Kind: types.TriggerKindPeriodic, MinuteOfDay: 255, DayOfMonth: intPtr(1)},
			want:    "15 4 1 * *",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CronExpr(tt.trigger)
			if err != nil {
				t.Fatalf("CronExpr: %v", err)
			}
			if got != tt.want {
				t.Fatalf("CronExpr() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCronExprRejectsEventTrigger(t *testing.T) {
	_, err := CronExpr(types.Trigger{Kind: types.TriggerKindEvent, DebounceSeconds: 60})
	if !errors.Is(err, ErrNotPeriodic) {
		t.Fatalf("err = %v, want ErrNotPeriodic", err)
	}
}

func TestNextRun(t *testing.T) {
	// Wednesday 2026-01-07 12:00 UTC.
	from := time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC)

	t.Run("daily trigger fires tomorrow when today's slot passed", func(t *testing.T) {
		policy := types.TriggerList{
			{Kind: types.TriggerKindPeriodic, MinuteOfDay: 150}, // 02:30
		}
		next, ok := NextRun(policy, from)
		if !ok {
			t.Fatal("expected a next run")
		}
		want := time.Date(2026, 1, 8, 2, 30, 0, 0, time.UTC)
		if !next.Equal(want) {
			t.Fatalf("next = %v, want %v", next, want)
		}
	})

	t.Run("earliest trigger across the policy wins", func(t *testing.T) {
		policy := types.TriggerList{
			{Kind: types.TriggerKindPeriodic, MinuteOfDay: 180, Weekday: intPtr(0)}, // Sunday 03:00
			{Kind: types.TriggerKindPeriodic, MinuteOfDay: 900},                     // daily 15:00
		}
		next, ok := NextRun(policy, from)
		if !ok {
			t.Fatal("expected a next run")
		}
		want := time.Date(2026, 1, 7, 15, 0, 0, 0, time.UTC)
		if !next.Equal(want) {
			t.Fatalf("next = %v, want %v", next, want)
		}
	})

	t.Run("event triggers are skipped", func(t *testing.T) {
		policy := types.TriggerList{
			{Kind: types.TriggerKindEvent, DebounceSeconds: 300},
			{Kind: types.TriggerKindPeriodic, MinuteOfDay: 780}, // daily 13:00
		}
		next, ok := NextRun(policy, from)
		if !ok {
			t.Fatal("expected a next run")
		}
		want := time.Date(2026, 1, 7, 13, 0, 0, 0, time.UTC)
		if !next.Equal(want) {
			t.Fatalf("next = %v, want %v", next, want)
		}
	})

	t.Run("event-only policy has no next run", func(t *testing.T) {
		policy := types.TriggerList{
			{Kind: types.TriggerKindEvent, DebounceSeconds: 300},
		}
		if _, ok := NextRun(policy, from); ok {
			t.Fatal("event-only policy reported a next run")
		}
	})

	t.Run("empty policy has no next run", func(t *testing.T) {
		if _, ok := NextRun(nil, from); ok {
			t.Fatal("empty policy reported a next run")
		}
	})

	t.Run("strictly after from", func(t *testing.T) {
		at := time.Date(2026, 1, 7, 2, 30, 0, 0, time.UTC)
		policy := types.TriggerList{
			{Kind: types.TriggerKindPeriodic, MinuteOfDay: 150},
		}
		next, ok := NextRun(policy, at)
		if !ok {
			t.Fatal("expected a next run")
		}
		if !next.After(at) {
			t.Fatalf("next = %v, not after %v", next, at)
		}
	})
}
