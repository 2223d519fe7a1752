package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func intPtr(v int) *int { return &v }

func TestTriggerListDecode(t *testing.T) {
	input := `[
		{"kind":"periodic","minute_of_day":150},
		{"kind":"periodic","minute_of_day":180,"weekday":0},
		{"kind":"periodic","minute_of_day":0,"day_of_month":31},
		{"kind":"event","debounce_seconds":300}
	]`

	var list TriggerList
	if err := json.Unmarshal([]byte(input), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(list) != 4 {
		t.Fatalf("len = %d, want 4", len(list))
	}

	if list[0].Kind != TriggerKindPeriodic || list[0].MinuteOfDay != 150 || list[0].Weekday != nil {
		t.Fatalf("trigger 0 = %+v", list[0])
	}
	if list[1].Weekday == nil || *list[1].Weekday != 0 {
		t.Fatalf("trigger 1 weekday = %v", list[1].Weekday)
	}
	if list[2].DayOfMonth == nil || *list[2].DayOfMonth != 31 {
		t.Fatalf("trigger 2 day_of_month = %v", list[2].DayOfMonth)
	}
	if list[3].Kind != TriggerKindEvent || list[3].DebounceSeconds != 300 {
		t.Fatalf("trigger 3 = %+v", list[3])
	}
}

func TestTriggerListDecodeRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantMsg string
	}{
		{
			name:    "unknown kind",
			input:   `[{"kind":"cron","minute_of_day":10}]`,
			wantMsg: "unknown trigger kind",
		},
		{
			name:    "minute out of range",
			input:   `[{"kind":"periodic","minute_of_day":1440}]`,
			wantMsg: "minute_of_day",
		},
		{
			name:    "negative minute",
			input:   `[{"kind":"periodic","minute_of_day":-1}]`,
			wantMsg: "minute_of_day",
		},
		{
			name:    "weekday and day_of_month together",
			input:   `[{"kind":"periodic","minute_of_day":10,"weekday":1,"day_of_month":5}]`,
			wantMsg: "mutually exclusive",
		},
		{
			name:    "weekday out of range",
			input:   `[{"kind":"periodic","minute_of_day":10,"weekday":7}]`,
			wantMsg: "weekday",
		},
		{
			name:    "day of month out of range",
			input:   `[{"kind":"periodic","minute_of_day":10,"day_of_month":32}]`,
			wantMsg: "day_of_month",
		},
		{
			name:    "event without debounce",
			input:   `[{"kind":"event"}]`,
			wantMsg: "debounce_seconds",
		},
		{
			name:    "one bad trigger fails the list",
			input:   `[{"kind":"periodic","minute_of_day":10},{"kind":"bogus"}]`,
			wantMsg: "trigger 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var list TriggerList
			err := json.Unmarshal([]byte(tt.input), &list)
			if err == nil {
				t.Fatal("expected a decode error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Fatalf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestTriggerValidateBoundaries(t *testing.T) {
	valid := []Trigger{
		{Kind: TriggerKindPeriodic, MinuteOfDay: 0},
		{Kind: TriggerKindPeriodic, MinuteOfDay: 1439},
		{Kind: TriggerKindPeriodic, MinuteOfDay: 60, Weekday: intPtr(6)},
		{Kind: TriggerKindPeriodic, MinuteOfDay: 60, DayOfMonth: intPtr(1)},
		{Kind: TriggerKindEvent, DebounceSeconds: 1},
	}
	for i, tr := range valid {
		if err := tr.validate(); err != nil {
			t.Errorf("trigger %d unexpectedly invalid: %v", i, err)
		}
	}
}
