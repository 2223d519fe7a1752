package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Trigger is one entry of a plan's policy: either a periodic trigger (run at
// a minute of the day, optionally pinned to a weekday or day of month) or an
// event trigger (run after a filesystem change, debounced).
//
// The wire shape is a tagged object:
//
//	{"kind":"periodic","minute_of_day":120,"weekday":1}
//	{"kind":"event","debounce_seconds":300}
//
// The variant set is closed; unknown kinds are rejected at decode time so a
// daemon/console version skew surfaces as an explicit error instead of a
// silently empty policy.
type Trigger struct {
	// Kind is "periodic" or "event".
	Kind string `json:"kind"`

	// MinuteOfDay is 0-1439 for periodic triggers: minutes after midnight.
	MinuteOfDay int `json:"minute_of_day,omitempty"`

	// Weekday pins a periodic trigger to one weekday (0 = Sunday .. 6).
	// Nil means every day (unless DayOfMonth is set).
	Weekday *int `json:"weekday,omitempty"`

	// DayOfMonth pins a periodic trigger to one day of the month (1-31).
	// Nil means no month pinning. Weekday and DayOfMonth are exclusive.
	DayOfMonth *int `json:"day_of_month,omitempty"`

	// DebounceSeconds is the quiet period an event trigger waits after the
	// last observed filesystem change before firing.
	DebounceSeconds int `json:"debounce_seconds,omitempty"`
}

const (
	TriggerKindPeriodic = "periodic"
	TriggerKindEvent    = "event"
)

func (t *Trigger) validate() error {
	switch t.Kind {
	case TriggerKindPeriodic:
		if t.MinuteOfDay < 0 || t.MinuteOfDay > 1439 {
			return fmt.Errorf("minute_of_day %d out of range [0,1439]", t.MinuteOfDay)
		}
		if t.Weekday != nil && t.DayOfMonth != nil {
			return errors.New("weekday and day_of_month are mutually exclusive")
		}
		if t.Weekday != nil && (*t.Weekday < 0 || *t.Weekday > 6) {
			return fmt.Errorf("weekday %d out of range [0,6]", *t.Weekday)
		}
		if t.DayOfMonth != nil && (*t.DayOfMonth < 1 || *t.DayOfMonth > 31) {
			return fmt.Errorf("day_of_month %d out of range [1,31]", *t.DayOfMonth)
		}
	case TriggerKindEvent:
		if t.DebounceSeconds <= 0 {
			return fmt.Errorf("debounce_seconds must be positive, got %d", t.DebounceSeconds)
		}
	default:
		return fmt.Errorf("unknown trigger kind %q", t.Kind)
	}
	return nil
}

// TriggerList is the ordered trigger collection of a plan policy.
// It decodes strictly: any trigger with an unknown kind fails the whole
// decode, per the closed-variant rule above.
type TriggerList []Trigger

// UnmarshalJSON decodes the list and validates every entry's variant shape.
func (l *TriggerList) UnmarshalJSON(data []byte) error {
	var raw []Trigger
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for i := range raw {
		if err := raw[i].validate(); err != nil {
			return fmt.Errorf("trigger %d: %w", i, err)
		}
	}
	*l = raw
	return nil
}
