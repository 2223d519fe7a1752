// Package schedule computes display information for plan policies: the cron
// expression equivalent of a periodic trigger and the next time a policy
// will fire. The daemon owns actual scheduling; these helpers exist so the
// plan list can show "next run" without a round-trip.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/keepdeck-io/keepdeck/internal/types"
)

// ErrNotPeriodic is returned when a cron expression is requested for an
// event trigger, which fires on filesystem changes rather than a clock.
var ErrNotPeriodic = errors.New("schedule: trigger is not periodic")

// CronExpr renders a periodic trigger as a standard five-field cron
// expression. Weekday pinning maps to the day-of-week field, day-of-month
// pinning to the day-of-month field; an unpinned trigger fires daily.
func CronExpr(t types.Trigger) (string, error) {
	if t.Kind != types.TriggerKindPeriodic {
		return "", ErrNotPeriodic
	}

	minute := t.MinuteOfDay % 60
	hour := t.MinuteOfDay / 60

	switch {
	case t.Weekday != nil:
		return fmt.Sprintf("%d %d * * %d", minute, hour, *t.Weekday), nil
	case t.DayOfMonth != nil:
		return fmt.Sprintf("%d %d %d * *", minute, hour, *t.DayOfMonth), nil
	default:
		return fmt.Sprintf("%d %d * * *", minute, hour), nil
	}
}

// NextRun returns the earliest upcoming fire time across all periodic
// triggers of a policy, strictly after from. The second return is false when
// the policy has no periodic trigger (event-only or empty policies have no
// predictable next run).
func NextRun(policy types.TriggerList, from time.Time) (time.Time, bool) {
	var next time.Time
	found := false

	for _, trg := range policy {
		if trg.Kind != types.TriggerKindPeriodic {
			continue
		}

		expr, err := CronExpr(trg)
		if err != nil {
			continue
		}
		sched, err := cron.ParseStandard(expr)
		if err != nil {
			// CronExpr only emits well-formed expressions; a parse failure
			// here means the trigger escaped boundary validation.
			continue
		}

		n := sched.Next(from)
		if !found || n.Before(next) {
			next = n
			found = true
		}
	}

	return next, found
}
