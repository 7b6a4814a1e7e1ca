package scheduler

import (
	"time"

	"github.com/julianstephens/chime/internal/constants"
	"github.com/julianstephens/chime/internal/models"
)

// State describes where a reminder sits in the continuous alert cycle after evaluation.
type State int

const (
	// StateIdle means nothing has fired yet or continuous alerts are off.
	StateIdle State = iota
	// StateEscalating means the next trigger is a 5 minute repeat of the last occurrence.
	StateEscalating
	// StateSettled means the next trigger is the next natural occurrence (or nothing).
	StateSettled
	// StateDisabled means the reminder is switched off and has no trigger.
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEscalating:
		return "escalating"
	case StateSettled:
		return "settled"
	case StateDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// Evaluate advances the natural occurrence and computes NextTriggerDate,
// applying the continuous alert policy: after an occurrence P the reminder
// repeats every 5 minutes until it is acknowledged, 30 minutes of repeats
// have been spent, or more than 34 whole minutes have passed since P.
// The input is not modified.
func Evaluate(r models.Reminder, now time.Time) (models.Reminder, State) {
	r = Advance(r, now)

	if !r.Enabled {
		r.NextTriggerDate = nil
		return r, StateDisabled
	}

	prev := r.PrevReminderDate
	if prev == nil || !r.ContinuousAlert {
		r.NextTriggerDate = futureOrNil(r.NextReminderDate, now)
		return r, StateIdle
	}

	if withinGrace(*prev, now) && !acknowledgedSince(r.LastAcknowledged, *prev) {
		last := r.LastTriggerDate
		if last != nil && !last.Before(*prev) && last.Sub(*prev) < constants.EscalationBudget {
			next := last.Add(constants.EscalationInterval)
			if floor := now.Add(constants.EscalationMinDelay); floor.After(next) {
				next = floor
			}
			r.NextTriggerDate = &next
			return r, StateEscalating
		}
	}

	r.NextTriggerDate = futureOrNil(r.NextReminderDate, now)
	return r, StateSettled
}

// NextTrigger is Evaluate without the state, for callers that only need the instant.
func NextTrigger(r models.Reminder, now time.Time) *time.Time {
	out, _ := Evaluate(r, now)
	return out.NextTriggerDate
}

// withinGrace counts whole elapsed minutes, so 34m59s still qualifies.
func withinGrace(prev, now time.Time) bool {
	return int64(now.Sub(prev)/time.Minute) <= constants.EscalationGraceMin
}

func acknowledgedSince(ack *time.Time, prev time.Time) bool {
	return ack != nil && !ack.Before(prev)
}

func futureOrNil(t *time.Time, now time.Time) *time.Time {
	if t == nil || !t.After(now) {
		return nil
	}
	return models.TimePtr(*t)
}
