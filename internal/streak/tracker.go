package streak

import (
	"errors"
	"sort"
	"time"
)

// ErrStateConflict is returned when a concurrent update changed the streak
// between read and write. Callers should reload and retry.
var ErrStateConflict = errors.New("streak state changed concurrently")

// Milestones are the streak lengths that trigger a one-time event.
var Milestones = []int{3, 7, 14, 30, 60, 100}

// Outcome names the transition taken by Apply.
type Outcome string

const (
	OutcomeStarted   Outcome = "started"
	OutcomeContinued Outcome = "continued"
	OutcomeSameDay   Outcome = "same_day"
	OutcomeFrozen    Outcome = "frozen"
	OutcomeReset     Outcome = "reset"
)

// State is a user's streak counters.
type State struct {
	CurrentStreak    int
	LongestStreak    int
	LastActivityDate *time.Time
	// Milestones already reached; each fires at most once.
	Milestones []int
}

// Freeze is a consumable token that bridges a missed day.
type Freeze struct {
	ID        uint
	CreatedAt time.Time
	ExpiresAt *time.Time
	UsedAt    *time.Time
}

// Usable reports whether the freeze is unused and unexpired at now.
func (f Freeze) Usable(now time.Time) bool {
	if f.UsedAt != nil {
		return false
	}
	return f.ExpiresAt == nil || f.ExpiresAt.After(now)
}

// Transition is the result of applying one day's activity.
type Transition struct {
	State          State
	Outcome        Outcome
	ConsumedFreeze *uint
	NewMilestones  []int
}

// Changed reports whether the transition needs to be persisted.
func (t Transition) Changed() bool {
	return t.Outcome != OutcomeSameDay
}

// Day truncates t to the start of its calendar day in loc.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// DaysBetween counts calendar days from a to b in loc, ignoring DST shifts.
func DaysBetween(a, b time.Time, loc *time.Location) int {
	da, db := Day(a, loc), Day(b, loc)
	ua := time.Date(da.Year(), da.Month(), da.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(db.Year(), db.Month(), db.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

// Apply records activity at now. Same-day calls are no-ops; activity the day
// after the last one extends the streak; a longer gap consumes the oldest
// usable freeze and extends the streak, or restarts it at 1 without one.
func Apply(state State, freezes []Freeze, now time.Time, loc *time.Location) Transition {
	next := state
	next.Milestones = append([]int(nil), state.Milestones...)
	today := Day(now, loc)

	transition := Transition{}

	switch {
	case state.LastActivityDate == nil || state.CurrentStreak <= 0:
		next.CurrentStreak = 1
		transition.Outcome = OutcomeStarted
	default:
		gap := DaysBetween(*state.LastActivityDate, today, loc)
		switch {
		case gap <= 0:
			return Transition{State: next, Outcome: OutcomeSameDay}
		case gap == 1:
			next.CurrentStreak++
			transition.Outcome = OutcomeContinued
		default:
			if freeze, ok := OldestUsable(freezes, now); ok {
				id := freeze.ID
				transition.ConsumedFreeze = &id
				next.CurrentStreak++
				transition.Outcome = OutcomeFrozen
			} else {
				next.CurrentStreak = 1
				transition.Outcome = OutcomeReset
			}
		}
	}

	next.LastActivityDate = &today
	if next.CurrentStreak > next.LongestStreak {
		next.LongestStreak = next.CurrentStreak
	}

	reached := make(map[int]struct{}, len(next.Milestones))
	for _, m := range next.Milestones {
		reached[m] = struct{}{}
	}
	for _, m := range Milestones {
		if next.CurrentStreak < m {
			break
		}
		if _, done := reached[m]; done {
			continue
		}
		next.Milestones = append(next.Milestones, m)
		transition.NewMilestones = append(transition.NewMilestones, m)
	}
	sort.Ints(next.Milestones)

	transition.State = next
	return transition
}

// Current is the streak as of now. Once a day has been missed and no usable
// freeze is left to bridge the gap, the stored streak has lapsed and reads 0.
func Current(state State, freezes []Freeze, now time.Time, loc *time.Location) int {
	if state.LastActivityDate == nil || state.CurrentStreak <= 0 {
		return 0
	}
	if DaysBetween(*state.LastActivityDate, now, loc) < 2 {
		return state.CurrentStreak
	}
	if _, ok := OldestUsable(freezes, now); ok {
		return state.CurrentStreak
	}
	return 0
}

// OldestUsable picks the earliest-created usable freeze, breaking ties by ID.
func OldestUsable(freezes []Freeze, now time.Time) (Freeze, bool) {
	var (
		best  Freeze
		found bool
	)
	for _, f := range freezes {
		if !f.Usable(now) {
			continue
		}
		if !found || f.CreatedAt.Before(best.CreatedAt) || (f.CreatedAt.Equal(best.CreatedAt) && f.ID < best.ID) {
			best = f
			found = true
		}
	}
	return best, found
}

// Available counts usable freezes at now.
func Available(freezes []Freeze, now time.Time) int {
	count := 0
	for _, f := range freezes {
		if f.Usable(now) {
			count++
		}
	}
	return count
}
