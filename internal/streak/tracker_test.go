package streak

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func TestApplyConsecutiveDays(t *testing.T) {
	state := State{}
	start := date(2025, 6, 1, 9)

	for i := 0; i < 10; i++ {
		tr := Apply(state, nil, start.AddDate(0, 0, i), time.UTC)
		state = tr.State
		require.Equal(t, i+1, state.CurrentStreak)
	}

	require.Equal(t, 10, state.LongestStreak)
	require.Equal(t, []int{3, 7}, state.Milestones)
}

func TestApplySameDayIsIdempotent(t *testing.T) {
	first := Apply(State{}, nil, date(2025, 6, 1, 8), time.UTC)
	require.Equal(t, OutcomeStarted, first.Outcome)

	second := Apply(first.State, nil, date(2025, 6, 1, 22), time.UTC)
	require.Equal(t, OutcomeSameDay, second.Outcome)
	require.False(t, second.Changed())
	require.Equal(t, first.State, second.State)
}

func TestApplyGapWithoutFreezeResetsToOne(t *testing.T) {
	state := State{CurrentStreak: 4, LongestStreak: 9, LastActivityDate: timePtr(date(2025, 6, 1, 0))}

	tr := Apply(state, nil, date(2025, 6, 3, 10), time.UTC)
	require.Equal(t, OutcomeReset, tr.Outcome)
	require.Equal(t, 1, tr.State.CurrentStreak)
	require.Equal(t, 9, tr.State.LongestStreak)
	require.Nil(t, tr.ConsumedFreeze)
}

func TestApplyGapConsumesFreeze(t *testing.T) {
	state := State{CurrentStreak: 5, LongestStreak: 5, LastActivityDate: timePtr(date(2025, 6, 1, 0)), Milestones: []int{3}}
	freezes := []Freeze{{ID: 7, CreatedAt: date(2025, 5, 20, 0)}}

	tr := Apply(state, freezes, date(2025, 6, 3, 12), time.UTC)
	require.Equal(t, OutcomeFrozen, tr.Outcome)
	require.Equal(t, 6, tr.State.CurrentStreak)
	require.Equal(t, 6, tr.State.LongestStreak)
	require.NotNil(t, tr.ConsumedFreeze)
	require.Equal(t, uint(7), *tr.ConsumedFreeze)
	require.Empty(t, tr.NewMilestones)
}

func TestOldestUsableFreezeIsConsumedFirst(t *testing.T) {
	now := date(2025, 6, 10, 0)
	freezes := []Freeze{
		{ID: 3, CreatedAt: date(2025, 6, 5, 0), ExpiresAt: timePtr(date(2025, 6, 12, 0))},
		{ID: 2, CreatedAt: date(2025, 6, 2, 0), ExpiresAt: timePtr(date(2025, 6, 30, 0))},
		{ID: 1, CreatedAt: date(2025, 6, 1, 0), ExpiresAt: timePtr(date(2025, 6, 9, 0))},
		{ID: 4, CreatedAt: date(2025, 5, 1, 0), UsedAt: timePtr(date(2025, 5, 3, 0))},
	}

	oldest, ok := OldestUsable(freezes, now)
	require.True(t, ok)
	require.Equal(t, uint(2), oldest.ID)
	require.Equal(t, 2, Available(freezes, now))
}

func TestOldestUsableTieBreaksOnID(t *testing.T) {
	created := date(2025, 6, 1, 0)
	oldest, ok := OldestUsable([]Freeze{{ID: 9, CreatedAt: created}, {ID: 4, CreatedAt: created}}, created)
	require.True(t, ok)
	require.Equal(t, uint(4), oldest.ID)
}

func TestMilestonesFireOnce(t *testing.T) {
	state := State{CurrentStreak: 2, LongestStreak: 2, LastActivityDate: timePtr(date(2025, 6, 2, 0))}

	tr := Apply(state, nil, date(2025, 6, 3, 0), time.UTC)
	require.Equal(t, []int{3}, tr.NewMilestones)

	again := Apply(tr.State, nil, date(2025, 6, 3, 18), time.UTC)
	require.Empty(t, again.NewMilestones)

	reset := Apply(tr.State, nil, date(2025, 6, 10, 0), time.UTC)
	reset = Apply(reset.State, nil, date(2025, 6, 11, 0), time.UTC)
	reset = Apply(reset.State, nil, date(2025, 6, 12, 0), time.UTC)
	require.Equal(t, 3, reset.State.CurrentStreak)
	require.Empty(t, reset.NewMilestones)
}

func TestApplyUsesCalendarDaysInLocation(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*60*60)
	state := State{CurrentStreak: 1, LongestStreak: 1, LastActivityDate: timePtr(Day(date(2025, 6, 1, 16), jakarta))}

	// 16:00 UTC on June 1 is already June 2 in Jakarta, so this is the same day.
	tr := Apply(state, nil, date(2025, 6, 1, 20), jakarta)
	require.Equal(t, OutcomeSameDay, tr.Outcome)

	tr = Apply(state, nil, date(2025, 6, 2, 18), jakarta)
	require.Equal(t, OutcomeContinued, tr.Outcome)
	require.Equal(t, 2, tr.State.CurrentStreak)
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	state := State{CurrentStreak: 2, LongestStreak: 2, LastActivityDate: timePtr(date(2025, 6, 1, 0)), Milestones: []int{}}
	_ = Apply(state, nil, date(2025, 6, 2, 0), time.UTC)
	require.Equal(t, 2, state.CurrentStreak)
	require.Empty(t, state.Milestones)
}

func TestCurrentLapsesAfterMissedDay(t *testing.T) {
	state := State{CurrentStreak: 5, LongestStreak: 8, LastActivityDate: timePtr(date(2025, 6, 1, 0))}

	require.Equal(t, 5, Current(state, nil, date(2025, 6, 1, 23), time.UTC))
	require.Equal(t, 5, Current(state, nil, date(2025, 6, 2, 23), time.UTC))
	require.Equal(t, 0, Current(state, nil, date(2025, 6, 3, 0), time.UTC))
	require.Equal(t, 0, Current(state, nil, date(2025, 6, 20, 0), time.UTC))

	freezes := []Freeze{{ID: 1, CreatedAt: date(2025, 5, 1, 0)}}
	require.Equal(t, 5, Current(state, freezes, date(2025, 6, 20, 0), time.UTC))

	used := []Freeze{{ID: 1, CreatedAt: date(2025, 5, 1, 0), UsedAt: timePtr(date(2025, 5, 2, 0))}}
	require.Equal(t, 0, Current(state, used, date(2025, 6, 20, 0), time.UTC))

	require.Equal(t, 0, Current(State{}, freezes, date(2025, 6, 1, 0), time.UTC))
}

func TestBuildWeeklyReport(t *testing.T) {
	weekStart := WeekStart(date(2025, 6, 12, 15), time.UTC)
	require.Equal(t, date(2025, 6, 9, 0), weekStart)

	now := date(2025, 6, 14, 12)
	sessions := []Session{
		{StartedAt: date(2025, 6, 9, 8), EndedAt: timePtr(date(2025, 6, 9, 9))},
		{StartedAt: date(2025, 6, 9, 20), EndedAt: timePtr(date(2025, 6, 9, 20).Add(30 * time.Minute))},
		{StartedAt: date(2025, 6, 11, 7), EndedAt: timePtr(date(2025, 6, 11, 7).Add(45 * time.Minute))},
		{StartedAt: date(2025, 6, 14, 11)},
		{StartedAt: date(2025, 6, 8, 10), EndedAt: timePtr(date(2025, 6, 8, 11))},
	}

	report := BuildWeeklyReport(sessions, weekStart, now, time.UTC)
	require.Equal(t, 3, report.ActiveDays)
	require.Equal(t, 4, report.TotalSessions)
	require.Equal(t, 195.0, report.TotalMinutes)
	require.Equal(t, 65.0, report.AverageMinutesActive)
	require.Equal(t, 2, report.Days[0].Sessions)
	require.Equal(t, 90.0, report.Days[0].Minutes)
	require.False(t, report.Days[1].Active)
	require.Equal(t, 60.0, report.Days[5].Minutes)
	require.Equal(t, date(2025, 6, 16, 0), report.WeekEnd)
}
