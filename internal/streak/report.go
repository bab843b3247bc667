package streak

import (
	"math"
	"time"
)

// Session is a single attendance session.
type Session struct {
	StartedAt time.Time
	EndedAt   *time.Time
}

// Minutes returns the session length, treating open sessions as ending at now.
func (s Session) Minutes(now time.Time) float64 {
	end := now
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	if !end.After(s.StartedAt) {
		return 0
	}
	return end.Sub(s.StartedAt).Minutes()
}

// DailyAttendance summarises one calendar day.
type DailyAttendance struct {
	Date     time.Time `json:"date"`
	Sessions int       `json:"sessions"`
	Minutes  float64   `json:"minutes"`
	Active   bool      `json:"active"`
}

// WeeklyReport aggregates a seven-day window of attendance.
type WeeklyReport struct {
	WeekStart            time.Time         `json:"week_start"`
	WeekEnd              time.Time         `json:"week_end"`
	Days                 []DailyAttendance `json:"days"`
	ActiveDays           int               `json:"active_days"`
	TotalSessions        int               `json:"total_sessions"`
	TotalMinutes         float64           `json:"total_minutes"`
	AverageMinutesActive float64           `json:"average_minutes_per_active_day"`
}

// WeekStart returns the Monday that starts the week containing t in loc.
func WeekStart(t time.Time, loc *time.Location) time.Time {
	day := Day(t, loc)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// BuildWeeklyReport buckets sessions by the calendar day they started on
// within the seven days beginning at weekStart.
func BuildWeeklyReport(sessions []Session, weekStart, now time.Time, loc *time.Location) WeeklyReport {
	start := Day(weekStart, loc)
	report := WeeklyReport{
		WeekStart: start,
		WeekEnd:   start.AddDate(0, 0, 7),
		Days:      make([]DailyAttendance, 7),
	}
	for i := range report.Days {
		report.Days[i].Date = start.AddDate(0, 0, i)
	}

	for _, s := range sessions {
		idx := DaysBetween(start, s.StartedAt, loc)
		if idx < 0 || idx >= 7 {
			continue
		}
		minutes := s.Minutes(now)
		report.Days[idx].Sessions++
		report.Days[idx].Minutes += minutes
		report.TotalSessions++
		report.TotalMinutes += minutes
	}

	for i := range report.Days {
		report.Days[i].Minutes = round1(report.Days[i].Minutes)
		if report.Days[i].Sessions > 0 {
			report.Days[i].Active = true
			report.ActiveDays++
		}
	}

	report.TotalMinutes = round1(report.TotalMinutes)
	if report.ActiveDays > 0 {
		report.AverageMinutesActive = round1(report.TotalMinutes / float64(report.ActiveDays))
	}

	return report
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
