package schedule

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"instabridge/pkg/settings"
)

// ResolveLocation loads tz, falling back to Europe/Berlin for empty or unknown names
func ResolveLocation(tz string) (*time.Location, string) {
	tz = strings.TrimSpace(tz)
	if tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc, tz
		}
	}
	loc, err := time.LoadLocation(settings.DefaultTZ)
	if err != nil {
		return time.UTC, "UTC"
	}
	return loc, settings.DefaultTZ
}

func clock(hhmm string) (int, int) {
	hh, mm, ok := settings.ParseHHMM(hhmm)
	if !ok {
		hh, mm, _ = settings.ParseHHMM(settings.DefaultTime)
	}
	return hh, mm
}

// DailyExpr is the cron expression firing every day at hhmm
func DailyExpr(hhmm string) string {
	hh, mm := clock(hhmm)
	return fmt.Sprintf("%d %d * * *", mm, hh)
}

// CronSpec is DailyExpr pinned to a timezone, as the scheduler expects it
func CronSpec(tz, hhmm string) string {
	_, name := ResolveLocation(tz)
	return fmt.Sprintf("CRON_TZ=%s %s", name, DailyExpr(hhmm))
}

// NextDailyRun returns the next hhmm strictly after now, in now's location.
// Invalid times fall back to 19:00.
func NextDailyRun(now time.Time, hhmm string) time.Time {
	next, err := gronx.NextTickAfter(DailyExpr(hhmm), now, false)
	if err != nil {
		hh, mm := clock(hhmm)
		today := time.Date(now.Year(), now.Month(), now.Day(), hh, mm, 0, 0, now.Location())
		if now.Before(today) {
			return today
		}
		return today.AddDate(0, 0, 1)
	}
	return next.In(now.Location())
}

var weekdays = map[string]time.Weekday{
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
	"sun": time.Sunday, "sunday": time.Sunday,
}

// ParseWeekday accepts full and short English day names. Unknown names are Sunday.
func ParseWeekday(v string) time.Weekday {
	if d, ok := weekdays[strings.ToLower(strings.TrimSpace(v))]; ok {
		return d
	}
	return time.Sunday
}

// WeeklyExpr is the cron expression firing on day at hhmm
func WeeklyExpr(day time.Weekday, hhmm string) string {
	hh, mm := clock(hhmm)
	return fmt.Sprintf("%d %d * * %d", mm, hh, int(day))
}

// NextWeeklyRun returns the next day at hhmm strictly after now
func NextWeeklyRun(now time.Time, day time.Weekday, hhmm string) time.Time {
	next, err := gronx.NextTickAfter(WeeklyExpr(day, hhmm), now, false)
	if err != nil {
		hh, mm := clock(hhmm)
		target := time.Date(now.Year(), now.Month(), now.Day(), hh, mm, 0, 0, now.Location())
		target = target.AddDate(0, 0, (int(day)-int(now.Weekday())+7)%7)
		if !target.After(now) {
			target = target.AddDate(0, 0, 7)
		}
		return target
	}
	return next.In(now.Location())
}

// Entry is one recipient's effective schedule
type Entry struct {
	RecipientID   string     `json:"recipient_id"`
	RecipientName string     `json:"recipient_name"`
	Enabled       bool       `json:"enabled"`
	NextRun       *time.Time `json:"next_run"`
	TZ            string     `json:"tz"`
	Time          string     `json:"time"`
}

// Plan lists the effective schedule of every eligible recipient, soonest
// first, then by name. Disabled schedules sort last.
func Plan(doc *settings.Document, now time.Time) []Entry {
	entries := []Entry{}
	if doc == nil {
		return entries
	}
	for _, r := range doc.Eligible() {
		enabled, tz, hhmm := settings.EffectiveSchedule(r, doc.Schedule)
		loc, tzName := ResolveLocation(tz)
		e := Entry{
			RecipientID:   r.ID,
			RecipientName: r.DisplayName,
			Enabled:       enabled,
			TZ:            tzName,
			Time:          hhmm,
		}
		if enabled {
			next := NextDailyRun(now.In(loc), hhmm)
			e.NextRun = &next
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		switch {
		case a.NextRun != nil && b.NextRun != nil && !a.NextRun.Equal(*b.NextRun):
			return a.NextRun.Before(*b.NextRun)
		case a.NextRun != nil && b.NextRun == nil:
			return true
		case a.NextRun == nil && b.NextRun != nil:
			return false
		}
		return a.RecipientName < b.RecipientName
	})
	return entries
}
