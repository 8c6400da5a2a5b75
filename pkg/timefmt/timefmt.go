// Package timefmt renders timestamps for feeds, comments and conversations.
package timefmt

import (
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	day   = 24 * time.Hour
	month = 30 * day
	year  = 365 * day
)

// Thresholds are exclusive upper bounds: a difference must strictly exceed
// a unit before it is counted in that unit.
var magnitudes = []humanize.RelTimeMagnitude{
	{D: 61 * time.Second, Format: "%d seconds %s", DivBy: time.Second},
	{D: 120 * time.Second, Format: "1 minute %s", DivBy: 1},
	{D: time.Hour + time.Second, Format: "%d minutes %s", DivBy: time.Minute},
	{D: 2 * time.Hour, Format: "1 hour %s", DivBy: 1},
	{D: day + time.Second, Format: "%d hours %s", DivBy: time.Hour},
	{D: 2 * day, Format: "1 day %s", DivBy: 1},
	{D: month + time.Second, Format: "%d days %s", DivBy: day},
	{D: 2 * month, Format: "1 month %s", DivBy: 1},
	{D: year + time.Second, Format: "%d months %s", DivBy: month},
	{D: 2 * year, Format: "1 year %s", DivBy: 1},
	{D: math.MaxInt64, Format: "%d years %s", DivBy: year},
}

// Relative renders how long ago t was, e.g. "3 hours ago". It returns ""
// for anything within the last second or in the future.
func Relative(t time.Time, now time.Time) string {
	diff := now.Sub(t).Truncate(time.Second)
	if diff <= time.Second {
		return ""
	}
	return humanize.CustomRelTime(now.Add(-diff), now, "ago", "from now", magnitudes)
}

// MessageDate is the day header shown above a group of messages.
func MessageDate(t time.Time, now time.Time) string {
	t = t.In(now.Location())
	switch {
	case sameDay(t, now):
		return "Today"
	case sameDay(t, now.AddDate(0, 0, -1)):
		return "Yesterday"
	case t.Year() == now.Year():
		return t.Format("Mon, Jan 2")
	}
	return t.Format("Jan 2, 2006")
}

// MessageTime is the clock time shown under a message.
func MessageTime(t time.Time) string {
	return t.Format("3:04 PM")
}

// ShowDate reports whether cur starts a new day compared to the message
// before it. The first message always shows its date.
func ShowDate(prev *time.Time, cur time.Time) bool {
	if prev == nil {
		return true
	}
	return !sameDay(*prev, cur.In(prev.Location()))
}

func sameDay(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// ShowTimestamp reports whether cur closes a burst of messages: the last
// message, or one followed by a gap of more than five minutes.
func ShowTimestamp(cur time.Time, next *time.Time) bool {
	if next == nil {
		return true
	}
	return next.Sub(cur) > 5*time.Minute
}
