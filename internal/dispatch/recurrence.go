package dispatch

import (
	"time"

	"github.com/notifyai/notification-service/internal/models"
)

// NextOccurrence advances a schedule by exactly one unit of its
// recurrence. The second return is false for none or unrecognized
// patterns, which generate no next occurrence.
func NextOccurrence(from time.Time, recurring models.Recurrence) (time.Time, bool) {
	switch recurring {
	case models.RecurrenceDaily:
		return from.AddDate(0, 0, 1), true
	case models.RecurrenceWeekly:
		return from.AddDate(0, 0, 7), true
	case models.RecurrenceMonthly:
		return addOneMonth(from), true
	default:
		return time.Time{}, false
	}
}

// addOneMonth moves to the same day of the next calendar month,
// clamping to that month's last day when the source day does not exist
// there (Jan 31 -> Feb 29 in a leap year, Feb 28 otherwise). Plain
// AddDate would normalize Jan 31 + 1 month into early March instead.
func addOneMonth(t time.Time) time.Time {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	lastDay := time.Date(year, month+2, 0, 0, 0, 0, 0, t.Location()).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(year, month+1, day, hour, min, sec, t.Nanosecond(), t.Location())
}
