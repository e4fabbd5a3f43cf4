package usecase

import (
	"time"
)

// NextAllowedSend returns the earliest instant at or after now when a
// non-urgent send is allowed, given a quiet-hours window in the trip's
// origin timezone. The window is half-open [start, end): a send time that
// falls exactly on the window end is already outside quiet hours. Windows
// may wrap midnight (22:00-09:00).
func NextAllowedSend(now time.Time, loc *time.Location, start, end string) time.Time {
	startT, err := time.Parse("15:04", start)
	if err != nil {
		return now
	}
	endT, err := time.Parse("15:04", end)
	if err != nil {
		return now
	}

	startMin := startT.Hour()*60 + startT.Minute()
	endMin := endT.Hour()*60 + endT.Minute()
	if startMin == endMin {
		// Zero-length window, quiet hours disabled
		return now
	}

	local := now.In(loc)
	nowMin := local.Hour()*60 + local.Minute()

	wraps := startMin > endMin
	var inQuiet bool
	if wraps {
		inQuiet = nowMin >= startMin || nowMin < endMin
	} else {
		inQuiet = nowMin >= startMin && nowMin < endMin
	}
	if !inQuiet {
		return now
	}

	windowEnd := time.Date(local.Year(), local.Month(), local.Day(), endT.Hour(), endT.Minute(), 0, 0, loc)
	if wraps && nowMin >= startMin {
		// Evening side of a wrapped window, end is tomorrow morning
		windowEnd = windowEnd.AddDate(0, 0, 1)
	}
	return windowEnd
}
