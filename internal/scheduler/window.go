package scheduler

import "time"

// DefaultTolerance is how far after its window start a reading may arrive
// and still count as that window's scheduled sample.
const DefaultTolerance = 5 * time.Second

// WindowStart rounds ts down to the start of its sampling window. Intervals
// up to an hour round within the hour (1 to the minute, 60 to the top of
// the hour, 15 and 30 to the nearest lower multiple); longer intervals
// round to a multiple of the interval within the day. The result stays in
// ts's location.
func WindowStart(ts time.Time, intervalMinutes int) time.Time {
	if intervalMinutes <= 0 {
		intervalMinutes = 1
	}
	y, mo, d := ts.Date()
	loc := ts.Location()
	if intervalMinutes <= 60 {
		m := ts.Minute() / intervalMinutes * intervalMinutes
		return time.Date(y, mo, d, ts.Hour(), m, 0, 0, loc)
	}
	ofDay := ts.Hour()*60 + ts.Minute()
	start := ofDay / intervalMinutes * intervalMinutes
	return time.Date(y, mo, d, start/60, start%60, 0, 0, loc)
}

// OnSchedule reports whether ts lies within tolerance after its window start.
func OnSchedule(ts time.Time, intervalMinutes int, tolerance time.Duration) bool {
	offset := ts.Sub(WindowStart(ts, intervalMinutes))
	return offset >= 0 && offset <= tolerance
}
