package domain

import "time"

// TriggerAt returns the moment on t's local day at which tod fires.
func TriggerAt(t time.Time, tod TimeOfDay, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), tod.Hour, tod.Minute, 0, 0, loc)
}

// NextTrigger returns the next daily fire time of tod strictly after now, in UTC.
func NextTrigger(now time.Time, tod TimeOfDay, loc *time.Location) time.Time {
	at := TriggerAt(now, tod, loc)
	if !at.After(now) {
		lt := at
		at = time.Date(lt.Year(), lt.Month(), lt.Day()+1, tod.Hour, tod.Minute, 0, 0, loc)
	}
	return at.UTC()
}

// DueToday reports whether a repeating daily trigger should fire at now:
// today's fire time has passed and it has not fired since then.
func DueToday(now time.Time, tod TimeOfDay, loc *time.Location, lastFired *time.Time) bool {
	at := TriggerAt(now, tod, loc)
	if now.Before(at) {
		return false
	}
	return lastFired == nil || lastFired.Before(at)
}

// NextMidnight returns the start of the local day after t.
func NextMidnight(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day()+1, 0, 0, 0, 0, loc)
}
