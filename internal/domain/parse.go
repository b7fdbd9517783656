package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar-day format used for day markers.
const DateLayout = "2006-01-02"

// ParseTimeOfDay parses "HH:MM" (24h) or a bare hour like "9".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TimeOfDay{}, fmt.Errorf("%w: empty", ErrInvalidTime)
	}
	if !strings.Contains(s, ":") {
		s += ":00"
	}
	mins, err := parseHHMM(s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %s: %v", ErrInvalidTime, s, err)
	}
	return TimeOfDay{Hour: mins / 60, Minute: mins % 60}, nil
}

func parseHHMM(s string) (int, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, errors.New("expected HH:MM")
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, errors.New("invalid hour")
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, errors.New("invalid minute")
	}
	return h*60 + m, nil
}

// ValidateTZ checks that the tz is a valid IANA location.
func ValidateTZ(tz string) (string, error) {
	if strings.TrimSpace(tz) == "" {
		return "", errors.New("empty timezone")
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return "", err
	}
	return loc.String(), nil
}

// FormatMinutes returns HH:MM for minutes since midnight (00:00..23:59).
func FormatMinutes(mins int) string {
	if mins < 0 {
		mins = 0
	}
	h := mins / 60
	m := mins % 60
	return fmt.Sprintf("%02d:%02d", h, m)
}

// LocalDate returns t's calendar day in loc as YYYY-MM-DD.
func LocalDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

// ParseLocalDate parses YYYY-MM-DD as local midnight in loc.
func ParseLocalDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
}
