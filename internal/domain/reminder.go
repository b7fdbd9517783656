package domain

import (
	"fmt"
	"time"
)

// ReminderType is one of the four daily check-ins.
type ReminderType string

const (
	Morning   ReminderType = "morning"
	Afternoon ReminderType = "afternoon"
	Evening   ReminderType = "evening"
	Night     ReminderType = "night"
)

// ReminderTypes lists the check-ins in day order.
var ReminderTypes = []ReminderType{Morning, Afternoon, Evening, Night}

// ParseReminderType reports whether s names a reminder type.
func ParseReminderType(s string) (ReminderType, bool) {
	for _, rt := range ReminderTypes {
		if string(rt) == s {
			return rt, true
		}
	}
	return "", false
}

// NotificationID is the stable platform id of a reminder type (1..4).
func NotificationID(rt ReminderType) int {
	for i, t := range ReminderTypes {
		if t == rt {
			return i + 1
		}
	}
	return 0
}

// NotificationIDs returns the ids of all reminder types.
func NotificationIDs() []int {
	ids := make([]int, len(ReminderTypes))
	for i := range ReminderTypes {
		ids[i] = i + 1
	}
	return ids
}

// TimeOfDay is a local wall-clock hour:minute (00:00..23:59).
type TimeOfDay struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// Valid reports whether t is within 00:00..23:59.
func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour <= 23 && t.Minute >= 0 && t.Minute <= 59
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

func (t TimeOfDay) String() string { return FormatMinutes(t.Minutes()) }

func (t TimeOfDay) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d:%d", ErrInvalidTime, t.Hour, t.Minute)
	}
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Default check-in times and timezone.
var (
	DefaultMorning   = TimeOfDay{Hour: 9}
	DefaultAfternoon = TimeOfDay{Hour: 14}
	DefaultEvening   = TimeOfDay{Hour: 19}
	DefaultNight     = TimeOfDay{Hour: 21}
)

// ReminderSettings is the per-user check-in configuration.
type ReminderSettings struct {
	UserID    string    `json:"user_id"`
	Morning   TimeOfDay `json:"morning"`
	Afternoon TimeOfDay `json:"afternoon"`
	Evening   TimeOfDay `json:"evening"`
	Night     TimeOfDay `json:"night"`
	Enabled   bool      `json:"enabled"`
	TZ        string    `json:"timezone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultSettings returns the settings a user starts with.
func DefaultSettings(userID, tz string) ReminderSettings {
	return ReminderSettings{
		UserID:    userID,
		Morning:   DefaultMorning,
		Afternoon: DefaultAfternoon,
		Evening:   DefaultEvening,
		Night:     DefaultNight,
		Enabled:   true,
		TZ:        tz,
	}
}

// TimeFor returns the configured time of a reminder type.
func (s ReminderSettings) TimeFor(rt ReminderType) TimeOfDay {
	switch rt {
	case Morning:
		return s.Morning
	case Afternoon:
		return s.Afternoon
	case Evening:
		return s.Evening
	default:
		return s.Night
	}
}

// Location resolves the settings timezone, falling back to UTC.
func (s ReminderSettings) Location() *time.Location {
	loc, err := time.LoadLocation(s.TZ)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate checks every time value and the timezone.
func (s ReminderSettings) Validate() error {
	for _, rt := range ReminderTypes {
		if t := s.TimeFor(rt); !t.Valid() {
			return fmt.Errorf("%w: %s %02d:%02d", ErrInvalidTime, rt, t.Hour, t.Minute)
		}
	}
	if _, err := ValidateTZ(s.TZ); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidTZ, s.TZ)
	}
	return nil
}

// SettingsPatch holds a partial settings update; nil fields are kept.
type SettingsPatch struct {
	Morning   *TimeOfDay `json:"morning,omitempty"`
	Afternoon *TimeOfDay `json:"afternoon,omitempty"`
	Evening   *TimeOfDay `json:"evening,omitempty"`
	Night     *TimeOfDay `json:"night,omitempty"`
	Enabled   *bool      `json:"enabled,omitempty"`
	TZ        *string    `json:"timezone,omitempty"`
}

// SetTime sets the patch field for a reminder type.
func (p *SettingsPatch) SetTime(rt ReminderType, t TimeOfDay) {
	switch rt {
	case Morning:
		p.Morning = &t
	case Afternoon:
		p.Afternoon = &t
	case Evening:
		p.Evening = &t
	default:
		p.Night = &t
	}
}

// Apply merges the patch into s and returns the result.
func (p SettingsPatch) Apply(s ReminderSettings) ReminderSettings {
	if p.Morning != nil {
		s.Morning = *p.Morning
	}
	if p.Afternoon != nil {
		s.Afternoon = *p.Afternoon
	}
	if p.Evening != nil {
		s.Evening = *p.Evening
	}
	if p.Night != nil {
		s.Night = *p.Night
	}
	if p.Enabled != nil {
		s.Enabled = *p.Enabled
	}
	if p.TZ != nil {
		s.TZ = *p.TZ
	}
	return s
}
