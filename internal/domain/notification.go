package domain

import "time"

// ScheduledNotification is a repeating daily platform notification.
type ScheduledNotification struct {
	ID           int          `json:"id"`
	UserID       string       `json:"user_id"`
	ReminderType ReminderType `json:"reminder_type"`
	Title        string       `json:"title"`
	Body         string       `json:"body"`
	At           TimeOfDay    `json:"at"`
	TZ           string       `json:"timezone"`
	Channel      string       `json:"channel,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	LastFiredAt  *time.Time   `json:"last_fired_at,omitempty"`
}

// Location resolves the notification timezone, falling back to UTC.
func (n ScheduledNotification) Location() *time.Location {
	loc, err := time.LoadLocation(n.TZ)
	if err != nil {
		return time.UTC
	}
	return loc
}
