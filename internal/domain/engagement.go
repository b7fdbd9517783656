package domain

import (
	"fmt"
	"time"
)

// Response types of an engagement record.
const (
	ResponseMicroAction = "micro_action"
	ResponseCheckIn     = "check_in"
)

// EngagementRecord is one logged response to a nudge or mood check.
type EngagementRecord struct {
	ID           string        `json:"id"`
	UserID       string        `json:"user_id"`
	ReminderType *ReminderType `json:"reminder_type,omitempty"`
	Mood         string        `json:"mood,omitempty"`
	Action       string        `json:"action"`
	ResponseType string        `json:"response_type"`
	DurationSec  *int          `json:"duration_sec,omitempty"`
	Rating       *int          `json:"rating,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Outcome is the completion metadata attached to a record after the fact.
type Outcome struct {
	DurationSec *int `json:"duration_sec,omitempty"`
	Rating      *int `json:"rating,omitempty"`
}

// Validate enforces a non-negative duration and a 1..5 rating.
func (o Outcome) Validate() error {
	if o.DurationSec != nil && *o.DurationSec < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDuration, *o.DurationSec)
	}
	if o.Rating != nil && (*o.Rating < 1 || *o.Rating > 5) {
		return fmt.Errorf("%w: %d", ErrInvalidRating, *o.Rating)
	}
	return nil
}

// TimeSaved is the aggregate of engagement durations.
type TimeSaved struct {
	TotalSeconds int `json:"total_seconds"`
	Count        int `json:"count"`
}

// SumTimeSaved adds durations, counting fallback for records without one.
func SumTimeSaved(records []EngagementRecord, fallback time.Duration) TimeSaved {
	var ts TimeSaved
	for _, r := range records {
		ts.Count++
		if r.DurationSec != nil {
			ts.TotalSeconds += *r.DurationSec
			continue
		}
		ts.TotalSeconds += int(fallback.Seconds())
	}
	return ts
}

// MoodRoll is a logged mood-action draw.
type MoodRoll struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Mood      string    `json:"mood"`
	Action    string    `json:"action"`
	Remaining int       `json:"remaining"`
	CreatedAt time.Time `json:"created_at"`
}
