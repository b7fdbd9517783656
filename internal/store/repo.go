package store

import (
	"context"
	"time"

	"github.com/ykvlv/nudge-bot/internal/domain"
)

// SettingsRepo persists one ReminderSettings row per user.
// GetSettings returns domain.ErrNotFound when the user has none.
type SettingsRepo interface {
	GetSettings(ctx context.Context, userID string) (*domain.ReminderSettings, error)
	UpsertSettings(ctx context.Context, s *domain.ReminderSettings) error
	ListSettings(ctx context.Context) ([]domain.ReminderSettings, error)
}

// NotificationRepo persists scheduled platform notifications.
type NotificationRepo interface {
	PutNotifications(ctx context.Context, ns []domain.ScheduledNotification) error
	DeleteNotifications(ctx context.Context, userID string, ids []int) error
	ListNotifications(ctx context.Context, userID string) ([]domain.ScheduledNotification, error)
	ListAllNotifications(ctx context.Context) ([]domain.ScheduledNotification, error)
	MarkFired(ctx context.Context, userID string, id int, at time.Time) error
}

// EngagementRepo persists engagement records and mood rolls.
// UpdateOutcome returns domain.ErrNotFound when no row is owned by userID.
type EngagementRepo interface {
	InsertEngagement(ctx context.Context, r *domain.EngagementRecord) error
	UpdateOutcome(ctx context.Context, userID, id string, o domain.Outcome, at time.Time) (*domain.EngagementRecord, error)
	ListEngagementSince(ctx context.Context, userID string, since time.Time) ([]domain.EngagementRecord, error)
	InsertMoodRoll(ctx context.Context, r *domain.MoodRoll) error
	CountMoodRolls(ctx context.Context, userID string) (int, error)
}

// Repo is the full storage surface.
type Repo interface {
	SettingsRepo
	NotificationRepo
	EngagementRepo
	Close() error
}
