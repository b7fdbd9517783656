// Package settings reads and merges per-user reminder settings.
package settings

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ykvlv/nudge-bot/internal/auth"
	"github.com/ykvlv/nudge-bot/internal/domain"
	"github.com/ykvlv/nudge-bot/internal/store"
)

// ChangeFunc is called after settings were persisted.
type ChangeFunc func(ctx context.Context, s domain.ReminderSettings)

// Service is the reminder settings store.
type Service struct {
	repo      store.SettingsRepo
	log       *zap.Logger
	defaultTZ string
	onChange  []ChangeFunc
}

// New creates a settings Service.
func New(repo store.SettingsRepo, log *zap.Logger, defaultTZ string) *Service {
	return &Service{repo: repo, log: log, defaultTZ: defaultTZ}
}

// OnChange registers a hook run after every successful Upsert.
func (s *Service) OnChange(fn ChangeFunc) {
	s.onChange = append(s.onChange, fn)
}

// Get returns the session user's settings, or defaults when none are stored.
func (s *Service) Get(ctx context.Context) (domain.ReminderSettings, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return domain.ReminderSettings{}, err
	}
	cur, err := s.repo.GetSettings(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.DefaultSettings(userID, s.defaultTZ), nil
	}
	if err != nil {
		return domain.ReminderSettings{}, domain.Persistence("get settings", err)
	}
	return *cur, nil
}

// Upsert merges patch into the stored settings (or defaults) and persists
// the complete record.
func (s *Service) Upsert(ctx context.Context, patch domain.SettingsPatch) (domain.ReminderSettings, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return domain.ReminderSettings{}, err
	}

	base := domain.DefaultSettings(userID, s.defaultTZ)
	cur, err := s.repo.GetSettings(ctx, userID)
	switch {
	case err == nil:
		base = *cur
	case !errors.Is(err, domain.ErrNotFound):
		return domain.ReminderSettings{}, domain.Persistence("get settings", err)
	}

	next := patch.Apply(base)
	if err := next.Validate(); err != nil {
		return domain.ReminderSettings{}, err
	}
	if tz, err := domain.ValidateTZ(next.TZ); err == nil {
		next.TZ = tz
	}

	if err := s.repo.UpsertSettings(ctx, &next); err != nil {
		s.log.Error("upsert settings failed", zap.Error(err), zap.String("user", userID))
		return domain.ReminderSettings{}, domain.Persistence("upsert settings", err)
	}
	s.log.Debug("settings updated", zap.String("user", userID), zap.Bool("enabled", next.Enabled))

	for _, fn := range s.onChange {
		fn(ctx, next)
	}
	return next, nil
}

// Describe renders settings for status displays.
func Describe(s domain.ReminderSettings) string {
	state := "✅ Enabled"
	if !s.Enabled {
		state = "⏸ Paused"
	}
	return fmt.Sprintf("• Morning: %s\n• Afternoon: %s\n• Evening: %s\n• Night: %s\n• TZ: %s\n• Reminders: %s\n",
		s.Morning, s.Afternoon, s.Evening, s.Night, s.TZ, state)
}
