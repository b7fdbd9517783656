// Package auth carries the authenticated user through a context.
package auth

import (
	"context"
	"strconv"
	"strings"

	"github.com/ykvlv/nudge-bot/internal/domain"
)

type ctxKey struct{}

// WithUser returns a context bound to userID.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, strings.TrimSpace(userID))
}

// UserID returns the session user or ErrNotAuthenticated.
func UserID(ctx context.Context) (string, error) {
	id, _ := ctx.Value(ctxKey{}).(string)
	if id == "" {
		return "", domain.ErrNotAuthenticated
	}
	return id, nil
}

// TelegramUserID maps a chat to a user id.
func TelegramUserID(chatID int64) string {
	return "tg:" + strconv.FormatInt(chatID, 10)
}

// TelegramChatID reverses TelegramUserID.
func TelegramChatID(userID string) (int64, bool) {
	s, ok := strings.CutPrefix(userID, "tg:")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
