package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/ykvlv/nudge-bot/internal/domain"
)

func TestUserID(t *testing.T) {
	if _, err := UserID(context.Background()); !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Fatalf("missing user: %v", err)
	}
	if _, err := UserID(WithUser(context.Background(), "  ")); !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Fatalf("blank user: %v", err)
	}
	id, err := UserID(WithUser(context.Background(), "u-42"))
	if err != nil || id != "u-42" {
		t.Fatalf("got %q, %v", id, err)
	}
}

func TestTelegramIDs(t *testing.T) {
	uid := TelegramUserID(-100123)
	if uid != "tg:-100123" {
		t.Fatalf("uid = %q", uid)
	}
	chat, ok := TelegramChatID(uid)
	if !ok || chat != -100123 {
		t.Fatalf("chat = %d, %v", chat, ok)
	}
	if _, ok := TelegramChatID("api:7"); ok {
		t.Fatal("non-telegram id accepted")
	}
}
