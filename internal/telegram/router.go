package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ykvlv/nudge-bot/internal/auth"
	"github.com/ykvlv/nudge-bot/internal/clock"
	"github.com/ykvlv/nudge-bot/internal/content"
	"github.com/ykvlv/nudge-bot/internal/domain"
	"github.com/ykvlv/nudge-bot/internal/engagement"
	"github.com/ykvlv/nudge-bot/internal/mood"
	"github.com/ykvlv/nudge-bot/internal/notify"
	"github.com/ykvlv/nudge-bot/internal/settings"
)

// Pending state keys used in conversational flows.
const (
	pendingTimePrefix = "await_time:" // + reminder type
	pendingTZ         = "await_tz_text"
)

// Bot is the subset of *tgbotapi.BotAPI the router uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Services are the domain components reachable from chat.
type Services struct {
	Settings   *settings.Service
	Scheduler  *notify.Scheduler
	Selector   *mood.Selector
	Engagement *engagement.Logger
	Content    *content.Tables
	Clock      clock.Clock // nil: wall clock
}

// chatState is the in-memory conversational state of one chat.
type chatState struct {
	pending    string
	lastRoll   *mood.Result
	lastRecord string
}

// Router wires Telegram updates to handlers and holds minimal in-memory state.
type Router struct {
	bot   Bot
	log   *zap.Logger
	svc   Services
	state map[int64]*chatState
	mu    sync.Mutex
}

// NewRouter creates a new Telegram router.
func NewRouter(bot Bot, log *zap.Logger, svc Services) *Router {
	if svc.Clock == nil {
		svc.Clock = clock.Real{}
	}
	return &Router{
		bot:   bot,
		log:   log,
		svc:   svc,
		state: make(map[int64]*chatState),
	}
}

// update runs fn on the chat state under the lock.
func (r *Router) update(chatID int64, fn func(st *chatState)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.state[chatID]
	if !ok {
		st = &chatState{}
		r.state[chatID] = st
	}
	fn(st)
}

// snapshot returns a copy of the chat state.
func (r *Router) snapshot(chatID int64) chatState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.state[chatID]; ok {
		return *st
	}
	return chatState{}
}

func (r *Router) setPending(chatID int64, s string) {
	r.update(chatID, func(st *chatState) { st.pending = s })
}

// takePending returns and clears the pending state.
func (r *Router) takePending(chatID int64) string {
	var p string
	r.update(chatID, func(st *chatState) { p, st.pending = st.pending, "" })
	return p
}

// HandleUpdate routes a single update to appropriate handler. A panic in a
// handler is logged and answered with a generic retry text.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	var chatID int64
	switch {
	case upd.Message != nil:
		chatID = upd.Message.Chat.ID
	case upd.CallbackQuery != nil && upd.CallbackQuery.Message != nil:
		chatID = upd.CallbackQuery.Message.Chat.ID
	default:
		return
	}
	ctx = auth.WithUser(ctx, auth.TelegramUserID(chatID))

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("handler panic", zap.Any("panic", rec), zap.Int64("chatID", chatID))
			r.sendText(chatID, retryText)
		}
	}()

	// Text messages
	if upd.Message != nil {
		text := strings.TrimSpace(upd.Message.Text)
		cmd, args, _ := strings.Cut(text, " ")
		args = strings.TrimSpace(args)

		switch cmd {
		case "/start":
			r.handleStart(ctx, chatID)
		case "/status":
			r.handleStatus(ctx, chatID)
		case "/settings":
			r.handleSettings(ctx, chatID)
		case "/pause":
			r.handleToggle(ctx, chatID, false)
		case "/resume":
			r.handleToggle(ctx, chatID, true)
		case "/mood":
			r.handleMood(ctx, chatID, args)
		case "/done":
			r.handleDone(ctx, chatID, args)
		case "/saved":
			r.handleSaved(ctx, chatID)
		default:
			// Free-form text used in "Custom" flows (time/tz)
			r.handleFreeForm(ctx, chatID, text)
		}
		return
	}

	// Callback queries (inline buttons)
	cb := upd.CallbackQuery
	data := cb.Data
	_ = r.answerCallback(cb.ID, "")

	switch {
	case strings.HasPrefix(data, "time:"):
		r.askTimePresets(ctx, chatID, strings.TrimPrefix(data, "time:"))
	case strings.HasPrefix(data, "settime:"):
		r.handleSetTimeCallback(ctx, chatID, strings.TrimPrefix(data, "settime:"))
	case data == "set_tz":
		r.askTZPresets(chatID)
	case strings.HasPrefix(data, "tz:"):
		r.handleTZCallback(ctx, chatID, strings.TrimPrefix(data, "tz:"))
	case strings.HasPrefix(data, "mood:"):
		r.roll(ctx, chatID, strings.TrimPrefix(data, "mood:"))
	case data == "pickmood":
		r.askMood(chatID)
	case data == "reroll":
		if last := r.snapshot(chatID).lastRoll; last != nil {
			r.roll(ctx, chatID, last.Mood)
		} else {
			r.askMood(chatID)
		}
	case data == "act":
		r.handleAct(ctx, chatID)
	case strings.HasPrefix(data, "checkin:"):
		r.handleCheckIn(ctx, chatID, strings.TrimPrefix(data, "checkin:"))
	default:
		// Unknown callback: ignore silently
	}
}

// SendNotification delivers a fired reminder to the user's chat.
// This makes Router satisfy notify.Sender.
func (r *Router) SendNotification(_ context.Context, n domain.ScheduledNotification) error {
	chatID, ok := auth.TelegramChatID(n.UserID)
	if !ok {
		return fmt.Errorf("%w: user %s has no chat", domain.ErrPlatformUnsupported, n.UserID)
	}
	msg := tgbotapi.NewMessage(chatID, n.Title+"\n\n"+n.Body)
	msg.ReplyMarkup = checkInKeyboard(n.ReminderType)
	_, err := r.bot.Send(msg)
	return err
}
