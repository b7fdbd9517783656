package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ykvlv/nudge-bot/internal/domain"
	"github.com/ykvlv/nudge-bot/internal/settings"
)

// --- Generic helpers ---

func (r *Router) sendText(chatID int64, text string) {
	_, _ = r.bot.Send(tgbotapi.NewMessage(chatID, text))
}

func (r *Router) answerCallback(id, text string) error {
	_, err := r.bot.Request(tgbotapi.NewCallback(id, text))
	return err
}

// replyError logs err and sends a text matching its kind.
func (r *Router) replyError(chatID int64, op string, err error) {
	var rb *domain.RollBudgetExhaustedError
	switch {
	case errors.As(err, &rb):
		wait := rb.Remaining(r.svc.Clock.Now()).Round(time.Minute)
		r.sendText(chatID, fmt.Sprintf(exhaustedFmt, wait))
	case errors.Is(err, domain.ErrNotAuthenticated):
		r.sendText(chatID, noSessionText)
	case errors.Is(err, domain.ErrInvalidTime):
		r.sendText(chatID, "Invalid time. Example: 08:30")
	case errors.Is(err, domain.ErrInvalidTZ):
		r.sendText(chatID, "Invalid timezone. Example: Europe/Moscow")
	case errors.Is(err, domain.ErrNotFound):
		r.sendText(chatID, "I couldn't find that action. Pick a new one with /mood.")
	case errors.Is(err, domain.ErrInvalidDuration), errors.Is(err, domain.ErrInvalidRating):
		r.sendText(chatID, "Usage: /done <minutes> [rating 1-5]")
	default:
		r.log.Error(op+" failed", zap.Error(err), zap.Int64("chatID", chatID))
		r.sendText(chatID, retryText)
	}
}

// --- Core commands ---

func (r *Router) handleStart(ctx context.Context, chatID int64) {
	// An empty patch persists defaults for new users and reschedules.
	s, err := r.svc.Settings.Upsert(ctx, domain.SettingsPatch{})
	if err != nil {
		r.replyError(chatID, "start", err)
		return
	}
	msg := tgbotapi.NewMessage(chatID, startText)
	msg.ReplyMarkup = mainMenuKeyboard(s.Enabled)
	_, _ = r.bot.Send(msg)
}

func (r *Router) handleStatus(ctx context.Context, chatID int64) {
	s, err := r.svc.Settings.Get(ctx)
	if err != nil {
		r.replyError(chatID, "status", err)
		return
	}

	var b strings.Builder
	b.WriteString(statusTitle + "\n\n")
	b.WriteString(settings.Describe(s))
	if s.Enabled {
		b.WriteString("• Next check-in: " + nextCheckIn(r.svc.Clock.Now(), s) + "\n")
	}
	if budget, err := r.svc.Selector.Budget(ctx); err == nil {
		fmt.Fprintf(&b, "• Rolls left today: %d\n", budget.Remaining)
	}
	if mantra := r.svc.Selector.Mantra(); mantra != "" {
		b.WriteString("\n💬 " + mantra)
	}

	msg := tgbotapi.NewMessage(chatID, b.String())
	msg.ReplyMarkup = mainMenuKeyboard(s.Enabled)
	_, _ = r.bot.Send(msg)
}

// nextCheckIn formats the earliest upcoming reminder in the user's timezone.
func nextCheckIn(now time.Time, s domain.ReminderSettings) string {
	loc := s.Location()
	var (
		best   time.Time
		bestRT domain.ReminderType
	)
	for _, rt := range domain.ReminderTypes {
		next := domain.NextTrigger(now, s.TimeFor(rt), loc)
		if best.IsZero() || next.Before(best) {
			best, bestRT = next, rt
		}
	}
	return fmt.Sprintf("%s (%s)", best.In(loc).Format("15:04"), bestRT)
}

func (r *Router) handleSettings(ctx context.Context, chatID int64) {
	s, err := r.svc.Settings.Get(ctx)
	if err != nil {
		r.replyError(chatID, "settings", err)
		return
	}
	msg := tgbotapi.NewMessage(chatID, "Which check-in do you want to change?")
	msg.ReplyMarkup = settingsInlineKeyboard(s)
	_, _ = r.bot.Send(msg)
}

// --- Check-in time flow ---

func (r *Router) askTimePresets(_ context.Context, chatID int64, rtRaw string) {
	rt, ok := domain.ParseReminderType(rtRaw)
	if !ok {
		return
	}
	msg := tgbotapi.NewMessage(chatID, "Choose a time for the "+string(rt)+" check-in (or Custom):")
	msg.ReplyMarkup = timePresetsKeyboard(rt)
	_, _ = r.bot.Send(msg)
}

// handleSetTimeCallback handles "<type>:HH:MM" and "<type>:custom".
func (r *Router) handleSetTimeCallback(ctx context.Context, chatID int64, data string) {
	rtRaw, val, ok := strings.Cut(data, ":")
	rt, known := domain.ParseReminderType(rtRaw)
	if !ok || !known {
		return
	}
	if val == "custom" {
		r.sendText(chatID, "Enter the "+string(rt)+" check-in time as HH:MM (e.g., 08:30)")
		r.setPending(chatID, pendingTimePrefix+string(rt))
		return
	}
	r.updateTime(ctx, chatID, rt, val)
}

func (r *Router) updateTime(ctx context.Context, chatID int64, rt domain.ReminderType, raw string) {
	tod, err := domain.ParseTimeOfDay(raw)
	if err != nil {
		r.replyError(chatID, "parse time", err)
		return
	}
	var p domain.SettingsPatch
	p.SetTime(rt, tod)
	if _, err := r.svc.Settings.Upsert(ctx, p); err != nil {
		r.replyError(chatID, "update time", err)
		return
	}
	name := string(rt)
	r.sendText(chatID, fmt.Sprintf("%s check-in set to %s ✅", strings.ToUpper(name[:1])+name[1:], tod))
}

// --- Free-form dispatcher (for all "Custom" inputs) ---

func (r *Router) handleFreeForm(ctx context.Context, chatID int64, text string) {
	pending := r.takePending(chatID)
	switch {
	case strings.HasPrefix(pending, pendingTimePrefix):
		rt, ok := domain.ParseReminderType(strings.TrimPrefix(pending, pendingTimePrefix))
		if !ok {
			return
		}
		r.updateTime(ctx, chatID, rt, text)

	case pending == pendingTZ:
		r.updateTZ(ctx, chatID, text)

	default:
		// No pending flow: treat a bare mood word as a mood check.
		if _, ok := r.svc.Content.LookupMood(text); ok {
			r.roll(ctx, chatID, text)
		}
	}
}

// --- Timezone flow ---

func (r *Router) askTZPresets(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, "Choose a timezone or enter your own (Region/City):")
	msg.ReplyMarkup = tzPresetsKeyboard()
	_, _ = r.bot.Send(msg)
}

func (r *Router) handleTZCallback(ctx context.Context, chatID int64, val string) {
	if val == "custom" {
		r.sendText(chatID, "Enter timezone (e.g., Europe/Moscow):")
		r.setPending(chatID, pendingTZ)
		return
	}
	r.updateTZ(ctx, chatID, val)
}

func (r *Router) updateTZ(ctx context.Context, chatID int64, raw string) {
	tz, err := domain.ValidateTZ(strings.TrimSpace(raw))
	if err != nil {
		r.replyError(chatID, "validate tz", fmt.Errorf("%w: %v", domain.ErrInvalidTZ, err))
		return
	}
	if _, err := r.svc.Settings.Upsert(ctx, domain.SettingsPatch{TZ: &tz}); err != nil {
		r.replyError(chatID, "update tz", err)
		return
	}
	r.sendText(chatID, "Timezone updated: "+tz)
}

// --- Pause / Resume ---

func (r *Router) handleToggle(ctx context.Context, chatID int64, enabled bool) {
	s, err := r.svc.Settings.Upsert(ctx, domain.SettingsPatch{Enabled: &enabled})
	if err != nil {
		r.replyError(chatID, "toggle", err)
		return
	}
	text := "Paused ⏸"
	if s.Enabled {
		text = "Resumed ✅"
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = mainMenuKeyboard(s.Enabled)
	_, _ = r.bot.Send(msg)
}

// --- Mood / actions ---

func (r *Router) askMood(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, moodPrompt)
	msg.ReplyMarkup = moodKeyboard(r.svc.Content)
	_, _ = r.bot.Send(msg)
}

func (r *Router) handleMood(ctx context.Context, chatID int64, label string) {
	if label == "" {
		r.askMood(chatID)
		return
	}
	r.roll(ctx, chatID, label)
}

func (r *Router) roll(ctx context.Context, chatID int64, label string) {
	res, err := r.svc.Selector.Roll(ctx, label)
	if err != nil {
		r.replyError(chatID, "roll", err)
		return
	}
	r.update(chatID, func(st *chatState) { st.lastRoll = &res })

	emoji := "🧭"
	if m, ok := r.svc.Content.LookupMood(res.Mood); ok {
		emoji = m.Emoji
	}
	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf(rollFmt, emoji, res.Mood, res.Action, res.Remaining, res.Encouragement))
	msg.ReplyMarkup = rollKeyboard()
	_, _ = r.bot.Send(msg)
}

func (r *Router) handleAct(ctx context.Context, chatID int64) {
	last := r.snapshot(chatID).lastRoll
	if last == nil {
		r.askMood(chatID)
		return
	}
	rec, err := r.svc.Engagement.LogAction(ctx, last.Mood, last.Action)
	if err != nil {
		r.replyError(chatID, "log action", err)
		return
	}
	r.update(chatID, func(st *chatState) { st.lastRecord = rec.ID })
	r.sendText(chatID, loggedText)
}

func (r *Router) handleCheckIn(ctx context.Context, chatID int64, rtRaw string) {
	if _, ok := domain.ParseReminderType(rtRaw); !ok {
		return
	}
	if _, err := r.svc.Engagement.LogAction(ctx, rtRaw, ""); err != nil {
		r.replyError(chatID, "check in", err)
		return
	}
	r.sendText(chatID, "Checked in ✅ "+r.svc.Selector.Encouragement())
}

const (
	// maxDoneMinutes bounds a reported duration to one day.
	maxDoneMinutes = 24 * 60
	// savedWindowDays is the /saved lookback, today included.
	savedWindowDays = 7
)

// handleDone parses "<minutes> [rating]" and attaches it to the last action.
func (r *Router) handleDone(ctx context.Context, chatID int64, args string) {
	id := r.snapshot(chatID).lastRecord
	if id == "" {
		r.sendText(chatID, "Nothing to complete yet. Pick an action with /mood.")
		return
	}

	var o domain.Outcome
	fields := strings.Fields(args)
	if len(fields) > 0 {
		mins, err := strconv.Atoi(fields[0])
		if err != nil || mins < 0 || mins > maxDoneMinutes {
			r.replyError(chatID, "done", domain.ErrInvalidDuration)
			return
		}
		secs := mins * 60
		o.DurationSec = &secs
	}
	if len(fields) > 1 {
		rating, err := strconv.Atoi(fields[1])
		if err != nil {
			r.replyError(chatID, "done", domain.ErrInvalidRating)
			return
		}
		o.Rating = &rating
	}

	if _, err := r.svc.Engagement.AttachOutcome(ctx, id, o); err != nil {
		r.replyError(chatID, "attach outcome", err)
		return
	}
	r.update(chatID, func(st *chatState) { st.lastRecord = "" })
	r.sendText(chatID, "Nice work 🙌 "+r.svc.Selector.Encouragement())
}

func (r *Router) handleSaved(ctx context.Context, chatID int64) {
	s, err := r.svc.Settings.Get(ctx)
	if err != nil {
		r.replyError(chatID, "saved", err)
		return
	}
	loc := s.Location()
	since := domain.NextMidnight(r.svc.Clock.Now(), loc).AddDate(0, 0, -savedWindowDays)

	ts, err := r.svc.Engagement.AggregateTimeSaved(ctx, since)
	if err != nil {
		r.replyError(chatID, "time saved", err)
		return
	}
	streak, err := r.svc.Engagement.Streak(ctx, loc)
	if err != nil {
		r.replyError(chatID, "streak", err)
		return
	}
	rolls, err := r.svc.Selector.RollCount(ctx)
	if err != nil {
		r.replyError(chatID, "roll count", err)
		return
	}
	saved := (time.Duration(ts.TotalSeconds) * time.Second).String()
	r.sendText(chatID, fmt.Sprintf(savedFmt, saved, ts.Count, streak, rolls))
}
