package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ykvlv/nudge-bot/internal/content"
	"github.com/ykvlv/nudge-bot/internal/domain"
)

// UI texts in English
const (
	startText = "👋 I help you catch doomscrolling before it catches you.\n\n" +
		"Four times a day I will check in. When you feel the pull, tell me your mood " +
		"with /mood and I will suggest one tiny action instead.\n\n" +
		"/settings to change check-in times, /saved to see the time you won back."
	statusTitle   = "🧾 Your current settings:"
	retryText     = "Something went wrong. Please try again in a moment."
	noSessionText = "Please send /start first."
	moodPrompt    = "How are you feeling right now?"
	rollFmt       = "%s %s\n\n👉 %s\n\n🎲 Rolls left today: %d\n%s"
	exhaustedFmt  = "🎲 You've used today's rolls. Next roll in %s (or tomorrow)."
	loggedText    = "Logged ✅ When you're done, send /done <minutes> [rating 1-5]."
	savedFmt      = "⏳ Time saved in the last 7 days: %s across %d actions.\n🔥 Streak: %d day(s).\n🎲 Mood rolls so far: %d."
)

// mainMenuKeyboard builds a reply keyboard with a single toggle button:
// if enabled is true -> "/pause", else -> "/resume".
func mainMenuKeyboard(enabled bool) tgbotapi.ReplyKeyboardMarkup {
	toggle := "/pause"
	if !enabled {
		toggle = "/resume"
	}
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/mood"),
			tgbotapi.NewKeyboardButton("/saved"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/status"),
			tgbotapi.NewKeyboardButton("/settings"),
			tgbotapi.NewKeyboardButton(toggle),
		),
	)
}

// Inline keyboards
func settingsInlineKeyboard(s domain.ReminderSettings) tgbotapi.InlineKeyboardMarkup {
	btn := func(rt domain.ReminderType, label string) tgbotapi.InlineKeyboardButton {
		return tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("%s %s", label, s.TimeFor(rt)), "time:"+string(rt))
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			btn(domain.Morning, "☀️ Morning"),
			btn(domain.Afternoon, "🌤 Afternoon"),
		),
		tgbotapi.NewInlineKeyboardRow(
			btn(domain.Evening, "🌆 Evening"),
			btn(domain.Night, "🌙 Night"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🌍 Timezone", "set_tz"),
		),
	)
}

// timePresets are offered per reminder type.
var timePresets = map[domain.ReminderType][]string{
	domain.Morning:   {"07:00", "08:00", "09:00", "10:00"},
	domain.Afternoon: {"12:00", "13:00", "14:00", "15:00"},
	domain.Evening:   {"17:00", "18:00", "19:00", "20:00"},
	domain.Night:     {"21:00", "22:00", "23:00", "23:30"},
}

func timePresetsKeyboard(rt domain.ReminderType) tgbotapi.InlineKeyboardMarkup {
	var row []tgbotapi.InlineKeyboardButton
	for _, p := range timePresets[rt] {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(p, "settime:"+string(rt)+":"+p))
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		row,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✍️ Custom…", "settime:"+string(rt)+":custom"),
		),
	)
}

func tzPresetsKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Europe/Moscow", "tz:Europe/Moscow"),
			tgbotapi.NewInlineKeyboardButtonData("Europe/Tallinn", "tz:Europe/Tallinn"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Asia/Almaty", "tz:Asia/Almaty"),
			tgbotapi.NewInlineKeyboardButtonData("UTC", "tz:UTC"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✍️ Custom…", "tz:custom"),
		),
	)
}

// moodKeyboard lists the supported moods, two per row.
func moodKeyboard(tables *content.Tables) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, m := range tables.Moods {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(m.Emoji+" "+m.Label, "mood:"+m.Label))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func rollKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ I'll do it", "act"),
			tgbotapi.NewInlineKeyboardButtonData("🎲 Reroll", "reroll"),
		),
	)
}

// checkInKeyboard is attached to delivered reminders.
func checkInKeyboard(rt domain.ReminderType) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Checked in", "checkin:"+string(rt)),
			tgbotapi.NewInlineKeyboardButtonData("🎲 Give me an action", "pickmood"),
		),
	)
}
