// Package content exposes the static mood-action, reminder and
// encouragement tables embedded in the binary.
package content

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/ykvlv/nudge-bot/assets"
	"github.com/ykvlv/nudge-bot/internal/domain"
)

// Mood is a supported mood label with its dedicated action pool.
type Mood struct {
	Label   string   `json:"label"`
	Emoji   string   `json:"emoji"`
	Actions []string `json:"actions"`
}

// Message is a reminder title and body.
type Message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Tables is the full content set.
type Tables struct {
	FallbackAction string                          `json:"fallback_action"`
	Generic        []string                        `json:"generic"`
	Moods          []Mood                          `json:"moods"`
	Reminders      map[domain.ReminderType]Message `json:"reminders"`
	Encouragement  []string                        `json:"encouragement"`
	Mantras        []string                        `json:"mantras"`
}

var (
	once    sync.Once
	tables  *Tables
	loadErr error
)

// Default returns the embedded tables. It panics if the embedded JSON is
// malformed, which is a build defect.
func Default() *Tables {
	once.Do(func() {
		tables, loadErr = Parse(assets.ContentJSON)
	})
	if loadErr != nil {
		panic(loadErr)
	}
	return tables
}

// Parse decodes and validates a content document.
func Parse(b []byte) (*Tables, error) {
	var t Tables
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	if t.FallbackAction == "" {
		return nil, fmt.Errorf("content: empty fallback action")
	}
	for _, rt := range domain.ReminderTypes {
		if m, ok := t.Reminders[rt]; !ok || m.Body == "" {
			return nil, fmt.Errorf("content: missing reminder message %q", rt)
		}
	}
	return &t, nil
}

// LookupMood matches label case-insensitively against the supported moods.
func (t *Tables) LookupMood(label string) (Mood, bool) {
	label = strings.TrimSpace(label)
	for _, m := range t.Moods {
		if strings.EqualFold(m.Label, label) {
			return m, true
		}
	}
	return Mood{}, false
}

// Pool returns the candidate actions for a mood. A supported mood without
// dedicated entries gets the generic pool; an unknown mood gets nothing.
func (t *Tables) Pool(label string) []string {
	m, ok := t.LookupMood(label)
	if !ok {
		return nil
	}
	if len(m.Actions) == 0 {
		return t.Generic
	}
	return m.Actions
}

// Reminder returns the static message of a reminder type.
func (t *Tables) Reminder(rt domain.ReminderType) Message {
	return t.Reminders[rt]
}

// RandomEncouragement picks a random encouragement line.
func (t *Tables) RandomEncouragement(rng *rand.Rand) string {
	return pick(rng, t.Encouragement)
}

// RandomMantra picks a random mantra.
func (t *Tables) RandomMantra(rng *rand.Rand) string {
	return pick(rng, t.Mantras)
}

func pick(rng *rand.Rand, list []string) string {
	if len(list) == 0 {
		return ""
	}
	return list[rng.Intn(len(list))]
}
