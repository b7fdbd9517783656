package domain

import (
	"errors"
	"testing"
	"time"
)

func TestParseTimeOfDay(t *testing.T) {
	good := map[string]TimeOfDay{
		"09:00":   {Hour: 9},
		"23:59":   {Hour: 23, Minute: 59},
		"00:00":   {},
		"7":       {Hour: 7},
		" 14:05 ": {Hour: 14, Minute: 5},
	}
	for in, want := range good {
		got, err := ParseTimeOfDay(in)
		if err != nil {
			t.Errorf("ParseTimeOfDay(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseTimeOfDay(%q) = %v, want %v", in, got, want)
		}
	}
	for _, in := range []string{"", "24:00", "12:60", "ab:cd", "1:2:3"} {
		if _, err := ParseTimeOfDay(in); !errors.Is(err, ErrInvalidTime) {
			t.Errorf("ParseTimeOfDay(%q) err = %v, want ErrInvalidTime", in, err)
		}
	}
}

func TestNotificationIDs_Stable(t *testing.T) {
	want := map[ReminderType]int{Morning: 1, Afternoon: 2, Evening: 3, Night: 4}
	for rt, id := range want {
		if got := NotificationID(rt); got != id {
			t.Errorf("NotificationID(%s) = %d, want %d", rt, got, id)
		}
	}
	if ids := NotificationIDs(); len(ids) != 4 || ids[0] != 1 || ids[3] != 4 {
		t.Fatalf("NotificationIDs = %v", ids)
	}
}

func TestSettingsPatch_Apply(t *testing.T) {
	s := DefaultSettings("u1", "UTC")
	off := false
	p := SettingsPatch{Enabled: &off}
	p.SetTime(Evening, TimeOfDay{Hour: 20, Minute: 15})

	got := p.Apply(s)
	if got.Enabled {
		t.Fatal("enabled not applied")
	}
	if got.Evening != (TimeOfDay{Hour: 20, Minute: 15}) {
		t.Fatalf("evening = %v", got.Evening)
	}
	if got.Morning != DefaultMorning || got.Night != DefaultNight {
		t.Fatal("untouched fields changed")
	}
}

func TestReminderSettings_Validate(t *testing.T) {
	s := DefaultSettings("u1", "Europe/Moscow")
	if err := s.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	s.Night = TimeOfDay{Hour: 24}
	if err := s.Validate(); !errors.Is(err, ErrInvalidTime) {
		t.Fatalf("want ErrInvalidTime, got %v", err)
	}
	s = DefaultSettings("u1", "Mars/Olympus")
	if err := s.Validate(); !errors.Is(err, ErrInvalidTZ) {
		t.Fatalf("want ErrInvalidTZ, got %v", err)
	}
}

func TestTimeOfDay_TextRoundTrip(t *testing.T) {
	b, err := TimeOfDay{Hour: 6, Minute: 5}.MarshalText()
	if err != nil || string(b) != "06:05" {
		t.Fatalf("MarshalText = %q, %v", b, err)
	}
	var tod TimeOfDay
	if err := tod.UnmarshalText([]byte("18:45")); err != nil {
		t.Fatal(err)
	}
	if tod != (TimeOfDay{Hour: 18, Minute: 45}) {
		t.Fatalf("UnmarshalText = %v", tod)
	}
}

func TestSumTimeSaved_Fallback(t *testing.T) {
	d1, d2 := 120, 300
	recs := []EngagementRecord{{DurationSec: &d1}, {DurationSec: &d2}, {}}
	got := SumTimeSaved(recs, 120*time.Second)
	if got.TotalSeconds != 540 || got.Count != 3 {
		t.Fatalf("got %+v, want 540/3", got)
	}
}

func TestOutcome_Validate(t *testing.T) {
	neg, zero, six, five := -1, 0, 6, 5
	if err := (Outcome{DurationSec: &neg}).Validate(); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("negative duration: %v", err)
	}
	if err := (Outcome{Rating: &six}).Validate(); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("rating 6: %v", err)
	}
	if err := (Outcome{DurationSec: &zero, Rating: &five}).Validate(); err != nil {
		t.Fatalf("valid outcome: %v", err)
	}
}

func TestErrors_Matching(t *testing.T) {
	cause := errors.New("disk full")
	err := Persistence("insert", cause)
	if !errors.Is(err, ErrPersistence) || !errors.Is(err, cause) {
		t.Fatalf("persistence wrapping lost: %v", err)
	}
	if Persistence("update", ErrNotFound) != ErrNotFound {
		t.Fatal("not found must pass through")
	}

	until := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	var rb error = &RollBudgetExhaustedError{Until: until}
	if !errors.Is(rb, ErrRollBudgetExhausted) {
		t.Fatal("roll budget error does not match sentinel")
	}
	var typed *RollBudgetExhaustedError
	if !errors.As(rb, &typed) || typed.Remaining(until.Add(-time.Minute)) != time.Minute {
		t.Fatal("remaining cooldown wrong")
	}
	if typed.Remaining(until.Add(time.Hour)) != 0 {
		t.Fatal("remaining must not go negative")
	}
}
