package shdr

import (
	"testing"
	"time"
)

func fixedNow(ts time.Time) Now {
	return func() time.Time { return ts }
}

func runExtract(t *testing.T, e *ExtractTimestamp, tokens ...string) *Timestamped {
	t.Helper()
	out, err := e.Apply(&Tokens{Tokens: tokens})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	ts, ok := out.(*Timestamped)
	if !ok {
		t.Fatalf("expected *Timestamped, got %T", out)
	}
	return ts
}

func TestExtractTimestampAbsolute(t *testing.T) {
	now := time.Date(2021, 2, 1, 12, 30, 0, 0, time.UTC)
	e := NewExtractTimestamp(false, fixedNow(now))

	t.Run("iso_instant", func(t *testing.T) {
		ts := runExtract(t, e, "2021-02-01T12:00:00Z", "line", "204")
		want := time.Date(2021, 2, 1, 12, 0, 0, 0, time.UTC)
		if !ts.Timestamp.Equal(want) {
			t.Errorf("timestamp = %v, want %v", ts.Timestamp, want)
		}
		if len(ts.Tokens.Tokens) != 2 || ts.Tokens.Tokens[0] != "line" {
			t.Errorf("remaining tokens = %v", ts.Tokens.Tokens)
		}
	})

	t.Run("empty_token_uses_now", func(t *testing.T) {
		ts := runExtract(t, e, "", "line", "204")
		if !ts.Timestamp.Equal(now) {
			t.Errorf("timestamp = %v, want now %v", ts.Timestamp, now)
		}
	})

	t.Run("duration_suffix", func(t *testing.T) {
		ts := runExtract(t, e, "2021-02-01T12:00:00Z@1.5", "line", "204")
		if ts.Duration == nil || *ts.Duration != 1.5 {
			t.Errorf("duration = %v, want 1.5", ts.Duration)
		}
		want := time.Date(2021, 2, 1, 12, 0, 0, 0, time.UTC)
		if !ts.Timestamp.Equal(want) {
			t.Errorf("timestamp = %v, want %v", ts.Timestamp, want)
		}
	})
}

func TestExtractTimestampRelative(t *testing.T) {
	t.Run("iso_offset", func(t *testing.T) {
		now := time.Date(2021, 2, 1, 12, 0, 0, 0, time.UTC)
		e := NewExtractTimestamp(true, fixedNow(now))

		// First sample anchors: adapter clock is one hour behind.
		first := runExtract(t, e, "2021-02-01T11:00:00Z", "a", "1")
		if !first.Timestamp.Equal(now) {
			t.Errorf("first timestamp = %v, want %v", first.Timestamp, now)
		}

		// A second sample ten seconds later on the adapter clock lands
		// ten seconds after the anchor.
		second := runExtract(t, e, "2021-02-01T11:00:10Z", "a", "2")
		want := now.Add(10 * time.Second)
		if !second.Timestamp.Equal(want) {
			t.Errorf("second timestamp = %v, want %v", second.Timestamp, want)
		}
	})

	t.Run("float_milliseconds", func(t *testing.T) {
		now := time.Date(2021, 2, 1, 12, 0, 0, 0, time.UTC)
		e := NewExtractTimestamp(true, fixedNow(now))

		first := runExtract(t, e, "0", "a", "1")
		if !first.Timestamp.Equal(now) {
			t.Errorf("first timestamp = %v, want %v", first.Timestamp, now)
		}

		second := runExtract(t, e, "1500", "a", "2")
		want := now.Add(1500 * time.Millisecond)
		if !second.Timestamp.Equal(want) {
			t.Errorf("second timestamp = %v, want %v", second.Timestamp, want)
		}
	})
}

func TestIgnoreTimestamp(t *testing.T) {
	now := time.Date(2021, 2, 1, 12, 0, 0, 0, time.UTC)
	i := NewIgnoreTimestamp(fixedNow(now))

	out, err := i.Apply(&Tokens{Tokens: []string{"2020-01-01T00:00:00Z@2.5", "line", "204"}})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	ts := out.(*Timestamped)
	if !ts.Timestamp.Equal(now) {
		t.Errorf("timestamp = %v, want agent clock %v", ts.Timestamp, now)
	}
	if ts.Duration == nil || *ts.Duration != 2.5 {
		t.Errorf("duration = %v, want 2.5", ts.Duration)
	}
	if len(ts.Tokens.Tokens) != 2 {
		t.Errorf("remaining tokens = %v", ts.Tokens.Tokens)
	}
}
