package telegram

import (
	"errors"
	"testing"
)

func TestSessionRoundTrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		chatID   int64
		threadID int
		want     string
	}{
		{42, 0, "telegram:42"},
		{-1001234, 0, "telegram:-1001234"},
		{42, 7, "telegram:42:7"},
	}
	for _, tt := range tests {
		token := Session(tt.chatID, tt.threadID)
		if token != tt.want {
			t.Fatalf("Session(%d, %d) = %q, want %q", tt.chatID, tt.threadID, token, tt.want)
		}
		chatID, threadID, err := ParseSession(token)
		if err != nil {
			t.Fatalf("ParseSession(%q): %v", token, err)
		}
		if chatID != tt.chatID || threadID != tt.threadID {
			t.Fatalf("ParseSession(%q) = %d, %d", token, chatID, threadID)
		}
	}
}

func TestParseSessionRejects(t *testing.T) {
	t.Parallel()
	for _, in := range []string{
		"",
		"42",
		"discord:42",
		"telegram:",
		"telegram:abc",
		"telegram:42:x",
		"telegram:42:7:9",
	} {
		if _, _, err := ParseSession(in); !errors.Is(err, ErrBadSession) {
			t.Fatalf("ParseSession(%q) err = %v, want ErrBadSession", in, err)
		}
	}
}
