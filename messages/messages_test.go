package messages

import (
	"strings"
	"testing"
)

func TestMsgReplacesPlaceholders(t *testing.T) {
	msgs := New()

	text := msgs.Msg("en", "engine-not-found-warning", "hocr", "google")
	if !strings.Contains(text, `"hocr"`) || !strings.Contains(text, `"google"`) {
		t.Errorf("unexpected message: %q", text)
	}
}

func TestMsgFallsBackToEnglish(t *testing.T) {
	msgs := New()

	fallback := msgs.Msg("xx", "tesseract-no-text-warning")
	english := msgs.Msg("en", "tesseract-no-text-warning")
	if fallback != english {
		t.Errorf("expected the English fallback, got %q", fallback)
	}
}

func TestMsgUnknownKeyReturnsKey(t *testing.T) {
	msgs := New()

	if text := msgs.Msg("en", "no-such-key"); text != "no-such-key" {
		t.Errorf("unexpected message: %q", text)
	}
}
