package ocrerror

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestCodeOfUnwrapsWrappedErrors(t *testing.T) {
	err := NewTimeout(errors.New("context deadline exceeded"))
	wrapped := fmt.Errorf("recognition failed: %w", err)

	if CodeOf(wrapped) != CodeTimeout {
		t.Errorf("unexpected code: %q", CodeOf(wrapped))
	}
	if !Is(wrapped, CodeTimeout) {
		t.Error("expected Is to match through wrapping")
	}
	if Is(wrapped, CodeGoogle) {
		t.Error("expected Is to reject a different code")
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Error("expected no code for a plain error")
	}
}

func TestErrorMessage(t *testing.T) {
	err := NewParamOutOfRange("psm", 14, 13)
	msg := err.Error()
	if !strings.HasPrefix(msg, "param-out-of-range") {
		t.Errorf("unexpected message: %q", msg)
	}
	for _, part := range []string{"param=psm", "given=14", "maximum=13"} {
		if !strings.Contains(msg, part) {
			t.Errorf("expected %q in %q", part, msg)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewImageRetrieval("https://upload.wikimedia.org/page.jpg", cause)
	if !errors.Is(err, cause) {
		t.Error("expected the cause to be reachable through Unwrap")
	}
}
