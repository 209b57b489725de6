package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/wikimedia/wikimedia-ocr/images"
)

func newKrakenForTest(t *testing.T, script string) *Kraken {
	t.Helper()
	catalog, resolver, msgs := testBase(t, nil)
	config := DefaultKrakenConfig()
	config.Binary = fakeBinary(t, script)
	config.Catalog = catalog
	config.Resolver = resolver
	config.Messages = msgs
	return NewKraken(config)
}

func TestKrakenRecognize(t *testing.T) {
	kraken := newKrakenForTest(t, `echo "args: $*"`)

	result, err := kraken.Recognize(context.Background(), Request{
		ImageURL: "https://upload.wikimedia.org/page.jpg",
		Models:   []string{"de-f"},
		Locale:   "en",
	})
	if err != nil {
		t.Fatal(err.Error())
	}
	if !strings.Contains(result.Text, "https://upload.wikimedia.org/page.jpg german_print") {
		t.Errorf("unexpected arguments: %q", result.Text)
	}
}

func TestKrakenUsesFirstModelAndCropGeometry(t *testing.T) {
	kraken := newKrakenForTest(t, `echo "args: $*"`)

	result, err := kraken.Recognize(context.Background(), Request{
		ImageURL: "https://upload.wikimedia.org/page.jpg",
		Models:   []string{"en", "fr"},
		Crop:     &images.Crop{X: 10, Y: 20, Width: 300, Height: 400},
		Locale:   "en",
	})
	if err != nil {
		t.Fatal(err.Error())
	}
	if !strings.Contains(result.Text, "en_best") || strings.Contains(result.Text, "fr_best") {
		t.Errorf("expected only the first model, got %q", result.Text)
	}
	if !strings.Contains(result.Text, "300x400+10+20") {
		t.Errorf("expected crop geometry, got %q", result.Text)
	}
}

func TestKrakenDefaultModel(t *testing.T) {
	kraken := newKrakenForTest(t, `echo "args: $*"`)

	result, err := kraken.Recognize(context.Background(), Request{
		ImageURL: "https://upload.wikimedia.org/page.jpg",
		Locale:   "en",
	})
	if err != nil {
		t.Fatal(err.Error())
	}
	if !strings.Contains(result.Text, "german_print") {
		t.Errorf("expected the default model, got %q", result.Text)
	}
}
