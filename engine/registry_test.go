package engine

import (
	"testing"

	"github.com/wikimedia/wikimedia-ocr/ocrerror"
)

func TestRegistryResolve(t *testing.T) {
	catalog, resolver, msgs := testBase(t, nil)

	googleConfig := DefaultGoogleConfig()
	googleConfig.Catalog = catalog
	googleConfig.Resolver = resolver
	googleConfig.Messages = msgs

	tesseractConfig := DefaultTesseractConfig()
	tesseractConfig.Catalog = catalog
	tesseractConfig.Resolver = resolver
	tesseractConfig.Messages = msgs

	registry := NewRegistry(NewGoogle(googleConfig), NewTesseract(tesseractConfig))

	eng, err := registry.Resolve("tesseract")
	if err != nil {
		t.Fatal(err.Error())
	}
	if eng.ID() != "tesseract" {
		t.Errorf("unexpected engine: %q", eng.ID())
	}

	_, err = registry.Resolve("hocr")
	if !ocrerror.Is(err, ocrerror.CodeEngineNotFound) {
		t.Errorf("expected an engine-not-found error, got %v", err)
	}

	ids := registry.IDs()
	if len(ids) != 2 || ids[0] != "google" || ids[1] != "tesseract" {
		t.Errorf("unexpected engine ids: %v", ids)
	}
}
