package ocr

import (
	"context"
	"strings"
	"testing"

	"github.com/wikimedia/wikimedia-ocr/cache"
	"github.com/wikimedia/wikimedia-ocr/engine"
	"github.com/wikimedia/wikimedia-ocr/images"
	"github.com/wikimedia/wikimedia-ocr/messages"
	"github.com/wikimedia/wikimedia-ocr/models"
	"github.com/wikimedia/wikimedia-ocr/ocrerror"
)

// stubEngine satisfies engine.Engine with canned behavior, standing in for a
// real backend.
type stubEngine struct {
	id     string
	result engine.Result
	err    error

	calls   int
	lastReq engine.Request
	lastCtx context.Context
}

func (s *stubEngine) ID() string { return s.id }

func (s *stubEngine) Recognize(ctx context.Context, req engine.Request) (engine.Result, error) {
	s.calls++
	s.lastReq = req
	s.lastCtx = ctx
	return s.result, s.err
}

func (s *stubEngine) ValidModels() ([]string, error) {
	return models.NewCatalog().ValidModels(s.id)
}

func (s *stubEngine) CheckImageURL(url string) error { return nil }

func newServiceForTest(engines ...engine.Engine) *Service {
	config := DefaultServiceConfig()
	config.Registry = engine.NewRegistry(engines...)
	config.Catalog = models.NewCatalog()
	config.Cache = cache.New(cache.NewMemory())
	config.Messages = messages.New()
	return NewService(config)
}

func TestRunCachesResults(t *testing.T) {
	stub := &stubEngine{id: "google", result: engine.Result{Text: "Auſſerdem"}}
	service := newServiceForTest(stub)

	req := Request{
		Image:  "https://upload.wikimedia.org/page.jpg",
		Engine: "google",
		Langs:  []string{"en"},
	}

	for i := 0; i < 3; i++ {
		result, err := service.Run(context.Background(), req)
		if err != nil {
			t.Fatal(err.Error())
		}
		if result.Text != "Ausserdem" {
			t.Errorf("expected normalized text, got %q", result.Text)
		}
	}
	if stub.calls != 1 {
		t.Errorf("expected one backend call, got %d", stub.calls)
	}
}

func TestRunCacheKeyedOnInputs(t *testing.T) {
	stub := &stubEngine{id: "google", result: engine.Result{Text: "text"}}
	service := newServiceForTest(stub)

	base := Request{Image: "https://upload.wikimedia.org/page.jpg", Engine: "google", Langs: []string{"en"}}
	if _, err := service.Run(context.Background(), base); err != nil {
		t.Fatal(err.Error())
	}

	cropped := base
	cropped.Crop = &images.Crop{Width: 10, Height: 10}
	if _, err := service.Run(context.Background(), cropped); err != nil {
		t.Fatal(err.Error())
	}

	if stub.calls != 2 {
		t.Errorf("a cropped request should miss the cache, got %d calls", stub.calls)
	}
}

func TestRunFallsBackToDefaultEngine(t *testing.T) {
	stub := &stubEngine{id: "google", result: engine.Result{Text: "text"}}
	service := newServiceForTest(stub)

	result, err := service.Run(context.Background(), Request{
		Image:  "https://upload.wikimedia.org/page.jpg",
		Engine: "hocr",
	})
	if err != nil {
		t.Fatal(err.Error())
	}
	if stub.calls != 1 {
		t.Fatalf("expected the default engine to run, got %d calls", stub.calls)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], `"hocr"`) {
		t.Errorf("expected a fallback warning, got %v", result.Warnings)
	}
}

func TestRunStrictModelPolicy(t *testing.T) {
	stub := &stubEngine{id: "google", result: engine.Result{Text: "text"}}
	service := newServiceForTest(stub)

	_, err := service.Run(context.Background(), Request{
		Image:  "https://upload.wikimedia.org/page.jpg",
		Engine: "google",
		Langs:  []string{"en", "klingon"},
		Policy: models.ErrorOnInvalid,
	})
	if !ocrerror.Is(err, ocrerror.CodeInvalidModel) {
		t.Fatalf("expected an invalid-model error, got %v", err)
	}
	if stub.calls != 0 {
		t.Error("validation should fail before any backend call")
	}
}

func TestRunAppliesDefaultDeadline(t *testing.T) {
	stub := &stubEngine{id: "google", result: engine.Result{Text: "text"}}
	service := newServiceForTest(stub)

	if _, err := service.Run(context.Background(), Request{
		Image:  "https://upload.wikimedia.org/page.jpg",
		Engine: "google",
	}); err != nil {
		t.Fatal(err.Error())
	}
	if _, ok := stub.lastCtx.Deadline(); !ok {
		t.Error("expected a deadline on the backend context")
	}
}

func TestRunPassesNormalizedRequest(t *testing.T) {
	stub := &stubEngine{id: "google", result: engine.Result{Text: "text"}}
	service := newServiceForTest(stub)

	if _, err := service.Run(context.Background(), Request{
		Image:  "//upload.wikimedia.org/page.jpg",
		Engine: "google",
		Langs:  []string{"en!!", "en", "", "fr"},
		Crop:   &images.Crop{Width: 0, Height: 10},
	}); err != nil {
		t.Fatal(err.Error())
	}

	if stub.lastReq.ImageURL != "https://upload.wikimedia.org/page.jpg" {
		t.Errorf("unexpected image URL: %q", stub.lastReq.ImageURL)
	}
	if strings.Join(stub.lastReq.Models, ",") != "en,fr" {
		t.Errorf("unexpected models: %v", stub.lastReq.Models)
	}
	if stub.lastReq.Crop != nil {
		t.Error("a degenerate crop should be dropped")
	}
	if stub.lastReq.Locale != "en" {
		t.Errorf("expected the default locale, got %q", stub.lastReq.Locale)
	}
}

func TestValidModelsWithTitles(t *testing.T) {
	stub := &stubEngine{id: "tesseract"}
	service := newServiceForTest(stub)

	codes, titles, err := service.ValidModels("tesseract", true)
	if err != nil {
		t.Fatal(err.Error())
	}
	if len(codes) == 0 {
		t.Fatal("expected model codes")
	}
	if titles["de-f"] != "Deutsch (Fraktur)" {
		t.Errorf("unexpected title map: %v", titles)
	}

	_, _, err = service.ValidModels("hocr", false)
	if !ocrerror.Is(err, ocrerror.CodeEngineNotFound) {
		t.Errorf("expected an engine-not-found error, got %v", err)
	}
}

func TestRequestNormalized(t *testing.T) {
	req := Request{
		Image:  "//upload.wikimedia.org/page.jpg",
		Langs:  []string{"en$", "en", "de-f", "de_f", ""},
		Crop:   &images.Crop{X: 5, Y: 5},
		Locale: "",
	}

	normalized := req.normalized()
	if normalized.Image != "https://upload.wikimedia.org/page.jpg" {
		t.Errorf("unexpected image URL: %q", normalized.Image)
	}
	if strings.Join(normalized.Langs, ",") != "en,de-f,de_f" {
		t.Errorf("unexpected langs: %v", normalized.Langs)
	}
	if normalized.Crop != nil {
		t.Error("expected the degenerate crop dropped")
	}
	if normalized.Locale != "en" {
		t.Errorf("unexpected locale: %q", normalized.Locale)
	}
}
