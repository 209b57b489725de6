package ocr

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/wikimedia/wikimedia-ocr/cache"
	"github.com/wikimedia/wikimedia-ocr/engine"
	"github.com/wikimedia/wikimedia-ocr/logging"
	"github.com/wikimedia/wikimedia-ocr/messages"
	"github.com/wikimedia/wikimedia-ocr/models"
	"github.com/wikimedia/wikimedia-ocr/ocrerror"
)

// ServiceConfig wires the orchestration facade.
type ServiceConfig struct {
	Registry *engine.Registry
	Catalog  *models.Catalog
	Cache    *cache.Cache
	Messages *messages.Messages
	Logger   *logging.Logger

	// DefaultEngine is used when the requested engine name is unknown.
	DefaultEngine string
	// CacheTTL is the lifetime of memoized results.
	CacheTTL time.Duration
	// RunTimeout bounds a recognition call when the caller's context
	// carries no deadline of its own. It exists chiefly for the polling
	// engine, which would otherwise poll forever on a stuck job.
	RunTimeout time.Duration
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		DefaultEngine: "google",
		CacheTTL:      time.Hour,
		RunTimeout:    2 * time.Minute,
	}
}

// Service is the orchestration facade.
type Service struct {
	config ServiceConfig
}

func NewService(config ServiceConfig) *Service {
	defaults := DefaultServiceConfig()
	if config.DefaultEngine == "" {
		config.DefaultEngine = defaults.DefaultEngine
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = defaults.CacheTTL
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = defaults.RunTimeout
	}
	if config.Logger == nil {
		config.Logger = logging.NewNopLogger()
	}
	return &Service{config: config}
}

// Run transcribes the image described by the request. An unknown engine name
// falls back to the default engine with a warning; every other validation
// failure surfaces immediately, before any backend is contacted.
func (s *Service) Run(ctx context.Context, req Request) (engine.Result, error) {
	requestID := uuid.NewString()
	req = req.normalized()

	eng, fallbackWarnings, err := s.resolveEngine(req.Engine, req.Locale)
	if err != nil {
		return engine.Result{}, err
	}

	s.config.Logger.Info("recognition requested",
		"request", requestID, "engine", eng.ID(), "image", req.Image)

	// Validating the model list up front fails strict-policy requests before
	// any backend call and yields the validated list the fingerprint needs.
	validModels, _, err := s.config.Catalog.Filter(eng.ID(), req.Langs, req.Policy)
	if err != nil {
		return engine.Result{}, err
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RunTimeout)
		defer cancel()
	}

	fingerprint := cache.Fingerprint(req.Image, eng.ID(), validModels, req.Crop, map[string]string{
		"psm":     strconv.Itoa(req.PSM),
		"line_id": strconv.Itoa(req.LineID),
	}, req.Locale)

	result, err := s.config.Cache.GetOrCompute(ctx, fingerprint, s.config.CacheTTL, func() (engine.Result, error) {
		computed, err := eng.Recognize(ctx, engine.Request{
			ImageURL:           req.Image,
			Models:             req.Langs,
			Policy:             req.Policy,
			Crop:               req.Crop,
			Rotate:             req.Rotate,
			PSM:                req.PSM,
			LineDetectionModel: req.LineID,
			Locale:             req.Locale,
		})
		if err != nil {
			return engine.Result{}, err
		}
		return computed.Normalized(), nil
	})
	if err != nil {
		s.config.Logger.Error("recognition failed",
			"request", requestID, "engine", eng.ID(), "code", ocrerror.CodeOf(err), "error", err)
		return engine.Result{}, err
	}

	if len(fallbackWarnings) > 0 {
		result.Warnings = append(fallbackWarnings, result.Warnings...)
	}

	s.config.Logger.Info("recognition finished",
		"request", requestID, "engine", eng.ID(), "chars", len(result.Text), "warnings", len(result.Warnings))
	return result, nil
}

// resolveEngine looks up the requested engine, falling back to the default
// with a warning when the name is unknown. An unknown default is a
// configuration error and surfaces as-is.
func (s *Service) resolveEngine(name, locale string) (engine.Engine, []string, error) {
	if name == "" {
		name = s.config.DefaultEngine
	}

	eng, err := s.config.Registry.Resolve(name)
	if err == nil {
		return eng, nil, nil
	}
	if !ocrerror.Is(err, ocrerror.CodeEngineNotFound) || name == s.config.DefaultEngine {
		return nil, nil, err
	}

	eng, defaultErr := s.config.Registry.Resolve(s.config.DefaultEngine)
	if defaultErr != nil {
		return nil, nil, defaultErr
	}
	warning := s.config.Messages.Msg(locale, "engine-not-found-warning", name, s.config.DefaultEngine)
	return eng, []string{warning}, nil
}

// Engines returns the registered engine names.
func (s *Service) Engines() []string {
	return s.config.Registry.IDs()
}

// ValidModels lists the canonical model codes for an engine; with titles it
// returns a code to display-name map for UI population.
func (s *Service) ValidModels(engineID string, withTitles bool) (codes []string, titles map[string]string, err error) {
	eng, err := s.config.Registry.Resolve(engineID)
	if err != nil {
		return nil, nil, err
	}

	codes, err = eng.ValidModels()
	if err != nil {
		return nil, nil, err
	}
	if !withTitles {
		return codes, nil, nil
	}

	titles = make(map[string]string, len(codes))
	for _, code := range codes {
		titles[code] = s.config.Catalog.Title(eng.ID(), code)
	}
	return codes, titles, nil
}

// LineDetectionModels lists the Transkribus line detection models.
func (s *Service) LineDetectionModels() ([]models.LineDetectionModel, error) {
	return s.config.Catalog.LineDetectionModels()
}

// AvailablePSMs lists the tesseract page segmentation modes, when the
// tesseract engine is registered.
func (s *Service) AvailablePSMs(locale string) []engine.PSM {
	eng, err := s.config.Registry.Resolve("tesseract")
	if err != nil {
		return nil
	}
	tesseract, ok := eng.(*engine.Tesseract)
	if !ok {
		return nil
	}
	return tesseract.AvailablePSMs(locale)
}
