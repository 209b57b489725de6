package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/wikimedia/wikimedia-ocr/images"
	"github.com/wikimedia/wikimedia-ocr/messages"
	"github.com/wikimedia/wikimedia-ocr/models"
	"github.com/wikimedia/wikimedia-ocr/ocrerror"
)

const transkribusID = "transkribus"

// TranskribusConfig configures the asynchronous Transkribus adapter.
type TranskribusConfig struct {
	Client *TranskribusClient
	// PollInterval is the fixed delay between job status checks.
	PollInterval time.Duration

	Catalog  *models.Catalog
	Resolver *images.Resolver
	Messages *messages.Messages
}

func DefaultTranskribusConfig() TranskribusConfig {
	return TranskribusConfig{
		PollInterval: 2 * time.Second,
	}
}

// Transkribus performs recognition through the Transkribus job API: a job is
// submitted, then polled on a fixed interval until it reaches a terminal
// status. Polling is bounded only by the caller's context; on expiry the
// loop stops and surfaces a timeout.
type Transkribus struct {
	base
	config TranskribusConfig
}

func NewTranskribus(config TranskribusConfig) *Transkribus {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultTranskribusConfig().PollInterval
	}
	return &Transkribus{
		base: base{
			id:       transkribusID,
			catalog:  config.Catalog,
			resolver: config.Resolver,
			messages: config.Messages,
		},
		config: config,
	}
}

func (t *Transkribus) Recognize(ctx context.Context, req Request) (Result, error) {
	if err := t.CheckImageURL(req.ImageURL); err != nil {
		return Result{}, err
	}

	valid, warnings, err := t.filterModels(req)
	if err != nil {
		return Result{}, err
	}

	// The job API takes exactly one recognition model.
	switch {
	case len(valid) == 0:
		return Result{}, ocrerror.NewTranskribusNoModel()
	case len(valid) > 1:
		return Result{}, ocrerror.NewTranskribusMultipleModels(len(valid))
	}

	entry, ok := t.config.Catalog.Entry(transkribusID, valid[0])
	if !ok {
		return Result{}, ocrerror.NewTranskribusNoModel()
	}

	// The provider fetches the image itself; the crop travels as a polygon
	// of the rectangle's corners instead of cropped bytes.
	image, err := t.config.Resolver.Resolve(ctx, req.ImageURL, nil, 0, false)
	if err != nil {
		return Result{}, err
	}

	points := ""
	if !req.Crop.Empty() {
		crop := req.Crop
		points = fmt.Sprintf("%d,%d %d,%d %d,%d %d,%d",
			crop.X, crop.Y,
			crop.X+crop.Width, crop.Y,
			crop.X+crop.Width, crop.Y+crop.Height,
			crop.X, crop.Y+crop.Height,
		)
	}

	processID, err := t.config.Client.Submit(ctx, image.URL(), entry.HTRModelID, req.LineDetectionModel, points)
	if err != nil {
		return Result{}, err
	}

	text, err := t.poll(ctx, processID)
	if err != nil {
		return Result{}, err
	}

	return Result{Text: text, Warnings: warnings}, nil
}

// poll checks the job on a fixed interval until it finishes, fails, or the
// context expires.
func (t *Transkribus) poll(ctx context.Context, processID int64) (string, error) {
	for {
		status, text, err := t.config.Client.Process(ctx, processID)
		if err != nil {
			if ctx.Err() != nil {
				return "", ocrerror.NewTimeout(ctx.Err())
			}
			return "", err
		}

		switch status {
		case transkribusStatusFinished:
			return text, nil
		case transkribusStatusFailed:
			return "", ocrerror.NewTranskribusJobFailed(processID)
		}

		select {
		case <-ctx.Done():
			return "", ocrerror.NewTimeout(ctx.Err())
		case <-time.After(t.config.PollInterval):
		}
	}
}

var _ Engine = (*Transkribus)(nil)
