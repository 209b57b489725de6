package engine

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/wikimedia/wikimedia-ocr/images"
	"github.com/wikimedia/wikimedia-ocr/messages"
	"github.com/wikimedia/wikimedia-ocr/models"
	"github.com/wikimedia/wikimedia-ocr/ocrerror"
)

const krakenID = "kraken"

// krakenDefaultModel is used when no requested model survives filtering.
const krakenDefaultModel = "german_print"

// KrakenConfig configures the kraken adapter.
type KrakenConfig struct {
	// Binary is the path of the kraken wrapper executable. It fetches the
	// image itself, so the adapter passes the URL through.
	Binary string

	Catalog  *models.Catalog
	Resolver *images.Resolver
	Messages *messages.Messages
}

func DefaultKrakenConfig() KrakenConfig {
	return KrakenConfig{
		Binary: "bin/kraken_ocr",
	}
}

// Kraken performs recognition through the local kraken wrapper script.
// Kraken supports only one model per run, so only the first valid model is
// used.
type Kraken struct {
	base
	config KrakenConfig
}

func NewKraken(config KrakenConfig) *Kraken {
	if config.Binary == "" {
		config.Binary = DefaultKrakenConfig().Binary
	}
	return &Kraken{
		base: base{
			id:       krakenID,
			catalog:  config.Catalog,
			resolver: config.Resolver,
			messages: config.Messages,
		},
		config: config,
	}
}

func (k *Kraken) Recognize(ctx context.Context, req Request) (Result, error) {
	if err := k.CheckImageURL(req.ImageURL); err != nil {
		return Result{}, err
	}

	valid, warnings, err := k.filterModels(req)
	if err != nil {
		return Result{}, err
	}

	model := krakenDefaultModel
	if len(valid) > 0 {
		native, err := k.nativeCodes(valid[:1])
		if err != nil {
			return Result{}, err
		}
		model = native[0]
	}

	args := []string{req.ImageURL, model}
	if !req.Crop.Empty() {
		args = append(args, fmt.Sprintf("%dx%d+%d+%d", req.Crop.Width, req.Crop.Height, req.Crop.X, req.Crop.Y))
	}

	cmd := exec.CommandContext(ctx, k.config.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Result{}, ocrerror.NewTimeout(ctx.Err())
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%s: %w", msg, err)
		}
		return Result{}, ocrerror.NewProcess(k.config.Binary, err)
	}

	return Result{Text: stdout.String(), Warnings: warnings}, nil
}

var _ Engine = (*Kraken)(nil)
