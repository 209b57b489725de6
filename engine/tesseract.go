package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/wikimedia/wikimedia-ocr/images"
	"github.com/wikimedia/wikimedia-ocr/messages"
	"github.com/wikimedia/wikimedia-ocr/models"
	"github.com/wikimedia/wikimedia-ocr/ocrerror"
)

const tesseractID = "tesseract"

// MaxPSM is the highest valid page segmentation mode.
const MaxPSM = 13

// DefaultPSM is used when the caller does not pick a mode.
const DefaultPSM = 3

// PSM 2 is not implemented by tesseract itself.
var availablePSMs = []int{0, 1, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13}

// PSM is a page segmentation mode with its display label.
type PSM struct {
	Value int    `json:"value"`
	Label string `json:"label"`
}

// TesseractConfig configures the local tesseract adapter.
type TesseractConfig struct {
	// Binary is the path of the tesseract executable.
	Binary string

	Catalog  *models.Catalog
	Resolver *images.Resolver
	Messages *messages.Messages
}

func DefaultTesseractConfig() TesseractConfig {
	return TesseractConfig{
		Binary: "/usr/bin/tesseract",
	}
}

// Tesseract performs recognition by invoking the local tesseract executable,
// one process per call. Image bytes are always downloaded first and passed
// over stdin.
type Tesseract struct {
	base
	config TesseractConfig
}

func NewTesseract(config TesseractConfig) *Tesseract {
	if config.Binary == "" {
		config.Binary = DefaultTesseractConfig().Binary
	}
	return &Tesseract{
		base: base{
			id:       tesseractID,
			catalog:  config.Catalog,
			resolver: config.Resolver,
			messages: config.Messages,
		},
		config: config,
	}
}

func (t *Tesseract) Recognize(ctx context.Context, req Request) (Result, error) {
	// The page segmentation mode is rejected before any process is spawned.
	if req.PSM > MaxPSM {
		return Result{}, ocrerror.NewParamOutOfRange("psm", req.PSM, MaxPSM)
	}

	if err := t.CheckImageURL(req.ImageURL); err != nil {
		return Result{}, err
	}

	valid, warnings, err := t.filterModels(req)
	if err != nil {
		return Result{}, err
	}
	langs, err := t.nativeCodes(valid)
	if err != nil {
		return Result{}, err
	}

	image, err := t.config.Resolver.Resolve(ctx, req.ImageURL, req.Crop, req.Rotate, true)
	if err != nil {
		return Result{}, err
	}

	text, err := t.run(ctx, image, langs, req.PSM)
	if err != nil {
		return Result{}, err
	}

	// An empty transcription is a known benign outcome, reported as a
	// warning rather than a failure.
	if strings.TrimSpace(text) == "" {
		return Result{
			Warnings: append(warnings, t.messages.Msg(req.Locale, "tesseract-no-text-warning")),
		}, nil
	}

	return Result{Text: text, Warnings: warnings}, nil
}

func (t *Tesseract) run(ctx context.Context, image *images.Image, langs []string, psm int) (string, error) {
	args := []string{"stdin", "stdout", "--psm", strconv.Itoa(psm)}
	if len(langs) > 0 {
		args = append(args, "-l", strings.Join(langs, "+"))
	}

	cmd := exec.CommandContext(ctx, t.config.Binary, args...)

	// Keep tesseract single-threaded.
	cmd.Env = append(os.Environ(), "OMP_THREAD_LIMIT=1")

	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(image.Data())
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ocrerror.NewTimeout(ctx.Err())
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%s: %w", msg, err)
		}
		return "", ocrerror.NewProcess(t.config.Binary, err)
	}

	return stdout.String(), nil
}

// AvailablePSMs lists the selectable page segmentation modes with localized
// labels, for UI population.
func (t *Tesseract) AvailablePSMs(locale string) []PSM {
	psms := make([]PSM, 0, len(availablePSMs))
	for _, id := range availablePSMs {
		psms = append(psms, PSM{
			Value: id,
			Label: t.messages.Msg(locale, "tesseract-psm-"+strconv.Itoa(id)),
		})
	}
	return psms
}

var _ Engine = (*Tesseract)(nil)
