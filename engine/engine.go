// Package engine defines the common contract all OCR backends implement and
// the per-backend protocol adapters: the synchronous Cloud Vision API, the
// local tesseract and kraken processes, and the asynchronous Transkribus
// job API.
package engine

import (
	"context"
	"strings"

	"github.com/wikimedia/wikimedia-ocr/images"
	"github.com/wikimedia/wikimedia-ocr/messages"
	"github.com/wikimedia/wikimedia-ocr/models"
)

// Request carries everything a single recognition call needs. It is
// constructed fresh per call and never mutated after validation.
type Request struct {
	// ImageURL is the source image location.
	ImageURL string
	// Models is the ordered list of requested canonical model codes.
	Models []string
	// Policy controls handling of unknown model codes.
	Policy models.Policy
	// Crop restricts recognition to a rectangle; nil means the full image.
	Crop *images.Crop
	// Rotate is a clockwise rotation in degrees applied before recognition.
	Rotate int
	// PSM is the tesseract page segmentation mode.
	PSM int
	// LineDetectionModel is the Transkribus line detection model id; zero
	// means the provider default.
	LineDetectionModel int
	// Locale selects the language of warning messages.
	Locale string
}

// Result is the output of a recognition call. It is the only channel for
// degraded-but-successful outcomes: invalid-model warnings ride alongside
// the text.
type Result struct {
	Text     string   `json:"text"`
	Warnings []string `json:"warnings,omitempty"`
}

// historic character folding applied to all recognized text.
var normalizer = strings.NewReplacer(
	"ſ", "s",
	"ꝛ", "r",
	"ℳ", "M",
	"aͤ", "ä",
	"oͤ", "ö",
	"uͤ", "ü",
	"⸗", "-",
)

// Normalized returns a copy of the result with historic characters folded to
// their modern equivalents.
func (r Result) Normalized() Result {
	r.Text = normalizer.Replace(r.Text)
	return r
}

// Engine is the capability contract every backend adapter implements.
type Engine interface {
	// ID is the stable engine name used for lookup and cache fingerprints.
	ID() string
	// Recognize transcribes the image described by the request.
	Recognize(ctx context.Context, req Request) (Result, error)
	// ValidModels returns the canonical model codes this engine accepts.
	ValidModels() ([]string, error)
	// CheckImageURL validates the URL against the engine's allow-lists.
	CheckImageURL(url string) error
}

// base carries the collaborators shared by every adapter.
type base struct {
	id       string
	catalog  *models.Catalog
	resolver *images.Resolver
	messages *messages.Messages
}

func (b *base) ID() string {
	return b.id
}

func (b *base) ValidModels() ([]string, error) {
	return b.catalog.ValidModels(b.id)
}

func (b *base) CheckImageURL(url string) error {
	return b.resolver.CheckURL(url)
}

// filterModels partitions the requested codes per the request's policy and
// renders the dropped-models warning when applicable.
func (b *base) filterModels(req Request) (valid []string, warnings []string, err error) {
	valid, invalid, err := b.catalog.Filter(b.id, req.Models, req.Policy)
	if err != nil {
		return nil, nil, err
	}
	if len(invalid) > 0 {
		warnings = append(warnings, b.messages.Msg(req.Locale, "invalid-langs-warning", strings.Join(invalid, ", ")))
	}
	return valid, warnings, nil
}

// nativeCodes maps canonical codes to the engine's wire codes, preserving
// order.
func (b *base) nativeCodes(valid []string) ([]string, error) {
	codes := make([]string, 0, len(valid))
	for _, code := range valid {
		native, err := b.catalog.NativeCode(b.id, code)
		if err != nil {
			return nil, err
		}
		codes = append(codes, native)
	}
	return codes, nil
}
