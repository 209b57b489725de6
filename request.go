// Package ocr is the single entry point consumed by the web and CLI layers:
// it validates inputs, resolves the engine and model list, applies the
// result cache, invokes the backend adapter and assembles the result and
// warnings payload.
package ocr

import (
	"regexp"
	"strings"

	"github.com/wikimedia/wikimedia-ocr/images"
	"github.com/wikimedia/wikimedia-ocr/models"
)

// Request describes one recognition call. It is constructed fresh per call
// and passed down by value; nothing mutates it after normalization.
type Request struct {
	// Image is the source image URL.
	Image string
	// Engine is the requested engine name.
	Engine string
	// Langs is the ordered list of requested language/model codes.
	Langs []string
	// Crop restricts recognition to a rectangle; nil or non-positive
	// dimensions mean no crop.
	Crop *images.Crop
	// Rotate is a clockwise rotation in degrees.
	Rotate int
	// PSM is the tesseract page segmentation mode.
	PSM int
	// LineID is the Transkribus line detection model id, zero for the
	// provider default.
	LineID int
	// Policy controls handling of unknown language codes.
	Policy models.Policy
	// Locale selects the language of warning messages.
	Locale string
}

var langCodePattern = regexp.MustCompile(`[^a-zA-Z0-9\-_]`)

// normalized returns a copy of the request with its inputs cleaned up:
// protocol-relative image URLs become https, language codes are sanitized
// and deduplicated, degenerate crops are dropped and the locale defaults to
// English.
func (r Request) normalized() Request {
	if strings.HasPrefix(r.Image, "//") {
		r.Image = "https:" + r.Image
	}

	langs := make([]string, 0, len(r.Langs))
	seen := make(map[string]bool, len(r.Langs))
	for _, lang := range r.Langs {
		lang = langCodePattern.ReplaceAllString(lang, "")
		if lang == "" || seen[lang] {
			continue
		}
		seen[lang] = true
		langs = append(langs, lang)
	}
	r.Langs = langs

	if r.Crop.Empty() {
		r.Crop = nil
	}
	if r.Locale == "" {
		r.Locale = "en"
	}
	return r
}
