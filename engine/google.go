package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/wikimedia/wikimedia-ocr/images"
	"github.com/wikimedia/wikimedia-ocr/messages"
	"github.com/wikimedia/wikimedia-ocr/models"
	"github.com/wikimedia/wikimedia-ocr/ocrerror"
)

const googleID = "google"

// The provider has no dedicated error code for "could not fetch the image by
// URL", so the message string has to be matched.
const googleDownloadErrorFragment = "download the content and pass it in"

// GoogleConfig configures the Cloud Vision adapter.
type GoogleConfig struct {
	// Key is the Cloud Vision API key.
	Key string
	// Client is the HTTP client used for annotate calls.
	Client *http.Client
	// Endpoint is the annotate endpoint, overridable for tests.
	Endpoint string

	Catalog  *models.Catalog
	Resolver *images.Resolver
	Messages *messages.Messages
}

func DefaultGoogleConfig() GoogleConfig {
	return GoogleConfig{
		Client:   http.DefaultClient,
		Endpoint: "https://vision.googleapis.com/v1/images:annotate",
	}
}

// Google performs recognition through the Cloud Vision text detection API.
// The protocol is stateless request/response: the image travels either as a
// URL reference or as inline bytes.
type Google struct {
	base
	config GoogleConfig
}

func NewGoogle(config GoogleConfig) *Google {
	if config.Client == nil {
		config.Client = http.DefaultClient
	}
	if config.Endpoint == "" {
		config.Endpoint = DefaultGoogleConfig().Endpoint
	}
	return &Google{
		base: base{
			id:       googleID,
			catalog:  config.Catalog,
			resolver: config.Resolver,
			messages: config.Messages,
		},
		config: config,
	}
}

type googleImageSource struct {
	ImageURI string `json:"imageUri"`
}

type googleImage struct {
	Source *googleImageSource `json:"source,omitempty"`
	// Content is base64 encoded on the wire by the JSON marshaller.
	Content []byte `json:"content,omitempty"`
}

type googleFeature struct {
	Type string `json:"type"`
}

type googleImageContext struct {
	LanguageHints []string `json:"languageHints"`
}

type googleAnnotateEntry struct {
	Image        googleImage         `json:"image"`
	Features     []googleFeature     `json:"features"`
	ImageContext *googleImageContext `json:"imageContext,omitempty"`
}

type googleAnnotateRequest struct {
	Requests []googleAnnotateEntry `json:"requests"`
}

type googleError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type googleAnnotateResponse struct {
	Responses []struct {
		Error              *googleError `json:"error"`
		FullTextAnnotation *struct {
			Text string `json:"text"`
		} `json:"fullTextAnnotation"`
	} `json:"responses"`
	Error *googleError `json:"error"`
}

func (g *Google) Recognize(ctx context.Context, req Request) (Result, error) {
	if err := g.CheckImageURL(req.ImageURL); err != nil {
		return Result{}, err
	}

	valid, warnings, err := g.filterModels(req)
	if err != nil {
		return Result{}, err
	}
	hints, err := g.nativeCodes(valid)
	if err != nil {
		return Result{}, err
	}

	if g.config.Key == "" {
		return Result{}, ocrerror.NewGoogle("key for the Google OCR engine is missing")
	}

	image, err := g.config.Resolver.Resolve(ctx, req.ImageURL, req.Crop, req.Rotate, false)
	if err != nil {
		return Result{}, err
	}

	response, err := g.annotate(ctx, image, hints)
	if err != nil {
		return Result{}, err
	}

	// Retry exactly once with inline bytes when the provider reports that it
	// could not fetch the image by URL.
	if msg := response.errorMessage(); msg != "" && strings.Contains(strings.ToLower(msg), googleDownloadErrorFragment) {
		image, err = g.config.Resolver.Resolve(ctx, req.ImageURL, req.Crop, req.Rotate, true)
		if err != nil {
			return Result{}, err
		}
		response, err = g.annotate(ctx, image, hints)
		if err != nil {
			return Result{}, err
		}
	}

	// Any other provider error is reported to the user, minus key material.
	if msg := response.errorMessage(); msg != "" {
		return Result{}, ocrerror.NewGoogle(g.redact(msg))
	}

	// Empty detected text is success, not failure.
	text := ""
	if len(response.Responses) > 0 && response.Responses[0].FullTextAnnotation != nil {
		text = response.Responses[0].FullTextAnnotation.Text
	}
	return Result{Text: text, Warnings: warnings}, nil
}

func (g *Google) annotate(ctx context.Context, image *images.Image, hints []string) (*googleAnnotateResponse, error) {
	entry := googleAnnotateEntry{
		Features: []googleFeature{{Type: "TEXT_DETECTION"}},
	}
	if image.HasData() {
		entry.Image.Content = image.Data()
	} else {
		entry.Image.Source = &googleImageSource{ImageURI: image.URL()}
	}
	if len(hints) > 0 {
		entry.ImageContext = &googleImageContext{LanguageHints: hints}
	}

	body, err := json.Marshal(googleAnnotateRequest{Requests: []googleAnnotateEntry{entry}})
	if err != nil {
		return nil, errors.Join(errors.New("failed to marshal annotate request"), err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.Endpoint+"?key="+g.config.Key, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Join(errors.New("failed to prepare annotate request"), err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.config.Client.Do(httpReq)
	if err != nil {
		return nil, ocrerror.NewGoogle(g.redact(err.Error()))
	}
	defer resp.Body.Close()

	responseBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Join(errors.New("error while reading annotate response body"), err)
	}

	var responseData googleAnnotateResponse
	if err := json.Unmarshal(responseBytes, &responseData); err != nil {
		return nil, ocrerror.NewGoogle(fmt.Sprintf("unparseable response, status code %d", resp.StatusCode))
	}

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("bad status code from provider: %d", resp.StatusCode)
		if responseData.Error != nil && responseData.Error.Message != "" {
			msg = responseData.Error.Message
		}
		return nil, ocrerror.NewGoogle(g.redact(msg))
	}

	return &responseData, nil
}

func (r *googleAnnotateResponse) errorMessage() string {
	if len(r.Responses) > 0 && r.Responses[0].Error != nil {
		return r.Responses[0].Error.Message
	}
	return ""
}

// redact strips the API key out of provider-reported text before it can
// reach the caller.
func (g *Google) redact(message string) string {
	if g.config.Key == "" {
		return message
	}
	return strings.ReplaceAll(message, g.config.Key, "[redacted]")
}

var _ Engine = (*Google)(nil)
