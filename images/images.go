// Package images acquires source images for recognition: it validates URLs
// against per-engine allow-lists, fetches bytes when an engine needs them,
// and applies the optional crop and rotation transforms.
package images

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"github.com/wikimedia/wikimedia-ocr/ocrerror"
)

// Crop is a rectangle cut in pixel coordinates with the origin in the upper
// left corner of the image. No scaling is ever applied.
type Crop struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty reports whether the crop has non-positive dimensions, which is
// treated as "no crop requested".
func (c *Crop) Empty() bool {
	return c == nil || c.Width <= 0 || c.Height <= 0
}

// Image is a source image for a single recognition call. Data is absent until
// explicitly fetched; once set it is never modified.
type Image struct {
	url  string
	data []byte
}

// URL returns the source URL of the image.
func (i *Image) URL() string { return i.url }

// HasData reports whether image bytes have been fetched.
func (i *Image) HasData() bool { return i.data != nil }

// Data returns the fetched (and possibly transformed) image bytes.
func (i *Image) Data() []byte { return i.data }

// Size returns the image data size in bytes.
func (i *Image) Size() int { return len(i.data) }

// ResolverConfig configures an image resolver.
type ResolverConfig struct {
	// HTTP client used to fetch image bytes.
	Client *http.Client
	// Hosts that source URLs must match, compared case-insensitively.
	Hosts []string
	// Extensions that source URLs must carry, compared case-insensitively
	// and without the leading dot.
	Extensions []string
}

// DefaultResolverConfig allows Wikimedia upload URLs with the image formats
// every engine can consume.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		Client:     &http.Client{Timeout: 30 * time.Second},
		Hosts:      []string{"upload.wikimedia.org"},
		Extensions: []string{"jpg", "jpeg", "png", "gif", "tiff", "tif", "webp", "bmp"},
	}
}

// Resolver fetches and transforms source images.
type Resolver struct {
	config ResolverConfig
}

func NewResolver(config ResolverConfig) *Resolver {
	if config.Client == nil {
		config.Client = http.DefaultClient
	}
	return &Resolver{config: config}
}

// Hosts returns the allow-listed hosts, for display to callers.
func (r *Resolver) Hosts() []string {
	hosts := make([]string, len(r.config.Hosts))
	copy(hosts, r.config.Hosts)
	return hosts
}

// CheckURL validates that the URL points at an allow-listed host and carries
// an allow-listed file extension.
func (r *Resolver) CheckURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" || parsed.Scheme == "" {
		return ocrerror.NewImageURL(r.Hosts())
	}

	hostOK := false
	for _, host := range r.config.Hosts {
		if strings.EqualFold(parsed.Host, host) {
			hostOK = true
			break
		}
	}
	if !hostOK {
		return ocrerror.NewImageURL(r.Hosts())
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(parsed.Path), "."))
	for _, allowed := range r.config.Extensions {
		if ext == strings.ToLower(allowed) {
			return nil
		}
	}
	return ocrerror.NewImageURL(r.Hosts())
}

// Resolve produces the image for a recognition call. Without a crop or
// rotation, and unless download is forced, the image is a URL passthrough and
// no bytes are fetched. A crop or rotation always forces a download; the
// transform result replaces the original bytes as an encoded JPEG.
func (r *Resolver) Resolve(ctx context.Context, rawURL string, crop *Crop, rotate int, download bool) (*Image, error) {
	if crop.Empty() {
		crop = nil
	}
	rotate = normalizeRotation(rotate)

	if crop == nil && rotate == 0 && !download {
		return &Image{url: rawURL}, nil
	}

	data, err := r.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	if crop != nil || rotate != 0 {
		data, err = transform(data, crop, rotate)
		if err != nil {
			return nil, ocrerror.NewImageRetrieval(rawURL, err)
		}
	}

	return &Image{url: rawURL, data: data}, nil
}

func (r *Resolver) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, ocrerror.NewImageRetrieval(rawURL, err)
	}

	resp, err := r.config.Client.Do(req)
	if err != nil {
		return nil, ocrerror.NewImageRetrieval(rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ocrerror.NewImageRetrieval(rawURL, fmt.Errorf("bad status code from image host: %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ocrerror.NewImageRetrieval(rawURL, err)
	}
	return data, nil
}

// transform decodes the image, applies the crop and rotation, and re-encodes
// it as JPEG. The crop rectangle is clamped to the image bounds.
func transform(data []byte, crop *Crop, rotate int) ([]byte, error) {
	img, err := decode(data)
	if err != nil {
		return nil, err
	}

	if crop != nil {
		rect := image.Rect(crop.X, crop.Y, crop.X+crop.Width, crop.Y+crop.Height).Intersect(img.Bounds())
		if rect.Empty() {
			return nil, errors.New("crop rectangle is outside the image bounds")
		}
		cropped := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
		draw.Draw(cropped, cropped.Bounds(), img, rect.Min, draw.Src)
		img = cropped
	}

	if rotate != 0 {
		img = rotateQuarters(img, rotate)
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, errors.Join(errors.New("failed to encode transformed image"), err)
	}
	return out.Bytes(), nil
}

func decode(data []byte) (image.Image, error) {
	var (
		img image.Image
		err error
	)
	reader := bytes.NewReader(data)

	switch mimetype.Detect(data).String() {
	case "image/png":
		img, err = png.Decode(reader)
	case "image/jpeg":
		img, err = jpeg.Decode(reader)
	case "image/gif":
		img, err = gif.Decode(reader)
	case "image/tiff":
		img, err = tiff.Decode(reader)
	case "image/webp":
		img, err = webp.Decode(reader)
	case "image/bmp":
		img, err = bmp.Decode(reader)
	default:
		// Trust registered decoders for anything the sniffer missed.
		img, _, err = image.Decode(reader)
	}

	if err != nil {
		return nil, errors.Join(errors.New("failed to decode image"), err)
	}
	return img, nil
}

// normalizeRotation reduces a rotation in degrees to a clockwise quarter turn
// count times 90. Angles that are not multiples of 90 are rounded down.
func normalizeRotation(degrees int) int {
	degrees %= 360
	if degrees < 0 {
		degrees += 360
	}
	return degrees - degrees%90
}

func rotateQuarters(img image.Image, degrees int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	var dst *image.RGBA
	switch degrees {
	case 90, 270:
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
	default:
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.At(bounds.Min.X+x, bounds.Min.Y+y)
			switch degrees {
			case 90:
				dst.Set(h-1-y, x, c)
			case 180:
				dst.Set(w-1-x, h-1-y, c)
			case 270:
				dst.Set(y, w-1-x, c)
			}
		}
	}
	return dst
}
