// Package cache memoizes recognition results keyed by a normalized
// fingerprint of all request-affecting inputs.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wikimedia/wikimedia-ocr/engine"
	"github.com/wikimedia/wikimedia-ocr/images"
)

// Store is the backing storage for cached results.
type Store interface {
	// Get returns the cached result for key, with false when the key is
	// absent or expired.
	Get(ctx context.Context, key string) (engine.Result, bool, error)
	// Set stores the result under key for the given lifetime.
	Set(ctx context.Context, key string, result engine.Result, ttl time.Duration) error
}

// Fingerprint computes the cache key for a recognition request. Model codes
// are deduplicated and sorted and the crop is serialized in a fixed field
// order, so logically identical requests always map to the same key. The
// locale participates because cached warning text is localized.
func Fingerprint(imageURL, engineID string, modelCodes []string, crop *images.Crop, options map[string]string, locale string) string {
	codes := make([]string, 0, len(modelCodes))
	seen := make(map[string]bool, len(modelCodes))
	for _, code := range modelCodes {
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		codes = append(codes, code)
	}
	sort.Strings(codes)

	cropPart := ""
	if !crop.Empty() {
		cropPart = fmt.Sprintf("height=%d|width=%d|x=%d|y=%d", crop.Height, crop.Width, crop.X, crop.Y)
	}

	optionKeys := make([]string, 0, len(options))
	for k := range options {
		optionKeys = append(optionKeys, k)
	}
	sort.Strings(optionKeys)
	optionParts := make([]string, 0, len(optionKeys))
	for _, k := range optionKeys {
		optionParts = append(optionParts, k+"="+options[k])
	}

	sum := sha256.Sum256([]byte(strings.Join([]string{
		imageURL,
		engineID,
		strings.Join(codes, "|"),
		cropPart,
		strings.Join(optionParts, "|"),
		locale,
	}, "\n")))
	return hex.EncodeToString(sum[:])
}

// Cache wraps a store with per-key single-flight so concurrent identical
// requests share one computation instead of each paying for a provider call.
type Cache struct {
	store Store
	group singleflight.Group
}

func New(store Store) *Cache {
	return &Cache{store: store}
}

// GetOrCompute returns the cached result for key, computing and storing it
// on a miss. Store failures degrade to computing without caching; they never
// fail the recognition itself.
func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func() (engine.Result, error)) (engine.Result, error) {
	result, err, _ := c.group.Do(key, func() (any, error) {
		if cached, ok, err := c.store.Get(ctx, key); err == nil && ok {
			return cached, nil
		}

		computed, err := compute()
		if err != nil {
			return engine.Result{}, err
		}

		// Only successful results are memoized.
		_ = c.store.Set(ctx, key, computed, ttl)
		return computed, nil
	})
	if err != nil {
		return engine.Result{}, err
	}
	return result.(engine.Result), nil
}
