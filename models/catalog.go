// Package models loads and indexes the static table mapping human-facing
// language and model codes to the engine-native codes used on each backend's
// wire protocol.
package models

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/wikimedia/wikimedia-ocr/ocrerror"
)

//go:embed models.json langnames.json
var resources embed.FS

// Policy controls what happens to requested model codes the engine does not
// know about.
type Policy int

const (
	// WarnOnInvalid drops unknown codes and reports them as a warning.
	WarnOnInvalid Policy = iota
	// ErrorOnInvalid fails the whole request when any code is unknown.
	ErrorOnInvalid
)

// Entry is the per-engine native representation of a canonical code.
type Entry struct {
	// Code is the engine-native code, for engines addressed by string codes.
	Code string `json:"code,omitempty"`
	// HTRModelID is the Transkribus text recognition model id.
	HTRModelID int `json:"htrModelId,omitempty"`
	// Title is an optional display name for the model.
	Title string `json:"title,omitempty"`
}

// LineDetectionModel is a Transkribus line detection model available for
// selection alongside the recognition model.
type LineDetectionModel struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

type catalogData struct {
	Engines       map[string]map[string]Entry `json:"engines"`
	LineDetection []LineDetectionModel        `json:"lineDetection"`
}

// Catalog indexes the embedded model table. It is loaded lazily, once per
// process, and is read-only afterwards.
type Catalog struct {
	once      sync.Once
	loadErr   error
	data      catalogData
	langNames map[string]string
}

// NewCatalog creates a catalog backed by the embedded resources.
func NewCatalog() *Catalog {
	return &Catalog{}
}

func (c *Catalog) load() error {
	c.once.Do(func() {
		raw, err := resources.ReadFile("models.json")
		if err != nil {
			c.loadErr = errors.Join(errors.New("failed to read embedded model table"), err)
			return
		}
		if err := json.Unmarshal(raw, &c.data); err != nil {
			c.loadErr = errors.Join(errors.New("malformed model table"), err)
			return
		}

		raw, err = resources.ReadFile("langnames.json")
		if err != nil {
			c.loadErr = errors.Join(errors.New("failed to read embedded language name table"), err)
			return
		}
		if err := json.Unmarshal(raw, &c.langNames); err != nil {
			c.loadErr = errors.Join(errors.New("malformed language name table"), err)
			return
		}
	})
	return c.loadErr
}

// ValidModels returns the sorted canonical codes known to the given engine.
func (c *Catalog) ValidModels(engineID string) ([]string, error) {
	if err := c.load(); err != nil {
		return nil, err
	}
	entries := c.data.Engines[engineID]
	codes := make([]string, 0, len(entries))
	for code := range entries {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}

// Has reports whether the engine knows the canonical code.
func (c *Catalog) Has(engineID, code string) bool {
	if err := c.load(); err != nil {
		return false
	}
	_, ok := c.data.Engines[engineID][code]
	return ok
}

// Entry returns the full native entry for a canonical code.
func (c *Catalog) Entry(engineID, code string) (Entry, bool) {
	if err := c.load(); err != nil {
		return Entry{}, false
	}
	entry, ok := c.data.Engines[engineID][code]
	return entry, ok
}

// NativeCode returns the engine-native code for a canonical code. For
// Transkribus entries this is the decimal HTR model id.
func (c *Catalog) NativeCode(engineID, code string) (string, error) {
	if err := c.load(); err != nil {
		return "", err
	}
	entry, ok := c.data.Engines[engineID][code]
	if !ok {
		return "", fmt.Errorf("unknown model code %q for engine %q", code, engineID)
	}
	if entry.Code != "" {
		return entry.Code, nil
	}
	return strconv.Itoa(entry.HTRModelID), nil
}

// Title returns a display name for a canonical code: the entry's own title if
// present, then the embedded language-name table, then the empty string.
func (c *Catalog) Title(engineID, code string) string {
	if err := c.load(); err != nil {
		return ""
	}
	if entry, ok := c.data.Engines[engineID][code]; ok && entry.Title != "" {
		return entry.Title
	}
	return c.langNames[code]
}

// LineDetectionModels returns the Transkribus line detection models, sorted
// by id.
func (c *Catalog) LineDetectionModels() ([]LineDetectionModel, error) {
	if err := c.load(); err != nil {
		return nil, err
	}
	lineModels := make([]LineDetectionModel, len(c.data.LineDetection))
	copy(lineModels, c.data.LineDetection)
	sort.Slice(lineModels, func(i, j int) bool { return lineModels[i].ID < lineModels[j].ID })
	return lineModels, nil
}

// Filter partitions the requested codes into (valid, invalid) against the
// engine's known codes. Empty and duplicated entries are removed first and
// the input order of valid codes is preserved. Under ErrorOnInvalid any
// invalid code fails the call.
func (c *Catalog) Filter(engineID string, codes []string, policy Policy) (valid, invalid []string, err error) {
	if err := c.load(); err != nil {
		return nil, nil, err
	}

	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		if c.Has(engineID, code) {
			valid = append(valid, code)
		} else {
			invalid = append(invalid, code)
		}
	}

	if len(invalid) > 0 && policy == ErrorOnInvalid {
		return nil, nil, ocrerror.NewInvalidModel(invalid)
	}
	return valid, invalid, nil
}
