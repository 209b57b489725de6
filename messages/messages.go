// Package messages renders the service's own operational warnings. It is a
// deliberately small stand-in for the full localization layer: the core only
// needs a handful of warning strings on the success path, and everything else
// is reported as structured error codes for the caller to localize.
package messages

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

//go:embed i18n/*.json
var i18n embed.FS

const fallbackLocale = "en"

// Messages looks up warning strings by key and locale, replacing numbered
// placeholders ($1, $2, ...) with the given parameters.
type Messages struct {
	once    sync.Once
	loadErr error
	locales map[string]map[string]string
}

// New creates the lookup backed by the embedded message files.
func New() *Messages {
	return &Messages{}
}

func (m *Messages) load() error {
	m.once.Do(func() {
		entries, err := i18n.ReadDir("i18n")
		if err != nil {
			m.loadErr = errors.Join(errors.New("failed to read embedded message directory"), err)
			return
		}

		m.locales = make(map[string]map[string]string, len(entries))
		for _, entry := range entries {
			data, err := i18n.ReadFile("i18n/" + entry.Name())
			if err != nil {
				m.loadErr = errors.Join(errors.New("failed to read embedded message file"), err)
				return
			}
			var msgs map[string]string
			if err := json.Unmarshal(data, &msgs); err != nil {
				m.loadErr = errors.Join(fmt.Errorf("malformed message file %q", entry.Name()), err)
				return
			}
			locale := strings.TrimSuffix(entry.Name(), ".json")
			m.locales[locale] = msgs
		}
	})
	return m.loadErr
}

// Msg returns the message for key in the given locale, falling back to
// English, then to the key itself. Placeholders $1..$n are replaced by params
// in order.
func (m *Messages) Msg(locale, key string, params ...string) string {
	text := key
	if err := m.load(); err == nil {
		if msgs, ok := m.locales[locale]; ok {
			if t, ok := msgs[key]; ok {
				text = t
			}
		}
		if text == key {
			if t, ok := m.locales[fallbackLocale][key]; ok {
				text = t
			}
		}
	}

	// Replace from the highest index down so $10 is not clobbered by $1.
	for i := len(params); i >= 1; i-- {
		text = strings.ReplaceAll(text, fmt.Sprintf("$%d", i), params[i-1])
	}
	return text
}
