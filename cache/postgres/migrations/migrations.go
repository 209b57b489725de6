// Package migrations holds the embedded schema for the result cache table.
// The SQL carries SCHEMA_NAME and DATABASE_PREFIX_ placeholders so one pair
// of files serves any configured schema and table prefix.
package migrations

import (
	_ "embed"
	"errors"
	"io/fs"
	"strings"

	"github.com/psanford/memfs"
)

//go:embed 000001_result_cache.up.sql
var resultCacheUp string

//go:embed 000001_result_cache.down.sql
var resultCacheDown string

// PrepareMigrations renders the migration files for the given schema and
// table prefix.
func PrepareMigrations(schema string, prefix string) (fs.FS, error) {
	files := map[string]string{
		"000001_result_cache.up.sql":   resultCacheUp,
		"000001_result_cache.down.sql": resultCacheDown,
	}

	rootFS := memfs.New()
	for name, data := range files {
		data = strings.ReplaceAll(data, "SCHEMA_NAME", schema)
		data = strings.ReplaceAll(data, "DATABASE_PREFIX_", prefix)
		if err := rootFS.WriteFile(name, []byte(data), 0644); err != nil {
			return nil, errors.Join(errors.New("failed to prepare migration file"), err)
		}
	}
	return rootFS, nil
}
