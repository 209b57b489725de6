package migrations

import (
	"io/fs"
	"strings"
	"testing"
)

func TestPrepareMigrations(t *testing.T) {
	rendered, err := PrepareMigrations("myschema", "myprefix_")
	if err != nil {
		t.Fatal(err.Error())
	}

	for _, name := range []string{"000001_result_cache.up.sql", "000001_result_cache.down.sql"} {
		data, err := fs.ReadFile(rendered, name)
		if err != nil {
			t.Fatal(err.Error())
		}
		sql := string(data)
		if !strings.Contains(sql, "myschema.myprefix_result") {
			t.Errorf("%s: expected the schema and prefix substituted, got %q", name, sql)
		}
		if strings.Contains(sql, "SCHEMA_NAME") || strings.Contains(sql, "DATABASE_PREFIX_") {
			t.Errorf("%s: placeholder left unrendered: %q", name, sql)
		}
	}
}
