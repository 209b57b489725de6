package postgres

import (
	"fmt"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/wikimedia/wikimedia-ocr/engine"
)

func TestPostgresStore(t *testing.T) {
	dbURL := os.Getenv("TEST_CACHE_DB_URL")
	if dbURL == "" {
		t.Skip("TEST_CACHE_DB_URL is not configured")
	}

	cfg, err := pgx.ParseConfig(dbURL)
	if err != nil {
		t.Fatal(err.Error())
	}
	db := stdlib.OpenDB(*cfg)
	t.Cleanup(func() {
		db.Close()
	})

	schemaName := fmt.Sprintf("testschema_%d", rand.Int63())
	if _, err := db.ExecContext(t.Context(), "CREATE SCHEMA "+schemaName); err != nil {
		t.Fatal(err.Error())
	}
	t.Cleanup(func() {
		db.ExecContext(t.Context(), "DROP SCHEMA "+schemaName+" CASCADE")
	})

	storage := New(db, WithDatabaseSchema(schemaName))
	ctx := t.Context()

	if err := storage.Install(ctx); err != nil {
		t.Fatal(err.Error())
	}
	// A second install has to be a no-op.
	if err := storage.Install(ctx); err != nil {
		t.Fatal(err.Error())
	}

	if _, ok, err := storage.Get(ctx, "absent"); err != nil || ok {
		t.Fatalf("expected a clean miss, got ok=%v err=%v", ok, err)
	}

	want := engine.Result{Text: "cached", Warnings: []string{"warning"}}
	if err := storage.Set(ctx, "key", want, time.Minute); err != nil {
		t.Fatal(err.Error())
	}
	got, ok, err := storage.Get(ctx, "key")
	if err != nil {
		t.Fatal(err.Error())
	}
	if !ok || got.Text != want.Text || len(got.Warnings) != 1 {
		t.Errorf("unexpected cached result: %+v", got)
	}

	// Overwrite through the upsert path.
	if err := storage.Set(ctx, "key", engine.Result{Text: "updated"}, time.Minute); err != nil {
		t.Fatal(err.Error())
	}
	got, _, err = storage.Get(ctx, "key")
	if err != nil {
		t.Fatal(err.Error())
	}
	if got.Text != "updated" {
		t.Errorf("unexpected result after upsert: %+v", got)
	}

	if err := storage.Set(ctx, "expired", engine.Result{Text: "old"}, -time.Minute); err != nil {
		t.Fatal(err.Error())
	}
	if _, ok, _ := storage.Get(ctx, "expired"); ok {
		t.Error("expected the expired entry to miss")
	}

	pruned, err := storage.Prune(ctx)
	if err != nil {
		t.Fatal(err.Error())
	}
	if pruned != 1 {
		t.Errorf("expected one pruned entry, got %d", pruned)
	}

	if err := storage.UnInstall(ctx); err != nil {
		t.Fatal(err.Error())
	}
}
