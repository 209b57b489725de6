package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err.Error())
	}

	if cfg.TesseractBinary != "/usr/bin/tesseract" {
		t.Errorf("unexpected tesseract binary: %q", cfg.TesseractBinary)
	}
	if len(cfg.ImageHosts) != 1 || cfg.ImageHosts[0] != "upload.wikimedia.org" {
		t.Errorf("unexpected image hosts: %v", cfg.ImageHosts)
	}
	if cfg.CacheBackend != CacheBackendMemory {
		t.Errorf("unexpected cache backend: %q", cfg.CacheBackend)
	}
	if cfg.DefaultEngine != "google" {
		t.Errorf("unexpected default engine: %q", cfg.DefaultEngine)
	}
}

func TestLoadDurations(t *testing.T) {
	t.Setenv("OCR_CACHE_TTL", "90")
	t.Setenv("OCR_RUN_TIMEOUT", "3m")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err.Error())
	}
	if cfg.CacheTTL != 90*time.Second {
		t.Errorf("unexpected cache TTL: %v", cfg.CacheTTL)
	}
	if cfg.RunTimeout != 3*time.Minute {
		t.Errorf("unexpected run timeout: %v", cfg.RunTimeout)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("OCR_CACHE_BACKEND", "postgres")

	if _, err := Load(); err == nil {
		t.Error("expected the postgres backend to require a database URL")
	}

	t.Setenv("OCR_DATABASE_URL", "postgres://localhost/ocr")
	if _, err := Load(); err != nil {
		t.Error(err.Error())
	}

	t.Setenv("OCR_CACHE_BACKEND", "carrier-pigeon")
	if _, err := Load(); err == nil {
		t.Error("expected an unknown cache backend to fail validation")
	}
}
