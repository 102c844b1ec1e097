package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFileFlattensTables(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "glam.toml")
	body := `
port = 8090

[sadad]
merchant_id = "7001"
website = "glam.qa"

[cors]
allowed_origins = ["https://glam.qa", "https://admin.glam.qa"]
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := LoadFile(path); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if got := String("SADAD_MERCHANT_ID", ""); got != "7001" {
		t.Fatalf("expected merchant id from file, got %q", got)
	}
	if got := Int("PORT", 1); got != 8090 {
		t.Fatalf("expected port 8090, got %d", got)
	}
	origins := List("CORS_ALLOWED_ORIGINS", "")
	if len(origins) != 2 || origins[1] != "https://admin.glam.qa" {
		t.Fatalf("unexpected origins: %v", origins)
	}

	t.Setenv("SADAD_WEBSITE", "env.glam.qa")
	if got := String("SADAD_WEBSITE", ""); got != "env.glam.qa" {
		t.Fatalf("environment should override file, got %q", got)
	}
}

func TestNumericHelpersFallBack(t *testing.T) {
	t.Setenv("POLL_ATTEMPTS", "abc")
	if got := Int("POLL_ATTEMPTS", 20); got != 20 {
		t.Fatalf("expected fallback 20, got %d", got)
	}
	t.Setenv("POLL_INTERVAL_SECONDS", "-3")
	if got := Seconds("POLL_INTERVAL_SECONDS", 3); got != 3*time.Second {
		t.Fatalf("expected 3s fallback, got %s", got)
	}
	t.Setenv("FEATURE_ON", "yes")
	if !Bool("FEATURE_ON", false) {
		t.Fatal("expected truthy value")
	}
	if Bool("FEATURE_UNSET", false) {
		t.Fatal("expected fallback false")
	}
}

func TestPortValidation(t *testing.T) {
	t.Setenv("PORT", "70000")
	if _, err := Port("PORT", "8080"); err == nil {
		t.Fatal("expected error for out of range port")
	}
	if _, err := RequiredString("DEFINITELY_NOT_SET_KEY"); err == nil {
		t.Fatal("expected error for missing required key")
	}
}
