package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

var (
	mu       sync.RWMutex
	defaults = map[string]string{}
)

// Bootstrap loads an optional .env file and the TOML file named by CONFIG_FILE.
// Process environment always wins over both.
func Bootstrap() error {
	if err := LoadDotEnv(".env"); err != nil {
		return err
	}
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		return LoadFile(path)
	}
	return nil
}

// LoadDotEnv sets variables from the given files without overriding existing ones.
// Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// LoadFile reads a TOML file and registers its keys as defaults.
// Nested tables are flattened: [sadad] merchant_id becomes SADAD_MERCHANT_ID.
func LoadFile(path string) error {
	var raw map[string]any
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	flat := map[string]string{}
	flatten("", raw, flat)

	mu.Lock()
	defer mu.Unlock()
	for k, v := range flat {
		defaults[k] = v
	}
	return nil
}

func flatten(prefix string, in map[string]any, out map[string]string) {
	for k, v := range in {
		key := strings.ToUpper(k)
		if prefix != "" {
			key = prefix + "_" + key
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case []any:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				parts = append(parts, fmt.Sprint(item))
			}
			out[key] = strings.Join(parts, ",")
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

func lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	mu.RLock()
	defer mu.RUnlock()
	return defaults[key]
}

func String(key, fallback string) string {
	v := lookup(key)
	if v == "" {
		return fallback
	}
	return v
}

func RequiredString(key string) (string, error) {
	v := lookup(key)
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

func Port(key, fallback string) (string, error) {
	v := String(key, fallback)
	p, err := strconv.Atoi(v)
	if err != nil || p < 1 || p > 65535 {
		return "", fmt.Errorf("%s must be a valid TCP port (got %q)", key, v)
	}
	return v, nil
}

// Int returns a positive integer or the fallback.
func Int(key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(lookup(key)))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

// Seconds reads a positive number of seconds.
func Seconds(key string, fallback int) time.Duration {
	return time.Duration(Int(key, fallback)) * time.Second
}

func Bool(key string, fallback bool) bool {
	v := strings.TrimSpace(strings.ToLower(lookup(key)))
	switch v {
	case "":
		return fallback
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// List splits a comma separated value, dropping blanks.
func List(key, fallback string) []string {
	items := strings.Split(String(key, fallback), ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
