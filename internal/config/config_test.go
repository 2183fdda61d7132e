package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := writeConfig(t, `{
		"basic_config": {"server_address": ":8090", "provider": "openai"},
		"databases": {"sqlite3": {"dsn": ":memory:"}},
		"providers": {"openai": {"base_url": "https://api.groq.com/openai/v1", "model": "from-file", "api_key": "file-key"}}
	}`)
	t.Setenv(EnvAPIKey, "env-key")
	t.Setenv(EnvModel, "env-model")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	name, prov := cfg.ActiveProvider()
	if name != "openai" {
		t.Fatalf("expected openai provider, got %s", name)
	}
	if prov.APIKey != "env-key" || prov.Model != "env-model" {
		t.Fatalf("env overrides not applied: %+v", prov)
	}
	if prov.BaseURL != "https://api.groq.com/openai/v1" {
		t.Fatalf("base url lost: %q", prov.BaseURL)
	}
}

func TestLoadDefaultsProvider(t *testing.T) {
	path := writeConfig(t, `{
		"basic_config": {},
		"databases": {"sqlite3": {"dsn": ":memory:"}}
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BasicConfig.Provider != "openai" {
		t.Fatalf("expected default provider openai, got %s", cfg.BasicConfig.Provider)
	}
}

func TestLoadRejectsMissingDatabases(t *testing.T) {
	path := writeConfig(t, `{"basic_config": {}}`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing databases")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
