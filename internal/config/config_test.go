package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Provider != "openrouter" {
		t.Errorf("Default provider = %q, want %q", cfg.Provider, "openrouter")
	}
	if cfg.Quota.PremiumFraction != 0.2 {
		t.Errorf("Default premiumFraction = %v, want 0.2", cfg.Quota.PremiumFraction)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("Default maxAttempts = %d, want 3", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.TimeoutSeconds != 60 {
		t.Errorf("Default timeoutSeconds = %d, want 60", cfg.Retry.TimeoutSeconds)
	}
	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}
	got := cfg.Retry.Schedule()
	if len(got) != len(want) {
		t.Fatalf("Schedule len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Schedule[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if !cfg.Privacy.RedactSecrets {
		t.Error("Default redactSecrets should be true")
	}
	if cfg.Quota.Backend != "sqlite" {
		t.Errorf("Default quota backend = %q, want sqlite", cfg.Quota.Backend)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.Provider = "nope" }},
		{"negative calls max", func(c *Config) { c.Quota.CallsMax = -1 }},
		{"fraction above one", func(c *Config) { c.Quota.PremiumFraction = 1.5 }},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"unknown quota backend", func(c *Config) { c.Quota.Backend = "etcd" }},
		{"missing premium model", func(c *Config) {
			p := c.Providers["openrouter"]
			p.Models.Premium = ""
			c.Providers["openrouter"] = p
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestQuotaConfig_DBPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	got, err := QuotaConfig{}.DBPath()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "auditlens", "quota.db"); got != want {
		t.Errorf("DBPath = %q, want %q", got, want)
	}
	got, _ = QuotaConfig{Path: "/var/lib/auditlens/q.db"}.DBPath()
	if got != "/var/lib/auditlens/q.db" {
		t.Errorf("explicit DBPath = %q", got)
	}
}

func TestMergeEnv(t *testing.T) {
	t.Setenv("AUDITLENS_PROVIDER", "openai")
	t.Setenv("AUDITLENS_CALLS_MAX", "42")
	t.Setenv("AUDITLENS_STORE_DSN", "/tmp/findings.db")
	t.Setenv("AUDITLENS_WEBHOOK_URL", "http://hooks.local/audit")

	cfg := Default()
	if err := mergeEnv(&cfg); err != nil {
		t.Fatalf("mergeEnv error: %v", err)
	}
	if cfg.Provider != "openai" {
		t.Errorf("Provider = %q, want %q", cfg.Provider, "openai")
	}
	if cfg.Quota.CallsMax != 42 {
		t.Errorf("CallsMax = %d, want 42", cfg.Quota.CallsMax)
	}
	if cfg.Store.DSN != "/tmp/findings.db" {
		t.Errorf("Store.DSN = %q", cfg.Store.DSN)
	}
	if cfg.Notification.WebhookURL != "http://hooks.local/audit" {
		t.Errorf("WebhookURL = %q", cfg.Notification.WebhookURL)
	}
}

func TestMergeEnv_InvalidCallsMax(t *testing.T) {
	t.Setenv("AUDITLENS_CALLS_MAX", "lots")
	cfg := Default()
	if err := mergeEnv(&cfg); err == nil {
		t.Error("Expected error for invalid AUDITLENS_CALLS_MAX")
	}
}

func TestSetField(t *testing.T) {
	cfg := Default()

	tests := []struct {
		key   string
		value string
	}{
		{"provider", "openai"},
		{"quota.callsMax", "10"},
		{"quota.premiumFraction", "0.5"},
		{"retry.backoffSeconds", "1, 2,4"},
		{"retry.failFastClientErrors", "true"},
		{"cache.enabled", "false"},
		{"escalation.keywords", "fraud,bribery"},
		{"notification.recipients", "cae"},
	}
	for _, tt := range tests {
		if err := SetField(&cfg, tt.key, tt.value); err != nil {
			t.Errorf("SetField(%q, %q) error: %v", tt.key, tt.value, err)
		}
	}

	if cfg.Quota.CallsMax != 10 {
		t.Errorf("CallsMax = %d, want 10", cfg.Quota.CallsMax)
	}
	if cfg.Quota.PremiumFraction != 0.5 {
		t.Errorf("PremiumFraction = %v, want 0.5", cfg.Quota.PremiumFraction)
	}
	if len(cfg.Retry.BackoffSeconds) != 3 || cfg.Retry.BackoffSeconds[2] != 4 {
		t.Errorf("BackoffSeconds = %v, want [1 2 4]", cfg.Retry.BackoffSeconds)
	}
	if !cfg.Retry.FailFastClientErrors {
		t.Error("FailFastClientErrors should be true")
	}
	if cfg.Cache.Enabled {
		t.Error("Cache.Enabled should be false")
	}
	if len(cfg.Escalation.Keywords) != 2 {
		t.Errorf("Keywords = %v", cfg.Escalation.Keywords)
	}
}

func TestSetField_Errors(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"nonexistent", "value"},
		{"quota.callsMax", "many"},
		{"cache.enabled", "maybe"},
		{"retry.backoffSeconds", "1,x"},
	}
	for _, tt := range tests {
		cfg := Default()
		if err := SetField(&cfg, tt.key, tt.value); err == nil {
			t.Errorf("SetField(%q, %q) expected error", tt.key, tt.value)
		}
	}
}

func TestConfigPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AUDITLENS_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", dir)

	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath error: %v", err)
	}
	if want := filepath.Join(dir, "auditlens", "config.yaml"); path != want {
		t.Errorf("ConfigPath = %q, want %q", path, want)
	}

	// An existing JSON file is used when there is no YAML file.
	jsonPath := filepath.Join(dir, "auditlens", "config.json")
	if err := Save(jsonPath, Default()); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	path, err = ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath error: %v", err)
	}
	if path != jsonPath {
		t.Errorf("ConfigPath = %q, want %q", path, jsonPath)
	}

	t.Setenv("AUDITLENS_CONFIG", "/etc/auditlens.yaml")
	path, _ = ConfigPath()
	if path != "/etc/auditlens.yaml" {
		t.Errorf("ConfigPath = %q, want env override", path)
	}
}

func TestSaveAndLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.Provider = "openai"
	cfg.Quota.CallsMax = 25
	cfg.Cache.Enabled = false
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	loaded, err := LoadFrom(path, nil)
	if err != nil {
		t.Fatalf("LoadFrom error: %v", err)
	}
	if loaded.Provider != "openai" {
		t.Errorf("Provider = %q, want %q", loaded.Provider, "openai")
	}
	if loaded.Quota.CallsMax != 25 {
		t.Errorf("CallsMax = %d, want 25", loaded.Quota.CallsMax)
	}
	if loaded.Cache.Enabled {
		t.Error("Cache.Enabled should stay false after round trip")
	}
}

func TestLoadFile_PartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "quota:\n  callsMax: 7\nescalation:\n  keywords: [\"self-dealing\"]\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path, Default())
	if err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}
	if cfg.Quota.CallsMax != 7 {
		t.Errorf("CallsMax = %d, want 7", cfg.Quota.CallsMax)
	}
	if cfg.Quota.PremiumFraction != 0.2 {
		t.Errorf("PremiumFraction = %v, want default 0.2", cfg.Quota.PremiumFraction)
	}
	if len(cfg.Escalation.Keywords) != 1 || cfg.Escalation.Keywords[0] != "self-dealing" {
		t.Errorf("Keywords = %v", cfg.Escalation.Keywords)
	}
	if _, ok := cfg.Providers["openrouter"]; !ok {
		t.Error("default providers should survive a partial file")
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path, Default()); err == nil {
		t.Error("Expected parse error")
	}
}

func TestLoadFrom_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("provider: ollama\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AUDITLENS_PROVIDER", "openai")

	cfg, err := LoadFrom(path, nil)
	if err != nil {
		t.Fatalf("LoadFrom error: %v", err)
	}
	if cfg.Provider != "openai" {
		t.Errorf("env should beat file: Provider = %q", cfg.Provider)
	}

	cfg, err = LoadFrom(path, map[string]string{"provider": "openrouter"})
	if err != nil {
		t.Fatalf("LoadFrom error: %v", err)
	}
	if cfg.Provider != "openrouter" {
		t.Errorf("override should beat env: Provider = %q", cfg.Provider)
	}

	if _, err := LoadFrom(path, map[string]string{"bogus": "1"}); err == nil {
		t.Error("unknown override key should fail")
	}
}

func TestQuotaLocation(t *testing.T) {
	q := QuotaConfig{Timezone: "Europe/Berlin"}
	if q.Location().String() != "Europe/Berlin" {
		t.Errorf("Location = %s", q.Location())
	}
	q.Timezone = "Not/AZone"
	if q.Location() != time.UTC {
		t.Errorf("unknown zone should fall back to UTC, got %s", q.Location())
	}
}

func TestProviderAPIKey(t *testing.T) {
	t.Setenv("TEST_AUDITLENS_KEY", "sk-test")
	p := ProviderConfig{APIKeyEnv: "TEST_AUDITLENS_KEY"}
	if p.APIKey() != "sk-test" {
		t.Errorf("APIKey = %q", p.APIKey())
	}
	if (ProviderConfig{}).APIKey() != "" {
		t.Error("no env var means no key")
	}
}

func TestWatch_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("quota:\n  callsMax: 5\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan Config, 4)
	if err := Watch(ctx, path, nil, func(c Config) { changes <- c }); err != nil {
		t.Fatalf("Watch error: %v", err)
	}

	if err := os.WriteFile(path, []byte("quota:\n  callsMax: 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	// A single write can surface as several events; wait for the final content.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changes:
			if cfg.Quota.CallsMax == 9 {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for config reload")
		}
	}
}
