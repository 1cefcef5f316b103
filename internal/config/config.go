package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv   = "AUDITLENS_CONFIG"
	defaultTimezone = "UTC"
)

// Config represents the auditlens configuration.
type Config struct {
	Provider     string                    `json:"provider" yaml:"provider"`
	Providers    map[string]ProviderConfig `json:"providers" yaml:"providers"`
	MaxTokens    int                       `json:"maxTokens" yaml:"maxTokens"`
	Temperature  float64                   `json:"temperature" yaml:"temperature"`
	Quota        QuotaConfig               `json:"quota" yaml:"quota"`
	Retry        RetryConfig               `json:"retry" yaml:"retry"`
	Cache        CacheConfig               `json:"cache" yaml:"cache"`
	Escalation   EscalationConfig          `json:"escalation" yaml:"escalation"`
	Notification NotificationConfig        `json:"notification" yaml:"notification"`
	Store        StoreConfig               `json:"store" yaml:"store"`
	Redis        RedisConfig               `json:"redis" yaml:"redis"`
	Server       ServerConfig              `json:"server" yaml:"server"`
	Privacy      PrivacyConfig             `json:"privacy" yaml:"privacy"`
	Log          LogConfig                 `json:"log" yaml:"log"`
}

// ProviderConfig describes one OpenAI-compatible chat completions endpoint.
type ProviderConfig struct {
	Endpoint  string     `json:"endpoint" yaml:"endpoint"`
	APIKeyEnv string     `json:"apiKeyEnv" yaml:"apiKeyEnv"`
	Models    TierModels `json:"models" yaml:"models"`
}

// TierModels maps each cost tier to a concrete model identifier.
type TierModels struct {
	Cheap   string `json:"cheap" yaml:"cheap"`
	Premium string `json:"premium" yaml:"premium"`
}

// APIKey resolves the provider key from the environment.
func (p ProviderConfig) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// QuotaConfig controls the daily call budget.
type QuotaConfig struct {
	CallsMax        int     `json:"callsMax" yaml:"callsMax"`
	PremiumFraction float64 `json:"premiumFraction" yaml:"premiumFraction"`
	Timezone        string  `json:"timezone" yaml:"timezone"`
	Backend         string  `json:"backend" yaml:"backend"`
	Path            string  `json:"path,omitempty" yaml:"path,omitempty"`
	RedisKey        string  `json:"redisKey,omitempty" yaml:"redisKey,omitempty"`
}

// DBPath is the sqlite counter file, quota.db in the config directory
// unless Path is set.
func (q QuotaConfig) DBPath() (string, error) {
	if q.Path != "" {
		return q.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "quota.db"), nil
}

// Location resolves the quota timezone; unknown zones fall back to UTC.
func (q QuotaConfig) Location() *time.Location {
	tz := q.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RetryConfig controls provider retries.
type RetryConfig struct {
	MaxAttempts          int   `json:"maxAttempts" yaml:"maxAttempts"`
	BackoffSeconds       []int `json:"backoffSeconds" yaml:"backoffSeconds"`
	MaxRetryAfterSeconds int   `json:"maxRetryAfterSeconds" yaml:"maxRetryAfterSeconds"`
	TimeoutSeconds       int   `json:"timeoutSeconds" yaml:"timeoutSeconds"`
	FailFastClientErrors bool  `json:"failFastClientErrors" yaml:"failFastClientErrors"`
}

// Schedule returns the backoff schedule as durations.
func (r RetryConfig) Schedule() []time.Duration {
	out := make([]time.Duration, 0, len(r.BackoffSeconds))
	for _, s := range r.BackoffSeconds {
		out = append(out, time.Duration(s)*time.Second)
	}
	return out
}

// Timeout returns the per-call provider timeout.
func (r RetryConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// MaxRetryAfter returns the cap applied to provider Retry-After hints.
func (r RetryConfig) MaxRetryAfter() time.Duration {
	return time.Duration(r.MaxRetryAfterSeconds) * time.Second
}

// CacheConfig controls caching behavior.
type CacheConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Backend    string `json:"backend" yaml:"backend"`
	Dir        string `json:"dir,omitempty" yaml:"dir,omitempty"`
	TTLSeconds int    `json:"ttlSeconds" yaml:"ttlSeconds"`
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// EscalationConfig lists keywords that push a finding to the premium tier.
type EscalationConfig struct {
	Keywords []string `json:"keywords" yaml:"keywords"`
}

// NotificationConfig controls severity mismatch notifications.
type NotificationConfig struct {
	Recipients []string `json:"recipients" yaml:"recipients"`
	WebhookURL string   `json:"webhookUrl,omitempty" yaml:"webhookUrl,omitempty"`
}

// StoreConfig selects the finding store.
type StoreConfig struct {
	Driver   string `json:"driver" yaml:"driver"`
	DSN      string `json:"dsn" yaml:"dsn"`
	Database string `json:"database,omitempty" yaml:"database,omitempty"`
}

// RedisConfig is shared by the redis cache and quota backends.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"-" yaml:"password,omitempty"`
	DB       int    `json:"db" yaml:"db"`
}

// ServerConfig controls the HTTP trigger surface.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// PrivacyConfig controls redaction of finding text before it leaves the process.
type PrivacyConfig struct {
	RedactSecrets bool `json:"redactSecrets" yaml:"redactSecrets"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Provider: "openrouter",
		Providers: map[string]ProviderConfig{
			"openrouter": {
				Endpoint:  "https://openrouter.ai/api/v1/chat/completions",
				APIKeyEnv: "OPENROUTER_API_KEY",
				Models: TierModels{
					Cheap:   "deepseek/deepseek-chat",
					Premium: "anthropic/claude-sonnet-4",
				},
			},
			"openai": {
				Endpoint:  "https://api.openai.com/v1/chat/completions",
				APIKeyEnv: "OPENAI_API_KEY",
				Models: TierModels{
					Cheap:   "gpt-4.1-mini",
					Premium: "gpt-4.1",
				},
			},
			"ollama": {
				Endpoint: "http://localhost:11434/v1/chat/completions",
				Models: TierModels{
					Cheap:   "llama3.2",
					Premium: "llama3.3",
				},
			},
		},
		MaxTokens:   1500,
		Temperature: 0.2,
		Quota: QuotaConfig{
			CallsMax:        200,
			PremiumFraction: 0.2,
			Timezone:        defaultTimezone,
			Backend:         "sqlite",
		},
		Retry: RetryConfig{
			MaxAttempts:          3,
			BackoffSeconds:       []int{5, 10, 20},
			MaxRetryAfterSeconds: 60,
			TimeoutSeconds:       60,
		},
		Cache: CacheConfig{
			Enabled:    true,
			Backend:    "file",
			TTLSeconds: 7 * 86400,
		},
		Escalation: EscalationConfig{
			Keywords: []string{
				"fraud", "embezzlement", "misappropriation", "theft",
				"bribery", "kickback", "collusion", "money laundering",
			},
		},
		Notification: NotificationConfig{
			Recipients: []string{"audit_manager", "chief_audit_executive"},
		},
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    "auditlens.db",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8088",
		},
		Privacy: PrivacyConfig{
			RedactSecrets: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ActiveProvider returns the configuration of the selected provider.
func (c Config) ActiveProvider() (ProviderConfig, error) {
	p, ok := c.Providers[c.Provider]
	if !ok {
		return ProviderConfig{}, fmt.Errorf("unknown provider: %s", c.Provider)
	}
	return p, nil
}

// Validate checks the settings the pipeline cannot run without.
func (c Config) Validate() error {
	p, err := c.ActiveProvider()
	if err != nil {
		return err
	}
	if p.Endpoint == "" {
		return fmt.Errorf("provider %s: endpoint is required", c.Provider)
	}
	if p.Models.Cheap == "" || p.Models.Premium == "" {
		return fmt.Errorf("provider %s: both cheap and premium models are required", c.Provider)
	}
	if c.Quota.CallsMax < 0 {
		return fmt.Errorf("quota.callsMax must not be negative")
	}
	if c.Quota.PremiumFraction < 0 || c.Quota.PremiumFraction > 1 {
		return fmt.Errorf("quota.premiumFraction must be between 0 and 1")
	}
	switch c.Quota.Backend {
	case "", "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("unknown quota backend: %s", c.Quota.Backend)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.maxAttempts must be at least 1")
	}
	return nil
}

// ConfigDir returns the platform-appropriate config directory for auditlens.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "auditlens"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "auditlens"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "auditlens"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "auditlens"), nil
	default:
		return filepath.Join(home, ".config", "auditlens"), nil
	}
}

// ConfigPath returns the full path to the config file. AUDITLENS_CONFIG wins;
// otherwise config.yaml is preferred and config.json is used when it exists.
func ConfigPath() (string, error) {
	if p := os.Getenv(configPathEnv); p != "" {
		return p, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	yamlPath := filepath.Join(dir, "config.yaml")
	jsonPath := filepath.Join(dir, "config.json")
	if _, err := os.Stat(yamlPath); err != nil {
		if _, err := os.Stat(jsonPath); err == nil {
			return jsonPath, nil
		}
	}
	return yamlPath, nil
}

// LoadFile decodes the config file at path on top of base. A missing file
// returns base unchanged.
func LoadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	cfg := base
	if isJSON(path) {
		err = json.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to path, as JSON when the extension is .json and
// YAML otherwise.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	var (
		data []byte
		err  error
	)
	if isJSON(path) {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Load builds the effective config by merging: defaults <- file <- env <- overrides.
// The overrides map comes from CLI flags (only non-zero values should be set).
func Load(overrides map[string]string) (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Config{}, err
	}
	return LoadFrom(path, overrides)
}

// LoadFrom is Load with an explicit config file path.
func LoadFrom(path string, overrides map[string]string) (Config, error) {
	cfg, err := LoadFile(path, Default())
	if err != nil {
		return Config{}, err
	}
	if err := mergeEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := mergeOverrides(&cfg, overrides); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

func mergeEnv(cfg *Config) error {
	if v := os.Getenv("AUDITLENS_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("AUDITLENS_CALLS_MAX"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AUDITLENS_CALLS_MAX must be an integer: %w", err)
		}
		cfg.Quota.CallsMax = n
	}
	if v := os.Getenv("AUDITLENS_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("AUDITLENS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("AUDITLENS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("AUDITLENS_WEBHOOK_URL"); v != "" {
		cfg.Notification.WebhookURL = v
	}
	if v := os.Getenv("AUDITLENS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

func mergeOverrides(cfg *Config, overrides map[string]string) error {
	for key, value := range overrides {
		if value == "" {
			continue
		}
		if err := SetField(cfg, key, value); err != nil {
			return fmt.Errorf("override %s: %w", key, err)
		}
	}
	return nil
}

// SetField sets a single config field by key name. Returns error if key is unknown.
func SetField(cfg *Config, key, value string) error {
	switch key {
	case "provider":
		cfg.Provider = value
	case "maxTokens":
		return setInt(&cfg.MaxTokens, key, value)
	case "temperature":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("temperature must be a number: %w", err)
		}
		cfg.Temperature = f
	case "quota.callsMax":
		return setInt(&cfg.Quota.CallsMax, key, value)
	case "quota.premiumFraction":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("quota.premiumFraction must be a number: %w", err)
		}
		cfg.Quota.PremiumFraction = f
	case "quota.timezone":
		cfg.Quota.Timezone = value
	case "quota.backend":
		cfg.Quota.Backend = value
	case "quota.path":
		cfg.Quota.Path = value
	case "retry.maxAttempts":
		return setInt(&cfg.Retry.MaxAttempts, key, value)
	case "retry.timeoutSeconds":
		return setInt(&cfg.Retry.TimeoutSeconds, key, value)
	case "retry.backoffSeconds":
		var schedule []int
		for _, part := range splitList(value) {
			n, err := strconv.Atoi(part)
			if err != nil {
				return fmt.Errorf("retry.backoffSeconds must be integers: %w", err)
			}
			schedule = append(schedule, n)
		}
		cfg.Retry.BackoffSeconds = schedule
	case "retry.failFastClientErrors":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("retry.failFastClientErrors must be a boolean: %w", err)
		}
		cfg.Retry.FailFastClientErrors = b
	case "cache.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("cache.enabled must be a boolean: %w", err)
		}
		cfg.Cache.Enabled = b
	case "cache.backend":
		cfg.Cache.Backend = value
	case "cache.dir":
		cfg.Cache.Dir = value
	case "cache.ttlSeconds":
		return setInt(&cfg.Cache.TTLSeconds, key, value)
	case "escalation.keywords":
		cfg.Escalation.Keywords = splitList(value)
	case "notification.recipients":
		cfg.Notification.Recipients = splitList(value)
	case "notification.webhookUrl":
		cfg.Notification.WebhookURL = value
	case "store.driver":
		cfg.Store.Driver = value
	case "store.dsn":
		cfg.Store.DSN = value
	case "store.database":
		cfg.Store.Database = value
	case "redis.addr":
		cfg.Redis.Addr = value
	case "server.addr":
		cfg.Server.Addr = value
	case "privacy.redactSecrets":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("privacy.redactSecrets must be a boolean: %w", err)
		}
		cfg.Privacy.RedactSecrets = b
	case "log.level":
		cfg.Log.Level = value
	case "log.format":
		cfg.Log.Format = value
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

func setInt(dst *int, key, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s must be an integer: %w", key, err)
	}
	*dst = n
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
