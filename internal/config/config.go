package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Env variables recognized at process start. The API key and model overrides
// mirror the deployment convention of exporting the provider credential
// instead of writing it into the config file.
const (
	EnvConfigPath = "RAGCHAT_CONFIG"
	EnvDBType     = "RAGCHAT_DB"
	EnvAPIKey     = "RAGCHAT_API_KEY"
	EnvModel      = "RAGCHAT_MODEL"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Redis       RedisConfig               `json:"redis"`
	Retrieval   RetrievalConfig           `json:"retrieval"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Enabled  bool   `json:"enabled"`
}

type RetrievalConfig struct {
	EmbeddingBaseURL string `json:"embedding_base_url"`
	EmbeddingModel   string `json:"embedding_model"`
	WatchDir         string `json:"watch_dir"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address"`
	Mode          string `json:"mode"` // "debug" or "release"
	Provider      string `json:"provider"`
	UploadDir     string `json:"upload_dir"`
	// LenientSessions switches /chat to auto-create unknown session ids
	// instead of rejecting them with 404.
	LenientSessions bool `json:"lenient_sessions"`
}

// Load reads configuration from the provided path (defaults to config.json)
// and applies environment overrides for the active provider.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.BasicConfig.Provider == "" {
		cfg.BasicConfig.Provider = "openai"
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}

	prov := cfg.Providers[cfg.BasicConfig.Provider]
	if key := os.Getenv(EnvAPIKey); key != "" {
		prov.APIKey = key
	}
	if model := os.Getenv(EnvModel); model != "" {
		prov.Model = model
	}
	cfg.Providers[cfg.BasicConfig.Provider] = prov

	if len(cfg.Databases) == 0 {
		return nil, fmt.Errorf("at least one database must be configured")
	}

	for name, db := range cfg.Databases {
		if db.DSN != "" && !filepath.IsAbs(db.DSN) && db.Host == "" && db.DSN != ":memory:" {
			db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
			cfg.Databases[name] = db
		}
	}

	return &cfg, nil
}

// ActiveProvider returns the configured provider name and its settings.
func (c *Config) ActiveProvider() (string, ProviderConfig) {
	name := c.BasicConfig.Provider
	return name, c.Providers[name]
}
