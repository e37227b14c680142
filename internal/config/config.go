// Package config provides configuration loading and structs for the snapfind server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug bool `yaml:"debug"`
	// College is the collection (tenant) every photo is filed under. Object keys
	// and stored filenames are prefixed with it.
	College     string            `yaml:"college"`
	Server      ServerConfig      `yaml:"server"`
	Auth        AuthConfig        `yaml:"auth"`
	Storage     StorageConfig     `yaml:"storage"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Search      SearchConfig      `yaml:"search"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Watch       WatchConfig       `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host               string  `yaml:"host"`
	Port               int     `yaml:"port"`
	RequestTimeoutSecs int     `yaml:"request_timeout_secs"`
	MaxUploadMB        int     `yaml:"max_upload_mb"`
	RateLimit          float64 `yaml:"rate_limit"` // requests per second; 0 disables
	RateBurst          int     `yaml:"rate_burst"`
}

// AuthConfig holds bearer token settings. Auth is off when both StaticToken and JWTSecret are empty.
type AuthConfig struct {
	StaticToken string `yaml:"static_token"`
	StaticRefNo string `yaml:"static_ref_no"`
	JWTSecret   string `yaml:"jwt_secret"`
	Algorithm   string `yaml:"algorithm"`
}

// Enabled reports whether requests must carry a bearer token.
func (a *AuthConfig) Enabled() bool {
	return a.StaticToken != "" || a.JWTSecret != ""
}

// StorageConfig selects and locates the photo store.
type StorageConfig struct {
	Driver       string `yaml:"driver"` // sqlite or postgres
	DatabasePath string `yaml:"database_path"`
	DatabaseURL  string `yaml:"database_url"`
	Table        string `yaml:"table"`
}

// ObjectStoreConfig selects where uploaded image bytes go.
type ObjectStoreConfig struct {
	Type          string `yaml:"type"` // "", disk or s3
	Root          string `yaml:"root"`
	PublicBaseURL string `yaml:"public_base_url"`
	Endpoint      string `yaml:"endpoint"`
	Region        string `yaml:"region"`
	Bucket        string `yaml:"bucket"`
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	Insecure      bool   `yaml:"insecure"`
}

// EmbeddingConfig holds CLIP ONNX embedder settings.
type EmbeddingConfig struct {
	Provider          string `yaml:"provider"` // clip or mock
	SharedLibraryPath string `yaml:"shared_library_path"`
	VisualModelPath   string `yaml:"visual_model_path"`
	TextModelPath     string `yaml:"text_model_path"`
	TokenizerPath     string `yaml:"tokenizer_path"`
	Dimensions        int    `yaml:"dimensions"`
	ImageSize         int    `yaml:"image_size"`
	ContextLength     int    `yaml:"context_length"`
	VisualInputName   string `yaml:"visual_input_name"`
	VisualOutputName  string `yaml:"visual_output_name"`
	TextInputName     string `yaml:"text_input_name"`
	TextMaskName      string `yaml:"text_mask_name"`
	TextOutputName    string `yaml:"text_output_name"`
	CacheSize         int    `yaml:"cache_size"`
	RedisAddr         string `yaml:"redis_addr"`
	RedisPassword     string `yaml:"redis_password"`
	RedisDB           int    `yaml:"redis_db"`
	CacheTTLSecs      int    `yaml:"cache_ttl_secs"`
}

// SearchConfig holds ranking settings.
type SearchConfig struct {
	// SimilarityThreshold is the inclusive minimum cosine similarity. Earlier
	// deployments used 0.26 for URL-only results and 0.20 for the current
	// endpoint; unset means 0.20.
	SimilarityThreshold *float64 `yaml:"similarity_threshold"`
	DefaultLimit        int      `yaml:"default_limit"` // 0 returns every match
	MaxLimit            int      `yaml:"max_limit"`
}

// ThresholdOrDefault returns the configured threshold, or 0.20 when unset.
func (s *SearchConfig) ThresholdOrDefault() float64 {
	if s.SimilarityThreshold != nil {
		return *s.SimilarityThreshold
	}
	return DefaultSimilarityThreshold
}

// IngestConfig holds upload processing settings.
type IngestConfig struct {
	Workers int `yaml:"workers"`
}

// WatchConfig holds hot-folder import settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, applies environment overrides
// and defaults, and expands paths. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return finish(&cfg, filepath.Dir(path))
}

// LoadOrDefault behaves like Load but returns an env-and-defaults config when
// the file does not exist. Container deployments configure purely through
// environment variables.
func LoadOrDefault(path string) (*Config, bool, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, true, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, err
	}
	wd, _ := os.Getwd()
	cfg, err = finish(&Config{}, wd)
	return cfg, false, err
}

func finish(cfg *Config, configDir string) (*Config, error) {
	ApplyEnv(cfg)
	ApplyDefaults(cfg)

	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.ObjectStore.Root = expandPath(cfg.ObjectStore.Root, configDir)
	cfg.Embedding.VisualModelPath = expandPath(cfg.Embedding.VisualModelPath, configDir)
	cfg.Embedding.TextModelPath = expandPath(cfg.Embedding.TextModelPath, configDir)
	cfg.Embedding.TokenizerPath = expandPath(cfg.Embedding.TokenizerPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("storage.database_url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q (supported: sqlite, postgres)", c.Storage.Driver)
	}
	switch c.ObjectStore.Type {
	case "", ObjectStoreDisk:
	case ObjectStoreS3:
		if c.ObjectStore.Bucket == "" {
			return fmt.Errorf("object_store.bucket is required for s3")
		}
	default:
		return fmt.Errorf("unknown object store type %q (supported: disk, s3)", c.ObjectStore.Type)
	}
	if !validTableName(c.Storage.Table) {
		return fmt.Errorf("storage.table %q must be letters, digits and underscores", c.Storage.Table)
	}
	if t := c.Search.ThresholdOrDefault(); t < -1 || t > 1 {
		return fmt.Errorf("search.similarity_threshold must be within [-1, 1], got %v", t)
	}
	return nil
}

func validTableName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
