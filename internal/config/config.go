// Package config provides configuration loading and structs for the BookBuddy server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Provider  ProviderConfig  `yaml:"provider"`
	Recommend RecommendConfig `yaml:"recommend"`
	Catalog   CatalogConfig   `yaml:"catalog"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// StorageConfig holds paths for the database and the vector index snapshot.
type StorageConfig struct {
	DatabasePath    string `yaml:"database_path"`
	VectorIndexPath string `yaml:"vector_index_path"`
}

// ProviderConfig holds settings for the embedding and chat providers.
// APIKey is never read from the file; it comes from OPENAI_API_KEY.
type ProviderConfig struct {
	BaseURL               string `yaml:"base_url"`
	APIKey                string `yaml:"-"`
	EmbeddingModel        string `yaml:"embedding_model"`
	ChatModel             string `yaml:"chat_model"`
	Dimensions            int    `yaml:"dimensions"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
}

// RecommendConfig holds recommendation pipeline settings.
type RecommendConfig struct {
	// SimilarBooks is how many similarity candidates to retrieve before refinement.
	SimilarBooks int `yaml:"similar_books"`
	// Recommendations is how many final recommendations to return.
	Recommendations int `yaml:"recommendations"`
	// HistoryLimit is how many recent borrow records to consider.
	HistoryLimit int `yaml:"history_limit"`
	// SeedBooks is how many of the most recent reads seed the preference vector.
	SeedBooks int `yaml:"seed_books"`
	// ChatTemperature is the sampling temperature for refinement.
	ChatTemperature float64 `yaml:"chat_temperature"`
	// EmbeddingCacheSize bounds the in-process text embedding cache.
	EmbeddingCacheSize int `yaml:"embedding_cache_size"`
}

// CatalogConfig holds catalog seed file settings.
type CatalogConfig struct {
	// Path is a JSON file of books loaded at startup and by the seed command.
	Path string `yaml:"path"`
	// Watch reloads the catalog file on change.
	Watch bool `yaml:"watch"`
}

// Load reads and parses the config file at path, expands paths, applies
// defaults, and picks up the provider API key from the environment.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	if cfg.Catalog.Path != "" {
		cfg.Catalog.Path = expandPath(cfg.Catalog.Path, configDir)
	}
	cfg.Provider.APIKey = os.Getenv("OPENAI_API_KEY")

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are relative to the home
// directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
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
