package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.CORSOrigins == nil {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/bookbuddy/data/db/library.db"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "/usr/local/var/bookbuddy/data/indices/books.vec"
	}
	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = "https://api.openai.com"
	}
	if cfg.Provider.EmbeddingModel == "" {
		cfg.Provider.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.Provider.ChatModel == "" {
		cfg.Provider.ChatModel = "gpt-4o"
	}
	if cfg.Provider.Dimensions == 0 {
		cfg.Provider.Dimensions = 1536
	}
	if cfg.Provider.RequestTimeoutSeconds == 0 {
		cfg.Provider.RequestTimeoutSeconds = 30
	}
	if cfg.Recommend.SimilarBooks == 0 {
		cfg.Recommend.SimilarBooks = 10
	}
	if cfg.Recommend.Recommendations == 0 {
		cfg.Recommend.Recommendations = 3
	}
	if cfg.Recommend.HistoryLimit == 0 {
		cfg.Recommend.HistoryLimit = 5
	}
	if cfg.Recommend.SeedBooks == 0 {
		cfg.Recommend.SeedBooks = 2
	}
	if cfg.Recommend.ChatTemperature == 0 {
		cfg.Recommend.ChatTemperature = 0.7
	}
	if cfg.Recommend.EmbeddingCacheSize == 0 {
		cfg.Recommend.EmbeddingCacheSize = 10000
	}
}
