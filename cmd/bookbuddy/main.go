// Package main is the BookBuddy CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Jullian93/BookBuddy/internal/catalog"
	"github.com/Jullian93/BookBuddy/internal/chat"
	"github.com/Jullian93/BookBuddy/internal/config"
	"github.com/Jullian93/BookBuddy/internal/embedding"
	"github.com/Jullian93/BookBuddy/internal/models"
	"github.com/Jullian93/BookBuddy/internal/recommend"
	"github.com/Jullian93/BookBuddy/internal/server"
	"github.com/Jullian93/BookBuddy/internal/storage"
	"github.com/Jullian93/BookBuddy/internal/vector"
	"github.com/Jullian93/BookBuddy/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/bookbuddy/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "seed":
		runSeed()
	case "recommend":
		runRecommend()
	case "similar":
		runSimilar()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("bookbuddy version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: bookbuddy <command> [flags]

Commands:
  server     Run the HTTP API server
  seed       Load a JSON book catalog into the store and embed it
  recommend  Fetch recommendations for a user (requires a running server)
  similar    Fetch books similar to a book (requires a running server)
  status     Show service status
  version    Print version
  help       Show this help`)
}

// Components holds initialized services.
type Components struct {
	Store    storage.Store
	Embedder embedding.Embedder
	Index    *vector.MemoryIndex
	Chat     chat.Completer
	Loader   *catalog.Loader
	Engine   *recommend.Engine
	logger   *zap.Logger
}

// Close releases component resources in reverse initialization order.
func (c *Components) Close() {
	if c.Chat != nil {
		_ = c.Chat.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Index != nil {
		_ = c.Index.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debugMode bool) (*Components, error) {
	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	index, err := vector.NewMemoryIndex(cfg.Provider.Dimensions)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("vector index: %w", err)
	}
	if err := index.Load(cfg.Storage.VectorIndexPath); err != nil {
		logger.Warn("vector index load failed, starting empty",
			zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(err))
	}

	timeout := time.Duration(cfg.Provider.RequestTimeoutSeconds) * time.Second
	embedOpts := []embedding.OpenAIEmbedderOption{
		embedding.WithTimeout(timeout),
		embedding.WithCache(embedding.NewEmbeddingCache(cfg.Recommend.EmbeddingCacheSize)),
	}
	chatOpts := []chat.OpenAIChatOption{chat.WithTimeout(timeout)}
	if debugMode {
		embedOpts = append(embedOpts, embedding.WithLogger(logger))
		chatOpts = append(chatOpts, chat.WithLogger(logger))
	}
	embedder := embedding.NewOpenAIEmbedder(
		cfg.Provider.BaseURL, cfg.Provider.APIKey,
		cfg.Provider.EmbeddingModel, cfg.Provider.Dimensions,
		embedOpts...,
	)
	completer := chat.NewOpenAIChat(
		cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Provider.ChatModel,
		chatOpts...,
	)
	if cfg.Provider.APIKey == "" {
		logger.Warn("OPENAI_API_KEY not set, provider calls will fail and recommendations degrade to similarity fallback")
	}

	loader := catalog.NewLoader(store, embedder, index, catalog.WithLogger(logger))
	loaded, err := loader.WarmIndex(context.Background())
	if err != nil {
		logger.Warn("index warm-up failed", zap.Error(err))
	} else if loaded > 0 {
		logger.Info("vector index warmed from store", zap.Int("embeddings", loaded))
	}

	engine := recommend.NewEngine(store, embedder, index, completer, &cfg.Recommend,
		recommend.WithLogger(logger))

	return &Components{
		Store:    store,
		Embedder: embedder,
		Index:    index,
		Chat:     completer,
		Loader:   loader,
		Engine:   engine,
		logger:   logger,
	}, nil
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Catalog.Path != "" {
		if _, err := components.Loader.LoadFile(context.Background(), cfg.Catalog.Path); err != nil {
			logger.Warn("catalog load failed", zap.String("path", cfg.Catalog.Path), zap.Error(err))
		}
		if cfg.Catalog.Watch {
			watchOpts := []catalog.WatcherOption{}
			if debugMode {
				watchOpts = append(watchOpts, catalog.WithWatchLogger(logger))
			}
			loader := components.Loader
			path := cfg.Catalog.Path
			watch := catalog.NewWatcher(path, func() {
				if _, err := loader.LoadFile(context.Background(), path); err != nil {
					logger.Warn("catalog reload failed", zap.String("path", path), zap.Error(err))
				}
			}, watchOpts...)
			if err := watch.Start(watchCtx); err != nil {
				logger.Fatal("Failed to start catalog watcher", zap.Error(err))
			}
			defer watch.Stop()
		}
	}

	srv := server.NewServer(
		components.Engine,
		components.Loader,
		components.Store,
		components.Index,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if cfg.Storage.VectorIndexPath != "" {
		if err := components.Index.Save(cfg.Storage.VectorIndexPath); err != nil {
			logger.Warn("vector index save failed",
				zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(err))
		}
	}
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runSeed() {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	file := fs.String("file", "", "catalog JSON file (default: catalog.path from config)")
	embedMissing := fs.Bool("embed-missing", true, "embed catalog books that have no stored embedding")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	path := *file
	if path == "" {
		path = cfg.Catalog.Path
	}
	if path == "" {
		fmt.Println("Usage: bookbuddy seed -file <catalog.json> (or set catalog.path in config)")
		os.Exit(1)
	}

	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	result, err := components.Loader.LoadFile(ctx, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Catalog loaded: %d created, %d updated, %d embedded, %d failed\n",
		result.Created, result.Updated, result.Embedded, result.Failed)

	if *embedMissing {
		n, err := components.Loader.EmbedMissing(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Embedding backfill failed after %d books: %v\n", n, err)
			os.Exit(1)
		}
		if n > 0 {
			fmt.Printf("Backfilled %d missing embedding(s)\n", n)
		}
	}

	if cfg.Storage.VectorIndexPath != "" {
		if err := components.Index.Save(cfg.Storage.VectorIndexPath); err != nil {
			fmt.Fprintf(os.Stderr, "Vector index save failed: %v\n", err)
			os.Exit(1)
		}
	}
}

func runRecommend() {
	fs := flag.NewFlagSet("recommend", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	n := fs.Int("n", 0, "number of recommendations (0 = server default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: bookbuddy recommend [flags] <user-id>")
		os.Exit(1)
	}
	userID := fs.Arg(0)

	endpoint := *serverURL + "/api/v1/users/" + url.PathEscape(userID) + "/recommendations"
	if *n > 0 {
		endpoint += "?n=" + strconv.Itoa(*n)
	}
	var rec models.Recommendation
	if err := getJSON(endpoint, &rec); err != nil {
		fmt.Fprintf(os.Stderr, "Recommend failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		writeJSON(rec)
	case "text":
		for i, r := range rec.Recommendations {
			fmt.Printf("%d. %s by %s (score %.3f)\n", i+1, r.Title, r.Author, r.SimilarityScore)
			if r.RecommendationReason != "" {
				fmt.Printf("   %s\n", r.RecommendationReason)
			}
		}
		if rec.Explanation != "" {
			fmt.Printf("\n%s\n", rec.Explanation)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func runSimilar() {
	fs := flag.NewFlagSet("similar", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	limit := fs.Int("limit", 0, "number of similar books (0 = server default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: bookbuddy similar [flags] <book-id>")
		os.Exit(1)
	}
	bookID := fs.Arg(0)

	endpoint := *serverURL + "/api/v1/books/" + url.PathEscape(bookID) + "/similar"
	if *limit > 0 {
		endpoint += "?limit=" + strconv.Itoa(*limit)
	}
	var out struct {
		SimilarBooks []*models.RecommendedBook `json:"similar_books"`
	}
	if err := getJSON(endpoint, &out); err != nil {
		fmt.Fprintf(os.Stderr, "Similar failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		writeJSON(out)
	case "text":
		for i, r := range out.SimilarBooks {
			fmt.Printf("%d. %s by %s (score %.3f)\n", i+1, r.Title, r.Author, r.SimilarityScore)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	Books           int64                  `json:"books"`
	Users           int64                  `json:"users"`
	Embeddings      int64                  `json:"embeddings"`
	VectorIndexSize int                    `json:"vector_index_size"`
	DiskUsageBytes  *int64                 `json:"disk_usage_bytes,omitempty"`
	Config          map[string]interface{} `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		if err := getJSON(*serverURL+"/api/v1/status", &status); err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger, cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()

		ctx := context.Background()
		bookCount, err := components.Store.CountBooks(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count books failed: %v\n", err)
			os.Exit(1)
		}
		userCount, err := components.Store.CountUsers(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count users failed: %v\n", err)
			os.Exit(1)
		}
		embeddingCount, err := components.Store.CountEmbeddings(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count embeddings failed: %v\n", err)
			os.Exit(1)
		}
		status = statusResponse{
			Books:           bookCount,
			Users:           userCount,
			Embeddings:      embeddingCount,
			VectorIndexSize: components.Index.Size(),
		}
		diskBytes, err := storage.DiskUsageBytes(cfg.Storage.DatabasePath, cfg.Storage.VectorIndexPath)
		if err == nil {
			status.DiskUsageBytes = &diskBytes
		}
	}

	switch *outputFormat {
	case "json":
		writeJSON(status)
	case "text":
		fmt.Printf("books:              %d\n", status.Books)
		fmt.Printf("users:              %d\n", status.Users)
		fmt.Printf("embeddings:         %d\n", status.Embeddings)
		fmt.Printf("vector_index_size:  %d\n", status.VectorIndexSize)
		if status.DiskUsageBytes != nil {
			fmt.Printf("disk_usage_bytes:   %d\n", *status.DiskUsageBytes)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func getJSON(endpoint string, out interface{}) error {
	resp, err := http.Get(endpoint)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func writeJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}
