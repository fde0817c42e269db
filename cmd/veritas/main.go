// Package main is the veritas CLI entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/veritas/internal/cli"
	"github.com/hyperjump/veritas/internal/config"
	"github.com/hyperjump/veritas/internal/embedding"
	"github.com/hyperjump/veritas/internal/extract"
	"github.com/hyperjump/veritas/internal/indexer"
	"github.com/hyperjump/veritas/internal/models"
	"github.com/hyperjump/veritas/internal/server"
	"github.com/hyperjump/veritas/internal/storage"
	"github.com/hyperjump/veritas/internal/vector"
	"github.com/hyperjump/veritas/internal/watcher"
	"github.com/hyperjump/veritas/pkg/utils"
)

var version = "dev"

// localConfigName is picked up from the working directory when no --config is given.
const localConfigName = "config.yaml"

// loadConfig loads .env, then the config at path. With no path it uses
// config.yaml from the working directory when present, otherwise defaults
// plus environment. It returns the path actually loaded ("" for none).
func loadConfig(path string) (*config.Config, string, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, "", err
	}
	if path == "" {
		if _, err := os.Stat(localConfigName); err == nil {
			path = localConfigName
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
	case "index":
		runIndex()
	case "search":
		runSearch()
	case "status":
		runStatus()
	case "delete":
		runDelete()
	case "reset":
		runReset()
	case "version", "--version", "-v":
		fmt.Printf("veritas version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads the config and builds the logger.
func setup(configPath string, debug bool) (*config.Config, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))
	return cfg, logger
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path (default: ./config.yaml when present)")
	debug := fs.Bool("debug", false, "enable debug logging")
	watch := fs.Bool("watch", false, "watch the documents directory for changes")
	_ = fs.Parse(os.Args[2:])

	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := initializeComponents(ctx, cfg, logger, true)
	if err != nil {
		logger.Fatal("failed to initialize", zap.Error(err))
	}
	defer c.Close(logger)

	report, err := c.Manager.IndexDirectory(ctx, cfg.Documents.Directory, cfg.Documents.Extensions, c.Extractor)
	if err != nil {
		logger.Error("initial ingestion failed", zap.Error(err))
	} else {
		logger.Info("initial ingestion finished",
			zap.Int("found", report.Found),
			zap.Int("indexed", report.Indexed),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed))
	}

	if cfg.Documents.Watch || *watch {
		w := watcher.New(cfg.Documents.Directory,
			indexer.FileSink{Manager: c.Manager, Extractor: c.Extractor},
			watcher.WithLogger(logger),
			watcher.WithRecursive(cfg.Documents.RecursiveOrDefault()),
			watcher.WithFilter(func(path string) bool {
				return indexer.ExtensionAllowed(path, cfg.Documents.Extensions)
			}))
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Error("watcher stopped", zap.Error(err))
			}
		}()
	}

	srv := server.NewServer(c.Manager, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()

	target := cfg.Documents.Directory
	if fs.NArg() > 0 {
		target = fs.Arg(0)
	}
	info, err := os.Stat(target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to stat path: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	c, err := initializeComponents(ctx, cfg, logger, true)
	if err != nil {
		logger.Fatal("failed to initialize", zap.Error(err))
	}
	defer c.Close(logger)

	if info.IsDir() {
		report, err := c.Manager.IndexDirectory(ctx, target, cfg.Documents.Extensions, c.Extractor)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Indexing directory failed: %v\n", err)
			os.Exit(1)
		}
		cli.WriteIngestReport(os.Stdout, target, report)
		return
	}
	skipped, err := c.Manager.IndexFile(ctx, target, c.Extractor)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Indexing failed: %v\n", err)
		os.Exit(1)
	}
	if skipped {
		fmt.Printf("Unchanged: %s\n", target)
		return
	}
	fmt.Printf("Indexed: %s\n", target)
}

// buildSearchQuery joins positional args so quoting the query is optional.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves flags that follow the query to the front, since
// flag parsing stops at the first positional argument.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: veritas search [flags] <query>\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  veritas search quarterly revenue growth
  veritas search --k 5 --min-similarity 0.3 "quarterly revenue"
  veritas search --lexical revenue 2023
  veritas search --server http://localhost:8080 --output json revenue
`)
}

func runSearch() {
	args := searchArgsReorder(os.Args[2:])
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	serverURL := fs.String("server", "", "query a running server instead of the local cache")
	k := fs.Int("k", 0, "maximum number of results (default from config)")
	minSim := fs.Float64("min-similarity", -2, "minimum cosine similarity (default from config)")
	lexical := fs.Bool("lexical", false, "rank by keyword overlap only (local cache)")
	noFallback := fs.Bool("no-fallback", false, "do not fall back to lexical search when nothing matches")
	output := fs.String("output", "text", "output format: text, compact, or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(args)

	query := buildSearchQuery(fs.Args())
	if query == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*output)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, logger := setup(*configPath, false)
	defer logger.Sync()

	q := models.SearchQuery{Query: query, K: cfg.Search.K, LexicalFallback: cfg.Search.LexicalFallbackOrDefault() && !*noFallback}
	if *k > 0 {
		q.K = *k
	}
	threshold := cfg.Search.MinSimilarityOrDefault()
	if *minSim >= -1 {
		threshold = *minSim
	}
	q.MinSimilarity = &threshold
	if err := q.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx := context.Background()
	var resp models.SearchResponse
	switch {
	case *serverURL != "":
		resp, err = cli.NewClient(*serverURL).Search(ctx, q)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
	default:
		c, err := initializeComponents(ctx, cfg, logger, false)
		if err != nil {
			logger.Fatal("failed to initialize", zap.Error(err))
		}
		defer c.Close(logger)
		if *lexical {
			start := time.Now()
			results := c.Manager.SearchLexical(q.Query, q.K)
			if results == nil {
				results = []models.SearchResult{}
			}
			resp = models.SearchResponse{Query: q.Query, Mode: models.ModeLexical, Results: results, Total: len(results), QueryTime: time.Since(start).Milliseconds()}
		} else {
			resp = indexer.RunQuery(ctx, c.Manager, q)
		}
	}
	if err := cli.WriteSearchResponse(os.Stdout, resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	serverURL := fs.String("server", "", "ask a running server instead of reading the local cache")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseFormat(*output)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var st models.Status
	if *serverURL != "" {
		st, err = cli.NewClient(*serverURL).Status(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, logger := setup(*configPath, false)
		defer logger.Sync()
		c, err := initializeComponents(context.Background(), cfg, logger, false)
		if err != nil {
			logger.Fatal("failed to initialize", zap.Error(err))
		}
		defer c.Close(logger)
		st = models.Status{
			Stats:        c.Manager.Stats(),
			CachePath:    cfg.Cache.Path,
			CacheBackend: cfg.Cache.Backend,
			IndexType:    cfg.Index.Type,
		}
		if n, err := storage.DiskUsageBytes(storage.CacheFiles(cfg.Cache.Path)...); err == nil {
			st.DiskUsageBytes = &n
		}
	}
	if err := cli.WriteStatus(os.Stdout, st, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() < 1 {
		fmt.Println("Usage: veritas delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)

	cfg, logger := setup(*configPath, false)
	defer logger.Sync()
	c, err := initializeComponents(context.Background(), cfg, logger, false)
	if err != nil {
		logger.Fatal("failed to initialize", zap.Error(err))
	}
	defer c.Close(logger)

	removed, err := c.Manager.RemoveDocument(context.Background(), docID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Deletion failed: %v\n", err)
		os.Exit(1)
	}
	if !removed {
		fmt.Printf("Not found: %s\n", docID)
		os.Exit(1)
	}
	fmt.Printf("Document deleted: %s\n", docID)
}

func runReset() {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, logger := setup(*configPath, false)
	defer logger.Sync()
	c, err := initializeComponents(context.Background(), cfg, logger, false)
	if err != nil {
		logger.Fatal("failed to initialize", zap.Error(err))
	}
	defer c.Close(logger)

	if err := c.Manager.Reset(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Reset failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Cache cleared: %s\n", cfg.Cache.Path)
}

// Components holds initialized services.
type Components struct {
	Manager   *indexer.Locked
	Extractor *extract.FileExtractor
}

// Close flushes the cache and releases the embedder, store and index.
func (c *Components) Close(logger *zap.Logger) {
	if err := c.Manager.Close(); err != nil {
		logger.Error("close failed", zap.Error(err))
	}
}

// initializeComponents wires the embedding client, chunker, store and index
// into a manager. With requireProvider set, an unreachable embedding
// provider is an error.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, requireProvider bool) (*Components, error) {
	if created, err := cfg.EnsureDocumentsDir(); err != nil {
		return nil, err
	} else if created {
		logger.Info("created documents directory", zap.String("dir", cfg.Documents.Directory))
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Cache.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	embedder, err := newEmbedder(ctx, cfg, logger, requireProvider)
	if err != nil {
		return nil, err
	}

	counter, err := embedding.NewTokenCounter(cfg.Chunking.Tokenizer)
	if err != nil {
		logger.Warn("tokenizer unavailable, counting words", zap.String("tokenizer", cfg.Chunking.Tokenizer), zap.Error(err))
		counter = embedding.WordCounter{}
	}
	chunker, err := indexer.NewChunker(cfg.Chunking.Size, cfg.Chunking.OverlapOrDefault(), counter, cfg.Chunking.BoilerplatePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chunker: %w", err)
	}

	store, err := storage.NewStore(cfg.Cache.Backend, cfg.Cache.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	index, err := vector.NewIndex(cfg.Index.Type)
	if err != nil {
		logger.Warn("failed to create vector index, falling back to memory",
			zap.String("requested_type", cfg.Index.Type),
			zap.Bool("faiss_available", vector.IsFAISSAvailable()),
			zap.Error(err))
		index = vector.NewMemoryIndex()
	}

	m := indexer.NewManager(embedder, store, chunker,
		indexer.WithLogger(logger),
		indexer.WithVectorIndex(index),
		indexer.WithBatchSize(cfg.Embedding.BatchSize),
		indexer.WithBatchPause(cfg.Embedding.BatchPause),
		indexer.WithQueryCache(cfg.Embedding.QueryCacheSize))

	return &Components{
		Manager:   indexer.NewLocked(m),
		Extractor: extract.NewFileExtractor(),
	}, nil
}

// newEmbedder builds the configured embedding provider. The remote client is
// pinged first when requireProvider is set.
func newEmbedder(ctx context.Context, cfg *config.Config, logger *zap.Logger, requireProvider bool) (embedding.Embedder, error) {
	if cfg.Embedding.Provider == config.ProviderMock {
		logger.Warn("using the offline mock embedder, results are keyword-based")
		return embedding.NewMockEmbedder(cfg.Embedding.MockDimensions), nil
	}

	client, err := embedding.NewClient(embedding.Config{
		URL:                cfg.Embedding.URL,
		Model:              cfg.Embedding.Model,
		Timeout:            cfg.Embedding.Timeout,
		BatchSize:          cfg.Embedding.BatchSize,
		MinRequestInterval: cfg.Embedding.MinRequestInterval,
		MaxAttempts:        cfg.Embedding.MaxAttempts,
		RetryMinWait:       cfg.Embedding.RetryMinWait,
		RetryMaxWait:       cfg.Embedding.RetryMaxWait,
	}, embedding.WithClientLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
	}
	if requireProvider {
		if err := client.Ping(ctx); err != nil {
			return nil, err
		}
		logger.Info("embedding provider reachable", zap.String("url", client.URL()), zap.Int("dimensions", client.Dimensions()))
	}
	return client, nil
}

func printUsage() {
	fmt.Println(`veritas - local semantic retrieval over your documents

Usage:
  veritas server [flags]             Ingest the documents directory and serve the HTTP API
  veritas index [flags] [path]       Index a file or directory (default: documents directory)
  veritas search [flags] <query>     Search indexed chunks
  veritas status [flags]             Show corpus and cache status
  veritas delete [flags] <id>        Remove a document and its chunks
  veritas reset [flags]              Remove every document
  veritas version                    Show version
  veritas help                       Show this help

Common Flags:
  --config string    Config file path (default: ./config.yaml when present, else defaults)

Server Flags:
  --debug            Enable debug logging
  --watch            Watch the documents directory for changes

Search Flags:
  --server string          Query a running server instead of the local cache
  --k int                  Maximum results (default from config, 30)
  --min-similarity float   Minimum cosine similarity (default from config, 0.10)
  --lexical                Keyword overlap ranking only
  --no-fallback            Disable the lexical fallback
  --output string          text, compact, or json

Environment:
  EMBEDDINGS_URL, EMBEDDING_MODEL_ID, CACHE_FILE, DOCUMENTS_DIRECTORY,
  EMBEDDING_PROVIDER (openai or mock), CHUNK_SIZE, CHUNK_OVERLAP,
  REQUEST_TIMEOUT (seconds). A .env file in the
  working directory is loaded first.`)
}
