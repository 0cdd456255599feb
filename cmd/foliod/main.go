// Foliod is the portfolio content daemon: hybrid search plus a streaming
// retrieval-augmented chat endpoint over the site's projects, blog posts
// and pages.
//
// Configuration is loaded from ~/.config/foliod/config.yaml and overridden
// by environment variables. See internal/config for the mapping rules.
//
// Usage:
//
//	# Start the daemon with defaults
//	foliod
//
//	# Configure via environment
//	SERVER_PORT=9090 VECTORSTORE_PROVIDER=qdrant foliod
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/foliolabs/foliod/internal/chat"
	"github.com/foliolabs/foliod/internal/config"
	"github.com/foliolabs/foliod/internal/content"
	"github.com/foliolabs/foliod/internal/counter"
	"github.com/foliolabs/foliod/internal/embeddings"
	"github.com/foliolabs/foliod/internal/events"
	"github.com/foliolabs/foliod/internal/httpapi"
	"github.com/foliolabs/foliod/internal/indexer"
	"github.com/foliolabs/foliod/internal/llm"
	"github.com/foliolabs/foliod/internal/logging"
	"github.com/foliolabs/foliod/internal/prompt"
	"github.com/foliolabs/foliod/internal/search"
	"github.com/foliolabs/foliod/internal/services"
	"github.com/foliolabs/foliod/internal/storage"
	"github.com/foliolabs/foliod/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/foliod/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  foliod           Start the foliod daemon\n")
			fmt.Fprintf(os.Stderr, "  foliod version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("foliod by Folio Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the foliod daemon and blocks until the context is cancelled.
//
// Initialization order:
//  1. Load and validate configuration
//  2. Initialize logger
//  3. Open SQLite storage and the vector store
//  4. Connect NATS when events are enabled
//  5. Build the service graph (cache, indexer, search, prompt, chat)
//  6. Wire content-change hooks (cache invalidation, indexing, events)
//  7. Start the HTTP server and shut down gracefully on cancellation
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.NewLogger(logging.NewDefaultConfig())
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info(ctx, "starting foliod",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout.Duration()))

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer db.Close()

	store, err := vectorstore.NewStore(cfg.VectorStore, logger)
	if err != nil {
		return fmt.Errorf("initializing vector store: %w", err)
	}
	defer store.Close()

	vectorSize := cfg.VectorStore.Chromem.VectorSize
	if cfg.VectorStore.Provider == "qdrant" {
		vectorSize = cfg.VectorStore.Qdrant.VectorSize
	}
	for _, collection := range content.Collections {
		if err := store.InitCollection(ctx, collection, vectorSize); err != nil {
			return fmt.Errorf("initializing collection %s: %w", collection, err)
		}
	}

	var bus *events.Bus
	if cfg.Events.Enabled {
		bus, err = events.Connect(cfg.Events.URL, logger)
		if err != nil {
			return fmt.Errorf("connecting to event bus: %w", err)
		}
	}
	defer bus.Close()

	embedder, err := embeddings.NewService(cfg.Embeddings)
	if err != nil {
		return fmt.Errorf("initializing embedding service: %w", err)
	}

	repo, err := content.NewSQLiteRepository(db)
	if err != nil {
		return fmt.Errorf("initializing content repository: %w", err)
	}
	cache := content.NewCache(repo, cfg.Search.CacheTTL.Duration())

	ctr, err := counter.NewService(db)
	if err != nil {
		return fmt.Errorf("initializing counter service: %w", err)
	}

	ix, err := indexer.New(db, ctr, embedder, store, logger)
	if err != nil {
		return fmt.Errorf("initializing indexer: %w", err)
	}

	// Every successful content write invalidates the cache, updates the
	// vector index and fans the change out over NATS.
	repo.OnChange(func(ctx context.Context, collection, id string, removed bool) {
		cache.Invalidate(collection)
		if removed {
			if err := ix.Remove(ctx, collection, id); err != nil {
				logger.Error(ctx, "removing document from index",
					zap.String("collection", collection), zap.String("id", id), zap.Error(err))
			}
		} else {
			entity, err := repo.Get(ctx, collection, id)
			if err != nil {
				logger.Error(ctx, "loading changed document",
					zap.String("collection", collection), zap.String("id", id), zap.Error(err))
				return
			}
			if err := ix.Index(ctx, collection, entity); err != nil {
				logger.Error(ctx, "indexing changed document",
					zap.String("collection", collection), zap.String("id", id), zap.Error(err))
			}
		}
		bus.PublishChange(ctx, collection, id, removed)
	})

	// Changes published by other instances only need a cache drop; the
	// writer owns the index update.
	if err := bus.SubscribeChanges(func(ev events.ContentChanged) {
		cache.Invalidate(ev.Collection)
	}); err != nil {
		return fmt.Errorf("subscribing to content changes: %w", err)
	}

	engine := search.NewEngine(embedder, store, cache, search.Options{
		Alpha:          cfg.Search.Alpha,
		ScoreThreshold: cfg.Search.ScoreThreshold,
	}, logger)

	templates, err := prompt.NewStore(db)
	if err != nil {
		return fmt.Errorf("initializing template store: %w", err)
	}
	builder := prompt.NewBuilder(engine, templates, cfg.Chat.HistoryTurns, logger)

	model, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return fmt.Errorf("initializing llm client: %w", err)
	}

	manager := chat.NewManager(builder, model, logger)

	registry := services.NewRegistry(services.Options{
		Counter:       ctr,
		Repository:    repo,
		Cache:         cache,
		VectorStore:   store,
		Indexer:       ix,
		Search:        engine,
		Templates:     templates,
		PromptBuilder: builder,
		Chat:          manager,
	})

	srv, err := httpapi.NewServer(registry.Chat(), registry.Search(), logger, &httpapi.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	// Reconcile the vector index with stored content, then prime the
	// cache. Both are best-effort; the server starts regardless.
	go func() {
		if err := registry.Indexer().Sync(ctx, registry.Repository()); err != nil {
			logger.Warn(ctx, "index sync failed", zap.Error(err))
		}
		if err := registry.Cache().Warm(ctx); err != nil {
			logger.Warn(ctx, "cache warmup failed", zap.Error(err))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}
