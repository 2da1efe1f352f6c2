package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/datachat/datachat-go/internal/adapters/embedding"
	"github.com/datachat/datachat-go/internal/adapters/filewatcher"
	"github.com/datachat/datachat-go/internal/adapters/llm"
	"github.com/datachat/datachat-go/internal/adapters/loader"
	"github.com/datachat/datachat-go/internal/adapters/parser"
	"github.com/datachat/datachat-go/internal/adapters/vectordb"
	"github.com/datachat/datachat-go/internal/config"
	"github.com/datachat/datachat-go/internal/domain/ports"
	"github.com/datachat/datachat-go/internal/domain/usecases"
	httpserver "github.com/datachat/datachat-go/internal/infrastructure/http"
)

func main() {
	// Missing .env is fine; environment may be set by other means.
	_ = godotenv.Load()

	var configPath string

	rootCmd := &cobra.Command{
		Use:   "datachat",
		Short: "Chat with your documents using local or hosted models",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (optional)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	ingestCmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Ingest documents into the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), configPath, args)
		},
	}

	askCmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a single question against the indexed documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), configPath, args[0])
		},
	}

	var yes bool
	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Discard all indexed documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(cmd.Context(), configPath, yes)
		},
	}
	resetCmd.Flags().BoolVar(&yes, "yes", false, "Skip the confirmation prompt")

	rootCmd.AddCommand(serveCmd, ingestCmd, askCmd, resetCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app bundles the wired pipeline for the subcommands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	store  ports.VectorStore
	ingest *usecases.IngestUseCase
	ask    *usecases.AskUseCase
	loader *loader.FileLoader

	close func()
}

func buildApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	store, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	embedder, err := buildEmbedder(cfg.Embedding)
	if err != nil {
		closeStore()
		return nil, err
	}
	completer, err := buildLLM(cfg.LLM)
	if err != nil {
		closeStore()
		return nil, err
	}

	chunker, err := usecases.NewChunker(cfg.Chunking.Window, cfg.Chunking.Overlap)
	if err != nil {
		closeStore()
		return nil, err
	}

	multi := parser.NewMultiParser()
	ingest := usecases.NewIngestUseCase(chunker, embedder, store, multi, logger)
	retriever := usecases.NewRetriever(embedder, store, cfg.Retrieval.TopK, cfg.Retrieval.MinScore)
	assembler := usecases.NewContextAssembler(cfg.Context.Budget, cfg.Context.DedupThreshold, cfg.Context.HistoryTurns)
	generator := usecases.NewGenerator(completer, time.Second, logger)
	ask := usecases.NewAskUseCase(retriever, assembler, generator, usecases.NewSessionMemories(cfg.Memory.Capacity), logger)

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		ingest: ingest,
		ask:    ask,
		loader: loader.NewFileLoader(multi),
		close:  closeStore,
	}, nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func buildStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ports.VectorStore, func(), error) {
	switch cfg.Store.Backend {
	case "sqlite":
		store, err := vectordb.NewSQLiteStore(cfg.Store.Path, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return store, func() { store.Close() }, nil
	case "qdrant":
		host, port, err := splitHostPort(cfg.Store.Addr)
		if err != nil {
			return nil, nil, fmt.Errorf("store addr: %w", err)
		}
		store, err := vectordb.NewQdrantStore(ctx, host, port, cfg.Store.Collection, cfg.Store.Dimension)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to qdrant: %w", err)
		}
		return store, func() { store.Close() }, nil
	case "memory":
		return vectordb.NewInMemoryStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func buildEmbedder(cfg config.ProviderConfig) (ports.EmbeddingService, error) {
	switch cfg.Provider {
	case "ollama":
		return embedding.NewOllamaEmbedder(cfg.BaseURL, cfg.Model, 0), nil
	case "openai":
		return embedding.NewOpenAIEmbedder(cfg.APIKey, cfg.BaseURL, cfg.Model, 0), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

func buildLLM(cfg config.ProviderConfig) (ports.CompletionService, error) {
	switch cfg.Provider {
	case "ollama":
		return llm.NewOllamaClient(cfg.BaseURL, cfg.Model), nil
	case "openai":
		return llm.NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

func runServe(ctx context.Context, configPath string) error {
	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	if a.cfg.Documents.Watch {
		watcher, err := filewatcher.NewFSNotifyWatcher(nil, a.logger)
		if err != nil {
			return err
		}
		defer watcher.Stop()

		sync := filewatcher.NewDirectorySync(watcher, a.loader, a.ingest, a.logger)
		go func() {
			if err := sync.Run(ctx, a.cfg.Documents.Dir); err != nil && ctx.Err() == nil {
				a.logger.Error("directory sync stopped", "error", err)
			}
		}()
	}

	server := httpserver.NewServer(a.ask, a.ingest, a.store, nil, a.logger, a.cfg.Server.Addr)
	return server.Start(ctx)
}

func runIngest(ctx context.Context, configPath string, paths []string) error {
	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	for _, path := range paths {
		doc, err := a.loader.Load(ctx, path)
		if err != nil {
			return err
		}
		if err := a.ingest.Ingest(ctx, doc); err != nil {
			return err
		}
		fmt.Printf("Ingested %s (source %s)\n", path, doc.SourceID)
	}
	return nil
}

func runAsk(ctx context.Context, configPath, question string) error {
	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	tokens, passages, err := a.ask.AskStream(ctx, "cli", question)
	if err != nil {
		return err
	}

	for token := range tokens {
		if token.Error != nil {
			return token.Error
		}
		fmt.Print(token.Content)
	}
	fmt.Println()

	if len(passages) > 0 {
		fmt.Println("\nSources:")
		for _, p := range passages {
			fmt.Printf("  %s (score %.2f)\n", p.Source, p.Score)
		}
	}
	return nil
}

func runReset(ctx context.Context, configPath string, yes bool) error {
	if !yes && !confirm("This discards all indexed documents. Continue? [y/N] ") {
		fmt.Println("Aborted.")
		return nil
	}

	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.ingest.Reset(ctx); err != nil {
		return err
	}
	fmt.Println("Index reset.")
	return nil
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
