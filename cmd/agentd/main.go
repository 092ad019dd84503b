// Command agentd runs the market intelligence research agent's HTTP
// server: config and logging bootstrap, every collaborator the Mission
// Executor and RAG Query Service need, then the external API routes.
// Bootstrap order is env load -> config load -> logger init -> dependency
// wiring -> router -> listen.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guillermopickman-spec/market-intel-agent/internal/actions"
	"github.com/guillermopickman-spec/market-intel-agent/internal/chunker"
	"github.com/guillermopickman-spec/market-intel-agent/internal/config"
	"github.com/guillermopickman-spec/market-intel-agent/internal/embedding"
	"github.com/guillermopickman-spec/market-intel-agent/internal/httpapi"
	"github.com/guillermopickman-spec/market-intel-agent/internal/llm"
	"github.com/guillermopickman-spec/market-intel-agent/internal/llm/providers"
	"github.com/guillermopickman-spec/market-intel-agent/internal/logging"
	"github.com/guillermopickman-spec/market-intel-agent/internal/mission"
	"github.com/guillermopickman-spec/market-intel-agent/internal/objectstore"
	"github.com/guillermopickman-spec/market-intel-agent/internal/planner"
	"github.com/guillermopickman-spec/market-intel-agent/internal/rag"
	"github.com/guillermopickman-spec/market-intel-agent/internal/relational"
	"github.com/guillermopickman-spec/market-intel-agent/internal/scraper"
	"github.com/guillermopickman-spec/market-intel-agent/internal/search"
	"github.com/guillermopickman-spec/market-intel-agent/internal/streamer"
	"github.com/guillermopickman-spec/market-intel-agent/internal/vectorstore"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional; env vars always apply)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "agentd: load config:", err)
		os.Exit(1)
	}
	logging.Init(cfg.LogPath, cfg.LogLevel)
	log := logging.FromContext(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, err := wire(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("agentd: dependency wiring failed")
	}
	defer deps.Close()

	srv := httpapi.NewServer(deps.Executor, deps.Rag, deps.Store, cfg.CORSOrigins)
	srv.DBPing = func(ctx context.Context) error { return deps.pingDatabase(ctx) }
	srv.VectorPing = func(ctx context.Context) error { return deps.pingVector(ctx) }
	srv.EventPublisher = deps.KafkaPublisher

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming missions can run well past any fixed write deadline
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("agentd: listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("agentd: server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info().Msg("agentd: shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("agentd: graceful shutdown failed")
	}
}

// dependencies holds every collaborator constructed from cfg, so main can
// wire the HTTP server and close everything on the way out without
// repeating the switch-on-backend logic at each call site.
type dependencies struct {
	Store          relational.Store
	VectorDB       vectorstore.VectorStore
	Embedder       embedding.Embedder
	Gateway        *llm.Gateway
	Executor       *mission.Executor
	Rag            *rag.Service
	Actions        *actions.Dispatcher
	KafkaPublisher *streamer.KafkaPublisher
}

func (d *dependencies) Close() {
	if d.Actions != nil {
		d.Actions.Close()
	}
	if d.VectorDB != nil {
		_ = d.VectorDB.Close()
	}
	if d.Store != nil {
		_ = d.Store.Close()
	}
	if d.KafkaPublisher != nil {
		_ = d.KafkaPublisher.Close()
	}
}

func (d *dependencies) pingDatabase(ctx context.Context) error {
	_, err := d.Store.Stats(ctx)
	return err
}

func (d *dependencies) pingVector(ctx context.Context) error {
	_, err := d.VectorDB.Query(ctx, make([]float32, d.VectorDB.Dimension()), 1, nil)
	return err
}

func wire(ctx context.Context, cfg config.Config) (*dependencies, error) {
	httpClient := &http.Client{Timeout: cfg.Timeouts.LLM}

	probeCache := llm.NewProbeCache(cfg.RedisAddr)
	provider, err := providers.Build(ctx, cfg.LLMClient, httpClient, probeCache)
	if err != nil {
		return nil, fmt.Errorf("agentd: build llm provider: %w", err)
	}
	gateway := llm.NewGateway(provider, cfg.LLMClient.MaxPayloadBytes)

	var embedder embedding.Embedder
	if cfg.Embedding.Host != "" {
		embedder = embedding.NewClient(cfg.Embedding)
	} else {
		embedder = embedding.NewDeterministic(cfg.Vector.Dimensions, true, 1)
	}

	var vectorDB vectorstore.VectorStore
	switch cfg.Vector.Backend {
	case "qdrant":
		vectorDB, err = vectorstore.New(cfg.Vector.DSN, cfg.Vector.Collection, cfg.Vector.Dimensions, cfg.Vector.Metric)
		if err != nil {
			return nil, fmt.Errorf("agentd: connect vector store: %w", err)
		}
	default:
		vectorDB = vectorstore.NewMemory(cfg.Vector.Dimensions)
	}

	var store relational.Store
	switch cfg.Database.Backend {
	case "postgres":
		store, err = relational.NewPostgres(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("agentd: connect relational store: %w", err)
		}
	default:
		store = relational.NewMemory()
	}

	var archiver scraper.RawArchiver
	if cfg.S3.Enabled {
		s3Store, err := objectstore.NewS3Store(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("agentd: connect raw page archive: %w", err)
		}
		archiver = objectstore.NewArchiver(s3Store)
	}

	chunkOpt := chunker.Options{ChunkSize: 2000, Overlap: 200}

	searchTool := search.New(cfg.SearxngURL)
	scraperTool := scraper.New(cfg.Timeouts.Scraper,
		scraper.WithDeadline(cfg.Timeouts.Scraper),
		scraper.WithIngestion(embedder, vectorDB, archiver, chunkOpt))
	actionDispatcher := actions.New(cfg.MCPServers)
	llmPlanner := planner.New(gateway)

	executor := &mission.Executor{
		Store:    store,
		VectorDB: vectorDB,
		Embedder: embedder,
		Gateway:  gateway,
		Planner:  llmPlanner,
		Search:   searchTool,
		Scraper:  scraperTool,
		Actions:  actionDispatcher,
		ChunkOpt: chunkOpt,
	}
	ragService := rag.New(embedder, vectorDB, gateway)

	var kafkaPub *streamer.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPub = streamer.NewKafkaPublisher(cfg.KafkaBrokers)
	}

	return &dependencies{
		Store:          store,
		VectorDB:       vectorDB,
		Embedder:       embedder,
		Gateway:        gateway,
		Executor:       executor,
		Rag:            ragService,
		Actions:        actionDispatcher,
		KafkaPublisher: kafkaPub,
	}, nil
}
