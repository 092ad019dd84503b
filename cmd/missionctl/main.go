// Command missionctl runs a single mission against the configured stack
// and prints its result to stdout: flags, config.Load, one job, fail fast
// with log.Fatal, rather than agentd's long-running server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/guillermopickman-spec/market-intel-agent/internal/actions"
	"github.com/guillermopickman-spec/market-intel-agent/internal/chunker"
	"github.com/guillermopickman-spec/market-intel-agent/internal/config"
	"github.com/guillermopickman-spec/market-intel-agent/internal/embedding"
	"github.com/guillermopickman-spec/market-intel-agent/internal/llm"
	"github.com/guillermopickman-spec/market-intel-agent/internal/llm/providers"
	"github.com/guillermopickman-spec/market-intel-agent/internal/logging"
	"github.com/guillermopickman-spec/market-intel-agent/internal/mission"
	"github.com/guillermopickman-spec/market-intel-agent/internal/objectstore"
	"github.com/guillermopickman-spec/market-intel-agent/internal/planner"
	"github.com/guillermopickman-spec/market-intel-agent/internal/relational"
	"github.com/guillermopickman-spec/market-intel-agent/internal/scraper"
	"github.com/guillermopickman-spec/market-intel-agent/internal/search"
	"github.com/guillermopickman-spec/market-intel-agent/internal/vectorstore"
)

func main() {
	log.SetFlags(0)
	var (
		configPath     = flag.String("config", "", "path to YAML config file (optional; env vars always apply)")
		objective      = flag.String("objective", "", "the research objective (use -stdin to read it from STDIN)")
		stdin          = flag.Bool("stdin", false, "read the objective from STDIN")
		conversationID = flag.Int64("conversation-id", 1, "conversation id to run this mission under")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("missionctl: load config: %v", err)
	}
	logging.Init(cfg.LogPath, cfg.LogLevel)

	input := *objective
	if *stdin {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			log.Fatalf("missionctl: read stdin: %v", err)
		}
		input = string(b)
	}
	if input == "" {
		log.Fatal("missionctl: no objective provided; use -objective or -stdin")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	executor, closer, err := wireExecutor(ctx, cfg)
	if err != nil {
		log.Fatalf("missionctl: wire dependencies: %v", err)
	}
	defer closer()

	result, err := executor.Run(ctx, *conversationID, input, mission.Hooks{})
	if err != nil {
		log.Fatalf("missionctl: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{
		"mission_id": result.MissionLogID,
		"status":     result.Status,
		"report":     result.Report,
	}); err != nil {
		log.Fatalf("missionctl: encode result: %v", err)
	}
	fmt.Fprintln(os.Stderr, "missionctl: done")
}

// wireExecutor builds the same Mission Executor dependency graph as
// cmd/agentd, scoped down to a one-shot CLI run with no HTTP surface.
func wireExecutor(ctx context.Context, cfg config.Config) (*mission.Executor, func(), error) {
	httpClient := &http.Client{Timeout: cfg.Timeouts.LLM}

	probeCache := llm.NewProbeCache(cfg.RedisAddr)
	provider, err := providers.Build(ctx, cfg.LLMClient, httpClient, probeCache)
	if err != nil {
		return nil, nil, fmt.Errorf("build llm provider: %w", err)
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
			return nil, nil, fmt.Errorf("connect vector store: %w", err)
		}
	default:
		vectorDB = vectorstore.NewMemory(cfg.Vector.Dimensions)
	}

	var store relational.Store
	switch cfg.Database.Backend {
	case "postgres":
		store, err = relational.NewPostgres(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect relational store: %w", err)
		}
	default:
		store = relational.NewMemory()
	}

	var archiver scraper.RawArchiver
	if cfg.S3.Enabled {
		s3Store, err := objectstore.NewS3Store(ctx, cfg.S3)
		if err != nil {
			return nil, nil, fmt.Errorf("connect raw page archive: %w", err)
		}
		archiver = objectstore.NewArchiver(s3Store)
	}

	chunkOpt := chunker.Options{ChunkSize: 2000, Overlap: 200}
	actionDispatcher := actions.New(cfg.MCPServers)

	executor := &mission.Executor{
		Store:    store,
		VectorDB: vectorDB,
		Embedder: embedder,
		Gateway:  gateway,
		Planner:  planner.New(gateway),
		Search:   search.New(cfg.SearxngURL),
		Scraper: scraper.New(cfg.Timeouts.Scraper,
			scraper.WithDeadline(cfg.Timeouts.Scraper),
			scraper.WithIngestion(embedder, vectorDB, archiver, chunkOpt)),
		Actions:  actionDispatcher,
		ChunkOpt: chunkOpt,
	}

	closer := func() {
		actionDispatcher.Close()
		_ = vectorDB.Close()
		_ = store.Close()
	}
	return executor, closer, nil
}
