// cmd/evermem is the command line entry point for the evermem memory engine.
// It wires the configured storage backend and LLM provider through the
// decision, consolidation, and retrieval engines.
//
// Usage:
//
//	evermem remember          read one candidate fact as JSON per stdin line
//	evermem recall <query>    retrieve memories and print the assembled context
//	evermem consolidate       merge near-duplicate records for the owner
//	evermem evolve [cat ...]  rewrite per-category rolling summaries
//
// The owner identity comes from EVERMEM_OWNER (default "default"). All
// logging goes to stderr; stdout carries only command output.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/evermem/evermem/internal/config"
	"github.com/evermem/evermem/internal/engine"
	"github.com/evermem/evermem/internal/llm"
	"github.com/evermem/evermem/internal/storage"
	"github.com/evermem/evermem/internal/storage/postgres"
	"github.com/evermem/evermem/internal/storage/sqlite"
	"github.com/evermem/evermem/pkg/types"
)

// defaultCategories are rewritten by `evermem evolve` when no categories are
// given on the command line.
var defaultCategories = []string{
	"work", "health", "relationships", "hobbies",
	"finance", "travel", "education", "preferences", "general",
}

func main() {
	log.SetOutput(os.Stderr)
	log.SetPrefix("evermem: ")
	log.SetFlags(log.LstdFlags)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("received shutdown signal")
		cancel()
	}()

	owner := os.Getenv("EVERMEM_OWNER")
	if owner == "" {
		owner = "default"
	}

	generator, embedder := buildProviders(cfg)

	var runErr error
	switch cmd := os.Args[1]; cmd {
	case "remember":
		runErr = runRemember(ctx, store, generator, embedder, cfg, owner)
	case "recall":
		if len(os.Args) < 3 {
			usage()
			os.Exit(2)
		}
		runErr = runRecall(ctx, store, generator, embedder, cfg, owner, strings.Join(os.Args[2:], " "))
	case "consolidate":
		runErr = runConsolidate(ctx, store, generator, cfg, owner)
	case "evolve":
		categories := os.Args[2:]
		if len(categories) == 0 {
			categories = defaultCategories
		}
		runErr = engine.NewSummaryEvolver(store, generator).EvolveCategories(ctx, owner, categories)
	default:
		log.Printf("unknown command %q", cmd)
		usage()
		os.Exit(2)
	}

	if runErr != nil {
		log.Fatalf("%s failed: %v", os.Args[1], runErr)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: evermem <remember|recall|consolidate|evolve> [args]")
}

// openStore opens the configured storage backend. The sqlite path's parent
// directory is created on demand.
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Engine {
	case "postgres":
		return postgres.NewRecordStore(cfg.Storage.PostgresDSN)
	default:
		if dir := filepath.Dir(cfg.Storage.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("create data directory %q: %w", dir, err)
			}
		}
		return sqlite.NewRecordStore(cfg.Storage.SQLitePath)
	}
}

// buildProviders constructs the LLM clients. Provider construction failures
// are non-fatal; the engines degrade to their heuristic paths when a
// provider is nil.
func buildProviders(cfg *config.Config) (llm.TextGenerator, llm.EmbeddingGenerator) {
	pc := llm.ProviderConfig{
		Provider:          cfg.LLM.Provider,
		APIKey:            cfg.LLM.APIKey,
		Model:             cfg.LLM.Model,
		EmbeddingModel:    cfg.LLM.EmbeddingModel,
		BaseURL:           cfg.LLM.BaseURL,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		CacheSize:         cfg.LLM.EmbeddingCache,
	}

	generator, err := llm.NewTextGenerator(pc)
	if err != nil {
		log.Printf("WARNING: text provider unavailable, using heuristics: %v", err)
		generator = nil
	}
	embedder, err := llm.NewEmbeddingGenerator(pc)
	if err != nil {
		log.Printf("WARNING: embedding provider unavailable, storing without vectors: %v", err)
		embedder = nil
	}
	return generator, embedder
}

// runRemember reads one JSON-encoded candidate fact per stdin line and runs
// each through the decision engine. A plain text line is treated as a fact
// whose name is its first few words.
func runRemember(ctx context.Context, store storage.Store, generator llm.TextGenerator, embedder llm.EmbeddingGenerator, cfg *config.Config, owner string) error {
	dec := engine.NewDecisionEngine(store, generator, embedder, engine.DecisionConfig{
		Mode: cfg.Retrieval.Mode,
	})

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		candidate, err := parseCandidate(line)
		if err != nil {
			log.Printf("WARNING: skipping line: %v", err)
			continue
		}

		result, err := dec.Process(ctx, owner, candidate)
		if err != nil {
			log.Printf("WARNING: %q not stored: %v", candidate.Name, err)
			continue
		}
		if result.Record != nil {
			fmt.Printf("%s %s %s\n", result.Op, result.Record.ID, result.Record.Name)
		} else {
			fmt.Printf("%s (%s)\n", result.Op, result.Reasoning)
		}
	}
	return scanner.Err()
}

func parseCandidate(line string) (*types.CandidateFact, error) {
	if strings.HasPrefix(line, "{") {
		var c types.CandidateFact
		if err := json.Unmarshal([]byte(line), &c); err != nil {
			return nil, fmt.Errorf("invalid candidate JSON: %w", err)
		}
		return &c, nil
	}

	name := line
	if words := strings.Fields(line); len(words) > 5 {
		name = strings.Join(words[:5], " ")
	}
	return &types.CandidateFact{
		Name:       name,
		MemoryType: types.MemoryTypeFact,
		Content:    line,
		Importance: types.ImportanceMedium,
	}, nil
}

// runRecall retrieves memories for the query and prints the assembled
// context document.
func runRecall(ctx context.Context, store storage.Store, generator llm.TextGenerator, embedder llm.EmbeddingGenerator, cfg *config.Config, owner, query string) error {
	fusion := engine.NewFusion(store, engine.FusionConfig{
		DirectWeight:     cfg.Fusion.DirectWeight,
		VectorWeight:     cfg.Fusion.VectorWeight,
		GraphWeight:      cfg.Fusion.GraphWeight,
		EnableVector:     cfg.Fusion.EnableVector,
		VectorThreshold:  cfg.Fusion.VectorThreshold,
		GraphDepth:       cfg.Fusion.GraphDepth,
		GraphMinStrength: cfg.Fusion.GraphMinStrength,
	})
	orchestrator := engine.NewOrchestrator(store, generator, fusion, engine.OrchestratorConfig{
		Mode:                  cfg.Retrieval.Mode,
		SufficiencyConfidence: cfg.Retrieval.SufficiencyConfidence,
		EntityCoverage:        cfg.Retrieval.EntityCoverage,
	})

	var queryEmbedding []float32
	if cfg.Fusion.EnableVector && embedder != nil {
		vec, err := embedder.Embed(ctx, query)
		if err != nil {
			log.Printf("WARNING: query embedding unavailable: %v", err)
		} else {
			queryEmbedding = vec
		}
	}

	result, err := orchestrator.Retrieve(ctx, owner, query, queryEmbedding)
	if err != nil {
		return err
	}
	log.Printf("answered at tier %d with confidence %.2f", result.Tier, result.Confidence)

	doc := engine.NewAssembler(engine.AssemblerConfig{
		TokenBudget:      cfg.Context.TokenBudget,
		ProfileFraction:  cfg.Context.ProfileFraction,
		MemoryFraction:   cfg.Context.MemoryFraction,
		RelationFraction: cfg.Context.RelationFraction,
	}).Assemble(engine.AssembleInput{
		Identity:  os.Getenv("EVERMEM_IDENTITY"),
		Summaries: result.Summaries,
		Entities:  result.Records,
		Results:   result.Results,
	})

	fmt.Print(doc.Text)
	log.Printf("assembled %d sections, %d tokens", len(doc.Sections), doc.TotalTokens)
	return nil
}

func runConsolidate(ctx context.Context, store storage.Store, generator llm.TextGenerator, cfg *config.Config, owner string) error {
	consolidator := engine.NewConsolidator(store, generator, engine.ConsolidationConfig{
		SimilarityThreshold: cfg.Consolidation.SimilarityThreshold,
		MaxMergesPerRun:     cfg.Consolidation.MaxMergesPerRun,
		MentionWeight:       cfg.Consolidation.MentionWeight,
		AgeWeight:           cfg.Consolidation.AgeWeight,
	})

	report, err := consolidator.Run(ctx, owner)
	if err != nil {
		return err
	}

	fmt.Printf("scanned %d records, merged %d pairs\n", report.Scanned, report.Merged)
	for _, pair := range report.Pairs {
		fmt.Printf("  %s <- %s\n", pair[0], pair[1])
	}
	for _, mergeErr := range report.Errors {
		log.Printf("WARNING: merge error: %v", mergeErr)
	}
	return nil
}
