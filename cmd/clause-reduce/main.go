package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mheijden/clause-reduce/internal/ingest"
	"github.com/mheijden/clause-reduce/internal/reduce"
)

func main() {
	var (
		inputPath     = flag.String("input", "", "Semicolon-delimited CSV with policy clauses (required)")
		referencePath = flag.String("reference", "", "Reference conditions text file (required)")
		outputPath    = flag.String("output", "advies.csv", "Output CSV path")
		markdownPath  = flag.String("markdown", "", "Optional markdown report path")
		similarity    = flag.Float64("similarity", reduce.DefaultSimilarityThreshold, "Fuzzy clustering threshold")
		coverage      = flag.Float64("coverage", reduce.DefaultCoverageThreshold, "Phrase coverage threshold")
		embedding     = flag.Float64("embedding", reduce.DefaultEmbeddingThreshold, "Embedding escalation threshold")
		strategy      = flag.String("cluster-strategy", string(reduce.StrategyGreedyStar), "Clustering strategy: greedy_star or connected_components")
		semantic      = flag.Bool("semantic", false, "Enable semantic verification (needs OPENAI_API_KEY and ANTHROPIC_API_KEY)")
	)
	flag.Parse()

	if *inputPath == "" || *referencePath == "" {
		log.Fatal("-input and -reference are required")
	}

	cfg := reduce.DefaultConfig()
	cfg.SimilarityThreshold = *similarity
	cfg.CoverageThreshold = *coverage
	cfg.EmbeddingThreshold = *embedding
	cfg.ClusterStrategy = reduce.ClusterStrategy(*strategy)

	var (
		encoder reduce.Encoder
		judge   reduce.SemanticJudge
	)
	if *semantic {
		enc, err := reduce.NewOpenAIEncoderFromEnv()
		if err != nil {
			log.Fatal(err)
		}
		j, err := reduce.NewAnthropicJudgeFromEnv()
		if err != nil {
			log.Fatal(err)
		}
		encoder, judge = enc, j
	}

	pipeline, err := reduce.NewPipeline(cfg, encoder, judge)
	if err != nil {
		log.Fatal(err)
	}

	in, err := os.Open(*inputPath)
	if err != nil {
		log.Fatal(err)
	}
	read, err := ingest.ReadEntries(in)
	in.Close()
	if err != nil {
		log.Fatal(err)
	}
	reference := ingest.PlainTextExtractor{}.Extract(*referencePath)
	if reference == "" {
		log.Fatalf("no reference text in %s", *referencePath)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	res, err := pipeline.RunWithProgress(ctx, read.Entries, reference,
		func(stage, message string) { log.Printf("clause-reduce: %s", message) })
	if err != nil {
		log.Fatal(err)
	}

	out, err := os.Create(*outputPath)
	if err != nil {
		log.Fatal(err)
	}
	if err := reduce.WriteCSV(out, res.Advice); err != nil {
		out.Close()
		log.Fatal(err)
	}
	if err := out.Close(); err != nil {
		log.Fatal(err)
	}
	if *markdownPath != "" {
		if err := os.WriteFile(*markdownPath, []byte(reduce.BuildMarkdown(res)), 0o644); err != nil {
			log.Fatal(err)
		}
	}
	log.Printf("clause-reduce: %d advice rows written to %s (%s)",
		len(res.Advice), *outputPath, res.Stats.SemanticStatus)
}
