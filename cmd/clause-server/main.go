package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mheijden/clause-reduce/internal/httpapi"
	"github.com/mheijden/clause-reduce/internal/ingest"
	"github.com/mheijden/clause-reduce/internal/jobstore"
	"github.com/mheijden/clause-reduce/internal/reduce"
	"github.com/mheijden/clause-reduce/internal/reportpdf"
	"github.com/mheijden/clause-reduce/internal/telemetry"
)

func main() {
	var (
		addr      = flag.String("addr", ":8080", "Listen address")
		dbPath    = flag.String("db", "", "SQLite database path (empty: in-memory jobs only)")
		uploadDir = flag.String("upload-dir", "./uploads", "Directory for uploaded files")
		semantic  = flag.Bool("semantic", false, "Enable semantic verification (needs OPENAI_API_KEY and ANTHROPIC_API_KEY)")
	)
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTelemetry, err := telemetry.Init(ctx, "clause-server")
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			log.Printf("clause-server: telemetry shutdown: %v", err)
		}
	}()

	if err := os.MkdirAll(*uploadDir, 0o755); err != nil {
		log.Fatal(err)
	}

	var store jobstore.Store
	if *dbPath != "" {
		s, err := jobstore.NewSQLiteStore(*dbPath)
		if err != nil {
			log.Fatal(err)
		}
		store = s
	} else {
		store = jobstore.NewMemoryStore()
	}
	defer store.Close()

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

	pipeline, err := reduce.NewPipeline(reduce.DefaultConfig(), encoder, judge)
	if err != nil {
		log.Fatal(err)
	}
	runner := httpapi.NewRunner(store, pipeline, ingest.PlainTextExtractor{})
	handler := httpapi.NewServer(ctx, store, runner, reportpdf.NewChromiumRenderer(), *uploadDir)

	log.Printf("clause-server listening on %s (db=%s, semantic=%v)", *addr, *dbPath, *semantic)
	srv := &http.Server{Addr: *addr, Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			srv.Close()
		}
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
