package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avitale/donna/internal/brain"
	"github.com/avitale/donna/internal/config"
	"github.com/avitale/donna/internal/httpapi"
	"github.com/avitale/donna/internal/observability"
	"github.com/avitale/donna/internal/session"
	"github.com/avitale/donna/internal/tasks"
	"github.com/avitale/donna/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := tasks.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("task store init failed: %v", err)
	}
	defer store.Close()
	if cfg.DatabaseURL == "" {
		log.Printf("task store: in-memory (set DATABASE_URL for persistence)")
	} else {
		log.Printf("task store: postgres")
	}

	adapter, err := brain.NewAdapter(brain.Config{
		Mode:    cfg.BrainAdapterMode,
		HTTPURL: cfg.BrainHTTPURL,
		Token:   cfg.BrainAPIToken,
	})
	if err != nil {
		log.Fatalf("brain adapter init failed: %v", err)
	}

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	history, err := session.NewHistory(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("session history init failed: %v", err)
	}
	defer history.Close()
	sessions.SetHistory(history)

	engine := workflow.NewEngine(store, adapter, sessions, metrics, workflow.Config{
		SearchLimit:        cfg.SearchResultLimit,
		DuplicateThreshold: cfg.DuplicateScoreThreshold,
		MaxToolRounds:      cfg.MaxToolRounds,
	})

	api := httpapi.New(cfg, sessions, engine, store, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, 30*time.Second)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
