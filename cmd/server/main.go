package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/agentbrowser/viewer/internal/api"
	"github.com/agentbrowser/viewer/internal/config"
	"github.com/agentbrowser/viewer/internal/coordinator"
	"github.com/agentbrowser/viewer/internal/executor"
	"github.com/agentbrowser/viewer/internal/hub"
	"github.com/agentbrowser/viewer/internal/live"
	"github.com/agentbrowser/viewer/internal/logger"
	"github.com/agentbrowser/viewer/internal/nlp"
	"github.com/agentbrowser/viewer/internal/ratelimit"
	"github.com/agentbrowser/viewer/internal/screenshot"
	"github.com/agentbrowser/viewer/internal/store"
	"github.com/agentbrowser/viewer/pkg/models"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := config.Load()

	logg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logg.Sync()

	st, err := store.New(cfg.DBPath)
	if err != nil {
		logg.Fatalw("failed to open store", "path", cfg.DBPath, "error", err)
	}
	defer st.Close()
	logg.Infow("store ready", "path", cfg.DBPath)

	files, err := screenshot.NewFiles(cfg.ScreenshotsDir)
	if err != nil {
		logg.Fatalw("failed to prepare screenshot store", "dir", cfg.ScreenshotsDir, "error", err)
	}

	runner := executor.New(cfg.BrowserBin, logg)
	capturer := screenshot.NewCapturer(runner, logg)
	liveState := live.New()
	viewerHub := hub.New(logg)

	coord := coordinator.New(st, liveState, viewerHub, runner, capturer, files, logg)
	viewerHub.SetHandlers(
		func(c *hub.Client) { coord.HandleConnect(c) },
		func(c *hub.Client, msg models.WireMessage) { coord.HandleMessage(c, msg) },
	)

	translator := nlp.New(cfg.NLPBaseURL, cfg.NLPAPIKey, cfg.NLPModel)
	limiter := ratelimit.NewLimiter(60, 10)

	handler := api.NewHandler(st, liveState, coord, files, runner, translator, limiter, logg)
	router := handler.SetupRoutes(viewerHub)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Probe once so the first viewer sees the browser as it is.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		coord.InitialProbe(ctx)
	}()

	go func() {
		logg.Infow("server starting", "addr", cfg.Addr, "browser_bin", cfg.BrowserBin)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.Fatalw("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logg.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logg.Fatalw("forced shutdown", "error", err)
	}

	logg.Info("server stopped")
}
