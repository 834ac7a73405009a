package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"

	"brochure-pdf/internal/config"
	"brochure-pdf/internal/http/server"
	"brochure-pdf/internal/infra/cache"
	"brochure-pdf/internal/infra/logging"
	"brochure-pdf/internal/render"
)

func main() {
	cfg := loadConfig(os.Args[1:])
	if err := serve(cfg); err != nil {
		logging.Error("Startup failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the file named by --config, falling back to CONFIG_PATH.
func loadConfig(args []string) config.Config {
	fs := pflag.NewFlagSet("brochure-pdf", pflag.ExitOnError)
	path := fs.String("config", "", "path to the YAML config file (overrides CONFIG_PATH)")
	_ = fs.Parse(args)

	if *path != "" {
		return config.LoadFrom(*path)
	}
	return config.Load()
}

// serve runs the HTTP server until SIGINT or SIGTERM.
func serve(cfg config.Config) error {
	logging.InitLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		logging.Info(fmt.Sprintf(format, args...))
	})); err != nil {
		logging.Warn("Failed to set GOMAXPROCS", "error", err)
	}

	renderer, err := render.New(cfg)
	if err != nil {
		return fmt.Errorf("renderer: %w", err)
	}
	defer renderer.Engine().Close()

	var pdfCache *cache.PDFCache
	if cfg.Cache.PDFCacheEnabled {
		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisHost,
			DB:   cfg.Cache.PDFCacheDB,
		})
		defer rdb.Close()
		pdfCache = cache.New(rdb, cfg.Cache.PDFCacheTTL)
		logging.Info("PDF cache enabled", "addr", cfg.Cache.RedisHost, "db", cfg.Cache.PDFCacheDB, "ttl", cfg.Cache.PDFCacheTTL.String())
	}

	app := server.New(server.Deps{
		Config:   cfg,
		Renderer: renderer,
		Cache:    pdfCache,
	})

	idleConnsClosed := make(chan struct{})
	startServer(app, cfg, idleConnsClosed)
	<-idleConnsClosed
	return nil
}

// startServer starts the Fiber app and listens for shutdown signals
func startServer(app *fiber.App, cfg config.Config, idleConnsClosed chan struct{}) {
	// Subscribe before listening so an early signal is not lost.
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigint)

	go func() {
		logging.Info("Listening", "addr", cfg.Server.Host+cfg.Server.Port)
		if err := app.Listen(cfg.Server.Host + cfg.Server.Port); err != nil {
			logging.Error("Server error", "error", err)
		}
	}()

	<-sigint

	logging.Warn("Shutdown signal received, closing server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
	}

	close(idleConnsClosed)
	logging.Info("Server stopped cleanly")
}
