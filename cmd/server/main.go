package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hallwayapps/browsergate/internal/api"
	"github.com/hallwayapps/browsergate/internal/config"
	"github.com/hallwayapps/browsergate/internal/directory"
	"github.com/hallwayapps/browsergate/internal/logbuf"
	"github.com/hallwayapps/browsergate/internal/provision"
	"github.com/hallwayapps/browsergate/internal/proxy"
	"github.com/hallwayapps/browsergate/internal/ratelimit"
	"github.com/hallwayapps/browsergate/internal/session"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := config.Load()
	logger.Info("starting browsergate",
		zap.String("listen_addr", cfg.ListenAddr),
		zap.Bool("remote_provisioning", cfg.UseRemoteProvisioner()),
		zap.Bool("proxy_tier", cfg.BackendBaseURL != ""))

	// Session directory: Postgres when configured, in-memory otherwise
	var dir directory.Directory
	if cfg.DatabaseURL != "" {
		pg, err := directory.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("session directory unavailable", zap.Error(err))
		}
		dir = pg
	} else {
		dir = directory.NewMemory()
		logger.Info("using in-memory session directory")
	}
	defer dir.Close()

	// Provisioner: remote API when a key is configured, local Docker otherwise
	var prov provision.Provisioner
	if cfg.UseRemoteProvisioner() {
		prov = provision.NewBrowserbase(cfg.BrowserbaseAPIURL, cfg.BrowserbaseAPIKey, cfg.BrowserbaseProjectID)
	} else {
		local, err := provision.NewLocal()
		if err != nil {
			logger.Fatal("local provisioner unavailable", zap.Error(err))
		}
		defer local.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		if err := local.EnsureImage(ctx); err != nil {
			cancel()
			logger.Fatal("chrome image unavailable", zap.Error(err))
		}
		cancel()
		prov = local
	}

	logs := logbuf.New(cfg.LogBufferSize)
	mgr := session.NewManager(prov, dir, logger)
	fwd := proxy.NewForwarder(cfg.BackendBaseURL, logger)
	debug := proxy.NewDebugProxy(logger)
	rateLimiter := ratelimit.NewLimiter(120, 20)

	handler := api.NewHandler(mgr, dir, prov, fwd, debug, logs, logger)
	router := handler.SetupRoutes(rateLimiter)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Retention sweep: flip stale running records to expired
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	if pg, ok := dir.(*directory.Postgres); ok {
		go runRetentionSweep(sweepCtx, pg, cfg.SessionRetention, logger)
	}

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
	mgr.CloseAll(ctx)
	logger.Info("server stopped")
}

// runRetentionSweep periodically expires directory records that have been
// untouched past the retention window.
func runRetentionSweep(ctx context.Context, pg *directory.Postgres, retention time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := pg.ExpireOlderThan(ctx, time.Now().Add(-retention))
			if err != nil {
				logger.Warn("retention sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("expired stale sessions", zap.Int64("count", n))
			}
		}
	}
}
