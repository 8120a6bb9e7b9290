package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/lanternchat/streamhub/internal/api"
	"github.com/lanternchat/streamhub/internal/archive"
	"github.com/lanternchat/streamhub/internal/config"
	"github.com/lanternchat/streamhub/internal/database"
	"github.com/lanternchat/streamhub/internal/metrics"
	"github.com/lanternchat/streamhub/internal/model"
	"github.com/lanternchat/streamhub/internal/poller"
	"github.com/lanternchat/streamhub/internal/session"
	"github.com/lanternchat/streamhub/internal/transport"
	"github.com/lanternchat/streamhub/internal/version"
	"github.com/lanternchat/streamhub/internal/wire"
)

func main() {
	configPath := flag.String("config", "configs/streamhub.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting streamhub",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"directory_url", cfg.Directory.BaseURL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	mtr := metrics.New()

	// Directory client
	client := api.NewClient(
		cfg.Directory.BaseURL,
		cfg.Directory.AuthToken,
		api.WithLogger(logger),
		api.WithTimeout(cfg.Directory.Timeout),
		api.WithRetries(cfg.Directory.MaxRetries, time.Second),
	)

	// Transcript archive (optional)
	var pool *pgxpool.Pool
	var transcripts *archive.GrowableBuffer[model.Envelope]
	var writer *archive.TranscriptWriter
	if cfg.Archive.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Postgres.Host,
			"port", cfg.Database.Postgres.Port,
			"database", cfg.Database.Postgres.Name,
		)

		pool, err = database.Connect(ctx, cfg.Database.Postgres)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		logger.Info("database connected")

		transcripts = archive.NewGrowableBuffer[model.Envelope](cfg.Archive.BufferSize)
		writer = archive.NewTranscriptWriter(cfg.Archive, transcripts, pool, logger)
		writer.OnFlush(func(inserted int) {
			mtr.RecordArchived(inserted)
			mtr.RecordArchiveFlush()
		})
	}

	// Session multiplexer over per-session websockets
	factory := transport.NewWSFactory(transport.WSConfig{
		URLTemplate:      cfg.Stream.URLTemplate,
		AuthToken:        cfg.Directory.AuthToken,
		HandshakeTimeout: cfg.Stream.HandshakeTimeout,
		WriteTimeout:     cfg.Stream.WriteTimeout,
		PingInterval:     cfg.Stream.PingInterval,
		PingTimeout:      cfg.Stream.PingTimeout,
	}, logger)

	mux := session.NewMux(ctx, session.Config{
		Manager: session.ManagerConfig{
			BaseDelay:            cfg.Sessions.ReconnectBaseDelay,
			MaxDelay:             cfg.Sessions.ReconnectMaxDelay,
			MaxAttempts:          cfg.Sessions.MaxReconnectAttempts,
			MaxFrameSize:         cfg.Sessions.MaxFrameSize,
			TextBufferSize:       cfg.Sessions.TextBufferSize,
			CompressThreshold:    cfg.Sessions.CompressThreshold,
			BackpressureInterval: cfg.Sessions.BackpressureInterval,
		},
	}, factory, nil, logger)

	mux.OnMessage(func(env model.Envelope) {
		if env.FromText {
			mtr.RecordTextMessage(env.WireBytes)
		} else {
			mtr.RecordBinaryFrame(env.WireBytes, env.Compressed)
		}
		if transcripts != nil && env.Kind == model.KindChat {
			if !transcripts.Send(env) {
				logger.Warn("transcript buffer rejected envelope", "session_id", env.SessionID)
			}
		}
	})

	mux.OnNotice(func(n session.Notice) {
		switch n.Kind {
		case session.NoticeReconnecting:
			mtr.RecordReconnect()
		case session.NoticeReconnectExhausted:
			mtr.RecordReconnectExhausted()
			logger.Error("session permanently disconnected",
				"session_id", n.SessionID,
				"attempts", n.Attempt,
			)
		case session.NoticeOverflow:
			mtr.RecordFault(n.Err)
		}
		mtr.SetLiveSessions(mux.Len())
	})

	mux.OnDecodeFault(func(f *wire.DecodeFault) {
		mtr.RecordFault(f)
	})

	// Directory poller keeps the live session set in sync
	syncer := poller.New(poller.Config{
		Interval:    cfg.Poller.Interval,
		Concurrency: cfg.Poller.Concurrency,
	}, client, mux, logger)

	// Metrics and health server
	httpMux := http.NewServeMux()
	httpMux.Handle(cfg.Metrics.Path, mtr.Handler())
	httpMux.Handle("/health", healthHandler(pool, mux, writer))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: httpMux,
	}

	// Start components
	if writer != nil {
		if err := writer.Start(ctx); err != nil {
			logger.Error("failed to start transcript writer", "error", err)
			os.Exit(1)
		}
	}
	if err := syncer.Start(ctx); err != nil {
		logger.Error("failed to start directory poller", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		logger.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := syncer.Stop(shutdownCtx); err != nil {
			logger.Warn("poller shutdown incomplete", "error", err)
		}
		mux.CloseAll()
		if writer != nil {
			if err := writer.Stop(shutdownCtx); err != nil {
				logger.Warn("transcript writer shutdown incomplete", "error", err)
			}
		}
		return server.Shutdown(shutdownCtx)
	})

	logger.Info("streamhub running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	if err := g.Wait(); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("streamhub stopped")
}

// healthHandler reports component health as JSON.
func healthHandler(pool *pgxpool.Pool, mux *session.Mux, writer *archive.TranscriptWriter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		// Check database
		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["postgres"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["postgres"] = "connected"
			}
		}

		// Check live sessions
		health.Components["sessions"] = map[string]interface{}{
			"live": mux.Len(),
		}

		// Check transcript writer
		if writer != nil {
			stats := writer.Stats()
			health.Components["transcript_writer"] = map[string]interface{}{
				"inserts": stats.Inserts,
				"errors":  stats.Errors,
				"flushes": stats.Flushes,
			}
		}

		// Set response
		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})
}
