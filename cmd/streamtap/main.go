// streamtap attaches to live chat sessions and prints decoded envelopes
// to the console.
// Usage: go run ./cmd/streamtap --config configs/streamhub.local.yaml
//
// With --session only that session is tapped; otherwise every session
// the directory reports as active is attached.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/lanternchat/streamhub/internal/api"
	"github.com/lanternchat/streamhub/internal/config"
	"github.com/lanternchat/streamhub/internal/model"
	"github.com/lanternchat/streamhub/internal/session"
	"github.com/lanternchat/streamhub/internal/transport"
	"github.com/lanternchat/streamhub/internal/wire"
)

func main() {
	configPath := flag.String("config", "configs/streamhub.example.yaml", "path to config file")
	sessionID := flag.String("session", "", "tap a single session id")
	backlog := flag.Int("backlog", 0, "print the last N stored messages before tapping (requires --session)")
	verbose := flag.Bool("verbose", false, "print full envelope JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	client := api.NewClient(
		cfg.Directory.BaseURL,
		cfg.Directory.AuthToken,
		api.WithLogger(logger),
		api.WithTimeout(cfg.Directory.Timeout),
	)

	// Resolve the session set to tap
	var ids []string
	if *sessionID != "" {
		ids = []string{*sessionID}
	} else {
		sessions, err := client.GetAllSessions(ctx)
		if err != nil {
			logger.Error("failed to list directory", "error", err)
			os.Exit(1)
		}
		for _, s := range sessions {
			if s.Active() {
				ids = append(ids, s.ID)
			}
		}
	}
	if len(ids) == 0 {
		logger.Error("no active sessions to tap")
		os.Exit(1)
	}
	logger.Info("tapping sessions", "count", len(ids))

	// Replay stored history first, oldest first
	if *backlog > 0 && *sessionID != "" {
		resp, err := client.GetBacklog(ctx, *sessionID, api.GetBacklogOptions{Limit: *backlog})
		if err != nil {
			logger.Warn("backlog fetch failed", "error", err)
		} else {
			for _, env := range resp.Messages {
				printEnvelope(env, *verbose)
			}
			fmt.Printf("--- end of backlog (%d messages) ---\n", len(resp.Messages))
		}
	}

	// Session multiplexer
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
			BaseDelay:      cfg.Sessions.ReconnectBaseDelay,
			MaxDelay:       cfg.Sessions.ReconnectMaxDelay,
			MaxAttempts:    cfg.Sessions.MaxReconnectAttempts,
			MaxFrameSize:   cfg.Sessions.MaxFrameSize,
			TextBufferSize: cfg.Sessions.TextBufferSize,
		},
	}, factory, nil, logger)

	var envelopes, faults atomic.Int64

	mux.OnMessage(func(env model.Envelope) {
		envelopes.Add(1)
		printEnvelope(env, *verbose)
	})

	mux.OnNotice(func(n session.Notice) {
		fmt.Printf("[NOTICE] session=%s kind=%s code=%d attempt=%d delay=%s\n",
			n.SessionID, n.Kind, n.CloseCode, n.Attempt, n.Delay)
	})

	mux.OnDecodeFault(func(f *wire.DecodeFault) {
		faults.Add(1)
		fmt.Printf("[FAULT] kind=%s detail=%s\n", f.Kind, f.Detail)
	})

	for _, id := range ids {
		mux.Ensure(id)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logger.Info("stats",
					"sessions", mux.Len(),
					"envelopes", envelopes.Load(),
					"faults", faults.Load(),
				)
			}
		}
	}()

	logger.Info("tap running - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")
	mux.CloseAll()

	logger.Info("shutdown complete")
}

func printEnvelope(env model.Envelope, verbose bool) {
	if verbose {
		data, _ := json.MarshalIndent(env, "", "  ")
		fmt.Printf("[%s] %s\n", env.Kind, data)
		return
	}

	switch env.Kind {
	case model.KindChat:
		fmt.Printf("[CHAT] session=%s seq=%d sender=%s body=%q\n",
			env.SessionID, env.Seq, env.Chat.Sender, env.Chat.Body)
	case model.KindEvent:
		fmt.Printf("[EVENT] session=%s name=%s data=%v\n",
			env.SessionID, env.Event.Name, env.Event.Data)
	case model.KindControl:
		fmt.Printf("[CONTROL] session=%s op=%s\n", env.SessionID, env.Control.Op)
	case model.KindError:
		fmt.Printf("[ERROR] session=%s code=%s message=%s\n",
			env.SessionID, env.Error.Code, env.Error.Message)
	}
}
