package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lanternchat/streamhub/internal/api"
	"github.com/lanternchat/streamhub/internal/session"
)

// Registry is the subset of the session multiplexer the poller drives.
type Registry interface {
	Ensure(sessionID string) *session.Manager
	Close(sessionID string)
	Len() int
}

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // sync interval (default: 30s)
	Timeout     time.Duration // per-cycle directory timeout (default: 10s)
	Concurrency int           // parallel session attaches per cycle (default: 4)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		Concurrency: 4,
	}
}

// Poller periodically reconciles the live session set against the
// directory.
type Poller struct {
	cfg      Config
	client   *api.Client
	registry Registry
	logger   *slog.Logger

	// known holds the session ids this poller has attached, so a
	// session that disappears from the directory gets detached.
	known map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, client *api.Client, registry Registry, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	return &Poller{
		cfg:      cfg,
		client:   client,
		registry: registry,
		logger:   logger,
		known:    make(map[string]struct{}),
	}
}

// Start begins the sync loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("directory poller started", "interval", p.cfg.Interval)
	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("directory poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main sync loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Sync immediately on start.
	p.syncAll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.syncAll()
		}
	}
}

// syncAll performs one reconciliation cycle.
func (p *Poller) syncAll() {
	start := time.Now()

	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	sessions, err := p.client.GetAllSessions(ctx)
	if err != nil {
		p.logger.Warn("directory listing failed", "err", err)
		return
	}

	active := make(map[string]struct{})
	attached := 0
	for _, s := range sessions {
		if !s.Active() {
			continue
		}
		active[s.ID] = struct{}{}
		if _, ok := p.known[s.ID]; !ok {
			attached++
		}
		p.known[s.ID] = struct{}{}
	}

	// Attach with bounded parallelism: a cold start can face hundreds
	// of directory sessions, and each Ensure spins up a transport.
	g := new(errgroup.Group)
	g.SetLimit(p.cfg.Concurrency)
	for id := range active {
		id := id
		g.Go(func() error {
			p.registry.Ensure(id)
			return nil
		})
	}
	g.Wait()

	// Detach sessions the directory dropped.
	detached := 0
	for id := range p.known {
		if _, ok := active[id]; ok {
			continue
		}
		delete(p.known, id)
		p.registry.Close(id)
		detached++
	}

	p.logger.Info("directory sync complete",
		"directory", len(sessions),
		"active", len(active),
		"attached", attached,
		"detached", detached,
		"live", p.registry.Len(),
		"duration", time.Since(start),
	)
}
