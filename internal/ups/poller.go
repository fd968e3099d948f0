package ups

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// PollerConfig holds the poller's tuning knobs.
type PollerConfig struct {
	Interval      time.Duration
	DeviceTimeout time.Duration
	// Concurrency bounds parallel per-device fetches; <= 0 means unbounded.
	Concurrency int
	// Watched is the field list for the diff PollOnce returns.
	Watched []string
}

const (
	defaultInterval      = 10 * time.Second
	defaultDeviceTimeout = 5 * time.Second
)

// Poller periodically fetches the device source, builds a snapshot and
// publishes it to the store and hub. Polls never overlap: a tick that
// arrives while a poll is in flight is skipped.
type Poller struct {
	source DeviceSource
	store  *Store
	hub    *Hub
	cfg    PollerConfig
	logger *slog.Logger
	now    func() time.Time

	inFlight  atomic.Bool
	refreshCh chan struct{}
	wg        sync.WaitGroup
}

// NewPoller returns a Poller. hub may be nil when nobody subscribes.
func NewPoller(src DeviceSource, store *Store, hub *Hub, cfg PollerConfig, logger *slog.Logger) *Poller {
	if src == nil {
		panic("device source must not be nil")
	}
	if store == nil {
		panic("store must not be nil")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.DeviceTimeout <= 0 {
		cfg.DeviceTimeout = defaultDeviceTimeout
	}
	if cfg.Watched == nil {
		cfg.Watched = DefaultWatchedFields
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Poller{
		source:    src,
		store:     store,
		hub:       hub,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		refreshCh: make(chan struct{}, 1),
	}
}

// ErrPollInFlight is returned by PollOnce when another poll is running.
var ErrPollInFlight = errors.New("poll already in flight")

// TriggerRefresh requests an immediate poll. It never blocks.
func (p *Poller) TriggerRefresh() {
	select {
	case p.refreshCh <- struct{}{}:
	default:
	}
}

// Run polls immediately and then on every interval until ctx is done. It
// waits for any in-flight poll to finish before returning.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	defer p.wg.Wait()

	p.start(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.start(ctx)
		case <-p.refreshCh:
			p.start(ctx)
		}
	}
}

// start launches a poll unless one is already running.
func (p *Poller) start(ctx context.Context) {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.logger.Debug("poll skipped; previous poll still in flight")
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.inFlight.Store(false)
		if _, err := p.poll(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("poll failed; keeping previous snapshot", "err", err)
		}
	}()
}

// PollOnce runs a single poll synchronously and returns the diff against
// the previous snapshot for the configured watched fields.
func (p *Poller) PollOnce(ctx context.Context) (DiffResult, error) {
	if !p.inFlight.CompareAndSwap(false, true) {
		return DiffResult{}, ErrPollInFlight
	}
	defer p.inFlight.Store(false)
	return p.poll(ctx)
}

func (p *Poller) poll(ctx context.Context) (DiffResult, error) {
	start := p.now()
	raw, err := FetchAll(ctx, p.source, p.cfg.DeviceTimeout, p.cfg.Concurrency)
	if err != nil {
		return DiffResult{}, err
	}
	// Cancelled mid-poll: discard partial results.
	if err := ctx.Err(); err != nil {
		return DiffResult{}, err
	}

	snap := Build(p.now(), raw, p.logger)
	prev := p.store.Publish(snap)
	if p.hub != nil {
		p.hub.Publish(prev, snap)
	}

	res := Diff(prev, snap, p.cfg.Watched)
	p.logger.Debug("poll complete",
		"devices", snap.Len(),
		"changed", res.Changed,
		"changed_devices", res.ChangedDeviceIDs,
		"duration", p.now().Sub(start),
	)
	return res, nil
}
