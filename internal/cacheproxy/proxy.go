package cacheproxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/benjaminschubert/offcache/internal/storage"
)

var ErrPrecacheStatus = errors.New("pre-cached asset did not return 200")

const (
	StatusHit         = "hit"
	StatusMiss        = "miss"
	StatusUncacheable = "uncacheable"
	StatusBypass      = "bypass"
	StatusOffline     = "offline"
	StatusDegraded    = "degraded"
	StatusError       = "error"
)

// Fetcher is the network the proxy sits in front of.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

type garbageCollector interface {
	CollectGarbage(ctx context.Context, logger *zerolog.Logger) (int64, error)
}

type Proxy struct {
	id      string
	conf    Config
	storage storage.Storage
	network Fetcher
	logger  *zerolog.Logger
	metrics *Metrics
	notify  func(r *http.Request, status string)
	tracer  trace.Tracer

	state       atomic.Int32
	skipWaiting atomic.Bool

	// writesLock orders new detached writes against Wait.
	writesLock sync.RWMutex
	writes     sync.WaitGroup
}

func New(
	conf Config,
	store storage.Storage,
	network Fetcher,
	logger *zerolog.Logger,
	metrics *Metrics,
	notify func(r *http.Request, status string),
) *Proxy {
	id := xid.New().String()
	l := logger.With().Str("proxy", id).Logger()

	if notify == nil {
		notify = func(*http.Request, string) {}
	}

	return &Proxy{
		id:      id,
		conf:    conf,
		storage: store,
		network: network,
		logger:  &l,
		metrics: metrics,
		notify:  notify,
		tracer:  otel.Tracer("github.com/benjaminschubert/offcache/internal/cacheproxy"),
	}
}

func (p *Proxy) ID() string {
	return p.id
}

func (p *Proxy) State() State {
	return State(p.state.Load())
}

// SkipWaiting reports whether the instance asked to be activated without
// waiting for the previous one to be released.
func (p *Proxy) SkipWaiting() bool {
	return p.skipWaiting.Load()
}

func (p *Proxy) transition(from, to State) error {
	if !p.state.CompareAndSwap(int32(from), int32(to)) {
		return fmt.Errorf("%w: cannot go to %s from %s", ErrInvalidTransition, to, p.State())
	}
	p.metrics.transitioned(to)
	p.logger.Debug().Stringer("state", to).Msg("lifecycle transition")
	return nil
}

// Install pre-populates the static generation. A failure to do so is logged
// and never prevents the instance from moving on.
func (p *Proxy) Install(ctx context.Context) error {
	if err := p.transition(Parsed, Installing); err != nil {
		return err
	}

	ctx, span := p.tracer.Start(ctx, "cacheproxy.install")
	defer span.End()

	if err := p.precache(ctx); err != nil {
		span.RecordError(err)
		p.logger.Warn().
			Err(err).
			Str("generation", p.conf.StaticCache).
			Msg("unable to pre-cache static assets, continuing installation")
	} else {
		p.logger.Info().
			Str("generation", p.conf.StaticCache).
			Int("assets", len(p.conf.Precache)).
			Msg("static assets pre-cached")
	}

	p.skipWaiting.Store(true)
	return p.transition(Installing, Installed)
}

func (p *Proxy) precache(ctx context.Context) error {
	gen, err := p.storage.Open(ctx, p.conf.StaticCache)
	if err != nil {
		return err
	}

	// Bodies are read after all fetches returned, so this context must only
	// be canceled on failure.
	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	items := make([]storage.Item, len(p.conf.Precache))
	var group errgroup.Group

	for i, raw := range p.conf.Precache {
		group.Go(func() error {
			item, err := p.fetchAsset(fetchCtx, raw)
			if err != nil {
				cancel()
				return err
			}
			items[i] = item
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		for _, item := range items {
			if item.Response != nil {
				_ = item.Response.Body.Close()
			}
		}
		return err
	}

	return gen.PutAll(items)
}

func (p *Proxy) fetchAsset(ctx context.Context, raw string) (storage.Item, error) {
	target, err := p.conf.resolve(nil, raw)
	if err != nil {
		return storage.Item{}, fmt.Errorf("invalid asset %q: %w", raw, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return storage.Item{}, err
	}

	resp, err := p.network.Do(req)
	if err != nil {
		return storage.Item{}, fmt.Errorf("unable to fetch %s: %w", target, err)
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return storage.Item{}, fmt.Errorf("%w: %s returned %d", ErrPrecacheStatus, target, resp.StatusCode)
	}
	if p.conf.Shared {
		resp.Header.Del("Set-Cookie")
	}

	return storage.Item{Request: req, Response: resp}, nil
}

// Activate removes every generation that is not current, then starts
// intercepting requests. Cleanup failures are logged only.
func (p *Proxy) Activate(ctx context.Context) error {
	if err := p.transition(Installed, Activating); err != nil {
		return err
	}

	ctx, span := p.tracer.Start(ctx, "cacheproxy.activate")
	defer span.End()

	if err := p.sweep(ctx); err != nil {
		span.RecordError(err)
		p.logger.Warn().Err(err).Msg("unable to list generations, skipping cleanup")
	}

	return p.transition(Activating, Activated)
}

func (p *Proxy) sweep(ctx context.Context) error {
	names, err := p.storage.Keys(ctx)
	if err != nil {
		return err
	}

	for _, name := range names {
		if p.conf.isCurrent(name) {
			continue
		}

		deleted, err := p.storage.Delete(ctx, name)
		p.metrics.swept(err)

		switch {
		case err != nil:
			p.logger.Warn().Err(err).Str("generation", name).Msg("unable to delete stale generation")
		case deleted:
			p.logger.Info().Str("generation", name).Msg("deleted stale generation")
		}
	}

	if gc, ok := p.storage.(garbageCollector); ok {
		removed, err := gc.CollectGarbage(ctx, p.logger)
		if err != nil {
			p.logger.Warn().Err(err).Msg("unable to collect unreferenced bodies")
		} else {
			p.logger.Debug().Int64("removed", removed).Msg("unreferenced bodies collected")
		}
	}

	return nil
}

// Wait blocks until every detached cache write finished.
func (p *Proxy) Wait() {
	p.writesLock.Lock()
	defer p.writesLock.Unlock()

	p.writes.Wait()
}

func (p *Proxy) detach(task func()) {
	p.writesLock.RLock()
	p.writes.Add(1)
	p.writesLock.RUnlock()

	go func() {
		defer p.writes.Done()
		task()
	}()
}

// Retire marks the instance as replaced and waits for its pending writes.
func (p *Proxy) Retire() {
	p.markRedundant()
	p.Wait()
}

func (p *Proxy) markRedundant() {
	previous := State(p.state.Swap(int32(Redundant)))
	if previous != Redundant {
		p.metrics.transitioned(Redundant)
		p.logger.Debug().Stringer("previous", previous).Msg("proxy retired")
	}
}

func (p *Proxy) loggerFor(req *http.Request) *zerolog.Logger {
	if logger := hlog.FromRequest(req); logger.GetLevel() != zerolog.Disabled {
		return logger
	}
	return p.logger
}

func (p *Proxy) report(req *http.Request, span trace.Span, status string) {
	span.SetAttributes(attribute.String("offcache.status", status))
	if status == StatusError {
		span.SetStatus(codes.Error, "network failure")
	}
	p.notify(req, status)
}
