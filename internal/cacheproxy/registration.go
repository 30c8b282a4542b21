package cacheproxy

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Registration hosts successive versions of the proxy. At most one version is
// active and serves requests, and at most one more is installed and waiting.
type Registration struct {
	network Fetcher
	logger  *zerolog.Logger

	active atomic.Pointer[Proxy]

	lock    sync.Mutex
	waiting *Proxy

	// retiring tracks the pending writes of replaced versions.
	retiring sync.WaitGroup
}

func NewRegistration(network Fetcher, logger *zerolog.Logger) *Registration {
	return &Registration{network: network, logger: logger}
}

// Register installs the new version while the current one keeps serving.
// Once installed, it replaces the active one if it asked to skip waiting or
// if nothing is active yet.
func (r *Registration) Register(ctx context.Context, proxy *Proxy) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if err := proxy.Install(ctx); err != nil {
		return err
	}

	if r.waiting != nil {
		r.logger.Debug().Str("proxy", r.waiting.ID()).Msg("discarding waiting proxy")
		r.retire(r.waiting)
		r.waiting = nil
	}

	current := r.active.Load()
	if current != nil && !proxy.SkipWaiting() {
		r.logger.Info().Str("proxy", proxy.ID()).Msg("proxy installed, waiting for activation")
		r.waiting = proxy
		return nil
	}

	if err := proxy.Activate(ctx); err != nil {
		return err
	}

	r.active.Store(proxy)
	r.logger.Info().Str("proxy", proxy.ID()).Msg("proxy activated")

	if current != nil {
		r.retire(current)
	}

	return nil
}

// retire stops the proxy from intercepting right away, its pending writes
// are awaited in the background.
func (r *Registration) retire(proxy *Proxy) {
	proxy.markRedundant()
	r.retiring.Go(proxy.Wait)
}

func (r *Registration) Active() *Proxy {
	return r.active.Load()
}

func (r *Registration) Do(req *http.Request) (*http.Response, error) {
	if proxy := r.active.Load(); proxy != nil {
		return proxy.Do(req)
	}
	return r.network.Do(req)
}

// Close retires every hosted version, and waits for the pending writes of
// every version it ever hosted.
func (r *Registration) Close() {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.waiting != nil {
		r.retire(r.waiting)
		r.waiting = nil
	}
	if proxy := r.active.Swap(nil); proxy != nil {
		r.retire(proxy)
	}

	r.retiring.Wait()
}
