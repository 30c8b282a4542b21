package cacheproxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/benjaminschubert/offcache/internal/httpheaders"
	"github.com/benjaminschubert/offcache/internal/storage"
)

// Do handles one request coming from a controlled page. Storage failures are
// never returned, only network ones.
func (p *Proxy) Do(req *http.Request) (*http.Response, error) {
	if p.State() != Activated || !isRetrieval(req) {
		p.notify(req, StatusBypass)
		return p.network.Do(req)
	}

	logger := p.loggerFor(req)

	ctx, span := p.tracer.Start(
		req.Context(),
		"cacheproxy.intercept",
		trace.WithAttributes(attribute.String("url.full", req.URL.String())),
	)
	defer span.End()
	req = req.WithContext(ctx)

	resp, err := p.match(req)
	if err == nil {
		logger.Debug().Msg("serving response from cache")
		p.report(req, span, StatusHit)
		return resp, nil
	}

	if !errors.Is(err, storage.ErrNotFound) {
		logger.Warn().Err(err).Msg("cache storage unavailable, fetching from network only")
		span.RecordError(err)

		resp, err := p.network.Do(req)
		if err != nil {
			p.report(req, span, StatusError)
			return nil, err
		}
		p.report(req, span, StatusDegraded)
		return resp, nil
	}

	return p.fetch(req, span, logger)
}

func (p *Proxy) fetch(req *http.Request, span trace.Span, logger *zerolog.Logger) (*http.Response, error) {
	resp, err := p.network.Do(cloneRequest(req, logger))
	if err != nil {
		if httpheaders.IsNavigation(req.Header) {
			fallback, ferr := p.matchRoot(req)
			if ferr == nil {
				logger.Info().Err(err).Msg("network unavailable, serving cached root page")
				p.report(req, span, StatusOffline)
				return fallback, nil
			}
			logger.Debug().Err(ferr).Msg("no cached root page to fall back to")
		}

		p.report(req, span, StatusError)
		return nil, err
	}

	if !p.isCacheable(req, resp) {
		logger.Debug().Int("status", resp.StatusCode).Msg("response is not cacheable")
		p.report(req, span, StatusUncacheable)
		return resp, nil
	}

	target := p.conf.DynamicCache
	if p.conf.StaticMarker != "" && strings.Contains(req.URL.Path, p.conf.StaticMarker) {
		target = p.conf.StaticCache
	}

	resp.Body = p.storeInBackground(req, resp, target, logger)
	p.report(req, span, StatusMiss)
	return resp, nil
}

// match looks for the request in the static generation, then in the dynamic
// one, then in every other existing generation by name.
func (p *Proxy) match(req *http.Request) (*http.Response, error) {
	names, err := p.storage.Keys(req.Context())
	if err != nil {
		return nil, err
	}

	for _, name := range p.conf.searchOrder(names) {
		gen, err := p.storage.Lookup(req.Context(), name)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		} else if err != nil {
			return nil, err
		}

		resp, err := gen.Match(req)
		if err == nil {
			return resp, nil
		} else if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}

	return nil, storage.ErrNotFound
}

func (p *Proxy) matchRoot(req *http.Request) (*http.Response, error) {
	root, err := p.conf.resolve(req.URL, "/")
	if err != nil {
		return nil, err
	}

	rootReq, err := http.NewRequestWithContext(req.Context(), http.MethodGet, root.String(), nil)
	if err != nil {
		return nil, err
	}

	return p.match(rootReq)
}

// storeInBackground stores the body while the caller reads it. Once the
// caller read it to the end and closed it, the entry is committed in a
// detached task.
func (p *Proxy) storeInBackground(
	req *http.Request,
	resp *http.Response,
	target string,
	logger *zerolog.Logger,
) io.ReadCloser {
	storeReq := req.Clone(context.WithoutCancel(req.Context()))
	storeResp := &http.Response{
		Status:     resp.Status,
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Request:    storeReq,
	}

	return p.storage.Ingest(
		resp.Body,
		func(body storage.Body, err error) {
			if err != nil {
				p.metrics.wrote(target, err)
				logger.Debug().Err(err).Str("generation", target).Msg("response body not stored")
				return
			}

			p.detach(func() {
				err := p.commit(storeReq, storeResp, target, body)
				p.metrics.wrote(target, err)

				if err != nil {
					logger.Debug().Err(err).Str("generation", target).Msg("unable to store response")
				} else {
					logger.Debug().Str("generation", target).Msg("response stored")
				}
			})
		},
		logger,
	)
}

func (p *Proxy) commit(req *http.Request, resp *http.Response, target string, body storage.Body) error {
	gen, err := p.storage.Open(req.Context(), target)
	if err != nil {
		return err
	}
	return gen.Commit(req, resp, body)
}

func (p *Proxy) isCacheable(req *http.Request, resp *http.Response) bool {
	if resp.StatusCode != http.StatusOK {
		return false
	}
	if p.conf.MaxEntrySize > 0 && resp.ContentLength > p.conf.MaxEntrySize {
		return false
	}

	final := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL
	}

	origin := p.conf.Scope
	if origin == nil {
		origin = req.URL
	}

	if !sameOrigin(final, origin) || !sameOrigin(req.URL, origin) {
		return false
	}

	return !p.conf.Shared || httpheaders.SharedCacheable(req.Header, resp.Header)
}

func isRetrieval(req *http.Request) bool {
	if req.Method != http.MethodGet {
		return false
	}
	return req.URL.Scheme == "http" || req.URL.Scheme == "https"
}

func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}

// cloneRequest gives the network its own copy so the caller's request stays
// usable, body included when it can be replayed.
func cloneRequest(req *http.Request, logger *zerolog.Logger) *http.Request {
	clone := req.Clone(req.Context())
	clone.RequestURI = ""

	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			logger.Debug().Err(err).Msg("unable to replay request body")
		} else {
			clone.Body = body
		}
	}

	return clone
}
