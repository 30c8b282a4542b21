// Package network builds the client used to reach the storefront origin.
package network

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/dnscache"
	"github.com/rs/zerolog"

	"github.com/benjaminschubert/offcache/internal/httpheaders"
)

const (
	resolverRefreshInterval = 5 * time.Minute
	maxRedirects            = 10
)

var ErrTooManyRedirects = errors.New("stopped after too many redirects")

func NewTransport(resolver *dnscache.Resolver) *http.Transport {
	t := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConnsPerHost:   100,
		MaxConnsPerHost:       200,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if resolver != nil {
		t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}

			var d net.Dialer
			var conn net.Conn
			for _, ip := range ips {
				conn, err = d.DialContext(ctx, network, net.JoinHostPort(ip, port))
				if err == nil {
					return conn, nil
				}
			}
			return nil, err
		}
	}
	return t
}

// NewClient returns a client whose DNS answers are cached. Redirects of
// navigations are returned as is, for the browser to follow and display the
// right address. Other redirects are followed, the final URL of a response
// is then in its Request.
func NewClient(resolver *dnscache.Resolver) *http.Client {
	return &http.Client{
		Transport:     NewTransport(resolver),
		CheckRedirect: checkRedirect,
	}
}

func checkRedirect(_ *http.Request, via []*http.Request) error {
	if httpheaders.IsNavigation(via[0].Header) {
		return http.ErrUseLastResponse
	}
	if len(via) >= maxRedirects {
		return ErrTooManyRedirects
	}
	return nil
}

// RefreshResolver drops stale DNS entries periodically until ctx is done.
func RefreshResolver(ctx context.Context, resolver *dnscache.Resolver, logger *zerolog.Logger) {
	ticker := time.NewTicker(resolverRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resolver.Refresh(true)
			logger.Debug().Msg("DNS cache refreshed")
		}
	}
}
