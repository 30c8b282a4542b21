package server

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/benjaminschubert/offcache/internal/cacheproxy"
	"github.com/benjaminschubert/offcache/internal/config"
	"github.com/benjaminschubert/offcache/internal/middleware"
	"github.com/benjaminschubert/offcache/internal/network"
	"github.com/benjaminschubert/offcache/internal/testutils"
)

func noEnv(string) (string, bool) { return "", false }

func TestServerInitialization(t *testing.T) {
	t.Parallel()

	logger := testutils.TestLogger(t)

	conf, err := config.Default(noEnv)
	require.NoError(t, err)
	conf.EnableProfiling = true

	registration := cacheproxy.NewRegistration(network.NewClient(nil), logger)
	srv := New(conf, registration, nil, &middleware.Statistics{}, logger, prometheus.NewRegistry())

	require.Len(t, srv.servers, 2)

	addresses := make([]string, 0, len(srv.servers))
	for _, s := range srv.servers {
		addresses = append(addresses, s.server.Addr)
	}
	require.Equal(t, []string{"localhost:3150", "localhost:3151"}, addresses)
}

func TestServerWithoutAdminInterface(t *testing.T) {
	t.Parallel()

	logger := testutils.TestLogger(t)

	conf, err := config.Default(noEnv)
	require.NoError(t, err)
	conf.AdminInterface = ""
	conf.EnableProfiling = true

	registration := cacheproxy.NewRegistration(network.NewClient(nil), logger)
	srv := New(conf, registration, nil, &middleware.Statistics{}, logger, prometheus.NewRegistry())

	require.Len(t, srv.servers, 1)
}

func TestServerStopsWithContext(t *testing.T) {
	t.Parallel()

	logger := testutils.TestLogger(t)

	conf, err := config.Default(noEnv)
	require.NoError(t, err)
	conf.Host = "127.0.0.1"
	conf.Port = 0
	conf.AdminInterface = ""
	conf.Origin = config.SerializableURL{URL: &url.URL{Scheme: "http", Host: "127.0.0.1:1"}}

	registration := cacheproxy.NewRegistration(network.NewClient(nil), logger)
	srv := New(conf, registration, nil, &middleware.Statistics{}, logger, prometheus.NewRegistry())

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, nil) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
