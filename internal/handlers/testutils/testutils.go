package testutils

import (
	"net/http"
	"net/url"
	"path"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benjaminschubert/offcache/internal/cacheproxy"
	"github.com/benjaminschubert/offcache/internal/network"
	"github.com/benjaminschubert/offcache/internal/storage"
	tst "github.com/benjaminschubert/offcache/internal/testutils"
	"github.com/benjaminschubert/offcache/internal/units"
)

var TestLogger = tst.TestLogger

// NewDisk opens a cache storage living for the duration of the test.
func NewDisk(t *testing.T, logger *zerolog.Logger) *storage.Disk {
	t.Helper()

	disk, err := storage.NewDisk(path.Join(t.TempDir(), "cache"), units.Bytes{Bytes: 1024 * 1024}, logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, disk.Close())
	})

	return disk
}

// NewRegistration returns a registration with an active proxy for origin,
// shared by every client like in production.
func NewRegistration(
	t *testing.T,
	origin *url.URL,
	disk *storage.Disk,
	client cacheproxy.Fetcher,
	logger *zerolog.Logger,
	notify func(r *http.Request, status string),
) *cacheproxy.Registration {
	t.Helper()

	if client == nil {
		client = network.NewClient(nil)
	}

	registration := cacheproxy.NewRegistration(client, logger)
	t.Cleanup(registration.Close)

	conf := cacheproxy.DefaultConfig(origin)
	conf.Shared = true

	proxy := cacheproxy.New(conf, disk, client, logger, nil, notify)
	require.NoError(t, registration.Register(t.Context(), proxy))

	return registration
}
