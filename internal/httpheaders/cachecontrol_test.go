package httpheaders_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/benjaminschubert/offcache/internal/httpheaders"
)

func TestParseCacheControl(t *testing.T) {
	t.Parallel()

	directives := httpheaders.ParseCacheControl(
		[]string{`max-age=60, Private="Set-Cookie"`, "s-maxage=30"},
	)

	assert.Equal(t, httpheaders.CacheControl{Private: true, SMaxAge: true}, directives)
}

func TestSharedCacheable(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name     string
		req      http.Header
		resp     http.Header
		expected bool
	}{
		{"plain", http.Header{}, http.Header{"Content-Type": {"text/html"}}, true},
		{"cookies in request only", http.Header{"Cookie": {"session=alice"}}, http.Header{}, true},
		{"sets a cookie", http.Header{}, http.Header{"Set-Cookie": {"session=alice"}}, false},
		{"private", http.Header{}, http.Header{"Cache-Control": {"private, max-age=60"}}, false},
		{"no-store", http.Header{}, http.Header{"Cache-Control": {"no-store"}}, false},
		{"authorized", http.Header{"Authorization": {"Basic YQ=="}}, http.Header{}, false},
		{
			"authorized and public",
			http.Header{"Authorization": {"Basic YQ=="}},
			http.Header{"Cache-Control": {"public"}},
			true,
		},
		{
			"authorized and shared max age",
			http.Header{"Authorization": {"Basic YQ=="}},
			http.Header{"Cache-Control": {"s-maxage=60"}},
			true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.expected, httpheaders.SharedCacheable(tc.req, tc.resp))
		})
	}
}

func TestIsNavigation(t *testing.T) {
	t.Parallel()

	assert.True(t, httpheaders.IsNavigation(http.Header{"Sec-Fetch-Mode": {"navigate"}}))
	assert.False(t, httpheaders.IsNavigation(
		http.Header{"Sec-Fetch-Mode": {"cors"}, "Accept": {"text/html"}},
	))
	assert.True(t, httpheaders.IsNavigation(http.Header{"Accept": {"text/html,*/*;q=0.8"}}))
	assert.False(t, httpheaders.IsNavigation(http.Header{"Accept": {"application/json"}}))
}
