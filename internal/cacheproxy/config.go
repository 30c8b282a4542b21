package cacheproxy

import (
	"net/url"
	"slices"
)

// Config is fixed for the lifetime of a Proxy. A new version of the proxy
// comes with a new Config, and a new Proxy.
type Config struct {
	// Scope is the origin the proxy controls. Relative URLs are resolved
	// against it, and only responses coming from it are cached.
	Scope *url.URL
	// StaticCache and DynamicCache are the names of the current generations.
	StaticCache  string
	DynamicCache string
	// Precache lists the assets stored in the static generation at install.
	Precache []string
	// Responses for URLs whose path contains StaticMarker go to the static
	// generation, every other one to the dynamic generation.
	StaticMarker string
	// MaxEntrySize, when positive, skips caching responses announcing a
	// larger body.
	MaxEntrySize int64
	// Shared marks a proxy answering several clients. Responses specific to
	// one client are then never stored, and pre-cached assets are stored
	// without the cookies they set.
	Shared bool
}

func DefaultConfig(scope *url.URL) Config {
	return Config{
		Scope:        scope,
		StaticCache:  "static-v1",
		DynamicCache: "dynamic-v1",
		Precache: []string{
			"/",
			"/static/css/style.css",
			"/static/js/main.js",
			"/static/images/favicon.ico",
		},
		StaticMarker: "/static/",
	}
}

func (c Config) isCurrent(name string) bool {
	return name == c.StaticCache || name == c.DynamicCache
}

// searchOrder puts the current generations first, static before dynamic, then
// every other existing generation in the order given.
func (c Config) searchOrder(existing []string) []string {
	order := make([]string, 0, len(existing))

	for _, name := range []string{c.StaticCache, c.DynamicCache} {
		if slices.Contains(existing, name) {
			order = append(order, name)
		}
	}
	for _, name := range existing {
		if !c.isCurrent(name) {
			order = append(order, name)
		}
	}

	return order
}

func (c Config) resolve(ref *url.URL, raw string) (*url.URL, error) {
	base := c.Scope
	if base == nil {
		base = ref
	}
	if base == nil {
		return url.Parse(raw)
	}
	return base.Parse(raw)
}
