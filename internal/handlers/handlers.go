// Package handlers holds what the storefront and admin servers share.
package handlers

import (
	"net/http"
	"net/http/pprof"

	"github.com/rs/zerolog/hlog"
)

// NotImplemented answers every admin route nothing else claimed.
func NotImplemented(w http.ResponseWriter, r *http.Request) {
	hlog.FromRequest(r).Debug().Str("path", r.URL.Path).Msg("No admin handler for path")
	http.Error(w, "Not implemented", http.StatusNotImplemented)
}

// RegisterProfilingHandlers exposes pprof under prefix, which must end with a
// slash.
func RegisterProfilingHandlers(handler *http.ServeMux, prefix string) {
	handler.HandleFunc("GET "+prefix, pprof.Index)
	for name, profile := range map[string]http.HandlerFunc{
		"cmdline": pprof.Cmdline,
		"profile": pprof.Profile,
		"symbol":  pprof.Symbol,
		"trace":   pprof.Trace,
	} {
		handler.HandleFunc("GET "+prefix+name, profile)
	}
	handler.HandleFunc("POST "+prefix+"symbol", pprof.Symbol)
}
