package handlers

import (
	"io"
	"maps"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/benjaminschubert/offcache/internal/httpheaders"
)

type Client interface {
	Do(req *http.Request) (*http.Response, error)
}

// Forward sends the request to upstreamURL through client and streams the
// answer back. Network failures become a 502.
func Forward(w http.ResponseWriter, r *http.Request, upstreamURL string, client Client) {
	logger := hlog.FromRequest(r)

	upstreamReq, err := http.NewRequestWithContext(r.Context(), r.Method, upstreamURL, r.Body)
	if err != nil {
		logger.Panic().Err(err).Msg("Error generating new upstream request")
	}
	maps.Copy(upstreamReq.Header, r.Header)
	httpheaders.RemoveHopByHop(upstreamReq.Header)
	upstreamReq.ContentLength = r.ContentLength

	resp, err := client.Do(upstreamReq)
	if err != nil {
		logger.Warn().Err(err).Msg("Error forwarding request to upstream")
		http.Error(w, "upstream unreachable", http.StatusBadGateway)
		return
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Debug().Err(err).Msg("Error closing the body of the upstream response")
		}
	}()

	httpheaders.RemoveHopByHop(resp.Header)
	maps.Copy(w.Header(), resp.Header)

	if resp.StatusCode == http.StatusOK && httpheaders.MatchesConditional(r.Header, resp.Header) {
		w.Header().Del("Content-Length")
		w.WriteHeader(http.StatusNotModified)
		// Drain so that the copy kept by the cache completes.
		if _, err := io.Copy(io.Discard, resp.Body); err != nil {
			logger.Debug().Err(err).Msg("Error draining upstream response")
		}
		return
	}

	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		logger.Warn().Err(err).Msg("Error sending response to client")
	}
}
