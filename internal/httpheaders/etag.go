// Package httpheaders holds helpers for the header fields the storefront
// proxy has to interpret or strip.
package httpheaders

import (
	"net/http"
	"strings"
)

// EtagsMatch compares two entity tags weakly, as If-None-Match requires.
func EtagsMatch(etag1, etag2 string) bool {
	return strings.TrimPrefix(etag1, "W/") == strings.TrimPrefix(etag2, "W/")
}

// MatchesConditional reports whether a response satisfies the conditional
// headers of the request, meaning a 304 can be sent instead.
func MatchesConditional(reqHeaders, respHeaders http.Header) bool {
	if etag := respHeaders.Get("Etag"); etag != "" {
		if candidates := reqHeaders.Values("If-None-Match"); len(candidates) != 0 {
			for _, value := range candidates {
				for candidate := range strings.SplitSeq(value, ",") {
					candidate = strings.TrimSpace(candidate)
					if candidate == "*" || EtagsMatch(etag, candidate) {
						return true
					}
				}
			}
			return false
		}
	}

	lastModified := respHeaders.Get("Last-Modified")
	return lastModified != "" && lastModified == reqHeaders.Get("If-Modified-Since")
}
