package httpheaders

import (
	"net/http"
	"strings"
)

// IsNavigation reports whether the request loads a top level page. Browsers
// sending fetch metadata say so in Sec-Fetch-Mode, others are recognized by
// asking for HTML.
func IsNavigation(headers http.Header) bool {
	if mode := headers.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return strings.Contains(headers.Get("Accept"), "text/html")
}
