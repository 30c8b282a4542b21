package httpheaders

import (
	"net/http"
	"strings"
)

// RemoveHopByHop drops the fields that only apply to a single connection and
// must not be forwarded, in either direction.
func RemoveHopByHop(headers http.Header) {
	// Fields listed in Connection are hop-by-hop as well (RFC 9110 7.6.1).
	for _, value := range headers.Values("Connection") {
		for field := range strings.SplitSeq(value, ",") {
			if field = strings.TrimSpace(field); field != "" {
				headers.Del(field)
			}
		}
	}

	headers.Del("Connection")
	headers.Del("Proxy-Connection")
	headers.Del("Keep-Alive")
	headers.Del("Te")
	headers.Del("Trailer")
	headers.Del("Transfer-Encoding")
	headers.Del("Upgrade")

	headers.Del("Proxy-Authenticate")
	headers.Del("Proxy-Authentication-Info")
	headers.Del("Proxy-Authorization")
}
