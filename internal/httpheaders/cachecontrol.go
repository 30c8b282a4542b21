package httpheaders

import (
	"net/http"
	"strings"
)

// CacheControl holds the response directives that decide whether a shared
// cache may keep a response (RFC 9111 section 5.2.2).
type CacheControl struct {
	NoStore        bool
	Private        bool
	Public         bool
	MustRevalidate bool
	SMaxAge        bool
}

func ParseCacheControl(values []string) CacheControl {
	directives := CacheControl{}

	for _, value := range values {
		for directive := range strings.SplitSeq(value, ",") {
			key, _, _ := strings.Cut(strings.TrimSpace(directive), "=")

			switch strings.ToLower(key) {
			case "no-store":
				directives.NoStore = true
			// Qualified private is treated as unqualified, which is stricter
			case "private":
				directives.Private = true
			case "public":
				directives.Public = true
			case "must-revalidate":
				directives.MustRevalidate = true
			case "s-maxage":
				directives.SMaxAge = true
			}
		}
	}

	return directives
}

// SharedCacheable reports whether a response can be kept by a cache answering
// several clients. It follows RFC 9111 section 3, and also rejects responses
// setting cookies since those would be replayed to every client.
func SharedCacheable(reqHeaders, respHeaders http.Header) bool {
	directives := ParseCacheControl(respHeaders.Values("Cache-Control"))

	if directives.NoStore || directives.Private {
		return false
	}

	if _, ok := respHeaders["Set-Cookie"]; ok {
		return false
	}

	if _, ok := reqHeaders["Authorization"]; ok {
		return directives.Public || directives.MustRevalidate || directives.SMaxAge
	}

	return true
}
