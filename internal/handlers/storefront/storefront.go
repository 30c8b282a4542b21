// Package storefront serves the storefront through the offline cache proxy.
package storefront

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/benjaminschubert/offcache/internal/handlers"
)

func RegisterHandler(origin *url.URL, handler *http.ServeMux, client handlers.Client) {
	client = &redirectRewriter{origin, client}

	handler.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		upstream := *origin
		upstream.Path = r.URL.Path
		upstream.RawPath = r.URL.RawPath
		upstream.RawQuery = r.URL.RawQuery

		handlers.Forward(w, r, upstream.String(), client)
	})
}

// redirectRewriter makes redirects to the origin relative, so browsers stay
// on the proxy.
type redirectRewriter struct {
	origin *url.URL
	client handlers.Client
}

func (c *redirectRewriter) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}

	location, err := resp.Location()
	if err != nil {
		return resp, nil
	}

	if strings.EqualFold(location.Scheme, c.origin.Scheme) &&
		strings.EqualFold(location.Host, c.origin.Host) {
		relative := url.URL{
			Path:        location.Path,
			RawPath:     location.RawPath,
			RawQuery:    location.RawQuery,
			Fragment:    location.Fragment,
			RawFragment: location.RawFragment,
		}
		if relative.Path == "" {
			relative.Path = "/"
		}
		resp.Header.Set("Location", relative.String())
	}

	return resp, nil
}
