// Package storage keeps cache generations: named buckets of request to
// response snapshots, replaced wholesale when their name changes.
package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

var (
	ErrNotFound          = errors.New("not found in cache storage")
	ErrUnsupportedMethod = errors.New("only GET requests can be cached")
	ErrInvalidName       = errors.New("invalid generation name")
)

// Storage is the registry of cache generations.
type Storage interface {
	// Open returns the generation with the given name, creating it if needed.
	Open(ctx context.Context, name string) (Generation, error)
	// Lookup returns an existing generation, or ErrNotFound.
	Lookup(ctx context.Context, name string) (Generation, error)
	// Keys lists the names of every existing generation.
	Keys(ctx context.Context) ([]string, error)
	// Delete removes a generation and all its entries. It reports whether the
	// generation existed.
	Delete(ctx context.Context, name string) (bool, error)
	// Ingest returns a reader over src storing the body as it is read. Once
	// the reader is closed, onIngest receives the stored body, or why it was
	// not stored. A body is only stored when src was read to the end.
	Ingest(src io.ReadCloser, onIngest func(Body, error), logger *zerolog.Logger) io.ReadCloser
}

type Generation interface {
	Name() string
	// Match returns the stored response for req, or ErrNotFound.
	Match(req *http.Request) (*http.Response, error)
	// Put stores resp for req, replacing any previous entry. It consumes and
	// closes the response body.
	Put(req *http.Request, resp *http.Response) error
	// PutAll stores every item or none of them.
	PutAll(items []Item) error
	// Commit stores resp for req, with a body previously returned by Ingest.
	// The body of resp is ignored.
	Commit(req *http.Request, resp *http.Response, body Body) error
}

// Body references a response body held by a Storage.
type Body struct {
	Hash string
	Size int64
}

type Item struct {
	Request  *http.Request
	Response *http.Response
}

// RequestKey identifies a request inside a generation. Fragments never reach
// the network and are not part of the key.
func RequestKey(req *http.Request) string {
	u := *req.URL
	u.Fragment = ""
	u.RawFragment = ""
	return req.Method + "+" + u.String()
}

func validateName(name string) error {
	if name == "" || strings.ContainsRune(name, 0) {
		return ErrInvalidName
	}
	return nil
}
