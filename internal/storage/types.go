package storage

import (
	"net/http"
	"time"
)

//go:generate go tool github.com/tinylib/msgp -io=false -tests=false
//msgp:replace http.Header with:map[string][]string
//msgp:tuple StoredResponse GenerationRecord

// StoredResponse is the snapshot of a response kept in a generation. The body
// lives in the file cache, under ContentHash.
type StoredResponse struct {
	ContentHash string
	StatusCode  int
	Headers     http.Header
	URL         string
	Size        int64
	StoredAt    time.Time
}

type GenerationRecord struct {
	Name      string
	CreatedAt time.Time
}
