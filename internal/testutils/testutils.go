package testutils

import (
	"net/http"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func TestLogger(tb testing.TB) *zerolog.Logger {
	tb.Helper()

	logger := zerolog.New(zerolog.NewConsoleWriter(zerolog.ConsoleTestWriter(tb))).
		Level(zerolog.DebugLevel)
	return &logger
}

// RequestCounter counts requests reaching an upstream, per path.
type RequestCounter struct {
	calls map[string]int
	lock  sync.Mutex
}

func NewRequestCounter() *RequestCounter {
	return &RequestCounter{calls: make(map[string]int)}
}

func (c *RequestCounter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.lock.Lock()
		c.calls[r.URL.Path] += 1
		c.lock.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (c *RequestCounter) Count(path string) int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.calls[path]
}

func (c *RequestCounter) Total() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	total := 0
	for _, v := range c.calls {
		total += v
	}
	return total
}
