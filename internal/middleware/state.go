package middleware

import (
	"context"
	"net/http"
)

type ctxStateKeyStruct struct{}

var ctxStateKey = ctxStateKeyStruct{}

type RequestState struct {
	cache string
}

func initializeState(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxStateKey, &RequestState{})
}

// SetCacheState records how the cache handled the request. Requests that did
// not go through StateHandler are ignored.
func SetCacheState(r *http.Request, value string) {
	if state, ok := r.Context().Value(ctxStateKey).(*RequestState); ok {
		state.cache = value
	}
}

func GetCacheState(ctx context.Context) string {
	state, ok := ctx.Value(ctxStateKey).(*RequestState)
	if !ok || state.cache == "" {
		return "N/A"
	}
	return state.cache
}

func StateHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(initializeState(r.Context()))
		next.ServeHTTP(w, r)
	})
}
