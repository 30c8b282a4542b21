package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

func newLoggingMiddleware(handler http.Handler, logger *zerolog.Logger) http.Handler {
	logHandler := hlog.NewHandler(*logger)

	correlationID := hlog.RequestIDHandler("id", "X-Offcache-Correlation-ID")

	urlHandler := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := zerolog.Ctx(r.Context())
			log.UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("url", r.URL.Redacted())
			})
			next.ServeHTTP(w, r)
		})
	}

	access := hlog.AccessHandler(func(req *http.Request, status, size int, duration time.Duration) {
		level := zerolog.InfoLevel
		if status == 0 {
			level = zerolog.ErrorLevel
		} else if status >= http.StatusInternalServerError {
			level = zerolog.WarnLevel
		}

		l := hlog.FromRequest(req).WithLevel(level) //nolint:zerologlint
		if ua := req.Header.Get("User-Agent"); ua != "" {
			l = l.Str("user-agent", ua)
		}
		l.
			Str("ip", req.RemoteAddr).
			Str("method", req.Method).
			Str("cache", GetCacheState(req.Context())).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Processed request")
	})

	return logHandler(correlationID(StateHandler(access(urlHandler(handler)))))
}

func newTraceMiddleware(next http.Handler, logger *zerolog.Logger) http.Handler {
	if logger.GetLevel() > zerolog.TraceLevel {
		logger.Debug().Msg("Tracing disabled, not adding trace middleware")
		return next
	}

	return http.HandlerFunc(func(respw http.ResponseWriter, req *http.Request) {
		headers := req.Header.Clone()
		headers.Del("Authorization")
		headers.Del("Cookie")

		hlog.FromRequest(req).Trace().
			Any("headers", headers).
			Str("method", req.Method).
			Msg("Received request")
		defer func() {
			hlog.FromRequest(req).Trace().Any("headers", respw.Header()).Msg("Returned response")
		}()
		next.ServeHTTP(respw, req)
	})
}

type requestMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	size     *prometheus.CounterVec
}

func registerRequestMetrics(registry prometheus.Registerer) *requestMetrics {
	return &requestMetrics{
		requests: register(registry, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "offcache",
				Name:      "http_requests_total",
				Help:      "Number of HTTP requests handled, per cache outcome",
			},
			[]string{"service", "method", "code", "cache"},
		)),
		duration: register(registry, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "offcache",
				Name:      "http_request_duration_seconds",
				Help:      "Time taken to handle HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "cache"},
		)),
		size: register(registry, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "offcache",
				Name:      "http_response_bytes_total",
				Help:      "Bytes sent back to clients",
			},
			[]string{"service", "cache"},
		)),
	}
}

// register reuses the collector already registered under the same name, so
// that every server shares the same series.
func register[T prometheus.Collector](registry prometheus.Registerer, c T) T {
	if err := registry.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return already.ExistingCollector.(T) //nolint:forcetypeassert
		}
		panic(err)
	}
	return c
}

func newMetricsMiddleware(
	next http.Handler,
	serviceName string,
	registry prometheus.Registerer,
) http.Handler {
	if registry == nil {
		return next
	}

	m := registerRequestMetrics(registry)

	return hlog.AccessHandler(func(req *http.Request, status, size int, duration time.Duration) {
		cache := GetCacheState(req.Context())
		m.requests.WithLabelValues(serviceName, req.Method, strconv.Itoa(status), cache).Inc()
		m.duration.WithLabelValues(serviceName, cache).Observe(duration.Seconds())
		m.size.WithLabelValues(serviceName, cache).Add(float64(size))
	})(next)
}

func ApplyAllMiddlewares(
	handler http.Handler,
	serviceName string,
	logger *zerolog.Logger,
	registry prometheus.Registerer,
) http.Handler {
	return newLoggingMiddleware(
		newMetricsMiddleware(newTraceMiddleware(handler, logger), serviceName, registry),
		logger,
	)
}
