package server

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/benjaminschubert/offcache/internal/cacheproxy"
	"github.com/benjaminschubert/offcache/internal/config"
	"github.com/benjaminschubert/offcache/internal/handlers"
	"github.com/benjaminschubert/offcache/internal/handlers/admin"
	"github.com/benjaminschubert/offcache/internal/handlers/storefront"
	"github.com/benjaminschubert/offcache/internal/middleware"
)

type serverInfo struct {
	server *http.Server
	logger *zerolog.Logger
}

type Server struct {
	servers []serverInfo
	logger  *zerolog.Logger
}

func New(
	conf *config.Config,
	registration *cacheproxy.Registration,
	cache admin.Cache,
	stats *middleware.Statistics,
	logger *zerolog.Logger,
	metricsRegistry interface {
		prometheus.Registerer
		prometheus.Gatherer
	},
) *Server {
	srv := Server{logger: logger}

	srv.servers = append(srv.servers, setupStorefront(conf, registration, logger, metricsRegistry))

	if conf.AdminInterface != "" {
		srv.servers = append(
			srv.servers,
			setupAdminInterface(conf, registration, cache, stats, logger, metricsRegistry),
		)
	} else if conf.EnableProfiling {
		logger.Warn().Msg("Profiling requested, but the admin interface is disabled. Ignoring.")
	}

	return &srv
}

// ListenAndServe runs every server until an interrupt, a failing server or
// the end of ctx. SIGHUP calls reload and keeps serving.
func (s *Server) ListenAndServe(ctx context.Context, reload func(context.Context) error) error {
	errChan := make(chan error, len(s.servers))

	for _, srv := range s.servers {
		go func() {
			srv.logger.Info().Str("address", srv.server.Addr).Msg("Starting server")
			err := srv.server.ListenAndServe()
			if !errors.Is(err, http.ErrServerClosed) {
				srv.logger.Error().Err(err).Msg("Server didn't come up properly")
				errChan <- err
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	hangup := make(chan os.Signal, 1)
	signal.Notify(hangup, syscall.SIGHUP)
	defer signal.Stop(hangup)

loop:
	for {
		select {
		case <-hangup:
			s.logger.Info().Msg("Reloading configuration")
			if reload == nil {
				continue
			}
			if err := reload(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Unable to reload, keeping the current proxy")
			}
		case <-stop:
			s.logger.Info().Msg("Shutting down")
			break loop
		case <-ctx.Done():
			s.logger.Info().Msg("Shutting down")
			break loop
		case err := <-errChan:
			s.logger.Error().Err(err).Msg("At least one server is unhealthy, shutting down")
			break loop
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Minute)
	defer cancel()

	closingErrs := make(chan error, len(s.servers))

	for _, srv := range s.servers {
		go func() {
			err := srv.server.Shutdown(shutdownCtx)
			if err != nil {
				srv.logger.Error().Err(err).Msg("Error shutting down the server")
			}
			closingErrs <- err
		}()
	}

	var lastErr error
	for range len(s.servers) {
		if err := <-closingErrs; err != nil {
			lastErr = err
		}
	}

	return lastErr
}

func setupStorefront(
	conf *config.Config,
	registration *cacheproxy.Registration,
	logger *zerolog.Logger,
	registry prometheus.Registerer,
) serverInfo {
	serviceName := "storefront[" + conf.Origin.URL.String() + "]"
	log := logger.With().Str("service", serviceName).Logger()

	handler := http.NewServeMux()
	storefront.RegisterHandler(conf.Origin.URL, handler, registration)

	return createServer(
		fmt.Sprintf("%s:%d", conf.Host, conf.Port),
		handler,
		serviceName,
		&log,
		registry,
	)
}

func setupAdminInterface(
	conf *config.Config,
	registration *cacheproxy.Registration,
	cache admin.Cache,
	stats *middleware.Statistics,
	logger *zerolog.Logger,
	registry interface {
		prometheus.Registerer
		prometheus.Gatherer
	},
) serverInfo {
	serviceName := "admin"
	log := logger.With().Str("service", serviceName).Logger()

	handler := http.NewServeMux()

	if conf.EnableProfiling {
		log.Info().
			Str("profilingUrl", conf.AdminInterface+"/-/pprof/").
			Msg("Enabling profiling")
		handlers.RegisterProfilingHandlers(handler, "/-/pprof/")
	}

	if conf.EnableMetrics {
		log.Info().
			Str("metricsUrl", conf.AdminInterface+"/metrics").
			Msg("Enabling metrics")
		handler.Handle(
			"GET /metrics",
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	if err := admin.RegisterHandler(handler, cache, registration, stats, conf); err != nil {
		logger.Panic().Err(err).Msg("unable to initialize server properly")
	}

	handler.HandleFunc("/", handlers.NotImplemented)

	return createServer(conf.AdminInterface, handler, serviceName, &log, registry)
}

func createServer(
	address string,
	handler *http.ServeMux,
	serviceName string,
	log *zerolog.Logger,
	registry prometheus.Registerer,
) serverInfo {
	return serverInfo{
		&http.Server{
			Addr:         address,
			Handler:      middleware.ApplyAllMiddlewares(handler, serviceName, log, registry),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 5 * time.Minute,
			ErrorLog:     stdlog.New(log, "", 0),
		},
		log,
	}
}
