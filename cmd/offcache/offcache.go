package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"runtime/debug"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/dnscache"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/benjaminschubert/offcache/internal/cacheproxy"
	"github.com/benjaminschubert/offcache/internal/config"
	"github.com/benjaminschubert/offcache/internal/logging"
	"github.com/benjaminschubert/offcache/internal/middleware"
	"github.com/benjaminschubert/offcache/internal/network"
	"github.com/benjaminschubert/offcache/internal/server"
	"github.com/benjaminschubert/offcache/internal/storage"
	"github.com/benjaminschubert/offcache/internal/telemetry"
)

const defaultConfigPath = "./offcache.yaml"

func getVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" {
		return "(devel)"
	}
	return info.Main.Version
}

type options struct {
	configPath  string
	showVersion bool
}

func parseFlags(args []string) (options, error) {
	var opts options

	flagSet := pflag.NewFlagSet("offcache", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "path to the configuration file (default: $OFFCACHE_CONFIG_PATH or "+defaultConfigPath+")")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print the version and exit")

	if err := flagSet.Parse(args); err != nil {
		return opts, err
	}
	if extra := flagSet.Args(); len(extra) != 0 {
		return opts, fmt.Errorf("unexpected argument: %s", extra[0])
	}

	return opts, nil
}

// loadConfig reads the configuration from the given path, the environment, or
// the default location. Only a missing default file falls back to the
// built-in configuration.
func loadConfig(
	configPath string,
	getenv func(string) (string, bool),
) (conf *config.Config, configNotExist bool, err error) {
	configPathSet := configPath != ""
	if !configPathSet {
		configPath, configPathSet = getenv("OFFCACHE_CONFIG_PATH")
	}
	if !configPathSet {
		configPath = defaultConfigPath
	}

	conf, err = config.Parse(configPath, getenv)
	if err != nil {
		if configPathSet || !errors.Is(err, fs.ErrNotExist) {
			return nil, false, err
		}

		conf, err = config.Default(getenv)
		return conf, true, err
	}

	return conf, false, nil
}

func proxyConfig(conf *config.Config) cacheproxy.Config {
	return cacheproxy.Config{
		Scope:        conf.Origin.URL,
		StaticCache:  conf.Cache.Static,
		DynamicCache: conf.Cache.Dynamic,
		Precache:     conf.Cache.Precache,
		StaticMarker: conf.Cache.StaticMarker,
		MaxEntrySize: conf.Cache.MaxEntrySize.Bytes,
		Shared:       true,
	}
}

func main() {
	panicLogger, err := logging.CreateLogger(zerolog.WarnLevel, "json", os.Stderr)
	if err != nil {
		panic("BUG: invalid default logger")
	}

	opts, err := parseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	} else if err != nil {
		panicLogger.Fatal().Err(err).Msg("Unable to start server: invalid arguments")
	}

	if opts.showVersion {
		fmt.Println("offcache", getVersion()) //nolint:forbidigo
		return
	}

	conf, configNotExist, err := loadConfig(opts.configPath, os.LookupEnv)
	if err != nil {
		panicLogger.Fatal().Err(err).Msg("Unable to start server: invalid configuration")
	}

	logLevel, err := zerolog.ParseLevel(conf.Log.Level)
	if err != nil {
		panicLogger.Fatal().Err(err).Msg("Unable to start server: invalid configuration")
	}
	logger, err := logging.CreateLogger(logLevel, conf.Log.Format, os.Stderr)
	if err != nil {
		panicLogger.Fatal().Err(err).Msg("Unable to initialize logger")
	}

	if configNotExist {
		logger.Info().
			Msg("offcache.yaml not found and OFFCACHE_CONFIG_PATH not set: Using default configuration")
	}

	logger.Info().Str("version", getVersion()).Str("origin", conf.Origin.URL.String()).Msg("Starting offcache")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if conf.Tracing.Endpoint != "" {
		shutdown, err := telemetry.SetupTracing(ctx, conf.Tracing.Endpoint, conf.Tracing.SampleRate, getVersion())
		if err != nil {
			logger.Fatal().Err(err).Msg("Unable to start server: can't setup tracing")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("Couldn't flush traces")
			}
		}()
	}

	resolver := &dnscache.Resolver{}
	go network.RefreshResolver(ctx, resolver, &logger)

	client := network.NewClient(resolver)
	client.Timeout = 5 * time.Minute

	disk, err := storage.NewDisk(conf.Cache.Path, conf.Cache.MaxEntrySize, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Unable to start server: can't setup cache")
	}
	defer func() {
		logger.Info().Msg("Closing up the cache")
		if err := disk.Close(); err != nil {
			logger.Error().Err(err).Msg("Couldn't close the cache properly")
		}
	}()

	statsPath := path.Join(conf.Cache.Path, "statistics.json")
	stats, err := middleware.LoadSavedStatistics(statsPath, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Unable to start server: can't load statistics")
	}
	defer func() {
		if err := stats.Save(statsPath, &logger); err != nil {
			logger.Error().Err(err).Msg("Couldn't save statistics")
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := cacheproxy.NewMetrics(registry)

	registration := cacheproxy.NewRegistration(client, &logger)
	defer registration.Close()

	register := func(ctx context.Context, conf *config.Config) error {
		proxy := cacheproxy.New(proxyConfig(conf), disk, client, &logger, metrics, stats.Notifier())
		return registration.Register(ctx, proxy)
	}

	if err := register(ctx, conf); err != nil {
		logger.Fatal().Err(err).Msg("Unable to start server: can't register the cache proxy")
	}

	reload := func(ctx context.Context) error {
		newConf, _, err := loadConfig(opts.configPath, os.LookupEnv)
		if err != nil {
			return err
		}
		if newConf.Origin.URL.String() != conf.Origin.URL.String() || newConf.Cache.Path != conf.Cache.Path {
			logger.Warn().Msg("Origin and cache path changes require a restart, ignoring them")
			newConf.Origin = conf.Origin
		}
		return register(ctx, newConf)
	}

	srv := server.New(conf, registration, disk, stats, &logger, registry)
	if err := srv.ListenAndServe(ctx, reload); err != nil {
		logger.Panic().Err(err).Msg("An error occurred while shutting down the server")
	}

	logger.Info().Msg("Server shut down")
}
