package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/benjaminschubert/offcache/internal/units"
)

var (
	ErrInvalidOrigin     = errors.New("origin must be an absolute http or https URL")
	ErrInvalidGeneration = errors.New("static and dynamic generations must be distinct and non-empty")
)

type Log struct {
	Level  string
	Format string
}

type Cache struct {
	Path         string
	Static       string
	Dynamic      string
	Precache     []string
	StaticMarker string      `yaml:"static_marker"`
	MaxEntrySize units.Bytes `yaml:"max_entry_size"`
}

type Tracing struct {
	Endpoint   string
	SampleRate float64 `yaml:"sample_rate"`
}

type Config struct {
	Host            string
	Port            uint16
	Origin          SerializableURL
	Cache           Cache
	AdminInterface  string `yaml:"admin_interface"`
	EnableMetrics   bool   `yaml:"metrics"`
	EnableProfiling bool   `yaml:"profiling"`
	Log             Log
	Tracing         Tracing
}

func getBaseConfig(getenv func(string) (string, bool)) *Config {
	defaultCachePath, ok := getenv("OFFCACHE_DEFAULT_CACHE_PATH")
	if !ok {
		defaultCachePath = "_cache/"
	}

	return &Config{
		Host:   "localhost",
		Port:   3150,
		Origin: SerializableURL{&url.URL{Scheme: "http", Host: "localhost:8000"}},
		Cache: Cache{
			Path:    defaultCachePath,
			Static:  "static-v1",
			Dynamic: "dynamic-v1",
			Precache: []string{
				"/",
				"/static/css/style.css",
				"/static/js/main.js",
				"/static/images/favicon.ico",
			},
			StaticMarker: "/static/",
			MaxEntrySize: units.Bytes{Bytes: 64 * 1024 * 1024},
		},
		AdminInterface: "localhost:3151",
		EnableMetrics:  true,
		Log:            Log{zerolog.LevelInfoValue, "json"},
		Tracing:        Tracing{SampleRate: 1},
	}
}

func Parse(configPath string, getenv func(string) (string, bool)) (*Config, error) {
	c := getBaseConfig(getenv)

	fp, err := os.Open(configPath) //nolint:gosec
	if err != nil {
		return c, err
	}
	defer fp.Close() //nolint:errcheck

	decoder := yaml.NewDecoder(fp)
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil {
		return c, fmt.Errorf("invalid configuration in %s: %w", configPath, err)
	}

	if err := applyOverrides(c, getenv); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func Default(getenv func(string) (string, bool)) (*Config, error) {
	conf := getBaseConfig(getenv)

	if err := applyOverrides(conf, getenv); err != nil {
		return conf, err
	}
	return conf, conf.Validate()
}

func (c *Config) Validate() error {
	origin := c.Origin.URL
	if origin == nil || origin.Host == "" || (origin.Scheme != "http" && origin.Scheme != "https") {
		return fmt.Errorf("%w: %v", ErrInvalidOrigin, origin)
	}

	if c.Cache.Static == "" || c.Cache.Dynamic == "" || c.Cache.Static == c.Cache.Dynamic {
		return ErrInvalidGeneration
	}

	return nil
}

func applyOverrides(conf *Config, getenv func(string) (string, bool)) error {
	if val, ok := getenv("OFFCACHE_ENABLE_PROFILING"); ok {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid OFFCACHE_ENABLE_PROFILING: %w", err)
		}
		conf.EnableProfiling = enabled
	}

	if val, ok := getenv("OFFCACHE_LOG_LEVEL"); ok {
		conf.Log.Level = val
	}

	if val, ok := getenv("OFFCACHE_LOG_FORMAT"); ok {
		conf.Log.Format = val
	}

	if val, ok := getenv("OFFCACHE_CACHE_PATH"); ok {
		conf.Cache.Path = val
	}

	if val, ok := getenv("OFFCACHE_HOST"); ok {
		conf.Host = val
	}

	if val, ok := getenv("OFFCACHE_ORIGIN"); ok {
		origin, err := url.Parse(val)
		if err != nil {
			return fmt.Errorf("invalid OFFCACHE_ORIGIN: %w", err)
		}
		conf.Origin = SerializableURL{origin}
	}

	if val, ok := getenv("OFFCACHE_ADMIN_INTERFACE"); ok {
		conf.AdminInterface = val
	}

	if val, ok := getenv("OFFCACHE_TRACING_ENDPOINT"); ok {
		conf.Tracing.Endpoint = val
	}

	return nil
}
