package admin

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"
	"gopkg.in/yaml.v3"

	"github.com/benjaminschubert/offcache/internal/cacheproxy"
	"github.com/benjaminschubert/offcache/internal/config"
	"github.com/benjaminschubert/offcache/internal/middleware"
	"github.com/benjaminschubert/offcache/internal/storage"
)

//go:embed templates
var templatesFS embed.FS

type Cache interface {
	GetStatistics(ctx context.Context) (storage.Statistics, error)
	List(ctx context.Context, name string) ([]storage.EntryInfo, error)
	Delete(ctx context.Context, name string) (bool, error)
}

type indexData struct {
	Proxy    *cacheproxy.Proxy             `yaml:"-"`
	State    string                        `yaml:"state"`
	Requests middleware.StatisticsSnapshot `yaml:"requests"`
	Stats    storage.Statistics            `yaml:"storage"`
	Conf     string                        `yaml:"-"`
}

type generationData struct {
	Name    string              `yaml:"name"`
	Entries []storage.EntryInfo `yaml:"entries"`
}

func RegisterHandler(
	handler *http.ServeMux,
	cache Cache,
	registration *cacheproxy.Registration,
	stats *middleware.Statistics,
	conf *config.Config,
) error {
	funcs := template.FuncMap{
		"percent": func(ratio float64) float64 { return ratio * 100 },
	}
	templates, err := template.New("index").Funcs(funcs).ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return err
	}

	renderedConfig, err := renderConfig(conf)
	if err != nil {
		return err
	}

	handler.HandleFunc("GET /generations/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")

		list, err := cache.List(r.Context(), name)
		if errors.Is(err, storage.ErrNotFound) {
			http.NotFound(w, r)
			return
		} else if err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("unable to list cached entries for generation")
			serverError(w, r, "Unable to gather information")
			return
		}

		render(w, r, templates, "list.html.tmpl", generationData{name, list})
	})

	handler.HandleFunc("DELETE /generations/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		logger := hlog.FromRequest(r)

		deleted, err := cache.Delete(r.Context(), name)
		if err != nil {
			logger.Error().Err(err).Str("generation", name).Msg("Unable to delete generation")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if !deleted {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		logger.Info().Str("generation", name).Msg("Generation deleted")
		w.WriteHeader(http.StatusNoContent)
	})

	handler.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		storageStats, err := cache.GetStatistics(r.Context())
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("unable to gather statistics")
			serverError(w, r, "Unable to gather statistics")
			return
		}

		data := indexData{
			Proxy:    registration.Active(),
			State:    "not registered",
			Requests: stats.Snapshot(),
			Stats:    storageStats,
			Conf:     renderedConfig,
		}
		if data.Proxy != nil {
			data.State = data.Proxy.State().String()
		}

		render(w, r, templates, "index.html.tmpl", data)
	})

	return nil
}

// render answers in YAML when asked to with ?format=yaml, in HTML otherwise.
func render(w http.ResponseWriter, r *http.Request, templates *template.Template, name string, data any) {
	if r.URL.Query().Get("format") == "yaml" {
		w.Header().Set("Content-Type", "application/yaml")
		if err := yaml.NewEncoder(w).Encode(data); err != nil {
			hlog.FromRequest(r).Panic().Err(err).Msg("error sending the yaml answer")
		}
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.ExecuteTemplate(w, name, data); err != nil {
		hlog.FromRequest(r).Panic().Err(err).Str("template", name).Msg("error sending the page")
	}
}

func serverError(w http.ResponseWriter, r *http.Request, message string) {
	w.WriteHeader(http.StatusInternalServerError)
	if _, err := w.Write([]byte(message)); err != nil {
		hlog.FromRequest(r).Panic().Err(err).Msg("error returning an answer")
	}
}

func renderConfig(conf *config.Config) (string, error) {
	buffer := strings.Builder{}
	encoder := yaml.NewEncoder(&buffer)
	err := encoder.Encode(conf)
	return buffer.String(), err
}
