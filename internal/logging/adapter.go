package logging

import (
	"strings"

	"github.com/rs/zerolog"
)

// StorageLogger receives the printf style logs of the storage engine. Its
// messages are tagged with the component they come from, and anything below
// minLevel is dropped since the engine reports every compaction at info.
type StorageLogger struct {
	log zerolog.Logger
}

func NewStorageLogger(log *zerolog.Logger, component string, minLevel zerolog.Level) *StorageLogger {
	tagged := log.With().Str("component", component).Logger()
	if tagged.GetLevel() < minLevel {
		tagged = tagged.Level(minLevel)
	}
	return &StorageLogger{tagged}
}

func (l *StorageLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(strings.TrimSpace(format), args...)
}

func (l *StorageLogger) Infof(format string, args ...any) {
	l.log.Info().Msgf(strings.TrimSpace(format), args...)
}

func (l *StorageLogger) Warningf(format string, args ...any) {
	l.log.Warn().Msgf(strings.TrimSpace(format), args...)
}

func (l *StorageLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(strings.TrimSpace(format), args...)
}
