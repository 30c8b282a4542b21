package logging

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

var ErrInvalidLogFormat = errors.New("invalid log format, expected one of 'json' or 'console'")

func CreateLogger(level zerolog.Level, format string, writer io.Writer) (zerolog.Logger, error) {
	switch format {
	case "json":
	case "console":
		writer = zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.Out = writer
			w.TimeFormat = time.RFC3339
		})
	default:
		return zerolog.Logger{}, fmt.Errorf("%w: got %q", ErrInvalidLogFormat, format)
	}

	return zerolog.New(writer).Level(level).With().Timestamp().Caller().Logger(), nil
}
