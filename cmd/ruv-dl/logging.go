package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// newLogger écrit sur la console au niveau demandé et, quel que soit ce
// niveau, info et plus dans le fichier de log du répertoire de travail.
func newLogger(level string, console io.Writer, file io.Writer) (zerolog.Logger, error) {
	consoleLevel, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || consoleLevel == zerolog.NoLevel {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q", level)
	}

	writers := []io.Writer{
		&zerolog.FilteredLevelWriter{
			Writer: zerolog.LevelWriterAdapter{Writer: consoleWriter(console)},
			Level:  consoleLevel,
		},
	}
	minLevel := consoleLevel
	if file != nil {
		writers = append(writers, &zerolog.FilteredLevelWriter{
			Writer: zerolog.LevelWriterAdapter{Writer: file},
			Level:  zerolog.InfoLevel,
		})
		if zerolog.InfoLevel < minLevel {
			minLevel = zerolog.InfoLevel
		}
	}

	return zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(minLevel).
		With().Timestamp().Str("app", "ruv-dl").
		Logger(), nil
}

// consoleWriter: format lisible sur un terminal, JSON sinon.
func consoleWriter(w io.Writer) io.Writer {
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime}
	}
	return w
}
