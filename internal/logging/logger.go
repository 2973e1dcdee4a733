// Package logging provides a shared logger and log utilities to be used in all internal packages.
package logging

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// L is the process-wide logger. It is replaced by SetServerLogger at startup,
// and by PatchLogger in tests.
var L = newLogger(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

func newLogger(writer io.Writer) *zerolog.Logger {
	logger := zerolog.New(writer).With().Timestamp().Caller().Logger()
	return &logger
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// SetServerLogger configures L for a long running server process. Output is
// JSON unless stdout is a terminal.
func SetServerLogger() {
	var writer io.Writer = os.Stdout
	if isTerminal() {
		writer = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	L = newLogger(writer)
}

// SetLevel parses level and applies it globally. An empty string leaves the
// level unchanged.
func SetLevel(level string) error {
	if level == "" {
		return nil
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}

	zerolog.SetGlobalLevel(lvl)
	return nil
}

// PatchLogger sets L to write JSON to w for the duration of the test.
func PatchLogger(t *testing.T, w io.Writer) {
	origL := L
	L = newLogger(w)
	t.Cleanup(func() {
		L = origL
	})
}

func Tracef(format string, v ...interface{}) {
	L.Trace().CallerSkipFrame(1).Msgf(format, v...)
}

func Debugf(format string, v ...interface{}) {
	L.Debug().CallerSkipFrame(1).Msgf(format, v...)
}

func Infof(format string, v ...interface{}) {
	L.Info().CallerSkipFrame(1).Msgf(format, v...)
}

func Warnf(format string, v ...interface{}) {
	L.Warn().CallerSkipFrame(1).Msgf(format, v...)
}

func Errorf(format string, v ...interface{}) {
	L.Error().CallerSkipFrame(1).Msgf(format, v...)
}
