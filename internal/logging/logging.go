// Package logging sets up the process-wide zerolog.Logger, grounded on
// LumenPrima-tr-engine's cmd/tr-engine/main.go logger construction
// (timestamped zerolog.Logger over os.Stdout, level parsed from config).
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New builds the root logger for the given level string, defaulting to
// info on an unrecognised value.
func New(level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(parsed)
}

// FanOut tees log output to multiple writers, letting the log-broadcast
// publisher (internal/logbroadcast) observe every line the root logger
// emits without the router's core packages knowing it exists.
type FanOut struct {
	writers []io.Writer
}

// NewFanOut constructs a FanOut over the given writers.
func NewFanOut(writers ...io.Writer) *FanOut {
	return &FanOut{writers: writers}
}

func (f *FanOut) Write(p []byte) (int, error) {
	for _, w := range f.writers {
		if _, err := w.Write(p); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}
