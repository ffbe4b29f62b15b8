// Package logging sets up the structured, leveled logger threaded through
// the repository and storage pipeline.
package logging

import (
	"io"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// New builds a logfmt logger writing to w, timestamped and filterable by
// level via github.com/go-kit/log/level.
func New(w io.Writer) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	return logger
}

// Info, Debug and Error are thin wrappers around go-kit/log/level so callers
// never have to import the level package directly.
func Info(logger log.Logger, keyvals ...interface{}) {
	_ = level.Info(logger).Log(keyvals...)
}

func Debug(logger log.Logger, keyvals ...interface{}) {
	_ = level.Debug(logger).Log(keyvals...)
}

func Error(logger log.Logger, keyvals ...interface{}) {
	_ = level.Error(logger).Log(keyvals...)
}

// Nop returns a logger that discards everything, for tests and library
// callers that don't want diagnostic output.
func Nop() log.Logger {
	return log.NewNopLogger()
}
