// Package logging wraps logrus into the structured logger every other
// package accepts, grounded on
// r3e-network-service_layer/pkg/logger.Logger's embed-and-configure shape.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger embeds *logrus.Logger so callers get the full logrus.FieldLogger
// surface (WithField, WithError, Infof, ...) plus the engine-specific
// helpers below.
type Logger struct {
	*logrus.Logger
}

// Config controls level and output format (config.LoggingConfig's values
// flow in here at wiring time).
type Config struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "text" or "json"
	Output io.Writer
}

// New builds a Logger from cfg, defaulting to info/text/stderr for any
// zero field.
func New(cfg Config) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if cfg.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.Output != nil {
		l.SetOutput(cfg.Output)
	} else {
		l.SetOutput(os.Stderr)
	}

	return &Logger{Logger: l}
}

// NewDefault builds an info-level text Logger, convenient for tests and
// examples that don't load a config.Config. The component argument is not
// attached to the returned Logger's entries.
func NewDefault(component string) *Logger {
	l := New(Config{Level: "info", Format: "text"})
	return &Logger{Logger: l.WithField("component", component).Logger}
}

// WithObject returns an entry-scoped logger tagged with the object name,
// the field every repository/hook/driver log line carries.
func (l *Logger) WithObject(object string) *logrus.Entry {
	return l.WithField("object", object)
}

// WithRequest tags a logger with the request-scoped fields the transport
// layer and repository pipeline both want on every line for an operation.
func (l *Logger) WithRequest(tenantID, userID, op string) *logrus.Entry {
	return l.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"user_id":   userID,
		"op":        op,
	})
}
