// Package logging defines the minimal structured logging contract used by
// every service in the mesh and bridges it onto Watermill's LoggerAdapter so
// the router, transports, and domain code share one logger.
package logging

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
)

// Fields carries structured key/value pairs attached to a log entry.
type Fields map[string]any

// ServiceLogger is the logging contract required by mesh services. It mirrors
// Watermill's logging needs so one adapter serves both sides.
type ServiceLogger interface {
	With(fields Fields) ServiceLogger
	Debug(msg string, fields Fields)
	Info(msg string, fields Fields)
	Error(msg string, err error, fields Fields)
	Trace(msg string, fields Fields)
}

var levelMapping = map[slog.Level]slog.Level{
	slog.LevelDebug: slog.LevelDebug,
	slog.LevelInfo:  slog.LevelInfo,
	slog.LevelWarn:  slog.LevelWarn,
	slog.LevelError: slog.LevelError,
}

// NewSlogLogger wraps a slog.Logger so it satisfies ServiceLogger.
func NewSlogLogger(log *slog.Logger) ServiceLogger {
	if log == nil {
		panic("connmesh: slog logger cannot be nil")
	}
	return &watermillLogger{inner: watermill.NewSlogLoggerWithLevelMapping(log, levelMapping)}
}

// NewWatermillLogger wraps an existing Watermill LoggerAdapter.
func NewWatermillLogger(logger watermill.LoggerAdapter) ServiceLogger {
	if logger == nil {
		panic("connmesh: watermill logger cannot be nil")
	}
	return &watermillLogger{inner: logger}
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() ServiceLogger {
	return &watermillLogger{inner: watermill.NopLogger{}}
}

type watermillLogger struct {
	inner watermill.LoggerAdapter
}

func (w *watermillLogger) With(fields Fields) ServiceLogger {
	return &watermillLogger{inner: w.inner.With(toWatermill(fields))}
}

func (w *watermillLogger) Debug(msg string, fields Fields) {
	w.inner.Debug(msg, toWatermill(fields))
}

func (w *watermillLogger) Info(msg string, fields Fields) {
	w.inner.Info(msg, toWatermill(fields))
}

func (w *watermillLogger) Error(msg string, err error, fields Fields) {
	w.inner.Error(msg, err, toWatermill(fields))
}

func (w *watermillLogger) Trace(msg string, fields Fields) {
	w.inner.Trace(msg, toWatermill(fields))
}

// ToWatermillAdapter converts a ServiceLogger back into a Watermill
// LoggerAdapter for the router and transport constructors.
func ToWatermillAdapter(log ServiceLogger) watermill.LoggerAdapter {
	if log == nil {
		panic("connmesh: ServiceLogger cannot be nil")
	}
	if wl, ok := log.(*watermillLogger); ok {
		return wl.inner
	}
	return &loggerAdapter{base: log}
}

type loggerAdapter struct {
	base ServiceLogger
}

func (a *loggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.base.Error(msg, err, fromWatermill(fields))
}

func (a *loggerAdapter) Info(msg string, fields watermill.LogFields) {
	a.base.Info(msg, fromWatermill(fields))
}

func (a *loggerAdapter) Debug(msg string, fields watermill.LogFields) {
	a.base.Debug(msg, fromWatermill(fields))
}

func (a *loggerAdapter) Trace(msg string, fields watermill.LogFields) {
	a.base.Trace(msg, fromWatermill(fields))
}

func (a *loggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &loggerAdapter{base: a.base.With(fromWatermill(fields))}
}

func toWatermill(fields Fields) watermill.LogFields {
	if len(fields) == 0 {
		return nil
	}
	return watermill.LogFields(fields)
}

func fromWatermill(fields watermill.LogFields) Fields {
	if len(fields) == 0 {
		return nil
	}
	return Fields(fields)
}
