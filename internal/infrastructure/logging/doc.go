// Package logging provides structured logging for Homepulse Core.
//
// It wraps log/slog with configuration-driven level, format, and output
// selection, plus default service/version fields on every record. Loggers
// are passed explicitly to components; no global logger state.
package logging
