// Package logx wraps zerolog behind a small structured-logging API.
//
// Components receive a Logger value and derive scoped loggers via With().
// The Service owns the sinks (console, file) and supports hot
// reconfiguration through Apply().
package logx
