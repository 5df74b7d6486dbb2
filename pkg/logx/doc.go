// Package logx wraps zerolog behind a small structured-logging API.
//
// The zero value of Logger is a safe no-op. A Logger created from a Service
// stays live across Apply() calls, so sinks and levels can change at runtime
// without re-plumbing loggers through the app.
package logx
