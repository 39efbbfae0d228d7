// Package log provides a logging abstraction for usercoord components.
//
// This package defines a Logger interface that can be implemented by
// any logging library. Implementations are provided for zerolog, a no-op
// logger, and a Recorder that keeps entries in memory for assertions.
//
// # Usage
//
// Use the provided zerolog adapter:
//
//	logger := log.NewZerologAdapterWithLogger(zerolog.New(os.Stderr))
//
// Or record entries in tests:
//
//	rec := log.NewRecorder()
//	// ... exercise the component ...
//	if rec.Count(log.LevelCritical) != 0 { ... }
//
// # Severity
//
// Critical marks broken invariants (the "should never happen" cases). It is
// emitted at zerolog's fatal level but never terminates the process: the
// caller recovers by resetting the affected state.
//
// # Version
//
// Current version: 1.2.0
// Minimum compatible version: 1.0.0
//
// See version.go for version constants that can be used programmatically.
package log
