// Package logger provides the structured logging interface used across postgrab.
//
// It wraps zerolog behind a small Logger interface so packages can take a
// logger as a dependency and tests can substitute a capturing TestLogger.
//
// Basic Usage:
//
//	err := logger.Initialize(&cfg.Logging)
//
//	log := logger.GetLogger().WithField("component", "transfer")
//	log.InfoWithFields("file complete", map[string]interface{}{
//	    "file": "ab12.jpg",
//	    "bytes": 1024000,
//	})
//
// With an empty Logging.File the output is a colored console stream on
// stderr. Setting File additionally appends JSON lines to that path.
package logger
