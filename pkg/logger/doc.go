// Package logger provides the structured logging interface used across topicsync.
//
// It wraps zerolog behind a small Logger interface so that the update driver,
// the remote client and the CLI can share one configured instance without a
// package-level global:
//
//	log, err := logger.New(&cfg.Logging)
//	if err != nil {
//	    return err
//	}
//	log.WithField("row_id", "42").Info("Row updated")
//	log.WithError(err).ErrorWithFields("Remote update failed", map[string]interface{}{
//	    "row_id": "43",
//	})
//
// Console output is human readable with short level tags. When a log file is
// configured every event is also appended to it as JSON.
//
// TestLogger records messages in memory for assertions in tests, and
// NewNopLogger discards everything.
package logger
