// Package logging provides structured logging for pipewright.
//
// The package wraps Go's log/slog to write JSON lines to
// .pipewright/logs/debug.log with persistent context attributes, so a failed
// start or cleanup can be traced after the CLI invocation has exited.
//
// # Context Propagation
//
//	logger := logging.NopLogger()
//	agentLogger := logger.WithAgent("01-auth").WithTask(".pipewright/tasks/01-auth")
//	agentLogger.WithPhase("implement").Info("agent launched", "pid", 4242)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"agent launched","agent_id":"01-auth","task_dir":".pipewright/tasks/01-auth","phase":"implement","pid":4242}
//
// # Log Rotation
//
// [NewLoggerWithRotation] rotates debug.log once it exceeds MaxSizeMB,
// keeping MaxBackups numbered backups (debug.log.1 is the newest).
//
// # Configuration
//
//	logging:
//	  enabled: true
//	  level: info
//	  max_size_mb: 10
//	  max_backups: 3
package logging
