// Package logging provides a simple leveled logging interface for the
// media optimizer.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the process
//
// The log level is configured via the LOG_LEVEL environment variable and can
// be raised at runtime with SetLevel (the --verbose flag). Output goes through
// charmbracelet/log.
package logging
