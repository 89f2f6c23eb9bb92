// Package logx wraps zerolog behind a small structured-logging API.
//
// It provides:
//   - Logger: a lightweight value type with With()/level methods.
//   - Service: runtime-reconfigurable sinks (console, file, Telegram).
//
// The Telegram sink is best-effort: rate limited, queued, and never blocks
// the caller.
package logx
