// Package logx is tunebot's structured logging layer.
//
// It wraps zerolog so components depend on a small value type (Logger)
// instead of a concrete writer:
//   - console output with millisecond timestamps and a file:line caller
//   - optional JSON file output
//   - optional Telegram sink for warnings (min-level + rate limited)
package logx
