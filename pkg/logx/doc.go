// Package logx configures postbot's structured logging.
//
// A thin logx.Logger sits on top of zerolog:
//   - console output stays human readable (short timestamp and caller)
//   - the optional log file receives JSON lines
//   - warnings and errors can be mirrored to a Telegram log chat, rate limited
//
// Loggers derived from a Service follow Service.Apply, so level and sink
// changes from a config reload reach every component without rewiring.
package logx
