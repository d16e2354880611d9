// Package logx wraps zerolog behind a small structured-logging API.
//
// It supports console and file sinks, plus an optional rate-limited
// Telegram sink for surfacing warnings to the bot owner's chat.
// Sink configuration can be swapped at runtime via Service.Apply.
package logx
