// Package logx configures spotmylyrics' structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output on stderr, short and readable, so it never mixes with lyrics on stdout
//   - File output JSON-structured
//   - Optional remote mirroring (Telegram chat) with min-level and rate limiting
package logx
