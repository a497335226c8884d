// Package storage caches lyric texts by normalized track key.
//
// Drivers:
//   - file: one <artist>/<title>.txt per song under a root directory (afero)
//   - memory: the file layout on an in-memory filesystem
//   - sqlite: a single table in a SQLite database (modernc.org/sqlite)
package storage
