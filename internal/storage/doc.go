package storage

// Package storage provides the persistence layer behind the scheduling core.
//
// It currently holds:
//   - Task records (the repository the scheduler and engine read)
//   - Custom alarm definitions
//   - The scheduled-alarm mirror (best-effort cache of the native registry)
