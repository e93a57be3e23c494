// Package workingmemory maintains the template-shaped block of durable facts
// kept per thread or per resource, next to the message log.
//
// The package provides:
//   - InMemoryStore: a process-local core.WorkingMemoryStore
//   - Updater: applies generation output to the store in one of two modes,
//     chosen once at construction
//
// Inline-tag mode scans generated text for <working_memory>...</working_memory>
// blocks; the last complete block replaces the snapshot and every complete
// block is stripped from the visible text. Structured-call mode exposes an
// update_working_memory tool whose memory argument is the full replacement
// document. Both modes write whole documents; re-applying the same document
// is a no-op, so updates are idempotent.
//
// A bolt backed store lives in the bolt sub package.
package workingmemory
