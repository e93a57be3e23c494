// Package thread houses concrete implementations of core.ThreadStore. The
// interface itself (and the Thread / Message types) live in the core package
// so that the recall assembler and the façade never depend on a concrete
// storage engine.
//
// InMemoryStore (this package) is volatile and suited for tests and ephemeral
// processes. The bolt sub-package provides a durable single-file backend.
package thread
