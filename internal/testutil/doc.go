// Package testutil contains helper builders and shared conformance suites
// used across tests: fluent builders for messages and seeded threads, plus
// contract suites every ThreadStore, VectorIndex and WorkingMemoryStore
// backend runs. It is not intended for production usage.
package testutil
