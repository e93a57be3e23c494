// Package core provides the foundational domain types, contracts and execution
// contexts used by threadmem. It defines:
//
//   - Threads and Messages (ordered, append-only conversation logs)
//   - Message references shared by the thread store and the vector index
//   - Scopes, embeddings and similarity hits for semantic recall
//   - Working memory snapshots keyed by thread or resource scope
//   - RuntimeContainer / RunContext (typed per-run configuration)
//   - The error taxonomy shared by every component
//
// Implementation concerns (persistence engines, vector backends, providers)
// live in sibling packages and plug in through the small interfaces declared
// here.
package core
