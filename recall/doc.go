// Package recall assembles the context window handed to a generation step.
//
// An Assembler merges three sources into one Context:
//
//  1. the most recent messages of the thread
//  2. semantically similar messages found through the vector index, each
//     widened by a message range around the hit
//  3. the working memory block
//
// Messages found by both recency and similarity appear once, and the
// thread's messages are always ordered by sequence position. Hits from other
// threads of the same resource are returned separately, grouped per thread.
// If the embedder fails, recall degrades to the recency window and the
// Context is marked Degraded.
package recall
