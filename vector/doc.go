// Package vector groups the core.VectorIndex backends.
//
//   - chromem: exhaustive cosine search on chromem-go collections, optionally
//     persisted to disk. Exact, so recency tie-breaking is exact as well.
//   - hnsw: approximate nearest neighbour search on coder/hnsw graphs with
//     exact re-scoring of the candidate set.
//
// Both backends keep one collection (or graph) per scope and embedding model
// so vectors from different models are never compared, and both enforce a
// single dimensionality per scope and model.
package vector

// CandidatePool returns how many candidates a backend should pull before
// re-sorting and truncating to topK. Pulling a few extra lets equal scores
// just past the cut-off compete on recency.
func CandidatePool(topK, size int) int {
	n := max(topK*4, 16)
	return min(n, size)
}
