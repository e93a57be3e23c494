// Package embedder groups the core.Embedder implementations:
//
//   - mock: deterministic embedders for tests and offline development
//   - openai: the OpenAI Embeddings API
//   - cache: a ristretto backed decorator that memoizes any embedder
//
// Every embedder reports the model identity stamped onto the vectors it
// produces, so an index never compares vectors of different models.
package embedder
