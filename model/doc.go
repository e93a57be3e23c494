// Package model defines the provider-agnostic abstraction over language
// models used by threadmem for the few generation tasks it performs itself:
// deriving thread titles and exposing working memory tools to a caller's
// generation loop.
//
// Providers (OpenAI, Anthropic) implement Model in sub packages so the rest
// of the module stays decoupled from vendor SDKs. MockModel serves tests.
package model
