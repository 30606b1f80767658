package llm

import "github.com/ringward/ringward/pkg/types"

// Message is aliased from the shared types package so callers can build
// histories without importing llm.
type Message = types.Message

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities = types.ModelCapabilities
