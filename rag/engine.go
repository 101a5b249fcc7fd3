package rag

import (
	"github.com/mudler/faqrecall/rag/interfaces"
	"github.com/mudler/faqrecall/rag/types"
)

// DocumentStore is an alias for interfaces.DocumentStore
type DocumentStore = interfaces.DocumentStore

// EmbeddingProvider is an alias for interfaces.EmbeddingProvider
type EmbeddingProvider = interfaces.EmbeddingProvider

// ChatClient is an alias for interfaces.ChatClient
type ChatClient = interfaces.ChatClient

// Result is an alias for types.Result
type Result = types.Result

// Answer is an alias for types.Answer
type Answer = types.Answer
