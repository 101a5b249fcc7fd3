package types

import (
	"fmt"
	"strings"
)

// Provider selects the embedding backend. Vectors of different providers live in
// separate embedding spaces and are never compared to each other.
type Provider string

const (
	// ProviderOpenAI is the hosted embedding API (backend A).
	ProviderOpenAI Provider = "openai"
	// ProviderHuggingFace is the remote sentence-embedding feature extraction API (backend B).
	ProviderHuggingFace Provider = "hf"
)

// Providers lists every supported provider.
var Providers = []Provider{ProviderOpenAI, ProviderHuggingFace}

const embeddingFieldPrefix = "content_embedding_"

// ParseProvider parses a backend selector. "huggingface" is accepted as an alias of "hf".
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ProviderOpenAI):
		return ProviderOpenAI, nil
	case string(ProviderHuggingFace), "huggingface":
		return ProviderHuggingFace, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, s)
}

// Valid reports whether p is a supported provider.
func (p Provider) Valid() bool {
	for _, s := range Providers {
		if s == p {
			return true
		}
	}
	return false
}

// EmbeddingField is the record field holding this provider's vector.
func (p Provider) EmbeddingField() string {
	return embeddingFieldPrefix + string(p)
}

func (p Provider) String() string {
	return string(p)
}
