package embedding

import (
	"context"
	"time"

	"github.com/mudler/faqrecall/rag/interfaces"
	"github.com/mudler/faqrecall/rag/types"
)

// Provider routes embedding requests to the backend selected per call.
type Provider struct {
	backends map[types.Provider]interfaces.Embedder
	timeout  time.Duration
}

// NewProvider creates a router. A zero timeout leaves the caller's deadline in charge.
func NewProvider(timeout time.Duration) *Provider {
	return &Provider{
		backends: map[types.Provider]interfaces.Embedder{},
		timeout:  timeout,
	}
}

// Register sets the embedder serving a provider.
func (p *Provider) Register(provider types.Provider, e interfaces.Embedder) *Provider {
	p.backends[provider] = e
	return p
}

// Has reports whether a backend is registered for the provider.
func (p *Provider) Has(provider types.Provider) bool {
	_, ok := p.backends[provider]
	return ok
}

// Embed converts text to a vector with the selected backend.
func (p *Provider) Embed(ctx context.Context, text string, provider types.Provider) ([]float32, error) {
	backend, ok := p.backends[provider]
	if !ok {
		return nil, types.EmbeddingRequestError(provider, "no backend configured", types.ErrUnsupportedProvider)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	vector, err := backend.Embed(ctx, text)
	if err != nil {
		if types.IsEmbeddingRequestError(err) {
			return nil, err
		}
		return nil, types.EmbeddingRequestError(provider, "embedding failed", err)
	}
	return vector, nil
}

// Embedder returns a single-backend view of the router.
func (p *Provider) Embedder(provider types.Provider) interfaces.Embedder {
	return bound{router: p, provider: provider}
}

type bound struct {
	router   *Provider
	provider types.Provider
}

func (b bound) Embed(ctx context.Context, text string) ([]float32, error) {
	return b.router.Embed(ctx, text, b.provider)
}
