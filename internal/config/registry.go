package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/powermem-ai/powermem/pkg/memory"
	"github.com/powermem-ai/powermem/pkg/provider/embeddings"
	"github.com/powermem-ai/powermem/pkg/provider/llm"
	"github.com/powermem-ai/powermem/pkg/provider/reranker"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider kind named in spec.md §6. It is safe for concurrent use.
type Registry struct {
	mu             sync.RWMutex
	vectorStore    map[string]func(ProviderSection) (memory.Store, error)
	llm            map[string]func(ProviderSection) (llm.Provider, error)
	embedder       map[string]func(ProviderSection) (embeddings.Provider, error)
	sparseEmbedder map[string]func(ProviderSection) (embeddings.Provider, error)
	reranker       map[string]func(RerankerSection) (reranker.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		vectorStore:    make(map[string]func(ProviderSection) (memory.Store, error)),
		llm:            make(map[string]func(ProviderSection) (llm.Provider, error)),
		embedder:       make(map[string]func(ProviderSection) (embeddings.Provider, error)),
		sparseEmbedder: make(map[string]func(ProviderSection) (embeddings.Provider, error)),
		reranker:       make(map[string]func(RerankerSection) (reranker.Provider, error)),
	}
}

// RegisterVectorStore registers a Storage Engine backend factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterVectorStore(name string, factory func(ProviderSection) (memory.Store, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vectorStore[name] = factory
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderSection) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterEmbedder registers a dense embeddings provider factory under name.
func (r *Registry) RegisterEmbedder(name string, factory func(ProviderSection) (embeddings.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embedder[name] = factory
}

// RegisterSparseEmbedder registers a sparse embeddings provider factory under name.
func (r *Registry) RegisterSparseEmbedder(name string, factory func(ProviderSection) (embeddings.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sparseEmbedder[name] = factory
}

// RegisterReranker registers a reranker provider factory under name.
func (r *Registry) RegisterReranker(name string, factory func(RerankerSection) (reranker.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reranker[name] = factory
}

// CreateVectorStore instantiates a Storage Engine backend using the factory
// registered under section.Provider.
func (r *Registry) CreateVectorStore(section ProviderSection) (memory.Store, error) {
	r.mu.RLock()
	factory, ok := r.vectorStore[section.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vector_store/%q", ErrProviderNotRegistered, section.Provider)
	}
	return factory(section)
}

// CreateLLM instantiates an LLM provider using the factory registered under
// section.Provider.
func (r *Registry) CreateLLM(section ProviderSection) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[section.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, section.Provider)
	}
	return factory(section)
}

// CreateEmbedder instantiates a dense embeddings provider using the factory
// registered under section.Provider.
func (r *Registry) CreateEmbedder(section ProviderSection) (embeddings.Provider, error) {
	r.mu.RLock()
	factory, ok := r.embedder[section.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: embedder/%q", ErrProviderNotRegistered, section.Provider)
	}
	return factory(section)
}

// CreateSparseEmbedder instantiates a sparse embeddings provider using the
// factory registered under section.Provider.
func (r *Registry) CreateSparseEmbedder(section ProviderSection) (embeddings.Provider, error) {
	r.mu.RLock()
	factory, ok := r.sparseEmbedder[section.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: sparse_embedder/%q", ErrProviderNotRegistered, section.Provider)
	}
	return factory(section)
}

// CreateReranker instantiates a reranker provider using the factory
// registered under section.Provider.
func (r *Registry) CreateReranker(section RerankerSection) (reranker.Provider, error) {
	r.mu.RLock()
	factory, ok := r.reranker[section.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: reranker/%q", ErrProviderNotRegistered, section.Provider)
	}
	return factory(section)
}
