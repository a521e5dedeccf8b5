package llm

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Pool bounds concurrent Generate calls to one underlying client.
//
// Sessions share the external LLM service, so each stage role (Director
// vs Performer/Moderator) gets its own Pool sized by configuration.
// Callers that exceed the bound block until a slot frees or the context
// is cancelled.
type Pool struct {
	client Client
	sem    *semaphore.Weighted
}

// NewPool wraps client with a concurrency bound. Limit must be positive.
func NewPool(client Client, limit int64) (*Pool, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("llm concurrency limit must be positive, got %d", limit)
	}
	return &Pool{
		client: client,
		sem:    semaphore.NewWeighted(limit),
	}, nil
}

// Generate acquires a slot and delegates to the underlying client.
func (p *Pool) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("waiting for llm slot: %w", err)
	}
	defer p.sem.Release(1)
	return p.client.Generate(ctx, prompt, systemPrompt)
}

// Model returns the underlying client's model name.
func (p *Pool) Model() string {
	return p.client.Model()
}
