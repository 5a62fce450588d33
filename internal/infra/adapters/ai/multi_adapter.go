package ai

import (
	"context"
	"errors"

	"script-breakdown/internal/domain"
	"script-breakdown/internal/domain/ports/adapter"
)

var _ adapter.ModelAdapter = (*MultiAdapter)(nil)

// MultiAdapter is an ordered fallback chain over provider adapters.
// Complete tries each provider in turn and returns the first success;
// a cancelled context stops the chain immediately.
type MultiAdapter struct {
	providers []adapter.ModelAdapter
}

func NewMultiAdapter(providers ...adapter.ModelAdapter) (*MultiAdapter, error) {
	chain := make([]adapter.ModelAdapter, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			chain = append(chain, p)
		}
	}
	if len(chain) == 0 {
		return nil, domain.ErrModelUnavailable
	}
	return &MultiAdapter{providers: chain}, nil
}

func (m *MultiAdapter) Name() string { return m.providers[0].Name() }

func (m *MultiAdapter) Complete(ctx context.Context, messages []adapter.Message) (string, adapter.Usage, error) {
	var lastErr error
	for _, p := range m.providers {
		if ctx.Err() != nil {
			return "", adapter.Usage{}, ctx.Err()
		}
		text, usage, err := p.Complete(ctx, messages)
		if err == nil {
			return text, usage, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", adapter.Usage{}, err
		}
		lastErr = err
	}
	return "", adapter.Usage{}, lastErr
}

func (m *MultiAdapter) CountTokens(ctx context.Context, text string) (int, error) {
	var lastErr error
	for _, p := range m.providers {
		n, err := p.CountTokens(ctx, text)
		if err == nil {
			return n, nil
		}
		lastErr = err
	}
	return 0, lastErr
}
