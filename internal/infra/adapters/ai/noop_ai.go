package ai

import (
	"context"

	"script-breakdown/internal/domain/ports/adapter"
)

var _ adapter.ModelAdapter = (*NoOpAdapter)(nil)

// NoOpAdapter stands in for a real provider in dev mode and in tests.
// It echoes an empty JSON array so extraction steps parse cleanly.
type NoOpAdapter struct{}

func NewNoOpAdapter() *NoOpAdapter { return &NoOpAdapter{} }

func (n *NoOpAdapter) Name() string { return "noop" }

func (n *NoOpAdapter) Complete(_ context.Context, _ []adapter.Message) (string, adapter.Usage, error) {
	return "[]", adapter.Usage{}, nil
}

func (n *NoOpAdapter) CountTokens(_ context.Context, text string) (int, error) {
	// Rough heuristic, good enough for budget checks in dev.
	return len(text) / 4, nil
}
