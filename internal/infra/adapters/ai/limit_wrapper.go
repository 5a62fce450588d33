package ai

import (
	"context"
	"fmt"

	"script-breakdown/internal/domain/ports/adapter"
	"script-breakdown/internal/retry"
)

var _ adapter.ModelAdapter = (*limitedModel)(nil)

// limitedModel bounds concurrent provider calls with a semaphore and
// rejects prompts over the configured token budget before they reach
// the provider. Over-budget prompts are not retryable.
type limitedModel struct {
	inner     adapter.ModelAdapter
	sem       chan struct{}
	maxPrompt int
}

func NewLimitedModel(inner adapter.ModelAdapter, maxConcurrent, maxPromptTokens int) adapter.ModelAdapter {
	if maxConcurrent <= 0 && maxPromptTokens <= 0 {
		return inner
	}
	l := &limitedModel{inner: inner, maxPrompt: maxPromptTokens}
	if maxConcurrent > 0 {
		l.sem = make(chan struct{}, maxConcurrent)
	}
	return l
}

func (l *limitedModel) Name() string { return l.inner.Name() }

func (l *limitedModel) Complete(ctx context.Context, messages []adapter.Message) (string, adapter.Usage, error) {
	if l.maxPrompt > 0 {
		total := 0
		for _, m := range messages {
			n, err := l.inner.CountTokens(ctx, m.Content)
			if err != nil {
				// Budget check is best effort; let the provider decide.
				total = 0
				break
			}
			total += n
		}
		if total > l.maxPrompt {
			return "", adapter.Usage{}, retry.NonRetryable(
				fmt.Errorf("prompt is %d tokens, budget is %d", total, l.maxPrompt))
		}
	}
	if l.sem != nil {
		select {
		case l.sem <- struct{}{}:
			defer func() { <-l.sem }()
		case <-ctx.Done():
			return "", adapter.Usage{}, ctx.Err()
		}
	}
	return l.inner.Complete(ctx, messages)
}

func (l *limitedModel) CountTokens(ctx context.Context, text string) (int, error) {
	return l.inner.CountTokens(ctx, text)
}
