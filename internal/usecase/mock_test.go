package usecase

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"script-breakdown/internal/domain"
	"script-breakdown/internal/domain/model"
	"script-breakdown/internal/domain/ports/adapter"
	"script-breakdown/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// ---- job repository ----

type MockJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.Job

	SaveFunc                 func(ctx context.Context, tx repository.Tx, job *model.Job) error
	FindByIDFunc             func(ctx context.Context, tx repository.Tx, id string) (*model.Job, error)
	FetchAndMarkStartedFunc  func(ctx context.Context) (*model.Job, error)
	FindActiveFunc           func(ctx context.Context, tx repository.Tx, documentID string) ([]*model.Job, error)
	UpdateProgressFunc       func(ctx context.Context, tx repository.Tx, id string, status model.JobStatus, step, progress int, description string) error
	MarkTerminalFunc         func(ctx context.Context, tx repository.Tx, id string, status model.JobStatus, result []byte, errMsg, errDetails string, completedAt time.Time, processingMS int64) error
	SaveContextFunc          func(ctx context.Context, tx repository.Tx, id string, payload []byte) error
	DeleteTerminalBeforeFunc func(ctx context.Context, tx repository.Tx, cutoff time.Time) (int, error)
}

func NewMockJobRepo() *MockJobRepo {
	return &MockJobRepo{jobs: make(map[string]*model.Job)}
}

func (m *MockJobRepo) Save(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, job)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *MockJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, tx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *MockJobRepo) FetchAndMarkStarted(ctx context.Context) (*model.Job, error) {
	if m.FetchAndMarkStartedFunc != nil {
		return m.FetchAndMarkStartedFunc(ctx)
	}
	return nil, domain.ErrNotFound
}

func (m *MockJobRepo) FindActive(ctx context.Context, tx repository.Tx, documentID string) ([]*model.Job, error) {
	if m.FindActiveFunc != nil {
		return m.FindActiveFunc(ctx, tx, documentID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Job
	for _, job := range m.jobs {
		if job.Status.Terminal() {
			continue
		}
		if documentID != "" && job.DocumentID != documentID {
			continue
		}
		cp := *job
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MockJobRepo) UpdateProgress(ctx context.Context, tx repository.Tx, id string, status model.JobStatus, step, progress int, description string) error {
	if m.UpdateProgressFunc != nil {
		return m.UpdateProgressFunc(ctx, tx, id, status, step, progress, description)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status.Terminal() {
		return domain.ErrJobTerminal
	}
	job.Status = status
	job.CurrentStep = step
	if progress > job.Progress {
		job.Progress = progress
	}
	job.StepDescription = description
	return nil
}

func (m *MockJobRepo) MarkTerminal(ctx context.Context, tx repository.Tx, id string, status model.JobStatus, result []byte, errMsg, errDetails string, completedAt time.Time, processingMS int64) error {
	if m.MarkTerminalFunc != nil {
		return m.MarkTerminalFunc(ctx, tx, id, status, result, errMsg, errDetails, completedAt, processingMS)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status.Terminal() {
		return domain.ErrJobTerminal
	}
	job.Status = status
	job.Result = result
	job.ErrorMessage = errMsg
	job.ErrorDetails = errDetails
	job.CompletedAt = &completedAt
	job.ProcessingMS = processingMS
	if status == model.JobStatusCompleted {
		job.Progress = 100
	}
	return nil
}

func (m *MockJobRepo) SaveContext(ctx context.Context, tx repository.Tx, id string, payload []byte) error {
	if m.SaveContextFunc != nil {
		return m.SaveContextFunc(ctx, tx, id, payload)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok {
		job.Context = payload
	}
	return nil
}

func (m *MockJobRepo) DeleteTerminalBefore(ctx context.Context, tx repository.Tx, cutoff time.Time) (int, error) {
	if m.DeleteTerminalBeforeFunc != nil {
		return m.DeleteTerminalBeforeFunc(ctx, tx, cutoff)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, job := range m.jobs {
		if job.Status.Terminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
			n++
		}
	}
	return n, nil
}

// Get returns the stored job without copying, for assertions.
func (m *MockJobRepo) Get(id string) *model.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id]
}

// ---- chunk repository ----

type MockChunkRepo struct {
	mu     sync.Mutex
	chunks map[string][]*model.Chunk

	SaveAllFunc   func(ctx context.Context, tx repository.Tx, chunks []*model.Chunk) error
	ListByJobFunc func(ctx context.Context, tx repository.Tx, jobID string) ([]*model.Chunk, error)
	UpdateFunc    func(ctx context.Context, tx repository.Tx, chunk *model.Chunk) error
}

func NewMockChunkRepo() *MockChunkRepo {
	return &MockChunkRepo{chunks: make(map[string][]*model.Chunk)}
}

func (m *MockChunkRepo) SaveAll(ctx context.Context, tx repository.Tx, chunks []*model.Chunk) error {
	if m.SaveAllFunc != nil {
		return m.SaveAllFunc(ctx, tx, chunks)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		cp := *c
		m.chunks[c.JobID] = append(m.chunks[c.JobID], &cp)
	}
	return nil
}

func (m *MockChunkRepo) ListByJob(ctx context.Context, tx repository.Tx, jobID string) ([]*model.Chunk, error) {
	if m.ListByJobFunc != nil {
		return m.ListByJobFunc(ctx, tx, jobID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.Chunk(nil), m.chunks[jobID]...), nil
}

func (m *MockChunkRepo) Update(ctx context.Context, tx repository.Tx, chunk *model.Chunk) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, tx, chunk)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.chunks[chunk.JobID] {
		if c.Index == chunk.Index {
			*c = *chunk
		}
	}
	return nil
}

// ---- breakdown repository ----

type MockBreakdownRepo struct {
	mu          sync.Mutex
	Scenes      []*model.Scene
	Elements    []*model.BreakdownElement
	Suggestions []*model.CrewSuggestion

	SaveScenesFunc          func(ctx context.Context, tx repository.Tx, scenes []*model.Scene) (int, error)
	SaveElementsFunc        func(ctx context.Context, tx repository.Tx, elements []*model.BreakdownElement) (int, error)
	SaveCrewSuggestionsFunc func(ctx context.Context, tx repository.Tx, suggestions []*model.CrewSuggestion) (int, error)
}

func (m *MockBreakdownRepo) SaveScenes(ctx context.Context, tx repository.Tx, scenes []*model.Scene) (int, error) {
	if m.SaveScenesFunc != nil {
		return m.SaveScenesFunc(ctx, tx, scenes)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Scenes = append(m.Scenes, scenes...)
	return len(scenes), nil
}

func (m *MockBreakdownRepo) SaveElements(ctx context.Context, tx repository.Tx, elements []*model.BreakdownElement) (int, error) {
	if m.SaveElementsFunc != nil {
		return m.SaveElementsFunc(ctx, tx, elements)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Elements = append(m.Elements, elements...)
	return len(elements), nil
}

func (m *MockBreakdownRepo) SaveCrewSuggestions(ctx context.Context, tx repository.Tx, suggestions []*model.CrewSuggestion) (int, error) {
	if m.SaveCrewSuggestionsFunc != nil {
		return m.SaveCrewSuggestionsFunc(ctx, tx, suggestions)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Suggestions = append(m.Suggestions, suggestions...)
	return len(suggestions), nil
}

// ---- transaction manager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, nil)
}

// ---- document store ----

type MockDocStore struct {
	FetchTextFunc func(ctx context.Context, documentID string) (string, error)
}

func (m *MockDocStore) FetchText(ctx context.Context, documentID string) (string, error) {
	if m.FetchTextFunc != nil {
		return m.FetchTextFunc(ctx, documentID)
	}
	return "", domain.ErrNotFound
}

// ---- model adapter ----

type MockModel struct {
	CompleteFunc    func(ctx context.Context, messages []adapter.Message) (string, adapter.Usage, error)
	CountTokensFunc func(ctx context.Context, text string) (int, error)
}

func (m *MockModel) Name() string { return "mock" }

func (m *MockModel) Complete(ctx context.Context, messages []adapter.Message) (string, adapter.Usage, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, messages)
	}
	return "[]", adapter.Usage{}, nil
}

func (m *MockModel) CountTokens(ctx context.Context, text string) (int, error) {
	if m.CountTokensFunc != nil {
		return m.CountTokensFunc(ctx, text)
	}
	return len(text) / 4, nil
}

// ---- document locker ----

type MockLocker struct {
	TryLockFunc func(ctx context.Context, key string, ttl time.Duration) (string, error)
	UnlockFunc  func(ctx context.Context, key, token string) error
	Unlocked    []string
}

func (m *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if m.TryLockFunc != nil {
		return m.TryLockFunc(ctx, key, ttl)
	}
	return "token", nil
}

func (m *MockLocker) Unlock(ctx context.Context, key, token string) error {
	m.Unlocked = append(m.Unlocked, key)
	if m.UnlockFunc != nil {
		return m.UnlockFunc(ctx, key, token)
	}
	return nil
}
