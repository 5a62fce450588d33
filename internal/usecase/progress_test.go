package usecase

import (
	"context"
	"testing"
	"time"

	"script-breakdown/internal/domain/model"
)

func seedJob(repo *MockJobRepo, id string) *model.Job {
	job := &model.Job{
		ID:         id,
		ProjectID:  "proj-1",
		DocumentID: "doc-1",
		Kind:       model.JobKindScriptBreakdown,
		Status:     model.JobStatusPending,
		TotalSteps: len(model.BreakdownSteps),
		CreatedAt:  time.Now(),
	}
	_ = repo.Save(context.Background(), nil, job)
	return job
}

func TestProgressTracker(t *testing.T) {
	ctx := context.Background()
	log := newTestLogger()

	t.Run("should map step transitions to cumulative weight", func(t *testing.T) {
		// --- Arrange ---
		repo := NewMockJobRepo()
		job := seedJob(repo, "job-1")
		tr := NewProgressTracker(job, model.BreakdownSteps, repo, log)

		// --- Act / Assert ---
		cases := []struct {
			status model.JobStatus
			want   int
		}{
			{model.JobStatusParsing, 0},
			{model.JobStatusChunking, 5},
			{model.JobStatusExtractingScenes, 10},
			{model.JobStatusExtractingElements, 40},
			{model.JobStatusLinkingCast, 60},
			{model.JobStatusEnrichingScenes, 70},
			{model.JobStatusEstimatingTimes, 80},
			{model.JobStatusPersistingRecords, 85},
			{model.JobStatusSuggestingCrew, 95},
		}
		for _, c := range cases {
			if err := tr.TransitionTo(ctx, c.status); err != nil {
				t.Fatalf("transition to %s: %v", c.status, err)
			}
			if got := repo.Get("job-1").Progress; got != c.want {
				t.Errorf("%s: expected progress %d, got %d", c.status, c.want, got)
			}
		}
	})

	t.Run("should blend intra-step progress into the step band", func(t *testing.T) {
		// --- Arrange ---
		repo := NewMockJobRepo()
		job := seedJob(repo, "job-1")
		tr := NewProgressTracker(job, model.BreakdownSteps, repo, log)
		if err := tr.TransitionTo(ctx, model.JobStatusExtractingScenes); err != nil {
			t.Fatal(err)
		}

		// --- Act ---
		if err := tr.UpdateProgress(ctx, model.JobStatusExtractingScenes, 5, 10, "processing chunks"); err != nil {
			t.Fatal(err)
		}

		// --- Assert ---
		// weightBefore=10, 5/10 of weight 30 => 25%.
		got := repo.Get("job-1")
		if got.Progress != 25 {
			t.Errorf("expected progress 25, got %d", got.Progress)
		}
		if got.StepDescription != "processing chunks (5/10)" {
			t.Errorf("unexpected description %q", got.StepDescription)
		}
	})

	t.Run("should never decrease progress", func(t *testing.T) {
		// --- Arrange ---
		repo := NewMockJobRepo()
		job := seedJob(repo, "job-1")
		tr := NewProgressTracker(job, model.BreakdownSteps, repo, log)

		if err := tr.TransitionTo(ctx, model.JobStatusExtractingElements); err != nil {
			t.Fatal(err)
		}
		high := repo.Get("job-1").Progress

		// --- Act ---
		// A transition whose natural percent is lower must clamp up.
		if err := tr.TransitionTo(ctx, model.JobStatusChunking); err != nil {
			t.Fatal(err)
		}

		// --- Assert ---
		if got := repo.Get("job-1").Progress; got < high {
			t.Errorf("progress decreased from %d to %d", high, got)
		}
	})

	t.Run("should cap blended progress at 99", func(t *testing.T) {
		// --- Arrange ---
		repo := NewMockJobRepo()
		job := seedJob(repo, "job-1")
		tr := NewProgressTracker(job, model.BreakdownSteps, repo, log)

		// --- Act ---
		// Full completion of the last step would compute 100.
		if err := tr.UpdateProgress(ctx, model.JobStatusSuggestingCrew, 10, 10, "crew"); err != nil {
			t.Fatal(err)
		}

		// --- Assert ---
		if got := repo.Get("job-1").Progress; got != 99 {
			t.Errorf("expected progress capped at 99, got %d", got)
		}
	})

	t.Run("should write 100 only on completion", func(t *testing.T) {
		// --- Arrange ---
		repo := NewMockJobRepo()
		job := seedJob(repo, "job-1")
		tr := NewProgressTracker(job, model.BreakdownSteps, repo, log)

		// --- Act ---
		if err := tr.Complete(ctx, []byte(`{"scenes":3}`)); err != nil {
			t.Fatal(err)
		}

		// --- Assert ---
		got := repo.Get("job-1")
		if got.Status != model.JobStatusCompleted {
			t.Errorf("expected completed, got %s", got.Status)
		}
		if got.Progress != 100 {
			t.Errorf("expected progress 100, got %d", got.Progress)
		}
		if got.CompletedAt == nil {
			t.Error("expected completed_at to be set")
		}
	})

	t.Run("should reject a transition to an unknown step", func(t *testing.T) {
		repo := NewMockJobRepo()
		job := seedJob(repo, "job-1")
		tr := NewProgressTracker(job, model.BreakdownSteps, repo, log)

		if err := tr.TransitionTo(ctx, model.JobStatus("mystery_step")); err == nil {
			t.Fatal("expected an error for an unknown step")
		}
	})

	t.Run("should clamp over-reported completion to the step weight", func(t *testing.T) {
		repo := NewMockJobRepo()
		job := seedJob(repo, "job-1")
		tr := NewProgressTracker(job, model.BreakdownSteps, repo, log)

		// 15 of 10 chunks done; fraction clamps to 1.
		if err := tr.UpdateProgress(ctx, model.JobStatusParsing, 15, 10, "parsing"); err != nil {
			t.Fatal(err)
		}
		if got := repo.Get("job-1").Progress; got != 5 {
			t.Errorf("expected progress 5, got %d", got)
		}
	})

	t.Run("should report cancellation from the job row", func(t *testing.T) {
		// --- Arrange ---
		repo := NewMockJobRepo()
		job := seedJob(repo, "job-1")
		tr := NewProgressTracker(job, model.BreakdownSteps, repo, log)

		cancelled, err := tr.IsCancelled(ctx)
		if err != nil || cancelled {
			t.Fatalf("expected not cancelled, got %v, %v", cancelled, err)
		}

		// --- Act ---
		if err := tr.Cancel(ctx); err != nil {
			t.Fatal(err)
		}

		// --- Assert ---
		cancelled, err = tr.IsCancelled(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !cancelled {
			t.Error("expected cancelled after Cancel")
		}
	})
}
