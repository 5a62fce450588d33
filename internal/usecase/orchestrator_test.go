package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"script-breakdown/internal/domain"
	"script-breakdown/internal/domain/model"
	"script-breakdown/internal/domain/ports/repository"
)

// threeSteps is a minimal pipeline for orchestration tests.
func threeSteps(run1, run2, run3 StepFunc) []PipelineStep {
	return []PipelineStep{
		{Def: model.StepDef{Status: model.JobStatusParsing, Weight: 20, Description: "one"}, Run: run1},
		{Def: model.StepDef{Status: model.JobStatusChunking, Weight: 30, Description: "two"}, Run: run2},
		{Def: model.StepDef{Status: model.JobStatusExtractingScenes, Weight: 50, Description: "three"}, Run: run3},
	}
}

func ok(ctx context.Context, ec *model.ExtractionContext, tr *ProgressTracker) StepResult {
	return StepResult{Success: true}
}

func TestOrchestratorRun(t *testing.T) {
	ctx := context.Background()
	log := newTestLogger()

	t.Run("should run every step and complete the job", func(t *testing.T) {
		// --- Arrange ---
		repo := NewMockJobRepo()
		job := seedJob(repo, "job-1")
		var order []string
		mk := func(name string) StepFunc {
			return func(ctx context.Context, ec *model.ExtractionContext, tr *ProgressTracker) StepResult {
				order = append(order, name)
				return StepResult{Success: true}
			}
		}
		steps := threeSteps(mk("one"), mk("two"), mk("three"))
		tr := NewProgressTracker(job, stepDefs(steps), repo, log)
		orch := NewOrchestrator(steps, tr, log)

		// --- Act ---
		err := orch.Run(ctx, model.NewExtractionContext())

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if strings.Join(order, ",") != "one,two,three" {
			t.Errorf("steps ran out of order: %v", order)
		}
		got := repo.Get("job-1")
		if got.Status != model.JobStatusCompleted {
			t.Errorf("expected completed, got %s", got.Status)
		}
		if got.Progress != 100 {
			t.Errorf("expected progress 100, got %d", got.Progress)
		}
	})

	t.Run("should stop at a step boundary when the job is cancelled", func(t *testing.T) {
		// --- Arrange ---
		repo := NewMockJobRepo()
		job := seedJob(repo, "job-1")
		ran3 := false
		cancelAfter := func(ctx context.Context, ec *model.ExtractionContext, tr *ProgressTracker) StepResult {
			// Someone cancels while the step runs.
			_ = tr.Cancel(ctx)
			return StepResult{Success: true}
		}
		step3 := func(ctx context.Context, ec *model.ExtractionContext, tr *ProgressTracker) StepResult {
			ran3 = true
			return StepResult{Success: true}
		}
		steps := threeSteps(ok, cancelAfter, step3)
		tr := NewProgressTracker(job, stepDefs(steps), repo, log)
		orch := NewOrchestrator(steps, tr, log)

		// --- Act ---
		err := orch.Run(ctx, model.NewExtractionContext())

		// --- Assert ---
		if !errors.Is(err, domain.ErrJobCancelled) {
			t.Fatalf("expected ErrJobCancelled, got: %v", err)
		}
		if ran3 {
			t.Error("step after cancellation should not run")
		}
		if got := repo.Get("job-1"); got.Status != model.JobStatusCancelled {
			t.Errorf("cancelled job must stay cancelled, got %s", got.Status)
		}
	})

	t.Run("should fail the job and record the last successful step", func(t *testing.T) {
		// --- Arrange ---
		repo := NewMockJobRepo()
		job := seedJob(repo, "job-1")
		boom := errors.New("model returned garbage")
		failing := func(ctx context.Context, ec *model.ExtractionContext, tr *ProgressTracker) StepResult {
			return StepResult{Err: boom, ErrorDetails: "all 4 chunks failed"}
		}
		steps := threeSteps(ok, failing, ok)
		tr := NewProgressTracker(job, stepDefs(steps), repo, log)
		orch := NewOrchestrator(steps, tr, log)

		// --- Act ---
		err := orch.Run(ctx, model.NewExtractionContext())

		// --- Assert ---
		if !errors.Is(err, boom) {
			t.Fatalf("expected the step error, got: %v", err)
		}
		got := repo.Get("job-1")
		if got.Status != model.JobStatusFailed {
			t.Errorf("expected failed, got %s", got.Status)
		}
		if !strings.Contains(got.ErrorMessage, "step chunking failed") {
			t.Errorf("unexpected error message %q", got.ErrorMessage)
		}
		if !strings.Contains(got.ErrorDetails, "last successful step: parsing (index 0)") {
			t.Errorf("expected last successful step in details, got %q", got.ErrorDetails)
		}
		if !strings.Contains(got.ErrorDetails, "all 4 chunks failed") {
			t.Errorf("expected step details preserved, got %q", got.ErrorDetails)
		}
	})

	t.Run("should continue past an optional step failure with a warning", func(t *testing.T) {
		// --- Arrange ---
		repo := NewMockJobRepo()
		job := seedJob(repo, "job-1")
		steps := threeSteps(ok,
			func(ctx context.Context, ec *model.ExtractionContext, tr *ProgressTracker) StepResult {
				return StepResult{Err: errors.New("enrichment provider down")}
			}, ok)
		steps[1].Def.Optional = true
		tr := NewProgressTracker(job, stepDefs(steps), repo, log)
		orch := NewOrchestrator(steps, tr, log)
		ec := model.NewExtractionContext()

		// --- Act ---
		err := orch.Run(ctx, ec)

		// --- Assert ---
		if err != nil {
			t.Fatalf("optional failure must not fail the job, got: %v", err)
		}
		got := repo.Get("job-1")
		if got.Status != model.JobStatusCompleted {
			t.Errorf("expected completed, got %s", got.Status)
		}
		var res model.JobResult
		if err := json.Unmarshal(got.Result, &res); err != nil {
			t.Fatalf("result should be JSON: %v", err)
		}
		found := false
		for _, w := range res.Warnings {
			if strings.Contains(w, "chunking skipped") {
				found = true
			}
		}
		if !found {
			t.Errorf("expected a skip warning, got %v", res.Warnings)
		}
	})

	t.Run("should honor ShouldContinue from a degraded step", func(t *testing.T) {
		repo := NewMockJobRepo()
		job := seedJob(repo, "job-1")
		steps := threeSteps(ok,
			func(ctx context.Context, ec *model.ExtractionContext, tr *ProgressTracker) StepResult {
				return StepResult{Err: errors.New("partial failure"), ShouldContinue: true}
			}, ok)
		tr := NewProgressTracker(job, stepDefs(steps), repo, log)
		orch := NewOrchestrator(steps, tr, log)

		if err := orch.Run(ctx, model.NewExtractionContext()); err != nil {
			t.Fatalf("ShouldContinue failure must not fail the job, got: %v", err)
		}
		if got := repo.Get("job-1"); got.Status != model.JobStatusCompleted {
			t.Errorf("expected completed, got %s", got.Status)
		}
	})

	t.Run("should aggregate counts and warnings into the result", func(t *testing.T) {
		// --- Arrange ---
		repo := NewMockJobRepo()
		job := seedJob(repo, "job-1")
		fill := func(ctx context.Context, ec *model.ExtractionContext, tr *ProgressTracker) StepResult {
			ec.Scenes = []model.Scene{
				{Number: 1, Heading: "INT. A - DAY", Synopsis: "opening", EstimatedMins: 30},
				{Number: 2, Heading: "EXT. B - NIGHT"}, // no synopsis, no estimate
			}
			ec.Cast = []model.CastMember{{Name: "ALICE", Number: 1}}
			ec.ScenesCreated = 2
			ec.ElementsCreated = 5
			ec.ChunksProcessed = 3
			ec.ChunksFailed = 1
			ec.Warn("1 of 4 chunks failed")
			return StepResult{Success: true}
		}
		steps := threeSteps(ok, fill, ok)
		tr := NewProgressTracker(job, stepDefs(steps), repo, log)
		orch := NewOrchestrator(steps, tr, log)

		// --- Act ---
		if err := orch.Run(ctx, model.NewExtractionContext()); err != nil {
			t.Fatal(err)
		}

		// --- Assert ---
		var res model.JobResult
		if err := json.Unmarshal(repo.Get("job-1").Result, &res); err != nil {
			t.Fatal(err)
		}
		if res.Scenes != 2 || res.Elements != 5 || res.CastMembers != 1 {
			t.Errorf("unexpected counts: %+v", res)
		}
		if res.ChunksProcessed != 3 || res.ChunksFailed != 1 {
			t.Errorf("unexpected chunk counts: %+v", res)
		}
		wantWarnings := []string{"1 of 4 chunks failed", "1 scenes have no synopsis", "1 scenes have no time estimate"}
		if len(res.Warnings) != len(wantWarnings) {
			t.Fatalf("expected %d warnings, got %v", len(wantWarnings), res.Warnings)
		}
		for i, w := range wantWarnings {
			if res.Warnings[i] != w {
				t.Errorf("warning %d: expected %q, got %q", i, w, res.Warnings[i])
			}
		}
	})

	t.Run("should checkpoint the context after each successful step", func(t *testing.T) {
		// --- Arrange ---
		repo := NewMockJobRepo()
		job := seedJob(repo, "job-1")
		saves := 0
		repo.SaveContextFunc = func(ctx context.Context, tx repository.Tx, id string, payload []byte) error {
			saves++
			return nil
		}
		steps := threeSteps(ok, ok, ok)
		tr := NewProgressTracker(job, stepDefs(steps), repo, log)
		orch := NewOrchestrator(steps, tr, log)

		// --- Act ---
		if err := orch.Run(ctx, model.NewExtractionContext()); err != nil {
			t.Fatal(err)
		}

		// --- Assert ---
		if saves != 3 {
			t.Errorf("expected 3 context checkpoints, got %d", saves)
		}
	})
}

func stepDefs(steps []PipelineStep) []model.StepDef {
	defs := make([]model.StepDef, len(steps))
	for i, s := range steps {
		defs[i] = s.Def
	}
	return defs
}
