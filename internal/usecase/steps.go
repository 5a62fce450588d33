package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"script-breakdown/internal/chunker"
	"script-breakdown/internal/domain"
	"script-breakdown/internal/domain/model"
	"script-breakdown/internal/domain/ports/adapter"
	"script-breakdown/internal/domain/ports/repository"
	"script-breakdown/internal/infra/metrics"
	"script-breakdown/internal/retry"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// Pipeline holds the collaborators and intra-run scratch state for one
// script breakdown job. Steps() binds them to the ordered step table.
type Pipeline struct {
	job       *model.Job
	docs      adapter.DocumentStore
	ai        adapter.ModelAdapter
	retrier   *retry.Handler
	jobUC     *JobUseCase
	breakdown repository.BreakdownRepository
	tm        repository.TransactionManager
	chunkOpts chunker.Options
	batchSize int
	log       *zerolog.Logger

	// scratch state produced by earlier steps for later ones
	text   string
	chunks []model.Chunk
}

func NewPipeline(
	job *model.Job,
	docs adapter.DocumentStore,
	ai adapter.ModelAdapter,
	retrier *retry.Handler,
	jobUC *JobUseCase,
	breakdown repository.BreakdownRepository,
	tm repository.TransactionManager,
	chunkOpts chunker.Options,
	batchSize int,
	logger *zerolog.Logger,
) *Pipeline {
	if batchSize <= 0 {
		batchSize = 4
	}
	l := logger.With().Str("component", "Pipeline").Str("job_id", job.ID).Logger()
	return &Pipeline{
		job:       job,
		docs:      docs,
		ai:        ai,
		retrier:   retrier,
		jobUC:     jobUC,
		breakdown: breakdown,
		tm:        tm,
		chunkOpts: chunkOpts,
		batchSize: batchSize,
		log:       &l,
	}
}

// Steps returns the pipeline bound to this job, in the order and with
// the weights of the step table.
func (p *Pipeline) Steps() []PipelineStep {
	runners := map[model.JobStatus]StepFunc{
		model.JobStatusParsing:            p.runParsing,
		model.JobStatusChunking:           p.runChunking,
		model.JobStatusExtractingScenes:   p.runExtractScenes,
		model.JobStatusExtractingElements: p.runExtractElements,
		model.JobStatusLinkingCast:        p.runLinkCast,
		model.JobStatusEnrichingScenes:    p.runEnrichScenes,
		model.JobStatusEstimatingTimes:    p.runEstimateTimes,
		model.JobStatusPersistingRecords:  p.runPersistRecords,
		model.JobStatusSuggestingCrew:     p.runSuggestCrew,
	}
	defs := model.StepsForKind(p.job.Kind)
	steps := make([]PipelineStep, 0, len(defs))
	for _, def := range defs {
		steps = append(steps, PipelineStep{Def: def, Run: runners[def.Status]})
	}
	return steps
}

func fail(err error) StepResult { return StepResult{Err: err} }

func failContinue(err error) StepResult {
	return StepResult{Err: err, ShouldContinue: true}
}

// ---- parsing ----

func (p *Pipeline) runParsing(ctx context.Context, ec *model.ExtractionContext, _ *ProgressTracker) StepResult {
	var text string
	err := p.retrier.Execute(ctx, "fetch document text", func(ctx context.Context) error {
		var ferr error
		text, ferr = p.docs.FetchText(ctx, p.job.DocumentID)
		return ferr
	})
	if err != nil {
		return fail(err)
	}
	if strings.TrimSpace(text) == "" {
		return fail(domain.ErrEmptyDocument)
	}
	p.text = text
	return StepResult{Success: true}
}

// ---- chunking ----

func (p *Pipeline) runChunking(ctx context.Context, ec *model.ExtractionContext, _ *ProgressTracker) StepResult {
	chunks := chunker.Chunk(p.text, p.chunkOpts)
	if err := p.jobUC.SaveChunks(ctx, p.job.ID, chunks); err != nil {
		return fail(fmt.Errorf("save chunks: %w", err))
	}
	p.chunks = chunks
	p.log.Info().Int("chunks", len(chunks)).Msg("script chunked")
	return StepResult{Success: true}
}

// ---- scene extraction ----

type sceneDTO struct {
	Heading    string   `json:"heading"`
	Interior   bool     `json:"interior"`
	TimeOfDay  string   `json:"time_of_day"`
	Location   string   `json:"location"`
	Synopsis   string   `json:"synopsis"`
	Characters []string `json:"characters"`
}

const sceneSystemPrompt = `You are a script breakdown assistant. Given a portion of a screenplay,
return ONLY a JSON array of the scenes it contains, in script order. Each
entry: {"heading": slug line, "interior": bool, "time_of_day": "DAY|NIGHT|DUSK|DAWN|CONTINUOUS",
"location": set name, "synopsis": one sentence, "characters": [speaking character names]}.
Do not invent scenes. Ignore any scene the excerpt only continues from a previous portion
when the continuation context already covers its heading.`

func (p *Pipeline) runExtractScenes(ctx context.Context, ec *model.ExtractionContext, tracker *ProgressTracker) StepResult {
	if len(p.chunks) == 0 {
		return fail(fmt.Errorf("no chunks to extract from: %w", domain.ErrInvalidArgument))
	}

	perChunk := make([][]sceneDTO, len(p.chunks))
	ops := make([]retry.Operation, len(p.chunks))
	for i := range p.chunks {
		i := i
		ops[i] = retry.Operation{
			Label: fmt.Sprintf("extract scenes chunk %d", i),
			Do: func(ctx context.Context) error {
				msgs := []adapter.Message{{Role: "system", Content: sceneSystemPrompt}}
				// Cross-chunk continuity is a best-effort hint only.
				if hint := chunker.OverlapContext(p.chunks, i, p.chunkOpts.Overlap); hint != "" {
					msgs = append(msgs, adapter.Message{Role: "user", Content: "Continuation context (already processed):\n" + hint})
				}
				msgs = append(msgs, adapter.Message{Role: "user", Content: p.chunks[i].Text})
				raw, err := p.complete(ctx, msgs)
				if err != nil {
					return err
				}
				scenes, err := parseJSONArray[sceneDTO](raw)
				if err != nil {
					return retry.NonRetryable(fmt.Errorf("parse scene response: %w", err))
				}
				perChunk[i] = scenes
				return nil
			},
		}
	}

	results := p.retrier.ExecuteAll(ctx, ops, retry.BatchOptions{
		Concurrency:     p.batchSize,
		ContinueOnError: true,
	})

	// Reduce in chunk-index order so scene numbering stays continuous
	// even when fetches completed out of order.
	done := 0
	for i, res := range results {
		done++
		c := p.chunks[i]
		if !res.Success() {
			c.Error = res.Err.Error()
			ec.ChunksFailed++
			ec.Warn(fmt.Sprintf("chunk %d scene extraction failed: %v", i, res.Err))
		} else {
			for _, dto := range perChunk[i] {
				ec.LastSceneNumber++
				ec.Scenes = append(ec.Scenes, model.Scene{
					ID:          uuid.NewString(),
					ProjectID:   p.job.ProjectID,
					Number:      ec.LastSceneNumber,
					Heading:     strings.TrimSpace(dto.Heading),
					Interior:    dto.Interior,
					TimeOfDay:   strings.ToUpper(strings.TrimSpace(dto.TimeOfDay)),
					Location:    strings.TrimSpace(dto.Location),
					Synopsis:    strings.TrimSpace(dto.Synopsis),
					Characters:  dto.Characters,
					SourceChunk: i,
				})
			}
			c.Processed = true
			if payload, err := json.Marshal(perChunk[i]); err == nil {
				c.Result = string(payload)
			}
			ec.ChunksProcessed++
		}
		if err := p.jobUC.UpdateChunk(ctx, &c); err != nil {
			p.log.Warn().Err(err).Int("chunk", i).Msg("chunk update failed")
		}
		p.chunks[i] = c
		if err := tracker.UpdateProgress(ctx, model.JobStatusExtractingScenes, done, len(results), "Extracting scenes"); err != nil {
			p.log.Warn().Err(err).Msg("progress update failed")
		}
	}

	if ec.ChunksProcessed == 0 {
		return fail(fmt.Errorf("all %d chunks failed scene extraction", len(p.chunks)))
	}
	return StepResult{Success: true}
}

// ---- element extraction ----

type elementDTO struct {
	Scene    int    `json:"scene"`
	Category string `json:"category"`
	Name     string `json:"name"`
}

const elementSystemPrompt = `You are a script breakdown assistant. Given a portion of a screenplay
and the numbers of the scenes it contains, return ONLY a JSON array of production elements:
{"scene": scene number, "category": "prop|wardrobe|vehicle|set_dressing|sfx|animal|stunt", "name": short name}.
List only elements the text explicitly calls for.`

func (p *Pipeline) runExtractElements(ctx context.Context, ec *model.ExtractionContext, tracker *ProgressTracker) StepResult {
	// Only chunks that produced scenes are worth mining for elements.
	type target struct {
		chunkIndex int
		firstScene int
		lastScene  int
	}
	var targets []target
	for i := range p.chunks {
		first, last := 0, 0
		for _, s := range ec.Scenes {
			if s.SourceChunk != i {
				continue
			}
			if first == 0 {
				first = s.Number
			}
			last = s.Number
		}
		if first > 0 {
			targets = append(targets, target{chunkIndex: i, firstScene: first, lastScene: last})
		}
	}
	if len(targets) == 0 {
		return failContinue(fmt.Errorf("no scenes available for element extraction"))
	}

	perTarget := make([][]elementDTO, len(targets))
	ops := make([]retry.Operation, len(targets))
	for ti, t := range targets {
		ti, t := ti, t
		ops[ti] = retry.Operation{
			Label: fmt.Sprintf("extract elements chunk %d", t.chunkIndex),
			Do: func(ctx context.Context) error {
				msgs := []adapter.Message{
					{Role: "system", Content: elementSystemPrompt},
					{Role: "user", Content: fmt.Sprintf("Scenes %d-%d.\n\n%s", t.firstScene, t.lastScene, p.chunks[t.chunkIndex].Text)},
				}
				raw, err := p.complete(ctx, msgs)
				if err != nil {
					return err
				}
				elems, err := parseJSONArray[elementDTO](raw)
				if err != nil {
					return retry.NonRetryable(fmt.Errorf("parse element response: %w", err))
				}
				perTarget[ti] = elems
				return nil
			},
		}
	}

	results := p.retrier.ExecuteAll(ctx, ops, retry.BatchOptions{
		Concurrency:     p.batchSize,
		ContinueOnError: true,
	})

	failed := 0
	for ti, res := range results {
		if !res.Success() {
			failed++
			ec.Warn(fmt.Sprintf("chunk %d element extraction failed: %v", targets[ti].chunkIndex, res.Err))
			continue
		}
		for _, dto := range perTarget[ti] {
			cat := model.ElementCategory(strings.ToLower(strings.TrimSpace(dto.Category)))
			name := strings.TrimSpace(dto.Name)
			if name == "" || dto.Scene <= 0 {
				continue
			}
			ec.Elements = append(ec.Elements, model.BreakdownElement{
				ID:          uuid.NewString(),
				ProjectID:   p.job.ProjectID,
				SceneNumber: dto.Scene,
				Category:    cat,
				Name:        name,
			})
		}
		if err := tracker.UpdateProgress(ctx, model.JobStatusExtractingElements, ti+1, len(results), "Extracting breakdown elements"); err != nil {
			p.log.Warn().Err(err).Msg("progress update failed")
		}
	}
	if failed == len(results) {
		return fail(fmt.Errorf("all %d chunks failed element extraction", len(results)))
	}
	return StepResult{Success: true}
}

// ---- cast linking ----

// runLinkCast assigns stable breakdown numbers to characters in order of
// first appearance. Pure bookkeeping, scene order matters.
func (p *Pipeline) runLinkCast(_ context.Context, ec *model.ExtractionContext, _ *ProgressTracker) StepResult {
	for _, s := range ec.Scenes {
		for _, name := range s.Characters {
			name = strings.ToUpper(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			ec.CastNumberFor(name)
		}
	}
	return StepResult{Success: true}
}

// ---- scene enrichment (optional) ----

func (p *Pipeline) runEnrichScenes(ctx context.Context, ec *model.ExtractionContext, tracker *ProgressTracker) StepResult {
	var missing []int
	for i, s := range ec.Scenes {
		if s.Synopsis == "" {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return StepResult{Success: true}
	}

	ops := make([]retry.Operation, len(missing))
	synopses := make([]string, len(missing))
	for oi, si := range missing {
		oi, si := oi, si
		ops[oi] = retry.Operation{
			Label: fmt.Sprintf("synopsis scene %d", ec.Scenes[si].Number),
			Do: func(ctx context.Context) error {
				s := ec.Scenes[si]
				msgs := []adapter.Message{
					{Role: "system", Content: "Write a one-sentence synopsis for the described screenplay scene. Respond with the sentence only."},
					{Role: "user", Content: fmt.Sprintf("Scene %d: %s. Characters: %s.", s.Number, s.Heading, strings.Join(s.Characters, ", "))},
				}
				raw, err := p.complete(ctx, msgs)
				if err != nil {
					return err
				}
				synopses[oi] = strings.TrimSpace(raw)
				return nil
			},
		}
	}

	results := p.retrier.ExecuteAll(ctx, ops, retry.BatchOptions{Concurrency: p.batchSize, ContinueOnError: true})
	enriched := 0
	for oi, res := range results {
		if res.Success() && synopses[oi] != "" {
			ec.Scenes[missing[oi]].Synopsis = synopses[oi]
			enriched++
		}
		if err := tracker.UpdateProgress(ctx, model.JobStatusEnrichingScenes, oi+1, len(results), "Writing scene synopses"); err != nil {
			p.log.Warn().Err(err).Msg("progress update failed")
		}
	}
	if enriched == 0 {
		return failContinue(fmt.Errorf("no synopses generated for %d scenes", len(missing)))
	}
	return StepResult{Success: true}
}

// ---- time estimates (optional, heuristic) ----

const minutesPerEighth = 15 // rough shoot-time planning figure

func (p *Pipeline) runEstimateTimes(_ context.Context, ec *model.ExtractionContext, _ *ProgressTracker) StepResult {
	if len(ec.Scenes) == 0 {
		return failContinue(fmt.Errorf("no scenes to estimate"))
	}
	// Distribute each chunk's length evenly over the scenes it produced;
	// an eighth of a page is the standard scheduling unit.
	perChunkScenes := map[int]int{}
	for _, s := range ec.Scenes {
		perChunkScenes[s.SourceChunk]++
	}
	for i := range ec.Scenes {
		s := &ec.Scenes[i]
		if s.PageEighths > 0 {
			continue
		}
		chunkLen := 0
		if s.SourceChunk >= 0 && s.SourceChunk < len(p.chunks) {
			chunkLen = len(p.chunks[s.SourceChunk].Text)
		}
		n := perChunkScenes[s.SourceChunk]
		if n == 0 || chunkLen == 0 {
			s.PageEighths = 1
		} else {
			eighths := chunkLen / n / (chunker.CharsPerPage / 8)
			if eighths < 1 {
				eighths = 1
			}
			s.PageEighths = eighths
		}
		s.EstimatedMins = s.PageEighths * minutesPerEighth
	}
	return StepResult{Success: true}
}

// ---- persistence ----

func (p *Pipeline) runPersistRecords(ctx context.Context, ec *model.ExtractionContext, _ *ProgressTracker) StepResult {
	scenes := make([]*model.Scene, len(ec.Scenes))
	for i := range ec.Scenes {
		ec.Scenes[i].Synopsis = Sanitize(ec.Scenes[i].Synopsis)
		scenes[i] = &ec.Scenes[i]
	}
	elements := make([]*model.BreakdownElement, len(ec.Elements))
	for i := range ec.Elements {
		elements[i] = &ec.Elements[i]
	}

	err := p.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ns, err := p.breakdown.SaveScenes(ctx, tx, scenes)
		if err != nil {
			return fmt.Errorf("save scenes: %w", err)
		}
		ne, err := p.breakdown.SaveElements(ctx, tx, elements)
		if err != nil {
			return fmt.Errorf("save elements: %w", err)
		}
		ec.ScenesCreated = ns
		ec.ElementsCreated = ne
		return nil
	})
	if err != nil {
		// Persistence failures are never retried.
		return fail(err)
	}
	metrics.AddRecords(ec.ScenesCreated, ec.ElementsCreated)
	return StepResult{Success: true}
}

// ---- crew suggestions (optional, heuristic) ----

var crewByCategory = map[model.ElementCategory][2]string{
	model.ElementStunt:   {"Stunts", "Stunt Coordinator"},
	model.ElementAnimal:  {"Production", "Animal Wrangler"},
	model.ElementVehicle: {"Transportation", "Picture Car Coordinator"},
	model.ElementSFX:     {"Special Effects", "SFX Supervisor"},
}

func (p *Pipeline) runSuggestCrew(ctx context.Context, ec *model.ExtractionContext, _ *ProgressTracker) StepResult {
	counts := map[model.ElementCategory]int{}
	for _, e := range ec.Elements {
		counts[e.Category]++
	}
	for cat, crew := range crewByCategory {
		if counts[cat] == 0 {
			continue
		}
		ec.CrewSuggestions = append(ec.CrewSuggestions, model.CrewSuggestion{
			ID:         uuid.NewString(),
			ProjectID:  p.job.ProjectID,
			Department: crew[0],
			Role:       crew[1],
			Reason:     fmt.Sprintf("%d %s elements in breakdown", counts[cat], cat),
		})
	}
	night := 0
	for _, s := range ec.Scenes {
		if s.TimeOfDay == "NIGHT" {
			night++
		}
	}
	if len(ec.Scenes) > 0 && night*2 > len(ec.Scenes) {
		ec.CrewSuggestions = append(ec.CrewSuggestions, model.CrewSuggestion{
			ID:         uuid.NewString(),
			ProjectID:  p.job.ProjectID,
			Department: "Electric",
			Role:       "Additional Gaffer",
			Reason:     fmt.Sprintf("%d of %d scenes shoot at night", night, len(ec.Scenes)),
		})
	}
	if len(ec.CrewSuggestions) == 0 {
		return StepResult{Success: true}
	}

	suggestions := make([]*model.CrewSuggestion, len(ec.CrewSuggestions))
	for i := range ec.CrewSuggestions {
		suggestions[i] = &ec.CrewSuggestions[i]
	}
	if _, err := p.breakdown.SaveCrewSuggestions(ctx, nil, suggestions); err != nil {
		return failContinue(fmt.Errorf("save crew suggestions: %w", err))
	}
	return StepResult{Success: true}
}

// ---- helpers ----

func (p *Pipeline) complete(ctx context.Context, msgs []adapter.Message) (string, error) {
	start := time.Now()
	out, usage, err := p.ai.Complete(ctx, msgs)
	metrics.ObserveModelCall(p.ai.Name(), usage.PromptTokens, usage.CompletionTokens, time.Since(start), err == nil)
	return out, err
}

// parseJSONArray tolerates prose around the JSON payload by slicing from
// the first '[' to the last ']'.
func parseJSONArray[T any](raw string) ([]T, error) {
	start := strings.IndexByte(raw, '[')
	end := strings.LastIndexByte(raw, ']')
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON array in model response")
	}
	var out []T
	if err := json.Unmarshal([]byte(raw[start:end+1]), &out); err != nil {
		return nil, err
	}
	return out, nil
}
