package model

import "time"

type JobStatus string

const (
	JobStatusPending            JobStatus = "pending"
	JobStatusParsing            JobStatus = "parsing"
	JobStatusChunking           JobStatus = "chunking"
	JobStatusExtractingScenes   JobStatus = "extracting_scenes"
	JobStatusExtractingElements JobStatus = "extracting_elements"
	JobStatusLinkingCast        JobStatus = "linking_cast"
	JobStatusEnrichingScenes    JobStatus = "enriching_scenes"
	JobStatusEstimatingTimes    JobStatus = "estimating_times"
	JobStatusPersistingRecords  JobStatus = "persisting_records"
	JobStatusSuggestingCrew     JobStatus = "suggesting_crew"
	JobStatusCompleted          JobStatus = "completed"
	JobStatusFailed             JobStatus = "failed"
	JobStatusCancelled          JobStatus = "cancelled"
)

// Terminal reports whether the status is final. Terminal jobs are immutable.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Active reports whether the job still occupies its document's single
// active-job slot (pending included).
func (s JobStatus) Active() bool { return !s.Terminal() }

type JobKind string

const (
	JobKindScriptBreakdown JobKind = "script_breakdown"
)

// Job is one run of the extraction pipeline over one script document.
type Job struct {
	ID              string
	ProjectID       string
	DocumentID      string
	Kind            JobKind
	Status          JobStatus
	CurrentStep     int
	TotalSteps      int
	Progress        int // 0..100, never decreases while active
	StepDescription string
	Result          []byte // JSON JobResult, set on completion
	ErrorMessage    string
	ErrorDetails    string
	Context         []byte // serialized ExtractionContext, for resumption
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	ProcessingMS    int64
}

// JobResult is the aggregate payload stored on a completed job.
type JobResult struct {
	Scenes          int      `json:"scenes"`
	Elements        int      `json:"elements"`
	CastMembers     int      `json:"cast_members"`
	CrewSuggestions int      `json:"crew_suggestions"`
	ChunksProcessed int      `json:"chunks_processed"`
	ChunksFailed    int      `json:"chunks_failed"`
	Warnings        []string `json:"warnings,omitempty"`
}
