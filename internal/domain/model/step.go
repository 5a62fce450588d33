package model

// StepDef describes one stage of the fixed pipeline. The ordered slice
// below is the single source of truth for step order, progress weights
// and descriptions; pending and the terminal statuses carry no weight.
type StepDef struct {
	Status      JobStatus
	Weight      int
	Description string
	// Optional steps degrade output quality when they fail but never
	// fail the job.
	Optional bool
}

// BreakdownSteps is the pipeline for JobKindScriptBreakdown. Weights sum
// to 100 so cumulative progress maps directly to a percentage.
var BreakdownSteps = []StepDef{
	{Status: JobStatusParsing, Weight: 5, Description: "Reading script text"},
	{Status: JobStatusChunking, Weight: 5, Description: "Splitting script into chunks"},
	{Status: JobStatusExtractingScenes, Weight: 30, Description: "Extracting scenes"},
	{Status: JobStatusExtractingElements, Weight: 20, Description: "Extracting breakdown elements"},
	{Status: JobStatusLinkingCast, Weight: 10, Description: "Linking cast members"},
	{Status: JobStatusEnrichingScenes, Weight: 10, Description: "Writing scene synopses", Optional: true},
	{Status: JobStatusEstimatingTimes, Weight: 5, Description: "Estimating shoot times", Optional: true},
	{Status: JobStatusPersistingRecords, Weight: 10, Description: "Saving breakdown records"},
	{Status: JobStatusSuggestingCrew, Weight: 5, Description: "Suggesting crew", Optional: true},
}

// StepsForKind maps a job kind to its pipeline definition.
func StepsForKind(kind JobKind) []StepDef {
	switch kind {
	case JobKindScriptBreakdown:
		return BreakdownSteps
	default:
		return nil
	}
}

func TotalWeight(steps []StepDef) int {
	total := 0
	for _, s := range steps {
		total += s.Weight
	}
	return total
}

// StepIndex returns the position of status in steps, or -1.
func StepIndex(steps []StepDef, status JobStatus) int {
	for i, s := range steps {
		if s.Status == status {
			return i
		}
	}
	return -1
}
