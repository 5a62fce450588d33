package model

// Breakdown records produced by the pipeline. These are the rows the
// persisting step writes; the extraction steps accumulate them on the
// ExtractionContext first.

type Scene struct {
	ID            string
	ProjectID     string
	Number        int
	Heading       string
	Interior      bool
	TimeOfDay     string // DAY, NIGHT, DUSK, DAWN, CONTINUOUS
	Location      string
	Synopsis      string
	Characters    []string
	PageEighths   int // script length in eighths of a page
	EstimatedMins int // estimated shoot time, zero when not computed
	SourceChunk   int
}

type ElementCategory string

const (
	ElementProp     ElementCategory = "prop"
	ElementWardrobe ElementCategory = "wardrobe"
	ElementVehicle  ElementCategory = "vehicle"
	ElementSetDress ElementCategory = "set_dressing"
	ElementSFX      ElementCategory = "sfx"
	ElementAnimal   ElementCategory = "animal"
	ElementStunt    ElementCategory = "stunt"
)

type BreakdownElement struct {
	ID          string
	ProjectID   string
	SceneNumber int
	Category    ElementCategory
	Name        string
}

// CastMember links a character name to its stable breakdown number.
// Numbers are assigned in order of first appearance and stay consistent
// across chunk boundaries.
type CastMember struct {
	Name       string
	Number     int
	SceneCount int
}

type CrewSuggestion struct {
	ID         string
	ProjectID  string
	Department string
	Role       string
	Reason     string
}
