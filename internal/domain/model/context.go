package model

import "encoding/json"

// ContextVersion guards deserialization of persisted contexts across
// releases. Bump when the shape of ExtractionContext changes.
const ContextVersion = 1

// ExtractionContext is the per-job shared state carried between pipeline
// steps. Fields are append-only during normal execution, and the whole
// struct is JSON-serializable so a failed job can in principle resume
// from the last successfully completed step.
type ExtractionContext struct {
	Version         int                `json:"version"`
	Scenes          []Scene            `json:"scenes,omitempty"`
	Elements        []BreakdownElement `json:"elements,omitempty"`
	Cast            []CastMember       `json:"cast,omitempty"`
	CrewSuggestions []CrewSuggestion   `json:"crew_suggestions,omitempty"`

	// Ordinal markers that keep numbering consistent across chunks.
	LastSceneNumber int `json:"last_scene_number"`
	NextCastNumber  int `json:"next_cast_number"`

	ScenesCreated   int      `json:"scenes_created"`
	ElementsCreated int      `json:"elements_created"`
	ChunksProcessed int      `json:"chunks_processed"`
	ChunksFailed    int      `json:"chunks_failed"`
	Warnings        []string `json:"warnings,omitempty"`
}

func NewExtractionContext() *ExtractionContext {
	return &ExtractionContext{Version: ContextVersion, NextCastNumber: 1}
}

func (c *ExtractionContext) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

func UnmarshalExtractionContext(data []byte) (*ExtractionContext, error) {
	var c ExtractionContext
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if c.Version == 0 {
		c.Version = ContextVersion
	}
	if c.NextCastNumber == 0 {
		c.NextCastNumber = 1
	}
	return &c, nil
}

// CastNumberFor returns the stable breakdown number for a character,
// assigning the next free number on first appearance.
func (c *ExtractionContext) CastNumberFor(name string) int {
	for i := range c.Cast {
		if c.Cast[i].Name == name {
			c.Cast[i].SceneCount++
			return c.Cast[i].Number
		}
	}
	n := c.NextCastNumber
	c.NextCastNumber++
	c.Cast = append(c.Cast, CastMember{Name: name, Number: n, SceneCount: 1})
	return n
}

func (c *ExtractionContext) Warn(msg string) {
	c.Warnings = append(c.Warnings, msg)
}
