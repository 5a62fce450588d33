package model

// Chunk is a contiguous slice of the input script scoped to one Job.
// Chunks for a job are gap-free: concatenating their texts in index
// order reproduces the original document exactly.
type Chunk struct {
	ID            string
	JobID         string
	Index         int
	Text          string
	FirstPage     int
	LastPage      int
	BoundaryCount int
	Processed     bool
	Result        string
	Error         string
}
