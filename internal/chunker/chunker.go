package chunker

import (
	"regexp"
	"strings"

	"script-breakdown/internal/domain/model"
)

// CharsPerPage is the fixed constant used to estimate script page
// numbers from character offsets.
const CharsPerPage = 1800

// sceneHeading matches standard screenplay slug lines, optionally
// prefixed with a scene number. These are the semantic boundaries the
// chunker prefers to cut at.
var sceneHeading = regexp.MustCompile(`(?m)^[ \t]*(?:\d+[A-Z]?[ \t]+)?(?:INT\.|EXT\.|INT/EXT\.?|I/E\.?|EST\.)[^\n]*$`)

type Options struct {
	MaxSize int // hard target for a chunk; only MinSize extension may exceed it
	MinSize int // non-final chunks should not be smaller than this
	Overlap int // trailing characters offered as continuation context
}

func (o Options) withDefaults() Options {
	if o.MaxSize <= 0 {
		o.MaxSize = 12000
	}
	if o.MinSize < 0 || o.MinSize > o.MaxSize {
		o.MinSize = 0
	}
	if o.Overlap < 0 {
		o.Overlap = 0
	}
	return o
}

// Chunk splits text into ordered, size-bounded chunks cut at scene
// boundaries. It is total: every input, including the empty string,
// yields at least one chunk, and concatenating the chunk texts in index
// order reproduces the input exactly.
func Chunk(text string, opts Options) []model.Chunk {
	opts = opts.withDefaults()

	if len(text) <= opts.MaxSize {
		return []model.Chunk{makeChunk(0, text, 0, len(text), nil)}
	}

	bounds := boundaries(text, opts.MaxSize)

	var chunks []model.Chunk
	cursor := 0
	for cursor < len(text) {
		cut := cutPoint(text, bounds, cursor, opts)
		chunks = append(chunks, makeChunk(len(chunks), text[cursor:cut], cursor, cut, bounds))
		cursor = cut
	}
	return chunks
}

// cutPoint picks the end offset of the chunk starting at cursor.
func cutPoint(text string, bounds []int, cursor int, opts Options) int {
	target := cursor + opts.MaxSize
	if target >= len(text) {
		return len(text)
	}

	// Prefer the last boundary at or before the target: the biggest
	// chunk that still ends on a scene break.
	cut := lastBoundaryIn(bounds, cursor, target)
	if cut < 0 {
		// No boundary in range; a slightly oversized scene is better
		// than a mid-scene cut, so look a little past the target.
		if nb := nextBoundaryAfter(bounds, target); nb >= 0 && nb-cursor <= opts.MaxSize*12/10 {
			cut = nb
		} else {
			cut = target
		}
	}

	// Avoid a runt chunk: extend to the next boundary while the result
	// stays within 1.5x of the max size, or absorb a short tail. When
	// neither fits, cut at the full target size; a mid-scene cut is
	// still better than an undersized chunk.
	if cut-cursor < opts.MinSize && cut < len(text) {
		if nb := nextBoundaryAfter(bounds, cut); nb >= 0 && nb-cursor <= opts.MaxSize*3/2 {
			cut = nb
		} else if len(text)-cursor <= opts.MaxSize*3/2 {
			cut = len(text)
		} else {
			cut = target
		}
	}

	if cut <= cursor { // never stall
		cut = target
		if cut > len(text) {
			cut = len(text)
		}
	}
	return cut
}

// boundaries returns the sorted start offsets of every scene heading.
// When the text has none, synthetic boundaries every maxSize/2 keep the
// algorithm total.
func boundaries(text string, maxSize int) []int {
	locs := sceneHeading.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		step := maxSize / 2
		if step <= 0 {
			step = 1
		}
		var synth []int
		for off := step; off < len(text); off += step {
			synth = append(synth, off)
		}
		return synth
	}
	offs := make([]int, len(locs))
	for i, l := range locs {
		offs[i] = l[0]
	}
	return offs
}

// lastBoundaryIn returns the largest boundary b with cursor < b <= limit,
// or -1.
func lastBoundaryIn(bounds []int, cursor, limit int) int {
	best := -1
	for _, b := range bounds {
		if b <= cursor {
			continue
		}
		if b > limit {
			break
		}
		best = b
	}
	return best
}

// nextBoundaryAfter returns the first boundary strictly after off, or -1.
func nextBoundaryAfter(bounds []int, off int) int {
	for _, b := range bounds {
		if b > off {
			return b
		}
	}
	return -1
}

func makeChunk(index int, text string, start, end int, bounds []int) model.Chunk {
	count := 0
	for _, b := range bounds {
		if b >= start && b < end {
			count++
		}
	}
	c := model.Chunk{
		Index:         index,
		Text:          text,
		FirstPage:     start/CharsPerPage + 1,
		LastPage:      start/CharsPerPage + 1,
		BoundaryCount: count,
	}
	if end > start {
		c.LastPage = (end-1)/CharsPerPage + 1
	}
	return c
}

// OverlapContext returns the trailing Overlap characters of the chunk
// preceding index, trimmed forward to the next line boundary so the
// continuation hint starts on a whole line. Pure; returns "" for the
// first chunk.
func OverlapContext(chunks []model.Chunk, index int, overlap int) string {
	if index <= 0 || index >= len(chunks) || overlap <= 0 {
		return ""
	}
	prev := chunks[index-1].Text
	if prev == "" {
		return ""
	}
	tail := prev
	if len(prev) > overlap {
		tail = prev[len(prev)-overlap:]
		// Drop the partial first line so the hint is well-formed.
		if nl := strings.IndexByte(tail, '\n'); nl >= 0 && nl+1 < len(tail) {
			tail = tail[nl+1:]
		}
	}
	return tail
}
