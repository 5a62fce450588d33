package chunker_test

import (
	"fmt"
	"strings"
	"testing"

	"script-breakdown/internal/chunker"
)

// script builds a synthetic screenplay with n scenes of roughly
// sceneLen characters each.
func script(n, sceneLen int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		heading := fmt.Sprintf("INT. LOCATION %d - NIGHT\n", i)
		b.WriteString(heading)
		body := strings.Repeat("Action line with some dialogue under it.\n", 1+sceneLen/41)
		b.WriteString(body[:sceneLen-len(heading)])
		b.WriteString("\n")
	}
	return b.String()
}

func TestChunk(t *testing.T) {
	t.Run("should return input unchanged when it fits in one chunk", func(t *testing.T) {
		text := script(3, 500)
		chunks := chunker.Chunk(text, chunker.Options{MaxSize: 12000})

		if len(chunks) != 1 {
			t.Fatalf("expected 1 chunk, got %d", len(chunks))
		}
		if chunks[0].Text != text {
			t.Error("single chunk should carry the full text")
		}
		if chunks[0].Index != 0 {
			t.Errorf("expected index 0, got %d", chunks[0].Index)
		}
	})

	t.Run("should reproduce the input exactly when concatenated", func(t *testing.T) {
		text := script(40, 900)
		chunks := chunker.Chunk(text, chunker.Options{MaxSize: 6000, MinSize: 1500})

		var b strings.Builder
		for _, c := range chunks {
			b.WriteString(c.Text)
		}
		if b.String() != text {
			t.Fatal("concatenated chunks do not reproduce the input")
		}
	})

	t.Run("should keep chunk indexes dense and ordered", func(t *testing.T) {
		chunks := chunker.Chunk(script(30, 800), chunker.Options{MaxSize: 5000})
		for i, c := range chunks {
			if c.Index != i {
				t.Fatalf("chunk %d has index %d", i, c.Index)
			}
		}
	})

	t.Run("should cut at scene boundaries within the size bounds", func(t *testing.T) {
		text := script(20, 1000)
		chunks := chunker.Chunk(text, chunker.Options{MaxSize: 4500, MinSize: 1500})

		for i, c := range chunks[:len(chunks)-1] {
			if len(c.Text) > 4500*3/2 {
				t.Errorf("chunk %d is %d chars, beyond the 1.5x extension bound", i, len(c.Text))
			}
			if len(c.Text) < 1500 {
				t.Errorf("chunk %d is %d chars, below the minimum size", i, len(c.Text))
			}
		}
		// Every chunk except possibly the first should start on a heading.
		for i := 1; i < len(chunks); i++ {
			if !strings.HasPrefix(chunks[i].Text, "INT.") {
				t.Errorf("chunk %d does not start at a scene heading: %q", i, chunks[i].Text[:24])
			}
		}
	})

	t.Run("should not emit non-final chunks below the minimum size", func(t *testing.T) {
		// A heading near the start followed by a long stretch with no
		// further headings must not leave a tiny first chunk.
		text := "FADE IN:\nOver black, a low hum.\nThe hum builds into a roar.\n" +
			"INT. WAREHOUSE - NIGHT\n" +
			strings.Repeat("Action continues without another slug line.\n", 1000)
		chunks := chunker.Chunk(text, chunker.Options{MaxSize: 12000, MinSize: 2500})

		if len(chunks) < 2 {
			t.Fatalf("expected multiple chunks, got %d", len(chunks))
		}
		for i, c := range chunks[:len(chunks)-1] {
			if len(c.Text) < 2500 {
				t.Errorf("non-final chunk %d has %d chars, below the minimum 2500", i, len(c.Text))
			}
		}
		var b strings.Builder
		for _, c := range chunks {
			b.WriteString(c.Text)
		}
		if b.String() != text {
			t.Fatal("concatenated chunks do not reproduce the input")
		}
	})

	t.Run("should be deterministic", func(t *testing.T) {
		text := script(25, 1100)
		opts := chunker.Options{MaxSize: 6000, MinSize: 2000, Overlap: 500}
		a := chunker.Chunk(text, opts)
		b := chunker.Chunk(text, opts)

		if len(a) != len(b) {
			t.Fatalf("chunk counts differ: %d vs %d", len(a), len(b))
		}
		for i := range a {
			if a[i].Text != b[i].Text {
				t.Fatalf("chunk %d differs between runs", i)
			}
		}
	})

	t.Run("should fall back to synthetic boundaries when no headings exist", func(t *testing.T) {
		text := strings.Repeat("just prose without any slug lines at all\n", 1000)
		chunks := chunker.Chunk(text, chunker.Options{MaxSize: 8000})

		if len(chunks) < 2 {
			t.Fatalf("expected multiple chunks, got %d", len(chunks))
		}
		var b strings.Builder
		for _, c := range chunks {
			b.WriteString(c.Text)
		}
		if b.String() != text {
			t.Fatal("synthetic-boundary chunking lost text")
		}
	})

	t.Run("should yield one empty chunk for empty input", func(t *testing.T) {
		chunks := chunker.Chunk("", chunker.Options{})
		if len(chunks) != 1 {
			t.Fatalf("expected 1 chunk, got %d", len(chunks))
		}
		if chunks[0].Text != "" {
			t.Error("expected empty chunk text")
		}
	})

	t.Run("should estimate pages from character offsets", func(t *testing.T) {
		text := script(20, 1800)
		chunks := chunker.Chunk(text, chunker.Options{MaxSize: 7200})

		if chunks[0].FirstPage != 1 {
			t.Errorf("first chunk should start on page 1, got %d", chunks[0].FirstPage)
		}
		last := chunks[len(chunks)-1]
		wantLast := (len(text)-1)/chunker.CharsPerPage + 1
		if last.LastPage != wantLast {
			t.Errorf("expected last page %d, got %d", wantLast, last.LastPage)
		}
	})

	t.Run("should count scene boundaries per chunk", func(t *testing.T) {
		text := script(10, 600)
		chunks := chunker.Chunk(text, chunker.Options{MaxSize: 3000})

		total := 0
		for _, c := range chunks {
			total += c.BoundaryCount
		}
		if total != 10 {
			t.Errorf("expected 10 scene boundaries across chunks, got %d", total)
		}
	})
}

func TestOverlapContext(t *testing.T) {
	text := script(30, 900)
	chunks := chunker.Chunk(text, chunker.Options{MaxSize: 5000, Overlap: 400})

	t.Run("should return empty for the first chunk", func(t *testing.T) {
		if got := chunker.OverlapContext(chunks, 0, 400); got != "" {
			t.Errorf("expected empty overlap, got %d chars", len(got))
		}
	})

	t.Run("should return empty for out-of-range index", func(t *testing.T) {
		if got := chunker.OverlapContext(chunks, len(chunks), 400); got != "" {
			t.Error("expected empty overlap for out-of-range index")
		}
	})

	t.Run("should return a suffix of the previous chunk", func(t *testing.T) {
		got := chunker.OverlapContext(chunks, 1, 400)
		if got == "" {
			t.Fatal("expected a non-empty overlap")
		}
		if len(got) > 400 {
			t.Errorf("overlap is %d chars, want <= 400", len(got))
		}
		if !strings.HasSuffix(chunks[0].Text, got) {
			t.Error("overlap is not a suffix of the previous chunk")
		}
	})

	t.Run("should start on a whole line", func(t *testing.T) {
		got := chunker.OverlapContext(chunks, 1, 400)
		prev := chunks[0].Text
		start := len(prev) - len(got)
		if start > 0 && prev[start-1] != '\n' {
			t.Error("overlap does not begin at a line boundary")
		}
	})

	t.Run("should not mutate the chunks", func(t *testing.T) {
		before := chunks[1].Text
		_ = chunker.OverlapContext(chunks, 2, 400)
		if chunks[1].Text != before {
			t.Error("OverlapContext mutated chunk text")
		}
	})
}
