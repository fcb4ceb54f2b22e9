package rag_service

import (
	"fmt"
	"iter"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/serisow/claimdesk/pipeline_type"
)

// separators are tried in order; the first one found inside the cut window wins.
var separators = []string{"\n\n", "\n", ". ", " "}

// Chunker splits document text into overlapping spans of at most Size bytes.
// Consecutive spans share Overlap bytes, less when a cut lands on a separator
// close to the previous start.
type Chunker struct {
	Size    int
	Overlap int
}

func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &Chunker{Size: size, Overlap: overlap}, nil
}

type span struct {
	start, end int
}

// spans yields the [start, end) byte ranges covering text. Every range starts
// and ends on a rune boundary.
func (c *Chunker) spans(text string) iter.Seq[span] {
	return func(yield func(span) bool) {
		start := 0
		for start < len(text) {
			end := start + c.Size
			if end >= len(text) {
				yield(span{start, len(text)})
				return
			}
			end = c.cut(text, start, end)
			if !yield(span{start, end}) {
				return
			}

			next := end - c.Overlap
			if next <= start {
				next = end
			}
			for next < end && !utf8.RuneStart(text[next]) {
				next++
			}
			start = next
		}
	}
}

// cut picks the end of the span starting at start, at most limit.
func (c *Chunker) cut(text string, start, limit int) int {
	lo := start + c.Overlap + 1
	if lo < limit {
		window := text[lo:limit]
		for _, sep := range separators {
			if i := strings.LastIndex(window, sep); i >= 0 {
				return lo + i + len(sep)
			}
		}
	}

	end := limit
	for end > start+1 && !utf8.RuneStart(text[end]) {
		end--
	}
	if !utf8.RuneStart(text[end]) {
		// a single rune wider than the chunk size
		for end < len(text) && !utf8.RuneStart(text[end]) {
			end++
		}
	}
	return end
}

// Split returns the raw text of each chunk.
func (c *Chunker) Split(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for s := range c.spans(text) {
			if !yield(text[s.start:s.end]) {
				return
			}
		}
	}
}

// Chunks yields the chunks of doc with stable IDs and page metadata. The
// sequence can be ranged over more than once; it is empty for empty text.
func (c *Chunker) Chunks(doc pipeline_type.Document) iter.Seq[pipeline_type.Chunk] {
	return func(yield func(pipeline_type.Chunk) bool) {
		position := 0
		for s := range c.spans(doc.Text) {
			chunk := pipeline_type.Chunk{
				ID:   ChunkID(doc.Source, position),
				Text: doc.Text[s.start:s.end],
				Metadata: pipeline_type.ChunkMetadata{
					Source:   doc.Source,
					Position: position,
					Page:     doc.PageAt(s.start),
					Start:    s.start,
					End:      s.end,
				},
			}
			if !yield(chunk) {
				return
			}
			position++
		}
	}
}

// ChunkID is derived from the source and position so re-ingestion overwrites
// the same rows.
func ChunkID(source string, position int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(source+"#"+strconv.Itoa(position))).String()
}
