package rag_service

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/serisow/claimdesk/pipeline_type"
)

const mockDimensions = 64

// MockEmbedder hashes lowercase words into a bag-of-words vector unless
// EmbedFunc is set, so similar texts get similar vectors.
type MockEmbedder struct {
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	return BagOfWords(text, mockDimensions), nil
}

func (m *MockEmbedder) Dimensions() int { return mockDimensions }
func (m *MockEmbedder) Name() string    { return "mock" }

func BagOfWords(text string, dims int) []float32 {
	vector := make([]float32, dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		vector[h.Sum32()%uint32(dims)]++
	}
	return vector
}

type MockLoader struct {
	FetchTextFunc func(ctx context.Context, source string) (pipeline_type.Document, error)
}

func (m *MockLoader) FetchText(ctx context.Context, source string) (pipeline_type.Document, error) {
	if m.FetchTextFunc != nil {
		return m.FetchTextFunc(ctx, source)
	}
	return TextDocument(source, "mock document"), nil
}

// TextDocument wraps text as a single page document.
func TextDocument(source, text string) pipeline_type.Document {
	return pipeline_type.Document{
		Source:      source,
		ContentType: "text/plain",
		Pages:       []pipeline_type.Page{{Number: 1, Text: text}},
		Text:        text,
	}
}
