package pipeline_type

type ProcessingStats struct {
    ExtractionTime float64 `json:"extraction_time"`
    EmbeddingTime  float64 `json:"embedding_time"`
    IndexingTime   float64 `json:"indexing_time"`
}

// Page is the text of one page of a loaded document. Formats without pages
// produce a single page numbered 1.
type Page struct {
    Number int    `json:"number"`
    Text   string `json:"text"`
}

// Document is a loaded source, identified by its URL or path.
type Document struct {
    Source      string `json:"source"`
    ContentType string `json:"content_type"`
    Pages       []Page `json:"pages"`
    Text        string `json:"text"`
}

// PageAt returns the page number containing the byte offset into Text.
func (d Document) PageAt(offset int) int {
    pos := 0
    for _, p := range d.Pages {
        pos += len(p.Text)
        if offset < pos {
            return p.Number
        }
    }
    if len(d.Pages) == 0 {
        return 0
    }
    return d.Pages[len(d.Pages)-1].Number
}

type ChunkMetadata struct {
    Source   string `json:"source"`
    Position int    `json:"position"`
    Page     int    `json:"page,omitempty"`
    Start    int    `json:"start"`
    End      int    `json:"end"`
}

// Chunk is the span Text[Start:End) of its document.
type Chunk struct {
    ID       string        `json:"id"`
    Text     string        `json:"text"`
    Metadata ChunkMetadata `json:"metadata"`
}

// VectorRecord is one row handed to a vector index.
type VectorRecord struct {
    ID       string
    Vector   []float32
    Text     string
    Metadata ChunkMetadata
}

// Passage is a chunk returned by a similarity query.
type Passage struct {
    Text     string        `json:"text"`
    Metadata ChunkMetadata `json:"metadata"`
    Score    float64       `json:"score"`
}

type DocumentMetadata struct {
    WordCount       int             `json:"word_count"`
    PageCount       int             `json:"page_count"`
    ChunkCount      int             `json:"chunk_count"`
    ContentPreview  string          `json:"content_preview"`
    ContentType     string          `json:"content_type"`
    ProcessingStats ProcessingStats `json:"processing_stats"`
}

// IngestResponse reports the outcome of an ensure-indexed call.
type IngestResponse struct {
    Message  string           `json:"message"`
    Document string           `json:"document"`
    Cached   bool             `json:"cached"`
    Metadata DocumentMetadata `json:"metadata"`
    Error    string           `json:"error,omitempty"`
    Status   string           `json:"status"`
}
