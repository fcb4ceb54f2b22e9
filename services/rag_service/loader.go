package rag_service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/serisow/claimdesk/pipeline_type"
)

var maxDocumentSize int64 = 100 << 20

// DocumentLoader fetches a document by URL or local path.
type DocumentLoader interface {
	FetchText(ctx context.Context, source string) (pipeline_type.Document, error)
}

type Loader struct {
	httpClient *http.Client
	extractor  *DocumentExtractor
	logger     *slog.Logger
}

func NewLoader(timeout time.Duration, logger *slog.Logger) *Loader {
	return &Loader{
		httpClient: &http.Client{Timeout: timeout},
		extractor:  NewDocumentExtractor(logger),
		logger:     logger,
	}
}

// FetchText loads source and extracts its text. Every failure is a *FetchError.
func (l *Loader) FetchText(ctx context.Context, source string) (pipeline_type.Document, error) {
	data, contentType, err := l.read(ctx, source)
	if err != nil {
		return pipeline_type.Document{}, &pipeline_type.FetchError{Source: source, Err: err}
	}

	pages, err := l.extractor.Extract(data, contentType)
	if err != nil {
		return pipeline_type.Document{}, &pipeline_type.FetchError{Source: source, Err: err}
	}

	var text strings.Builder
	for _, p := range pages {
		text.WriteString(p.Text)
	}

	l.logger.Info("Document loaded",
		slog.String("source", source),
		slog.String("content_type", contentType),
		slog.Int("page_count", len(pages)),
		slog.Int("text_length", text.Len()))

	return pipeline_type.Document{
		Source:      source,
		ContentType: contentType,
		Pages:       pages,
		Text:        text.String(),
	}, nil
}

func (l *Loader) read(ctx context.Context, source string) ([]byte, string, error) {
	if isRemote(source) {
		return l.download(ctx, source)
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	data, err := readLimited(f)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read file: %w", err)
	}
	return data, detectContentType(filepath.Ext(source), "", data), nil
}

func (l *Loader) download(ctx context.Context, source string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to download document: status code %d", resp.StatusCode)
	}

	data, err := readLimited(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read document body: %w", err)
	}

	ext := ""
	if u, err := url.Parse(source); err == nil {
		ext = path.Ext(u.Path)
	}
	return data, detectContentType(ext, resp.Header.Get("Content-Type"), data), nil
}

// readLimited reads r whole, failing instead of truncating past maxDocumentSize.
func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxDocumentSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxDocumentSize {
		return nil, fmt.Errorf("document exceeds %dMB", maxDocumentSize>>20)
	}
	return data, nil
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// detectContentType trusts the extension first, then the declared header, then sniffing.
func detectContentType(ext, header string, data []byte) string {
	switch strings.ToLower(ext) {
	case ".pdf":
		return mimePDF
	case ".docx":
		return mimeDOCX
	case ".doc":
		return mimeDOC
	case ".html", ".htm":
		return mimeHTML
	case ".txt", ".md":
		return mimeText
	}

	if header != "" {
		if mediaType, _, err := mime.ParseMediaType(header); err == nil && mediaType != "application/octet-stream" {
			return mediaType
		}
	}

	sniffed, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return sniffed
}

// SupportedDocument reports whether a folder entry should be ingested.
func SupportedDocument(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".docx", ".doc":
		return true
	}
	return false
}
