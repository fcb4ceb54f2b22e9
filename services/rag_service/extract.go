package rag_service

import (
    "bytes"
    "fmt"
    "log/slog"
    "strings"

    "code.sajari.com/docconv/v2"
    "github.com/PuerkitoBio/goquery"
    "github.com/ledongthuc/pdf"

    "github.com/serisow/claimdesk/pipeline_type"
)

const (
    mimePDF  = "application/pdf"
    mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
    mimeDOC  = "application/msword"
    mimeHTML = "text/html"
    mimeText = "text/plain"
)

type DocumentExtractor struct {
    logger *slog.Logger
}

func NewDocumentExtractor(logger *slog.Logger) *DocumentExtractor {
    return &DocumentExtractor{
        logger: logger,
    }
}

// Extract turns raw bytes of the given content type into pages of text.
func (e *DocumentExtractor) Extract(data []byte, contentType string) ([]pipeline_type.Page, error) {
    switch contentType {
    case mimePDF:
        return e.ExtractPagesFromPDF(data)
    case mimeDOCX, mimeDOC:
        text, err := e.ExtractTextFromWord(data, contentType)
        if err != nil {
            return nil, err
        }
        return singlePage(text), nil
    case mimeHTML:
        text, err := e.ExtractTextFromHTML(data)
        if err != nil {
            return nil, err
        }
        return singlePage(text), nil
    }

    if strings.HasPrefix(contentType, "text/") {
        return singlePage(string(data)), nil
    }
    return nil, fmt.Errorf("unsupported content type %q", contentType)
}

func (e *DocumentExtractor) ExtractPagesFromPDF(data []byte) ([]pipeline_type.Page, error) {
    reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
    if err != nil {
        e.logger.Error("Failed to create PDF reader",
            slog.String("error", err.Error()),
            slog.Int("data_size", len(data)))
        return nil, fmt.Errorf("failed to create PDF reader: %w", err)
    }

    totalPage := reader.NumPage()
    e.logger.Debug("Starting PDF text extraction",
        slog.Int("total_pages", totalPage))

    pages := make([]pipeline_type.Page, 0, totalPage)
    textLength := 0
    for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
        page := reader.Page(pageIndex)
        if page.V.IsNull() {
            e.logger.Warn("Null page encountered",
                slog.Int("page_number", pageIndex))
            continue
        }

        text, err := page.GetPlainText(nil)
        if err != nil {
            e.logger.Error("Failed to extract text from page",
                slog.Int("page_number", pageIndex),
                slog.String("error", err.Error()))
            return nil, fmt.Errorf("failed to extract text from page %d: %w", pageIndex, err)
        }

        e.logger.Debug("Extracted text from page",
            slog.Int("page_number", pageIndex),
            slog.Int("text_length", len(text)))

        if strings.TrimSpace(text) == "" {
            continue
        }
        pages = append(pages, pipeline_type.Page{Number: pageIndex, Text: terminate(text)})
        textLength += len(text)
    }

    if textLength == 0 {
        e.logger.Error("No text extracted from PDF",
            slog.Int("total_pages", totalPage))
        return nil, fmt.Errorf("no text content extracted from PDF")
    }

    e.logger.Info("Successfully extracted text from PDF",
        slog.Int("total_pages", totalPage),
        slog.Int("total_text_length", textLength))

    return pages, nil
}

func (e *DocumentExtractor) ExtractTextFromWord(data []byte, mimeType string) (string, error) {
    e.logger.Debug("Starting Word document text extraction",
        slog.Int("data_size", len(data)))

    result, err := docconv.Convert(bytes.NewReader(data), mimeType, false)
    if err != nil {
        e.logger.Error("Failed to convert Word document",
            slog.String("error", err.Error()),
            slog.Int("data_size", len(data)))
        return "", fmt.Errorf("failed to convert Word document: %w", err)
    }

    if len(strings.TrimSpace(result.Body)) == 0 {
        e.logger.Error("No text extracted from Word document")
        return "", fmt.Errorf("no text content extracted from Word document")
    }

    e.logger.Info("Successfully extracted text from Word document",
        slog.Int("text_length", len(result.Body)))

    return result.Body, nil
}

// ExtractTextFromHTML keeps the readable block text of a page, one block per paragraph.
func (e *DocumentExtractor) ExtractTextFromHTML(data []byte) (string, error) {
    doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
    if err != nil {
        return "", fmt.Errorf("failed to parse HTML document: %w", err)
    }
    doc.Find("script, style, nav, header, footer, noscript").Remove()

    var blocks []string
    doc.Find("h1, h2, h3, h4, h5, h6, p, li, td, pre").Each(func(_ int, s *goquery.Selection) {
        if text := strings.Join(strings.Fields(s.Text()), " "); text != "" {
            blocks = append(blocks, text)
        }
    })
    if len(blocks) == 0 {
        if text := strings.Join(strings.Fields(doc.Find("body").Text()), " "); text != "" {
            blocks = append(blocks, text)
        }
    }
    if len(blocks) == 0 {
        return "", fmt.Errorf("no text content extracted from HTML document")
    }

    e.logger.Debug("Extracted text from HTML document",
        slog.Int("block_count", len(blocks)))
    return strings.Join(blocks, "\n\n"), nil
}

func singlePage(text string) []pipeline_type.Page {
    if strings.TrimSpace(text) == "" {
        return nil
    }
    return []pipeline_type.Page{{Number: 1, Text: text}}
}

// terminate ends a page with a paragraph break so pages never run together.
func terminate(text string) string {
    if strings.HasSuffix(text, "\n\n") {
        return text
    }
    return strings.TrimRight(text, "\n") + "\n\n"
}
