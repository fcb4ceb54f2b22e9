package rag_service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/serisow/claimdesk/pipeline_type"
)

func TestLoaderReadsLocalTextFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.txt")
	if err := os.WriteFile(path, []byte(samplePolicy), 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := NewLoader(time.Second, testLogger()).FetchText(context.Background(), path)
	if err != nil {
		t.Fatalf("FetchText() error = %v", err)
	}
	if doc.Text != samplePolicy || doc.Source != path {
		t.Errorf("document = %+v", doc)
	}
	if len(doc.Pages) != 1 || doc.Pages[0].Number != 1 {
		t.Errorf("pages = %+v", doc.Pages)
	}
}

func TestLoaderExtractsHTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><script>var x = 1;</script></head><body>
			<h1>Policy wording</h1>
			<p>Dental   treatment is covered
			for persons under 18.</p>
			<footer>Copyright</footer></body></html>`))
	}))
	defer server.Close()

	doc, err := NewLoader(time.Second, testLogger()).FetchText(context.Background(), server.URL+"/policy")
	if err != nil {
		t.Fatalf("FetchText() error = %v", err)
	}
	want := "Policy wording\n\nDental treatment is covered for persons under 18."
	if doc.Text != want {
		t.Errorf("text = %q, want %q", doc.Text, want)
	}
	if doc.ContentType != mimeHTML {
		t.Errorf("content type = %q", doc.ContentType)
	}
}

func TestLoaderFailuresAreFetchErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing.pdf":
			http.NotFound(w, r)
		case "/broken.pdf":
			w.Write([]byte("this is not a pdf"))
		case "/archive":
			w.Header().Set("Content-Type", "application/zip")
			w.Write([]byte("PK\x03\x04"))
		}
	}))
	defer server.Close()

	loader := NewLoader(time.Second, testLogger())
	sources := []string{
		server.URL + "/missing.pdf",
		server.URL + "/broken.pdf",
		server.URL + "/archive",
		filepath.Join(t.TempDir(), "nope.pdf"),
	}
	for _, source := range sources {
		t.Run(source, func(t *testing.T) {
			_, err := loader.FetchText(context.Background(), source)
			var fetchErr *pipeline_type.FetchError
			if !errors.As(err, &fetchErr) {
				t.Fatalf("error = %v, want *FetchError", err)
			}
			if fetchErr.Source != source {
				t.Errorf("source = %q", fetchErr.Source)
			}
		})
	}
}

func TestLoaderRejectsOversizedDocuments(t *testing.T) {
	defer func(limit int64) { maxDocumentSize = limit }(maxDocumentSize)
	maxDocumentSize = int64(len(samplePolicy))

	dir := t.TempDir()
	fits := filepath.Join(dir, "fits.txt")
	tooBig := filepath.Join(dir, "too-big.txt")
	if err := os.WriteFile(fits, []byte(samplePolicy), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(tooBig, []byte(samplePolicy+"TAIL-CLAUSE"), 0o644); err != nil {
		t.Fatal(err)
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(samplePolicy + "TAIL-CLAUSE"))
	}))
	defer server.Close()

	loader := NewLoader(time.Second, testLogger())
	if doc, err := loader.FetchText(context.Background(), fits); err != nil || doc.Text != samplePolicy {
		t.Errorf("document at the limit: err = %v, text length %d", err, len(doc.Text))
	}

	for _, source := range []string{tooBig, server.URL + "/policy.txt"} {
		_, err := loader.FetchText(context.Background(), source)
		var fe *pipeline_type.FetchError
		if !errors.As(err, &fe) || !strings.Contains(err.Error(), "exceeds") {
			t.Errorf("%s: error = %v, want a size FetchError", source, err)
		}
	}
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		ext, header string
		data        string
		want        string
	}{
		{".PDF", "", "", mimePDF},
		{".docx", "application/octet-stream", "", mimeDOCX},
		{"", "application/pdf", "", mimePDF},
		{"", "application/octet-stream", "%PDF-1.7", mimePDF},
		{"", "", "plain words", "text/plain"},
	}
	for _, tt := range tests {
		if got := detectContentType(tt.ext, tt.header, []byte(tt.data)); got != tt.want {
			t.Errorf("detectContentType(%q, %q) = %q, want %q", tt.ext, tt.header, got, tt.want)
		}
	}
}

func TestSupportedDocument(t *testing.T) {
	for name, want := range map[string]bool{
		"policy.pdf":  true,
		"terms.DOCX":  true,
		"legacy.doc":  true,
		"notes.txt":   false,
		"README":      false,
		"scan.pdf.gz": false,
	} {
		if got := SupportedDocument(name); got != want {
			t.Errorf("SupportedDocument(%q) = %v", name, got)
		}
	}
}

func TestExtractTextFromHTMLFallsBackToBody(t *testing.T) {
	text, err := NewDocumentExtractor(testLogger()).ExtractTextFromHTML([]byte("<html><body><div>Only a div</div></body></html>"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "Only a div") {
		t.Errorf("text = %q", text)
	}
}
