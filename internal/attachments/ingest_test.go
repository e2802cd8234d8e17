package attachments

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/mindvault/internal/notes"
)

type counterIDProvider struct {
	next int
}

func (p *counterIDProvider) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("att-%d", p.next), nil
}

// unreadable fails the test if the ingester touches the body.
type unreadable struct {
	t *testing.T
}

func (r unreadable) Read([]byte) (int, error) {
	r.t.Fatalf("body must not be read for an oversized upload")
	return 0, nil
}

func newTestIngester(t *testing.T) *Ingester {
	t.Helper()
	ingester, err := NewIngester(Config{IDProvider: &counterIDProvider{}})
	if err != nil {
		t.Fatalf("failed to construct ingester: %v", err)
	}
	return ingester
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func TestIngestSizeCeiling(t *testing.T) {
	ingester := newTestIngester(t)

	t.Run("exactly at the ceiling is accepted", func(t *testing.T) {
		payload := make([]byte, MaxBytes)
		result, err := ingester.Ingest(Upload{Name: "blob.bin", Size: MaxBytes, Body: bytes.NewReader(payload)})
		if err != nil {
			t.Fatalf("expected acceptance at %d bytes, got %v", MaxBytes, err)
		}
		if result.Attachment == nil || result.Kind != KindFile {
			t.Fatalf("expected a file attachment, got %#v", result.Kind)
		}
	})

	t.Run("one byte over is rejected before reading", func(t *testing.T) {
		_, err := ingester.Ingest(Upload{Name: "blob.bin", Size: MaxBytes + 1, Body: unreadable{t: t}})
		if !errors.Is(err, ErrTooLarge) {
			t.Fatalf("expected ErrTooLarge, got %v", err)
		}
	})

	t.Run("undeclared size is still bounded", func(t *testing.T) {
		payload := make([]byte, MaxBytes+1)
		_, err := ingester.Ingest(Upload{Name: "blob.bin", Size: -1, Body: bytes.NewReader(payload)})
		if !errors.Is(err, ErrTooLarge) {
			t.Fatalf("expected ErrTooLarge, got %v", err)
		}
	})
}

func TestIngestClassifiesUploads(t *testing.T) {
	pdf := []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")

	testCases := []struct {
		name         string
		upload       Upload
		wantKind     Kind
		wantType     notes.AttachmentType
		wantMarkdown string
	}{
		{
			name:     "pdf becomes an attachment",
			upload:   Upload{Name: "lecture.pdf", Size: int64(len(pdf)), Body: bytes.NewReader(pdf)},
			wantKind: KindPDF,
			wantType: notes.AttachmentTypePDF,
		},
		{
			name:         "image is attached and embedded",
			upload:       Upload{Name: "diagram.png", Size: int64(len(pngHeader)), Body: bytes.NewReader(pngHeader)},
			wantKind:     KindImage,
			wantType:     notes.AttachmentTypeImage,
			wantMarkdown: "\n\n![diagram.png](" + DataURI("image/png", pngHeader) + ")\n\n",
		},
		{
			name:         "markdown file is appended as text",
			upload:       Upload{Name: "chapter.md", Size: 12, Body: strings.NewReader("# Chapter 1\n")},
			wantKind:     KindText,
			wantMarkdown: "\n\n# Chapter 1\n\n\n",
		},
		{
			name:         "plain text is appended as text",
			upload:       Upload{Name: "notes.txt", Size: 5, Body: strings.NewReader("hello")},
			wantKind:     KindText,
			wantMarkdown: "\n\nhello\n\n",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			result, err := newTestIngester(t).Ingest(testCase.upload)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Kind != testCase.wantKind {
				t.Fatalf("expected kind %s, got %s", testCase.wantKind, result.Kind)
			}
			if result.Markdown != testCase.wantMarkdown {
				t.Fatalf("unexpected markdown %q", result.Markdown)
			}
			if testCase.wantKind == KindText {
				if result.Attachment != nil {
					t.Fatalf("text uploads must not create attachments")
				}
				return
			}
			if result.Attachment == nil {
				t.Fatalf("expected an attachment")
			}
			if result.Attachment.Type != testCase.wantType || result.Attachment.Name != testCase.upload.Name || result.Attachment.ID != "att-1" {
				t.Fatalf("unexpected attachment %#v", result.Attachment)
			}
		})
	}
}

func TestDataURIRoundTrips(t *testing.T) {
	uri := DataURI("application/pdf", []byte("%PDF"))
	prefix := "data:application/pdf;base64,"
	if !strings.HasPrefix(uri, prefix) {
		t.Fatalf("unexpected prefix in %q", uri)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, prefix))
	if err != nil || string(decoded) != "%PDF" {
		t.Fatalf("payload did not survive encoding: %q, %v", decoded, err)
	}
}

func TestIngestRejectsEmptyUpload(t *testing.T) {
	if _, err := newTestIngester(t).Ingest(Upload{Name: "empty.txt", Size: 0, Body: strings.NewReader("")}); !errors.Is(err, ErrEmptyUpload) {
		t.Fatalf("expected ErrEmptyUpload, got %v", err)
	}
}

func TestNewIngesterCapsConfiguredCeiling(t *testing.T) {
	ingester, err := NewIngester(Config{IDProvider: &counterIDProvider{}, MaxBytes: 4 * MaxBytes})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ingester.MaxBytes() != MaxBytes {
		t.Fatalf("expected ceiling to be capped at %d, got %d", MaxBytes, ingester.MaxBytes())
	}
	if _, err := NewIngester(Config{}); err == nil {
		t.Fatalf("expected error without id provider")
	}
}
