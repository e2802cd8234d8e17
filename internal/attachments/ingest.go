// Package attachments turns uploaded files into note attachments or inline markdown.
package attachments

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/mindvault/internal/notes"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

// MaxBytes is the largest upload accepted.
const MaxBytes int64 = 20 * 1024 * 1024

var (
	// ErrTooLarge indicates that an upload exceeds the size ceiling.
	ErrTooLarge = errors.New("attachments: file too large, max 20MB allowed")
	// ErrEmptyUpload indicates that the upload carried no bytes.
	ErrEmptyUpload = errors.New("attachments: empty upload")

	errMissingIDProvider = errors.New("attachments: id provider is required")
)

// Kind reports how an upload was absorbed into the note.
type Kind string

const (
	// KindImage uploads become an attachment and an inline markdown image.
	KindImage Kind = "image"
	// KindPDF uploads become an attachment.
	KindPDF Kind = "pdf"
	// KindFile uploads of any other binary type become an attachment.
	KindFile Kind = "file"
	// KindText uploads are appended to the note body.
	KindText Kind = "text"
)

// Upload is one file handed over by a client.
type Upload struct {
	Name string
	// Size is the declared size; negative when unknown.
	Size int64
	Body io.Reader
}

// Result describes what to add to the open note.
type Result struct {
	Kind       Kind              `json:"kind"`
	Attachment *notes.Attachment `json:"attachment,omitempty"`
	// Markdown is appended to the note body; empty for pdf and file uploads.
	Markdown string `json:"markdown,omitempty"`
	MIMEType string `json:"mime_type"`
}

// Config describes an Ingester.
type Config struct {
	MaxBytes   int64
	IDProvider notes.IDProvider
	Logger     *zap.Logger
}

// Ingester validates and encodes uploads.
type Ingester struct {
	maxBytes   int64
	idProvider notes.IDProvider
	logger     *zap.Logger
}

// NewIngester constructs an Ingester; MaxBytes defaults to and is capped at the package ceiling.
func NewIngester(cfg Config) (*Ingester, error) {
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 || maxBytes > MaxBytes {
		maxBytes = MaxBytes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingester{maxBytes: maxBytes, idProvider: cfg.IDProvider, logger: logger}, nil
}

// MaxBytes returns the effective ceiling.
func (i *Ingester) MaxBytes() int64 {
	return i.maxBytes
}

// Ingest checks the declared size before reading anything, then classifies and encodes the payload.
func (i *Ingester) Ingest(upload Upload) (Result, error) {
	if upload.Size > i.maxBytes {
		i.logger.Info("rejected oversized upload", zap.String("name", upload.Name), zap.Int64("size", upload.Size))
		return Result{}, ErrTooLarge
	}
	if upload.Body == nil {
		return Result{}, ErrEmptyUpload
	}

	payload, err := io.ReadAll(io.LimitReader(upload.Body, i.maxBytes+1))
	if err != nil {
		return Result{}, fmt.Errorf("attachments: read upload: %w", err)
	}
	if int64(len(payload)) > i.maxBytes {
		return Result{}, ErrTooLarge
	}
	if len(payload) == 0 {
		return Result{}, ErrEmptyUpload
	}

	detected := mimetype.Detect(payload)
	if isText(upload.Name, detected, payload) {
		return Result{
			Kind:     KindText,
			Markdown: "\n\n" + string(payload) + "\n\n",
			MIMEType: detected.String(),
		}, nil
	}

	attachmentID, err := i.idProvider.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("attachments: id generation: %w", err)
	}
	dataURI := DataURI(baseMIME(detected), payload)
	attachment := &notes.Attachment{
		ID:   attachmentID,
		Name: upload.Name,
		Data: dataURI,
	}

	result := Result{Attachment: attachment, MIMEType: detected.String()}
	switch {
	case detected.Is("application/pdf"):
		attachment.Type = notes.AttachmentTypePDF
		result.Kind = KindPDF
	case strings.HasPrefix(detected.String(), "image/"):
		attachment.Type = notes.AttachmentTypeImage
		result.Kind = KindImage
		result.Markdown = fmt.Sprintf("\n\n![%s](%s)\n\n", upload.Name, dataURI)
	default:
		attachment.Type = notes.AttachmentTypeFile
		result.Kind = KindFile
	}
	return result, nil
}

// DataURI encodes payload as a base64 data URI.
func DataURI(mimeType string, payload []byte) string {
	var builder strings.Builder
	builder.Grow(len("data:;base64,") + len(mimeType) + base64.StdEncoding.EncodedLen(len(payload)))
	builder.WriteString("data:")
	builder.WriteString(mimeType)
	builder.WriteString(";base64,")
	builder.WriteString(base64.StdEncoding.EncodeToString(payload))
	return builder.String()
}

func isText(name string, detected *mimetype.MIME, payload []byte) bool {
	if strings.EqualFold(filepath.Ext(name), ".md") {
		return utf8.Valid(payload)
	}
	return detected.Is("text/plain") && !bytes.ContainsRune(payload, 0)
}

func baseMIME(detected *mimetype.MIME) string {
	value := detected.String()
	if index := strings.IndexByte(value, ';'); index >= 0 {
		value = value[:index]
	}
	return strings.TrimSpace(value)
}
