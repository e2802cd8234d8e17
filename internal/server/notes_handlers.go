package server

import (
	"errors"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/MarcoPoloResearchLab/mindvault/internal/attachments"
	"github.com/MarcoPoloResearchLab/mindvault/internal/notes"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type createNoteRequest struct {
	Title string `json:"title"`
}

type listNotesResponse struct {
	Notes []notes.Note `json:"notes"`
}

type subjectsResponse struct {
	Subjects []string             `json:"subjects"`
	Groups   []notes.SubjectGroup `json:"groups"`
}

type uploadResponse struct {
	Result attachments.Result `json:"result"`
	Note   notes.Note         `json:"note"`
	// Buffered is true when the upload went into the open editor session and will be saved after the quiet period.
	Buffered bool `json:"buffered"`
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	c.JSON(http.StatusOK, listNotesResponse{Notes: h.cache.Search(c.Query("q"))})
}

func (h *httpHandler) handleSubjects(c *gin.Context) {
	c.JSON(http.StatusOK, subjectsResponse{Subjects: notes.Subjects, Groups: h.cache.GroupBySubject()})
}

func (h *httpHandler) handleGetNote(c *gin.Context) {
	note, ok := h.cache.Get(c.Param("id"))
	if !ok {
		h.respondError(c, notes.ErrNoteNotFound, "note_not_found")
		return
	}
	c.JSON(http.StatusOK, note)
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	var request createNoteRequest
	if err := c.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	note, pending, err := h.cache.Create(request.Title)
	if err != nil {
		h.respondError(c, err, "create_failed")
		return
	}
	if err := awaitWrite(c.Request.Context(), pending); err != nil {
		h.respondError(c, err, "create_failed")
		return
	}
	c.JSON(http.StatusCreated, note)
}

// handleReplaceNote stores the submitted note wholesale under the id from the path.
func (h *httpHandler) handleReplaceNote(c *gin.Context) {
	var note notes.Note
	if err := c.ShouldBindJSON(&note); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	existing, ok := h.cache.Get(c.Param("id"))
	if !ok {
		h.respondError(c, notes.ErrNoteNotFound, "note_not_found")
		return
	}
	note.ID = existing.ID
	note.CreatedAt = existing.CreatedAt
	note = note.Touch(time.Now())

	if err := awaitWrite(c.Request.Context(), h.cache.Update(note)); err != nil {
		h.respondError(c, err, "save_failed")
		return
	}
	updated, _ := h.cache.Get(note.ID)
	c.JSON(http.StatusOK, updated)
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	noteID := c.Param("id")
	if _, ok := h.cache.Get(noteID); !ok {
		h.respondError(c, notes.ErrNoteNotFound, "note_not_found")
		return
	}
	if snapshot := h.editor.Snapshot(); snapshot.NoteID == noteID {
		h.editor.Close()
	}
	if err := awaitWrite(c.Request.Context(), h.cache.Remove(noteID)); err != nil {
		h.respondError(c, err, "delete_failed")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleUploadAttachment(c *gin.Context) {
	noteID := c.Param("id")
	note, ok := h.cache.Get(noteID)
	if !ok {
		h.respondError(c, notes.ErrNoteNotFound, "note_not_found")
		return
	}

	limit := h.attachments.MaxBytes()
	if c.Request.ContentLength > limit+multipartOverhead {
		h.respondError(c, attachments.ErrTooLarge, "file_too_large")
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.logger.Info("attachment upload rejected", zap.String("note_id", noteID), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_upload"})
		return
	}
	if fileHeader.Size > limit {
		h.respondError(c, attachments.ErrTooLarge, "file_too_large")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_upload"})
		return
	}
	defer file.Close()

	result, err := h.attachments.Ingest(attachments.Upload{Name: fileHeader.Filename, Size: fileHeader.Size, Body: file})
	if err != nil {
		h.respondError(c, err, "upload_failed")
		return
	}

	if h.editor.Snapshot().NoteID == noteID {
		if result.Attachment != nil {
			if err := h.editor.AddAttachment(*result.Attachment); err != nil {
				h.respondError(c, err, "upload_failed")
				return
			}
		}
		if result.Markdown != "" {
			if err := h.editor.AppendContent(result.Markdown); err != nil {
				h.respondError(c, err, "upload_failed")
				return
			}
		}
		c.JSON(http.StatusOK, uploadResponse{Result: result, Note: note, Buffered: true})
		return
	}

	if result.Attachment != nil {
		note.Attachments = append(note.Attachments, *result.Attachment)
	}
	note.Content += result.Markdown
	note = note.Touch(time.Now())
	if err := awaitWrite(c.Request.Context(), h.cache.Update(note)); err != nil {
		h.respondError(c, err, "save_failed")
		return
	}
	c.JSON(http.StatusOK, uploadResponse{Result: result, Note: note})
}

func (h *httpHandler) handleRemoveAttachment(c *gin.Context) {
	noteID := c.Param("id")
	attachmentID := c.Param("attachmentId")
	note, ok := h.cache.Get(noteID)
	if !ok {
		h.respondError(c, notes.ErrNoteNotFound, "note_not_found")
		return
	}

	if h.editor.Snapshot().NoteID == noteID {
		if err := h.editor.RemoveAttachment(attachmentID); err != nil {
			h.respondError(c, err, "remove_failed")
			return
		}
		c.JSON(http.StatusOK, h.editor.Snapshot())
		return
	}

	remaining := slices.DeleteFunc(slices.Clone(note.Attachments), func(attachment notes.Attachment) bool {
		return attachment.ID == attachmentID
	})
	if len(remaining) == len(note.Attachments) {
		c.JSON(http.StatusNotFound, gin.H{"error": "attachment_not_found"})
		return
	}
	note.Attachments = remaining
	note = note.Touch(time.Now())
	if err := awaitWrite(c.Request.Context(), h.cache.Update(note)); err != nil {
		h.respondError(c, err, "save_failed")
		return
	}
	c.JSON(http.StatusOK, note)
}
