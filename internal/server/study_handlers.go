package server

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/mindvault/internal/notes"
	"github.com/MarcoPoloResearchLab/mindvault/internal/organize"
	"github.com/MarcoPoloResearchLab/mindvault/internal/studyai"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type chatRequest struct {
	History []studyai.ChatMessage `json:"history"`
	Message string                `json:"message"`
}

func (h *httpHandler) handleSummary(c *gin.Context) {
	note, ok := h.cache.Get(c.Param("id"))
	if !ok {
		h.respondError(c, notes.ErrNoteNotFound, "note_not_found")
		return
	}
	summary := h.assistant.Summarize(c.Request.Context(), note.Content)
	if summary != studyai.FallbackSummary {
		// Summarizing can take a while; write onto the note as it is now.
		if current, ok := h.cache.Get(note.ID); ok {
			current.Summary = summary
			pending := h.cache.Update(current.Touch(time.Now()))
			if err := awaitWrite(c.Request.Context(), pending); err != nil {
				h.logger.Warn("summary not persisted", zap.String("note_id", note.ID), zap.Error(err))
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

func (h *httpHandler) handleQuiz(c *gin.Context) {
	note, ok := h.cache.Get(c.Param("id"))
	if !ok {
		h.respondError(c, notes.ErrNoteNotFound, "note_not_found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"questions": h.assistant.Quiz(c.Request.Context(), note.Content)})
}

func (h *httpHandler) handleChat(c *gin.Context) {
	note, ok := h.cache.Get(c.Param("id"))
	if !ok {
		h.respondError(c, notes.ErrNoteNotFound, "note_not_found")
		return
	}
	var request chatRequest
	if err := c.ShouldBindJSON(&request); err != nil || request.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	reply := h.assistant.Chat(c.Request.Context(), request.History, note.Content, request.Message)
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}

func (h *httpHandler) handleOrganizeStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"running": h.organizer.Running()})
}

// handleOrganizeStart runs the batch in the background; progress is published on the note stream.
func (h *httpHandler) handleOrganizeStart(c *gin.Context) {
	if h.organizer.Running() {
		h.respondError(c, organize.ErrAlreadyRunning, "organize_running")
		return
	}
	go func() {
		summary, err := h.organizer.Run(h.baseContext, h.realtime.ProgressObserver())
		if err != nil && !errors.Is(err, organize.ErrAlreadyRunning) {
			h.logger.Warn("organize run ended early", zap.Error(err))
		}
		h.realtime.PublishOrganizeFinished(summary)
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

func (h *httpHandler) handleOrganizeStop(c *gin.Context) {
	h.organizer.Stop()
	c.JSON(http.StatusAccepted, gin.H{"status": "stopping"})
}

func (h *httpHandler) handleExport(c *gin.Context) {
	var buffer bytes.Buffer
	if _, err := h.backup.WriteTo(&buffer); err != nil {
		h.respondError(c, err, "export_failed")
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+h.backup.DefaultFileName()+`"`)
	c.Data(http.StatusOK, "application/json", buffer.Bytes())
}

func (h *httpHandler) handleImport(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	imported, err := h.backup.Import(c.Request.Context(), data)
	if err != nil {
		h.respondError(c, err, "import_failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": imported})
}
