package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/mindvault/internal/editor"
	"github.com/gin-gonic/gin"
)

type editRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

func (h *httpHandler) handleEditorSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.editor.Snapshot())
}

func (h *httpHandler) handleEditorOpen(c *gin.Context) {
	if err := h.editor.Open(c.Param("id")); err != nil {
		h.respondError(c, err, "open_failed")
		return
	}
	c.JSON(http.StatusOK, h.editor.Snapshot())
}

func (h *httpHandler) handleEditorEdit(c *gin.Context) {
	var request editRequest
	if err := c.ShouldBindJSON(&request); err != nil || (request.Title == nil && request.Content == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.editor.Apply(editor.Edit{Title: request.Title, Content: request.Content}); err != nil {
		h.respondError(c, err, "edit_failed")
		return
	}
	c.JSON(http.StatusAccepted, h.editor.Snapshot())
}

// handleEditorFlush is the explicit save: storage errors reach the caller.
func (h *httpHandler) handleEditorFlush(c *gin.Context) {
	pending, err := h.editor.Flush()
	if err != nil {
		h.respondError(c, err, "save_failed")
		return
	}
	if err := awaitWrite(c.Request.Context(), pending); err != nil {
		h.respondError(c, err, "save_failed")
		return
	}
	c.JSON(http.StatusOK, h.editor.Snapshot())
}

func (h *httpHandler) handleEditorClose(c *gin.Context) {
	h.editor.Close()
	c.Status(http.StatusNoContent)
}
