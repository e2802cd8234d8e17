package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/mindvault/internal/attachments"
	"github.com/MarcoPoloResearchLab/mindvault/internal/backup"
	"github.com/MarcoPoloResearchLab/mindvault/internal/editor"
	"github.com/MarcoPoloResearchLab/mindvault/internal/notes"
	"github.com/MarcoPoloResearchLab/mindvault/internal/organize"
	"github.com/MarcoPoloResearchLab/mindvault/internal/studyai"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	subjectContextKey  = "mindvault_subject"
	accessTokenQuery   = "access_token"
	defaultHeartbeat   = 25 * time.Second
	maxImportBodyBytes = 64 << 20
	// multipartOverhead is the slack allowed on top of the attachment ceiling for form framing.
	multipartOverhead = 1 << 20
)

var (
	errMissingCache       = errors.New("note cache dependency required")
	errMissingEditor      = errors.New("editor session dependency required")
	errMissingAttachments = errors.New("attachment ingester dependency required")
	errMissingAssistant   = errors.New("study assistant dependency required")
	errMissingOrganizer   = errors.New("organizer dependency required")
	errMissingBackup      = errors.New("backup service dependency required")

	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenValidator checks bearer tokens and returns their subject.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// Dependencies wires the HTTP API to the application services.
type Dependencies struct {
	Cache       *notes.Cache
	Editor      *editor.Session
	Attachments *attachments.Ingester
	Assistant   *studyai.Assistant
	Organizer   *organize.Organizer
	Backup      *backup.Service
	Realtime    *RealtimeDispatcher
	// TokenManager enables bearer authentication when set.
	TokenManager   TokenValidator
	AllowedOrigins []string
	// BaseContext bounds background work started by requests, such as organize runs.
	BaseContext       context.Context
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

// NewHTTPHandler builds the gin router for the local API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.Cache == nil:
		return nil, errMissingCache
	case deps.Editor == nil:
		return nil, errMissingEditor
	case deps.Attachments == nil:
		return nil, errMissingAttachments
	case deps.Assistant == nil:
		return nil, errMissingAssistant
	case deps.Organizer == nil:
		return nil, errMissingOrganizer
	case deps.Backup == nil:
		return nil, errMissingBackup
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	baseContext := deps.BaseContext
	if baseContext == nil {
		baseContext = context.Background()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins...))

	handler := &httpHandler{
		cache:       deps.Cache,
		editor:      deps.Editor,
		attachments: deps.Attachments,
		assistant:   deps.Assistant,
		organizer:   deps.Organizer,
		backup:      deps.Backup,
		realtime:    realtime,
		tokens:      deps.TokenManager,
		baseContext: baseContext,
		heartbeat:   heartbeat,
		logger:      logger,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/")
	if handler.tokens != nil {
		api.Use(handler.authorizeRequest)
	}

	api.GET("/notes", handler.handleListNotes)
	api.POST("/notes", handler.handleCreateNote)
	api.GET("/notes/subjects", handler.handleSubjects)
	api.GET("/notes/stream", handler.handleNotesStream)
	api.GET("/notes/:id", handler.handleGetNote)
	api.PUT("/notes/:id", handler.handleReplaceNote)
	api.DELETE("/notes/:id", handler.handleDeleteNote)
	api.POST("/notes/:id/attachments", handler.handleUploadAttachment)
	api.DELETE("/notes/:id/attachments/:attachmentId", handler.handleRemoveAttachment)

	api.GET("/editor", handler.handleEditorSnapshot)
	api.POST("/editor/open/:id", handler.handleEditorOpen)
	api.PATCH("/editor", handler.handleEditorEdit)
	api.POST("/editor/flush", handler.handleEditorFlush)
	api.DELETE("/editor", handler.handleEditorClose)

	api.POST("/notes/:id/summary", handler.handleSummary)
	api.POST("/notes/:id/quiz", handler.handleQuiz)
	api.POST("/notes/:id/chat", handler.handleChat)

	api.GET("/organize", handler.handleOrganizeStatus)
	api.POST("/organize", handler.handleOrganizeStart)
	api.POST("/organize/stop", handler.handleOrganizeStop)

	api.GET("/export", handler.handleExport)
	api.POST("/import", handler.handleImport)

	return router, nil
}

type httpHandler struct {
	cache       *notes.Cache
	editor      *editor.Session
	attachments *attachments.Ingester
	assistant   *studyai.Assistant
	organizer   *organize.Organizer
	backup      *backup.Service
	realtime    *RealtimeDispatcher
	tokens      TokenValidator
	baseContext context.Context
	heartbeat   time.Duration
	logger      *zap.Logger
}

func corsMiddleware(allowedOrigins ...string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Last-Event-ID"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token := ""
	if header := c.GetHeader("Authorization"); header != "" {
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
			return
		}
		token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	} else {
		// EventSource cannot set headers, so the stream accepts the token as a query parameter.
		token = strings.TrimSpace(c.Query(accessTokenQuery))
	}
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(subjectContextKey, subject)
	c.Next()
}

// respondError maps domain errors onto HTTP statuses with a stable reason and, when present, the service error code.
func (h *httpHandler) respondError(c *gin.Context, err error, fallbackReason string) {
	status := http.StatusInternalServerError
	reason := fallbackReason
	switch {
	case errors.Is(err, notes.ErrNoteNotFound):
		status, reason = http.StatusNotFound, "note_not_found"
	case errors.Is(err, notes.ErrInvalidNoteID):
		status, reason = http.StatusBadRequest, "invalid_note_id"
	case errors.Is(err, backup.ErrImportFormat):
		status, reason = http.StatusBadRequest, backup.ErrImportFormat.Error()
	case errors.Is(err, attachments.ErrTooLarge):
		status, reason = http.StatusRequestEntityTooLarge, "file_too_large"
	case errors.Is(err, attachments.ErrEmptyUpload):
		status, reason = http.StatusBadRequest, "empty_upload"
	case errors.Is(err, editor.ErrNoOpenNote):
		status, reason = http.StatusConflict, "no_open_note"
	case errors.Is(err, organize.ErrAlreadyRunning):
		status, reason = http.StatusConflict, "organize_running"
	case errors.Is(err, notes.ErrStorageUnavailable):
		reason = "storage_unavailable"
	}

	body := gin.H{"error": reason}
	var serviceErr *notes.ServiceError
	if errors.As(err, &serviceErr) {
		body["code"] = serviceErr.Code()
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.String("reason", reason), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, body)
}

// awaitWrite surfaces the storage outcome of an optimistic mutation to the caller.
func awaitWrite(ctx context.Context, pending *notes.Pending) error {
	if pending == nil {
		return nil
	}
	return pending.Wait(ctx)
}
