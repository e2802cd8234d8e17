package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/mindvault/internal/attachments"
	"github.com/MarcoPoloResearchLab/mindvault/internal/auth"
	"github.com/MarcoPoloResearchLab/mindvault/internal/backup"
	"github.com/MarcoPoloResearchLab/mindvault/internal/database"
	"github.com/MarcoPoloResearchLab/mindvault/internal/editor"
	"github.com/MarcoPoloResearchLab/mindvault/internal/notes"
	"github.com/MarcoPoloResearchLab/mindvault/internal/organize"
	"github.com/MarcoPoloResearchLab/mindvault/internal/studyai"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubTextService struct {
	subject string
	title   string
	summary string
	err     error
}

func (s stubTextService) Summarize(context.Context, string) (string, error) {
	return s.summary, s.err
}

func (s stubTextService) Quiz(context.Context, string) ([]studyai.QuizQuestion, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []studyai.QuizQuestion{{Question: "Q", Options: []string{"a", "b", "c", "d"}, CorrectAnswer: 1, Explanation: "E"}}, nil
}

func (s stubTextService) Classify(context.Context, string) (string, error) {
	return s.subject, s.err
}

func (s stubTextService) TitleFor(context.Context, string) (string, error) {
	return s.title, s.err
}

func (s stubTextService) Chat(_ context.Context, _ []studyai.ChatMessage, _ string, message string) (string, error) {
	return "echo: " + message, s.err
}

type fixtureOptions struct {
	textService   studyai.TextService
	attachmentMax int64
	failingStore  bool
	withAuth      bool
	heartbeat     time.Duration
}

type serverFixture struct {
	handler  http.Handler
	cache    *notes.Cache
	store    *notes.Store
	editor   *editor.Session
	realtime *RealtimeDispatcher
	issuer   *auth.TokenIssuer
}

func newServerFixture(t *testing.T, options fixtureOptions) serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	opener := database.Opener(filepath.Join(t.TempDir(), "server.db"), nil)
	if options.failingStore {
		opener = func() (*gorm.DB, error) {
			return nil, errors.New("disk unavailable")
		}
	}
	store, err := notes.NewStore(notes.StoreConfig{Open: opener})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}

	realtime := NewRealtimeDispatcher()
	cache, err := notes.NewCache(notes.CacheConfig{
		Store:      store,
		IDProvider: notes.NewUUIDProvider(),
		Observer:   realtime.NoteObserver(),
	})
	if err != nil {
		t.Fatalf("failed to construct cache: %v", err)
	}
	if !options.failingStore {
		if err := cache.Load(context.Background()); err != nil {
			t.Fatalf("failed to load cache: %v", err)
		}
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = cache.Close(ctx)
	})

	session, err := editor.New(editor.Config{Cache: cache, QuietPeriod: time.Hour})
	if err != nil {
		t.Fatalf("failed to construct editor: %v", err)
	}
	t.Cleanup(session.Close)

	ingester, err := attachments.NewIngester(attachments.Config{IDProvider: notes.NewUUIDProvider(), MaxBytes: options.attachmentMax})
	if err != nil {
		t.Fatalf("failed to construct ingester: %v", err)
	}

	textService := options.textService
	if textService == nil {
		textService = studyai.Disabled{}
	}
	pipeline, err := organize.NewPipeline(organize.PipelineConfig{Classifier: textService})
	if err != nil {
		t.Fatalf("failed to construct pipeline: %v", err)
	}
	organizer, err := organize.New(organize.Config{Cache: cache, Pipeline: pipeline})
	if err != nil {
		t.Fatalf("failed to construct organizer: %v", err)
	}

	backupService, err := backup.NewService(backup.Config{Cache: cache})
	if err != nil {
		t.Fatalf("failed to construct backup service: %v", err)
	}

	deps := Dependencies{
		Cache:             cache,
		Editor:            session,
		Attachments:       ingester,
		Assistant:         studyai.NewAssistant(textService, nil),
		Organizer:         organizer,
		Backup:            backupService,
		Realtime:          realtime,
		HeartbeatInterval: options.heartbeat,
		Logger:            zap.NewNop(),
	}

	var issuer *auth.TokenIssuer
	if options.withAuth {
		issuer, err = auth.NewTokenIssuer(auth.TokenIssuerConfig{
			SigningSecret: []byte("test-signing-secret"),
			Issuer:        auth.DefaultIssuer,
			Audience:      auth.DefaultAudience,
			TokenTTL:      time.Minute,
		})
		if err != nil {
			t.Fatalf("failed to construct token issuer: %v", err)
		}
		deps.TokenManager = issuer
	}

	handler, err := NewHTTPHandler(deps)
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	return serverFixture{
		handler:  handler,
		cache:    cache,
		store:    store,
		editor:   session,
		realtime: realtime,
		issuer:   issuer,
	}
}

func (f serverFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch typed := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(typed)
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeJSON[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	if err := json.Unmarshal(recorder.Body.Bytes(), &value); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return value
}
