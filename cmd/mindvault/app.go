package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/mindvault/internal/attachments"
	"github.com/MarcoPoloResearchLab/mindvault/internal/backup"
	"github.com/MarcoPoloResearchLab/mindvault/internal/config"
	"github.com/MarcoPoloResearchLab/mindvault/internal/database"
	"github.com/MarcoPoloResearchLab/mindvault/internal/logging"
	"github.com/MarcoPoloResearchLab/mindvault/internal/notes"
	"github.com/MarcoPoloResearchLab/mindvault/internal/organize"
	"github.com/MarcoPoloResearchLab/mindvault/internal/studyai"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const drainTimeout = 10 * time.Second

// application holds the components shared by every command.
type application struct {
	config    config.AppConfig
	logger    *zap.Logger
	database  *lazyDatabase
	store     *notes.Store
	cache     *notes.Cache
	ingester  *attachments.Ingester
	assistant *studyai.Assistant
	organizer *organize.Organizer
	backup    *backup.Service
}

type applicationOptions struct {
	// observer receives cache change events, e.g. the realtime dispatcher.
	observer func(notes.ChangeEvent)
	// console selects the human-readable logger used by interactive commands.
	console bool
}

// lazyDatabase opens the SQLite file on first use and remembers the handle so it can be closed.
type lazyDatabase struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
	db     *gorm.DB
}

func (l *lazyDatabase) open() (*gorm.DB, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db != nil {
		return l.db, nil
	}
	db, err := database.Opener(l.path, l.logger)()
	if err != nil {
		return nil, err
	}
	l.db = db
	return db, nil
}

func (l *lazyDatabase) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return nil
	}
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	l.db = nil
	return sqlDB.Close()
}

func loadConfig() (config.AppConfig, error) {
	return config.Load(viper.GetViper())
}

func newApplication(ctx context.Context, options applicationOptions) (*application, error) {
	appConfig, err := loadConfig()
	if err != nil {
		return nil, err
	}

	newLogger := logging.NewLogger
	if options.console {
		newLogger = logging.NewConsoleLogger
	}
	logger, err := newLogger(appConfig.LogLevel)
	if err != nil {
		return nil, err
	}

	lazy := &lazyDatabase{path: appConfig.DatabasePath, logger: logger}
	store, err := notes.NewStore(notes.StoreConfig{Open: lazy.open, Logger: logger})
	if err != nil {
		return nil, err
	}

	migrator, err := notes.NewMigrator(notes.MigratorConfig{
		Store:  store,
		Source: notes.FileLegacySource{Path: appConfig.LegacyPath},
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	cache, err := notes.NewCache(notes.CacheConfig{
		Store:      store,
		Migrator:   migrator,
		Clock:      time.Now,
		IDProvider: notes.NewUUIDProvider(),
		Logger:     logger,
		Observer:   options.observer,
	})
	if err != nil {
		return nil, err
	}
	if err := cache.Load(ctx); err != nil {
		_ = lazy.close()
		return nil, err
	}

	ingester, err := attachments.NewIngester(attachments.Config{
		MaxBytes:   appConfig.AttachmentMaxBytes,
		IDProvider: notes.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	assistant := studyai.NewAssistant(newTextService(ctx, appConfig, logger), logger)

	pipeline, err := organize.NewPipeline(organize.PipelineConfig{
		Classifier: assistant.Service(),
		Delay:      appConfig.OrganizeDelay,
	})
	if err != nil {
		return nil, err
	}
	organizer, err := organize.New(organize.Config{Cache: cache, Pipeline: pipeline, Logger: logger})
	if err != nil {
		return nil, err
	}

	backupService, err := backup.NewService(backup.Config{Cache: cache, Logger: logger})
	if err != nil {
		return nil, err
	}

	return &application{
		config:    appConfig,
		logger:    logger,
		database:  lazy,
		store:     store,
		cache:     cache,
		ingester:  ingester,
		assistant: assistant,
		organizer: organizer,
		backup:    backupService,
	}, nil
}

// newTextService returns the Gemini client when a key is configured and the disabled service otherwise.
func newTextService(ctx context.Context, appConfig config.AppConfig, logger *zap.Logger) studyai.TextService {
	if appConfig.GenAIAPIKey == "" {
		logger.Info("genai api key not configured, study assistant disabled")
		return studyai.Disabled{}
	}
	client, err := studyai.NewClient(ctx, studyai.ClientConfig{
		APIKey:  appConfig.GenAIAPIKey,
		Model:   appConfig.GenAIModel,
		Timeout: appConfig.GenAITimeout,
		Logger:  logger,
	})
	if err != nil {
		logger.Warn("genai client unavailable, study assistant disabled", zap.Error(err))
		return studyai.Disabled{}
	}
	return client
}

// close drains outstanding writes and releases the database.
func (a *application) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	drainErr := a.cache.Close(ctx)
	closeErr := a.database.close()
	_ = a.logger.Sync()
	return errors.Join(drainErr, closeErr)
}
