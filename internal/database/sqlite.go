package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MarcoPoloResearchLab/mindvault/internal/notes"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const memoryPathPrefix = "file::memory:"

// OpenSQLite establishes a SQLite connection, creating the file and schema when absent,
// and applies pending migrations.
func OpenSQLite(path string, zapLogger *zap.Logger) (*gorm.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if !strings.HasPrefix(path, memoryPathPrefix) {
		if directory := filepath.Dir(path); directory != "." {
			if err := os.MkdirAll(directory, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&notes.Record{}, &migrationRecord{}); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, zapLogger); err != nil {
		return nil, err
	}

	if zapLogger != nil {
		version, err := SchemaVersion(db)
		if err != nil {
			return nil, err
		}
		zapLogger.Info("database initialized", zap.String("path", path), zap.String("schema_version", version))
	}

	return db, nil
}

// Opener adapts OpenSQLite to the lazy opener the note store expects.
func Opener(path string, zapLogger *zap.Logger) notes.Opener {
	return func() (*gorm.DB, error) {
		return OpenSQLite(path, zapLogger)
	}
}
