package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/mindvault/internal/notes"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationDefaultNoteSubjects = "2026-10-18_default_note_subjects"
	migrationNormalizeNoteTags   = "2026-10-18_normalize_note_tags"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

// schemaMigrations is ordered; names double as the schema version ledger.
var schemaMigrations = []migrationDefinition{
	{name: migrationDefaultNoteSubjects, apply: defaultNoteSubjects},
	{name: migrationNormalizeNoteTags, apply: normalizeNoteTags},
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	for _, migration := range schemaMigrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		applyErr := db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if applyErr != nil {
			return applyErr
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// SchemaVersion returns the name of the most recently applied migration.
func SchemaVersion(db *gorm.DB) (string, error) {
	var record migrationRecord
	err := db.Order("applied_at_s DESC, name DESC").Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return record.Name, nil
}

// defaultNoteSubjects gives notes without a subject the sentinel subject.
func defaultNoteSubjects(db *gorm.DB) error {
	return rewriteRecords(db.Where("subject = ''"), func(note notes.Note) notes.Note {
		note.Subject = notes.DefaultSubject
		return note
	})
}

// normalizeNoteTags round-trips every payload so null tag lists become empty ones.
func normalizeNoteTags(db *gorm.DB) error {
	return rewriteRecords(db, func(note notes.Note) notes.Note {
		return note
	})
}

func rewriteRecords(scope *gorm.DB, rewrite func(notes.Note) notes.Note) error {
	var records []notes.Record
	if err := scope.Find(&records).Error; err != nil {
		return err
	}
	for _, record := range records {
		note, err := notes.DecodeRecord(record)
		if err != nil {
			return err
		}
		updated, err := notes.EncodeRecord(rewrite(note))
		if err != nil {
			return err
		}
		if err := scope.Session(&gorm.Session{NewDB: true}).Save(&updated).Error; err != nil {
			return err
		}
	}
	return nil
}
