package organize

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/MarcoPoloResearchLab/mindvault/internal/notes"
	"go.uber.org/zap"
)

var (
	// ErrAlreadyRunning indicates that a batch is in progress.
	ErrAlreadyRunning = errors.New("organize: batch already running")

	errMissingClassifier = errors.New("organize: classifier is required")
	errMissingCache      = errors.New("organize: note cache is required")
)

// NoteCache is the part of notes.Cache the organizer reads and writes through.
type NoteCache interface {
	List() []notes.Note
	Get(id string) (notes.Note, bool)
	Update(note notes.Note) *notes.Pending
}

// Summary counts what a run did.
type Summary struct {
	Total   int  `json:"total"`
	Updated int  `json:"updated"`
	Skipped int  `json:"skipped"`
	Failed  int  `json:"failed"`
	Stopped bool `json:"stopped"`
}

// Config describes an Organizer.
type Config struct {
	Cache    NoteCache
	Pipeline *Pipeline
	Logger   *zap.Logger
}

// Organizer drives a Pipeline over the cached notes and writes each result back.
type Organizer struct {
	cache    NoteCache
	pipeline *Pipeline
	logger   *zap.Logger
	running  atomic.Bool
	stop     atomic.Bool
}

// New constructs an Organizer.
func New(cfg Config) (*Organizer, error) {
	if cfg.Cache == nil {
		return nil, errMissingCache
	}
	if cfg.Pipeline == nil {
		return nil, errMissingClassifier
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Organizer{cache: cfg.Cache, pipeline: cfg.Pipeline, logger: logger}, nil
}

// Running reports whether a batch is in progress.
func (o *Organizer) Running() bool {
	return o.running.Load()
}

// Stop asks the current run to finish after the note it is working on.
func (o *Organizer) Stop() {
	o.stop.Store(true)
}

// Run classifies every cached note in order. Each classification is applied to the note as
// it is in the cache at write-back time, so edits made during the run survive; notes deleted
// meanwhile are skipped. Each write is awaited before the next note starts; failures are
// logged and skipped. progress, when set, is called after every note.
func (o *Organizer) Run(ctx context.Context, progress func(Progress)) (Summary, error) {
	if !o.running.CompareAndSwap(false, true) {
		return Summary{}, ErrAlreadyRunning
	}
	defer o.running.Store(false)
	o.stop.Store(false)

	batch := o.cache.List()
	summary := Summary{Total: len(batch)}
	o.logger.Info("organize started", zap.Int("notes", len(batch)))

	for result := range o.pipeline.Results(ctx, batch) {
		switch result.Outcome {
		case OutcomeSkipped:
			summary.Skipped++
		case OutcomeFailed:
			summary.Failed++
			o.logger.Warn("organize: classification failed", zap.String("note_id", result.Note.ID), zap.Error(result.Err))
		case OutcomeClassified:
			current, ok := o.cache.Get(result.Note.ID)
			if !ok {
				summary.Skipped++
				o.logger.Info("organize: note deleted during run", zap.String("note_id", result.Note.ID))
				break
			}
			updated := result.Classification.ApplyTo(current).Touch(o.pipeline.clock())
			if err := o.cache.Update(updated).Wait(ctx); err != nil {
				summary.Failed++
				o.logger.Error("organize: write-back failed", zap.String("note_id", result.Note.ID), zap.Error(err))
			} else {
				summary.Updated++
			}
		}

		if progress != nil {
			progress(result.Progress)
		}
		if o.stop.Load() {
			summary.Stopped = true
			break
		}
	}

	o.logger.Info("organize finished",
		zap.Int("updated", summary.Updated),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Bool("stopped", summary.Stopped),
	)
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}
