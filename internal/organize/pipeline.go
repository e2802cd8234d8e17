// Package organize assigns subjects and chapter titles to notes, one note at a time.
package organize

import (
	"context"
	"iter"
	"math"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/mindvault/internal/notes"
)

// MinContentLength is the shortest body worth sending for classification.
const MinContentLength = 20

// placeholderTitles are replaced by a generated title; any other title is kept.
var placeholderTitles = []string{"New Note", notes.DefaultTitle, "Untitled"}

// Classifier is the external capability the pipeline needs.
type Classifier interface {
	Classify(ctx context.Context, content string) (string, error)
	TitleFor(ctx context.Context, content string) (string, error)
}

// Outcome reports what happened to one note.
type Outcome string

const (
	OutcomeClassified Outcome = "classified"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeFailed     Outcome = "failed"
)

// Progress is processed/total after a note has been handled.
type Progress struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
}

// Fraction returns progress in [0, 1]; an empty batch counts as complete.
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 1
	}
	return float64(p.Processed) / float64(p.Total)
}

// Percent rounds Fraction to a whole percentage.
func (p Progress) Percent() int {
	return int(math.Round(p.Fraction() * 100))
}

// Classification is what the service proposed for one note.
type Classification struct {
	Subject string
	// Title is empty unless the note had a placeholder title and the service offered one.
	Title   string
}

// ApplyTo sets the proposed subject on note and replaces its title only while it is still a placeholder.
func (c Classification) ApplyTo(note notes.Note) notes.Note {
	applied := note.Clone()
	applied.Subject = c.Subject
	if c.Title != "" && IsPlaceholderTitle(applied.Title) {
		applied.Title = c.Title
	}
	return applied
}

// Result is one step of a pipeline run.
type Result struct {
	// Note is the proposed record for OutcomeClassified, the original otherwise.
	Note           notes.Note
	Classification Classification
	Outcome        Outcome
	Err            error
	Progress       Progress
}

// PipelineConfig describes a Pipeline.
type PipelineConfig struct {
	Classifier Classifier
	// Delay is the pause between consecutive service calls.
	Delay time.Duration
	Clock func() time.Time
}

// Pipeline produces classification results lazily.
type Pipeline struct {
	classifier Classifier
	delay      time.Duration
	clock      func() time.Time
}

// NewPipeline constructs a Pipeline.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Classifier == nil {
		return nil, errMissingClassifier
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	delay := cfg.Delay
	if delay < 0 {
		delay = 0
	}
	return &Pipeline{classifier: cfg.Classifier, delay: delay, clock: clock}, nil
}

// Results yields one Result per note in order. Nothing is classified until the consumer
// pulls the next value, so stopping the range loop stops the service calls. Ranging
// again starts over from the first note.
func (p *Pipeline) Results(ctx context.Context, batch []notes.Note) iter.Seq[Result] {
	snapshot := make([]notes.Note, 0, len(batch))
	for _, note := range batch {
		snapshot = append(snapshot, note.Clone())
	}

	return func(yield func(Result) bool) {
		total := len(snapshot)
		called := false
		for index, note := range snapshot {
			if ctx.Err() != nil {
				return
			}
			progress := Progress{Processed: index + 1, Total: total}

			if utf8.RuneCountInString(note.Content) < MinContentLength {
				if !yield(Result{Note: note, Outcome: OutcomeSkipped, Progress: progress}) {
					return
				}
				continue
			}

			if called && !p.pause(ctx) {
				return
			}
			called = true

			classification, err := p.classify(ctx, note)
			result := Result{
				Note:           classification.ApplyTo(note).Touch(p.clock()),
				Classification: classification,
				Outcome:        OutcomeClassified,
				Progress:       progress,
			}
			if err != nil {
				result = Result{Note: note, Outcome: OutcomeFailed, Err: err, Progress: progress}
			}
			if !yield(result) {
				return
			}
		}
	}
}

func (p *Pipeline) classify(ctx context.Context, note notes.Note) (Classification, error) {
	subject, err := p.classifier.Classify(ctx, note.Content)
	if err != nil {
		return Classification{}, err
	}
	title, err := p.classifier.TitleFor(ctx, note.Content)
	if err != nil {
		return Classification{}, err
	}

	classification := Classification{Subject: subject}
	if IsPlaceholderTitle(note.Title) {
		classification.Title = strings.TrimSpace(title)
	}
	return classification, nil
}

func (p *Pipeline) pause(ctx context.Context) bool {
	if p.delay <= 0 {
		return true
	}
	timer := time.NewTimer(p.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// IsPlaceholderTitle reports whether title is one the pipeline may replace.
func IsPlaceholderTitle(title string) bool {
	return slices.Contains(placeholderTitles, strings.TrimSpace(title))
}
