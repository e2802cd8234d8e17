package studyai

import (
	"context"

	"github.com/MarcoPoloResearchLab/mindvault/internal/notes"
	"go.uber.org/zap"
)

// Fallback answers returned when the text service fails.
const (
	FallbackSummary = "Error generating summary. Please check your API configuration."
	FallbackChat    = "Sorry, I'm having trouble connecting to the study assistant right now."
)

// Assistant absorbs text-service failures into fixed fallbacks so editing never depends on the service.
type Assistant struct {
	service TextService
	logger  *zap.Logger
}

// NewAssistant wraps service; a nil service behaves like Disabled.
func NewAssistant(service TextService, logger *zap.Logger) *Assistant {
	if service == nil {
		service = Disabled{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assistant{service: service, logger: logger}
}

// Service exposes the wrapped service for callers that handle failures themselves.
func (a *Assistant) Service() TextService {
	return a.service
}

func (a *Assistant) Summarize(ctx context.Context, content string) string {
	summary, err := a.service.Summarize(ctx, content)
	if err != nil {
		a.absorb(opSummarize, err)
		return FallbackSummary
	}
	return summary
}

func (a *Assistant) Quiz(ctx context.Context, content string) []QuizQuestion {
	questions, err := a.service.Quiz(ctx, content)
	if err != nil {
		a.absorb(opQuiz, err)
		return []QuizQuestion{}
	}
	return questions
}

func (a *Assistant) Classify(ctx context.Context, content string) string {
	subject, err := a.service.Classify(ctx, content)
	if err != nil {
		a.absorb(opClassify, err)
		return notes.DefaultSubject
	}
	return subject
}

func (a *Assistant) TitleFor(ctx context.Context, content string) string {
	title, err := a.service.TitleFor(ctx, content)
	if err != nil {
		a.absorb(opTitle, err)
		return DefaultTitle
	}
	return title
}

func (a *Assistant) Chat(ctx context.Context, history []ChatMessage, noteContent string, message string) string {
	reply, err := a.service.Chat(ctx, history, noteContent, message)
	if err != nil {
		a.absorb(opChat, err)
		return FallbackChat
	}
	return reply
}

func (a *Assistant) absorb(operation string, err error) {
	a.logger.Warn("text service unavailable, using fallback", zap.String("operation", operation), zap.Error(err))
}
