// Package studyai talks to the hosted generative-language service that summarizes,
// quizzes, classifies and titles notes, and chats about them.
package studyai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrExternalService indicates that a text-service call failed or timed out.
	ErrExternalService = errors.New("studyai: external service error")
	// ErrServiceDisabled indicates that no text service is configured.
	ErrServiceDisabled = errors.New("studyai: text service disabled")
)

// QuizQuestion is one multiple-choice question.
type QuizQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
	Explanation   string   `json:"explanation"`
}

// valid reports whether the question has text, exactly four options and an answer index among them.
func (q QuizQuestion) valid() bool {
	if strings.TrimSpace(q.Question) == "" || len(q.Options) != quizOptionCount {
		return false
	}
	return q.CorrectAnswer >= 0 && q.CorrectAnswer < quizOptionCount
}

// ChatRole identifies the author of a chat turn.
type ChatRole string

const (
	RoleUser  ChatRole = "user"
	RoleModel ChatRole = "model"
)

// ChatMessage is one turn of a conversation about a note.
type ChatMessage struct {
	Role ChatRole `json:"role"`
	Text string   `json:"text"`
}

// TextService is the external text capability. Every method may fail with ErrExternalService.
type TextService interface {
	Summarize(ctx context.Context, content string) (string, error)
	Quiz(ctx context.Context, content string) ([]QuizQuestion, error)
	Classify(ctx context.Context, content string) (string, error)
	TitleFor(ctx context.Context, content string) (string, error)
	Chat(ctx context.Context, history []ChatMessage, noteContent string, message string) (string, error)
}

// Disabled is the TextService used when no API key is configured.
type Disabled struct{}

var errDisabled = fmt.Errorf("%w: %w", ErrExternalService, ErrServiceDisabled)

func (Disabled) Summarize(context.Context, string) (string, error) {
	return "", errDisabled
}

func (Disabled) Quiz(context.Context, string) ([]QuizQuestion, error) {
	return nil, errDisabled
}

func (Disabled) Classify(context.Context, string) (string, error) {
	return "", errDisabled
}

func (Disabled) TitleFor(context.Context, string) (string, error) {
	return "", errDisabled
}

func (Disabled) Chat(context.Context, []ChatMessage, string, string) (string, error) {
	return "", errDisabled
}
