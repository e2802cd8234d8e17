package studyai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/mindvault/internal/notes"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	// DefaultModel is the Gemini model used when none is configured.
	DefaultModel   = "gemini-2.5-flash"
	defaultTimeout = 60 * time.Second

	// promptExcerptLimit bounds how much of a note is sent for classification and titling.
	promptExcerptLimit = 1000

	// quizOptionCount is the number of answers every quiz question carries.
	quizOptionCount = 4

	emptySummary = "Could not generate summary."
	emptyChat    = "I couldn't generate a response."
	// DefaultTitle is used when the service answers with an empty title.
	DefaultTitle = "New Chapter"

	opSummarize = "studyai.summarize"
	opQuiz      = "studyai.quiz"
	opClassify  = "studyai.classify"
	opTitle     = "studyai.title"
	opChat      = "studyai.chat"
)

var errMissingAPIKey = errors.New("studyai: api key is required")

// ClientConfig configures the Gemini-backed Client.
type ClientConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
	Logger  *zap.Logger
}

// backend is the single round trip a Client needs from the SDK.
type backend interface {
	generate(ctx context.Context, prompt string, config *genai.GenerateContentConfig) (string, error)
	chat(ctx context.Context, config *genai.GenerateContentConfig, history []*genai.Content, message string) (string, error)
}

type genaiBackend struct {
	client *genai.Client
	model  string
}

func (b *genaiBackend) generate(ctx context.Context, prompt string, config *genai.GenerateContentConfig) (string, error) {
	response, err := b.client.Models.GenerateContent(ctx, b.model, genai.Text(prompt), config)
	if err != nil {
		return "", err
	}
	return response.Text(), nil
}

func (b *genaiBackend) chat(ctx context.Context, config *genai.GenerateContentConfig, history []*genai.Content, message string) (string, error) {
	session, err := b.client.Chats.Create(ctx, b.model, config, history)
	if err != nil {
		return "", err
	}
	response, err := session.SendMessage(ctx, genai.Part{Text: message})
	if err != nil {
		return "", err
	}
	return response.Text(), nil
}

// Client implements TextService on top of the Gemini API.
type Client struct {
	backend backend
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient connects to the Gemini API with the configured key.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errMissingAPIKey
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	sdkClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("studyai: create client: %w", err)
	}
	return newClientWithBackend(&genaiBackend{client: sdkClient, model: model}, cfg.Timeout, cfg.Logger), nil
}

func newClientWithBackend(b backend, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{backend: b, timeout: timeout, logger: logger}
}

// Summarize condenses content into one paragraph.
func (c *Client) Summarize(ctx context.Context, content string) (string, error) {
	prompt := "Summarize the following study notes into a concise paragraph, highlighting key concepts: \n\n" + content
	text, err := c.generate(ctx, opSummarize, prompt, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText("You are an expert academic tutor. Provide clear, concise summaries.", genai.RoleUser),
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return emptySummary, nil
	}
	return text, nil
}

// Quiz asks for three multiple-choice questions as structured JSON.
func (c *Client) Quiz(ctx context.Context, content string) ([]QuizQuestion, error) {
	prompt := "Generate 3 multiple-choice quiz questions based on these notes to test understanding: \n\n" + content
	text, err := c.generate(ctx, opQuiz, prompt, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   quizSchema(),
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return []QuizQuestion{}, nil
	}
	var decoded []QuizQuestion
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return nil, c.fail(opQuiz, fmt.Errorf("decode quiz: %w", err))
	}
	questions := make([]QuizQuestion, 0, len(decoded))
	for _, question := range decoded {
		if question.valid() {
			questions = append(questions, question)
		}
	}
	if dropped := len(decoded) - len(questions); dropped > 0 {
		c.logger.Warn("dropped malformed quiz questions", zap.Int("dropped", dropped), zap.Int("kept", len(questions)))
	}
	return questions, nil
}

// Classify picks one subject from notes.Subjects.
func (c *Client) Classify(ctx context.Context, content string) (string, error) {
	prompt := fmt.Sprintf(
		"Analyze the following note content and identify the single most relevant academic Subject from this strict list: [%s]. "+
			"Return ONLY the subject name as a string. If it fits multiple, pick the most specific one. If none fit, return '%s'. Content: %s",
		strings.Join(notes.Subjects, ", "), notes.DefaultSubject, excerpt(content),
	)
	text, err := c.generate(ctx, opClassify, prompt, &genai.GenerateContentConfig{ResponseMIMEType: "text/plain"})
	if err != nil {
		return "", err
	}
	return SanitizeSubject(text), nil
}

// TitleFor proposes a short chapter name.
func (c *Client) TitleFor(ctx context.Context, content string) (string, error) {
	prompt := "Read the following study note and generate a short, descriptive Chapter Name or Title " +
		`(e.g., "Newton's Laws of Motion", "The French Revolution", "Cell Structure"). Max 6 words. Do not use quotes. Content: ` +
		excerpt(content)
	text, err := c.generate(ctx, opTitle, prompt, &genai.GenerateContentConfig{ResponseMIMEType: "text/plain"})
	if err != nil {
		return "", err
	}
	title := strings.TrimSpace(text)
	if title == "" {
		return DefaultTitle, nil
	}
	return title, nil
}

// Chat answers message in the context of noteContent and the prior turns.
func (c *Client) Chat(ctx context.Context, history []ChatMessage, noteContent string, message string) (string, error) {
	instruction := "You are an expert tutor. The user is studying the following notes:\n---\n" + noteContent + "\n---\n\n" +
		"Answer the user's questions based on these notes. If the answer isn't in the notes, use your general knowledge " +
		"but mention that it wasn't in the notes. Be encouraging and helpful."

	turns := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		var role genai.Role = genai.RoleUser
		if turn.Role == RoleModel {
			role = genai.RoleModel
		}
		turns = append(turns, genai.NewContentFromText(turn.Text, role))
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	text, err := c.backend.chat(callCtx, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(instruction, genai.RoleUser),
	}, turns, message)
	if err != nil {
		return "", c.fail(opChat, err)
	}
	if strings.TrimSpace(text) == "" {
		return emptyChat, nil
	}
	return text, nil
}

func (c *Client) generate(ctx context.Context, operation, prompt string, config *genai.GenerateContentConfig) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	text, err := c.backend.generate(callCtx, prompt, config)
	if err != nil {
		return "", c.fail(operation, err)
	}
	return text, nil
}

func (c *Client) fail(operation string, err error) error {
	c.logger.Warn("text service call failed", zap.String("operation", operation), zap.Error(err))
	return fmt.Errorf("%w: %s: %w", ErrExternalService, operation, err)
}

// SanitizeSubject strips quotes and periods from a model answer and maps anything
// outside notes.Subjects to notes.DefaultSubject.
func SanitizeSubject(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '\'', '"', '.':
			return -1
		default:
			return r
		}
	}, strings.TrimSpace(raw))
	cleaned = strings.TrimSpace(cleaned)
	for _, subject := range notes.Subjects {
		if strings.EqualFold(subject, cleaned) {
			return subject
		}
	}
	return notes.DefaultSubject
}

func excerpt(content string) string {
	if utf8.RuneCountInString(content) <= promptExcerptLimit {
		return content
	}
	runes := []rune(content)
	return string(runes[:promptExcerptLimit])
}

func quizSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"question": {Type: genai.TypeString},
				"options": {
					Type:        genai.TypeArray,
					Items:       &genai.Schema{Type: genai.TypeString},
					Description: "A list of 4 possible answers.",
				},
				"correctAnswer": {
					Type:        genai.TypeInteger,
					Description: "The index (0-3) of the correct answer in the options array.",
				},
				"explanation": {Type: genai.TypeString},
			},
			Required: []string{"question", "options", "correctAnswer", "explanation"},
		},
	}
}
