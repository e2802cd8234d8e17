package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/MarcoPoloResearchLab/mindvault/internal/notes"
	"github.com/MarcoPoloResearchLab/mindvault/internal/studyai"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
)

const chatPrompt = "you> "

var chatCommands = []string{"/exit", "/quiz", "/summary", "/help"}

func newChatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <note-id>",
		Short: "Talk to the study assistant about one note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication(cmd.Context(), applicationOptions{console: true})
			if err != nil {
				return err
			}
			defer app.close() //nolint:errcheck

			note, ok := app.cache.Get(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", notes.ErrNoteNotFound, args[0])
			}
			repl := &chatREPL{assistant: app.assistant, note: note, out: cmd.OutOrStdout()}
			return repl.run(cmd.Context())
		},
	}
}

// chatREPL keeps the conversation history for one note across prompts.
type chatREPL struct {
	assistant *studyai.Assistant
	note      notes.Note
	history   []studyai.ChatMessage
	out       io.Writer
	liner     *liner.State
}

func chatHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".mindvault_history")
}

func (r *chatREPL) run(ctx context.Context) error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(func(line string) []string {
		var matches []string
		for _, command := range chatCommands {
			if strings.HasPrefix(command, line) {
				matches = append(matches, command)
			}
		}
		return matches
	})
	if f, err := os.Open(chatHistoryFile()); err == nil {
		_, _ = r.liner.ReadHistory(f)
		f.Close()
	}
	defer r.saveHistory()

	fmt.Fprintf(r.out, "Chatting about %q. Type /help for commands.\n", r.note.Title)
	for {
		line, err := r.liner.Prompt(chatPrompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out)
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.liner.AppendHistory(line)

		switch line {
		case "/exit", "/quit":
			return nil
		case "/help":
			fmt.Fprintln(r.out, "Commands: /summary, /quiz, /exit. Anything else is sent to the assistant.")
		case "/summary":
			fmt.Fprintln(r.out, r.assistant.Summarize(ctx, r.note.Content))
		case "/quiz":
			r.printQuiz(ctx)
		default:
			reply := r.assistant.Chat(ctx, r.history, r.note.Content, line)
			r.history = append(r.history,
				studyai.ChatMessage{Role: studyai.RoleUser, Text: line},
				studyai.ChatMessage{Role: studyai.RoleModel, Text: reply},
			)
			fmt.Fprintf(r.out, "assistant> %s\n", reply)
		}
	}
}

func (r *chatREPL) printQuiz(ctx context.Context) {
	questions := r.assistant.Quiz(ctx, r.note.Content)
	if len(questions) == 0 {
		fmt.Fprintln(r.out, "No quiz available.")
		return
	}
	for index, question := range questions {
		fmt.Fprintf(r.out, "%d. %s\n", index+1, question.Question)
		for optionIndex, option := range question.Options {
			marker := " "
			if optionIndex == question.CorrectAnswer {
				marker = "*"
			}
			fmt.Fprintf(r.out, "   %s %c) %s\n", marker, 'a'+optionIndex, option)
		}
		if question.Explanation != "" {
			fmt.Fprintf(r.out, "   %s\n", question.Explanation)
		}
	}
}

func (r *chatREPL) saveHistory() {
	if path := chatHistoryFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			_, _ = r.liner.WriteHistory(f)
			f.Close()
		}
	}
}
