package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gemini-chat-be/internal/config"
	"gemini-chat-be/internal/entity"
	"gemini-chat-be/internal/mapper"
	"gemini-chat-be/internal/pkg/logger"
	"gemini-chat-be/internal/repository/contract"
	"gemini-chat-be/internal/repository/implementation"

	"github.com/fatih/color"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	badColor  = color.New(color.FgRed)
)

// Reports unreadable chat files and a dangling last-chat pointer. Exits 1 when anything is wrong.
func main() {
	cfg := config.Load()

	m := mapper.NewConversationMapper(entity.GenerationDefaults{
		ModelName:    cfg.Defaults.ModelName,
		SystemPrompt: cfg.Defaults.SystemPrompt,
		Temperature:  cfg.Defaults.Temperature,
		TopP:         cfg.Defaults.TopP,
		MaxTokens:    cfg.Defaults.MaxTokens,
	})
	repo, err := implementation.NewConversationFileRepository(cfg.History.Dir, cfg.History.PointerFile, m, logger.NewNopLogger())
	if err != nil {
		color.Red("Cannot open history directory %s: %v", cfg.History.Dir, err)
		os.Exit(1)
	}

	color.Cyan("🔍 Checking chat history in %s\n", cfg.History.Dir)

	problems, err := audit(context.Background(), repo, cfg.History.Dir, color.Output)
	if err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
	if problems > 0 {
		color.Red("\n%d problem(s) found", problems)
		os.Exit(1)
	}
	color.Green("\nAll good")
}

// audit loads every chat file in dir through repo and checks the last-chat pointer,
// returning the number of problems found.
func audit(ctx context.Context, repo contract.ConversationRepository, dir string, w io.Writer) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	problems, checked := 0, 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, implementation.FilePrefix) || !strings.HasSuffix(name, implementation.FileSuffix) {
			continue
		}
		checked++
		id := strings.TrimSuffix(strings.TrimPrefix(name, implementation.FilePrefix), implementation.FileSuffix)
		c, err := repo.FindById(ctx, id)
		switch {
		case err == nil:
			okColor.Fprintf(w, "  ok       %s  %q (%d messages, %d responses)\n", id, c.Name, len(c.Messages), c.ResponseCount)
		case errors.Is(err, contract.ErrInvalidConversationId):
			warnColor.Fprintf(w, "  skipped  %s  (not a chat id)\n", name)
		default:
			problems++
			badColor.Fprintf(w, "  corrupt  %s  %v\n", id, err)
		}
	}

	lastId, err := repo.GetLastActiveId(ctx)
	switch {
	case err != nil:
		problems++
		badColor.Fprintf(w, "Last chat pointer unreadable: %v\n", err)
	case lastId == "":
		warnColor.Fprintln(w, "Last chat pointer not set")
	default:
		if ok, _ := repo.Exists(ctx, lastId); ok {
			okColor.Fprintf(w, "Last chat pointer -> %s\n", lastId)
		} else {
			problems++
			badColor.Fprintf(w, "Last chat pointer -> %s (missing)\n", lastId)
		}
	}

	fmt.Fprintf(w, "%d chat file(s) checked\n", checked)
	return problems, nil
}
