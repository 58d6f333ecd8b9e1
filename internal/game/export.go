package game

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileExporter appends a plain-text transcript of every completed session to
// a file.
type FileExporter struct {
	Path string

	mu sync.Mutex
}

func (e *FileExporter) Archive(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	dir := filepath.Dir(e.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.OpenFile(e.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(Transcript(rec)); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}
	return nil
}

// Transcript renders a completed session with every link attributed to the
// participant who wrote it.
func Transcript(rec Record) string {
	var sb strings.Builder
	n := len(rec.Participants)

	sb.WriteString(fmt.Sprintf("Chain Relay Results - Session %s\n", rec.Code))
	sb.WriteString(fmt.Sprintf("Started: %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05")))
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")

	sb.WriteString("Players:\n")
	for _, p := range rec.Participants {
		sb.WriteString(fmt.Sprintf("- %s\n", p.Name))
	}
	sb.WriteString("\n")

	for chainPos, ch := range rec.Chains {
		sb.WriteString(fmt.Sprintf("Chain of %s\n", ch.Name))
		sb.WriteString(strings.Repeat("-", 40) + "\n")
		for p, l := range ch.Links {
			author := "Unknown"
			if n > 0 {
				author = rec.Participants[AuthorPositionForChain(chainPos, p+1, n)].Name
			}
			switch l.Kind {
			case LinkPrompt:
				sb.WriteString(fmt.Sprintf("%d. %s wrote: \"%s\"\n", p+1, author, l.Text))
			case LinkDrawing:
				sb.WriteString(fmt.Sprintf("%d. %s drew: %s\n", p+1, author, l.ImageURL))
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// Archivers runs every archiver in order and joins their errors.
type Archivers []Archiver

func (as Archivers) Archive(ctx context.Context, rec Record) error {
	var errs []error
	for _, a := range as {
		if err := a.Archive(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
