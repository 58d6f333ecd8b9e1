package game

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func sampleRecord() Record {
	return Record{
		Code:      "ABCDE",
		CreatedAt: time.Date(2026, time.March, 1, 20, 0, 0, 0, time.UTC),
		RoundIx:   2,
		Started:   true,
		Complete:  true,
		Participants: []Participant{
			{ID: "A", Name: "Alice", Position: 0, IsOwner: true},
			{ID: "B", Name: "Bob", Position: 1},
		},
		Chains: []Chain{
			{ID: "A", Name: "Alice", Links: []Link{PromptLink("a moose"), DrawingLink("https://img.example/1.png")}},
			{ID: "B", Name: "Bob", Links: []Link{PromptLink("a kettle"), DrawingLink("https://img.example/2.png")}},
		},
	}
}

func TestTranscriptAttributesAuthors(t *testing.T) {
	out := Transcript(sampleRecord())

	for _, want := range []string{
		"Session ABCDE",
		"Chain of Alice",
		`1. Alice wrote: "a moose"`,
		"2. Bob drew: https://img.example/1.png",
		`1. Bob wrote: "a kettle"`,
		"2. Alice drew: https://img.example/2.png",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("transcript missing %q:\n%s", want, out)
		}
	}
}

func TestFileExporterAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "results.txt")
	e := &FileExporter{Path: path}

	for i := 0; i < 2; i++ {
		if err := e.Archive(context.Background(), sampleRecord()); err != nil {
			t.Fatalf("archive: %v", err)
		}
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if got := strings.Count(string(b), "Session ABCDE"); got != 2 {
		t.Fatalf("expected 2 exported sessions, got %d", got)
	}
}

func TestArchiversJoinErrors(t *testing.T) {
	boom := errors.New("boom")
	ok := &fakeArchiver{got: make(chan Record, 1)}
	bad := &fakeArchiver{got: make(chan Record, 1), err: boom}

	err := Archivers{bad, ok}.Archive(context.Background(), sampleRecord())
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error to contain boom, got %v", err)
	}
	if len(ok.got) != 1 {
		t.Fatal("later archivers should still run after a failure")
	}
}
