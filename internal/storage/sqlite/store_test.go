package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kiliankoe/chainrelay/internal/game"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chainrelay.sqlite")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

// finishedRecord builds a three participant session with N links per chain,
// alternating prompt and drawing, each text naming its author.
func finishedRecord() game.Record {
	participants := []game.Participant{
		{ID: "a", Name: "Alice", Position: 0, IsOwner: true},
		{ID: "b", Name: "Bob", Position: 1},
		{ID: "c", Name: "Cleo", Position: 2},
	}
	n := len(participants)
	chains := make([]game.Chain, n)
	for c := range chains {
		chains[c] = game.Chain{ID: participants[c].ID, Name: participants[c].Name}
		for p := 0; p < n; p++ {
			author := participants[game.AuthorPositionForChain(c, p+1, n)]
			if p%2 == 0 {
				chains[c].Links = append(chains[c].Links, game.PromptLink("by "+author.ID))
			} else {
				chains[c].Links = append(chains[c].Links, game.DrawingLink("https://img/"+author.ID))
			}
		}
	}
	return game.Record{
		Code:         "ABCDE",
		CreatedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		RoundIx:      game.TotalRounds(n) - 1,
		Started:      true,
		Complete:     true,
		Participants: participants,
		Chains:       chains,
	}
}

func countRows(t *testing.T, store *Store, table string) int {
	t.Helper()
	var n int
	if err := store.sqlDB.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "chainrelay.sqlite")
	for i := 0; i < 2; i++ {
		store, err := Open(path)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		if err := store.Close(); err != nil {
			t.Fatalf("close %d: %v", i, err)
		}
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	finished := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	store.now = func() time.Time { return finished }
	rec := finishedRecord()
	ctx := context.Background()

	if err := store.Archive(ctx, rec); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if got := countRows(t, store, "games"); got != 1 {
		t.Fatalf("expected 1 game, got %d", got)
	}
	if got := countRows(t, store, "chains"); got != 3 {
		t.Fatalf("expected 3 chains, got %d", got)
	}
	// Positions 0 and 2 are prompts, position 1 is a drawing.
	if got := countRows(t, store, "prompts"); got != 6 {
		t.Fatalf("expected 6 prompts, got %d", got)
	}
	if got := countRows(t, store, "drawings"); got != 3 {
		t.Fatalf("expected 3 drawings, got %d", got)
	}

	g, err := store.LoadGame(ctx, "ABCDE")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !g.StartedAt.Equal(rec.CreatedAt) || !g.FinishedAt.Equal(finished) {
		t.Fatalf("unexpected timestamps %v / %v", g.StartedAt, g.FinishedAt)
	}
	if g.ParticipantCount != 3 || len(g.Chains) != 3 {
		t.Fatalf("unexpected game %+v", g)
	}
	for c, ch := range g.Chains {
		if ch.Position != c || ch.ParticipantID != rec.Participants[c].ID {
			t.Fatalf("chain %d: unexpected owner %+v", c, ch)
		}
		if len(ch.Links) != 3 {
			t.Fatalf("chain %d: expected 3 links, got %d", c, len(ch.Links))
		}
		for p, l := range ch.Links {
			if l.Round != p+1 {
				t.Fatalf("chain %d link %d: expected round %d, got %d", c, p, p+1, l.Round)
			}
			if l.Kind != rec.Chains[c].Links[p].Kind {
				t.Fatalf("chain %d link %d: expected kind %s, got %s", c, p, rec.Chains[c].Links[p].Kind, l.Kind)
			}
			var content string
			switch l.Kind {
			case game.LinkPrompt:
				content = "by " + l.AuthorID
				if l.Text != content {
					t.Fatalf("chain %d link %d: author %s does not match text %q", c, p, l.AuthorID, l.Text)
				}
			case game.LinkDrawing:
				content = "https://img/" + l.AuthorID
				if l.ImageURL != content {
					t.Fatalf("chain %d link %d: author %s does not match url %q", c, p, l.AuthorID, l.ImageURL)
				}
			}
		}
		if ch.Links[0].AuthorID != ch.ParticipantID {
			t.Fatalf("chain %d: first link should be written by its owner, got %s", c, ch.Links[0].AuthorID)
		}
	}
}

func TestArchiveRollsBackOnFailedInsert(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	if _, err := store.sqlDB.Exec(`CREATE TRIGGER fail_prompt BEFORE INSERT ON prompts
		WHEN NEW.text = 'by c'
		BEGIN SELECT RAISE(ABORT, 'forced failure'); END;`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	err := store.Archive(context.Background(), finishedRecord())
	if !errors.Is(err, ErrCouldNotCreatePrompts) {
		t.Fatalf("expected ErrCouldNotCreatePrompts, got %v", err)
	}
	for _, table := range []string{"games", "chains", "prompts", "drawings"} {
		if got := countRows(t, store, table); got != 0 {
			t.Fatalf("expected empty %s after rollback, got %d rows", table, got)
		}
	}
	if _, err := store.LoadGame(context.Background(), "ABCDE"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestArchiveTreatsMissingRowAsFailure(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	if _, err := store.sqlDB.Exec(`CREATE TRIGGER skip_drawing BEFORE INSERT ON drawings
		BEGIN SELECT RAISE(IGNORE); END;`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	err := store.Archive(context.Background(), finishedRecord())
	if !errors.Is(err, ErrCouldNotCreateImages) {
		t.Fatalf("expected ErrCouldNotCreateImages, got %v", err)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected wrapped sql.ErrNoRows, got %v", err)
	}
	if got := countRows(t, store, "games"); got != 0 {
		t.Fatalf("expected no game rows, got %d", got)
	}
}

func TestArchiveRejectsMalformedRecord(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	rec := finishedRecord()
	rec.Chains = rec.Chains[:2]
	if err := store.Archive(context.Background(), rec); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}

	rec = finishedRecord()
	rec.Chains[1].Links[2].Kind = "sculpture"
	if err := store.Archive(context.Background(), rec); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
	if got := countRows(t, store, "chains"); got != 0 {
		t.Fatalf("expected no chains after rollback, got %d", got)
	}
}

func TestLoadGameReturnsLatest(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	first := finishedRecord()
	if err := store.Archive(ctx, first); err != nil {
		t.Fatalf("archive first: %v", err)
	}
	second := finishedRecord()
	second.Chains[0].Links[0] = game.PromptLink("again")
	if err := store.Archive(ctx, second); err != nil {
		t.Fatalf("archive second: %v", err)
	}

	n, err := store.CountGames(ctx, "ABCDE")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 games, got %d", n)
	}
	g, err := store.LoadGame(ctx, "ABCDE")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := g.Chains[0].Links[0].Text; got != "again" {
		t.Fatalf("expected latest game, got first link %q", got)
	}
}

func TestLoadGameNotFound(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	if _, err := store.LoadGame(context.Background(), "ZZZZZ"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
