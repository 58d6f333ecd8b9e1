// Package sqlite archives completed chain relay sessions in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kiliankoe/chainrelay/internal/game"
	"github.com/kiliankoe/chainrelay/internal/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

var (
	ErrCouldNotCreateGame    = errors.New("could not create game")
	ErrCouldNotCreateChains  = errors.New("could not create chains")
	ErrCouldNotCreatePrompts = errors.New("could not create prompts")
	ErrCouldNotCreateImages  = errors.New("could not create images")
	ErrInvalidRecord         = errors.New("invalid session record")
	ErrNotFound              = errors.New("game not found")
)

// Store persists finished games in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite archive and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Archive writes a completed session as one game row, one row per chain and
// one prompt or drawing row per link, all in a single transaction. Every
// insert is finished before the commit; any failure rolls the whole game back.
func (s *Store) Archive(ctx context.Context, rec game.Record) (err error) {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	n := len(rec.Participants)
	if n == 0 || len(rec.Chains) != n {
		return fmt.Errorf("%w: %d participants, %d chains", ErrInvalidRecord, n, len(rec.Chains))
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive: %w", err)
	}
	committed := false
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if !committed {
			_ = tx.Rollback()
		}
	}()

	gameID, err := insertID(ctx, tx, ErrCouldNotCreateGame,
		`INSERT INTO games (code, started_at, finished_at, participant_count)
		 VALUES (?, ?, ?, ?) RETURNING id`,
		rec.Code, toMillis(rec.CreatedAt), toMillis(s.now()), n,
	)
	if err != nil {
		return err
	}

	chainIDs := make([]int64, len(rec.Chains))
	for pos, ch := range rec.Chains {
		chainIDs[pos], err = insertID(ctx, tx, ErrCouldNotCreateChains,
			`INSERT INTO chains (game_id, position, participant_id, participant_name)
			 VALUES (?, ?, ?, ?) RETURNING id`,
			gameID, pos, ch.ID, ch.Name,
		)
		if err != nil {
			return err
		}
	}

	for pos, ch := range rec.Chains {
		for p, link := range ch.Links {
			round := p + 1
			author := rec.Participants[game.AuthorPositionForChain(pos, round, n)]
			switch link.Kind {
			case game.LinkPrompt:
				_, err = insertID(ctx, tx, ErrCouldNotCreatePrompts,
					`INSERT INTO prompts (game_id, chain_id, position, round, author_id, author_name, text)
					 VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
					gameID, chainIDs[pos], p, round, author.ID, author.Name, link.Text,
				)
			case game.LinkDrawing:
				_, err = insertID(ctx, tx, ErrCouldNotCreateImages,
					`INSERT INTO drawings (game_id, chain_id, position, round, author_id, author_name, image_url)
					 VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
					gameID, chainIDs[pos], p, round, author.ID, author.Name, link.ImageURL,
				)
			default:
				err = fmt.Errorf("%w: chain %s link %d has kind %q", ErrInvalidRecord, ch.ID, p, link.Kind)
			}
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive: %w", err)
	}
	committed = true
	return nil
}

// insertID runs an INSERT … RETURNING id. No returned row counts as a failed
// insert of the given kind.
func insertID(ctx context.Context, tx *sql.Tx, kind error, query string, args ...any) (int64, error) {
	var id int64
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("%w: %w", kind, err)
	}
	return id, nil
}
