package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kiliankoe/chainrelay/internal/game"
)

// Game is an archived session as read back from storage.
type Game struct {
	ID               int64     `json:"id"`
	Code             string    `json:"code"`
	StartedAt        time.Time `json:"startedAt"`
	FinishedAt       time.Time `json:"finishedAt"`
	ParticipantCount int       `json:"participantCount"`
	Chains           []Chain   `json:"chains"`
}

type Chain struct {
	ID              int64  `json:"id"`
	Position        int    `json:"position"`
	ParticipantID   string `json:"participantId"`
	ParticipantName string `json:"participantName"`
	Links           []Link `json:"links"`
}

type Link struct {
	game.Link
	Round      int    `json:"round"`
	AuthorID   string `json:"authorId"`
	AuthorName string `json:"authorName"`
}

// LoadGame returns the most recently archived game with the given code.
func (s *Store) LoadGame(ctx context.Context, code string) (Game, error) {
	if err := ctx.Err(); err != nil {
		return Game{}, err
	}
	if s == nil || s.sqlDB == nil {
		return Game{}, fmt.Errorf("storage is not configured")
	}

	var g Game
	var startedAt, finishedAt int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, code, started_at, finished_at, participant_count
		   FROM games
		  WHERE code = ?
		  ORDER BY id DESC
		  LIMIT 1`,
		code,
	).Scan(&g.ID, &g.Code, &startedAt, &finishedAt, &g.ParticipantCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Game{}, ErrNotFound
		}
		return Game{}, fmt.Errorf("get game: %w", err)
	}
	g.StartedAt = fromMillis(startedAt)
	g.FinishedAt = fromMillis(finishedAt)

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, position, participant_id, participant_name
		   FROM chains
		  WHERE game_id = ?
		  ORDER BY position`,
		g.ID,
	)
	if err != nil {
		return Game{}, fmt.Errorf("list chains: %w", err)
	}
	byID := map[int64]int{}
	for rows.Next() {
		var ch Chain
		if err := rows.Scan(&ch.ID, &ch.Position, &ch.ParticipantID, &ch.ParticipantName); err != nil {
			rows.Close()
			return Game{}, fmt.Errorf("scan chain: %w", err)
		}
		ch.Links = []Link{}
		byID[ch.ID] = len(g.Chains)
		g.Chains = append(g.Chains, ch)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return Game{}, fmt.Errorf("list chains: %w", err)
	}
	rows.Close()

	links, err := s.sqlDB.QueryContext(ctx,
		`SELECT chain_id, round, author_id, author_name, 'prompt', text, ''
		   FROM prompts WHERE game_id = ?
		 UNION ALL
		 SELECT chain_id, round, author_id, author_name, 'drawing', '', image_url
		   FROM drawings WHERE game_id = ?
		 ORDER BY 1, 2`,
		g.ID, g.ID,
	)
	if err != nil {
		return Game{}, fmt.Errorf("list links: %w", err)
	}
	defer links.Close()
	for links.Next() {
		var chainID int64
		var l Link
		var kind string
		if err := links.Scan(&chainID, &l.Round, &l.AuthorID, &l.AuthorName, &kind, &l.Text, &l.ImageURL); err != nil {
			return Game{}, fmt.Errorf("scan link: %w", err)
		}
		l.Kind = game.LinkKind(kind)
		i, ok := byID[chainID]
		if !ok {
			continue
		}
		g.Chains[i].Links = append(g.Chains[i].Links, l)
	}
	if err := links.Err(); err != nil {
		return Game{}, fmt.Errorf("list links: %w", err)
	}
	return g, nil
}

// CountGames reports how many games were archived under code.
func (s *Store) CountGames(ctx context.Context, code string) (int, error) {
	var n int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM games WHERE code = ?`, code).Scan(&n); err != nil {
		return 0, fmt.Errorf("count games: %w", err)
	}
	return n, nil
}
