package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	DBPath   string `env:"CHAINRELAY_DB_PATH" envDefault:"./chainrelay.db"`
	// PublicURL is the address encoded in join QR codes; empty means the
	// request host.
	PublicURL string `env:"CHAINRELAY_PUBLIC_URL"`

	ExportEnabled bool   `env:"CHAINRELAY_EXPORT_ENABLED" envDefault:"false"`
	ExportFile    string `env:"CHAINRELAY_EXPORT_FILE" envDefault:"./chainrelay-results.txt"`

	Game Game
}

// Game holds the tunables of the session coordinator.
type Game struct {
	MinParticipants int           `env:"CHAINRELAY_MIN_PARTICIPANTS" envDefault:"2"`
	MaxParticipants int           `env:"CHAINRELAY_MAX_PARTICIPANTS" envDefault:"12"`
	CodeLength      int           `env:"CHAINRELAY_CODE_LENGTH" envDefault:"5"`
	SubmitWindow    time.Duration `env:"CHAINRELAY_SUBMIT_WINDOW" envDefault:"60s"`
	RoundDelay      time.Duration `env:"CHAINRELAY_ROUND_DELAY" envDefault:"2s"`
	ReapInterval    time.Duration `env:"CHAINRELAY_REAP_INTERVAL" envDefault:"5m"`
	StaleAfter      time.Duration `env:"CHAINRELAY_STALE_AFTER" envDefault:"2h"`
	ArchiveTimeout  time.Duration `env:"CHAINRELAY_ARCHIVE_TIMEOUT" envDefault:"15s"`
}

// DefaultGame returns the game settings used when nothing is configured.
func DefaultGame() Game {
	return Game{
		MinParticipants: 2,
		MaxParticipants: 12,
		CodeLength:      5,
		SubmitWindow:    60 * time.Second,
		RoundDelay:      2 * time.Second,
		ReapInterval:    5 * time.Minute,
		StaleAfter:      2 * time.Hour,
		ArchiveTimeout:  15 * time.Second,
	}
}

func FromEnv() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := c.Game.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (g Game) Validate() error {
	if g.MinParticipants < 2 {
		return fmt.Errorf("min participants must be at least 2, got %d", g.MinParticipants)
	}
	if g.MaxParticipants < g.MinParticipants {
		return fmt.Errorf("max participants (%d) must be >= min participants (%d)", g.MaxParticipants, g.MinParticipants)
	}
	if g.CodeLength < 3 {
		return fmt.Errorf("code length must be at least 3, got %d", g.CodeLength)
	}
	if g.SubmitWindow <= 0 || g.RoundDelay < 0 {
		return errors.New("submit window must be positive and round delay non-negative")
	}
	if g.ReapInterval <= 0 || g.StaleAfter <= 0 {
		return errors.New("reap interval and stale threshold must be positive")
	}
	return nil
}
