package game

import (
    "time"
)

type PhaseType string

const (
    PhaseLobby  PhaseType = "Lobby"
    PhasePrompt PhaseType = "Prompt"
    PhaseDraw   PhaseType = "Draw"
    PhaseGuess  PhaseType = "Guess"
    PhaseReview PhaseType = "Review"
)

// Phase is derived from the round index and participant count; it is never stored.
type Phase struct {
    Index int       `json:"index"`
    Type  PhaseType `json:"type"`
}

type LinkKind string

const (
    LinkPrompt  LinkKind = "prompt"
    LinkDrawing LinkKind = "drawing"
)

// Link is one contribution to a chain. Kind decides which of Text or
// ImageURL carries the content.
type Link struct {
    Kind     LinkKind `json:"kind"`
    Text     string   `json:"text,omitempty"`
    ImageURL string   `json:"imageUrl,omitempty"`
}

func PromptLink(text string) Link { return Link{Kind: LinkPrompt, Text: text} }

func DrawingLink(url string) Link { return Link{Kind: LinkDrawing, ImageURL: url} }

func (l Link) Valid() bool {
    switch l.Kind {
    case LinkPrompt, LinkDrawing:
        return true
    default:
        return false
    }
}

type Chain struct {
    ID    string `json:"id"`
    Name  string `json:"name"`
    Links []Link `json:"links"`
}

type Participant struct {
    ID       string `json:"id"`
    Name     string `json:"name"`
    Position int    `json:"position"`
    IsOwner  bool   `json:"isOwner"`
}

// Record is a detached copy of a session, safe to hand to other goroutines.
type Record struct {
    Code         string        `json:"code"`
    CreatedAt    time.Time     `json:"createdAt"`
    RoundIx      int           `json:"roundIx"`
    Started      bool          `json:"started"`
    Complete     bool          `json:"complete"`
    Participants []Participant `json:"participants"`
    Chains       []Chain       `json:"chains"`
}

// Outbound realtime event names.
const (
    EventConnected  = "connected"
    EventSubmission = "submission"
    EventTransition = "transition"
)

type Transition struct {
    Round     int       `json:"round"`
    Phase     PhaseType `json:"phase"`
    StartedAt time.Time `json:"startedAt"`
    ChainID   string    `json:"chainId,omitempty"`
    Prompt    string    `json:"prompt,omitempty"`
    Drawing   string    `json:"drawing,omitempty"`
    Chains    []Chain   `json:"chains,omitempty"`
}
