package game

import (
    "context"
    "errors"
    "math/rand"
    "strings"
    "sync"
    "time"

    "github.com/kiliankoe/chainrelay/internal/config"
    "github.com/rs/zerolog"
    "github.com/rs/zerolog/log"
)

const (
    codeAlphabet    = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
    maxCodeAttempts = 64
)

// Dispatcher delivers realtime events to participants.
type Dispatcher interface {
    Dispatch(participantID, event string, payload any) error
    Broadcast(participantIDs []string, event string, payload any)
}

// Archiver persists a completed session.
type Archiver interface {
    Archive(ctx context.Context, rec Record) error
}

type SessionCtx struct {
    Code      string
    CreatedAt time.Time

    participants []string          // position 0 is the owner
    names        map[string]string // participantID -> display name

    roundIx  int
    chains   []*Chain
    started  bool
    complete bool

    mu sync.Mutex
}

type task struct {
    cancel context.CancelFunc
}

type Manager struct {
    mu         sync.RWMutex
    sessions   map[string]*SessionCtx
    schedulers map[string]*task

    cfg      config.Game
    dispatch Dispatcher
    archiver Archiver
    log      zerolog.Logger
    now      func() time.Time
    rng      *rand.Rand

    base   context.Context
    stop   context.CancelFunc
    wg     sync.WaitGroup
    rngMu  sync.Mutex
}

type Option func(*Manager)

func WithDispatcher(d Dispatcher) Option { return func(m *Manager) { m.dispatch = d } }

func WithArchiver(a Archiver) Option { return func(m *Manager) { m.archiver = a } }

func WithLogger(l zerolog.Logger) Option { return func(m *Manager) { m.log = l } }

func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// WithRand fixes the source used for session codes.
func WithRand(r *rand.Rand) Option { return func(m *Manager) { m.rng = r } }

func NewManager(cfg config.Game, opts ...Option) *Manager {
    base, stop := context.WithCancel(context.Background())
    m := &Manager{
        sessions:   make(map[string]*SessionCtx),
        schedulers: make(map[string]*task),
        cfg:        cfg,
        dispatch:   nopDispatcher{},
        log:        log.Logger,
        now:        func() time.Time { return time.Now().UTC() },
        rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
        base:       base,
        stop:       stop,
    }
    for _, opt := range opts {
        opt(m)
    }
    return m
}

func (m *Manager) CreateSession(ownerID, ownerName string) (string, error) {
    ownerID = strings.TrimSpace(ownerID)
    ownerName = strings.TrimSpace(ownerName)
    if ownerID == "" || ownerName == "" {
        return "", ErrInvalidInput
    }

    m.mu.Lock()
    defer m.mu.Unlock()

    code := ""
    for i := 0; i < maxCodeAttempts; i++ {
        c := m.randomCode(m.cfg.CodeLength)
        if m.sessions[c] == nil {
            code = c
            break
        }
    }
    if code == "" {
        return "", ErrCodeExhausted
    }

    m.sessions[code] = &SessionCtx{
        Code:         code,
        CreatedAt:    m.now(),
        participants: []string{ownerID},
        names:        map[string]string{ownerID: ownerName},
    }
    m.log.Info().Str("code", code).Str("participant", ownerID).Msg("session created")
    return code, nil
}

func (m *Manager) Get(code string) (*SessionCtx, error) {
    m.mu.RLock()
    defer m.mu.RUnlock()
    s := m.sessions[code]
    if s == nil {
        return nil, ErrInvalidSession
    }
    return s, nil
}

func (m *Manager) JoinSession(code, participantID, name string) error {
    participantID = strings.TrimSpace(participantID)
    name = strings.TrimSpace(name)
    s, err := m.Get(code)
    if err != nil {
        return err
    }
    if participantID == "" || name == "" {
        return ErrInvalidInput
    }

    s.mu.Lock()
    defer s.mu.Unlock()
    if s.started || s.roundIx > 0 {
        return ErrAlreadyStarted
    }
    if len(s.participants) >= m.cfg.MaxParticipants {
        return ErrSessionFull
    }
    if _, ok := s.names[participantID]; ok {
        return ErrAlreadyJoined
    }
    s.participants = append(s.participants, participantID)
    s.names[participantID] = name
    m.log.Info().Str("code", code).Str("participant", participantID).Int("count", len(s.participants)).Msg("participant joined")
    return nil
}

// StartSession creates one chain per participant and launches the phase
// scheduler. Only the owner may start, and only once.
func (m *Manager) StartSession(code, requesterID string) error {
    s, err := m.Get(code)
    if err != nil {
        return err
    }

    s.mu.Lock()
    if len(s.participants) < m.cfg.MinParticipants {
        s.mu.Unlock()
        return ErrNoParticipants
    }
    if s.participants[0] != requesterID {
        s.mu.Unlock()
        return ErrNotOwner
    }
    if s.started {
        s.mu.Unlock()
        return ErrAlreadyStarted
    }
    s.started = true
    s.chains = make([]*Chain, len(s.participants))
    for i, id := range s.participants {
        s.chains[i] = &Chain{ID: id, Name: s.names[id], Links: []Link{}}
    }
    n := len(s.participants)
    s.mu.Unlock()

    m.launch(s)
    m.log.Info().Str("code", code).Int("participants", n).Msg("session started")
    return nil
}

// SubmitLink appends link to the chain the participant is assigned in the
// current round. The link kind is not checked against the phase and repeated
// submissions within a round are all appended.
func (m *Manager) SubmitLink(code, participantID string, link Link) error {
    s, err := m.Get(code)
    if err != nil {
        return err
    }

    s.mu.Lock()
    defer s.mu.Unlock()
    pos := s.position(participantID)
    if pos < 0 {
        return ErrUnknownParticipant
    }
    if !link.Valid() {
        return ErrInvalidInput
    }
    if !s.started {
        return ErrNotStarted
    }
    n := len(s.chains)
    ch := s.chains[ChainForParticipant(pos, s.roundIx, n)]
    ch.Links = append(ch.Links, link)
    m.log.Debug().Str("code", code).Str("participant", participantID).Int("round", s.roundIx).Str("chain", ch.ID).Str("kind", string(link.Kind)).Msg("link submitted")
    return nil
}

func (m *Manager) Snapshot(code string) (Record, error) {
    s, err := m.Get(code)
    if err != nil {
        return Record{}, err
    }
    return s.Snapshot(), nil
}

// Delete removes a session and cancels its scheduler if one is running.
func (m *Manager) Delete(code string) bool {
    m.mu.Lock()
    defer m.mu.Unlock()
    return m.deleteLocked(code)
}

func (m *Manager) deleteLocked(code string) bool {
    if _, ok := m.sessions[code]; !ok {
        return false
    }
    delete(m.sessions, code)
    if t := m.schedulers[code]; t != nil {
        t.cancel()
        delete(m.schedulers, code)
    }
    return true
}

func (m *Manager) Count() int {
    m.mu.RLock()
    defer m.mu.RUnlock()
    return len(m.sessions)
}

// Wait blocks until every scheduler and pending archive has finished.
func (m *Manager) Wait() { m.wg.Wait() }

// Close cancels all running schedulers and waits for in-flight archives.
func (m *Manager) Close() {
    m.stop()
    m.wg.Wait()
}

func (m *Manager) randomCode(n int) string {
    m.rngMu.Lock()
    defer m.rngMu.Unlock()
    b := make([]byte, n)
    for i := range b {
        b[i] = codeAlphabet[m.rng.Intn(len(codeAlphabet))]
    }
    return string(b)
}

func (s *SessionCtx) position(participantID string) int {
    for i, id := range s.participants {
        if id == participantID {
            return i
        }
    }
    return -1
}

func (s *SessionCtx) Participants() []Participant {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.participantsLocked()
}

func (s *SessionCtx) participantsLocked() []Participant {
    out := make([]Participant, len(s.participants))
    for i, id := range s.participants {
        out[i] = Participant{ID: id, Name: s.names[id], Position: i, IsOwner: i == 0}
    }
    return out
}

func (s *SessionCtx) Phase() Phase {
    s.mu.Lock()
    defer s.mu.Unlock()
    return PhaseFor(s.roundIx, len(s.participants))
}

func (s *SessionCtx) RoundIx() int {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.roundIx
}

func (s *SessionCtx) Complete() bool {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.complete
}

func (s *SessionCtx) Snapshot() Record {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.snapshotLocked()
}

func (s *SessionCtx) snapshotLocked() Record {
    return Record{
        Code:         s.Code,
        CreatedAt:    s.CreatedAt,
        RoundIx:      s.roundIx,
        Started:      s.started,
        Complete:     s.complete,
        Participants: s.participantsLocked(),
        Chains:       copyChains(s.chains),
    }
}

func copyChains(chains []*Chain) []Chain {
    out := make([]Chain, len(chains))
    for i, c := range chains {
        out[i] = Chain{ID: c.ID, Name: c.Name, Links: append([]Link(nil), c.Links...)}
    }
    return out
}

type nopDispatcher struct{}

var errNoDispatcher = errors.New("no dispatcher configured")

func (nopDispatcher) Dispatch(string, string, any) error { return errNoDispatcher }

func (nopDispatcher) Broadcast([]string, string, any) {}
