// Package room owns every live room: membership, lobby actions and the round machine that
// runs each game. Each room has its own guard; the registry map lock is only held for
// lookup and insert.
package room

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/turingroom/go/internal/game/events"
	"github.com/mcdev12/turingroom/go/internal/game/round"
	"github.com/mcdev12/turingroom/go/internal/generator"
	"github.com/mcdev12/turingroom/go/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	MaxNicknameLen    = 24
	MaxTextLen        = 500
	MaxInstructionLen = 1000
)

// Reasons reported in room_closed.
const (
	ClosedEmpty     = "empty"
	ClosedDisbanded = "disbanded"
	ClosedIdle      = "idle"
	ClosedExpired   = "expired"
)

// Publisher fans room events out to subscribers.
type Publisher interface {
	round.Publisher
	// CloseRoom drops every subscriber of a room that was torn down.
	CloseRoom(roomCode string)
}

// Recorder persists entity snapshots and removals.
type Recorder interface {
	round.Recorder
	ForgetPlayer(roomCode, playerID string)
	ForgetRoom(code string)
}

type Config struct {
	// Defaults fill any zero field of a room's requested config.
	Defaults         models.GameConfig
	GeneratorTimeout time.Duration
	// FinishedTTL is how long a finished room stays readable before it is torn down.
	FinishedTTL time.Duration
	// IdleTTL tears down waiting rooms with no activity for this long.
	IdleTTL       time.Duration
	SweepInterval time.Duration
	// Seed fixes the rotation and default-question draws; zero seeds from the clock.
	Seed int64
}

func DefaultConfig() Config {
	return Config{
		Defaults:         models.DefaultGameConfig(),
		GeneratorTimeout: 20 * time.Second,
		FinishedTTL:      10 * time.Minute,
		IdleTTL:          30 * time.Minute,
		SweepInterval:    time.Minute,
	}
}

type Deps struct {
	Clock     clockwork.Clock
	Delay     round.DisplayScheduler
	Generator generator.Generator
	Publisher Publisher
	Recorder  Recorder
}

type entry struct {
	mu       sync.Mutex
	state    *round.State
	machine  *round.Machine
	closed   bool
	activeAt time.Time
}

// Registry is the set of live rooms.
type Registry struct {
	cfg  Config
	deps Deps

	mu    sync.RWMutex
	rooms map[string]*entry
	seeds *rand.Rand
}

func NewRegistry(cfg Config, deps Deps) *Registry {
	cfg.Defaults = cfg.Defaults.WithDefaults(models.DefaultGameConfig())
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = deps.Clock.Now().UnixNano()
	}
	return &Registry{
		cfg:   cfg,
		deps:  deps,
		rooms: make(map[string]*entry),
		seeds: rand.New(rand.NewSource(seed)),
	}
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// CreateRoom opens a waiting room owned by a new player with the given nickname.
// An empty secret makes the room joinable by code alone.
func (r *Registry) CreateRoom(cfg models.GameConfig, ownerNickname, secret string) (models.Room, models.Player, error) {
	nickname, err := cleanNickname(ownerNickname)
	if err != nil {
		return models.Room{}, models.Player{}, err
	}
	cfg = cfg.WithDefaults(r.cfg.Defaults)
	if cfg.MinPlayers < 2 || cfg.MaxPlayers < cfg.MinPlayers {
		return models.Room{}, models.Player{}, fmt.Errorf("%w: player bounds %d..%d", models.ErrInvalidInput, cfg.MinPlayers, cfg.MaxPlayers)
	}

	now := r.deps.Clock.Now()
	owner := &models.Player{
		ID:       uuid.NewString(),
		Nickname: nickname,
		JoinedAt: now,
	}
	room := &models.Room{
		Secret:    strings.TrimSpace(secret),
		OwnerID:   owner.ID,
		Status:    models.RoomStatusWaiting,
		MemberIDs: []string{owner.ID},
		Config:    cfg,
		CreatedAt: now,
	}

	e := &entry{state: round.NewState(room), activeAt: now}
	e.state.Players[owner.ID] = owner

	r.mu.Lock()
	code, err := r.uniqueCode()
	if err != nil {
		r.mu.Unlock()
		return models.Room{}, models.Player{}, err
	}
	room.Code = code
	owner.RoomCode = code
	e.machine = round.NewMachine(e.state, &e.mu, round.Deps{
		Clock:            r.deps.Clock,
		Delay:            r.deps.Delay,
		Generator:        r.deps.Generator,
		GeneratorTimeout: r.cfg.GeneratorTimeout,
		Publisher:        r.deps.Publisher,
		Recorder:         r.deps.Recorder,
		Rand:             rand.New(rand.NewSource(r.seeds.Int63())),
	})
	r.rooms[code] = e
	r.mu.Unlock()

	r.deps.Recorder.RecordRoom(*room)
	r.deps.Recorder.RecordPlayer(*owner)

	log.Info().
		Str("room_code", code).
		Str("player_id", owner.ID).
		Int("max_players", cfg.MaxPlayers).
		Msg("room created")
	return room.Clone(), *owner, nil
}

func (r *Registry) lookup(code string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.rooms[normalizeCode(code)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: room %s", models.ErrNotFound, code)
	}
	return e, nil
}

// with runs fn under the room guard. A room torn down while the caller waited for the
// guard reports NotFound.
func (r *Registry) with(code string, fn func(e *entry) error) error {
	e, err := r.lookup(code)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("%w: room %s", models.ErrNotFound, code)
	}
	return fn(e)
}

// withMember is like with but also requires playerID to be a current member.
func (r *Registry) withMember(code, playerID string, fn func(e *entry, p *models.Player) error) error {
	return r.with(code, func(e *entry) error {
		p, ok := e.state.Players[playerID]
		if !ok || !e.state.Room.IsMember(playerID) {
			return fmt.Errorf("%w: player %s", models.ErrNotFound, playerID)
		}
		e.activeAt = r.deps.Clock.Now()
		return fn(e, p)
	})
}

// Snapshot returns the room's current phase, round and membership.
func (r *Registry) Snapshot(code string) (events.SnapshotPayload, error) {
	var snap events.SnapshotPayload
	err := r.with(code, func(e *entry) error {
		snap = e.machine.Snapshot()
		return nil
	})
	return snap, err
}

// WithSnapshot calls fn with a snapshot of the room while holding the room guard, so no
// event is published between the snapshot and fn returning. playerID must be a member.
func (r *Registry) WithSnapshot(code, playerID string, fn func(events.SnapshotPayload)) error {
	return r.withMember(code, playerID, func(e *entry, _ *models.Player) error {
		fn(e.machine.Snapshot())
		return nil
	})
}

// Room returns a copy of the room.
func (r *Registry) Room(code string) (models.Room, error) {
	var room models.Room
	err := r.with(code, func(e *entry) error {
		room = e.state.Room.Clone()
		return nil
	})
	return room, err
}

// teardown closes the room: stops its machine, tells subscribers and removes it from the
// registry. Finished rooms keep their stored history. Must hold e.mu.
func (r *Registry) teardown(e *entry, reason string) {
	if e.closed {
		return
	}
	e.closed = true
	e.machine.Stop()
	room := e.state.Room

	e.machine.Emit(events.TypeRoomClosed, events.RoomClosedPayload{Reason: reason})
	r.deps.Publisher.CloseRoom(room.Code)
	if room.Status != models.RoomStatusFinished {
		r.deps.Recorder.ForgetRoom(room.Code)
	}

	r.mu.Lock()
	delete(r.rooms, room.Code)
	r.mu.Unlock()

	log.Info().
		Str("room_code", room.Code).
		Str("reason", reason).
		Str("status", string(room.Status)).
		Msg("room closed")
}

func cleanNickname(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: nickname is empty", models.ErrInvalidInput)
	}
	if utf8.RuneCountInString(s) > MaxNicknameLen {
		return "", fmt.Errorf("%w: nickname longer than %d characters", models.ErrInvalidInput, MaxNicknameLen)
	}
	return s, nil
}

func checkLen(what, s string, limit int) error {
	if utf8.RuneCountInString(s) > limit {
		return fmt.Errorf("%w: %s longer than %d characters", models.ErrInvalidInput, what, limit)
	}
	return nil
}
