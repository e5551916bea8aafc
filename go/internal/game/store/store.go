// Package store persists room, player, round and vote snapshots.
package store

import (
	"context"
	"sync"

	"github.com/mcdev12/turingroom/go/internal/models"
)

// Store is durable storage keyed by room code, (room, round number) and
// (room, round number, voter). Every write is an upsert on its key.
type Store interface {
	UpsertRoom(ctx context.Context, room models.Room) error
	DeleteRoom(ctx context.Context, code string) error
	UpsertPlayer(ctx context.Context, player models.Player) error
	DeletePlayer(ctx context.Context, roomCode, playerID string) error
	UpsertRound(ctx context.Context, round models.Round) error
	UpsertVote(ctx context.Context, vote models.Vote) error
}

type roundKey struct {
	room   string
	number int
}

type voteKey struct {
	room   string
	number int
	voter  string
}

// Memory is an in-process Store.
type Memory struct {
	mu      sync.RWMutex
	rooms   map[string]models.Room
	players map[string]map[string]models.Player
	rounds  map[roundKey]models.Round
	votes   map[voteKey]models.Vote
}

func NewMemory() *Memory {
	return &Memory{
		rooms:   make(map[string]models.Room),
		players: make(map[string]map[string]models.Player),
		rounds:  make(map[roundKey]models.Round),
		votes:   make(map[voteKey]models.Vote),
	}
}

func (m *Memory) UpsertRoom(_ context.Context, room models.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[room.Code] = room.Clone()
	return nil
}

func (m *Memory) DeleteRoom(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, code)
	delete(m.players, code)
	for k := range m.rounds {
		if k.room == code {
			delete(m.rounds, k)
		}
	}
	for k := range m.votes {
		if k.room == code {
			delete(m.votes, k)
		}
	}
	return nil
}

func (m *Memory) UpsertPlayer(_ context.Context, player models.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.players[player.RoomCode] == nil {
		m.players[player.RoomCode] = make(map[string]models.Player)
	}
	m.players[player.RoomCode][player.ID] = player
	return nil
}

func (m *Memory) DeletePlayer(_ context.Context, roomCode, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.players[roomCode], playerID)
	return nil
}

func (m *Memory) UpsertRound(_ context.Context, round models.Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds[roundKey{round.RoomCode, round.Number}] = round.Clone()
	return nil
}

func (m *Memory) UpsertVote(_ context.Context, vote models.Vote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.votes[voteKey{vote.RoomCode, vote.RoundNumber, vote.VoterID}] = vote.Clone()
	return nil
}

// Room returns the stored room.
func (m *Memory) Room(code string) (models.Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[code]
	return r, ok
}

// Player returns the stored player.
func (m *Memory) Player(roomCode, playerID string) (models.Player, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.players[roomCode][playerID]
	return p, ok
}

// Round returns the stored round.
func (m *Memory) Round(roomCode string, number int) (models.Round, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rounds[roundKey{roomCode, number}]
	return r, ok
}

// Votes returns the stored votes of one round.
func (m *Memory) Votes(roomCode string, number int) []models.Vote {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Vote
	for k, v := range m.votes {
		if k.room == roomCode && k.number == number {
			out = append(out, v)
		}
	}
	return out
}
