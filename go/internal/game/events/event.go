// Package events defines the room event envelope and the wire payload catalog
// shared by the round machine, the gateway and the transport client.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type names a room event on the wire.
type Type string

const (
	TypeSnapshot         Type = "snapshot"
	TypePlayerJoined     Type = "player_joined"
	TypePlayerLeft       Type = "player_left"
	TypePlayerReady      Type = "player_ready"
	TypePlayerConfigured Type = "player_configured"
	TypePlayerPresence   Type = "player_presence"
	TypePhaseChange      Type = "phase_change"
	TypeNewQuestion      Type = "new_question"
	TypeNewAnswer        Type = "new_answer"
	TypeVoteCast         Type = "vote_cast"
	TypeRoundResult      Type = "round_result"
	TypeGameOver         Type = "game_over"
	TypeRoomClosed       Type = "room_closed"
)

// Event is the envelope every room event travels in.
type Event struct {
	ID       string `json:"id"`
	RoomCode string `json:"roomCode"`
	Type     Type   `json:"type"`
	// Seq is assigned by the hub and increases by one per published event in a room.
	Seq       uint64          `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// New builds an event with payload marshalled into Data.
func New(roomCode string, typ Type, at time.Time, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", typ, err)
	}
	return Event{
		ID:        uuid.NewString(),
		RoomCode:  roomCode,
		Type:      typ,
		Timestamp: at.UTC(),
		Data:      data,
	}, nil
}

// ParsePayload decodes the event data into the payload struct for its type.
func ParsePayload(ev Event) (any, error) {
	var target any
	switch ev.Type {
	case TypeSnapshot:
		target = &SnapshotPayload{}
	case TypePlayerJoined:
		target = &PlayerJoinedPayload{}
	case TypePlayerLeft:
		target = &PlayerLeftPayload{}
	case TypePlayerReady:
		target = &PlayerReadyPayload{}
	case TypePlayerConfigured:
		target = &PlayerConfiguredPayload{}
	case TypePlayerPresence:
		target = &PlayerPresencePayload{}
	case TypePhaseChange:
		target = &PhaseChangePayload{}
	case TypeNewQuestion:
		target = &NewQuestionPayload{}
	case TypeNewAnswer:
		target = &NewAnswerPayload{}
	case TypeVoteCast:
		target = &VoteCastPayload{}
	case TypeRoundResult:
		target = &RoundResultPayload{}
	case TypeGameOver:
		target = &GameOverPayload{}
	case TypeRoomClosed:
		target = &RoomClosedPayload{}
	default:
		return nil, fmt.Errorf("unknown event type: %s", ev.Type)
	}
	if err := json.Unmarshal(ev.Data, target); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s payload: %w", ev.Type, err)
	}
	return target, nil
}
