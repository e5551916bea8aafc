package models

import "time"

// ResponderConfig is the stand-in responder a player configures during setup.
type ResponderConfig struct {
	Instruction string `json:"instruction"`
	ProfileID   string `json:"profile_id,omitempty"`
	Locked      bool   `json:"locked"`
}

// Player represents a room member.
type Player struct {
	ID        string          `json:"id"`
	RoomCode  string          `json:"room_code"`
	Nickname  string          `json:"nickname"`
	Ready     bool            `json:"ready"`
	Online    bool            `json:"online"`
	Responder ResponderConfig `json:"responder"`
	Score     int             `json:"score"`

	TimesAsInterrogator int `json:"times_as_interrogator"`
	TimesAsSubject      int `json:"times_as_subject"`
	GeneratorUses       int `json:"generator_uses"`
	ConsecutiveCorrect  int `json:"consecutive_correct"`

	JoinedAt time.Time `json:"joined_at"`
}

// LeaderboardEntry is one row of a final or running leaderboard.
type LeaderboardEntry struct {
	PlayerID string `json:"playerId"`
	Nickname string `json:"nickname"`
	Score    int    `json:"score"`
}
