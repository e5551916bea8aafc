package models

import (
	"slices"
	"time"
)

// RoomStatus defines the lifecycle status of a room.
type RoomStatus string

const (
	RoomStatusWaiting  RoomStatus = "waiting"
	RoomStatusSetup    RoomStatus = "setup"
	RoomStatusPlaying  RoomStatus = "playing"
	RoomStatusFinished RoomStatus = "finished"
)

// GameConfig holds the per-room configuration bundle.
type GameConfig struct {
	SetupSec       int `json:"setup_sec" yaml:"setup_sec"`
	QuestionSec    int `json:"question_sec" yaml:"question_sec"`
	AnswerSec      int `json:"answer_sec" yaml:"answer_sec"`
	VoteSec        int `json:"vote_sec" yaml:"vote_sec"`
	RevealDelaySec int `json:"reveal_delay_sec" yaml:"reveal_delay_sec"`
	MinPlayers     int `json:"min_players" yaml:"min_players"`
	MaxPlayers     int `json:"max_players" yaml:"max_players"`
	// TotalRounds overrides the derived round count when > 0.
	TotalRounds      int      `json:"total_rounds,omitempty" yaml:"total_rounds"`
	FallbackAnswer   string   `json:"fallback_answer" yaml:"fallback_answer"`
	DefaultQuestions []string `json:"default_questions,omitempty" yaml:"default_questions"`
	// RevealOriginOnAnswer publishes the answer origin in new_answer instead of holding it until round_result.
	RevealOriginOnAnswer bool `json:"reveal_origin_on_answer,omitempty" yaml:"reveal_origin_on_answer"`
	StreakThreshold      int  `json:"streak_threshold,omitempty" yaml:"streak_threshold"`
	StreakBonus          int  `json:"streak_bonus,omitempty" yaml:"streak_bonus"`
}

// MaxDerivedRounds caps the round count derived from membership.
const MaxDerivedRounds = 20

// DefaultGameConfig returns the stock phase durations and player bounds.
func DefaultGameConfig() GameConfig {
	return GameConfig{
		SetupSec:       60,
		QuestionSec:    30,
		AnswerSec:      45,
		VoteSec:        15,
		RevealDelaySec: 3,
		MinPlayers:     2,
		MaxPlayers:     8,
		FallbackAnswer: "(no answer)",
	}
}

// WithDefaults fills zero fields from base.
func (c GameConfig) WithDefaults(base GameConfig) GameConfig {
	if c.SetupSec <= 0 {
		c.SetupSec = base.SetupSec
	}
	if c.QuestionSec <= 0 {
		c.QuestionSec = base.QuestionSec
	}
	if c.AnswerSec <= 0 {
		c.AnswerSec = base.AnswerSec
	}
	if c.VoteSec <= 0 {
		c.VoteSec = base.VoteSec
	}
	if c.RevealDelaySec <= 0 {
		c.RevealDelaySec = base.RevealDelaySec
	}
	if c.MinPlayers <= 0 {
		c.MinPlayers = base.MinPlayers
	}
	if c.MaxPlayers <= 0 {
		c.MaxPlayers = base.MaxPlayers
	}
	if c.FallbackAnswer == "" {
		c.FallbackAnswer = base.FallbackAnswer
	}
	if len(c.DefaultQuestions) == 0 {
		c.DefaultQuestions = base.DefaultQuestions
	}
	return c
}

func (c GameConfig) SetupDuration() time.Duration    { return seconds(c.SetupSec) }
func (c GameConfig) QuestionDuration() time.Duration { return seconds(c.QuestionSec) }
func (c GameConfig) AnswerDuration() time.Duration   { return seconds(c.AnswerSec) }
func (c GameConfig) VoteDuration() time.Duration     { return seconds(c.VoteSec) }
func (c GameConfig) RevealDelay() time.Duration      { return seconds(c.RevealDelaySec) }

// RoundsFor returns the number of rounds for a game started with n members.
func (c GameConfig) RoundsFor(n int) int {
	if c.TotalRounds > 0 {
		return c.TotalRounds
	}
	return min(MaxDerivedRounds, n*2)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Room is one game session's isolated state container.
type Room struct {
	Code         string     `json:"code"`
	Secret       string     `json:"-"`
	OwnerID      string     `json:"owner_id"`
	Status       RoomStatus `json:"status"`
	MemberIDs    []string   `json:"member_ids"`
	CurrentRound int        `json:"current_round"`
	TotalRounds  int        `json:"total_rounds"`
	Config       GameConfig `json:"config"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// HasSecret reports whether joining requires a secret.
func (r *Room) HasSecret() bool {
	return r.Secret != ""
}

// IsMember reports whether playerID is in the member list.
func (r *Room) IsMember(playerID string) bool {
	return slices.Contains(r.MemberIDs, playerID)
}

// Clone returns a deep copy safe to hand to another goroutine.
func (r Room) Clone() Room {
	r.MemberIDs = slices.Clone(r.MemberIDs)
	r.Config.DefaultQuestions = slices.Clone(r.Config.DefaultQuestions)
	r.StartedAt = cloneTime(r.StartedAt)
	r.FinishedAt = cloneTime(r.FinishedAt)
	return r
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
