package events

import (
	"time"

	"github.com/mcdev12/turingroom/go/internal/models"
)

// PhaseSetup is reported in phase_change and snapshot while players configure responders.
const PhaseSetup = "setup"

type PlayerJoinedPayload struct {
	PlayerID string `json:"playerId"`
	Nickname string `json:"nickname"`
}

type PlayerLeftPayload struct {
	PlayerID string `json:"playerId"`
	// Reason is "left" or "kicked".
	Reason     string `json:"reason,omitempty"`
	NewOwnerID string `json:"newOwnerId,omitempty"`
}

type PlayerReadyPayload struct {
	PlayerID string `json:"playerId"`
	Ready    bool   `json:"ready"`
}

type PlayerConfiguredPayload struct {
	PlayerID string `json:"playerId"`
	Locked   bool   `json:"locked"`
}

type PlayerPresencePayload struct {
	PlayerID string `json:"playerId"`
	Online   bool   `json:"online"`
}

// PhaseData carries the phase-specific details of a phase_change.
type PhaseData struct {
	InterrogatorID string     `json:"interrogatorId,omitempty"`
	SubjectID      string     `json:"subjectId,omitempty"`
	Question       string     `json:"question,omitempty"`
	TotalRounds    int        `json:"totalRounds,omitempty"`
	Deadline       *time.Time `json:"deadline,omitempty"`
}

type PhaseChangePayload struct {
	Phase       string    `json:"phase"`
	RoundNumber int       `json:"roundNumber"`
	Data        PhaseData `json:"data"`
}

type NewQuestionPayload struct {
	Question       string `json:"question"`
	InterrogatorID string `json:"interrogatorId"`
}

// NewAnswerPayload announces the answer at its display time. AnswerOrigin stays empty
// unless the room opts into revealing it early.
type NewAnswerPayload struct {
	Answer       string              `json:"answer"`
	AnswerOrigin models.AnswerOrigin `json:"answerOrigin"`
}

type VoteCastPayload struct {
	PlayerID string `json:"playerId"`
}

type VoteView struct {
	PlayerID string            `json:"playerId"`
	Choice   models.VoteChoice `json:"choice"`
	Correct  *bool             `json:"correct,omitempty"`
}

type RoundResultPayload struct {
	RoundNumber  int                       `json:"roundNumber"`
	SubjectID    string                    `json:"subjectId"`
	Question     string                    `json:"question"`
	Answer       string                    `json:"answer"`
	AnswerOrigin models.AnswerOrigin       `json:"answerOrigin"`
	Votes        []VoteView                `json:"votes"`
	ScoreDeltas  map[string]int            `json:"scoreDeltas"`
	Abandoned    bool                      `json:"abandoned,omitempty"`
	Leaderboard  []models.LeaderboardEntry `json:"leaderboard"`
}

type GameOverPayload struct {
	Leaderboard []models.LeaderboardEntry `json:"leaderboard"`
	Winners     []models.LeaderboardEntry `json:"winners"`
	MaxScore    int                       `json:"maxScore"`
	Reason      string                    `json:"reason,omitempty"`
}

type RoomClosedPayload struct {
	Reason string `json:"reason"`
}

// MemberView is a player as seen by other room members.
type MemberView struct {
	PlayerID string `json:"playerId"`
	Nickname string `json:"nickname"`
	IsOwner  bool   `json:"isOwner"`
	Ready    bool   `json:"ready"`
	Online   bool   `json:"online"`
	Locked   bool   `json:"locked"`
	Score    int    `json:"score"`
}

// RoundView is the current round as seen by room members. Answer is set only once displayed.
type RoundView struct {
	Number         int          `json:"number"`
	Phase          models.Phase `json:"phase"`
	InterrogatorID string       `json:"interrogatorId"`
	SubjectID      string       `json:"subjectId"`
	Question       string       `json:"question,omitempty"`
	Answer         string       `json:"answer,omitempty"`
	Voted          []string     `json:"voted,omitempty"`
}

// SnapshotPayload describes a room's current phase, round and membership.
type SnapshotPayload struct {
	RoomCode    string                    `json:"roomCode"`
	Status      models.RoomStatus         `json:"status"`
	Phase       string                    `json:"phase,omitempty"`
	OwnerID     string                    `json:"ownerId"`
	RoundNumber int                       `json:"roundNumber"`
	TotalRounds int                       `json:"totalRounds"`
	Deadline    *time.Time                `json:"deadline,omitempty"`
	Round       *RoundView                `json:"round,omitempty"`
	Members     []MemberView              `json:"members"`
	Leaderboard []models.LeaderboardEntry `json:"leaderboard,omitempty"`
}
