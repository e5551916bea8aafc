package models

import (
	"fmt"
	"time"
)

// Phase defines the phase of a round.
type Phase string

const (
	PhaseQuestioning Phase = "questioning"
	PhaseAnswering   Phase = "answering"
	PhaseVoting      Phase = "voting"
	PhaseRevealed    Phase = "revealed"
)

var phaseOrder = map[Phase]int{
	PhaseQuestioning: 1,
	PhaseAnswering:   2,
	PhaseVoting:      3,
	PhaseRevealed:    4,
}

// Before reports whether p comes strictly before other in a round.
func (p Phase) Before(other Phase) bool {
	return phaseOrder[p] < phaseOrder[other]
}

// AnswerOrigin defines who produced a round's answer.
type AnswerOrigin string

const (
	OriginSelf      AnswerOrigin = "self"
	OriginGenerated AnswerOrigin = "generated"
)

// ParseAnswerOrigin accepts the canonical names and the "human"/"ai" aliases.
func ParseAnswerOrigin(s string) (AnswerOrigin, error) {
	switch s {
	case "self", "human":
		return OriginSelf, nil
	case "generated", "ai":
		return OriginGenerated, nil
	}
	return "", fmt.Errorf("%w: unknown answer origin %q", ErrInvalidInput, s)
}

// VoteChoice defines a juror's verdict on a round's answer.
type VoteChoice string

const (
	ChoiceSelf      VoteChoice = "self"
	ChoiceGenerated VoteChoice = "generated"
	ChoiceAbstain   VoteChoice = "abstain"
)

// ParseVoteChoice accepts the canonical names and the "human"/"ai" aliases.
func ParseVoteChoice(s string) (VoteChoice, error) {
	switch s {
	case "self", "human":
		return ChoiceSelf, nil
	case "generated", "ai":
		return ChoiceGenerated, nil
	case "abstain", "":
		return ChoiceAbstain, nil
	}
	return "", fmt.Errorf("%w: unknown vote choice %q", ErrInvalidInput, s)
}

// Matches reports whether the choice names origin.
func (c VoteChoice) Matches(origin AnswerOrigin) bool {
	return string(c) == string(origin)
}

// Round is one question/answer/vote cycle.
type Round struct {
	RoomCode       string       `json:"room_code"`
	Number         int          `json:"number"`
	InterrogatorID string       `json:"interrogator_id"`
	SubjectID      string       `json:"subject_id"`
	Phase          Phase        `json:"phase"`
	Question       string       `json:"question"`
	Answer         string       `json:"answer,omitempty"`
	Origin         AnswerOrigin `json:"origin,omitempty"`
	Abandoned      bool         `json:"abandoned,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	AskedAt     *time.Time `json:"asked_at,omitempty"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	DisplayAt   *time.Time `json:"display_at,omitempty"`
	RevealedAt  *time.Time `json:"revealed_at,omitempty"`
}

// Clone returns a copy with its own timestamp pointers.
func (r Round) Clone() Round {
	r.AskedAt = cloneTime(r.AskedAt)
	r.SubmittedAt = cloneTime(r.SubmittedAt)
	r.DisplayAt = cloneTime(r.DisplayAt)
	r.RevealedAt = cloneTime(r.RevealedAt)
	return r
}

// Vote is a juror's verdict for one round.
type Vote struct {
	RoomCode    string     `json:"room_code"`
	RoundNumber int        `json:"round_number"`
	VoterID     string     `json:"voter_id"`
	Choice      VoteChoice `json:"choice"`
	// Correct is resolved at reveal.
	Correct *bool     `json:"correct,omitempty"`
	CastAt  time.Time `json:"cast_at"`
}

// Clone returns a copy with its own correctness pointer.
func (v Vote) Clone() Vote {
	if v.Correct != nil {
		c := *v.Correct
		v.Correct = &c
	}
	return v
}
