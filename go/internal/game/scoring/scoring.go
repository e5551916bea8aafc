// Package scoring computes per-round score deltas.
package scoring

import "github.com/mcdev12/turingroom/go/internal/models"

const (
	CorrectVotePoints  = 50
	WrongVotePoints    = -30
	DeceptionPoints    = 100
	PerfectDeceptBonus = 200
)

// Score returns the score delta for every voter and the subject.
// Abstaining voters and a subject whose answer was their own receive 0.
// Votes cast by the subject are ignored.
func Score(origin models.AnswerOrigin, subjectID string, votes []models.Vote) map[string]int {
	deltas := map[string]int{subjectID: 0}

	cast, deceived := 0, 0
	for _, v := range votes {
		if v.VoterID == subjectID {
			continue
		}
		switch {
		case v.Choice == models.ChoiceAbstain:
			deltas[v.VoterID] = 0
			continue
		case v.Choice.Matches(origin):
			deltas[v.VoterID] = CorrectVotePoints
		default:
			deltas[v.VoterID] = WrongVotePoints
		}
		cast++
		if v.Choice == models.ChoiceSelf {
			deceived++
		}
	}

	if origin == models.OriginGenerated {
		deltas[subjectID] += deceived * DeceptionPoints
		if cast > 0 && deceived == cast {
			deltas[subjectID] += PerfectDeceptBonus
		}
	}
	return deltas
}

// Correctness resolves each vote's correctness against origin. Abstentions stay unresolved.
func Correctness(origin models.AnswerOrigin, votes []models.Vote) map[string]bool {
	out := make(map[string]bool, len(votes))
	for _, v := range votes {
		if v.Choice == models.ChoiceAbstain {
			continue
		}
		out[v.VoterID] = v.Choice.Matches(origin)
	}
	return out
}
