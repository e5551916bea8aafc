package scoring

import "github.com/mcdev12/turingroom/go/internal/models"

// StreakRule awards Bonus each time a voter reaches a multiple of Threshold consecutive
// correct votes. It is an opt-in extension applied on top of Score; the zero value is disabled.
type StreakRule struct {
	Threshold int
	Bonus     int
}

// Enabled reports whether the rule has any effect.
func (r StreakRule) Enabled() bool {
	return r.Threshold > 0 && r.Bonus != 0
}

// Apply updates streaks in place from this round's votes and, when the rule is enabled,
// adds earned bonuses to deltas. A wrong vote or abstention resets the voter's streak.
func (r StreakRule) Apply(origin models.AnswerOrigin, votes []models.Vote, streaks map[string]int, deltas map[string]int) {
	for _, v := range votes {
		if v.Choice == models.ChoiceAbstain || !v.Choice.Matches(origin) {
			streaks[v.VoterID] = 0
			continue
		}
		streaks[v.VoterID]++
		if r.Enabled() && streaks[v.VoterID]%r.Threshold == 0 {
			deltas[v.VoterID] += r.Bonus
		}
	}
}
