package scoring

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mcdev12/turingroom/go/internal/models"
)

func vote(voter string, choice models.VoteChoice) models.Vote {
	return models.Vote{VoterID: voter, Choice: choice}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name   string
		origin models.AnswerOrigin
		votes  []models.Vote
		want   map[string]int
	}{
		{
			name:   "generated with one deceived and one correct",
			origin: models.OriginGenerated,
			votes:  []models.Vote{vote("v1", models.ChoiceSelf), vote("v2", models.ChoiceGenerated)},
			want:   map[string]int{"v1": -30, "v2": 50, "subj": 100},
		},
		{
			name:   "generated with everyone deceived earns the bonus",
			origin: models.OriginGenerated,
			votes:  []models.Vote{vote("v1", models.ChoiceSelf), vote("v2", models.ChoiceSelf)},
			want:   map[string]int{"v1": -30, "v2": -30, "subj": 400},
		},
		{
			name:   "generated with abstentions only counts cast votes for the bonus",
			origin: models.OriginGenerated,
			votes:  []models.Vote{vote("v1", models.ChoiceSelf), vote("v2", models.ChoiceAbstain)},
			want:   map[string]int{"v1": -30, "v2": 0, "subj": 300},
		},
		{
			name:   "all abstain on generated yields zeros and no bonus",
			origin: models.OriginGenerated,
			votes:  []models.Vote{vote("v1", models.ChoiceAbstain), vote("v2", models.ChoiceAbstain)},
			want:   map[string]int{"v1": 0, "v2": 0, "subj": 0},
		},
		{
			name:   "self answer never scores the subject",
			origin: models.OriginSelf,
			votes:  []models.Vote{vote("v1", models.ChoiceSelf), vote("v2", models.ChoiceGenerated), vote("v3", models.ChoiceSelf)},
			want:   map[string]int{"v1": 50, "v2": -30, "v3": 50, "subj": 0},
		},
		{
			name:   "no votes",
			origin: models.OriginSelf,
			want:   map[string]int{"subj": 0},
		},
		{
			name:   "subject votes are ignored",
			origin: models.OriginGenerated,
			votes:  []models.Vote{vote("subj", models.ChoiceGenerated), vote("v1", models.ChoiceSelf)},
			want:   map[string]int{"v1": -30, "subj": 300},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.origin, "subj", tt.votes)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Score() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestScoreIsPure(t *testing.T) {
	votes := []models.Vote{vote("v1", models.ChoiceSelf), vote("v2", models.ChoiceGenerated)}
	first := Score(models.OriginGenerated, "subj", votes)
	second := Score(models.OriginGenerated, "subj", votes)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated Score() differs:\n%s", diff)
	}
}

func TestCorrectness(t *testing.T) {
	votes := []models.Vote{vote("v1", models.ChoiceSelf), vote("v2", models.ChoiceGenerated), vote("v3", models.ChoiceAbstain)}
	got := Correctness(models.OriginSelf, votes)
	want := map[string]bool{"v1": true, "v2": false}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Correctness() mismatch (-want +got):\n%s", diff)
	}
}

func TestStreakRule(t *testing.T) {
	rule := StreakRule{Threshold: 2, Bonus: 25}
	streaks := map[string]int{}

	deltas := map[string]int{}
	rule.Apply(models.OriginSelf, []models.Vote{vote("v1", models.ChoiceSelf), vote("v2", models.ChoiceGenerated)}, streaks, deltas)
	if len(deltas) != 0 {
		t.Fatalf("first round should not award a streak bonus, got %v", deltas)
	}

	deltas = map[string]int{}
	rule.Apply(models.OriginGenerated, []models.Vote{vote("v1", models.ChoiceGenerated), vote("v2", models.ChoiceGenerated)}, streaks, deltas)
	if diff := cmp.Diff(map[string]int{"v1": 25}, deltas); diff != "" {
		t.Errorf("second round bonus mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]int{"v1": 2, "v2": 1}, streaks); diff != "" {
		t.Errorf("streaks mismatch (-want +got):\n%s", diff)
	}
}

func TestStreakRuleDisabledStillTracks(t *testing.T) {
	streaks := map[string]int{"v2": 4}
	deltas := map[string]int{}
	StreakRule{}.Apply(models.OriginSelf, []models.Vote{vote("v1", models.ChoiceSelf), vote("v2", models.ChoiceAbstain)}, streaks, deltas)
	if len(deltas) != 0 {
		t.Errorf("disabled rule awarded %v", deltas)
	}
	if diff := cmp.Diff(map[string]int{"v1": 1, "v2": 0}, streaks); diff != "" {
		t.Errorf("streaks mismatch (-want +got):\n%s", diff)
	}
}
