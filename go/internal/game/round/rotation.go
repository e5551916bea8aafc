package round

import (
	"math/rand"

	"github.com/mcdev12/turingroom/go/internal/models"
)

// pickRoles chooses the next subject and interrogator.
//
// The subject is drawn from the members with the fewest subject turns, so every member is
// subject once before anyone repeats; the previous subject is skipped when another candidate
// exists. The interrogator is drawn from members whose pairing with that subject has not been
// used yet, falling back to everyone else when all pairings are spent, and preferring the
// fewest interrogator turns.
func pickRoles(s *State, lastSubject string, rng *rand.Rand) (interrogatorID, subjectID string) {
	members := s.Members()
	if len(members) < 2 {
		return "", ""
	}

	subjects := fewest(members, func(p *models.Player) int { return p.TimesAsSubject })
	if len(subjects) > 1 {
		subjects = without(subjects, lastSubject)
	}
	subjectID = subjects[rng.Intn(len(subjects))].ID

	var fresh, rest []*models.Player
	for _, p := range members {
		if p.ID == subjectID {
			continue
		}
		if s.usedPairs[pairKey{p.ID, subjectID}] {
			rest = append(rest, p)
		} else {
			fresh = append(fresh, p)
		}
	}
	pool := fresh
	if len(pool) == 0 {
		pool = rest
	}
	interrogators := fewest(pool, func(p *models.Player) int { return p.TimesAsInterrogator })
	interrogatorID = interrogators[rng.Intn(len(interrogators))].ID

	return interrogatorID, subjectID
}

func fewest(players []*models.Player, count func(*models.Player) int) []*models.Player {
	var out []*models.Player
	low := -1
	for _, p := range players {
		c := count(p)
		switch {
		case low == -1 || c < low:
			low = c
			out = []*models.Player{p}
		case c == low:
			out = append(out, p)
		}
	}
	return out
}

func without(players []*models.Player, id string) []*models.Player {
	out := make([]*models.Player, 0, len(players))
	for _, p := range players {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}
