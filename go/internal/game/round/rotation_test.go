package round

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/mcdev12/turingroom/go/internal/models"
)

func rotationState(n int) *State {
	s := NewState(&models.Room{Code: "ROT001"})
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("p%d", i)
		s.Room.MemberIDs = append(s.Room.MemberIDs, id)
		s.Players[id] = &models.Player{ID: id}
	}
	return s
}

// play picks roles for the given number of rounds, updating counters the way beginRound does.
func play(s *State, rounds int, rng *rand.Rand) [][2]string {
	var out [][2]string
	last := ""
	for i := 0; i < rounds; i++ {
		interrogator, subject := pickRoles(s, last, rng)
		s.usedPairs[pairKey{interrogator, subject}] = true
		s.Players[interrogator].TimesAsInterrogator++
		s.Players[subject].TimesAsSubject++
		out = append(out, [2]string{interrogator, subject})
		last = subject
	}
	return out
}

func TestPickRolesCoversEverySubject(t *testing.T) {
	for n := 2; n <= 8; n++ {
		for seed := int64(0); seed < 5; seed++ {
			t.Run(fmt.Sprintf("n=%d/seed=%d", n, seed), func(t *testing.T) {
				s := rotationState(n)
				pairs := play(s, 2*n, rand.New(rand.NewSource(seed)))

				for i, p := range pairs {
					if p[0] == p[1] {
						t.Fatalf("round %d: %s is both interrogator and subject", i+1, p[0])
					}
				}
				for _, p := range s.Members() {
					if p.TimesAsSubject != 2 {
						t.Errorf("%s was subject %d times, want 2", p.ID, p.TimesAsSubject)
					}
				}
			})
		}
	}
}

func TestPickRolesAvoidsRepeatedPairs(t *testing.T) {
	for n := 3; n <= 8; n++ {
		s := rotationState(n)
		pairs := play(s, 2*n, rand.New(rand.NewSource(int64(n))))

		seen := map[[2]string]bool{}
		for i, p := range pairs {
			if seen[p] {
				t.Errorf("n=%d round %d repeats pair %v", n, i+1, p)
			}
			seen[p] = true
		}
	}
}

func TestPickRolesSkipsPreviousSubject(t *testing.T) {
	s := rotationState(3)
	rng := rand.New(rand.NewSource(3))
	pairs := play(s, 12, rng)
	for i := 1; i < len(pairs); i++ {
		if pairs[i][1] == pairs[i-1][1] {
			t.Errorf("round %d repeats subject %s", i+1, pairs[i][1])
		}
	}
}

func TestPickRolesNeedsTwoMembers(t *testing.T) {
	s := rotationState(1)
	if i, sub := pickRoles(s, "", rand.New(rand.NewSource(1))); i != "" || sub != "" {
		t.Errorf("pickRoles() = %q, %q with one member", i, sub)
	}
}
