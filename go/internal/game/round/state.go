package round

import (
	"sort"

	"github.com/mcdev12/turingroom/go/internal/game/events"
	"github.com/mcdev12/turingroom/go/internal/generator"
	"github.com/mcdev12/turingroom/go/internal/models"
)

type pairKey struct {
	interrogator string
	subject      string
}

// State is a room aggregate: the room, its players, rounds and votes. It is owned by the
// room registry and must only be touched while holding the room's guard.
type State struct {
	Room    *models.Room
	Players map[string]*models.Player
	Rounds  []*models.Round
	// Votes holds each round's votes in first-cast order, keyed by round number.
	Votes map[int][]*models.Vote

	usedPairs map[pairKey]bool
}

// NewState creates the aggregate for a freshly created room.
func NewState(room *models.Room) *State {
	return &State{
		Room:      room,
		Players:   make(map[string]*models.Player),
		Votes:     make(map[int][]*models.Vote),
		usedPairs: make(map[pairKey]bool),
	}
}

// CurrentRound returns the round in progress or most recently revealed, or nil before the first.
func (s *State) CurrentRound() *models.Round {
	if s.Room.CurrentRound == 0 || s.Room.CurrentRound > len(s.Rounds) {
		return nil
	}
	return s.Rounds[s.Room.CurrentRound-1]
}

// Members returns the players in join order.
func (s *State) Members() []*models.Player {
	out := make([]*models.Player, 0, len(s.Room.MemberIDs))
	for _, id := range s.Room.MemberIDs {
		if p, ok := s.Players[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Leaderboard returns members ordered by score, ties kept in join order.
func (s *State) Leaderboard() []models.LeaderboardEntry {
	members := s.Members()
	out := make([]models.LeaderboardEntry, len(members))
	for i, p := range members {
		out[i] = models.LeaderboardEntry{PlayerID: p.ID, Nickname: p.Nickname, Score: p.Score}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func (s *State) voteOf(number int, voterID string) *models.Vote {
	for _, v := range s.Votes[number] {
		if v.VoterID == voterID {
			return v
		}
	}
	return nil
}

// eligibleVoters returns every current member except the subject, in join order.
func (s *State) eligibleVoters(r *models.Round) []string {
	out := make([]string, 0, len(s.Room.MemberIDs))
	for _, id := range s.Room.MemberIDs {
		if id != r.SubjectID {
			out = append(out, id)
		}
	}
	return out
}

func (s *State) allVoted(r *models.Round) bool {
	for _, id := range s.eligibleVoters(r) {
		if s.voteOf(r.Number, id) == nil {
			return false
		}
	}
	return true
}

func (s *State) allLocked() bool {
	for _, p := range s.Members() {
		if !p.Responder.Locked {
			return false
		}
	}
	return true
}

// history returns the subject's earlier self-authored answers, oldest first.
func (s *State) history(subjectID string) []generator.Exchange {
	var out []generator.Exchange
	for _, r := range s.Rounds {
		if r.SubjectID == subjectID && r.Origin == models.OriginSelf && r.Phase == models.PhaseRevealed && r.Question != "" {
			out = append(out, generator.Exchange{Question: r.Question, Answer: r.Answer})
		}
	}
	return out
}

// snapshot describes the room for a subscriber joining the event stream.
func (s *State) snapshot() events.SnapshotPayload {
	snap := events.SnapshotPayload{
		RoomCode:    s.Room.Code,
		Status:      s.Room.Status,
		OwnerID:     s.Room.OwnerID,
		RoundNumber: s.Room.CurrentRound,
		TotalRounds: s.Room.TotalRounds,
	}
	for _, p := range s.Members() {
		snap.Members = append(snap.Members, events.MemberView{
			PlayerID: p.ID,
			Nickname: p.Nickname,
			IsOwner:  p.ID == s.Room.OwnerID,
			Ready:    p.Ready,
			Online:   p.Online,
			Locked:   p.Responder.Locked,
			Score:    p.Score,
		})
	}

	switch s.Room.Status {
	case models.RoomStatusSetup:
		snap.Phase = events.PhaseSetup
	case models.RoomStatusPlaying:
		if r := s.CurrentRound(); r != nil {
			snap.Phase = string(r.Phase)
			view := &events.RoundView{
				Number:         r.Number,
				Phase:          r.Phase,
				InterrogatorID: r.InterrogatorID,
				SubjectID:      r.SubjectID,
				Question:       r.Question,
			}
			if r.Phase == models.PhaseVoting || r.Phase == models.PhaseRevealed {
				view.Answer = r.Answer
			}
			for _, v := range s.Votes[r.Number] {
				view.Voted = append(view.Voted, v.VoterID)
			}
			snap.Round = view
		}
	case models.RoomStatusFinished:
		snap.Leaderboard = s.Leaderboard()
	}
	return snap
}
