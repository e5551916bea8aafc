// Package round runs a room's game: setup, then rounds of questioning, answering, voting
// and reveal, until the configured number of rounds is played.
package round

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/turingroom/go/internal/game/events"
	"github.com/mcdev12/turingroom/go/internal/game/scoring"
	"github.com/mcdev12/turingroom/go/internal/generator"
	"github.com/mcdev12/turingroom/go/internal/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) clockwork.Timer
}

// Publisher delivers room events to subscribers in call order.
type Publisher interface {
	Publish(roomCode string, ev events.Event)
}

// Recorder receives snapshots of entities after every mutation.
type Recorder interface {
	RecordRoom(room models.Room)
	RecordPlayer(player models.Player)
	RecordRound(round models.Round)
	RecordVote(vote models.Vote)
}

// DisplayScheduler decides when a submitted answer becomes visible.
type DisplayScheduler interface {
	ComputeDisplayTime(origin models.AnswerOrigin, askedAt, submittedAt time.Time) time.Time
}

type Deps struct {
	Clock            Clock
	Delay            DisplayScheduler
	Generator        generator.Generator
	GeneratorTimeout time.Duration
	Publisher        Publisher
	Recorder         Recorder
	// Rand is owned by the machine and only used under the room guard.
	Rand *rand.Rand
}

// Reasons reported in game_over.
const (
	ReasonCompleted        = "completed"
	ReasonNotEnoughPlayers = "not_enough_players"
)

// Machine is the round state machine of one room. Every exported method must be called
// with the room guard held; timer and generator callbacks acquire the guard themselves.
type Machine struct {
	state *State
	guard sync.Locker
	deps  Deps

	gen       uint64
	timer     clockwork.Timer
	timerStop chan struct{}
	deadline  *time.Time

	generating bool
	stopped    bool
}

func NewMachine(state *State, guard sync.Locker, deps Deps) *Machine {
	if deps.GeneratorTimeout <= 0 {
		deps.GeneratorTimeout = 20 * time.Second
	}
	return &Machine{state: state, guard: guard, deps: deps}
}

// Deadline returns when the current phase expires, or nil when no phase timer is armed.
func (m *Machine) Deadline() *time.Time {
	return m.deadline
}

// Snapshot describes the room's current phase, round and membership.
func (m *Machine) Snapshot() events.SnapshotPayload {
	snap := m.state.snapshot()
	snap.Deadline = m.deadline
	return snap
}

// Emit publishes a room event stamped with the current time.
func (m *Machine) Emit(typ events.Type, payload any) {
	ev, err := events.New(m.state.Room.Code, typ, m.deps.Clock.Now(), payload)
	if err != nil {
		log.Error().Err(err).Str("room_code", m.state.Room.Code).Msg("failed to build event")
		return
	}
	m.deps.Publisher.Publish(m.state.Room.Code, ev)
}

// Stop cancels any pending timer and discards in-flight generator results.
func (m *Machine) Stop() {
	m.stopped = true
	m.disarm()
}

func (m *Machine) now() time.Time {
	return m.deps.Clock.Now()
}

func (m *Machine) recordRoom() {
	m.deps.Recorder.RecordRoom(*m.state.Room)
}

func (m *Machine) recordPlayer(p *models.Player) {
	m.deps.Recorder.RecordPlayer(*p)
}

func (m *Machine) recordRound(r *models.Round) {
	m.deps.Recorder.RecordRound(*r)
}

// roundLog returns a logger carrying the room code and, when r is set, the round number.
func (m *Machine) roundLog(r *models.Round) *zerolog.Logger {
	ctx := log.With().Str("room_code", m.state.Room.Code)
	if r != nil {
		ctx = ctx.Int("round", r.Number)
	}
	l := ctx.Logger()
	return &l
}

// Start moves a waiting room into setup and arms the setup timer.
func (m *Machine) Start() error {
	room := m.state.Room
	if room.Status != models.RoomStatusWaiting {
		return fmt.Errorf("%w: room is %s", models.ErrInvalidState, room.Status)
	}

	now := m.now()
	room.Status = models.RoomStatusSetup
	room.StartedAt = &now
	room.CurrentRound = 0
	room.TotalRounds = room.Config.RoundsFor(len(room.MemberIDs))
	m.recordRoom()

	m.arm(room.Config.SetupDuration(), m.onSetupExpired)
	m.Emit(events.TypePhaseChange, events.PhaseChangePayload{
		Phase: events.PhaseSetup,
		Data:  events.PhaseData{TotalRounds: room.TotalRounds, Deadline: m.deadline},
	})

	m.roundLog(nil).Info().
		Int("members", len(room.MemberIDs)).
		Int("total_rounds", room.TotalRounds).
		Msg("game setup started")
	return nil
}

// ConfigureResponder saves a player's responder settings; lock freezes them. Saving is
// allowed while waiting or in setup, locking only in setup. Once every member has locked,
// the first round begins.
func (m *Machine) ConfigureResponder(playerID, instruction, profileID string, lock bool) error {
	p, ok := m.state.Players[playerID]
	if !ok {
		return fmt.Errorf("%w: player %s", models.ErrNotFound, playerID)
	}
	status := m.state.Room.Status
	if status != models.RoomStatusWaiting && status != models.RoomStatusSetup {
		return fmt.Errorf("%w: responder can only be configured before the first round", models.ErrInvalidPhase)
	}
	if p.Responder.Locked {
		return fmt.Errorf("%w: responder already locked", models.ErrInvalidPhase)
	}
	if lock && status != models.RoomStatusSetup {
		return fmt.Errorf("%w: responder can only be locked during setup", models.ErrInvalidPhase)
	}

	p.Responder = models.ResponderConfig{
		Instruction: strings.TrimSpace(instruction),
		ProfileID:   profileID,
		Locked:      lock,
	}
	m.recordPlayer(p)
	m.Emit(events.TypePlayerConfigured, events.PlayerConfiguredPayload{PlayerID: p.ID, Locked: lock})

	if status == models.RoomStatusSetup && m.state.allLocked() {
		m.beginRound()
	}
	return nil
}

func (m *Machine) onSetupExpired() {
	for _, p := range m.state.Members() {
		if !p.Responder.Locked {
			p.Responder.Locked = true
			m.recordPlayer(p)
		}
	}
	m.beginRound()
}

// beginRound starts the next round, or finishes the game when all rounds are played
// or too few members remain.
func (m *Machine) beginRound() {
	room := m.state.Room
	if len(room.MemberIDs) < 2 {
		m.finish(ReasonNotEnoughPlayers)
		return
	}
	if room.CurrentRound >= room.TotalRounds {
		m.finish(ReasonCompleted)
		return
	}

	lastSubject := ""
	if prev := m.state.CurrentRound(); prev != nil {
		lastSubject = prev.SubjectID
	}
	interrogatorID, subjectID := pickRoles(m.state, lastSubject, m.deps.Rand)

	room.Status = models.RoomStatusPlaying
	room.CurrentRound++
	r := &models.Round{
		RoomCode:       room.Code,
		Number:         room.CurrentRound,
		InterrogatorID: interrogatorID,
		SubjectID:      subjectID,
		Phase:          models.PhaseQuestioning,
		StartedAt:      m.now(),
	}
	m.state.Rounds = append(m.state.Rounds, r)
	m.state.usedPairs[pairKey{interrogatorID, subjectID}] = true

	interrogator, subject := m.state.Players[interrogatorID], m.state.Players[subjectID]
	interrogator.TimesAsInterrogator++
	subject.TimesAsSubject++
	m.recordPlayer(interrogator)
	m.recordPlayer(subject)
	m.recordRoom()
	m.recordRound(r)

	m.arm(room.Config.QuestionDuration(), m.onQuestionExpired)
	m.Emit(events.TypePhaseChange, events.PhaseChangePayload{
		Phase:       string(models.PhaseQuestioning),
		RoundNumber: r.Number,
		Data: events.PhaseData{
			InterrogatorID: interrogatorID,
			SubjectID:      subjectID,
			TotalRounds:    room.TotalRounds,
			Deadline:       m.deadline,
		},
	})

	m.roundLog(r).Info().
		Str("interrogator_id", interrogatorID).
		Str("subject_id", subjectID).
		Msg("round started")
}

// currentIn returns the current round if the room is playing and the round is in phase.
func (m *Machine) currentIn(phase models.Phase) (*models.Round, error) {
	r := m.state.CurrentRound()
	if m.state.Room.Status != models.RoomStatusPlaying || r == nil || r.Phase != phase {
		return nil, fmt.Errorf("%w: not %s", models.ErrInvalidPhase, phase)
	}
	return r, nil
}

// SubmitQuestion records the interrogator's question and opens answering.
func (m *Machine) SubmitQuestion(playerID, text string) error {
	r, err := m.currentIn(models.PhaseQuestioning)
	if err != nil {
		return err
	}
	if playerID != r.InterrogatorID {
		return fmt.Errorf("%w: only the interrogator may ask", models.ErrForbidden)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: question is empty", models.ErrInvalidInput)
	}

	m.askQuestion(r, text)
	return nil
}

func (m *Machine) onQuestionExpired() {
	r := m.state.CurrentRound()
	question := ""
	if defaults := m.state.Room.Config.DefaultQuestions; len(defaults) > 0 {
		question = defaults[m.deps.Rand.Intn(len(defaults))]
	}
	m.roundLog(r).Info().Msg("question timed out")
	m.askQuestion(r, question)
}

func (m *Machine) askQuestion(r *models.Round, text string) {
	now := m.now()
	r.Question = text
	r.AskedAt = &now
	r.Phase = models.PhaseAnswering
	m.recordRound(r)

	m.Emit(events.TypeNewQuestion, events.NewQuestionPayload{Question: text, InterrogatorID: r.InterrogatorID})

	m.arm(m.state.Room.Config.AnswerDuration(), m.onAnswerExpired)
	m.Emit(events.TypePhaseChange, events.PhaseChangePayload{
		Phase:       string(models.PhaseAnswering),
		RoundNumber: r.Number,
		Data: events.PhaseData{
			SubjectID: r.SubjectID,
			Question:  text,
			Deadline:  m.deadline,
		},
	})
}

// SubmitAnswer accepts the subject's answer: their own text, or a request to have their
// responder generate one. Only one submission is accepted per round.
func (m *Machine) SubmitAnswer(playerID string, origin models.AnswerOrigin, text string) error {
	r, err := m.currentIn(models.PhaseAnswering)
	if err != nil {
		return err
	}
	if r.SubmittedAt != nil || m.generating {
		return fmt.Errorf("%w: answer already submitted", models.ErrInvalidPhase)
	}
	if playerID != r.SubjectID {
		return fmt.Errorf("%w: only the subject may answer", models.ErrForbidden)
	}

	switch origin {
	case models.OriginSelf:
		text = strings.TrimSpace(text)
		if text == "" {
			return fmt.Errorf("%w: answer is empty", models.ErrInvalidInput)
		}
		m.acceptAnswer(r, text, models.OriginSelf, m.now())
	case models.OriginGenerated:
		m.requestGenerated(r)
	default:
		return fmt.Errorf("%w: unknown answer origin %q", models.ErrInvalidInput, origin)
	}
	return nil
}

func (m *Machine) onAnswerExpired() {
	r := m.state.CurrentRound()
	m.roundLog(r).Info().Msg("answer timed out, delegating to responder")
	m.requestGenerated(r)
}

// requestGenerated closes the answer phase timer and asks the subject's responder for an
// answer outside the room guard. The result is applied only if the phase generation is
// still current when it arrives.
func (m *Machine) requestGenerated(r *models.Round) {
	m.disarm()
	gen := m.gen
	requestedAt := m.now()

	subject := m.state.Players[r.SubjectID]
	subject.GeneratorUses++
	m.recordPlayer(subject)

	fallback := m.state.Room.Config.FallbackAnswer
	if m.deps.Generator == nil {
		m.acceptAnswer(r, fallback, models.OriginGenerated, requestedAt)
		return
	}

	m.generating = true
	instruction := subject.Responder.Instruction
	convo := generator.Conversation{
		RoomCode:  r.RoomCode,
		Nickname:  subject.Nickname,
		ProfileID: subject.Responder.ProfileID,
		Question:  r.Question,
		History:   m.state.history(subject.ID),
	}
	g, timeout := m.deps.Generator, m.deps.GeneratorTimeout

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		text, err := g.Generate(ctx, instruction, convo)
		cancel()

		m.guard.Lock()
		defer m.guard.Unlock()
		if m.gen != gen || m.stopped {
			return
		}
		m.generating = false

		text = strings.TrimSpace(text)
		if err != nil || text == "" {
			m.roundLog(r).Warn().
				Err(fmt.Errorf("%w: %v", models.ErrTransientIO, err)).
				Msg("responder failed, using fallback answer")
			text = fallback
		}
		m.acceptAnswer(r, text, models.OriginGenerated, requestedAt)
	}()
}

// acceptAnswer stores the answer and schedules its display.
func (m *Machine) acceptAnswer(r *models.Round, text string, origin models.AnswerOrigin, submittedAt time.Time) {
	askedAt := r.StartedAt
	if r.AskedAt != nil {
		askedAt = *r.AskedAt
	}
	displayAt := m.deps.Delay.ComputeDisplayTime(origin, askedAt, submittedAt)

	r.Answer = text
	r.Origin = origin
	r.SubmittedAt = &submittedAt
	r.DisplayAt = &displayAt
	m.recordRound(r)

	m.arm(displayAt.Sub(m.now()), m.onDisplay)

	m.roundLog(r).Info().
		Str("origin", string(origin)).
		Time("display_at", displayAt).
		Msg("answer accepted")
}

func (m *Machine) onDisplay() {
	r := m.state.CurrentRound()
	payload := events.NewAnswerPayload{Answer: r.Answer}
	if m.state.Room.Config.RevealOriginOnAnswer {
		payload.AnswerOrigin = r.Origin
	}
	m.Emit(events.TypeNewAnswer, payload)

	r.Phase = models.PhaseVoting
	m.recordRound(r)

	m.arm(m.state.Room.Config.VoteDuration(), func() { m.reveal(m.state.CurrentRound(), false) })
	m.Emit(events.TypePhaseChange, events.PhaseChangePayload{
		Phase:       string(models.PhaseVoting),
		RoundNumber: r.Number,
		Data:        events.PhaseData{SubjectID: r.SubjectID, Deadline: m.deadline},
	})

	if m.state.allVoted(r) {
		m.reveal(r, false)
	}
}

// SubmitVote records or overwrites a juror's vote and closes voting once every eligible
// voter has voted.
func (m *Machine) SubmitVote(playerID string, choice models.VoteChoice) error {
	r, err := m.currentIn(models.PhaseVoting)
	if err != nil {
		return err
	}
	if playerID == r.SubjectID {
		return fmt.Errorf("%w: the subject cannot vote", models.ErrForbidden)
	}
	if !m.state.Room.IsMember(playerID) {
		return fmt.Errorf("%w: player %s", models.ErrNotFound, playerID)
	}
	switch choice {
	case models.ChoiceSelf, models.ChoiceGenerated, models.ChoiceAbstain:
	default:
		return fmt.Errorf("%w: unknown vote choice %q", models.ErrInvalidInput, choice)
	}

	v := m.state.voteOf(r.Number, playerID)
	if v == nil {
		v = &models.Vote{RoomCode: r.RoomCode, RoundNumber: r.Number, VoterID: playerID}
		m.state.Votes[r.Number] = append(m.state.Votes[r.Number], v)
	}
	v.Choice = choice
	v.CastAt = m.now()
	m.deps.Recorder.RecordVote(*v)
	m.Emit(events.TypeVoteCast, events.VoteCastPayload{PlayerID: playerID})

	if m.state.allVoted(r) {
		m.reveal(r, false)
	}
	return nil
}

// reveal closes the round, scores it and schedules what follows. Eligible voters who did
// not vote are recorded as abstaining. An abandoned round only announces the revealed
// phase if it had reached voting, so its phase_change sequence stays a prefix.
func (m *Machine) reveal(r *models.Round, abandoned bool) {
	m.disarm()
	m.generating = false
	now := m.now()
	from := r.Phase

	for _, id := range m.state.eligibleVoters(r) {
		if m.state.voteOf(r.Number, id) == nil {
			m.state.Votes[r.Number] = append(m.state.Votes[r.Number], &models.Vote{
				RoomCode:    r.RoomCode,
				RoundNumber: r.Number,
				VoterID:     id,
				Choice:      models.ChoiceAbstain,
				CastAt:      now,
			})
		}
	}

	var votes []models.Vote
	for _, v := range m.state.Votes[r.Number] {
		if m.state.Room.IsMember(v.VoterID) && v.VoterID != r.SubjectID {
			votes = append(votes, *v)
		}
	}

	deltas := scoring.Score(r.Origin, r.SubjectID, votes)
	correct := scoring.Correctness(r.Origin, votes)
	streaks := make(map[string]int, len(votes))
	for _, v := range votes {
		streaks[v.VoterID] = m.state.Players[v.VoterID].ConsecutiveCorrect
	}
	cfg := m.state.Room.Config
	scoring.StreakRule{Threshold: cfg.StreakThreshold, Bonus: cfg.StreakBonus}.Apply(r.Origin, votes, streaks, deltas)

	for id := range deltas {
		if !m.state.Room.IsMember(id) {
			delete(deltas, id)
		}
	}
	for id, delta := range deltas {
		p := m.state.Players[id]
		p.Score += delta
		if s, ok := streaks[id]; ok {
			p.ConsecutiveCorrect = s
		}
		m.recordPlayer(p)
	}

	views := make([]events.VoteView, 0, len(votes))
	for _, v := range m.state.Votes[r.Number] {
		if c, ok := correct[v.VoterID]; ok {
			v.Correct = &c
		}
		m.deps.Recorder.RecordVote(*v)
		if m.state.Room.IsMember(v.VoterID) {
			views = append(views, events.VoteView{PlayerID: v.VoterID, Choice: v.Choice, Correct: v.Correct})
		}
	}

	r.Phase = models.PhaseRevealed
	r.RevealedAt = &now
	r.Abandoned = abandoned
	m.recordRound(r)

	if !abandoned || from == models.PhaseVoting {
		m.Emit(events.TypePhaseChange, events.PhaseChangePayload{Phase: string(models.PhaseRevealed), RoundNumber: r.Number})
	}
	m.Emit(events.TypeRoundResult, events.RoundResultPayload{
		RoundNumber:  r.Number,
		SubjectID:    r.SubjectID,
		Question:     r.Question,
		Answer:       r.Answer,
		AnswerOrigin: r.Origin,
		Votes:        views,
		ScoreDeltas:  deltas,
		Abandoned:    abandoned,
		Leaderboard:  m.state.Leaderboard(),
	})

	m.roundLog(r).Info().
		Str("origin", string(r.Origin)).
		Bool("abandoned", abandoned).
		Int("votes", len(views)).
		Msg("round revealed")

	if len(m.state.Room.MemberIDs) < 2 {
		m.finish(ReasonNotEnoughPlayers)
		return
	}
	m.arm(cfg.RevealDelay(), m.beginRound)
}

// finish ends the game and publishes the final leaderboard.
func (m *Machine) finish(reason string) {
	m.disarm()
	room := m.state.Room
	if room.Status == models.RoomStatusFinished {
		return
	}
	now := m.now()
	room.Status = models.RoomStatusFinished
	room.FinishedAt = &now
	m.recordRoom()

	board := m.state.Leaderboard()
	payload := events.GameOverPayload{Leaderboard: board, Reason: reason}
	if len(board) > 0 {
		payload.MaxScore = board[0].Score
		for _, e := range board {
			if e.Score == payload.MaxScore {
				payload.Winners = append(payload.Winners, e)
			}
		}
	}
	m.Emit(events.TypeGameOver, payload)

	m.roundLog(nil).Info().
		Str("reason", reason).
		Int("rounds_played", room.CurrentRound).
		Msg("game over")
}

// HandleDeparture reacts to a member having been removed from the room. A departing
// interrogator or subject abandons the current round; a departing juror may complete
// the vote.
func (m *Machine) HandleDeparture(playerID string) {
	room := m.state.Room
	switch room.Status {
	case models.RoomStatusSetup:
		switch {
		case len(room.MemberIDs) < 2:
			m.finish(ReasonNotEnoughPlayers)
		case m.state.allLocked():
			m.beginRound()
		}
		return
	case models.RoomStatusPlaying:
	default:
		return
	}

	r := m.state.CurrentRound()
	if r == nil || r.Phase == models.PhaseRevealed {
		if len(room.MemberIDs) < 2 {
			m.finish(ReasonNotEnoughPlayers)
		}
		return
	}

	if playerID == r.InterrogatorID || playerID == r.SubjectID || len(room.MemberIDs) < 2 {
		m.roundLog(r).Info().Str("player_id", playerID).Msg("round abandoned")
		m.reveal(r, true)
		return
	}

	if r.Phase == models.PhaseVoting && m.state.allVoted(r) {
		m.reveal(r, false)
	}
}
