package round

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/turingroom/go/internal/game/delay"
	"github.com/mcdev12/turingroom/go/internal/game/events"
	"github.com/mcdev12/turingroom/go/internal/generator"
	"github.com/mcdev12/turingroom/go/internal/models"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ string, ev events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) all() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

func (p *recordingPublisher) ofType(typ events.Type) []events.Event {
	var out []events.Event
	for _, ev := range p.all() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type memRecorder struct {
	mu     sync.Mutex
	rounds map[int]models.Round
	votes  map[string]models.Vote
}

func (r *memRecorder) RecordRoom(models.Room)     {}
func (r *memRecorder) RecordPlayer(models.Player) {}

func (r *memRecorder) RecordRound(round models.Round) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rounds[round.Number] = round.Clone()
}

func (r *memRecorder) RecordVote(v models.Vote) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.votes[fmt.Sprintf("%d/%s", v.RoundNumber, v.VoterID)] = v.Clone()
}

type harness struct {
	t     *testing.T
	mu    sync.Mutex
	clock *clockwork.FakeClock
	pub   *recordingPublisher
	rec   *memRecorder
	state *State
	m     *Machine
}

func newHarness(t *testing.T, players int, gen generator.Generator, tweak func(*models.GameConfig)) *harness {
	t.Helper()
	cfg := models.DefaultGameConfig()
	if tweak != nil {
		tweak(&cfg)
	}
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	room := &models.Room{Code: "TEST01", Status: models.RoomStatusWaiting, Config: cfg, CreatedAt: clock.Now()}
	state := NewState(room)
	for i := 1; i <= players; i++ {
		id := fmt.Sprintf("p%d", i)
		room.MemberIDs = append(room.MemberIDs, id)
		state.Players[id] = &models.Player{ID: id, RoomCode: room.Code, Nickname: "nick-" + id, Ready: true}
	}
	room.OwnerID = "p1"

	h := &harness{
		t:     t,
		clock: clock,
		pub:   &recordingPublisher{},
		rec:   &memRecorder{rounds: map[int]models.Round{}, votes: map[string]models.Vote{}},
		state: state,
	}
	h.m = NewMachine(state, &h.mu, Deps{
		Clock:     clock,
		Delay:     delay.NewScheduler(delay.DefaultConfig(), 7),
		Generator: gen,
		Publisher: h.pub,
		Recorder:  h.rec,
		Rand:      rand.New(rand.NewSource(1)),
	})
	t.Cleanup(func() {
		h.mu.Lock()
		h.m.Stop()
		h.mu.Unlock()
	})
	return h
}

// locked runs fn under the room guard.
func (h *harness) locked(fn func() error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return fn()
}

func (h *harness) must(err error) {
	h.t.Helper()
	if err != nil {
		h.t.Fatalf("unexpected error: %v", err)
	}
}

// startAndLock starts the game and locks every responder so round 1 begins.
func (h *harness) startAndLock() {
	h.t.Helper()
	h.must(h.locked(h.m.Start))
	for _, id := range h.state.Room.MemberIDs {
		id := id
		h.must(h.locked(func() error { return h.m.ConfigureResponder(id, "be terse", "", true) }))
	}
}

func (h *harness) current() models.Round {
	h.mu.Lock()
	defer h.mu.Unlock()
	return *h.state.CurrentRound()
}

func (h *harness) waitUntil(what string, cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		ok := cond()
		h.mu.Unlock()
		if ok {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	h.t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) waitEvents(typ events.Type, n int) []events.Event {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := h.pub.ofType(typ); len(got) >= n {
			return got
		}
		time.Sleep(2 * time.Millisecond)
	}
	h.t.Fatalf("timed out waiting for %d %s events, have %d", n, typ, len(h.pub.ofType(typ)))
	return nil
}

func (h *harness) waitPhase(number int, phase models.Phase) {
	h.t.Helper()
	h.waitUntil(fmt.Sprintf("round %d %s", number, phase), func() bool {
		r := h.state.CurrentRound()
		return r != nil && r.Number == number && r.Phase == phase
	})
}

func decode[T any](t *testing.T, ev events.Event) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(ev.Data, &out); err != nil {
		t.Fatalf("decode %s: %v", ev.Type, err)
	}
	return out
}
