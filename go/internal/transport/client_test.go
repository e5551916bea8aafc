package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/turingroom/go/internal/game/api"
	"github.com/mcdev12/turingroom/go/internal/game/delay"
	"github.com/mcdev12/turingroom/go/internal/game/events"
	"github.com/mcdev12/turingroom/go/internal/game/gateway"
	"github.com/mcdev12/turingroom/go/internal/game/room"
	"github.com/mcdev12/turingroom/go/internal/game/store"
	"github.com/mcdev12/turingroom/go/internal/generator"
	"github.com/mcdev12/turingroom/go/internal/models"
)

type gameServer struct {
	srv  *httptest.Server
	reg  *room.Registry
	game *GameClient
}

func newGameServer(t *testing.T) *gameServer {
	t.Helper()
	return newGameServerWith(t, func(h http.Handler) http.Handler { return h })
}

// newGameServerWith serves the game through wrap, which may inject failures.
func newGameServerWith(t *testing.T, wrap func(http.Handler) http.Handler) *gameServer {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	hub := gateway.NewHub(gateway.HubConfig{}, clock)
	cfg := room.DefaultConfig()
	cfg.Seed = 11
	reg := room.NewRegistry(cfg, room.Deps{
		Clock:     clock,
		Delay:     delay.NewScheduler(delay.DefaultConfig(), 11),
		Generator: generator.Static{Text: "beep"},
		Publisher: hub,
		Recorder:  store.NewWriter(store.NewMemory(), store.DefaultWriterConfig()),
	})
	hub.Attach(reg)

	mux := http.NewServeMux()
	api.NewService(reg, api.Options{}).RegisterRoutes(mux)
	cm := gateway.NewConnectionManager(hub, reg, gateway.DefaultConnectionConfig())
	gateway.NewWebSocketHandler(cm, hub).RegisterRoutes(mux)
	srv := httptest.NewServer(wrap(mux))
	t.Cleanup(srv.Close)

	req := NewRequester(srv.Client(), testPolicy(), clockwork.NewRealClock())
	return &gameServer{srv: srv, reg: reg, game: NewGameClient(srv.URL, req)}
}

// streamRecorder collects what a Client reports.
type streamRecorder struct {
	events      chan events.Event
	states      chan State
	disconnects chan error
}

func newStreamRecorder() *streamRecorder {
	return &streamRecorder{
		events:      make(chan events.Event, 128),
		states:      make(chan State, 32),
		disconnects: make(chan error, 32),
	}
}

func (s *streamRecorder) config(url string, clock clockwork.Clock) ClientConfig {
	return ClientConfig{
		URL:     url,
		Clock:   clock,
		OnEvent: func(ev events.Event) { s.events <- ev },
		OnState: func(st State) { s.states <- st },
		OnDisconnect: func(err error) {
			select {
			case s.disconnects <- err:
			default:
			}
		},
	}
}

func (s *streamRecorder) waitState(t *testing.T, want State) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case st := <-s.states:
			if st == want {
				return
			}
		case <-timeout:
			t.Fatalf("state %s never reached", want)
		}
	}
}

func (s *streamRecorder) waitEvent(t *testing.T, typ events.Type) events.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-s.events:
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("event %s never arrived", typ)
			return events.Event{}
		}
	}
}

func (s *streamRecorder) waitDisconnect(t *testing.T, match func(error) bool) error {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case err := <-s.disconnects:
			if match(err) {
				return err
			}
		case <-timeout:
			t.Fatal("expected disconnect reason never arrived")
			return nil
		}
	}
}

func snapshotOf(t *testing.T, ev events.Event) *events.SnapshotPayload {
	t.Helper()
	payload, err := events.ParsePayload(ev)
	if err != nil {
		t.Fatal(err)
	}
	return payload.(*events.SnapshotPayload)
}

func TestClientResyncsAfterNetworkLoss(t *testing.T) {
	gs := newGameServer(t)
	ctx := context.Background()

	created, err := gs.game.CreateRoom(ctx, "owner", "", models.GameConfig{})
	if err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	code, owner := created.Room.Code, created.Player.ID

	rec := newStreamRecorder()
	c := NewClient(rec.config(gs.game.StreamURL(code, owner), clockwork.NewFakeClock()))
	defer c.Close()
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	rec.waitState(t, StateConnected)
	if snap := snapshotOf(t, rec.waitEvent(t, events.TypeSnapshot)); snap.Status != models.RoomStatusWaiting {
		t.Fatalf("first snapshot status = %s, want waiting", snap.Status)
	}

	c.SetOnline(false)
	rec.waitState(t, StateOffline)
	if got := c.State(); got != StateOffline {
		t.Fatalf("State() = %s, want offline", got)
	}

	// The game moves on while this client is away.
	guest, err := gs.game.JoinRoom(ctx, code, "", "guest")
	if err != nil {
		t.Fatalf("JoinRoom() error = %v", err)
	}
	for _, id := range []string{owner, guest.ID} {
		if err := gs.game.SetReady(ctx, code, id, true); err != nil {
			t.Fatalf("SetReady(%s) error = %v", id, err)
		}
	}
	if err := gs.game.StartGame(ctx, code, owner); err != nil {
		t.Fatalf("StartGame() error = %v", err)
	}

	// Drop anything delivered before going offline.
	for len(rec.events) > 0 {
		<-rec.events
	}

	c.SetOnline(true)
	rec.waitState(t, StateConnected)
	snap := snapshotOf(t, rec.waitEvent(t, events.TypeSnapshot))

	server, err := gs.reg.Snapshot(code)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Status != server.Status || snap.Phase != server.Phase {
		t.Errorf("resync snapshot = %s/%s, server is at %s/%s", snap.Status, snap.Phase, server.Status, server.Phase)
	}
	if snap.Phase != events.PhaseSetup || len(snap.Members) != 2 {
		t.Errorf("resync snapshot = %+v, want setup with two members", snap)
	}
	if c.LastSeq() == 0 {
		t.Error("LastSeq() not tracked")
	}
}

func TestClientReconnectsWhenRoomConnectionDrops(t *testing.T) {
	gs := newGameServer(t)
	ctx := context.Background()
	created, err := gs.game.CreateRoom(ctx, "owner", "", models.GameConfig{})
	if err != nil {
		t.Fatal(err)
	}

	clock := clockwork.NewFakeClock()
	rec := newStreamRecorder()
	c := NewClient(rec.config(gs.game.StreamURL(created.Room.Code, created.Player.ID), clock))
	defer c.Close()
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	rec.waitState(t, StateConnected)

	if err := gs.game.DisbandRoom(ctx, created.Room.Code, created.Player.ID); err != nil {
		t.Fatalf("DisbandRoom() error = %v", err)
	}
	rec.waitEvent(t, events.TypeRoomClosed)
	rec.waitState(t, StateReconnecting)

	err = rec.waitDisconnect(t, func(err error) bool {
		var closeErr *websocket.CloseError
		return errors.As(err, &closeErr)
	})
	if closeErr := err.(*websocket.CloseError); closeErr.Text != "room closed" {
		t.Errorf("close reason = %q, want %q", closeErr.Text, "room closed")
	}

	// The room is gone, so redials are rejected and keep backing off.
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(waitCtx, 1); err != nil {
		t.Fatalf("no redial scheduled: %v", err)
	}
	clock.Advance(time.Second)
	err = rec.waitDisconnect(t, func(err error) bool { return errors.Is(err, ErrStreamRejected) })
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("rejected redial = %v, want a 404", err)
	}
	if got := c.State(); got != StateReconnecting {
		t.Errorf("State() = %s, want reconnecting", got)
	}
}

func TestClientCallbacksRunOutsideLock(t *testing.T) {
	dc := &dialCounter{}
	srv := httptest.NewServer(dc)
	defer srv.Close()

	clock := clockwork.NewFakeClock()
	release := make(chan struct{})
	seen := make(chan State, 4)
	var c *Client
	c = NewClient(ClientConfig{
		URL:   "ws" + srv.URL[len("http"):],
		Clock: clock,
		OnState: func(State) {
			<-release
			c.LastSeq()
			seen <- c.State()
		},
	})
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	dc.waitHits(t, 1)
	blockUntilTimer(t, clock)

	closed := make(chan struct{})
	go func() {
		c.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked behind a state callback")
	}

	close(release)
	select {
	case st := <-seen:
		if st != StateClosed {
			t.Errorf("State() from the callback = %s, want closed", st)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("state callback never completed")
	}
}

func TestDialErrorKinds(t *testing.T) {
	rejected := dialError(&http.Response{StatusCode: http.StatusForbidden, Status: "403 Forbidden"}, websocket.ErrBadHandshake)
	if !errors.Is(rejected, ErrStreamRejected) {
		t.Errorf("dialError(403) = %v, want ErrStreamRejected", rejected)
	}
	if refused := dialError(nil, errors.New("connection refused")); !errors.Is(refused, ErrNetwork) {
		t.Errorf("dialError(nil) = %v, want ErrNetwork", refused)
	}
	if lost := lostError(errors.New("reset")); !errors.Is(lost, ErrNetwork) {
		t.Errorf("lostError() = %v, want ErrNetwork", lost)
	}
}

// dialCounter refuses every websocket upgrade and tracks overlapping dials.
type dialCounter struct {
	hits     atomic.Int32
	inflight atomic.Int32
	mu       sync.Mutex
	maxSeen  int32
}

func (d *dialCounter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.hits.Add(1)
	n := d.inflight.Add(1)
	d.mu.Lock()
	d.maxSeen = max(d.maxSeen, n)
	d.mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	d.inflight.Add(-1)
	http.Error(w, "unavailable", http.StatusServiceUnavailable)
}

func (d *dialCounter) waitHits(t *testing.T, want int32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for d.hits.Load() < want {
		if time.Now().After(deadline) {
			t.Fatalf("dials = %d, want %d", d.hits.Load(), want)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func blockUntilTimer(t *testing.T, clock *clockwork.FakeClock) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("backoff timer never armed: %v", err)
	}
}

func TestClientBackoffSchedule(t *testing.T) {
	dc := &dialCounter{}
	srv := httptest.NewServer(dc)
	defer srv.Close()

	clock := clockwork.NewFakeClock()
	rec := newStreamRecorder()
	cfg := rec.config("ws"+srv.URL[len("http"):], clock)
	cfg.Backoff = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	c := NewClient(cfg)
	defer c.Close()

	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	dc.waitHits(t, 1)

	// 1s, 2s, 4s, then the last step repeats.
	want := int32(1)
	for _, step := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second} {
		blockUntilTimer(t, clock)
		clock.Advance(step - time.Millisecond)
		time.Sleep(30 * time.Millisecond)
		if got := dc.hits.Load(); got != want {
			t.Fatalf("redialed after %v of a %v step: dials = %d, want %d", step-time.Millisecond, step, got, want)
		}
		clock.Advance(time.Millisecond)
		want++
		dc.waitHits(t, want)
	}
	if got := c.State(); got != StateReconnecting {
		t.Errorf("State() = %s, want reconnecting", got)
	}

	// Forcing skips the pending wait, and repeated calls never overlap dials.
	blockUntilTimer(t, clock)
	c.ForceReconnect()
	c.ForceReconnect()
	c.SetVisible(true)
	dc.waitHits(t, want+1)
	time.Sleep(50 * time.Millisecond)
	dc.mu.Lock()
	maxSeen := dc.maxSeen
	dc.mu.Unlock()
	if maxSeen != 1 {
		t.Errorf("saw %d concurrent dials, want 1", maxSeen)
	}
}

func TestClientClose(t *testing.T) {
	dc := &dialCounter{}
	srv := httptest.NewServer(dc)
	defer srv.Close()

	clock := clockwork.NewFakeClock()
	rec := newStreamRecorder()
	c := NewClient(rec.config("ws"+srv.URL[len("http"):], clock))
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	dc.waitHits(t, 1)
	blockUntilTimer(t, clock)

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	rec.waitState(t, StateClosed)
	clock.Advance(time.Minute)
	time.Sleep(30 * time.Millisecond)
	if got := dc.hits.Load(); got != 1 {
		t.Errorf("dials after Close = %d, want 1", got)
	}
	if err := c.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Close error = %v, want ErrClosed", err)
	}
	c.SetOnline(false)
	c.SetOnline(true)
	c.ForceReconnect()
	if got := c.State(); got != StateClosed {
		t.Errorf("State() = %s, want closed", got)
	}
}

func TestGameClientErrors(t *testing.T) {
	gs := newGameServer(t)
	ctx := context.Background()
	created, err := gs.game.CreateRoom(ctx, "owner", "pw", models.GameConfig{MaxPlayers: 2})
	if err != nil {
		t.Fatal(err)
	}
	code := created.Room.Code

	_, err = gs.game.JoinRoom(ctx, code, "nope", "guest")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code() != connect.CodePermissionDenied {
		t.Fatalf("JoinRoom() error = %v, want a permission_denied APIError", err)
	}
	if !errors.Is(err, models.ErrForbidden) {
		t.Errorf("JoinRoom() error = %v, want it to match ErrForbidden", err)
	}
	if connect.CodeOf(err) != connect.CodePermissionDenied {
		t.Errorf("CodeOf(%v) = %s, want permission_denied", err, connect.CodeOf(err))
	}

	if _, err := gs.game.JoinRoom(ctx, code, "pw", "guest"); err != nil {
		t.Fatal(err)
	}
	if _, err := gs.game.JoinRoom(ctx, code, "pw", "third"); !errors.Is(err, models.ErrFull) {
		t.Errorf("JoinRoom() on a full room error = %v, want ErrFull", err)
	}
	if err := gs.game.SubmitVote(ctx, code, created.Player.ID, models.ChoiceGenerated); !errors.Is(err, models.ErrInvalidPhase) {
		t.Errorf("SubmitVote() in the lobby error = %v, want ErrInvalidPhase", err)
	}
	err = gs.game.StartGame(ctx, code, created.Player.ID)
	if !errors.Is(err, models.ErrInvalidState) || errors.Is(err, models.ErrInvalidPhase) {
		t.Errorf("StartGame() with unready players error = %v, want only ErrInvalidState", err)
	}
	if _, err := gs.game.Snapshot(ctx, "ZZZZZZ", created.Player.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Snapshot() of an unknown room error = %v, want ErrNotFound", err)
	}
}

func TestGameClientRetriesTransientFailures(t *testing.T) {
	var failures atomic.Int32
	gs := newGameServerWith(t, func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == api.RoomServiceSetReadyProcedure && failures.Add(1) <= 2 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	ctx := context.Background()
	created, err := gs.game.CreateRoom(ctx, "owner", "", models.GameConfig{})
	if err != nil {
		t.Fatal(err)
	}

	if err := gs.game.SetReady(ctx, created.Room.Code, created.Player.ID, true); err != nil {
		t.Fatalf("SetReady() error = %v, want success after retries", err)
	}
	if n := failures.Load(); n != 3 {
		t.Errorf("SetReady() attempts = %d, want 3", n)
	}
	snap, err := gs.game.Snapshot(ctx, created.Room.Code, created.Player.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !snap.Members[0].Ready {
		t.Error("owner not ready after a retried ready action")
	}
}

func TestGameClientNeverRetriesJoin(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(statusSequence(&hits, http.StatusServiceUnavailable))
	defer srv.Close()

	clock := clockwork.NewFakeClock()
	game := NewGameClient(srv.URL, NewRequester(srv.Client(), testPolicy(), clock))

	_, err := game.JoinRoom(context.Background(), "ABC234", "", "guest")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code() != connect.CodeUnavailable {
		t.Fatalf("JoinRoom() error = %v, want an unavailable APIError", err)
	}
	if apiErr.Sentinel != nil {
		t.Errorf("Sentinel = %v, want none for an unavailable server", apiErr.Sentinel)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("join attempted %d times, want 1", n)
	}
}

func TestGameClientNetworkErrorsPassThrough(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	policy := testPolicy()
	policy.MaxAttempts = 1
	game := NewGameClient(url, NewRequester(nil, policy, clockwork.NewRealClock()))

	err := game.LeaveRoom(context.Background(), "ABC234", "p-1")
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("LeaveRoom() error = %v, want ErrNetwork", err)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Errorf("LeaveRoom() error = %v, want no APIError for an unreachable server", err)
	}
}

func TestStreamURL(t *testing.T) {
	game := NewGameClient("https://play.example.com/", nil)
	got := game.StreamURL("ABC234", "p-1")
	want := "wss://play.example.com/ws/room?player_id=p-1&room_code=ABC234"
	if got != want {
		t.Errorf("StreamURL() = %q, want %q", got, want)
	}
}
