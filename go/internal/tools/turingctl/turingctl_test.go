package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/turingroom/go/internal/game/api"
	"github.com/mcdev12/turingroom/go/internal/game/delay"
	"github.com/mcdev12/turingroom/go/internal/game/events"
	"github.com/mcdev12/turingroom/go/internal/game/gateway"
	"github.com/mcdev12/turingroom/go/internal/game/room"
	"github.com/mcdev12/turingroom/go/internal/game/store"
	"github.com/mcdev12/turingroom/go/internal/generator"
	"github.com/mcdev12/turingroom/go/internal/models"
	"github.com/mcdev12/turingroom/go/internal/transport"
	"github.com/rs/zerolog/log"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	hub := gateway.NewHub(gateway.HubConfig{}, clock)
	cfg := room.DefaultConfig()
	cfg.Seed = 3
	reg := room.NewRegistry(cfg, room.Deps{
		Clock:     clock,
		Delay:     delay.NewScheduler(delay.DefaultConfig(), 3),
		Generator: generator.Static{Text: "beep"},
		Publisher: hub,
		Recorder:  store.NewWriter(store.NewMemory(), store.DefaultWriterConfig()),
	})
	hub.Attach(reg)

	mux := http.NewServeMux()
	api.NewService(reg, api.Options{Profiles: func() []string { return []string{"casual"} }}).RegisterRoutes(mux)
	cm := gateway.NewConnectionManager(hub, reg, gateway.DefaultConnectionConfig())
	gateway.NewWebSocketHandler(cm, hub).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// lockedBuffer lets a test read output while a command is still writing.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func run(ctx context.Context, out *lockedBuffer, args ...string) error {
	return runWithStderr(ctx, out, &lockedBuffer{}, args...)
}

func runWithStderr(ctx context.Context, out, errOut *lockedBuffer, args ...string) error {
	cmd := newRootCmd(&Config{})
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	var out lockedBuffer
	if err := run(context.Background(), &out, args...); err != nil {
		t.Fatalf("turingctl %s: %v", strings.Join(args, " "), err)
	}
	return out.String()
}

var fieldRE = regexp.MustCompile(`(?m)^(room|player):\s+(\S+)$`)

func fields(out string) map[string]string {
	got := map[string]string{}
	for _, m := range fieldRE.FindAllStringSubmatch(out, -1) {
		got[m[1]] = m[2]
	}
	return got
}

func TestCreateJoinReady(t *testing.T) {
	srv := newServer(t)

	created := fields(mustRun(t, "--server", srv.URL, "create", "--nickname", "owner", "--secret", "s3", "--max-players", "3"))
	code, owner := created["room"], created["player"]
	if code == "" || owner == "" {
		t.Fatalf("create printed %v", created)
	}
	guest := fields(mustRun(t, "--server", srv.URL, "join", code, "-n", "guest", "--secret", "s3"))["player"]
	if guest == "" {
		t.Fatal("join printed no player id")
	}

	mustRun(t, "--server", srv.URL, "--player", guest, "ready", code)

	var snap events.SnapshotPayload
	if err := json.Unmarshal([]byte(mustRun(t, "--server", srv.URL, "-p", owner, "snapshot", code)), &snap); err != nil {
		t.Fatal(err)
	}
	ready := map[string]bool{}
	for _, m := range snap.Members {
		ready[m.Nickname] = m.Ready
	}
	if len(ready) != 2 || ready["owner"] || !ready["guest"] {
		t.Errorf("ready flags = %v, want only guest ready", ready)
	}
}

func TestEnvironmentConfig(t *testing.T) {
	srv := newServer(t)
	t.Setenv("TURINGCTL_SERVER", srv.URL)

	if got := mustRun(t, "profiles"); got != "casual\n" {
		t.Errorf("profiles = %q", got)
	}

	owner := fields(mustRun(t, "create", "-n", "owner"))
	t.Setenv("TURINGCTL_PLAYER", owner["player"])
	mustRun(t, "ready", owner["room"])
}

func TestCommandErrors(t *testing.T) {
	srv := newServer(t)
	created := fields(mustRun(t, "--server", srv.URL, "create", "-n", "owner", "--secret", "s3"))
	code, owner := created["room"], created["player"]

	tests := []struct {
		name string
		args []string
		want error
		msg  string
	}{
		{name: "wrong secret", args: []string{"join", code, "-n", "guest", "--secret", "nope"}, want: models.ErrForbidden},
		{name: "unknown room", args: []string{"-p", owner, "ready", "ZZZZZZ"}, want: models.ErrNotFound},
		{name: "vote outside voting", args: []string{"-p", owner, "vote", code, "generated"}, want: models.ErrInvalidPhase},
		{name: "bad vote choice", args: []string{"-p", owner, "vote", code, "robot"}, want: models.ErrInvalidInput},
		{name: "missing player", args: []string{"start", code}, msg: "--player is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(context.Background(), &lockedBuffer{}, append([]string{"--server", srv.URL}, tt.args...)...)
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if tt.msg != "" && !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("err = %v, want it to mention %q", err, tt.msg)
			}
		})
	}

	if err := run(context.Background(), &lockedBuffer{}, "--server", "ftp://x", "profiles"); err == nil {
		t.Error("non-http server accepted")
	}
}

func TestWatch(t *testing.T) {
	srv := newServer(t)
	created := fields(mustRun(t, "--server", srv.URL, "create", "-n", "owner"))
	code, owner := created["room"], created["player"]

	got := mustRun(t, "--server", srv.URL, "-p", owner, "watch", code, "--count", "1")
	if !strings.Contains(got, " snapshot ") {
		t.Errorf("first watched event = %q, want a snapshot", got)
	}

	var out lockedBuffer
	done := make(chan error, 1)
	go func() { done <- run(context.Background(), &out, "--server", srv.URL, "-p", owner, "watch", code) }()

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), " snapshot ") {
		if time.Now().After(deadline) {
			t.Fatalf("no snapshot streamed, output %q", out.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
	mustRun(t, "--server", srv.URL, "-p", owner, "disband", code)

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not exit when the room closed")
	}
	if !strings.Contains(out.String(), " room_closed ") {
		t.Errorf("output %q has no room_closed event", out.String())
	}
}

func TestWatchUnknownRoomFails(t *testing.T) {
	srv := newServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, &lockedBuffer{}, "--server", srv.URL, "-p", "nobody", "watch", "ZZZZZZ")
	if !errors.Is(err, transport.ErrStreamRejected) {
		t.Fatalf("watch of an unknown room = %v, want ErrStreamRejected", err)
	}
	if ctx.Err() != nil {
		t.Error("watch only stopped at the deadline")
	}
}

func TestVerboseLogsStayOnCommandStderr(t *testing.T) {
	srv := newServer(t)
	created := fields(mustRun(t, "--server", srv.URL, "create", "-n", "owner"))
	globalLevel := log.Logger.GetLevel()

	var out, errOut lockedBuffer
	err := runWithStderr(context.Background(), &out, &errOut,
		"--server", srv.URL, "-p", created["player"], "--verbose", "watch", created["room"], "--count", "1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(errOut.String(), "stream state") {
		t.Errorf("stderr = %q, want stream state logs", errOut.String())
	}
	if got := log.Logger.GetLevel(); got != globalLevel {
		t.Errorf("global log level changed from %s to %s", globalLevel, got)
	}
}
