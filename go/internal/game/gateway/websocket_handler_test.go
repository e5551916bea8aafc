package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mcdev12/turingroom/go/internal/game/events"
	"github.com/mcdev12/turingroom/go/internal/models"
)

func streamURL(srv *httptest.Server, code, playerID string) string {
	q := url.Values{"room_code": {code}, "player_id": {playerID}}
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/room?" + q.Encode()
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var ev events.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return ev
}

func TestWebSocketStreamsRoomEvents(t *testing.T) {
	f := newFixture(t, 16)
	rm, owner, err := f.reg.CreateRoom(models.GameConfig{}, "owner", "")
	if err != nil {
		t.Fatal(err)
	}
	guest, err := f.reg.JoinRoom(rm.Code, "", "guest")
	if err != nil {
		t.Fatal(err)
	}

	cm := NewConnectionManager(f.hub, f.reg, DefaultConnectionConfig())
	mux := http.NewServeMux()
	NewWebSocketHandler(cm, f.hub).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(streamURL(srv, rm.Code, owner.ID), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}

	if ev := readEvent(t, conn); ev.Type != events.TypeSnapshot {
		t.Fatalf("first event = %s, want snapshot", ev.Type)
	}
	presence := readEvent(t, conn)
	if presence.Type != events.TypePlayerPresence {
		t.Fatalf("second event = %s, want player_presence", presence.Type)
	}

	if err := f.reg.SetReady(rm.Code, guest.ID, true); err != nil {
		t.Fatal(err)
	}
	ready := readEvent(t, conn)
	if ready.Type != events.TypePlayerReady || ready.Seq != presence.Seq+1 {
		t.Errorf("event = %s seq %d, want player_ready seq %d", ready.Type, ready.Seq, presence.Seq+1)
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, err := f.reg.Snapshot(rm.Code)
		if err != nil {
			t.Fatal(err)
		}
		if !snap.Members[0].Online {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("owner still online after disconnecting")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocketRefusesNonMembers(t *testing.T) {
	f := newFixture(t, 16)
	rm, _, err := f.reg.CreateRoom(models.GameConfig{}, "owner", "")
	if err != nil {
		t.Fatal(err)
	}

	cm := NewConnectionManager(f.hub, f.reg, DefaultConnectionConfig())
	mux := http.NewServeMux()
	NewWebSocketHandler(cm, f.hub).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial(streamURL(srv, rm.Code, "stranger"), nil)
	if err == nil {
		t.Fatal("Dial() succeeded for a non-member")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("response = %v, want 404", resp)
	}

	resp, err = http.Get(srv.URL + "/ws/room?room_code=" + rm.Code)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing player_id status = %d, want 400", resp.StatusCode)
	}
}
