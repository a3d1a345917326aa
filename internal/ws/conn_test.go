package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"classchat/internal/auth"
	"classchat/internal/config"
	"classchat/internal/event"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const testSecret = "test-secret"

func newWsServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Config{JWTSecret: testSecret, Env: "dev"}
	r := gin.New()
	r.GET("/ws", Serve(hub, cfg))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, name string) *websocket.Conn {
	t.Helper()
	token, err := auth.GenerateToken(name, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func writeOp(t *testing.T, conn *websocket.Conn, op Inbound) {
	t.Helper()
	if err := conn.WriteJSON(op); err != nil {
		t.Fatalf("write op: %v", err)
	}
}

func readRaw(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return data
}

func readChat(t *testing.T, conn *websocket.Conn) event.Chat {
	t.Helper()
	e, err := event.Decode(readRaw(t, conn))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	chat, ok := e.(event.Chat)
	if !ok {
		t.Fatalf("decode = %T, want Chat", e)
	}
	return chat
}

func readError(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	var evt struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(readRaw(t, conn), &evt); err != nil {
		t.Fatalf("unmarshal error event: %v", err)
	}
	if evt.Type != "error" {
		t.Fatalf("event type = %q, want error", evt.Type)
	}
	return evt.Message
}

// Two clients join the same room; a message from one arrives at the
// other through the local broadcast alone, with no worker round trip.
func TestServe_RoomMessageDelivery(t *testing.T) {
	pub := &fakePublisher{}
	hub := NewHub(pub, 0)
	srv := newWsServer(t, hub)

	a := dial(t, srv, "alice")
	b := dial(t, srv, "bob")

	writeOp(t, a, Inbound{Type: "join_room", Room: "lobby"})
	writeOp(t, b, Inbound{Type: "join_room", Room: "lobby"})

	// alice sees bob arrive, which also proves both joins are applied
	joined := readChat(t, a)
	if joined.Type != event.TypeUserJoined || joined.Name != "bob" {
		t.Fatalf("alice received %+v, want user_joined bob", joined)
	}

	writeOp(t, a, Inbound{Type: "message", Message: "hi"})

	got := readChat(t, b)
	if got.Type != event.TypeMessage || got.Room != "lobby" || got.Name != "alice" || got.Message != "hi" {
		t.Errorf("bob received %+v", got)
	}
}

func TestServe_ProtocolErrorsKeepConnectionOpen(t *testing.T) {
	pub := &fakePublisher{}
	hub := NewHub(pub, 0)
	srv := newWsServer(t, hub)

	conn := dial(t, srv, "alice")

	// send before joining a room
	writeOp(t, conn, Inbound{Type: "message", Message: "hi"})
	if msg := readError(t, conn); msg != ErrNotInRoom.Error() {
		t.Errorf("error = %q, want %q", msg, ErrNotInRoom.Error())
	}

	// malformed envelope
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{not json`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readError(t, conn); msg != "invalid payload" {
		t.Errorf("error = %q, want invalid payload", msg)
	}

	// empty message after joining
	writeOp(t, conn, Inbound{Type: "join_room", Room: "lobby"})
	writeOp(t, conn, Inbound{Type: "message", Message: "   "})
	if msg := readError(t, conn); msg != ErrEmptyMessage.Error() {
		t.Errorf("error = %q, want %q", msg, ErrEmptyMessage.Error())
	}

	// the connection is still usable after all three errors
	writeOp(t, conn, Inbound{Type: "message", Message: "still here"})
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(pub.kinds()) > 0 && pub.kinds()[len(pub.kinds())-1] == event.TypeMessage {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("message after protocol errors was never published")
}

func TestServe_CloseTearsDownPresence(t *testing.T) {
	pub := &fakePublisher{}
	hub := NewHub(pub, 0)
	srv := newWsServer(t, hub)

	a := dial(t, srv, "alice")
	b := dial(t, srv, "bob")
	writeOp(t, a, Inbound{Type: "join_room", Room: "lobby"})
	writeOp(t, b, Inbound{Type: "join_room", Room: "lobby"})
	readChat(t, a) // user_joined bob

	_ = b.Close()

	// alice observes the user_left emitted by the close path
	left := readChat(t, a)
	if left.Type != event.TypeUserLeft || left.Name != "bob" {
		t.Errorf("alice received %+v, want user_left bob", left)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Online("lobby") == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("Online(lobby) = %d, want 1 after close", hub.Online("lobby"))
}

func TestServe_RejectsUnauthenticated(t *testing.T) {
	pub := &fakePublisher{}
	hub := NewHub(pub, 0)
	srv := newWsServer(t, hub)

	// no token at all
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if _, resp, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Error("dial without token should fail")
	} else if resp != nil && resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}

	// bad token
	if _, resp, err := websocket.DefaultDialer.Dial(url+"?token=garbage", nil); err == nil {
		t.Error("dial with bad token should fail")
	} else if resp != nil && resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}

	// nothing was published on behalf of the rejected connections
	if len(pub.kinds()) != 0 {
		t.Errorf("published kinds = %v, want none", pub.kinds())
	}
}
