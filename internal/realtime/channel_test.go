package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"storefront-core/internal/auth"
	"storefront-core/internal/devserver"
	"storefront-core/internal/model"
)

func TestNormalizeComment_Envelope(t *testing.T) {
	raw := json.RawMessage(`{"newComment":{"id":"c1","ticketId":"T1","authorId":"u1","body":"hi","createdAt":1000}}`)
	comment, err := normalizeComment(raw)
	if err != nil {
		t.Fatalf("normalizeComment: %v", err)
	}
	if comment.ID != "c1" || comment.TicketID != "T1" || comment.Body != "hi" {
		t.Fatalf("unexpected comment: %+v", comment)
	}
}

func TestNormalizeComment_Bare(t *testing.T) {
	raw := json.RawMessage(`{"id":"c2","ticketId":"T2","body":"bare"}`)
	comment, err := normalizeComment(raw)
	if err != nil {
		t.Fatalf("normalizeComment: %v", err)
	}
	if comment.ID != "c2" || comment.TicketID != "T2" {
		t.Fatalf("unexpected comment: %+v", comment)
	}
}

func TestNormalizeComment_Rejects(t *testing.T) {
	if _, err := normalizeComment(json.RawMessage(`{"id":"c3","body":"no ticket"}`)); err == nil {
		t.Fatalf("expected error for missing ticketId")
	}
	if _, err := normalizeComment(json.RawMessage(`"just a string"`)); err == nil {
		t.Fatalf("expected error for non-object payload")
	}
	if _, err := normalizeComment(json.RawMessage(`{"newComment":{"id":"c4"}}`)); err == nil {
		t.Fatalf("expected error for envelope missing ticketId")
	}
}

type commentCollector struct {
	mu       sync.Mutex
	comments []model.TicketComment
}

func (cc *commentCollector) dispatch(comment model.TicketComment) {
	cc.mu.Lock()
	cc.comments = append(cc.comments, comment)
	cc.mu.Unlock()
}

func (cc *commentCollector) snapshot() []model.TicketComment {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	out := make([]model.TicketComment, len(cc.comments))
	copy(out, cc.comments)
	return out
}

func (cc *commentCollector) waitFor(t *testing.T, n int, timeout time.Duration) []model.TicketComment {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if got := cc.snapshot(); len(got) >= n {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d comments, have %d", n, len(cc.snapshot()))
	return nil
}

func startBackend(t *testing.T) (*httptest.Server, *devserver.SocketServer, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokenCfg := auth.TokenConfig{Secret: "test-secret", Expiry: time.Hour, Issuer: "test"}
	r, socket := devserver.NewRouter(devserver.Deps{Store: devserver.NewStore(), TokenConfig: tokenCfg})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	token, err := auth.CreateToken("user-1", tokenCfg)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	return srv, socket, token
}

func waitForRoomSize(t *testing.T, socket *devserver.SocketServer, ticketID string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if socket.RoomSize(ticketID) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("room %s size = %d, want %d", ticketID, socket.RoomSize(ticketID), want)
}

func TestChannelSubscribeReceivesComments(t *testing.T) {
	srv, socket, token := startBackend(t)

	ch := NewChannel(srv.URL, token)
	defer ch.Close()

	collector := &commentCollector{}
	unsubscribe, err := ch.Subscribe(context.Background(), "T1", collector.dispatch)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsubscribe()
	waitForRoomSize(t, socket, "T1", 1)

	socket.BroadcastComment(model.TicketComment{ID: "c1", TicketID: "T1", Body: "public", CreatedAt: 1000})
	socket.BroadcastComment(model.TicketComment{ID: "c2", TicketID: "T1", Body: "private", Internal: true, CreatedAt: 2000})

	comments := collector.waitFor(t, 2, 2*time.Second)
	if comments[0].ID != "c1" || comments[0].Internal {
		t.Fatalf("unexpected public comment: %+v", comments[0])
	}
	if comments[1].ID != "c2" || !comments[1].Internal {
		t.Fatalf("unexpected private comment: %+v", comments[1])
	}
}

func TestChannelDoubleSubscribe(t *testing.T) {
	srv, socket, token := startBackend(t)

	ch := NewChannel(srv.URL, token)
	defer ch.Close()

	collector := &commentCollector{}
	first, err := ch.Subscribe(context.Background(), "T5", collector.dispatch)
	if err != nil {
		t.Fatalf("Subscribe(first): %v", err)
	}
	second, err := ch.Subscribe(context.Background(), "T5", collector.dispatch)
	if err != nil {
		t.Fatalf("Subscribe(second): %v", err)
	}
	waitForRoomSize(t, socket, "T5", 1)

	socket.BroadcastComment(model.TicketComment{ID: "c1", TicketID: "T5", Body: "once"})
	collector.waitFor(t, 1, 2*time.Second)
	time.Sleep(100 * time.Millisecond)
	if got := collector.snapshot(); len(got) != 1 {
		t.Fatalf("expected exactly one dispatch, got %d", len(got))
	}

	// first unsubscribe keeps the room, second leaves it
	first()
	time.Sleep(50 * time.Millisecond)
	if socket.RoomSize("T5") != 1 {
		t.Fatalf("room should survive first unsubscribe")
	}
	if rooms := ch.ActiveRooms(); len(rooms) != 1 || rooms[0] != "T5" {
		t.Fatalf("unexpected active rooms: %v", rooms)
	}

	second()
	waitForRoomSize(t, socket, "T5", 0)
	if len(ch.ActiveRooms()) != 0 {
		t.Fatalf("no rooms should remain")
	}

	// repeated calls are no-ops
	first()
	second()
	if socket.RoomSize("T5") != 0 {
		t.Fatalf("repeat unsubscribe must not touch the room")
	}
}

func TestChannelDropsEventsAfterUnsubscribe(t *testing.T) {
	srv, socket, token := startBackend(t)

	ch := NewChannel(srv.URL, token)
	defer ch.Close()

	collector := &commentCollector{}
	unsubscribe, err := ch.Subscribe(context.Background(), "T7", collector.dispatch)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	waitForRoomSize(t, socket, "T7", 1)

	unsubscribe()
	waitForRoomSize(t, socket, "T7", 0)

	// even if the server still had us in the room, the local record is
	// gone and the dispatch must not fire
	socket.BroadcastComment(model.TicketComment{ID: "c1", TicketID: "T7", Body: "late"})
	time.Sleep(150 * time.Millisecond)
	if got := collector.snapshot(); len(got) != 0 {
		t.Fatalf("expected no dispatches, got %+v", got)
	}
}

func TestChannelConnectRejectedToken(t *testing.T) {
	srv, _, _ := startBackend(t)

	ch := NewChannel(srv.URL, "garbage-token")
	defer ch.Close()

	if err := ch.Connect(context.Background()); err == nil {
		t.Fatalf("expected connect to fail with bad token")
	}
	if ch.Connected() {
		t.Fatalf("channel must not report connected")
	}
}

func TestChannelRejoin(t *testing.T) {
	srv, socket, token := startBackend(t)

	ch := NewChannel(srv.URL, token)
	defer ch.Close()

	collector := &commentCollector{}
	unsubscribe, err := ch.Subscribe(context.Background(), "T8", collector.dispatch)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsubscribe()
	waitForRoomSize(t, socket, "T8", 1)

	// simulate a transport drop: the room record survives locally but
	// server-side membership is gone until Rejoin
	ch.Close()
	waitForRoomSize(t, socket, "T8", 0)
	if len(ch.ActiveRooms()) != 1 {
		t.Fatalf("room record should survive the close")
	}

	if err := ch.Rejoin(context.Background()); err != nil {
		t.Fatalf("Rejoin: %v", err)
	}
	waitForRoomSize(t, socket, "T8", 1)

	socket.BroadcastComment(model.TicketComment{ID: "c1", TicketID: "T8", Body: "after rejoin"})
	collector.waitFor(t, 1, 2*time.Second)
}

func TestEndpoint(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"http://host:8080", "ws://host:8080/socket.io/?EIO=4&transport=websocket"},
		{"https://host", "wss://host/socket.io/?EIO=4&transport=websocket"},
		{"ws://host/base/", "ws://host/base/socket.io/?EIO=4&transport=websocket"},
	}
	for _, tc := range cases {
		got, err := endpoint(tc.in)
		if err != nil {
			t.Fatalf("endpoint(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("endpoint(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if _, err := endpoint("ftp://host"); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
}
