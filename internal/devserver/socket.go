package devserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"storefront-core/internal/auth"
	"storefront-core/internal/model"
	"storefront-core/internal/sio"
)

const (
	maxPayload   int64 = 1000000
	writeTimeout       = 10 * time.Second
	pingInterval       = 25 * time.Second
	pingTimeout        = 20 * time.Second
)

// SocketServer serves the realtime side of the simulator: socket.io
// connections joining and leaving per-ticket rooms.
type SocketServer struct {
	tokenConfig auth.TokenConfig
	upgrader    websocket.Upgrader

	mu    sync.RWMutex
	rooms map[string]map[*sconn]struct{}
	conns map[*sconn]struct{}
}

func NewSocketServer(tokenConfig auth.TokenConfig) *SocketServer {
	return &SocketServer{
		tokenConfig: tokenConfig,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		rooms: make(map[string]map[*sconn]struct{}),
		conns: make(map[*sconn]struct{}),
	}
}

func (s *SocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ws.SetReadLimit(maxPayload)

	c := newSconn(ws)
	s.addConn(c)
	defer s.dropConn(c)

	open, err := sio.BuildOpen(sio.OpenInfo{
		SID:          c.sid,
		PingInterval: int(pingInterval / time.Millisecond),
		PingTimeout:  int(pingTimeout / time.Millisecond),
		MaxPayload:   maxPayload,
	})
	if err != nil {
		return
	}
	_ = c.writeText(open)

	go c.pingLoop()
	c.readLoop(func(msg string) {
		s.handleMessage(c, msg)
	})
}

func (s *SocketServer) addConn(c *sconn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *SocketServer) dropConn(c *sconn) {
	s.mu.Lock()
	delete(s.conns, c)
	for ticketID, set := range s.rooms {
		delete(set, c)
		if len(set) == 0 {
			delete(s.rooms, ticketID)
		}
	}
	s.mu.Unlock()
	c.close()
}

func (s *SocketServer) joinRoom(ticketID string, c *sconn) {
	if ticketID == "" {
		return
	}
	s.mu.Lock()
	set, ok := s.rooms[ticketID]
	if !ok {
		set = make(map[*sconn]struct{})
		s.rooms[ticketID] = set
	}
	set[c] = struct{}{}
	s.mu.Unlock()
}

func (s *SocketServer) leaveRoom(ticketID string, c *sconn) {
	s.mu.Lock()
	set, ok := s.rooms[ticketID]
	if ok {
		delete(set, c)
		if len(set) == 0 {
			delete(s.rooms, ticketID)
		}
	}
	s.mu.Unlock()
}

// RoomSize reports the current member count of a ticket room. Test
// hook.
func (s *SocketServer) RoomSize(ticketID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms[ticketID])
}

// BroadcastComment pushes a new comment to every member of its ticket
// room. Public comments travel in a {newComment} envelope, private
// ones as the bare object, matching the upstream backend's two shapes.
func (s *SocketServer) BroadcastComment(comment model.TicketComment) {
	var payload string
	var err error
	if comment.Internal {
		payload, err = sio.BuildEvent("ticketPrivateCommentAdded", comment)
	} else {
		payload, err = sio.BuildEvent("ticketPublicCommentAdded", map[string]any{"newComment": comment})
	}
	if err != nil {
		return
	}

	s.mu.RLock()
	set := s.rooms[comment.TicketID]
	conns := make([]*sconn, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	for _, c := range conns {
		if err := c.writeText(string(rune(sio.EngineMessage)) + payload); err != nil {
			s.dropConn(c)
		}
	}
}

type socketAuth struct {
	Token string `json:"token"`
}

func (s *SocketServer) handleMessage(c *sconn, msg string) {
	if msg == "" {
		return
	}

	switch msg[0] {
	case sio.EnginePong:
		c.markPong()
	case sio.EngineClose:
		c.close()
	case sio.EngineMessage:
		s.handlePayload(c, msg[1:])
	}
}

func (s *SocketServer) handlePayload(c *sconn, payload string) {
	if payload == "" {
		return
	}

	switch payload[0] {
	case sio.SocketConnect:
		s.handleConnect(c, payload)
	case sio.SocketEvent:
		s.handleEvent(c, payload)
	}
}

func (s *SocketServer) handleConnect(c *sconn, payload string) {
	if c.authed() {
		return
	}

	var authObj socketAuth
	if err := sio.ParseConnectAuth(payload, &authObj); err != nil || authObj.Token == "" {
		c.reject("Missing token")
		return
	}
	claims, err := auth.VerifyToken(authObj.Token, s.tokenConfig)
	if err != nil || claims.UserID == "" {
		c.reject("Invalid authentication token")
		return
	}

	c.setUserID(claims.UserID)
	ack, err := sio.BuildConnectAck(c.sid)
	if err != nil {
		c.close()
		return
	}
	_ = c.writeText(string(rune(sio.EngineMessage)) + ack)
}

func (s *SocketServer) handleEvent(c *sconn, payload string) {
	if !c.authed() {
		return
	}

	pkt, err := sio.ParseEvent(payload)
	if err != nil {
		return
	}

	switch pkt.Event {
	case "joinTicketRoom":
		if ticketID := eventRoomID(pkt); ticketID != "" {
			s.joinRoom(ticketID, c)
		}
	case "leaveTicketRoom":
		if ticketID := eventRoomID(pkt); ticketID != "" {
			s.leaveRoom(ticketID, c)
		}
	}
}

// eventRoomID accepts the room argument either as a bare string or as
// {"ticketId": "..."}; older clients sent the object form.
func eventRoomID(pkt sio.EventPacket) string {
	if len(pkt.Args) == 0 {
		return ""
	}

	var ticketID string
	if err := json.Unmarshal(pkt.Args[0], &ticketID); err == nil && ticketID != "" {
		return ticketID
	}

	var body struct {
		TicketID string `json:"ticketId"`
	}
	if err := json.Unmarshal(pkt.Args[0], &body); err == nil {
		return body.TicketID
	}
	return ""
}

type sconn struct {
	ws  *websocket.Conn
	sid string

	mu     sync.Mutex
	userID string

	sendMu sync.Mutex

	pingMu       sync.Mutex
	awaitingPong bool
	pingSentAt   time.Time
	nextPingAt   time.Time

	closeOnce sync.Once
	done      chan struct{}
}

func newSconn(ws *websocket.Conn) *sconn {
	return &sconn{
		ws:         ws,
		sid:        uuid.NewString(),
		nextPingAt: time.Now().Add(pingInterval),
		done:       make(chan struct{}),
	}
}

func (c *sconn) authed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID != ""
}

func (c *sconn) setUserID(userID string) {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
}

func (c *sconn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *sconn) reject(message string) {
	if payload, err := sio.BuildConnectError(message); err == nil {
		_ = c.writeText(string(rune(sio.EngineMessage)) + payload)
	}
	c.close()
}

func (c *sconn) writeText(msg string) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (c *sconn) readLoop(onMessage func(string)) {
	defer c.close()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		onMessage(string(data))
	}
}

func (c *sconn) pingLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			c.pingMu.Lock()
			if c.awaitingPong && now.Sub(c.pingSentAt) > pingTimeout {
				c.pingMu.Unlock()
				c.close()
				return
			}
			if !c.awaitingPong && !now.Before(c.nextPingAt) {
				c.awaitingPong = true
				c.pingSentAt = now
				c.nextPingAt = now.Add(pingInterval)
				c.pingMu.Unlock()
				_ = c.writeText(string(rune(sio.EnginePing)))
				continue
			}
			c.pingMu.Unlock()
		}
	}
}

func (c *sconn) markPong() {
	c.pingMu.Lock()
	c.awaitingPong = false
	c.pingMu.Unlock()
}
