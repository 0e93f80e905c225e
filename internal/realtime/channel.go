// Package realtime maintains the ticket-chat socket: one shared
// connection, per-ticket room membership, and normalization of inbound
// comment events.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"storefront-core/internal/model"
)

// Server-to-client events.
const (
	EventPublicCommentAdded  = "ticketPublicCommentAdded"
	EventPrivateCommentAdded = "ticketPrivateCommentAdded"
)

// Client-to-server events.
const (
	eventJoinTicketRoom  = "joinTicketRoom"
	eventLeaveTicketRoom = "leaveTicketRoom"
)

// DispatchFunc receives every normalized comment for a subscribed
// ticket.
type DispatchFunc func(model.TicketComment)

type roomSub struct {
	ticketID string
	joinedAt time.Time
	dispatch DispatchFunc
	refs     int
}

// Channel multiplexes ticket rooms over one socket connection. The
// connection is shared process-wide; repeated Subscribe calls never
// open a second one.
//
// Known gap kept from the legacy client: rooms are not re-joined
// automatically after a transport-level reconnect. Callers that care
// must call Rejoin once the transport is back.
type Channel struct {
	conn *socketConn
	log  *slog.Logger
	now  func() time.Time

	mu    sync.Mutex
	rooms map[string]*roomSub
}

func NewChannel(socketURL, token string) *Channel {
	c := &Channel{
		log:   slog.Default(),
		now:   time.Now,
		rooms: make(map[string]*roomSub),
	}
	c.conn = newSocketConn(socketURL, token, c.handleEvent, c.handleDisconnect)
	return c
}

// Connect opens the shared connection. Idempotent.
func (c *Channel) Connect(ctx context.Context) error {
	return c.conn.dial(ctx)
}

// Connected reports whether the shared connection is up.
func (c *Channel) Connected() bool {
	return c.conn.isConnected()
}

// Close tears down the connection. Room records stay, so a later
// Connect followed by Rejoin restores membership.
func (c *Channel) Close() {
	c.conn.close()
}

// Subscribe joins the room for ticketID and arranges for inbound
// comments to reach dispatch. The connection is opened if needed. The
// returned unsubscribe func is idempotent; the last unsubscribe for a
// ticket leaves the room.
//
// A second Subscribe for the same ticket while the first is active
// shares the existing room record: the join is not re-emitted and each
// inbound event is still dispatched exactly once.
func (c *Channel) Subscribe(ctx context.Context, ticketID string, dispatch DispatchFunc) (func(), error) {
	if ticketID == "" {
		return nil, errors.New("missing ticket id")
	}
	if dispatch == nil {
		return nil, errors.New("missing dispatch func")
	}

	if err := c.conn.dial(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	room, ok := c.rooms[ticketID]
	if !ok {
		room = &roomSub{ticketID: ticketID, joinedAt: c.now(), dispatch: dispatch}
		c.rooms[ticketID] = room
	}
	room.refs++
	needJoin := !ok
	c.mu.Unlock()

	if needJoin {
		if err := c.conn.emit(eventJoinTicketRoom, ticketID); err != nil {
			c.dropRef(ticketID, false)
			return nil, err
		}
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() { c.dropRef(ticketID, true) })
	}
	return unsubscribe, nil
}

func (c *Channel) dropRef(ticketID string, emitLeave bool) {
	c.mu.Lock()
	room, ok := c.rooms[ticketID]
	if !ok {
		c.mu.Unlock()
		return
	}
	room.refs--
	last := room.refs <= 0
	if last {
		delete(c.rooms, ticketID)
	}
	c.mu.Unlock()

	if last && emitLeave {
		if err := c.conn.emit(eventLeaveTicketRoom, ticketID); err != nil {
			c.log.Debug("leave room emit failed", "ticketId", ticketID, "error", err)
		}
	}
}

// ActiveRooms returns the ticket ids with live subscriptions.
func (c *Channel) ActiveRooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		out = append(out, id)
	}
	return out
}

// Rejoin re-emits the join for every active room. Explicitly invoked by
// the caller after a reconnect; nothing calls it automatically.
func (c *Channel) Rejoin(ctx context.Context) error {
	if err := c.conn.dial(ctx); err != nil {
		return err
	}
	for _, ticketID := range c.ActiveRooms() {
		if err := c.conn.emit(eventJoinTicketRoom, ticketID); err != nil {
			return err
		}
	}
	return nil
}

func (c *Channel) handleDisconnect() {
	c.mu.Lock()
	active := len(c.rooms)
	c.mu.Unlock()
	if active > 0 {
		c.log.Warn("socket disconnected with active ticket rooms; rooms are not auto-rejoined", "rooms", active)
	}
}

func (c *Channel) handleEvent(event string, args []json.RawMessage) {
	if event != EventPublicCommentAdded && event != EventPrivateCommentAdded {
		return
	}
	if len(args) == 0 {
		return
	}

	comment, err := normalizeComment(args[0])
	if err != nil {
		c.log.Debug("dropping malformed comment event", "event", event, "error", err)
		return
	}
	comment.Internal = event == EventPrivateCommentAdded

	c.mu.Lock()
	room := c.rooms[comment.TicketID]
	c.mu.Unlock()
	if room == nil {
		// event for a room we already left
		return
	}
	room.dispatch(comment)
}

// normalizeComment accepts both payload shapes the backend emits: a
// {"newComment": {...}} envelope or the bare comment object.
func normalizeComment(raw json.RawMessage) (model.TicketComment, error) {
	var envelope struct {
		NewComment *model.TicketComment `json:"newComment"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.NewComment != nil {
		return validated(*envelope.NewComment)
	}

	var comment model.TicketComment
	if err := json.Unmarshal(raw, &comment); err != nil {
		return model.TicketComment{}, err
	}
	return validated(comment)
}

func validated(comment model.TicketComment) (model.TicketComment, error) {
	if comment.TicketID == "" {
		return model.TicketComment{}, errors.New("comment missing ticketId")
	}
	return comment, nil
}
