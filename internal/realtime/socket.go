package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"storefront-core/internal/sio"
)

const (
	writeTimeout     = 10 * time.Second
	handshakeTimeout = 10 * time.Second
)

// socketConn is one client connection speaking socket.io over a
// websocket. It answers server pings, runs the read loop, and hands
// every inbound event to a single sink.
type socketConn struct {
	url   string
	token string
	log   *slog.Logger

	onEvent      func(event string, args []json.RawMessage)
	onDisconnect func()

	mu        sync.Mutex
	ws        *websocket.Conn
	connected bool

	writeMu sync.Mutex
}

func newSocketConn(rawURL, token string, onEvent func(string, []json.RawMessage), onDisconnect func()) *socketConn {
	return &socketConn{
		url:          rawURL,
		token:        token,
		log:          slog.Default(),
		onEvent:      onEvent,
		onDisconnect: onDisconnect,
	}
}

// endpoint converts the configured base URL into the websocket
// handshake URL.
func endpoint(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid socket url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid socket url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/socket.io/"
	u.RawQuery = "EIO=4&transport=websocket"
	return u.String(), nil
}

// dial opens the websocket and completes the engine.io and socket.io
// handshakes. Calling dial on an already-connected conn is a no-op.
func (c *socketConn) dial(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}

	target, err := endpoint(c.url)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("socket dial: %w", err)
	}

	if err := c.handshake(ws); err != nil {
		_ = ws.Close()
		return err
	}

	c.ws = ws
	c.connected = true
	go c.readLoop(ws)
	return nil
}

func (c *socketConn) handshake(ws *websocket.Conn) error {
	_ = ws.SetReadDeadline(time.Now().Add(handshakeTimeout))

	_, data, err := ws.ReadMessage()
	if err != nil {
		return fmt.Errorf("read open packet: %w", err)
	}
	if _, err := sio.ParseOpen(string(data)); err != nil {
		return fmt.Errorf("bad open packet: %w", err)
	}

	connect, err := sio.BuildConnect(map[string]string{"token": c.token})
	if err != nil {
		return err
	}
	if err := ws.WriteMessage(websocket.TextMessage, []byte(string(rune(sio.EngineMessage))+connect)); err != nil {
		return fmt.Errorf("send connect: %w", err)
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("read connect ack: %w", err)
		}
		msg := string(data)
		if msg == "" {
			continue
		}
		if msg[0] == sio.EnginePing {
			if err := ws.WriteMessage(websocket.TextMessage, []byte{sio.EnginePong}); err != nil {
				return err
			}
			continue
		}
		if msg[0] != sio.EngineMessage || len(msg) < 2 {
			continue
		}
		payload := msg[1:]
		switch payload[0] {
		case sio.SocketConnect:
			_ = ws.SetReadDeadline(time.Time{})
			return nil
		case sio.SocketConnectError:
			return errors.New("socket connect rejected: " + payload[1:])
		default:
			// server may emit an error event before closing
			if pkt, err := sio.ParseEvent(payload); err == nil && pkt.Event == "error" {
				return errors.New("socket connect rejected")
			}
		}
	}
}

func (c *socketConn) readLoop(ws *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		wasConnected := c.connected && c.ws == ws
		if wasConnected {
			c.connected = false
			c.ws = nil
		}
		c.mu.Unlock()
		_ = ws.Close()
		if wasConnected && c.onDisconnect != nil {
			c.onDisconnect()
		}
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		msg := string(data)
		if msg == "" {
			continue
		}

		switch msg[0] {
		case sio.EnginePing:
			c.write(ws, string(rune(sio.EnginePong)))
		case sio.EngineClose:
			return
		case sio.EngineMessage:
			payload := msg[1:]
			if payload == "" || payload[0] != sio.SocketEvent {
				continue
			}
			pkt, err := sio.ParseEvent(payload)
			if err != nil {
				c.log.Debug("dropping malformed socket event", "error", err)
				continue
			}
			c.onEvent(pkt.Event, pkt.Args)
		}
	}
}

func (c *socketConn) write(ws *websocket.Conn, msg string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = ws.WriteMessage(websocket.TextMessage, []byte(msg))
}

// emit sends an event to the server.
func (c *socketConn) emit(event string, args ...any) error {
	c.mu.Lock()
	ws := c.ws
	connected := c.connected
	c.mu.Unlock()
	if !connected || ws == nil {
		return errors.New("socket not connected")
	}

	payload, err := sio.BuildEvent(event, args...)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return ws.WriteMessage(websocket.TextMessage, []byte(string(rune(sio.EngineMessage))+payload))
}

func (c *socketConn) isConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *socketConn) close() {
	c.mu.Lock()
	ws := c.ws
	c.ws = nil
	c.connected = false
	c.mu.Unlock()
	if ws != nil {
		_ = ws.Close()
	}
}
