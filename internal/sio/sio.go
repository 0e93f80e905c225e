// Package sio implements the minimal socket.io framing (EIO=4,
// websocket transport) shared by the realtime client and the devserver.
// An engine.io frame is one leading type byte; a socket.io payload
// inside an EngineMessage frame carries its own type byte, an optional
// namespace, an optional ack id, and a JSON array of event name + args.
package sio

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// Engine.io packet type bytes.
const (
	EngineOpen    = '0'
	EngineClose   = '1'
	EnginePing    = '2'
	EnginePong    = '3'
	EngineMessage = '4'
)

// Socket.io packet type bytes (inside an EngineMessage frame).
const (
	SocketConnect      = '0'
	SocketEvent        = '2'
	SocketConnectError = '4'
)

// OpenInfo is the engine.io handshake body sent by the server.
type OpenInfo struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int64    `json:"maxPayload"`
}

// BuildOpen encodes the handshake frame ("0" + info).
func BuildOpen(info OpenInfo) (string, error) {
	if info.Upgrades == nil {
		info.Upgrades = []string{}
	}
	data, err := json.Marshal(info)
	if err != nil {
		return "", err
	}
	return string(EngineOpen) + string(data), nil
}

// ParseOpen decodes a handshake frame.
func ParseOpen(msg string) (OpenInfo, error) {
	if msg == "" || msg[0] != EngineOpen {
		return OpenInfo{}, errors.New("not an open packet")
	}
	var info OpenInfo
	if err := json.Unmarshal([]byte(msg[1:]), &info); err != nil {
		return OpenInfo{}, err
	}
	return info, nil
}

func splitNamespace(s string) (namespace string, rest string) {
	if !strings.HasPrefix(s, "/") {
		return "/", s
	}
	comma := strings.IndexByte(s, ',')
	if comma == -1 {
		return "/", s
	}
	return s[:comma], s[comma+1:]
}

func splitAckID(s string) (id *int, rest string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return nil, s
	}
	v, err := strconv.Atoi(s[:i])
	if err != nil {
		return nil, s
	}
	return &v, s[i:]
}

// EventPacket is a decoded "2[...]" payload.
type EventPacket struct {
	Namespace string
	ID        *int
	Event     string
	Args      []json.RawMessage
}

// ParseEvent decodes an event payload.
func ParseEvent(payload string) (EventPacket, error) {
	if payload == "" || payload[0] != SocketEvent {
		return EventPacket{}, errors.New("not an event packet")
	}

	ns, rest := splitNamespace(payload[1:])
	id, rest := splitAckID(rest)
	if !strings.HasPrefix(rest, "[") {
		return EventPacket{}, errors.New("invalid event payload")
	}

	var arr []json.RawMessage
	if err := json.Unmarshal([]byte(rest), &arr); err != nil {
		return EventPacket{}, err
	}
	if len(arr) == 0 {
		return EventPacket{}, errors.New("missing event name")
	}
	var name string
	if err := json.Unmarshal(arr[0], &name); err != nil {
		return EventPacket{}, errors.New("invalid event name")
	}

	return EventPacket{Namespace: ns, ID: id, Event: name, Args: arr[1:]}, nil
}

// BuildEvent encodes an event payload ("2" + [event, args...]).
func BuildEvent(event string, args ...any) (string, error) {
	arr := make([]any, 0, 1+len(args))
	arr = append(arr, event)
	arr = append(arr, args...)
	data, err := json.Marshal(arr)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteByte(SocketEvent)
	b.Write(data)
	return b.String(), nil
}

// BuildConnect encodes the client's namespace connect request with its
// auth object ("0" + {auth}).
func BuildConnect(auth any) (string, error) {
	data, err := json.Marshal(auth)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteByte(SocketConnect)
	b.Write(data)
	return b.String(), nil
}

// ParseConnectAuth decodes the auth object of a connect request into
// dst. A connect without an auth object is an error.
func ParseConnectAuth(payload string, dst any) error {
	if payload == "" || payload[0] != SocketConnect {
		return errors.New("not a connect packet")
	}
	_, rest := splitNamespace(payload[1:])
	if rest == "" {
		return errors.New("missing auth")
	}
	return json.Unmarshal([]byte(rest), dst)
}

// BuildConnectAck encodes the server's connect acknowledgement
// ("0" + {sid}).
func BuildConnectAck(sid string) (string, error) {
	data, err := json.Marshal(map[string]string{"sid": sid})
	if err != nil {
		return "", err
	}
	return string(SocketConnect) + string(data), nil
}

// BuildConnectError encodes the server's connect rejection
// ("4" + {message}).
func BuildConnectError(message string) (string, error) {
	data, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return "", err
	}
	return string(SocketConnectError) + string(data), nil
}
