// Package notify reconciles the three push-delivery channels
// (foreground, tapped, cold start) into one normalized record stream
// feeding the application state store, and drives local notification
// display for foreground events.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"storefront-core/internal/model"
)

// ChannelID is the Android notification channel all foreground alerts
// render on. It must exist before the first render, with high
// importance so alerts surface with sound.
const ChannelID = "high_priority"

// RawMessage is the vendor push envelope as delivered by the push SDK.
type RawMessage struct {
	Data         map[string]string `json:"data"`
	Notification *MessagePayload   `json:"notification"`
}

type MessagePayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// LocalNotification is the platform render request for a foreground
// alert.
type LocalNotification struct {
	Title   string
	Body    string
	Data    map[string]string
	Android AndroidOptions
	IOS     IOSOptions
}

type AndroidOptions struct {
	ChannelID   string
	Importance  string
	Sound       string
	PressAction string
}

type IOSOptions struct {
	Sound               string
	PresentationOptions []string
}

// Renderer displays local system notifications. EnsureChannel is called
// once at startup; Display per foreground event. Both are best effort
// from the dispatcher's point of view.
type Renderer interface {
	EnsureChannel(id, importance string) error
	Display(n LocalNotification) error
}

// RecordSink is the state-store slice the dispatcher writes to.
type RecordSink interface {
	AppendNotification(model.NotificationRecord)
	SetPushToken(model.PushToken)
}

// TokenSaver persists refreshed FCM tokens. Satisfied by *token.Store.
type TokenSaver interface {
	SetPushToken(token string) error
	PushToken() (model.PushToken, bool)
	Token() string
	DeviceID() string
}

// Registrar re-registers refreshed tokens upstream. Satisfied by
// *api.Client.
type Registrar interface {
	RegisterPushToken(ctx context.Context, token, fcmToken, deviceID string) error
}

type coldStartState int32

const (
	coldStartNotHandled coldStartState = iota
	coldStartHandled
)

// Dispatcher normalizes inbound push events.
type Dispatcher struct {
	renderer  Renderer
	sink      RecordSink
	tokens    TokenSaver
	registrar Registrar
	now       func() time.Time
	log       *slog.Logger

	mu        sync.Mutex
	coldStart coldStartState
}

func NewDispatcher(renderer Renderer, sink RecordSink, tokens TokenSaver, registrar Registrar) *Dispatcher {
	return &Dispatcher{
		renderer:  renderer,
		sink:      sink,
		tokens:    tokens,
		registrar: registrar,
		now:       time.Now,
		log:       slog.Default(),
	}
}

// WithClock overrides the dispatcher's clock. Test hook.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Bootstrap creates the notification channel. Render failures later on
// are tolerated, but without the channel Android drops foreground
// alerts silently, so this runs once before any event arrives.
func (d *Dispatcher) Bootstrap() error {
	return d.renderer.EnsureChannel(ChannelID, "high")
}

// OnForegroundMessage handles a push delivered while the app is open:
// it renders a local alert (best effort) and appends the normalized
// record. Display failure never skips the store write.
func (d *Dispatcher) OnForegroundMessage(raw RawMessage) {
	record := Normalize(raw, model.SourceForeground, d.now())

	local := LocalNotification{
		Title: record.Title,
		Body:  record.Body,
		Data:  record.Data,
		Android: AndroidOptions{
			ChannelID:   ChannelID,
			Importance:  "high",
			Sound:       "default",
			PressAction: "default",
		},
		IOS: IOSOptions{
			Sound:               "default",
			PresentationOptions: []string{"alert", "badge", "sound"},
		},
	}
	if err := d.renderer.Display(local); err != nil {
		d.log.Warn("local notification render failed", "error", err)
	}

	d.sink.AppendNotification(record)
}

// OnNotificationTapped handles the user opening a system-displayed
// notification. The system already rendered it; only the record is
// written.
func (d *Dispatcher) OnNotificationTapped(raw RawMessage) {
	d.sink.AppendNotification(Normalize(raw, model.SourceTapped, d.now()))
}

// OnColdStartNotification handles the notification that launched the
// process. SDKs may replay the callback; only the first invocation
// writes a record.
func (d *Dispatcher) OnColdStartNotification(raw RawMessage) {
	d.mu.Lock()
	if d.coldStart == coldStartHandled {
		d.mu.Unlock()
		d.log.Debug("duplicate cold start callback ignored")
		return
	}
	d.coldStart = coldStartHandled
	d.mu.Unlock()

	d.sink.AppendNotification(Normalize(raw, model.SourceColdStart, d.now()))
}

// OnTokenRefresh persists the replacement FCM token and re-registers it
// upstream when a session exists. It does not touch notification state.
func (d *Dispatcher) OnTokenRefresh(newToken string) {
	if err := d.tokens.SetPushToken(newToken); err != nil {
		d.log.Warn("push token persist failed", "error", err)
	}
	if pt, ok := d.tokens.PushToken(); ok {
		d.sink.SetPushToken(pt)
	}

	authToken := d.tokens.Token()
	if d.registrar == nil || authToken == "" {
		return
	}
	go func() {
		if err := d.registrar.RegisterPushToken(context.Background(), authToken, newToken, d.tokens.DeviceID()); err != nil {
			d.log.Debug("push token re-registration failed", "error", err)
		}
	}()
}
