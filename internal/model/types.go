package model

import "time"

// NotificationSource identifies the channel a push event arrived on.
type NotificationSource string

const (
	SourceForeground NotificationSource = "foreground"
	SourceTapped     NotificationSource = "tapped"
	SourceColdStart  NotificationSource = "cold-start"
)

// UserRecord is the backend's user profile object, cached locally under
// the user_data key between sessions.
type UserRecord struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// SessionSnapshot is what session.Initializer hands the UI router at boot.
// HasCompletedOnboarding is nil when the flag could not be read.
type SessionSnapshot struct {
	HasCompletedOnboarding *bool
	IsLoggedIn             bool
	UserProfile            *UserRecord
}

// AuthSession is the auth slice of the application state store.
type AuthSession struct {
	AuthToken              string
	TokenExpiry            time.Time
	UserProfile            *UserRecord
	IsLoggedIn             bool
	HasCompletedOnboarding *bool
}

// NotificationRecord is the normalized form of an inbound push event.
// Records are immutable after creation.
type NotificationRecord struct {
	Title      string
	Body       string
	Data       map[string]string
	ImageURL   string
	ReceivedAt time.Time
	Source     NotificationSource
}

// PushToken is the last FCM registration token persisted locally.
type PushToken struct {
	Token           string
	LastRefreshedAt time.Time
}

// TicketComment is a single support-ticket chat message. The realtime
// channel and the REST client both normalize into this shape.
type TicketComment struct {
	ID        string `json:"id"`
	TicketID  string `json:"ticketId"`
	AuthorID  string `json:"authorId"`
	Author    string `json:"author,omitempty"`
	Body      string `json:"body"`
	Internal  bool   `json:"internal"`
	CreatedAt int64  `json:"createdAt"`
}
