// Package appstate holds the centralized observable state container the
// coordination components write into and the UI layer reads from. It is
// injected into its consumers rather than reached as a process global,
// so tests can substitute their own instance.
package appstate

import (
	"sync"

	"storefront-core/internal/model"
)

// Change names the state slice a watcher notification refers to.
type Change string

const (
	ChangeAuth          Change = "auth"
	ChangeNotifications Change = "notifications"
	ChangeTicketComment Change = "ticket-comment"
	ChangePushToken     Change = "push-token"
)

type watcher struct {
	fn func(Change)
}

// Store is the application state container.
type Store struct {
	mu sync.RWMutex

	auth             model.AuthSession
	notifications    []model.NotificationRecord
	commentsByTicket map[string][]model.TicketComment
	pushToken        model.PushToken

	watchMu  sync.Mutex
	watchers map[*watcher]struct{}
}

func New() *Store {
	return &Store{
		commentsByTicket: make(map[string][]model.TicketComment),
		watchers:         make(map[*watcher]struct{}),
	}
}

// Watch registers fn to run after every mutation, with the changed
// slice. The returned cancel func is idempotent. Callbacks run on the
// mutating goroutine and must not block.
func (s *Store) Watch(fn func(Change)) (cancel func()) {
	w := &watcher{fn: fn}
	s.watchMu.Lock()
	s.watchers[w] = struct{}{}
	s.watchMu.Unlock()

	return func() {
		s.watchMu.Lock()
		delete(s.watchers, w)
		s.watchMu.Unlock()
	}
}

func (s *Store) notify(change Change) {
	s.watchMu.Lock()
	watchers := make([]*watcher, 0, len(s.watchers))
	for w := range s.watchers {
		watchers = append(watchers, w)
	}
	s.watchMu.Unlock()

	for _, w := range watchers {
		w.fn(change)
	}
}

// SetAuthSnapshot installs the session state computed at boot or login.
func (s *Store) SetAuthSnapshot(snapshot model.AuthSession) {
	s.mu.Lock()
	s.auth = snapshot
	s.mu.Unlock()
	s.notify(ChangeAuth)
}

// SetUserProfile overwrites only the profile part of the auth session.
// Used by the background refresh, which must not touch login state.
func (s *Store) SetUserProfile(profile *model.UserRecord) {
	s.mu.Lock()
	s.auth.UserProfile = profile
	s.mu.Unlock()
	s.notify(ChangeAuth)
}

// ClearAuthSnapshot resets the auth session to all-null. Forced-logout
// path.
func (s *Store) ClearAuthSnapshot() {
	s.mu.Lock()
	s.auth = model.AuthSession{}
	s.mu.Unlock()
	s.notify(ChangeAuth)
}

// AppendNotification adds a normalized push record to the session list.
func (s *Store) AppendNotification(record model.NotificationRecord) {
	s.mu.Lock()
	s.notifications = append(s.notifications, record)
	s.mu.Unlock()
	s.notify(ChangeNotifications)
}

// AppendTicketComment adds a realtime comment under its ticket id.
func (s *Store) AppendTicketComment(ticketID string, comment model.TicketComment) {
	s.mu.Lock()
	s.commentsByTicket[ticketID] = append(s.commentsByTicket[ticketID], comment)
	s.mu.Unlock()
	s.notify(ChangeTicketComment)
}

// SetPushToken records the current FCM registration token.
func (s *Store) SetPushToken(token model.PushToken) {
	s.mu.Lock()
	s.pushToken = token
	s.mu.Unlock()
	s.notify(ChangePushToken)
}

func (s *Store) IsLoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.auth.IsLoggedIn
}

func (s *Store) UserProfile() *model.UserRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.auth.UserProfile
}

// HasCompletedOnboarding returns nil while the flag is unknown.
func (s *Store) HasCompletedOnboarding() *bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.auth.HasCompletedOnboarding
}

func (s *Store) AuthSession() model.AuthSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.auth
}

func (s *Store) Notifications() []model.NotificationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.NotificationRecord, len(s.notifications))
	copy(out, s.notifications)
	return out
}

func (s *Store) TicketComments(ticketID string) []model.TicketComment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	comments := s.commentsByTicket[ticketID]
	out := make([]model.TicketComment, len(comments))
	copy(out, comments)
	return out
}

func (s *Store) PushToken() model.PushToken {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pushToken
}
