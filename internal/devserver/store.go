package devserver

import (
	"crypto/subtle"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"storefront-core/internal/model"
)

// User is a backend account with its profile.
type User struct {
	ID       string
	Email    string
	Password string
	Profile  model.UserRecord
}

// DeviceToken is one registered push target.
type DeviceToken struct {
	UserID       string
	DeviceID     string
	Token        string
	RegisteredAt int64
}

// Store is the simulator's in-memory database.
type Store struct {
	mu sync.RWMutex

	usersByEmail     map[string]User
	usersByID        map[string]User
	commentsByTicket map[string][]model.TicketComment
	tokensByDevice   map[string]DeviceToken // userID + "|" + deviceID
}

func NewStore() *Store {
	return &Store{
		usersByEmail:     make(map[string]User),
		usersByID:        make(map[string]User),
		commentsByTicket: make(map[string][]model.TicketComment),
		tokensByDevice:   make(map[string]DeviceToken),
	}
}

// CreateUser registers an account. The email must be unused.
func (s *Store) CreateUser(email, password, name string) (User, error) {
	if email == "" || password == "" {
		return User{}, errors.New("missing email or password")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usersByEmail[email]; ok {
		return User{}, errors.New("email already registered")
	}

	user := User{
		ID:       uuid.NewString(),
		Email:    email,
		Password: password,
		Profile:  model.UserRecord{Email: email, Name: name},
	}
	user.Profile.ID = user.ID
	s.usersByEmail[email] = user
	s.usersByID[user.ID] = user
	return user, nil
}

// Authenticate checks credentials and returns the matching user.
func (s *Store) Authenticate(email, password string) (User, bool) {
	s.mu.RLock()
	user, ok := s.usersByEmail[email]
	s.mu.RUnlock()
	if !ok {
		return User{}, false
	}
	if subtle.ConstantTimeCompare([]byte(user.Password), []byte(password)) != 1 {
		return User{}, false
	}
	return user, true
}

func (s *Store) GetUser(userID string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.usersByID[userID]
	return user, ok
}

// AppendComment stores a ticket comment and returns it with id and
// timestamp filled in.
func (s *Store) AppendComment(ticketID, authorID, body string, internal bool, nowMillis int64) (model.TicketComment, error) {
	if ticketID == "" {
		return model.TicketComment{}, errors.New("missing ticket id")
	}
	if body == "" {
		return model.TicketComment{}, errors.New("missing body")
	}

	comment := model.TicketComment{
		ID:        uuid.NewString(),
		TicketID:  ticketID,
		AuthorID:  authorID,
		Body:      body,
		Internal:  internal,
		CreatedAt: nowMillis,
	}

	s.mu.Lock()
	s.commentsByTicket[ticketID] = append(s.commentsByTicket[ticketID], comment)
	s.mu.Unlock()
	return comment, nil
}

// ListComments returns a ticket's comments oldest first.
func (s *Store) ListComments(ticketID string) []model.TicketComment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	comments := s.commentsByTicket[ticketID]
	out := make([]model.TicketComment, len(comments))
	copy(out, comments)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

func deviceKey(userID, deviceID string) string {
	return userID + "|" + deviceID
}

// RegisterDeviceToken upserts the push token for one device. A refresh
// replaces the prior token atomically.
func (s *Store) RegisterDeviceToken(userID, deviceID, token string, nowMillis int64) error {
	if token == "" {
		return errors.New("missing token")
	}
	if deviceID == "" {
		return errors.New("missing device id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokensByDevice[deviceKey(userID, deviceID)] = DeviceToken{
		UserID:       userID,
		DeviceID:     deviceID,
		Token:        token,
		RegisteredAt: nowMillis,
	}
	return nil
}

// ListDeviceTokens returns a user's registered push targets.
func (s *Store) ListDeviceTokens(userID string) []DeviceToken {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]DeviceToken, 0)
	for _, dt := range s.tokensByDevice {
		if dt.UserID == userID {
			out = append(out, dt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}
