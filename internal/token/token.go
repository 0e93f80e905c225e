// Package token persists the credential slice of local state: the auth
// bearer token and its expiry, the cached user profile, the onboarding
// flag, the FCM registration token, and the per-install device id.
//
// Storage failures degrade to "value absent" rather than propagating.
// A corrupted preference database must land the user on the login
// screen, not crash startup.
package token

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"storefront-core/internal/auth"
	"storefront-core/internal/model"
)

// Preference keys. The names are shared with the legacy client, so any
// values already on disk keep working.
const (
	KeyAuthToken           = "auth_token"
	KeyTokenExpiry         = "token_expiry"
	KeyUserData            = "user_data"
	KeyOnboardingCompleted = "onboarding_completed"
	KeyFCMToken            = "fcm_token"
	KeyFCMTokenRefreshedAt = "fcm_token_refreshed_at"
	KeyDeviceID            = "device_id"
)

// Prefs is the durable key-value surface the store needs. Satisfied by
// *storage.Store.
type Prefs interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	DeleteMany(keys ...string) error
}

// Store reads and writes credential state.
type Store struct {
	prefs Prefs
	now   func() time.Time
	log   *slog.Logger
}

func NewStore(prefs Prefs) *Store {
	return &Store{prefs: prefs, now: time.Now, log: slog.Default()}
}

// WithClock overrides the store's clock. Test hook.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) read(key string) (string, bool) {
	value, ok, err := s.prefs.Get(key)
	if err != nil {
		s.log.Warn("preference read failed, treating as absent", "key", key, "error", err)
		return "", false
	}
	return value, ok
}

// Token returns the stored auth token, or "" if absent or unreadable.
func (s *Store) Token() string {
	value, _ := s.read(KeyAuthToken)
	return value
}

// SaveToken stores token together with its computed absolute expiry.
func (s *Store) SaveToken(token string, expiresInSeconds int) error {
	if err := s.prefs.Set(KeyAuthToken, token); err != nil {
		return err
	}
	expiry := s.now().Add(time.Duration(expiresInSeconds) * time.Second)
	return s.prefs.Set(KeyTokenExpiry, strconv.FormatInt(expiry.Unix(), 10))
}

// Expiry returns the stored absolute token expiry. When the preference
// key is missing or malformed it falls back to the token's own exp
// claim, since backend tokens are JWTs.
func (s *Store) Expiry() (time.Time, bool) {
	if raw, ok := s.read(KeyTokenExpiry); ok {
		if epoch, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return time.Unix(epoch, 0), true
		}
		s.log.Warn("malformed token_expiry value", "value", raw)
	}
	if tok := s.Token(); tok != "" {
		if exp, ok := auth.UnverifiedExpiry(tok); ok {
			return exp, true
		}
	}
	return time.Time{}, false
}

// IsValid reports whether a token is stored and not yet expired.
func (s *Store) IsValid() bool {
	if s.Token() == "" {
		return false
	}
	expiry, ok := s.Expiry()
	if !ok {
		return false
	}
	return s.now().Before(expiry)
}

// ClearAll removes every credential key. Idempotent; safe to call when
// nothing is stored.
func (s *Store) ClearAll() error {
	return s.prefs.DeleteMany(
		KeyAuthToken,
		KeyTokenExpiry,
		KeyUserData,
		KeyFCMToken,
		KeyFCMTokenRefreshedAt,
	)
}

// CachedProfile returns the last profile persisted under user_data, or
// nil if absent or unparseable.
func (s *Store) CachedProfile() *model.UserRecord {
	raw, ok := s.read(KeyUserData)
	if !ok {
		return nil
	}
	var profile model.UserRecord
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		s.log.Warn("cached profile is unparseable, discarding", "error", err)
		return nil
	}
	return &profile
}

// SaveProfile overwrites the cached profile.
func (s *Store) SaveProfile(profile model.UserRecord) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	return s.prefs.Set(KeyUserData, string(data))
}

// OnboardingCompleted returns the persisted onboarding flag, or nil if
// the flag could not be read.
func (s *Store) OnboardingCompleted() *bool {
	raw, ok, err := s.prefs.Get(KeyOnboardingCompleted)
	if err != nil {
		s.log.Warn("onboarding flag unreadable", "error", err)
		return nil
	}
	completed := ok && raw == "true"
	return &completed
}

func (s *Store) SetOnboardingCompleted() error {
	return s.prefs.Set(KeyOnboardingCompleted, "true")
}

// PushToken returns the last registered FCM token, if any.
func (s *Store) PushToken() (model.PushToken, bool) {
	value, ok := s.read(KeyFCMToken)
	if !ok || value == "" {
		return model.PushToken{}, false
	}
	pt := model.PushToken{Token: value}
	if raw, ok := s.read(KeyFCMTokenRefreshedAt); ok {
		if epoch, err := strconv.ParseInt(raw, 10, 64); err == nil {
			pt.LastRefreshedAt = time.UnixMilli(epoch)
		}
	}
	return pt, true
}

// SetPushToken replaces the stored FCM token. The token key is written
// first so a crash between the two writes never leaves the old token
// paired with the new refresh time.
func (s *Store) SetPushToken(token string) error {
	if err := s.prefs.Set(KeyFCMToken, token); err != nil {
		return err
	}
	return s.prefs.Set(KeyFCMTokenRefreshedAt, strconv.FormatInt(s.now().UnixMilli(), 10))
}

// DeviceID returns the stable per-install identifier, generating and
// persisting one on first use.
func (s *Store) DeviceID() string {
	if value, ok := s.read(KeyDeviceID); ok && value != "" {
		return value
	}
	id := uuid.NewString()
	if err := s.prefs.Set(KeyDeviceID, id); err != nil {
		s.log.Warn("device id persist failed", "error", err)
	}
	return id
}
