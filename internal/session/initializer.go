// Package session decides the initial navigation branch at boot from
// local state only, then refreshes the profile off the critical path.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"storefront-core/internal/api"
	"storefront-core/internal/model"
)

// Phase is the initializer lifecycle. There is no transition back to
// PhaseInitializing short of a process restart.
type Phase int32

const (
	PhaseUninitialized Phase = iota
	PhaseInitializing
	PhaseReady
)

// Credentials is the token-store surface the initializer reads.
type Credentials interface {
	Token() string
	IsValid() bool
	CachedProfile() *model.UserRecord
	OnboardingCompleted() *bool
	SaveProfile(model.UserRecord) error
	ClearAll() error
}

// ProfileFetcher fetches the canonical profile from the backend.
// Satisfied by *api.Client.
type ProfileFetcher interface {
	Profile(ctx context.Context, token string) (model.UserRecord, error)
}

// StateSink is the slice of the application state store the initializer
// mutates.
type StateSink interface {
	SetAuthSnapshot(model.AuthSession)
	SetUserProfile(*model.UserRecord)
	ClearAuthSnapshot()
}

type Initializer struct {
	creds   Credentials
	fetcher ProfileFetcher
	state   StateSink
	log     *slog.Logger

	phase    atomic.Int32
	initOnce sync.Once
	snapshot model.SessionSnapshot

	// refreshDone closes when the background refresh finishes. Tests
	// wait on it; production callers don't have to.
	refreshDone chan struct{}
	refreshOnce sync.Once
}

func NewInitializer(creds Credentials, fetcher ProfileFetcher, state StateSink) *Initializer {
	return &Initializer{
		creds:       creds,
		fetcher:     fetcher,
		state:       state,
		log:         slog.Default(),
		refreshDone: make(chan struct{}),
	}
}

// Phase returns the current lifecycle phase.
func (i *Initializer) Phase() Phase {
	return Phase(i.phase.Load())
}

// Initialize computes the boot snapshot from local storage alone and
// never blocks on the network. It never fails: any read problem
// degrades to a conservative logged-out snapshot. Calling it again
// after the first completion returns the original snapshot.
func (i *Initializer) Initialize(ctx context.Context) model.SessionSnapshot {
	i.initOnce.Do(func() { i.initialize(ctx) })
	return i.snapshot
}

func (i *Initializer) initialize(ctx context.Context) {
	i.phase.Store(int32(PhaseInitializing))

	var (
		onboarding *bool
		loggedIn   bool
		tokenValue string
		profile    *model.UserRecord
	)

	// The three reads have no ordering dependency.
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		onboarding = i.creds.OnboardingCompleted()
	}()
	go func() {
		defer wg.Done()
		tokenValue = i.creds.Token()
		loggedIn = tokenValue != "" && i.creds.IsValid()
	}()
	go func() {
		defer wg.Done()
		profile = i.creds.CachedProfile()
	}()
	wg.Wait()

	if !loggedIn {
		profile = nil
	}

	i.snapshot = model.SessionSnapshot{
		HasCompletedOnboarding: onboarding,
		IsLoggedIn:             loggedIn,
		UserProfile:            profile,
	}
	i.state.SetAuthSnapshot(model.AuthSession{
		AuthToken:              tokenValue,
		IsLoggedIn:             loggedIn,
		UserProfile:            profile,
		HasCompletedOnboarding: onboarding,
	})
	i.phase.Store(int32(PhaseReady))

	if loggedIn {
		go i.refreshProfile(ctx, tokenValue)
	} else {
		close(i.refreshDone)
	}
}

// RefreshDone closes once the background profile refresh has finished
// (or was skipped). Exposed for callers that need to sequence behind it.
func (i *Initializer) RefreshDone() <-chan struct{} {
	return i.refreshDone
}

// refreshProfile re-fetches the canonical profile and overwrites the
// cache on success. A network failure keeps the cached profile; only an
// explicit token rejection tears the session down. No timeout is
// applied, matching the legacy client.
func (i *Initializer) refreshProfile(ctx context.Context, tokenValue string) {
	defer i.refreshOnce.Do(func() { close(i.refreshDone) })

	profile, err := i.fetcher.Profile(ctx, tokenValue)
	if err != nil {
		if errors.Is(err, api.ErrTokenRejected) {
			i.log.Info("stored token rejected by backend, logging out")
			if clearErr := i.creds.ClearAll(); clearErr != nil {
				i.log.Warn("credential clear failed during forced logout", "error", clearErr)
			}
			i.state.ClearAuthSnapshot()
			return
		}
		i.log.Debug("background profile refresh failed, keeping cached profile", "error", err)
		return
	}

	if err := i.creds.SaveProfile(profile); err != nil {
		i.log.Warn("profile cache write failed", "error", err)
	}
	i.state.SetUserProfile(&profile)
}

// Branch is the navigation branch the UI router picks from a snapshot.
type Branch string

const (
	BranchOnboarding Branch = "onboarding"
	BranchAuth       Branch = "auth"
	BranchMain       Branch = "main"
)

// PickBranch maps a snapshot to the initial navigation branch:
// onboarding until the intro screens were shown, then auth until a
// valid token exists, then main.
func PickBranch(snapshot model.SessionSnapshot) Branch {
	if snapshot.HasCompletedOnboarding == nil || !*snapshot.HasCompletedOnboarding {
		return BranchOnboarding
	}
	if !snapshot.IsLoggedIn {
		return BranchAuth
	}
	return BranchMain
}
