// Package session owns the authentication lifecycle: the bearer token, the
// resolved user profile and the loading and error flags shown by the UI.
package session

import (
	"context"
	"errors"
	"strings"

	"github.com/spectra-gallery/spectra/internal/api"
	"github.com/spectra-gallery/spectra/internal/model"
	"github.com/spectra-gallery/spectra/internal/reactive"
	"github.com/spectra-gallery/spectra/internal/storage"
	"github.com/spectra-gallery/spectra/logging"
)

const category = "session"

// State is a snapshot of the session. IsAuthenticated implies User is set and
// Token matches the persisted token slot.
type State struct {
	IsAuthenticated bool
	User            *model.User
	Token           string
	Error           string
	Loading         bool
}

// RegisterResult is the outcome of Register. User is set on success, Error otherwise.
type RegisterResult struct {
	Success bool
	User    *model.User
	Error   string
}

// Authenticator is the subset of the API client the store depends on.
type Authenticator interface {
	IssueToken(ctx context.Context, username, password string) (model.TokenResponse, error)
	CurrentUser(ctx context.Context, token string) (model.User, error)
	Register(ctx context.Context, reg model.Registration) (model.User, error)
}

// Store holds the session state and persists the token in the slots store.
type Store struct {
	auth     Authenticator
	slots    storage.Store
	logger   *logging.Logger
	state    *reactive.Value[State]
	hydrated chan struct{}
}

// New builds a store. When the token slot already holds a token, a silent
// profile refresh starts in the background; Hydrated is closed once it ends.
func New(ctx context.Context, auth Authenticator, slots storage.Store, logger *logging.Logger) *Store {
	if slots == nil {
		slots = &storage.Memory{}
	}
	s := &Store{
		auth:     auth,
		slots:    slots,
		logger:   logger,
		state:    reactive.NewValue(State{}),
		hydrated: make(chan struct{}),
	}

	token, ok := slots.Get(storage.TokenKey)
	if !ok || strings.TrimSpace(token) == "" {
		close(s.hydrated)
		return s
	}
	s.state.Update(func(st State) State {
		st.Loading = true
		return st
	})
	go func() {
		defer close(s.hydrated)
		if err := s.FetchCurrentUser(ctx, token); err != nil {
			s.logger.Warn(category, "stored token could not be restored", map[string]any{"error": err.Error()})
		}
	}()
	return s
}

// Hydrated is closed when the startup profile refresh has finished, or
// immediately when there was no stored token.
func (s *Store) Hydrated() <-chan struct{} {
	return s.hydrated
}

// State returns the current snapshot.
func (s *Store) State() State {
	return s.state.Get()
}

// Subscribe calls fn with the current state and after every change.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	return s.state.Subscribe(fn)
}

// Token returns the active bearer token, or "" when logged out.
func (s *Store) Token() string {
	return s.state.Get().Token
}

// Login exchanges credentials for a token, persists it and loads the profile.
// The returned error is nil exactly when the session ends up authenticated.
func (s *Store) Login(ctx context.Context, username, password string) error {
	s.begin()

	tok, err := s.auth.IssueToken(ctx, username, password)
	if err == nil && tok.AccessToken == "" {
		err = &api.Error{Kind: api.AuthenticationFailed, Op: "token", Message: "Access token not found in response."}
	}
	if err != nil {
		s.failLogin(err)
		return err
	}

	if err := s.slots.Set(storage.TokenKey, tok.AccessToken); err != nil {
		s.logger.Error(category, "persist token", err, nil)
	}
	s.logger.Info(category, "token issued", map[string]any{"username": username})

	if err := s.FetchCurrentUser(ctx, tok.AccessToken); err != nil {
		return err
	}
	if !s.state.Get().IsAuthenticated {
		return errors.New("session: login did not authenticate")
	}
	return nil
}

func (s *Store) failLogin(err error) {
	if removeErr := s.slots.Remove(storage.TokenKey); removeErr != nil {
		s.logger.Error(category, "remove token", removeErr, nil)
	}
	s.state.Update(func(st State) State {
		st.IsAuthenticated = false
		st.User = nil
		st.Token = ""
		st.Error = errorMessage(err)
		st.Loading = false
		return st
	})
	s.logger.Warn(category, "login failed", map[string]any{"error": errorMessage(err), "kind": api.KindOf(err).String()})
}

// Register creates an account. It never logs in; only Loading and Error change.
func (s *Store) Register(ctx context.Context, username, email, password string) RegisterResult {
	s.begin()

	user, err := s.auth.Register(ctx, model.Registration{Username: username, Email: email, Password: password})
	if err != nil {
		msg := errorMessage(err)
		s.state.Update(func(st State) State {
			st.Error = msg
			st.Loading = false
			return st
		})
		s.logger.Warn(category, "registration failed", map[string]any{"username": username, "error": msg})
		return RegisterResult{Error: msg}
	}

	s.state.Update(func(st State) State {
		st.Error = ""
		st.Loading = false
		return st
	})
	s.logger.Info(category, "account registered", map[string]any{"username": user.Username})
	return RegisterResult{Success: true, User: &user}
}

// Logout clears the token slot and resets the state. It is idempotent.
func (s *Store) Logout() {
	if err := s.slots.Remove(storage.TokenKey); err != nil {
		s.logger.Error(category, "remove token", err, nil)
	}
	wasAuthenticated := false
	s.state.Update(func(st State) State {
		wasAuthenticated = st.IsAuthenticated
		return State{}
	})
	if wasAuthenticated {
		s.logger.Info(category, "logged out", nil)
	}
}

// FetchCurrentUser resolves the profile behind token. A 401 logs out and then
// records the error; any other failure only records the error.
func (s *Store) FetchCurrentUser(ctx context.Context, token string) error {
	s.begin()

	user, err := s.auth.CurrentUser(ctx, token)
	if err != nil {
		if api.IsUnauthorized(err) {
			s.Logout()
			s.logger.Warn(category, "session expired", nil)
		}
		msg := errorMessage(err)
		s.state.Update(func(st State) State {
			st.Error = msg
			st.Loading = false
			return st
		})
		return err
	}

	if stored, ok := s.slots.Get(storage.TokenKey); !ok || stored != token {
		if err := s.slots.Set(storage.TokenKey, token); err != nil {
			s.logger.Error(category, "persist token", err, nil)
		}
	}
	s.state.Set(State{IsAuthenticated: true, User: &user, Token: token})
	s.logger.Debug(category, "profile loaded", map[string]any{"user_id": user.ID, "role": string(user.Role)})
	return nil
}

// Authorized runs fn with the current token. A 401 from fn ends the session the
// same way an expired profile refresh does.
func (s *Store) Authorized(ctx context.Context, fn func(ctx context.Context, token string) error) error {
	token := s.Token()
	if token == "" {
		return &api.Error{Kind: api.SessionExpired, Op: "authorize", Message: "Not logged in."}
	}
	err := fn(ctx, token)
	if err != nil && api.IsUnauthorized(err) {
		s.Logout()
		msg := errorMessage(err)
		s.state.Update(func(st State) State {
			st.Error = msg
			return st
		})
	}
	return err
}

func (s *Store) begin() {
	s.state.Update(func(st State) State {
		st.Loading = true
		st.Error = ""
		return st
	})
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return "An unknown error occurred."
}
