package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/spectra-gallery/spectra/internal/api"
	"github.com/spectra-gallery/spectra/internal/model"
	"github.com/spectra-gallery/spectra/internal/storage"
)

// fakeServer mimics auth/token, users/me and auth/register.
type fakeServer struct {
	mu       sync.Mutex
	users    map[string]string // username -> password
	tokens   map[string]string // token -> username
	meStatus int               // forced users/me status when non-zero
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		users:  map[string]string{"alice": "pw1"},
		tokens: map[string]string{},
	}
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reply := func(status int, body any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
	switch r.URL.Path {
	case "/api/v1/auth/token":
		_ = r.ParseForm()
		name := r.PostForm.Get("username")
		if pw, ok := f.users[name]; !ok || pw != r.PostForm.Get("password") {
			reply(http.StatusUnauthorized, map[string]string{"detail": "Incorrect username or password"})
			return
		}
		token := "T-" + name
		f.tokens[token] = name
		reply(http.StatusOK, map[string]string{"access_token": token, "token_type": "bearer"})
	case "/api/v1/users/me":
		if f.meStatus != 0 {
			reply(f.meStatus, map[string]string{"detail": "Could not validate credentials"})
			return
		}
		auth := r.Header.Get("Authorization")
		name, ok := f.tokens[trimBearer(auth)]
		if !ok {
			reply(http.StatusUnauthorized, map[string]string{"detail": "Could not validate credentials"})
			return
		}
		reply(http.StatusOK, model.User{ID: 1, Username: name, Role: model.RoleUser, IsActive: true})
	case "/api/v1/auth/register":
		var reg model.Registration
		_ = json.NewDecoder(r.Body).Decode(&reg)
		if _, exists := f.users[reg.Username]; exists {
			reply(http.StatusBadRequest, map[string]string{"detail": "Username already registered"})
			return
		}
		f.users[reg.Username] = reg.Password
		reply(http.StatusCreated, model.User{ID: int64(len(f.users)), Username: reg.Username, Email: reg.Email, Role: model.RoleUser})
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeServer) setMeStatus(status int) {
	f.mu.Lock()
	f.meStatus = status
	f.mu.Unlock()
}

func (f *fakeServer) issue(token, name string) {
	f.mu.Lock()
	f.tokens[token] = name
	f.mu.Unlock()
}

func trimBearer(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

func newTestStore(t *testing.T, slots storage.Store) (*Store, *fakeServer) {
	t.Helper()
	fake := newFakeServer()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	client, err := api.New(srv.URL + "/api/v1")
	if err != nil {
		t.Fatalf("api client: %v", err)
	}
	store := New(context.Background(), client, slots, nil)
	waitHydrated(t, store)
	return store, fake
}

func waitHydrated(t *testing.T, store *Store) {
	t.Helper()
	select {
	case <-store.Hydrated():
	case <-time.After(5 * time.Second):
		t.Fatalf("store did not hydrate")
	}
}

func TestLoginValidCredentials(t *testing.T) {
	slots := &storage.Memory{}
	store, _ := newTestStore(t, slots)

	if err := store.Login(context.Background(), "alice", "pw1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	st := store.State()
	if !st.IsAuthenticated || st.User == nil || st.User.Username != "alice" {
		t.Fatalf("unexpected state %+v", st)
	}
	if st.Token != "T-alice" || st.Loading || st.Error != "" {
		t.Fatalf("unexpected state %+v", st)
	}
	if stored, _ := slots.Get(storage.TokenKey); stored != st.Token {
		t.Fatalf("token slot %q does not match state token %q", stored, st.Token)
	}
}

func TestLoginInvalidCredentialsClearsSlot(t *testing.T) {
	slots := storage.NewMemory(nil)
	store, _ := newTestStore(t, slots)
	_ = slots.Set(storage.TokenKey, "leftover")

	err := store.Login(context.Background(), "alice", "wrong")
	if !errors.Is(err, api.ErrAuthenticationFailed) {
		t.Fatalf("expected authentication failure got %v", err)
	}
	st := store.State()
	if st.IsAuthenticated || st.User != nil || st.Token != "" || st.Loading {
		t.Fatalf("unexpected state %+v", st)
	}
	if st.Error != "Incorrect username or password" {
		t.Fatalf("unexpected error %q", st.Error)
	}
	if _, ok := slots.Get(storage.TokenKey); ok {
		t.Fatalf("token slot should be empty after failed login")
	}
}

func TestLoginUnreachableServerClearsSession(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL + "/api/v1"
	srv.Close()
	client, err := api.New(base)
	if err != nil {
		t.Fatalf("api client: %v", err)
	}
	slots := storage.NewMemory(nil)
	store := New(context.Background(), client, slots, nil)
	waitHydrated(t, store)
	_ = slots.Set(storage.TokenKey, "stale")

	err = store.Login(context.Background(), "alice", "pw1")
	if !errors.Is(err, api.ErrNetworkOrServer) {
		t.Fatalf("expected network error got %v", err)
	}
	st := store.State()
	if st.IsAuthenticated || st.Loading || st.User != nil || st.Token != "" {
		t.Fatalf("unexpected state %+v", st)
	}
	if st.Error == "" {
		t.Fatalf("expected an error message in state")
	}
	if _, ok := slots.Get(storage.TokenKey); ok {
		t.Fatalf("token slot should be removed after a failed login")
	}
}

func TestLoginReportsProfileFailure(t *testing.T) {
	store, fake := newTestStore(t, nil)
	fake.setMeStatus(http.StatusInternalServerError)

	err := store.Login(context.Background(), "alice", "pw1")
	if err == nil {
		t.Fatalf("expected error when profile cannot be loaded")
	}
	if store.State().IsAuthenticated {
		t.Fatalf("login error must agree with state")
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	slots := &storage.Memory{}
	store, _ := newTestStore(t, slots)
	if err := store.Login(context.Background(), "alice", "pw1"); err != nil {
		t.Fatalf("login: %v", err)
	}

	store.Logout()
	first := store.State()
	store.Logout()
	second := store.State()

	if first != (State{}) || second != (State{}) {
		t.Fatalf("expected initial state after logout got %+v / %+v", first, second)
	}
	if _, ok := slots.Get(storage.TokenKey); ok {
		t.Fatalf("token slot should be empty after logout")
	}
}

func TestFetchCurrentUserUnauthorizedEqualsLogoutPlusError(t *testing.T) {
	slots := &storage.Memory{}
	store, _ := newTestStore(t, slots)
	if err := store.Login(context.Background(), "alice", "pw1"); err != nil {
		t.Fatalf("login: %v", err)
	}

	err := store.FetchCurrentUser(context.Background(), "revoked")
	if !errors.Is(err, api.ErrSessionExpired) {
		t.Fatalf("expected session expired got %v", err)
	}
	want := State{Error: "Could not validate credentials"}
	if got := store.State(); got != want {
		t.Fatalf("expected %+v got %+v", want, got)
	}
	if _, ok := slots.Get(storage.TokenKey); ok {
		t.Fatalf("token slot should be empty after 401")
	}
}

func TestFetchCurrentUserServerErrorKeepsSession(t *testing.T) {
	store, fake := newTestStore(t, nil)
	if err := store.Login(context.Background(), "alice", "pw1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	fake.setMeStatus(http.StatusServiceUnavailable)

	if err := store.FetchCurrentUser(context.Background(), store.Token()); err == nil {
		t.Fatalf("expected error")
	}
	st := store.State()
	if !st.IsAuthenticated || st.User == nil || st.Token != "T-alice" {
		t.Fatalf("session should survive non-401 failure: %+v", st)
	}
	if st.Error == "" || st.Loading {
		t.Fatalf("expected error recorded and loading cleared: %+v", st)
	}
}

func TestFetchCurrentUserWritesTokenSlot(t *testing.T) {
	slots := &storage.Memory{}
	store, fake := newTestStore(t, slots)
	fake.issue("T-manual", "alice")

	if err := store.FetchCurrentUser(context.Background(), "T-manual"); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if stored, _ := slots.Get(storage.TokenKey); stored != "T-manual" {
		t.Fatalf("expected token slot written got %q", stored)
	}
}

func TestHydratesFromStoredToken(t *testing.T) {
	fake := newFakeServer()
	fake.issue("T-saved", "alice")
	srv := httptest.NewServer(fake)
	defer srv.Close()
	client, err := api.New(srv.URL + "/api/v1")
	if err != nil {
		t.Fatalf("api client: %v", err)
	}

	store := New(context.Background(), client, storage.NewMemory(map[string]string{storage.TokenKey: "T-saved"}), nil)
	waitHydrated(t, store)

	st := store.State()
	if !st.IsAuthenticated || st.Token != "T-saved" || st.User.Username != "alice" {
		t.Fatalf("unexpected hydrated state %+v", st)
	}
}

func TestHydrationWithRevokedTokenLogsOut(t *testing.T) {
	fake := newFakeServer()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	client, err := api.New(srv.URL + "/api/v1")
	if err != nil {
		t.Fatalf("api client: %v", err)
	}
	slots := storage.NewMemory(map[string]string{storage.TokenKey: "T-gone"})

	store := New(context.Background(), client, slots, nil)
	waitHydrated(t, store)

	if st := store.State(); st.IsAuthenticated || st.Error == "" {
		t.Fatalf("unexpected state %+v", st)
	}
	if _, ok := slots.Get(storage.TokenKey); ok {
		t.Fatalf("revoked token should be removed")
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	store, _ := newTestStore(t, nil)

	result := store.Register(context.Background(), "bob", "bob@example.com", "pw")
	if !result.Success || result.User == nil || result.User.Username != "bob" {
		t.Fatalf("unexpected result %+v", result)
	}
	if store.State().IsAuthenticated {
		t.Fatalf("register must not log in")
	}

	result = store.Register(context.Background(), "alice", "alice@example.com", "pw")
	if result.Success || result.Error != "Username already registered" {
		t.Fatalf("unexpected result %+v", result)
	}
	st := store.State()
	if st.IsAuthenticated || st.Error != "Username already registered" || st.Loading {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestRegisterLeavesSessionUntouched(t *testing.T) {
	store, _ := newTestStore(t, nil)
	if err := store.Login(context.Background(), "alice", "pw1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	before := store.State()

	_ = store.Register(context.Background(), "carol", "c@example.com", "pw")

	after := store.State()
	if after.IsAuthenticated != before.IsAuthenticated || after.User != before.User || after.Token != before.Token {
		t.Fatalf("register changed session fields: %+v -> %+v", before, after)
	}
}

func TestAuthorizedLogsOutOnUnauthorized(t *testing.T) {
	store, _ := newTestStore(t, nil)
	if err := store.Login(context.Background(), "alice", "pw1"); err != nil {
		t.Fatalf("login: %v", err)
	}

	var seen string
	err := store.Authorized(context.Background(), func(ctx context.Context, token string) error {
		seen = token
		return &api.Error{Kind: api.SessionExpired, Status: http.StatusUnauthorized, Message: "Token expired"}
	})
	if seen != "T-alice" {
		t.Fatalf("expected current token passed got %q", seen)
	}
	if !errors.Is(err, api.ErrSessionExpired) {
		t.Fatalf("expected session expired got %v", err)
	}
	if st := store.State(); st != (State{Error: "Token expired"}) {
		t.Fatalf("unexpected state %+v", st)
	}

	if err := store.Authorized(context.Background(), func(context.Context, string) error { return nil }); !errors.Is(err, api.ErrSessionExpired) {
		t.Fatalf("expected not-logged-in error got %v", err)
	}
}

func TestSubscribersSeeTransitions(t *testing.T) {
	store, _ := newTestStore(t, nil)

	var mu sync.Mutex
	var states []State
	unsubscribe := store.Subscribe(func(st State) {
		mu.Lock()
		states = append(states, st)
		mu.Unlock()
	})
	if err := store.Login(context.Background(), "alice", "pw1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	unsubscribe()
	store.Logout()

	mu.Lock()
	defer mu.Unlock()
	if len(states) < 3 {
		t.Fatalf("expected initial, loading and authenticated snapshots got %d", len(states))
	}
	if !states[1].Loading {
		t.Fatalf("expected loading snapshot second got %+v", states[1])
	}
	if last := states[len(states)-1]; !last.IsAuthenticated {
		t.Fatalf("expected authenticated last got %+v", last)
	}
}
