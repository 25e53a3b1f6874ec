package devapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/spectra-gallery/spectra/internal/model"
)

func newTestServer(t *testing.T) (*httptest.Server, *Store) {
	t.Helper()
	store := NewStore()
	store.cost = bcrypt.MinCost
	if err := Seed(store, SeedOptions{AdminUsername: "admin", AdminPassword: "admin-password"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	tokens, err := NewTokens("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	router, err := NewRouter(Options{Store: store, Tokens: tokens})
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, store
}

func login(t *testing.T, srv *httptest.Server, username, password string) string {
	t.Helper()
	resp, err := http.PostForm(srv.URL+"/api/v1/auth/token", url.Values{"username": {username}, "password": {password}})
	if err != nil {
		t.Fatalf("token request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected token status %d", resp.StatusCode)
	}
	var tok model.TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if tok.TokenType != "bearer" || tok.AccessToken == "" {
		t.Fatalf("unexpected token %+v", tok)
	}
	return tok.AccessToken
}

func doJSON(t *testing.T, method, target, token, body string) (*http.Response, string) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, target, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, string(data)
}

func TestTokenRejectsBadPassword(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.PostForm(srv.URL+"/api/v1/auth/token", url.Values{"username": {"demo"}, "password": {"nope"}})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.StatusCode)
	}
	var body map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["detail"] != "Incorrect username or password" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestUsersMeRequiresValidToken(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/v1/users/me", "garbage", "")
	if resp.StatusCode != http.StatusUnauthorized || !strings.Contains(body, "Could not validate credentials") {
		t.Fatalf("unexpected response %d %s", resp.StatusCode, body)
	}

	token := login(t, srv, "demo", "demo-password")
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/v1/users/me", token, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d %s", resp.StatusCode, body)
	}
	var user model.User
	if err := json.Unmarshal([]byte(body), &user); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if user.Username != "demo" || user.Role != model.RoleUser {
		t.Fatalf("unexpected user %+v", user)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestRegisterDuplicateAndValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/auth/register", "", `{"username":"demo","email":"other@x.io","password":"secret1"}`)
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(body, "Username already registered") {
		t.Fatalf("unexpected response %d %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/v1/auth/register", "", `{"username":"zed","email":"nope","password":"secret1"}`)
	if resp.StatusCode != http.StatusUnprocessableEntity || !strings.Contains(body, "valid email") {
		t.Fatalf("unexpected response %d %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/v1/auth/register", "", `{"username":"zed","email":"zed@x.io","password":"secret1"}`)
	if resp.StatusCode != http.StatusCreated || !strings.Contains(body, `"username":"zed"`) {
		t.Fatalf("unexpected response %d %s", resp.StatusCode, body)
	}
}

func TestListPostsFiltersByTags(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/v1/posts/?tags=sunset,sea", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	var page model.PostPage
	if err := json.Unmarshal([]byte(body), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.TotalItems != 1 || page.Data[0].Filename != "harbour.jpg" {
		t.Fatalf("unexpected page %+v", page)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/posts/?sort_by=size", "", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad sort got %d", resp.StatusCode)
	}
}

func TestVoteTogglesOff(t *testing.T) {
	srv, _ := newTestServer(t)
	token := login(t, srv, "demo", "demo-password")

	for i, want := range []model.VoteResult{{Upvotes: 1, UserVote: 1}, {}} {
		resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/votes/", token, `{"post_id":1,"vote_type":1}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("vote %d: status %d %s", i, resp.StatusCode, body)
		}
		var got model.VoteResult
		_ = json.Unmarshal([]byte(body), &got)
		if got != want {
			t.Fatalf("vote %d: expected %+v got %+v", i, want, got)
		}
	}

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/votes/", token, `{"post_id":1,"comment_id":2,"vote_type":1}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for two targets got %d", resp.StatusCode)
	}
}

func TestCommentsRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)
	token := login(t, srv, "demo", "demo-password")

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/posts/2/comments/", "", `{"content":"hello"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous comment should be rejected got %d %s", resp.StatusCode, body)
	}
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/v1/posts/2/comments/", token, `{"content":"hello"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status %d %s", resp.StatusCode, body)
	}
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/v1/posts/2/comments/", "", "")
	var comments []model.Comment
	if err := json.Unmarshal([]byte(body), &comments); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != http.StatusOK || len(comments) != 1 || comments[0].Author() != "demo" {
		t.Fatalf("unexpected comments %d %+v", resp.StatusCode, comments)
	}
}

func TestAdminRequiresModerator(t *testing.T) {
	srv, store := newTestServer(t)
	userToken := login(t, srv, "demo", "demo-password")
	adminToken := login(t, srv, "admin", "admin-password")

	resp, _ := doJSON(t, http.MethodDelete, srv.URL+"/api/v1/admin/images/1", userToken, "")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/admin/images/1", adminToken, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", resp.StatusCode)
	}
	if _, err := store.Post(1, 0); err == nil {
		t.Fatalf("post should be gone")
	}
	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/admin/images/1", adminToken, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for repeated delete got %d", resp.StatusCode)
	}
}

func TestThemeConfigAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/v1/theme-config", "", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"site":{"default_theme":"dark"}`) {
		t.Fatalf("unexpected theme config %d %s", resp.StatusCode, body)
	}
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/metrics", "", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "spectra_devapi_requests_total") {
		t.Fatalf("metrics missing request counter: %s", body)
	}
}

func TestTokensRejectExpiredAndForeign(t *testing.T) {
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tokens, _ := NewTokens("one", time.Minute)
	tokens.now = func() time.Time { return issued }
	raw, err := tokens.Issue("demo")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if sub, err := tokens.Subject(raw); err != nil || sub != "demo" {
		t.Fatalf("expected valid token got %q %v", sub, err)
	}

	tokens.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if _, err := tokens.Subject(raw); err == nil {
		t.Fatalf("expected expired token to fail")
	}

	other, _ := NewTokens("two", time.Minute)
	other.now = func() time.Time { return issued }
	if _, err := other.Subject(raw); err == nil {
		t.Fatalf("expected foreign signature to fail")
	}
}
