package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spectra-gallery/spectra/internal/devapi"
)

type harness struct {
	api   string
	state string
}

func newHarness(t *testing.T) harness {
	t.Helper()
	store := devapi.NewStore()
	if err := devapi.Seed(store, devapi.SeedOptions{AdminUsername: "admin", AdminPassword: "admin-password"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	tokens, err := devapi.NewTokens("cli-test-secret", time.Hour)
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	router, err := devapi.NewRouter(devapi.Options{Store: store, Tokens: tokens, Themes: devapi.DefaultThemes("dark")})
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return harness{api: srv.URL + "/api/v1", state: filepath.Join(t.TempDir(), "state.json")}
}

func (h harness) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--api", h.api, "--state", h.state, "--log-level", "ERROR"}, args...))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestLoginWhoamiLogout(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "", "whoami")
	if err != nil || !strings.Contains(out, "Not logged in") {
		t.Fatalf("whoami before login = %q, %v", out, err)
	}

	out, err = h.run(t, "demo-password\n", "login", "demo")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(out, "Logged in as demo (user)") {
		t.Fatalf("unexpected login output %q", out)
	}

	out, err = h.run(t, "", "whoami")
	if err != nil {
		t.Fatalf("whoami: %v", err)
	}
	if !strings.Contains(out, "demo <demo@spectra.local>") || !strings.Contains(out, "role: user") {
		t.Fatalf("unexpected whoami output %q", out)
	}

	if _, err := h.run(t, "", "logout"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	out, err = h.run(t, "", "whoami")
	if err != nil || !strings.Contains(out, "Not logged in") {
		t.Fatalf("whoami after logout = %q, %v", out, err)
	}
}

func TestLoginRejected(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "", "login", "demo", "-p", "wrong")
	if err == nil {
		t.Fatal("expected login to fail")
	}
	if !strings.Contains(err.Error(), "Incorrect username or password") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestAuthenticatedCommandsNeedLogin(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "", "vote", "up", "--post", "1")
	if err == nil || !strings.Contains(err.Error(), "not logged in") {
		t.Fatalf("expected not logged in error, got %v", err)
	}
}

func TestPostsAndTags(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "", "posts", "list", "--tags", "sunset")
	if err != nil {
		t.Fatalf("posts list: %v", err)
	}
	if !strings.Contains(out, "Harbour at dusk") || !strings.Contains(out, "Dune ridge") || strings.Contains(out, "Fern macro") {
		t.Fatalf("unexpected posts output %q", out)
	}
	if !strings.Contains(out, "(2 posts)") {
		t.Fatalf("missing page footer in %q", out)
	}

	out, err = h.run(t, "", "tags")
	if err != nil {
		t.Fatalf("tags: %v", err)
	}
	if !strings.Contains(out, "TAG") || !strings.Contains(out, "city") {
		t.Fatalf("unexpected tags output %q", out)
	}

	out, err = h.run(t, "", "posts", "show", "1")
	if err != nil {
		t.Fatalf("posts show: %v", err)
	}
	if !strings.Contains(out, "#1 Harbour at dusk") || !strings.Contains(out, "tags: sunset, sea, city") {
		t.Fatalf("unexpected show output %q", out)
	}
}

func TestCommentAndVote(t *testing.T) {
	h := newHarness(t)
	if _, err := h.run(t, "", "login", "demo", "-p", "demo-password"); err != nil {
		t.Fatalf("login: %v", err)
	}

	out, err := h.run(t, "", "comments", "add", "2", "lovely", "light")
	if err != nil {
		t.Fatalf("comments add: %v", err)
	}
	if !strings.Contains(out, "added to post 2") {
		t.Fatalf("unexpected add output %q", out)
	}
	out, err = h.run(t, "", "comments", "list", "2")
	if err != nil {
		t.Fatalf("comments list: %v", err)
	}
	if !strings.Contains(out, "demo (+0): lovely light") {
		t.Fatalf("unexpected comments output %q", out)
	}

	out, err = h.run(t, "", "vote", "up", "--post", "2")
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if !strings.Contains(out, "▲ 1") || !strings.Contains(out, "your vote: up") {
		t.Fatalf("unexpected vote output %q", out)
	}
	out, err = h.run(t, "", "vote", "up", "--post", "2")
	if err != nil {
		t.Fatalf("second vote: %v", err)
	}
	if !strings.Contains(out, "▲ 0") || !strings.Contains(out, "your vote: none") {
		t.Fatalf("repeated vote should remove it, got %q", out)
	}
}

func TestAdminRequiresModerator(t *testing.T) {
	h := newHarness(t)
	if _, err := h.run(t, "", "login", "demo", "-p", "demo-password"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := h.run(t, "", "admin", "delete", "1"); err == nil {
		t.Fatal("expected forbidden error for a regular user")
	}

	if _, err := h.run(t, "", "login", "admin", "-p", "admin-password"); err != nil {
		t.Fatalf("admin login: %v", err)
	}
	out, err := h.run(t, "", "admin", "delete", "1")
	if err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if !strings.Contains(out, "Deleted post 1") {
		t.Fatalf("unexpected delete output %q", out)
	}
	out, err = h.run(t, "", "admin", "posts")
	if err != nil {
		t.Fatalf("admin posts: %v", err)
	}
	if strings.Contains(out, "Harbour at dusk") {
		t.Fatalf("deleted post still listed: %q", out)
	}
}

func TestThemeRenderAndToggle(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "<html><head><title>x</title></head><body></body></html>", "theme", "render", "--in", "-")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, `data-theme="dark"`) {
		t.Fatalf("missing theme attribute in %q", out)
	}
	if !strings.Contains(out, `<style id="dynamic-theme-styles">`) || !strings.Contains(out, "--bg-color: #121212;") {
		t.Fatalf("missing palette rule in %q", out)
	}

	out, err = h.run(t, "", "theme", "toggle")
	if err != nil || strings.TrimSpace(out) != "theme: light" {
		t.Fatalf("toggle = %q, %v", out, err)
	}
	out, err = h.run(t, "", "theme", "show")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "theme: light") || !strings.Contains(out, "--bg-color: #ffffff;") {
		t.Fatalf("toggle was not persisted: %q", out)
	}
}

func TestVerboseTracesSessionActivity(t *testing.T) {
	h := newHarness(t)
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"--api", h.api, "--state", h.state, "--log-level", "ERROR", "-v", "login", "demo", "-p", "demo-password"})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := cmd.ExecuteContext(ctx); err != nil {
		t.Fatalf("login: %v", err)
	}

	trace := errOut.String()
	if !strings.Contains(trace, "session token issued username=demo") {
		t.Fatalf("expected session trace, got %q", trace)
	}
	if !strings.Contains(trace, "POST /api/v1/auth/token 200") {
		t.Fatalf("expected http trace, got %q", trace)
	}
	if strings.Contains(trace, "demo-password") || strings.Contains(trace, `"category"`) {
		t.Fatalf("trace leaked secrets or JSON: %q", trace)
	}
}

func writeImage(t *testing.T, name string, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const pngBytes = "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00"

func TestUploadAndBatchModeration(t *testing.T) {
	h := newHarness(t)
	photo := writeImage(t, "pier.png", pngBytes)

	if _, err := h.run(t, "", "posts", "upload", photo); err == nil || !strings.Contains(err.Error(), "not logged in") {
		t.Fatalf("expected upload to need a login, got %v", err)
	}

	if _, err := h.run(t, "", "login", "demo", "-p", "demo-password"); err != nil {
		t.Fatalf("login: %v", err)
	}
	out, err := h.run(t, "", "posts", "upload", photo, "--title", "Pier", "--tags", "sea, night")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.Contains(out, "Pier") || !strings.Contains(out, "tags: sea, night") || !strings.Contains(out, "uploaded by demo") {
		t.Fatalf("unexpected upload output %q", out)
	}
	if _, err := h.run(t, "", "admin", "batch-tags", "1", "--tags", "x"); err == nil {
		t.Fatal("expected batch tags to be forbidden for a regular user")
	}

	if _, err := h.run(t, "", "login", "admin", "-p", "admin-password"); err != nil {
		t.Fatalf("admin login: %v", err)
	}
	notes := writeImage(t, "notes.txt", "plain text")
	out, err = h.run(t, "", "admin", "batch-upload", photo, notes, "--tags", "bulk")
	if err != nil {
		t.Fatalf("batch upload: %v", err)
	}
	if !strings.Contains(out, "Uploaded 1 of 2 files") || !strings.Contains(out, "failed notes.txt: invalid image type") {
		t.Fatalf("unexpected batch upload output %q", out)
	}

	out, err = h.run(t, "", "admin", "batch-tags", "1", "2", "--tags", "featured")
	if err != nil {
		t.Fatalf("batch tags: %v", err)
	}
	if !strings.Contains(out, "Updated 2 posts") {
		t.Fatalf("unexpected batch tags output %q", out)
	}
	out, err = h.run(t, "", "posts", "list", "--tags", "featured")
	if err != nil || !strings.Contains(out, "(2 posts)") {
		t.Fatalf("featured listing = %q, %v", out, err)
	}
}
