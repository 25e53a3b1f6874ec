package devapi

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/spectra-gallery/spectra/internal/model"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type formFile struct {
	field, name string
	content     []byte
}

func postMultipart(t *testing.T, target, token string, fields map[string]string, files ...formFile) (*http.Response, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(f.field, f.name)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		_, _ = part.Write(f.content)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, target, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, string(data)
}

func TestUploadCreatesTaggedPost(t *testing.T) {
	srv, store := newTestServer(t)
	token := login(t, srv, "demo", "demo-password")
	fields := map[string]string{"title": "Tiny", "description": "one pixel", "tags_str": "Pixel, test"}

	resp, _ := postMultipart(t, srv.URL+"/api/v1/posts/", "", fields, formFile{"file", "tiny.png", pngHeader})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous upload should be rejected got %d", resp.StatusCode)
	}

	resp, body := postMultipart(t, srv.URL+"/api/v1/posts/", token, fields, formFile{"file", "tiny.png", pngHeader})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status %d %s", resp.StatusCode, body)
	}
	var post model.Post
	if err := json.Unmarshal([]byte(body), &post); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if post.Title != "Tiny" || post.Description != "one pixel" || post.Mimetype != "image/png" {
		t.Fatalf("unexpected post %+v", post)
	}
	if !strings.HasSuffix(post.Filename, ".png") || post.Filename == "tiny.png" {
		t.Fatalf("expected a generated png filename, got %q", post.Filename)
	}
	if got := strings.Join(post.TagNames(), ","); got != "pixel,test" {
		t.Fatalf("unexpected tags %q", got)
	}
	if post.Uploader == nil || post.Uploader.Username != "demo" {
		t.Fatalf("unexpected uploader %+v", post.Uploader)
	}
	if _, err := store.Post(post.ID, 0); err != nil {
		t.Fatalf("post not stored: %v", err)
	}

	resp, body = postMultipart(t, srv.URL+"/api/v1/posts/", token, nil, formFile{"file", "notes.png", []byte("just text")})
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(body, "invalid image type") {
		t.Fatalf("expected content sniffing to reject text, got %d %s", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/posts/", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("listing broke after adding the upload route: %d", resp.StatusCode)
	}
}

func TestBatchUploadReportsPerFileFailures(t *testing.T) {
	srv, _ := newTestServer(t)
	userToken := login(t, srv, "demo", "demo-password")
	adminToken := login(t, srv, "admin", "admin-password")
	good := formFile{"files", "a.png", pngHeader}
	bad := formFile{"files", "b.txt", []byte("plain")}

	resp, _ := postMultipart(t, srv.URL+"/api/v1/admin/posts/batch-upload", userToken, nil, good)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for regular user got %d", resp.StatusCode)
	}

	resp, body := postMultipart(t, srv.URL+"/api/v1/admin/posts/batch-upload", adminToken, map[string]string{"tags_str": "batch"}, good, bad)
	if resp.StatusCode != http.StatusMultiStatus {
		t.Fatalf("expected 207 got %d %s", resp.StatusCode, body)
	}
	var result model.BatchUploadResult
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Successful) != 1 || len(result.Failed) != 1 || result.Failed[0].Filename != "b.txt" {
		t.Fatalf("unexpected result %+v", result)
	}
	if tags := result.Successful[0].TagNames(); len(tags) != 1 || tags[0] != "batch" {
		t.Fatalf("batch tags not applied: %v", tags)
	}

	resp, _ = postMultipart(t, srv.URL+"/api/v1/admin/posts/batch-upload", adminToken, nil, good)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 when every file succeeds got %d", resp.StatusCode)
	}
}

func TestBatchTagsAddRemoveSet(t *testing.T) {
	srv, store := newTestServer(t)
	adminToken := login(t, srv, "admin", "admin-password")
	target := srv.URL + "/api/v1/admin/posts/batch-tags"

	resp, body := doJSON(t, http.MethodPut, target, adminToken, `{"post_ids":[1,2,999],"tags":["Featured"],"action":"add"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add: %d %s", resp.StatusCode, body)
	}
	var result model.BatchTagResult
	_ = json.Unmarshal([]byte(body), &result)
	if result.UpdatedPostsCount != 2 {
		t.Fatalf("expected 2 updated posts, got %+v", result)
	}
	post, _ := store.Post(1, 0)
	if names := strings.Join(post.TagNames(), ","); !strings.HasSuffix(names, ",featured") {
		t.Fatalf("featured not added: %s", names)
	}

	resp, body = doJSON(t, http.MethodPut, target, adminToken, `{"post_ids":[1],"tags":["featured","sea"],"action":"remove"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("remove: %d %s", resp.StatusCode, body)
	}
	post, _ = store.Post(1, 0)
	if names := strings.Join(post.TagNames(), ","); names != "sunset,city" {
		t.Fatalf("unexpected tags after remove: %s", names)
	}

	resp, _ = doJSON(t, http.MethodPut, target, adminToken, `{"post_ids":[1],"tags":[],"action":"set"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set to empty: %d", resp.StatusCode)
	}
	post, _ = store.Post(1, 0)
	if len(post.Tags) != 0 {
		t.Fatalf("set with no tags should clear them, got %v", post.TagNames())
	}

	resp, _ = doJSON(t, http.MethodPut, target, adminToken, `{"post_ids":[1],"tags":["x"],"action":"rename"}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown action got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPut, target, adminToken, `{"post_ids":[],"tags":["x"],"action":"add"}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty post_ids got %d", resp.StatusCode)
	}
}
