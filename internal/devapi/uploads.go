package devapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/spectra-gallery/spectra/internal/model"
)

const (
	maxUploadBytes = 10 << 20
	maxTitleLen    = 255
	maxTagsLen     = 1000
	// maxFormBytes bounds a whole multipart request, batch uploads included.
	maxFormBytes = 64 << 20
)

var allowedMimetypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

var errUploadTooLarge = errors.New("file too large")

func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondDetail(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	title := strings.TrimSpace(r.FormValue("title"))
	tagsStr := r.FormValue("tags_str")
	if len(tagsStr) > maxTagsLen {
		respondDetail(w, http.StatusRequestEntityTooLarge, "Tags string too long.")
		return
	}
	if len(title) > maxTitleLen {
		respondDetail(w, http.StatusRequestEntityTooLarge, "Title too long. Maximum 255 characters.")
		return
	}
	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		respondValidation(w, []fieldError{{Loc: []any{"body", "file"}, Msg: "Field required", Type: "missing"}})
		return
	}

	in, err := readUpload(files[0])
	if errors.Is(err, errUploadTooLarge) {
		respondDetail(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File too large. Max size: %dMB", maxUploadBytes>>20))
		return
	}
	if err != nil {
		respondDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	in.Title = title
	in.Description = strings.TrimSpace(r.FormValue("description"))
	in.Tags = splitTags(tagsStr)

	user, _ := currentUser(r)
	post := s.store.CreatePost(user, in)
	s.logger.Info(category, "post uploaded", map[string]any{"post_id": post.ID, "by": user.Username, "filesize": post.Filesize})
	respondJSON(w, http.StatusCreated, post)
}

func (s *server) handleBatchUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondDetail(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		respondDetail(w, http.StatusBadRequest, "No files provided.")
		return
	}
	tagsStr := r.FormValue("tags_str")
	if len(tagsStr) > maxTagsLen {
		respondDetail(w, http.StatusRequestEntityTooLarge, "Tags string too long.")
		return
	}
	tags := splitTags(tagsStr)

	user, _ := currentUser(r)
	result := model.BatchUploadResult{Successful: []model.Post{}, Failed: []model.UploadFailure{}}
	for _, fh := range files {
		in, err := readUpload(fh)
		if err != nil {
			result.Failed = append(result.Failed, model.UploadFailure{Filename: fh.Filename, Error: err.Error()})
			continue
		}
		in.Tags = tags
		result.Successful = append(result.Successful, s.store.CreatePost(user, in))
	}
	s.logger.Info(category, "batch upload", map[string]any{"by": user.Username, "successful": len(result.Successful), "failed": len(result.Failed)})

	status := http.StatusCreated
	if len(result.Failed) > 0 {
		status = http.StatusMultiStatus
	}
	respondJSON(w, status, result)
}

func (s *server) handleBatchTags(w http.ResponseWriter, r *http.Request) {
	var req model.BatchTagRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		respondDetail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.PostIDs) == 0 {
		respondValidation(w, []fieldError{{Loc: []any{"body", "post_ids"}, Msg: "List should have at least 1 item", Type: "too_short"}})
		return
	}
	if len(req.Tags) == 0 && req.Action != TagSet {
		respondValidation(w, []fieldError{{Loc: []any{"body", "tags"}, Msg: "Tags are required for add and remove", Type: "too_short"}})
		return
	}
	updated, err := s.store.RetagPosts(req.PostIDs, req.Tags, req.Action)
	if err != nil {
		respondValidation(w, []fieldError{{Loc: []any{"body", "action"}, Msg: err.Error(), Type: "enum"}})
		return
	}
	user, _ := currentUser(r)
	s.logger.Info(category, "batch tags", map[string]any{"by": user.Username, "action": req.Action, "updated": updated})
	respondJSON(w, http.StatusOK, model.BatchTagResult{
		Message:           fmt.Sprintf("Tags %s applied.", req.Action),
		UpdatedPostsCount: updated,
	})
}

// readUpload checks an uploaded file's size and sniffed content type and
// returns the stored name for it.
func readUpload(fh *multipart.FileHeader) (PostInput, error) {
	if fh.Size > maxUploadBytes {
		return PostInput{}, errUploadTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return PostInput{}, fmt.Errorf("could not read file: %w", err)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return PostInput{}, fmt.Errorf("could not read file: %w", err)
	}
	mimetype := http.DetectContentType(head[:n])
	ext, ok := allowedMimetypes[mimetype]
	if !ok {
		return PostInput{}, fmt.Errorf("invalid image type (content: %s)", mimetype)
	}
	if orig := strings.ToLower(filepath.Ext(fh.Filename)); (orig == ".jpeg" && ext == ".jpg") || orig == ext {
		ext = orig
	}
	return PostInput{Filename: uuid.NewString() + ext, Filesize: fh.Size}, nil
}

func splitTags(raw string) []string {
	var tags []string
	for _, part := range strings.Split(raw, ",") {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
