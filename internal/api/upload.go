package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/spectra-gallery/spectra/internal/model"
)

// Upload is one file sent to an upload endpoint.
type Upload struct {
	Filename string
	Content  io.Reader
}

// NewPost carries the optional fields of a single upload.
type NewPost struct {
	Title       string
	Description string
	Tags        []string
}

// Tag actions for AdminBatchTags.
const (
	TagsAdd    = "add"
	TagsRemove = "remove"
	TagsSet    = "set"
)

// CreatePost uploads an image as a new post owned by the token's user.
func (c *Client) CreatePost(ctx context.Context, token string, file Upload, post NewPost) (model.Post, error) {
	const op = "create_post"
	if strings.TrimSpace(file.Filename) == "" || file.Content == nil {
		return model.Post{}, &Error{Kind: ValidationFailed, Op: op, Message: "a file is required"}
	}
	fields := map[string]string{}
	if title := strings.TrimSpace(post.Title); title != "" {
		fields["title"] = title
	}
	if desc := strings.TrimSpace(post.Description); desc != "" {
		fields["description"] = desc
	}
	if tags := joinTags(post.Tags); tags != "" {
		fields["tags_str"] = tags
	}
	body, contentType, err := encodeMultipart(fields, "file", []Upload{file})
	if err != nil {
		return model.Post{}, &Error{Kind: ValidationFailed, Op: op, Message: "could not read file", Err: err}
	}

	var created model.Post
	err = c.do(ctx, request{op: op, method: http.MethodPost, path: "posts/", token: token, body: body, contentType: contentType}, &created)
	return created, err
}

// AdminBatchUpload uploads several images at once, applying tags to each.
// A partial failure still returns a result; its Failed list names the
// rejected files.
func (c *Client) AdminBatchUpload(ctx context.Context, token string, files []Upload, tags []string) (model.BatchUploadResult, error) {
	const op = "admin_batch_upload"
	if len(files) == 0 {
		return model.BatchUploadResult{}, &Error{Kind: ValidationFailed, Op: op, Message: "no files to upload"}
	}
	fields := map[string]string{}
	if joined := joinTags(tags); joined != "" {
		fields["tags_str"] = joined
	}
	body, contentType, err := encodeMultipart(fields, "files", files)
	if err != nil {
		return model.BatchUploadResult{}, &Error{Kind: ValidationFailed, Op: op, Message: "could not read file", Err: err}
	}

	var result model.BatchUploadResult
	err = c.do(ctx, request{op: op, method: http.MethodPost, path: "admin/posts/batch-upload", token: token, body: body, contentType: contentType}, &result)
	return result, err
}

// AdminBatchTags adds, removes or replaces tags on several posts. Set with
// no tags clears them.
func (c *Client) AdminBatchTags(ctx context.Context, token string, postIDs []int64, tags []string, action string) (model.BatchTagResult, error) {
	const op = "admin_batch_tags"
	switch {
	case len(postIDs) == 0:
		return model.BatchTagResult{}, &Error{Kind: ValidationFailed, Op: op, Message: "select at least one post"}
	case action != TagsAdd && action != TagsRemove && action != TagsSet:
		return model.BatchTagResult{}, &Error{Kind: ValidationFailed, Op: op, Message: "action must be add, remove or set"}
	case len(tags) == 0 && action != TagsSet:
		return model.BatchTagResult{}, &Error{Kind: ValidationFailed, Op: op, Message: "enter tags for the action"}
	}
	if tags == nil {
		tags = []string{}
	}

	var result model.BatchTagResult
	err := c.do(ctx, request{
		op:      op,
		method:  http.MethodPut,
		path:    "admin/posts/batch-tags",
		token:   token,
		payload: model.BatchTagRequest{PostIDs: postIDs, Tags: tags, Action: action},
	}, &result)
	return result, err
}

// joinTags builds the comma separated tags_str form field.
func joinTags(tags []string) string {
	kept := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			kept = append(kept, tag)
		}
	}
	return strings.Join(kept, ",")
}

func encodeMultipart(fields map[string]string, fileField string, files []Upload) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return nil, "", err
		}
	}
	for _, f := range files {
		if f.Content == nil {
			return nil, "", fmt.Errorf("%s has no content", f.Filename)
		}
		part, err := mw.CreateFormFile(fileField, f.Filename)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}
