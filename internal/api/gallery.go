package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spectra-gallery/spectra/internal/model"
)

// PostQuery filters the gallery listing. Zero values are omitted.
type PostQuery struct {
	Page     int
	Limit    int
	Tags     string // space or comma separated
	SortBy   string // date, score, id, random
	Order    string // asc, desc
	Uploader string
	MinScore *int
}

// Values encodes q as the posts/ query string.
func (q PostQuery) Values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if tags := NormalizeTags(q.Tags); tags != "" {
		v.Set("tags", tags)
	}
	if s := strings.TrimSpace(q.SortBy); s != "" {
		v.Set("sort_by", s)
	}
	if o := strings.ToLower(strings.TrimSpace(q.Order)); o == "asc" || o == "desc" {
		v.Set("order", o)
	}
	if u := strings.TrimSpace(q.Uploader); u != "" {
		v.Set("uploader_name", u)
	}
	if q.MinScore != nil {
		v.Set("min_score", strconv.Itoa(*q.MinScore))
	}
	return v
}

// NormalizeTags turns user input like "cat  sky,night" into "cat,sky,night".
func NormalizeTags(input string) string {
	fields := strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	return strings.Join(fields, ",")
}

// ListPosts returns one page of the gallery.
func (c *Client) ListPosts(ctx context.Context, q PostQuery) (model.PostPage, error) {
	var page model.PostPage
	err := c.do(ctx, request{op: "list_posts", method: http.MethodGet, path: "posts/", query: q.Values()}, &page)
	return page, err
}

// GetPost fetches one post. token is optional; when set the server fills UserVote.
func (c *Client) GetPost(ctx context.Context, token string, id int64) (model.Post, error) {
	var post model.Post
	err := c.do(ctx, request{op: "get_post", method: http.MethodGet, path: fmt.Sprintf("posts/%d", id), token: token}, &post)
	return post, err
}

// ListTags returns every tag with its post count.
func (c *Client) ListTags(ctx context.Context) ([]model.TagCount, error) {
	var tags []model.TagCount
	err := c.do(ctx, request{op: "list_tags", method: http.MethodGet, path: "tags/"}, &tags)
	return tags, err
}

// ListComments returns the comments of a post. The server answers either with
// a bare array or with a {data, total_items} envelope; both are accepted.
func (c *Client) ListComments(ctx context.Context, token string, postID int64) (model.CommentPage, error) {
	var raw json.RawMessage
	err := c.do(ctx, request{op: "list_comments", method: http.MethodGet, path: fmt.Sprintf("posts/%d/comments/", postID), token: token}, &raw)
	if err != nil {
		return model.CommentPage{}, err
	}
	page, decodeErr := decodeComments(raw)
	if decodeErr != nil {
		return model.CommentPage{}, &Error{Kind: NetworkOrServerError, Op: "list_comments", Status: http.StatusOK, Message: "invalid server response", Err: decodeErr}
	}
	return page, nil
}

func decodeComments(raw json.RawMessage) (model.CommentPage, error) {
	if len(raw) == 0 {
		return model.CommentPage{}, nil
	}
	var direct []model.Comment
	if err := json.Unmarshal(raw, &direct); err == nil {
		return model.CommentPage{Data: direct, TotalItems: len(direct)}, nil
	}
	var wrapped model.CommentPage
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Data != nil {
		if wrapped.TotalItems == 0 {
			wrapped.TotalItems = len(wrapped.Data)
		}
		return wrapped, nil
	}
	return model.CommentPage{}, errors.New("unexpected response shape")
}

// CreateComment posts a comment, or a reply when parentID is non-nil.
func (c *Client) CreateComment(ctx context.Context, token string, postID int64, content string, parentID *int64) (model.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return model.Comment{}, &Error{Kind: ValidationFailed, Op: "create_comment", Message: "comment cannot be empty"}
	}
	var comment model.Comment
	err := c.do(ctx, request{
		op:      "create_comment",
		method:  http.MethodPost,
		path:    fmt.Sprintf("posts/%d/comments/", postID),
		token:   token,
		payload: model.NewComment{Content: content, ParentCommentID: parentID},
	}, &comment)
	return comment, err
}

// VoteTarget addresses a post or a comment.
type VoteTarget struct {
	PostID    int64
	CommentID int64
}

// CastVote sends an up (1) or down (-1) vote. Repeating the current vote removes it.
func (c *Client) CastVote(ctx context.Context, token string, target VoteTarget, value int) (model.VoteResult, error) {
	const op = "cast_vote"
	if value != 1 && value != -1 {
		return model.VoteResult{}, &Error{Kind: ValidationFailed, Op: op, Message: "vote must be 1 or -1"}
	}
	req := model.VoteRequest{VoteType: value}
	switch {
	case target.PostID > 0 && target.CommentID == 0:
		id := target.PostID
		req.PostID = &id
	case target.CommentID > 0 && target.PostID == 0:
		id := target.CommentID
		req.CommentID = &id
	default:
		return model.VoteResult{}, &Error{Kind: ValidationFailed, Op: op, Message: "vote needs exactly one of a post or a comment"}
	}
	var result model.VoteResult
	err := c.do(ctx, request{op: op, method: http.MethodPost, path: "votes/", token: token, payload: req}, &result)
	return result, err
}

// AdminListPosts lists posts through the moderation endpoint.
func (c *Client) AdminListPosts(ctx context.Context, token string, page, limit int) (model.PostPage, error) {
	var out model.PostPage
	q := PostQuery{Page: page, Limit: limit}
	err := c.do(ctx, request{op: "admin_list_posts", method: http.MethodGet, path: "admin/posts", query: q.Values(), token: token}, &out)
	return out, err
}

// AdminDeletePost removes a post and its media.
func (c *Client) AdminDeletePost(ctx context.Context, token string, id int64) error {
	return c.do(ctx, request{op: "admin_delete_post", method: http.MethodDelete, path: fmt.Sprintf("admin/images/%d", id), token: token}, nil)
}
