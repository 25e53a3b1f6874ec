package model

import (
	"encoding/json"
	"strings"
)

// Role is the account role assigned by the server.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleUser      Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleModerator, RoleUser:
		return true
	}
	return false
}

// User is a snapshot of the server-side account returned by users/me and auth/register.
type User struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	Role        Role   `json:"role"`
	IsActive    bool   `json:"is_active"`
	IsSuperuser bool   `json:"is_superuser"`
	CreatedAt   string `json:"created_at"`
}

// CanModerate reports whether the account may use the admin endpoints.
func (u User) CanModerate() bool {
	if u.IsSuperuser {
		return true
	}
	switch u.Role {
	case RoleOwner, RoleAdmin, RoleModerator:
		return true
	}
	return false
}

// TokenResponse is the body returned by auth/token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Registration is the JSON payload posted to auth/register.
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Tag is a label attached to a post.
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// TagCount is a tag with the number of posts carrying it.
type TagCount struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	PostCount int    `json:"post_count"`
}

// Post is a gallery entry.
type Post struct {
	ID           int64  `json:"id"`
	Filename     string `json:"filename"`
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
	Mimetype     string `json:"mimetype,omitempty"`
	Filesize     int64  `json:"filesize,omitempty"`
	UploadedAt   string `json:"uploaded_at"`
	UploaderID   *int64 `json:"uploader_id,omitempty"`
	Uploader     *User  `json:"uploader,omitempty"`
	Tags         []Tag  `json:"tags"`
	ImageURL     string `json:"image_url,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	CommentCount int    `json:"comment_count"`
	Upvotes      int    `json:"upvotes"`
	Downvotes    int    `json:"downvotes"`
	UserVote     int    `json:"user_vote,omitempty"`
}

// Score is upvotes minus downvotes.
func (p Post) Score() int {
	return p.Upvotes - p.Downvotes
}

// TagNames returns the post's tag names in server order.
func (p Post) TagNames() []string {
	names := make([]string, 0, len(p.Tags))
	for _, t := range p.Tags {
		names = append(names, t.Name)
	}
	return names
}

// PostPage is one page of the gallery listing.
type PostPage struct {
	Data        []Post `json:"data"`
	TotalItems  int    `json:"total_items"`
	TotalPages  int    `json:"total_pages"`
	CurrentPage int    `json:"current_page"`
}

// UploadFailure names a file the batch upload rejected.
type UploadFailure struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// BatchUploadResult is the admin/posts/batch-upload response.
type BatchUploadResult struct {
	Successful []Post          `json:"successful"`
	Failed     []UploadFailure `json:"failed"`
}

// BatchTagRequest is the admin/posts/batch-tags body. Action is add, remove or set.
type BatchTagRequest struct {
	PostIDs []int64  `json:"post_ids"`
	Tags    []string `json:"tags"`
	Action  string   `json:"action"`
}

// BatchTagResult reports how many posts a batch tag update changed.
type BatchTagResult struct {
	Message           string `json:"message"`
	UpdatedPostsCount int    `json:"updated_posts_count"`
}

// Commenter is the author summary embedded in a comment.
type Commenter struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Comment is a post comment. ParentCommentID is set on replies.
type Comment struct {
	ID              int64      `json:"id"`
	PostID          int64      `json:"post_id"`
	UserID          int64      `json:"user_id"`
	ParentCommentID *int64     `json:"parent_comment_id,omitempty"`
	Content         string     `json:"content"`
	CreatedAt       string     `json:"created_at"`
	UpdatedAt       string     `json:"updated_at,omitempty"`
	User            *Commenter `json:"user,omitempty"`
	Upvotes         int        `json:"upvotes"`
	Downvotes       int        `json:"downvotes"`
	UserVote        int        `json:"user_vote,omitempty"`
	Replies         []Comment  `json:"replies,omitempty"`
}

// Author returns the commenter's username, or a placeholder when the server omitted it.
func (c Comment) Author() string {
	if c.User != nil && strings.TrimSpace(c.User.Username) != "" {
		return c.User.Username
	}
	return "anonymous"
}

// CommentPage is the comment list for a post.
type CommentPage struct {
	Data       []Comment `json:"data"`
	TotalItems int       `json:"total_items"`
}

// NewComment is the payload for creating a comment or reply.
type NewComment struct {
	Content         string `json:"content"`
	ParentCommentID *int64 `json:"parent_comment_id,omitempty"`
}

// VoteRequest targets exactly one of a post or a comment. VoteType is 1 or -1;
// repeating the same vote removes it server-side.
type VoteRequest struct {
	PostID    *int64 `json:"post_id,omitempty"`
	CommentID *int64 `json:"comment_id,omitempty"`
	VoteType  int    `json:"vote_type"`
}

// VoteResult carries the tallies after a vote was cast, changed or removed.
type VoteResult struct {
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
	UserVote  int `json:"user_vote"`
}

// SiteThemeSettings holds site-wide theme hints.
type SiteThemeSettings struct {
	DefaultTheme string `json:"default_theme,omitempty"`
}

// ThemeConfig maps a theme name to its CSS variable fragments, plus the
// optional site block. On the wire the site block sits beside the themes:
//
//	{"dark": {"bg_color": "#000"}, "site": {"default_theme": "dark"}}
type ThemeConfig struct {
	Themes map[string]map[string]string
	Site   SiteThemeSettings
}

// Palette returns the variable table for name.
func (c *ThemeConfig) Palette(name string) (map[string]string, bool) {
	if c == nil {
		return nil, false
	}
	palette, ok := c.Themes[name]
	return palette, ok
}

// UnmarshalJSON splits the site block from the theme entries. Entries that are
// not flat string maps are skipped.
func (c *ThemeConfig) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Themes = make(map[string]map[string]string, len(raw))
	c.Site = SiteThemeSettings{}
	for key, value := range raw {
		if key == "site" {
			var site SiteThemeSettings
			if err := json.Unmarshal(value, &site); err == nil {
				c.Site = site
			}
			continue
		}
		var palette map[string]string
		if err := json.Unmarshal(value, &palette); err != nil || palette == nil {
			continue
		}
		c.Themes[key] = palette
	}
	return nil
}

// MarshalJSON writes the flat wire shape read by UnmarshalJSON.
func (c ThemeConfig) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Themes)+1)
	for name, palette := range c.Themes {
		out[name] = palette
	}
	if c.Site.DefaultTheme != "" {
		out["site"] = c.Site
	}
	return json.Marshal(out)
}
