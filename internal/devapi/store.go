package devapi

import (
	"errors"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/spectra-gallery/spectra/internal/model"
)

var (
	errUsernameTaken = errors.New("username already registered")
	errEmailTaken    = errors.New("email already registered")
	errBadLogin      = errors.New("incorrect username or password")
	errPostNotFound  = errors.New("post not found")
	errNoComment     = errors.New("comment not found")
)

type account struct {
	user model.User
	hash []byte
}

type voteKey struct {
	userID    int64
	postID    int64
	commentID int64
}

// Store is the in-memory gallery behind the dev API.
type Store struct {
	mu       sync.RWMutex
	now      func() time.Time
	accounts map[string]*account // by lowercase username
	posts    map[int64]*model.Post
	comments map[int64]*model.Comment
	votes    map[voteKey]int
	nextUser int64
	nextPost int64
	nextCmt  int64
	nextTag  int64
	tagIDs   map[string]int64
	cost     int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		now:      time.Now,
		accounts: map[string]*account{},
		posts:    map[int64]*model.Post{},
		comments: map[int64]*model.Comment{},
		votes:    map[voteKey]int{},
		tagIDs:   map[string]int64{},
		cost:     bcrypt.DefaultCost,
	}
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

// CreateUser registers an account. Usernames and emails are unique, ignoring case.
func (s *Store) CreateUser(username, email, password string, role model.Role) (model.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return model.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[strings.ToLower(username)]; exists {
		return model.User{}, errUsernameTaken
	}
	for _, acc := range s.accounts {
		if strings.EqualFold(acc.user.Email, email) {
			return model.User{}, errEmailTaken
		}
	}
	s.nextUser++
	user := model.User{
		ID:          s.nextUser,
		Username:    username,
		Email:       email,
		Role:        role,
		IsActive:    true,
		IsSuperuser: role == model.RoleOwner,
		CreatedAt:   s.timestamp(),
	}
	s.accounts[strings.ToLower(username)] = &account{user: user, hash: hash}
	return user, nil
}

// Authenticate checks a username and password.
func (s *Store) Authenticate(username, password string) (model.User, error) {
	s.mu.RLock()
	acc, ok := s.accounts[strings.ToLower(strings.TrimSpace(username))]
	s.mu.RUnlock()
	if !ok {
		return model.User{}, errBadLogin
	}
	if err := bcrypt.CompareHashAndPassword(acc.hash, []byte(password)); err != nil {
		return model.User{}, errBadLogin
	}
	return acc.user, nil
}

// User looks an account up by username.
func (s *Store) User(username string) (model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[strings.ToLower(username)]
	if !ok {
		return model.User{}, false
	}
	return acc.user, true
}

// PostInput describes a post being created.
type PostInput struct {
	Title       string
	Description string
	Filename    string
	Filesize    int64
	Tags        []string
}

// AddPost stores a post uploaded by uploader with the given tag names.
func (s *Store) AddPost(uploader model.User, title, filename string, tags []string) model.Post {
	return s.CreatePost(uploader, PostInput{Title: title, Filename: filename, Tags: tags})
}

// CreatePost stores a new post owned by uploader.
func (s *Store) CreatePost(uploader model.User, in PostInput) model.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPost++
	id := s.nextPost
	uploaderID := uploader.ID
	u := uploader
	post := &model.Post{
		ID:           id,
		Filename:     in.Filename,
		Title:        in.Title,
		Description:  in.Description,
		Mimetype:     mimeFor(in.Filename),
		Filesize:     in.Filesize,
		UploadedAt:   s.timestamp(),
		UploaderID:   &uploaderID,
		Uploader:     &u,
		ImageURL:     "/media/images/" + in.Filename,
		ThumbnailURL: "/media/thumbnails/" + in.Filename,
	}
	for _, name := range in.Tags {
		if tag, ok := s.tagLocked(name); ok && !hasTag(post, tag.Name) {
			post.Tags = append(post.Tags, tag)
		}
	}
	s.posts[id] = post
	return *post
}

// tagLocked normalises name and returns its tag, allocating an id on first use.
func (s *Store) tagLocked(name string) (model.Tag, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return model.Tag{}, false
	}
	tagID, ok := s.tagIDs[name]
	if !ok {
		s.nextTag++
		tagID = s.nextTag
		s.tagIDs[name] = tagID
	}
	return model.Tag{ID: tagID, Name: name}, true
}

func hasTag(post *model.Post, name string) bool {
	for _, t := range post.Tags {
		if t.Name == name {
			return true
		}
	}
	return false
}

// Tag actions accepted by RetagPosts.
const (
	TagAdd    = "add"
	TagRemove = "remove"
	TagSet    = "set"
)

var errBadTagAction = errors.New("action must be add, remove or set")

// RetagPosts applies action with tags to every listed post and returns how
// many posts changed. Unknown ids are skipped.
func (s *Store) RetagPosts(ids []int64, tags []string, action string) (int, error) {
	if action != TagAdd && action != TagRemove && action != TagSet {
		return 0, errBadTagAction
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make([]model.Tag, 0, len(tags))
	for _, name := range tags {
		if tag, ok := s.tagLocked(name); ok {
			wanted = append(wanted, tag)
		}
	}

	updated := 0
	for _, id := range ids {
		post, ok := s.posts[id]
		if !ok {
			continue
		}
		before := strings.Join(post.TagNames(), ",")
		switch action {
		case TagAdd:
			for _, tag := range wanted {
				if !hasTag(post, tag.Name) {
					post.Tags = append(post.Tags, tag)
				}
			}
		case TagRemove:
			var kept []model.Tag
			for _, tag := range post.Tags {
				drop := false
				for _, w := range wanted {
					if w.Name == tag.Name {
						drop = true
						break
					}
				}
				if !drop {
					kept = append(kept, tag)
				}
			}
			post.Tags = kept
		case TagSet:
			post.Tags = nil
			for _, tag := range wanted {
				if !hasTag(post, tag.Name) {
					post.Tags = append(post.Tags, tag)
				}
			}
		}
		if strings.Join(post.TagNames(), ",") != before {
			updated++
		}
	}
	return updated, nil
}

func mimeFor(filename string) string {
	switch {
	case strings.HasSuffix(filename, ".png"):
		return "image/png"
	case strings.HasSuffix(filename, ".gif"):
		return "image/gif"
	case strings.HasSuffix(filename, ".webp"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// PostFilter narrows ListPosts.
type PostFilter struct {
	Page     int
	Limit    int
	Tags     []string
	SortBy   string
	Order    string
	Uploader string
	MinScore *int
}

// ListPosts returns one page of posts matching f.
func (s *Store) ListPosts(f PostFilter, viewerID int64) model.PostPage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]model.Post, 0, len(s.posts))
	for _, post := range s.posts {
		if !hasAllTags(post, f.Tags) {
			continue
		}
		if f.Uploader != "" && (post.Uploader == nil || !strings.EqualFold(post.Uploader.Username, f.Uploader)) {
			continue
		}
		if f.MinScore != nil && post.Score() < *f.MinScore {
			continue
		}
		matched = append(matched, s.viewLocked(post, viewerID))
	}
	sortPosts(matched, f.SortBy, f.Order)

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	total := len(matched)
	pages := (total + limit - 1) / limit
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return model.PostPage{
		Data:        matched[start:end],
		TotalItems:  total,
		TotalPages:  pages,
		CurrentPage: page,
	}
}

func hasAllTags(post *model.Post, tags []string) bool {
	for _, want := range tags {
		found := false
		for _, tag := range post.Tags {
			if strings.EqualFold(tag.Name, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func sortPosts(posts []model.Post, by, order string) {
	asc := order == "asc"
	less := func(i, j int) bool { return posts[i].ID < posts[j].ID }
	switch by {
	case "score":
		less = func(i, j int) bool {
			if posts[i].Score() == posts[j].Score() {
				return posts[i].ID < posts[j].ID
			}
			return posts[i].Score() < posts[j].Score()
		}
	case "random":
		rand.Shuffle(len(posts), func(i, j int) { posts[i], posts[j] = posts[j], posts[i] })
		return
	}
	sort.SliceStable(posts, func(i, j int) bool {
		if asc {
			return less(i, j)
		}
		return less(j, i)
	})
}

// Post returns a single post as seen by viewerID (0 for anonymous).
func (s *Store) Post(id, viewerID int64) (model.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	post, ok := s.posts[id]
	if !ok {
		return model.Post{}, errPostNotFound
	}
	return s.viewLocked(post, viewerID), nil
}

func (s *Store) viewLocked(post *model.Post, viewerID int64) model.Post {
	view := *post
	view.Tags = append([]model.Tag(nil), post.Tags...)
	view.CommentCount = 0
	for _, c := range s.comments {
		if c.PostID == post.ID {
			view.CommentCount++
		}
	}
	view.UserVote = 0
	if viewerID > 0 {
		view.UserVote = s.votes[voteKey{userID: viewerID, postID: post.ID}]
	}
	return view
}

// DeletePost removes a post with its comments and votes.
func (s *Store) DeletePost(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return errPostNotFound
	}
	delete(s.posts, id)
	for cid, c := range s.comments {
		if c.PostID == id {
			delete(s.comments, cid)
		}
	}
	for key := range s.votes {
		if key.postID == id {
			delete(s.votes, key)
		}
	}
	return nil
}

// Tags returns every tag in use with its post count, most used first.
func (s *Store) Tags() []model.TagCount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := map[string]int{}
	for _, post := range s.posts {
		for _, tag := range post.Tags {
			counts[tag.Name]++
		}
	}
	out := make([]model.TagCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, model.TagCount{ID: s.tagIDs[name], Name: name, PostCount: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PostCount == out[j].PostCount {
			return out[i].Name < out[j].Name
		}
		return out[i].PostCount > out[j].PostCount
	})
	return out
}

// AddComment stores a comment or, with parentID, a reply on the same post.
func (s *Store) AddComment(author model.User, postID int64, content string, parentID *int64) (model.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[postID]; !ok {
		return model.Comment{}, errPostNotFound
	}
	if parentID != nil {
		parent, ok := s.comments[*parentID]
		if !ok || parent.PostID != postID {
			return model.Comment{}, errNoComment
		}
	}
	s.nextCmt++
	comment := &model.Comment{
		ID:              s.nextCmt,
		PostID:          postID,
		UserID:          author.ID,
		ParentCommentID: parentID,
		Content:         content,
		CreatedAt:       s.timestamp(),
		User:            &model.Commenter{ID: author.ID, Username: author.Username},
	}
	s.comments[comment.ID] = comment
	return *comment, nil
}

// Comments returns the comments of a post in creation order.
func (s *Store) Comments(postID, viewerID int64) ([]model.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.posts[postID]; !ok {
		return nil, errPostNotFound
	}
	out := []model.Comment{}
	for _, c := range s.comments {
		if c.PostID != postID {
			continue
		}
		view := *c
		if viewerID > 0 {
			view.UserVote = s.votes[voteKey{userID: viewerID, commentID: c.ID}]
		}
		out = append(out, view)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Vote casts, flips or, when value repeats the current vote, removes a vote.
func (s *Store) Vote(userID int64, req model.VoteRequest) (model.VoteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := voteKey{userID: userID}
	var up, down *int
	switch {
	case req.PostID != nil:
		post, ok := s.posts[*req.PostID]
		if !ok {
			return model.VoteResult{}, errPostNotFound
		}
		key.postID = post.ID
		up, down = &post.Upvotes, &post.Downvotes
	case req.CommentID != nil:
		comment, ok := s.comments[*req.CommentID]
		if !ok {
			return model.VoteResult{}, errNoComment
		}
		key.commentID = comment.ID
		up, down = &comment.Upvotes, &comment.Downvotes
	}

	adjust := func(value, delta int) {
		if value > 0 {
			*up += delta
		} else if value < 0 {
			*down += delta
		}
	}
	previous := s.votes[key]
	adjust(previous, -1)
	current := req.VoteType
	if previous == req.VoteType {
		current = 0
		delete(s.votes, key)
	} else {
		s.votes[key] = current
		adjust(current, 1)
	}
	return model.VoteResult{Upvotes: *up, Downvotes: *down, UserVote: current}, nil
}
