// Package devapi is an in-memory stand-in for the Spectra REST API used while
// developing the client. It speaks the same paths, payloads and error bodies.
package devapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spectra-gallery/spectra/internal/model"
	"github.com/spectra-gallery/spectra/logging"
)

const (
	category        = "devapi"
	prefix          = "/api/v1"
	credentialsFail = "Could not validate credentials"
	notPrivileged   = "The user doesn't have enough privileges"
	maxCommentLen   = 2000
)

// Options configures NewRouter.
type Options struct {
	Store  *Store
	Tokens *Tokens
	Logger *logging.Logger
	// Registerer receives request metrics; /metrics serves Gatherer.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	Themes     *model.ThemeConfig
}

type server struct {
	store    *Store
	tokens   *Tokens
	logger   *logging.Logger
	themes   *model.ThemeConfig
	requests *prometheus.CounterVec
}

type userKey struct{}

// NewRouter builds the HTTP handler for the dev API.
func NewRouter(opts Options) (http.Handler, error) {
	if opts.Store == nil || opts.Tokens == nil {
		return nil, errors.New("devapi: store and tokens are required")
	}
	themes := opts.Themes
	if themes == nil {
		themes = DefaultThemes("dark")
	}
	reg := opts.Registerer
	gatherer := opts.Gatherer
	if reg == nil {
		r := prometheus.NewRegistry()
		reg, gatherer = r, r
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &server{
		store:  opts.Store,
		tokens: opts.Tokens,
		logger: opts.Logger,
		themes: themes,
		requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "spectra",
			Subsystem: "devapi",
			Name:      "requests_total",
			Help:      "Requests served by the dev API, by route and status code.",
		}, []string{"route", "code"}),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route(prefix, func(r chi.Router) {
		r.Post("/auth/token", s.handleToken)
		r.Post("/auth/register", s.handleRegister)
		r.Get("/theme-config", s.handleThemeConfig)
		r.Get("/tags/", s.handleTags)
		r.Get("/tags", s.handleTags)

		r.Group(func(r chi.Router) {
			r.Use(s.optionalUser)
			r.Route("/posts", func(r chi.Router) {
				r.Get("/", s.handleListPosts)
				r.With(s.requireUser).Post("/", s.handleUpload)
				r.Get("/{postID}", s.handleGetPost)
				r.Route("/{postID}/comments", func(r chi.Router) {
					r.Get("/", s.handleListComments)
					r.With(s.requireUser).Post("/", s.handleCreateComment)
				})
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)
			r.Get("/users/me", s.handleMe)
			r.Post("/votes/", s.handleVote)
			r.Post("/votes", s.handleVote)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser, requireModerator)
			r.Get("/admin/posts", s.handleAdminPosts)
			r.Delete("/admin/images/{postID}", s.handleAdminDelete)
			r.Post("/admin/posts/batch-upload", s.handleBatchUpload)
			r.Put("/admin/posts/batch-tags", s.handleBatchTags)
		})
	})
	return r, nil
}

func (s *server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(logging.RequestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(logging.RequestIDHeader, requestID)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		s.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()

		level := logging.INFO
		if status >= 500 {
			level = logging.ERROR
		} else if status >= 400 {
			level = logging.WARN
		}
		s.logger.Log(level, category, r.Method+" "+r.URL.Path, map[string]any{
			"request_id":  requestID,
			"status":      status,
			"duration_ms": elapsed.Milliseconds(),
			"route":       route,
		})
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func (s *server) resolveUser(r *http.Request) (model.User, bool) {
	raw := bearerToken(r)
	if raw == "" {
		return model.User{}, false
	}
	username, err := s.tokens.Subject(raw)
	if err != nil {
		return model.User{}, false
	}
	user, ok := s.store.User(username)
	if !ok || !user.IsActive {
		return model.User{}, false
	}
	return user, true
}

func (s *server) optionalUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, ok := s.resolveUser(r); ok {
			r = r.WithContext(context.WithValue(r.Context(), userKey{}, user))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.resolveUser(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			respondDetail(w, http.StatusUnauthorized, credentialsFail)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}

func requireModerator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(r)
		if !ok || !user.CanModerate() {
			respondDetail(w, http.StatusForbidden, notPrivileged)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func currentUser(r *http.Request) (model.User, bool) {
	user, ok := r.Context().Value(userKey{}).(model.User)
	return user, ok
}

func viewerID(r *http.Request) int64 {
	if user, ok := currentUser(r); ok {
		return user.ID
	}
	return 0
}

func (s *server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondDetail(w, http.StatusBadRequest, "invalid form body")
		return
	}
	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	var missing []fieldError
	if username == "" {
		missing = append(missing, fieldError{Loc: []any{"body", "username"}, Msg: "Field required", Type: "missing"})
	}
	if password == "" {
		missing = append(missing, fieldError{Loc: []any{"body", "password"}, Msg: "Field required", Type: "missing"})
	}
	if len(missing) > 0 {
		respondValidation(w, missing)
		return
	}

	user, err := s.store.Authenticate(username, password)
	if err != nil {
		w.Header().Set("WWW-Authenticate", "Bearer")
		respondDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}
	if !user.IsActive {
		respondDetail(w, http.StatusBadRequest, "Inactive user")
		return
	}
	token, err := s.tokens.Issue(user.Username)
	if err != nil {
		s.logger.Error(category, "issue token", err, nil)
		respondDetail(w, http.StatusInternalServerError, "Could not issue token")
		return
	}
	respondJSON(w, http.StatusOK, model.TokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg model.Registration
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&reg); err != nil {
		respondDetail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	var problems []fieldError
	if n := len(strings.TrimSpace(reg.Username)); n < 3 || n > 50 {
		problems = append(problems, fieldError{Loc: []any{"body", "username"}, Msg: "String should have between 3 and 50 characters", Type: "string_length"})
	}
	if _, err := mail.ParseAddress(reg.Email); err != nil || !strings.Contains(reg.Email, "@") {
		problems = append(problems, fieldError{Loc: []any{"body", "email"}, Msg: "value is not a valid email address", Type: "value_error"})
	}
	if len(reg.Password) < 6 {
		problems = append(problems, fieldError{Loc: []any{"body", "password"}, Msg: "String should have at least 6 characters", Type: "string_too_short"})
	}
	if len(problems) > 0 {
		respondValidation(w, problems)
		return
	}

	user, err := s.store.CreateUser(reg.Username, reg.Email, reg.Password, model.RoleUser)
	switch {
	case errors.Is(err, errUsernameTaken):
		respondDetail(w, http.StatusBadRequest, "Username already registered")
	case errors.Is(err, errEmailTaken):
		respondDetail(w, http.StatusBadRequest, "Email already registered")
	case err != nil:
		s.logger.Error(category, "create user", err, nil)
		respondDetail(w, http.StatusInternalServerError, "Could not create user")
	default:
		s.logger.Info(category, "user registered", map[string]any{"username": user.Username})
		respondJSON(w, http.StatusCreated, user)
	}
}

func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r)
	respondJSON(w, http.StatusOK, user)
}

func (s *server) handleThemeConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.themes)
}

func (s *server) handleTags(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.store.Tags())
}

func (s *server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	filter, problem := parsePostFilter(r)
	if problem != "" {
		respondDetail(w, http.StatusBadRequest, problem)
		return
	}
	respondJSON(w, http.StatusOK, s.store.ListPosts(filter, viewerID(r)))
}

func parsePostFilter(r *http.Request) (PostFilter, string) {
	q := r.URL.Query()
	f := PostFilter{Page: 1, Limit: 20, Order: "desc", SortBy: "date"}
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, "page must be a positive integer"
		}
		f.Page = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			return f, "limit must be between 1 and 100"
		}
		f.Limit = n
	}
	if v := strings.TrimSpace(q.Get("tags")); v != "" {
		for _, tag := range strings.Split(v, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				f.Tags = append(f.Tags, tag)
			}
		}
	}
	if v := q.Get("sort_by"); v != "" {
		switch v {
		case "date", "score", "id", "random":
			f.SortBy = v
		default:
			return f, "Invalid sort_by parameter. Allowed values: ['date', 'score', 'id', 'random']"
		}
	}
	if v := q.Get("order"); v != "" {
		if v != "asc" && v != "desc" {
			return f, "Invalid order parameter. Allowed values: ['asc', 'desc']"
		}
		f.Order = v
	}
	f.Uploader = strings.TrimSpace(q.Get("uploader_name"))
	if v := q.Get("min_score"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, "min_score must be an integer"
		}
		f.MinScore = &n
	}
	return f, ""
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func (s *server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "postID")
	if !ok {
		respondDetail(w, http.StatusNotFound, "Post not found")
		return
	}
	post, err := s.store.Post(id, viewerID(r))
	if err != nil {
		respondDetail(w, http.StatusNotFound, "Post not found")
		return
	}
	respondJSON(w, http.StatusOK, post)
}

func (s *server) handleListComments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "postID")
	if !ok {
		respondDetail(w, http.StatusNotFound, "Post not found")
		return
	}
	comments, err := s.store.Comments(id, viewerID(r))
	if err != nil {
		respondDetail(w, http.StatusNotFound, "Post not found")
		return
	}
	respondJSON(w, http.StatusOK, comments)
}

func (s *server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "postID")
	if !ok {
		respondDetail(w, http.StatusNotFound, "Post not found")
		return
	}
	var body model.NewComment
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&body); err != nil {
		respondDetail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	content := strings.TrimSpace(body.Content)
	if content == "" || len(content) > maxCommentLen {
		respondValidation(w, []fieldError{{Loc: []any{"body", "content"}, Msg: "Comment must be between 1 and 2000 characters", Type: "string_length"}})
		return
	}
	user, _ := currentUser(r)
	comment, err := s.store.AddComment(user, id, content, body.ParentCommentID)
	switch {
	case errors.Is(err, errPostNotFound):
		respondDetail(w, http.StatusNotFound, "Post with id "+strconv.FormatInt(id, 10)+" not found, cannot add comment.")
	case errors.Is(err, errNoComment):
		respondDetail(w, http.StatusNotFound, "Parent comment not found")
	case err != nil:
		respondDetail(w, http.StatusInternalServerError, "Error creating comment")
	default:
		respondJSON(w, http.StatusCreated, comment)
	}
}

func (s *server) handleVote(w http.ResponseWriter, r *http.Request) {
	var req model.VoteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<12)).Decode(&req); err != nil {
		respondDetail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if (req.PostID == nil) == (req.CommentID == nil) {
		respondDetail(w, http.StatusUnprocessableEntity, "Either post_id or comment_id must be provided, but not both.")
		return
	}
	if req.VoteType != 1 && req.VoteType != -1 {
		respondDetail(w, http.StatusUnprocessableEntity, "vote_type must be 1 or -1")
		return
	}
	user, _ := currentUser(r)
	result, err := s.store.Vote(user.ID, req)
	switch {
	case errors.Is(err, errPostNotFound):
		respondDetail(w, http.StatusNotFound, "Post not found.")
	case errors.Is(err, errNoComment):
		respondDetail(w, http.StatusNotFound, "Comment not found.")
	case err != nil:
		respondDetail(w, http.StatusInternalServerError, "Error casting vote")
	default:
		respondJSON(w, http.StatusOK, result)
	}
}

func (s *server) handleAdminPosts(w http.ResponseWriter, r *http.Request) {
	filter, problem := parsePostFilter(r)
	if problem != "" {
		respondDetail(w, http.StatusBadRequest, problem)
		return
	}
	filter.SortBy, filter.Order = "id", "desc"
	respondJSON(w, http.StatusOK, s.store.ListPosts(filter, viewerID(r)))
}

func (s *server) handleAdminDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "postID")
	if !ok {
		respondDetail(w, http.StatusNotFound, "Post not found")
		return
	}
	if err := s.store.DeletePost(id); err != nil {
		respondDetail(w, http.StatusNotFound, "Post not found")
		return
	}
	user, _ := currentUser(r)
	s.logger.Info(category, "post deleted", map[string]any{"post_id": id, "by": user.Username})
	w.WriteHeader(http.StatusNoContent)
}

type fieldError struct {
	Loc  []any  `json:"loc"`
	Msg  string `json:"msg"`
	Type string `json:"type"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondDetail(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, map[string]string{"detail": detail})
}

func respondValidation(w http.ResponseWriter, problems []fieldError) {
	respondJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": problems})
}
