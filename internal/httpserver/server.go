package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"

	"microfeed/feedsvc/internal/audit"
	"microfeed/feedsvc/internal/auth"
	"microfeed/feedsvc/internal/config"
	"microfeed/feedsvc/internal/feed"
	"microfeed/feedsvc/internal/negotiate"
)

type CredentialStore interface {
	Register(username, password string) (string, error)
	Authenticate(username, password string) (string, error)
	WithTokenOwner(token string, fn func(username string) error) error
}

type FeedStore interface {
	Append(p feed.Post)
	List() []feed.Post
}

type AuditLogger interface {
	Log(actor, action, target, outcome, detail string) error
}

type Deps struct {
	Credentials CredentialStore
	Feed        FeedStore
	Audit       AuditLogger
	Logger      *slog.Logger
	CORSOrigins []string
}

type Server struct {
	httpServer *http.Server
}

func New(cfg config.HTTPConfig, deps Deps) *Server {
	deps.CORSOrigins = cfg.CORSAllowedOrigins

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      NewHandler(deps),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
	}
}

func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.GetHead)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	h := &handlers{deps: deps}
	r.Get("/", h.hello)
	r.Get("/posts", h.posts)
	r.Post("/post", h.post)
	r.Post("/register", h.register)
	r.Post("/login", h.login)

	return gzhttp.GzipHandler(r)
}

type handlers struct {
	deps Deps
}

func (h *handlers) hello(w http.ResponseWriter, r *http.Request) {
	name, ok := headerValue(r, "User-Agent")
	if !ok {
		name = "world"
	}
	rep, ok := representation(w, r)
	if !ok {
		return
	}

	body, err := negotiate.Greeting(rep, name)
	if err != nil {
		h.internalError(w, r, "render greeting", err)
		return
	}
	writeBody(w, http.StatusOK, rep.ContentType(), body)
}

func (h *handlers) posts(w http.ResponseWriter, r *http.Request) {
	rep, ok := representation(w, r)
	if !ok {
		return
	}

	body, err := negotiate.Feed(rep, h.deps.Feed.List())
	if err != nil {
		h.internalError(w, r, "render feed", err)
		return
	}
	writeBody(w, http.StatusOK, rep.ContentType(), body)
}

func (h *handlers) post(w http.ResponseWriter, r *http.Request) {
	req, err := decodePost(w, r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	token, ok := headerValue(r, "Authorization")
	if !ok {
		h.record(r, "", "feed.post", "", audit.OutcomeFailed, "missing authorization")
		writeText(w, http.StatusUnauthorized, "Authorization required")
		return
	}

	// Credential lock is held for the whole lookup-and-append; the feed lock
	// is taken inside it.
	var poster string
	err = h.deps.Credentials.WithTokenOwner(token, func(username string) error {
		poster = username
		h.deps.Feed.Append(feed.Post{Poster: username, Contents: req.Message})
		return nil
	})
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			h.record(r, "", "feed.post", "", audit.OutcomeFailed, "invalid authorization")
			writeText(w, http.StatusUnauthorized, "Invalid Authorization")
			return
		}
		h.internalError(w, r, "append post", err)
		return
	}

	h.record(r, poster, "feed.post", "", audit.OutcomeSuccess, "")
	w.WriteHeader(http.StatusCreated)
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCredentials(w, r)
	if err != nil {
		writeText(w, http.StatusBadRequest, "Request failed to parse")
		return
	}

	token, err := h.deps.Credentials.Register(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUsernameTaken) {
			h.record(r, req.Username, "account.register", req.Username, audit.OutcomeFailed, "username exists")
			writeText(w, http.StatusForbidden, "username already exists")
			return
		}
		h.internalError(w, r, "register user", err)
		return
	}

	h.record(r, req.Username, "account.register", req.Username, audit.OutcomeSuccess, "")
	h.writeJSON(w, r, http.StatusCreated, auth.Credentials{Username: req.Username, Token: token})
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCredentials(w, r)
	if err != nil {
		writeText(w, http.StatusBadRequest, "Request failed to parse")
		return
	}

	token, err := h.deps.Credentials.Authenticate(req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		h.record(r, req.Username, "account.login", "", audit.OutcomeFailed, "user not found")
		writeText(w, http.StatusUnauthorized, "User not found")
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.record(r, req.Username, "account.login", "", audit.OutcomeFailed, "invalid credentials")
		writeText(w, http.StatusUnauthorized, "Invalid credentials")
		return
	case err != nil:
		h.internalError(w, r, "authenticate user", err)
		return
	}

	h.record(r, req.Username, "account.login", "", audit.OutcomeSuccess, "")
	h.writeJSON(w, r, http.StatusOK, auth.Credentials{Username: req.Username, Token: token})
}

// representation negotiates the response encoding and answers 400 with an
// empty body when the Accept value is not one we serve.
func representation(w http.ResponseWriter, r *http.Request) (negotiate.Representation, bool) {
	accept, present := headerValue(r, "Accept")
	rep, err := negotiate.Select(accept, present)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return 0, false
	}
	return rep, true
}

// headerValue returns the first value of key and whether the header was sent
// at all, so an empty value can be told apart from a missing one.
func headerValue(r *http.Request, key string) (string, bool) {
	vals := r.Header.Values(key)
	if len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (h *handlers) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.deps.Logger.Error(op+" failed", "request_id", requestIDFromContext(r.Context()), "error", err)
	w.WriteHeader(http.StatusInternalServerError)
}

func (h *handlers) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		h.internalError(w, r, "encode response", err)
		return
	}
	writeBody(w, status, "application/json", bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
}

func writeText(w http.ResponseWriter, status int, message string) {
	writeBody(w, status, "text/plain; charset=utf-8", []byte(message))
}

func writeBody(w http.ResponseWriter, status int, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, reqID)))
	})
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).Round(time.Microsecond),
				"request_id", requestIDFromContext(r.Context()),
			)
		})
	}
}

type requestIDKey struct{}

func requestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

func clientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// record writes an audit event with request metadata. Tokens and passwords
// are never passed in, and audit failures do not change the response.
func (h *handlers) record(r *http.Request, actor, action, target, outcome, detail string) {
	if h.deps.Audit == nil {
		return
	}
	parts := []string{
		"rid=" + requestIDFromContext(r.Context()),
		"ip=" + clientIP(r),
		"ua=" + strings.TrimSpace(r.UserAgent()),
	}
	if strings.TrimSpace(detail) != "" {
		parts = append(parts, "detail="+strings.TrimSpace(detail))
	}
	if err := h.deps.Audit.Log(actor, action, target, outcome, strings.Join(parts, " | ")); err != nil {
		h.deps.Logger.Warn("audit log failed", "action", action, "request_id", requestIDFromContext(r.Context()), "error", err)
	}
}
