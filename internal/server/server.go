package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"otp-drop/internal/identity"
	"otp-drop/internal/store"
)

// FileStore is the file bundle service behind the /store routes.
type FileStore interface {
	MaxUploadBytes() int64
	Store(ctx context.Context, src store.FileSource) (*store.Bundle, error)
	Resolve(ctx context.Context, otp string) (*store.Resolution, error)
	Lookup(ctx context.Context, name string) (*store.StoredFile, error)
	Open(ctx context.Context, f *store.StoredFile) (io.ReadCloser, error)
	Archive(ctx context.Context, otp string) (*store.Archive, *store.Resolution, error)
	Check(ctx context.Context) error
}

// Accounts is the identity service behind the /auth routes.
type Accounts interface {
	Signup(ctx context.Context, req identity.SignupRequest) (*identity.User, error)
	Signin(ctx context.Context, req identity.SigninRequest) (json.RawMessage, error)
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type BuildInfo struct {
	Version string
	Commit  string
}

type Config struct {
	Addr string // e.g. ":8080"

	Store    FileStore
	Accounts Accounts
	DB       Pinger

	APIKey string
	// PublicBaseURL prefixes download links; empty means derive from the request.
	PublicBaseURL string
	// AccessRatePerMin limits OTP lookups per client IP.
	AccessRatePerMin int

	Build  BuildInfo
	Logger *slog.Logger
}

type Server struct {
	cfg        Config
	logger     *slog.Logger
	handler    http.Handler
	httpServer *http.Server
	limiter    *rateLimiter
}

func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{cfg: cfg, logger: logger}
	if cfg.AccessRatePerMin > 0 {
		s.limiter = newRateLimiter(cfg.AccessRatePerMin, time.Minute)
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(metricsMiddleware)
	r.Use(recoverMiddleware(logger))
	r.Use(securityHeadersMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	r.With(apiKeyMiddleware(cfg.APIKey)).Get("/", s.rootHandler())

	r.Get("/health/live", s.handleLive)
	r.Get("/health/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/store", func(r chi.Router) {
		r.Post("/", s.uploadHandler())
		r.Get("/download/{stored_filename}", s.downloadHandler())
		r.Group(func(r chi.Router) {
			if s.limiter != nil {
				r.Use(s.limiter.middleware)
			}
			r.With(newCompression()).Post("/access", s.accessHandler())
			r.Post("/access/zip", s.zipHandler())
		})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", s.signupHandler())
		r.Post("/signin", s.signinHandler())
	})

	s.handler = r
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	return s
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.stop()
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) rootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "Online"})
	}
}
