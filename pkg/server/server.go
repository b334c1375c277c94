package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/levenlabs/go-lflag"

	"github.com/acepenergy/acep/pkg/chat"
	"github.com/acepenergy/acep/pkg/log"
	"github.com/acepenergy/acep/pkg/metrics"
	"github.com/acepenergy/acep/pkg/storage"
	"github.com/acepenergy/acep/pkg/types"
	"github.com/acepenergy/acep/pkg/weather"
)

const authTokenCookie = "auth_token"

type contextKey string

const userContextKey contextKey = "user"

// verifiedToken is what a successfully verified ID token tells us about the
// caller.
type verifiedToken struct {
	Email   string
	Name    string
	Subject string
	Expiry  time.Time
}

// tokenVerifier validates a Google or Apple ID Token.
type tokenVerifier func(ctx context.Context, rawIDToken string) (verifiedToken, error)

// Server handles the HTTP API for projecting whether stored and generated
// energy covers scheduled consumption.
type Server struct {
	storage storage.Database
	weather *weather.Client
	chat    *chat.Relay

	listenAddr string
	devProxy   string
	httpServer *http.Server

	oidcAudiences   map[string]string
	oidcVerifiers   map[string]tokenVerifier
	bypassAuth      bool
	sessionSecret   []byte
	sessionDuration time.Duration
	serverName      string

	now func() time.Time
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(s storage.Database, w *weather.Client, c *chat.Relay) *Server {
	srv := &Server{
		storage:    s,
		weather:    w,
		chat:       c,
		serverName: "acep",
		now:        time.Now,
	}
	revision := os.Getenv("K_REVISION")
	if revision != "" {
		srv.serverName = revision
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	devProxy := lflag.String("dev-proxy", "", "Address of the dev server (e.g. http://localhost:5173)")
	oidcAudiences := map[string]string{}
	lflag.JSON(&oidcAudiences, "oidc-audiences", oidcAudiences, "JSON map of provider (google/apple) to audience/client ID")
	sessionSecret := lflag.String("session-secret", "", "Secret used to sign session cookies (at least 32 characters)")
	sessionDuration := lflag.Duration("session-duration", 7*24*time.Hour, "How long a session cookie stays valid")
	bypassAuth := lflag.Bool("bypass-auth", false, "Serve every request as the demo account")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.devProxy = *devProxy
		if len(oidcAudiences) > 0 {
			srv.oidcAudiences = make(map[string]string, len(oidcAudiences))
			srv.oidcVerifiers = make(map[string]tokenVerifier, len(oidcAudiences))
			for n, a := range oidcAudiences {
				var issuer string
				switch n {
				case "google":
					issuer = "https://accounts.google.com"
				case "apple":
					issuer = "https://appleid.apple.com"
				default:
					log.Ctx(context.Background()).Error("unsupported oidc audience client", slog.String("client", n))
					os.Exit(1)
				}
				provider, err := oidc.NewProvider(context.Background(), issuer)
				if err != nil {
					log.Ctx(context.Background()).Error("failed to initialize OIDC provider", slog.String("client", n), slog.Any("error", err))
					os.Exit(1)
				}
				srv.oidcVerifiers[n] = oidcTokenVerifier(provider.Verifier(&oidc.Config{ClientID: a}))
				srv.oidcAudiences[n] = a
			}
		}
		srv.sessionDuration = *sessionDuration
		srv.bypassAuth = *bypassAuth
		if srv.devProxy != "" && len(srv.oidcAudiences) == 0 {
			srv.bypassAuth = true
		}

		if !srv.bypassAuth && len(*sessionSecret) < 32 {
			log.Ctx(context.Background()).Error("session-secret must be at least 32 characters")
			os.Exit(1)
		}
		srv.sessionSecret = []byte(*sessionSecret)
	})

	return srv
}

// oidcTokenVerifier adapts an oidc verifier to a tokenVerifier.
func oidcTokenVerifier(v *oidc.IDTokenVerifier) tokenVerifier {
	return func(ctx context.Context, raw string) (verifiedToken, error) {
		idToken, err := v.Verify(ctx, raw)
		if err != nil {
			return verifiedToken{}, err
		}
		var claims struct {
			Email string `json:"email"`
			Name  string `json:"name"`
		}
		if err := idToken.Claims(&claims); err != nil {
			return verifiedToken{}, err
		}
		return verifiedToken{
			Email:   claims.Email,
			Name:    claims.Name,
			Subject: idToken.Subject,
			Expiry:  idToken.Expiry,
		}, nil
	}
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		apiMux.Handle(pattern, metricsMiddleware(pattern, h))
	}
	route("GET /api/auth/status", s.handleAuthStatus)
	route("POST /api/auth/login", s.handleLogin)
	route("POST /api/auth/demo", s.handleDemoLogin)
	route("POST /api/auth/logout", s.handleLogout)
	route("GET /api/settings", s.handleGetSettings)
	route("POST /api/settings", s.handleUpdateSettings)

	route("GET /api/tools", s.handleListTools)
	route("POST /api/tools", s.handleCreateTool)
	route("PUT /api/tools/{id}", s.handleUpdateTool)
	route("DELETE /api/tools/{id}", s.handleDeleteTool)
	route("GET /api/plants", s.handleListPlants)
	route("POST /api/plants", s.handleCreatePlant)
	route("GET /api/plants/generation", s.handlePlantGeneration)
	route("PUT /api/plants/{id}", s.handleUpdatePlant)
	route("DELETE /api/plants/{id}", s.handleDeletePlant)
	route("GET /api/storage", s.handleListStorage)
	route("POST /api/storage", s.handleCreateStorage)
	route("PUT /api/storage/{id}", s.handleUpdateStorage)
	route("DELETE /api/storage/{id}", s.handleDeleteStorage)

	route("GET /api/schedules", s.handleListSchedules)
	route("PUT /api/schedules/{id}", s.handleUpdateSchedule)
	route("DELETE /api/schedules/{id}", s.handleDeleteSchedule)
	route("GET /api/days/{date}", s.handleGetDay)
	route("PUT /api/days/{date}", s.handleSaveDay)

	route("GET /api/projection", s.handleProjection)
	route("GET /api/projection/export", s.handleProjectionExport)
	route("GET /api/projection/chart", s.handleProjectionChart)
	route("GET /api/calendar", s.handleCalendar)

	route("GET /api/weather", s.handleWeather)
	route("POST /api/chat", s.handleChat)
	route("GET /api/chat/history", s.handleChatHistory)

	mux := http.NewServeMux()
	mux.Handle("/api/", s.authMiddleware(apiMux))

	// the frontend is built and served separately; in development proxy to it
	if s.devProxy != "" {
		u, err := url.Parse(s.devProxy)
		if err != nil {
			panic(fmt.Errorf("invalid dev-proxy url (%s): %w", s.devProxy, err))
		}
		mux.Handle("/", httputil.NewSingleHostReverseProxy(u))
	}
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("GET /metrics", metrics.Handler())
	return s.revisionMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux)))
}

func (s *Server) getUser(r *http.Request) types.User {
	if user, ok := r.Context().Value(userContextKey).(types.User); ok {
		return user
	}
	return types.User{}
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// Context canceled, shut down gracefully
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}
