package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/acepenergy/acep/pkg/log"
	"github.com/acepenergy/acep/pkg/storage"
	"github.com/acepenergy/acep/pkg/types"
)

const (
	demoEmail    = "demo@acep.app"
	demoFullName = "ACEP Demo Account"
)

// maxBodyBytes limits request bodies to 1MB to prevent DoS.
const maxBodyBytes = 1 << 20

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = log.WithAttrs(ctx, slog.String("reqPath", r.URL.Path))

		allowNoLogin := r.URL.Path == "/api/auth/login" ||
			r.URL.Path == "/api/auth/demo" ||
			r.URL.Path == "/api/auth/status" ||
			r.URL.Path == "/api/auth/logout"

		if r.Body != nil && r.Method != http.MethodGet {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}

		var user types.User
		if s.bypassAuth {
			var err error
			user, err = s.getOrCreateUser(ctx, demoUser())
			if err != nil {
				log.Ctx(ctx).ErrorContext(ctx, "failed to load demo user", slog.Any("error", err))
				writeJSONError(w, "user lookup failed", http.StatusInternalServerError)
				return
			}
		} else {
			authCookie, err := r.Cookie(authTokenCookie)
			if err != nil && !errors.Is(err, http.ErrNoCookie) {
				log.Ctx(ctx).ErrorContext(ctx, "failed to get auth cookie", slog.Any("error", err))
				writeJSONError(w, "missing auth cookie", http.StatusBadRequest)
				return
			}
			if authCookie != nil {
				userID, err := s.parseSession(authCookie.Value)
				if err != nil {
					log.Ctx(ctx).WarnContext(ctx, "session validation failed", slog.Any("error", err))
					s.clearCookie(w)
					if !allowNoLogin {
						writeJSONError(w, "invalid auth token", http.StatusUnauthorized)
						return
					}
				} else {
					user, err = s.storage.GetUser(ctx, userID)
					if err != nil {
						if errors.Is(err, storage.ErrUserNotFound) {
							log.Ctx(ctx).WarnContext(ctx, "session user not found", slog.String("userID", userID))
							s.clearCookie(w)
							if !allowNoLogin {
								writeJSONError(w, "unauthorized", http.StatusUnauthorized)
								return
							}
						} else {
							log.Ctx(ctx).ErrorContext(ctx, "user lookup failed", slog.String("userID", userID), slog.Any("error", err))
							writeJSONError(w, "user lookup failed", http.StatusInternalServerError)
							return
						}
					}
				}
			} else if !allowNoLogin {
				log.Ctx(ctx).WarnContext(ctx, "no auth cookie found")
				writeJSONError(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		if user.ID != "" {
			ctx = log.WithAttrs(ctx, slog.String("authUserID", user.ID))
			log.Ctx(ctx).DebugContext(ctx, "authenticated request", slog.String("email", user.Email))
		}
		ctx = context.WithValue(ctx, userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionClaims are carried in the auth cookie; the subject is the user ID.
type sessionClaims struct {
	jwt.RegisteredClaims
}

func (s *Server) newSession(userID string) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.sessionDuration)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(s.sessionSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session: %w", err)
	}
	return signed, expires, nil
}

func (s *Server) parseSession(raw string) (string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	var claims sessionClaims
	_, err := parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.sessionSecret, nil
	})
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("session has no subject")
	}
	return claims.Subject, nil
}

func (s *Server) setSessionCookie(w http.ResponseWriter, userID string) error {
	token, expires, err := s.newSession(userID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     authTokenCookie,
		Value:    token,
		Expires:  expires,
		HttpOnly: true,
		Secure:   true,
		Path:     "/",
		SameSite: http.SameSiteStrictMode,
	})
	return nil
}

func (s *Server) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     authTokenCookie,
		Value:    "",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   true,
		Path:     "/",
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
}

func demoUser() types.User {
	return types.User{
		Email:     demoEmail,
		FullName:  demoFullName,
		Role:      types.RoleDemo,
		Latitude:  types.DefaultLatitude,
		Longitude: types.DefaultLongitude,
	}
}

// getOrCreateUser returns the stored user with template's email, creating it
// from template when there is none.
func (s *Server) getOrCreateUser(ctx context.Context, template types.User) (types.User, error) {
	user, err := s.storage.GetUserByEmail(ctx, template.Email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, storage.ErrUserNotFound) {
		return types.User{}, err
	}

	user = template
	user.ID = uuid.NewString()
	user.CreatedAt = s.now().UTC()
	if user.Role == "" {
		user.Role = types.RoleUser
	}
	if user.FullName == "" {
		user.FullName, _, _ = strings.Cut(user.Email, "@")
	}
	if user.Latitude == 0 && user.Longitude == 0 {
		user.Latitude = types.DefaultLatitude
		user.Longitude = types.DefaultLongitude
	}
	if err := s.storage.CreateUser(ctx, user); err != nil {
		return types.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	log.Ctx(ctx).InfoContext(ctx, "created user", slog.String("userID", user.ID), slog.String("email", user.Email))
	return user, nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		Token  string `json:"token"`
		Client string `json:"client"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// since we failed to read, don't return JSON error
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	token, err := s.authenticateToken(ctx, req.Token, req.Client)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to validate id token", slog.Any("error", err))
		writeJSONError(w, "invalid id token", http.StatusUnauthorized)
		return
	}

	if token.Email == "" {
		log.Ctx(ctx).WarnContext(ctx, "invalid email in id token")
		writeJSONError(w, "invalid oidc claims", http.StatusUnauthorized)
		return
	}

	user, err := s.getOrCreateUser(ctx, types.User{Email: token.Email, FullName: token.Name})
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get or create user", slog.Any("error", err))
		writeJSONError(w, "failed to log in", http.StatusInternalServerError)
		return
	}
	log.Ctx(ctx).InfoContext(ctx, "login token validated successfully", slog.String("email", token.Email), slog.String("subject", token.Subject))

	if err := s.setSessionCookie(w, user.ID); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to create session", slog.Any("error", err))
		writeJSONError(w, "failed to log in", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleDemoLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := s.getOrCreateUser(ctx, demoUser())
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get or create demo user", slog.Any("error", err))
		writeJSONError(w, "failed to log in", http.StatusInternalServerError)
		return
	}
	if err := s.setSessionCookie(w, user.ID); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to create session", slog.Any("error", err))
		writeJSONError(w, "failed to log in", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.clearCookie(w)
	w.WriteHeader(http.StatusOK)
}

type authStatusResponse struct {
	LoggedIn     bool              `json:"loggedIn"`
	User         *types.User       `json:"user,omitempty"`
	AuthRequired bool              `json:"authRequired"`
	ClientIDs    map[string]string `json:"clientIDs"`
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	resp := authStatusResponse{
		AuthRequired: !s.bypassAuth,
		ClientIDs:    s.oidcAudiences,
	}
	if user := s.getUser(r); user.ID != "" {
		resp.LoggedIn = true
		resp.User = &user
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) authenticateToken(ctx context.Context, token string, specificClient string) (verifiedToken, error) {
	var errs []error

	for providerName, verifier := range s.oidcVerifiers {
		if specificClient != "" && providerName != specificClient {
			continue
		}
		verified, err := verifier(ctx, token)
		if err == nil {
			return verified, nil
		}
		errs = append(errs, fmt.Errorf("%s verifier failed: %v", providerName, err))
	}

	if len(errs) > 1 {
		return verifiedToken{}, errors.Join(errs...)
	}
	if len(errs) == 1 {
		return verifiedToken{}, errs[0]
	}
	return verifiedToken{}, errors.New("no valid audiences configured or token invalid")
}
