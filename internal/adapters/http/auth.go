package httpadapter

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/anshultibby/pocket-fashion/internal/core/domain"
	"github.com/anshultibby/pocket-fashion/internal/core/ports"
)

// userUpsertInterval bounds how often one account touches the users table.
const userUpsertInterval = 5 * time.Minute

type userContextKey struct{}

func UserFromContext(ctx context.Context) (domain.User, bool) {
	user, ok := ctx.Value(userContextKey{}).(domain.User)
	return user, ok
}

type wardrobeClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// Authenticator validates the HS256 session tokens minted at login and keeps
// the users table in sync with the claims it sees.
type Authenticator struct {
	secret []byte
	users  ports.UserRepository
	logger *slog.Logger

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewAuthenticator(secret string, users ports.UserRepository, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		secret: []byte(secret),
		users:  users,
		logger: logger,
		seen:   make(map[string]time.Time),
	}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No secret configured means single-tenant development mode.
		if len(a.secret) == 0 {
			userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
			if userID == "" {
				userID = "local"
			}
			ctx := context.WithValue(r.Context(), userContextKey{}, domain.User{ID: userID})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		user, err := a.authenticate(r.Header.Get("Authorization"))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}

		a.recordSighting(r.Context(), user)

		ctx := context.WithValue(r.Context(), userContextKey{}, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) authenticate(headerValue string) (domain.User, error) {
	headerValue = strings.TrimSpace(headerValue)
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(headerValue, bearerPrefix) {
		return domain.User{}, fmt.Errorf("missing bearer token")
	}
	raw := strings.TrimSpace(strings.TrimPrefix(headerValue, bearerPrefix))

	claims := &wardrobeClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return domain.User{}, fmt.Errorf("invalid token: %w", err)
	}
	if claims.Subject == "" {
		return domain.User{}, fmt.Errorf("token has no subject")
	}

	return domain.User{
		ID:    claims.Subject,
		Email: claims.Email,
		Name:  claims.Name,
	}, nil
}

// recordSighting upserts the account, throttled so hot users do not hammer
// the table on every request. Failures are logged, never surfaced: a stale
// last_seen_at must not block wardrobe access.
func (a *Authenticator) recordSighting(ctx context.Context, user domain.User) {
	if a.users == nil {
		return
	}

	now := time.Now().UTC()
	a.mu.Lock()
	last, ok := a.seen[user.ID]
	if ok && now.Sub(last) < userUpsertInterval {
		a.mu.Unlock()
		return
	}
	a.seen[user.ID] = now
	a.mu.Unlock()

	err := a.users.Upsert(ctx, &domain.User{
		ID:         user.ID,
		Email:      user.Email,
		Name:       user.Name,
		CreatedAt:  now,
		LastSeenAt: now,
	})
	if err != nil {
		a.logger.Warn("user upsert failed", "user_id", user.ID, "error", err)
	}
}
