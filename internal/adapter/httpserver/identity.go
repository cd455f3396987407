package httpserver

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
	"github.com/Eagleeye1811/insightify-sub000/internal/observability"
)

// AnonymousUser is the uid used when a request carries no identity.
const AnonymousUser = "anonymous"

// Claims is the JWT payload accepted by the gateway. UID wins over Subject.
type Claims struct {
	UID string `json:"uid,omitempty"`
	jwt.RegisteredClaims
}

// NewToken signs an HS256 token for uid valid for ttl.
func NewToken(secret, uid string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UID: uid,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("op=identity.sign: %w", err)
	}
	return signed, nil
}

// ParseToken validates an HS256 token and returns its uid.
func ParseToken(secret, raw string) (string, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("op=identity.parse: %w: %w", domain.ErrUnauthorized, err)
	}
	uid := claims.UID
	if uid == "" {
		uid = claims.Subject
	}
	if uid == "" {
		return "", fmt.Errorf("op=identity.parse: %w: token has no subject", domain.ErrUnauthorized)
	}
	return uid, nil
}

// Identity resolves the caller from a Bearer JWT (when secret is set) or the
// X-User-Id header. An invalid token is rejected; a missing one is not.
// Handlers that accept a body userId apply it through userFrom.
func Identity(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var uid string
			if secret != "" {
				if raw, ok := bearer(r); ok {
					parsed, err := ParseToken(secret, raw)
					if err != nil {
						writeError(w, r, err, nil)
						return
					}
					uid = parsed
				}
			}
			if uid == "" {
				uid = strings.TrimSpace(r.Header.Get("X-User-Id"))
			}
			if uid == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := observability.ContextWithUserID(r.Context(), uid)
			ctx = observability.ContextWithLogger(ctx, LoggerFrom(r).With(slog.String("user_id", uid)))
			trace.SpanFromContext(ctx).SetAttributes(attribute.String("enduser.id", uid))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(h[7:])
	return tok, tok != ""
}

// userFrom returns the resolved caller, then the body fallback, then anonymous.
func userFrom(r *http.Request, bodyUserID string) string {
	if uid := observability.UserIDFromContext(r.Context()); uid != "" {
		return uid
	}
	if uid := strings.TrimSpace(bodyUserID); uid != "" {
		return uid
	}
	return AnonymousUser
}
