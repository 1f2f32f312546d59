package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

const bearerPrefix = "Bearer "

type tokenKey struct{}

// WithToken stores the caller's raw bearer token so outbound calls can forward it.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the bearer token attached by the middleware, if any.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// Verifier checks HMAC-signed access tokens.
type Verifier struct {
	key    []byte
	parser *jwt.Parser
}

// NewVerifier builds a verifier from a base64 encoded HMAC secret.
func NewVerifier(secret string) (*Verifier, error) {
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("decode jwt secret: %w", err)
	}
	if len(key) == 0 {
		return nil, errors.New("jwt secret is empty")
	}
	return &Verifier{
		key: key,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{
			jwt.SigningMethodHS256.Alg(),
			jwt.SigningMethodHS384.Alg(),
			jwt.SigningMethodHS512.Alg(),
		})),
	}, nil
}

func (v *Verifier) Verify(token string) error {
	parsed, err := v.parser.Parse(token, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return err
	}
	if !parsed.Valid {
		return errors.New("token is not valid")
	}
	return nil
}

// Middleware verifies bearer tokens when present and keeps them on the request
// context. Requests without an Authorization header pass through untouched.
// A nil verifier disables verification but still captures the token.
func Middleware(verifier *Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, bearerPrefix) {
				next.ServeHTTP(w, r)
				return
			}

			token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
			if verifier != nil {
				if err := verifier.Verify(token); err != nil {
					logger.Warn("rejected bearer token", "error", err, "path", r.URL.Path)
					writeUnauthorized(w)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithToken(r.Context(), token)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid jwt token", "code": "unauthorized"})
}
