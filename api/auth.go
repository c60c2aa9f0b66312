/*
auth.go - Caller identity

PURPOSE:
  Resolves who is calling before any handler runs. Identity and roles are
  owned by the upstream identity provider; this service only reads them.

MODES:
  - JWT (Secret set): "Authorization: Bearer <token>", HS256, claims
    "sub" (user ID) and "role" ("employee" | "admin").
  - Header (Secret empty, development): "X-User-ID" and "X-User-Role".

SEE ALSO:
  - server.go: Where the middleware is mounted
  - cmd/seatctl: "token" command issues development tokens
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/warp/seat-engine/seating"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID seating.UserID
	Role   seating.Role
}

func (i Identity) IsAdmin() bool { return i.Role == seating.RoleAdmin }

type identityKey struct{}

func withIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the caller stored by Authenticator.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

var (
	errMissingCredentials = errors.New("missing credentials")
	errInvalidToken       = errors.New("invalid token")
)

// Authenticator is the identity middleware.
type Authenticator struct {
	Secret []byte
}

func (a Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.identify(r)
		if err != nil {
			writeErrorCode(w, http.StatusUnauthorized, "Unauthenticated", "Authentication required", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
	})
}

func (a Authenticator) identify(r *http.Request) (Identity, error) {
	if len(a.Secret) == 0 {
		userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if userID == "" {
			return Identity{}, errMissingCredentials
		}
		return Identity{UserID: seating.UserID(userID), Role: roleOrDefault(r.Header.Get(HeaderUserRole))}, nil
	}

	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return Identity{}, errMissingCredentials
	}
	return ParseToken(a.Secret, raw)
}

// ParseToken validates an HS256 token and extracts the caller.
func ParseToken(secret []byte, raw string) (Identity, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("%w: %v", errInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errInvalidToken
	}
	sub, _ := claims.GetSubject()
	if sub == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", errInvalidToken)
	}
	role, _ := claims["role"].(string)
	return Identity{UserID: seating.UserID(sub), Role: roleOrDefault(role)}, nil
}

// IssueToken signs a development token for userID.
func IssueToken(secret []byte, userID seating.UserID, role seating.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  string(userID),
		"role": string(role),
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func roleOrDefault(s string) seating.Role {
	if seating.Role(strings.ToLower(strings.TrimSpace(s))) == seating.RoleAdmin {
		return seating.RoleAdmin
	}
	return seating.RoleEmployee
}

// RequireAdmin rejects non-admin callers with 403.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		if !ok || !id.IsAdmin() {
			writeErrorCode(w, http.StatusForbidden, "Forbidden", "Admin role required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
