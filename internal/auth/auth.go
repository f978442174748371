// Package auth establishes who is calling the API.
//
// A caller is identified either by the X-Authenticated-User header, which
// the session gateway sets after its own login check, or by an X-API-Key
// whose SHA-256 is configured with a user and a set of scopes. Only the
// hash of a key is ever held in memory.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
)

// Scope is a permission an identity carries.
type Scope string

const (
	ScopeRead  Scope = "read"
	ScopeTrade Scope = "trade"
)

// Header names.
const (
	SessionHeader = "X-Authenticated-User"
	APIKeyHeader  = "X-API-Key"
)

// Identity is an authenticated caller.
type Identity struct {
	UserID string
	Scopes []Scope
	Via    string // "session" or "api_key"
}

// Has reports whether the identity carries s.
func (id Identity) Has(s Scope) bool {
	return slices.Contains(id.Scopes, s)
}

type ctxKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity set by Middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// Key is a configured API key.
type Key struct {
	UserID string
	Hash   [sha256.Size]byte
	Scopes []Scope
}

// ParseKey builds a Key from the hex SHA-256 of the raw key. Scopes
// default to read only.
func ParseKey(userID, hexHash string, scopes []string) (Key, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(hexHash))
	if err != nil || len(raw) != sha256.Size {
		return Key{}, fmt.Errorf("auth: key for %s is not a hex sha256", userID)
	}
	k := Key{UserID: userID}
	copy(k.Hash[:], raw)
	for _, s := range scopes {
		switch Scope(strings.ToLower(s)) {
		case ScopeRead:
			k.Scopes = append(k.Scopes, ScopeRead)
		case ScopeTrade:
			k.Scopes = append(k.Scopes, ScopeTrade)
		default:
			return Key{}, fmt.Errorf("auth: unknown scope %q for %s", s, userID)
		}
	}
	if len(k.Scopes) == 0 {
		k.Scopes = []Scope{ScopeRead}
	}
	return k, nil
}

// HashKey returns the hex SHA-256 of a raw key, as stored in config.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Authenticator resolves request credentials to an Identity.
type Authenticator struct {
	keys []Key
}

// NewAuthenticator accepts the session header and the given keys.
func NewAuthenticator(keys []Key) *Authenticator {
	return &Authenticator{keys: keys}
}

// Middleware rejects requests without credentials with 401 and stores the
// identity in the request context otherwise. Session users hold every
// scope.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := strings.TrimSpace(r.Header.Get(SessionHeader)); user != "" {
			id := Identity{UserID: user, Scopes: []Scope{ScopeRead, ScopeTrade}, Via: "session"}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
			return
		}
		if raw := r.Header.Get(APIKeyHeader); raw != "" {
			if id, ok := a.lookup(raw); ok {
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
				return
			}
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid api key")
			return
		}
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
	})
}

// lookup compares against every key so timing does not reveal a match.
func (a *Authenticator) lookup(raw string) (Identity, bool) {
	sum := sha256.Sum256([]byte(raw))
	var found *Key
	for i := range a.keys {
		if subtle.ConstantTimeCompare(sum[:], a.keys[i].Hash[:]) == 1 {
			found = &a.keys[i]
		}
	}
	if found == nil {
		return Identity{}, false
	}
	return Identity{UserID: found.UserID, Scopes: found.Scopes, Via: "api_key"}, true
}

// RequireScope rejects identities lacking s with 403.
func RequireScope(s Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := FromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
				return
			}
			if !id.Has(s) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", fmt.Sprintf("%s scope required", s))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AdminOnly requires "Authorization: Bearer <token>".
func AdminOnly(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "admin token required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"code": code, "message": message})
}
