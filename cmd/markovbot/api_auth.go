package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
)

// authHeader carries the raw API key on every authenticated request.
const authHeader = "markovbot-auth"

const (
	scopeAll          = "*"
	scopeMarkovRead   = "markov:read"
	scopeMarkovWrite  = "markov:write"
	scopeServerManage = "server:manage"
)

var knownScopes = map[string]struct{}{
	scopeAll:          {},
	scopeMarkovRead:   {},
	scopeMarkovWrite:  {},
	scopeServerManage: {},
}

type contextKey string

const contextKeyPermissions = contextKey("permissions")

// Permissions holds the authentication info for a request.
type Permissions struct {
	ScopeSet map[string]struct{}
}

// APIKey is a configured credential. Only the SHA-256 of the raw key is kept.
type APIKey struct {
	KeyHash     string   `json:"key_hash" yaml:"key_hash"`
	Scopes      []string `json:"scopes" yaml:"scopes"`
	Description string   `json:"description" yaml:"description"`
}

// AuthAPI guards the /api routes with the configured keys.
type AuthAPI struct {
	keys   map[string]*Permissions
	logger *slog.Logger
}

func NewAuthAPI(keys []APIKey, logger *slog.Logger) *AuthAPI {
	a := &AuthAPI{
		keys:   make(map[string]*Permissions, len(keys)),
		logger: logger,
	}
	for _, k := range keys {
		scopeSet := make(map[string]struct{}, len(k.Scopes))
		for _, s := range k.Scopes {
			scopeSet[s] = struct{}{}
		}
		a.keys[strings.ToLower(k.KeyHash)] = &Permissions{ScopeSet: scopeSet}
	}
	return a
}

// RegisterRoutes sets up the routing for all /api/auth endpoints.
func (a *AuthAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/me", a.handleCheckMe)
}

// Authenticate checks the key in the markovbot-auth header and stores the
// matching permissions in the request context. Without any configured keys
// the API is open, but only to loopback clients.
func (a *AuthAPI) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(a.keys) == 0 {
			if !isLoopback(r.RemoteAddr) {
				a.logger.Warn("Rejected remote request, no API keys are configured", "remote_addr", r.RemoteAddr)
				respondWithError(w, http.StatusUnauthorized, "API keys must be configured for remote access")
				return
			}
			ctx := context.WithValue(r.Context(), contextKeyPermissions, &Permissions{ScopeSet: map[string]struct{}{scopeAll: {}}})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		apiKey := r.Header.Get(authHeader)
		if apiKey == "" {
			respondWithError(w, http.StatusUnauthorized, "Missing API key")
			return
		}
		perms, ok := a.keys[hashAPIKey(apiKey)]
		if !ok {
			a.logger.Warn("Rejected request with unknown API key", "remote_addr", r.RemoteAddr)
			respondWithError(w, http.StatusUnauthorized, "Invalid API key")
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyPermissions, perms)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *AuthAPI) handleCheckMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	perms, ok := r.Context().Value(contextKeyPermissions).(*Permissions)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Invalid or missing key")
		return
	}

	scopes := make([]string, 0, len(perms.ScopeSet))
	for s := range perms.ScopeSet {
		scopes = append(scopes, s)
	}
	sort.Strings(scopes)

	respondWithJSON(w, http.StatusOK, map[string]any{
		"scopes": scopes,
	})
}

// requireScope rejects requests whose key lacks scope with 403.
func requireScope(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !hasScope(r, scope) {
			respondWithError(w, http.StatusForbidden, fmt.Sprintf("Forbidden: requires '%s' scope", scope))
			return
		}
		next(w, r)
	}
}

// requireMarkovScope needs markov:read for GET and markov:write for anything else.
func requireMarkovScope(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope := scopeMarkovWrite
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			scope = scopeMarkovRead
		}
		requireScope(scope, next)(w, r)
	}
}

// hasScope checks if the permission set in the request context includes a required scope.
func hasScope(r *http.Request, requiredScope string) bool {
	perms, ok := r.Context().Value(contextKeyPermissions).(*Permissions)
	if !ok {
		return false
	}

	if _, isMaster := perms.ScopeSet[scopeAll]; isMaster {
		return true
	}

	_, has := perms.ScopeSet[requiredScope]
	return has
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func generateAPIKey() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return "mkb_" + hex.EncodeToString(bytes), nil
}

func hashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
