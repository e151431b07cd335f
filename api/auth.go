package api

import (
	"crypto/sha256"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Token hashing costs.
const (
	DefaultTokenCost = 12
	MinTokenCost     = 10
)

// Rate limits applied to bad tokens.
const (
	DefaultMaxAttempts   = 5
	DefaultAttemptWindow = 15 * time.Minute
	DefaultBlockDuration = 30 * time.Minute
)

var (
	// ErrEmptyToken is returned when hashing an empty token.
	ErrEmptyToken = errors.New("token cannot be empty")

	// ErrTokenMismatch is returned when a token does not match the hash.
	ErrTokenMismatch = errors.New("token does not match")
)

// HashToken returns the bcrypt hash to put in API_TOKEN_HASH.
func HashToken(token string) (string, error) {
	return HashTokenWithCost(token, DefaultTokenCost)
}

// HashTokenWithCost is HashToken with an explicit bcrypt cost.
func HashTokenWithCost(token string, cost int) (string, error) {
	if token == "" {
		return "", ErrEmptyToken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyToken compares token with a bcrypt hash.
func VerifyToken(token, hash string) error {
	if token == "" || hash == "" {
		return ErrTokenMismatch
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
		return ErrTokenMismatch
	}
	return nil
}

// TokenAuth guards routes with a bearer token checked against one bcrypt
// hash. Verified tokens are remembered by digest so bcrypt runs once per
// token rather than once per request.
type TokenAuth struct {
	hash    string
	limiter *RateLimiter
	logger  *zap.Logger

	mu       sync.RWMutex
	verified map[[sha256.Size]byte]struct{}
}

// NewTokenAuth creates a TokenAuth. An empty hash disables the check.
func NewTokenAuth(hash string, limiter *RateLimiter, logger *zap.Logger) *TokenAuth {
	if limiter == nil {
		limiter = NewRateLimiter(DefaultMaxAttempts, DefaultAttemptWindow, DefaultBlockDuration)
	}
	return &TokenAuth{
		hash:     hash,
		limiter:  limiter,
		logger:   logger,
		verified: make(map[[sha256.Size]byte]struct{}),
	}
}

// Enabled reports whether requests need a token.
func (a *TokenAuth) Enabled() bool {
	return a.hash != ""
}

// Limiter returns the rate limiter for bad tokens.
func (a *TokenAuth) Limiter() *RateLimiter {
	return a.limiter
}

// MiddlewareFunc wraps next with the token check.
func (a *TokenAuth) MiddlewareFunc(next http.HandlerFunc, reject func(w http.ResponseWriter, status int, detail string)) http.HandlerFunc {
	if !a.Enabled() {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ip := getClientIP(r)
		if ok, remaining := a.limiter.Allow(ip); !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(remaining.Seconds()))))
			reject(w, http.StatusTooManyRequests, "too many failed authentication attempts")
			return
		}

		token, ok := bearerToken(r)
		if !ok || !a.check(token) {
			a.limiter.RecordAttempt(ip)
			a.logger.Warn("Rejected request with invalid token",
				zap.String("request_id", RequestIDFrom(r.Context())),
				zap.String("remote_addr", ip),
				zap.String("path", r.URL.Path),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="stega"`)
			reject(w, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}

		a.limiter.Reset(ip)
		next(w, r)
	}
}

func (a *TokenAuth) check(token string) bool {
	digest := sha256.Sum256([]byte(token))

	a.mu.RLock()
	_, ok := a.verified[digest]
	a.mu.RUnlock()
	if ok {
		return true
	}

	if VerifyToken(token, a.hash) != nil {
		return false
	}
	a.mu.Lock()
	a.verified[digest] = struct{}{}
	a.mu.Unlock()
	return true
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
