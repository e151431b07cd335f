package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"
)

func TestHashToken(t *testing.T) {
	hash, err := HashTokenWithCost("s3cret-token", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashTokenWithCost() error = %v", err)
	}
	if err := VerifyToken("s3cret-token", hash); err != nil {
		t.Errorf("VerifyToken(correct) = %v", err)
	}
	if err := VerifyToken("wrong", hash); !errors.Is(err, ErrTokenMismatch) {
		t.Errorf("VerifyToken(wrong) = %v, want ErrTokenMismatch", err)
	}
	if err := VerifyToken("", hash); !errors.Is(err, ErrTokenMismatch) {
		t.Errorf("VerifyToken(empty) = %v", err)
	}
	if _, err := HashToken(""); !errors.Is(err, ErrEmptyToken) {
		t.Errorf("HashToken(\"\") = %v, want ErrEmptyToken", err)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer  abc ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		token, ok := bearerToken(r)
		if token != tt.token || ok != tt.ok {
			t.Errorf("bearerToken(%q) = %q, %v, want %q, %v", tt.header, token, ok, tt.token, tt.ok)
		}
	}
}

func withToken(t *testing.T, token string) envOption {
	hash, err := HashTokenWithCost(token, bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return func(c *ServerConfig, _ *Dependencies) { c.APITokenHash = hash }
}

func TestAuth_ProtectsOperations(t *testing.T) {
	env := newTestEnv(t, withToken(t, "s3cret"))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "Bearer nope", http.StatusUnauthorized},
		{"correct", "Bearer s3cret", http.StatusOK},
		{"cached", "Bearer s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := uploadRequest(t, "/api/v1/encode", map[string]string{"message": "Hello12"}, "a.png", pngBytes(t))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := env.do(req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}

	for _, path := range []string{"/api/v1/ping", "/api/v1/models", "/health"} {
		if rec := env.do(httptest.NewRequest(http.MethodGet, path, nil)); rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want open route", path, rec.Code)
		}
	}
	for _, path := range []string{"/api/v1/history", "/api/v1/status", "/ws"} {
		if rec := env.do(httptest.NewRequest(http.MethodGet, path, nil)); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", path, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	if rec := env.do(req); rec.Code != http.StatusOK {
		t.Errorf("status with token: status = %d, want 200", rec.Code)
	}
}

func TestAuth_ProtectsEventFeed(t *testing.T) {
	env := newTestEnv(t, withToken(t, "s3cret"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.server.Events().Run(ctx)

	srv := httptest.NewServer(env.handler)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("Dial() without token succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Dial() without token: resp = %v, err = %v, want 401", resp, err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Authorization": {"Bearer s3cret"}})
	if err != nil {
		t.Fatalf("Dial() with token error = %v", err)
	}
	defer conn.Close()
	waitFor(t, func() bool { return env.server.Events().ClientCount() == 1 })
}

func TestAuth_BlocksRepeatedFailures(t *testing.T) {
	env := newTestEnv(t, withToken(t, "s3cret"))

	send := func(token string) *httptest.ResponseRecorder {
		req := uploadRequest(t, "/api/v1/decode", nil, "a.png", pngBytes(t))
		req.Header.Set("Authorization", "Bearer "+token)
		req.RemoteAddr = "203.0.113.9:4000"
		return env.do(req)
	}

	for i := 0; i < DefaultMaxAttempts; i++ {
		if rec := send("guess"); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d", i+1, rec.Code)
		}
	}

	rec := send("s3cret")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status after %d failures = %d, want 429", DefaultMaxAttempts, rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}
