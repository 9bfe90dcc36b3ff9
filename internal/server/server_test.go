package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ragyverse/apiserver/config"
	"github.com/ragyverse/apiserver/internal/clock"
	"github.com/ragyverse/apiserver/internal/db"
	"github.com/ragyverse/apiserver/internal/logging"
	"github.com/ragyverse/apiserver/internal/storage"
	"github.com/ragyverse/apiserver/internal/synth"
	"github.com/ragyverse/apiserver/types"
	"github.com/stretchr/testify/require"
)

type echoEngine struct{}

func (echoEngine) Name() string { return "echo" }

func (echoEngine) Synthesize(_ context.Context, req synth.Request) (synth.Audio, error) {
	return synth.Audio{Data: []byte("ID3" + req.Text), ContentType: synth.ContentTypeMP3}, nil
}

type testServer struct {
	router *chi.Mux
	clock  *clock.MockClock
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	ctx := context.Background()

	cfg := config.Default()
	cfg.JWTSecret = "test-secret"
	cfg.Database.Driver = config.DriverSQLite
	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "api.db")
	cfg.Storage.LocalDir = filepath.Join(t.TempDir(), "static")
	if mutate != nil {
		mutate(&cfg)
	}

	conn, err := db.Open(ctx, cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, db.Migrate(conn, cfg.Database.Driver, db.Up))

	artifacts, err := storage.New(ctx, cfg.Storage)
	require.NoError(t, err)

	clk := clock.NewMockClock(time.Now().UTC().Truncate(time.Second))
	router := NewRouter(cfg, logging.Discard(), Deps{
		DB:        conn,
		Artifacts: artifacts,
		Engine:    echoEngine{},
		Clock:     clk,
	})
	return &testServer{router: router, clock: clk}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/register", "", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/login", "", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Message  string `json:"message"`
		Token    string `json:"token"`
		Username string `json:"username"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Login successful!", resp.Message)
	require.Equal(t, username, resp.Username)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, body.Error, body.Message)
	return body.Error, body.Code
}

func TestRegister(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/register", "", map[string]string{"username": "alice", "password": "pw"})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.JSONEq(t, `{"message":"User registered successfully!"}`, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/register", "", map[string]string{"username": "alice", "password": "other"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	msg, code := decodeError(t, rec)
	require.Equal(t, "user already exists", msg)
	require.Equal(t, "duplicate_user", code)

	// the original password still works
	rec = s.do(t, http.MethodPost, "/login", "", map[string]string{"username": "alice", "password": "pw"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/register", "", map[string]string{"username": "bob"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	_, code = decodeError(t, rec)
	require.Equal(t, "missing_field", code)

	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader("{not json"))
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin_WrongPassword(t *testing.T) {
	s := newTestServer(t, nil)
	s.login(t, "alice", "pw")

	rec := s.do(t, http.MethodPost, "/login", "", map[string]string{"username": "alice", "password": "bad"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotContains(t, rec.Body.String(), "token\"")
	_, code := decodeError(t, rec)
	require.Equal(t, "invalid_credentials", code)

	rec = s.do(t, http.MethodPost, "/login", "", map[string]string{"username": "alice"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, nil)

	for _, tc := range []struct{ method, path, token string }{
		{http.MethodGet, "/history", ""},
		{http.MethodGet, "/history", "garbage"},
		{http.MethodPost, "/convert_to_speech", ""},
	} {
		rec := s.do(t, tc.method, tc.path, tc.token, map[string]string{"text": "hi"})
		require.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
		require.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
		msg, _ := decodeError(t, rec)
		require.Equal(t, "unauthorized", msg)
	}
}

func TestConvertHistoryAudio(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.login(t, "alice", "pw")

	rec := s.do(t, http.MethodPost, "/convert_to_speech", token, map[string]string{"text": "hello world", "question": "say hi"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var conv struct {
		AudioURL string `json:"audio_url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	require.True(t, strings.HasPrefix(conv.AudioURL, "/audio/response_"))
	audioID := strings.TrimPrefix(conv.AudioURL, "/audio/")

	rec = s.do(t, http.MethodGet, "/history", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []types.HistoryEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	require.Equal(t, "hello world", entries[0].Answer)
	require.Equal(t, audioID, entries[0].AudioFile)
	require.NotContains(t, rec.Body.String(), `"id"`)

	rec = s.do(t, http.MethodGet, conv.AudioURL, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	require.Equal(t, "ID3hello world", rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, conv.AudioURL, nil)
	req.Header.Set("Range", "bytes=0-2")
	rng := httptest.NewRecorder()
	s.router.ServeHTTP(rng, req)
	require.Equal(t, http.StatusPartialContent, rng.Code)
	require.Equal(t, "ID3", rng.Body.String())
}

func TestConvert_MissingText(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.login(t, "alice", "pw")

	rec := s.do(t, http.MethodPost, "/convert_to_speech", token, map[string]string{"text": "  "})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/history", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())
}

func TestHistory_TenNewestFirst(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.login(t, "alice", "pw")

	for i := 0; i < 12; i++ {
		s.clock.Advance(time.Second)
		rec := s.do(t, http.MethodPost, "/convert_to_speech", token, map[string]string{"text": fmt.Sprintf("n%d", i)})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := s.do(t, http.MethodGet, "/history", token, nil)
	var entries []types.HistoryEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 10)
	require.Equal(t, "n11", entries[0].Answer)
	require.Equal(t, "n2", entries[9].Answer)
}

func TestAudio_UnknownID(t *testing.T) {
	s := newTestServer(t, nil)

	for _, path := range []string{"/audio/response_nope", "/audio/..%2F..%2Fetc%2Fpasswd"} {
		rec := s.do(t, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestAudio_RequireAuthChecksOwner(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.AudioRequireAuth = true })
	alice := s.login(t, "alice", "pw")
	bob := s.login(t, "bob", "pw")

	rec := s.do(t, http.MethodPost, "/convert_to_speech", alice, map[string]string{"text": "secret"})
	require.Equal(t, http.StatusOK, rec.Code)
	var conv struct {
		AudioURL string `json:"audio_url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))

	require.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, conv.AudioURL, "", nil).Code)
	require.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, conv.AudioURL, bob, nil).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, conv.AudioURL, alice, nil).Code)
}

func TestTokenExpiry(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.login(t, "alice", "pw")

	s.clock.Advance(23*time.Hour + 59*time.Minute)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/history", token, nil).Code)

	s.clock.Advance(2 * time.Minute)
	require.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/history", token, nil).Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/healthz", "", nil).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/readyz", "", nil).Code)

	rec := s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.AllowedOrigins = []string{"http://localhost:3000"} })

	req := httptest.NewRequest(http.MethodOptions, "/convert_to_speech", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestNew_FailsAfterOpeningBackends(t *testing.T) {
	for name, mutate := range map[string]func(*config.Config){
		"engine": func(c *config.Config) { c.Synth.Engine = "festival" },
		"mq":     func(c *config.Config) { c.MQ.Backend = "kafka" },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			cfg.JWTSecret = "test-secret"
			cfg.Database.Driver = config.DriverSQLite
			cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "api.db")
			cfg.Database.AutoMigrate = true
			cfg.Storage.LocalDir = filepath.Join(t.TempDir(), "static")
			cfg.Synth.Engine = config.EngineHTTP
			cfg.Synth.HTTPBaseURL = "http://127.0.0.1:1"
			cfg.Synth.Timeout = 100 * time.Millisecond
			mutate(&cfg)

			srv, err := New(context.Background(), cfg, logging.Discard())
			require.Error(t, err)
			require.Nil(t, srv)
		})
	}
}

func TestServer_ShutdownReleasesBackends(t *testing.T) {
	cfg := config.Default()
	cfg.JWTSecret = "test-secret"
	cfg.ServerPort = 0
	cfg.Database.Driver = config.DriverSQLite
	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "api.db")
	cfg.Database.AutoMigrate = true
	cfg.Storage.LocalDir = filepath.Join(t.TempDir(), "static")
	cfg.Synth.Engine = config.EngineHTTP
	cfg.Synth.HTTPBaseURL = "http://127.0.0.1:1"
	cfg.Synth.Timeout = 100 * time.Millisecond

	srv, err := New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, srv.Shutdown(context.Background()))
	require.Error(t, srv.db.PingContext(context.Background()))
}
