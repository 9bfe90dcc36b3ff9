//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ragyverse/apiserver/config"
	"github.com/ragyverse/apiserver/internal/logging"
	"github.com/ragyverse/apiserver/internal/server"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	serverPort = 18080
	fakeAudio  = "ID3-e2e-audio"
)

var baseURL = fmt.Sprintf("http://localhost:%d", serverPort)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg, host, port, err := startPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres: %v\n", err)
		os.Exit(1)
	}

	tts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/generate/speech" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte(fakeAudio))
	}))

	staticDir, err := os.MkdirTemp("", "ttsapi-e2e-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create static dir: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Default()
	cfg.ServerPort = serverPort
	cfg.JWTSecret = "e2e-secret"
	cfg.Database.Host = host
	cfg.Database.Port = port
	cfg.Database.User = "ragyverse"
	cfg.Database.Password = "password"
	cfg.Database.DBName = "ragyverse"
	cfg.Database.AutoMigrate = true
	cfg.Storage.LocalDir = staticDir
	cfg.Synth.Engine = config.EngineHTTP
	cfg.Synth.HTTPBaseURL = tts.URL

	srv, err := server.New(ctx, cfg, logging.Discard())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = pg.Terminate(context.Background())
		os.Exit(1)
	}
	go func() {
		_ = srv.Start()
	}()

	if err := waitForHealth(ctx, baseURL+"/readyz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown(context.Background())
		_ = pg.Terminate(context.Background())
		os.Exit(1)
	}

	code := m.Run()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	_ = srv.Shutdown(shutdownCtx)
	shutdownCancel()
	tts.Close()
	_ = os.RemoveAll(staticDir)
	_ = pg.Terminate(context.Background())
	os.Exit(code)
}

func startPostgres(ctx context.Context) (testcontainers.Container, string, int, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "ragyverse",
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "ragyverse",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", 0, err
	}

	mappedPort, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return container, "", 0, err
	}
	host, err := container.Host(ctx)
	if err != nil {
		return container, "", 0, err
	}
	port, err := strconv.Atoi(mappedPort.Port())
	if err != nil {
		return container, "", 0, err
	}
	return container, host, port, nil
}

func waitForHealth(ctx context.Context, url string) error {
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

func doJSON(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, baseURL+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestSpeechFlow(t *testing.T) {
	username := fmt.Sprintf("e2e-%d", time.Now().UnixNano())
	creds := map[string]string{"username": username, "password": "hunter2"}

	resp, _ := doJSON(t, http.MethodPost, "/register", "", creds)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, "/register", "", creds)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, "/login", "", creds)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(body, &login))
	require.NotEmpty(t, login.Token)

	resp, _ = doJSON(t, http.MethodGet, "/history", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = doJSON(t, http.MethodPost, "/convert_to_speech", login.Token, map[string]string{
		"text":     "hello from postgres",
		"question": "greeting",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var conv struct {
		AudioURL string `json:"audio_url"`
	}
	require.NoError(t, json.Unmarshal(body, &conv))
	require.True(t, strings.HasPrefix(conv.AudioURL, "/audio/response_"))

	resp, body = doJSON(t, http.MethodGet, "/history", login.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history []struct {
		Question  string `json:"question"`
		Answer    string `json:"answer"`
		AudioFile string `json:"audio_file"`
	}
	require.NoError(t, json.Unmarshal(body, &history))
	require.Len(t, history, 1)
	require.Equal(t, "greeting", history[0].Question)
	require.Equal(t, "hello from postgres", history[0].Answer)
	require.Equal(t, strings.TrimPrefix(conv.AudioURL, "/audio/"), history[0].AudioFile)

	resp, body = doJSON(t, http.MethodGet, conv.AudioURL, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
	require.Equal(t, fakeAudio, string(body))
}
