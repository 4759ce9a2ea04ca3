package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lawnchairsociety/roadgen/internal/config"
	"github.com/lawnchairsociety/roadgen/internal/database"
	"github.com/lawnchairsociety/roadgen/internal/export"
	"github.com/lawnchairsociety/roadgen/internal/wfc"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.StepDelay = 0
	return cfg
}

func startServer(t *testing.T, cfg *config.Config, db *database.Database) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(cfg, db)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
		ts.Close()
	})
	return s, ts
}

func wsURL(ts *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?" + query
}

func dial(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, query), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// readUntilSummary collects frames until the summary arrives
func readUntilSummary(t *testing.T, conn *websocket.Conn) ([]wfc.Frame, *Summary) {
	t.Helper()
	var frames []wfc.Frame
	for {
		msg := readMessage(t, conn)
		switch msg.Type {
		case MessageFrame:
			require.NotNil(t, msg.Frame)
			frames = append(frames, *msg.Frame)
		case MessageSummary:
			require.NotNil(t, msg.Summary)
			return frames, msg.Summary
		default:
			t.Fatalf("unexpected message type %q", msg.Type)
		}
	}
}

func TestHealth(t *testing.T) {
	_, ts := startServer(t, testConfig(), nil)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["streams"])
	assert.Equal(t, false, body["storage"])
}

func TestStreamMatchesGenerator(t *testing.T) {
	_, ts := startServer(t, testConfig(), nil)
	conn := dial(t, ts, "seed=3&edges=2&cells=16")

	msg := readMessage(t, conn)
	require.Equal(t, MessageStart, msg.Type)
	require.NotNil(t, msg.Start)
	assert.Equal(t, int64(3), msg.Start.Seed)
	assert.Equal(t, 4, msg.Start.Width)
	assert.Equal(t, "discard", msg.Start.Policy)
	require.Len(t, msg.Start.Prototypes, 16)
	assert.Equal(t, [wfc.NumDirections]wfc.EdgeValue{1, 0, 0, 0}, msg.Start.Prototypes[1])
	assert.Zero(t, msg.Start.Frame.Collapsed)

	frames, summary := readUntilSummary(t, conn)
	require.NotEmpty(t, frames)
	for i, f := range frames {
		assert.Equal(t, i+1, f.Step)
		assert.Len(t, f.Cells, 16)
	}
	assert.Equal(t, 16, frames[len(frames)-1].Collapsed)

	assert.Equal(t, database.StatusComplete, summary.Status)
	assert.Equal(t, len(frames), summary.Steps)
	assert.Empty(t, summary.Violations)
	assert.Empty(t, summary.RunID)

	// the same options produce the same grid locally
	opts := wfc.DefaultOptions(3)
	opts.UniqueEdgeCount = 2
	opts.TotalCells = 16
	gen, err := wfc.NewGenerator(opts)
	require.NoError(t, err)
	require.NoError(t, gen.Run(context.Background()))
	fp := gen.Grid().Fingerprint()
	assert.Equal(t, hex.EncodeToString(fp[:]), summary.Fingerprint)
	assert.Equal(t, gen.Stats().Steps, summary.Steps)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestStreamRejectsBadParameters(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"seed", "seed=abc", "invalid seed"},
		{"cells", "cells=ten", "invalid cells"},
		{"not square", "cells=10", "perfect square"},
		{"policy", "policy=retry", "policy"},
		{"edges", "edges=9", "unique_edge_count"},
		{"too large", "cells=2601", "exceeds the limit"},
	}
	_, ts := startServer(t, testConfig(), nil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, ts.URL+"/ws?"+tt.query, nil)
			require.NoError(t, err)
			// a distinct address per case keeps the reject limiter out of the way
			req.Header.Set("X-Forwarded-For", "203.0.113."+tt.name)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var sb strings.Builder
			_, _ = sb.ReadFrom(resp.Body)
			assert.Contains(t, sb.String(), tt.want)
		})
	}
}

func TestStreamLocksOutRepeatedRejections(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RateLimit = config.RateLimitConfig{MaxAttempts: 2, LockoutSeconds: 60, MaxLockoutSeconds: 60}
	_, ts := startServer(t, cfg, nil)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := http.Get(ts.URL + "/ws?cells=10")
		require.NoError(t, err)
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
		if i == 2 {
			assert.NotEmpty(t, resp.Header.Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{http.StatusBadRequest, http.StatusBadRequest, http.StatusTooManyRequests}, codes)

	// valid requests are refused too while locked out
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "cells=16"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestStreamOriginCheck(t *testing.T) {
	cfg := testConfig()
	cfg.Server.WebSocket.AllowedOrigins = []string{"https://roads.example"}
	s, ts := startServer(t, cfg, nil)

	header := http.Header{"Origin": []string{"https://elsewhere.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "cells=16"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Eventually(t, func() bool {
		total, _ := s.connLimiter.Stats()
		return total == 0
	}, 2*time.Second, 10*time.Millisecond)

	header.Set("Origin", "https://roads.example")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "seed=1&cells=16"), header)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, MessageStart, readMessage(t, conn).Type)
}

func TestStreamConnectionLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Connections.MaxPerIP = 1
	cfg.Server.StepDelay = time.Second
	_, ts := startServer(t, cfg, nil)

	first := dial(t, ts, "seed=1")
	require.Equal(t, MessageStart, readMessage(t, first).Type)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "seed=2"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestStreamStopMessage(t *testing.T) {
	cfg := testConfig()
	cfg.Server.StepDelay = 50 * time.Millisecond
	_, ts := startServer(t, cfg, nil)

	conn := dial(t, ts, "seed=4")
	require.Equal(t, MessageStart, readMessage(t, conn).Type)
	require.Equal(t, MessageFrame, readMessage(t, conn).Type)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(ControlStop)))

	_, summary := readUntilSummary(t, conn)
	assert.Equal(t, database.StatusAborted, summary.Status)
	assert.Less(t, summary.Steps, wfc.DefaultTotalCells)
}

func TestShutdownEndsStreams(t *testing.T) {
	cfg := testConfig()
	cfg.Server.StepDelay = time.Second
	s, ts := startServer(t, cfg, nil)

	conn := dial(t, ts, "seed=6")
	require.Equal(t, MessageStart, readMessage(t, conn).Type)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	_, summary := readUntilSummary(t, conn)
	assert.Equal(t, database.StatusAborted, summary.Status)

	// later calls are no-ops and new streams are refused
	assert.NoError(t, s.Shutdown(ctx))
	resp, err := http.Get(ts.URL + "/ws?seed=1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStreamPersistsRuns(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := testConfig()
	cfg.Server.Persist = true
	_, ts := startServer(t, cfg, db)

	conn := dial(t, ts, "seed=9&cells=16")
	require.Equal(t, MessageStart, readMessage(t, conn).Type)
	_, summary := readUntilSummary(t, conn)
	require.NotEmpty(t, summary.RunID)

	run, err := db.GetRun(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, int64(9), run.Seed)
	assert.Equal(t, database.StatusComplete, run.Status)
	assert.Equal(t, summary.Fingerprint, run.Fingerprint)

	resp, err := http.Get(ts.URL + "/runs")
	require.NoError(t, err)
	var runs []database.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runs))
	resp.Body.Close()
	require.Len(t, runs, 1)
	assert.Equal(t, summary.RunID, runs[0].ID)

	resp, err = http.Get(ts.URL + "/runs/" + summary.RunID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/yaml", resp.Header.Get("Content-Type"))

	doc, err := export.ReadRunYAML(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, summary.RunID, doc.ID)
	assert.Equal(t, 4, doc.Width)
	assert.NoError(t, doc.Validate())
}

func TestRunRoutes(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, ts := startServer(t, testConfig(), db)

	tests := []struct {
		path string
		want int
	}{
		{"/runs", http.StatusOK},
		{"/runs?limit=abc", http.StatusBadRequest},
		{"/runs?limit=0", http.StatusBadRequest},
		{"/runs/00000000-0000-0000-0000-000000000000", http.StatusNotFound},
	}
	for _, tt := range tests {
		resp, err := http.Get(ts.URL + tt.path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, tt.want, resp.StatusCode, tt.path)
	}

	_, noStore := startServer(t, testConfig(), nil)
	for _, path := range []string{"/runs", "/runs/abc"} {
		resp, err := http.Get(noStore.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, path)
	}
}
