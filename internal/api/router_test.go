package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/clutchfactor/internal/analytics"
	"github.com/stitts-dev/clutchfactor/internal/api/handlers"
	"github.com/stitts-dev/clutchfactor/internal/events"
	"github.com/stitts-dev/clutchfactor/internal/inference"
	"github.com/stitts-dev/clutchfactor/internal/models"
	"github.com/stitts-dev/clutchfactor/internal/replay"
	"github.com/stitts-dev/clutchfactor/internal/store"
	"github.com/stitts-dev/clutchfactor/pkg/config"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

type testEnv struct {
	router *gin.Engine
	store  *store.MemoryStore
	bus    *events.Bus
	latest *events.MemoryLatestCache
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := testLogger()
	memStore := store.NewMemoryStore()
	bus := events.NewBus(50, log)
	latest := events.NewMemoryLatestCache(time.Hour)
	gateway := inference.NewBaselineModel()
	orch := replay.NewOrchestrator(memStore, gateway, bus, latest, 5, log)
	engine := analytics.NewEngine(memStore, log)

	cfg := &config.Config{
		ReplayDataDir:     t.TempDir(),
		ReplaySpeed:       1000,
		HeartbeatInterval: time.Second,
	}

	router := SetupRouter(Handlers{
		Replay:    handlers.NewReplayHandler(orch, cfg, log),
		Stream:    handlers.NewStreamHandler(bus, latest, cfg.HeartbeatInterval, log),
		Games:     handlers.NewGameHandler(memStore, log),
		Analytics: handlers.NewAnalyticsHandler(engine, log),
		Predict:   handlers.NewPredictHandler(gateway, 5, log),
		Health:    handlers.NewHealthHandler(nil, nil, gateway, log),
	}, []string{"*"})

	return &testEnv{router: router, store: memStore, bus: bus, latest: latest}
}

func (e *testEnv) request(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func seedFinishedGame(t *testing.T, memStore *store.MemoryStore) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, memStore.UpsertGame(ctx, &models.Game{
		ID:       "2022_01_BUF_LA",
		HomeTeam: "LA",
		AwayTeam: "BUF",
		Status:   models.GameStatusFinal,
	}))

	playType := "pass"
	wps := []float64{0.50, 0.62, 0.45}
	for i, wp := range wps {
		play := models.Play{
			ID:               uuid.New(),
			GameID:           "2022_01_BUF_LA",
			Sequence:         i,
			Quarter:          1,
			GameClockSeconds: 900 - i*40,
			PlayType:         &playType,
			CreatedAt:        time.Now().UTC(),
		}
		require.NoError(t, memStore.CreatePlay(ctx, &play, nil))
		require.NoError(t, memStore.CreatePrediction(ctx, &models.WpPrediction{
			ID:           uuid.New(),
			PlayID:       play.ID,
			ModelVersion: "test",
			HomeWP:       wp,
			AwayWP:       1 - wp,
			PredictedAt:  time.Now().UTC().Add(time.Duration(i) * time.Second),
		}, nil))
	}
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.request(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Ready  bool              `json:"ready"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Ready)
	assert.Equal(t, "memory", body.Checks["database"])
	assert.Equal(t, "memory", body.Checks["redis"])
}

func TestStopReplayWithoutSession(t *testing.T) {
	env := newTestEnv(t)
	w := env.request(t, http.MethodDelete, "/api/v1/games/nope/replay", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartReplayMissingSource(t *testing.T) {
	env := newTestEnv(t)
	w := env.request(t, http.MethodPost, "/api/v1/games/nope/replay", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGamesEndpoints(t *testing.T) {
	env := newTestEnv(t)
	seedFinishedGame(t, env.store)

	w := env.request(t, http.MethodGet, "/api/v1/games", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)

	w = env.request(t, http.MethodGet, "/api/v1/games?status=final", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.request(t, http.MethodGet, "/api/v1/games/2022_01_BUF_LA", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var detail struct {
		PlayCount int `json:"play_count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, 3, detail.PlayCount)

	w = env.request(t, http.MethodGet, "/api/v1/games/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.request(t, http.MethodGet, "/api/v1/games?season=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListPlaysAppliesReadTimeClamp(t *testing.T) {
	env := newTestEnv(t)
	seedFinishedGame(t, env.store)

	// Final whistle row stored with an unclamped probability
	ctx := context.Background()
	playType := "pass"
	play := models.Play{
		ID:               uuid.New(),
		GameID:           "2022_01_BUF_LA",
		Sequence:         3,
		Quarter:          4,
		GameClockSeconds: 0,
		ScoreHome:        31,
		ScoreAway:        10,
		PlayType:         &playType,
		CreatedAt:        time.Now().UTC(),
	}
	require.NoError(t, env.store.CreatePlay(ctx, &play, nil))
	require.NoError(t, env.store.CreatePrediction(ctx, &models.WpPrediction{
		ID:           uuid.New(),
		PlayID:       play.ID,
		ModelVersion: "test",
		HomeWP:       0.93,
		AwayWP:       0.07,
		PredictedAt:  time.Now().UTC(),
	}, nil))

	w := env.request(t, http.MethodGet, "/api/v1/games/2022_01_BUF_LA/plays", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Plays []struct {
			HomeWP float64 `json:"home_wp"`
			AwayWP float64 `json:"away_wp"`
		} `json:"plays"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Plays, 4)
	assert.Equal(t, 1.0, body.Plays[3].HomeWP, "decided game clamps to certainty at read time")
	assert.Equal(t, 0.0, body.Plays[3].AwayWP)
	assert.Equal(t, 0.62, body.Plays[1].HomeWP, "mid-game rows are untouched")
}

func TestAnalyticsEndpoints(t *testing.T) {
	env := newTestEnv(t)
	seedFinishedGame(t, env.store)

	for _, path := range []string{
		"/api/v1/games/2022_01_BUF_LA/analytics/momentum?top=2",
		"/api/v1/games/2022_01_BUF_LA/analytics/clutch",
		"/api/v1/games/2022_01_BUF_LA/analytics/decisions",
	} {
		w := env.request(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w := env.request(t, http.MethodGet, "/api/v1/games/missing/analytics/momentum", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPredictEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodPost, "/api/v1/predict",
		`{"quarter":4,"game_clock_seconds":120,"score_home":24,"score_away":17,"posteam_is_home":true}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		HomeWP       float64              `json:"home_wp"`
		AwayWP       float64              `json:"away_wp"`
		ModelVersion string               `json:"model_version"`
		TopShap      []models.ShapFeature `json:"top_shap"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Greater(t, body.HomeWP, 0.5, "a late lead favors the home team")
	assert.InDelta(t, 1.0, body.HomeWP+body.AwayWP, 1e-9)
	assert.NotEmpty(t, body.ModelVersion)
	assert.Len(t, body.TopShap, 5)

	w = env.request(t, http.MethodPost, "/api/v1/predict", `{"game_clock_seconds":120}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "quarter is required")

	w = env.request(t, http.MethodPost, "/api/v1/predict", `{"quarter":2,"game_clock_seconds":1200}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "clock beyond a quarter is rejected")
}

func TestSSEStreamSendsCachedSnapshotFirst(t *testing.T) {
	env := newTestEnv(t)

	snapshot := []byte(`{"event_type":"play_update","game_id":"g1"}`)
	require.NoError(t, env.latest.SetLatest(context.Background(), "g1", snapshot))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/games/g1/stream", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "data: "+string(snapshot))
}
