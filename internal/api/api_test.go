package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MJE43/emoji-arcade/internal/arcade"
	"github.com/MJE43/emoji-arcade/internal/autoplay"
	"github.com/MJE43/emoji-arcade/internal/config"
	"github.com/MJE43/emoji-arcade/internal/engine"
	"github.com/MJE43/emoji-arcade/internal/games"
	"github.com/MJE43/emoji-arcade/internal/history"
	"github.com/MJE43/emoji-arcade/internal/session"
)

type fixture struct {
	hub     *arcade.Hub
	hist    *history.Store
	rec     *history.Recorder
	handler http.Handler
}

type fixtureOpts struct {
	noHistory bool
	rateLimit int
}

func newFixture(t *testing.T, o fixtureOpts) *fixture {
	t.Helper()
	f := &fixture{}
	opts := arcade.Options{
		Clock:    engine.NewManualClock(time.Unix(1_700_000_000, 0)),
		Seeds:    engine.Seeds{Server: "api-server", Client: "api-client"},
		Autoplay: autoplay.Config{Delay: time.Millisecond},
	}
	if !o.noHistory {
		store, err := history.New(filepath.Join(t.TempDir(), "history.db"))
		require.NoError(t, err)
		require.NoError(t, store.Migrate(t.Context()))
		f.hist = store
		f.rec = history.NewRecorder(store, 64, 1)
		opts.Listeners = []session.Listener{f.rec}
	}
	f.hub = arcade.New(opts)
	t.Cleanup(func() {
		f.hub.Close()
		if f.rec != nil {
			f.rec.Close()
			f.hist.Close()
		}
	})

	cfg := config.Default().HTTP
	cfg.RateLimit = o.rateLimit
	f.handler = NewServer(f.hub, f.hist, cfg).Routes()
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, errType string) {
	t.Helper()
	assert.Equal(t, status, w.Code, w.Body.String())
	assert.Equal(t, errType, w.Header().Get("X-Error-Type"))
	e := decode[EngineError](t, w)
	assert.Equal(t, errType, e.Type)
	assert.NotEmpty(t, e.Message)
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	w := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	h := decode[HealthCheckResponse](t, w)
	assert.Equal(t, HealthStatusHealthy, h.Status)
	assert.Contains(t, h.Checks, "games")
	assert.Equal(t, HealthStatusHealthy, h.Checks["history"].Status)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health/ready", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health/live", nil).Code)
}

func TestHealthDegradesWhenHistoryIsDown(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	require.NoError(t, f.hist.Close())

	w := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	h := decode[HealthCheckResponse](t, w)
	assert.Equal(t, HealthStatusDegraded, h.Status)
	assert.Equal(t, HealthStatusDegraded, h.Checks["history"].Status)
}

func TestGamesEndpoints(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	w := f.do(t, http.MethodGet, "/api/v1/games", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[GamesResponse](t, w)
	assert.Len(t, list.Games, 8)
	assert.Equal(t, EngineVersion, list.EngineVersion)

	w = f.do(t, http.MethodGet, "/api/v1/games/quiz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	g := decode[GameResponse](t, w)
	assert.Equal(t, "quiz", g.Game.ID)
	assert.True(t, g.Game.Choice)
	assert.Equal(t, session.StatusIdle, g.View.Status)

	assertError(t, f.do(t, http.MethodGet, "/api/v1/games/pinball", nil), http.StatusNotFound, ErrTypeGameNotFound)
	assertError(t, f.do(t, http.MethodPost, "/api/v1/games/pinball/start", nil), http.StatusNotFound, ErrTypeGameNotFound)
}

func TestPlayQuizOverHTTP(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	w := f.do(t, http.MethodPost, "/api/v1/games/quiz/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	v := decode[session.View](t, w)
	assert.Equal(t, session.StatusActive, v.Status)
	require.Len(t, v.Challenges, 1)
	id := v.Challenges[0].ID

	assertError(t, f.do(t, http.MethodPost, "/api/v1/games/quiz/start", nil), http.StatusConflict, ErrTypeConflict)
	assertError(t, f.do(t, http.MethodPost, "/api/v1/games/quiz/act", `{"type":"answer","bogus":1}`), http.StatusBadRequest, ErrTypeValidation)
	assertError(t, f.do(t, http.MethodPost, "/api/v1/games/quiz/act", `{}`), http.StatusBadRequest, ErrTypeValidation)
	assertError(t, f.do(t, http.MethodPost, "/api/v1/games/quiz/act", map[string]any{"type": "tap", "lane": 1}), http.StatusBadRequest, ErrTypeInvalidAction)
	assertError(t, f.do(t, http.MethodPost, "/api/v1/games/quiz/act", map[string]any{"type": "answer", "challengeId": id, "option": 99}), http.StatusBadRequest, ErrTypeInvalidAction)

	w = f.do(t, http.MethodPost, "/api/v1/games/quiz/act", map[string]any{"type": "answer", "challengeId": id, "option": 0})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	v = decode[session.View](t, w)
	assert.Equal(t, 1, v.Hits+v.Misses)

	assertError(t, f.do(t, http.MethodPost, "/api/v1/games/quiz/act", map[string]any{"type": "answer", "challengeId": id, "option": 0}), http.StatusConflict, ErrTypeConflict)

	w = f.do(t, http.MethodPost, "/api/v1/games/quiz/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	v = decode[session.View](t, w)
	assert.Equal(t, session.StatusEnded, v.Status)
	assert.Equal(t, session.OutcomeStopped, v.Outcome)

	w = f.do(t, http.MethodGet, "/api/v1/games/quiz/view", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, session.StatusEnded, decode[session.View](t, w).Status)

	w = f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `arcade_sessions_started_total{game="quiz"}`)
}

func TestRecordsEndpoint(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	w := f.do(t, http.MethodGet, "/api/v1/records", nil)
	require.Equal(t, http.StatusOK, w.Code)
	recs := decode[RecordsResponse](t, w)
	assert.NotNil(t, recs.Records)
}

func TestVerifyOpensRotatedSeeds(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	w := f.do(t, http.MethodPost, "/api/v1/games/quiz/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	detail, ok := decode[session.View](t, w).Detail.(map[string]any)
	require.True(t, ok)
	nonce := uint64(detail["nonce"].(float64))

	assertError(t, f.do(t, http.MethodPost, "/api/v1/games/quiz/seeds/rotate", nil), http.StatusConflict, ErrTypeConflict)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/games/quiz/stop", nil).Code)

	w = f.do(t, http.MethodPost, "/api/v1/games/quiz/seeds/rotate", RotateSeedsRequest{ClientSeed: "player"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	reveal := decode[games.SeedReveal](t, w)
	assert.Equal(t, detail["seedHash"], reveal.ServerSeedHash)
	assert.Equal(t, nonce, reveal.LastNonce)

	w = f.do(t, http.MethodPost, "/api/v1/verify", VerifyRequest{ServerSeed: reveal.ServerSeed, ClientSeed: reveal.ClientSeed, Nonce: nonce})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[VerifyResponse](t, w)
	assert.Equal(t, detail["seedHash"], res.ServerSeedHash)
	assert.Equal(t, nonce, res.Nonce)
	assert.Equal(t, engine.Floats(reveal.ServerSeed, reveal.ClientSeed, nonce, 0, 8), res.Floats)

	w = f.do(t, http.MethodPost, "/api/v1/verify", VerifyRequest{ServerSeed: "a", ClientSeed: "b", Nonce: 1, Count: 3})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[VerifyResponse](t, w).Floats, 3)

	for _, bad := range []VerifyRequest{
		{ClientSeed: "b", Nonce: 1},
		{ServerSeed: "a", Nonce: 1},
		{ServerSeed: "a", ClientSeed: "b"},
		{ServerSeed: "a", ClientSeed: "b", Nonce: 1, Count: 1000},
	} {
		assertError(t, f.do(t, http.MethodPost, "/api/v1/verify", bad), http.StatusBadRequest, ErrTypeValidation)
	}
	assertError(t, f.do(t, http.MethodPost, "/api/v1/games/pinball/seeds/rotate", nil), http.StatusNotFound, ErrTypeGameNotFound)
}

func TestAutoplayEndpoints(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	assertError(t, f.do(t, http.MethodGet, "/api/v1/games/quiz/autoplay", nil), http.StatusNotFound, ErrTypeNotFound)
	assertError(t, f.do(t, http.MethodPost, "/api/v1/games/quiz/autoplay", AutoplayRequest{}), http.StatusBadRequest, ErrTypeValidation)
	assertError(t, f.do(t, http.MethodPost, "/api/v1/games/collector/autoplay", AutoplayRequest{Script: "function choose(v) { return 0; }"}),
		http.StatusBadRequest, ErrTypeInvalidAction)
	assertError(t, f.do(t, http.MethodPost, "/api/v1/games/quiz/autoplay", AutoplayRequest{Script: "function choose(v) {"}),
		http.StatusUnprocessableEntity, ErrTypeScript)

	w := f.do(t, http.MethodPost, "/api/v1/games/quiz/autoplay", AutoplayRequest{Script: "function choose(v) { return 0; }"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, autoplay.StateRunning, decode[autoplay.Snapshot](t, w).State)

	require.Eventually(t, func() bool {
		w := f.do(t, http.MethodGet, "/api/v1/games/quiz/autoplay", nil)
		return w.Code == http.StatusOK && decode[autoplay.Snapshot](t, w).Moves == 1
	}, 2*time.Second, 5*time.Millisecond)

	w = f.do(t, http.MethodDelete, "/api/v1/games/quiz/autoplay", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, autoplay.StateStopped, decode[autoplay.Snapshot](t, w).State)
}

func TestHistoryEndpoints(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	w := f.do(t, http.MethodPost, "/api/v1/games/quiz/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	v := decode[session.View](t, w)
	w = f.do(t, http.MethodPost, "/api/v1/games/quiz/act", map[string]any{"type": "answer", "challengeId": v.Challenges[0].ID, "option": 1})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/games/quiz/stop", nil).Code)
	f.rec.Close() // drains the queue

	w = f.do(t, http.MethodGet, "/api/v1/history?game=quiz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[HistoryResponse](t, w)
	require.Equal(t, 1, list.Total)
	require.Len(t, list.Sessions, 1)
	sid := list.Sessions[0].ID
	assert.Equal(t, v.SessionID, sid)
	assert.Equal(t, history.StateEnded, list.Sessions[0].State)

	w = f.do(t, http.MethodGet, "/api/v1/history/"+sid, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stopped", decode[history.Session](t, w).Outcome)

	w = f.do(t, http.MethodGet, "/api/v1/history/"+sid+"/resolutions?per_page=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[history.ResolutionsPage](t, w)
	assert.Equal(t, 1, page.TotalCount)
	assert.Equal(t, 10, page.PerPage)

	w = f.do(t, http.MethodGet, "/api/v1/history/stats?game=quiz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[history.Stats](t, w).Sessions)

	assertError(t, f.do(t, http.MethodGet, "/api/v1/history?limit=0", nil), http.StatusBadRequest, ErrTypeValidation)
	assertError(t, f.do(t, http.MethodGet, "/api/v1/history/"+sid+"/resolutions?page=x", nil), http.StatusBadRequest, ErrTypeValidation)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/v1/history/"+sid, nil).Code)
	assertError(t, f.do(t, http.MethodGet, "/api/v1/history/"+sid, nil), http.StatusNotFound, ErrTypeNotFound)
	assertError(t, f.do(t, http.MethodDelete, "/api/v1/history/"+sid, nil), http.StatusNotFound, ErrTypeNotFound)
}

func TestHistoryDisabled(t *testing.T) {
	f := newFixture(t, fixtureOpts{noHistory: true})
	assertError(t, f.do(t, http.MethodGet, "/api/v1/history", nil), http.StatusServiceUnavailable, ErrTypeServiceUnavailable)

	w := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, HealthStatusHealthy, decode[HealthCheckResponse](t, w).Status)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, fixtureOpts{noHistory: true, rateLimit: 2})
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health/live", nil).Code)
	}
	w := f.do(t, http.MethodGet, "/health/live", nil)
	assertError(t, w, http.StatusTooManyRequests, ErrTypeRateLimit)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{arcade.ErrClosed, http.StatusServiceUnavailable},
		{session.ErrNoChallenges, http.StatusServiceUnavailable},
		{autoplay.ErrTimeout, http.StatusUnprocessableEntity},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, _ := classify(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}
