package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medreflect/medreflect/internal/evaluation"
	"github.com/medreflect/medreflect/internal/events"
	"github.com/medreflect/medreflect/internal/models"
	"github.com/medreflect/medreflect/internal/observability"
	"github.com/medreflect/medreflect/internal/reflection"
	"github.com/medreflect/medreflect/internal/runner"
	"github.com/medreflect/medreflect/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeGateway struct {
	mu        sync.Mutex
	responses []string
}

func (f *fakeGateway) Generate(_ context.Context, _ string, _ []models.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.responses) == 0 {
		return "", errors.New("script exhausted")
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

const needsJSON = `{"needs": [
	{"need": "Bed occupancy dashboard", "summary": "s", "medical_insights": "m",
	 "tech_insights": "t", "strategy": "st"}
]}`

const evaluationJSON = `{
	"evaluations": [
		{"need_title": "Bed occupancy dashboard", "feasibility_score": 8, "impact_score": 7,
		 "innovation_score": 6, "resource_score": 9, "overall_score": 7.5,
		 "strengths": ["s"], "weaknesses": ["w"], "recommendations": ["r"]}
	],
	"summary": "summary",
	"top_priority_needs": ["Bed occupancy dashboard"]
}`

type fixture struct {
	engine *gin.Engine
	store  session.Store
	bus    *events.Bus
}

func newFixture(t *testing.T, script []string) *fixture {
	t.Helper()

	gw := &fakeGateway{responses: script}
	controller := reflection.NewController(
		reflection.ClinicalExpert,
		reflection.SystemsEngineer,
		reflection.NewTurnExecutor(gw, nil),
		&reflection.AlternatingRouter{RoleA: reflection.ClinicalExpert, RoleB: reflection.SystemsEngineer},
		reflection.NewExtractor(gw, nil, nil),
		nil,
	)
	store := session.NewMemoryStore()
	bus := events.NewBus(nil)
	metrics := observability.New(prometheus.NewRegistry())

	run := runner.New(runner.Config{Workers: 1, QueueSize: 4}, controller,
		evaluation.NewEvaluator(gw, nil, nil), store, bus, metrics, nil)
	run.Start()
	t.Cleanup(func() {
		run.Stop()
		bus.Close()
	})

	h := NewReflectionHandler(run, store, bus, 3, 10, nil)

	engine := gin.New()
	api := engine.Group("/api")
	api.POST("/reflection", h.Submit)
	api.GET("/reflection/:session_id", h.Result)
	api.GET("/reflection/:session_id/stream", h.Stream)
	api.GET("/evaluation/:session_id", h.Evaluation)
	api.GET("/prioritization/:session_id", h.Prioritization)
	api.GET("/sessions", h.List)

	return &fixture{engine: engine, store: store, bus: bus}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func (f *fixture) seed(t *testing.T, s *models.Session) {
	t.Helper()
	require.NoError(t, f.store.Create(context.Background(), s))
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t, nil)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"missing query", `{}`, http.StatusBadRequest},
		{"empty body", ``, http.StatusBadRequest},
		{"rounds above limit", `{"query": "q", "max_rounds": 11}`, http.StatusBadRequest},
		{"negative rounds", `{"query": "q", "max_rounds": -1}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/api/reflection", tc.body)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestSubmitAndPollFullLifecycle(t *testing.T) {
	f := newFixture(t, []string{"clinical view", needsJSON, evaluationJSON})

	w := f.do(http.MethodPost, "/api/reflection", `{"query": "ward congestion", "max_rounds": 1}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	body := decode(t, w)
	id, _ := body["session_id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "queued", body["status"])

	require.Eventually(t, func() bool {
		return f.do(http.MethodGet, "/api/reflection/"+id, "").Code == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	result := decode(t, f.do(http.MethodGet, "/api/reflection/"+id, ""))
	assert.Equal(t, "completed", result["status"])
	require.NotNil(t, result["result"])

	// Evaluation and prioritization follow automatically.
	require.Eventually(t, func() bool {
		return f.do(http.MethodGet, "/api/prioritization/"+id, "").Code == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	eval := decode(t, f.do(http.MethodGet, "/api/evaluation/"+id, ""))
	assert.Equal(t, "completed", eval["status"])
	require.NotNil(t, eval["evaluation"])

	prio := decode(t, f.do(http.MethodGet, "/api/prioritization/"+id, ""))
	require.NotNil(t, prio["prioritization"])
}

func TestResultNotFound(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodGet, "/api/reflection/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResultStillProcessing(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, &models.Session{ID: "p1", Status: models.StatusProcessing, Query: "q", CreatedAt: time.Now()})

	w := f.do(http.MethodGet, "/api/reflection/p1", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "processing", decode(t, w)["status"])
}

func TestResultFailedSession(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, &models.Session{
		ID: "e1", Status: models.StatusError, Error: "provider down",
		Query: "q", CreatedAt: time.Now(),
	})

	w := f.do(http.MethodGet, "/api/reflection/e1", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "provider down", decode(t, w)["error"])
}

func TestEvaluationLadder(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, &models.Session{ID: "q1", Status: models.StatusQueued, Query: "q", CreatedAt: time.Now()})
	f.seed(t, &models.Session{ID: "c1", Status: models.StatusCompleted, Query: "q", CreatedAt: time.Now()})

	assert.Equal(t, http.StatusAccepted, f.do(http.MethodGet, "/api/evaluation/q1", "").Code)
	// Completed but evaluation never ran (for example, zero needs).
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/evaluation/c1", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/evaluation/absent", "").Code)
}

func TestSessionsListTruncatesQueries(t *testing.T) {
	f := newFixture(t, nil)
	long := strings.Repeat("x", 150)
	f.seed(t, &models.Session{ID: "s1", Status: models.StatusQueued, Query: long, CreatedAt: time.Now()})

	w := f.do(http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["total"])

	sessions, ok := body["sessions"].([]any)
	require.True(t, ok)
	entry := sessions[0].(map[string]any)
	assert.Len(t, entry["query"], 103) // 100 chars plus ellipsis
}

func TestStreamReplaysCompletedSession(t *testing.T) {
	f := newFixture(t, nil)
	now := time.Now()
	f.seed(t, &models.Session{
		ID: "done", Status: models.StatusCompleted, Query: "q", CreatedAt: now,
		Events: []models.ProgressEvent{
			{Timestamp: now, EventType: "reflection_started", Agent: "system"},
			{Timestamp: now, EventType: "session_completed", Agent: "system"},
		},
	})

	w := f.do(http.MethodGet, "/api/reflection/done/stream", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "reflection_started")
	assert.Contains(t, w.Body.String(), "session_completed")
}

func TestStreamUnknownSession(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodGet, "/api/reflection/absent/stream", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
