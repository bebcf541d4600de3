package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitplan/internal/config"
	"visitplan/internal/distance"
	"visitplan/internal/model"
	"visitplan/internal/opt"
	"visitplan/internal/store"
)

type fakeProvider struct {
	matrix [][]float64
	err    error
	got    []string
}

func (f *fakeProvider) GetMatrix(_ context.Context, addresses []string) ([][]float64, error) {
	f.got = addresses
	return f.matrix, f.err
}

func scenarioMatrix() [][]float64 {
	return [][]float64{
		{0, 2, 4, 5},
		{2, 0, 3, 6},
		{4, 3, 0, 2},
		{5, 6, 2, 0},
	}
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Rate.RPS = 0
	cfg.Solver.Workers = 1
	cfg.Solver.TimeLimit = 20 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}
	logger := log.New()
	logger.Out = io.Discard
	s, err := NewServer(context.Background(), cfg, logger)
	require.NoError(t, err)
	s.Distance = &fakeProvider{matrix: scenarioMatrix()}
	return s
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rr, req)
	return rr
}

func decodeProblem(t *testing.T, rr *httptest.ResponseRecorder) Problem {
	t.Helper()
	var p Problem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	return p
}

func waitForJob(t *testing.T, s *Server, id string) model.Job {
	t.Helper()
	var job model.Job
	require.Eventually(t, func() bool {
		j, err := s.Store.GetJob(context.Background(), id)
		require.NoError(t, err)
		job = j
		return j.Terminal()
	}, 20*time.Second, 10*time.Millisecond)
	return job
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t, nil)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestOptimizeScenario(t *testing.T) {
	s := newTestServer(t, nil)
	rr := postJSON(t, s.Routes(), "/v1/optimize", map[string]any{
		"distanceMatrix": scenarioMatrix(),
		"workerNames":    []string{"Ann", "Bob"},
		"preferences":    map[string]int{"1": 0, "2": 0, "3": 1},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var res model.OptimizeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Len(t, res.Routes, 2)
	assert.Equal(t, "Ann", res.Routes[0].Worker)
	assert.InDelta(t, 9, res.Routes[0].Distance, 1e-9)
	assert.Equal(t, []int{0, 3, 0}, res.Routes[1].Route)
	assert.InDelta(t, 19, res.TotalDistance, 1e-9)
	assert.Equal(t, opt.StatusOptimal, res.Status)
	assert.Empty(t, res.Locations)
}

// gridMatrix places n locations on a 5-wide grid with Manhattan distances.
func gridMatrix(n int) [][]float64 {
	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
		for j := range d[i] {
			dx := i%5 - j%5
			dy := i/5 - j/5
			if dx < 0 {
				dx = -dx
			}
			if dy < 0 {
				dy = -dy
			}
			d[i][j] = float64(dx + dy)
		}
	}
	return d
}

func TestOptimizeBudgetExceeded(t *testing.T) {
	s := newTestServer(t, nil)
	rr := postJSON(t, s.Routes(), "/v1/optimize", map[string]any{
		"distanceMatrix": gridMatrix(20),
		"workerNames":    []string{"a", "b"},
		"solver":         map[string]any{"timeLimitMs": 1},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.NotZero(t, rr.Body.Len())

	var res model.OptimizeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, opt.StatusBudgetExceeded, res.Status)
	assert.False(t, res.Optimal)
	require.Len(t, res.Routes, 2)
	visited := 0
	for _, wr := range res.Routes {
		visited += len(wr.Route) - 2
	}
	assert.Equal(t, 19, visited)
}

func TestWriteJSONEncodeFailure(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSON(rr, http.StatusOK, map[string]float64{"bound": math.Inf(-1)})
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	p := decodeProblem(t, rr)
	assert.Equal(t, codeInternal, p.Code)
	assert.Equal(t, http.StatusInternalServerError, p.Status)
}

func TestOptimizeDefaultsToRoundRobin(t *testing.T) {
	s := newTestServer(t, nil)
	rr := postJSON(t, s.Routes(), "/v1/optimize", map[string]any{
		"distanceMatrix": scenarioMatrix(),
		"workerNames":    []string{"a", "b"},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res model.OptimizeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	// j mod 2: location 2 to worker 0, locations 1 and 3 to worker 1
	assert.Equal(t, []int{0, 2, 0}, res.Routes[0].Route)
	stops := res.Routes[1].Route
	assert.ElementsMatch(t, []int{1, 3}, stops[1:len(stops)-1])
}

func TestOptimizeRejectsBadRequests(t *testing.T) {
	s := newTestServer(t, nil)
	cases := map[string]any{
		"partial preferences": map[string]any{
			"distanceMatrix": scenarioMatrix(), "workerNames": []string{"a", "b"},
			"preferences": map[string]int{"1": 0},
		},
		"matrix and addresses": map[string]any{
			"distanceMatrix": scenarioMatrix(), "addresses": []string{"x"}, "workerNames": []string{"a"},
		},
		"no workers": map[string]any{"distanceMatrix": scenarioMatrix()},
		"negative distance": map[string]any{
			"distanceMatrix": [][]float64{{0, -1}, {1, 0}}, "workerNames": []string{"a"},
		},
		"ragged matrix": map[string]any{
			"distanceMatrix": [][]float64{{0, 1}, {1}}, "workerNames": []string{"a"},
		},
		"negative time limit": map[string]any{
			"distanceMatrix": scenarioMatrix(), "workerNames": []string{"a"},
			"solver": map[string]any{"timeLimitMs": -1},
		},
		"bad callback": map[string]any{
			"distanceMatrix": scenarioMatrix(), "workerNames": []string{"a"}, "callbackUrl": "ftp://x",
		},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rr := postJSON(t, s.Routes(), "/v1/optimize", body)
			require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			assert.Equal(t, codeInvalidInput, decodeProblem(t, rr).Code)
		})
	}

	rr := httptest.NewRecorder()
	s.OptimizeHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/optimize", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	s.OptimizeHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/optimize", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestOptimizeWithAddresses(t *testing.T) {
	s := newTestServer(t, nil)
	fp := &fakeProvider{matrix: scenarioMatrix()}
	s.Distance = fp
	rr := postJSON(t, s.Routes(), "/v1/optimize", map[string]any{
		"addresses":   []string{"p1", "p2", "p3"},
		"workerNames": []string{"a", "b"},
		"preferences": map[string]int{"1": 0, "2": 0, "3": 1},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, []string{"CV2 2TE, UK", "p1", "p2", "p3"}, fp.got)

	var res model.OptimizeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, fp.got, res.Locations)
	assert.InDelta(t, 19, res.TotalDistance, 1e-9)
}

func TestOptimizeProviderFailure(t *testing.T) {
	s := newTestServer(t, nil)
	s.Distance = distance.NewGoogleProvider("", "", 0)
	rr := postJSON(t, s.Routes(), "/v1/optimize", map[string]any{
		"addresses":   []string{"p1"},
		"workerNames": []string{"a"},
	})
	require.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, codeProvider, decodeProblem(t, rr).Code)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("x: %w", opt.ErrInvalidInput), http.StatusBadRequest, codeInvalidInput},
		{opt.ErrInfeasible, http.StatusUnprocessableEntity, codeInfeasible},
		{opt.ErrUnsolved, http.StatusUnprocessableEntity, codeUnsolved},
		{opt.ErrInconsistentSolution, http.StatusInternalServerError, codeInconsistent},
		{fmt.Errorf("matrix: %w", &distance.ProviderError{Provider: "google", Reason: "down"}), http.StatusBadGateway, codeProvider},
		{context.Canceled, http.StatusServiceUnavailable, codeCanceled},
		{errors.New("boom"), http.StatusInternalServerError, codeInternal},
	}
	for _, tc := range cases {
		c := classify(tc.err)
		assert.Equal(t, tc.status, c.status, tc.err.Error())
		assert.Equal(t, tc.code, c.code, tc.err.Error())
	}
}

func TestJobLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() { cancel(); s.Wait() }()
	s.Start(ctx)
	h := s.Routes()

	rr := postJSON(t, h, "/v1/jobs", map[string]any{
		"distanceMatrix": scenarioMatrix(),
		"workerNames":    []string{"a", "b"},
		"preferences":    map[string]int{"1": 0, "2": 0, "3": 1},
		"callbackUrl":    "http://127.0.0.1:1/hook",
	})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	var queued model.Job
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &queued))
	assert.Equal(t, model.JobQueued, queued.Status)
	assert.Equal(t, "/v1/jobs/"+queued.ID, rr.Header().Get("Location"))

	job := waitForJob(t, s, queued.ID)
	require.Equal(t, model.JobSucceeded, job.Status)
	require.NotNil(t, job.Result)
	assert.InDelta(t, 19, job.Result.TotalDistance, 1e-9)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.FinishedAt)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/jobs/"+job.ID, nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/jobs?status=succeeded", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var list model.JobList
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, job.ID, list.Items[0].ID)

	// completion callback is queued for the webhook worker
	var deliveries struct {
		Items []map[string]any `json:"items"`
	}
	require.Eventually(t, func() bool {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/jobs/"+job.ID+"/deliveries", nil))
		return rr.Code == http.StatusOK && json.Unmarshal(rr.Body.Bytes(), &deliveries) == nil && len(deliveries.Items) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, model.EventJobCompleted, deliveries.Items[0]["eventType"])

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/jobs/nope", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/jobs/"+job.ID+"/other", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/jobs?limit=x", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestFailedJobRecordsError(t *testing.T) {
	s := newTestServer(t, nil)
	s.Distance = &fakeProvider{err: &distance.ProviderError{Provider: "fake", Reason: "down"}}
	ctx, cancel := context.WithCancel(context.Background())
	defer func() { cancel(); s.Wait() }()
	s.Start(ctx)

	rr := postJSON(t, s.Routes(), "/v1/jobs", map[string]any{
		"addresses":   []string{"p1"},
		"workerNames": []string{"a"},
	})
	require.Equal(t, http.StatusAccepted, rr.Code)
	var queued model.Job
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &queued))

	job := waitForJob(t, s, queued.ID)
	assert.Equal(t, model.JobFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, codeProvider, job.Error.Code)
}

// readSSE returns the next event type and data line from the stream.
func readSSE(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var typ, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			typ = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && typ != "":
			return typ, data
		}
	}
}

func createQueuedJob(t *testing.T, s *Server) string {
	t.Helper()
	rr := postJSON(t, s.Routes(), "/v1/jobs", map[string]any{
		"distanceMatrix": scenarioMatrix(),
		"workerNames":    []string{"a", "b"},
		"preferences":    map[string]int{"1": 0, "2": 0, "3": 1},
	})
	require.Equal(t, http.StatusAccepted, rr.Code)
	var job model.Job
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &job))
	return job.ID
}

func TestStartRecoversUnfinishedJobs(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()
	req := model.OptimizeRequest{
		DistanceMatrix: scenarioMatrix(),
		WorkerNames:    []string{"a", "b"},
		Preferences:    map[int]int{1: 0, 2: 0, 3: 1},
	}
	// left behind by a previous process
	queued, err := s.Store.CreateJob(ctx, model.Job{Request: req})
	require.NoError(t, err)
	running, err := s.Store.CreateJob(ctx, model.Job{Request: req, Status: model.JobRunning})
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	defer func() { cancel(); s.Wait() }()
	s.Start(runCtx)

	job := waitForJob(t, s, queued.ID)
	assert.Equal(t, model.JobSucceeded, job.Status)
	require.NotNil(t, job.Result)
	assert.InDelta(t, 19, job.Result.TotalDistance, 1e-9)

	job, err = s.Store.GetJob(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, codeInterrupted, job.Error.Code)
	assert.True(t, job.Error.Retryable)
	assert.NotNil(t, job.FinishedAt)
}

func TestEnqueueSkipsWaitingJob(t *testing.T) {
	s := newTestServer(t, nil)
	id := createQueuedJob(t, s)
	require.True(t, s.enqueue(id))
	assert.Len(t, s.queue, 1)

	// the job posted before Start is run once, not again by recovery
	ctx, cancel := context.WithCancel(context.Background())
	defer func() { cancel(); s.Wait() }()
	s.Start(ctx)
	job := waitForJob(t, s, id)
	assert.Equal(t, model.JobSucceeded, job.Status)
	assert.Empty(t, s.queue)
}

type failingUpdateStore struct {
	store.Store
}

func (failingUpdateStore) UpdateJob(context.Context, model.Job) error {
	return errors.New("db down")
}

func TestQueueFullLogsStoreError(t *testing.T) {
	s := newTestServer(t, nil)
	logger, hook := logtest.NewNullLogger()
	s.Log = logger
	s.Store = failingUpdateStore{Store: s.Store}
	s.queue = make(chan string) // no worker, so every enqueue fails

	rr := postJSON(t, s.Routes(), "/v1/jobs", map[string]any{
		"distanceMatrix": scenarioMatrix(),
		"workerNames":    []string{"a"},
	})
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "5", rr.Header().Get("Retry-After"))

	var logged bool
	for _, e := range hook.AllEntries() {
		if e.Message == "mark job failed" {
			logged = true
			assert.Equal(t, log.ErrorLevel, e.Level)
			assert.EqualError(t, e.Data[log.ErrorKey].(error), "db down")
		}
	}
	assert.True(t, logged, "store failure must be logged")
}

func TestJobEventStream(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()
	id := createQueuedJob(t, s)

	resp, err := http.Get(srv.URL + "/v1/jobs/" + id + "/events/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	br := bufio.NewReader(resp.Body)

	typ, _ := readSSE(t, br)
	require.Equal(t, "job.snapshot", typ)

	// the stream is subscribed now; let a worker pick the job up
	ctx, cancel := context.WithCancel(context.Background())
	defer func() { cancel(); s.Wait() }()
	s.Start(ctx)

	var seen []string
	for {
		typ, data := readSSE(t, br)
		seen = append(seen, typ)
		if typ == model.EventJobCompleted {
			var evt model.JobEvent
			require.NoError(t, json.Unmarshal([]byte(data), &evt))
			assert.Equal(t, id, evt.JobID)
			break
		}
		require.NotEqual(t, model.EventJobFailed, typ, data)
	}
	assert.Equal(t, model.EventJobStarted, seen[0])

	// a finished job yields its snapshot and ends the stream
	resp2, err := http.Get(srv.URL + "/v1/jobs/" + id + "/events/stream")
	require.NoError(t, err)
	defer resp2.Body.Close()
	body, err := io.ReadAll(resp2.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "event: job.snapshot")
	assert.Contains(t, string(body), `"status":"succeeded"`)
}

func TestJobWebSocket(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()
	id := createQueuedJob(t, s)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/jobs/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(20 * time.Second))

	var evt model.JobEvent
	require.NoError(t, conn.ReadJSON(&evt))
	require.Equal(t, "job.snapshot", evt.Type)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() { cancel(); s.Wait() }()
	s.Start(ctx)

	for evt.Type != model.EventJobCompleted {
		evt = model.JobEvent{}
		require.NoError(t, conn.ReadJSON(&evt))
		require.NotEqual(t, model.EventJobFailed, evt.Type)
	}
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.Rate.RPS = 0.001
		c.Rate.Burst = 1
	})
	h := s.Routes()
	body := map[string]any{"distanceMatrix": [][]float64{{0, 1}, {1, 0}}, "workerNames": []string{"a"}}
	assert.Equal(t, http.StatusOK, postJSON(t, h, "/v1/optimize", body).Code)
	rr := postJSON(t, h, "/v1/optimize", body)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))

	// reads are not limited
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/jobs", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestSolverOverridesOnlyTighten(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.Solver.TimeLimit = 10 * time.Second
		c.Solver.NodeLimit = 1000
	})
	assert.Same(t, s.Solver, s.solverFor(nil))

	off := false
	c := s.solverFor(&model.SolverOverrides{TimeLimitMs: 60_000, NodeLimit: 50, WarmStart: &off}).Config()
	assert.Equal(t, 10*time.Second, c.TimeLimit)
	assert.Equal(t, 50, c.NodeLimit)
	assert.False(t, c.WarmStart)

	c = s.solverFor(&model.SolverOverrides{TimeLimitMs: 500}).Config()
	assert.Equal(t, 500*time.Millisecond, c.TimeLimit)
	assert.Equal(t, 1000, c.NodeLimit)
}

func TestOpsEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Routes()
	// one solve so the solver metrics have a sample
	postJSON(t, h, "/v1/optimize", map[string]any{"distanceMatrix": [][]float64{{0}}, "workerNames": []string{"a"}})

	for path, want := range map[string]string{
		"/metrics":          "visitplan_solves_total",
		"/v1/solver/config": `"relaxer":"simplex"`,
		"/debug/info":       `"build"`,
		"/openapi.json":     `"openapi":"3.0.3"`,
		"/openapi.yaml":     "openapi: 3.0.3",
		"/docs":             "redoc",
	} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rr.Code, path)
		assert.Contains(t, rr.Body.String(), want, path)
	}
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "/v1/optimize", routeLabel("/v1/optimize"))
	assert.Equal(t, "/v1/jobs/", routeLabel("/v1/jobs/"))
	assert.Equal(t, "/v1/jobs/:id", routeLabel("/v1/jobs/abc"))
	assert.Equal(t, "/v1/jobs/:id/events/stream", routeLabel("/v1/jobs/abc/events/stream"))
}
