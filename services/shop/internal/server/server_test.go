package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"autoservice/internal/ratelimit"
	"autoservice/pkg/domain"
	"autoservice/pkg/store"
	"autoservice/services/shop/internal/app"
)

type testServer struct {
	t   *testing.T
	srv *httptest.Server
}

func newTestServer(t *testing.T, cfg Config, appCfg app.Config) *testServer {
	t.Helper()
	if appCfg.Store == nil && appCfg.DatabaseURL == "" {
		appCfg.DatabaseURL = app.MemoryDatabaseURL
	}
	core, err := app.New(appCfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	cfg.App = core
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &testServer{t: t, srv: srv}
}

func (ts *testServer) do(method, path string, body any, out any) int {
	ts.t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			ts.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, reader)
	if err != nil {
		ts.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		ts.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			ts.t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (ts *testServer) createMechanic(name string, capacity int, brands ...string) domain.Mechanic {
	ts.t.Helper()
	var mech domain.Mechanic
	status := ts.do(http.MethodPost, "/api/mechanics", map[string]any{
		"name": name, "brands": brands, "maxComplexity": capacity,
	}, &mech)
	if status != http.StatusCreated {
		ts.t.Fatalf("create mechanic status = %d", status)
	}
	return mech
}

func taskBody(brand, name string, complexity int) map[string]any {
	return map[string]any{"brand": brand, "name": name, "complexity": complexity}
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func TestCreateTaskScenarioOverHTTP(t *testing.T) {
	ts := newTestServer(t, Config{}, app.Config{})
	mech := ts.createMechanic("A", 10, "Audi")
	tasksPath := "/api/mechanics/" + mech.ID + "/tasks"

	var created domain.Task
	if status := ts.do(http.MethodPost, tasksPath, taskBody("Audi", "oil change", 6), &created); status != http.StatusCreated {
		t.Fatalf("first task status = %d", status)
	}
	if created.MechanicID != mech.ID || created.Complexity != 6 {
		t.Fatalf("unexpected task: %+v", created)
	}

	var errResp errorResponse
	if status := ts.do(http.MethodPost, tasksPath, taskBody("Audi", "brakes", 5), &errResp); status != http.StatusBadRequest {
		t.Fatalf("over-capacity status = %d", status)
	}
	if errResp.Code != "TASK_CAPACITY_EXCEEDED" || errResp.Error != "total complexity (11) exceeds mechanic limit (10)" {
		t.Fatalf("unexpected error response: %+v", errResp)
	}
	if errResp.RequestID == "" {
		t.Fatalf("expected request id in error response")
	}

	if status := ts.do(http.MethodPost, tasksPath, taskBody("Audi", "brakes", 4), nil); status != http.StatusCreated {
		t.Fatalf("fill-to-capacity status = %d", status)
	}

	errResp = errorResponse{}
	if status := ts.do(http.MethodPost, tasksPath, taskBody("BMW", "tune", 0), &errResp); status != http.StatusBadRequest {
		t.Fatalf("brand mismatch status = %d", status)
	}
	if errResp.Code != "TASK_BRAND_MISMATCH" {
		t.Fatalf("unexpected code: %+v", errResp)
	}

	var workload domain.Workload
	if status := ts.do(http.MethodGet, "/api/mechanics/"+mech.ID+"/workload", nil, &workload); status != http.StatusOK {
		t.Fatalf("workload status = %d", status)
	}
	if workload.Used != 10 || workload.Remaining != 0 || len(workload.Tasks) != 2 {
		t.Fatalf("unexpected workload: %+v", workload)
	}
}

func TestReassignOverHTTP(t *testing.T) {
	ts := newTestServer(t, Config{}, app.Config{})
	owner := ts.createMechanic("Owner", 10, "Ford")
	audiOnly := ts.createMechanic("B", 10, "Audi")
	fordToo := ts.createMechanic("C", 10, "Ford", "Audi")

	var task domain.Task
	ts.do(http.MethodPost, "/api/mechanics/"+owner.ID+"/tasks", taskBody("Ford", "gearbox", 5), &task)

	var errResp errorResponse
	status := ts.do(http.MethodPut, "/api/tasks/"+task.ID+"/reassign", map[string]string{"newMechanicId": audiOnly.ID}, &errResp)
	if status != http.StatusBadRequest || errResp.Code != "TASK_BRAND_MISMATCH" {
		t.Fatalf("expected brand mismatch, got %d %+v", status, errResp)
	}
	if allowed, _ := errResp.Details["allowed"].([]any); len(allowed) != 1 || allowed[0] != "Audi" {
		t.Fatalf("unexpected mismatch details: %+v", errResp.Details)
	}

	var unchanged domain.Task
	ts.do(http.MethodGet, "/api/tasks/"+task.ID, nil, &unchanged)
	if unchanged != task {
		t.Fatalf("task changed after rejected reassign: %+v", unchanged)
	}

	var moved domain.Task
	if status := ts.do(http.MethodPut, "/api/tasks/"+task.ID+"/reassign", map[string]string{"newMechanicId": fordToo.ID}, &moved); status != http.StatusOK {
		t.Fatalf("reassign status = %d", status)
	}
	if moved.MechanicID != fordToo.ID || moved.Brand != "Ford" || moved.Complexity != 5 {
		t.Fatalf("unexpected moved task: %+v", moved)
	}

	errResp = errorResponse{}
	status = ts.do(http.MethodPut, "/api/tasks/missing/reassign", map[string]string{"newMechanicId": fordToo.ID}, &errResp)
	if status != http.StatusNotFound || errResp.Code != "TASK_NOT_FOUND" {
		t.Fatalf("expected task not found, got %d %+v", status, errResp)
	}
}

func TestMechanicLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t, Config{}, app.Config{SeedBrands: domain.DefaultBrands})
	mech := ts.createMechanic("Ivan", 10, "Audi")
	base := "/api/mechanics/" + mech.ID

	var task domain.Task
	ts.do(http.MethodPost, base+"/tasks", taskBody("Audi", "oil", 3), &task)

	var edited domain.Task
	if status := ts.do(http.MethodPut, base+"/tasks/"+task.ID, taskBody("Audi", "oil + filter", 4), &edited); status != http.StatusOK {
		t.Fatalf("edit task status = %d", status)
	}
	if edited.Name != "oil + filter" || edited.Complexity != 4 {
		t.Fatalf("unexpected edit: %+v", edited)
	}

	var tasks listResponse[domain.Task]
	ts.do(http.MethodGet, base+"/tasks", nil, &tasks)
	if tasks.Count != 1 || tasks.Items[0].ID != task.ID {
		t.Fatalf("unexpected task list: %+v", tasks)
	}

	var updated domain.Mechanic
	if status := ts.do(http.MethodPut, base, map[string]any{"name": "Ivan P.", "brands": []string{"BMW"}}, &updated); status != http.StatusOK {
		t.Fatalf("update mechanic status = %d", status)
	}
	if updated.Capacity != domain.DefaultCapacity || updated.Brands.Join() != "BMW" {
		t.Fatalf("unexpected update: %+v", updated)
	}

	if status := ts.do(http.MethodDelete, base, nil, nil); status != http.StatusOK {
		t.Fatalf("delete mechanic status = %d", status)
	}
	var errResp errorResponse
	if status := ts.do(http.MethodGet, "/api/tasks/"+task.ID, nil, &errResp); status != http.StatusNotFound {
		t.Fatalf("expected cascaded task deletion, got %d", status)
	}
	errResp = errorResponse{}
	if status := ts.do(http.MethodGet, base, nil, &errResp); status != http.StatusNotFound || errResp.Code != "MECHANIC_NOT_FOUND" {
		t.Fatalf("expected mechanic not found, got %d %+v", status, errResp)
	}

	var brands listResponse[domain.Brand]
	ts.do(http.MethodGet, "/api/brands", nil, &brands)
	if brands.Count != len(domain.DefaultBrands) {
		t.Fatalf("unexpected brands: %+v", brands)
	}
	errResp = errorResponse{}
	if status := ts.do(http.MethodPost, "/api/brands", map[string]string{"name": "Audi"}, &errResp); status != http.StatusConflict || errResp.Code != "BRAND_ALREADY_EXISTS" {
		t.Fatalf("expected brand conflict, got %d %+v", status, errResp)
	}
}

func TestRequestErrors(t *testing.T) {
	ts := newTestServer(t, Config{}, app.Config{})
	mech := ts.createMechanic("A", 10, "Audi")

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"malformed json", http.MethodPost, "/api/mechanics/" + mech.ID + "/tasks", "{", http.StatusBadRequest, "SHOP_INVALID_REQUEST"},
		{"missing complexity", http.MethodPost, "/api/mechanics/" + mech.ID + "/tasks", map[string]string{"brand": "Audi", "name": "x"}, http.StatusBadRequest, "SHOP_INVALID_REQUEST"},
		{"unknown mechanic", http.MethodPost, "/api/mechanics/nope/tasks", taskBody("Audi", "x", 1), http.StatusNotFound, "MECHANIC_NOT_FOUND"},
		{"wrong method", http.MethodPatch, "/api/mechanics", nil, http.StatusMethodNotAllowed, "SYSTEM_METHOD_NOT_ALLOWED"},
		{"unknown route", http.MethodGet, "/api/mechanics/" + mech.ID + "/bogus", nil, http.StatusNotFound, "SYSTEM_NOT_FOUND"},
		{"unknown task", http.MethodDelete, "/api/mechanics/" + mech.ID + "/tasks/missing", nil, http.StatusNotFound, "TASK_NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var errResp errorResponse
			status := ts.do(tc.method, tc.path, tc.body, &errResp)
			if status != tc.status || errResp.Code != tc.code {
				t.Fatalf("got %d %+v, want %d %s", status, errResp, tc.status, tc.code)
			}
		})
	}
}

type brokenStore struct {
	*store.MemoryStore
}

func (brokenStore) ListMechanics(context.Context) ([]domain.Mechanic, error) {
	return nil, errors.New("dial tcp 10.0.0.5:5432: connection refused")
}

func TestStoreFailureHidesCause(t *testing.T) {
	ts := newTestServer(t, Config{}, app.Config{Store: brokenStore{store.NewMemoryStore()}})
	var errResp errorResponse
	status := ts.do(http.MethodGet, "/api/mechanics", nil, &errResp)
	if status != http.StatusInternalServerError || errResp.Code != "SYSTEM_INTERNAL_ERROR" {
		t.Fatalf("unexpected response: %d %+v", status, errResp)
	}
	if strings.Contains(errResp.Error, "10.0.0.5") {
		t.Fatalf("store failure cause leaked: %q", errResp.Error)
	}
}

func TestWriteRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter, err := ratelimit.NewFixedWindowLimiter(client, ratelimit.Config{Prefix: "test:shop", Limit: 1, Window: time.Minute})
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	ts := newTestServer(t, Config{Limiter: limiter}, app.Config{})

	body := map[string]any{"name": "A", "brands": []string{"Audi"}}
	if status := ts.do(http.MethodPost, "/api/mechanics", body, nil); status != http.StatusCreated {
		t.Fatalf("first write status = %d", status)
	}
	var errResp errorResponse
	if status := ts.do(http.MethodPost, "/api/mechanics", body, &errResp); status != http.StatusTooManyRequests || errResp.Code != "SYSTEM_RATE_LIMITED" {
		t.Fatalf("second write: %d %+v", status, errResp)
	}
	if status := ts.do(http.MethodGet, "/api/mechanics", nil, nil); status != http.StatusOK {
		t.Fatalf("reads must not be limited, got %d", status)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	ts := newTestServer(t, Config{Gatherer: reg}, app.Config{Registerer: reg})
	mech := ts.createMechanic("A", 1, "Audi")
	ts.do(http.MethodPost, "/api/mechanics/"+mech.ID+"/tasks", taskBody("Audi", "x", 2), nil)

	var health map[string]string
	if status := ts.do(http.MethodGet, "/healthz", nil, &health); status != http.StatusOK || health["status"] != "ok" {
		t.Fatalf("unexpected health: %d %v", status, health)
	}

	resp, err := http.Get(ts.srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	want := `autoservice_assignment_decisions_total{operation="create_task",outcome="capacity_exceeded"} 1`
	if !strings.Contains(buf.String(), want) {
		t.Fatalf("metrics output missing %q", want)
	}
}

func TestMetricsDisabledWithoutGatherer(t *testing.T) {
	ts := newTestServer(t, Config{}, app.Config{})
	if status := ts.do(http.MethodGet, "/metrics", nil, nil); status != http.StatusNotFound {
		t.Fatalf("expected 404 without gatherer, got %d", status)
	}
}

func TestNewRequiresApp(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without app")
	}
}
