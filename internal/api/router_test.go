package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Harshitk-cp/causal/internal/causal"
	"github.com/Harshitk-cp/causal/internal/metrics"
	"github.com/Harshitk-cp/causal/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const smokingJSON = `{
	"name": "smoking",
	"variables": [{"id": "Smoking"}, {"id": "Tar"}, {"id": "Cancer"}],
	"edges": [
		{"cause": "Smoking", "effect": "Tar"},
		{"cause": "Tar", "effect": "Cancer"},
		{"cause": "Smoking", "effect": "Cancer"}
	]
}`

func newTestApp(t *testing.T) *App {
	t.Helper()
	m := metrics.New()
	svc := service.NewCausalService(causal.NewBuilder(), causal.DefaultOptions(), zap.NewNop(), service.WithMetrics(m))
	return NewApp(Deps{
		Service: svc,
		Metrics: m,
		Logger:  zap.NewNop(),
	})
}

func do(t *testing.T, app *App, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createSmoking(t *testing.T, app *App) string {
	t.Helper()
	rec := do(t, app, http.MethodPost, "/v1/graphs", smokingJSON)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	out := decode[map[string]any](t, rec)
	return out["id"].(string)
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestApp(t), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "memory", decode[map[string]string](t, rec)["storage"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestGraphLifecycle(t *testing.T) {
	app := newTestApp(t)
	id := createSmoking(t, app)

	rec := do(t, app, http.MethodGet, "/v1/graphs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["count"])

	rec = do(t, app, http.MethodGet, "/v1/graphs/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[map[string]any](t, rec)
	assert.Equal(t, []any{"Smoking", "Tar", "Cancer"}, detail["topological_order"])

	rec = do(t, app, http.MethodPost, "/v1/graphs/"+id+"/variables", `{"id": "Genes"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.EqualValues(t, 4, decode[map[string]any](t, rec)["variable_count"])

	rec = do(t, app, http.MethodPost, "/v1/graphs/"+id+"/edges", `{"cause": "Genes", "effect": "Cancer", "strength": 0.4}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.EqualValues(t, 4, decode[map[string]any](t, rec)["edge_count"])

	rec = do(t, app, http.MethodDelete, "/v1/graphs/"+id+"/variables/Genes", "")
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.Empty(t, rec.Body.String())

	rec = do(t, app, http.MethodGet, "/v1/graphs/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, decode[map[string]any](t, rec)["variable_count"])

	rec = do(t, app, http.MethodDelete, "/v1/graphs/"+id, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, app, http.MethodGet, "/v1/graphs/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateGraph_InvalidSpec(t *testing.T) {
	app := newTestApp(t)
	body := `{"variables": [{"id": "A"}, {"id": "A"}], "edges": [{"cause": "A", "effect": "B"}]}`

	rec := do(t, app, http.MethodPost, "/v1/graphs", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	out := decode[map[string]any](t, rec)
	violations, ok := out["violations"].([]any)
	require.True(t, ok, rec.Body.String())
	assert.Len(t, violations, 2)
}

func TestCreateGraph_MalformedBody(t *testing.T) {
	app := newTestApp(t)

	rec := do(t, app, http.MethodPost, "/v1/graphs", `{"variables": [`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, app, http.MethodPost, "/v1/graphs", `{"nodes": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddEdge_Cycle(t *testing.T) {
	app := newTestApp(t)
	id := createSmoking(t, app)

	rec := do(t, app, http.MethodPost, "/v1/graphs/"+id+"/edges", `{"cause": "Cancer", "effect": "Smoking"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	out := decode[map[string]any](t, rec)
	assert.NotEmpty(t, out["cycle"])
}

func TestAddVariable_Validation(t *testing.T) {
	app := newTestApp(t)
	id := createSmoking(t, app)

	rec := do(t, app, http.MethodPost, "/v1/graphs/"+id+"/variables", `{"label": "no id"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "id is required")

	rec = do(t, app, http.MethodPost, "/v1/graphs/"+id+"/variables", `{"id": "Q", "type": "ordinal"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "type must be one of")
}

func TestInvalidGraphID(t *testing.T) {
	rec := do(t, newTestApp(t), http.MethodGet, "/v1/graphs/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEstimateEffect(t *testing.T) {
	app := newTestApp(t)
	id := createSmoking(t, app)

	rec := do(t, app, http.MethodPost, "/v1/graphs/"+id+"/effect", `{"treatment": "Smoking", "outcome": "Cancer"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	est := decode[causal.EffectEstimate](t, rec)
	assert.InDelta(t, 2.0, est.Effect, 1e-9)
	assert.Equal(t, causal.StrategyNoConfounding, est.Strategy)

	rec = do(t, app, http.MethodPost, "/v1/graphs/"+id+"/effect", `{"treatment": "Smoking", "outcome": "Nope"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, app, http.MethodPost, "/v1/graphs/"+id+"/effect", `{"treatment": "Smoking"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEstimateEffect_Unidentifiable(t *testing.T) {
	app := newTestApp(t)
	rec := do(t, app, http.MethodPost, "/v1/graphs", `{
		"variables": [{"id": "U", "latent": true}, {"id": "X"}, {"id": "Y"}],
		"edges": [
			{"cause": "U", "effect": "X"},
			{"cause": "U", "effect": "Y"},
			{"cause": "X", "effect": "Y"}
		]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[map[string]any](t, rec)["id"].(string)

	rec = do(t, app, http.MethodPost, "/v1/graphs/"+id+"/effect", `{"treatment": "X", "outcome": "Y"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	out := decode[map[string]any](t, rec)
	assert.Equal(t, []any{"U"}, out["confounders"])
	assert.Contains(t, out["error"], "confounded by U")
}

func TestIntervene(t *testing.T) {
	app := newTestApp(t)
	id := createSmoking(t, app)

	rec := do(t, app, http.MethodPost, "/v1/graphs/"+id+"/intervene", `{"intervention": {"Smoking": 1}, "target": "Cancer"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[causal.InterventionResult](t, rec)
	assert.InDelta(t, 2.0, res.Value, 1e-9)
	assert.Equal(t, []string{"Smoking", "Tar", "Cancer"}, res.Path)
}

func TestCounterfactual(t *testing.T) {
	app := newTestApp(t)
	id := createSmoking(t, app)

	rec := do(t, app, http.MethodPost, "/v1/graphs/"+id+"/counterfactual", `{
		"evidence": {"Smoking": 1, "Tar": 1, "Cancer": 2.5},
		"scenarios": [{"label": "quit", "assignment": {"Smoking": 0}}],
		"outcome": "Cancer"
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		Outcome string                  `json:"outcome"`
		Results []causal.ScenarioResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Results, 1)
	assert.Equal(t, "quit", out.Results[0].Label)
	assert.InDelta(t, 0.5, out.Results[0].Value, 1e-9)

	rec = do(t, app, http.MethodPost, "/v1/graphs/"+id+"/counterfactual", `{"scenarios": [], "outcome": "Cancer"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdjustmentAndPaths(t *testing.T) {
	app := newTestApp(t)
	id := createSmoking(t, app)

	rec := do(t, app, http.MethodGet, "/v1/graphs/"+id+"/adjustment?treatment=Tar&outcome=Cancer", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	adj := decode[causal.AdjustmentResult](t, rec)
	assert.Equal(t, []string{"Smoking"}, adj.Set)

	rec = do(t, app, http.MethodGet, "/v1/graphs/"+id+"/adjustment?treatment=Tar", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, app, http.MethodGet, "/v1/graphs/"+id+"/paths?from=Smoking&to=Cancer", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var paths struct {
		Paths []causal.CausalPath `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &paths))
	assert.Len(t, paths.Paths, 2)
}

func TestCheckRule(t *testing.T) {
	app := newTestApp(t)
	id := createSmoking(t, app)

	rec := do(t, app, http.MethodPost, "/v1/graphs/"+id+"/rules", `{"rule": 2, "y": ["Cancer"], "z": ["Smoking"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode[map[string]any](t, rec)["holds"])

	rec = do(t, app, http.MethodPost, "/v1/graphs/"+id+"/rules", `{"rule": 4, "y": ["Cancer"], "z": ["Smoking"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusAndMetrics(t *testing.T) {
	app := newTestApp(t)
	createSmoking(t, app)

	rec := do(t, app, http.MethodGet, "/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[map[string]any](t, rec)
	engine, ok := out["engine"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, engine["graphs"])

	rec = do(t, app, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `causal_http_requests_total{code="201",method="POST",route="/v1/graphs`), body)
	assert.Contains(t, body, `causal_queries_total{operation="create_graph",status="ok"} 1`)
}
