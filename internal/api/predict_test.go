package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/seantiz/modelrouter/internal/model"
)

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestRouteEndpoint(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := post(t, ts.URL+"/v1/route", `{"features":{"MedInc":3},"criteria":{"priority":"speed"}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	res := decode[model.RoutingResult](t, resp)
	if res.SelectedBackend != model.BackendLinear {
		t.Errorf("selected = %q, want linear", res.SelectedBackend)
	}
	if res.Metadata.FeatureCount != 1 {
		t.Errorf("feature_count = %d, want 1", res.Metadata.FeatureCount)
	}
	if res.Characteristics == nil {
		t.Error("characteristics missing")
	}
}

func TestRouteMalformedCriteriaIgnored(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := post(t, ts.URL+"/v1/route", `{"criteria":{"priority":42,"use_case":"research"}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	res := decode[model.RoutingResult](t, resp)
	if res.SelectedBackend != model.BackendKNN {
		t.Errorf("selected = %q, want knn from use_case fallback", res.SelectedBackend)
	}
}

func TestPredictSingleBackend(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := post(t, ts.URL+"/v1/predict", `{"features":{"MedInc":3},"model_preference":"mlp"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decode[predictResponse](t, resp)
	if body.ModelUsed != model.BackendMLP || body.PredictedPrice != 200000 {
		t.Errorf("body = %+v, want mlp at 200000", body)
	}
	if body.RoutingExplanation == "" {
		t.Error("routing explanation missing")
	}
}

func TestPredictEnsembleExcludesUntrained(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := post(t, ts.URL+"/v1/predict", `{"criteria":{"priority":"balanced"}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decode[predictResponse](t, resp)
	if body.ModelUsed != model.BackendEnsemble {
		t.Errorf("model_used = %q, want ensemble", body.ModelUsed)
	}
	if body.PredictedPrice != 250000 {
		t.Errorf("predicted_price = %v, want mean of trained members 250000", body.PredictedPrice)
	}
	if len(body.EnsemblePredictions) != 2 {
		t.Errorf("ensemble_predictions = %v, want 2 members", body.EnsemblePredictions)
	}
	if len(body.Excluded) != 1 || body.Excluded[0] != model.BackendKNN {
		t.Errorf("excluded = %v, want [knn]", body.Excluded)
	}
	if len(body.Routing.EnsembleWeights) != 3 {
		t.Errorf("weights = %v, want one per registered backend", body.Routing.EnsembleWeights)
	}
}

func TestPredictNotTrainedIs404(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := post(t, ts.URL+"/v1/predict", `{"model_preference":"knn"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	body := decode[errorResponse](t, resp)
	if body.Success || body.Error == "" {
		t.Errorf("body = %+v, want an error message", body)
	}
}

func TestPredictNoBackendAvailableIs404(t *testing.T) {
	env := newTestEnv(t)
	env.srv.registry.Register(model.BackendMLP, env.knn)
	env.srv.registry.Register(model.BackendLinear, env.knn)
	ts := httptest.NewServer(env.srv.Router())
	defer ts.Close()

	resp := post(t, ts.URL+"/v1/predict", `{"model_preference":"ensemble"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestPredictBackendErrorIs500(t *testing.T) {
	env := newTestEnv(t)
	env.linear.PredictErr = errors.New("weights corrupted")
	ts := httptest.NewServer(env.srv.Router())
	defer ts.Close()

	resp := post(t, ts.URL+"/v1/predict", `{"model_preference":"ensemble"}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
}

func TestPredictInvalidJSON(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := post(t, ts.URL+"/v1/predict", "not json")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestPredictRejectsUnknownKeys(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	bodies := map[string]string{
		"top-level key":      `{"sqft":1200,"features":{"MedInc":3}}`,
		"misspelled feature": `{"features":{"MedInc":3,"HouseAgee":20}}`,
	}
	for name, body := range bodies {
		for _, path := range []string{"/v1/route", "/v1/predict", "/v1/predict/compare"} {
			resp := post(t, ts.URL+path, body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("%s %s: status = %d, want 400", name, path, resp.StatusCode)
				continue
			}
			if e := decode[errorResponse](t, resp); e.Error == "" {
				t.Errorf("%s %s: empty error message", name, path)
			}
		}
	}

	resp := post(t, ts.URL+"/v1/predict", `{"features":{"HouseAgee":20}}`)
	if e := decode[errorResponse](t, resp); !strings.Contains(e.Error, "HouseAgee") {
		t.Errorf("error = %q, want it to name the unknown feature", e.Error)
	}
}

func TestPredictCountsModelUsed(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	served := httpRequestsTotal.WithLabelValues(http.MethodPost, "/v1/predict", "200", model.BackendMLP)
	before := counterValue(t, served)

	resp := post(t, ts.URL+"/v1/predict", `{"features":{"MedInc":3},"model_preference":"mlp"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	// The middleware records after the handler returns, which can trail the
	// client seeing the response.
	deadline := time.Now().Add(2 * time.Second)
	for counterValue(t, served) != before+1 {
		if time.Now().After(deadline) {
			t.Fatalf("requests{model_used=mlp} = %v, want %v", counterValue(t, served), before+1)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestCompareEndpoint(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := post(t, ts.URL+"/v1/predict/compare", `{"features":{"MedInc":3}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decode[compareResponse](t, resp)
	if body.Available != 2 || body.AveragePrediction != 250000 {
		t.Errorf("body = %+v, want 2 available averaging 250000", body)
	}
	if v, ok := body.Predictions[model.BackendKNN]; !ok || v != nil {
		t.Errorf("knn prediction = %v (present=%v), want explicit null", v, ok)
	}
}

func TestListBackends(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/backends")
	if err != nil {
		t.Fatalf("GET /v1/backends: %v", err)
	}
	defer resp.Body.Close()

	var infos []struct {
		Name    string `json:"name"`
		Trained bool   `json:"trained"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&infos); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("got %d backends, want 3", len(infos))
	}
	if infos[0].Name != model.BackendKNN || infos[0].Trained {
		t.Errorf("first backend = %+v, want untrained knn", infos[0])
	}
}

func TestCharacteristicsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/backends/characteristics")
	if err != nil {
		t.Fatalf("GET characteristics: %v", err)
	}
	defer resp.Body.Close()

	var all map[string]model.Characteristics
	if err := json.NewDecoder(resp.Body).Decode(&all); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, id := range []string{model.BackendMLP, model.BackendLinear, model.BackendKNN, model.BackendEnsemble} {
		if _, ok := all[id]; !ok {
			t.Errorf("characteristics missing %q", id)
		}
	}
}
