package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/seantiz/modelrouter/internal/model"
)

func TestHealthzEndpoint(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
	want := []string{"knn", "linear", "mlp", "ensemble"}
	if strings.Join(body.AvailableBackends, ",") != strings.Join(want, ",") {
		t.Errorf("available_backends = %v, want %v", body.AvailableBackends, want)
	}
}

func TestJobsHealthConnected(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/jobs/health")
	if err != nil {
		t.Fatalf("GET /v1/jobs/health: %v", err)
	}
	defer resp.Body.Close()

	var body jobsHealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body.Success || body.Status != "connected" {
		t.Errorf("body = %+v, want connected", body)
	}
}

func TestJobsHealthDisconnectedWhenWorkersBusy(t *testing.T) {
	env := newTestEnv(t)
	env.srv.probeTimeout = 30 * time.Millisecond

	ts := httptest.NewServer(env.srv.Router())
	defer ts.Close()

	blocker := newBlockingBackend()
	env.srv.registry.Register("slow", blocker)
	defer close(blocker.release)

	if _, err := env.jobs.Submit(context.Background(), model.JobSpec{Backend: "slow"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-blocker.entered

	resp, err := http.Get(ts.URL + "/v1/jobs/health")
	if err != nil {
		t.Fatalf("GET /v1/jobs/health: %v", err)
	}
	defer resp.Body.Close()

	var body jobsHealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Success || body.Status != "disconnected" || body.Error == "" {
		t.Errorf("body = %+v, want disconnected with error", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	// Make a request to generate metrics.
	http.Get(ts.URL + "/healthz")

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/plain") && !strings.Contains(contentType, "text/openmetrics") {
		t.Errorf("Content-Type = %q, expected prometheus format", contentType)
	}

	bodyBytes, _ := io.ReadAll(resp.Body)
	body := string(bodyBytes)

	if !strings.Contains(body, "modelrouter_http_requests_total") {
		t.Error("metrics output missing modelrouter_http_requests_total")
	}
	if !strings.Contains(body, "modelrouter_http_request_duration_seconds") {
		t.Error("metrics output missing modelrouter_http_request_duration_seconds")
	}
}
