package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func TestMetrics_ObserveStage(t *testing.T) {
	m := NewMetrics()

	m.ObserveStage("Data Cleaning", 50*time.Millisecond, nil)
	m.ObserveStage("Data Cleaning", 10*time.Millisecond, nil)
	m.ObserveStage("Model Training", time.Second, errors.New("boom"))

	if got := counterValue(t, m, "Data Cleaning", "succeeded"); got != 2 {
		t.Errorf("expected 2 succeeded cleaning runs, got %v", got)
	}
	if got := counterValue(t, m, "Model Training", "failed"); got != 1 {
		t.Errorf("expected 1 failed training run, got %v", got)
	}
}

func counterValue(t *testing.T, m *Metrics, stage, status string) float64 {
	t.Helper()

	var metric dto.Metric
	if err := m.stageTotal.WithLabelValues(stage, status).Write(&metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return metric.GetCounter().GetValue()
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	// Не должно паниковать
	m.ObserveStage("x", time.Second, nil)
	m.ObservePipeline(nil)
	m.SetScore(1)
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.SetScore(12.34)
	m.ObservePipeline(nil)

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "salesprice_last_rmse 12.34") {
		t.Errorf("expected last rmse in output, got:\n%s", body)
	}
	if !strings.Contains(string(body), `salesprice_pipeline_runs_total{status="succeeded"} 1`) {
		t.Errorf("expected pipeline counter in output")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"DEBUG", "DEBUG"},
		{"WARN", "WARN"},
		{"ERROR", "ERROR"},
		{"", "INFO"},
		{"verbose", "INFO"},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in).String(); got != tt.want {
			t.Errorf("parseLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger_Formats(t *testing.T) {
	var jsonBuf bytes.Buffer
	NewLogger(&jsonBuf, "json", slog.LevelInfo).Info("stage completed", "stage", "Data Cleaning")

	var entry map[string]any
	if err := json.Unmarshal(jsonBuf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", jsonBuf.String(), err)
	}
	if entry["msg"] != "stage completed" || entry["stage"] != "Data Cleaning" {
		t.Errorf("unexpected entry: %v", entry)
	}

	var textBuf bytes.Buffer
	logger := NewLogger(&textBuf, "text", slog.LevelWarn)
	logger.Info("hidden")
	logger.Warn("visible", "run_id", "r1")

	out := textBuf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info must be filtered at warn level")
	}
	if !strings.Contains(out, "visible") || !strings.Contains(out, "r1") {
		t.Errorf("unexpected text output %q", out)
	}
}
