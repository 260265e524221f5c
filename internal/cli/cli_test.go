package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shaiso/salesprice/internal/config"
	"github.com/shaiso/salesprice/internal/mq"
	"github.com/shaiso/salesprice/internal/orchestrator"
	"github.com/shaiso/salesprice/internal/telemetry"
	"github.com/shaiso/salesprice/internal/tracking"
)

// writePipelineFixture создаёт config.yml и raw CSV во временном каталоге.
func writePipelineFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	raw := filepath.Join(dir, "data", "raw")
	if err := os.MkdirAll(raw, 0o755); err != nil {
		t.Fatal(err)
	}

	var product, orders, sales strings.Builder
	product.WriteString("sku_id,weight\n")
	for i := 1; i <= 4; i++ {
		fmt.Fprintf(&product, "%d,%d\n", i, i*3)
	}
	orders.WriteString("order_id,channel\n")
	sales.WriteString("order_id,sku_id,unit_price\n")
	for i := 1; i <= 30; i++ {
		sku := i%4 + 1
		fmt.Fprintf(&orders, "%d,web\n", i)
		fmt.Fprintf(&sales, "%d,%d,%d\n", i, sku, sku*9+2)
	}

	files := map[string]string{
		"product.csv": product.String(),
		"orders.csv":  orders.String(),
		"sales.csv":   sales.String(),
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(raw, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	conf := fmt.Sprintf(`
data_base_path: %s
artifacts_path: %s
tracking:
  backend: mlflow
  uri: http://127.0.0.1:1
stages:
  training:
    epochs: 500
`, filepath.Join(dir, "data"), filepath.Join(dir, "artifacts"))

	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte(conf), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunCmd_DryRun(t *testing.T) {
	t.Setenv("RABBITMQ_URL", "")
	path := writePipelineFixture(t)

	var stdout, stderr bytes.Buffer
	configFn := func() (*config.Config, error) { return config.Load(path) }
	outputFn := func() *Output { return NewOutputTo(true, &stdout, &stderr) }

	cmd := NewRunCmd(configFn, outputFn)
	cmd.SetArgs([]string{"--dry-run"})

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v (stderr: %s)", err, stderr.String())
	}

	var result orchestrator.Result
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		t.Fatalf("decode output %q: %v", stdout.String(), err)
	}
	if result.RunID == "" || len(result.StageRuns) != 4 {
		t.Errorf("unexpected result: %+v", result)
	}
	if result.Score < 0 || result.Score > 1 {
		t.Errorf("expected near-zero rmse on linear data, got %v", result.Score)
	}
	if !strings.Contains(stderr.String(), "Pipeline completed") {
		t.Errorf("expected success message, got %q", stderr.String())
	}
}

func TestRunCmd_InvalidSchedule(t *testing.T) {
	path := writePipelineFixture(t)

	var stdout, stderr bytes.Buffer
	cmd := NewRunCmd(
		func() (*config.Config, error) { return config.Load(path) },
		func() *Output { return NewOutputTo(false, &stdout, &stderr) },
	)
	cmd.SetArgs([]string{"--dry-run", "--schedule", "not a cron"})

	if err := cmd.ExecuteContext(context.Background()); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestOpenTracking_Backends(t *testing.T) {
	ctx := context.Background()
	logger := telemetry.DiscardLogger()

	cfg := config.Default()
	cfg.Tracking.Backend = config.BackendMemory
	client, closeFn, err := OpenTracking(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	closeFn()
	if _, ok := client.Backend().(*tracking.MemoryBackend); !ok {
		t.Errorf("expected memory backend, got %T", client.Backend())
	}

	cfg.Tracking.Backend = config.BackendMLflow
	client, closeFn, err = OpenTracking(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	closeFn()
	if _, ok := client.Backend().(*tracking.MLflowBackend); !ok {
		t.Errorf("expected mlflow backend, got %T", client.Backend())
	}

	cfg.Tracking.Backend = "sqlite"
	if _, _, err := OpenTracking(ctx, cfg, logger); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestOutput_Table(t *testing.T) {
	var stdout bytes.Buffer
	out := NewOutputTo(false, &stdout, &bytes.Buffer{})

	out.Print([]string{"ID", "NAME"}, [][]string{{"1", "Data Cleaning"}}, nil)

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header, separator and row, got %q", stdout.String())
	}
	if !strings.HasPrefix(lines[1], "--") || !strings.Contains(lines[2], "Data Cleaning") {
		t.Errorf("unexpected table: %q", stdout.String())
	}
}

func TestRunRowsAndSummary(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	runs := []tracking.RunInfo{
		{ID: "p1", Name: orchestrator.RunPipeline, Status: tracking.RunStatusFinished, StartTime: start, EndTime: start.Add(time.Minute)},
		{ID: "c1", ParentID: "p1", Name: orchestrator.RunDataCleaning, Status: tracking.RunStatusFinished, StartTime: start,
			Params: []tracking.Param{{Key: orchestrator.ParamSalesRows, Value: "10"}}},
		{ID: "p2", Name: orchestrator.RunPipeline, Status: tracking.RunStatusFailed, StartTime: start},
		{ID: "p3", Name: orchestrator.RunPipeline, Status: tracking.RunStatusRunning, StartTime: start},
		{ID: "c3", ParentID: "p1", Name: orchestrator.RunModelScoring, Status: tracking.RunStatusFinished, StartTime: start,
			Params: []tracking.Param{{Key: orchestrator.ParamRMSE, Value: "12.34"}}},
		{ID: "c4", ParentID: "p2", Name: orchestrator.RunModelScoring, Status: tracking.RunStatusFailed, StartTime: start,
			Params: []tracking.Param{{Key: orchestrator.ParamRMSE, Value: "99"}}},
	}

	rows := runRows(runs)
	if rows[0][2] != "-" || rows[1][2] != "p1" {
		t.Errorf("unexpected parent column: %v / %v", rows[0], rows[1])
	}
	if rows[1][5] != "-" || rows[1][6] != "1" {
		t.Errorf("unexpected end/params columns: %v", rows[1])
	}

	s := summarize(tracking.Experiment{ID: "1", Name: "exp"}, runs)
	if s.Runs != 3 || s.Finished != 1 || s.Failed != 1 || s.Running != 1 {
		t.Errorf("unexpected summary: %+v", s)
	}
	// RMSE берётся из последнего FINISHED запуска, не из упавшего
	if s.LastRMSE != "12.34" {
		t.Errorf("expected last rmse 12.34, got %q", s.LastRMSE)
	}

	if empty := summarize(tracking.Experiment{ID: "1"}, runs[2:4]); empty.LastRMSE != "" {
		t.Errorf("expected no rmse without finished runs, got %q", empty.LastRMSE)
	}
}

func TestPrintMalformed(t *testing.T) {
	var stderr bytes.Buffer
	out := NewOutputTo(false, &bytes.Buffer{}, &stderr)

	_, err := mq.DecodeMessage([]byte("{broken"))
	if err == nil {
		t.Fatal("expected decode error")
	}
	printMalformed(out, []byte("{broken"), err)

	got := stderr.String()
	if !strings.HasPrefix(got, "Error: malformed message") || !strings.Contains(got, "{broken") {
		t.Errorf("unexpected output %q", got)
	}

	stderr.Reset()
	printMalformed(out, []byte(strings.Repeat("x", 500)), err)
	if strings.Contains(stderr.String(), strings.Repeat("x", 201)) {
		t.Errorf("expected body to be truncated, got %d bytes", stderr.Len())
	}
}

func TestPrintEvent(t *testing.T) {
	var stdout bytes.Buffer
	out := NewOutputTo(false, &stdout, &bytes.Buffer{})

	msg := mq.NewMessage(mq.MessageTypePipelineFinished, mq.PipelineFinishedPayload{
		RunID:       "run-1",
		Status:      "FAILED",
		FailedStage: orchestrator.RunModelTraining,
		DurationMs:  2500,
	})
	// Payload приходит из очереди как map после json.Unmarshal
	body, _ := json.Marshal(msg)
	decoded, err := mq.DecodeMessage(body)
	if err != nil {
		t.Fatal(err)
	}

	if err := printEvent(out, decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := stdout.String()
	for _, want := range []string{"run-1", "FAILED", orchestrator.RunModelTraining, "2.5s"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in output %q", want, got)
		}
	}
}
