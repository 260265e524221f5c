package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "{}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Tracking.Experiment != "TAMLEP_MLFlow" {
		t.Errorf("expected default experiment, got %q", cfg.Tracking.Experiment)
	}
	if cfg.Tracking.URI != "http://127.0.0.1:8082" {
		t.Errorf("expected default tracking uri, got %q", cfg.Tracking.URI)
	}
	if cfg.Stages.TrainingDatasets.Float("test_size", 0) != 0.2 {
		t.Error("expected default test_size 0.2")
	}
	if cfg.Stages.TrainingDatasets.String("target", "") != "unit_price" {
		t.Error("expected default target unit_price")
	}
	outliers := cfg.Stages.FeatureEngineering.Sub("outliers")
	if outliers.String("method", "") != "mean" || outliers.Bool("drop", true) {
		t.Errorf("unexpected outlier defaults: %v", outliers)
	}
	if cfg.Path() != path {
		t.Errorf("expected path %s, got %s", path, cfg.Path())
	}
}

func TestLoad_Seed(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want int64
	}{
		{"absent keeps default", "tracking:\n  backend: memory\n", 42},
		{"zero is applied", "seed: 0\ntracking:\n  backend: memory\n", 0},
		{"explicit value", "seed: 13\ntracking:\n  backend: memory\n", 13},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.yaml))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.Seed != tt.want {
				t.Errorf("expected seed %d, got %d", tt.want, cfg.Seed)
			}
		})
	}
}

func TestLoad_FileOverrides(t *testing.T) {
	path := writeConfig(t, `
data_base_path: /srv/data
artifacts_path: /srv/artifacts
seed: 7
raw:
  sales: /abs/sales.csv
tracking:
  backend: memory
  experiment: custom
  timeout: 5s
stages:
  training_datasets:
    test_size: 0.3
  feature_engineering:
    outliers:
      drop: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DataBasePath != "/srv/data" || cfg.ArtifactsPath != "/srv/artifacts" {
		t.Errorf("paths not applied: %+v", cfg)
	}
	if cfg.Seed != 7 {
		t.Errorf("expected seed 7, got %d", cfg.Seed)
	}
	if cfg.Tracking.Backend != BackendMemory || cfg.Tracking.Experiment != "custom" {
		t.Errorf("tracking not applied: %+v", cfg.Tracking)
	}
	if cfg.Tracking.Timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %v", cfg.Tracking.Timeout)
	}

	// test_size переопределён, target остался по умолчанию
	if cfg.Stages.TrainingDatasets.Float("test_size", 0) != 0.3 {
		t.Error("expected test_size 0.3")
	}
	if cfg.Stages.TrainingDatasets.String("target", "") != "unit_price" {
		t.Error("target default should survive merge")
	}

	outliers := cfg.Stages.FeatureEngineering.Sub("outliers")
	if !outliers.Bool("drop", false) {
		t.Error("expected drop=true")
	}
	if outliers.String("method", "") != "mean" {
		t.Error("method default should survive nested merge")
	}

	sales, err := cfg.RawTablePath(TableSales)
	if err != nil || sales != "/abs/sales.csv" {
		t.Errorf("expected absolute raw sales path, got %q (%v)", sales, err)
	}
	product, _ := cfg.RawTablePath(TableProduct)
	if product != filepath.Join("/srv/data", "raw/product.csv") {
		t.Errorf("unexpected product path %q", product)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "tracking:\n  backend: mlflow\n")

	t.Setenv("TRACKING_URI", "http://tracking:5000")
	t.Setenv("EXPERIMENT_NAME", "from-env")
	t.Setenv("RABBITMQ_URL", "amqp://guest:guest@mq:5672/")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Tracking.URI != "http://tracking:5000" {
		t.Errorf("expected env tracking uri, got %q", cfg.Tracking.URI)
	}
	if cfg.Tracking.Experiment != "from-env" {
		t.Errorf("expected env experiment, got %q", cfg.Tracking.Experiment)
	}
	if cfg.Events.RabbitMQURL != "amqp://guest:guest@mq:5672/" {
		t.Errorf("expected env rabbitmq url, got %q", cfg.Events.RabbitMQURL)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown backend", "tracking:\n  backend: sqlite\n"},
		{"postgres without dsn", "tracking:\n  backend: postgres\n"},
		{"test_size too large", "stages:\n  training_datasets:\n    test_size: 1.5\n"},
		{"bad outlier method", "stages:\n  feature_engineering:\n    outliers:\n      method: mode\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("SALESPRICE_TEST_VAR=hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SALESPRICE_TEST_VAR", "")
	os.Unsetenv("SALESPRICE_TEST_VAR")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), envPath); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if os.Getenv("SALESPRICE_TEST_VAR") != "hello" {
		t.Error("expected variable from .env")
	}
}

func TestCleanedTablePath_Unknown(t *testing.T) {
	cfg := Default()
	if _, err := cfg.CleanedTablePath("customers"); !errors.Is(err, ErrUnknownTable) {
		t.Errorf("expected ErrUnknownTable, got %v", err)
	}
}

func TestOptions_Merge(t *testing.T) {
	base := Options{"a": 1, "nested": map[string]any{"x": "1", "y": "2"}}
	merged := base.Merge(Options{"b": true, "nested": Options{"y": "3"}})

	if merged.Int("a", 0) != 1 || !merged.Bool("b", false) {
		t.Errorf("unexpected merge result: %v", merged)
	}
	nested := merged.Sub("nested")
	if nested.String("x", "") != "1" || nested.String("y", "") != "3" {
		t.Errorf("unexpected nested merge: %v", nested)
	}
	// base не изменился
	if base.Sub("nested").String("y", "") != "2" {
		t.Error("merge must not mutate receiver")
	}
}
