package stages

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shaiso/salesprice/internal/config"
	"github.com/shaiso/salesprice/internal/dataset"
	"github.com/shaiso/salesprice/internal/telemetry"
)

// writeRaw записывает исходные таблицы в data/raw.
func writeRaw(t *testing.T, cfg *config.Config) {
	t.Helper()

	var product strings.Builder
	product.WriteString("SKU_id,Category,Weight\n")
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(&product, "%d,cat%d,%d\n", i, i%2, i*10)
	}
	// Дубликат и пустая строка должны быть удалены
	product.WriteString("1,cat1,10\n")
	product.WriteString("NA,,null\n")

	var orders strings.Builder
	orders.WriteString("OrderID,Region Code\n")
	for i := 1; i <= 40; i++ {
		fmt.Fprintf(&orders, "%d,%d\n", i, i%3)
	}

	var sales strings.Builder
	sales.WriteString("Order ID,SKU_id,Quantity,Unit Price\n")
	for i := 1; i <= 40; i++ {
		sku := i%5 + 1
		fmt.Fprintf(&sales, "%d,%d,%d,%d\n", i, sku, i%4+1, 2*sku*10+5)
	}

	files := map[string]string{
		config.TableProduct: product.String(),
		config.TableOrders:  orders.String(),
		config.TableSales:   sales.String(),
	}
	for table, content := range files {
		path, err := cfg.RawTablePath(table)
		if err != nil {
			t.Fatalf("raw path: %v", err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataBasePath = filepath.Join(dir, "data")
	cfg.ArtifactsPath = filepath.Join(dir, "artifacts")
	return cfg
}

func TestStages_EndToEnd(t *testing.T) {
	cfg := newTestConfig(t)
	writeRaw(t, cfg)

	s := New(telemetry.DiscardLogger())
	ctx := context.Background()

	product, err := s.CleanProductTable(ctx, cfg, cfg.Stages.Cleaning)
	if err != nil {
		t.Fatalf("clean product: %v", err)
	}
	if rows, cols := product.Shape(); rows != 5 || cols != 3 {
		t.Errorf("expected product shape (5, 3), got (%d, %d)", rows, cols)
	}
	if !product.HasColumn("sku_id") {
		t.Errorf("expected snake_case columns, got %v", product.Columns)
	}

	orders, err := s.CleanOrderTable(ctx, cfg, cfg.Stages.Cleaning)
	if err != nil {
		t.Fatalf("clean orders: %v", err)
	}
	if rows, cols := orders.Shape(); rows != 40 || cols != 2 {
		t.Errorf("expected orders shape (40, 2), got (%d, %d)", rows, cols)
	}

	sales, err := s.CleanSalesTable(ctx, cfg, cfg.Stages.Cleaning)
	if err != nil {
		t.Fatalf("clean sales: %v", err)
	}
	if rows, cols := sales.Shape(); rows != 40 || cols != 4 {
		t.Errorf("expected sales shape (40, 4), got (%d, %d)", rows, cols)
	}

	if err := s.CreateTrainingDatasets(ctx, cfg, cfg.Stages.TrainingDatasets); err != nil {
		t.Fatalf("create datasets: %v", err)
	}
	for _, p := range []string{TrainFeaturesPath(cfg), TrainTargetPath(cfg), TestFeaturesPath(cfg), TestTargetPath(cfg)} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s: %v", p, err)
		}
	}

	train, err := dataset.ReadCSV(TrainFeaturesPath(cfg))
	if err != nil {
		t.Fatal(err)
	}
	if len(train.Rows) != 32 {
		t.Errorf("expected 32 train rows, got %d", len(train.Rows))
	}
	if train.HasColumn("unit_price") {
		t.Error("target must not be among features")
	}
	if !train.HasColumn("weight") || !train.HasColumn("region_code") {
		t.Errorf("expected joined columns, got %v", train.Columns)
	}

	if err := s.TransformFeatures(ctx, cfg, cfg.Stages.FeatureEngineering); err != nil {
		t.Fatalf("transform features: %v", err)
	}
	var curated CuratedColumns
	if err := readJSON(CuratedColumnsPath(cfg), &curated); err != nil {
		t.Fatal(err)
	}
	for _, c := range curated.Columns {
		if c == "category" {
			t.Error("non-numeric column must not be curated")
		}
	}

	if err := s.TrainModel(ctx, cfg, config.Options{"epochs": 2000}); err != nil {
		t.Fatalf("train model: %v", err)
	}
	if _, err := os.Stat(TrainPipelinePath(cfg)); err != nil {
		t.Fatalf("expected train pipeline: %v", err)
	}

	score, err := s.ScoreModel(ctx, cfg, cfg.Stages.Scoring)
	if err != nil {
		t.Fatalf("score model: %v", err)
	}
	if math.IsNaN(score) || score < 0 {
		t.Fatalf("unexpected score %v", score)
	}
	// Цель линейно зависит от weight, модель должна почти её восстановить
	if score > 5 {
		t.Errorf("expected small rmse, got %v", score)
	}
}

func TestCreateTrainingDatasets_TargetMissing(t *testing.T) {
	cfg := newTestConfig(t)
	writeRaw(t, cfg)

	s := New(telemetry.DiscardLogger())
	ctx := context.Background()

	for _, clean := range []func(context.Context, *config.Config, config.Options) (*dataset.Table, error){
		s.CleanProductTable, s.CleanOrderTable, s.CleanSalesTable,
	} {
		if _, err := clean(ctx, cfg, nil); err != nil {
			t.Fatal(err)
		}
	}

	err := s.CreateTrainingDatasets(ctx, cfg, config.Options{"target": "margin"})
	if !errors.Is(err, ErrTargetNotFound) {
		t.Errorf("expected ErrTargetNotFound, got %v", err)
	}

	err = s.CreateTrainingDatasets(ctx, cfg, config.Options{"test_size": 1.5})
	if !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("expected ErrInvalidOptions, got %v", err)
	}
}

func TestCleanTable_MissingFile(t *testing.T) {
	cfg := newTestConfig(t)
	s := New(telemetry.DiscardLogger())

	if _, err := s.CleanSalesTable(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for missing raw table")
	}
}

func TestTrainModel_MissingArtifacts(t *testing.T) {
	cfg := newTestConfig(t)
	s := New(telemetry.DiscardLogger())

	if err := s.TrainModel(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error without feature artifacts")
	}
	if _, err := s.ScoreModel(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error without train pipeline")
	}
}

func TestSnakeCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Unit Price", "unit_price"},
		{"unitPrice", "unit_price"},
		{"OrderID", "order_id"},
		{"SKU_id", "sku_id"},
		{"  Region-Code ", "region_code"},
		{"already_snake", "already_snake"},
	}

	for _, tt := range tests {
		if got := snakeCase(tt.in); got != tt.want {
			t.Errorf("snakeCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPercentile(t *testing.T) {
	x := []float64{4, 1, 3, 2}

	tests := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{100, 4},
		{50, 2.5},
		{25, 1.75},
	}
	for _, tt := range tests {
		if got := percentile(x, tt.p); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestFitFeaturePipeline_Outliers(t *testing.T) {
	rows := [][]string{{"1"}, {"2"}, {"3"}, {"4"}, {"5"}, {"1000"}, {""}}
	table, err := dataset.New([]string{"x"}, rows)
	if err != nil {
		t.Fatal(err)
	}

	fp, err := FitFeaturePipeline(table, []string{"x"}, OutlierMethodMedian, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	col := fp.Columns[0]
	if col.Fill != 3 {
		t.Errorf("expected median fill 3, got %v", col.Fill)
	}
	if col.Upper >= 1000 {
		t.Errorf("expected 1000 above upper bound %v", col.Upper)
	}

	X, kept, err := fp.Transform(table, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(X) != len(rows) || len(kept) != len(rows) {
		t.Errorf("expected all rows kept, got %d", len(X))
	}
	// Выброс и пропуск заменяются на Fill, после стандартизации равны
	if X[5][0] != X[6][0] || X[5][0] != X[2][0] {
		t.Errorf("expected outlier and missing replaced by fill, got %v %v", X[5][0], X[6][0])
	}

	X, kept, err = fp.Transform(table, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(X) != 6 {
		t.Errorf("expected outlier row dropped, got %d rows", len(X))
	}
	for _, r := range kept {
		if r == 5 {
			t.Error("outlier row must not be kept")
		}
	}

	if _, err := FitFeaturePipeline(table, []string{"x"}, "mode", false); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("expected ErrInvalidOptions, got %v", err)
	}
}

func TestFitLinear(t *testing.T) {
	X := [][]float64{{-1}, {0}, {1}, {2}}
	y := []float64{-1, 1, 3, 5}

	m, err := FitLinear(X, y, 2000, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(m.Weights[0]-2) > 1e-3 || math.Abs(m.Bias-1) > 1e-3 {
		t.Errorf("expected y = 2x + 1, got w=%v b=%v", m.Weights[0], m.Bias)
	}

	if _, err := FitLinear(nil, nil, 10, 0.1); !errors.Is(err, ErrEmptyDataset) {
		t.Errorf("expected ErrEmptyDataset, got %v", err)
	}
}

func TestFitLinear_CollinearColumns(t *testing.T) {
	const (
		rows = 50
		cols = 12
	)

	X := make([][]float64, rows)
	y := make([]float64, rows)
	for i := range X {
		x := -1 + 2*float64(i)/float64(rows-1)
		X[i] = make([]float64, cols)
		for j := range X[i] {
			X[i][j] = x
		}
		y[i] = 3*x + 1
	}

	m, err := FitLinear(X, y, 1000, 0.1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rmse(y, m.Predict(X)); got > 1e-6 {
		t.Errorf("expected near-zero train rmse on identical columns, got %v", got)
	}
}

func TestFitLinear_Diverged(t *testing.T) {
	X := [][]float64{{-1}, {0}, {1}, {2}}
	y := []float64{-1, 1, 3, 5}

	if _, err := FitLinear(X, y, 1000, 1e6); !errors.Is(err, ErrModelDiverged) {
		t.Errorf("expected ErrModelDiverged, got %v", err)
	}
}
