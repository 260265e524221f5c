package stages

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shaiso/salesprice/internal/config"
	"github.com/shaiso/salesprice/internal/dataset"
)

// Методы замены выбросов.
const (
	OutlierMethodMean   = "mean"
	OutlierMethodMedian = "median"
)

// iqrFactor — множитель IQR для границ выбросов.
const iqrFactor = 1.5

// CuratedColumns — колонки, отобранные для обучения.
type CuratedColumns struct {
	Columns []string `json:"columns"`
}

// ColumnTransform — преобразование одной колонки.
type ColumnTransform struct {
	Name  string  `json:"name"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Fill  float64 `json:"fill"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
}

// FeaturePipeline — обученное преобразование признаков.
//
// Пропуски и выбросы заменяются на Fill (или строка удаляется при
// DropOutliers), затем значения стандартизуются.
type FeaturePipeline struct {
	Method       string            `json:"method"`
	DropOutliers bool              `json:"drop_outliers"`
	Columns      []ColumnTransform `json:"columns"`
}

// ColumnNames возвращает имена колонок pipeline.
func (fp *FeaturePipeline) ColumnNames() []string {
	names := make([]string, len(fp.Columns))
	for i, c := range fp.Columns {
		names[i] = c.Name
	}
	return names
}

// Transform преобразует таблицу в матрицу признаков.
//
// Если drop == true, строки с выбросами пропускаются. Возвращает матрицу и
// индексы исходных строк, попавших в неё.
func (fp *FeaturePipeline) Transform(t *dataset.Table, drop bool) ([][]float64, []int, error) {
	idx := make([]int, len(fp.Columns))
	for i, c := range fp.Columns {
		idx[i] = t.ColumnIndex(c.Name)
		if idx[i] < 0 {
			return nil, nil, fmt.Errorf("%w: column %s missing from input", ErrArtifactMismatch, c.Name)
		}
	}

	var (
		X    [][]float64
		kept []int
	)

rows:
	for r, row := range t.Rows {
		x := make([]float64, len(fp.Columns))
		for i, c := range fp.Columns {
			v, err := strconv.ParseFloat(row[idx[i]], 64)
			switch {
			case err != nil:
				v = c.Fill
			case v < c.Lower || v > c.Upper:
				if drop {
					continue rows
				}
				v = c.Fill
			}

			sd := c.Std
			if sd == 0 {
				sd = 1
			}
			x[i] = (v - c.Mean) / sd
		}
		X = append(X, x)
		kept = append(kept, r)
	}

	return X, kept, nil
}

// FitFeaturePipeline обучает преобразование на таблице.
func FitFeaturePipeline(t *dataset.Table, columns []string, method string, drop bool) (*FeaturePipeline, error) {
	if method != OutlierMethodMean && method != OutlierMethodMedian {
		return nil, fmt.Errorf("%w: unknown outlier method %q", ErrInvalidOptions, method)
	}

	fp := &FeaturePipeline{Method: method, DropOutliers: drop}

	for _, name := range columns {
		raw, err := t.Column(name)
		if err != nil {
			return nil, err
		}

		var values []float64
		for _, s := range raw {
			if v, err := strconv.ParseFloat(s, 64); err == nil {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("%w: column %s has no values", ErrEmptyDataset, name)
		}

		q1 := percentile(values, 25)
		q3 := percentile(values, 75)
		iqr := q3 - q1
		lower := q1 - iqrFactor*iqr
		upper := q3 + iqrFactor*iqr

		var inliers []float64
		for _, v := range values {
			if v >= lower && v <= upper {
				inliers = append(inliers, v)
			}
		}

		fill := mean(inliers)
		if method == OutlierMethodMedian {
			fill = median(inliers)
		}

		fp.Columns = append(fp.Columns, ColumnTransform{
			Name:  name,
			Lower: lower,
			Upper: upper,
			Fill:  fill,
			Mean:  mean(inliers),
			Std:   std(inliers),
		})
	}

	return fp, nil
}

// TransformFeatures отбирает числовые признаки и обучает feature pipeline.
//
// Параметры:
//   - outliers.method (string, "mean" | "median", default "mean")
//   - outliers.drop (bool, default false) — удалять строки с выбросами при обучении
func (s *Stages) TransformFeatures(ctx context.Context, cfg *config.Config, opts config.Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	outliers := opts.Sub("outliers")
	method := outliers.String("method", OutlierMethodMean)
	drop := outliers.Bool("drop", false)

	train, err := dataset.ReadCSV(TrainFeaturesPath(cfg))
	if err != nil {
		return fmt.Errorf("load train features: %w", err)
	}

	var curated []string
	for _, c := range train.Columns {
		if train.IsNumeric(c) {
			curated = append(curated, c)
		}
	}
	if len(curated) == 0 {
		return ErrNoNumericFeatures
	}

	fp, err := FitFeaturePipeline(train, curated, method, drop)
	if err != nil {
		return err
	}

	if err := writeJSON(CuratedColumnsPath(cfg), CuratedColumns{Columns: curated}); err != nil {
		return fmt.Errorf("save curated columns: %w", err)
	}
	if err := writeJSON(FeaturesPath(cfg), fp); err != nil {
		return fmt.Errorf("save feature pipeline: %w", err)
	}

	s.logger.Info("feature pipeline fitted",
		"curated_columns", len(curated),
		"dropped_columns", len(train.Columns)-len(curated),
		"outlier_method", method,
		"drop_outliers", drop,
	)
	return nil
}
