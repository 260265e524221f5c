package stages

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/shaiso/salesprice/internal/config"
	"github.com/shaiso/salesprice/internal/dataset"
)

// Значения, которые считаются пропусками.
var missingTokens = map[string]bool{
	"":     true,
	"na":   true,
	"nan":  true,
	"null": true,
	"none": true,
	"n/a":  true,
}

// Ключи объединения таблиц.
const (
	orderKey   = "order_id"
	productKey = "sku_id"
)

// CleanProductTable очищает таблицу товаров.
func (s *Stages) CleanProductTable(ctx context.Context, cfg *config.Config, opts config.Options) (*dataset.Table, error) {
	return s.cleanTable(ctx, cfg, config.TableProduct, opts)
}

// CleanOrderTable очищает таблицу заказов.
func (s *Stages) CleanOrderTable(ctx context.Context, cfg *config.Config, opts config.Options) (*dataset.Table, error) {
	return s.cleanTable(ctx, cfg, config.TableOrders, opts)
}

// CleanSalesTable очищает таблицу продаж.
func (s *Stages) CleanSalesTable(ctx context.Context, cfg *config.Config, opts config.Options) (*dataset.Table, error) {
	return s.cleanTable(ctx, cfg, config.TableSales, opts)
}

// cleanTable выполняет общую очистку одной таблицы.
//
// Параметры:
//   - drop_duplicates (bool, default true)
func (s *Stages) cleanTable(ctx context.Context, cfg *config.Config, table string, opts config.Options) (*dataset.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rawPath, err := cfg.RawTablePath(table)
	if err != nil {
		return nil, err
	}
	cleanedPath, err := cfg.CleanedTablePath(table)
	if err != nil {
		return nil, err
	}

	raw, err := dataset.ReadCSV(rawPath)
	if err != nil {
		return nil, fmt.Errorf("load %s table: %w", table, err)
	}

	columns := make([]string, len(raw.Columns))
	for i, c := range raw.Columns {
		columns[i] = snakeCase(c)
	}

	cleaned := &dataset.Table{Columns: columns}
	for _, row := range raw.Rows {
		out := make([]string, len(row))
		empty := true
		for i, v := range row {
			v = strings.TrimSpace(v)
			if missingTokens[strings.ToLower(v)] {
				v = ""
			}
			if v != "" {
				empty = false
			}
			out[i] = v
		}
		if !empty {
			cleaned.Rows = append(cleaned.Rows, out)
		}
	}

	before := len(cleaned.Rows)
	if opts.Bool("drop_duplicates", true) {
		cleaned = cleaned.DropDuplicates()
	}

	if err := dataset.WriteCSV(cleanedPath, cleaned); err != nil {
		return nil, fmt.Errorf("save %s table: %w", table, err)
	}

	rows, cols := cleaned.Shape()
	s.logger.Info("table cleaned",
		"table", table,
		"rows", rows,
		"columns", cols,
		"raw_rows", len(raw.Rows),
		"duplicates_dropped", before-rows,
	)

	return cleaned, nil
}

// CreateTrainingDatasets строит train/test наборы из очищенных таблиц.
//
// Параметры:
//   - test_size (float, default 0.2) — доля test-набора
//   - target (string, default "unit_price") — целевая колонка
func (s *Stages) CreateTrainingDatasets(ctx context.Context, cfg *config.Config, opts config.Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	testSize := opts.Float("test_size", 0.2)
	if testSize <= 0 || testSize >= 1 {
		return fmt.Errorf("%w: test_size must be in (0, 1), got %v", ErrInvalidOptions, testSize)
	}
	target := opts.String("target", "unit_price")

	salesPath, err := cfg.CleanedTablePath(config.TableSales)
	if err != nil {
		return err
	}
	sales, err := dataset.ReadCSV(salesPath)
	if err != nil {
		return fmt.Errorf("load cleaned sales: %w", err)
	}

	sales, err = s.joinIfPresent(cfg, sales, config.TableOrders, orderKey)
	if err != nil {
		return err
	}
	sales, err = s.joinIfPresent(cfg, sales, config.TableProduct, productKey)
	if err != nil {
		return err
	}

	ti := sales.ColumnIndex(target)
	if ti < 0 {
		return fmt.Errorf("%w: %s", ErrTargetNotFound, target)
	}

	labelled := sales.Filter(func(row []string) bool {
		_, err := strconv.ParseFloat(row[ti], 64)
		return err == nil
	})
	if len(labelled.Rows) == 0 {
		return fmt.Errorf("%w: no rows with numeric %s", ErrEmptyDataset, target)
	}

	train, test := labelled.Shuffle(cfg.Seed).Split(testSize)

	outputs := []struct {
		table *dataset.Table
		path  string
	}{
		{train, TrainFeaturesPath(cfg)},
		{test, TestFeaturesPath(cfg)},
	}
	targets := []string{TrainTargetPath(cfg), TestTargetPath(cfg)}

	for i, out := range outputs {
		features, err := out.table.Drop(target)
		if err != nil {
			return err
		}
		labels, err := out.table.Select(target)
		if err != nil {
			return err
		}
		if err := dataset.WriteCSV(out.path, features); err != nil {
			return fmt.Errorf("save features: %w", err)
		}
		if err := dataset.WriteCSV(targets[i], labels); err != nil {
			return fmt.Errorf("save target: %w", err)
		}
	}

	s.logger.Info("training datasets created",
		"target", target,
		"train_rows", len(train.Rows),
		"test_rows", len(test.Rows),
		"columns", len(labelled.Columns)-1,
	)
	return nil
}

// joinIfPresent присоединяет очищенную таблицу по ключу, если ключ есть в обеих.
func (s *Stages) joinIfPresent(cfg *config.Config, left *dataset.Table, table, key string) (*dataset.Table, error) {
	if !left.HasColumn(key) {
		return left, nil
	}

	path, err := cfg.CleanedTablePath(table)
	if err != nil {
		return nil, err
	}
	right, err := dataset.ReadCSV(path)
	if err != nil {
		return nil, fmt.Errorf("load cleaned %s: %w", table, err)
	}
	if !right.HasColumn(key) {
		s.logger.Warn("join key missing, skipping join", "table", table, "key", key)
		return left, nil
	}

	return left.LeftJoin(right, key)
}

// snakeCase приводит имя колонки к snake_case: "Unit Price" → "unit_price".
func snakeCase(s string) string {
	var b strings.Builder
	prevUnderscore := true
	prevLower := false

	for _, r := range strings.TrimSpace(s) {
		switch {
		case unicode.IsUpper(r):
			if prevLower && !prevUnderscore {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			prevUnderscore = false
			prevLower = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			prevUnderscore = false
			prevLower = true
		default:
			if !prevUnderscore {
				b.WriteByte('_')
				prevUnderscore = true
			}
			prevLower = false
		}
	}

	return strings.TrimRight(b.String(), "_")
}
