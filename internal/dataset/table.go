// Package dataset — табличные данные pipeline поверх CSV.
//
// Table хранит значения как строки; числовые колонки разбираются
// по требованию (Floats). Для orchestrator важны только размеры (Shape).
package dataset

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
)

// Ошибки dataset.
var (
	// ErrColumnNotFound — колонка отсутствует в таблице.
	ErrColumnNotFound = errors.New("column not found")

	// ErrRaggedRow — длина строки не совпадает с числом колонок.
	ErrRaggedRow = errors.New("row length does not match columns")
)

// Table — таблица со строковыми значениями.
type Table struct {
	Columns []string
	Rows    [][]string
}

// New создаёт таблицу и проверяет, что все строки одной длины.
func New(columns []string, rows [][]string) (*Table, error) {
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrRaggedRow, i, len(row), len(columns))
		}
	}
	return &Table{Columns: columns, Rows: rows}, nil
}

// Shape возвращает (число строк, число колонок).
func (t *Table) Shape() (rows, cols int) {
	return len(t.Rows), len(t.Columns)
}

// ColumnIndex возвращает индекс колонки или -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn проверяет наличие колонки.
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// Column возвращает значения колонки.
func (t *Table) Column(name string) ([]string, error) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
	}
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// Select возвращает новую таблицу только с указанными колонками.
func (t *Table) Select(columns ...string) (*Table, error) {
	idx := make([]int, len(columns))
	for i, c := range columns {
		idx[i] = t.ColumnIndex(c)
		if idx[i] < 0 {
			return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, c)
		}
	}

	rows := make([][]string, len(t.Rows))
	for r, row := range t.Rows {
		out := make([]string, len(idx))
		for i, j := range idx {
			out[i] = row[j]
		}
		rows[r] = out
	}
	return &Table{Columns: append([]string(nil), columns...), Rows: rows}, nil
}

// Drop возвращает новую таблицу без указанных колонок.
func (t *Table) Drop(columns ...string) (*Table, error) {
	skip := make(map[string]bool, len(columns))
	for _, c := range columns {
		if !t.HasColumn(c) {
			return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, c)
		}
		skip[c] = true
	}

	keep := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if !skip[c] {
			keep = append(keep, c)
		}
	}
	return t.Select(keep...)
}

// Filter возвращает новую таблицу со строками, для которых keep вернул true.
func (t *Table) Filter(keep func(row []string) bool) *Table {
	out := &Table{Columns: t.Columns}
	for _, row := range t.Rows {
		if keep(row) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// DropDuplicates удаляет полностью совпадающие строки, сохраняя первую.
func (t *Table) DropDuplicates() *Table {
	seen := make(map[string]struct{}, len(t.Rows))
	return t.Filter(func(row []string) bool {
		key := strings.Join(row, "\x1f")
		if _, ok := seen[key]; ok {
			return false
		}
		seen[key] = struct{}{}
		return true
	})
}

// LeftJoin присоединяет колонки right по ключу key.
//
// Для каждого ключа берётся первая строка right. Колонки right, имена
// которых уже есть в t, пропускаются. Строки без пары получают пустые значения.
func (t *Table) LeftJoin(right *Table, key string) (*Table, error) {
	li := t.ColumnIndex(key)
	if li < 0 {
		return nil, fmt.Errorf("%w: %s (left)", ErrColumnNotFound, key)
	}
	ri := right.ColumnIndex(key)
	if ri < 0 {
		return nil, fmt.Errorf("%w: %s (right)", ErrColumnNotFound, key)
	}

	var extra []int
	columns := append([]string(nil), t.Columns...)
	for j, c := range right.Columns {
		if j == ri || t.HasColumn(c) {
			continue
		}
		extra = append(extra, j)
		columns = append(columns, c)
	}

	index := make(map[string][]string, len(right.Rows))
	for _, row := range right.Rows {
		if _, ok := index[row[ri]]; !ok {
			index[row[ri]] = row
		}
	}

	rows := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		out := make([]string, 0, len(columns))
		out = append(out, row...)
		match := index[row[li]]
		for _, j := range extra {
			if match != nil {
				out = append(out, match[j])
			} else {
				out = append(out, "")
			}
		}
		rows[i] = out
	}

	return &Table{Columns: columns, Rows: rows}, nil
}

// Floats разбирает колонку как числа. Возвращает ошибку на первом нечисловом значении.
func (t *Table) Floats(name string) ([]float64, error) {
	values, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(values))
	for i, v := range values {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("column %s row %d: %w", name, i, err)
		}
		out[i] = f
	}
	return out, nil
}

// IsNumeric проверяет, что все непустые значения колонки — числа
// и есть хотя бы одно значение.
func (t *Table) IsNumeric(name string) bool {
	values, err := t.Column(name)
	if err != nil {
		return false
	}
	seen := false
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return false
		}
		seen = true
	}
	return seen
}

// Shuffle возвращает таблицу с переставленными строками.
// Одинаковый seed даёт одинаковый порядок.
func (t *Table) Shuffle(seed int64) *Table {
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(len(t.Rows))
	rows := make([][]string, len(t.Rows))
	for i, j := range perm {
		rows[i] = t.Rows[j]
	}
	return &Table{Columns: t.Columns, Rows: rows}
}

// Split делит строки на train и test.
//
// Размер test-набора округляется вверх (ceil(n*testSize)), в train
// остаётся хотя бы одна строка.
func (t *Table) Split(testSize float64) (train, test *Table) {
	n := len(t.Rows)
	// Поправка на погрешность: 10*0.3 = 3.0000000000000004
	nTest := int(math.Ceil(float64(n)*testSize - 1e-9))
	if nTest >= n {
		nTest = n - 1
	}
	nTest = max(nTest, 0)
	nTrain := n - nTest
	train = &Table{Columns: t.Columns, Rows: t.Rows[:nTrain]}
	test = &Table{Columns: t.Columns, Rows: t.Rows[nTrain:]}
	return train, test
}
