package dataset

import (
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func mustTable(t *testing.T, columns []string, rows ...[]string) *Table {
	t.Helper()
	tbl, err := New(columns, rows)
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	return tbl
}

func TestNew_RaggedRow(t *testing.T) {
	_, err := New([]string{"a", "b"}, [][]string{{"1"}})
	if !errors.Is(err, ErrRaggedRow) {
		t.Errorf("expected ErrRaggedRow, got %v", err)
	}
}

func TestTable_Shape(t *testing.T) {
	tbl := mustTable(t, []string{"a", "b", "c"}, []string{"1", "2", "3"}, []string{"4", "5", "6"})

	rows, cols := tbl.Shape()
	if rows != 2 || cols != 3 {
		t.Errorf("expected 2x3, got %dx%d", rows, cols)
	}
}

func TestTable_SelectDrop(t *testing.T) {
	tbl := mustTable(t, []string{"a", "b", "c"}, []string{"1", "2", "3"})

	sel, err := tbl.Select("c", "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(sel.Rows[0], []string{"3", "1"}) {
		t.Errorf("unexpected select row: %v", sel.Rows[0])
	}

	dropped, err := tbl.Drop("b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(dropped.Columns, []string{"a", "c"}) {
		t.Errorf("unexpected columns after drop: %v", dropped.Columns)
	}

	if _, err := tbl.Select("zzz"); !errors.Is(err, ErrColumnNotFound) {
		t.Errorf("expected ErrColumnNotFound, got %v", err)
	}
}

func TestTable_DropDuplicates(t *testing.T) {
	tbl := mustTable(t, []string{"a", "b"},
		[]string{"1", "x"},
		[]string{"1", "x"},
		[]string{"2", "x"},
	)

	out := tbl.DropDuplicates()
	if rows, _ := out.Shape(); rows != 2 {
		t.Errorf("expected 2 rows, got %d", rows)
	}
}

func TestTable_LeftJoin(t *testing.T) {
	sales := mustTable(t, []string{"order_id", "sku_id", "unit_price"},
		[]string{"o1", "s1", "10"},
		[]string{"o2", "s9", "20"},
	)
	products := mustTable(t, []string{"sku_id", "category", "unit_price"},
		[]string{"s1", "toys", "999"},
	)

	joined, err := sales.LeftJoin(products, "sku_id")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// unit_price из right пропускается, category добавляется
	if !reflect.DeepEqual(joined.Columns, []string{"order_id", "sku_id", "unit_price", "category"}) {
		t.Errorf("unexpected columns: %v", joined.Columns)
	}
	if joined.Rows[0][3] != "toys" {
		t.Errorf("expected toys, got %q", joined.Rows[0][3])
	}
	if joined.Rows[1][3] != "" {
		t.Errorf("expected empty for unmatched row, got %q", joined.Rows[1][3])
	}
}

func TestTable_NumericHelpers(t *testing.T) {
	tbl := mustTable(t, []string{"n", "s"},
		[]string{"1.5", "a"},
		[]string{"", "b"},
		[]string{"3", "c"},
	)

	if !tbl.IsNumeric("n") {
		t.Error("n should be numeric")
	}
	if tbl.IsNumeric("s") {
		t.Error("s should not be numeric")
	}
	if _, err := tbl.Floats("n"); err == nil {
		t.Error("Floats should fail on empty value")
	}
}

func TestTable_ShuffleSplit(t *testing.T) {
	var rows [][]string
	for i := 0; i < 10; i++ {
		rows = append(rows, []string{strings.Repeat("x", i+1)})
	}
	tbl := mustTable(t, []string{"v"}, rows...)

	a := tbl.Shuffle(42)
	b := tbl.Shuffle(42)
	if !reflect.DeepEqual(a.Rows, b.Rows) {
		t.Error("same seed should produce same order")
	}

	train, test := a.Split(0.2)
	if len(train.Rows) != 8 || len(test.Rows) != 2 {
		t.Errorf("expected 8/2 split, got %d/%d", len(train.Rows), len(test.Rows))
	}

	tests := []struct {
		rows      int
		testSize  float64
		wantTrain int
		wantTest  int
	}{
		{4, 0.2, 3, 1},
		{10, 0.3, 7, 3},
		{10, 0.25, 7, 3},
		{2, 0.9, 1, 1},
		{1, 0.2, 1, 0},
		{0, 0.2, 0, 0},
	}
	for _, tt := range tests {
		small := mustTable(t, []string{"v"}, rows[:tt.rows]...)
		train, test := small.Split(tt.testSize)
		if len(train.Rows) != tt.wantTrain || len(test.Rows) != tt.wantTest {
			t.Errorf("Split(%v) of %d rows: expected %d/%d, got %d/%d",
				tt.testSize, tt.rows, tt.wantTrain, tt.wantTest, len(train.Rows), len(test.Rows))
		}
	}
}

func TestCSV_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "table.csv")
	tbl := mustTable(t, []string{"a", "b"}, []string{"1", "hello, world"})

	if err := WriteCSV(path, tbl); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(got, tbl) {
		t.Errorf("round trip mismatch: %+v vs %+v", got, tbl)
	}
}

func TestDecode_Empty(t *testing.T) {
	if _, err := Decode(strings.NewReader("")); !errors.Is(err, ErrEmptyFile) {
		t.Errorf("expected ErrEmptyFile, got %v", err)
	}
}
