package image

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mkImage(t *testing.T, rows [][]float64) *Image {
	t.Helper()
	img, err := FromRows(rows)
	if err != nil {
		t.Fatal(err)
	}
	return img
}

func TestAdd(t *testing.T) {
	a := mkImage(t, [][]float64{{1, 2}, {3, 4}})
	b := mkImage(t, [][]float64{{10, 20}, {30, 40}})
	got, err := Add(a, b)
	if err != nil {
		t.Fatal(err)
	}
	want := [][]float64{{11, 22}, {33, 44}}
	if diff := cmp.Diff(want, got.Rows()); diff != "" {
		t.Errorf("Add mismatch (-want +got):\n%s", diff)
	}
}

func TestBinopSizeMismatch(t *testing.T) {
	a := mkImage(t, [][]float64{{1, 2}})
	b := mkImage(t, [][]float64{{1}, {2}})
	if _, err := Add(a, b); err == nil {
		t.Error("expected a size mismatch error")
	}
}

func TestEmptyPlaceholderPropagates(t *testing.T) {
	a := mkImage(t, [][]float64{{1, 2}})
	got, err := Mul(a, Empty())
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsEmpty() {
		t.Error("result should stay a placeholder")
	}
	got, err = Crop(Empty(), 0, 0, 10, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsEmpty() {
		t.Error("crop of a placeholder should be a placeholder")
	}
}

func TestDivByZeroPixel(t *testing.T) {
	a := mkImage(t, [][]float64{{10, 10}})
	b := mkImage(t, [][]float64{{2, 0}})
	got, err := Div(a, b)
	if err != nil {
		t.Fatal(err)
	}
	want := [][]float64{{5, 0}}
	if diff := cmp.Diff(want, got.Rows()); diff != "" {
		t.Errorf("Div mismatch (-want +got):\n%s", diff)
	}
}

func TestScalarOps(t *testing.T) {
	a := mkImage(t, [][]float64{{2, 4}})
	if got := MulScalar(a, 3).Rows(); got[0][0] != 6 || got[0][1] != 12 {
		t.Errorf("MulScalar = %v", got)
	}
	if got := SubFromScalar(10, a).Rows(); got[0][0] != 8 || got[0][1] != 6 {
		t.Errorf("SubFromScalar = %v", got)
	}
	if got := DivIntoScalar(8, a).Rows(); got[0][0] != 4 || got[0][1] != 2 {
		t.Errorf("DivIntoScalar = %v", got)
	}
}

func TestFoldOps(t *testing.T) {
	a := mkImage(t, [][]float64{{1, 10}})
	b := mkImage(t, [][]float64{{3, 20}})
	c := mkImage(t, [][]float64{{5, 90}})

	avg, err := Average([]*Image{a, b, c})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([][]float64{{3, 40}}, avg.Rows()); diff != "" {
		t.Errorf("Average mismatch (-want +got):\n%s", diff)
	}

	lo, err := Min([]*Image{a, b, c})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([][]float64{{1, 10}}, lo.Rows()); diff != "" {
		t.Errorf("Min mismatch (-want +got):\n%s", diff)
	}

	hi, err := Max([]*Image{a, b, c})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([][]float64{{5, 90}}, hi.Rows()); diff != "" {
		t.Errorf("Max mismatch (-want +got):\n%s", diff)
	}

	med, err := Median([]*Image{a, b, c})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([][]float64{{3, 20}}, med.Rows()); diff != "" {
		t.Errorf("Median mismatch (-want +got):\n%s", diff)
	}
}

func TestMedianEvenCount(t *testing.T) {
	a := mkImage(t, [][]float64{{1}})
	b := mkImage(t, [][]float64{{3}})
	med, err := Median([]*Image{a, b})
	if err != nil {
		t.Fatal(err)
	}
	if got := med.Rows()[0][0]; got != 2 {
		t.Errorf("median = %v, want 2", got)
	}
}

func TestFoldIgnoresPlaceholders(t *testing.T) {
	a := mkImage(t, [][]float64{{4, 8}})
	got, err := Average([]*Image{Empty(), a, Empty()})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([][]float64{{4, 8}}, got.Rows()); diff != "" {
		t.Errorf("Average mismatch (-want +got):\n%s", diff)
	}

	got, err = Max([]*Image{Empty(), Empty()})
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsEmpty() {
		t.Error("all-placeholder fold should stay a placeholder")
	}
}

func TestInvert(t *testing.T) {
	a := mkImage(t, [][]float64{{0, MaxValue}})
	got := Invert(a).Rows()
	if got[0][0] != MaxValue || got[0][1] != 0 {
		t.Errorf("Invert = %v", got)
	}
}

func TestCrop(t *testing.T) {
	a := mkImage(t, [][]float64{
		{1, 2, 3},
		{4, 5, 6},
		{7, 8, 9},
	})
	got, err := Crop(a, 1, 1, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	want := [][]float64{{5, 6}, {8, 9}}
	if diff := cmp.Diff(want, got.Rows()); diff != "" {
		t.Errorf("Crop mismatch (-want +got):\n%s", diff)
	}

	if _, err := Crop(a, 2, 2, 2, 2); err == nil {
		t.Error("expected an out of bounds error")
	}
	if _, err := Crop(a, -1, 0, 2, 2); err == nil {
		t.Error("expected a negative offset error")
	}
}

func TestLinearStretch(t *testing.T) {
	a := mkImage(t, [][]float64{{0, 50, 100, 200}})
	got := LinearStretch(a, 0, 100).Rows()[0]
	if got[0] != 0 {
		t.Errorf("lo pixel = %v, want 0", got[0])
	}
	if got[1] != MaxValue/2 {
		t.Errorf("mid pixel = %v, want %v", got[1], MaxValue/2)
	}
	if got[2] != MaxValue {
		t.Errorf("hi pixel = %v, want full scale", got[2])
	}
	// Out of range values clip instead of overflowing.
	if got[3] != MaxValue {
		t.Errorf("clipped pixel = %v, want full scale", got[3])
	}
}

func TestClahe(t *testing.T) {
	a := New(8, 8)
	for i := range a.Data {
		a.Data[i] = float32(i) * 100
	}
	got, err := Clahe(a, 4, 16, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	if got.Width != 8 || got.Height != 8 {
		t.Errorf("size = %dx%d", got.Width, got.Height)
	}
	for _, v := range got.Data {
		if v < 0 || v > MaxValue {
			t.Fatalf("pixel %v out of range", v)
		}
	}

	if _, err := Clahe(a, 0, 16, 1.0); err == nil {
		t.Error("expected an error for zero tile size")
	}
}

func TestFromRowsValidation(t *testing.T) {
	img, err := FromRows(nil)
	if err != nil {
		t.Fatal(err)
	}
	if !img.IsEmpty() {
		t.Error("no rows should yield a placeholder")
	}
	if _, err := FromRows([][]float64{{1, 2}, {3}}); err == nil {
		t.Error("expected an error for ragged rows")
	}
}
