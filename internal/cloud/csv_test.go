package cloud

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ridgeline-data/demgrid/internal/geodesy"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func mustFormat(t *testing.T, s string) *Format {
	t.Helper()
	f, err := ParseFormat(s)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func drain(t *testing.T, s Source) []Point {
	t.Helper()
	var pts []Point
	for s.Next() {
		pts = append(pts, s.Point())
	}
	if err := s.Err(); err != nil {
		t.Fatalf("source error: %v", err)
	}
	return pts
}

func TestCSVSourceBasic(t *testing.T) {
	path := writeTemp(t, "pts.csv", "0 0 0\n1 0 0\n0 1 5\n")
	src, err := OpenCSV(path, mustFormat(t, "1:x 2:y 3:z"), geodesy.NewGeographic(geodesy.WGS84))
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	if src.CountEstimate() != 3 {
		t.Errorf("CountEstimate = %d want 3", src.CountEstimate())
	}
	if src.Kind() != CoordECEF {
		t.Errorf("Kind = %v want CoordECEF", src.Kind())
	}

	pts := drain(t, src)
	if len(pts) != 3 {
		t.Fatalf("got %d points, want 3", len(pts))
	}
	if pts[2] != (Point{X: 0, Y: 1, Z: 5}) {
		t.Errorf("pts[2] = %+v", pts[2])
	}
}

func TestCSVSourceHeaderRetry(t *testing.T) {
	path := writeTemp(t, "pts.csv", "easting northing height\n1 2 3\n4 5 6\n")
	f := mustFormat(t, "utm:10N 1:easting 2:northing 3:height_above_datum")
	src, err := OpenCSV(path, f, f.Ref(geodesy.WGS84))
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	pts := drain(t, src)
	if len(pts) != 2 {
		t.Fatalf("got %d points, want 2", len(pts))
	}
	if pts[0] != (Point{X: 1, Y: 2, Z: 3}) {
		t.Errorf("pts[0] = %+v", pts[0])
	}
}

func TestCSVSourceMidFileParseFailureIsFatal(t *testing.T) {
	path := writeTemp(t, "pts.csv", "1 2 3\nnot a point\n4 5 6\n")
	src, err := OpenCSV(path, mustFormat(t, "1:x 2:y 3:z"), geodesy.NewGeographic(geodesy.WGS84))
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	if !src.Next() {
		t.Fatal("first point should parse")
	}
	if src.Next() {
		t.Fatal("second line must abort the source")
	}
	if src.Err() == nil {
		t.Fatal("expected a fatal parse error")
	}
}

func TestCSVSourceSkipsCommentsAndBlanks(t *testing.T) {
	path := writeTemp(t, "pts.csv", "# comment\n\n1 2 3\n\n# more\n4 5 6\n")
	src, err := OpenCSV(path, mustFormat(t, "1:x 2:y 3:z"), geodesy.NewGeographic(geodesy.WGS84))
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	if src.CountEstimate() != 2 {
		t.Errorf("CountEstimate = %d want 2", src.CountEstimate())
	}
	if pts := drain(t, src); len(pts) != 2 {
		t.Errorf("got %d points, want 2", len(pts))
	}
}

func TestCSVSourceMissingFile(t *testing.T) {
	_, err := OpenCSV(filepath.Join(t.TempDir(), "absent.csv"),
		mustFormat(t, "1:x 2:y 3:z"), geodesy.NewGeographic(geodesy.WGS84))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestOpenByExtension(t *testing.T) {
	if !IsLAS("scan.LAS") || IsLAS("scan.csv") {
		t.Error("IsLAS misclassifies")
	}
	if !IsText("a.csv") || !IsText("a.TXT") || !IsText("a.xyz") || IsText("a.las") {
		t.Error("IsText misclassifies")
	}

	if _, err := Open("points.csv", nil, nil); err == nil {
		t.Error("text input without a format must fail")
	}
	if _, err := Open("points.bin", nil, nil); err == nil {
		t.Error("unknown extension must fail")
	}
}
