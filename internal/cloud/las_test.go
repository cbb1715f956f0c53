package cloud

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ridgeline-data/demgrid/internal/geodesy"
)

// buildLAS assembles a minimal point-format-0 LAS 1.2 byte stream.
func buildLAS(t *testing.T, wkt string, scale, offset [3]float64, pts [][3]float64, intensities []uint16) []byte {
	t.Helper()

	var vlr bytes.Buffer
	if wkt != "" {
		payload := append([]byte(wkt), 0)
		hdr := make([]byte, lasVLRHeaderSz)
		copy(hdr[2:18], lasProjectionUserID)
		binary.LittleEndian.PutUint16(hdr[18:20], lasWKTRecordID)
		binary.LittleEndian.PutUint16(hdr[20:22], uint16(len(payload)))
		vlr.Write(hdr)
		vlr.Write(payload)
	}

	header := make([]byte, lasFixedHeaderSz)
	copy(header[0:4], lasSignature)
	header[24] = 1 // version 1.2
	header[25] = 2
	binary.LittleEndian.PutUint16(header[94:96], lasFixedHeaderSz)
	binary.LittleEndian.PutUint32(header[96:100], uint32(lasFixedHeaderSz+vlr.Len()))
	if wkt != "" {
		binary.LittleEndian.PutUint32(header[100:104], 1)
	}
	header[104] = 0 // point format 0
	binary.LittleEndian.PutUint16(header[105:107], 20)
	binary.LittleEndian.PutUint32(header[107:111], uint32(len(pts)))
	for i, v := range scale {
		binary.LittleEndian.PutUint64(header[131+8*i:], math.Float64bits(v))
	}
	for i, v := range offset {
		binary.LittleEndian.PutUint64(header[155+8*i:], math.Float64bits(v))
	}

	var out bytes.Buffer
	out.Write(header)
	out.Write(vlr.Bytes())
	for i, p := range pts {
		rec := make([]byte, 20)
		for k := 0; k < 3; k++ {
			raw := int32(math.Round((p[k] - offset[k]) / scale[k]))
			binary.LittleEndian.PutUint32(rec[4*k:], uint32(raw))
		}
		if intensities != nil {
			binary.LittleEndian.PutUint16(rec[12:14], intensities[i])
		}
		out.Write(rec)
	}
	return out.Bytes()
}

func writeLAS(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scan.las")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLASSourceReadsPoints(t *testing.T) {
	pts := [][3]float64{
		{551000.25, 4180000.5, 120.75},
		{551001.00, 4180002.0, 121.00},
	}
	data := buildLAS(t, "", [3]float64{0.25, 0.25, 0.25}, [3]float64{550000, 4179000, 100},
		pts, []uint16{17, 42})

	src, err := OpenLAS(writeLAS(t, data))
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	if src.CountEstimate() != 2 {
		t.Errorf("CountEstimate = %d want 2", src.CountEstimate())
	}
	if src.Kind() != CoordPlane {
		t.Errorf("Kind = %v want CoordPlane", src.Kind())
	}
	if !src.Channels().Has(ChanIntensity) {
		t.Error("LAS sources must declare the intensity channel")
	}
	if _, ok := src.EmbeddedRef(); ok {
		t.Error("no WKT was written, embedded reference must be absent")
	}

	got := drain(t, src)
	if len(got) != 2 {
		t.Fatalf("got %d points", len(got))
	}
	for i := range pts {
		if math.Abs(got[i].X-pts[i][0]) > 1e-9 ||
			math.Abs(got[i].Y-pts[i][1]) > 1e-9 ||
			math.Abs(got[i].Z-pts[i][2]) > 1e-9 {
			t.Errorf("point %d = %+v want %v", i, got[i], pts[i])
		}
	}
	if got[0].Intensity != 17 || got[1].Intensity != 42 {
		t.Errorf("intensities = %v, %v", got[0].Intensity, got[1].Intensity)
	}
}

func TestLASSourceEmbeddedReference(t *testing.T) {
	wkt := `PROJCS["WGS 84 / UTM zone 12N",GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]]]]`
	data := buildLAS(t, wkt, [3]float64{0.01, 0.01, 0.01}, [3]float64{0, 0, 0},
		[][3]float64{{1, 2, 3}}, nil)

	src, err := OpenLAS(writeLAS(t, data))
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	ref, ok := src.EmbeddedRef()
	if !ok {
		t.Fatal("expected an embedded reference")
	}
	utm, isUTM := ref.Proj.(geodesy.UTM)
	if !isUTM || utm.Zone != 12 || !utm.North {
		t.Errorf("embedded projection = %v", ref.Proj.Describe())
	}
}

func TestLASSourceRejectsGarbage(t *testing.T) {
	if _, err := OpenLAS(writeLAS(t, []byte("not a las file at all, far too short"))); err == nil {
		t.Fatal("expected header error")
	}

	data := buildLAS(t, "", [3]float64{1, 1, 1}, [3]float64{0, 0, 0}, nil, nil)
	data[0] = 'X' // corrupt signature
	if _, err := OpenLAS(writeLAS(t, data)); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestLASSourceRejectsNewerVersion(t *testing.T) {
	pts := [][3]float64{{1, 2, 3}}
	data := buildLAS(t, "", [3]float64{1, 1, 1}, [3]float64{0, 0, 0}, pts, nil)
	// A 1.4 writer leaves the legacy count zeroed, which would otherwise
	// read as an empty file.
	data[25] = 4
	binary.LittleEndian.PutUint32(data[107:111], 0)
	if _, err := OpenLAS(writeLAS(t, data)); err == nil {
		t.Fatal("expected version error")
	}
}

func TestLASSourceTruncatedPoints(t *testing.T) {
	data := buildLAS(t, "", [3]float64{1, 1, 1}, [3]float64{0, 0, 0},
		[][3]float64{{1, 1, 1}, {2, 2, 2}}, nil)
	data = data[:len(data)-10] // cut the second record short

	src, err := OpenLAS(writeLAS(t, data))
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	if !src.Next() {
		t.Fatal("first record should read")
	}
	if src.Next() {
		t.Fatal("truncated record must stop the stream")
	}
	if src.Err() == nil {
		t.Fatal("expected a read error")
	}
}
