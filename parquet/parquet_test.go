package parquet_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tripdata/tdk"
	"github.com/tripdata/tdk/parquet"
	"github.com/tripdata/tdk/test"
)

func TestWriteReadFile(t *testing.T) {
	ds := test.Trips(t, 25)
	path := filepath.Join(t.TempDir(), "data", "yellow", "yellow_tripdata_2022-01.parquet")
	test.ErrNil(t, parquet.NewWriter().WriteFile(path, ds), "WriteFile")
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temporary file left behind: %v", err)
	}

	got, err := parquet.ReadFile(path)
	test.ErrNil(t, err, "ReadFile")
	test.MustBe(t, ds.Names(), got.Names())
	test.MustBe(t, ds.Len(), got.Len())
	for i, c := range got.Columns {
		test.MustBe(t, ds.Columns[i].Kind, c.Kind, c.Name)
	}

	n, err := got.NullCount("passenger_count")
	test.ErrNil(t, err, "NullCount")
	test.MustBe(t, 9, n)

	pickup, ok := got.Column("tpep_pickup_datetime")
	if !ok {
		t.Fatalf("tpep_pickup_datetime missing from %v", got.Names())
	}
	exp := time.Date(2022, 1, 1, 0, 24, 0, 0, time.UTC)
	if !pickup.Values[24].(time.Time).Equal(exp) {
		t.Fatalf("pickup time %v != %v", pickup.Values[24], exp)
	}
	test.MustBe(t, ds.Row(7, nil)[3], got.Row(7, nil)[3])
}

func TestDatasetCodec(t *testing.T) {
	ds := test.Trips(t, 5)
	codec := parquet.DatasetCodec{TempDir: t.TempDir()}
	b, err := codec.Encode(ds)
	test.ErrNil(t, err, "Encode")
	got, err := codec.Decode(b)
	test.ErrNil(t, err, "Decode")
	test.MustBe(t, ds.Len(), got.Len())
	test.MustBe(t, ds.Names(), got.Names())
	col, ok := got.Column("store_and_fwd_flag")
	if !ok {
		t.Fatalf("store_and_fwd_flag missing from %v", got.Names())
	}
	test.MustBe(t, "N", col.Values[4])

	entries, err := os.ReadDir(codec.TempDir)
	test.ErrNil(t, err, "ReadDir")
	test.MustBe(t, 0, len(entries), "scratch files")
}

func TestSchema(t *testing.T) {
	ds, err := tdk.NewDataset(
		tdk.Column{Name: "a", Kind: tdk.Int32},
		tdk.Column{Name: "b", Kind: tdk.Timestamp},
	)
	test.ErrNil(t, err, "NewDataset")
	md, err := parquet.Schema(ds)
	test.ErrNil(t, err, "Schema")
	test.MustBe(t, []string{
		"name=a, type=INT32, repetitiontype=OPTIONAL",
		"name=b, type=INT64, convertedtype=TIMESTAMP_MICROS, repetitiontype=OPTIONAL",
	}, md)
}

func TestReadFileMissing(t *testing.T) {
	if _, err := parquet.ReadFile(filepath.Join(t.TempDir(), "nope.parquet")); err == nil {
		t.Fatal("expected error")
	}
}

func TestReadKeepsColumnNames(t *testing.T) {
	ds, err := tdk.NewDataset(
		tdk.Column{Name: "passenger_count", Kind: tdk.Float64, Values: []interface{}{1.0, nil, 2.0}},
		tdk.Column{Name: "PULocationID", Kind: tdk.Int64, Values: []interface{}{int64(142), int64(236), nil}},
		tdk.Column{Name: "airport_fee", Kind: tdk.Float64, Values: []interface{}{nil, nil, 1.25}},
	)
	test.ErrNil(t, err, "NewDataset")
	path := filepath.Join(t.TempDir(), "names.parquet")
	test.ErrNil(t, parquet.NewWriter().WriteFile(path, ds), "WriteFile")

	got, err := parquet.ReadFile(path)
	test.ErrNil(t, err, "ReadFile")
	test.MustBe(t, []string{"passenger_count", "PULocationID", "airport_fee"}, got.Names())

	imp, err := tdk.ParseImputation([]string{"passenger_count=0"})
	test.ErrNil(t, err, "ParseImputation")
	filled, reports, err := imp.Apply(got)
	test.ErrNil(t, err, "Apply")
	test.MustBe(t, 1, reports[0].Before)
	n, err := filled.NullCount("passenger_count")
	test.ErrNil(t, err, "NullCount")
	test.MustBe(t, 0, n)
}
