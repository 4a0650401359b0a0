package file_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tripdata/tdk"
	"github.com/tripdata/tdk/file"
	"github.com/tripdata/tdk/test"
)

func TestTripNames(t *testing.T) {
	trips := file.Months("yellow", 2022, []int{1, 2})
	test.MustBe(t, 2, len(trips))
	test.MustBe(t, "yellow_tripdata_2022-01.parquet", trips[0].Name())
	test.MustBe(t, "data/yellow/yellow_tripdata_2022-02.parquet", trips[1].ObjectKey())
	test.MustBe(t, filepath.Join("work", "data", "yellow", "yellow_tripdata_2022-02.parquet"), trips[1].LocalPath("work"))
	test.MustBe(t, "https://d37ci6vzurychx.cloudfront.net/trip-data/yellow_tripdata_2022-01.parquet", trips[0].URL(""))
	test.MustBe(t, "http://127.0.0.1:8080/x/yellow_tripdata_2022-01.parquet", trips[0].URL("http://127.0.0.1:8080/x/"))
}

func TestTripValidate(t *testing.T) {
	test.ErrNil(t, file.Trip{Color: "green", Year: 2020, Month: 12}.Validate(), "valid trip")
	for _, tr := range []file.Trip{
		{Color: "", Year: 2022, Month: 1},
		{Color: "../etc", Year: 2022, Month: 1},
		{Color: "yellow", Year: 2022, Month: 13},
		{Color: "yellow", Year: 1999, Month: 1},
	} {
		if err := tr.Validate(); tdk.ExitCode(err) != tdk.ExitConfiguration {
			t.Fatalf("%v: expected configuration error, got %v", tr, err)
		}
	}
}

func TestWriteRead(t *testing.T) {
	dir := t.TempDir()
	tr := file.Trip{Color: "yellow", Year: 2022, Month: 1}
	ds := test.Trips(t, 12)
	test.ErrNil(t, file.Write(tr.LocalPath(dir), ds), "Write")
	got, err := file.Read(tr.LocalPath(dir))
	test.ErrNil(t, err, "Read")
	test.MustBe(t, ds.Names(), got.Names())

	csvPath := filepath.Join(dir, "x.csv")
	test.ErrNil(t, os.WriteFile(csvPath, []byte("a,b\n1,x\n"), 0600), "WriteFile")
	got, err = file.Read(csvPath)
	test.ErrNil(t, err, "Read csv")
	test.MustBe(t, 1, got.Len())

	if _, err := file.Read(filepath.Join(dir, "x.json")); err == nil {
		t.Fatal("expected error for unknown extension")
	}
}
