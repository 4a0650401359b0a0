package test

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/tripdata/tdk"
)

// MustBe uses reflect.DeepEqual to assert that thing1 and thing2 are equal, and
// fails otherwise.
func MustBe(t *testing.T, thing1, thing2 interface{}, context ...string) {
	t.Helper()
	var ctx string
	if len(context) == 0 {
		ctx = ""
	} else {
		ctx = context[0] + ": "
	}
	if !reflect.DeepEqual(thing1, thing2) {
		t.Fatalf("%v'%#v' != '%#v'", ctx, thing1, thing2)
	}
}

// ErrNil asserts that the err is nil and fails otherwise.
func ErrNil(t *testing.T, err error, ctx string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%v: %v", ctx, err)
	}
}

// Trips returns a small dataset shaped like the yellow taxi trip records, with
// n rows. Every third row has a null passenger_count.
func Trips(t *testing.T, n int) *tdk.Dataset {
	t.Helper()
	base := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	vendor := make([]interface{}, n)
	pickup := make([]interface{}, n)
	passengers := make([]interface{}, n)
	distance := make([]interface{}, n)
	flag := make([]interface{}, n)
	for i := 0; i < n; i++ {
		vendor[i] = int64(1 + i%2)
		pickup[i] = base.Add(time.Duration(i) * time.Minute)
		if i%3 != 0 {
			passengers[i] = float64(1 + i%4)
		}
		distance[i] = float64(i) / 10
		flag[i] = "N"
	}
	ds, err := tdk.NewDataset(
		tdk.Column{Name: "VendorID", Kind: tdk.Int64, Values: vendor},
		tdk.Column{Name: "tpep_pickup_datetime", Kind: tdk.Timestamp, Values: pickup},
		tdk.Column{Name: "passenger_count", Kind: tdk.Float64, Values: passengers},
		tdk.Column{Name: "trip_distance", Kind: tdk.Float64, Values: distance},
		tdk.Column{Name: "store_and_fwd_flag", Kind: tdk.String, Values: flag},
	)
	if err != nil {
		t.Fatalf("building trips dataset: %v", err)
	}
	return ds
}

// NoFiles fails if any regular file remains under dir, ignoring the paths in
// except.
func NoFiles(t *testing.T, dir string, except ...string) {
	t.Helper()
	keep := make(map[string]bool, len(except))
	for _, e := range except {
		keep[filepath.Clean(e)] = true
	}
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && !keep[filepath.Clean(path)] {
			t.Errorf("leftover file %s", path)
		}
		return nil
	})
	ErrNil(t, err, "walking "+dir)
}
