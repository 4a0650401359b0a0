// Package file names, reads and writes the local copies of trip record files.
package file

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/tripdata/tdk"
	"github.com/tripdata/tdk/csv"
	"github.com/tripdata/tdk/parquet"
)

// BaseURL is where the TLC publishes the monthly trip record files.
const BaseURL = "https://d37ci6vzurychx.cloudfront.net/trip-data/"

// Trip identifies one month of trip records for one taxi color.
type Trip struct {
	Color string
	Year  int
	Month int
}

// Months returns a Trip for each month of year.
func Months(color string, year int, months []int) []Trip {
	trips := make([]Trip, len(months))
	for i, m := range months {
		trips[i] = Trip{Color: color, Year: year, Month: m}
	}
	return trips
}

// Validate checks that the trip can name a file.
func (t Trip) Validate() error {
	if t.Color == "" || strings.ContainsAny(t.Color, `/\`) {
		return &tdk.ConfigurationError{Key: "color", Err: errors.Errorf("invalid color %q", t.Color)}
	}
	if t.Month < 1 || t.Month > 12 {
		return &tdk.ConfigurationError{Key: "months", Err: errors.Errorf("month %d out of range", t.Month)}
	}
	if t.Year < 2009 {
		return &tdk.ConfigurationError{Key: "year", Err: errors.Errorf("no trip records for %d", t.Year)}
	}
	return nil
}

// Name returns the file name, e.g. "yellow_tripdata_2022-01.parquet".
func (t Trip) Name() string {
	return fmt.Sprintf("%s_tripdata_%d-%02d.parquet", t.Color, t.Year, t.Month)
}

// String implements fmt.Stringer.
func (t Trip) String() string {
	return fmt.Sprintf("%s %d-%02d", t.Color, t.Year, t.Month)
}

// URL returns the download URL of the file under base, or BaseURL if base is
// empty.
func (t Trip) URL(base string) string {
	if base == "" {
		base = BaseURL
	}
	return strings.TrimSuffix(base, "/") + "/" + t.Name()
}

// ObjectKey is the key of the file in a bucket: "data/<color>/<name>". It
// mirrors the local path relative to the working directory.
func (t Trip) ObjectKey() string {
	return path.Join("data", t.Color, t.Name())
}

// LocalPath is where the file is kept under dir.
func (t Trip) LocalPath(dir string) string {
	return filepath.Join(dir, filepath.FromSlash(t.ObjectKey()))
}

// Read reads a local trip record file into a Dataset, choosing the decoder by
// extension: parquet, or CSV with optional gzip compression.
func Read(name string) (*tdk.Dataset, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".parquet"):
		return parquet.ReadFile(name)
	case strings.HasSuffix(lower, ".csv"), strings.HasSuffix(lower, ".csv.gz"):
		return csv.NewReader().ReadFile(name)
	}
	return nil, errors.Errorf("don't know how to read %s", filepath.Base(name))
}

// Write writes d to name as gzip compressed parquet, creating directories as
// needed.
func Write(name string, d *tdk.Dataset) error {
	return errors.Wrapf(parquet.NewWriter().WriteFile(name, d), "writing %s", name)
}
