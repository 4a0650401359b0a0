// Package parquet reads and writes tdk Datasets as parquet files. Only flat
// schemas are supported, which is all the trip record files use.
package parquet

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/xitongsys/parquet-go-source/local"
	pq "github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/types"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/tripdata/tdk"
)

// ReadFile reads the parquet file at path into a Dataset.
func ReadFile(path string) (*tdk.Dataset, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer fr.Close()
	ds, err := Read(fr)
	return ds, errors.Wrapf(err, "reading %s", path)
}

// Read reads every row of pf into a Dataset. Values are converted to the Go
// types of tdk's column kinds: timestamps of any unit become time.Time in UTC.
func Read(pf source.ParquetFile) (*tdk.Dataset, error) {
	pr, err := reader.NewParquetColumnReader(pf, 4)
	if err != nil {
		return nil, errors.Wrap(err, "creating column reader")
	}
	defer pr.ReadStop()

	// the reader renames schema elements to Go identifiers, the names in
	// the file are kept as ExName.
	leaves := make([]*pq.SchemaElement, 0, len(pr.SchemaHandler.SchemaElements))
	names := make([]string, 0, cap(leaves))
	for i, el := range pr.SchemaHandler.SchemaElements {
		if i == 0 {
			continue // root
		}
		name := pr.SchemaHandler.GetExName(i)
		if el.GetNumChildren() > 0 {
			return nil, errors.Errorf("nested column %s is not supported", name)
		}
		leaves = append(leaves, el)
		names = append(names, name)
	}
	if len(leaves) != len(pr.SchemaHandler.ValueColumns) {
		return nil, errors.Errorf("schema has %d leaves but %d value columns", len(leaves), len(pr.SchemaHandler.ValueColumns))
	}

	n := pr.GetNumRows()
	cols := make([]tdk.Column, len(leaves))
	for i, el := range leaves {
		conv, kind, err := converter(el)
		if err != nil {
			return nil, errors.Wrapf(err, "column %s", names[i])
		}
		raw, _, _, err := pr.ReadColumnByIndex(int64(i), n)
		if err != nil {
			return nil, errors.Wrapf(err, "reading column %s", names[i])
		}
		vals := make([]interface{}, len(raw))
		for j, v := range raw {
			if v != nil {
				vals[j] = conv(v)
			}
		}
		cols[i] = tdk.Column{Name: names[i], Kind: kind, Values: vals}
	}
	return tdk.NewDataset(cols...)
}

func identity(v interface{}) interface{} { return v }

// converter returns the function mapping raw values of el's physical type to
// the Go type of the returned kind.
func converter(el *pq.SchemaElement) (func(interface{}) interface{}, tdk.Kind, error) {
	switch el.GetType() {
	case pq.Type_BOOLEAN:
		return identity, tdk.Bool, nil
	case pq.Type_INT32:
		return identity, tdk.Int32, nil
	case pq.Type_INT64:
		if unit, ok := timestampUnit(el); ok {
			return func(v interface{}) interface{} {
				return fromUnits(v.(int64), unit)
			}, tdk.Timestamp, nil
		}
		return identity, tdk.Int64, nil
	case pq.Type_INT96:
		return func(v interface{}) interface{} {
			return types.INT96ToTime(v.(string)).UTC()
		}, tdk.Timestamp, nil
	case pq.Type_FLOAT:
		return identity, tdk.Float32, nil
	case pq.Type_DOUBLE:
		return identity, tdk.Float64, nil
	case pq.Type_BYTE_ARRAY, pq.Type_FIXED_LEN_BYTE_ARRAY:
		return identity, tdk.String, nil
	}
	return nil, 0, errors.Errorf("unsupported type %v", el.GetType())
}

func timestampUnit(el *pq.SchemaElement) (time.Duration, bool) {
	if lt := el.GetLogicalType(); lt != nil && lt.IsSetTIMESTAMP() {
		u := lt.GetTIMESTAMP().GetUnit()
		switch {
		case u.IsSetMILLIS():
			return time.Millisecond, true
		case u.IsSetNANOS():
			return time.Nanosecond, true
		}
		return time.Microsecond, true
	}
	if el.IsSetConvertedType() {
		switch el.GetConvertedType() {
		case pq.ConvertedType_TIMESTAMP_MILLIS:
			return time.Millisecond, true
		case pq.ConvertedType_TIMESTAMP_MICROS:
			return time.Microsecond, true
		}
	}
	return 0, false
}

func fromUnits(v int64, unit time.Duration) time.Time {
	switch unit {
	case time.Millisecond:
		return time.UnixMilli(v).UTC()
	case time.Microsecond:
		return time.UnixMicro(v).UTC()
	}
	return time.Unix(0, v).UTC()
}

// Writer writes Datasets as parquet files.
type Writer struct {
	Compression pq.CompressionCodec
	// RowGroupSize is the target size of a row group in bytes.
	RowGroupSize int64
	Parallel     int64
}

// NewWriter returns a Writer using gzip compression.
func NewWriter() *Writer {
	return &Writer{
		Compression:  pq.CompressionCodec_GZIP,
		RowGroupSize: 128 * 1024 * 1024,
		Parallel:     4,
	}
}

// WriteFile writes d to path, creating parent directories as needed. The file
// is written under a temporary name and renamed into place, so a reader
// never sees a partial file.
func (w *Writer) WriteFile(path string, d *tdk.Dataset) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "creating directory")
	}
	tmp := path + ".tmp"
	fw, err := local.NewLocalFileWriter(tmp)
	if err != nil {
		return errors.Wrapf(err, "creating %s", tmp)
	}
	if err := w.Write(fw, d); err != nil {
		fw.Close()
		os.Remove(tmp)
		return err
	}
	if err := fw.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "closing file")
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "renaming file")
	}
	return nil
}

// Write writes d to pf. pf is not closed.
func (w *Writer) Write(pf source.ParquetFile, d *tdk.Dataset) error {
	md, err := Schema(d)
	if err != nil {
		return err
	}
	pw, err := writer.NewCSVWriter(md, pf, w.Parallel)
	if err != nil {
		return errors.Wrap(err, "creating parquet writer")
	}
	pw.CompressionType = w.Compression
	if w.RowGroupSize > 0 {
		pw.RowGroupSize = w.RowGroupSize
	}

	// the writer buffers rows until a row group is flushed, so each row
	// needs its own slice.
	for i, n := 0, d.Len(); i < n; i++ {
		rec := d.Row(i, nil)
		for j, c := range d.Columns {
			if t, ok := rec[j].(time.Time); ok && c.Kind == tdk.Timestamp {
				rec[j] = t.UnixMicro()
			}
		}
		if err := pw.Write(rec); err != nil {
			return errors.Wrapf(err, "writing row %d", i)
		}
	}
	return errors.Wrap(pw.WriteStop(), "finishing parquet file")
}

// Schema returns the parquet-go CSV writer metadata describing d. Every
// column is optional so that nulls survive a round trip.
func Schema(d *tdk.Dataset) ([]string, error) {
	md := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		var typ string
		switch c.Kind {
		case tdk.Int64:
			typ = "type=INT64"
		case tdk.Int32:
			typ = "type=INT32"
		case tdk.Float64:
			typ = "type=DOUBLE"
		case tdk.Float32:
			typ = "type=FLOAT"
		case tdk.Bool:
			typ = "type=BOOLEAN"
		case tdk.String:
			typ = "type=BYTE_ARRAY, convertedtype=UTF8"
		case tdk.Timestamp:
			typ = "type=INT64, convertedtype=TIMESTAMP_MICROS"
		default:
			return nil, errors.Errorf("column %s: unsupported kind %v", c.Name, c.Kind)
		}
		md[i] = fmt.Sprintf("name=%s, %s, repetitiontype=OPTIONAL", c.Name, typ)
	}
	return md, nil
}
