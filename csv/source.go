// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

// Package csv reads comma separated trip record files, optionally gzip
// compressed, into tdk Datasets.
package csv

import (
	"compress/gzip"
	"encoding/csv"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/tripdata/tdk"
)

// TimeLayout is the layout of timestamps in the trip record CSV files.
const TimeLayout = "2006-01-02 15:04:05"

// Reader decodes CSV data into a Dataset. The first line is the header. Empty
// fields are null. Column kinds are given with WithKinds or inferred from the
// data.
type Reader struct {
	kinds      map[string]tdk.Kind
	timeLayout string
	infer      bool
}

// Option is a functional option to pass to NewReader.
type Option func(*Reader)

// WithKinds returns an Option which fixes the kind of the named columns.
// Columns not named are inferred.
func WithKinds(kinds map[string]tdk.Kind) Option {
	return func(r *Reader) {
		for k, v := range kinds {
			r.kinds[k] = v
		}
	}
}

// WithTimeLayout returns an Option which sets the layout used to parse
// timestamps.
func WithTimeLayout(layout string) Option {
	return func(r *Reader) {
		r.timeLayout = layout
	}
}

// WithoutInference returns an Option which reads every column not given a
// kind as a string.
func WithoutInference() Option {
	return func(r *Reader) {
		r.infer = false
	}
}

// NewReader creates a Reader.
func NewReader(options ...Option) *Reader {
	r := &Reader{
		kinds:      make(map[string]tdk.Kind),
		timeLayout: TimeLayout,
		infer:      true,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// ReadFile reads the file at path. Files ending in ".gz" are decompressed.
func (r *Reader) ReadFile(path string) (*tdk.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening file")
	}
	defer f.Close()
	var content io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "decompressing %s", path)
		}
		defer gz.Close()
		content = gz
	}
	ds, err := r.Read(content)
	return ds, errors.Wrapf(err, "reading %s", path)
}

// Read reads CSV data from content.
func (r *Reader) Read(content io.Reader) (*tdk.Dataset, error) {
	cr := csv.NewReader(content)
	cr.ReuseRecord = true
	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("no header line")
	} else if err != nil {
		return nil, errors.Wrap(err, "reading header")
	}
	header = append([]string(nil), header...)
	if err := validateHeader(header); err != nil {
		return nil, errors.Wrap(err, "validating header")
	}

	fields := make([][]string, len(header))
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}
		for i := range header {
			fields[i] = append(fields[i], row[i])
		}
	}

	cols := make([]tdk.Column, len(header))
	for i, name := range header {
		kind, ok := r.kinds[name]
		if !ok {
			kind = tdk.String
			if r.infer {
				kind = r.inferKind(fields[i])
			}
		}
		vals, err := r.parseColumn(kind, fields[i])
		if err != nil {
			return nil, errors.Wrapf(err, "column %s", name)
		}
		cols[i] = tdk.Column{Name: name, Kind: kind, Values: vals}
	}
	return tdk.NewDataset(cols...)
}

func (r *Reader) parseColumn(kind tdk.Kind, fields []string) ([]interface{}, error) {
	vals := make([]interface{}, len(fields))
	for j, f := range fields {
		if f == "" {
			continue
		}
		var (
			v   interface{}
			err error
		)
		if kind == tdk.Timestamp {
			v, err = time.Parse(r.timeLayout, f)
		} else {
			v, err = tdk.ParseValue(kind, f)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", j+1)
		}
		vals[j] = v
	}
	return vals, nil
}

// inferKind returns the narrowest kind which every non-empty field parses as,
// trying int64, float64, timestamp and then string. An all-empty column is a
// float64 column, matching how missing numbers are usually stored.
func (r *Reader) inferKind(fields []string) tdk.Kind {
	candidates := []tdk.Kind{tdk.Int64, tdk.Float64, tdk.Timestamp}
	for _, f := range fields {
		if f == "" {
			continue
		}
		for len(candidates) > 0 && !r.parses(candidates[0], f) {
			candidates = candidates[1:]
		}
		if len(candidates) == 0 {
			return tdk.String
		}
	}
	if len(candidates) == 0 {
		return tdk.String
	}
	return candidates[0]
}

func (r *Reader) parses(kind tdk.Kind, f string) bool {
	var err error
	if kind == tdk.Timestamp {
		_, err = time.Parse(r.timeLayout, f)
	} else {
		_, err = tdk.ParseValue(kind, f)
	}
	return err == nil
}

func validateHeader(header []string) error {
	fields := make(map[string]int)
	for i, h := range header {
		if h == "" {
			return errors.Errorf("header contains empty string at %d: %v", i, header)
		}
		if pos, exists := fields[h]; exists {
			return errors.Errorf("%s appeared at both %d and %d in header", h, pos, i)
		}
		fields[h] = i
	}
	return nil
}
