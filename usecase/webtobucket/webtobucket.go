// Package webtobucket copies monthly trip record files from the web into a
// bucket, keeping a cleaned gzip parquet copy under the same key.
package webtobucket

import (
	"context"

	"github.com/pkg/errors"

	"github.com/tripdata/tdk"
	"github.com/tripdata/tdk/file"
	"github.com/tripdata/tdk/usecase"
)

// Main holds the options of the web to bucket flow.
type Main struct {
	usecase.Common  `flag:"-"`
	usecase.Storage `flag:"-"`

	Color       string `help:"Taxi color: yellow, green or fhv."`
	Year        int    `help:"Year of the trip records."`
	Months      string `help:"Comma separated months to copy."`
	BaseURL     string `help:"Where the trip record files are published."`
	Concurrency int    `help:"Number of months to copy at once."`
	KeepLocal   bool   `help:"Keep the local parquet copies after uploading."`
}

// NewMain returns a Main with the default options.
func NewMain() *Main {
	return &Main{
		Common:      usecase.NewCommon(),
		Storage:     usecase.NewStorage(),
		Color:       usecase.DefaultColor,
		Year:        usecase.DefaultYear,
		Months:      usecase.DefaultMonths,
		BaseURL:     file.BaseURL,
		Concurrency: 1,
	}
}

// Run copies each month. A failed month doesn't stop the others; the error
// lists every month which failed.
func (m *Main) Run(ctx context.Context) (err error) {
	if err := m.Setup(); err != nil {
		return errors.Wrap(err, "setting up")
	}
	defer func() {
		if cerr := m.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "closing")
		}
	}()
	trips, err := m.Trips()
	if err != nil {
		return err
	}
	if err := m.Resolve(&m.Common); err != nil {
		return err
	}
	store, err := m.Open(ctx, &m.Common)
	if err != nil {
		return err
	}
	return tdk.FanOut(ctx, trips, m.Concurrency, func(ctx context.Context, trip file.Trip) error {
		p, err := m.Pipeline(trip, store)
		if err != nil {
			return err
		}
		out, err := m.Runner.Run(ctx, p, m.Params(trip))
		if err != nil {
			return err
		}
		m.Log.Printf("%s uploaded to %s", trip, out)
		return nil
	})
}

// Trips returns the months to copy.
func (m *Main) Trips() ([]file.Trip, error) {
	months, err := usecase.ParseMonths(m.Months)
	if err != nil {
		return nil, err
	}
	trips := file.Months(m.Color, m.Year, months)
	for _, t := range trips {
		if err := t.Validate(); err != nil {
			return nil, err
		}
	}
	return trips, nil
}

// Params returns the parameters of the run for trip.
func (m *Main) Params(trip file.Trip) tdk.Params {
	return tdk.NewParams(map[string]string{
		"url":    trip.URL(m.BaseURL),
		"path":   trip.LocalPath(m.WorkDir),
		"key":    trip.ObjectKey(),
		"bucket": m.Bucket,
	})
}

// Pipeline returns the pipeline copying trip to store: fetch, impute, write
// the local copy, upload.
func (m *Main) Pipeline(trip file.Trip, store tdk.ObjectStore) (*tdk.Pipeline, error) {
	imp, err := m.Imputation()
	if err != nil {
		return nil, err
	}
	local := trip.LocalPath(m.WorkDir)

	fetch := m.FetchStep("fetch", "url", func(ctx context.Context, p tdk.Params, dir string) (tdk.ArtifactHandle, error) {
		d, err := m.Downloader(dir)
		if err != nil {
			return tdk.ArtifactHandle{}, err
		}
		return d.Fetch(ctx, p.String("url"))
	})

	write := tdk.NewStep("write-local", tdk.LoadStep, func(ctx context.Context, ds *tdk.Dataset) (tdk.ArtifactHandle, error) {
		if err := file.Write(local, ds); err != nil {
			return tdk.ArtifactHandle{}, err
		}
		return tdk.LocalArtifact(local), nil
	})
	write.Destination = local

	upload := tdk.NewStep("upload", tdk.LoadStep, func(ctx context.Context, h tdk.ArtifactHandle) (string, error) {
		return store.Upload(ctx, h.Location, trip.ObjectKey())
	})
	upload.WithRetries(m.LoadAttempts, m.RetryDelay)
	upload.Destination = trip.ObjectKey()

	return &tdk.Pipeline{
		Name:     "web-to-bucket " + trip.Name(),
		Required: append([]string{"url", "path", "key"}, tdk.ObjectStorageKeys...),
		Stages:   []tdk.Stage{fetch, m.ImputeStep(imp), write, upload},
		Cleanup: func(ctx context.Context, h tdk.ArtifactHandle) error {
			if m.KeepLocal && h == tdk.LocalArtifact(local) {
				return nil
			}
			return tdk.RemoveLocal(ctx, h)
		},
	}, nil
}
