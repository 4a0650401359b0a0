// Package buckettowarehouse loads monthly trip record files from a bucket into
// a BigQuery table.
package buckettowarehouse

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"github.com/tripdata/tdk"
	"github.com/tripdata/tdk/bigquery"
	"github.com/tripdata/tdk/file"
	"github.com/tripdata/tdk/usecase"
)

// CredentialBlock is a GCP credential config block such as
// "dte-gcp-credential".
type CredentialBlock struct {
	ProjectID   string `mapstructure:"project_id"`
	Credentials string `mapstructure:"credentials"`
}

// Main holds the options of the bucket to warehouse flow.
type Main struct {
	usecase.Common  `flag:"-"`
	usecase.Storage `flag:"-"`

	Color            string `help:"Taxi color: yellow, green or fhv."`
	Year             int    `help:"Year of the trip records."`
	Months           string `help:"Comma separated months to load."`
	ProjectID        string `help:"GCP project billed for the load jobs."`
	DestinationTable string `help:"Table to load into, as dataset.table or project.dataset.table."`
	CredentialBlock  string `help:"Config block holding the project and credentials, e.g. dte-gcp-credential."`
	Mode             string `help:"replace or append."`
	ChunkSize        int    `help:"Rows per load job."`
	Concurrency      int    `help:"Number of months to load at once."`

	// Jobs runs the load jobs instead of a BigQuery client when set.
	Jobs bigquery.JobRunner `flag:"-"`
}

// NewMain returns a Main with the default options.
func NewMain() *Main {
	m := &Main{
		Common:      usecase.NewCommon(),
		Storage:     usecase.NewStorage(),
		Color:       usecase.DefaultColor,
		Year:        usecase.DefaultYear,
		Months:      "1",
		Mode:        string(tdk.Append),
		ChunkSize:   tdk.DefaultWarehouseChunkSize,
		Concurrency: 1,
	}
	m.Fill = []string{"passenger_count=0"}
	return m
}

// Run loads each month. A failed month doesn't stop the others.
func (m *Main) Run(ctx context.Context) (err error) {
	if err := m.Setup(); err != nil {
		return errors.Wrap(err, "setting up")
	}
	defer func() {
		if cerr := m.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "closing")
		}
	}()
	months, err := usecase.ParseMonths(m.Months)
	if err != nil {
		return err
	}
	trips := file.Months(m.Color, m.Year, months)
	for _, t := range trips {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	if err := m.Resolve(&m.Common); err != nil {
		return err
	}
	var cred CredentialBlock
	if err := m.LoadBlock(m.CredentialBlock, &cred); err != nil {
		return err
	}
	if m.ProjectID == "" {
		m.ProjectID = cred.ProjectID
	}
	if m.Credentials == "" {
		m.Credentials = cred.Credentials
	}
	params := m.Params(file.Trip{})
	if err := params.Require(m.required()...); err != nil {
		return err
	}

	store, err := m.Open(ctx, &m.Common)
	if err != nil {
		return err
	}
	jobs, err := m.jobRunner(ctx)
	if err != nil {
		return err
	}
	return tdk.FanOut(ctx, trips, m.Concurrency, func(ctx context.Context, trip file.Trip) error {
		p, err := m.Pipeline(trip, store, jobs)
		if err != nil {
			return err
		}
		out, err := m.Runner.Run(ctx, p, m.Params(trip))
		if err != nil {
			return err
		}
		m.Log.Printf("%s: loaded %d rows into %s", trip, out.(int), m.DestinationTable)
		return nil
	})
}

func (m *Main) required() []string {
	return append(append([]string{}, tdk.WarehouseKeys...), tdk.ObjectStorageKeys...)
}

func (m *Main) jobRunner(ctx context.Context) (bigquery.JobRunner, error) {
	if m.Jobs != nil {
		return m.Jobs, nil
	}
	c, err := bigquery.NewClientRunner(ctx, m.ProjectID, option.WithCredentialsFile(m.Credentials))
	if err != nil {
		return nil, err
	}
	m.Jobs = c
	m.Defer(c)
	return c, nil
}

// Params returns the parameters of the run for trip.
func (m *Main) Params(trip file.Trip) tdk.Params {
	vals := map[string]string{
		"project_id":        m.ProjectID,
		"credentials":       m.Credentials,
		"destination_table": m.DestinationTable,
		"bucket":            m.Bucket,
	}
	if trip.Color != "" {
		vals["key"] = trip.ObjectKey()
		vals["object"] = m.Bucket + "/" + trip.ObjectKey()
	}
	return tdk.NewParams(vals)
}

// Pipeline returns the pipeline loading trip: extract from the bucket,
// impute, write to BigQuery.
func (m *Main) Pipeline(trip file.Trip, store tdk.ObjectStore, jobs bigquery.JobRunner) (*tdk.Pipeline, error) {
	imp, err := m.Imputation()
	if err != nil {
		return nil, err
	}
	mode, err := tdk.ParseMode(m.Mode)
	if err != nil {
		return nil, err
	}
	table, err := bigquery.ParseTable(m.ProjectID, m.DestinationTable)
	if err != nil {
		return nil, err
	}

	extract := m.FetchStep("extract", "object", func(ctx context.Context, p tdk.Params, dir string) (tdk.ArtifactHandle, error) {
		return store.Download(ctx, p.String("key"), filepath.Join(dir, trip.Name()))
	})

	loader := bigquery.NewLoader(jobs)
	loader.ChunkSize = m.ChunkSize
	loader.Log = m.Log
	write := tdk.NewStep("write-bq", tdk.LoadStep, func(ctx context.Context, ds *tdk.Dataset) (int, error) {
		dir, err := m.ScratchDir(ctx)
		if err != nil {
			return 0, err
		}
		l := *loader
		l.TempDir = dir
		return l.Load(ctx, table, ds, mode)
	})
	write.WithRetries(m.LoadAttempts, m.RetryDelay)
	write.Destination = table.String()

	return &tdk.Pipeline{
		Name:     "bucket-to-warehouse " + trip.Name(),
		Required: append(m.required(), "key"),
		Stages:   []tdk.Stage{extract, m.ImputeStep(imp), write},
	}, nil
}
