// Package bigquery loads Datasets into BigQuery tables through load jobs fed
// with parquet files.
package bigquery

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	bq "cloud.google.com/go/bigquery"
	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"github.com/tripdata/tdk"
	"github.com/tripdata/tdk/parquet"
)

// Table names a destination table.
type Table struct {
	Project string
	Dataset string
	Table   string
}

func (t Table) String() string {
	return t.Project + "." + t.Dataset + "." + t.Table
}

// ParseTable parses "dataset.table" or "project.dataset.table". project is
// used when the name doesn't include one.
func ParseTable(project, name string) (Table, error) {
	parts := strings.Split(name, ".")
	switch {
	case len(parts) == 2 && project != "":
		return Table{Project: project, Dataset: parts[0], Table: parts[1]}, nil
	case len(parts) == 3:
		return Table{Project: parts[0], Dataset: parts[1], Table: parts[2]}, nil
	}
	return Table{}, &tdk.ConfigurationError{Key: "destination_table", Err: errors.Errorf("%q is not dataset.table or project.dataset.table", name)}
}

// JobRunner runs a single load job reading parquet data from r.
type JobRunner interface {
	RunLoad(ctx context.Context, t Table, r io.Reader, disposition bq.TableWriteDisposition) error
}

// ClientRunner runs load jobs with a BigQuery client.
type ClientRunner struct {
	Client *bq.Client
}

// NewClientRunner creates a client billed to project. Use
// option.WithCredentialsFile to authenticate with a service account key.
func NewClientRunner(ctx context.Context, project string, opts ...option.ClientOption) (*ClientRunner, error) {
	if project == "" {
		return nil, &tdk.ConfigurationError{Key: "project_id", Err: tdk.ErrMissingParam}
	}
	c, err := bq.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating bigquery client")
	}
	return &ClientRunner{Client: c}, nil
}

// Close closes the client.
func (c *ClientRunner) Close() error { return c.Client.Close() }

// RunLoad implements JobRunner.
func (c *ClientRunner) RunLoad(ctx context.Context, t Table, r io.Reader, disposition bq.TableWriteDisposition) error {
	src := bq.NewReaderSource(r)
	src.SourceFormat = bq.Parquet
	loader := c.Client.DatasetInProject(t.Project, t.Dataset).Table(t.Table).LoaderFrom(src)
	loader.WriteDisposition = disposition
	loader.CreateDisposition = bq.CreateIfNeeded
	job, err := loader.Run(ctx)
	if err != nil {
		return errors.Wrap(err, "starting load job")
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return errors.Wrapf(err, "waiting for job %s", job.ID())
	}
	return errors.Wrapf(status.Err(), "job %s", job.ID())
}

// Loader writes Datasets to BigQuery one chunk per load job.
type Loader struct {
	Runner    JobRunner
	ChunkSize int
	// TempDir holds the parquet file for the chunk being loaded.
	TempDir string
	Log     tdk.Logger
}

// NewLoader returns a Loader using runner with the default chunk size.
func NewLoader(runner JobRunner) *Loader {
	return &Loader{
		Runner:    runner,
		ChunkSize: tdk.DefaultWarehouseChunkSize,
		Log:       tdk.NopLogger{},
	}
}

// Load writes ds to t and returns the number of rows written. In Replace
// mode the first chunk truncates the table. Each later chunk is a separate
// job, so a failure part way through leaves the earlier chunks loaded.
func (l *Loader) Load(ctx context.Context, t Table, ds *tdk.Dataset, mode tdk.Mode) (int, error) {
	disposition := bq.WriteAppend
	switch mode {
	case tdk.Replace:
		disposition = bq.WriteTruncate
	case tdk.Append:
	default:
		return 0, &tdk.ConfigurationError{Key: "mode", Err: errors.Errorf("unknown mode %q", mode)}
	}
	n := 0
	for i, chunk := range ds.Chunks(l.ChunkSize) {
		start := time.Now()
		if err := l.loadChunk(ctx, t, chunk, disposition); err != nil {
			return n, errors.Wrapf(err, "loading chunk %d into %s", i, t)
		}
		n += chunk.Len()
		disposition = bq.WriteAppend
		l.Log.Printf("loaded chunk %d (%d rows) into %s in %v", i, chunk.Len(), t, time.Since(start))
	}
	return n, nil
}

func (l *Loader) loadChunk(ctx context.Context, t Table, chunk *tdk.Dataset, disposition bq.TableWriteDisposition) error {
	f, err := os.CreateTemp(l.TempDir, "tdk-bq-*.parquet")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	name := f.Name()
	f.Close()
	defer os.Remove(name)
	if err := parquet.NewWriter().WriteFile(name, chunk); err != nil {
		return tdk.Permanent(err)
	}
	r, err := os.Open(name)
	if err != nil {
		return errors.Wrap(err, "opening chunk file")
	}
	defer r.Close()
	return l.Runner.RunLoad(ctx, t, r, disposition)
}
