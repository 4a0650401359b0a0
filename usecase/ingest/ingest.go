// Package ingest downloads one trip record file, fills in missing values and
// loads it into a relational table.
package ingest

import (
	"context"

	"github.com/pkg/errors"

	"github.com/tripdata/tdk"
	"github.com/tripdata/tdk/sqldb"
	"github.com/tripdata/tdk/usecase"
)

// Connection is a database config block such as "postgres-connector".
type Connection struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	DB       string `mapstructure:"db"`
}

// Main holds the options of the ingestion flow.
type Main struct {
	usecase.Common `flag:"-"`

	URL       string `help:"URL or local path of the parquet or CSV file to load."`
	Table     string `help:"Destination table."`
	Driver    string `help:"Database driver: pgx (the default) or sqlite3."`
	DSN       string `help:"Connection string. Overrides user, password, host, port and db."`
	User      string `help:"Database user."`
	Password  string `help:"Database password."`
	Host      string `help:"Database host."`
	Port      string `help:"Database port."`
	DB        string `help:"Database name, or file for sqlite3."`
	Block     string `help:"Config block holding the connection, e.g. postgres-connector."`
	Mode      string `help:"replace or append."`
	ChunkSize int    `help:"Rows per insert batch."`
}

// NewMain returns a Main with the default options.
func NewMain() *Main {
	return &Main{
		Common:    usecase.NewCommon(),
		Mode:      string(tdk.Replace),
		ChunkSize: tdk.DefaultRelationalChunkSize,
	}
}

// Run loads the file at URL into Table.
func (m *Main) Run(ctx context.Context) (err error) {
	if err := m.Setup(); err != nil {
		return errors.Wrap(err, "setting up")
	}
	defer func() {
		if cerr := m.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "closing")
		}
	}()
	params, err := m.Params()
	if err != nil {
		return err
	}
	p, err := m.Pipeline(params)
	if err != nil {
		return err
	}
	out, err := m.Runner.Run(ctx, p, params)
	if err != nil {
		return err
	}
	m.Log.Printf("loaded %d rows into %s", out.(int), m.Table)
	return nil
}

// Params merges the flags with the connection block. Flags win.
func (m *Main) Params() (tdk.Params, error) {
	var c Connection
	if err := m.LoadBlock(m.Block, &c); err != nil {
		return tdk.Params{}, err
	}
	return tdk.NewParams(map[string]string{
		"url":        m.URL,
		"table_name": m.Table,
		"driver":     first(m.Driver, c.Driver),
		"dsn":        first(m.DSN, c.DSN),
		"user":       first(m.User, c.User),
		"password":   first(m.Password, c.Password),
		"host":       first(m.Host, c.Host),
		"port":       first(m.Port, c.Port),
		"db":         first(m.DB, c.DB),
	}), nil
}

// Required lists the parameters needed to connect the way p describes.
func Required(p tdk.Params) []string {
	switch {
	case p.String("dsn") != "":
		return []string{"url", "table_name"}
	case isSQLite(p):
		return []string{"url", "table_name", "db"}
	}
	return append([]string{"url"}, tdk.RelationalKeys...)
}

// Pipeline returns the ingestion pipeline for params: download, impute,
// write.
func (m *Main) Pipeline(params tdk.Params) (*tdk.Pipeline, error) {
	required := Required(params)
	if err := params.Require(required...); err != nil {
		return nil, err
	}
	imp, err := m.Imputation()
	if err != nil {
		return nil, err
	}
	mode, err := tdk.ParseMode(m.Mode)
	if err != nil {
		return nil, err
	}
	driver, dsn, err := connection(params)
	if err != nil {
		return nil, err
	}
	table := params.String("table_name")

	fetch := m.FetchStep("download", "url", func(ctx context.Context, p tdk.Params, dir string) (tdk.ArtifactHandle, error) {
		d, err := m.Downloader(dir)
		if err != nil {
			return tdk.ArtifactHandle{}, err
		}
		return d.Fetch(ctx, p.String("url"))
	})

	write := tdk.NewStep("write", tdk.LoadStep, func(ctx context.Context, ds *tdk.Dataset) (int, error) {
		l, err := sqldb.Open(ctx, driver, dsn,
			sqldb.OptLoaderChunkSize(m.ChunkSize),
			sqldb.OptLoaderLogger(m.Log))
		if err != nil {
			return 0, err
		}
		defer l.Close()
		return l.Load(ctx, table, ds, mode)
	})
	write.WithRetries(m.LoadAttempts, m.RetryDelay)
	write.Destination = table

	return &tdk.Pipeline{
		Name:     "ingest",
		Required: required,
		Stages:   []tdk.Stage{fetch, m.ImputeStep(imp), write},
	}, nil
}

func isSQLite(p tdk.Params) bool {
	d, err := sqldb.DialectFor(p.String("driver"))
	return err == nil && d.Driver == sqldb.SQLite.Driver
}

// connection returns the database/sql driver and data source name described
// by p. Driver aliases such as sqlite or postgres are resolved.
func connection(p tdk.Params) (driver, dsn string, err error) {
	d, err := sqldb.DialectFor(first(p.String("driver"), "pgx"))
	if err != nil {
		return "", "", err
	}
	driver = d.Driver
	if dsn = p.String("dsn"); dsn != "" {
		return driver, dsn, nil
	}
	if driver == sqldb.SQLite.Driver {
		return driver, p.String("db"), nil
	}
	dsn, err = sqldb.PostgresDSN(p)
	return driver, dsn, err
}

func first(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
