// Package sqldb loads Datasets into relational databases through
// database/sql, with drivers for PostgreSQL (pgx) and SQLite.
package sqldb

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "github.com/mattn/go-sqlite3"    // registers "sqlite3"
	"github.com/pkg/errors"

	"github.com/tripdata/tdk"
)

// Loader writes Datasets into tables.
type Loader struct {
	db        *sql.DB
	dialect   Dialect
	chunkSize int
	log       tdk.Logger
	stats     tdk.Statter

	// afterChunk is called after each chunk is written, before its
	// transaction commits in append mode.
	afterChunk func(i int) error
}

// Option is a functional option for Loader.
type Option func(l *Loader)

// OptLoaderChunkSize sets the number of rows written per chunk.
func OptLoaderChunkSize(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.chunkSize = n
		}
	}
}

// OptLoaderLogger sets the Loader's logger.
func OptLoaderLogger(log tdk.Logger) Option {
	return func(l *Loader) {
		l.log = log
	}
}

// OptLoaderStats sets the Loader's statter.
func OptLoaderStats(s tdk.Statter) Option {
	return func(l *Loader) {
		l.stats = s
	}
}

// New returns a Loader writing to db.
func New(db *sql.DB, d Dialect, opts ...Option) *Loader {
	l := &Loader{
		db:        db,
		dialect:   d,
		chunkSize: tdk.DefaultRelationalChunkSize,
		log:       tdk.NopLogger{},
		stats:     tdk.NopStatter{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Open connects to a database and returns a Loader for it.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Loader, error) {
	d, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, &tdk.ConfigurationError{Key: "dsn", Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "connecting to %s", d.Name)
	}
	return New(db, d, opts...), nil
}

// DB returns the underlying database.
func (l *Loader) DB() *sql.DB { return l.db }

// Close closes the database.
func (l *Loader) Close() error { return l.db.Close() }

// Load writes ds to table in chunks and returns the number of rows written.
//
// In Replace mode the table is dropped, recreated and filled inside a single
// transaction, so a failure leaves the previous table untouched. In Append
// mode the table is created if needed and each chunk is committed on its
// own; a failure leaves the chunks before it in place.
func (l *Loader) Load(ctx context.Context, table string, ds *tdk.Dataset, mode tdk.Mode) (int, error) {
	switch mode {
	case tdk.Replace:
		return l.replace(ctx, table, ds)
	case tdk.Append:
		return l.append(ctx, table, ds)
	}
	return 0, &tdk.ConfigurationError{Key: "mode", Err: errors.Errorf("unknown mode %q", mode)}
}

func (l *Loader) replace(ctx context.Context, table string, ds *tdk.Dataset) (n int, err error) {
	create, err := l.dialect.createTable(table, ds, false)
	if err != nil {
		return 0, tdk.Permanent(err)
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+Quote(table)); err != nil {
		return 0, errors.Wrapf(err, "dropping %s", table)
	}
	if _, err = tx.ExecContext(ctx, create); err != nil {
		return 0, errors.Wrapf(err, "creating %s", table)
	}
	for i, chunk := range ds.Chunks(l.chunkSize) {
		if err = l.writeChunk(ctx, tx, table, chunk, i); err != nil {
			return 0, err
		}
		n += chunk.Len()
	}
	if err = tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "committing")
	}
	l.log.Printf("replaced %s with %d rows", table, n)
	return n, nil
}

func (l *Loader) append(ctx context.Context, table string, ds *tdk.Dataset) (int, error) {
	create, err := l.dialect.createTable(table, ds, true)
	if err != nil {
		return 0, tdk.Permanent(err)
	}
	if _, err := l.db.ExecContext(ctx, create); err != nil {
		return 0, errors.Wrapf(err, "creating %s", table)
	}
	n := 0
	for i, chunk := range ds.Chunks(l.chunkSize) {
		tx, err := l.db.BeginTx(ctx, nil)
		if err != nil {
			return n, errors.Wrap(err, "beginning transaction")
		}
		if err := l.writeChunk(ctx, tx, table, chunk, i); err != nil {
			tx.Rollback()
			return n, errors.Wrapf(err, "after %d rows were appended", n)
		}
		if err := tx.Commit(); err != nil {
			return n, errors.Wrapf(err, "committing chunk %d", i)
		}
		n += chunk.Len()
	}
	l.log.Printf("appended %d rows to %s", n, table)
	return n, nil
}

func (l *Loader) writeChunk(ctx context.Context, tx *sql.Tx, table string, chunk *tdk.Dataset, i int) error {
	start := time.Now()
	stmt, err := tx.PrepareContext(ctx, l.dialect.insert(table, chunk))
	if err != nil {
		return errors.Wrap(err, "preparing insert")
	}
	defer stmt.Close()
	row := make([]interface{}, len(chunk.Columns))
	for r, n := 0, chunk.Len(); r < n; r++ {
		row = chunk.Row(r, row)
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return errors.Wrapf(err, "inserting row %d of chunk %d", r, i)
		}
	}
	if l.afterChunk != nil {
		if err := l.afterChunk(i); err != nil {
			return err
		}
	}
	l.stats.Count("load.rows", int64(chunk.Len()), 1, "table:"+table)
	l.log.Printf("inserted chunk %d (%d rows) into %s in %v", i, chunk.Len(), table, time.Since(start))
	return nil
}
