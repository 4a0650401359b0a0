package sqldb

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/tripdata/tdk"
)

// Dialect holds what differs between the supported databases.
type Dialect struct {
	Name string
	// Driver is the database/sql driver name.
	Driver string

	placeholder func(i int) string
	types       map[tdk.Kind]string
}

// Postgres is the dialect of PostgreSQL, used through pgx.
var Postgres = Dialect{
	Name:        "postgres",
	Driver:      "pgx",
	placeholder: func(i int) string { return "$" + strconv.Itoa(i) },
	types: map[tdk.Kind]string{
		tdk.Int64:     "BIGINT",
		tdk.Int32:     "INTEGER",
		tdk.Float64:   "DOUBLE PRECISION",
		tdk.Float32:   "REAL",
		tdk.Bool:      "BOOLEAN",
		tdk.String:    "TEXT",
		tdk.Timestamp: "TIMESTAMP",
	},
}

// SQLite is the dialect of SQLite, used through go-sqlite3.
var SQLite = Dialect{
	Name:        "sqlite",
	Driver:      "sqlite3",
	placeholder: func(int) string { return "?" },
	types: map[tdk.Kind]string{
		tdk.Int64:     "BIGINT",
		tdk.Int32:     "INTEGER",
		tdk.Float64:   "REAL",
		tdk.Float32:   "REAL",
		tdk.Bool:      "BOOLEAN",
		tdk.String:    "TEXT",
		tdk.Timestamp: "TIMESTAMP",
	},
}

// DialectFor returns the dialect for a driver name. "postgres" and
// "postgresql" are accepted for pgx, "sqlite" for sqlite3.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "pgx", "postgres", "postgresql":
		return Postgres, nil
	case "sqlite3", "sqlite":
		return SQLite, nil
	}
	return Dialect{}, &tdk.ConfigurationError{Key: "driver", Err: errors.Errorf("unsupported driver %q", driver)}
}

// Quote quotes a possibly schema qualified identifier.
func Quote(ident string) string {
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.Replace(p, `"`, `""`, -1) + `"`
	}
	return strings.Join(parts, ".")
}

func (d Dialect) createTable(table string, ds *tdk.Dataset, ifNotExists bool) (string, error) {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	if ifNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(Quote(table))
	b.WriteString(" (")
	for i, c := range ds.Columns {
		typ, ok := d.types[c.Kind]
		if !ok {
			return "", errors.Errorf("column %s: no %s type for %v", c.Name, d.Name, c.Kind)
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(Quote(c.Name))
		b.WriteString(" ")
		b.WriteString(typ)
	}
	b.WriteString(")")
	return b.String(), nil
}

func (d Dialect) insert(table string, ds *tdk.Dataset) string {
	var cols, vals strings.Builder
	for i, c := range ds.Columns {
		if i > 0 {
			cols.WriteString(", ")
			vals.WriteString(", ")
		}
		cols.WriteString(Quote(c.Name))
		vals.WriteString(d.placeholder(i + 1))
	}
	return "INSERT INTO " + Quote(table) + " (" + cols.String() + ") VALUES (" + vals.String() + ")"
}

// PostgresDSN builds a connection URL from the user, password, host, port and
// db parameters.
func PostgresDSN(p tdk.Params) (string, error) {
	if err := p.Require("user", "password", "host", "port", "db"); err != nil {
		return "", err
	}
	port, err := p.Int("port")
	if err != nil {
		return "", err
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.String("user"), p.String("password")),
		Host:   net.JoinHostPort(p.String("host"), strconv.Itoa(port)),
		Path:   "/" + p.String("db"),
	}
	return u.String(), nil
}
