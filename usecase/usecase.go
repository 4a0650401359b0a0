// Package usecase holds what the taxi data flows have in common: logging,
// stats, the fetch cache, and the Runner built from them.
package usecase

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/tripdata/tdk"
	"github.com/tripdata/tdk/boltdb"
	"github.com/tripdata/tdk/file"
	"github.com/tripdata/tdk/http"
	"github.com/tripdata/tdk/leveldb"
	"github.com/tripdata/tdk/parquet"
	"github.com/tripdata/tdk/termstat"
)

// Default settings shared by the flows.
const (
	DefaultColor      = "yellow"
	DefaultYear       = 2022
	DefaultMonths     = "1,2"
	DefaultCacheBytes = 1 << 30
)

// FetchCacheExpiration is how long a fetched dataset is reused.
const FetchCacheExpiration = 7 * 24 * time.Hour

// Common is embedded in each flow's Main. Its flags are registered without a
// prefix, alongside those of the Main.
type Common struct {
	WorkDir       string   `help:"Directory for downloads and local copies."`
	Cache         string   `help:"Cache for fetched data: memory, bolt, leveldb or none."`
	CacheDir      string   `help:"Directory of the bolt or leveldb cache. Empty means <work-dir>/.tdk/cache."`
	Fill          []string `help:"Null imputations as column=value, e.g. passenger_count=0."`
	FetchAttempts int      `help:"Attempts for each fetch before giving up."`
	LoadAttempts  int      `help:"Attempts for each load before giving up."`
	Verbose       bool     `help:"Enable verbose logging."`
	LogPath       string   `help:"Log file to write to. Empty means stderr."`
	Stats         bool     `help:"Print run counters to stderr periodically."`
	TLS           http.TLSConfig

	Timeout    time.Duration `help:"Time limit for each attempt of a step."`
	RetryDelay time.Duration `help:"Delay before the first retry of a step. Later retries back off."`

	// Config is the viper instance flags were read through. Named blocks
	// are looked up in it.
	Config *viper.Viper `flag:"-"`
	Log    tdk.Logger   `flag:"-"`
	Runner *tdk.Runner  `flag:"-"`

	closers []io.Closer
}

// NewCommon returns the defaults for Common.
func NewCommon() Common {
	return Common{
		WorkDir:       ".",
		Cache:         "memory",
		FetchAttempts: tdk.DefaultFetchAttempts,
		LoadAttempts:  1,
		Timeout:       10 * time.Minute,
		RetryDelay:    2 * time.Second,
	}
}

// Setup builds the logger and Runner unless they have been set, along with the
// cache and stats collector they use. Close releases them.
func (c *Common) Setup() error {
	if c.Log == nil {
		var out io.Writer = os.Stderr
		if c.LogPath != "" {
			f, err := os.OpenFile(c.LogPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
			if err != nil {
				return errors.Wrap(err, "opening log file")
			}
			c.closers = append(c.closers, f)
			out = f
		}
		if c.Verbose {
			c.Log = tdk.NewVerboseLogger(out)
		} else {
			c.Log = tdk.NewStdLogger(out)
		}
	}
	if c.Runner != nil {
		return nil
	}
	cache, err := c.openCache()
	if err != nil {
		return err
	}
	r := &tdk.Runner{Log: c.Log, Cache: cache, Timeout: c.Timeout}
	if cache != nil {
		c.closers = append(c.closers, cache)
	}
	if c.Stats {
		stats := termstat.NewCollector(os.Stderr, 10*time.Second)
		c.closers = append(c.closers, stats)
		r.Stats = stats
	}
	c.Runner = r
	return nil
}

func (c *Common) openCache() (tdk.CacheStore, error) {
	dir := c.CacheDir
	if dir == "" {
		dir = filepath.Join(c.WorkDir, ".tdk", "cache")
	}
	switch strings.ToLower(c.Cache) {
	case "", "none":
		return nil, nil
	case "memory":
		cache, err := tdk.NewMemoryCache(DefaultCacheBytes)
		return cache, errors.Wrap(err, "creating memory cache")
	case "bolt":
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrap(err, "creating cache directory")
		}
		cache, err := boltdb.NewCache(filepath.Join(dir, "cache.bolt"))
		return cache, errors.Wrap(err, "opening bolt cache")
	case "leveldb":
		cache, err := leveldb.NewCache(dir)
		return cache, errors.Wrap(err, "opening leveldb cache")
	}
	return nil, &tdk.ConfigurationError{Key: "cache", Err: errors.Errorf("unknown cache %q", c.Cache)}
}

// Defer arranges for closer to be closed by Close.
func (c *Common) Defer(closer io.Closer) {
	c.closers = append(c.closers, closer)
}

// Close releases whatever Setup opened.
func (c *Common) Close() error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	c.closers = nil
	return first
}

// Imputation parses Fill.
func (c *Common) Imputation() (tdk.Imputation, error) {
	return tdk.ParseImputation(c.Fill)
}

// LoadBlock decodes the named config block into out. An empty name is a no-op.
func (c *Common) LoadBlock(name string, out interface{}) error {
	if name == "" {
		return nil
	}
	if c.Config == nil {
		return &tdk.ConfigurationError{Key: tdk.BlockKey(name), Err: errors.New("no configuration loaded")}
	}
	return tdk.LoadBlock(c.Config, name, out)
}

// ScratchDir creates the directory <work-dir>/.tdk-run-<run id> for the run ctx
// belongs to and tracks it for cleanup. Files tracked after it are removed
// first, so nothing of it remains once the run ends.
func (c *Common) ScratchDir(ctx context.Context) (string, error) {
	id := tdk.RunID(ctx)
	if id == "" {
		return "", errors.New("scratch directory requested outside a run")
	}
	dir := filepath.Join(c.WorkDir, ".tdk-run-"+id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrap(err, "creating scratch directory")
	}
	tdk.Track(ctx, tdk.LocalArtifact(dir))
	return dir, nil
}

// Downloader returns a Downloader writing into dir with the TLS settings
// applied.
func (c *Common) Downloader(dir string) (*http.Downloader, error) {
	cfg, err := http.GetTLSConfig(&c.TLS)
	if err != nil {
		return nil, &tdk.ConfigurationError{Key: "tls", Err: err}
	}
	return http.NewDownloader(http.WithDir(dir), http.WithLogger(c.Log), http.WithTLS(cfg)), nil
}

// Fetcher copies the file named by a run's parameters into dir.
type Fetcher func(ctx context.Context, p tdk.Params, dir string) (tdk.ArtifactHandle, error)

// FetchStep returns a step which runs fetch into a scratch directory and reads
// the result. The file is removed when the run ends. The dataset is cached
// under the value of the key parameter.
func (c *Common) FetchStep(name, key string, fetch Fetcher) *tdk.Step[tdk.Params, *tdk.Dataset] {
	s := tdk.NewStep(name, tdk.FetchStep, func(ctx context.Context, p tdk.Params) (*tdk.Dataset, error) {
		dir, err := c.ScratchDir(ctx)
		if err != nil {
			return nil, err
		}
		h, err := fetch(ctx, p, dir)
		if err != nil {
			return nil, err
		}
		tdk.Track(ctx, h)
		ds, err := file.Read(h.Location)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", p.String(key))
		}
		c.Log.Printf("read %d rows of %d columns from %s", ds.Len(), len(ds.Columns), p.String(key))
		return ds, nil
	})
	s.WithRetries(c.FetchAttempts, c.RetryDelay)
	s.Backoff = true
	return s.WithCache(func(p tdk.Params) (string, error) {
		v, ok := p.Lookup(key)
		if !ok || v == "" {
			return "", errors.Errorf("no %s to key the cache on", key)
		}
		return v, nil
	}, FetchCacheExpiration, parquet.DatasetCodec{})
}

// ImputeStep returns a step which applies imp, logging how many values were
// missing in each filled column before and after.
func (c *Common) ImputeStep(imp tdk.Imputation) *tdk.Step[*tdk.Dataset, *tdk.Dataset] {
	return tdk.NewStep("impute", tdk.TransformStep, func(ctx context.Context, ds *tdk.Dataset) (*tdk.Dataset, error) {
		out, reports, err := imp.Apply(ds)
		if err != nil {
			return nil, err
		}
		for _, r := range reports {
			c.Log.Printf("pre: missing %s count: %d", r.Column, r.Before)
			c.Log.Printf("post: missing %s count: %d", r.Column, r.After)
		}
		return out, nil
	})
}

// ParseMonths parses a comma separated list of months.
func ParseMonths(s string) ([]int, error) {
	var months []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		m, err := strconv.Atoi(f)
		if err != nil {
			return nil, &tdk.ConfigurationError{Key: "months", Err: errors.Wrapf(err, "parsing %q", f)}
		}
		months = append(months, m)
	}
	if len(months) == 0 {
		return nil, &tdk.ConfigurationError{Key: "months", Err: errors.New("no months given")}
	}
	return months, nil
}
