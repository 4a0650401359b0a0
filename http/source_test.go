package http_test

import (
	"context"
	"fmt"
	gohttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tripdata/tdk"
	"github.com/tripdata/tdk/http"
)

func TestDownloaderFetch(t *testing.T) {
	srv := httptest.NewServer(gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
		switch r.URL.Path {
		case "/trip-data/yellow_tripdata_2022-01.parquet":
			fmt.Fprint(w, "PAR1 pretend PAR1")
		case "/trip-data/busy.parquet":
			gohttp.Error(w, "slow down", gohttp.StatusTooManyRequests)
		case "/trip-data/broken.parquet":
			gohttp.Error(w, "oops", gohttp.StatusBadGateway)
		default:
			gohttp.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	d := http.NewDownloader(http.WithDir(dir), http.WithClient(srv.Client()))

	tests := []struct {
		path      string
		permanent bool
		fail      bool
	}{
		{path: "/trip-data/yellow_tripdata_2022-01.parquet"},
		{path: "/trip-data/missing.parquet", fail: true, permanent: true},
		{path: "/trip-data/busy.parquet", fail: true},
		{path: "/trip-data/broken.parquet", fail: true},
	}
	for i, tst := range tests {
		h, err := d.Fetch(context.Background(), srv.URL+tst.path)
		if tst.fail {
			if err == nil {
				t.Fatalf("test %d: expected error", i)
			}
			if tdk.IsPermanent(err) != tst.permanent {
				t.Fatalf("test %d: permanent=%v for %v", i, tdk.IsPermanent(err), err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("test %d: %v", i, err)
		}
		exp := tdk.LocalArtifact(filepath.Join(dir, "yellow_tripdata_2022-01.parquet"))
		if h != exp {
			t.Fatalf("test %d: got handle %v, expected %v", i, h, exp)
		}
		b, err := os.ReadFile(h.Location)
		if err != nil || string(b) != "PAR1 pretend PAR1" {
			t.Fatalf("test %d: content %q, err %v", i, b, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the downloaded file, got %d entries", len(entries))
	}
}

func TestDownloaderLocalFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "green_tripdata_2020-12.parquet")
	if err := os.WriteFile(src, []byte("local"), 0600); err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	h, err := http.NewDownloader(http.WithDir(dir)).Fetch(context.Background(), src)
	if err != nil {
		t.Fatalf("fetching local file: %v", err)
	}
	if h.Location != filepath.Join(dir, "green_tripdata_2020-12.parquet") {
		t.Fatalf("unexpected location %s", h.Location)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("source file should be untouched: %v", err)
	}

	_, err = http.NewDownloader(http.WithDir(dir)).Fetch(context.Background(), filepath.Join(dir, "nope.parquet"))
	if !tdk.IsPermanent(err) {
		t.Fatalf("missing local file should be permanent, got %v", err)
	}
}

func TestDownloaderBadURL(t *testing.T) {
	d := http.NewDownloader(http.WithDir(t.TempDir()))
	for _, u := range []string{"https://host/", "ftp://host/a.parquet"} {
		_, err := d.Fetch(context.Background(), u)
		if tdk.ExitCode(err) != tdk.ExitConfiguration || !strings.Contains(err.Error(), "url") {
			t.Fatalf("%s: expected configuration error, got %v", u, err)
		}
	}
}
