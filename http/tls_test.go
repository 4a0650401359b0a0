package http_test

import (
	"context"
	"encoding/pem"
	gohttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/tripdata/tdk/http"
	"github.com/tripdata/tdk/test"
)

func TestTLS(t *testing.T) {
	srv := httptest.NewTLSServer(gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
		w.Write([]byte("VendorID\n1\n"))
	}))
	defer srv.Close()

	ca := filepath.Join(t.TempDir(), "ca.pem")
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	test.ErrNil(t, os.WriteFile(ca, pemBytes, 0644), "writing ca")

	// the default client doesn't trust the test server
	d := http.NewDownloader(http.WithDir(t.TempDir()))
	if _, err := d.Fetch(context.Background(), srv.URL+"/trips.csv"); err == nil {
		t.Fatalf("expected certificate error")
	}

	cfg, err := http.GetTLSConfig(&http.TLSConfig{CACertPath: ca})
	test.ErrNil(t, err, "GetTLSConfig")
	d = http.NewDownloader(http.WithDir(t.TempDir()), http.WithTLS(cfg))
	h, err := d.Fetch(context.Background(), srv.URL+"/trips.csv")
	test.ErrNil(t, err, "Fetch")
	b, err := os.ReadFile(h.Location)
	test.ErrNil(t, err, "reading download")
	test.MustBe(t, string(b), "VendorID\n1\n")
}

func TestGetTLSConfig(t *testing.T) {
	cfg, err := http.GetTLSConfig(&http.TLSConfig{})
	test.ErrNil(t, err, "empty config")
	if cfg != nil {
		t.Fatalf("expected nil config, got %v", cfg)
	}
	if _, err := http.GetTLSConfig(&http.TLSConfig{CACertPath: filepath.Join(t.TempDir(), "missing.pem")}); err == nil {
		t.Fatalf("expected error for missing CA file")
	}
	if _, err := http.GetTLSConfig(&http.TLSConfig{CertificatePath: "client.crt"}); err == nil {
		t.Fatalf("expected error for certificate without key")
	}
}
