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

// Package http fetches source files over HTTP.
package http

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/tripdata/tdk"
)

// Downloader copies remote files into a local directory.
type Downloader struct {
	client *http.Client
	dir    string
	log    tdk.Logger
}

// DownloaderOption is a functional option type for Downloader.
type DownloaderOption func(d *Downloader)

// WithClient is an option for Downloader which sets the HTTP client used for
// requests.
func WithClient(c *http.Client) DownloaderOption {
	return func(d *Downloader) {
		d.client = c
	}
}

// WithDir is an option for Downloader which sets the directory files are
// written to.
func WithDir(dir string) DownloaderOption {
	return func(d *Downloader) {
		d.dir = dir
	}
}

// WithLogger is an option for Downloader which sets its logger.
func WithLogger(l tdk.Logger) DownloaderOption {
	return func(d *Downloader) {
		d.log = l
	}
}

// NewDownloader creates a Downloader writing to the working directory.
func NewDownloader(opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		client: &http.Client{Transport: http.DefaultTransport},
		dir:    ".",
		log:    tdk.NopLogger{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Fetch copies the file at rawurl into the Downloader's directory under the
// last element of its path and returns a handle to the copy. The file appears
// under its final name only once it is complete.
//
// Transport errors and 5xx, 408 and 429 responses may succeed if retried; any
// other non-2xx response is marked permanent. rawurl may also be a local path
// or file URL, which is copied so that the caller is free to delete the result.
func (d *Downloader) Fetch(ctx context.Context, rawurl string) (tdk.ArtifactHandle, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return tdk.ArtifactHandle{}, &tdk.ConfigurationError{Key: "url", Err: errors.Wrap(err, "parsing")}
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return tdk.ArtifactHandle{}, &tdk.ConfigurationError{Key: "url", Err: errors.Errorf("no file name in %q", rawurl)}
	}
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return tdk.ArtifactHandle{}, errors.Wrap(err, "creating download directory")
	}

	var body io.ReadCloser
	switch u.Scheme {
	case "http", "https":
		body, err = d.get(ctx, u)
	case "", "file":
		body, err = os.Open(filepath.FromSlash(u.Path))
		if os.IsNotExist(err) {
			err = tdk.Permanent(err)
		}
	default:
		err = &tdk.ConfigurationError{Key: "url", Err: errors.Errorf("unsupported scheme %q", u.Scheme)}
	}
	if err != nil {
		return tdk.ArtifactHandle{}, err
	}
	defer body.Close()

	final := filepath.Join(d.dir, name)
	start := time.Now()
	n, err := d.save(ctx, body, final)
	if err != nil {
		return tdk.ArtifactHandle{}, err
	}
	d.log.Printf("downloaded %s (%d bytes) to %s in %v", rawurl, n, final, time.Since(start))
	return tdk.LocalArtifact(final), nil
}

func (d *Downloader) get(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, tdk.Permanent(errors.Wrap(err, "creating request"))
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "getting via http")
	}
	if resp.StatusCode/100 == 2 {
		return resp.Body, nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	resp.Body.Close()
	err = errors.Errorf("GET %s: %s: %s", u.Redacted(), resp.Status, strings.TrimSpace(string(snippet)))
	if retryableStatus(resp.StatusCode) {
		return nil, err
	}
	return nil, tdk.Permanent(err)
}

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}

// save copies body to a temporary file beside final and renames it into
// place.
func (d *Downloader) save(ctx context.Context, body io.Reader, final string) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(final), "."+filepath.Base(final)+".*.part")
	if err != nil {
		return 0, errors.Wrap(err, "creating temp file")
	}
	n, err := io.Copy(tmp, contextReader{ctx: ctx, r: body})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), final)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return 0, errors.Wrap(err, "saving download")
	}
	return n, nil
}

// contextReader stops a copy once ctx is done. Local files ignore the
// request context otherwise.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
