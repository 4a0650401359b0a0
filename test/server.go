package test

import (
	"net/http"
	"net/http/httptest"
	"path"
	"path/filepath"
	"sync"
	"testing"

	"github.com/tripdata/tdk"
	"github.com/tripdata/tdk/parquet"
)

// FileServer serves parquet files by base name, like the trip record CDN.
type FileServer struct {
	*httptest.Server

	t        *testing.T
	dir      string
	mu       sync.Mutex
	failures map[string]int
	requests map[string]int
}

// NewFileServer starts a FileServer which is closed when the test ends.
func NewFileServer(t *testing.T) *FileServer {
	t.Helper()
	s := &FileServer{
		t:        t,
		dir:      t.TempDir(),
		failures: make(map[string]int),
		requests: make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Add writes ds to be served as name.
func (s *FileServer) Add(name string, ds *tdk.Dataset) {
	s.t.Helper()
	ErrNil(s.t, parquet.NewWriter().WriteFile(filepath.Join(s.dir, name), ds), "writing "+name)
}

// Fail makes the next n requests for name fail with 503.
func (s *FileServer) Fail(name string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[name] = n
}

// Requests returns how many times name was requested.
func (s *FileServer) Requests(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[name]
}

// FileURL returns the URL of name.
func (s *FileServer) FileURL(name string) string {
	return s.Server.URL + "/" + name
}

func (s *FileServer) serve(w http.ResponseWriter, r *http.Request) {
	name := path.Base(r.URL.Path)
	s.mu.Lock()
	s.requests[name]++
	fail := s.failures[name] > 0
	if fail {
		s.failures[name]--
	}
	s.mu.Unlock()
	if fail {
		http.Error(w, "try again", http.StatusServiceUnavailable)
		return
	}
	http.ServeFile(w, r, filepath.Join(s.dir, name))
}
