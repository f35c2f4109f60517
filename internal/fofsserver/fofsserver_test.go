package fofsserver

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iafisher/exastash/internal/metadata"
)

func TestParseNaturalNumber(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
		want    int64
	}{
		{"1", false, 1},
		{"42", false, 42},
		{"007", true, 0},
		{"0", true, 0},
		{"+5", true, 0},
		{"", true, 0},
		{"-1", true, 0},
		{"abc", true, 0},
	}
	for _, c := range cases {
		got, err := parseNaturalNumber[int64](c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("parseNaturalNumber(%q) = %d, nil; want an error", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseNaturalNumber(%q) unexpected error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("parseNaturalNumber(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestHandlerSetsServerHeader(t *testing.T) {
	srv := &Server{}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	srv.Handler().ServeHTTP(rr, req)

	if got := rr.Header().Get("Server"); got != serverHeader {
		t.Errorf("Server header = %q, want %q", got, serverHeader)
	}
}

func TestRootRouteReturnsHostname(t *testing.T) {
	srv := &Server{}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	want := "es web on " + metadata.Hostname()
	if rr.Body.String() != want {
		t.Errorf("body = %q, want %q", rr.Body.String(), want)
	}
}

func TestRootRouteRejectsNonGet(t *testing.T) {
	srv := &Server{}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for a non-GET to /", rr.Code)
	}
}

func TestFofsRouteTrailingSlashAlways404s(t *testing.T) {
	srv := &Server{}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/fofs/1/2/3/", nil)
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for a trailing slash", rr.Code)
	}
}

func TestFofsRouteRejectsMalformedSegmentCount(t *testing.T) {
	srv := &Server{}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/fofs/1/2", nil)
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for too few path segments", rr.Code)
	}
}

func TestFofsRouteRejectsNonNaturalSegment(t *testing.T) {
	srv := &Server{}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/fofs/007/2/3", nil)
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for a leading-zero pile id", rr.Code)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	srv := &Server{}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestHandleFofsGetServesFileFromCachedPilePath(t *testing.T) {
	dir := t.TempDir()
	cellDir := filepath.Join(dir, "5")
	if err := os.MkdirAll(cellDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cellDir, "9"), []byte("file contents"), 0o644); err != nil {
		t.Fatal(err)
	}

	srv := &Server{}
	srv.pilePaths.Store(int32(1), dir)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/fofs/1/5/9", nil)
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "file contents") {
		t.Errorf("body = %q, want it to contain the file contents", rr.Body.String())
	}
	if got := rr.Header().Get("Content-Type"); got != "application/octet-stream" {
		t.Errorf("Content-Type = %q, want application/octet-stream", got)
	}
}

func TestHandleFofsGetMissingFileIs404(t *testing.T) {
	dir := t.TempDir()
	srv := &Server{}
	srv.pilePaths.Store(int32(1), dir)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/fofs/1/5/9", nil)
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for a file that isn't on disk", rr.Code)
	}
}
