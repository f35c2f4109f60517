package gdriveclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRetryable(t *testing.T) {
	cases := []struct {
		status int
		want   bool
	}{
		{http.StatusOK, false},
		{http.StatusBadRequest, true},
		{http.StatusUnauthorized, true},
		{http.StatusForbidden, true},
		{http.StatusNotFound, true},
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusTeapot, false},
	}
	for _, c := range cases {
		if got := Retryable(c.status); got != c.want {
			t.Errorf("Retryable(%d) = %v, want %v", c.status, got, c.want)
		}
	}
}

func TestUploadBodySuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "hello world" {
			t.Errorf("unexpected body: %q", body)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"kind":"drive#file","id":"abc123","name":"f","size":"11","md5Checksum":"deadbeef"}`)
	}))
	defer srv.Close()

	c := New()
	resp, err := c.UploadBody(context.Background(), srv.URL, 11, strings.NewReader("hello world"))
	if err != nil {
		t.Fatalf("UploadBody: %v", err)
	}
	if resp.ID != "abc123" || resp.Kind != "drive#file" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestUploadBodyRejectsWrongKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"kind":"drive#something-else","id":"abc123"}`)
	}))
	defer srv.Close()

	c := New()
	_, err := c.UploadBody(context.Background(), srv.URL, 5, strings.NewReader("hello"))
	if err == nil {
		t.Fatal("expected an error for an unexpected kind field")
	}
}

func TestUploadBodyHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, "quota exceeded")
	}))
	defer srv.Close()

	c := New()
	_, err := c.UploadBody(context.Background(), srv.URL, 5, strings.NewReader("hello"))
	if err == nil {
		t.Fatal("expected an error for an HTTP error status")
	}
}

func TestStartResumableUploadReturnsLocationHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("unexpected Authorization header: %q", got)
		}
		if got := r.Header.Get("X-Upload-Content-Length"); got != "123" {
			t.Errorf("unexpected X-Upload-Content-Length header: %q", got)
		}
		w.Header().Set("Location", "https://example.com/upload-session/xyz")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	restore := uploadURL
	uploadURL = srv.URL
	defer func() { uploadURL = restore }()

	c := New()
	loc, err := c.StartResumableUpload(context.Background(), "test-token", "parent-id", "file.bin", 123)
	if err != nil {
		t.Fatalf("StartResumableUpload: %v", err)
	}
	if loc != "https://example.com/upload-session/xyz" {
		t.Errorf("unexpected location: %q", loc)
	}
}

func TestStartResumableUploadMissingLocationIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	restore := uploadURL
	uploadURL = srv.URL
	defer func() { uploadURL = restore }()

	c := New()
	if _, err := c.StartResumableUpload(context.Background(), "test-token", "parent-id", "file.bin", 123); err == nil {
		t.Fatal("expected an error when the Location header is absent")
	}
}

func TestDownloadSetsAuthorizationHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer dl-token" {
			t.Errorf("unexpected Authorization header: %q", got)
		}
		io.WriteString(w, "file-bytes")
	}))
	defer srv.Close()

	restore := downloadURLTemplate
	downloadURLTemplate = srv.URL + "/%s"
	defer func() { downloadURLTemplate = restore }()

	c := New()
	resp, err := c.Download(context.Background(), "dl-token", "some-file-id")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "file-bytes" {
		t.Errorf("unexpected body: %q", body)
	}
}
