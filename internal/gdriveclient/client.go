// Package gdriveclient speaks the subset of the Google Drive v3 API
// exastash needs: resumable uploads and authenticated downloads of
// opaque, already-encrypted file bodies. It follows the same shape as
// onedriver's fs/graph package (a small Request helper wrapping
// net/http, with typed convenience wrappers) adapted to Drive's
// resumable-upload handshake instead of Graph's single-shot PUT.
package gdriveclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
)

// uploadURL and downloadURLTemplate are vars rather than consts so tests
// can point them at an httptest server instead of the real Drive API.
var uploadURL = "https://www.googleapis.com/upload/drive/v3/files" +
	"?uploadType=resumable&supportsAllDrives=true&fields=kind,id,name,parents,size,md5Checksum"

var downloadURLTemplate = "https://www.googleapis.com/drive/v3/files/%s?alt=media&supportsAllDrives=true"

// Client performs authenticated HTTP calls against the Drive API. It holds
// no credentials itself; every call takes a bearer access token, since a
// single exastash process juggles tokens for many gdrive_owners.
type Client struct {
	HTTP *http.Client
}

// New returns a Client with the connection timeouts onedriver's graph.Request uses.
func New() *Client {
	return &Client{
		HTTP: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
	}
}

// CreateMetadata is the initial resumable-upload request body: the name
// and parent folder of the file about to be created.
type CreateMetadata struct {
	Name     string   `json:"name"`
	Parents  []string `json:"parents"`
	MimeType string   `json:"mimeType"`
}

// StartResumableUpload begins a resumable upload session for a file of
// the given size and returns the session's upload URL, taken from the
// response's Location header.
func (c *Client) StartResumableUpload(ctx context.Context, accessToken, parent, filename string, size int64) (string, error) {
	metadata := CreateMetadata{Name: filename, Parents: []string{parent}, MimeType: "application/octet-stream"}
	body, err := json.Marshal(metadata)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Upload-Content-Type", "application/octet-stream")
	req.Header.Set("X-Upload-Content-Length", fmt.Sprint(size))

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("gdriveclient: starting resumable upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("gdriveclient: initial upload request failed with HTTP %d: %s", resp.StatusCode, errBody)
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("gdriveclient: did not get Location header in response to initial upload request")
	}
	return location, nil
}

// CreateResponse is Drive's response body after a resumable upload
// finishes, as requested by the fields= query parameter above.
type CreateResponse struct {
	Kind    string   `json:"kind"`
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Parents []string `json:"parents"`
	Size    string   `json:"size"`
	MD5     string   `json:"md5Checksum"`
}

// UploadBody PUTs content (size bytes, already known from
// StartResumableUpload) to uploadURL and returns Drive's parsed
// response describing the object it created.
func (c *Client) UploadBody(ctx context.Context, uploadURL string, size int64, content io.Reader) (*CreateResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, content)
	if err != nil {
		return nil, err
	}
	req.ContentLength = size
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gdriveclient: uploading body: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gdriveclient: upload request failed with HTTP %d: %s", resp.StatusCode, respBody)
	}
	var out CreateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("gdriveclient: parsing create response: %w", err)
	}
	if out.Kind != "drive#file" {
		return nil, fmt.Errorf("gdriveclient: expected Google to create object with kind=drive#file, got %q", out.Kind)
	}
	return &out, nil
}

// Download issues an authenticated GET for a Drive file's content and
// returns the raw HTTP response for the caller to validate and stream;
// the caller is responsible for closing resp.Body.
func (c *Client) Download(ctx context.Context, accessToken, fileID string) (*http.Response, error) {
	u := fmt.Sprintf(downloadURLTemplate, url.PathEscape(fileID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gdriveclient: requesting file %s: %w", fileID, err)
	}
	log.Debug().Str("file_id", fileID).Int("status", resp.StatusCode).Msg("gdrive download response")
	return resp, nil
}

// Retryable reports whether status is one Google Drive is known to
// return transiently, worth retrying with a different access token.
func Retryable(status int) bool {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
		http.StatusNotFound, http.StatusInternalServerError, http.StatusServiceUnavailable:
		return true
	default:
		return false
	}
}
