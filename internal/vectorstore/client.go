// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package vectorstore is a client for the OpenAI Files and Vector
// Stores APIs: the remote index that mirrored articles are uploaded to
// and linked into for semantic search.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/optibot/kbsync/internal/httputil"
)

// defaultBaseURL is the production API endpoint. Tests substitute an
// httptest server via the BaseURL field.
const defaultBaseURL = "https://api.openai.com/v1"

const defaultStoreExpiryDays = 20

// Client calls the remote index API. The zero value is not usable; an
// APIKey is required.
type Client struct {
	HTTPClient *http.Client
	APIKey     string
	UserAgent  string

	// BaseURL overrides defaultBaseURL.
	BaseURL string

	// StoreExpiryDays is the last-active expiry for newly created
	// stores (default 20).
	StoreExpiryDays int
}

func (c *Client) base() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return defaultBaseURL
}

type storeObject struct {
	ID string `json:"id"`
}

type fileObject struct {
	ID string `json:"id"`
}

type storeFileObject struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	LastError *struct {
		Message string `json:"message"`
	} `json:"last_error"`
}

type listPage struct {
	Data    []fileObject `json:"data"`
	HasMore bool         `json:"has_more"`
	LastID  string       `json:"last_id"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// EnsureStore returns a usable vector store id. When trackedID is
// non-empty it is validated first and reused; a stale id falls through
// to creating a fresh store with the configured expiry.
func (c *Client) EnsureStore(ctx context.Context, name, trackedID string) (string, error) {
	if trackedID != "" {
		var vs storeObject
		if err := c.doJSON(ctx, http.MethodGet, "/vector_stores/"+trackedID, nil, &vs); err == nil {
			return vs.ID, nil
		} else {
			fmt.Fprintf(os.Stderr, "warning: tracked vector store %s not accessible, creating a new one: %v\n", trackedID, err)
		}
	}

	days := c.StoreExpiryDays
	if days <= 0 {
		days = defaultStoreExpiryDays
	}
	body := map[string]any{
		"name": name,
		"expires_after": map[string]any{
			"anchor": "last_active_at",
			"days":   days,
		},
	}

	var vs storeObject
	if err := c.doJSON(ctx, http.MethodPost, "/vector_stores", body, &vs); err != nil {
		return "", fmt.Errorf("creating vector store: %w", err)
	}
	return vs.ID, nil
}

// UploadFile uploads the file at path for assistants use and returns
// the remote file id.
func (c *Client) UploadFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("purpose", "assistants"); err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/files", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var fo fileObject
	if err := c.send(ctx, req, &fo); err != nil {
		return "", fmt.Errorf("uploading %s: %w", path, err)
	}
	return fo.ID, nil
}

// LinkFile attaches an uploaded file to a vector store. A file that
// lands in a non-terminal status is reported with a warning; only
// transport and API errors fail the call.
func (c *Client) LinkFile(ctx context.Context, storeID, fileID string) error {
	body := map[string]any{"file_id": fileID}

	var sf storeFileObject
	if err := c.doJSON(ctx, http.MethodPost, "/vector_stores/"+storeID+"/files", body, &sf); err != nil {
		return fmt.Errorf("linking file %s: %w", fileID, err)
	}

	switch sf.Status {
	case "", "completed", "in_progress":
	default:
		msg := ""
		if sf.LastError != nil {
			msg = ": " + sf.LastError.Message
		}
		fmt.Fprintf(os.Stderr, "warning: file %s linked to %s with status %s%s\n", fileID, storeID, sf.Status, msg)
	}
	return nil
}

// UnlinkFile detaches a file from a vector store.
func (c *Client) UnlinkFile(ctx context.Context, storeID, fileID string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/vector_stores/"+storeID+"/files/"+fileID, nil, nil); err != nil {
		return fmt.Errorf("unlinking file %s: %w", fileID, err)
	}
	return nil
}

// DeleteFile removes a file from remote storage.
func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/files/"+fileID, nil, nil); err != nil {
		return fmt.Errorf("deleting file %s: %w", fileID, err)
	}
	return nil
}

// ListStoreFiles returns the ids of all files linked to a store,
// draining pagination.
func (c *Client) ListStoreFiles(ctx context.Context, storeID string) ([]string, error) {
	return c.listAll(ctx, "/vector_stores/"+storeID+"/files")
}

// ListFiles returns the ids of all files in remote storage.
func (c *Client) ListFiles(ctx context.Context) ([]string, error) {
	return c.listAll(ctx, "/files")
}

func (c *Client) listAll(ctx context.Context, path string) ([]string, error) {
	var ids []string
	after := ""
	for {
		params := url.Values{"limit": {"100"}}
		if after != "" {
			params.Set("after", after)
		}

		var page listPage
		if err := c.doJSON(ctx, http.MethodGet, path+"?"+params.Encode(), nil, &page); err != nil {
			return nil, fmt.Errorf("listing %s: %w", path, err)
		}
		for _, f := range page.Data {
			ids = append(ids, f.ID)
		}
		if !page.HasMore || len(page.Data) == 0 {
			return ids, nil
		}
		after = page.LastID
		if after == "" {
			after = page.Data[len(page.Data)-1].ID
		}
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base()+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	return req, nil
}

// doJSON issues a request with an optional JSON body and decodes the
// JSON response into out (when out is non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(ctx, req, out)
}

func (c *Client) send(ctx context.Context, req *http.Request, out any) error {
	resp, err := httputil.DoWithRetry(ctx, c.HTTPClient, req, 0)
	if err != nil {
		return fmt.Errorf("index API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ae apiError
		if decodeErr := json.NewDecoder(resp.Body).Decode(&ae); decodeErr == nil && ae.Error.Message != "" {
			return fmt.Errorf("index API returned HTTP %d: %s", resp.StatusCode, ae.Error.Message)
		}
		return fmt.Errorf("index API returned HTTP %d", resp.StatusCode)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parsing index API response: %w", err)
	}
	return nil
}
