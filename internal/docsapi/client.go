// Package docsapi is a minimal REST client for the Google Drive v3 and Docs v1
// endpoints used by template-clone rendering. Authentication comes from the
// *http.Client it is given.
package docsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	DefaultDriveURL = "https://www.googleapis.com/drive/v3"
	DefaultDocsURL  = "https://docs.googleapis.com/v1"

	// PDFMime is the export format requested for rendered documents.
	PDFMime = "application/pdf"

	maxExportBytes = 50 << 20
)

// ErrNotFound is returned for 404 responses.
var ErrNotFound = errors.New("docsapi: not found")

// APIError is a non-2xx response from the document API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("docsapi: status %d: %s", e.Status, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// File is the subset of Drive file metadata the renderer reads.
type File struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	MimeType    string            `json:"mimeType,omitempty"`
	ExportLinks map[string]string `json:"exportLinks,omitempty"`
}

// Replacement is one case-insensitive replace-all operation.
type Replacement struct {
	Find    string
	Replace string
}

// Client calls the Drive and Docs REST APIs.
type Client struct {
	httpClient *http.Client
	driveURL   string
	docsURL    string
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURLs points the client at alternate endpoints (tests, proxies).
func WithBaseURLs(driveURL, docsURL string) Option {
	return func(c *Client) {
		c.driveURL = strings.TrimRight(driveURL, "/")
		c.docsURL = strings.TrimRight(docsURL, "/")
	}
}

// New constructs a Client over an authenticated HTTP client.
func New(httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{httpClient: httpClient, driveURL: DefaultDriveURL, docsURL: DefaultDocsURL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CopyFile copies fileID to a new file named name inside parentID.
func (c *Client) CopyFile(ctx context.Context, fileID, name, parentID string) (File, error) {
	body := map[string]any{"name": name}
	if parentID != "" {
		body["parents"] = []string{parentID}
	}
	endpoint := fmt.Sprintf("%s/files/%s/copy?supportsAllDrives=true&fields=id,name,mimeType", c.driveURL, url.PathEscape(fileID))
	var out File
	if err := c.doJSON(ctx, http.MethodPost, endpoint, body, &out); err != nil {
		return File{}, fmt.Errorf("copy file: %w", err)
	}
	if out.ID == "" {
		return File{}, errors.New("copy file: response missing id")
	}
	return out, nil
}

type batchUpdateRequest struct {
	Requests []batchRequest `json:"requests"`
}

type batchRequest struct {
	ReplaceAllText *replaceAllText `json:"replaceAllText,omitempty"`
}

type replaceAllText struct {
	ContainsText substringMatch `json:"containsText"`
	ReplaceText  string         `json:"replaceText"`
}

type substringMatch struct {
	Text      string `json:"text"`
	MatchCase bool   `json:"matchCase"`
}

// ReplaceAllText issues every replacement in a single batchUpdate.
func (c *Client) ReplaceAllText(ctx context.Context, documentID string, repls []Replacement) error {
	if len(repls) == 0 {
		return nil
	}
	req := batchUpdateRequest{Requests: make([]batchRequest, 0, len(repls))}
	for _, r := range repls {
		req.Requests = append(req.Requests, batchRequest{ReplaceAllText: &replaceAllText{
			ContainsText: substringMatch{Text: r.Find, MatchCase: false},
			ReplaceText:  r.Replace,
		}})
	}
	endpoint := fmt.Sprintf("%s/documents/%s:batchUpdate", c.docsURL, url.PathEscape(documentID))
	if err := c.doJSON(ctx, http.MethodPost, endpoint, req, nil); err != nil {
		return fmt.Errorf("batch update: %w", err)
	}
	return nil
}

// GetFile reads file metadata including export links.
func (c *Client) GetFile(ctx context.Context, fileID string) (File, error) {
	endpoint := fmt.Sprintf("%s/files/%s?supportsAllDrives=true&fields=id,name,mimeType,exportLinks", c.driveURL, url.PathEscape(fileID))
	var out File
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return File{}, fmt.Errorf("get file: %w", err)
	}
	return out, nil
}

// Export downloads the file converted to mimeType.
func (c *Client) Export(ctx context.Context, fileID, mimeType string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/files/%s/export?mimeType=%s", c.driveURL, url.PathEscape(fileID), url.QueryEscape(mimeType))
	b, err := c.download(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return b, nil
}

// Download fetches an export link with the client's credentials.
func (c *Client) Download(ctx context.Context, link string) ([]byte, error) {
	b, err := c.download(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	return b, nil
}

func (c *Client) download(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, parseError(resp)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxExportBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxExportBytes {
		return nil, fmt.Errorf("export exceeds %d bytes", maxExportBytes)
	}
	return body, nil
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, in, out any) error {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := strings.TrimSpace(string(body))
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		msg = env.Error.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
