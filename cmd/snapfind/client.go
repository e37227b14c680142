package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/snapfind/internal/models"
)

// apiClient talks to a running snapfind server.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(baseURL, token string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

// do sends a request and decodes the JSON response into out. Any status other
// than want is returned as an error carrying the server's message.
func (c *apiClient) do(method, path, contentType string, body io.Reader, want int, out any) error {
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var e struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) postJSON(path string, in any, want int, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.do(http.MethodPost, path, "application/json", bytes.NewReader(body), want, out)
}

func (c *apiClient) search(req *models.SearchRequest) (*models.SearchResponse, error) {
	var resp models.SearchResponse
	if err := c.postJSON("/api/v1/search", req, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) upload(eventName, eventDate, folderName string, paths []string) (*models.UploadResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("event_name", eventName)
	_ = mw.WriteField("event_date", eventDate)
	_ = mw.WriteField("folderName", folderName)
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		part, err := mw.CreateFormFile("files", filepath.Base(p))
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(data); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	var result models.UploadResult
	if err := c.do(http.MethodPost, "/api/v1/photos", mw.FormDataContentType(), &body, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *apiClient) events() ([]*models.EventSummary, error) {
	var out struct {
		Events []*models.EventSummary `json:"events"`
	}
	if err := c.do(http.MethodGet, "/api/v1/events", "", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

func (c *apiClient) deleteEvent(name string) (int64, error) {
	var out struct {
		Deleted int64 `json:"deleted"`
	}
	err := c.do(http.MethodDelete, "/api/v1/events/"+url.PathEscape(name), "", nil, http.StatusOK, &out)
	return out.Deleted, err
}

func (c *apiClient) status() (map[string]any, error) {
	var out map[string]any
	if err := c.do(http.MethodGet, "/api/v1/status", "", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *apiClient) watchList() ([]string, error) {
	var out struct {
		Directories []string `json:"directories"`
	}
	if err := c.do(http.MethodGet, "/api/v1/watch/directories", "", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Directories, nil
}

func (c *apiClient) watchAdd(path string, syncExisting bool) error {
	return c.postJSON("/api/v1/watch/directories", map[string]any{"path": path, "sync": syncExisting}, http.StatusCreated, nil)
}

func (c *apiClient) watchRemove(path string) error {
	return c.do(http.MethodDelete, "/api/v1/watch/directories?path="+url.QueryEscape(path), "", nil, http.StatusOK, nil)
}
