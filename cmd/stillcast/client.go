package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"stillcast/internal/tasks"
)

// apiClient talks to the daemon's HTTP API.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(addr string) *apiClient {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

type daemonStatus struct {
	Running   bool   `json:"running"`
	PID       int    `json:"pid"`
	TaskCount int    `json:"task_count"`
	Version   string `json:"version"`
}

type taskList struct {
	Tasks []tasks.Status `json:"tasks"`
}

type imageList struct {
	Images []string `json:"images"`
	Cursor int      `json:"cursor"`
}

type cursorReply struct {
	Cursor int    `json:"cursor"`
	Image  string `json:"image"`
}

func (c *apiClient) DaemonStatus() (daemonStatus, error) {
	var out daemonStatus
	err := c.do(http.MethodGet, "/api/status", nil, "", &out)
	return out, err
}

func (c *apiClient) List() ([]tasks.Status, error) {
	var out taskList
	if err := c.do(http.MethodGet, "/api/tasks", nil, "", &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

func (c *apiClient) Create(name, streamURL string) (tasks.Status, error) {
	payload := map[string]string{"name": name, "stream_url": streamURL}
	var out tasks.Status
	err := c.doJSON(http.MethodPost, "/api/tasks", payload, &out)
	return out, err
}

func (c *apiClient) Status(ref string) (tasks.Status, error) {
	var out tasks.Status
	err := c.do(http.MethodGet, c.taskPath(ref), nil, "", &out)
	return out, err
}

func (c *apiClient) Delete(ref string) error {
	return c.do(http.MethodDelete, c.taskPath(ref), nil, "", nil)
}

func (c *apiClient) Start(ref string) (tasks.Status, error) {
	var out tasks.Status
	err := c.do(http.MethodPost, c.taskPath(ref)+"/start", nil, "", &out)
	return out, err
}

func (c *apiClient) Stop(ref string) (tasks.Status, error) {
	var out tasks.Status
	err := c.do(http.MethodPost, c.taskPath(ref)+"/stop", nil, "", &out)
	return out, err
}

func (c *apiClient) Restart(ref string) (tasks.Status, error) {
	var out tasks.Status
	err := c.do(http.MethodPost, c.taskPath(ref)+"/restart", nil, "", &out)
	return out, err
}

func (c *apiClient) Next(ref string) (cursorReply, error) {
	var out cursorReply
	err := c.do(http.MethodPost, c.taskPath(ref)+"/next", nil, "", &out)
	return out, err
}

func (c *apiClient) Prev(ref string) (cursorReply, error) {
	var out cursorReply
	err := c.do(http.MethodPost, c.taskPath(ref)+"/prev", nil, "", &out)
	return out, err
}

func (c *apiClient) GotoIndex(ref string, index int) (cursorReply, error) {
	var out cursorReply
	err := c.doJSON(http.MethodPost, c.taskPath(ref)+"/goto", map[string]int{"index": index}, &out)
	return out, err
}

func (c *apiClient) GotoImage(ref, image string) (cursorReply, error) {
	var out cursorReply
	err := c.doJSON(http.MethodPost, c.taskPath(ref)+"/goto", map[string]string{"image": image}, &out)
	return out, err
}

func (c *apiClient) Images(ref string) (imageList, error) {
	var out imageList
	err := c.do(http.MethodGet, c.taskPath(ref)+"/images", nil, "", &out)
	return out, err
}

func (c *apiClient) Upload(ref, filename string, data []byte) (imageList, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return imageList{}, fmt.Errorf("build upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return imageList{}, fmt.Errorf("build upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return imageList{}, fmt.Errorf("build upload: %w", err)
	}

	var out imageList
	err = c.do(http.MethodPost, c.taskPath(ref)+"/images", &buf, writer.FormDataContentType(), &out)
	return out, err
}

func (c *apiClient) RemoveImage(ref, image string) error {
	return c.do(http.MethodDelete, c.taskPath(ref)+"/images/"+url.PathEscape(image), nil, "", nil)
}

func (c *apiClient) taskPath(ref string) string {
	return "/api/tasks/" + url.PathEscape(ref)
}

func (c *apiClient) doJSON(method, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.do(method, path, bytes.NewReader(body), "application/json", out)
}

func (c *apiClient) do(method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var payload struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&payload); decodeErr == nil && payload.Error != "" {
			return fmt.Errorf("%s", payload.Error)
		}
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
