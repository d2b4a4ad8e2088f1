package daemon

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"stillcast/internal/logging"
	"stillcast/internal/supervisor"
	"stillcast/internal/tasks"
	"stillcast/internal/testsupport"
)

func newTestServer(t *testing.T) (*httptest.Server, *supervisor.Supervisor) {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedFFmpeg())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	sup := supervisor.New(cfg, store, logging.NewNop())
	t.Cleanup(sup.Shutdown)

	srv := newAPIServer(cfg, sup, logging.NewNop())
	ts := httptest.NewServer(srv.server.Handler)
	t.Cleanup(ts.Close)
	return ts, sup
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func createTask(t *testing.T, ts *httptest.Server, name string) tasks.Status {
	t.Helper()

	resp := postJSON(t, ts.URL+"/api/tasks", createTaskRequest{Name: name, StreamURL: "rtsp://localhost:8554/" + name})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create task: status %d", resp.StatusCode)
	}
	return decodeBody[tasks.Status](t, resp)
}

func uploadImage(t *testing.T, ts *httptest.Server, ref, filename string, data []byte) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	resp, err := http.Post(ts.URL+"/api/tasks/"+ref+"/images", writer.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	return resp
}

func TestStatusEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	status := decodeBody[daemonStatusResponse](t, resp)
	if !status.Running || status.PID == 0 {
		t.Fatalf("unexpected status payload: %+v", status)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	ts, _ := newTestServer(t)

	createTask(t, ts, "cam1")

	resp := postJSON(t, ts.URL+"/api/tasks", createTaskRequest{Name: "cam1", StreamURL: "rtsp://h/p"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate name: expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/api/tasks", createTaskRequest{Name: "cam2", StreamURL: "http://h/p"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad url: expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestImageUploadAndList(t *testing.T) {
	ts, _ := newTestServer(t)
	createTask(t, ts, "cam1")

	resp := uploadImage(t, ts, "cam1", "a.png", testsupport.PNGBytes(t, 64, 48))
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("upload: expected 201, got %d: %s", resp.StatusCode, body)
	}
	resp.Body.Close()

	resp = uploadImage(t, ts, "cam1", "odd.png", testsupport.PNGBytes(t, 32, 32))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("mismatched upload: expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = uploadImage(t, ts, "cam1", "b.png", testsupport.PNGBytes(t, 64, 48))
	resp.Body.Close()

	listResp, err := http.Get(ts.URL + "/api/tasks/cam1/images")
	if err != nil {
		t.Fatalf("list images: %v", err)
	}
	list := decodeBody[imageListResponse](t, listResp)
	if len(list.Images) != 2 || list.Images[0] != "a.png" || list.Images[1] != "b.png" {
		t.Fatalf("unexpected image list: %+v", list)
	}
}

func TestLifecycleEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)
	createTask(t, ts, "cam1")

	resp := postJSON(t, ts.URL+"/api/tasks/cam1/start", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("start with no images: expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	for _, name := range []string{"a.png", "b.png", "c.png"} {
		resp := uploadImage(t, ts, "cam1", name, testsupport.PNGBytes(t, 64, 48))
		resp.Body.Close()
	}

	resp = postJSON(t, ts.URL+"/api/tasks/cam1/start", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start: expected 200, got %d", resp.StatusCode)
	}
	status := decodeBody[tasks.Status](t, resp)
	if !status.Running {
		t.Fatalf("expected running task, got %+v", status)
	}

	resp = postJSON(t, ts.URL+"/api/tasks/cam1/start", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("double start: expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/api/tasks/cam1/next", nil)
	cursor := decodeBody[cursorResponse](t, resp)
	if cursor.Cursor != 1 {
		t.Fatalf("next: expected cursor 1, got %d", cursor.Cursor)
	}

	resp = postJSON(t, ts.URL+"/api/tasks/cam1/goto", gotoRequest{Image: "c.png"})
	cursor = decodeBody[cursorResponse](t, resp)
	if cursor.Cursor != 2 {
		t.Fatalf("goto: expected cursor 2, got %d", cursor.Cursor)
	}

	idx := 0
	resp = postJSON(t, ts.URL+"/api/tasks/cam1/goto", gotoRequest{Index: &idx})
	cursor = decodeBody[cursorResponse](t, resp)
	if cursor.Image != "a.png" {
		t.Fatalf("goto index: expected a.png, got %q", cursor.Image)
	}

	resp = postJSON(t, ts.URL+"/api/tasks/cam1/stop", nil)
	status = decodeBody[tasks.Status](t, resp)
	if status.Running {
		t.Fatalf("expected stopped task, got %+v", status)
	}

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/tasks/cam1", nil)
	if err != nil {
		t.Fatalf("build delete request: %v", err)
	}
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", delResp.StatusCode)
	}

	getResp, err := http.Get(ts.URL + "/api/tasks/cam1")
	if err != nil {
		t.Fatalf("get deleted: %v", err)
	}
	getResp.Body.Close()
	if getResp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for deleted task, got %d", getResp.StatusCode)
	}
}

func TestRemoveImageEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	createTask(t, ts, "cam1")

	for _, name := range []string{"a.png", "b.png"} {
		resp := uploadImage(t, ts, "cam1", name, testsupport.PNGBytes(t, 64, 48))
		resp.Body.Close()
	}

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/tasks/cam1/images/a.png", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete image: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete image: expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.DefaultClient.Do(req.Clone(req.Context()))
	if err != nil {
		t.Fatalf("delete image again: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for missing image, got %d: %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), "image not found") {
		t.Fatalf("expected image not found message, got %s", body)
	}
}

func TestServeImageBytes(t *testing.T) {
	ts, _ := newTestServer(t)
	createTask(t, ts, "cam1")

	payload := testsupport.PNGBytes(t, 64, 48)
	resp := uploadImage(t, ts, "cam1", "a.png", payload)
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/api/tasks/cam1/images/a.png")
	if err != nil {
		t.Fatalf("get image: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get image: expected 200, got %d", resp.StatusCode)
	}
	if !bytes.Equal(body, payload) {
		t.Fatalf("served bytes differ from upload: %d vs %d bytes", len(body), len(payload))
	}

	resp, err = http.Get(ts.URL + "/api/tasks/cam1/images/missing.png")
	if err != nil {
		t.Fatalf("get missing image: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for missing image, got %d", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t)
	createTask(t, ts, "cam1")

	for path, method := range map[string]string{
		"/api/status":          http.MethodPost,
		"/api/tasks/cam1":      http.MethodPut,
		"/api/tasks/cam1/next": http.MethodGet,
	} {
		req, err := http.NewRequest(method, ts.URL+path, nil)
		if err != nil {
			t.Fatalf("build request: %v", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", method, path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Fatalf("%s %s: expected 405, got %d", method, path, resp.StatusCode)
		}
	}
}
