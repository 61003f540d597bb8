package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/starford/trevanbox/internal/inference"
	"github.com/starford/trevanbox/internal/noteservice"
	"github.com/starford/trevanbox/internal/pipeline"
	"github.com/starford/trevanbox/internal/sse"
	"github.com/starford/trevanbox/internal/testutil"
)

// testEnv sets up a temp vault, ledger, processor, service and router.
func testEnv(t *testing.T, authToken string) (http.Handler, string) {
	t.Helper()
	return testEnvWithSSE(t, authToken, nil)
}

func testEnvWithSSE(t *testing.T, authToken string, broker *sse.Broker) (http.Handler, string) {
	t.Helper()
	vaultDir, store := testutil.TestVault(t)
	db := testutil.TestLedger(t)

	ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"qwen3:8b"}]}`))
	}))
	t.Cleanup(ollama.Close)
	client := inference.NewClient(inference.Config{BaseURL: ollama.URL, Model: "qwen3:8b", Timeout: time.Second})

	opts := []pipeline.Option{pipeline.WithLedger(db)}
	var sseHandler http.Handler
	if broker != nil {
		opts = append(opts, pipeline.WithNotifier(broker))
		sseHandler = broker
	}
	proc := testutil.TestProcessor(t, vaultDir, store, testutil.StubSuggester{}, opts...)
	svc := noteservice.NewService(proc, client, db, store, testutil.Directories)
	return NewRouter(svc, authToken != "", authToken, sseHandler), vaultDir
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestStatus(t *testing.T) {
	router, _ := testEnv(t, "")
	w := doJSON(t, router, http.MethodGet, "/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp noteservice.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Reachable || !resp.ModelInstalled {
		t.Errorf("resp = %+v", resp)
	}
}

func TestProcessAndHistory(t *testing.T) {
	router, vault := testEnv(t, "")
	note := testutil.WriteNote(t, vault, "readwise/book.md", "---\ntags: readwise\n---\nhighlights")

	w := doJSON(t, router, http.MethodPost, "/process", ProcessRequest{Dirs: []string{"readwise", "follow"}})
	if w.Code != http.StatusOK {
		t.Fatalf("process status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp ProcessResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Directories) != 2 {
		t.Fatalf("directories = %+v", resp.Directories)
	}
	rw := resp.Directories[0]
	if rw.Succeeded != 1 || rw.Results[0].Title != "生成的标题" || !rw.Results[0].Changed {
		t.Errorf("readwise = %+v", rw)
	}
	if resp.Directories[1].Error == "" {
		t.Error("missing follow directory should be reported")
	}

	data, _ := os.ReadFile(note)
	if !strings.Contains(string(data), "title: 生成的标题") || !strings.Contains(string(data), "- ai") {
		t.Errorf("note not rewritten: %s", data)
	}

	w = doJSON(t, router, http.MethodGet, "/history?limit=5", nil)
	var hist HistoryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &hist); err != nil {
		t.Fatal(err)
	}
	if len(hist.Entries) != 1 || hist.Entries[0].File != note {
		t.Errorf("history = %+v", hist.Entries)
	}
}

func TestProcess_BadRequests(t *testing.T) {
	router, _ := testEnv(t, "")

	req := httptest.NewRequest(http.MethodPost, "/process", strings.NewReader("{"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON status = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/process", ProcessRequest{Dirs: []string{"../../etc"}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("traversal status = %d", w.Code)
	}
}

func TestPreview(t *testing.T) {
	router, vault := testEnv(t, "")
	original := "---\ntitle: 原标题\n---\nbody"
	note := testutil.WriteNote(t, vault, "follow/a.md", original)

	w := doJSON(t, router, http.MethodPost, "/preview", PreviewRequest{Path: "follow/a.md"})
	if w.Code != http.StatusOK {
		t.Fatalf("preview status = %d, body = %s", w.Code, w.Body.String())
	}
	var p noteservice.Preview
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(p.Header, "type: article") || !strings.Contains(p.Header, "- follow") {
		t.Errorf("header = %s", p.Header)
	}
	data, _ := os.ReadFile(note)
	if string(data) != original {
		t.Error("preview modified the note")
	}

	w = doJSON(t, router, http.MethodPost, "/preview", PreviewRequest{Path: "follow/none.md"})
	if w.Code != http.StatusNotFound {
		t.Errorf("missing note status = %d", w.Code)
	}
}

func TestDirectories(t *testing.T) {
	router, _ := testEnv(t, "")
	w := doJSON(t, router, http.MethodGet, "/directories", nil)
	var resp DirectoriesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Directories) != 2 || resp.Directories[0].Name != "readwise" {
		t.Errorf("directories = %+v", resp.Directories)
	}
}

func TestAuthMiddleware(t *testing.T) {
	router, _ := testEnv(t, "secret")

	w := doJSON(t, router, http.MethodGet, "/status", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token status = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/status?access_token=secret", nil)
	if w.Code != http.StatusOK {
		t.Errorf("query token status = %d", w.Code)
	}
	w = doJSON(t, router, http.MethodPost, "/process?access_token=secret", map[string]any{"dirs": []string{"readwise"}})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("query token on POST status = %d", w.Code)
	}
	if w.Header().Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate header")
	}
}

func TestEventsStreamProcessing(t *testing.T) {
	broker := sse.NewBroker(time.Second)
	defer broker.Close()
	router, vault := testEnvWithSSE(t, "", broker)
	testutil.WriteNote(t, vault, "readwise/a.md", "x")

	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	defer resp.Body.Close()

	eventsCh := make(chan string, 1)
	go func() {
		var sb strings.Builder
		buf := make([]byte, 4096)
		for {
			n, err := resp.Body.Read(buf)
			sb.Write(buf[:n])
			if strings.Contains(sb.String(), "event: "+sse.EventBatchCompleted) || err != nil {
				eventsCh <- sb.String()
				return
			}
		}
	}()

	time.Sleep(50 * time.Millisecond)
	body, _ := json.Marshal(ProcessRequest{Dirs: []string{"readwise"}, DryRun: true})
	if _, err := http.Post(srv.URL+"/process", "application/json", bytes.NewReader(body)); err != nil {
		t.Fatalf("process: %v", err)
	}

	select {
	case got := <-eventsCh:
		if !strings.Contains(got, "event: "+sse.EventNoteProcessed) {
			t.Errorf("stream = %q", got)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for events")
	}
}
