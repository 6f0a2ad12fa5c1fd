package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/mirror/internal/config"
	"github.com/kalambet/mirror/internal/linker"
	"github.com/kalambet/mirror/internal/pipeline"
	"github.com/kalambet/mirror/internal/storage"
)

type recordedRequest struct {
	Method      string
	Path        string
	Body        string
	Auth        string
	ContentType string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method:      r.Method,
			Path:        r.URL.RequestURI(),
			Body:        body.String(),
			Auth:        r.Header.Get("Authorization"),
			ContentType: r.Header.Get("Content-Type"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"thought not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestCaptureText(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /thoughts": `{"thought":{"id":"th-123","content":"call mom"},"tags":["family"],"actions":[],"links":[]}`,
	})

	out, err := captureText(ctx, ts.client(), "call mom")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Thought.ID != "th-123" {
		t.Errorf("thought id = %q, want th-123", out.Thought.ID)
	}
	if len(out.Tags) != 1 || out.Tags[0] != "family" {
		t.Errorf("tags = %v, want [family]", out.Tags)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	req := ts.requests[0]
	if req.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", req.Auth)
	}
	if req.ContentType != "application/json" {
		t.Errorf("content type = %q", req.ContentType)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		t.Fatalf("invalid request body: %v", err)
	}
	if body["content"] != "call mom" || body["source"] != storage.SourceTextNote {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestCaptureDocument(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /documents": `{"thought":{"id":"th-doc","source":"document","document_file":"my notes.md"}}`,
	})

	out, err := captureDocument(ctx, ts.client(), "my notes.md", []byte("# Notes\nbody"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Thought.DocumentFile != "my notes.md" {
		t.Errorf("document file = %q", out.Thought.DocumentFile)
	}

	req := ts.requests[0]
	if req.Path != "/documents?filename=my+notes.md" {
		t.Errorf("path = %q", req.Path)
	}
	if req.Body != "# Notes\nbody" {
		t.Errorf("body = %q, want raw file bytes", req.Body)
	}
	if req.ContentType != "application/octet-stream" {
		t.Errorf("content type = %q", req.ContentType)
	}
}

func TestListThoughts(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /thoughts": `[{"id":"a","content":"one"},{"id":"b","content":"two"}]`,
	})

	thoughts, err := listThoughts(ctx, ts.client(), "/thoughts?limit=2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(thoughts) != 2 || thoughts[1].ID != "b" {
		t.Errorf("thoughts = %+v", thoughts)
	}
	if ts.requests[0].Path != "/thoughts?limit=2" {
		t.Errorf("path = %q", ts.requests[0].Path)
	}
}

func TestSearchPath(t *testing.T) {
	if got := searchPath("beach trip & sun", "", 5); got != "/search?limit=5&q=beach+trip+%26+sun" {
		t.Errorf("searchPath = %q", got)
	}
	if got := searchPath("ignored", "home improvement", 10); got != "/tags/home%20improvement/thoughts?limit=10" {
		t.Errorf("searchPath with tag = %q", got)
	}
}

func TestImportConversation(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /imports": `{"conversation":{"id":"c1"},"thought_ids":["t1","t2","t3"]}`,
	})

	n, err := importConversation(ctx, ts.client(), "claude", "", "/tmp/export/chat.json", []byte(`{"chat_messages":[]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("imported = %d, want 3", n)
	}

	var body map[string]string
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("invalid request body: %v", err)
	}
	if body["format"] != "json" {
		t.Errorf("format = %q, want json inferred from extension", body["format"])
	}
	if body["filename"] != "chat.json" {
		t.Errorf("filename = %q, want base name", body["filename"])
	}
	if body["provider"] != "claude" {
		t.Errorf("provider = %q", body["provider"])
	}
}

func TestFormatFromPath(t *testing.T) {
	cases := map[string]string{
		"a.json": "json",
		"a.JSON": "json",
		"a.md":   "markdown",
		"a.txt":  "markdown",
		"noext":  "markdown",
	}
	for path, want := range cases {
		if got := formatFromPath(path); got != want {
			t.Errorf("formatFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestDecodeJSON_ErrorEnvelope(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := ts.client().get(ctx, "/thoughts/missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = decodeJSON(resp, nil)
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "thought not found") {
		t.Errorf("error = %q, want status and server message", err)
	}
}

func TestClient_ServerUnreachable(t *testing.T) {
	c := &apiClient{baseURL: "http://127.0.0.1:1", token: "x", httpClient: &http.Client{Timeout: time.Second}}
	_, err := c.get(ctx, "/health")
	if err == nil || !strings.Contains(err.Error(), "is mirror running") {
		t.Fatalf("err = %v, want unreachable hint", err)
	}
}

type stubProcessor struct {
	res      pipeline.Result
	err      error
	existing []linker.Candidate
}

func (s *stubProcessor) Process(_ context.Context, _ string, existing []linker.Candidate) (pipeline.Result, error) {
	s.existing = existing
	return s.res, s.err
}

func TestRunEnrich(t *testing.T) {
	p := &stubProcessor{res: pipeline.Result{Summary: "Budget report due", Reflection: "Plan ahead."}}
	existing := []linker.Candidate{{ID: "t1", Content: "budget"}}

	var buf bytes.Buffer
	if err := runEnrich(ctx, &buf, p, "Need to finish the budget report", existing); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.existing) != 1 || p.existing[0].ID != "t1" {
		t.Errorf("existing not passed through: %+v", p.existing)
	}

	var out pipeline.Result
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if out.Summary != "Budget report due" {
		t.Errorf("summary = %q", out.Summary)
	}
}

func TestRunEnrich_Errors(t *testing.T) {
	var buf bytes.Buffer
	if err := runEnrich(ctx, &buf, &stubProcessor{}, "  \n", nil); err == nil {
		t.Error("expected error for blank text")
	}

	failing := &stubProcessor{err: pipeline.ErrAllStagesFailed}
	if err := runEnrich(ctx, &buf, failing, "text", nil); !errors.Is(err, pipeline.ErrAllStagesFailed) {
		t.Errorf("err = %v, want ErrAllStagesFailed", err)
	}
	if buf.Len() != 0 {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestRunEnrich_RealPipeline(t *testing.T) {
	cfg := config.Config{}
	cfg.Enrichment.Parallel = true
	cfg.Enrichment.NarrativeTimeout = time.Second

	e := newEnricher(cfg, nil, nil, newLogger("error"))

	var buf bytes.Buffer
	if err := runEnrich(ctx, &buf, e, "I need to call the dentist tomorrow about my tooth.", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out pipeline.Result
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if out.Summary == "" {
		t.Error("expected a summary")
	}
	if len(out.Actions) == 0 {
		t.Error("expected an action for 'need to call'")
	}
}

func TestNewGenerator_Disabled(t *testing.T) {
	cfg := config.Config{}
	gen, err := newGenerator(cfg, nil, false, newLogger("error"))
	if err != nil || gen != nil {
		t.Fatalf("newGenerator = %v, %v; want nil, nil", gen, err)
	}

	cfg.Enrichment.NarrativeEnabled = true
	cfg.LLM.Provider = config.ProviderOllama
	gen, err = newGenerator(cfg, nil, false, newLogger("error"))
	if err != nil || gen != nil {
		t.Fatalf("newGenerator without ollama = %v, %v; want nil, nil", gen, err)
	}
}

func TestWriteEnriched(t *testing.T) {
	noColor = true
	due := "2026-01-02"
	e := storage.Enriched{
		Thought: storage.Thought{ID: "abcdef123456", Summary: "Call the dentist"},
		Tags:    []string{"health", "todo"},
		Actions: []storage.Action{{Content: "Call the dentist", Priority: "high", DueDate: &due}},
		Links:   []storage.Link{{TargetThoughtID: "fedcba987654", Relationship: "related", Strength: 0.5}},
	}

	var buf bytes.Buffer
	writeEnriched(&buf, e)
	out := buf.String()
	for _, want := range []string{
		"Thought abcdef123456",
		"Summary: Call the dentist",
		"Tags: health, todo",
		"Action [high]: Call the dentist (due 2026-01-02)",
		"Link: related fedcba98 (0.50)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("a\n b   c", 10); got != "a b c" {
		t.Errorf("truncate collapsed = %q", got)
	}
	if got := truncate("héllo wörld", 5); got != "héllo..." {
		t.Errorf("truncate runes = %q", got)
	}
}

func TestCountLabel(t *testing.T) {
	if got := countLabel(3, 100); got != "3" {
		t.Errorf("countLabel(3) = %q", got)
	}
	if got := countLabel(100, 100); got != "100+" {
		t.Errorf("countLabel(100) = %q", got)
	}
}
