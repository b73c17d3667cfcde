package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/threadgraph/internal/config"
	mid "github.com/OFFIS-RIT/threadgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/threadgraph/pkg/checkpoint"
	"github.com/OFFIS-RIT/threadgraph/pkg/graph"
)

const testKey = "master-key"

type published struct {
	queue string
	body  string
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(queueName string, body []byte) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{queueName, string(body)})
	return nil
}

func testApp(t *testing.T) (*mid.App, *fakePublisher) {
	t.Helper()

	cfg := config.Default()
	cfg.Clean.Sources = []config.Source{{
		Name:   "conspiracy_comments",
		Path:   "in.jsonl",
		Output: "out.jsonl",
		Kind:   "comments",
	}}

	store := checkpoint.NewMemoryStore()
	ctx := context.Background()
	for _, st := range []checkpoint.State{
		{SourceID: "extract/conspiracy_comments", Path: "raw.zst", LineCursor: 40, Done: true},
		{SourceID: "clean/conspiracy_comments", Path: "in.jsonl", LineCursor: 12},
	} {
		if err := store.Set(ctx, st); err != nil {
			t.Fatalf("set: %v", err)
		}
	}

	dir := t.TempDir()
	edges := []graph.Edge{
		{Head: "Q1", Tail: "Q2", Weight: 1},
		{Head: "Q2", Tail: "Q3", Weight: 0.5},
	}
	if _, err := graph.WriteJSON(dir, "large_kg_data.json", edges); err != nil {
		t.Fatalf("write graph: %v", err)
	}

	pub := &fakePublisher{}
	return &mid.App{
		Config:       cfg,
		Store:        store,
		Graphs:       graph.DirReader{Dir: dir},
		Queue:        pub,
		MasterAPIKey: testKey,
	}, pub
}

func do(t *testing.T, app *mid.App, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	New(app).ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	app, _ := testApp(t)
	rec := do(t, app, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("unexpected health response: %d %q", rec.Code, rec.Body.String())
	}
}

func TestAuth(t *testing.T) {
	app, _ := testApp(t)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{name: "missing", token: "", want: http.StatusUnauthorized},
		{name: "wrong key without jwks", token: "nope", want: http.StatusUnauthorized},
		{name: "master key", token: testKey, want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, app, http.MethodGet, "/api/progress", tt.token, "")
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestGetProgress(t *testing.T) {
	app, _ := testApp(t)

	rec := do(t, app, http.MethodGet, "/api/progress", testKey, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var all []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(all) != 2 || all[0]["source"] != "clean/conspiracy_comments" {
		t.Fatalf("unexpected progress: %v", all)
	}

	rec = do(t, app, http.MethodGet, "/api/progress?stage=extract", testKey, "")
	var filtered []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &filtered); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(filtered) != 1 || filtered[0]["done"] != true || filtered[0]["line"] != float64(40) {
		t.Fatalf("unexpected filtered progress: %v", filtered)
	}

	rec = do(t, app, http.MethodGet, "/api/progress?stage=bogus", testKey, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown stage, got %d", rec.Code)
	}
}

func TestGetGraph(t *testing.T) {
	app, _ := testApp(t)

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{name: "built", target: "/api/graphs/large", want: http.StatusOK},
		{name: "not built", target: "/api/graphs/small", want: http.StatusNotFound},
		{name: "unknown variant", target: "/api/graphs/huge", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, app, http.MethodGet, tt.target, testKey, "")
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}

	rec := do(t, app, http.MethodGet, "/api/graphs/large", testKey, "")
	var res struct {
		Nodes []string     `json:"nodes"`
		Edges []graph.Edge `json:"edges"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Nodes) != 3 || len(res.Edges) != 2 || res.Edges[1].Weight != 0.5 {
		t.Fatalf("unexpected graph: %+v", res)
	}
}

func TestStartRun(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		want      int
		wantQueue string
		wantBody  string
	}{
		{
			name:      "clean source",
			body:      `{"stage":"clean","source":"conspiracy_comments"}`,
			want:      http.StatusAccepted,
			wantQueue: "clean_queue",
			wantBody:  "conspiracy_comments",
		},
		{
			name:      "graph",
			body:      `{"stage":"graph"}`,
			want:      http.StatusAccepted,
			wantQueue: "graph_queue",
			wantBody:  "all",
		},
		{name: "unknown source", body: `{"stage":"clean","source":"other"}`, want: http.StatusNotFound},
		{name: "missing source", body: `{"stage":"link"}`, want: http.StatusBadRequest},
		{name: "unknown stage", body: `{"stage":"index","source":"x"}`, want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, pub := testApp(t)
			rec := do(t, app, http.MethodPost, "/api/runs", testKey, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			if tt.wantQueue == "" {
				if len(pub.msgs) != 0 {
					t.Fatalf("expected nothing published, got %v", pub.msgs)
				}
				return
			}
			if len(pub.msgs) != 1 || pub.msgs[0].queue != tt.wantQueue || pub.msgs[0].body != tt.wantBody {
				t.Fatalf("unexpected publish: %v", pub.msgs)
			}
		})
	}
}

func TestStartRun_PublishFailure(t *testing.T) {
	app, pub := testApp(t)
	pub.err = errors.New("channel closed")

	rec := do(t, app, http.MethodPost, "/api/runs", testKey, `{"stage":"graph"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
