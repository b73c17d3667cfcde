package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/threadgraph/pkg/ai"
)

func TestGenerateSequences(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("invalid request body: %v", err)
		}
		if body["n"] != float64(2) || body["skip_special_tokens"] != false || body["use_beam_search"] != true {
			t.Errorf("unexpected request: %v", body)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cmpl-1",
			"object": "chat.completion",
			"created": 0,
			"model": "rebel",
			"choices": [
				{"index": 0, "message": {"role": "assistant", "content": "<s><triplet> Earth <subj> Sun <obj> orbits</s>"}, "finish_reason": "stop"},
				{"index": 1, "message": {"role": "assistant", "content": "<s><triplet> Sun <subj> Earth <obj> orbited by</s>"}, "finish_reason": "stop"}
			],
			"usage": {"prompt_tokens": 8, "completion_tokens": 20, "total_tokens": 28}
		}`))
	}))
	defer srv.Close()

	c := NewGraphOpenAIClient(NewGraphOpenAIClientParams{
		SequenceModel: "rebel",
		SequenceURL:   srv.URL + "/v1/",
		SequenceKey:   "local",
	})

	got, err := c.GenerateSequences(context.Background(), "The Earth orbits the Sun.", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || !strings.Contains(got[1], "orbited by") {
		t.Fatalf("unexpected sequences: %q", got)
	}
	if c.GetMetrics().TotalTokens != 28 {
		t.Fatalf("unexpected metrics: %+v", c.GetMetrics())
	}
}

func TestUnconfiguredEndpoint(t *testing.T) {
	c := NewGraphOpenAIClient(NewGraphOpenAIClientParams{SequenceModel: "rebel"})
	if _, err := c.GenerateSequences(context.Background(), "text", 1); err == nil {
		t.Fatal("expected error for missing sequence endpoint")
	}
	if _, err := c.GenerateCompletion(context.Background(), "text"); err == nil {
		t.Fatal("expected error for missing chat endpoint")
	}
}

type entityAnswer struct {
	HasEntities bool     `json:"has_entities"`
	Entities    []string `json:"entities"`
}

func TestGenerateCompletionWithFormat_Options(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("invalid request body: %v", err)
		}
		if body["model"] != "ner-small" || body["reasoning_effort"] != "low" {
			t.Errorf("options not applied: %v", body)
		}
		// self-hosted endpoints keep the configured temperature
		if body["temperature"] != 0.2 {
			t.Errorf("unexpected temperature %v", body["temperature"])
		}
		msgs, _ := body["messages"].([]any)
		if len(msgs) != 2 {
			t.Errorf("expected system and user message, got %v", msgs)
		} else if first, _ := msgs[0].(map[string]any); first["role"] != "system" {
			t.Errorf("expected system prompt first, got %v", first)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cmpl-2",
			"object": "chat.completion",
			"created": 0,
			"model": "ner-small",
			"choices": [
				{"index": 0, "message": {"role": "assistant", "content": "{\"has_entities\": true, \"entities\": [\"NASA\"]}"}, "finish_reason": "stop"}
			],
			"usage": {"prompt_tokens": 30, "completion_tokens": 9, "total_tokens": 39}
		}`))
	}))
	defer srv.Close()

	c := NewGraphOpenAIClient(NewGraphOpenAIClientParams{
		ChatModel: "gpt-default",
		ChatURL:   srv.URL + "/v1/",
		ChatKey:   "local",
	})

	var out entityAnswer
	err := c.GenerateCompletionWithFormat(
		context.Background(),
		"entity_check",
		"Whether the text mentions named entities",
		"NASA faked it",
		&out,
		ai.WithSystemPrompts("Find named entities."),
		ai.WithModel("ner-small"),
		ai.WithTemperature(0.2),
		ai.WithThinking("low"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.HasEntities || len(out.Entities) != 1 || out.Entities[0] != "NASA" {
		t.Fatalf("unexpected answer: %+v", out)
	}
}
