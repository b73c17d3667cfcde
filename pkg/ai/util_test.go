package ai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestUnmarshalFlexible_EntityCheck(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		want     bool
		entities int
	}{
		{
			name:     "valid json object",
			input:    `{"has_entities":true,"entities":["NASA"]}`,
			want:     true,
			entities: 1,
		},
		{
			name:  "unquoted keys and trailing comma",
			input: `{has_entities: false, entities: [],}`,
			want:  false,
		},
		{
			name:     "stringified object",
			input:    `"{\"has_entities\": true, \"entities\": [\"Area 51\", \"CIA\"]}"`,
			want:     true,
			entities: 2,
		},
		{
			name:     "missing end bracket",
			input:    `{"has_entities":true,"entities":["Roswell"`,
			want:     true,
			entities: 1,
		},
		{
			name:     "markdown code fence",
			input:    "```json\n{\"has_entities\": true, \"entities\": [\"FBI\"]}\n```",
			want:     true,
			entities: 1,
		},
		{
			name:     "duplicate leading brace",
			input:    "{\n{\n  \"has_entities\": true, \"entities\": [\"Mars\"]\n}\n",
			want:     true,
			entities: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got entityCheck
			if err := UnmarshalFlexible(tc.input, &got); err != nil {
				t.Fatalf("UnmarshalFlexible() error = %v", err)
			}
			if got.HasEntities != tc.want || len(got.Entities) != tc.entities {
				t.Fatalf("UnmarshalFlexible() got = %+v", got)
			}
		})
	}
}

func TestUnmarshalFlexible_Unrecoverable(t *testing.T) {
	var got entityCheck
	if err := UnmarshalFlexible("hello", &got); err == nil {
		t.Fatalf("UnmarshalFlexible() expected error for unrecoverable input")
	}
}

func TestGenerateSchema_EntityCheck(t *testing.T) {
	data, err := json.Marshal(GenerateSchema(&entityCheck{}))
	if err != nil {
		t.Fatalf("failed to marshal schema: %v", err)
	}
	schema := string(data)
	for _, want := range []string{`"has_entities"`, `"entities"`, `"additionalProperties":false`} {
		if !strings.Contains(schema, want) {
			t.Fatalf("schema missing %s: %s", want, schema)
		}
	}
}

type fakeClient struct {
	response string
	err      error
	prompts  []string
	options  []GenerateOptions
}

func (f *fakeClient) GenerateCompletion(context.Context, string, ...GenerateOption) (string, error) {
	return f.response, f.err
}

func (f *fakeClient) GenerateCompletionWithFormat(_ context.Context, _, _ string, prompt string, out any, opts ...GenerateOption) error {
	var o GenerateOptions
	for _, opt := range opts {
		opt(&o)
	}
	f.prompts = append(f.prompts, prompt)
	f.options = append(f.options, o)
	if f.err != nil {
		return f.err
	}
	return UnmarshalFlexible(f.response, out)
}

func (f *fakeClient) GenerateSequences(_ context.Context, text string, n int, _ ...GenerateOption) ([]string, error) {
	out := make([]string, n)
	for i := range out {
		out[i] = text
	}
	return out, f.err
}

func (f *fakeClient) LoadModel(context.Context, ...GenerateOption) error { return nil }
func (f *fakeClient) ResetMetrics()                                      {}
func (f *fakeClient) GetMetrics() ModelMetrics                           { return ModelMetrics{} }

func TestEntityFilter(t *testing.T) {
	ctx := context.Background()

	yes := &fakeClient{response: `{"has_entities":true,"entities":["Roswell"]}`}
	ok, err := NewEntityFilter(yes).HasEntities(ctx, "Something landed near Roswell")
	if err != nil || !ok {
		t.Fatalf("expected entities, got %v, %v", ok, err)
	}
	if yes.prompts[0] != "Something landed near Roswell" {
		t.Fatalf("expected the post as user prompt, got %q", yes.prompts[0])
	}
	if sp := yes.options[0].SystemPrompts; len(sp) != 1 || sp[0] != EntityFilterSystemPrompt {
		t.Fatalf("expected the filter system prompt, got %q", sp)
	}

	no := &fakeClient{response: `{"has_entities":false,"entities":[]}`}
	ok, err = NewEntityFilter(no).HasEntities(ctx, "i think so too")
	if err != nil || ok {
		t.Fatalf("expected no entities, got %v, %v", ok, err)
	}

	broken := &fakeClient{err: errors.New("connection refused")}
	if _, err := NewEntityFilter(broken).HasEntities(ctx, "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestEntityFilter_Options(t *testing.T) {
	c := &fakeClient{response: `{"has_entities":false,"entities":[]}`}
	f := NewEntityFilter(c, WithModel("ner-small"), WithTemperature(0), WithThinking("low"))
	if _, err := f.HasEntities(context.Background(), "ok"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := c.options[0]
	if got.Model != "ner-small" || got.Temperature != 0 || got.Thinking != "low" {
		t.Fatalf("options not forwarded: %+v", got)
	}
	if len(got.SystemPrompts) != 1 {
		t.Fatalf("expected system prompt to be kept, got %q", got.SystemPrompts)
	}
}

func TestGenerator(t *testing.T) {
	g := Generator{Client: &fakeClient{}}
	got, err := g.GenerateSequences(context.Background(), "<triplet> a", 3)
	if err != nil || len(got) != 3 {
		t.Fatalf("expected 3 sequences, got %v, %v", got, err)
	}
}
