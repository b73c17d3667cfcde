package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"

	"github.com/OFFIS-RIT/threadgraph/pkg/ai"

	"github.com/ollama/ollama/api"
)

// contextFor grows the context window for long prompts.
func contextFor(prompt string, options map[string]any) error {
	tokens, err := ai.CountTokens(prompt)
	if err != nil {
		return err
	}
	if tokens += 200; tokens > 4096 {
		options["num_ctx"] = tokens
	}
	return nil
}

func (c *GraphOllamaClient) chat(ctx context.Context, req *api.ChatRequest) (string, error) {
	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer c.reqLock.Release(1)

	var final api.ChatResponse
	if err := c.Client.Chat(ctx, req, func(cr api.ChatResponse) error {
		final.Message.Content += cr.Message.Content
		if cr.Done {
			final.Done = true
			final.Metrics = cr.Metrics
		}
		return nil
	}); err != nil {
		return "", err
	}

	c.modifyMetrics(final.Metrics)
	return final.Message.Content, nil
}

func chatMessages(options ai.GenerateOptions, prompt string) []api.Message {
	msgs := make([]api.Message, 0, len(options.SystemPrompts)+1)
	for _, sp := range options.SystemPrompts {
		msgs = append(msgs, api.Message{Role: "system", Content: sp})
	}
	return append(msgs, api.Message{Role: "user", Content: prompt})
}

// GenerateCompletion sends a single-turn prompt and returns assistant text.
func (c *GraphOllamaClient) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.GenerateOptions{
		Model:       c.chatModel,
		Temperature: 0.3,
	}
	for _, o := range opts {
		o(&options)
	}

	stream := false
	req := &api.ChatRequest{
		Model:    options.Model,
		Messages: chatMessages(options, prompt),
		Stream:   &stream,
		Options:  map[string]any{"temperature": options.Temperature},
	}
	if options.Thinking != "" {
		req.Think = &api.ThinkValue{Value: options.Thinking}
	}
	if err := contextFor(prompt, req.Options); err != nil {
		return "", err
	}

	return c.chat(ctx, req)
}

// GenerateCompletionWithFormat enforces a JSON schema and unmarshals into out.
func (c *GraphOllamaClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	if out == nil {
		return errors.New("out must be a non-nil pointer")
	}
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("out must be a non-nil pointer")
	}

	formatBytes, err := json.Marshal(ai.GenerateSchema(out))
	if err != nil {
		return err
	}

	options := ai.GenerateOptions{
		Model:       c.chatModel,
		Temperature: 0.1,
	}
	for _, o := range opts {
		o(&options)
	}

	stream := false
	req := &api.ChatRequest{
		Model:    options.Model,
		Messages: chatMessages(options, prompt),
		Stream:   &stream,
		Format:   json.RawMessage(formatBytes),
		Options:  map[string]any{"temperature": options.Temperature},
	}
	if options.Thinking != "" {
		req.Think = &api.ThinkValue{Value: options.Thinking}
	}
	if err := contextFor(prompt, req.Options); err != nil {
		return err
	}

	content, err := c.chat(ctx, req)
	if err != nil {
		return err
	}
	return ai.UnmarshalFlexible(content, out)
}

// GenerateSequences runs the raw sequence model n times. Ollama has no beam
// search, so the first sequence is greedy and the others are sampled with
// distinct seeds.
func (c *GraphOllamaClient) GenerateSequences(
	ctx context.Context,
	text string,
	n int,
	opts ...ai.GenerateOption,
) ([]string, error) {
	options := ai.GenerateOptions{
		Model:     c.sequenceModel,
		MaxTokens: 256,
	}
	for _, o := range opts {
		o(&options)
	}

	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.reqLock.Release(1)

	stream := false
	out := make([]string, 0, max(n, 1))
	for i := range max(n, 1) {
		temperature := options.Temperature
		if i > 0 && temperature == 0 {
			temperature = 0.7
		}

		req := &api.GenerateRequest{
			Model:  options.Model,
			Prompt: text,
			Raw:    true,
			Stream: &stream,
			Options: map[string]any{
				"temperature": temperature,
				"seed":        i,
				"num_predict": options.MaxTokens,
			},
		}

		var seq string
		var metrics api.Metrics
		if err := c.Client.Generate(ctx, req, func(gr api.GenerateResponse) error {
			seq += gr.Response
			if gr.Done {
				metrics = gr.Metrics
			}
			return nil
		}); err != nil {
			return nil, err
		}

		c.modifyMetrics(metrics)
		out = append(out, seq)
	}
	return out, nil
}

// LoadModel preloads a model into memory to reduce latency on subsequent requests.
func (c *GraphOllamaClient) LoadModel(ctx context.Context, opts ...ai.GenerateOption) error {
	options := ai.GenerateOptions{
		Model: c.chatModel,
	}
	for _, o := range opts {
		o(&options)
	}

	req := &api.ChatRequest{
		Model: options.Model,
	}

	return c.Client.Chat(ctx, req, func(cr api.ChatResponse) error {
		return nil
	})
}
