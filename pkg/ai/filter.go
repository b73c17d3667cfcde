package ai

import (
	"context"
	"fmt"
)

type entityCheck struct {
	HasEntities bool     `json:"has_entities" jsonschema:"description=True if the text mentions at least one named entity"`
	Entities    []string `json:"entities" jsonschema:"description=The named entities as written in the text"`
}

// EntityFilter admits text only if the model finds a named entity in it.
type EntityFilter struct {
	client Client
	opts   []GenerateOption
}

// NewEntityFilter builds a filter on client. opts are applied after the
// filter's own system prompt, so they may replace it.
func NewEntityFilter(client Client, opts ...GenerateOption) *EntityFilter {
	all := append([]GenerateOption{WithSystemPrompts(EntityFilterSystemPrompt)}, opts...)
	return &EntityFilter{client: client, opts: all}
}

// HasEntities reports whether text mentions at least one named entity.
func (f *EntityFilter) HasEntities(ctx context.Context, text string) (bool, error) {
	var out entityCheck
	err := f.client.GenerateCompletionWithFormat(
		ctx,
		"entity_check",
		"Whether the text mentions named entities",
		text,
		&out,
		f.opts...,
	)
	if err != nil {
		return false, fmt.Errorf("entity check failed: %w", err)
	}
	return out.HasEntities || len(out.Entities) > 0, nil
}
