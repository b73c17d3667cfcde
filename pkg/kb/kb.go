// Package kb resolves free-text entity mentions to canonical labels of an
// external knowledge base.
package kb

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrAuthDenied marks a knowledge-base response that refused access.
	// It is fatal for a run.
	ErrAuthDenied = errors.New("knowledge base denied access")
	// ErrUnavailable marks any other failed lookup. It is treated as "no match".
	ErrUnavailable = errors.New("knowledge base unavailable")
)

// Candidate is one search hit. Aliases keep the order the service returned.
type Candidate struct {
	ID      string   `json:"id"`
	Label   string   `json:"label"`
	Aliases []string `json:"aliases"`
}

// Searcher runs a fuzzy search and returns candidates in relevance order.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Candidate, error)
}

type AuthError struct {
	Status int
	Query  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("knowledge base denied access (status %d) for %q", e.Status, e.Query)
}

func (e *AuthError) Unwrap() error {
	return ErrAuthDenied
}

type UnavailableError struct {
	Status int
	Query  string
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("knowledge base lookup for %q failed: %v", e.Query, e.Err)
	}
	return fmt.Sprintf("knowledge base lookup for %q failed with status %d", e.Query, e.Status)
}

func (e *UnavailableError) Unwrap() []error {
	return []error{ErrUnavailable, e.Err}
}
