package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/tidwall/gjson"
)

// SnapshotStore reads the checkpoint file of a FileStore owned by another
// process. Every call re-reads the file; FileStore replaces it atomically
// on flush, so no lock is taken.
type SnapshotStore struct {
	path string
}

func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

func (s *SnapshotStore) read() (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "{}", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read checkpoint file: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return "", fmt.Errorf("checkpoint file %s is not valid JSON", s.path)
	}
	return string(data), nil
}

func (s *SnapshotStore) Get(_ context.Context, sourceID string) (State, error) {
	doc, err := s.read()
	if err != nil {
		return State{}, err
	}
	res := gjson.Get(doc, escapeKey(sourceID))
	if !res.Exists() {
		return State{SourceID: sourceID}, nil
	}
	return stateFromResult(sourceID, res), nil
}

func (s *SnapshotStore) Set(context.Context, State) error {
	return ErrReadOnly
}

func (s *SnapshotStore) Flush(context.Context) error {
	return ErrReadOnly
}

func (s *SnapshotStore) List(context.Context) ([]State, error) {
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	var out []State
	gjson.Parse(doc).ForEach(func(key, value gjson.Result) bool {
		out = append(out, stateFromResult(key.String(), value))
		return true
	})
	return out, nil
}
