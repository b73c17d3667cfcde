package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/OFFIS-RIT/threadgraph/pkg/logger"

	"github.com/gofrs/flock"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// FileStore keeps all checkpoints in one JSON document of the form
// {"<source>": {"path": ..., "line": ..., "status": ..., "output_offset": ...}}.
// Changes are held in memory until Flush.
type FileStore struct {
	path string
	lock *flock.Flock

	mu    sync.Mutex
	doc   string
	dirty bool
}

// OpenFileStore loads the document at path, creating an empty one if it does
// not exist yet. The store holds an advisory lock on path+".lock" until Close.
func OpenFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
		}
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock checkpoint file: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", path, ErrLocked)
	}

	doc := "{}"
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(strings.TrimSpace(string(data))) > 0 {
			if !gjson.ValidBytes(data) {
				_ = lock.Unlock()
				return nil, fmt.Errorf("checkpoint file %s is not valid JSON", path)
			}
			doc = string(data)
		}
	case os.IsNotExist(err):
	default:
		_ = lock.Unlock()
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	return &FileStore{path: path, lock: lock, doc: doc}, nil
}

func (s *FileStore) Get(_ context.Context, sourceID string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := gjson.Get(s.doc, escapeKey(sourceID))
	if !res.Exists() {
		return State{SourceID: sourceID}, nil
	}
	return stateFromResult(sourceID, res), nil
}

// Set creates the entry for a new source or updates the cursor fields and
// path of an existing one. Sibling entries are left untouched.
func (s *FileStore) Set(_ context.Context, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := escapeKey(state.SourceID)
	if !gjson.Get(s.doc, key).Exists() {
		doc, err := sjson.Set(s.doc, key, state)
		if err != nil {
			return fmt.Errorf("failed to create checkpoint entry: %w", err)
		}
		s.doc = doc
		s.dirty = true
		return nil
	}

	for _, field := range []struct {
		name  string
		value any
	}{
		{"line", state.LineCursor},
		{"status", state.Done},
	} {
		if err := s.updatePath(key+"."+field.name, field.value); err != nil {
			logger.Warn("Checkpoint update skipped", "source", state.SourceID, "field", field.name, "err", err)
		}
	}

	doc, err := sjson.Set(s.doc, key+".output_offset", state.OutputOffset)
	if err != nil {
		return fmt.Errorf("failed to update output offset: %w", err)
	}
	if state.Path != "" {
		if doc, err = sjson.Set(doc, key+".path", state.Path); err != nil {
			return fmt.Errorf("failed to update path: %w", err)
		}
	}
	s.doc = doc
	s.dirty = true
	return nil
}

// UpdatePath sets the value at a dotted key path. A path that does not exist
// is logged and left alone; ErrInconsistent is returned.
func (s *FileStore) UpdatePath(path string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatePath(path, value)
}

func (s *FileStore) updatePath(path string, value any) error {
	if !gjson.Get(s.doc, path).Exists() {
		logger.Warn("Checkpoint key path not found", "path", path)
		return fmt.Errorf("%s: %w", path, ErrInconsistent)
	}

	doc, err := sjson.Set(s.doc, path, value)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", path, err)
	}
	s.doc = doc
	s.dirty = true
	return nil
}

// Flush writes the document to disk through a temporary file and rename.
func (s *FileStore) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(s.doc); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	s.dirty = false
	return nil
}

func (s *FileStore) List(context.Context) ([]State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []State
	gjson.Parse(s.doc).ForEach(func(key, value gjson.Result) bool {
		out = append(out, stateFromResult(key.String(), value))
		return true
	})
	return out, nil
}

// Reset removes the entry of a source. It takes effect on the next Flush.
func (s *FileStore) Reset(_ context.Context, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := escapeKey(sourceID)
	if !gjson.Get(s.doc, key).Exists() {
		return nil
	}
	doc, err := sjson.Delete(s.doc, key)
	if err != nil {
		return fmt.Errorf("failed to remove checkpoint entry: %w", err)
	}
	s.doc = doc
	s.dirty = true
	return nil
}

// Close releases the file lock. Unflushed changes are discarded.
func (s *FileStore) Close() error {
	return s.lock.Unlock()
}

func stateFromResult(sourceID string, res gjson.Result) State {
	st := State{
		SourceID:     sourceID,
		Path:         res.Get("path").String(),
		LineCursor:   res.Get("line").Int(),
		OutputOffset: UnknownOffset,
		Done:         res.Get("status").Bool(),
	}
	if offset := res.Get("output_offset"); offset.Exists() {
		st.OutputOffset = offset.Int()
	}
	return st
}

var keyEscaper = strings.NewReplacer(`\`, `\\`, `.`, `\.`)

// escapeKey turns a source name into a single gjson/sjson path component.
func escapeKey(sourceID string) string {
	return keyEscaper.Replace(sourceID)
}
