package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/OFFIS-RIT/threadgraph/pkg/checkpoint"
)

// JSONLSink appends one JSON document per line to a file.
type JSONLSink[T any] struct {
	file   *os.File
	w      *bufio.Writer
	offset int64
}

// OpenJSONLSink opens path for writing, creating parent directories as needed.
// The sink starts at the end of the file until Rewind is called.
func OpenJSONLSink[T any](path string) (*JSONLSink[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}

	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &JSONLSink[T]{file: f, w: bufio.NewWriter(f), offset: end}, nil
}

// Rewind truncates the file to offset. checkpoint.UnknownOffset keeps the
// current content and appends.
func (s *JSONLSink[T]) Rewind(offset int64) error {
	if err := s.w.Flush(); err != nil {
		return err
	}
	if offset == checkpoint.UnknownOffset {
		end, err := s.file.Seek(0, io.SeekEnd)
		if err != nil {
			return err
		}
		s.offset = end
		return nil
	}

	info, err := s.file.Stat()
	if err != nil {
		return err
	}
	if offset > info.Size() {
		return fmt.Errorf("output offset %d beyond file size %d", offset, info.Size())
	}
	if err := s.file.Truncate(offset); err != nil {
		return err
	}
	if _, err := s.file.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	s.offset = offset
	return nil
}

func (s *JSONLSink[T]) Write(records []T) error {
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
		data = append(data, '\n')
		n, err := s.w.Write(data)
		s.offset += int64(n)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *JSONLSink[T]) Commit() (int64, error) {
	if err := s.w.Flush(); err != nil {
		return s.offset, err
	}
	if err := s.file.Sync(); err != nil {
		return s.offset, err
	}
	return s.offset, nil
}

func (s *JSONLSink[T]) Close() error {
	flushErr := s.w.Flush()
	closeErr := s.file.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// SliceSink collects records in memory.
type SliceSink[T any] struct {
	Records []T
}

func (s *SliceSink[T]) Rewind(offset int64) error {
	if offset == checkpoint.UnknownOffset {
		return nil
	}
	if offset > int64(len(s.Records)) {
		return fmt.Errorf("output offset %d beyond %d records", offset, len(s.Records))
	}
	s.Records = s.Records[:offset]
	return nil
}

func (s *SliceSink[T]) Write(records []T) error {
	s.Records = append(s.Records, records...)
	return nil
}

func (s *SliceSink[T]) Commit() (int64, error) {
	return int64(len(s.Records)), nil
}
