// Package archive decodes newline-delimited text out of large compressed
// exports without loading them into memory.
package archive

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/OFFIS-RIT/threadgraph/pkg/logger"
)

const (
	// DefaultChunkSize is the number of decompressed bytes requested per read.
	DefaultChunkSize = 1 << 27
	// DefaultMaxWindow bounds how far a split character may be chased
	// across chunk boundaries before the stream is declared undecodable.
	DefaultMaxWindow = 1 << 30
)

// DecodeError is returned when the decompressed bytes do not form valid
// UTF-8 within the configured window.
type DecodeError struct {
	Consumed int64
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("unable to decode frame after reading %d bytes", e.Consumed)
}

// Options configures a Reader.
//
// DropPartialTail restores the historical behavior of discarding a final
// record that is not terminated by a newline. By default the tail is
// yielded like any other line.
type Options struct {
	ChunkSize       int
	MaxWindow       int
	DropPartialTail bool
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.MaxWindow <= 0 {
		o.MaxWindow = DefaultMaxWindow
	}
	return o
}

// Reader yields newline-delimited lines from a decoded byte stream. It is
// lazy, finite and not restartable.
type Reader struct {
	src    io.Reader
	offset func() int64
	closer func()
	opts   Options

	decoded int64
	pending []string
	partial string
	eof     bool
}

// NewReader reads lines from an uncompressed stream. Offsets are the number
// of bytes consumed from r.
func NewReader(r io.Reader, opts Options) *Reader {
	cr := &countingReader{r: r}
	return &Reader{
		src:    cr,
		offset: cr.Count,
		opts:   opts.withDefaults(),
	}
}

// Next returns the next line and the source byte offset at the time it was
// produced. It returns io.EOF once the stream is exhausted.
func (r *Reader) Next() (string, int64, error) {
	for len(r.pending) == 0 {
		if r.eof {
			return "", r.offset(), io.EOF
		}
		if err := r.fill(); err != nil {
			return "", r.offset(), err
		}
	}

	line := r.pending[0]
	r.pending = r.pending[1:]
	return line, r.offset(), nil
}

// Offset returns the number of source bytes consumed so far.
func (r *Reader) Offset() int64 {
	return r.offset()
}

// Close releases the decompressor, if any. It does not close the source.
func (r *Reader) Close() error {
	if r.closer != nil {
		r.closer()
		r.closer = nil
	}
	return nil
}

func (r *Reader) fill() error {
	text, done, err := r.readDecoded()
	if err != nil {
		return err
	}

	if text != "" {
		lines := strings.Split(r.partial+text, "\n")
		r.pending = append(r.pending, lines[:len(lines)-1]...)
		r.partial = lines[len(lines)-1]
	}

	if done {
		r.eof = true
		if r.partial != "" && !r.opts.DropPartialTail {
			r.pending = append(r.pending, r.partial)
		}
		r.partial = ""
	}
	return nil
}

// readDecoded reads one chunk and keeps extending it while the bytes are not
// valid UTF-8, up to the configured window.
func (r *Reader) readDecoded() (string, bool, error) {
	var window []byte
	read := 0

	for {
		buf := make([]byte, r.opts.ChunkSize)
		n, err := io.ReadFull(r.src, buf)
		window = append(window, buf[:n]...)
		read += n

		done := errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
		if err != nil && !done {
			return "", false, err
		}

		if utf8.Valid(window) {
			r.decoded += int64(read)
			return string(window), done, nil
		}

		if done || read > r.opts.MaxWindow {
			return "", false, &DecodeError{Consumed: r.decoded + int64(read)}
		}

		logger.Debug("Decoding error, reading another chunk", "bytes", read)
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingReader) Count() int64 {
	return c.n
}
