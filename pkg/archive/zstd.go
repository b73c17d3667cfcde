package archive

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// maxFrameWindow matches the largest window the export archives are
// written with (--long=31).
const maxFrameWindow = 1 << 31

// NewZstdReader reads lines from a zstd-compressed stream. Offsets refer to
// compressed bytes consumed from r, which is what callers compare against
// the on-disk file size for progress reporting.
func NewZstdReader(r io.Reader, opts Options) (*Reader, error) {
	compressed := &countingReader{r: r}

	dec, err := zstd.NewReader(
		compressed,
		zstd.WithDecoderMaxWindow(maxFrameWindow),
		zstd.WithDecoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &Reader{
		src:    dec,
		offset: compressed.Count,
		closer: dec.Close,
		opts:   opts.withDefaults(),
	}, nil
}
