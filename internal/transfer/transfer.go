package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/time/rate"
)

const (
	DefaultBufferSize = 20480
	maxEmptyReads     = 100
)

var ErrSourceTruncated = fmt.Errorf("source ended before the requested length: %w", io.ErrUnexpectedEOF)

type Options struct {
	BufferSize int
	// MaxBytesPerSecond caps each copy independently. Zero disables the cap.
	MaxBytesPerSecond int
}

// Engine copies bounded byte intervals from seekable sources using pooled,
// fixed-size buffers. It is safe for concurrent use.
type Engine struct {
	bufferSize int
	limit      rate.Limit
	pool       sync.Pool
}

func New(opts Options) (*Engine, error) {
	if opts.BufferSize <= 0 {
		return nil, fmt.Errorf("buffer size must be > 0, got %d", opts.BufferSize)
	}
	if opts.MaxBytesPerSecond < 0 {
		return nil, fmt.Errorf("max bytes per second must be >= 0, got %d", opts.MaxBytesPerSecond)
	}
	e := &Engine{bufferSize: opts.BufferSize, limit: rate.Inf}
	if opts.MaxBytesPerSecond > 0 {
		e.limit = rate.Limit(opts.MaxBytesPerSecond)
	}
	e.pool.New = func() any {
		buf := make([]byte, e.bufferSize)
		return &buf
	}
	return e, nil
}

func (e *Engine) BufferSize() int {
	return e.bufferSize
}

// Copy seeks src to start and writes exactly length bytes to dst. Reads are
// capped at the bytes still owed, so nothing past the interval is consumed.
// A source that ends early yields ErrSourceTruncated.
func (e *Engine) Copy(ctx context.Context, src io.ReadSeeker, dst io.Writer, start, length int64) error {
	if length == 0 {
		return nil
	}
	if start < 0 || length < 0 {
		return fmt.Errorf("invalid interval start=%d length=%d", start, length)
	}
	if _, err := src.Seek(start, io.SeekStart); err != nil {
		return fmt.Errorf("seek source to %d: %w", start, err)
	}

	bufPtr := e.pool.Get().(*[]byte)
	defer e.pool.Put(bufPtr)
	buf := *bufPtr

	var limiter *rate.Limiter
	if e.limit != rate.Inf {
		limiter = rate.NewLimiter(e.limit, e.bufferSize)
	}

	remaining := length
	emptyReads := 0
	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk := buf
		if int64(len(chunk)) > remaining {
			chunk = chunk[:remaining]
		}
		n, readErr := src.Read(chunk)
		if n > 0 {
			if limiter != nil {
				if err := limiter.WaitN(ctx, n); err != nil {
					return err
				}
			}
			written, writeErr := dst.Write(chunk[:n])
			if writeErr != nil {
				return fmt.Errorf("write to sink: %w", writeErr)
			}
			if written != n {
				return fmt.Errorf("write to sink: %w", io.ErrShortWrite)
			}
			remaining -= int64(n)
			emptyReads = 0
		} else if readErr == nil {
			emptyReads++
			if emptyReads >= maxEmptyReads {
				return fmt.Errorf("read source: %w", io.ErrNoProgress)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				if remaining == 0 {
					return nil
				}
				return fmt.Errorf("%w: %d of %d bytes missing at offset %d", ErrSourceTruncated, remaining, length, start+length-remaining)
			}
			return fmt.Errorf("read source: %w", readErr)
		}
	}
	return nil
}
