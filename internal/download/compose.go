package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"dfsgate/internal/ranges"
	"dfsgate/internal/storage"
	"dfsgate/internal/transfer"
)

const partContentType = "application/octet-stream"

// StreamError reports a failure after the response headers were committed.
// The response cannot be repaired at that point and must be aborted.
type StreamError struct {
	Written int64
	Err     error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream aborted after %d bytes: %v", e.Written, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// Plan is the status line and headers chosen for one descriptor and interval
// list, before any body byte is produced.
type Plan struct {
	Status    int
	Header    http.Header
	Boundary  string
	Intervals []ranges.Interval
	Size      int64
}

func (p Plan) Multipart() bool {
	return p.Boundary != ""
}

// OpenFunc opens the backing source of the descriptor being served.
type OpenFunc func(ctx context.Context) (storage.ReadSeekCloser, error)

type Composer struct {
	Engine *transfer.Engine
	// NewBoundary defaults to a random v4 UUID.
	NewBoundary func() string
}

func NewComposer(engine *transfer.Engine) *Composer {
	return &Composer{Engine: engine, NewBoundary: uuid.NewString}
}

// Plan decides status and headers for intervals, which must be non-empty and
// already validated against desc.Size.
func (c *Composer) Plan(desc storage.Descriptor, intervals []ranges.Interval) Plan {
	header := http.Header{}
	header.Set("Content-Disposition", contentDisposition(desc.Name))
	header.Set("Last-Modified", desc.LastModified.UTC().Format(http.TimeFormat))
	header.Set("ETag", quoteETag(desc.Validator))

	plan := Plan{Header: header, Intervals: intervals, Size: desc.Size}
	switch {
	case len(intervals) == 1 && ranges.IsFull(intervals, desc.Size):
		plan.Status = http.StatusOK
		header.Set("Accept-Ranges", "bytes")
		header.Set("Content-Type", partContentType)
		header.Set("Content-Length", strconv.FormatInt(intervals[0].Length(), 10))
	case len(intervals) == 1:
		plan.Status = http.StatusPartialContent
		header.Set("Content-Type", partContentType)
		header.Set("Content-Range", intervals[0].ContentRange(desc.Size))
		header.Set("Content-Length", strconv.FormatInt(intervals[0].Length(), 10))
	default:
		plan.Status = http.StatusPartialContent
		plan.Boundary = c.boundary()
		header.Set("Content-Type", "multipart/byteranges; boundary="+plan.Boundary)
	}
	return plan
}

// WriteHeader commits plan's headers and status to w.
func (c *Composer) WriteHeader(w http.ResponseWriter, plan Plan) {
	dst := w.Header()
	for key, values := range plan.Header {
		dst[key] = append([]string(nil), values...)
	}
	w.WriteHeader(plan.Status)
}

// Compose opens the source, commits the planned headers and streams every
// interval to w. Errors before the commit are returned as-is; errors after it
// are wrapped in *StreamError and no further framing is written.
func (c *Composer) Compose(ctx context.Context, w http.ResponseWriter, desc storage.Descriptor, intervals []ranges.Interval, open OpenFunc) error {
	if len(intervals) == 0 {
		return errors.New("compose: no intervals")
	}
	plan := c.Plan(desc, intervals)

	src, err := open(ctx)
	if err != nil {
		return fmt.Errorf("open source %q: %w", desc.Path, err)
	}
	defer src.Close()

	c.WriteHeader(w, plan)
	// Flushing here puts the status line on the wire before any body byte
	// and keeps net/http from deriving a Content-Length for small multipart
	// bodies.
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	cw := &countingWriter{w: w}
	if err := c.writeBody(ctx, cw, src, plan); err != nil {
		return &StreamError{Written: cw.n, Err: err}
	}
	return nil
}

func (c *Composer) writeBody(ctx context.Context, w io.Writer, src io.ReadSeeker, plan Plan) error {
	if !plan.Multipart() {
		iv := plan.Intervals[0]
		return c.Engine.Copy(ctx, src, w, iv.Start, iv.Length())
	}
	for _, iv := range plan.Intervals {
		if _, err := io.WriteString(w, partHeader(plan.Boundary, iv.ContentRange(plan.Size))); err != nil {
			return err
		}
		if err := c.Engine.Copy(ctx, src, w, iv.Start, iv.Length()); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, closingBoundary(plan.Boundary))
	return err
}

func (c *Composer) boundary() string {
	if c.NewBoundary != nil {
		return c.NewBoundary()
	}
	return uuid.NewString()
}

func partHeader(boundary, contentRange string) string {
	return "\r\n--" + boundary + "\r\n" +
		"Content-Type: " + partContentType + "\r\n" +
		"Content-Range: " + contentRange + "\r\n" +
		"\r\n"
}

func closingBoundary(boundary string) string {
	return "\r\n--" + boundary + "--\r\n"
}

func contentDisposition(name string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(name)
	return `attachment; filename="` + escaped + `"`
}

func quoteETag(etag string) string {
	trimmed := strings.Trim(strings.TrimSpace(etag), "\"")
	if trimmed == "" {
		return "\"\""
	}
	return `"` + trimmed + `"`
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
