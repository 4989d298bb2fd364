package ranges

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

var (
	ErrMalformedSyntax = errors.New("malformed range syntax")
	ErrUnsatisfiable   = errors.New("range not satisfiable")
)

const unit = "bytes="

var headerPattern = regexp.MustCompile(`^bytes=\d*-\d*(,\d*-\d*)*$`)

// Interval is an inclusive byte interval [Start, End].
type Interval struct {
	Start int64
	End   int64
}

func (i Interval) Length() int64 {
	return i.End - i.Start + 1
}

// ContentRange renders the interval as a Content-Range value for a resource of size bytes.
func (i Interval) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", i.Start, i.End, size)
}

// Full returns the single interval covering a resource of size bytes.
// For an empty resource the interval is [0,-1] with length zero.
func Full(size int64) []Interval {
	return []Interval{{Start: 0, End: size - 1}}
}

// IsFull reports whether intervals is exactly one interval spanning the whole resource.
func IsFull(intervals []Interval, size int64) bool {
	return len(intervals) == 1 && intervals[0] == Interval{Start: 0, End: size - 1}
}

// TotalLength sums the lengths of all intervals.
func TotalLength(intervals []Interval) int64 {
	return lo.SumBy(intervals, func(i Interval) int64 { return i.Length() })
}

// FromHeader resolves the Range header of h against size. An absent header
// selects the whole resource; a present header, even an empty one, is parsed.
func FromHeader(h http.Header, size int64) ([]Interval, error) {
	values := h.Values("Range")
	if len(values) == 0 {
		return Full(size), nil
	}
	return Parse(values[0], size)
}

// Parse resolves a Range header value into concrete intervals, in the order
// they were given. A spec without a start means "from the first byte", not a
// suffix length. Ends past the last byte are clamped. A single inverted spec
// rejects the whole header.
func Parse(value string, size int64) ([]Interval, error) {
	if size < 0 {
		return nil, ErrUnsatisfiable
	}
	if err := CheckSyntax(value); err != nil {
		return nil, err
	}

	specs := strings.Split(strings.TrimPrefix(value, unit), ",")
	out := make([]Interval, 0, len(specs))
	for _, spec := range specs {
		startStr, endStr, _ := strings.Cut(spec, "-")

		start := int64(0)
		if startStr != "" {
			start = parseOffset(startStr)
		}
		end := size - 1
		if endStr != "" {
			if parsed := parseOffset(endStr); parsed < end {
				end = parsed
			}
		}

		if start > end {
			return nil, fmt.Errorf("%w: %q against %d bytes", ErrUnsatisfiable, spec, size)
		}
		out = append(out, Interval{Start: start, End: end})
	}
	return out, nil
}

// CheckSyntax reports ErrMalformedSyntax when value does not follow the
// Range grammar, without looking at any resource size.
func CheckSyntax(value string) error {
	if !headerPattern.MatchString(value) {
		return fmt.Errorf("%w: %q", ErrMalformedSyntax, value)
	}
	for _, spec := range strings.Split(strings.TrimPrefix(value, unit), ",") {
		if spec == "-" {
			return fmt.Errorf("%w: empty spec in %q", ErrMalformedSyntax, value)
		}
	}
	return nil
}

// parseOffset converts a string of ASCII digits, saturating at math.MaxInt64.
func parseOffset(digits string) int64 {
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return math.MaxInt64
	}
	return n
}
