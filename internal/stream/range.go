package stream

import (
	"errors"
	"strconv"
	"strings"
)

// ErrRangeNotSatisfiable signals a malformed or out-of-bounds Range header.
// The handler translates it to 416.
var ErrRangeNotSatisfiable = errors.New("range not satisfiable")

// ByteRange is an inclusive byte span within a file of known size.
type ByteRange struct {
	Start int64
	End   int64
}

// Length returns the number of bytes covered by the range.
func (r ByteRange) Length() int64 { return r.End - r.Start + 1 }

// ParseRange parses a single-range HTTP Range header against a file of
// size bytes. Returns (nil, nil) when the header is absent, meaning the
// full entity should be served with status 200.
//
// Supported forms: "bytes=a-b", "bytes=a-" (through end of file) and the
// suffix form "bytes=-n" (last n bytes). Multi-range requests, non-numeric
// offsets, start > end and start >= size all fail with
// ErrRangeNotSatisfiable.
func ParseRange(header string, size int64) (*ByteRange, error) {
	if header == "" {
		return nil, nil
	}

	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return nil, ErrRangeNotSatisfiable
	}

	startStr, endStr, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return nil, ErrRangeNotSatisfiable
	}

	if startStr == "" {
		// Suffix form: last n bytes. Clamping against an empty file would
		// produce an inverted span, so that is unsatisfiable too.
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 || size == 0 {
			return nil, ErrRangeNotSatisfiable
		}
		if n > size {
			n = size
		}
		return &ByteRange{Start: size - n, End: size - 1}, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 || start >= size {
		return nil, ErrRangeNotSatisfiable
	}

	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return nil, ErrRangeNotSatisfiable
		}
		if end > size-1 {
			end = size - 1
		}
	}

	return &ByteRange{Start: start, End: end}, nil
}
