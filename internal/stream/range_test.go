package stream

import (
	"errors"
	"testing"
)

func TestParseRange(t *testing.T) {
	const size = 10_000_000

	tests := []struct {
		name    string
		header  string
		want    *ByteRange
		wantErr bool
	}{
		{name: "absent header means full entity", header: "", want: nil},
		{name: "explicit range", header: "bytes=0-999999", want: &ByteRange{0, 999999}},
		{name: "open end", header: "bytes=9999990-", want: &ByteRange{9999990, size - 1}},
		{name: "suffix form", header: "bytes=-10", want: &ByteRange{size - 10, size - 1}},
		{name: "suffix longer than file", header: "bytes=-20000000", want: &ByteRange{0, size - 1}},
		{name: "end clamped to size", header: "bytes=100-99999999", want: &ByteRange{100, size - 1}},
		{name: "single byte", header: "bytes=5-5", want: &ByteRange{5, 5}},
		{name: "start at size", header: "bytes=10000000-", wantErr: true},
		{name: "start past size", header: "bytes=20000000-20000001", wantErr: true},
		{name: "start after end", header: "bytes=10-5", wantErr: true},
		{name: "non-numeric start", header: "bytes=abc-5", wantErr: true},
		{name: "non-numeric end", header: "bytes=0-xyz", wantErr: true},
		{name: "missing unit", header: "0-100", wantErr: true},
		{name: "wrong unit", header: "items=0-100", wantErr: true},
		{name: "multi-range", header: "bytes=0-5,10-15", wantErr: true},
		{name: "bare dash", header: "bytes=-", wantErr: true},
		{name: "empty spec", header: "bytes=", wantErr: true},
		{name: "negative suffix", header: "bytes=--5", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRange(tt.header, size)
			if tt.wantErr {
				if !errors.Is(err, ErrRangeNotSatisfiable) {
					t.Fatalf("ParseRange(%q) error = %v, want ErrRangeNotSatisfiable", tt.header, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRange(%q) unexpected error: %v", tt.header, err)
			}
			if tt.want == nil {
				if got != nil {
					t.Fatalf("ParseRange(%q) = %+v, want nil", tt.header, got)
				}
				return
			}
			if got == nil || *got != *tt.want {
				t.Fatalf("ParseRange(%q) = %+v, want %+v", tt.header, got, tt.want)
			}
		})
	}
}

// Every range form is unsatisfiable against a zero-byte file; in
// particular the suffix form must not clamp its way into an inverted span.
func TestParseRangeEmptyFile(t *testing.T) {
	for _, header := range []string{"bytes=-10", "bytes=-1", "bytes=0-", "bytes=0-0"} {
		got, err := ParseRange(header, 0)
		if !errors.Is(err, ErrRangeNotSatisfiable) {
			t.Errorf("ParseRange(%q, 0) = %+v, %v, want ErrRangeNotSatisfiable", header, got, err)
		}
	}

	if got, err := ParseRange("", 0); got != nil || err != nil {
		t.Errorf("ParseRange(\"\", 0) = %+v, %v, want full entity", got, err)
	}
}

func TestByteRangeLength(t *testing.T) {
	if got := (ByteRange{0, 999999}).Length(); got != 1_000_000 {
		t.Errorf("Length() = %d, want 1000000", got)
	}
	if got := (ByteRange{5, 5}).Length(); got != 1 {
		t.Errorf("Length() = %d, want 1", got)
	}
}
