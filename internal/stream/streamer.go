// Package stream serves media files from the local media root, honoring
// the HTTP Range protocol for video and whole-file delivery for documents.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ChunkSize is the fixed unit of the lazy copy loop. Ranges may span
// multi-gigabyte files, so the streamer never buffers more than one chunk.
const ChunkSize = 1 << 20 // 1 MiB

var (
	// ErrNotOnDisk signals catalog/filesystem drift: the catalog points at
	// a path that no longer exists. The scanner will reconcile eventually;
	// the client gets a 404 now.
	ErrNotOnDisk = errors.New("file not found on disk")

	// ErrPathEscapesRoot signals a catalog path that resolves outside the
	// media root. Never served.
	ErrPathEscapesRoot = errors.New("path escapes media root")
)

var (
	streamsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_requests_total",
		Help: "Streaming requests by outcome.",
	}, []string{"status"})

	streamBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stream_bytes_total",
		Help: "Total bytes written to streaming clients.",
	})

	activeStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stream_active",
		Help: "Streams currently in progress.",
	})

	streamDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stream_duration_seconds",
		Help:    "Duration of a streaming response, request to last byte.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	})
)

// Streamer serves files from below a single media root. Read-only; safe
// for any number of concurrent streams over the same file.
type Streamer struct {
	root   string
	logger *slog.Logger
}

// NewStreamer creates a streamer rooted at the media directory.
func NewStreamer(root string, logger *slog.Logger) *Streamer {
	return &Streamer{
		root:   filepath.Clean(root),
		logger: logger.With(slog.String("component", "streamer")),
	}
}

// Resolve joins a catalog-relative path onto the media root, refusing any
// path that escapes it.
func (s *Streamer) Resolve(relPath string) (string, error) {
	abs := filepath.Join(s.root, filepath.FromSlash(relPath))
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrPathEscapesRoot
	}
	return abs, nil
}

// Stream writes a 200 or 206 response for the file at relPath, honoring
// rangeHeader. The body is copied lazily in ChunkSize units and stops as
// soon as the client disconnects. Returns ErrNotOnDisk,
// ErrPathEscapesRoot or ErrRangeNotSatisfiable before any byte is written;
// errors after the header is sent are logged and swallowed.
func (s *Streamer) Stream(ctx context.Context, w http.ResponseWriter, relPath, rangeHeader, contentType string) error {
	start := time.Now()
	activeStreams.Inc()
	defer activeStreams.Dec()

	abs, err := s.Resolve(relPath)
	if err != nil {
		streamsTotal.WithLabelValues("not_found").Inc()
		return err
	}

	info, err := os.Stat(abs)
	if err != nil {
		streamsTotal.WithLabelValues("not_found").Inc()
		return ErrNotOnDisk
	}
	size := info.Size()

	br, err := ParseRange(rangeHeader, size)
	if err != nil {
		// Tell the client the entity size so it can re-request in bounds.
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		streamsTotal.WithLabelValues("range_error").Inc()
		return err
	}

	f, err := os.Open(abs)
	if err != nil {
		streamsTotal.WithLabelValues("not_found").Inc()
		return ErrNotOnDisk
	}
	defer f.Close()

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")

	length := size
	if br != nil {
		length = br.Length()
		if _, err := f.Seek(br.Start, io.SeekStart); err != nil {
			streamsTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("seek to %d: %w", br.Start, err)
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", br.Start, br.End, size))
		w.Header().Set("Content-Length", fmt.Sprintf("%d", length))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", length))
		w.WriteHeader(http.StatusOK)
	}

	written, err := copyChunks(ctx, w, f, length)
	streamBytesTotal.Add(float64(written))
	streamDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		// Headers are already sent; nothing to tell the client. Typical
		// cause is a seek: the player drops the connection and re-requests
		// with a new Range.
		s.logger.Debug("stream aborted",
			slog.String("path", relPath),
			slog.Int64("bytes_written", written),
			slog.String("error", err.Error()),
		)
		streamsTotal.WithLabelValues("client_gone").Inc()
		return nil
	}

	streamsTotal.WithLabelValues("success").Inc()
	return nil
}

// ServeDocument writes the whole file with a sniffed content type.
func (s *Streamer) ServeDocument(ctx context.Context, w http.ResponseWriter, relPath string) error {
	abs, err := s.Resolve(relPath)
	if err != nil {
		return err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return ErrNotOnDisk
	}

	f, err := os.Open(abs)
	if err != nil {
		return ErrNotOnDisk
	}
	defer f.Close()

	contentType := mime.TypeByExtension(filepath.Ext(abs))
	var sniffed []byte
	if contentType == "" {
		buf := make([]byte, 512)
		n, _ := io.ReadFull(f, buf)
		sniffed = buf[:n]
		contentType = http.DetectContentType(sniffed)
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))
	w.WriteHeader(http.StatusOK)

	if len(sniffed) > 0 {
		if _, err := w.Write(sniffed); err != nil {
			return nil
		}
	}
	if _, err := copyChunks(ctx, w, f, info.Size()-int64(len(sniffed))); err != nil {
		s.logger.Debug("document transfer aborted",
			slog.String("path", relPath),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// copyChunks copies exactly n bytes in ChunkSize units, checking for
// cancellation between chunks so a disconnected client releases the file
// handle within one chunk.
func copyChunks(ctx context.Context, w io.Writer, r io.Reader, n int64) (int64, error) {
	buf := make([]byte, ChunkSize)
	var written int64

	for written < n {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		chunk := int64(len(buf))
		if remaining := n - written; remaining < chunk {
			chunk = remaining
		}

		nr, rerr := io.ReadFull(r, buf[:chunk])
		if nr > 0 {
			nw, werr := w.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
		}
		if rerr != nil {
			if rerr == io.ErrUnexpectedEOF || rerr == io.EOF {
				return written, nil
			}
			return written, rerr
		}
	}
	return written, nil
}
