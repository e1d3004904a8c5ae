// Package delivery writes file content over HTTP with conditional-request
// and single-range support. Precedence: If-None-Match, then
// If-Modified-Since, then HEAD, then Range, then a full response.
package delivery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// copyChunk is the unit of streaming; client disconnects are noticed at
// chunk boundaries.
const copyChunk = 32 * 1024

// Resource describes the content being served.
type Resource struct {
	Name       string
	Size       int64
	MimeType   string
	ModTime    time.Time
	ETag       string
	Attachment bool
}

// ETagFor derives a validator from the stored length and last write time.
// It is not a content hash; two writes in the same instant with the same
// length are indistinguishable.
func ETagFor(size int64, updatedAt time.Time) string {
	return fmt.Sprintf("\"%x-%x\"", size, updatedAt.UnixNano())
}

// Serve writes the response for res backed by content. It returns true when
// the response delivered content (200, 206, or HEAD), which is what counts
// as a download; 304 and 416 responses return false.
func Serve(w http.ResponseWriter, r *http.Request, res Resource, content io.ReadSeeker) bool {
	h := w.Header()
	h.Set("ETag", res.ETag)
	h.Set("Last-Modified", res.ModTime.UTC().Format(http.TimeFormat))
	h.Set("Accept-Ranges", "bytes")
	h.Set("Cache-Control", "public, no-cache")
	h.Set("Content-Type", res.MimeType)
	if res.Attachment {
		h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Name))
	}

	if notModified(r, res) {
		w.WriteHeader(http.StatusNotModified)
		return false
	}

	if r.Method == http.MethodHead {
		h.Set("Content-Length", strconv.FormatInt(res.Size, 10))
		w.WriteHeader(http.StatusOK)
		return true
	}

	if rangeSpec := r.Header.Get("Range"); rangeSpec != "" && rangeApplies(r, res) {
		rng, err := parseRange(rangeSpec, res.Size)
		if err != nil {
			h.Set("Content-Range", fmt.Sprintf("bytes */%d", res.Size))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return false
		}
		if rng != nil {
			if _, err := content.Seek(rng.start, io.SeekStart); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				return false
			}
			length := rng.end - rng.start + 1
			h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.start, rng.end, res.Size))
			h.Set("Content-Length", strconv.FormatInt(length, 10))
			w.WriteHeader(http.StatusPartialContent)
			copyN(r.Context(), w, content, length)
			return true
		}
	}

	h.Set("Content-Length", strconv.FormatInt(res.Size, 10))
	w.WriteHeader(http.StatusOK)
	copyN(r.Context(), w, content, res.Size)
	return true
}

// notModified evaluates the conditional headers. If-None-Match wins over
// If-Modified-Since when both are present.
func notModified(r *http.Request, res Resource) bool {
	if match := r.Header.Get("If-None-Match"); match != "" {
		return etagMatches(match, res.ETag)
	}

	since := r.Header.Get("If-Modified-Since")
	if since == "" || res.ModTime.IsZero() {
		return false
	}
	t, err := http.ParseTime(since)
	if err != nil {
		return false
	}
	// Last-Modified carries one-second precision, so tolerate sub-second
	// drift when comparing.
	return !res.ModTime.After(t.Add(time.Second))
}

// etagMatches checks an If-None-Match header against the current validator.
// Comparison is exact per entry; weak validators are not used here.
func etagMatches(header, etag string) bool {
	if header == "*" {
		return true
	}
	for _, candidate := range strings.Split(header, ",") {
		if strings.TrimSpace(candidate) == etag {
			return true
		}
	}
	return false
}

// rangeApplies reports whether the Range header should be honored, given an
// optional If-Range validator.
func rangeApplies(r *http.Request, res Resource) bool {
	ifRange := r.Header.Get("If-Range")
	return ifRange == "" || ifRange == res.ETag
}

type byteRange struct {
	start, end int64
}

// errUnsatisfiable marks a syntactically valid range that lies outside the
// resource.
var errUnsatisfiable = fmt.Errorf("range not satisfiable")

// parseRange interprets a single bytes range. A nil result with a nil error
// means the header should be ignored and the full content served; that
// covers malformed specs and multipart ranges, which are not supported.
func parseRange(spec string, size int64) (*byteRange, error) {
	spec, ok := strings.CutPrefix(spec, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return nil, nil
	}

	first, last, ok := strings.Cut(spec, "-")
	if !ok {
		return nil, nil
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)

	if first == "" {
		// suffix form: the final n bytes
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil {
			return nil, nil
		}
		if n <= 0 {
			return nil, errUnsatisfiable
		}
		if n > size {
			n = size
		}
		// a zero-byte resource clamps to an inverted range; no suffix of it
		// is satisfiable
		rng := byteRange{start: size - n, end: size - 1}
		if rng.end < rng.start {
			return nil, errUnsatisfiable
		}
		return &rng, nil
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return nil, nil
	}
	if start >= size {
		return nil, errUnsatisfiable
	}

	end := size - 1
	if last != "" {
		end, err = strconv.ParseInt(last, 10, 64)
		if err != nil {
			return nil, nil
		}
		if end < start {
			return nil, nil
		}
		if end > size-1 {
			end = size - 1
		}
	}
	return &byteRange{start: start, end: end}, nil
}

// copyN streams up to n bytes in fixed chunks, stopping when the request
// context is cancelled. Errors are swallowed: headers are already written,
// so the only remedy for a broken client is to stop sending.
func copyN(ctx context.Context, w io.Writer, r io.Reader, n int64) {
	for n > 0 {
		if ctx.Err() != nil {
			return
		}
		chunk := int64(copyChunk)
		if chunk > n {
			chunk = n
		}
		written, err := io.CopyN(w, r, chunk)
		n -= written
		if err != nil {
			return
		}
	}
}
