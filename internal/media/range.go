// Package media serves stored binary blobs over HTTP with byte-range
// support and normalizes the shapes those blobs arrive in from the store.
package media

import (
	"net/http"
	"regexp"
	"strconv"
)

// Response is everything needed to answer a media request.  It is computed
// up front so the caller only copies it onto the wire.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

var rangePattern = regexp.MustCompile(`^bytes=(\d*)-(\d*)$`)

// Serve answers a request for blob.  total is the advertised length and is
// capped at len(blob).  An empty rangeHeader means no Range was sent.
//
//   - no range: 200 with the whole blob
//   - satisfiable range: 206 with the inclusive slice and Content-Range
//   - anything else: 416 with Content-Range: bytes */total and no body
//
// A range whose start lies past its clamped end, including any start at or
// beyond total, is unsatisfiable.
func Serve(blob []byte, total int64, rangeHeader, contentType string) Response {
	if total < 0 || total > int64(len(blob)) {
		total = int64(len(blob))
	}
	h := http.Header{}
	h.Set("Accept-Ranges", "bytes")

	if rangeHeader == "" {
		h.Set("Content-Type", contentType)
		h.Set("Content-Length", strconv.FormatInt(total, 10))
		return Response{Status: http.StatusOK, Header: h, Body: blob[:total]}
	}

	start, end, ok := ParseRange(rangeHeader, total)
	if !ok {
		h.Set("Content-Range", "bytes */"+strconv.FormatInt(total, 10))
		h.Set("Content-Length", "0")
		return Response{Status: http.StatusRequestedRangeNotSatisfiable, Header: h, Body: []byte{}}
	}

	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.FormatInt(end-start+1, 10))
	h.Set("Content-Range", "bytes "+strconv.FormatInt(start, 10)+"-"+strconv.FormatInt(end, 10)+"/"+strconv.FormatInt(total, 10))
	return Response{Status: http.StatusPartialContent, Header: h, Body: blob[start : end+1]}
}

// ParseRange resolves a single bytes=start-end range against total.  An
// empty start means 0 and an empty end means the last byte; an end past the
// last byte is clamped.  ok is false for bad syntax, for "bytes=-" and when
// start > end after clamping.
func ParseRange(header string, total int64) (start, end int64, ok bool) {
	m := rangePattern.FindStringSubmatch(header)
	if m == nil || (m[1] == "" && m[2] == "") {
		return 0, 0, false
	}
	if m[1] != "" {
		v, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, 0, false
		}
		start = v
	}
	end = total - 1
	if m[2] != "" {
		// digits only, so a parse error is an overflow and clamps like any
		// other end past the last byte
		if v, err := strconv.ParseInt(m[2], 10, 64); err == nil && v < total {
			end = v
		}
	}
	if start > end {
		return 0, 0, false
	}
	return start, end, true
}

// Write copies r onto w.
func (r Response) Write(w http.ResponseWriter) error {
	dst := w.Header()
	for k, vs := range r.Header {
		dst[k] = vs
	}
	w.WriteHeader(r.Status)
	if len(r.Body) == 0 {
		return nil
	}
	_, err := w.Write(r.Body)
	return err
}
