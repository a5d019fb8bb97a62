package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang/snappy"
	"github.com/spaolacci/murmur3"
)

// ETag derives an entity tag from the dataset fingerprint, the endpoint and
// the canonical parameter key. Reports are pure functions of these three.
func ETag(fingerprint, endpoint, key string) string {
	fp := fingerprint
	if len(fp) > 16 {
		fp = fp[:16]
	}
	h := murmur3.Sum64([]byte(endpoint + "\x00" + key))
	return fmt.Sprintf(`"%s-%016x"`, fp, h)
}

// notModified reports whether the request's If-None-Match covers etag.
func notModified(r *http.Request, etag string) bool {
	inm := r.Header.Get("If-None-Match")
	if inm == "" || etag == "" {
		return false
	}
	for _, tag := range strings.Split(inm, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "*" || strings.TrimPrefix(tag, "W/") == etag {
			return true
		}
	}
	return false
}

// acceptsSnappy reports whether the client listed snappy in Accept-Encoding.
func acceptsSnappy(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(enc), ";")
		if strings.EqualFold(name, "snappy") {
			return true
		}
	}
	return false
}

// writeReport writes a successful report body. It answers 304 when the
// client already holds etag and snappy-encodes the body on request.
func writeReport(w http.ResponseWriter, r *http.Request, etag string, data interface{}) {
	if etag != "" {
		w.Header().Set("ETag", etag)
	}
	if notModified(r, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	body, err := json.Marshal(data)
	if err != nil {
		writeError(w, fmt.Errorf("encode response: %w", err), GetRequestID(r.Context()))
		return
	}
	body = append(body, '\n')

	w.Header().Set("Content-Type", "application/json")
	w.Header().Add("Vary", "Accept-Encoding")
	if acceptsSnappy(r) {
		body = snappy.Encode(nil, body)
		w.Header().Set("Content-Encoding", "snappy")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
