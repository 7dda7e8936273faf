// Package archive defines the Response record, the fetch-error status
// taxonomy, the record's stable binary value encoding, the SURT form used
// to group URL history, and the merge relation that collapses duplicate
// observations.
package archive

import (
	"net/http"

	"github.com/JakeFAU/hash-archive/internal/hashes"
)

// Field size limits carried over from the on-disk format.
const (
	URLMax         = 1023
	ContentTypeMax = 255
)

// LengthUnknown is the sentinel stored when a response's byte count could
// not be determined.
const LengthUnknown = ^uint64(0)

// Negative status codes recorded when the fetch itself failed, disjoint
// from HTTP status codes. These values appear in archive dumps and must
// not be renumbered.
const (
	StatusErrUnknown     = -12400
	StatusErrBlocked     = -12401
	StatusErrNotFound    = -12402
	StatusErrConnRefused = -12403
	StatusErrRedirect    = -12404
	StatusErrTruncated   = -12405
	StatusErrTimedOut    = -12406

	StatusErrCertExpired       = -12501
	StatusErrCertUnverifiable  = -12502
	StatusErrCertUnknownIssuer = -12503
	StatusErrCertNotYetValid   = -12510
	StatusErrCertSelfSigned    = -12518
	StatusErrCertUntrusted     = -12526
)

var errStatusText = map[int]string{
	StatusErrUnknown:           "unknown error",
	StatusErrBlocked:           "blocked",
	StatusErrNotFound:          "not found",
	StatusErrConnRefused:       "connection refused",
	StatusErrRedirect:          "too many redirects",
	StatusErrTruncated:         "truncated response",
	StatusErrTimedOut:          "connection timed out",
	StatusErrCertExpired:       "certificate expired",
	StatusErrCertUnverifiable:  "unable to verify leaf signature",
	StatusErrCertUnknownIssuer: "unable to get issuer cert",
	StatusErrCertNotYetValid:   "certificate not yet valid",
	StatusErrCertSelfSigned:    "depth zero self-signed certificate",
	StatusErrCertUntrusted:     "certificate untrusted",
}

// StatusText describes both HTTP statuses and the fetch-error codes above.
func StatusText(status int) string {
	if status >= 0 {
		if t := http.StatusText(status); t != "" {
			return t
		}
		return "unknown status"
	}
	if t, ok := errStatusText[status]; ok {
		return t
	}
	return errStatusText[StatusErrUnknown]
}

// Response is one observation of a URL at one instant. (Time, ID) is its
// only identity; records are immutable once written.
type Response struct {
	Time        uint64
	ID          uint64
	URL         string
	Status      int
	ContentType string
	Length      uint64
	Digests     hashes.Digests
}

// OK reports whether the observation was a successful HTTP fetch.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}
