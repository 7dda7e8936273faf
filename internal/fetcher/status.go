package fetcher

import (
	"bytes"
	"context"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/JakeFAU/hash-archive/internal/archive"
)

// statusForError maps a transport failure onto the archive's negative
// status codes. The mapping is coarse on purpose: the codes are a stable
// vocabulary for "why this observation has no content", not a diagnostic.
func statusForError(err error) int {
	if status, ok := certStatus(err); ok {
		return status
	}

	switch {
	case errors.Is(err, errTooManyRedirects):
		return archive.StatusErrRedirect
	case errors.Is(err, io.ErrUnexpectedEOF):
		return archive.StatusErrTruncated
	case errors.Is(err, context.DeadlineExceeded):
		return archive.StatusErrTimedOut
	case errors.Is(err, syscall.ECONNREFUSED):
		return archive.StatusErrConnRefused
	case errors.Is(err, syscall.ECONNRESET):
		return archive.StatusErrTruncated
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return archive.StatusErrNotFound
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return archive.StatusErrTimedOut
	}

	return archive.StatusErrUnknown
}

func certStatus(err error) (int, bool) {
	var invalid x509.CertificateInvalidError
	if errors.As(err, &invalid) {
		switch invalid.Reason {
		case x509.Expired:
			// The stdlib folds "not yet valid" into Expired.
			if invalid.Cert != nil && invalid.Cert.NotBefore.After(time.Now()) {
				return archive.StatusErrCertNotYetValid, true
			}
			return archive.StatusErrCertExpired, true
		case x509.NotAuthorizedToSign:
			return archive.StatusErrCertUntrusted, true
		default:
			return archive.StatusErrCertUnverifiable, true
		}
	}

	var unknownAuth x509.UnknownAuthorityError
	if errors.As(err, &unknownAuth) {
		if unknownAuth.Cert != nil && bytes.Equal(unknownAuth.Cert.RawIssuer, unknownAuth.Cert.RawSubject) {
			return archive.StatusErrCertSelfSigned, true
		}
		return archive.StatusErrCertUnknownIssuer, true
	}

	var hostname x509.HostnameError
	if errors.As(err, &hostname) {
		return archive.StatusErrCertUnverifiable, true
	}

	return 0, false
}
