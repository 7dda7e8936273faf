package archive

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrURLInvalid marks crawl targets the archive cannot represent.
var ErrURLInvalid = errors.New("archive: invalid url")

// SURT returns the Sort-friendly URL Reordering Transform of raw: the
// scheme and host lowercased, the fragment dropped, and the domain labels
// reversed inside parens so every observation of one host sorts into a
// contiguous key range.
//
//	http://www.Example.com:8080/a?q=1 -> http://(com,example,www,):8080/a?q=1
//
// See https://github.com/internetarchive/surt for the original transform.
func SURT(raw string) (string, error) {
	u, err := parseURL(raw)
	if err != nil {
		return "", err
	}

	labels := strings.Split(strings.ToLower(u.Hostname()), ".")
	var b strings.Builder
	b.WriteString(strings.ToLower(u.Scheme))
	b.WriteString("://(")
	for i := len(labels) - 1; i >= 0; i-- {
		b.WriteString(labels[i])
		b.WriteByte(',')
	}
	b.WriteByte(')')
	if port := u.Port(); port != "" {
		b.WriteByte(':')
		b.WriteString(port)
	}
	b.WriteString(u.EscapedPath())
	if u.RawQuery != "" {
		b.WriteByte('?')
		b.WriteString(u.RawQuery)
	}
	return b.String(), nil
}

// ValidateURL rejects malformed or oversized crawl targets before any
// transaction begins.
func ValidateURL(raw string) error {
	if len(raw) > URLMax {
		return fmt.Errorf("%w: exceeds %d bytes", ErrURLInvalid, URLMax)
	}
	u, err := parseURL(raw)
	if err != nil {
		return err
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return nil
	default:
		return fmt.Errorf("%w: unsupported scheme %q", ErrURLInvalid, u.Scheme)
	}
}

func parseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrURLInvalid, err)
	}
	if u.Scheme == "" || u.Host == "" || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q missing scheme or host", ErrURLInvalid, raw)
	}
	return u, nil
}
