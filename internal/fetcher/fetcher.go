// Package fetcher performs single document fetches, streaming the body
// through every registered digest algorithm. Fetch failures are not errors:
// they come back as records carrying a negative status code, so the archive
// keeps observations of dead URLs too.
package fetcher

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hash-archive/internal/archive"
	"github.com/JakeFAU/hash-archive/internal/hashes"
)

// Config controls fetch behavior.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	RedirectMax int
}

// Fetcher issues HTTP GETs and hashes response bodies as they stream.
type Fetcher struct {
	cfg    Config
	client *http.Client
	log    *zap.Logger
}

var errTooManyRedirects = errors.New("fetcher: redirect limit exceeded")

// New builds a Fetcher.
func New(cfg Config, log *zap.Logger) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RedirectMax == 0 {
		cfg.RedirectMax = 5
	}
	client := &http.Client{
		Transport: newHTTPTransport(),
		Timeout:   cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.RedirectMax {
				return errTooManyRedirects
			}
			return nil
		},
	}
	return &Fetcher{cfg: cfg, client: client, log: log}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

// Fetch GETs url and returns the resulting record. The record's time is the
// moment the fetch started; id is left for the caller to assign. A transport
// or mid-body failure yields an error status with whatever was learned
// before the failure (digests stay empty, a partial byte count is kept).
func (f *Fetcher) Fetch(ctx context.Context, url string) archive.Response {
	start := time.Now()
	r := archive.Response{
		Time:   uint64(start.Unix()),
		URL:    url,
		Status: archive.StatusErrUnknown,
		Length: archive.LengthUnknown,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		f.log.Warn("bad fetch url", zap.String("url", url), zap.Error(err))
		return r
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		r.Status = statusForError(err)
		f.log.Info("fetch failed",
			zap.String("url", url),
			zap.Int("status", r.Status),
			zap.Error(err))
		return r
	}
	defer resp.Body.Close()

	r.Status = resp.StatusCode
	r.ContentType = resp.Header.Get("Content-Type")
	if len(r.ContentType) > archive.ContentTypeMax {
		r.ContentType = r.ContentType[:archive.ContentTypeMax]
	}

	h := hashes.NewHasher()
	n, err := io.Copy(h, resp.Body)
	r.Length = uint64(n)
	if err != nil {
		r.Status = statusForError(err)
		f.log.Info("fetch body failed",
			zap.String("url", url),
			zap.Int("status", r.Status),
			zap.Int64("bytes", n),
			zap.Error(err))
		return r
	}

	digests, err := h.Sum()
	if err != nil {
		r.Status = archive.StatusErrUnknown
		return r
	}
	r.Digests = digests

	f.log.Debug("fetched",
		zap.String("url", url),
		zap.Int("status", r.Status),
		zap.Int64("bytes", n),
		zap.Duration("elapsed", time.Since(start)))
	return r
}
