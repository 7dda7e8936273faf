package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hash-archive/internal/archive"
	"github.com/JakeFAU/hash-archive/internal/hashes"
	"github.com/JakeFAU/hash-archive/internal/metrics"
	"github.com/JakeFAU/hash-archive/internal/scheduler"
)

// recordDTO is the JSON shape of one observation. Timestamp is unix
// milliseconds; length is null when unknown; group links records the merge
// relation judged equal (records sharing a group value are duplicates, the
// first listed member is the newest).
type recordDTO struct {
	URL        string   `json:"url"`
	Timestamp  uint64   `json:"timestamp"`
	Status     int      `json:"status"`
	StatusText string   `json:"status_text,omitempty"`
	Type       string   `json:"type,omitempty"`
	Length     *uint64  `json:"length"`
	Group      int      `json:"group"`
	Hashes     []string `json:"hashes"`
}

type sourceDTO struct {
	recordDTO
	Latest bool `json:"latest"`
}

func toRecordDTO(r *archive.Response, group int) recordDTO {
	dto := recordDTO{
		URL:       r.URL,
		Timestamp: r.Time * 1000,
		Status:    r.Status,
		Type:      r.ContentType,
		Group:     group,
		Hashes:    []string{},
	}
	if r.Status < 0 {
		dto.StatusText = archive.StatusText(r.Status)
	}
	if r.Length != archive.LengthUnknown {
		length := r.Length
		dto.Length = &length
	}
	for _, algo := range hashes.Algos() {
		digest := r.Digests.Get(algo)
		if len(digest) == 0 {
			continue
		}
		uri, err := hashes.URI{Type: hashes.TypeHashURI, Algo: algo, Digest: digest}.Format()
		if err != nil {
			continue
		}
		dto.Hashes = append(dto.Hashes, uri)
	}
	return dto
}

func (s *Server) getRecent(w http.ResponseWriter, _ *http.Request) {
	rs, err := s.store.Recent(s.cfg.API.HistoryMax)
	if err != nil {
		s.logger.Error("recent query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	out := make([]recordDTO, 0, len(rs))
	for i := range rs {
		out = append(out, toRecordDTO(&rs[i], i))
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": out})
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if err := archive.ValidateURL(url); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rs, groups, err := s.store.History(url, s.cfg.API.HistoryMax)
	if err != nil {
		s.logger.Error("history query failed", zap.String("url", url), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	out := make([]recordDTO, 0, len(rs))
	for i := range rs {
		out = append(out, toRecordDTO(&rs[i], groups[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": url, "records": out})
}

func (s *Server) getSources(w http.ResponseWriter, r *http.Request) {
	param := strings.TrimSpace(r.URL.Query().Get("hash"))
	if param == "" {
		writeError(w, http.StatusBadRequest, "missing hash parameter")
		return
	}
	uri, err := hashes.Parse(param)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unrecognized hash format")
		return
	}
	srcs, groups, err := s.store.Sources(uri.Algo, uri.Digest, s.cfg.API.SourcesMax)
	if err != nil {
		s.logger.Error("sources query failed", zap.String("hash", param), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	out := make([]sourceDTO, 0, len(srcs))
	for i := range srcs {
		out = append(out, sourceDTO{
			recordDTO: toRecordDTO(&srcs[i].Response, groups[i]),
			Latest:    srcs[i].Latest,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"hash": param, "records": out})
}

type enqueueRequest struct {
	URL  string `json:"url"`
	Wait bool   `json:"wait"`
}

// postEnqueue queues a crawl. With "wait": true the handler blocks until
// the crawl commits or the wait budget runs out; a fresh record inside the
// crawl-delay window returns immediately.
func (s *Server) postEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := archive.ValidateURL(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	client := clientIdentity(r)

	if !req.Wait {
		fresh, err := s.queue.Enqueue(req.URL, client)
		if err != nil {
			s.writeEnqueueError(w, req.URL, err)
			return
		}
		if fresh {
			writeJSON(w, http.StatusOK, map[string]string{"status": "fresh", "url": req.URL})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "url": req.URL})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(s.cfg.API.WaitMaxSec)*time.Second)
	defer cancel()
	start := time.Now()
	rtime, id, found, err := s.queue.EnqueueAndWait(ctx, req.URL, client)
	metrics.ObserveWait(time.Since(start))
	if err != nil {
		s.writeEnqueueError(w, req.URL, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "pending", "url": req.URL})
		return
	}
	rec, err := s.store.Get(rtime, id)
	if err != nil {
		s.logger.Error("fetch committed record failed",
			zap.Uint64("time", rtime), zap.Uint64("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	s.logger.Debug("enqueue wait satisfied",
		zap.String("url", req.URL),
		zap.Duration("waited", time.Since(start)))
	writeJSON(w, http.StatusOK, map[string]any{"record": toRecordDTO(&rec, 0)})
}

func (s *Server) writeEnqueueError(w http.ResponseWriter, url string, err error) {
	if errors.Is(err, scheduler.ErrBusy) {
		writeError(w, http.StatusServiceUnavailable, "conflicting enqueue, retry")
		return
	}
	if errors.Is(err, archive.ErrURLInvalid) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error("enqueue failed", zap.String("url", url), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "enqueue failed")
}
