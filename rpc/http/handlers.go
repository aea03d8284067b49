package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ValentinKolb/dMirror/lib/mirror"
	"github.com/ValentinKolb/dMirror/lib/record"
)

// maxBodySize limits request bodies to 4 MB
const maxBodySize = 4 << 20

// --------------------------------------------------------------------------
// Store routes
// --------------------------------------------------------------------------

func (s *Server) handleCollections(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.mirror.Info().Collections)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.mirror.Info())
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	mirror.WritePrometheus(w)
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	if err := s.mirror.Flush(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --------------------------------------------------------------------------
// Collection routes
// --------------------------------------------------------------------------

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	st, ok := s.storage(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	fields := selectFields(r)
	if q.Has("field") {
		if len(fields) > 0 {
			writeJSON(w, http.StatusBadRequest, errorBody(errors.New("field and select can not be combined")))
			return
		}
		matches, nonEmpty := st.Match(mirror.Filter{Field: q.Get("field"), Value: parseValue(q.Get("value"))})
		if !nonEmpty {
			// the collection holds no records, which is not the same as no match
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, matches)
		return
	}
	if len(fields) > 0 {
		writeJSON(w, http.StatusOK, st.Select(fields...).FetchAll())
		return
	}
	writeJSON(w, http.StatusOK, st.FetchAll())
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	st, ok := s.storage(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": st.Count()})
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	st, ok := s.storage(w, r)
	if !ok {
		return
	}
	rec, status, err := readRecord(w, r)
	if err != nil {
		writeJSON(w, status, errorBody(err))
		return
	}
	stored, err := st.Insert(rec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleTruncate(w http.ResponseWriter, r *http.Request) {
	st, ok := s.storage(w, r)
	if !ok {
		return
	}
	if err := st.Truncate(); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	st, ok := s.storage(w, r)
	if !ok {
		return
	}
	key := parseValue(r.PathValue("key"))
	rec, found := st.Get(key)
	if !found {
		writeError(w, fmt.Errorf("%w: key %v", mirror.ErrNotFound, key))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	st, ok := s.storage(w, r)
	if !ok {
		return
	}
	body, status, err := readRecord(w, r)
	if err != nil {
		writeJSON(w, status, errorBody(err))
		return
	}
	changes := make([]mirror.Change, 0, body.Len())
	body.Range(func(name string, value any) bool {
		changes = append(changes, mirror.Change{Field: name, Value: value})
		return true
	})
	updated, err := st.Update(parseValue(r.PathValue("key")), changes...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	st, ok := s.storage(w, r)
	if !ok {
		return
	}
	key := parseValue(r.PathValue("key"))
	deleted, found := st.Delete(key)
	if !found {
		writeError(w, fmt.Errorf("%w: key %v", mirror.ErrNotFound, key))
		return
	}
	writeJSON(w, http.StatusOK, deleted)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	st, ok := s.storage(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	if q.Get("on") == "" || q.Get("equals") == "" {
		writeJSON(w, http.StatusBadRequest, errorBody(errors.New("query parameters on and equals are required")))
		return
	}
	joined, err := st.InnerJoin(r.PathValue("other"), mirror.JoinOn{On: q.Get("on"), Equals: q.Get("equals")})
	if err != nil {
		writeError(w, err)
		return
	}
	if fields := selectFields(r); len(fields) > 0 {
		writeJSON(w, http.StatusOK, joined.Select(fields...).FetchAll())
		return
	}
	writeJSON(w, http.StatusOK, joined.FetchAll())
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// storage resolves the collection of the request, writing the error response if it fails
func (s *Server) storage(w http.ResponseWriter, r *http.Request) (*mirror.Storage, bool) {
	st, err := s.mirror.With(r.PathValue("collection"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return st, true
}

// statusOf maps mirror errors to HTTP status codes
func statusOf(err error) int {
	switch {
	case errors.Is(err, mirror.ErrNotReady), errors.Is(err, mirror.ErrNotOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, mirror.ErrUnknownCollection), errors.Is(err, mirror.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, mirror.ErrDuplicateKey), errors.Is(err, mirror.ErrConstraint):
		return http.StatusConflict
	case errors.Is(err, mirror.ErrMissingKey), errors.Is(err, mirror.ErrInvalidKey):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.Errorf("request failed: %v", err)
	}
	writeJSON(w, status, errorBody(err))
}

func errorBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warningf("failed to write response: %v", err)
	}
}

// readRecord decodes the JSON object in the request body.
// On failure it returns the status code to answer with.
func readRecord(w http.ResponseWriter, r *http.Request) (record.Record, int, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return record.Record{}, http.StatusRequestEntityTooLarge, fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return record.Record{}, http.StatusBadRequest, fmt.Errorf("failed to read request body: %w", err)
	}
	rec, err := record.ParseJSON(body)
	if err != nil {
		return record.Record{}, http.StatusBadRequest, fmt.Errorf("body must be a JSON object: %w", err)
	}
	return rec, http.StatusOK, nil
}

// parseValue interprets a path or query value as JSON, falling back to a plain string
func parseValue(s string) any {
	if v, err := record.ParseValue([]byte(s)); err == nil {
		return v
	}
	return s
}

func selectFields(r *http.Request) []string {
	sel := r.URL.Query().Get("select")
	if sel == "" {
		return nil
	}
	return strings.Split(sel, ",")
}
