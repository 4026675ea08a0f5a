package httpapi

import (
	"encoding/xml"
	"errors"
	"io"
	"net/http"

	"github.com/vitality-ai/warpdrive/internal/apierr"
	"github.com/vitality-ai/warpdrive/internal/logger"
)

// writeError maps err to an HTTP status via apierr.StatusCode and writes a
// short plain-text body, per spec.md §7: error bodies are short plain
// strings, no specific error XML is mandated.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apierr.StatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorCtx(r.Context(), "httpapi: request failed", "path", r.URL.Path, "error", err)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(err.Error()))
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func writeBytes(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// writeXML marshals v as an XML document with the standard header and a
// 200 status, the shape every S3 response body in §6 uses on success.
func writeXML(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_ = xml.NewEncoder(w).Encode(v)
}

// readBody reads the full request body, capped at limit bytes. Exceeding
// the cap fails the request before any chunk store write, per §5
// backpressure.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, apierr.Wrap(apierr.ErrBadRequest, "request body exceeds the configured size limit")
		}
		return nil, apierr.Wrap(apierr.ErrBadRequest, "failed to read request body")
	}
	return data, nil
}
