package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/welth-app/receiptflow/internal/normalize"
)

const defaultMaxUploadBytes = 10 << 20

// handleNormalizeSync normalizes a multipart upload in the request
// itself and streams the JPEG back, skipping the queue and store
// entirely. Small receipts take this path from mobile clients.
func (s *Server) handleNormalizeSync(w http.ResponseWriter, r *http.Request) {
	outcome := "ok"
	defer func() {
		s.metrics.syncNormalizeTotal.WithLabelValues(outcome).Inc()
	}()

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		outcome = "bad_request"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": fmt.Sprintf("upload exceeds %d bytes", maxBytesErr.Limit),
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": `multipart field "file" is required`})
		return
	}
	defer file.Close()

	bound := normalize.DefaultMaxDimension
	if raw := strings.TrimSpace(r.FormValue("max_dimension")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			outcome = "bad_request"
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "max_dimension must be a non-negative integer"})
			return
		}
		if parsed > 0 {
			bound = parsed
		}
	}

	data, err := io.ReadAll(file)
	if err != nil {
		outcome = "bad_request"
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read upload"})
		return
	}

	src := normalize.File{
		Name: header.Filename,
		MIME: header.Header.Get("Content-Type"),
		Data: data,
	}

	out, err := s.normalizer.Normalize(r.Context(), src, bound)
	if err != nil {
		if errors.Is(err, normalize.ErrDecode) {
			outcome = "decode_failed"
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return
		}
		outcome = "encode_failed"
		s.logger.Printf("sync normalize failed file=%s: %v", header.Filename, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "normalize failed"})
		return
	}

	w.Header().Set("Content-Type", out.MIME)
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out.Name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Data)
}
