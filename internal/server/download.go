package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/NavineDevs/Navine-File-Sharer/internal/store"
)

// downloadHandler streams a finished object: GET /download/{fileId}?password=
func (s *Server) downloadHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		fileID := strings.TrimPrefix(r.URL.Path, "/download/")
		if fileID == "" || strings.Contains(fileID, "/") {
			writeError(w, http.StatusBadRequest, "missing file id")
			return
		}

		rec, err := s.store.Get(fileID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "not found")
				return
			}
			rid := RequestIDFromContext(r.Context())
			Error("metadata read failed", map[string]any{"rid": rid, "file_id": fileID}, err)
			writeError(w, http.StatusInternalServerError, "metadata error")
			return
		}

		if err := authorize(rec, r.URL.Query().Get("password")); err != nil {
			s.metrics.RecordAuthFailure()
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
		defer cancel()

		obj, info, err := s.objects.Open(ctx, rec.StoredName)
		if err != nil {
			rid := RequestIDFromContext(r.Context())
			if errors.Is(err, ErrObjectNotFound) {
				// Record without object: metadata drift the sweeper will
				// repair, but this request cannot be served.
				Error("integrity fault: record without stored object", map[string]any{
					"rid": rid, "file_id": fileID, "stored_name": rec.StoredName,
				}, err)
				writeError(w, http.StatusNotFound, "not found")
				return
			}
			Error("object open failed", map[string]any{"rid": rid, "file_id": fileID}, err)
			writeError(w, http.StatusInternalServerError, "storage error")
			return
		}
		defer func() { _ = obj.Close() }()

		contentType := mime.TypeByExtension(filepath.Ext(rec.Name))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		if info.Size > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
		}

		// Encourage safe download behavior in browsers.
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="%s"`, sanitizeFilename(rec.Name)))

		w.WriteHeader(http.StatusOK)
		n, _ := io.Copy(w, obj)
		s.metrics.RecordDownload(n)
	})
}
