package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

// initReq is the JSON payload opening a chunked upload session.
type initReq struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Password string `json:"password,omitempty"`
}

// initResp tells the client how to slice the file.
type initResp struct {
	UploadID  string `json:"uploadId"`
	FileID    string `json:"fileId"`
	ChunkSize int64  `json:"chunkSize"`
}

// initHandler handles POST /api/init: validates the declared upload and
// opens a session. The client then POSTs each chunk to /api/chunk.
func (s *Server) initHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req initReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad request")
			return
		}
		req.Filename = strings.TrimSpace(req.Filename)
		if req.Filename == "" || req.Size <= 0 {
			writeError(w, http.StatusBadRequest, "filename and positive size required")
			return
		}

		sess, err := s.registry.Open(req.Filename, req.Size, req.Password)
		if err != nil {
			writeUploadError(w, err)
			return
		}

		s.metrics.RecordSessionOpen()
		writeJSON(w, http.StatusOK, initResp{
			UploadID:  sess.ID,
			FileID:    sess.FileID,
			ChunkSize: sess.ChunkSize,
		})
	})
}

type chunkResp struct {
	OK bool `json:"ok"`
}

// chunkHandler handles POST /api/chunk?uploadId=&index= with the raw chunk
// bytes as the body.
func (s *Server) chunkHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		uploadID := r.URL.Query().Get("uploadId")
		if uploadID == "" {
			writeError(w, http.StatusBadRequest, "missing uploadId")
			return
		}
		index, err := strconv.Atoi(r.URL.Query().Get("index"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad index")
			return
		}

		// Cap the body read; the receiver enforces the same bound.
		body := http.MaxBytesReader(w, r.Body, s.cfg.ChunkSize+1)

		n, err := s.registry.PutChunk(uploadID, index, body)
		if err != nil {
			writeUploadError(w, err)
			return
		}

		s.metrics.RecordChunk(n)
		writeJSON(w, http.StatusOK, chunkResp{OK: true})
	})
}

type finishReq struct {
	UploadID string `json:"uploadId"`
	FileID   string `json:"fileId"`
	Total    int    `json:"total"`
}

type finishResp struct {
	Link string `json:"link"`
}

// finishHandler handles POST /api/finish: reassembles the chunks into the
// stored object and returns the retrieval link.
func (s *Server) finishHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req finishReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad request")
			return
		}
		if req.UploadID == "" || req.FileID == "" {
			writeError(w, http.StatusBadRequest, "missing uploadId or fileId")
			return
		}

		rec, err := s.finishUpload(r.Context(), req.UploadID, req.FileID, req.Total)
		if err != nil {
			rid := RequestIDFromContext(r.Context())
			Warn("finish failed", map[string]any{
				"rid": rid, "upload_id": req.UploadID, "error": err.Error(),
			})
			writeUploadError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, finishResp{Link: s.downloadLink(r, rec.ID)})
	})
}

// downloadLink builds the retrieval URL for a file. NFS_BASE_URL wins when
// set; otherwise the link is derived from the request the way the original
// deployment did behind its proxy.
func (s *Server) downloadLink(r *http.Request, fileID string) string {
	if s.cfg.BaseURL != "" {
		return strings.TrimSuffix(s.cfg.BaseURL, "/") + "/download/" + fileID
	}

	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}
	host := r.Host
	if host == "" {
		host = "localhost" + s.cfg.Addr
	}
	return scheme + "://" + host + "/download/" + fileID
}
