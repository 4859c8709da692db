package server

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// Metrics holds the service counters exposed on /metrics.
type Metrics struct {
	mu sync.Mutex

	requestsTotal    int64
	requestErrors4xx int64
	requestErrors5xx int64

	sessionsOpened int64
	chunksTotal    int64
	chunkBytes     int64

	uploadsTotal int64
	uploadBytes  int64

	downloadsTotal int64
	downloadBytes  int64

	authFailures int64

	sweepsTotal       int64
	sweepDeletesTotal int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RecordRequest(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestsTotal++
	switch {
	case status >= 500:
		m.requestErrors5xx++
	case status >= 400:
		m.requestErrors4xx++
	}
}

func (m *Metrics) RecordSessionOpen() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionsOpened++
}

func (m *Metrics) RecordChunk(bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunksTotal++
	m.chunkBytes += bytes
}

func (m *Metrics) RecordUpload(bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadsTotal++
	m.uploadBytes += bytes
}

func (m *Metrics) RecordDownload(bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloadsTotal++
	m.downloadBytes += bytes
}

func (m *Metrics) RecordAuthFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authFailures++
}

func (m *Metrics) RecordSweep(deleted int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepsTotal++
	m.sweepDeletesTotal += int64(deleted)
}

// Handler exposes the counters in Prometheus text format.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		m.mu.Lock()
		counters := []struct {
			name, help string
			value      int64
		}{
			{"nfs_requests_total", "Total HTTP requests", m.requestsTotal},
			{"nfs_request_errors_4xx_total", "HTTP responses with a 4xx status", m.requestErrors4xx},
			{"nfs_request_errors_5xx_total", "HTTP responses with a 5xx status", m.requestErrors5xx},
			{"nfs_upload_sessions_total", "Upload sessions opened", m.sessionsOpened},
			{"nfs_chunks_total", "Chunks received", m.chunksTotal},
			{"nfs_chunk_bytes_total", "Chunk bytes received", m.chunkBytes},
			{"nfs_uploads_total", "Uploads finished", m.uploadsTotal},
			{"nfs_upload_bytes_total", "Bytes assembled into stored objects", m.uploadBytes},
			{"nfs_downloads_total", "Downloads served", m.downloadsTotal},
			{"nfs_download_bytes_total", "Bytes served to downloaders", m.downloadBytes},
			{"nfs_auth_failures_total", "Rejected download authorizations", m.authFailures},
			{"nfs_sweeps_total", "Retention sweep cycles", m.sweepsTotal},
			{"nfs_sweep_deletes_total", "Objects deleted by sweeps", m.sweepDeletesTotal},
		}
		m.mu.Unlock()

		var out strings.Builder
		for _, c := range counters {
			out.WriteString(fmt.Sprintf("# HELP %s %s\n", c.name, c.help))
			out.WriteString(fmt.Sprintf("# TYPE %s counter\n", c.name))
			out.WriteString(fmt.Sprintf("%s %d\n", c.name, c.value))
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(out.String()))
	}
}
