package server

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the server needs, resolved from NFS_* environment
// variables at startup.
type Config struct {
	Addr      string // e.g. ":3000"
	DataDir   string // root for metadata, chunk spool, stored objects
	PublicDir string // static front-end assets
	BaseURL   string // optional absolute base for download links

	MaxFileSize int64
	ChunkSize   int64
	AllowedExts map[string]bool

	RetentionMaxAge time.Duration // finished objects older than this are swept
	SweepInterval   time.Duration
	UploadMaxIdle   time.Duration // sessions idle longer than this are abandoned

	StoreBackend string // "file" or "postgres"
	DatabaseURL  string

	ObjectBackend string // "disk" or "s3"
	S3Endpoint    string
	S3AccessKey   string
	S3SecretKey   string
	Bucket        string

	Build BuildInfo
}

// BuildInfo identifies the running binary in logs and /health.
type BuildInfo struct {
	Version string
	Commit  string
}

const (
	defaultMaxFileSize = 10 << 30 // 10 GiB, same ceiling as the original deployment
	defaultChunkSize   = 5 << 20  // 5 MiB
)

// ConfigFromEnv reads the NFS_* environment and validates it, collecting
// every problem before failing so misconfiguration is reported in one shot.
func ConfigFromEnv() (Config, error) {
	v := newConfigValidator()

	cfg := Config{
		Addr:      getenvDefault("NFS_ADDR", ":3000"),
		DataDir:   getenvDefault("NFS_DATA_DIR", "data"),
		PublicDir: getenvDefault("NFS_PUBLIC_DIR", "public"),
		BaseURL:   os.Getenv("NFS_BASE_URL"),

		MaxFileSize: v.bytesOr("NFS_MAX_FILE_SIZE", defaultMaxFileSize),
		ChunkSize:   v.bytesOr("NFS_CHUNK_SIZE", defaultChunkSize),
		AllowedExts: parseExtensions(os.Getenv("NFS_ALLOWED_EXTENSIONS")),

		RetentionMaxAge: v.durationOr("NFS_RETENTION_MAX_AGE", 7*24*time.Hour),
		SweepInterval:   v.durationOr("NFS_SWEEP_INTERVAL", 12*time.Hour),
		UploadMaxIdle:   v.durationOr("NFS_UPLOAD_MAX_IDLE", 24*time.Hour),

		StoreBackend: getenvDefault("NFS_STORE_BACKEND", "file"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),

		ObjectBackend: getenvDefault("NFS_OBJECT_BACKEND", "disk"),
		S3Endpoint:    os.Getenv("NFS_S3_ENDPOINT"),
		S3AccessKey:   os.Getenv("NFS_S3_ACCESS_KEY"),
		S3SecretKey:   os.Getenv("NFS_S3_SECRET_KEY"),
		Bucket:        os.Getenv("NFS_BUCKET"),

		Build: BuildInfo{
			Version: getenvDefault("NFS_VERSION", "dev"),
			Commit:  getenvDefault("NFS_COMMIT", "unknown"),
		},
	}

	v.validatePort("NFS_ADDR", cfg.Addr)
	v.validateEnum("NFS_STORE_BACKEND", cfg.StoreBackend, []string{"file", "postgres"})
	v.validateEnum("NFS_OBJECT_BACKEND", cfg.ObjectBackend, []string{"disk", "s3"})
	if lf := os.Getenv("NFS_LOG_FORMAT"); lf != "" {
		v.validateEnum("NFS_LOG_FORMAT", lf, []string{"json", "text"})
	}
	if ll := os.Getenv("NFS_LOG_LEVEL"); ll != "" {
		v.validateEnum("NFS_LOG_LEVEL", ll, []string{"debug", "info", "warn", "error"})
	}

	if cfg.ChunkSize > cfg.MaxFileSize {
		v.addError("NFS_CHUNK_SIZE", "must not exceed NFS_MAX_FILE_SIZE")
	}
	if cfg.StoreBackend == "postgres" && cfg.DatabaseURL == "" {
		v.addError("DATABASE_URL", "required when NFS_STORE_BACKEND=postgres")
	}
	if cfg.ObjectBackend == "s3" {
		if cfg.S3Endpoint == "" || cfg.S3AccessKey == "" || cfg.S3SecretKey == "" || cfg.Bucket == "" {
			v.addError("NFS_S3_ENDPOINT", "NFS_S3_ENDPOINT, NFS_S3_ACCESS_KEY, NFS_S3_SECRET_KEY and NFS_BUCKET are required when NFS_OBJECT_BACKEND=s3")
		}
	}

	if v.hasErrors() {
		return Config{}, v.err()
	}
	return cfg, nil
}

// ExpectedChunks returns how many chunks a file of the given size splits
// into: ceil(size / chunkSize).
func (c Config) ExpectedChunks(size int64) int {
	if size <= 0 {
		return 0
	}
	return int((size + c.ChunkSize - 1) / c.ChunkSize)
}

// defaultExtensions mirrors the allow-list of the original deployment.
var defaultExtensions = []string{
	"zip", "rar", "7z", "pdf", "png", "jpg", "jpeg", "gif", "webp",
	"mp4", "webm", "mov", "avi", "mkv", "mp3", "wav", "ogg",
	"apk", "exe", "iso", "txt", "json",
}

// parseExtensions builds the allow-set from a comma-separated list, falling
// back to the default set when unset. Leading dots are tolerated.
func parseExtensions(raw string) map[string]bool {
	exts := defaultExtensions
	if strings.TrimSpace(raw) != "" {
		exts = strings.Split(raw, ",")
	}
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(e, ".")))
		if e != "" {
			set[e] = true
		}
	}
	return set
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func parseBytes(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}
