package server

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/NavineDevs/Navine-File-Sharer/internal/store"
)

// orphanGrace is how old an unreferenced object must be before the sweeper
// treats it as drift rather than an in-flight finish that has written the
// object but not yet committed its record.
const orphanGrace = time.Hour

// Sweeper periodically reclaims storage: finished objects past the
// retention window, upload sessions idle past the abandonment window, and
// metadata/object drift left by earlier partial failures. Scans never
// overlap; a scan in progress suppresses a re-trigger.
type Sweeper struct {
	store    store.Store
	objects  ObjectStore
	registry *Registry
	metrics  *Metrics

	maxAge   time.Duration
	interval time.Duration
	maxIdle  time.Duration

	scanning atomic.Bool
}

// SweepStats summarizes one scan.
type SweepStats struct {
	ObjectsDeleted  int
	RecordsDeleted  int
	SessionsExpired int
	Faults          int
}

func NewSweeper(st store.Store, objects ObjectStore, registry *Registry, metrics *Metrics, cfg Config) *Sweeper {
	return &Sweeper{
		store:    st,
		objects:  objects,
		registry: registry,
		metrics:  metrics,
		maxAge:   cfg.RetentionMaxAge,
		interval: cfg.SweepInterval,
		maxIdle:  cfg.UploadMaxIdle,
	}
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	log.Printf("service=sweeper msg=%q interval=%s max_age=%s",
		"starting", s.interval, s.maxAge)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Printf("service=sweeper msg=%q", "shutting_down")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single scan, or nothing if one is already running.
func (s *Sweeper) RunOnce(ctx context.Context) SweepStats {
	if !s.scanning.CompareAndSwap(false, true) {
		log.Printf("service=sweeper msg=%q", "scan_already_running")
		return SweepStats{}
	}
	defer s.scanning.Store(false)

	start := time.Now()
	var stats SweepStats

	s.expireSessions(&stats)
	s.sweepObjects(ctx, &stats)
	s.repairRecords(ctx, &stats)

	log.Printf("service=sweeper msg=%q objects_deleted=%d records_deleted=%d sessions_expired=%d faults=%d duration_ms=%d",
		"scan_complete", stats.ObjectsDeleted, stats.RecordsDeleted,
		stats.SessionsExpired, stats.Faults, time.Since(start).Milliseconds())

	s.metrics.RecordSweep(stats.ObjectsDeleted)
	return stats
}

// expireSessions abandons idle sessions and reclaims chunk directories,
// including spool directories left behind by a previous process.
func (s *Sweeper) expireSessions(stats *SweepStats) {
	for _, sess := range s.registry.Expire(s.maxIdle) {
		if err := os.RemoveAll(s.registry.ChunkDir(sess.ID)); err != nil {
			log.Printf("service=sweeper msg=%q upload_id=%s err=%v", "session_dir_delete_failed", sess.ID, err)
			continue
		}
		log.Printf("service=sweeper msg=%q upload_id=%s", "session_abandoned", sess.ID)
		stats.SessionsExpired++
	}

	// Spool dirs with no active session: leftovers from a restart. Chunked
	// uploads do not survive the process, so age them out like sessions.
	entries, err := os.ReadDir(s.registry.Spool())
	if err != nil {
		log.Printf("service=sweeper msg=%q err=%v", "spool_scan_failed", err)
		return
	}
	cutoff := time.Now().Add(-s.maxIdle)
	for _, e := range entries {
		if !e.IsDir() || s.registry.Active(e.Name()) {
			continue
		}
		fi, err := e.Info()
		if err != nil || fi.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.registry.Spool(), e.Name())); err != nil {
			log.Printf("service=sweeper msg=%q dir=%s err=%v", "spool_dir_delete_failed", e.Name(), err)
			continue
		}
		log.Printf("service=sweeper msg=%q upload_id=%s", "stale_spool_reclaimed", e.Name())
		stats.SessionsExpired++
	}
}

// sweepObjects deletes expired objects together with their records, and
// reports objects that no record references.
func (s *Sweeper) sweepObjects(ctx context.Context, stats *SweepStats) {
	infos, err := s.objects.List(ctx)
	if err != nil {
		log.Printf("service=sweeper msg=%q err=%v", "object_list_failed", err)
		return
	}

	now := time.Now()
	for _, info := range infos {
		age := now.Sub(info.ModTime)
		fileID := fileIDFromStoredName(info.Name)

		_, err := s.store.Get(fileID)
		switch {
		case err == nil:
			if age <= s.maxAge {
				continue
			}
			// Object and record go as one logical unit, object first; a
			// failure in between leaves drift that repairRecords or the
			// orphan path below resolves on a later pass.
			if err := s.objects.Remove(ctx, info.Name); err != nil {
				log.Printf("service=sweeper msg=%q name=%s err=%v", "object_delete_failed", info.Name, err)
				continue
			}
			stats.ObjectsDeleted++
			if err := s.store.Remove(fileID); err != nil {
				log.Printf("service=sweeper msg=%q file_id=%s err=%v", "record_delete_failed", fileID, err)
				stats.Faults++
				continue
			}
			stats.RecordsDeleted++
			log.Printf("service=sweeper msg=%q file_id=%s age=%s", "expired_file_deleted", fileID, age)

		case errors.Is(err, store.ErrNotFound):
			if age < orphanGrace {
				continue // likely an in-flight finish
			}
			Error("integrity fault: stored object has no metadata record", map[string]any{
				"stored_name": info.Name,
				"age":         age.String(),
			}, nil)
			stats.Faults++
			if age > s.maxAge {
				if err := s.objects.Remove(ctx, info.Name); err != nil {
					log.Printf("service=sweeper msg=%q name=%s err=%v", "orphan_delete_failed", info.Name, err)
					continue
				}
				stats.ObjectsDeleted++
			}

		default:
			log.Printf("service=sweeper msg=%q file_id=%s err=%v", "record_lookup_failed", fileID, err)
		}
	}
}

// repairRecords removes records whose stored object has vanished.
func (s *Sweeper) repairRecords(ctx context.Context, stats *SweepStats) {
	recs, err := s.store.List()
	if err != nil {
		log.Printf("service=sweeper msg=%q err=%v", "record_list_failed", err)
		return
	}

	for _, rec := range recs {
		_, err := s.objects.Stat(ctx, rec.StoredName)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrObjectNotFound) {
			log.Printf("service=sweeper msg=%q name=%s err=%v", "object_stat_failed", rec.StoredName, err)
			continue
		}
		Error("integrity fault: metadata record without stored object", map[string]any{
			"file_id":     rec.ID,
			"stored_name": rec.StoredName,
		}, nil)
		stats.Faults++
		if err := s.store.Remove(rec.ID); err != nil {
			log.Printf("service=sweeper msg=%q file_id=%s err=%v", "record_repair_failed", rec.ID, err)
			continue
		}
		stats.RecordsDeleted++
	}
}

// fileIDFromStoredName recovers the file id from a fileID-prefixed object
// name.
func fileIDFromStoredName(name string) string {
	// uuid.NewString output contains dashes, so split on the dash after
	// the 36-char id rather than the first one.
	if len(name) > 36 && name[36] == '-' {
		return name[:36]
	}
	if i := strings.IndexByte(name, '-'); i > 0 {
		return name[:i]
	}
	return name
}
