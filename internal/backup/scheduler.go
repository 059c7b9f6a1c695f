package backup

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/moltbot/moltproxy/internal/metrics"
)

// Store is the slice of the object store the scheduler needs.
type Store interface {
	Upload(ctx context.Context, key, localPath string) (int64, error)
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// KeyFunc names the next archive in the bucket.
type KeyFunc func() string

// maxRetainedBackups bounds how many archives pruning leaves behind.
const maxRetainedBackups = 10

// Scheduler periodically archives the persistent data directory to object
// storage and restores archives back into it. It runs detached from
// request handling: a failed or slow backup never touches gateway
// lifecycle state beyond sharing the data dir.
type Scheduler struct {
	store    Store
	key      KeyFunc
	prefix   string // key prefix shared by all archives, used for list/prune
	dataDir  string
	interval time.Duration

	runMu sync.Mutex // serializes overlapping manual + ticker runs
	stop  chan struct{}
	done  chan struct{}
}

// NewScheduler creates a backup scheduler.
func NewScheduler(store Store, key KeyFunc, prefix, dataDir string, interval time.Duration) *Scheduler {
	return &Scheduler{
		store:    store,
		key:      key,
		prefix:   prefix,
		dataDir:  dataDir,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the periodic backup loop.
func (s *Scheduler) Start() {
	go s.loop()
	log.Printf("backup: started (dir=%s, interval=%s)", s.dataDir, s.interval)
}

// Stop signals the loop to exit and waits for it to finish.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
	log.Println("backup: stopped")
}

func (s *Scheduler) loop() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.RunOnce(context.Background()); err != nil {
				log.Printf("backup: run failed: %v", err)
			}
		case <-s.stop:
			return
		}
	}
}

// RunOnce archives the data dir and uploads it. Also the manual trigger
// behind the admin API.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if _, err := os.Stat(s.dataDir); err != nil {
		// Mount not present yet; nothing to back up.
		return fmt.Errorf("data dir unavailable: %w", err)
	}

	t0 := time.Now()
	archivePath, entries, err := ArchiveToFile(s.dataDir)
	if err != nil {
		metrics.BackupFailures.Inc()
		return fmt.Errorf("archive: %w", err)
	}
	defer os.Remove(archivePath)

	uploadCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	key := s.key()
	size, err := s.store.Upload(uploadCtx, key, archivePath)
	if err != nil {
		metrics.BackupFailures.Inc()
		return fmt.Errorf("upload %s: %w", key, err)
	}

	metrics.BackupDuration.Observe(time.Since(t0).Seconds())
	metrics.BackupBytes.Add(float64(size))
	log.Printf("backup: completed in %dms (%d entries, %d bytes, key=%s)",
		time.Since(t0).Milliseconds(), entries, size, key)

	if err := s.prune(uploadCtx); err != nil {
		// Old archives linger until the next successful prune.
		log.Printf("backup: prune failed: %v", err)
	}
	return nil
}

// prune deletes the oldest archives beyond the retention bound. Keys are
// timestamped, so lexicographic order is age order.
func (s *Scheduler) prune(ctx context.Context) error {
	keys, err := s.store.List(ctx, s.prefix)
	if err != nil {
		return err
	}
	if len(keys) <= maxRetainedBackups {
		return nil
	}
	sort.Strings(keys)
	for _, key := range keys[:len(keys)-maxRetainedBackups] {
		if err := s.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		log.Printf("backup: pruned %s", key)
	}
	return nil
}

// Restore downloads an archive and unpacks it over the data dir. An empty
// key selects the most recent archive.
func (s *Scheduler) Restore(ctx context.Context, key string) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if key == "" {
		keys, err := s.store.List(ctx, s.prefix)
		if err != nil {
			return fmt.Errorf("list backups: %w", err)
		}
		if len(keys) == 0 {
			return fmt.Errorf("no backups found under %s", s.prefix)
		}
		sort.Strings(keys)
		key = keys[len(keys)-1]
	}

	t0 := time.Now()
	rc, err := s.store.Download(ctx, key)
	if err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}
	defer rc.Close()

	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	entries, err := Extract(rc, s.dataDir)
	if err != nil {
		return fmt.Errorf("extract %s: %w", key, err)
	}
	log.Printf("backup: restored %s in %dms (%d entries)",
		key, time.Since(t0).Milliseconds(), entries)
	return nil
}
