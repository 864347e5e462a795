package cronjob

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CacheJanitor deletes render cache files that have not been used for ttl.
type CacheJanitor struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

func NewCacheJanitor(dir string, ttl time.Duration) *CacheJanitor {
	return &CacheJanitor{dir: dir, ttl: ttl, now: time.Now}
}

// Prune removes stale PNGs and abandoned temp files and reports how many
// were deleted. A missing directory is not an error.
func (j *CacheJanitor) Prune() (int, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := j.now().Add(-j.ttl)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".png") && !strings.HasSuffix(name, ".tmp") {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(j.dir, name)); err != nil && !os.IsNotExist(err) {
			log.Printf("[janitor] remove=%s error=%v", name, err)
			continue
		}
		removed++
	}
	return removed, nil
}

// Run is the cron entry point.
func (j *CacheJanitor) Run() {
	n, err := j.Prune()
	if err != nil {
		log.Printf("[janitor] dir=%s error=%v", j.dir, err)
		return
	}
	if n > 0 {
		log.Printf("[janitor] dir=%s removed=%d", j.dir, n)
	}
}
