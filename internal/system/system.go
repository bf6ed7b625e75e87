// Package system reports process health and storage use to administrators.
package system

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"

	checkTimeout = 2 * time.Second

	// DefaultUploadWarnBytes is where upload storage is reported as low on space.
	DefaultUploadWarnBytes = 1 << 30
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// SQL pings the pool behind a gorm handle.
type SQL struct {
	DB *gorm.DB
}

func (p SQL) Ping(ctx context.Context) error {
	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Dir is a storage area whose size is reported.
type Dir struct {
	Name string
	Path string // shown to admins only
	Fs   afero.Fs
}

type Monitor struct {
	Checks          map[string]Pinger
	Dirs            []Dir
	UploadDir       string // name of the entry in Dirs checked against UploadWarnBytes
	UploadWarnBytes int64
	Started         time.Time
	Log             logrus.FieldLogger
	Now             func() time.Time
}

func NewMonitor(checks map[string]Pinger, dirs []Dir, lg logrus.FieldLogger) *Monitor {
	return &Monitor{
		Checks:          checks,
		Dirs:            dirs,
		UploadDir:       "uploads",
		UploadWarnBytes: DefaultUploadWarnBytes,
		Started:         time.Now(),
		Log:             lg,
		Now:             time.Now,
	}
}

type DirUsage struct {
	Path   string `json:"path,omitempty"`
	Files  int    `json:"files"`
	Size   int64  `json:"size"`
	SizeMB string `json:"size_mb"`
}

type Usage struct {
	Dirs  map[string]DirUsage `json:"dirs"`
	Total DirUsage            `json:"total"`
}

type Runtime struct {
	GoVersion  string `json:"go_version"`
	Goroutines int    `json:"goroutines"`
	CPUs       int    `json:"cpus"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"num_gc"`
}

type Health struct {
	Status        string            `json:"status"`
	Timestamp     time.Time         `json:"timestamp"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
	Runtime       Runtime           `json:"runtime"`
	Disk          Usage             `json:"disk"`
	DiskSpaceOK   bool              `json:"disk_space_ok"`
}

func megabytes(n int64) string { return fmt.Sprintf("%.2f", float64(n)/1024/1024) }

// DiskUsage walks every configured directory.
func (m *Monitor) DiskUsage() (Usage, error) {
	u := Usage{Dirs: make(map[string]DirUsage, len(m.Dirs))}
	for _, d := range m.Dirs {
		du := DirUsage{Path: d.Path}
		err := afero.Walk(d.Fs, "/", func(_ string, info os.FileInfo, err error) error {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			if err != nil {
				return err
			}
			if !info.IsDir() {
				du.Files++
				du.Size += info.Size()
			}
			return nil
		})
		if err != nil {
			return Usage{}, fmt.Errorf("%s: %w", d.Name, err)
		}
		du.SizeMB = megabytes(du.Size)
		u.Dirs[d.Name] = du
		u.Total.Files += du.Files
		u.Total.Size += du.Size
	}
	u.Total.SizeMB = megabytes(u.Total.Size)
	return u, nil
}

// Health runs the dependency checks in parallel. A failed check degrades the
// status; it is not an error.
func (m *Monitor) Health(ctx context.Context) (Health, error) {
	now := m.Now()
	h := Health{
		Status:        StatusHealthy,
		Timestamp:     now,
		UptimeSeconds: int64(now.Sub(m.Started).Seconds()),
		Checks:        make(map[string]string, len(m.Checks)),
	}

	names := make([]string, 0, len(m.Checks))
	for name := range m.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	var mu sync.Mutex
	var g errgroup.Group
	for _, name := range names {
		p := m.Checks[name]
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			res := "ok"
			if err := p.Ping(cctx); err != nil {
				m.Log.WithError(err).WithField("check", name).Warn("health check failed")
				res = "unavailable"
			}
			mu.Lock()
			h.Checks[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	for _, res := range h.Checks {
		if res != "ok" {
			h.Status = StatusDegraded
		}
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	h.Runtime = Runtime{
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
		CPUs:       runtime.NumCPU(),
		HeapAlloc:  ms.HeapAlloc,
		Sys:        ms.Sys,
		NumGC:      ms.NumGC,
	}

	disk, err := m.DiskUsage()
	if err != nil {
		return Health{}, err
	}
	h.Disk = disk
	h.DiskSpaceOK = true
	if up, ok := disk.Dirs[m.UploadDir]; ok && m.UploadWarnBytes > 0 && up.Size > m.UploadWarnBytes {
		h.DiskSpaceOK = false
		m.Log.WithFields(logrus.Fields{"size_mb": up.SizeMB, "threshold_mb": megabytes(m.UploadWarnBytes)}).
			Warn("upload storage exceeds threshold")
	}
	return h, nil
}
