// Package backup writes logical snapshots of the business tables as gzipped
// JSON files and manages their retention.
package backup

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"printshop/internal/apperr"
)

const (
	prefix     = "db_backup_"
	suffix     = ".json.gz"
	stampFmt   = "20060102-150405.000"
	SnapshotV1 = 1
)

// Tables are snapshotted parents first so a restore can insert in order.
var Tables = []string{"machines", "job_types", "pricing", "users", "jobs", "messages", "audit_logs"}

var nameRe = regexp.MustCompile(`^db_backup_\d{8}-\d{6}\.\d{3}\.json\.gz$`)

var (
	ErrInvalidName = apperr.Validation("invalid_backup_name", "Invalid backup file name").WithField("name")
	ErrNotFound    = apperr.NotFound("backup_not_found", "Backup not found")
	ErrVersion     = apperr.BusinessRule("backup_version", "Backup was written by an unsupported version")
)

type Snapshot struct {
	Version   int                         `json:"version"`
	CreatedAt time.Time                   `json:"created_at"`
	Tables    map[string][]map[string]any `json:"tables"`
}

// Source reads every row of the given tables and can replace them.
type Source interface {
	Dump(ctx context.Context, tables []string) (map[string][]map[string]any, error)
	// Restore empties tables (children first) and inserts rows in order.
	Restore(ctx context.Context, tables []string, rows map[string][]map[string]any) error
}

type Info struct {
	Name      string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created"`
}

type Manager struct {
	Fs     afero.Fs
	Source Source
	Log    logrus.FieldLogger
	Now    func() time.Time
}

func NewManager(fs afero.Fs, dir string, src Source, lg logrus.FieldLogger) (*Manager, error) {
	if err := fs.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("backup dir: %w", err)
	}
	return &Manager{Fs: afero.NewBasePathFs(fs, dir), Source: src, Log: lg, Now: time.Now}, nil
}

func (m *Manager) Create(ctx context.Context) (Info, error) {
	started := m.Now().UTC()
	rows, err := m.Source.Dump(ctx, Tables)
	if err != nil {
		m.Log.WithError(err).Error("database backup failed")
		return Info{}, err
	}
	name := prefix + started.Format(stampFmt) + suffix

	f, err := m.Fs.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return Info{}, err
	}
	gz := gzip.NewWriter(f)
	err = json.NewEncoder(gz).Encode(Snapshot{Version: SnapshotV1, CreatedAt: started, Tables: rows})
	if cerr := gz.Close(); err == nil {
		err = cerr
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = m.Fs.Remove(name)
		m.Log.WithError(err).WithField("file", name).Error("database backup failed")
		return Info{}, err
	}

	st, err := m.Fs.Stat(name)
	if err != nil {
		return Info{}, err
	}
	counts := logrus.Fields{"file": name, "size": st.Size()}
	for t, r := range rows {
		counts[t] = len(r)
	}
	m.Log.WithFields(counts).Info("database backup created")
	return Info{Name: name, Size: st.Size(), CreatedAt: started}, nil
}

// List returns backups newest first. Unknown files in the directory are
// ignored.
func (m *Manager) List() ([]Info, error) {
	entries, err := afero.ReadDir(m.Fs, "/")
	if err != nil {
		return nil, err
	}
	out := []Info{}
	for _, e := range entries {
		if e.IsDir() || !nameRe.MatchString(e.Name()) {
			continue
		}
		at, err := stampOf(e.Name())
		if err != nil {
			continue
		}
		out = append(out, Info{Name: e.Name(), Size: e.Size(), CreatedAt: at})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name > out[k].Name })
	return out, nil
}

func stampOf(name string) (time.Time, error) {
	s := strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)
	return time.ParseInLocation(stampFmt, s, time.UTC)
}

func (m *Manager) check(name string) error {
	if !nameRe.MatchString(name) {
		return ErrInvalidName
	}
	ok, err := afero.Exists(m.Fs, name)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (m *Manager) Delete(name string) error {
	if err := m.check(name); err != nil {
		return err
	}
	if err := m.Fs.Remove(name); err != nil {
		return err
	}
	m.Log.WithField("file", name).Info("backup deleted")
	return nil
}

// Load reads a snapshot back.
func (m *Manager) Load(name string) (Snapshot, error) {
	if err := m.check(name); err != nil {
		return Snapshot{}, err
	}
	f, err := m.Fs.Open(name)
	if err != nil {
		return Snapshot{}, err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return Snapshot{}, err
	}
	defer gz.Close()
	var s Snapshot
	dec := json.NewDecoder(gz)
	dec.UseNumber()
	if err := dec.Decode(&s); err != nil {
		return Snapshot{}, fmt.Errorf("decode %s: %w", name, err)
	}
	return s, nil
}

// Restore replaces the database contents with the snapshot in name. The
// current data is backed up first; its Info is returned.
func (m *Manager) Restore(ctx context.Context, name string) (Info, error) {
	snap, err := m.Load(name)
	if err != nil {
		return Info{}, err
	}
	if snap.Version != SnapshotV1 {
		return Info{}, ErrVersion
	}
	var tables []string
	for _, t := range Tables {
		if _, ok := snap.Tables[t]; ok {
			tables = append(tables, t)
		}
	}

	safety, err := m.Create(ctx)
	if err != nil {
		return Info{}, fmt.Errorf("safety backup: %w", err)
	}
	if err := m.Source.Restore(ctx, tables, snap.Tables); err != nil {
		m.Log.WithError(err).WithFields(logrus.Fields{"file": name, "safety": safety.Name}).Error("database restore failed")
		return Info{}, err
	}
	m.Log.WithFields(logrus.Fields{"file": name, "safety": safety.Name, "tables": len(tables)}).Info("database restored")
	return safety, nil
}

// Prune keeps the newest keep backups and deletes the rest.
func (m *Manager) Prune(keep int) ([]string, error) {
	list, err := m.List()
	if err != nil {
		return nil, err
	}
	if keep < 0 {
		keep = 0
	}
	var deleted []string
	for _, b := range list[min(keep, len(list)):] {
		if err := m.Fs.Remove(b.Name); err != nil {
			m.Log.WithError(err).WithField("file", b.Name).Warn("delete old backup")
			continue
		}
		deleted = append(deleted, b.Name)
		m.Log.WithField("file", b.Name).Info("old backup deleted")
	}
	m.Log.WithFields(logrus.Fields{"keep": keep, "deleted": len(deleted)}).Info("old backups cleaned")
	return deleted, nil
}
