package backup

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printshop/internal/logging"
)

type restoreCall struct {
	tables []string
	rows   map[string][]map[string]any
}

type fakeSource struct {
	err        error
	restoreErr error
	restored   *[]restoreCall
}

func (f fakeSource) Restore(_ context.Context, tables []string, rows map[string][]map[string]any) error {
	if f.restored != nil {
		*f.restored = append(*f.restored, restoreCall{tables: tables, rows: rows})
	}
	return f.restoreErr
}

func (f fakeSource) Dump(_ context.Context, tables []string) (map[string][]map[string]any, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := map[string][]map[string]any{}
	for _, t := range tables {
		out[t] = []map[string]any{}
	}
	out["machines"] = []map[string]any{{"id": float64(1), "name": "Roland", "type": "large_format"}}
	out["jobs"] = []map[string]any{{"id": float64(1), "amount": "100.00", "worker_id": nil}}
	return out, nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newManager(t *testing.T, src Source) (*Manager, *clock, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	m, err := NewManager(fs, "backups", src, logging.Discard())
	require.NoError(t, err)
	c := &clock{t: time.Date(2024, 5, 10, 2, 0, 0, 0, time.UTC)}
	m.Now = c.now
	return m, c, fs
}

func TestCreateAndLoad(t *testing.T) {
	m, _, fs := newManager(t, fakeSource{})
	info, err := m.Create(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "db_backup_20240510-020000.000.json.gz", info.Name)
	assert.Positive(t, info.Size)

	ok, _ := afero.Exists(fs, "backups/"+info.Name)
	assert.True(t, ok)

	snap, err := m.Load(info.Name)
	require.NoError(t, err)
	assert.Equal(t, SnapshotV1, snap.Version)
	assert.Len(t, snap.Tables, len(Tables))
	assert.Equal(t, "Roland", snap.Tables["machines"][0]["name"])
	assert.Equal(t, "100.00", snap.Tables["jobs"][0]["amount"])
	assert.Nil(t, snap.Tables["jobs"][0]["worker_id"])
}

func TestCreate_SourceErrorWritesNothing(t *testing.T) {
	m, _, _ := newManager(t, fakeSource{err: errors.New("db down")})
	_, err := m.Create(context.Background())
	require.Error(t, err)
	list, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListNewestFirstAndPrune(t *testing.T) {
	m, c, fs := newManager(t, fakeSource{})
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := m.Create(ctx)
		require.NoError(t, err)
		c.t = c.t.Add(24 * time.Hour)
	}
	require.NoError(t, afero.WriteFile(fs, "backups/notes.txt", []byte("x"), 0o644))

	list, err := m.List()
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, "db_backup_20240513-020000.000.json.gz", list[0].Name)
	assert.Equal(t, time.Date(2024, 5, 13, 2, 0, 0, 0, time.UTC), list[0].CreatedAt)

	deleted, err := m.Prune(2)
	require.NoError(t, err)
	assert.Equal(t, []string{"db_backup_20240511-020000.000.json.gz", "db_backup_20240510-020000.000.json.gz"}, deleted)

	list, _ = m.List()
	assert.Len(t, list, 2)
	ok, _ := afero.Exists(fs, "backups/notes.txt")
	assert.True(t, ok)
}

func TestDeleteValidatesName(t *testing.T) {
	m, _, fs := newManager(t, fakeSource{})
	require.NoError(t, afero.WriteFile(fs, "secret.txt", []byte("x"), 0o644))

	for _, name := range []string{"../secret.txt", "/etc/passwd", "db_backup_x.json.gz", ""} {
		assert.ErrorIs(t, m.Delete(name), ErrInvalidName, name)
	}
	assert.ErrorIs(t, m.Delete("db_backup_20990101-000000.000.json.gz"), ErrNotFound)

	info, err := m.Create(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.Delete(info.Name))
	list, _ := m.List()
	assert.Empty(t, list)
}

func TestRestore(t *testing.T) {
	var calls []restoreCall
	m, c, _ := newManager(t, fakeSource{restored: &calls})
	ctx := context.Background()

	info, err := m.Create(ctx)
	require.NoError(t, err)
	c.t = c.t.Add(time.Second)

	safety, err := m.Restore(ctx, info.Name)
	require.NoError(t, err)
	assert.Equal(t, "db_backup_20240510-020001.000.json.gz", safety.Name)

	require.Len(t, calls, 1)
	assert.Equal(t, Tables, calls[0].tables)
	assert.Equal(t, "Roland", calls[0].rows["machines"][0]["name"])
	assert.Equal(t, json.Number("1"), calls[0].rows["machines"][0]["id"])

	list, _ := m.List()
	assert.Len(t, list, 2)

	_, err = m.Restore(ctx, "../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.Len(t, calls, 1)
}

func TestRestore_FailureKeepsSafetyBackup(t *testing.T) {
	m, c, _ := newManager(t, fakeSource{restoreErr: errors.New("fk violation")})
	ctx := context.Background()
	info, err := m.Create(ctx)
	require.NoError(t, err)
	c.t = c.t.Add(time.Minute)

	_, err = m.Restore(ctx, info.Name)
	require.Error(t, err)
	list, _ := m.List()
	assert.Len(t, list, 2)
}

func TestRevive(t *testing.T) {
	assert.Equal(t, time.Date(2024, 5, 10, 2, 0, 0, 0, time.UTC), revive("2024-05-10T02:00:00Z"))
	assert.Equal(t, "Banner 2024-05-10T02:00:00Z", revive("Banner 2024-05-10T02:00:00Z"))
	assert.Equal(t, "100.00", revive("100.00"))
	assert.Equal(t, json.Number("7"), revive(json.Number("7")))
	assert.Nil(t, revive(nil))
}

func TestScheduler(t *testing.T) {
	m, _, _ := newManager(t, fakeSource{})
	s, err := NewScheduler(m, Schedule{Backup: "0 2 * * *", Cleanup: "0 3 * * 0", Keep: 30, CleanupKeep: 10}, time.UTC, logging.Discard())
	require.NoError(t, err)
	s.Start()
	next := s.Next()
	require.Len(t, next, 2)
	for _, n := range next {
		assert.False(t, n.IsZero())
	}
	s.Stop(context.Background())

	_, err = NewScheduler(m, Schedule{Backup: "not a spec", Cleanup: "0 3 * * 0"}, time.UTC, logging.Discard())
	assert.Error(t, err)
}

func TestScheduledBackupPrunes(t *testing.T) {
	m, c, _ := newManager(t, fakeSource{})
	s, err := NewScheduler(m, Schedule{Backup: "0 2 * * *", Cleanup: "0 3 * * 0"}, time.UTC, logging.Discard())
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		s.backup(2)
		c.t = c.t.Add(time.Hour)
	}
	list, _ := m.List()
	assert.Len(t, list, 2)

	s.cleanup(1)
	list, _ = m.List()
	assert.Len(t, list, 1)
}
