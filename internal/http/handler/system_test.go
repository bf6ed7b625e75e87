package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printshop/internal/logging"
	"printshop/internal/system"
)

type fakeCleaner struct{ calls int }

func (f *fakeCleaner) CleanupOrphans(context.Context) ([]string, error) {
	f.calls++
	return []string{"old.pdf"}, nil
}

type fakePruner struct{ keep []int }

func (f *fakePruner) Prune(keep int) ([]string, error) {
	f.keep = append(f.keep, keep)
	return []string{"db_backup_2024-01-01T00-00-00Z.json.gz"}, nil
}

func newSystemHandler(t *testing.T) (*SystemHandler, *fakeCleaner, *fakePruner) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/up/a.pdf", []byte("%PDF-1.4"), 0o640))
	mon := system.NewMonitor(nil, []system.Dir{{Name: "uploads", Fs: afero.NewBasePathFs(fs, "/up")}}, logging.Discard())
	files, backups := &fakeCleaner{}, &fakePruner{}
	return &SystemHandler{Monitor: mon, Files: files, Backups: backups}, files, backups
}

func TestSystemCleanup(t *testing.T) {
	h, files, backups := newSystemHandler(t)

	rec := httptest.NewRecorder()
	h.Cleanup(rec, httptest.NewRequest(http.MethodPost, "/admin/system/cleanup", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res cleanupResult
	require.NoError(t, json.Unmarshal(decodeEnv(t, rec).Data, &res))
	assert.Equal(t, []string{"old.pdf"}, res.OrphanedFiles)
	assert.Empty(t, res.DeletedBackups)
	assert.Empty(t, backups.keep)

	rec = httptest.NewRecorder()
	body := strings.NewReader(`{"clean_orphaned_files":false,"keep_backups":5}`)
	h.Cleanup(rec, httptest.NewRequest(http.MethodPost, "/admin/system/cleanup", body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, files.calls)
	assert.Equal(t, []int{5}, backups.keep)

	rec = httptest.NewRecorder()
	h.Cleanup(rec, httptest.NewRequest(http.MethodPost, "/admin/system/cleanup", strings.NewReader(`{"keep_backups":0}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "keep_backups", decodeEnv(t, rec).Field)
}

func TestSystemHealthAndDisk(t *testing.T) {
	h, _, _ := newSystemHandler(t)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/admin/system/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var hs system.Health
	require.NoError(t, json.Unmarshal(decodeEnv(t, rec).Data, &hs))
	assert.Equal(t, system.StatusHealthy, hs.Status)
	assert.Equal(t, 1, hs.Disk.Dirs["uploads"].Files)

	rec = httptest.NewRecorder()
	h.DiskUsage(rec, httptest.NewRequest(http.MethodGet, "/admin/system/disk-usage", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"size":8`)
}
