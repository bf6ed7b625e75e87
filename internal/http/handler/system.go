package handler

import (
	"context"
	"net/http"

	"printshop/internal/http/respond"
	"printshop/internal/system"
)

type OrphanCleaner interface {
	CleanupOrphans(ctx context.Context) ([]string, error)
}

type BackupPruner interface {
	Prune(keep int) ([]string, error)
}

type SystemHandler struct {
	Monitor *system.Monitor
	Files   OrphanCleaner
	Backups BackupPruner
}

func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	hs, err := h.Monitor.Health(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, hs)
}

func (h *SystemHandler) DiskUsage(w http.ResponseWriter, _ *http.Request) {
	u, err := h.Monitor.DiskUsage()
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, u)
}

// Both steps are opt-out; an empty body cleans orphaned uploads only.
type cleanupReq struct {
	CleanOrphanedFiles *bool `json:"clean_orphaned_files"`
	KeepBackups        *int  `json:"keep_backups" validate:"omitempty,min=1"`
}

type cleanupResult struct {
	OrphanedFiles  []string `json:"orphaned_files"`
	DeletedBackups []string `json:"deleted_backups"`
}

func (h *SystemHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupReq
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			respond.Error(w, err)
			return
		}
	}
	res := cleanupResult{OrphanedFiles: []string{}, DeletedBackups: []string{}}
	if req.CleanOrphanedFiles == nil || *req.CleanOrphanedFiles {
		removed, err := h.Files.CleanupOrphans(r.Context())
		if err != nil {
			respond.Error(w, err)
			return
		}
		res.OrphanedFiles = removed
	}
	if req.KeepBackups != nil {
		deleted, err := h.Backups.Prune(*req.KeepBackups)
		if err != nil {
			respond.Error(w, err)
			return
		}
		if deleted != nil {
			res.DeletedBackups = deleted
		}
	}
	respond.Success(w, "System cleanup completed", res)
}
