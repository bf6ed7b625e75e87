package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"printshop/internal/backup"
	"printshop/internal/http/respond"
)

type BackupHandler struct {
	Backups *backup.Manager
}

func (h *BackupHandler) Create(w http.ResponseWriter, r *http.Request) {
	info, err := h.Backups.Create(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.Created(w, "Backup created successfully", info)
}

func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.Backups.List()
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, list)
}

func (h *BackupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Backups.Delete(chi.URLParam(r, "name")); err != nil {
		respond.Error(w, err)
		return
	}
	respond.Message(w, http.StatusOK, "Backup deleted successfully")
}

// Restore replaces the database with a backup. The response names the safety
// backup taken just before, so the restore itself can be undone.
func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	safety, err := h.Backups.Restore(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.Success(w, "Database restored successfully", map[string]any{"safety_backup": safety})
}
