package handler

import (
	"net/http"

	"printshop/internal/auth"
	"printshop/internal/http/respond"
)

type MeHandler struct {
	Svc *auth.Service
}

func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	u, err := h.Svc.Me(r.Context(), uid)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, u)
}
