package handler

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"printshop/internal/auth"
	"printshop/internal/http/middleware"
	"printshop/internal/http/respond"
)

type AuthHandler struct {
	Svc *auth.Service
	Log logrus.FieldLogger
}

type loginReq struct {
	Username string `json:"username" validate:"required,max=100"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	res, err := h.Svc.Login(r.Context(), req.Username, req.Password, middleware.ClientIP(r))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.Success(w, "Login successful", res)
}

// Logout is stateless: the client drops its token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		respond.Error(w, err)
		return
	}
	h.Log.WithFields(logrus.Fields{"user_id": c.UserID, "username": c.Username}).Info("user logged out")
	respond.Message(w, http.StatusOK, "Logout successful")
}

type changePasswordReq struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		respond.Error(w, err)
		return
	}
	var req changePasswordReq
	if err := decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	if err := h.Svc.ChangePassword(r.Context(), c.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		respond.Error(w, err)
		return
	}
	respond.Message(w, http.StatusOK, "Password changed successfully")
}

type deleteAccountReq struct {
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		respond.Error(w, err)
		return
	}
	var req deleteAccountReq
	if err := decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	if err := h.Svc.DeleteOwnAccount(r.Context(), c.UserID, req.Password); err != nil {
		respond.Error(w, err)
		return
	}
	respond.Message(w, http.StatusOK, "Account deleted successfully")
}
