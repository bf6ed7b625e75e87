package handler

import (
	"context"
	"net/http"

	"printshop/internal/auth"
	"printshop/internal/catalog"
	"printshop/internal/http/respond"
)

type Registrant interface {
	Register(ctx context.Context, in auth.NewUserInput) (auth.User, error)
}

type MachineDirectory interface {
	MachineGetter
	ListActiveMachines(ctx context.Context) ([]catalog.Machine, error)
}

// RegisterHandler serves the public sign-up form: workers create their own
// account and pick a department and machine from the lists below.
type RegisterHandler struct {
	Users    Registrant
	Machines MachineDirectory
}

type registerReq struct {
	Name       string  `json:"name" validate:"required,min=2,max=255"`
	Username   string  `json:"username" validate:"required,min=3,max=50,alphanum"`
	Password   string  `json:"password" validate:"required"`
	Department string  `json:"department" validate:"required,oneof=large_format digital_press finishing design customer_service"`
	MachineID  *uint64 `json:"machine_id"`
}

func (h *RegisterHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerReq
	if err := decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	if err := machineExists(r.Context(), h.Machines, req.MachineID); err != nil {
		respond.Error(w, err)
		return
	}
	u, err := h.Users.Register(r.Context(), auth.NewUserInput{
		Name:       req.Name,
		Username:   req.Username,
		Password:   req.Password,
		Department: req.Department,
		MachineID:  req.MachineID,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.Created(w, "Registration successful", u)
}

func (h *RegisterHandler) Departments(w http.ResponseWriter, _ *http.Request) {
	respond.OK(w, auth.Departments)
}

func (h *RegisterHandler) ListMachines(w http.ResponseWriter, r *http.Request) {
	ms, err := h.Machines.ListActiveMachines(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, ms)
}
