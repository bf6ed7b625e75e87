package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"printshop/internal/audit"
	"printshop/internal/auth"
	"printshop/internal/catalog"
	"printshop/internal/http/respond"
)

type MachineGetter interface {
	GetMachine(ctx context.Context, id uint64) (catalog.Machine, error)
}

type AuditLister interface {
	List(ctx context.Context, f audit.Filter) ([]audit.View, error)
}

// AdminHandler covers pricing, machines, users and the audit trail.
type AdminHandler struct {
	Catalog  *catalog.Service
	Users    *auth.Service
	Audit    AuditLister
	Location *time.Location
}

// machineExists rejects an assignment to a machine that is not on file.
func machineExists(ctx context.Context, c MachineGetter, id *uint64) error {
	if id == nil || *id == 0 {
		return nil
	}
	_, err := c.GetMachine(ctx, *id)
	if errors.Is(err, catalog.ErrMachineNotFound) {
		return ErrBadInput.WithField("machine_id").WithMessage("machine_id does not exist")
	}
	return err
}

// Pricing

type createPricingReq struct {
	JobTypeID uint64          `json:"job_type_id" validate:"required,min=1"`
	Rate      decimal.Decimal `json:"rate"`
	RateUnit  string          `json:"rate_unit" validate:"required,oneof=per_sqm per_piece"`
	Active    *bool           `json:"active"`
}

type updatePricingReq struct {
	Rate   decimal.NullDecimal `json:"rate"`
	Active *bool               `json:"active"`
}

func (h *AdminHandler) ListPricing(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Catalog.ListPricing(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, rows)
}

func (h *AdminHandler) CreatePricing(w http.ResponseWriter, r *http.Request) {
	var req createPricingReq
	if err := decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	id, err := h.Catalog.CreatePricing(r.Context(), catalog.CreatePricingInput{
		JobTypeID: req.JobTypeID,
		Rate:      req.Rate,
		RateUnit:  req.RateUnit,
		Active:    active,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.Created(w, "Pricing created successfully", map[string]uint64{"id": id})
}

func (h *AdminHandler) UpdatePricing(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		respond.Error(w, err)
		return
	}
	var req updatePricingReq
	if err := decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	in := catalog.UpdatePricingInput{Active: req.Active}
	if req.Rate.Valid {
		in.Rate = &req.Rate.Decimal
	}
	if err := h.Catalog.UpdatePricing(r.Context(), id, in); err != nil {
		respond.Error(w, err)
		return
	}
	respond.Message(w, http.StatusOK, "Pricing updated successfully")
}

func (h *AdminHandler) DeletePricing(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		respond.Error(w, err)
		return
	}
	if err := h.Catalog.DeactivatePricing(r.Context(), id); err != nil {
		respond.Error(w, err)
		return
	}
	respond.Message(w, http.StatusOK, "Pricing deactivated successfully")
}

// Machines

type createMachineReq struct {
	Name   string `json:"name" validate:"required,max=255"`
	Type   string `json:"type" validate:"required,oneof=large_format digital_press"`
	Status string `json:"status" validate:"omitempty,oneof=active inactive"`
}

func (h *AdminHandler) ListMachines(w http.ResponseWriter, r *http.Request) {
	ms, err := h.Catalog.ListMachines(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, ms)
}

func (h *AdminHandler) CreateMachine(w http.ResponseWriter, r *http.Request) {
	var req createMachineReq
	if err := decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	m, err := h.Catalog.CreateMachine(r.Context(), catalog.CreateMachineInput{Name: req.Name, Type: req.Type, Status: req.Status})
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.Created(w, "Machine created successfully", m)
}

// Users

type createUserReq struct {
	Name       string  `json:"name" validate:"required,min=2,max=255"`
	Username   string  `json:"username" validate:"required,min=3,max=50,alphanum"`
	Password   string  `json:"password" validate:"required"`
	Role       string  `json:"role" validate:"required,oneof=admin worker"`
	Department string  `json:"department" validate:"max=255"`
	MachineID  *uint64 `json:"machine_id"`
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	us, err := h.Users.ListUsers(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, us)
}

func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserReq
	if err := decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	if err := machineExists(r.Context(), h.Catalog, req.MachineID); err != nil {
		respond.Error(w, err)
		return
	}
	u, err := h.Users.CreateUser(r.Context(), auth.NewUserInput{
		Name:       req.Name,
		Username:   req.Username,
		Password:   req.Password,
		Role:       req.Role,
		Department: req.Department,
		MachineID:  req.MachineID,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.Created(w, "User created successfully", u)
}

func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		respond.Error(w, err)
		return
	}
	id, err := urlID(r, "id")
	if err != nil {
		respond.Error(w, err)
		return
	}
	if err := h.Users.DeleteUser(r.Context(), c.UserID, id); err != nil {
		respond.Error(w, err)
		return
	}
	respond.Message(w, http.StatusOK, "User deleted successfully")
}

// Audit

func (h *AdminHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := audit.ParseQuery(audit.Query{
		StartDate: q.Get("startDate"),
		EndDate:   q.Get("endDate"),
		UserID:    q.Get("userId"),
		Action:    q.Get("action"),
		Limit:     q.Get("limit"),
		Offset:    q.Get("offset"),
	}, h.Location)
	if err != nil {
		respond.Error(w, err)
		return
	}
	logs, err := h.Audit.List(r.Context(), f)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, logs)
}

func (h *AdminHandler) ListJobTypes(w http.ResponseWriter, r *http.Request) {
	jts, err := h.Catalog.ListJobTypes(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, jts)
}
