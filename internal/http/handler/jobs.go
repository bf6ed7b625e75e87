package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"printshop/internal/auth"
	"printshop/internal/catalog"
	"printshop/internal/http/respond"
	"printshop/internal/jobs"
)

type JobReader interface {
	ListByWorker(ctx context.Context, workerID uint64, f jobs.ListFilter) (jobs.ListResult, error)
	DailyTotal(ctx context.Context, workerID uint64, date string, loc *time.Location) (jobs.DailyTotal, error)
}

type JobTypeCatalog interface {
	JobTypesForMachine(ctx context.Context, machineID uint64) ([]catalog.JobTypeRate, error)
}

// Profiles loads the caller's current account; the machine assignment may
// have changed since the token was issued.
type Profiles interface {
	Me(ctx context.Context, id uint64) (auth.User, error)
}

type JobsHandler struct {
	Registrar *jobs.Registrar
	Jobs      JobReader
	Catalog   JobTypeCatalog
	Users     Profiles
	Location  *time.Location
	Now       func() time.Time
}

// The registrar checks presence, length and order of preconditions; the DTO
// only carries the fields.
type createJobReq struct {
	JobTypeID   uint64              `json:"job_type_id"`
	Description string              `json:"description"`
	Rate        decimal.NullDecimal `json:"rate"`
	WidthCm     decimal.NullDecimal `json:"width_cm"`
	HeightCm    decimal.NullDecimal `json:"height_cm"`
	Quantity    decimal.NullDecimal `json:"quantity"`
}

func (h *JobsHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	u, err := h.Users.Me(r.Context(), uid)
	if err != nil {
		respond.Error(w, err)
		return
	}
	var req createJobReq
	if err := decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}

	out, err := h.Registrar.CreateJob(r.Context(), jobs.CreateJobInput{
		WorkerID:    uid,
		MachineID:   u.MachineID,
		JobTypeID:   req.JobTypeID,
		Description: req.Description,
		WidthCm:     req.WidthCm,
		HeightCm:    req.HeightCm,
		Quantity:    req.Quantity,
		Rate:        req.Rate,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.Created(w, "Job created successfully", out)
}

func (h *JobsHandler) MyJobs(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	q := r.URL.Query()
	f, err := jobs.ParseListQuery(jobs.ListQuery{
		StartDate: q.Get("startDate"),
		EndDate:   q.Get("endDate"),
		Limit:     q.Get("limit"),
		Offset:    q.Get("offset"),
		Sort:      q.Get("sort"),
		Order:     q.Get("order"),
	}, h.Location)
	if err != nil {
		respond.Error(w, err)
		return
	}
	res, err := h.Jobs.ListByWorker(r.Context(), uid, f)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, res)
}

func (h *JobsHandler) MyDailyTotal(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	date := r.URL.Query().Get("date")
	if date == "" {
		date = jobs.Today(h.now(), h.Location)
	}
	res, err := h.Jobs.DailyTotal(r.Context(), uid, date, h.Location)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, res)
}

// JobTypes lists what the caller's machine can print, with current rates.
func (h *JobsHandler) JobTypes(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	u, err := h.Users.Me(r.Context(), uid)
	if err != nil {
		respond.Error(w, err)
		return
	}
	if u.MachineID == nil {
		respond.Error(w, jobs.ErrNoMachineAssigned)
		return
	}
	types, err := h.Catalog.JobTypesForMachine(r.Context(), *u.MachineID)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, types)
}

func (h *JobsHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}
