package handler

import (
	"net/http"
	"time"

	"printshop/internal/http/respond"
	"printshop/internal/jobs"
	"printshop/internal/report"
	"printshop/internal/report/render"
)

type ReportHandler struct {
	Agg      *report.Aggregator
	Renderer *render.Renderer
	Now      func() time.Time
}

// date is the ?date= parameter, today in the report zone when absent.
func (h *ReportHandler) date(r *http.Request) string {
	if d := r.URL.Query().Get("date"); d != "" {
		return d
	}
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	return jobs.Today(now(), h.Agg.Location)
}

func (h *ReportHandler) DailySummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.Agg.DailySummary(r.Context(), h.date(r))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, s)
}

func (h *ReportHandler) MachineSummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.Agg.MachineSummary(r.Context(), h.date(r))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, s)
}

func (h *ReportHandler) WorkerSummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.Agg.WorkerSummary(r.Context(), h.date(r))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, s)
}

func (h *ReportHandler) JobTypeSummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.Agg.JobTypeSummary(r.Context(), h.date(r))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, s)
}

func (h *ReportHandler) DetailedJobs(w http.ResponseWriter, r *http.Request) {
	s, err := h.Agg.DetailedJobs(r.Context(), h.date(r))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, s)
}

func (h *ReportHandler) PDF(w http.ResponseWriter, r *http.Request) {
	d, err := h.Agg.Daily(r.Context(), h.date(r))
	if err != nil {
		respond.Error(w, err)
		return
	}
	b, err := h.Renderer.PDF(d)
	if err != nil {
		respond.Error(w, err)
		return
	}
	attachment(w, "application/pdf", "daily-report-"+d.Date+".pdf", b)
}

func (h *ReportHandler) Excel(w http.ResponseWriter, r *http.Request) {
	d, err := h.Agg.Daily(r.Context(), h.date(r))
	if err != nil {
		respond.Error(w, err)
		return
	}
	b, err := h.Renderer.Excel(d)
	if err != nil {
		respond.Error(w, err)
		return
	}
	attachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "daily-report-"+d.Date+".xlsx", b)
}
