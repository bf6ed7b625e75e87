package http

import (
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"printshop/internal/audit"
	"printshop/internal/auth"
	"printshop/internal/backup"
	"printshop/internal/catalog"
	"printshop/internal/http/handler"
	mw "printshop/internal/http/middleware"
	"printshop/internal/jobs"
	"printshop/internal/messages"
	"printshop/internal/report"
	"printshop/internal/report/render"
	"printshop/internal/security"
	"printshop/internal/system"
)

// Deps is everything the routes need, built once in main.
type Deps struct {
	Log logrus.FieldLogger

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	TrustedProxies       []netip.Prefix
	Location             *time.Location
	MaxUploadBytes       int64

	JWT       *auth.JWT
	Auth      *auth.Service
	Limiter   *security.Limiter
	Catalog   *catalog.Service
	Registrar *jobs.Registrar
	Jobs      handler.JobReader
	Reports   *report.Aggregator
	Renderer  *render.Renderer
	Messages  *messages.Service
	Backups   *backup.Manager
	AuditLogs handler.AuditLister
	Audit     *audit.Recorder
	Monitor   *system.Monitor
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(mw.RealIP(d.TrustedProxies))
	r.Use(chimw.Recoverer)
	r.Use(mw.RequestLogger(d.Log))
	r.Use(mw.SecurityHeaders)
	if len(d.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(d.CORSAllowedOrigins, d.CORSAllowCredentials))
	}
	r.Use(mw.Sanitize(d.Log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	ah := &handler.AuthHandler{Svc: d.Auth, Log: d.Log}
	me := &handler.MeHandler{Svc: d.Auth}
	jh := &handler.JobsHandler{
		Registrar: d.Registrar,
		Jobs:      d.Jobs,
		Catalog:   d.Catalog,
		Users:     d.Auth,
		Location:  d.Location,
	}
	rh := &handler.ReportHandler{Agg: d.Reports, Renderer: d.Renderer}
	adm := &handler.AdminHandler{Catalog: d.Catalog, Users: d.Auth, Audit: d.AuditLogs, Location: d.Location}
	bh := &handler.BackupHandler{Backups: d.Backups}
	mh := &handler.MessagesHandler{Svc: d.Messages, MaxUploadBytes: d.MaxUploadBytes}
	reg := &handler.RegisterHandler{Users: d.Auth, Machines: d.Catalog}
	sys := &handler.SystemHandler{Monitor: d.Monitor, Files: d.Messages, Backups: d.Backups}

	rec := d.Audit.Middleware
	limit := func(cat security.Category) func(http.Handler) http.Handler {
		return mw.RateLimit(d.Limiter, cat, d.Log)
	}

	r.Group(func(r chi.Router) {
		r.Use(limit(security.CategoryAPI))

		r.With(limit(security.CategoryLogin), rec("user_login")).Post("/auth/login", ah.Login)
		r.With(limit(security.CategoryStrict), rec("user_register")).Post("/auth/register", reg.Register)
		r.Get("/departments", reg.Departments)
		r.Get("/machines", reg.ListMachines)

		// authenticated
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(d.JWT))
			r.Use(mw.Activity(d.Auth.Touch, d.Log))

			r.Get("/me", me.Me)

			r.Route("/auth", func(r chi.Router) {
				r.With(rec("user_logout")).Post("/logout", ah.Logout)
				r.With(limit(security.CategoryStrict), rec("password_change")).Post("/change-password", ah.ChangePassword)
				r.With(limit(security.CategoryStrict), rec("account_delete")).Post("/delete-account", ah.DeleteAccount)
			})

			r.Route("/jobs", func(r chi.Router) {
				r.Use(auth.RequireRole(auth.RoleWorker))
				r.With(rec("job_create")).Post("/", jh.Create)
				r.Get("/my-jobs", jh.MyJobs)
				r.Get("/my-daily-total", jh.MyDailyTotal)
				r.Get("/job-types", jh.JobTypes)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireRole(auth.RoleAdmin))

				r.Get("/daily-summary", rh.DailySummary)
				r.Get("/machine-summary", rh.MachineSummary)
				r.Get("/worker-summary", rh.WorkerSummary)
				r.Get("/job-type-summary", rh.JobTypeSummary)
				r.Get("/detailed-jobs", rh.DetailedJobs)
				r.With(rec("report_download_pdf")).Get("/reports/pdf", rh.PDF)
				r.With(rec("report_download_excel")).Get("/reports/excel", rh.Excel)

				r.Get("/pricing", adm.ListPricing)
				r.With(rec("pricing_create")).Post("/pricing", adm.CreatePricing)
				r.With(rec("pricing_update")).Put("/pricing/{id}", adm.UpdatePricing)
				r.With(rec("pricing_delete")).Delete("/pricing/{id}", adm.DeletePricing)

				r.Get("/users", adm.ListUsers)
				r.With(rec("user_create")).Post("/users", adm.CreateUser)
				r.With(rec("user_delete")).Delete("/users/{id}", adm.DeleteUser)

				r.Get("/machines", adm.ListMachines)
				r.With(rec("machine_create")).Post("/machines", adm.CreateMachine)
				r.Get("/job-types", adm.ListJobTypes)

				r.Get("/audit-logs", adm.AuditLogs)

				r.With(rec("backup_create")).Post("/backups", bh.Create)
				r.Get("/backups", bh.List)
				r.With(rec("backup_delete")).Delete("/backups/{name}", bh.Delete)
				r.With(limit(security.CategoryStrict), rec("backup_restore")).Post("/backups/{name}/restore", bh.Restore)

				r.Get("/system/health", sys.Health)
				r.Get("/system/disk-usage", sys.DiskUsage)
				r.With(rec("system_cleanup")).Post("/system/cleanup", sys.Cleanup)
			})

			r.Route("/messages", func(r chi.Router) {
				r.With(limit(security.CategoryUpload)).Post("/", mh.Send)
				r.Get("/", mh.List)
				r.Get("/contacts", mh.Contacts)
				r.Get("/unread-count", mh.UnreadCount)
				r.Put("/{id}/read", mh.MarkRead)
				r.Get("/{id}/download", mh.Download)
			})
		})
	})

	return r
}
