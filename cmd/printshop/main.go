package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"printshop/internal/audit"
	"printshop/internal/auth"
	"printshop/internal/backup"
	"printshop/internal/catalog"
	"printshop/internal/config"
	"printshop/internal/db"
	"printshop/internal/events"
	httpx "printshop/internal/http"
	"printshop/internal/jobs"
	"printshop/internal/logging"
	"printshop/internal/messages"
	"printshop/internal/report"
	"printshop/internal/report/render"
	"printshop/internal/security"
	"printshop/internal/system"
)

func main() {
	cfg, cfgErr := config.Load()

	lg, err := logging.New(logging.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON})
	if err != nil {
		lg = logrus.New()
		lg.WithError(err).Warn("invalid LOG_LEVEL, using info")
	}
	if cfgErr != nil {
		lg.WithError(cfgErr).Fatal("invalid configuration")
	}

	dialect, err := db.Lookup(cfg.DBDialect)
	if err != nil {
		lg.WithError(err).Fatal("database dialect")
	}
	gdb, err := db.Connect(dialect, cfg.DatabaseURL, lg)
	if err != nil {
		lg.WithError(err).Fatal("database connect")
	}
	if err := db.AutoMigrateAndIndexes(gdb, dialect); err != nil {
		lg.WithError(err).Fatal("database migrate")
	}

	var pub events.Publisher = events.Nop{}
	if cfg.AMQPURL != "" {
		a, err := events.DialAMQP(cfg.AMQPURL, "")
		if err != nil {
			lg.WithError(err).Warn("amqp unavailable, events disabled")
		} else {
			defer a.Close()
			pub = a
		}
	}

	store, closeStore := securityStore(cfg, lg)
	defer closeStore()

	checks := map[string]system.Pinger{"database": system.SQL{DB: gdb}}
	if p, ok := store.(system.Pinger); ok {
		checks["security_store"] = p
	}
	osFs := afero.NewOsFs()
	monitor := system.NewMonitor(checks, []system.Dir{
		{Name: "uploads", Path: cfg.UploadDir, Fs: afero.NewBasePathFs(osFs, cfg.UploadDir)},
		{Name: "backups", Path: cfg.BackupDir, Fs: afero.NewBasePathFs(osFs, cfg.BackupDir)},
	}, lg)
	monitor.UploadWarnBytes = cfg.UploadWarnBytes

	guard := security.NewGuard(store, security.GuardConfig{
		MaxAttempts:  cfg.LoginMaxAttempts,
		Window:       cfg.LoginAttemptWindow,
		LockDuration: cfg.LockoutDuration,
	}, pub, lg)
	limits := make(map[security.Category]security.Limit, len(cfg.RateLimits))
	for k, v := range cfg.RateLimits {
		limits[security.Category(k)] = security.Limit{Max: v.Max, Window: v.Window}
	}
	limiter := security.NewLimiter(store, limits, cfg.BlockDuration, pub, lg)

	jwtSvc := auth.NewJWT(cfg.JWTSecret, cfg.JWTTTL)
	authSvc := auth.NewService(&auth.UserRepo{DB: gdb}, jwtSvc, guard, lg)

	catalogSvc := catalog.NewService(gdb, lg)
	if cfg.SeedCatalog {
		if err := catalogSvc.Seed(context.Background()); err != nil {
			lg.WithError(err).Fatal("seed catalog")
		}
	}
	if _, err := authSvc.EnsureAdmin(context.Background(), cfg.AdminUsername, cfg.AdminPassword); err != nil {
		lg.WithError(err).Fatal("initial admin")
	}

	jobsRepo := &jobs.Repo{DB: gdb}

	files, err := messages.NewAttachments(osFs, cfg.UploadDir, cfg.MaxUploadBytes)
	if err != nil {
		lg.WithError(err).Fatal("upload dir")
	}
	backups, err := backup.NewManager(osFs, cfg.BackupDir, &backup.Repo{DB: gdb}, lg)
	if err != nil {
		lg.WithError(err).Fatal("backup dir")
	}
	sched, err := backup.NewScheduler(backups, backup.Schedule{
		Backup:      cfg.BackupSchedule,
		Cleanup:     cfg.BackupCleanupSchedule,
		Keep:        cfg.BackupKeep,
		CleanupKeep: cfg.BackupCleanupKeep,
	}, cfg.ReportLocation, lg)
	if err != nil {
		lg.WithError(err).Fatal("backup schedule")
	}

	auditRepo := &audit.Repo{DB: gdb}

	r := httpx.NewRouter(httpx.Deps{
		Log:                  lg,
		CORSAllowedOrigins:   cfg.CORSAllowedOrigins,
		CORSAllowCredentials: cfg.CORSAllowCredentials,
		TrustedProxies:       cfg.TrustedProxies,
		Location:             cfg.ReportLocation,
		MaxUploadBytes:       cfg.MaxUploadBytes,
		JWT:                  jwtSvc,
		Auth:                 authSvc,
		Limiter:              limiter,
		Catalog:              catalogSvc,
		Registrar:            jobs.NewRegistrar(jobsRepo, pub, lg),
		Jobs:                 jobsRepo,
		Reports:              report.NewAggregator(&report.Repo{DB: gdb}, cfg.ReportLocation, lg),
		Renderer:             render.New(""),
		Messages:             messages.NewService(&messages.Repo{DB: gdb}, files, lg),
		Backups:              backups,
		AuditLogs:            auditRepo,
		Audit:                audit.NewRecorder(auditRepo, lg),
		Monitor:              monitor,
	})

	ctx, cancel := context.WithCancel(context.Background())
	sweeper := &security.Sweeper{Store: store, Interval: cfg.SweepInterval, Log: lg}
	go sweeper.Run(ctx)
	sched.Start()
	for _, next := range sched.Next() {
		lg.WithField("at", next.Format(time.RFC3339)).Info("backup job scheduled")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		lg.WithField("addr", cfg.HTTPAddr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.WithError(err).Fatal("http server")
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
	lg.Info("shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	sched.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.WithError(err).Warn("http shutdown")
	}
}

// securityStore picks Redis when configured so attempt counters and blocks
// are shared between instances; otherwise state lives in process memory.
func securityStore(cfg config.Config, lg logrus.FieldLogger) (security.Store, func()) {
	if cfg.RedisURL == "" {
		return security.NewMemoryStore(), func() {}
	}
	rs, err := security.NewRedisStoreFromURL(cfg.RedisURL)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err = rs.Ping(ctx)
		cancel()
		if err == nil {
			return rs, func() { _ = rs.Close() }
		}
		_ = rs.Close()
	}
	lg.WithError(err).Warn("redis unavailable, using in-memory security store")
	return security.NewMemoryStore(), func() {}
}
