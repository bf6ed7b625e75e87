package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Limit struct {
	Max    int
	Window time.Duration
}

type Config struct {
	HTTPAddr             string
	DBDialect            string
	DatabaseURL          string
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	// TrustedProxies are the peers whose X-Forwarded-For / X-Real-IP headers
	// are believed. Empty means the socket address is always the client.
	TrustedProxies []netip.Prefix

	JWTSecret string
	JWTTTL    time.Duration

	LogLevel string
	LogJSON  bool

	// ReportLocation is the zone report dates (YYYY-MM-DD) are interpreted in.
	ReportLocation *time.Location

	// AdminUsername and AdminPassword create the first admin when none exists.
	AdminUsername string
	AdminPassword string
	SeedCatalog   bool

	LoginMaxAttempts   int
	LoginAttemptWindow time.Duration
	LockoutDuration    time.Duration

	RateLimits    map[string]Limit
	BlockDuration time.Duration
	SweepInterval time.Duration
	RedisURL      string

	AMQPURL string

	UploadDir       string
	MaxUploadBytes  int64
	UploadWarnBytes int64

	BackupDir             string
	BackupSchedule        string
	BackupCleanupSchedule string
	BackupKeep            int
	BackupCleanupKeep     int
}

func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (Config, error) {
	var errs []error
	p := parser{errs: &errs}

	cfg := Config{
		HTTPAddr:             getenv("HTTP_ADDR", ":8080"),
		DBDialect:            strings.ToLower(getenv("DB_DIALECT", "postgres")),
		DatabaseURL:          strings.TrimSpace(os.Getenv("DATABASE_URL")),
		CORSAllowCredentials: getenv("CORS_ALLOW_CREDENTIALS", "false") == "true",
		JWTSecret:            strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTTTL:               p.duration("JWT_TTL", 24*time.Hour),
		LogLevel:             getenv("LOG_LEVEL", "info"),
		LogJSON:              getenv("LOG_JSON", "false") == "true",

		AdminUsername: strings.TrimSpace(os.Getenv("ADMIN_USERNAME")),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		SeedCatalog:   getenv("SEED_CATALOG", "true") == "true",

		LoginMaxAttempts:   p.int("LOGIN_MAX_ATTEMPTS", 10),
		LoginAttemptWindow: p.duration("LOGIN_ATTEMPT_WINDOW", 15*time.Minute),
		LockoutDuration:    p.duration("LOCKOUT_DURATION", 15*time.Minute),

		RateLimits: map[string]Limit{
			"login":  p.limit("RATE_LIMIT_LOGIN", Limit{Max: 5, Window: 15 * time.Minute}),
			"api":    p.limit("RATE_LIMIT_API", Limit{Max: 100, Window: time.Minute}),
			"upload": p.limit("RATE_LIMIT_UPLOAD", Limit{Max: 10, Window: time.Minute}),
			"strict": p.limit("RATE_LIMIT_STRICT", Limit{Max: 30, Window: time.Minute}),
		},
		BlockDuration: p.duration("BLOCK_DURATION", 30*time.Minute),
		SweepInterval: p.duration("SWEEP_INTERVAL", 5*time.Minute),
		RedisURL:      strings.TrimSpace(os.Getenv("REDIS_URL")),
		AMQPURL:       strings.TrimSpace(os.Getenv("AMQP_URL")),

		UploadDir:       getenv("UPLOAD_DIR", "./uploads"),
		MaxUploadBytes:  int64(p.int("MAX_UPLOAD_BYTES", 10<<20)),
		UploadWarnBytes: int64(p.int("UPLOAD_WARN_BYTES", 1<<30)),

		BackupDir:             getenv("BACKUP_DIR", "./backups"),
		BackupSchedule:        getenv("BACKUP_SCHEDULE", "0 2 * * *"),
		BackupCleanupSchedule: getenv("BACKUP_CLEANUP_SCHEDULE", "0 3 * * 0"),
		BackupKeep:            p.int("BACKUP_KEEP", 30),
		BackupCleanupKeep:     p.int("BACKUP_CLEANUP_KEEP", 10),
	}

	origins := strings.Split(getenv("CORS_ALLOWED_ORIGINS", ""), ",")
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	cfg.TrustedProxies = p.prefixes("TRUSTED_PROXIES")

	loc, err := time.LoadLocation(getenv("REPORT_TIMEZONE", "Local"))
	if err != nil {
		errs = append(errs, fmt.Errorf("REPORT_TIMEZONE: %w", err))
		loc = time.Local
	}
	cfg.ReportLocation = loc

	if cfg.DatabaseURL == "" {
		errs = append(errs, errors.New("missing env: DATABASE_URL"))
	}
	if cfg.DBDialect != "postgres" && cfg.DBDialect != "mysql" {
		errs = append(errs, fmt.Errorf("DB_DIALECT must be postgres or mysql, got %q", cfg.DBDialect))
	}
	if len(cfg.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 characters long"))
	}
	if cfg.LoginMaxAttempts <= 0 {
		errs = append(errs, errors.New("LOGIN_MAX_ATTEMPTS must be positive"))
	}

	return cfg, errors.Join(errs...)
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

type parser struct {
	errs *[]error
}

func (p parser) int(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (p parser) duration(key string, def time.Duration) time.Duration {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		*p.errs = append(*p.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}

// prefixes parses a comma separated list of IPs and CIDRs. A bare IP is a
// single-address prefix.
func (p parser) prefixes(key string) []netip.Prefix {
	var out []netip.Prefix
	for _, v := range strings.Split(getenv(key, ""), ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if strings.Contains(v, "/") {
			pfx, err := netip.ParsePrefix(v)
			if err != nil {
				*p.errs = append(*p.errs, fmt.Errorf("%s: %w", key, err))
				continue
			}
			out = append(out, pfx.Masked())
			continue
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			*p.errs = append(*p.errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out
}

// limit parses "max/window", e.g. "100/1m".
func (p parser) limit(key string, def Limit) Limit {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	maxStr, winStr, ok := strings.Cut(v, "/")
	if !ok {
		*p.errs = append(*p.errs, fmt.Errorf("%s: expected max/window, got %q", key, v))
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(maxStr))
	if err != nil || n <= 0 {
		*p.errs = append(*p.errs, fmt.Errorf("%s: invalid max %q", key, maxStr))
		return def
	}
	w, err := time.ParseDuration(strings.TrimSpace(winStr))
	if err != nil || w <= 0 {
		*p.errs = append(*p.errs, fmt.Errorf("%s: invalid window %q", key, winStr))
		return def
	}
	return Limit{Max: n, Window: w}
}
