package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode
	HTTPAddr string
	SiteID   string

	DBDriver string
	DBDSN    string

	BlobBasePath string

	AuthHMACSecret string
	TokenTTL       time.Duration
	AdminUser      string
	AdminPassHash  string // bcrypt

	CORSOriginsOnline  []string
	CORSOriginsOffline []string

	// Optional; when set, questionnaire edits and submissions lock across replicas.
	RedisAddr     string
	RedisPassword string
	LockTTL       time.Duration

	SubmitRatePerSec float64
	SubmitBurst      int

	EnableGradeSync bool
	AGSTokenURL     string
	AGSClientID     string
	AGSClientSecret string
	AGSTimeout      time.Duration
}

// Load reads .env (when present) into the environment, then FromEnv.
func Load(files ...string) Config {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		// missing files are fine; real env wins over .env
		_ = godotenv.Load(f)
	}
	return FromEnv()
}

func FromEnv() Config {
	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	return Config{
		Mode:     mode,
		HTTPAddr: envOr("HTTP_ADDR", ":8080"),
		SiteID:   envOr("SITE_ID", "local"),

		DBDriver:     envOr("DB_DRIVER", "sqlite"),
		DBDSN:        envOr("DB_DSN", ""),
		BlobBasePath: envOr("BLOB_BASE_PATH", "./data"),

		AuthHMACSecret: envOr("AUTH_HMAC_SECRET", "dev-secret-change-me"),
		TokenTTL:       envDuration("TOKEN_TTL", 8*time.Hour),
		AdminUser:      envOr("ADMIN_USER", "admin"),
		AdminPassHash:  envOr("ADMIN_PASS_HASH", "$2y$12$pyZAiWaTfVtM7UElIRStvOC3gNbnp70nmQU4eYopLGBfCJr1DOvji"),

		CORSOriginsOnline:  csvOr("CORS_ORIGINS_ONLINE", "https://lms.mindengage.ai"),
		CORSOriginsOffline: csvOr("CORS_ORIGINS_OFFLINE", "http://localhost:3000,http://localhost:3010"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		LockTTL:       envDuration("LOCK_TTL", 30*time.Second),

		SubmitRatePerSec: envFloat("SUBMIT_RATE_PER_SEC", 5),
		SubmitBurst:      int(envFloat("SUBMIT_BURST", 10)),

		EnableGradeSync: envBool("ENABLE_GRADE_SYNC", mode == ModeOnline),
		AGSTokenURL:     os.Getenv("AGS_TOKEN_URL"),
		AGSClientID:     os.Getenv("AGS_CLIENT_ID"),
		AGSClientSecret: os.Getenv("AGS_CLIENT_SECRET"),
		AGSTimeout:      envDuration("AGS_TIMEOUT", 15*time.Second),
	}
}

// CORSOrigins returns the origin list for the configured mode.
func (c Config) CORSOrigins() []string {
	if c.Mode == ModeOnline {
		return c.CORSOriginsOnline
	}
	return c.CORSOriginsOffline
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}
func envFloat(k string, def float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(k)), 64)
	if err != nil {
		return def
	}
	return f
}
func envDuration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(os.Getenv(k)))
	if err != nil {
		return def
	}
	return d
}
func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
