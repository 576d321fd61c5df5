package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	api "github.com/mind-engage/teameval/internal/api/http"
	auth "github.com/mind-engage/teameval/internal/auth/middleware"
	"github.com/mind-engage/teameval/internal/config"
	"github.com/mind-engage/teameval/internal/db"
	"github.com/mind-engage/teameval/internal/locker"
	"github.com/mind-engage/teameval/internal/metrics"
	"github.com/mind-engage/teameval/internal/question"
	"github.com/mind-engage/teameval/internal/response"
	"github.com/mind-engage/teameval/internal/roster"
	"github.com/mind-engage/teameval/internal/storage"
	syncx "github.com/mind-engage/teameval/internal/sync"
	"github.com/mind-engage/teameval/internal/teameval"
	"github.com/mind-engage/teameval/pkg/lti-ags-gradebook/agshttp"
	"github.com/mind-engage/teameval/pkg/lti-ags-gradebook/gradebook"
	"github.com/mind-engage/teameval/pkg/lti-ags-gradebook/httpchi"
	"github.com/mind-engage/teameval/pkg/lti-ags-gradebook/sqlstore"

	// question types
	_ "github.com/mind-engage/teameval/internal/question/comment"
	_ "github.com/mind-engage/teameval/internal/question/likert"
	_ "github.com/mind-engage/teameval/internal/question/split"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		logger.Error("db open failed", "err", err)
		os.Exit(1)
	}
	defer dbh.Close()

	bs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		logger.Error("blob store", "err", err)
		os.Exit(1)
	}

	// Single replica: in-process locks. Several replicas: Redis.
	var lk locker.Locker = locker.NewMemory()
	if cfg.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := rc.Ping(ctx).Err(); err != nil {
			logger.Error("redis ping", "addr", cfg.RedisAddr, "err", err)
			os.Exit(1)
		}
		defer rc.Close()
		lk = locker.NewRedis(rc,
			locker.WithTTL(cfg.LockTTL),
			locker.WithOnLost(func(key string, err error) { logger.Warn("lock lost", "key", key, "err", err) }))
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	rosters := roster.NewSQLStore(dbh)
	deps := teameval.Deps{
		Evaluations: teameval.NewSQLStore(dbh),
		Configs:     question.NewSQLStore(dbh),
		Responses:   response.NewSQLStore(dbh),
		Releases:    teameval.NewSQLReleases(dbh),
		Hosts:       rosters,
		Locker:      lk,
		Blobs:       bs,
		Events:      syncx.Recorder{Log: syncx.NewEventRepo(dbh), SiteID: cfg.SiteID},
		Metrics:     m,
		Logger:      logger,
	}

	var gbAPI api.Gradebook
	if cfg.EnableGradeSync {
		gbStore := &sqlstore.Store{DB: dbh}
		ags := agshttp.New(agshttp.Config{
			TokenURL:     cfg.AGSTokenURL,
			ClientID:     cfg.AGSClientID,
			ClientSecret: cfg.AGSClientSecret,
			Timeout:      cfg.AGSTimeout,
		})
		deps.Sink = gradebook.New(gbStore, ags, time.Now)
		gbAPI = httpchi.New(gbStore)
	}
	svc := teameval.New(deps)

	authSvc := auth.NewAuthService(cfg.AuthHMACSecret, cfg.TokenTTL)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, auth.Credentials{
		AdminUser:     cfg.AdminUser,
		AdminPassHash: cfg.AdminPassHash,
		DevLogin:      cfg.Mode == config.ModeOffline,
	}))

	api.Mount(r, api.RouterDeps{
		Service:   svc,
		Auth:      authSvc,
		Rosters:   rosters,
		Limiter:   api.NewSubmitLimiter(cfg.SubmitRatePerSec, cfg.SubmitBurst),
		Gradebook: gbAPI,
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbh.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr, "mode", cfg.Mode, "db", cfg.DBDriver, "grade_sync", cfg.EnableGradeSync)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", "err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, done := context.WithTimeout(context.Background(), 15*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
}
