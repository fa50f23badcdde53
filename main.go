package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/padraicbc/pageantapi/audit"
	"github.com/padraicbc/pageantapi/cache"
	"github.com/padraicbc/pageantapi/config"
	"github.com/padraicbc/pageantapi/db"
	"github.com/padraicbc/pageantapi/handlers"
	applog "github.com/padraicbc/pageantapi/logger"
	mw "github.com/padraicbc/pageantapi/middleware"
	"github.com/padraicbc/pageantapi/roster"
	"github.com/padraicbc/pageantapi/scoring"
)

func main() {
	cfg := config.Load()
	logger, err := applog.New(cfg.Debug, "pageantapi")
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	bdb := db.Setup(cfg)
	defer bdb.Close()

	if err := db.CreateTables(context.Background(), bdb); err != nil {
		logger.Fatal("create tables failed", zap.Error(err))
	}

	var sink audit.Sink = audit.NewDBSink(bdb)
	if cfg.AuditSink == config.AuditSinkLog {
		sink = audit.NewLogSink(logger)
	}
	recorder := audit.NewRecorder(sink, logger)
	defer recorder.Wait()

	var totals scoring.TotalsCache = cache.Noop{}
	if cfg.RedisAddr != "" {
		rdb, err := cache.Dial(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Fatal("redis connect failed", zap.Error(err))
		}
		defer rdb.Close()
		totals = cache.NewRedis(rdb, cfg.CacheTTL)
		logger.Info("tabulation cache enabled", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.CacheTTL))
	}

	store := roster.New(bdb)
	svc := scoring.NewService(bdb, store,
		scoring.WithAuditor(recorder),
		scoring.WithCache(totals),
		scoring.WithLogger(logger.Named("scoring")),
	)
	h := handlers.New(bdb, svc, store, cfg.JWTKey(), logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogError:     true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.Int("status", v.Status),
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.String("request_id", v.RequestID),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			switch {
			case v.Status >= 500:
				logger.Error("http request", fields...)
			case v.Status >= 400:
				logger.Warn("http request", fields...)
			default:
				logger.Info("http request", fields...)
			}
			return nil
		},
	}))
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"*", "Authorization"},
		AllowCredentials: true,
	}))

	// Public
	e.POST("/api/signin", h.Signin)

	// Protected – require valid JWT in Authorization header
	api := e.Group("/api", mw.JWT(cfg.JWTKey()))

	api.POST("/score/submit", h.SubmitScore)
	api.POST("/score/sign", h.SignScore)
	api.POST("/score/unsign", h.UnsignScore)
	api.GET("/score/list", h.ListScores)

	api.GET("/tabulation/contestant", h.ContestantTotal)
	api.GET("/tabulation/subcategory", h.SubcategoryRanking)
	api.GET("/tabulation/category", h.CategoryRanking)

	api.POST("/certification/judge", h.CertifyJudge)
	api.POST("/certification/tally", h.CertifyTally)
	api.POST("/certification/audit", h.CertifyAudit)
	api.GET("/certification/status", h.CertificationStatus)

	api.POST("/removal/initiate", h.InitiateRemoval)
	api.POST("/removal/cosign", h.CoSignRemoval)
	api.POST("/removal/withdraw", h.WithdrawRemoval)
	api.GET("/removal/list", h.ListRemovals)

	api.GET("/roster/subcategories", h.Subcategories)
	api.GET("/roster/criteria", h.Criteria)

	admin := api.Group("/admin", mw.RequireRole(scoring.RoleAdmin))
	admin.POST("/password-hash", h.PasswordHash)
	admin.POST("/subcategories", h.CreateSubcategory)
	admin.POST("/criteria", h.CreateCriterion)
	admin.POST("/judges", h.AssignJudge)
	admin.POST("/contestants", h.EnterContestant)

	if cfg.Debug {
		logger.Info("starting server", zap.String("mode", "debug"), zap.String("addr", cfg.Port))
		if err := e.Start(cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server exited", zap.Error(err))
		}
		return
	}

	autoTLS := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		Cache:      autocert.DirCache(".cache"),
		HostPolicy: autocert.HostWhitelist(cfg.TLSDomains...),
	}

	s := &http.Server{
		Addr:         ":443",
		Handler:      e,
		TLSConfig:    autoTLS.TLSConfig(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	if err := s.ListenAndServeTLS("", ""); err != http.ErrServerClosed {
		logger.Error("tls server exited", zap.Error(err))
		recorder.Wait()
		os.Exit(1)
	}
}
