package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	apirest "github.com/arcadia-ops/backoffice/api/rest"
	"github.com/arcadia-ops/backoffice/audit"
	"github.com/arcadia-ops/backoffice/authz"
	"github.com/arcadia-ops/backoffice/cache"
	"github.com/arcadia-ops/backoffice/config"
	dbadapter "github.com/arcadia-ops/backoffice/db"
	"github.com/arcadia-ops/backoffice/hierarchy"
	"github.com/arcadia-ops/backoffice/ledger"
	mw "github.com/arcadia-ops/backoffice/middleware"
	"github.com/arcadia-ops/backoffice/model"
	"github.com/arcadia-ops/backoffice/scheduler"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Security.JWTSecret == "" {
		log.Fatal("security.jwt_secret must be set")
	}
	if cfg.Ingest.MachineKey == "" {
		logger.Warn("ingest.machine_key is not set; telemetry ingestion is disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	if err := bootstrapAdmin(db, cfg.Server, logger); err != nil {
		log.Fatalf("bootstrap admin: %v", err)
	}
	logger.Info("DB initialized")

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Audit ----
	auditSvc := audit.New(db, c, audit.Options{
		QueueSize:     cfg.Audit.QueueSize,
		BatchSize:     cfg.Audit.BatchSize,
		FlushInterval: cfg.Audit.FlushInterval,
	}, logger)
	defer auditSvc.Stop(context.Background())

	// ---- Core services ----
	engine := authz.NewEngine(db)
	resolver := hierarchy.NewResolver(db)
	ledgerSvc := ledger.NewService(db, engine, logger)

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	sched.AddTicker("audit_retention", cfg.Audit.SweepInterval, func() {
		purged, err := auditSvc.PurgeOlderThan(context.Background(), cfg.Audit.RetentionDays)
		if err != nil {
			logger.Error("audit retention sweep failed", zap.Error(err))
			return
		}
		if purged > 0 {
			auditSvc.Record(audit.Entry{
				Action: model.ActionLogPurge,
				Status: model.AuditSuccess,
				Details: map[string]interface{}{
					"purged":         purged,
					"retention_days": cfg.Audit.RetentionDays,
				},
			})
		}
	})

	sched.AddTicker("presence_sweep", time.Minute, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		flipped, err := apirest.ReconcilePresence(ctx, db, c)
		if err != nil {
			logger.Warn("presence sweep failed", zap.Error(err))
			return
		}
		if flipped > 0 {
			logger.Info("presence sweep", zap.Int64("offline", flipped))
		}
	})

	// Account event fan-in: log ban/delete broadcasts from other nodes.
	go func() {
		ch, cancel, err := pubsub.Subscribe(context.Background(), "account_events")
		if err != nil {
			logger.Warn("account event subscription failed", zap.Error(err))
			return
		}
		defer cancel()
		for msg := range ch {
			logger.Info("account event", zap.String("payload", msg.Payload))
		}
	}()

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	apirest.RegisterRoutes(r, apirest.Deps{
		DB:       db,
		Cache:    c,
		PubSub:   pubsub,
		Security: cfg.Security,
		Ingest:   cfg.Ingest,
		Engine:   engine,
		Resolver: resolver,
		Ledger:   ledgerSvc,
		Audit:    auditSvc,
		Logger:   logger,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}

// bootstrapAdmin creates the root admin account on first start. Skipped when
// any admin already exists or when no bootstrap password is configured.
func bootstrapAdmin(db *gorm.DB, srv config.ServerConfig, logger *zap.Logger) error {
	var count int64
	if err := db.Model(&model.Account{}).Where("role = ?", model.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if srv.AdminPassword == "" {
		logger.Warn("no admin account exists and server.admin_password is empty; skipping bootstrap")
		return nil
	}
	if srv.AdminUsername == "" {
		return errors.New("server.admin_username must be set")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(srv.AdminPassword), 12)
	if err != nil {
		return err
	}
	admin := model.Account{
		Username:     srv.AdminUsername,
		PasswordHash: string(hash),
		Role:         model.RoleAdmin,
		IsActive:     true,
	}
	if err := db.Create(&admin).Error; err != nil {
		return err
	}
	logger.Info("bootstrap admin created", zap.String("username", admin.Username))
	return nil
}
