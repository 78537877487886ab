package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/damoang/angple-rules/internal/config"
	"github.com/damoang/angple-rules/internal/handler"
	"github.com/damoang/angple-rules/internal/middleware"
	"github.com/damoang/angple-rules/internal/migration"
	"github.com/damoang/angple-rules/internal/repository"
	"github.com/damoang/angple-rules/internal/routes"
	"github.com/damoang/angple-rules/internal/service"
	pkgcache "github.com/damoang/angple-rules/pkg/cache"
	"github.com/damoang/angple-rules/pkg/jwt"
	pkglogger "github.com/damoang/angple-rules/pkg/logger"
	pkgredis "github.com/damoang/angple-rules/pkg/redis"
	pkgstorage "github.com/damoang/angple-rules/pkg/storage"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// getConfigPath returns config file path based on APP_ENV environment variable
func getConfigPath() string {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("configs/config.%s.yaml", env)
}

func main() {
	dotenvFiles := config.LoadDotEnv()

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		pkglogger.InitStructured("production")
		pkglogger.Fatal("Failed to load config: %v", err)
	}
	pkglogger.InitStructured(cfg.Server.Mode)
	if len(dotenvFiles) > 0 {
		pkglogger.Info("Loaded env files: %s", strings.Join(dotenvFiles, ", "))
	}
	config.LogResolved(cfg)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := initDB(cfg)
	if err != nil {
		pkglogger.Fatal("Failed to connect to database: %v", err)
	}
	pkglogger.Info("Connected to MySQL")
	if err := migration.Run(db); err != nil {
		pkglogger.Fatal("Migration failed: %v", err)
	}

	var redisClient *redis.Client
	if cfg.NeedsRedis() {
		redisClient, err = pkgredis.NewClient(ctx, pkgredis.Options{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			pkglogger.Fatal("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		pkglogger.Info("Connected to Redis (%s:%d)", cfg.Redis.Host, cfg.Redis.Port)
	}

	// 생성 쿼터: 기본은 DB, 설정 시 Redis
	var quota service.QuotaGateway = repository.NewQuotaRepository(db, cfg.Quota.MaxPerUser)
	if cfg.Quota.Backend == "redis" {
		quota = repository.NewRedisQuota(redisClient, cfg.Quota.MaxPerUser)
	}

	// 첨부파일 저장소, 비활성화 시 첨부 업로드는 거부된다
	var files service.FileStore
	if cfg.Storage.Enabled {
		files = pkgstorage.NewS3Store(pkgstorage.S3Config{
			Endpoint:        cfg.Storage.Endpoint,
			Region:          cfg.Storage.Region,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			Bucket:          cfg.Storage.Bucket,
			CDNURL:          cfg.Storage.CDNURL,
			BasePath:        cfg.Storage.BasePath,
			ForcePathStyle:  cfg.Storage.ForcePathStyle,
		})
		pkglogger.Info("Attachment storage: bucket %s", cfg.Storage.Bucket)
	}

	store := repository.NewStore(db)
	var members service.RoleResolver = repository.NewMembershipRepository(db)
	if roleCache := pkgcache.NewService(redisClient); cfg.Cache.MembershipTTL > 0 && roleCache.IsAvailable() {
		members = repository.NewCachedMembership(
			repository.NewMembershipRepository(db),
			roleCache,
			time.Duration(cfg.Cache.MembershipTTL)*time.Second,
		)
	}
	feed := repository.NewFeedRepository(db)

	propagationService := service.NewPropagationService(store, members)
	ruleService := service.NewRuleService(store, members, quota, feed, files, propagationService)
	adoptionService := service.NewAdoptionService(store, members, feed)
	listingService := service.NewListingService(store, members)

	jwtManager := jwt.NewManager(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiresIn)*time.Second)

	router := gin.New()
	router.MaxMultipartMemory = handler.MaxMultipartMemory
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     splitAndTrim(cfg.CORS.AllowOrigins, ","),
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		ExposeHeaders:    []string{"X-Request-ID"},
		MaxAge:           12 * time.Hour,
	}))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.Metrics())
	router.Use(middleware.RequestLogger())

	routes.Setup(router, routes.Handlers{
		Rules:     handler.NewRuleHandler(ruleService, listingService),
		Adoptions: handler.NewAdoptionHandler(adoptionService),
		Chapters:  handler.NewChapterHandler(propagationService),
	}, jwtManager, middleware.WriteRateLimit(redisClient, cfg.RateLimit.WritesPerMinute))

	go reportPoolStats(ctx, db)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		pkglogger.Info("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			pkglogger.Fatal("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	pkglogger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		pkglogger.Error("Server forced to shutdown: %v", err)
	}
}

// initDB MySQL 연결 초기화
func initDB(cfg *config.Config) (*gorm.DB, error) {
	mysqlCfg, err := mysqldriver.ParseDSN(cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("DSN 파싱 실패: %w", err)
	}
	if mysqlCfg.Params == nil {
		mysqlCfg.Params = map[string]string{}
	}
	// 모든 시각은 UTC 로 저장
	mysqlCfg.Params["time_zone"] = "'+00:00'"

	logLevel := gormlogger.Warn
	if cfg.IsDevelopment() {
		logLevel = gormlogger.Info
	}
	db, err := gorm.Open(mysql.Open(mysqlCfg.FormatDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)
	return db, nil
}

// reportPoolStats publishes the connection pool size every 15s
func reportPoolStats(ctx context.Context, db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			middleware.SetDBOpenConnections(sqlDB.Stats().OpenConnections)
		}
	}
}

func splitAndTrim(s, sep string) []string {
	var parts []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}
