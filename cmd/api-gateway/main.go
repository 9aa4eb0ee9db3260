package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/learnhub-api/api/swagger"
	"github.com/noah-isme/learnhub-api/internal/handler"
	"github.com/noah-isme/learnhub-api/internal/middleware"
	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/repository"
	"github.com/noah-isme/learnhub-api/internal/service"
	"github.com/noah-isme/learnhub-api/migrations"
	"github.com/noah-isme/learnhub-api/pkg/cache"
	"github.com/noah-isme/learnhub-api/pkg/config"
	"github.com/noah-isme/learnhub-api/pkg/database"
	"github.com/noah-isme/learnhub-api/pkg/logger"
	"github.com/noah-isme/learnhub-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/learnhub-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/learnhub-api/pkg/middleware/requestid"
	"github.com/noah-isme/learnhub-api/pkg/observability"
	"github.com/noah-isme/learnhub-api/pkg/storage"
	"github.com/noah-isme/learnhub-api/pkg/telegram"
	"github.com/noah-isme/learnhub-api/pkg/validation"
)

// stagingSweepInterval controls how often abandoned upload batches are removed.
const stagingSweepInterval = time.Hour

// @title LearnHub API
// @version 1.0.0
// @description Accounts, document verification, admin approval and courses for the LearnHub platform.
// @BasePath /api
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	flushSentry, err := observability.InitSentry(cfg.Sentry.DSN, cfg.Env, cfg.Release)
	if err != nil {
		logr.Warn("sentry disabled", zap.Error(err))
	}
	defer flushSentry()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, migrations.FS, cfg.Database.MigrationsDir); err != nil {
			logr.Fatal("failed to migrate database", zap.Error(err))
		}
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Fatal("failed to configure redis", zap.Error(err))
	}
	defer redisClient.Close() //nolint:errcheck
	if err := cache.Ping(context.Background(), redisClient); err != nil {
		logr.Warn("redis unreachable, cache and rate limits fail open", zap.Error(err))
	}

	staging, err := storage.NewLocalStorage(cfg.Uploads.StagingDir)
	if err != nil {
		logr.Fatal("failed to prepare staging area", zap.Error(err))
	}
	blobs, files, err := newBlobStore(cfg)
	if err != nil {
		logr.Fatal("failed to configure blob store", zap.Error(err))
	}

	sender, err := newMailSender(cfg, logr)
	if err != nil {
		logr.Fatal("failed to configure mail sender", zap.Error(err))
	}
	renderer, err := mailer.NewRenderer()
	if err != nil {
		logr.Fatal("failed to parse email templates", zap.Error(err))
	}
	alerts := newAdminAlerts(cfg, logr)

	metrics := service.NewMetricsService()
	validate := validation.New()

	identityRepo := repository.NewIdentityRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	classRepo := repository.NewLiveClassRepository(db)
	contactRepo := repository.NewContactRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled)
	notifier := service.NewNotificationService(sender, renderer, alerts, metrics, logr, service.NotificationConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
	})

	authSvc := service.NewAuthService(identityRepo, notifier, cacheSvc, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		VerifyTokenExpiry:  cfg.JWT.VerifyExpiration,
		ResetTokenExpiry:   cfg.JWT.ResetExpiration,
		Issuer:             cfg.JWT.Issuer,
		PublicURL:          cfg.PublicURL + cfg.APIPrefix,
		FrontendURL:        cfg.Mail.FrontendURL,
		AdminSignupKey:     cfg.Admin.SignupKey,
	})
	identitySvc := service.NewIdentityService(identityRepo, documentRepo, logr)
	approvalSvc := service.NewApprovalService(identityRepo, documentRepo, notifier, cacheSvc, metrics, validate, logr)
	documentSvc := service.NewDocumentService(identityRepo, documentRepo, staging, blobs, notifier, cacheSvc, metrics, validate, logr, service.DocumentConfig{
		MaxFileSize:  cfg.Uploads.MaxFileSizeBytes,
		AllowedMIMEs: cfg.Uploads.AllowedMIMEs,
		Concurrency:  cfg.Uploads.Concurrency,
	})
	courseSvc := service.NewCourseService(courseRepo, classRepo, identityRepo, notifier, cacheSvc, metrics, validate, logr)
	contactSvc := service.NewContactService(contactRepo, notifier, validate, logr)
	exportSvc := service.NewExportService(identityRepo, courseRepo, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The queue outlives the signal context so Stop can drain it.
	notifier.Start(context.Background())
	go sweepStaging(ctx, staging, logr)

	r := gin.New()
	r.Use(observability.GinMiddleware())
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.ReportServerErrors())
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	health := handler.NewMetricsHandler(metrics, map[string]handler.ReadinessCheck{
		"postgres": pingPostgres(db),
		"redis":    pingRedis(redisClient),
	})
	r.GET("/health", health.Health)
	r.GET("/ready", health.Ready)
	r.GET("/metrics", health.Prometheus)
	if files != nil {
		r.GET("/files/:token", handler.NewFileHandler(files).Download)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	maxSubmission := cfg.Uploads.MaxFileSizeBytes*int64(len(models.RequiredDocuments(models.RoleTeacher))) + 1<<20
	handler.RegisterRoutes(r.Group(cfg.APIPrefix), handler.RouterDeps{
		Tokens:         authSvc,
		Admins:         approvalSvc,
		LoginLimiter:   cache.NewFixedWindowLimiter(redisClient, "login", cfg.RateLimit.LoginPerWindow, cfg.RateLimit.Window),
		ContactLimiter: cache.NewFixedWindowLimiter(redisClient, "contact", cfg.RateLimit.ContactPerWindow, cfg.RateLimit.Window),
		Logger:         logr,
		StudentAuth:    handler.NewAuthHandler(authSvc, models.RoleStudent),
		TeacherAuth:    handler.NewAuthHandler(authSvc, models.RoleTeacher),
		AdminAuth:      handler.NewAuthHandler(authSvc, models.RoleAdmin),
		Students:       handler.NewIdentityHandler(identitySvc, documentSvc, models.RoleStudent, maxSubmission),
		Teachers:       handler.NewIdentityHandler(identitySvc, documentSvc, models.RoleTeacher, maxSubmission),
		Approvals:      handler.NewApprovalHandler(approvalSvc, courseSvc, exportSvc),
		Courses:        handler.NewCourseHandler(courseSvc),
		Contact:        handler.NewContactHandler(contactSvc),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("blob_driver", cfg.Blob.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	notifier.Stop(shutdownCtx)
}

// newBlobStore returns the configured document store. The resolver is only
// non-nil for the local driver, which serves its own downloads.
func newBlobStore(cfg *config.Config) (storage.BlobStore, *storage.LocalBlobStore, error) {
	switch cfg.Blob.Driver {
	case "", "local":
		files, err := storage.NewLocalStorage(cfg.Blob.LocalDir)
		if err != nil {
			return nil, nil, err
		}
		signer := storage.NewSignedURLSigner(cfg.Blob.SignedURLSecret, cfg.Blob.SignedURLTTL)
		local := storage.NewLocalBlobStore(files, signer, cfg.PublicURL)
		return local, local, nil
	case "cloudinary":
		store, err := storage.NewCloudinaryStore(storage.CloudinaryConfig{
			CloudName: cfg.Blob.CloudinaryCloud,
			APIKey:    cfg.Blob.CloudinaryKey,
			APISecret: cfg.Blob.CloudinarySecret,
			Folder:    cfg.Blob.CloudinaryFolder,
			Endpoint:  cfg.Blob.CloudinaryEndpoint,
		}, nil)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown blob driver %q", cfg.Blob.Driver)
	}
}

func newMailSender(cfg *config.Config, logr *zap.Logger) (mailer.Sender, error) {
	if cfg.Mail.Disabled {
		logr.Info("mail delivery disabled, emails are logged only")
		return mailer.NewLogSender(logr), nil
	}
	smtp, err := mailer.NewSMTPSender(cfg.Mail)
	if err != nil {
		return nil, err
	}
	return smtp, nil
}

func newAdminAlerts(cfg *config.Config, logr *zap.Logger) telegram.Notifier {
	if cfg.Telegram.BotToken == "" || cfg.Telegram.AdminChatID == 0 {
		return telegram.NopNotifier{}
	}
	bot, err := telegram.NewBotNotifier(cfg.Telegram.BotToken, cfg.Telegram.AdminChatID)
	if err != nil {
		logr.Warn("telegram alerts disabled", zap.Error(err))
		return telegram.NopNotifier{}
	}
	return bot
}

func pingPostgres(db *sqlx.DB) handler.ReadinessCheck {
	return func(ctx context.Context) error {
		return db.PingContext(ctx)
	}
}

func pingRedis(client redis.Cmdable) handler.ReadinessCheck {
	return func(ctx context.Context) error {
		return cache.Ping(ctx, client)
	}
}

func sweepStaging(ctx context.Context, staging *storage.LocalStorage, logr *zap.Logger) {
	ticker := time.NewTicker(stagingSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := staging.CleanupOlderThan(stagingSweepInterval)
			if err != nil {
				logr.Warn("staging sweep failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				logr.Info("staging sweep removed stale files", zap.Int("count", len(removed)))
			}
		}
	}
}
