package app

import (
	"assessment_backend/internal/config"
	"assessment_backend/internal/controller"
	"assessment_backend/internal/quizgen"
	"assessment_backend/internal/repository"
	"assessment_backend/internal/service"
	"assessment_backend/internal/util"
	"assessment_backend/pkg/configwatcher"
	"assessment_backend/pkg/database"
	"assessment_backend/pkg/llm"
	"assessment_backend/pkg/logger"
	"assessment_backend/pkg/monitoring"
	"assessment_backend/pkg/security"
	"assessment_backend/pkg/tracing"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const attemptCacheTTL = 10 * time.Minute

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	Mongo           *mongo.Client
	services        *services
	configCallbacks []func(*config.Config)

	tracer  *sdktrace.TracerProvider
	limiter *security.IPRateLimiter
}

type repositories struct {
	user           *repository.UserRepository
	assessment     *repository.AssessmentRepository
	submission     *repository.SubmissionRepository
	feedback       *repository.FeedbackRepository
	attemptCache   *repository.AttemptCache
	generationLogs repository.GenerationLogRepository
}

type services struct {
	auth         *service.AuthService
	admin        *service.AdminService
	storage      *service.StorageService
	assessment   *service.AssessmentService
	feedback     *service.FeedbackService
	fallbackBank *quizgen.YAMLFallbackBank
}

type controllers struct {
	auth       *controller.AuthController
	admin      *controller.AdminController
	assessment *controller.AssessmentController
	feedback   *controller.FeedbackController
	health     *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client, mdb *mongo.Database) *repositories {
	repos := &repositories{
		user:         repository.NewUserRepository(db),
		assessment:   repository.NewAssessmentRepository(db),
		submission:   repository.NewSubmissionRepository(db),
		feedback:     repository.NewFeedbackRepository(db),
		attemptCache: repository.NewAttemptCache(rdb, attemptCacheTTL),
	}
	// 未配置 MongoDB 时不记录生成日志
	if mdb != nil {
		repos.generationLogs = repository.NewGenerationLogRepository(mdb)
	}
	return repos
}

func (a *App) initServices(repos *repositories, cfg *config.Config) *services {
	s := &services{}

	s.storage = service.NewStorageService(cfg)
	s.auth = service.NewAuthService(repos.user, cfg)
	s.admin = service.NewAdminService(repos.user)

	questionClient := newModelClient(cfg.AI, cfg.AI.Model, "questions")
	feedbackClient := newModelClient(cfg.AI, cfg.AI.FeedbackModel, "feedback")

	retrier := newRetrier(cfg.AI)
	s.fallbackBank = loadFallbackBank(cfg.Generation.FallbackBank)
	augmenter := quizgen.NewAugmenter(questionClient, retrier, augmenterOptions(cfg, s.fallbackBank))

	s.assessment = service.NewAssessmentService(
		repos.assessment,
		repos.submission,
		s.storage,
		repos.attemptCache,
		repos.generationLogs,
		augmenter,
		cfg,
	)

	s.feedback = service.NewFeedbackService(
		repos.submission,
		repos.assessment,
		repos.feedback,
		repos.generationLogs,
		feedbackClient,
		cfg.AI.MaxTokens,
	)

	return s
}

// newRetrier 重试日志由 Retrier 输出，这里只计数
func newRetrier(cfg config.AIConfig) *llm.Retrier {
	retrier := llm.NewRetrier(cfg.MaxRetries, time.Duration(cfg.BaseDelayMillis)*time.Millisecond)
	retrier.OnRetry = func(int, time.Duration, error) {
		monitoring.ModelRetries.WithLabelValues(cfg.Provider).Inc()
	}
	return retrier
}

// newModelClient 构造失败时返回 nil：生成走备用题库，评语返回 502
func newModelClient(cfg config.AIConfig, model, purpose string) llm.Client {
	client, err := llm.New(cfg, model)
	if err != nil {
		logger.Log.Warn("model client disabled",
			zap.String("purpose", purpose),
			zap.String("provider", cfg.Provider),
			zap.Error(err))
		return nil
	}
	return client
}

func loadFallbackBank(path string) *quizgen.YAMLFallbackBank {
	if path == "" {
		return quizgen.NewYAMLFallbackBank(nil)
	}
	bank, err := quizgen.LoadYAMLFallbackBank(path)
	if err != nil {
		logger.Log.Warn("failed to load fallback bank", zap.String("path", path), zap.Error(err))
		return quizgen.NewYAMLFallbackBank(nil)
	}
	logger.Log.Info("fallback bank loaded", zap.String("path", path), zap.Int("entries", bank.Len()))
	return bank
}

func augmenterOptions(cfg *config.Config, bank *quizgen.YAMLFallbackBank) quizgen.AugmenterOptions {
	return quizgen.AugmenterOptions{
		Fallback:        bank,
		FallbackOnError: cfg.Generation.FallbackOnError,
		MaxTokens:       cfg.AI.MaxTokens,
		Temperature:     0.7,
	}
}

// reloadGeneration 热更新生成比例、题量与备用题库；模型与存储配置需重启生效
func (a *App) reloadGeneration(cfg *config.Config) {
	s := a.services
	if cfg.Generation.FallbackBank != "" {
		if bank, err := quizgen.LoadYAMLFallbackBank(cfg.Generation.FallbackBank); err != nil {
			logger.Log.Warn("keeping previous fallback bank", zap.Error(err))
		} else {
			s.fallbackBank.Replace(bank)
		}
	}
	s.assessment.UpdateGeneration(cfg.Generation, augmenterOptions(cfg, s.fallbackBank))
	logger.Log.Info("generation settings reloaded",
		zap.Float64("aiShare", cfg.Generation.AIShare),
		zap.Int("generateCount", cfg.Generation.GenerateCount),
		zap.Int("fallbackEntries", s.fallbackBank.Len()))
}

func (a *App) initControllers(s *services) *controllers {
	return &controllers{
		auth:       controller.NewAuthController(s.auth),
		admin:      controller.NewAdminController(s.admin),
		assessment: controller.NewAssessmentController(s.assessment, a.Config.Upload),
		feedback:   controller.NewFeedbackController(s.feedback),
		health:     controller.NewHealthController(a.DB, a.Redis),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	a.limiter = security.NewIPRateLimiter(cfg.RateLimit.MaxRequests, window)
	router.Use(a.limiter.Middleware())

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	debug := cfg.Server.Mode == "debug"
	db, err := database.InitDB(&cfg.Database, debug)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	if debug || cfg.ForceMigrate {
		if err := database.AutoMigrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
		logger.Log.Info("Database migrated")
	}

	app := &App{
		Config: cfg,
		DB:     db,
	}
	if cfg.MigrateOnly {
		return app
	}

	// Redis 只用于作答视图缓存，未配置时为 nil
	rdb, err := database.InitRedis(context.Background(), &cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
	}
	app.Redis = rdb

	mongoClient, mongoDB, err := database.InitMongo(&cfg.Mongo)
	if err != nil {
		logger.Log.Warn("MongoDB unavailable, generation logs disabled", zap.Error(err))
	}
	app.Mongo = mongoClient

	repos := app.initRepositories(db, app.Redis, mongoDB)
	app.services = app.initServices(repos, cfg)
	controllers := app.initControllers(app.services)
	app.RegisterConfigCallback(app.reloadGeneration)

	// 监控初始化
	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("assessment-backend", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	gin.SetMode(cfg.Server.Mode)
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == util.StorageLocal {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	return app
}

func (a *App) startBackgroundTasks(ctx context.Context) {
	go a.limiter.Run(ctx)

	if a.Config.Path == "" {
		return
	}
	go func() {
		err := configwatcher.WatchConfig(ctx, a.Config.Path, func(cfg *config.Config) {
			for _, cb := range a.configCallbacks {
				cb(cfg)
			}
		})
		if err != nil {
			logger.Log.Error("config watcher stopped", zap.Error(err))
		}
	}()
}

func (a *App) Run() {
	bgCtx, stopBackground := context.WithCancel(context.Background())
	a.startBackgroundTasks(bgCtx)

	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		logger.Log.Info("server listening", zap.String("addr", srv.Addr), zap.String("mode", a.Config.Server.Mode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("listen", zap.Error(err))
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("shutting down")

	stopBackground()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("server forced to shutdown", zap.Error(err))
	}

	a.closeClients(ctx)
	logger.Log.Info("server exited")
}

func (a *App) closeClients(ctx context.Context) {
	if a.Mongo != nil {
		if err := a.Mongo.Disconnect(ctx); err != nil {
			logger.Log.Warn("mongo disconnect", zap.Error(err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			logger.Log.Warn("redis close", zap.Error(err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		sqlDB.Close()
	}
}
