package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/roadwatch/roadwatch/internal/api"
	"github.com/roadwatch/roadwatch/internal/app"
	"github.com/roadwatch/roadwatch/internal/app/maintenance"
	iauth "github.com/roadwatch/roadwatch/internal/auth"
	"github.com/roadwatch/roadwatch/internal/cache"
	"github.com/roadwatch/roadwatch/internal/database"
	"github.com/roadwatch/roadwatch/internal/handlers"
	"github.com/roadwatch/roadwatch/internal/middleware"
	"github.com/roadwatch/roadwatch/internal/monitoring"
	"github.com/roadwatch/roadwatch/internal/monitoring/checks"
	"github.com/roadwatch/roadwatch/internal/realtime"
	"github.com/roadwatch/roadwatch/internal/services"
	"github.com/roadwatch/roadwatch/pkg/logger"
	"github.com/roadwatch/roadwatch/pkg/mail"
)

const checkTimeout = 3 * time.Second

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	cfg *app.Config
	log *zap.Logger

	DB          *gorm.DB
	Mongo       *mongo.Database
	Redis       redis.UniversalClient
	Store       services.Store
	Handle      *realtime.Handle
	Gateway     *realtime.Gateway
	Relay       *realtime.RedisRelay
	Coordinator *services.Coordinator
	ReadState   *services.ReadStateService
	Email       *services.EmailDispatcher
	Sweeper     *maintenance.Sweeper
	Monitoring  *monitoring.Module
	Router      *gin.Engine

	relayCancel context.CancelFunc
	relayDone   chan struct{}
	shutdown    sync.Once
}

// bootstrapRuntime initialises storage, services and the HTTP router. The realtime handle
// stays detached until activate is called once the listener accepts connections.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{cfg: cfg, log: log}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background())
		}
	}()

	// enable gin debug mode
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.Monitoring, err = monitoring.NewModule(monitoring.Options{})
	if err != nil {
		return nil, fmt.Errorf("initialise monitoring: %w", err)
	}
	monitoring.SetModule(stack.Monitoring)

	directory, err := stack.initialiseStorage(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisClient(ctx, cfg.Cache.Redis.ClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to in-process rate limiting and delivery", zap.Error(err))
			stack.Redis = nil
		} else {
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	origins := append(append([]string{}, cfg.Server.AllowedOrigins...), cfg.Realtime.AllowedOrigins...)
	stack.Gateway = realtime.NewGateway(
		realtime.WithTokenVerifier(jwtSvc),
		realtime.WithBufferSize(cfg.Realtime.BufferSize),
		realtime.WithAllowedOrigins(origins...),
	)
	stack.Handle = realtime.NewHandle()

	coordinatorOpts := []services.CoordinatorOption{
		services.WithEmailBaseURL(cfg.Server.PublicURL),
	}
	if cfg.Email.SMTP.Enabled {
		stack.Email, err = newEmailDispatcher(cfg)
		if err != nil {
			return nil, err
		}
		stack.Email.Start()
		coordinatorOpts = append(coordinatorOpts, services.WithEmailQueue(stack.Email))
	}

	stack.Coordinator, err = services.NewCoordinator(stack.Store, directory, stack.Handle, coordinatorOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise notification coordinator: %w", err)
	}

	stack.ReadState, err = services.NewReadStateService(stack.Store, stack.Handle)
	if err != nil {
		return nil, fmt.Errorf("initialise read state service: %w", err)
	}
	stats, err := services.NewStatsService(stack.Store, nil)
	if err != nil {
		return nil, fmt.Errorf("initialise stats service: %w", err)
	}
	notificationHandler, err := handlers.NewNotificationHandler(stack.ReadState, stack.Coordinator, stats,
		handlers.WithDefaultLimit(cfg.Notifications.DefaultLimit),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise notification handler: %w", err)
	}

	stack.Sweeper, err = maintenance.NewSweeper(stack.Store,
		maintenance.WithRetentionDays(cfg.Notifications.RetentionDays),
		maintenance.WithSchedule(cfg.Notifications.SweepSchedule),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise retention sweeper: %w", err)
	}

	var rateStore middleware.RateStore
	if stack.Redis != nil {
		rateStore = middleware.NewCacheRateStore(cache.NewRedisStore(stack.Redis))
	} else {
		rateStore = middleware.NewMemoryRateStore()
	}

	stack.registerHealthChecks()

	stack.Router, err = api.NewRouter(api.Dependencies{
		Config:        cfg,
		JWT:           jwtSvc,
		Notifications: notificationHandler,
		Realtime:      handlers.NewRealtimeHandler(stack.Gateway),
		Monitoring:    stack.Monitoring,
		Gateway:       stack.Gateway,
		RateStore:     rateStore,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

func (s *runtimeStack) initialiseStorage(ctx context.Context) (services.UserDirectory, error) {
	cfg := s.cfg
	if cfg.Database.UsesMongo() {
		mongoDB, err := database.OpenMongo(ctx, cfg.Database.MongoConnectionConfig())
		if err != nil {
			return nil, fmt.Errorf("open mongodb: %w", err)
		}
		s.Mongo = mongoDB

		store, err := services.NewMongoStore(mongoDB)
		if err != nil {
			return nil, fmt.Errorf("initialise mongo store: %w", err)
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		s.Store = store

		directory, err := services.NewMongoUserDirectory(mongoDB)
		if err != nil {
			return nil, fmt.Errorf("initialise user directory: %w", err)
		}
		logger.WithModule("database").Info("database connected", zap.String("driver", app.DriverMongo))
		return directory, nil
	}

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}
	s.DB = db

	store, err := services.NewGormStore(db)
	if err != nil {
		return nil, fmt.Errorf("initialise notification store: %w", err)
	}
	s.Store = store

	directory, err := services.NewGormUserDirectory(db)
	if err != nil {
		return nil, fmt.Errorf("initialise user directory: %w", err)
	}
	return directory, nil
}

func newEmailDispatcher(cfg *app.Config) (*services.EmailDispatcher, error) {
	mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
	if err != nil {
		return nil, fmt.Errorf("initialise smtp mailer: %w", err)
	}

	registry := mail.NewTemplateRegistry()
	if err := services.RegisterDefaultEmailTemplates(registry); err != nil {
		return nil, fmt.Errorf("register email templates: %w", err)
	}

	sender, err := mail.NewTemplateSender(mailer, registry)
	if err != nil {
		return nil, fmt.Errorf("initialise template sender: %w", err)
	}

	return services.NewEmailDispatcher(sender,
		services.WithEmailWorkers(cfg.Notifications.Email.Workers),
		services.WithEmailQueueSize(cfg.Notifications.Email.QueueSize),
		services.WithEmailTimeout(cfg.Notifications.Email.Timeout),
	)
}

// activate attaches the realtime transport and starts background jobs. It must run after
// the listener is accepting connections.
func (s *runtimeStack) activate(ctx context.Context) error {
	var target realtime.Sender = s.Gateway
	if s.Redis != nil && s.cfg.Realtime.Relay.Enabled {
		s.Relay = realtime.NewRedisRelay(s.Redis, s.cfg.Realtime.Relay.Channel, s.Gateway)
		target = s.Relay

		relayCtx, cancel := context.WithCancel(ctx)
		s.relayCancel = cancel
		s.relayDone = make(chan struct{})
		go func() {
			defer close(s.relayDone)
			s.Relay.Run(relayCtx)
		}()
	}
	s.Handle.Attach(target)
	s.log.Info("realtime gateway attached", zap.Bool("relay", s.Relay != nil))

	if err := s.Sweeper.Start(); err != nil {
		return fmt.Errorf("start retention sweeper: %w", err)
	}
	return nil
}

func (s *runtimeStack) registerHealthChecks() {
	health := s.Monitoring.Health()
	health.Register(monitoring.Check{
		Name:     "process",
		Scope:    monitoring.Liveness,
		Critical: true,
		Run: func(context.Context) monitoring.ProbeResult {
			return monitoring.ProbeResult{Status: monitoring.StatusUp}
		},
	})

	if s.DB != nil {
		health.Register(checks.Database(s.DB, checkTimeout))
	}
	if s.Mongo != nil {
		health.Register(checks.Mongo(s.Mongo, checkTimeout))
	}
	if s.cfg.Cache.Redis.Enabled {
		health.Register(checks.Redis(s.Redis, checkTimeout))
	}
	health.Register(checks.Realtime(s.Handle), checks.Retention(s.Sweeper.StaleAfter()))
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context) {
	if s == nil {
		return
	}
	s.shutdown.Do(func() { s.shutdownOnce(ctx) })
}

func (s *runtimeStack) shutdownOnce(ctx context.Context) {
	log := s.log
	if log == nil {
		log = logger.WithModule("bootstrap")
	}

	if s.Sweeper != nil {
		<-s.Sweeper.Stop().Done()
	}

	if s.ReadState != nil {
		s.ReadState.Wait()
	}
	if s.Coordinator != nil {
		s.Coordinator.Wait()
	}

	if s.Email != nil {
		if err := s.Email.Stop(ctx); err != nil {
			log.Warn("email dispatcher shutdown", zap.Error(err))
		}
	}

	if s.relayCancel != nil {
		s.relayCancel()
		<-s.relayDone
	}

	if s.Gateway != nil {
		s.Gateway.Close()
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.Mongo != nil {
		if err := database.CloseMongo(ctx, s.Mongo); err != nil {
			log.Warn("mongodb shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.GormConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Prepare(db); err != nil {
		return nil, fmt.Errorf("prepare database: %w", err)
	}

	driver := strings.ToLower(strings.TrimSpace(dbCfg.Driver))
	if driver == "" {
		driver = "sqlite"
	}
	logger.WithModule("database").Info("database connected", zap.String("driver", driver))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
