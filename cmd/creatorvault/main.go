package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	"github.com/ManuelReschke/CreatorVault/app/controllers"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/billing"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/cache"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/config"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/database"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/env"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/jobqueue"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/locker"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/providers"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/ratelimit"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/router"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/security"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/storage"
)

func main() {
	app, jobs := NewApplication()
	if jobs != nil {
		jobs.Start()
	}

	go func() {
		if err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))); err != nil {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("[Server] Shutting down")

	if jobs != nil {
		jobs.Stop()
	}
	if err := app.ShutdownWithTimeout(15 * time.Second); err != nil {
		log.Errorf("[Server] Shutdown: %v", err)
	}
}

// NewApplication wires the ledger and returns the app plus the job manager, if enabled.
func NewApplication() (*fiber.App, *jobqueue.Manager) {
	if err := env.SetupEnvFile(); err != nil && !errors.Is(err, env.ErrNoEnvFile) {
		log.Fatal(err)
	}
	database.SetupDatabase()
	cache.SetupCache()

	ledgerCfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Config] %v", err)
	}
	registry := providers.NewRegistryFromConfig(providers.LoadConfig())
	log.Infof("[Providers] Enabled: %v", registry.Names())

	opts := []billing.Option{billing.WithLocker(locker.NewRedis(cache.GetClient()))}
	var bucket *storage.Client
	storageCfg, err := storage.LoadConfig()
	if err != nil {
		log.Fatalf("[Storage] %v", err)
	}
	if storageCfg.Enabled {
		bucket, err = storage.NewClient(context.Background(), storageCfg)
		if err != nil {
			log.Fatalf("[Storage] %v", err)
		}
		tokens, err := security.NewDownloadTokenIssuer(ledgerCfg.DownloadTokenSecret)
		if err != nil {
			log.Fatalf("[Downloads] %v", err)
		}
		opts = append(opts, billing.WithDownloads(tokens, bucket))
	} else {
		log.Warn("[Storage] S3 downloads disabled")
	}
	ledger := billing.NewServiceFromDB(database.GetDB(), registry, ledgerCfg, opts...)

	var jobs *jobqueue.Manager
	if env.GetEnv("JOBS_ENABLED", "true") == "true" {
		queue := jobqueue.NewQueue(cache.GetClient(), env.GetEnvInt("JOB_WORKERS", 2))
		jobqueue.RegisterLedgerJobs(queue, ledger)
		jobs = jobqueue.NewManager(queue, jobqueue.ScheduleFromEnv())
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: controllers.ErrorHandler,
		BodyLimit:    1 << 20,
	})

	app.Use(recover.New(), requestid.New(requestid.Config{
		Generator:  uuid.NewString,
		ContextKey: controllers.RequestIDKey,
	}), logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", uuid.NewString()),
		},
	}), monitor.New())

	// SWAGGER / OPENAPI
	app.Use(swagger.New(swagger.Config{
		BasePath: "/docs/api/",
		FilePath: env.GetEnv("OPENAPI_FILE", "./public/docs/v1/openapi.yml"),
		Path:     "v1",
	}))

	lc := controllers.NewLedgerController(ledger, jobs,
		controllers.WithDeliveryCounter(counter.New(cache.GetClient())),
		controllers.WithStatistics(database.GetDB()),
	)
	router.InstallRouter(app, router.Dependencies{
		DB:          database.GetDB(),
		Ledger:      lc,
		RateStorage: ratelimit.NewStorage(),
		Storage:     bucket,
	})

	return app, jobs
}
