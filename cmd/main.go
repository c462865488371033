package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pot-code/course-progress/internal/certificate"
	"github.com/pot-code/course-progress/internal/course"
	infra "github.com/pot-code/course-progress/internal/infrastructure"
	"github.com/pot-code/course-progress/internal/infrastructure/driver"
	"github.com/pot-code/course-progress/internal/infrastructure/logging"
	"github.com/pot-code/course-progress/internal/infrastructure/metrics"
	"github.com/pot-code/course-progress/internal/infrastructure/uuid"
	"github.com/pot-code/course-progress/internal/infrastructure/validate"
	"github.com/pot-code/course-progress/internal/interfaces/rest"
	"github.com/pot-code/course-progress/internal/playback"
	"github.com/pot-code/course-progress/internal/progress"
	"go.uber.org/zap"
)

func main() {
	log.SetFlags(log.Lshortfile | log.Ldate | log.Ltime)
	option, err := infra.InitConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		FilePath: option.Logging.FilePath,
		Level:    option.Logging.Level,
		AppID:    option.AppID,
		Env:      option.Env,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %s\n", err)
	}
	logger = logger.With(
		zap.String("service.id", option.AppID),
	)
	defer logger.Sync()

	dbConn, err := driver.GetDBConnection(&driver.DBConfig{
		User:     option.Database.User,
		Password: option.Database.Password,
		MaxConn:  option.Database.MaxConn,
		Protocol: option.Database.Protocol,
		Driver:   option.Database.Driver,
		Host:     option.Database.Host,
		Port:     option.Database.Port,
		Query:    option.Database.Query,
		Schema:   option.Database.Schema,
	})
	if err != nil {
		logger.Fatal("Failed to create DB connection", zap.Error(err))
	}
	defer dbConn.Close(context.Background())
	logger.Debug("Create DB connection instance", zap.String("db.driver", option.Database.Driver),
		zap.String("db.schema", option.Database.Schema),
		zap.String("db.host", option.Database.Host),
	)

	rdb := driver.NewRedisClient(option.KVStore.Host, option.KVStore.Port, option.KVStore.Password)
	defer rdb.Close()

	registry := metrics.NewRegistry("course_progress")
	IDGenerator := uuid.NewNanoIDGenerator(option.Security.IDLength)

	CatalogRepo := course.NewCatalogRepository(dbConn)
	Catalog := course.NewCachedCatalog(CatalogRepo, rdb, option.Catalog.CacheTTL)

	ProgressRepo := progress.NewProgressRepository(dbConn)
	CertificateRepo := certificate.NewCertificateRepository(dbConn)
	Issuer := certificate.NewHTTPIssuer(option.Certificate.IssuerURL, option.Certificate.IssuerTimeout)
	Gate := certificate.NewGate(CertificateRepo, ProgressRepo, Issuer,
		IDGenerator, uuid.NewVerificationCodeGenerator(option.Certificate.CodeLength), registry)
	if option.Certificate.RenderTimeout > 0 {
		Gate.RenderTimeout = option.Certificate.RenderTimeout
	}
	defer Gate.Wait()

	ProgressUseCase := progress.NewProgressUseCase(ProgressRepo, Catalog,
		progress.NewMergePolicy(option.Progress.NearEndRatio), Gate, IDGenerator, validate.NewValidator("en"), registry)
	Relay := playback.NewRelay(playback.NewPolicy(option.Progress.SampleInterval, option.Progress.EndWindow),
		ProgressUseCase, registry)

	Sweeper := certificate.NewSweeper(Gate, CertificateRepo, option.Certificate.SweepBatch, logger)
	if err := Sweeper.Start(option.Certificate.SweepSchedule); err != nil {
		logger.Fatal("Failed to schedule certificate sweeper", zap.Error(err))
	}
	defer func() { <-Sweeper.Stop().Done() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := rest.NewServer(dbConn, rdb, option, ProgressUseCase, Gate, Relay, registry, logger)
	if err := rest.Serve(ctx, app, option, logger); err != nil {
		logger.Error("http server stopped", zap.Error(err))
	}
}
