package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"

	"gathered/cmd/buildCFG"
	"gathered/internal/api/api"
	rabbitReader "gathered/internal/consumerWorker"
	"gathered/internal/engine"
	"gathered/internal/mailer"
	"gathered/internal/rabbit"
	"gathered/internal/repo"
	"gathered/internal/service"
)

func main() {
	zlog.Init()
	log := zlog.Logger

	cfg := config.New()
	if err := cfg.Load("config.yaml", "", "GATHERED"); err != nil {
		log.Fatal().Msgf("failed to load configuration: %v", err)
	}
	serverCfg := buildCFG.BuildServerConfig(cfg, &log)

	engineCfg, err := buildCFG.BuildEngineConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build engine config")
	}
	resolver := engine.NewResolver(engineCfg.Location, engineCfg.DefaultDuration)

	authCfg, err := buildCFG.BuildAuthConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build auth config")
	}

	var repository repo.Repository
	var migrationPath string
	if cfg.GetString("storage.driver") == "memory" {
		log.Warn().Msg("using in-memory storage, data is lost on restart")
		mem := repo.NewMemoryRepository()
		for _, st := range buildCFG.BuildSeedStudents(cfg, &log) {
			mem.AddStudent(st)
		}
		repository = mem
	} else {
		masterDSN, slaveDSNs, poolOptions, err := buildCFG.BuildDBConfig(cfg, &log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to build DB config")
		}
		db, err := dbpg.New(masterDSN, slaveDSNs, poolOptions)
		if err != nil {
			log.Fatal().Msgf("failed to connect to DB: %v", err)
		}
		log.Info().Msg("Database connected successfully")

		repository, err = repo.NewRepository(db, &log)
		if err != nil {
			log.Fatal().Msgf("failed to initialize repository: %v", err)
		}
		cwd, err := os.Getwd()
		if err != nil {
			log.Fatal().Err(err).Msg("cannot get working directory")
		}
		migrationPath = filepath.Join(cwd, "migrations/postgres")
		if err := repository.MigrateUp(migrationPath); err != nil {
			log.Fatal().Err(err).Msg("migration failed")
		}
	}

	rabbitCfg, err := buildCFG.BuildRabbitConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load RabbitMQ config")
	}
	rmq, err := rabbit.NewRabbit(rabbitCfg.Url, rabbitCfg.Exchange, rabbitCfg.Queue)
	if err != nil {
		log.Fatal().Msgf("Failed to connect to RabbitMQ: %v", err)
	}
	defer rmq.Close()

	sender, err := mailer.New(buildCFG.BuildMailConfig(cfg, &log), &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build mailer")
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	reader := rabbitReader.NewReader(rmq, repository, sender, resolver)
	reader.Start(workerCtx)

	serviceInstance := service.NewService(repository, &log, rmq, resolver,
		service.WithReminderLead(engineCfg.ReminderLead))
	app := api.NewRouters(&api.Routers{
		Service:   serviceInstance,
		JWTSecret: authCfg.Secret,
		GinMode:   serverCfg.GinMode,
	})

	srv := &http.Server{
		Addr:              ":" + serverCfg.Port,
		Handler:           app,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info().Msgf("Starting server on %s", serverCfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("failed to start server: %w", err)
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-signalChan:
		log.Info().Msgf("Received signal %s. Initiating shutdown...", sig)
	case err := <-serverErrChan:
		log.Error().Msgf("Server error: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Msgf("Error shutting down server: %v", err)
	}

	cancelWorkers()
	reader.Stop()

	if migrationPath != "" && cfg.GetString("postgres.rollback_on_exit") == "true" {
		log.Info().Msg("Rolling back migrations...")
		if err := repository.MigrateDown(migrationPath); err != nil {
			log.Error().Msgf("failed to rollback migrations: %v", err)
		}
	}
	log.Info().Msg("Shutdown complete")
}
