package main

import (
	"github.com/bidyaasp/project-management/internal/authz"
	"github.com/bidyaasp/project-management/internal/config"
	"github.com/bidyaasp/project-management/internal/models"
	"github.com/bidyaasp/project-management/internal/services"
	"github.com/bidyaasp/project-management/internal/utils"
	"github.com/bidyaasp/project-management/pkg/logger"
	"gorm.io/gorm"
)

// appServices holds all initialized services needed by the application.
type appServices struct {
	cfg        *config.Config
	db         *gorm.DB
	authorizer *authz.Authorizer

	hub        *services.SSEHub
	taskQueue  services.TaskQueue
	worker     *services.Worker
	kafkaSink  *services.KafkaSink
	visibility *services.VisibilityService

	auth     *services.AuthService
	users    *services.UserService
	projects *services.ProjectService
	tasks    *services.TaskService
	timeLogs *services.TimeLogService
	comments *services.CommentService
	reports  *services.ReportService
	overdue  *services.OverdueReportService
	holidays *services.HolidayService
	logs     *services.SystemLogService
}

// openDatabase connects and migrates; every subcommand needs it.
func openDatabase(cfg *config.Config) *gorm.DB {
	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}
	return models.GetDB()
}

func seedAdmin(db *gorm.DB, cfg *config.Config) {
	created, err := models.SeedAdmin(db, &cfg.Admin)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin user")
		return
	}
	if created {
		logger.Info().Str("email", cfg.Admin.Email).Msg("Seeded administrator")
	}
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	db := openDatabase(cfg)
	seedAdmin(db, cfg)

	logs := services.NewSystemLogService(db)
	if err := logs.StartRetention(cfg.Log.RetentionDays); err != nil {
		logger.Fatalf("Failed to start log retention: %v", err)
	}

	authorizer, err := authz.New()
	if err != nil {
		logger.Fatalf("Failed to load authorization policy: %v", err)
	}

	// Activity fan-out: history rows committed by services are queued, then
	// delivered to SSE subscribers and the optional Kafka topic.
	hub := services.NewSSEHub()
	var sinks []services.ActivitySink
	kafkaSink := services.NewKafkaSink(&cfg.Kafka)
	if kafkaSink != nil {
		sinks = append(sinks, kafkaSink)
	}
	dispatcher := services.NewActivityDispatcher(hub, sinks...)

	taskQueue := services.InitTaskQueue(cfg)
	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(dispatcher.Process)
	}

	var worker *services.Worker
	if taskQueue.IsAsync() {
		worker = services.NewWorker(&cfg.Redis, dispatcher.Process)
		if worker != nil {
			if err := worker.Start(); err != nil {
				logger.Fatalf("Failed to start worker: %v", err)
			}
		}
	}
	events := services.NewActivityPublisher(taskQueue)

	holidays := services.NewHolidayService()
	overdue := services.NewOverdueReportService(db, &cfg.Report, holidays)
	if err := overdue.StartScheduler(); err != nil {
		logger.Fatalf("Failed to start overdue report scheduler: %v", err)
	}

	return &appServices{
		cfg:        cfg,
		db:         db,
		authorizer: authorizer,
		hub:        hub,
		taskQueue:  taskQueue,
		worker:     worker,
		kafkaSink:  kafkaSink,
		visibility: services.NewVisibilityService(db),
		auth:       services.NewAuthService(db, &cfg.JWT),
		users:      services.NewUserService(db, authorizer),
		projects:   services.NewProjectService(db, authorizer, events),
		tasks:      services.NewTaskService(db, authorizer, events),
		timeLogs:   services.NewTimeLogService(db, authorizer, events),
		comments:   services.NewCommentService(db, authorizer),
		reports:    services.NewReportService(db),
		overdue:    overdue,
		holidays:   holidays,
		logs:       logs,
	}
}

// shutdown stops schedulers first so no new activity is produced, then
// drains the queue before closing sinks.
func (s *appServices) shutdown() {
	s.overdue.StopScheduler()
	s.logs.StopRetention()
	logger.Info().Msg("All schedulers stopped")

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		if err := s.taskQueue.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close task queue")
		}
	}
	if s.kafkaSink != nil {
		if err := s.kafkaSink.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close kafka writer")
		}
	}
}
