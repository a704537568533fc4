package main

import (
	"github.com/bidyaasp/project-management/internal/handlers"
	"github.com/bidyaasp/project-management/internal/metrics"
	"github.com/bidyaasp/project-management/internal/middleware"
	"github.com/bidyaasp/project-management/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
// Mutation permissions are decided by the services, so most groups only
// require authentication.
func registerRoutes(r *gin.Engine, svc *appServices) {
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS(svc.cfg.Server.CORSOrigins), metrics.GinMiddleware())

	// Credential endpoints get a tighter per-IP budget
	limits := svc.cfg.Server.AuthRateLimit
	authLimiter := middleware.NewRateLimiter("auth", limits.RPS, limits.Burst)

	healthHandler := handlers.NewHealthHandler(svc.db, svc.taskQueue, svc.hub)
	r.GET("/health", healthHandler.CheckHealth)
	r.GET("/metrics", handlers.Metrics(prometheus.DefaultRegisterer, prometheus.DefaultGatherer, svc.db, svc.hub, svc.taskQueue))

	authHandler := handlers.NewAuthHandler(svc.auth)
	projectHandler := handlers.NewProjectHandler(svc.projects, svc.visibility, svc.reports)
	taskHandler := handlers.NewTaskHandler(svc.tasks, svc.timeLogs, svc.visibility)
	commentHandler := handlers.NewCommentHandler(svc.comments)
	userHandler := handlers.NewUserHandler(svc.users, svc.visibility)
	reportHandler := handlers.NewReportHandler(svc.reports, svc.overdue, svc.holidays)
	sseHandler := handlers.NewSSEHandler(svc.hub, svc.visibility)
	systemLogHandler := handlers.NewSystemLogHandler(svc.logs, svc.cfg.Log.RetentionDays)

	api := r.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth", authLimiter.Middleware())
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
		}

		protected := api.Group("", middleware.AuthRequired(svc.auth), middleware.AuditLog(svc.logs))
		{
			protected.GET("/auth/me", authHandler.GetCurrentUser)
			protected.POST("/auth/logout", authHandler.Logout)
			protected.POST("/auth/change-password", authLimiter.Middleware(), authHandler.ChangePassword)

			protected.GET("/events/activity", sseHandler.StreamActivity)

			// Projects
			protected.GET("/projects", projectHandler.List)
			protected.POST("/projects", projectHandler.Create)
			protected.GET("/projects/:id", projectHandler.GetByID)
			protected.PATCH("/projects/:id", projectHandler.Update)
			protected.DELETE("/projects/:id", projectHandler.Delete)
			protected.PUT("/projects/:id/archive", projectHandler.SetArchived)
			protected.GET("/projects/:id/members", projectHandler.Members)
			protected.POST("/projects/:id/members", projectHandler.AddMembers)
			protected.DELETE("/projects/:id/members", projectHandler.RemoveMembers)
			protected.GET("/projects/:id/history", projectHandler.History)
			protected.GET("/projects/:id/progress", projectHandler.Progress)

			// Tasks
			protected.GET("/tasks", taskHandler.List)
			protected.POST("/tasks", taskHandler.Create)
			protected.GET("/tasks/:id", taskHandler.GetByID)
			protected.PATCH("/tasks/:id", taskHandler.Update)
			protected.DELETE("/tasks/:id", taskHandler.Delete)
			protected.PUT("/tasks/:id/status", taskHandler.UpdateStatus)
			protected.PUT("/tasks/:id/deadline", taskHandler.UpdateDeadline)
			protected.GET("/tasks/:id/history", taskHandler.History)
			protected.GET("/tasks/:id/time-logs", taskHandler.TimeLogs)
			protected.POST("/tasks/:id/time-logs", taskHandler.LogTime)
			protected.GET("/tasks/:id/comments", commentHandler.List)
			protected.POST("/tasks/:id/comments", commentHandler.Create)
			protected.DELETE("/comments/:id", commentHandler.Delete)

			// Users
			protected.GET("/users", userHandler.List)
			protected.POST("/users", userHandler.Create)
			protected.GET("/users/me", userHandler.Me)
			protected.PATCH("/users/me", userHandler.UpdateProfile)
			protected.GET("/users/:id", userHandler.GetByID)
			protected.DELETE("/users/:id", userHandler.Delete)
			protected.PUT("/users/:id/toggle-active", userHandler.ToggleActivation)
			protected.GET("/users/:id/tasks", userHandler.Tasks)
			protected.GET("/users/:id/assigned-tasks", userHandler.AssignedTasks)
			protected.GET("/roles", userHandler.Roles)

			// Reports
			protected.GET("/reports/summary", reportHandler.Summary)
			protected.GET("/reports/task-counts", reportHandler.TaskCounts)
			protected.GET("/reports/projects", reportHandler.ProjectsProgress)
			protected.GET("/reports/overdue", reportHandler.Overdue)
			protected.GET("/reports/overdue-snapshots", reportHandler.ListSnapshots)
			protected.GET("/reports/overdue-snapshots/:date", reportHandler.GetSnapshot)
			protected.GET("/holidays/countries", reportHandler.Countries)
		}

		admin := api.Group("", middleware.AuthRequired(svc.auth), middleware.AdminRequired(), middleware.AuditLog(svc.logs))
		{
			admin.POST("/reports/overdue-snapshots", reportHandler.GenerateSnapshot)
			admin.GET("/system-logs", systemLogHandler.List)
			admin.GET("/system-logs/modules", systemLogHandler.GetModules)
			admin.POST("/system-logs/cleanup", systemLogHandler.Cleanup)
		}
	}
}
