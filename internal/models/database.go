package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bidyaasp/project-management/internal/config"
	"github.com/bidyaasp/project-management/internal/utils"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func InitDB(cfg *config.DatabaseConfig) error {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(parseLogLevel(cfg.LogLevel)),
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}

	DB = db
	return nil
}

func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// AllModels lists every table the service owns, parents before children.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&RefreshToken{},
		&Project{},
		&ProjectMember{},
		&Task{},
		&TimeLog{},
		&Comment{},
		&ProjectHistory{},
		&TaskHistory{},
		&SystemLog{},
		&SchedulerLock{},
		&OverdueReport{},
	}
}

func AutoMigrate() error {
	return Migrate(DB)
}

// Migrate creates or updates the schema on db.
func Migrate(db *gorm.DB) error {
	if err := db.SetupJoinTable(&Project{}, "Members", &ProjectMember{}); err != nil {
		return fmt.Errorf("setup project members: %w", err)
	}
	return db.AutoMigrate(AllModels()...)
}

func GetDB() *gorm.DB {
	return DB
}

// SeedAdmin creates the configured administrator if no admin exists yet.
// It reports whether a user was created.
func SeedAdmin(db *gorm.DB, cfg *config.AdminConfig) (bool, error) {
	var count int64
	if err := db.Model(&User{}).Where("role = ?", RoleAdmin).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	var existing User
	err := db.Where("email = ?", cfg.Email).First(&existing).Error
	if err == nil {
		return false, fmt.Errorf("seed admin: email %s already used by a %s", cfg.Email, existing.Role)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	hashed, err := utils.HashPassword(cfg.Password)
	if err != nil {
		return false, err
	}
	admin := User{
		Name:     cfg.Name,
		Email:    cfg.Email,
		Password: hashed,
		Role:     RoleAdmin,
		IsActive: true,
	}
	if err := db.Create(&admin).Error; err != nil {
		return false, err
	}
	return true, nil
}
