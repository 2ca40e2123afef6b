package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/sandeep89846/MarkMe/internal/config"
)

type Store struct {
	DB *gorm.DB
}

func NewStore(cfg config.Config) (*Store, error) {
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}

	// TranslateError maps driver duplicate-key failures to gorm.ErrDuplicatedKey,
	// which the repositories rely on to resolve creation races by re-query.
	gdb, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	return &Store{DB: gdb}, nil
}

func (s *Store) Migrate() error {
	if s == nil || s.DB == nil {
		return errDBUnavailable
	}
	return s.DB.AutoMigrate(
		&BatchModel{},
		&StudentModel{},
		&SubjectModel{},
		&TimetableModel{},
		&DeviceModel{},
		&SessionModel{},
		&NonceModel{},
		&AttendanceRecordModel{},
	)
}
