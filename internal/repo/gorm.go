package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"FileShare/config"
	"FileShare/model"

	"github.com/glebarez/sqlite"
	mysqlDriver "github.com/go-sql-driver/mysql"
	gormMysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDatabase opens the configured SQL database and migrates the schema.
func OpenDatabase(cfg *config.Config, log *slog.Logger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.DBDriver {
	case config.DriverMySQL:
		db, err = gorm.Open(gormMysql.Open(mysqlDSN(cfg, cfg.DBName)), gormCfg)
		if err != nil && isUnknownDatabaseError(err) {
			if createErr := ensureMySQLDatabase(cfg); createErr != nil {
				return nil, fmt.Errorf("create mysql database: %w", createErr)
			}
			db, err = gorm.Open(gormMysql.Open(mysqlDSN(cfg, cfg.DBName)), gormCfg)
		}
	case config.DriverPostgres:
		db, err = gorm.Open(postgres.Open(postgresDSN(cfg)), gormCfg)
	case config.DriverSQLite:
		db, err = OpenSQLite(cfg.DBPath)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", cfg.DBDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DBDriver, err)
	}

	if cfg.DBDriver != config.DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql db: %w", err)
		}
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	log.Info("database ready", slog.String("driver", cfg.DBDriver))
	return db, nil
}

// OpenSQLite opens a SQLite file with a single writer connection.
func OpenSQLite(path string) (*gorm.DB, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// AutoMigrate creates or updates the file_shares table.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.FileShare{}); err != nil {
		return fmt.Errorf("migrate file_shares: %w", err)
	}
	return nil
}

func mysqlDSN(cfg *config.Config, dbName string) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.DBUser,
		cfg.DBPass,
		cfg.DBHost,
		cfg.DBPort,
		dbName,
	)
}

func postgresDSN(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=disable TimeZone=UTC",
		cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBUser, cfg.DBPass)
}

func isUnknownDatabaseError(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1049
	}
	return strings.Contains(strings.ToLower(err.Error()), "unknown database")
}

func ensureMySQLDatabase(cfg *config.Config) error {
	dbName := strings.TrimSpace(cfg.DBName)
	if dbName == "" {
		return errors.New("empty database name")
	}

	serverDB, err := sql.Open("mysql", mysqlDSN(cfg, ""))
	if err != nil {
		return err
	}
	defer serverDB.Close()

	if err = serverDB.Ping(); err != nil {
		return err
	}

	_, err = serverDB.Exec(
		"CREATE DATABASE IF NOT EXISTS " + quoteMySQLIdentifier(dbName) + " CHARACTER SET utf8mb4 COLLATE utf8mb4_general_ci",
	)
	return err
}

func quoteMySQLIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// GormRegistry stores shares in a SQL table through gorm.
type GormRegistry struct {
	db *gorm.DB
}

func NewGormRegistry(db *gorm.DB) *GormRegistry {
	return &GormRegistry{db: db}
}

func (r *GormRegistry) Create(ctx context.Context, share *model.FileShare) error {
	if err := r.db.WithContext(ctx).Create(share).Error; err != nil {
		if isDuplicateError(err) {
			return fmt.Errorf("%w: %s", ErrConflict, share.ID)
		}
		return fmt.Errorf("create share: %w", err)
	}
	return nil
}

func (r *GormRegistry) FindByAccessKey(ctx context.Context, accessKey string) (*model.FileShare, error) {
	var share model.FileShare
	err := r.db.WithContext(ctx).Where("access_key = ?", accessKey).First(&share).Error
	if err != nil {
		return nil, translateLookup(err)
	}
	return &share, nil
}

func (r *GormRegistry) FindByID(ctx context.Context, id string) (*model.FileShare, error) {
	var share model.FileShare
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&share).Error
	if err != nil {
		return nil, translateLookup(err)
	}
	return &share, nil
}

// IncrementDownloadCount runs the guarded update and reads the count back in
// the same transaction, so the returned value is the one this call produced.
func (r *GormRegistry) IncrementDownloadCount(ctx context.Context, id string) (int, error) {
	var count int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.FileShare{}).
			Where("id = ? AND is_active = ? AND download_count < max_downloads", id, true).
			UpdateColumn("download_count", gorm.Expr("download_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		var share model.FileShare
		if res.RowsAffected == 0 {
			err := tx.Select("is_active").Where("id = ?", id).Take(&share).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			if err != nil {
				return err
			}
			if !share.IsActive {
				return ErrNotFound
			}
			return ErrQuotaExhausted
		}
		if err := tx.Select("download_count").Where("id = ?", id).Take(&share).Error; err != nil {
			return err
		}
		count = share.DownloadCount
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrQuotaExhausted) {
			return 0, err
		}
		return 0, fmt.Errorf("increment download count: %w", err)
	}
	return count, nil
}

func (r *GormRegistry) Deactivate(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&model.FileShare{}).
		Where("id = ?", id).
		UpdateColumn("is_active", false)
	if res.Error != nil {
		return fmt.Errorf("deactivate share: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	// MySQL reports zero affected rows when the value did not change.
	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return nil
}

func translateLookup(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("find share: %w", err)
}

func isDuplicateError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}
