package db

import (
	"fmt"
	"net/url"
	"time"

	"marketplace/internal/config"
	"marketplace/internal/domain/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const applicationName = "marketplace"

// Connect はDBに接続して *gorm.DB を返す。
func Connect(cfg config.Config) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	gdb, err := gorm.Open(dialector, GormConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DBDriver, err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DBMaxOpenConns / 2)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return gdb, nil
}

// GormConfigはテスト用DBとも共通の設定
// TranslateErrorで一意制約違反をgorm.ErrDuplicatedKeyにそろえる
func GormConfig(cfg config.Config) *gorm.Config {
	level := logger.Warn
	if cfg.IsProd() {
		level = logger.Error
	}
	return &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(level),
	}
}

func dialectorFor(cfg config.Config) (gorm.Dialector, error) {
	switch cfg.DBDriver {
	case config.DriverMySQL:
		return mysql.Open(MySQLDSN(cfg)), nil
	case config.DriverPostgres, "":
		connCfg, err := pgx.ParseConfig(PostgresDSN(cfg))
		if err != nil {
			return nil, fmt.Errorf("parse postgres dsn: %w", err)
		}
		if connCfg.RuntimeParams == nil {
			connCfg.RuntimeParams = map[string]string{}
		}
		// pg_stat_activityで見分けられるように
		connCfg.RuntimeParams["application_name"] = applicationName

		return postgres.New(postgres.Config{Conn: stdlib.OpenDB(*connCfg)}), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER: %s", cfg.DBDriver)
	}
}

// DATABASE_URL があれば最優先で使う
func PostgresDSN(cfg config.Config) string {
	if cfg.DatabaseURL != "" {
		return cfg.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresSSLMode,
	)
}

// clientFoundRows: 値が変わらないUPDATEでもRowsAffectedを1にする（0件=存在しない、で判定しているため）
func MySQLDSN(cfg config.Config) string {
	q := url.Values{}
	q.Set("charset", "utf8mb4")
	q.Set("parseTime", "true")
	q.Set("loc", "UTC")
	q.Set("clientFoundRows", "true")

	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		cfg.MySQLUser, cfg.MySQLPassword, cfg.MySQLHost, cfg.MySQLPort, cfg.MySQLDB, q.Encode())
}

// Migrate はテーブルを作る（スキーマの用意だけ。マイグレーション管理はしない）
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&model.User{},
		&model.Category{},
		&model.Color{},
		&model.Product{},
		&model.ProductMaterial{},
		&model.Review{},
		&model.Wishlist{},
		&model.WishlistItem{},
		&model.Cart{},
		&model.CartItem{},
		&model.Order{},
		&model.OrderItem{},
		&model.InventoryAdjustment{},
		&model.AuditLog{},
	)
}
