package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	GoEnv    string // dev/prod
	LogLevel string // debug/info/warn/error

	JWTSecret string // JWT署名シークレット（発行は外部の認証基盤）

	DBDriver       string // postgres / mysql
	DatabaseURL    string // あればPOSTGRES_*より優先
	DBMaxOpenConns int

	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     int
	PostgresSSLMode  string

	MySQLUser     string
	MySQLPassword string
	MySQLDB       string
	MySQLHost     string
	MySQLPort     int

	RedisURL        string        // 空ならキャッシュなし
	ProductCacheTTL time.Duration // 商品詳細キャッシュの寿命

	RabbitMQURL string // 空ならイベント発行なし
}

func (c Config) IsProd() bool {
	return c.GoEnv == "prod"
}

// LoadDotEnvは.envを環境変数に読み込む。ファイルが無いのはエラーにしない
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Loadは環境変数
func Load() (Config, error) {
	cfg := Config{
		Port: os.Getenv("PORT"),

		GoEnv:    os.Getenv("GO_ENV"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		DBDriver:    strings.ToLower(getenv("DB_DRIVER", DriverPostgres)),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", "disable"),

		MySQLUser:     os.Getenv("MYSQL_USER"),
		MySQLPassword: os.Getenv("MYSQL_PASSWORD"),
		MySQLDB:       os.Getenv("MYSQL_DB"),
		MySQLHost:     os.Getenv("MYSQL_HOST"),

		RedisURL:    os.Getenv("REDIS_URL"),
		RabbitMQURL: os.Getenv("RABBITMQ_URL"),
	}

	var err error
	if cfg.DBMaxOpenConns, err = atoiDefault("DB_MAX_OPEN_CONNS", 10); err != nil {
		return Config{}, err
	}
	if cfg.PostgresPort, err = atoiDefault("POSTGRES_PORT", 5432); err != nil {
		return Config{}, err
	}
	if cfg.MySQLPort, err = atoiDefault("MYSQL_PORT", 3306); err != nil {
		return Config{}, err
	}

	cfg.ProductCacheTTL = 5 * time.Minute
	if v := os.Getenv("PRODUCT_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("PRODUCT_CACHE_TTL must be duration: %w", err)
		}
		if d <= 0 {
			return Config{}, fmt.Errorf("PRODUCT_CACHE_TTL must be positive")
		}
		cfg.ProductCacheTTL = d
	}

	//必須チェック
	if cfg.Port == "" {
		return Config{}, fmt.Errorf("PORT is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.GoEnv == "" {
		return Config{}, fmt.Errorf("GO_ENV is required")
	}

	switch cfg.DBDriver {
	case DriverPostgres:
		//DATABASE_URLがあれば個別の値は見ない
		if cfg.DatabaseURL == "" {
			if err := required(
				envValue{"POSTGRES_USER", cfg.PostgresUser},
				envValue{"POSTGRES_PASSWORD", cfg.PostgresPassword},
				envValue{"POSTGRES_DB", cfg.PostgresDB},
				envValue{"POSTGRES_HOST", cfg.PostgresHost},
			); err != nil {
				return Config{}, err
			}
		}
	case DriverMySQL:
		if err := required(
			envValue{"MYSQL_USER", cfg.MySQLUser},
			envValue{"MYSQL_DB", cfg.MySQLDB},
			envValue{"MYSQL_HOST", cfg.MySQLHost},
		); err != nil {
			return Config{}, err
		}
	default:
		return Config{}, fmt.Errorf("DB_DRIVER must be postgres or mysql: %q", cfg.DBDriver)
	}

	return cfg, nil
}

type envValue struct {
	key string
	val string
}

func required(vals ...envValue) error {
	for _, v := range vals {
		if v.val == "" {
			return fmt.Errorf("%s is required", v.key)
		}
	}
	return nil
}

func getenv(key string, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func atoiDefault(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}
