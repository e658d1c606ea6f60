package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

var (
	db *gorm.DB
)

func GetDB() *gorm.DB {
	return db
}

// UseDB replaces the global connection. Used by the CLI and tests.
func UseDB(conn *gorm.DB) {
	db = conn
}

func init() {
	// Load env from .env
	godotenv.Load()
}

// ConnectDatabaseWithRetry connects and sets the global DB.
// Call this from main() AFTER the HTTP server is listening.
func ConnectDatabaseWithRetry() {
	cfg := GetSettings().DB

	var attempt int
	for {
		attempt++
		conn, err := OpenDatabase(cfg)
		if err == nil {
			db = conn
			log.Printf("connected to database (driver=%s attempt=%d)", cfg.Driver, attempt)
			return
		}

		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		log.Printf("failed to connect database (attempt=%d): %v; retrying in %s", attempt, err, sleep)
		time.Sleep(sleep)
	}
}

// OpenDatabase opens a pool for the configured driver, tunes it and installs plugins.
func OpenDatabase(cfg DatabaseSettings) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverSQLite:
		dialector = sqlite.Open(SQLiteDSN(cfg.SQLitePath))
	case DriverMySQL, "":
		dialector = mysql.Open(MySQLDSN(cfg))
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}

	conn, err := gorm.Open(dialector, initConfig())
	if err != nil {
		return nil, err
	}

	if sqlDB, derr := conn.DB(); derr == nil && sqlDB != nil {
		if cfg.Driver == DriverSQLite {
			// single writer
			sqlDB.SetMaxOpenConns(1)
		} else {
			if cfg.MaxOpenConns > 0 {
				sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
			}
			if cfg.MaxIdleConns >= 0 {
				sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
			}
			if cfg.ConnMaxLifetime > 0 {
				sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
			}
			if cfg.ConnMaxIdleTime > 0 {
				sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
			}
		}
	}

	if pluginErr := conn.Use(otelgorm.NewPlugin()); pluginErr != nil {
		log.Printf("db connected but failed to install otelgorm plugin: %v", pluginErr)
	}
	if pluginErr := conn.Use(NewHistoryGuardPlugin()); pluginErr != nil {
		return nil, fmt.Errorf("install history guard plugin: %w", pluginErr)
	}
	return conn, nil
}

// MySQLDSN builds the DSN for TCP or Cloud SQL unix sockets.
// clientFoundRows makes RowsAffected count matched rows, which the version check relies on.
func MySQLDSN(cfg DatabaseSettings) string {
	dsn := gomysql.NewConfig()
	dsn.User = cfg.User
	dsn.Passwd = cfg.Password
	dsn.Net = "tcp"
	dsn.Addr = fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
	dsn.DBName = cfg.Name
	dsn.ParseTime = true
	dsn.ClientFoundRows = true
	dsn.Loc = time.UTC

	// DB_HOST=/cloudsql/<CONNECTION_NAME> connects through the Cloud SQL Auth Proxy socket.
	if strings.HasPrefix(cfg.Host, "/cloudsql/") {
		dsn.Net = "unix"
		dsn.Addr = cfg.Host
	}
	return dsn.FormatDSN()
}

func SQLiteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=1&_busy_timeout=5000"
}

// TxContext bounds a store transaction by DB_TX_TIMEOUT_SECONDS.
func TxContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := GetSettings().DB.TxTimeout
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// InitConfig Initialize Config
func initConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         initLog(),
		NamingStrategy: initNamingStrategy(),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// InitLog Connection Log Configuration
func initLog() logger.Interface {
	level := logger.Error
	if os.Getenv("GORM_LOG") == "info" {
		level = logger.Info
	}
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			Colorful:                  false,
			LogLevel:                  level,
			SlowThreshold:             time.Second,
			IgnoreRecordNotFoundError: true,
		},
	)
}

// InitNamingStrategy Init NamingStrategy
func initNamingStrategy() *schema.NamingStrategy {
	return &schema.NamingStrategy{
		SingularTable: false,
		TablePrefix:   "",
	}
}
