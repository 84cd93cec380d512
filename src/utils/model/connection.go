package model

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hive-micro/watcher/src/utils/build_info"
	"github.com/hive-micro/watcher/src/utils/config"
	l "github.com/hive-micro/watcher/src/utils/logger"
	"github.com/hive-micro/watcher/src/utils/model/sql_migrations"

	migrate "github.com/rubenv/sql-migrate"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Connect(ctx context.Context, dbConfig *config.Database, username, password, applicationName string) (self *gorm.DB, err error) {
	log := l.NewSublogger("db")

	logger := logger.New(log,
		logger.Config{
			SlowThreshold:             500 * time.Millisecond, // Slow SQL threshold
			LogLevel:                  logger.Error,           // Log level
			IgnoreRecordNotFoundError: true,                   // Ignore ErrRecordNotFound error for logger
			Colorful:                  false,                  // Disable color
		},
	)

	var dialector gorm.Dialector
	switch dbConfig.Driver {
	case config.DriverPostgres:
		var dsn string
		dsn, err = postgresDsn(dbConfig, username, password, applicationName)
		if err != nil {
			return
		}
		dialector = postgres.Open(dsn)
	case config.DriverSqlite:
		dialector = sqlite.Open(sqliteDsn(dbConfig.SqlitePath))
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", dbConfig.Driver)
	}

	self, err = gorm.Open(dialector, &gorm.Config{Logger: logger})
	if err != nil {
		return
	}

	db, err := self.DB()
	if err != nil {
		return
	}

	db.SetMaxOpenConns(dbConfig.MaxOpenConns)
	db.SetMaxIdleConns(dbConfig.MaxIdleConns)
	db.SetConnMaxIdleTime(dbConfig.ConnMaxIdleTime)
	db.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)
	err = ping(ctx, dbConfig, self)
	if err != nil {
		return
	}

	return
}

func postgresDsn(dbConfig *config.Database, username, password, applicationName string) (dsn string, err error) {
	if dbConfig.Dsn != "" {
		return dbConfig.Dsn, nil
	}

	dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s application_name=%s/hive-micro/%s",
		dbConfig.Host,
		dbConfig.Port,
		username,
		password,
		dbConfig.Name,
		dbConfig.SslMode,
		applicationName,
		build_info.Version,
	)

	if dbConfig.ClientKey != "" && dbConfig.ClientCert != "" && dbConfig.CaCert != "" {
		var keyFile, certFile, caFile string
		keyFile, err = writeTemp("key.pem", dbConfig.ClientKey)
		if err != nil {
			return
		}
		certFile, err = writeTemp("cert.pem", dbConfig.ClientCert)
		if err != nil {
			return
		}
		caFile, err = writeTemp("ca.pem", dbConfig.CaCert)
		if err != nil {
			return
		}
		dsn += fmt.Sprintf(" sslcert=%s sslkey=%s sslrootcert=%s", certFile, keyFile, caFile)
	}
	return
}

// libpq reads certificates from files only
func writeTemp(pattern, content string) (name string, err error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return
	}
	defer f.Close()
	_, err = f.WriteString(content)
	if err != nil {
		return
	}
	return f.Name(), nil
}

func sqliteDsn(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_busy_timeout=5000&_journal_mode=WAL"
}

func NewConnection(ctx context.Context, config *config.Config, applicationName string) (self *gorm.DB, err error) {
	self, err = Connect(ctx, &config.Database, config.Database.User, config.Database.Password, applicationName)
	if err != nil {
		return
	}

	err = Migrate(ctx, config, self)
	if err != nil {
		return
	}

	return
}

func migrationSource(driver string) (source migrate.MigrationSource, dialect string, err error) {
	var dir string
	switch driver {
	case config.DriverPostgres:
		dir, dialect = "postgres", "postgres"
	case config.DriverSqlite:
		dir, dialect = "sqlite", "sqlite3"
	default:
		return nil, "", fmt.Errorf("unsupported database driver: %q", driver)
	}

	sub, err := fs.Sub(sql_migrations.FS, dir)
	if err != nil {
		return
	}

	source = &migrate.HttpFileSystemMigrationSource{
		FileSystem: http.FS(sub),
	}
	return
}

// Applies migrations. Postgres migrations use a dedicated user if one is configured.
func Migrate(ctx context.Context, config *config.Config, db *gorm.DB) (err error) {
	log := l.NewSublogger("db-migrate")

	migrations, dialect, err := migrationSource(config.Database.Driver)
	if err != nil {
		return
	}

	if dialect == "postgres" && config.Database.MigrationUser != "" && config.Database.MigrationPassword != "" {
		// Use special migration user
		db, err = Connect(ctx, &config.Database, config.Database.MigrationUser, config.Database.MigrationPassword, "migration")
		if err != nil {
			return
		}

		var migrationDB *sql.DB
		migrationDB, err = db.DB()
		if err != nil {
			return
		}
		defer migrationDB.Close()

		config.Database.MigrationUser = ""
		config.Database.MigrationPassword = ""
	}

	sqlDB, err := db.DB()
	if err != nil {
		return
	}

	n, err := migrate.Exec(sqlDB, dialect, migrations, migrate.Up)
	if err != nil {
		return
	}

	log.WithField("num", n).Info("Applied migrations")
	return
}

func ping(ctx context.Context, dbConfig *config.Database, db *gorm.DB) (err error) {
	if dbConfig.PingTimeout < 0 {
		// Ping disabled
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return
	}

	dbCtx, cancel := context.WithTimeout(ctx, dbConfig.PingTimeout)
	defer cancel()

	return sqlDB.PingContext(dbCtx)
}
