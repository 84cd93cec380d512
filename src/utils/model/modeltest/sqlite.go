// Package modeltest provides throwaway databases for tests.
package modeltest

import (
	"context"
	"fmt"

	"github.com/hive-micro/watcher/src/utils/config"
	"github.com/hive-micro/watcher/src/utils/model"

	"github.com/rs/xid"
	"gorm.io/gorm"
)

// Migrated in-memory sqlite database. Modifies the database section of the config.
// The database lives as long as its single connection.
func NewSqlite(ctx context.Context, conf *config.Config) (*gorm.DB, error) {
	conf.Database.Url = ""
	conf.Database.Driver = config.DriverSqlite
	conf.Database.SqlitePath = fmt.Sprintf("file:%s?mode=memory&cache=shared", xid.New().String())
	conf.Database.MaxOpenConns = 1
	conf.Database.MaxIdleConns = 1
	conf.Database.ConnMaxIdleTime = 0
	conf.Database.ConnMaxLifetime = 0

	return model.NewConnection(ctx, conf, "test")
}
