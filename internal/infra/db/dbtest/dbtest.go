// Package dbtest はテスト用のインメモリSQLiteを用意する
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"marketplace/internal/config"
	"marketplace/internal/infra/db"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Openはテストごとに別のDBを返す（名前付きのshared cacheなのでコネクション間で共有される）
// 外部キー制約はSQLiteでは既定で無効なので _foreign_keys で有効にする
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", name)

	gdb, err := gorm.Open(sqlite.Open(dsn), db.GormConfig(config.Config{GoEnv: "test"}))
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	//SQLiteは書き込みが1本なので、ロック待ちを避ける
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Migrate(gdb))
	return gdb
}
