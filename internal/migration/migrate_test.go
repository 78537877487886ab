package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestRun(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	assert.Len(t, Missing(db), len(Models()))

	require.NoError(t, Run(db))
	assert.Empty(t, Missing(db))

	// 두 번 실행해도 안전
	require.NoError(t, Run(db))
}

func TestTables(t *testing.T) {
	tables := Tables()
	assert.Len(t, tables, len(Models()))
	assert.Contains(t, tables, "rules")
	assert.Contains(t, tables, "rule_adoptions")
	assert.Contains(t, tables, "chapter_rules")
}
