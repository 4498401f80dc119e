// Package testutil opens throwaway storage for package tests: an in-memory
// sqlite database migrated with the chat schema and a miniredis instance.
package testutil

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mbeoliero/coursechat/internal/repository"
)

// NewDB opens an in-memory sqlite database.
// A single connection keeps the memory database alive and serialises writers,
// so code under test must run in-transaction queries on the tx handle.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// NewRedis starts a miniredis server and returns it with a connected client
func NewRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

// NewRepositories returns migrated repositories backed by NewDB and NewRedis
func NewRepositories(t *testing.T) *repository.Repositories {
	t.Helper()
	_, rdb := NewRedis(t)
	repos := repository.NewRepositoriesWithDB(NewDB(t), rdb)
	require.NoError(t, repos.AutoMigrate(context.Background()))
	return repos
}
