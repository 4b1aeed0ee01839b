package repository

import (
	"context"
	"fmt"
	"testing"

	"vaultcredits/internal/infrastructure/database"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB 每个测试一个独立的内存库
// 连接池压到 1，sqlite 写入串行化，不会出现 database is locked
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.AutoMigrate(db))
	return db
}

func TestNormalizeWallet(t *testing.T) {
	normalized, err := NormalizeWallet("  0xABCdef123  ")
	require.NoError(t, err)
	require.Equal(t, "0xabcdef123", normalized)

	for _, bad := range []string{"", "   ", "abc123", "0x"} {
		_, err := NormalizeWallet(bad)
		require.ErrorIs(t, err, ErrInvalidAddress, "input=%q", bad)
	}
}

func TestGetOrCreateByWallet(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user, err := repo.GetOrCreateByWallet(ctx, "0xabc")
	require.NoError(t, err)
	require.NotZero(t, user.ID)
	require.Equal(t, int64(0), user.Balance)

	// 再次解析同一地址不能创建第二个用户
	again, err := repo.GetOrCreateByWallet(ctx, "0xabc")
	require.NoError(t, err)
	require.Equal(t, user.ID, again.ID)

	var count int64
	require.NoError(t, db.Table("user").Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestLinkSocialHandle(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	alice, err := repo.GetOrCreateByWallet(ctx, "0xaaa")
	require.NoError(t, err)
	bob, err := repo.GetOrCreateByWallet(ctx, "0xbbb")
	require.NoError(t, err)

	require.NoError(t, repo.LinkSocialHandle(ctx, alice.ID, "alice_x", `{"verified":true}`))

	// 重复绑定同一用户：幂等成功
	require.NoError(t, repo.LinkSocialHandle(ctx, alice.ID, "alice_x", ""))

	// 绑定到另一个用户：冲突，且双方状态不变
	err = repo.LinkSocialHandle(ctx, bob.ID, "alice_x", "")
	require.ErrorIs(t, err, ErrHandleAlreadyLinked)

	aliceAfter, err := repo.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, "alice_x", aliceAfter.SocialHandle)

	bobAfter, err := repo.GetByID(ctx, bob.ID)
	require.NoError(t, err)
	require.Empty(t, bobAfter.SocialHandle)
}

func TestDeductInsufficient(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user, err := repo.GetOrCreateByWallet(ctx, "0xabc")
	require.NoError(t, err)
	require.NoError(t, repo.Increase(ctx, nil, user.ID, 30))

	err = repo.Deduct(ctx, nil, user.ID, 50)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	after, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(30), after.Balance)

	require.NoError(t, repo.Deduct(ctx, nil, user.ID, 30))
	after, err = repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), after.Balance)
}

func TestDeductUnknownUser(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)

	err := repo.Deduct(context.Background(), nil, 9999, 10)
	require.ErrorIs(t, err, ErrUserNotFound)
}
