package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"vaultcredits/internal/model"

	"github.com/stretchr/testify/require"
)

func TestTryReserveWinsOnce(t *testing.T) {
	db := newTestDB(t)
	repo := NewAwardRepository(db)
	ctx := context.Background()

	won, err := repo.TryReserve(ctx, nil, &model.AwardRecord{
		AwardNo:     "AWD-1",
		UserID:      1,
		CampaignKey: "vault:7",
		Amount:      100,
	})
	require.NoError(t, err)
	require.True(t, won)

	// 同一 (user, campaign) 第二次占位必须输，哪怕隔了任意久
	won, err = repo.TryReserve(ctx, nil, &model.AwardRecord{
		AwardNo:     "AWD-2",
		UserID:      1,
		CampaignKey: "vault:7",
		Amount:      100,
	})
	require.NoError(t, err)
	require.False(t, won)

	// 其他活动、其他用户不受影响
	won, err = repo.TryReserve(ctx, nil, &model.AwardRecord{
		AwardNo:     "AWD-3",
		UserID:      1,
		CampaignKey: "vault:8",
		Amount:      100,
	})
	require.NoError(t, err)
	require.True(t, won)

	won, err = repo.TryReserve(ctx, nil, &model.AwardRecord{
		AwardNo:     "AWD-4",
		UserID:      2,
		CampaignKey: "vault:7",
		Amount:      100,
	})
	require.NoError(t, err)
	require.True(t, won)
}

func TestTryReserveConcurrent(t *testing.T) {
	db := newTestDB(t)
	repo := NewAwardRepository(db)
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	type result struct {
		won bool
		err error
	}
	results := make(chan result, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			won, err := repo.TryReserve(ctx, nil, &model.AwardRecord{
				AwardNo:     fmt.Sprintf("AWD-C-%d", i),
				UserID:      42,
				CampaignKey: "vault:7",
				Amount:      100,
			})
			results <- result{won: won, err: err}
		}(i)
	}
	wg.Wait()
	close(results)

	winners := 0
	for r := range results {
		require.NoError(t, r.err)
		if r.won {
			winners++
		}
	}
	require.Equal(t, 1, winners, "并发占位必须恰好一个赢家")

	var count int64
	require.NoError(t, db.Table("award_record").
		Where("user_id = ? AND campaign_key = ?", 42, "vault:7").
		Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestHasAwarded(t *testing.T) {
	db := newTestDB(t)
	repo := NewAwardRepository(db)
	ctx := context.Background()

	awarded, err := repo.HasAwarded(ctx, 1, "vault:7")
	require.NoError(t, err)
	require.False(t, awarded)

	_, err = repo.TryReserve(ctx, nil, &model.AwardRecord{
		AwardNo:     "AWD-1",
		UserID:      1,
		CampaignKey: "vault:7",
		Amount:      100,
	})
	require.NoError(t, err)

	awarded, err = repo.HasAwarded(ctx, 1, "vault:7")
	require.NoError(t, err)
	require.True(t, awarded)
}

func TestFindDuplicatesEmpty(t *testing.T) {
	db := newTestDB(t)
	repo := NewAwardRepository(db)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := repo.TryReserve(ctx, nil, &model.AwardRecord{
			AwardNo:     fmt.Sprintf("AWD-%d", i),
			UserID:      int64(i),
			CampaignKey: "vault:7",
			Amount:      100,
		})
		require.NoError(t, err)
	}

	pairs, err := repo.FindDuplicates(ctx)
	require.NoError(t, err)
	require.Empty(t, pairs)
}
