package main

import (
	"fmt"
	"testing"

	"marketplace/internal/database"
	"marketplace/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedTwiceKeepsLedgerMatchingBalances(t *testing.T) {
	dsn := fmt.Sprintf("file:seed_test_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.Connect(dsn, nil)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	require.NoError(t, db.Transaction(seed))
	require.NoError(t, db.Transaction(seed))

	var users []domain.User
	require.NoError(t, db.Find(&users).Error)
	require.Len(t, users, len(demoUsers))
	for _, u := range users {
		var total int64
		require.NoError(t, db.Model(&domain.LedgerEntry{}).
			Where("user_id = ?", u.ID).
			Select("COALESCE(SUM(amount), 0)").Scan(&total).Error)
		assert.Equal(t, u.WalletBalance, total, "user %d", u.ID)
	}

	var deposits int64
	require.NoError(t, db.Model(&domain.LedgerEntry{}).Where("type = ?", domain.LedgerDeposit).Count(&deposits).Error)
	assert.Equal(t, int64(2), deposits)

	var services int64
	require.NoError(t, db.Model(&domain.ServiceListing{}).Count(&services).Error)
	assert.Equal(t, int64(len(demoServices)), services)
}
